// Package config provides configuration loading and structs for the Mitsuke server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the persisted artifacts and the image store.
type StorageConfig struct {
	IndexPath    string `yaml:"index_path"`
	PathsPath    string `yaml:"paths_path"`
	MetadataPath string `yaml:"metadata_path"`
	ImageDir     string `yaml:"image_dir"`
}

// EmbeddingConfig holds CLIP ONNX embedder settings.
type EmbeddingConfig struct {
	ImageModelPath string `yaml:"image_model_path"`
	TextModelPath  string `yaml:"text_model_path"`
	Dimensions     int    `yaml:"dimensions"`
	MaxTokens      int    `yaml:"max_tokens"`
	CacheSize      int    `yaml:"cache_size"`
}

// IndexConfig holds vector index lifecycle settings.
type IndexConfig struct {
	// PromoteThreshold is the item count at which the flat index is promoted
	// to a partitioned (IVF) index.
	PromoteThreshold int `yaml:"promote_threshold"`
	MinClusters      int `yaml:"min_clusters"`
	MaxClusters      int `yaml:"max_clusters"`
	// PersistEvery controls how often single adds trigger a persist (every Nth add).
	PersistEvery int `yaml:"persist_every"`
}

// SearchConfig holds query pipeline settings.
type SearchConfig struct {
	DefaultTopK      int     `yaml:"default_top_k"`
	MaxTopK          int     `yaml:"max_top_k"`
	DefaultThreshold float64 `yaml:"default_threshold"`
	ImageOverfetch   int     `yaml:"image_overfetch"`
	TextOverfetch    int     `yaml:"text_overfetch"`
}

// WatchConfig holds ingest directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Storage.PathsPath = expandPath(cfg.Storage.PathsPath, configDir)
	cfg.Storage.MetadataPath = expandPath(cfg.Storage.MetadataPath, configDir)
	cfg.Storage.ImageDir = expandPath(cfg.Storage.ImageDir, configDir)
	cfg.Embedding.ImageModelPath = expandPath(cfg.Embedding.ImageModelPath, configDir)
	cfg.Embedding.TextModelPath = expandPath(cfg.Embedding.TextModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
