package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: 0.0.0.0
  port: 9000
storage:
  index_path: ./data/products.idx
  image_dir: ./data/images
embedding:
  dimensions: 512
search:
  default_threshold: 0.7
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true")
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9000 {
		t.Errorf("server = %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Storage.IndexPath != filepath.Join(dir, "data/products.idx") {
		t.Errorf("index path not expanded relative to config dir: %s", cfg.Storage.IndexPath)
	}
	if cfg.Search.DefaultThreshold != 0.7 {
		t.Errorf("threshold = %f", cfg.Search.DefaultThreshold)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Port != 5001 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Embedding.Dimensions != 512 {
		t.Errorf("default dimensions = %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.MaxTokens != 77 {
		t.Errorf("default max tokens = %d", cfg.Embedding.MaxTokens)
	}
	if cfg.Embedding.CacheSize != 1000 {
		t.Errorf("default cache size = %d", cfg.Embedding.CacheSize)
	}
	if cfg.Index.PromoteThreshold != 100 {
		t.Errorf("default promote threshold = %d", cfg.Index.PromoteThreshold)
	}
	if cfg.Index.PersistEvery != 5 {
		t.Errorf("default persist every = %d", cfg.Index.PersistEvery)
	}
	if cfg.Search.DefaultTopK != 10 || cfg.Search.MaxTopK != 100 {
		t.Errorf("default top_k = %d/%d", cfg.Search.DefaultTopK, cfg.Search.MaxTopK)
	}
	if cfg.Search.DefaultThreshold != 0.6 {
		t.Errorf("default threshold = %f", cfg.Search.DefaultThreshold)
	}
	if cfg.Search.ImageOverfetch != 5 || cfg.Search.TextOverfetch != 3 {
		t.Errorf("default overfetch = %d/%d", cfg.Search.ImageOverfetch, cfg.Search.TextOverfetch)
	}
}

func TestRecursiveOrDefault(t *testing.T) {
	w := &WatchConfig{}
	if !w.RecursiveOrDefault() {
		t.Error("recursive should default to true")
	}
	f := false
	w.Recursive = &f
	if w.RecursiveOrDefault() {
		t.Error("explicit false should win")
	}
}
