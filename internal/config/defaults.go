package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5001
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/mitsuke/data/index/products.idx"
	}
	if cfg.Storage.PathsPath == "" {
		cfg.Storage.PathsPath = "/usr/local/var/mitsuke/data/index/products.paths.json"
	}
	if cfg.Storage.MetadataPath == "" {
		cfg.Storage.MetadataPath = "/usr/local/var/mitsuke/data/index/metadata.json"
	}
	if cfg.Storage.ImageDir == "" {
		cfg.Storage.ImageDir = "/usr/local/var/mitsuke/data/product_images"
	}
	if cfg.Embedding.ImageModelPath == "" {
		cfg.Embedding.ImageModelPath = "/usr/local/var/mitsuke/data/models/clip-vit-b32-visual.onnx"
	}
	if cfg.Embedding.TextModelPath == "" {
		cfg.Embedding.TextModelPath = "/usr/local/var/mitsuke/data/models/clip-vit-b32-textual.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 77
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Index.PromoteThreshold == 0 {
		cfg.Index.PromoteThreshold = 100
	}
	if cfg.Index.MinClusters == 0 {
		cfg.Index.MinClusters = 10
	}
	if cfg.Index.MaxClusters == 0 {
		cfg.Index.MaxClusters = 100
	}
	if cfg.Index.PersistEvery == 0 {
		cfg.Index.PersistEvery = 5
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 10
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Search.DefaultThreshold == 0 {
		cfg.Search.DefaultThreshold = 0.6
	}
	if cfg.Search.ImageOverfetch == 0 {
		cfg.Search.ImageOverfetch = 5
	}
	if cfg.Search.TextOverfetch == 0 {
		cfg.Search.TextOverfetch = 3
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
