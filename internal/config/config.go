// Package config provides layered configuration loading for the RAG diary
// engine: a YAML file overridden by environment variables, with validated
// defaults applied to every component.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds the complete engine configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Diary       DiaryConfig       `koanf:"diary"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	VectorIndex VectorIndexConfig `koanf:"vector_index"`
	TagIndex    TagIndexConfig    `koanf:"tag_index"`
	Rerank      RerankConfig      `koanf:"rerank"`
	Cache       CacheConfig       `koanf:"cache"`
	TimeParse   TimeParseConfig   `koanf:"time_parse"`
	SemGroups   []SemGroupConfig  `koanf:"sem_groups"`
	MetaThink   MetaThinkConfig   `koanf:"meta_think"`
}

// ServerConfig holds the metrics/health HTTP listener configuration.
type ServerConfig struct {
	MetricsPort     int      `koanf:"metrics_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig mirrors the ambient logging knobs consumed by internal/logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DiaryConfig describes where diary files live and how they're filtered.
type DiaryConfig struct {
	// Root is the diary directory tree root.
	Root string `koanf:"root"`
	// IgnoreFolders are directory names skipped entirely.
	IgnoreFolders []string `koanf:"ignore_folders"`
	// IgnorePrefix/IgnoreSuffix skip directories by name affix.
	IgnorePrefix []string `koanf:"ignore_prefix"`
	IgnoreSuffix []string `koanf:"ignore_suffix"`
	// TagBlacklist drops whole tags matching an entry exactly.
	TagBlacklist []string `koanf:"tag_blacklist"`
	// TagBlacklistSuper removes a substring from every tag before validation.
	TagBlacklistSuper []string `koanf:"tag_blacklist_super"`
	// TagMinLength/TagMaxLength bound valid tag length.
	TagMinLength int `koanf:"tag_min_length"`
	TagMaxLength int `koanf:"tag_max_length"`
}

// EmbeddingConfig configures the embedding HTTP client.
type EmbeddingConfig struct {
	BaseURL            string   `koanf:"base_url"`
	Model              string   `koanf:"model"`
	APIKey             Secret   `koanf:"api_key"`
	WhitelistModel     string   `koanf:"whitelist_model"`
	MaxAttempts        int      `koanf:"max_attempts"`
	RequestTimeout     Duration `koanf:"request_timeout"`
	VectorizeConcurrency int    `koanf:"vectorize_concurrency"`
}

// VectorIndexConfig configures per-diary and global-tag ANN indexes.
type VectorIndexConfig struct {
	Dimension int `koanf:"dimension"`
}

// TagIndexConfig configures the tag vector manager and cooccurrence graph.
type TagIndexConfig struct {
	VectorDBBatchSize    int      `koanf:"vectordb_batch_size"`
	SaveShardSize        int      `koanf:"save_shard_size"`
	IndexRebuildDelay    Duration `koanf:"index_rebuild_delay"`
	MatrixExportDelay    Duration `koanf:"matrix_export_delay"`
	ExpandMinWeight      int      `koanf:"expand_min_weight"`
	ExpandMaxCount       int      `koanf:"expand_max_count"`
	ExpandPreferMultiSrc bool     `koanf:"expand_prefer_multi_source"`
	WatchDebounce        Duration `koanf:"watch_debounce"`
}

// RerankConfig configures the optional HTTP rerank pass.
type RerankConfig struct {
	URL                string   `koanf:"url"`
	APIKey             Secret   `koanf:"api_key"`
	Model              string   `koanf:"model"`
	Multiplier         float64  `koanf:"multiplier"`
	MaxTokensPerBatch  int      `koanf:"max_tokens_per_batch"`
	RequestTimeout     Duration `koanf:"request_timeout"`
}

// CacheConfig configures the query planner's result and embedding caches.
type CacheConfig struct {
	QueryEnabled        bool     `koanf:"query_enabled"`
	QueryMaxSize        int      `koanf:"query_max_size"`
	QueryTTL            Duration `koanf:"query_ttl"`
	EmbeddingMaxSize    int      `koanf:"embedding_max_size"`
	EmbeddingTTL        Duration `koanf:"embedding_ttl"`
}

// TimeParseConfig configures the time expression parser's default locale.
type TimeParseConfig struct {
	DefaultTimezone string `koanf:"default_timezone"`
}

// SemGroupConfig describes one semantic group: keywords whose presence in
// query text activates it, and the text its representative vector is
// embedded from.
type SemGroupConfig struct {
	Name       string   `koanf:"name"`
	Keywords   []string `koanf:"keywords"`
	VectorText string   `koanf:"vector_text"`
}

// ChainConfig describes one meta-thinking chain.
type ChainConfig struct {
	Name      string   `koanf:"name"`
	Clusters  []string `koanf:"clusters"`
	ThemeText string   `koanf:"theme_text"`
}

// MetaThinkConfig configures the meta-thinking engine.
type MetaThinkConfig struct {
	AutoThreshold float64       `koanf:"auto_threshold"`
	DefaultChain  string        `koanf:"default_chain"`
	Chains        []ChainConfig `koanf:"chains"`
}

// ApplyDefaults fills zero-valued fields with documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9191
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10_000_000_000) // 10s
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Diary.Root == "" {
		c.Diary.Root = "~/.config/ragdiaryd/diaries"
	}
	if c.Diary.TagMinLength == 0 {
		c.Diary.TagMinLength = 1
	}
	if c.Diary.TagMaxLength == 0 {
		c.Diary.TagMaxLength = 64
	}
	if c.Embedding.MaxAttempts == 0 {
		c.Embedding.MaxAttempts = 3
	}
	if c.Embedding.RequestTimeout == 0 {
		c.Embedding.RequestTimeout = Duration(30_000_000_000) // 30s
	}
	if c.Embedding.VectorizeConcurrency == 0 {
		c.Embedding.VectorizeConcurrency = 5
	}
	if c.VectorIndex.Dimension == 0 {
		c.VectorIndex.Dimension = 384
	}
	if c.TagIndex.VectorDBBatchSize == 0 {
		c.TagIndex.VectorDBBatchSize = 100
	}
	if c.TagIndex.SaveShardSize == 0 {
		c.TagIndex.SaveShardSize = 2000
	}
	if c.TagIndex.IndexRebuildDelay == 0 {
		c.TagIndex.IndexRebuildDelay = Duration(60_000_000_000) // 60s
	}
	if c.TagIndex.MatrixExportDelay == 0 {
		c.TagIndex.MatrixExportDelay = Duration(30_000_000_000) // 30s
	}
	if c.TagIndex.ExpandMinWeight == 0 {
		c.TagIndex.ExpandMinWeight = 2
	}
	if c.TagIndex.ExpandMaxCount == 0 {
		c.TagIndex.ExpandMaxCount = 10
	}
	if c.TagIndex.WatchDebounce == 0 {
		c.TagIndex.WatchDebounce = Duration(500_000_000) // 500ms
	}
	if c.Rerank.Multiplier == 0 {
		c.Rerank.Multiplier = 2.0
	}
	if c.Rerank.MaxTokensPerBatch == 0 {
		c.Rerank.MaxTokensPerBatch = 30000
	}
	if c.Rerank.RequestTimeout == 0 {
		c.Rerank.RequestTimeout = Duration(15_000_000_000) // 15s
	}
	if c.Cache.QueryMaxSize == 0 {
		c.Cache.QueryMaxSize = 100
	}
	if c.Cache.QueryTTL == 0 {
		c.Cache.QueryTTL = Duration(3_600_000_000_000) // 1h
	}
	if c.Cache.EmbeddingMaxSize == 0 {
		c.Cache.EmbeddingMaxSize = 500
	}
	if c.Cache.EmbeddingTTL == 0 {
		c.Cache.EmbeddingTTL = Duration(7_200_000_000_000) // 2h
	}
	if c.TimeParse.DefaultTimezone == "" {
		c.TimeParse.DefaultTimezone = "Asia/Shanghai"
	}
	if c.MetaThink.AutoThreshold == 0 {
		c.MetaThink.AutoThreshold = 0.65
	}
	if c.MetaThink.DefaultChain == "" {
		c.MetaThink.DefaultChain = "default"
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.MetricsPort < 1 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid server.metrics_port: %d (must be 1-65535)", c.Server.MetricsPort)
	}
	if c.Diary.Root == "" {
		return errors.New("diary.root must not be empty")
	}
	if c.Embedding.BaseURL == "" {
		return errors.New("embedding.base_url must be set")
	}
	if c.Embedding.MaxAttempts < 3 {
		return errors.New("embedding.max_attempts must be >= 3")
	}
	if c.VectorIndex.Dimension <= 0 {
		return fmt.Errorf("vector_index.dimension must be positive, got %d", c.VectorIndex.Dimension)
	}
	if c.Rerank.URL != "" && !strings.HasPrefix(c.Rerank.URL, "http://") && !strings.HasPrefix(c.Rerank.URL, "https://") {
		return fmt.Errorf("rerank.url must use http:// or https://, got %q", c.Rerank.URL)
	}
	if c.TagIndex.ExpandMinWeight < 0 {
		return errors.New("tag_index.expand_min_weight must be non-negative")
	}
	return nil
}
