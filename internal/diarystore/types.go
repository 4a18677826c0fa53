package diarystore

import "time"

// Chunk is a unit of semantic retrieval inside one diary. Chunks are
// produced externally (by the caller chunking diary files); the store
// treats text and embedding as opaque.
type Chunk struct {
	ID        string
	Text      string
	Embedding []float32
	Tags      []string
	Timestamp *time.Time
}

// SearchResult is one ranked hit returned by Search.
type SearchResult struct {
	Text        string
	Score       float32
	Source      []string // "rag", "time", or both
	Tags        []string
	MatchedTags []string
	BoostFactor float32
	RerankScore float32
	Timestamp   *time.Time
	hasRerank   bool
}

// HasRerankScore reports whether RerankScore was set by a rerank pass.
func (r SearchResult) HasRerankScore() bool { return r.hasRerank }

// Config configures a Store.
type Config struct {
	// Root is the directory under which each diary gets a subdirectory
	// holding its index file, chunk table, and label map.
	Root string `koanf:"root"`
	// Dimension is the embedding vector dimension shared by every diary.
	Dimension int `koanf:"dimension"`
	// InitialCapacity is the starting vecindex capacity for a new diary.
	InitialCapacity int `koanf:"initial_capacity"`
	// GrowthLoadFactor and GrowthFactor mirror vecindex.Index.GrowIfNeeded.
	GrowthLoadFactor float64 `koanf:"growth_load_factor"`
	GrowthFactor     float64 `koanf:"growth_factor"`
	// RerankMultiplier scales k when rerank is requested: fetch
	// ceil(k * RerankMultiplier) semantic candidates before reranking.
	RerankMultiplier float64 `koanf:"rerank_multiplier"`
}

// ApplyDefaults fills zero-valued fields with the store's defaults.
func (c *Config) ApplyDefaults() {
	if c.Dimension == 0 {
		c.Dimension = 384
	}
	if c.InitialCapacity == 0 {
		c.InitialCapacity = 1024
	}
	if c.GrowthLoadFactor == 0 {
		c.GrowthLoadFactor = 0.9
	}
	if c.GrowthFactor == 0 {
		c.GrowthFactor = 1.5
	}
	if c.RerankMultiplier == 0 {
		c.RerankMultiplier = 3.0
	}
}

// Validate checks the config for internal consistency.
func (c *Config) Validate() error {
	if c.Root == "" {
		return ErrInvalidConfig
	}
	if c.Dimension <= 0 {
		return ErrInvalidConfig
	}
	if c.RerankMultiplier < 1.0 {
		return ErrInvalidConfig
	}
	return nil
}
