package config

import "testing"

func TestApplyDefaults_FillsExpectedValues(t *testing.T) {
	var cfg Config
	cfg.Embedding.BaseURL = "http://localhost:8080"
	cfg.ApplyDefaults()

	if cfg.Server.MetricsPort != 9191 {
		t.Errorf("Server.MetricsPort = %d, want 9191", cfg.Server.MetricsPort)
	}
	if cfg.Diary.Root == "" {
		t.Error("Diary.Root should default to a non-empty path")
	}
	if cfg.Embedding.MaxAttempts != 3 {
		t.Errorf("Embedding.MaxAttempts = %d, want 3", cfg.Embedding.MaxAttempts)
	}
	if cfg.VectorIndex.Dimension != 384 {
		t.Errorf("VectorIndex.Dimension = %d, want 384", cfg.VectorIndex.Dimension)
	}
	if cfg.Rerank.Multiplier != 2.0 {
		t.Errorf("Rerank.Multiplier = %v, want 2.0", cfg.Rerank.Multiplier)
	}
	if cfg.TagIndex.ExpandMaxCount != 10 {
		t.Errorf("TagIndex.ExpandMaxCount = %d, want 10", cfg.TagIndex.ExpandMaxCount)
	}
	if cfg.TimeParse.DefaultTimezone != "Asia/Shanghai" {
		t.Errorf("TimeParse.DefaultTimezone = %q, want Asia/Shanghai", cfg.TimeParse.DefaultTimezone)
	}
}

func TestValidate_RejectsBadPort(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	cfg.Embedding.BaseURL = "http://localhost:8080"
	cfg.Server.MetricsPort = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid metrics port")
	}
}

func TestValidate_RejectsMissingEmbeddingBaseURL(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing embedding.base_url")
	}
}

func TestValidate_RejectsLowMaxAttempts(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	cfg.Embedding.BaseURL = "http://localhost:8080"
	cfg.Embedding.MaxAttempts = 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max_attempts < 3")
	}
}

func TestValidate_RejectsBadRerankScheme(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	cfg.Embedding.BaseURL = "http://localhost:8080"
	cfg.Rerank.URL = "ftp://example.com/rerank"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-http rerank URL")
	}
}

func TestValidate_AcceptsFullyDefaultedConfig(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	cfg.Embedding.BaseURL = "http://localhost:8080"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
