package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWithFile_YAMLAndEnvOverride(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	configDir := filepath.Join(home, ".config", "ragdiaryd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "loader_test_config.yaml")
	defer os.Remove(configPath)

	yamlContent := `
embedding:
  base_url: http://localhost:8080
diary:
  root: /tmp/diaries
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("EMBEDDING_MODEL", "bge-small")

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile failed: %v", err)
	}

	if cfg.Diary.Root != "/tmp/diaries" {
		t.Errorf("Diary.Root = %q, want /tmp/diaries", cfg.Diary.Root)
	}
	if cfg.Embedding.Model != "bge-small" {
		t.Errorf("Embedding.Model = %q, want bge-small (from env)", cfg.Embedding.Model)
	}
}

func TestLoadWithFile_RejectsPathOutsideAllowedDirs(t *testing.T) {
	_, err := LoadWithFile("/tmp/not-allowed-config.yaml")
	if err == nil {
		t.Fatal("expected error for config path outside allowed directories")
	}
}

func TestLoadWithFile_RejectsInsecurePermissions(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	configDir := filepath.Join(home, ".config", "ragdiaryd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "insecure_test_config.yaml")
	defer os.Remove(configPath)

	if err := os.WriteFile(configPath, []byte("embedding:\n  base_url: http://localhost\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err = LoadWithFile(configPath)
	if err == nil {
		t.Fatal("expected error for world-readable config file")
	}
}

func TestEnsureConfigDir(t *testing.T) {
	if err := EnsureConfigDir(); err != nil {
		t.Fatalf("EnsureConfigDir failed: %v", err)
	}
}
