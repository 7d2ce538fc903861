package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
db_path: /tmp/scout-test.db
llm:
  provider: openrouter/meta-llama/llama-3.3-70b
  api_key: file-key
extraction:
  confidence_threshold: "0.55"
  max_contacts: "10"
  fetch_rate_limit: "2"
cache:
  ttl: 30m
  max_size: "500"
  file: /tmp/scout-cache.json
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func clearScoutEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SCOUT_DB", "SCOUT_DB_PATH", "SCOUT_LLM", "SCOUT_CONFIDENCE_THRESHOLD",
		"SCOUT_MAX_CONTACTS", "SCOUT_FETCH_RATE_LIMIT", "SCOUT_CACHE_TTL",
		"SCOUT_CACHE_MAX_SIZE", "SCOUT_CACHE_FILE",
		"OPENROUTER_API_KEY", "OPENAI_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestResolveFromFile(t *testing.T) {
	clearScoutEnv(t)
	path := writeConfig(t, sampleYAML)

	cfg, err := ResolveConfig(ResolveOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("ResolveConfig() error: %v", err)
	}
	if cfg.DBPath.Value != "/tmp/scout-test.db" || cfg.DBPath.Source != SourceConfig {
		t.Errorf("DBPath = %+v", cfg.DBPath)
	}
	if cfg.LLMProvider.Value != "openrouter/meta-llama/llama-3.3-70b" {
		t.Errorf("LLMProvider = %+v", cfg.LLMProvider)
	}
	if cfg.ConfidenceThreshold.Value != "0.55" {
		t.Errorf("ConfidenceThreshold = %+v", cfg.ConfidenceThreshold)
	}
	if cfg.CacheTTL.Value != "30m" || cfg.CacheFile.Value != "/tmp/scout-cache.json" {
		t.Errorf("cache settings = %+v / %+v", cfg.CacheTTL, cfg.CacheFile)
	}

	// A file api_key binds to the provider named in the file.
	key := cfg.APIKeyForProvider("openrouter/meta-llama/llama-3.3-70b")
	if key.Value != "file-key" || key.Source != SourceConfig {
		t.Errorf("api key = %+v", key)
	}
}

func TestResolveMissingFileIsNotError(t *testing.T) {
	clearScoutEnv(t)
	cfg, err := ResolveConfig(ResolveOptions{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")})
	if err != nil {
		t.Fatalf("missing config file: %v", err)
	}
	if cfg.DBPath.Value != "" {
		t.Errorf("DBPath from nowhere: %+v", cfg.DBPath)
	}
}

func TestResolveMalformedFile(t *testing.T) {
	clearScoutEnv(t)
	path := writeConfig(t, "db_path: [not: closed")
	if _, err := ResolveConfig(ResolveOptions{ConfigPath: path}); err == nil {
		t.Error("malformed yaml resolved without error")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearScoutEnv(t)
	path := writeConfig(t, sampleYAML)
	t.Setenv("SCOUT_DB", "/env/scout.db")
	t.Setenv("SCOUT_CONFIDENCE_THRESHOLD", "0.7")

	cfg, err := ResolveConfig(ResolveOptions{ConfigPath: path})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBPath.Value != "/env/scout.db" || cfg.DBPath.Source != SourceEnv || cfg.DBPath.From != "SCOUT_DB" {
		t.Errorf("DBPath = %+v, want env override", cfg.DBPath)
	}
	if cfg.ConfidenceThreshold.Value != "0.7" {
		t.Errorf("ConfidenceThreshold = %+v", cfg.ConfidenceThreshold)
	}
	// Untouched values keep their file provenance.
	if cfg.CacheTTL.Source != SourceConfig {
		t.Errorf("CacheTTL source = %s, want config", cfg.CacheTTL.Source)
	}
}

func TestCLIOverridesEverything(t *testing.T) {
	clearScoutEnv(t)
	path := writeConfig(t, sampleYAML)
	t.Setenv("SCOUT_LLM", "openai/gpt-4o-mini")

	cfg, err := ResolveConfig(ResolveOptions{
		ConfigPath:   path,
		CLILLM:       "ollama/llama3",
		CLIThreshold: "0.9",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLMProvider.Value != "ollama/llama3" || cfg.LLMProvider.Source != SourceCLI {
		t.Errorf("LLMProvider = %+v, want cli override", cfg.LLMProvider)
	}
	if cfg.LLMProvider.From != "--llm" {
		t.Errorf("From = %q, want flag name", cfg.LLMProvider.From)
	}
	if cfg.ConfidenceThreshold.Value != "0.9" {
		t.Errorf("ConfidenceThreshold = %+v", cfg.ConfidenceThreshold)
	}
}

func TestProviderKeysFromEnv(t *testing.T) {
	clearScoutEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("OPENAI_API_KEY", "oa-key")

	cfg, err := ResolveConfig(ResolveOptions{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")})
	if err != nil {
		t.Fatal(err)
	}
	if k := cfg.APIKeyForProvider("openrouter/some-model"); k.Value != "or-key" || k.From != "OPENROUTER_API_KEY" {
		t.Errorf("openrouter key = %+v", k)
	}
	if k := cfg.APIKeyForProvider("openai"); k.Value != "oa-key" {
		t.Errorf("openai key = %+v", k)
	}
	if k := cfg.APIKeyForProvider("ollama/llama3"); k.Value != "" {
		t.Errorf("ollama key = %+v, want none", k)
	}
	if k := cfg.APIKeyForProvider(""); k.Value != "" {
		t.Errorf("empty provider key = %+v", k)
	}
}

func TestExpandUserPaths(t *testing.T) {
	clearScoutEnv(t)
	t.Setenv("SCOUT_DB", "~/scout/db.sqlite")

	cfg, err := ResolveConfig(ResolveOptions{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")})
	if err != nil {
		t.Fatal(err)
	}
	home, _ := os.UserHomeDir()
	if cfg.DBPath.Value != filepath.Join(home, "scout", "db.sqlite") {
		t.Errorf("DBPath = %q, tilde not expanded", cfg.DBPath.Value)
	}
}

func TestThresholdOrDefault(t *testing.T) {
	tests := []struct {
		value string
		want  float64
	}{
		{"", 0.3},
		{"0.55", 0.55},
		{"garbage", 0.3},
		{"-0.1", 0.3},
		{"1.5", 0.3},
		{"1", 1},
	}
	for _, tt := range tests {
		cfg := ResolvedConfig{ConfidenceThreshold: ResolvedValue{Value: tt.value}}
		if got := cfg.ThresholdOrDefault(0.3); got != tt.want {
			t.Errorf("ThresholdOrDefault(%q) = %f, want %f", tt.value, got, tt.want)
		}
	}
}

func TestIntOrDefault(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 20},
		{"10", 10},
		{"zero", 20},
		{"-5", 20},
		{"0", 20},
	}
	for _, tt := range tests {
		if got := IntOrDefault(ResolvedValue{Value: tt.value}, 20); got != tt.want {
			t.Errorf("IntOrDefault(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}
}
