// Package config resolves Scout settings from config file, environment, and
// CLI flags, in that order of increasing precedence. Every resolved value
// remembers where it came from so `scout stats` and error messages can show
// provenance instead of making users guess.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// ResolvedValue is a setting plus its provenance.
type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// ResolveOptions carries CLI-level overrides into resolution.
type ResolveOptions struct {
	ConfigPath   string
	CLILLM       string
	CLIDBPath    string
	CLIThreshold string
	CLICacheFile string
}

// ResolvedConfig is the fully resolved runtime configuration.
type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath      ResolvedValue `json:"db_path"`
	LLMProvider ResolvedValue `json:"llm_provider"`

	ConfidenceThreshold ResolvedValue `json:"confidence_threshold"`
	MaxContacts         ResolvedValue `json:"max_contacts"`
	CacheTTL            ResolvedValue `json:"cache_ttl"`
	CacheMaxSize        ResolvedValue `json:"cache_max_size"`
	CacheFile           ResolvedValue `json:"cache_file"`
	FetchRateLimit      ResolvedValue `json:"fetch_rate_limit"`

	LLMKeys map[string]ResolvedValue `json:"llm_keys,omitempty"`
}

type fileConfig struct {
	DBPath string `yaml:"db_path"`
	LLM    struct {
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"llm"`
	Extraction struct {
		ConfidenceThreshold string `yaml:"confidence_threshold"`
		MaxContacts         string `yaml:"max_contacts"`
		FetchRateLimit      string `yaml:"fetch_rate_limit"`
	} `yaml:"extraction"`
	Cache struct {
		TTL     string `yaml:"ttl"`
		MaxSize string `yaml:"max_size"`
		File    string `yaml:"file"`
	} `yaml:"cache"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".scout", "config.yaml")
}

// ResolveConfig layers file < env < CLI and returns the merged view.
// A missing config file is not an error; a malformed one is.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		LLMKeys:    map[string]ResolvedValue{},
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.LLMProvider, cfg.LLM.Provider, SourceConfig, path)
		apply(&out.ConfidenceThreshold, cfg.Extraction.ConfidenceThreshold, SourceConfig, path)
		apply(&out.MaxContacts, cfg.Extraction.MaxContacts, SourceConfig, path)
		apply(&out.FetchRateLimit, cfg.Extraction.FetchRateLimit, SourceConfig, path)
		apply(&out.CacheTTL, cfg.Cache.TTL, SourceConfig, path)
		apply(&out.CacheMaxSize, cfg.Cache.MaxSize, SourceConfig, path)
		apply(&out.CacheFile, cfg.Cache.File, SourceConfig, path)

		if key := strings.TrimSpace(cfg.LLM.APIKey); key != "" {
			provider := providerOf(cfg.LLM.Provider)
			if provider == "" {
				provider = "default"
			}
			out.LLMKeys[provider] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}
	}

	applyEnv(&out.DBPath, "SCOUT_DB")
	applyEnv(&out.DBPath, "SCOUT_DB_PATH")
	applyEnv(&out.LLMProvider, "SCOUT_LLM")
	applyEnv(&out.ConfidenceThreshold, "SCOUT_CONFIDENCE_THRESHOLD")
	applyEnv(&out.MaxContacts, "SCOUT_MAX_CONTACTS")
	applyEnv(&out.FetchRateLimit, "SCOUT_FETCH_RATE_LIMIT")
	applyEnv(&out.CacheTTL, "SCOUT_CACHE_TTL")
	applyEnv(&out.CacheMaxSize, "SCOUT_CACHE_MAX_SIZE")
	applyEnv(&out.CacheFile, "SCOUT_CACHE_FILE")

	for env, provider := range map[string]string{
		"OPENROUTER_API_KEY": "openrouter",
		"OPENAI_API_KEY":     "openai",
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			out.LLMKeys[provider] = ResolvedValue{Value: v, Source: SourceEnv, From: env}
		}
	}

	apply(&out.LLMProvider, opts.CLILLM, SourceCLI, "--llm")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.ConfidenceThreshold, opts.CLIThreshold, SourceCLI, "--threshold")
	apply(&out.CacheFile, opts.CLICacheFile, SourceCLI, "--cache-file")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}
	if out.CacheFile.Value != "" {
		out.CacheFile.Value = expandUserPath(out.CacheFile.Value)
	}

	return out, nil
}

// ThresholdOrDefault parses the resolved confidence threshold, falling back
// to def on absence or garbage.
func (r ResolvedConfig) ThresholdOrDefault(def float64) float64 {
	v := strings.TrimSpace(r.ConfidenceThreshold.Value)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		return def
	}
	return f
}

// IntOrDefault parses a resolved integer setting with a fallback.
func IntOrDefault(rv ResolvedValue, def int) int {
	v := strings.TrimSpace(rv.Value)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// APIKeyForProvider returns the key for a "provider" or "provider/model"
// string, falling back to the default key when no per-provider key is set.
func (r ResolvedConfig) APIKeyForProvider(providerOrModel string) ResolvedValue {
	provider := providerOf(providerOrModel)
	if provider == "" {
		return ResolvedValue{}
	}
	if v, ok := r.LLMKeys[provider]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	if v, ok := r.LLMKeys["default"]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{}
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
