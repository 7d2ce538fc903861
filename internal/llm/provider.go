// Package llm provides a provider-agnostic adapter for the generative text
// service used by candidate identification. It speaks plain net/http against
// OpenAI-compatible chat-completions endpoints.
package llm

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// CompletionOpts configures a single completion request.
type CompletionOpts struct {
	MaxTokens   int     // max tokens to generate (0 = provider default)
	Temperature float64 // 0.0-2.0 (0 = deterministic)
	System      string  // system prompt (optional)
	JSONMode    bool    // request structured JSON output where supported
}

// Config holds provider configuration.
type Config struct {
	Provider    string // "openai", "openrouter", "ollama", "custom"
	Model       string
	Endpoint    string // full API URL (set by provider preset if empty)
	APIKey      string // empty = read from env for known providers
	TimeoutSecs int    // per-request timeout (default: 60)
}

// NewClient creates a chat-completions client from the given config.
func NewClient(cfg Config) (*Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))

	switch provider {
	case "openai":
		if cfg.Endpoint == "" {
			cfg.Endpoint = "https://api.openai.com/v1/chat/completions"
		}
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if cfg.Model == "" {
			cfg.Model = "gpt-4o-mini"
		}
	case "openrouter":
		if cfg.Endpoint == "" {
			cfg.Endpoint = "https://openrouter.ai/api/v1/chat/completions"
		}
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENROUTER_API_KEY")
		}
		if cfg.Model == "" {
			cfg.Model = "openai/gpt-4o-mini"
		}
	case "ollama":
		if cfg.Endpoint == "" {
			cfg.Endpoint = "http://localhost:11434/v1/chat/completions"
		}
		if cfg.Model == "" {
			cfg.Model = "llama3.1"
		}
	case "custom":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("custom provider requires an endpoint")
		}
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: openai, openrouter, ollama, custom)", cfg.Provider)
	}

	cfg.Provider = provider
	if cfg.TimeoutSecs <= 0 {
		cfg.TimeoutSecs = 60
	}
	return newClient(cfg), nil
}

// ParseFlag parses a --llm flag value into a Config.
// Format: "provider/model" e.g. "openai/gpt-4o-mini",
// "openrouter/google/gemini-2.0-flash-exp:free".
func ParseFlag(flag string) (Config, error) {
	if flag == "" {
		return Config{Provider: "openai"}, nil
	}

	idx := strings.Index(flag, "/")
	if idx <= 0 || idx == len(flag)-1 {
		return Config{}, fmt.Errorf("invalid --llm format %q: expected provider/model", flag)
	}
	return Config{
		Provider: strings.ToLower(flag[:idx]),
		Model:    flag[idx+1:],
	}, nil
}

// HTTPError represents a transport-level failure with retry context.
type HTTPError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
