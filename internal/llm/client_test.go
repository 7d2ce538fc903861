package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{
		Provider: "custom",
		Model:    "test-model",
		Endpoint: srv.URL,
		APIKey:   "test-key",
	})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	return client
}

func TestCompleteSuccess(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "hello"}},
			},
		})
	})

	out, err := client.Complete(context.Background(), "say hello", CompletionOpts{
		System:      "you are terse",
		Temperature: 0.1,
		MaxTokens:   100,
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if out != "hello" {
		t.Errorf("Complete() = %q", out)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "test-model" || len(gotReq.Messages) != 2 {
		t.Errorf("request = %+v", gotReq)
	}
	if gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Errorf("message roles = %s, %s", gotReq.Messages[0].Role, gotReq.Messages[1].Role)
	}
}

func TestCompleteHTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited"))
	})

	_, err := client.Complete(context.Background(), "x", CompletionOpts{})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", httpErr.StatusCode)
	}
	if httpErr.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", httpErr.RetryAfter)
	}
}

func TestCompleteMalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "gibberish"},
		{"no choices", `{"choices": []}`},
		{"empty content", `{"choices": [{"message": {"content": ""}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(tt.body))
			})
			if _, err := client.Complete(context.Background(), "x", CompletionOpts{}); err == nil {
				t.Error("Complete() = nil error")
			}
		})
	}
}

func TestNewClientPresets(t *testing.T) {
	tests := []struct {
		provider     string
		wantEndpoint string
		wantModel    string
		wantErr      bool
	}{
		{"openai", "https://api.openai.com/v1/chat/completions", "gpt-4o-mini", false},
		{"openrouter", "https://openrouter.ai/api/v1/chat/completions", "openai/gpt-4o-mini", false},
		{"ollama", "http://localhost:11434/v1/chat/completions", "llama3.1", false},
		{"custom", "", "", true}, // custom requires an endpoint
		{"watson", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			client, err := NewClient(Config{Provider: tt.provider})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if client.config.Endpoint != tt.wantEndpoint || client.config.Model != tt.wantModel {
				t.Errorf("config = %+v", client.config)
			}
		})
	}
}

func TestParseFlag(t *testing.T) {
	tests := []struct {
		flag         string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{"", "openai", "", false},
		{"openai/gpt-4o-mini", "openai", "gpt-4o-mini", false},
		{"openrouter/google/gemini-2.0-flash-exp:free", "openrouter", "google/gemini-2.0-flash-exp:free", false},
		{"noslash", "", "", true},
		{"/model", "", "", true},
		{"provider/", "", "", true},
	}
	for _, tt := range tests {
		cfg, err := ParseFlag(tt.flag)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseFlag(%q) err = %v, wantErr = %v", tt.flag, err, tt.wantErr)
		}
		if err != nil {
			continue
		}
		if cfg.Provider != tt.wantProvider || cfg.Model != tt.wantModel {
			t.Errorf("ParseFlag(%q) = %+v", tt.flag, cfg)
		}
	}
}

func TestHTTPErrorMessage(t *testing.T) {
	err := &HTTPError{StatusCode: 503, Message: "overloaded"}
	if err.Error() == "" {
		t.Error("empty error message")
	}
}
