package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) *GeminiProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewGeminiProvider(context.Background(), GeminiConfig{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewGeminiProvider() error = %v", err)
	}
	return p
}

func TestNewGeminiProvider_RequiresKey(t *testing.T) {
	if _, err := NewGeminiProvider(context.Background(), GeminiConfig{}); err == nil {
		t.Error("NewGeminiProvider() error = nil; want missing key error")
	}
}

func TestGeminiProvider_Generate(t *testing.T) {
	p := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:generateContent") {
			t.Errorf("Path = %s", r.URL.Path)
		}

		var body struct {
			Contents []struct {
				Role  string `json:"role"`
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
			GenerationConfig struct {
				MaxOutputTokens int `json:"maxOutputTokens"`
			} `json:"generationConfig"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.Contents) != 1 || body.Contents[0].Parts[0].Text != "como começo?" {
			t.Errorf("contents = %+v", body.Contents)
		}
		if body.GenerationConfig.MaxOutputTokens != 1500 {
			t.Errorf("maxOutputTokens = %d; want 1500", body.GenerationConfig.MaxOutputTokens)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Comece pelo caso base."}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 20, "candidatesTokenCount": 6}
		}`))
	})

	got, err := p.Generate(context.Background(), Prompt("como começo?", 1500))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got.Content != "Comece pelo caso base." {
		t.Errorf("Content = %q", got.Content)
	}
	if got.FinishReason != "STOP" {
		t.Errorf("FinishReason = %q", got.FinishReason)
	}
	if got.Usage.InputTokens != 20 || got.Usage.OutputTokens != 6 {
		t.Errorf("Usage = %+v", got.Usage)
	}
}

func TestGeminiProvider_Generate_NoCandidates(t *testing.T) {
	p := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates": []}`))
	})

	if _, err := p.Generate(context.Background(), Prompt("oi", 10)); !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("Generate() error = %v; want ErrEmptyCompletion", err)
	}
}

func TestGeminiProvider_Generate_HTTPError(t *testing.T) {
	p := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": {"code": 503, "message": "model overloaded", "status": "UNAVAILABLE"}}`))
	})

	_, err := p.Generate(context.Background(), Prompt("oi", 10))
	if err == nil {
		t.Fatal("Generate() error = nil; want error")
	}
	if !IsRetryable(err) {
		t.Errorf("IsRetryable(%v) = false; want true", err)
	}
}

func TestGeminiContents(t *testing.T) {
	contents, system := geminiContents(&Request{
		System: "ignored",
		Messages: []Message{
			{Role: RoleSystem, Content: "tutor"},
			{Role: RoleUser, Content: "q"},
			{Role: RoleAssistant, Content: "a"},
		},
	})
	if system != "tutor" {
		t.Errorf("system = %q; want tutor", system)
	}
	if len(contents) != 2 || contents[1].Role != "model" {
		t.Errorf("contents = %+v", contents)
	}
}
