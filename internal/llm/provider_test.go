package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

// mockProvider is a test implementation of Provider
type mockProvider struct {
	name     string
	response *Response
	err      error

	// failures makes the first n calls return err.
	failures int
	calls    atomic.Int32
	lastReq  *Request
	mu       sync.Mutex
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	n := int(m.calls.Add(1))
	m.mu.Lock()
	m.lastReq = req
	m.mu.Unlock()

	if m.err != nil && (m.failures == 0 || n <= m.failures) {
		return nil, m.err
	}
	return m.response, nil
}

type closingProvider struct {
	mockProvider
	closed bool
}

func (c *closingProvider) Close() error {
	c.closed = true
	return nil
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if len(r.List()) != 0 {
		t.Errorf("new registry should be empty, got %v", r.List())
	}
}

func TestRegistry_SetDefault(t *testing.T) {
	r := NewRegistry()
	r.Register("gemini", &mockProvider{name: "gemini"})

	if err := r.SetDefault("gemini"); err != nil {
		t.Errorf("SetDefault(gemini) error = %v", err)
	}
	if err := r.SetDefault("missing"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("SetDefault(missing) error = %v; want ErrProviderNotFound", err)
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	p := &mockProvider{name: "claude"}
	r.Register("claude", p)

	got, err := r.Get("claude")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != p {
		t.Error("Get() returned a different provider")
	}
	if _, err := r.Get("nope"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("Get(nope) error = %v; want ErrProviderNotFound", err)
	}
}

func TestRegistry_Default(t *testing.T) {
	tests := []struct {
		name     string
		register []string
		setTo    string
		want     string
		wantErr  error
	}{
		{"empty", nil, "", "", ErrNoDefaultProvider},
		{"explicit", []string{"claude", "gemini"}, "gemini", "gemini", nil},
		{"first sorted when unset", []string{"openai", "claude"}, "", "claude", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for _, n := range tt.register {
				r.Register(n, &mockProvider{name: n})
			}
			if tt.setTo != "" {
				r.SetDefault(tt.setTo)
			}

			p, err := r.Default()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Default() error = %v; want %v", err, tt.wantErr)
			}
			if err == nil && p.Name() != tt.want {
				t.Errorf("Default() = %s; want %s", p.Name(), tt.want)
			}
		})
	}
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	r.Register("openai", &mockProvider{name: "openai"})
	r.Register("claude", &mockProvider{name: "claude"})

	got := r.List()
	if len(got) != 2 || got[0] != "claude" || got[1] != "openai" {
		t.Errorf("List() = %v; want [claude openai]", got)
	}
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry()
	c := &closingProvider{mockProvider: mockProvider{name: "c"}}
	r.Register("c", c)
	r.Register("m", &mockProvider{name: "m"})

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !c.closed {
		t.Error("closable provider was not closed")
	}
}

func TestRegistry_Concurrency(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.Register(fmt.Sprintf("p%d", i), &mockProvider{name: "p"})
		}(i)
		go func() {
			defer wg.Done()
			r.List()
			r.Default()
		}()
	}
	wg.Wait()

	if len(r.List()) != 50 {
		t.Errorf("List() len = %d; want 50", len(r.List()))
	}
}

func TestPrompt(t *testing.T) {
	req := Prompt("qual a complexidade?", 1500)
	if req.MaxTokens != 1500 {
		t.Errorf("MaxTokens = %d; want 1500", req.MaxTokens)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != RoleUser || req.Messages[0].Content != "qual a complexidade?" {
		t.Errorf("Messages = %+v", req.Messages)
	}
}

func TestStatusError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &StatusError{Code: 503, Body: "overloaded"})

	if got := StatusCode(err); got != 503 {
		t.Errorf("StatusCode() = %d; want 503", got)
	}
	if got := err.Error(); got != "wrapped: API error (status 503): overloaded" {
		t.Errorf("Error() = %q", got)
	}
}
