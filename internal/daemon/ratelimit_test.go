package daemon

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/felixgeelhaar/benjudge/internal/catalog"
	"github.com/felixgeelhaar/benjudge/internal/judge"
	"github.com/felixgeelhaar/benjudge/internal/ledger"
)

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute, 2)
	rl.now = func() time.Time { return now }

	for i, want := range []bool{true, true, false} {
		if got := rl.Allow("u1"); got != want {
			t.Errorf("Allow() #%d = %v; want %v", i, got, want)
		}
	}
	if !rl.Allow("u2") {
		t.Error("Allow(u2) = false; buckets must be per key")
	}

	now = now.Add(time.Minute)
	if !rl.Allow("u1") {
		t.Error("Allow() after refill = false; want true")
	}
	if got := rl.Remaining("u1"); got != 0 {
		t.Errorf("Remaining() = %d; want 0", got)
	}
	if got := rl.Remaining("nobody"); got != 2 {
		t.Errorf("Remaining(unknown) = %d; want burst 2", got)
	}
}

func TestRateLimiter_DropsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute, 1)
	rl.now = func() time.Time { return now }

	rl.Allow("stale")
	now = now.Add(10 * time.Minute)
	rl.Allow("fresh")

	if _, ok := rl.buckets["stale"]; ok {
		t.Error("stale bucket survived gc")
	}
	if _, ok := rl.buckets["fresh"]; !ok {
		t.Error("fresh bucket missing")
	}
}

type okJudge struct{}

func (okJudge) Chat(context.Context, int, string) (*judge.ChatReply, error) {
	return &judge.ChatReply{Answer: "ok"}, nil
}

func (okJudge) Review(context.Context, ledger.Attempt) (*judge.ReviewReply, error) {
	return &judge.ReviewReply{Evaluation: "ok"}, nil
}

func (okJudge) Reveal(context.Context, int, string) (*judge.RevealReply, error) {
	return &judge.RevealReply{Solution: "ok"}, nil
}

func TestFlowRateLimit(t *testing.T) {
	env := setupTestServer(t, nil)
	env.handler = NewServer(ServerConfig{
		Judge:                 okJudge{},
		Catalog:               catalog.FromProblems(testProblems),
		Store:                 env.store,
		FlowRequestsPerMinute: 1, // burst of 3
	}).Handler()

	body := map[string]any{"problema_id": 1, "pergunta": "dica?"}
	rec := env.do(t, http.MethodPost, "/chat", body, nil)
	cookie := userCookie(t, rec)

	for i := 0; i < 2; i++ {
		if rec := env.do(t, http.MethodPost, "/chat", body, cookie); rec.Code != http.StatusOK {
			t.Fatalf("POST /chat #%d = %d; want 200", i+2, rec.Code)
		}
	}

	rec = env.do(t, http.MethodPost, "/chat", body, cookie)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("POST /chat over limit = %d; want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After")
	}
	if got := decodeBody[map[string]string](t, rec); got["erro"] == "" {
		t.Errorf("429 body = %v; want erro", got)
	}

	// reads are not throttled
	if rec := env.do(t, http.MethodGet, "/me", nil, cookie); rec.Code != http.StatusOK {
		t.Errorf("GET /me = %d; want 200", rec.Code)
	}
	// other users keep their own budget
	if rec := env.do(t, http.MethodPost, "/chat", body, nil); rec.Code != http.StatusOK {
		t.Errorf("POST /chat as new user = %d; want 200", rec.Code)
	}
}
