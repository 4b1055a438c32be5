package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestBadgerCache(t *testing.T) {
	c, err := OpenBadger("", time.Hour, nil)
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	defer c.Close()

	ctx := context.Background()

	if _, ok := c.Lookup(ctx, "chat_1_q"); ok {
		t.Fatal("Lookup() hit on empty cache")
	}

	c.Store(ctx, "chat_1_q", json.RawMessage(`{"resposta":"dica"}`))

	got, ok := c.Lookup(ctx, "chat_1_q")
	if !ok {
		t.Fatal("Lookup() miss after Store")
	}
	if string(got) != `{"resposta":"dica"}` {
		t.Errorf("Lookup() = %s", got)
	}
}

func TestBadgerCache_Persists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c, err := OpenBadger(dir, time.Hour, nil)
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	c.Store(ctx, "solucao_7_", json.RawMessage(`{"analise":"ok"}`))
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	c, err = OpenBadger(dir, time.Hour, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer c.Close()

	if _, ok := c.Lookup(ctx, "solucao_7_"); !ok {
		t.Error("Lookup() miss after reopen")
	}
}
