package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/benjudge/internal/cache"
	"github.com/felixgeelhaar/benjudge/internal/catalog"
	"github.com/felixgeelhaar/benjudge/internal/domain"
	"github.com/felixgeelhaar/benjudge/internal/judge"
	"github.com/felixgeelhaar/benjudge/internal/ledger"
	"github.com/felixgeelhaar/benjudge/internal/llm"
	"github.com/felixgeelhaar/benjudge/internal/metrics"
	"github.com/felixgeelhaar/benjudge/internal/storage/sqlite"
	"github.com/felixgeelhaar/benjudge/internal/verdict"
	"github.com/prometheus/client_golang/prometheus"
)

type stubProvider struct {
	reply string
	err   error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(context.Context, *llm.Request) (*llm.Response, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Content: p.reply}, nil
}

var testProblems = []domain.Problem{
	{ID: 1, Title: "Soma de dois", Description: "Ache os índices.", Difficulty: domain.DifficultyEasy, Categories: []string{"hash"}},
	{ID: 2, Title: "Caminho mínimo", Description: "Dijkstra.", Difficulty: domain.DifficultyHard, Categories: []string{"grafos"}},
}

type testEnv struct {
	handler  http.Handler
	provider *stubProvider
	store    *sqlite.Store
}

func setupTestServer(t *testing.T, j Judge) *testEnv {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "daemon.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := db.Migrate(context.Background(), nil); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := sqlite.NewStore(db)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	cat := catalog.FromProblems(testProblems)
	provider := &stubProvider{}

	if j == nil {
		svc, err := judge.NewService(judge.Config{
			Problems: cat,
			Provider: provider,
			Cache:    cache.NewInstrumented(cache.NewMemory(cache.MemoryConfig{}), m),
			Reviewer: verdict.Heuristic{},
			Ledger:   ledger.New(store, ledger.DefaultRules(), ledger.Options{}),
			Observer: m,
		})
		if err != nil {
			t.Fatalf("NewService() error = %v", err)
		}
		j = svc
	}

	s := NewServer(ServerConfig{
		Addr:     "127.0.0.1:0",
		Judge:    j,
		Catalog:  cat,
		Store:    store,
		Observer: m,
		Gatherer: reg,
	})
	return &testEnv{handler: s.Handler(), provider: provider, store: store}
}

// do sends a request, carrying cookie when non-nil, and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func userCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == UserCookieName {
			return c
		}
	}
	t.Fatalf("response did not set %s cookie", UserCookieName)
	return nil
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	env := setupTestServer(t, nil)

	for _, path := range []string{"/v1/health", "/v1/ready"} {
		rec := env.do(t, http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d; want 200", path, rec.Code)
		}
		if len(rec.Result().Cookies()) != 0 {
			t.Errorf("GET %s set cookies; want none", path)
		}
	}
}

func TestProblems(t *testing.T) {
	env := setupTestServer(t, nil)

	rec := env.do(t, http.MethodGet, "/problemas", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /problemas = %d; want 200", rec.Code)
	}
	c := userCookie(t, rec)
	if !c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie = %+v; want HttpOnly SameSite=Lax", c)
	}
	if got := decodeBody[[]domain.Problem](t, rec); len(got) != 2 {
		t.Errorf("problems = %d; want 2", len(got))
	}

	rec = env.do(t, http.MethodGet, "/problemas?dificuldade=hard", nil, c)
	if got := decodeBody[[]domain.Problem](t, rec); len(got) != 1 || got[0].ID != 2 {
		t.Errorf("filtered problems = %+v; want problem 2", got)
	}

	rec = env.do(t, http.MethodGet, "/problemas/1", nil, c)
	if p := decodeBody[domain.Problem](t, rec); rec.Code != http.StatusOK || p.Title != "Soma de dois" {
		t.Errorf("GET /problemas/1 = %d %+v", rec.Code, p)
	}

	for _, path := range []string{"/problemas/99", "/problemas/abc"} {
		rec = env.do(t, http.MethodGet, path, nil, c)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d; want 404", path, rec.Code)
		}
		if body := decodeBody[map[string]string](t, rec); body["erro"] != "Problema não encontrado" {
			t.Errorf("GET %s body = %v", path, body)
		}
	}
}

func TestReviewFlowUpdatesProgress(t *testing.T) {
	env := setupTestServer(t, nil)
	env.provider.reply = "Veredito do Código: Correto\nVeredito da Complexidade: Correta\nNota: 10"

	rec := env.do(t, http.MethodPost, "/corrigir", map[string]any{
		"problema_id":          1,
		"resposta_usuario":     "hashmap de complementos",
		"complexidade_usuario": "O(n)",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /corrigir = %d %s", rec.Code, rec.Body.String())
	}
	cookie := userCookie(t, rec)

	review := decodeBody[map[string]any](t, rec)
	if review["correta"] != true || review["xp_ganho"] != float64(100) {
		t.Errorf("review = %v; want correta with 100 xp", review)
	}
	if _, ok := review["avaliacao"].(string); !ok {
		t.Errorf("review missing avaliacao: %v", review)
	}

	rec = env.do(t, http.MethodGet, "/me", nil, cookie)
	me := decodeBody[map[string]any](t, rec)
	if me["id"] != cookie.Value || me["xp"] != float64(100) || me["pontuacao"] != float64(1) || me["nivel"] != float64(2) {
		t.Errorf("GET /me = %v", me)
	}

	rec = env.do(t, http.MethodGet, "/dashboard/acertos", nil, cookie)
	if stats := decodeBody[domain.AnswerStats](t, rec); stats.Correct != 1 || stats.Incorrect != 0 {
		t.Errorf("acertos = %+v; want 1/0", stats)
	}

	rec = env.do(t, http.MethodGet, "/dashboard/xp", nil, cookie)
	if points := decodeBody[[]domain.XPPoint](t, rec); len(points) != 1 {
		t.Errorf("xp history = %+v; want one point", points)
	}

	rec = env.do(t, http.MethodGet, "/dashboard/envios", nil, cookie)
	subs := decodeBody[[]domain.Submission](t, rec)
	if len(subs) != 1 || subs[0].Score != domain.ScoreFull || subs[0].UserID != cookie.Value {
		t.Errorf("envios = %+v", subs)
	}

	rec = env.do(t, http.MethodGet, "/ranking?limit=5", nil, cookie)
	ranking := decodeBody[[]map[string]any](t, rec)
	if len(ranking) == 0 || ranking[0]["id"] != cookie.Value {
		t.Errorf("ranking = %v; want reviewer first", ranking)
	}
}

func TestDashboardEmptyLists(t *testing.T) {
	env := setupTestServer(t, nil)

	for _, path := range []string{"/dashboard/xp", "/dashboard/envios"} {
		rec := env.do(t, http.MethodGet, path, nil, nil)
		if strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Errorf("GET %s = %q; want []", path, rec.Body.String())
		}
	}
}

func TestUnknownCookieProvisionsUser(t *testing.T) {
	env := setupTestServer(t, nil)

	rec := env.do(t, http.MethodGet, "/me", nil, &http.Cookie{Name: UserCookieName, Value: "ghost"})
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /me = %d; want 200", rec.Code)
	}
	c := userCookie(t, rec)
	if c.Value == "ghost" {
		t.Error("cookie kept the unknown user ID")
	}
}

func TestChat(t *testing.T) {
	env := setupTestServer(t, nil)
	env.provider.reply = "Use um dicionário."

	rec := env.do(t, http.MethodPost, "/chat", map[string]any{"problema_id": 1, "pergunta": "dica?"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /chat = %d", rec.Code)
	}
	if body := decodeBody[map[string]string](t, rec); body["resposta"] != "Use um dicionário." {
		t.Errorf("chat = %v", body)
	}

	env.provider.err = errors.New("down")
	rec = env.do(t, http.MethodPost, "/chat", map[string]any{"problema_id": 1, "pergunta": "outra"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("degraded POST /chat = %d; want 200", rec.Code)
	}
	if body := decodeBody[map[string]string](t, rec); body["resposta"] != judge.FallbackChat {
		t.Errorf("degraded chat = %v", body)
	}
}

func TestReveal(t *testing.T) {
	env := setupTestServer(t, nil)
	env.provider.reply = `{"analise": "faltou ordenar", "solucao_codigo": "sorted(x)"}`

	rec := env.do(t, http.MethodPost, "/revelar-solucao", map[string]any{"problema_id": 2}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /revelar-solucao = %d", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["solucao"] != "sorted(x)" || body["analise"] != "faltou ordenar" {
		t.Errorf("reveal = %v", body)
	}
}

func TestFlowValidation(t *testing.T) {
	env := setupTestServer(t, nil)

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"chat missing question", "/chat", map[string]any{"problema_id": 1}, http.StatusBadRequest},
		{"chat unknown problem", "/chat", map[string]any{"problema_id": 7, "pergunta": "?"}, http.StatusNotFound},
		{"review missing answer", "/corrigir", map[string]any{"problema_id": 1}, http.StatusBadRequest},
		{"review unknown problem", "/corrigir", map[string]any{"problema_id": 7, "resposta_usuario": "x"}, http.StatusNotFound},
		{"reveal missing problem", "/revelar-solucao", map[string]any{}, http.StatusBadRequest},
		{"reveal unknown problem", "/revelar-solucao", map[string]any{"problema_id": 7}, http.StatusNotFound},
		{"malformed body", "/chat", "not an object", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body, nil)
			if rec.Code != tt.want {
				t.Errorf("POST %s = %d; want %d (%s)", tt.path, rec.Code, tt.want, rec.Body.String())
			}
			if _, ok := decodeBody[map[string]any](t, rec)["erro"]; !ok {
				t.Error("error response without erro field")
			}
		})
	}
}

type failingJudge struct{ err error }

func (j failingJudge) Chat(context.Context, int, string) (*judge.ChatReply, error) { return nil, j.err }

func (j failingJudge) Review(context.Context, ledger.Attempt) (*judge.ReviewReply, error) {
	return nil, j.err
}

func (j failingJudge) Reveal(context.Context, int, string) (*judge.RevealReply, error) {
	return nil, j.err
}

func TestReview_PersistenceErrorIs500(t *testing.T) {
	env := setupTestServer(t, failingJudge{err: &domain.PersistenceError{Op: "increment xp", Err: errors.New("db gone")}})

	rec := env.do(t, http.MethodPost, "/corrigir", map[string]any{"problema_id": 1, "resposta_usuario": "x"}, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("POST /corrigir = %d; want 500", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["erro"] == "" || !strings.Contains(body["detalhe"], "increment xp") {
		t.Errorf("body = %v; want erro and detalhe", body)
	}
}

func TestRankingLimitValidation(t *testing.T) {
	env := setupTestServer(t, nil)
	for _, q := range []string{"0", "-1", "abc"} {
		if rec := env.do(t, http.MethodGet, "/ranking?limit="+q, nil, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("GET /ranking?limit=%s = %d; want 400", q, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t, nil)
	env.do(t, http.MethodGet, "/problemas", nil, nil)

	rec := env.do(t, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `benjudge_http_requests_total{code="200",route="GET /problemas"}`) {
		t.Errorf("metrics output missing request counter:\n%s", rec.Body.String())
	}
}
