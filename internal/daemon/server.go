// Package daemon serves the BenJudge HTTP API.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/benjudge/internal/catalog"
	"github.com/felixgeelhaar/benjudge/internal/domain"
	"github.com/felixgeelhaar/benjudge/internal/judge"
	"github.com/felixgeelhaar/benjudge/internal/ledger"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RecentSubmissionsLimit caps /dashboard/envios.
const RecentSubmissionsLimit = 20

// DefaultRankingLimit caps /ranking when no limit is configured.
const DefaultRankingLimit = 50

// Judge runs the learner flows.
type Judge interface {
	Chat(ctx context.Context, problemID int, question string) (*judge.ChatReply, error)
	Review(ctx context.Context, a ledger.Attempt) (*judge.ReviewReply, error)
	Reveal(ctx context.Context, problemID int, answer string) (*judge.RevealReply, error)
}

// Catalog serves problems.
type Catalog interface {
	Get(id int) (*domain.Problem, error)
	List(f catalog.Filter) []domain.Problem
}

// HTTPObserver records request metrics.
type HTTPObserver interface {
	HTTPRequest(route string, code int, took time.Duration)
}

// Server represents the BenJudge HTTP server
type Server struct {
	server   *http.Server
	router   *http.ServeMux
	judge    Judge
	catalog  Catalog
	store    domain.Store
	validate *validator.Validate
	logger   *slog.Logger

	rankingLimit int
	secureCookie bool
	flowLimiter  *RateLimiter
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Addr         string
	SecureCookie bool
	RankingLimit int

	// FlowRequestsPerMinute throttles /chat, /corrigir and /revelar-solucao
	// per user. Zero disables the limit.
	FlowRequestsPerMinute int

	Judge    Judge
	Catalog  Catalog
	Store    domain.Store
	Observer HTTPObserver        // optional
	Gatherer prometheus.Gatherer // serves /metrics when set
	Logger   *slog.Logger
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RankingLimit <= 0 {
		cfg.RankingLimit = DefaultRankingLimit
	}

	s := &Server{
		router:       http.NewServeMux(),
		judge:        cfg.Judge,
		catalog:      cfg.Catalog,
		store:        cfg.Store,
		validate:     validator.New(),
		logger:       cfg.Logger,
		rankingLimit: cfg.RankingLimit,
		secureCookie: cfg.SecureCookie,
	}
	if cfg.FlowRequestsPerMinute > 0 {
		s.flowLimiter = NewRateLimiter(cfg.FlowRequestsPerMinute, time.Minute, cfg.FlowRequestsPerMinute*3)
	}

	s.setupRoutes(cfg.Gatherer)

	var handler http.Handler = s.router
	if cfg.Observer != nil {
		handler = metricsMiddleware(cfg.Observer, handler)
	}
	handler = recoveryMiddleware(correlationIDMiddleware(loggingMiddleware(handler)))

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // upstream calls retry with backoff
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/ready", s.handleReady)
	if gatherer != nil {
		s.router.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// Catalog
	s.router.Handle("GET /problemas", s.withUser(s.handleListProblems))
	s.router.Handle("GET /problemas/{id}", s.withUser(s.handleGetProblem))

	// Learner flows
	s.router.Handle("POST /chat", s.withUser(s.limited(s.handleChat)))
	s.router.Handle("POST /corrigir", s.withUser(s.limited(s.handleReview)))
	s.router.Handle("POST /revelar-solucao", s.withUser(s.limited(s.handleReveal)))

	// Progress
	s.router.Handle("GET /me", s.withUser(s.handleMe))
	s.router.Handle("GET /ranking", s.withUser(s.handleRanking))
	s.router.Handle("GET /dashboard/acertos", s.withUser(s.handleAnswerStats))
	s.router.Handle("GET /dashboard/xp", s.withUser(s.handleXPHistory))
	s.router.Handle("GET /dashboard/envios", s.withUser(s.handleRecentSubmissions))
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting benjudge daemon", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down daemon...")
	return s.server.Shutdown(ctx)
}

// Handler implementations

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.jsonError(w, http.StatusServiceUnavailable, "Armazenamento indisponível", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleListProblems(w http.ResponseWriter, r *http.Request) {
	var f catalog.Filter
	if d := r.URL.Query().Get("dificuldade"); d != "" {
		diff, ok := domain.ParseDifficulty(d)
		if !ok {
			s.jsonError(w, http.StatusBadRequest, "Dificuldade inválida", nil)
			return
		}
		f.Difficulty = diff
	}
	f.Category = r.URL.Query().Get("categoria")

	s.jsonResponse(w, http.StatusOK, s.catalog.List(f))
}

func (s *Server) handleGetProblem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		s.problemNotFound(w)
		return
	}
	p, err := s.catalog.Get(id)
	if err != nil {
		s.problemNotFound(w)
		return
	}
	s.jsonResponse(w, http.StatusOK, p)
}

type chatRequest struct {
	ProblemID int    `json:"problema_id" validate:"required,gt=0"`
	Question  string `json:"pergunta" validate:"required"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}

	reply, err := s.judge.Chat(r.Context(), req.ProblemID, req.Question)
	if err != nil {
		s.flowError(w, "Erro ao processar a pergunta", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, reply)
}

type reviewRequest struct {
	ProblemID  int    `json:"problema_id" validate:"required,gt=0"`
	Answer     string `json:"resposta_usuario" validate:"required"`
	Complexity string `json:"complexidade_usuario"`
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !s.decode(w, r, &req) {
		return
	}

	reply, err := s.judge.Review(r.Context(), ledger.Attempt{
		UserID:          UserID(r.Context()),
		ProblemID:       req.ProblemID,
		Answer:          req.Answer,
		ComplexityClaim: req.Complexity,
	})
	if err != nil {
		s.flowError(w, "Erro ao corrigir", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, reply)
}

type revealRequest struct {
	ProblemID int    `json:"problema_id" validate:"required,gt=0"`
	Answer    string `json:"resposta_usuario"`
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	var req revealRequest
	if !s.decode(w, r, &req) {
		return
	}

	reply, err := s.judge.Reveal(r.Context(), req.ProblemID, req.Answer)
	if err != nil {
		s.flowError(w, "Erro ao gerar a solução", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, reply)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.GetUser(r.Context(), UserID(r.Context()))
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "Erro ao buscar usuário", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, u)
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	limit := s.rankingLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.jsonError(w, http.StatusBadRequest, "Limite inválido", nil)
			return
		}
		limit = min(n, s.rankingLimit)
	}

	users, err := s.store.Ranking(r.Context(), limit)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "Falha ao buscar ranking", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, users)
}

func (s *Server) handleAnswerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.AnswerStats(r.Context(), UserID(r.Context()))
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "Falha ao buscar acertos", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, stats)
}

func (s *Server) handleXPHistory(w http.ResponseWriter, r *http.Request) {
	points, err := s.store.XPHistory(r.Context(), UserID(r.Context()))
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "Falha ao buscar histórico de XP", err)
		return
	}
	if points == nil {
		points = []domain.XPPoint{}
	}
	s.jsonResponse(w, http.StatusOK, points)
}

func (s *Server) handleRecentSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.store.RecentSubmissions(r.Context(), UserID(r.Context()), RecentSubmissionsLimit)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "Falha ao buscar envios", err)
		return
	}
	if subs == nil {
		subs = []domain.Submission{}
	}
	s.jsonResponse(w, http.StatusOK, subs)
}

// decode reads and validates a JSON body, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		s.jsonError(w, http.StatusBadRequest, "Corpo da requisição inválido", err)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.jsonError(w, http.StatusBadRequest, "Campos obrigatórios ausentes", err)
		return false
	}
	return true
}

// flowError maps a learner-flow error onto a response.
func (s *Server) flowError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, domain.ErrProblemNotFound):
		s.problemNotFound(w)
	case errors.Is(err, domain.ErrInvalidInput):
		s.jsonError(w, http.StatusBadRequest, message, err)
	default:
		s.jsonError(w, http.StatusInternalServerError, message, err)
	}
}

func (s *Server) problemNotFound(w http.ResponseWriter) {
	s.jsonResponse(w, http.StatusNotFound, map[string]string{"erro": "Problema não encontrado"})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{"erro": message}
	if err != nil {
		response["detalhe"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}

