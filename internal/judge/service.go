// Package judge orchestrates the three learner flows: help chat, answer
// review and solution reveal. It wires the catalog, the fingerprint cache,
// the reasoning service, the verdict interpreters and the progression
// ledger together; identity is resolved by the caller.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/felixgeelhaar/benjudge/internal/cache"
	"github.com/felixgeelhaar/benjudge/internal/domain"
	"github.com/felixgeelhaar/benjudge/internal/ledger"
	"github.com/felixgeelhaar/benjudge/internal/llm"
	"github.com/felixgeelhaar/benjudge/internal/verdict"
	"golang.org/x/sync/singleflight"
)

// sharedCallTimeout bounds an upstream call shared by collapsed misses.
const sharedCallTimeout = 2 * time.Minute

// Cache endpoints, used as the first key segment.
const (
	EndpointChat   = "chat"
	EndpointReveal = "solucao"
)

// User-visible fallbacks for degraded responses.
const (
	FallbackChat   = "Não foi possível obter ajuda agora. Tente novamente em instantes."
	FallbackReview = "Não foi possível avaliar sua resposta agora. Nenhum XP foi registrado; tente novamente."
	FallbackReveal = "Não foi possível gerar a solução agora. Tente novamente em instantes."
)

// Limits caps the generated output per flow, in tokens.
type Limits struct {
	ChatTokens   int `yaml:"chat_tokens"`
	ReviewTokens int `yaml:"review_tokens"`
	RevealTokens int `yaml:"reveal_tokens"`
}

// DefaultLimits returns the standard generation limits.
func DefaultLimits() Limits {
	return Limits{ChatTokens: 1500, ReviewTokens: 1500, RevealTokens: 2500}
}

// ProblemSource resolves problems by ID.
type ProblemSource interface {
	Get(id int) (*domain.Problem, error)
}

// Recorder persists graded attempts.
type Recorder interface {
	RecordAttempt(ctx context.Context, a ledger.Attempt, v *domain.Verdict) (*ledger.Result, error)
}

// Observer receives flow-level telemetry.
type Observer interface {
	UpstreamCall(provider, flow string, took time.Duration, err error)
	Verdict(mode string, codeCorrect bool)
	ParseFailure(mode string)
	Submission(correct, firstSuccess bool, xp int)
}

// Config assembles a Service.
type Config struct {
	Problems ProblemSource
	Provider llm.Provider
	Cache    cache.Cache
	Keyer    cache.Keyer
	Reviewer verdict.Interpreter
	Ledger   Recorder
	Limits   Limits

	// CollapseMisses lets concurrent cache misses for one key share a
	// single upstream call.
	CollapseMisses bool

	Observer Observer
	Logger   *slog.Logger
}

// Service implements the learner flows.
type Service struct {
	problems ProblemSource
	provider llm.Provider
	cache    cache.Cache
	keyer    cache.Keyer
	reviewer verdict.Interpreter
	reveal   verdict.EmbeddedJSON
	ledger   Recorder
	limits   Limits
	group    *singleflight.Group
	observer Observer
	logger   *slog.Logger
}

// NewService validates cfg and builds a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Problems == nil || cfg.Provider == nil || cfg.Cache == nil || cfg.Ledger == nil {
		return nil, errors.New("judge: problems, provider, cache and ledger are required")
	}
	if cfg.Keyer == nil {
		cfg.Keyer = cache.HashKeyer{}
	}
	if cfg.Reviewer == nil {
		cfg.Reviewer = verdict.Heuristic{}
	}
	def := DefaultLimits()
	if cfg.Limits.ChatTokens <= 0 {
		cfg.Limits.ChatTokens = def.ChatTokens
	}
	if cfg.Limits.ReviewTokens <= 0 {
		cfg.Limits.ReviewTokens = def.ReviewTokens
	}
	if cfg.Limits.RevealTokens <= 0 {
		cfg.Limits.RevealTokens = def.RevealTokens
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Service{
		problems: cfg.Problems,
		provider: cfg.Provider,
		cache:    cfg.Cache,
		keyer:    cfg.Keyer,
		reviewer: cfg.Reviewer,
		reveal:   verdict.NewEmbeddedJSON(),
		ledger:   cfg.Ledger,
		limits:   cfg.Limits,
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}
	if cfg.CollapseMisses {
		s.group = &singleflight.Group{}
	}
	return s, nil
}

// ChatReply is the /chat response body.
type ChatReply struct {
	Answer string `json:"resposta"`

	Cached   bool `json:"-"`
	Degraded bool `json:"-"`
}

// ReviewReply is the /corrigir response body.
type ReviewReply struct {
	Evaluation string `json:"avaliacao"`
	Correct    bool   `json:"correta"`
	XPAwarded  int    `json:"xp_ganho"`

	Degraded bool `json:"-"`
}

// RevealReply is the /revelar-solucao response body.
type RevealReply struct {
	Solution string `json:"solucao"`
	Analysis string `json:"analise"`

	Cached   bool `json:"-"`
	Degraded bool `json:"-"`
}

// Chat answers a help question about a problem. Answers are cached by
// (problem, question). An upstream failure yields a degraded, uncached reply.
func (s *Service) Chat(ctx context.Context, problemID int, question string) (*ChatReply, error) {
	problem, err := s.problems.Get(problemID)
	if err != nil {
		return nil, err
	}

	key := s.keyer.Key(EndpointChat, problemID, question)
	if payload, ok := s.cache.Lookup(ctx, key); ok {
		var reply ChatReply
		if err := json.Unmarshal(payload, &reply); err == nil {
			reply.Cached = true
			return &reply, nil
		}
		s.logger.Warn("discarding undecodable cache entry", "key", key)
	}

	v, err := s.collapse(ctx, key, func(ctx context.Context) (any, error) {
		text, err := s.generate(ctx, "chat", llm.Prompt(HelpPrompt(problem, question), s.limits.ChatTokens))
		if err != nil {
			return nil, err
		}
		reply := &ChatReply{Answer: text}
		s.store(ctx, key, reply)
		return reply, nil
	})
	if err != nil {
		s.logger.Error("chat upstream failed", "problem_id", problemID, "error", err)
		return &ChatReply{Answer: FallbackChat, Degraded: true}, nil
	}
	return v.(*ChatReply), nil
}

// Review grades an answer and records it in the ledger. Reviews are never
// cached. When the reasoning service fails or its answer cannot be
// interpreted, a degraded reply with no XP is returned and nothing is
// recorded. Ledger failures are returned as *domain.PersistenceError.
func (s *Service) Review(ctx context.Context, a ledger.Attempt) (*ReviewReply, error) {
	problem, err := s.problems.Get(a.ProblemID)
	if err != nil {
		return nil, err
	}

	mode := s.reviewer.Mode()
	req := llm.Prompt(ReviewPrompt(problem, a.Answer, a.ComplexityClaim, mode), s.limits.ReviewTokens)
	req.JSON = mode == verdict.ModeStrict

	text, err := s.generate(ctx, "review", req)
	if err != nil {
		s.logger.Error("review upstream failed", "problem_id", a.ProblemID, "user_id", a.UserID, "error", err)
		return &ReviewReply{Evaluation: FallbackReview, Degraded: true}, nil
	}

	v, err := s.reviewer.Interpret(text)
	if err != nil {
		s.parseFailed(string(mode), text, err)
		return &ReviewReply{Evaluation: FallbackReview, Degraded: true}, nil
	}
	if s.observer != nil {
		s.observer.Verdict(string(mode), v.CodeCorrect)
	}

	res, err := s.ledger.RecordAttempt(ctx, a, v)
	if err != nil {
		return nil, err
	}
	if s.observer != nil {
		s.observer.Submission(v.CodeCorrect, res.FirstSuccess, res.XPAwarded)
	}

	evaluation := text
	if mode == verdict.ModeStrict && v.Rationale != "" {
		evaluation = v.Rationale
	}

	return &ReviewReply{
		Evaluation: evaluation,
		Correct:    v.CodeCorrect,
		XPAwarded:  res.XPAwarded,
	}, nil
}

// Reveal returns the reference solution and an analysis of the learner's
// answer. The result is cached per problem regardless of the answer, so a
// later learner may receive an analysis of someone else's attempt. Degraded
// replies are not cached.
func (s *Service) Reveal(ctx context.Context, problemID int, answer string) (*RevealReply, error) {
	problem, err := s.problems.Get(problemID)
	if err != nil {
		return nil, err
	}

	key := s.keyer.Key(EndpointReveal, problemID, "")
	if payload, ok := s.cache.Lookup(ctx, key); ok {
		var reply RevealReply
		if err := json.Unmarshal(payload, &reply); err == nil {
			reply.Cached = true
			return &reply, nil
		}
		s.logger.Warn("discarding undecodable cache entry", "key", key)
	}

	v, err := s.collapse(ctx, key, func(ctx context.Context) (any, error) {
		req := llm.Prompt(RevealPrompt(problem, answer), s.limits.RevealTokens)
		req.JSON = true

		text, err := s.generate(ctx, "reveal", req)
		if err != nil {
			return nil, err
		}

		sol, err := s.reveal.ExtractSolution(text)
		if err != nil {
			s.parseFailed(string(verdict.ModeEmbeddedJSON), text, err)
			return nil, err
		}

		reply := &RevealReply{Solution: sol.Code, Analysis: sol.Analysis}
		s.store(ctx, key, reply)
		return reply, nil
	})
	if err != nil {
		if !domain.IsParseError(err) {
			s.logger.Error("reveal upstream failed", "problem_id", problemID, "error", err)
		}
		return &RevealReply{Analysis: FallbackReveal, Degraded: true}, nil
	}
	return v.(*RevealReply), nil
}

// generate calls the reasoning service, wrapping failures as
// *domain.UpstreamError.
func (s *Service) generate(ctx context.Context, flow string, req *llm.Request) (string, error) {
	start := time.Now()
	resp, err := s.provider.Generate(ctx, req)
	if s.observer != nil {
		s.observer.UpstreamCall(s.provider.Name(), flow, time.Since(start), err)
	}
	if err != nil {
		return "", &domain.UpstreamError{Provider: s.provider.Name(), Err: err}
	}
	return resp.Content, nil
}

// collapse runs fn, sharing one execution among concurrent callers with the
// same key when miss collapsing is enabled. The shared execution is detached
// from any single caller's cancellation and bounded by sharedCallTimeout;
// each caller still stops waiting when its own ctx is done.
func (s *Service) collapse(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	if s.group == nil {
		return fn(ctx)
	}
	ch := s.group.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedCallTimeout)
		defer cancel()
		return fn(shared)
	})
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) store(ctx context.Context, key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	s.cache.Store(ctx, key, payload)
}

func (s *Service) parseFailed(mode, raw string, err error) {
	if s.observer != nil {
		s.observer.ParseFailure(mode)
	}
	s.logger.Warn("uninterpretable upstream response",
		"mode", mode,
		"error", err,
		"raw", truncate(raw, 2000),
	)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s…(%d bytes)", s[:cut], len(s))
}
