// Package mcp exposes the learner flows as MCP tools for editor agents.
package mcp

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/benjudge/internal/catalog"
	"github.com/felixgeelhaar/benjudge/internal/domain"
	"github.com/felixgeelhaar/benjudge/internal/judge"
	"github.com/felixgeelhaar/benjudge/internal/ledger"
	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"
)

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

// Users reads progression for the agent's user.
type Users interface {
	GetUser(ctx context.Context, id string) (*domain.UserProgress, error)
}

// Server wraps the MCP server with BenJudge functionality
type Server struct {
	mcpServer *server.Server
	judge     Judge
	catalog   Catalog
	users     Users
	userID    string
}

// Config contains configuration for the MCP server
type Config struct {
	Judge   Judge
	Catalog Catalog
	Users   Users
	// UserID is the identity every review is recorded against.
	UserID  string
	Version string
}

// NewServer creates a new MCP server for BenJudge
func NewServer(cfg Config) *Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	s := &Server{
		judge:   cfg.Judge,
		catalog: cfg.Catalog,
		users:   cfg.Users,
		userID:  cfg.UserID,
	}

	s.mcpServer = server.New(server.Info{
		Name:    "benjudge",
		Version: cfg.Version,
	}, server.WithInstructions(`
BenJudge is an algorithmic-practice judge. Problems come from a fixed catalog;
answers are graded by a tutor that never hands out full solutions unless asked
to reveal one.

Available tools:
- benjudge_problems: List problems, optionally filtered by difficulty or category
- benjudge_chat: Ask the tutor for a hint about a problem
- benjudge_review: Submit an answer for grading (earns XP)
- benjudge_reveal: Reveal the reference solution with an analysis
- benjudge_progress: Show XP, score and level
`))

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("benjudge_problems").
		Description("List catalog problems, optionally filtered by difficulty or category.").
		Handler(s.handleProblems)

	s.mcpServer.Tool("benjudge_chat").
		Description("Ask the tutor a question about a problem. Answers guide without giving the solution.").
		Handler(s.handleChat)

	s.mcpServer.Tool("benjudge_review").
		Description("Submit an answer and an optional complexity claim for grading. Records XP.").
		Handler(s.handleReview)

	s.mcpServer.Tool("benjudge_reveal").
		Description("Reveal the reference solution for a problem with an analysis of the answer.").
		Handler(s.handleReveal)

	s.mcpServer.Tool("benjudge_progress").
		Description("Show the current XP, score and level.").
		Handler(s.handleProgress)
}

// Input/Output types for tools

type ProblemsInput struct {
	Difficulty string `json:"dificuldade,omitempty" jsonschema:"description=Difficulty filter,enum=easy,enum=medium,enum=hard,enum=exam"`
	Category   string `json:"categoria,omitempty" jsonschema:"description=Category filter"`
}

type ProblemsOutput struct {
	Problems []domain.Problem `json:"problemas"`
}

type ChatInput struct {
	ProblemID int    `json:"problema_id" jsonschema:"description=Problem ID from benjudge_problems"`
	Question  string `json:"pergunta" jsonschema:"description=Question for the tutor"`
}

type ChatOutput struct {
	Answer string `json:"resposta"`
}

type ReviewInput struct {
	ProblemID  int    `json:"problema_id" jsonschema:"description=Problem ID from benjudge_problems"`
	Answer     string `json:"resposta_usuario" jsonschema:"description=Code or description of the solution"`
	Complexity string `json:"complexidade_usuario,omitempty" jsonschema:"description=Claimed time complexity, e.g. O(n log n)"`
}

type ReviewOutput struct {
	Evaluation string `json:"avaliacao"`
	Correct    bool   `json:"correta"`
	XPAwarded  int    `json:"xp_ganho"`
}

type RevealInput struct {
	ProblemID int    `json:"problema_id" jsonschema:"description=Problem ID from benjudge_problems"`
	Answer    string `json:"resposta_usuario,omitempty" jsonschema:"description=Answer to analyse against the reference solution"`
}

type RevealOutput struct {
	Solution string `json:"solucao"`
	Analysis string `json:"analise"`
}

type ProgressInput struct{}

type ProgressOutput struct {
	UserID string `json:"id"`
	XP     int    `json:"xp"`
	Score  int    `json:"pontuacao"`
	Level  int    `json:"nivel"`
}

// Tool handlers

func (s *Server) handleProblems(ctx context.Context, input ProblemsInput) (ProblemsOutput, error) {
	var f catalog.Filter
	if input.Difficulty != "" {
		d, ok := domain.ParseDifficulty(input.Difficulty)
		if !ok {
			return ProblemsOutput{}, fmt.Errorf("unknown difficulty %q", input.Difficulty)
		}
		f.Difficulty = d
	}
	f.Category = input.Category

	return ProblemsOutput{Problems: s.catalog.List(f)}, nil
}

func (s *Server) handleChat(ctx context.Context, input ChatInput) (ChatOutput, error) {
	if input.Question == "" {
		return ChatOutput{}, fmt.Errorf("pergunta is required")
	}
	reply, err := s.judge.Chat(ctx, input.ProblemID, input.Question)
	if err != nil {
		return ChatOutput{}, err
	}
	return ChatOutput{Answer: reply.Answer}, nil
}

func (s *Server) handleReview(ctx context.Context, input ReviewInput) (ReviewOutput, error) {
	if input.Answer == "" {
		return ReviewOutput{}, fmt.Errorf("resposta_usuario is required")
	}
	if s.userID == "" {
		return ReviewOutput{}, fmt.Errorf("no user configured for reviews")
	}

	reply, err := s.judge.Review(ctx, ledger.Attempt{
		UserID:          s.userID,
		ProblemID:       input.ProblemID,
		Answer:          input.Answer,
		ComplexityClaim: input.Complexity,
	})
	if err != nil {
		return ReviewOutput{}, err
	}
	return ReviewOutput{
		Evaluation: reply.Evaluation,
		Correct:    reply.Correct,
		XPAwarded:  reply.XPAwarded,
	}, nil
}

func (s *Server) handleReveal(ctx context.Context, input RevealInput) (RevealOutput, error) {
	reply, err := s.judge.Reveal(ctx, input.ProblemID, input.Answer)
	if err != nil {
		return RevealOutput{}, err
	}
	return RevealOutput{Solution: reply.Solution, Analysis: reply.Analysis}, nil
}

func (s *Server) handleProgress(ctx context.Context, _ ProgressInput) (ProgressOutput, error) {
	if s.users == nil || s.userID == "" {
		return ProgressOutput{}, fmt.Errorf("no user configured")
	}
	u, err := s.users.GetUser(ctx, s.userID)
	if err != nil {
		return ProgressOutput{}, fmt.Errorf("load progress: %w", err)
	}
	return ProgressOutput{UserID: u.ID, XP: u.XP, Score: u.Score, Level: u.Level()}, nil
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
