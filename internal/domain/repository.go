package domain

import "context"

// ProgressRepository is the slice of the store the progression ledger writes
// through: one read, one insert and two increment calls.
type ProgressRepository interface {
	// CountSubmissions returns the number of prior submissions by a user
	// for a problem.
	CountSubmissions(ctx context.Context, userID string, problemID int) (int, error)

	// InsertSubmission persists s, assigning ID and CreatedAt when empty.
	InsertSubmission(ctx context.Context, s *Submission) error

	// IncrementXP adds amount to the user's XP (incrementar_xp).
	IncrementXP(ctx context.Context, userID string, amount int) error

	// IncrementScore adds amount to the user's score (incrementar_pontuacao).
	IncrementScore(ctx context.Context, userID string, amount int) error
}

// Transactor runs fn against a transaction-scoped ProgressRepository.
// The transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ProgressRepository) error) error
}

// UserRepository provisions and reads anonymous users
type UserRepository interface {
	CreateUser(ctx context.Context) (*UserProgress, error)
	GetUser(ctx context.Context, id string) (*UserProgress, error)
	Ranking(ctx context.Context, limit int) ([]UserProgress, error)
}

// DashboardRepository serves the per-user dashboard reads
type DashboardRepository interface {
	AnswerStats(ctx context.Context, userID string) (AnswerStats, error)
	XPHistory(ctx context.Context, userID string) ([]XPPoint, error)
	RecentSubmissions(ctx context.Context, userID string, limit int) ([]Submission, error)
}

// Store is the full persistence collaborator.
type Store interface {
	ProgressRepository
	UserRepository
	DashboardRepository
	Transactor
	Ping(ctx context.Context) error
	Close() error
}
