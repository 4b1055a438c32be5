package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/benjudge/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements domain.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	q    querier
}

var _ domain.Store = (*Store)(nil)

// NewStore creates a Store over pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

// CountSubmissions implements domain.ProgressRepository.
func (s *Store) CountSubmissions(ctx context.Context, userID string, problemID int) (int, error) {
	var n int
	err := s.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM envios WHERE usuario_id = $1 AND problema_id = $2`,
		userID, problemID,
	).Scan(&n)
	if err != nil {
		return 0, &domain.PersistenceError{Op: "count submissions", Err: err}
	}
	return n, nil
}

// InsertSubmission implements domain.ProgressRepository.
func (s *Store) InsertSubmission(ctx context.Context, sub *domain.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO envios (id, usuario_id, problema_id, resposta, complexidade,
			correta, complexidade_correta, nota, criado_em)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.q.Exec(ctx, query,
		sub.ID, sub.UserID, sub.ProblemID, sub.Answer, sub.ComplexityClaim,
		sub.CodeCorrect, sub.ComplexityCorrect, sub.Score, sub.CreatedAt,
	)
	if err != nil {
		return &domain.PersistenceError{Op: "insert submission", Err: err}
	}
	return nil
}

// IncrementXP implements domain.ProgressRepository via incrementar_xp.
func (s *Store) IncrementXP(ctx context.Context, userID string, amount int) error {
	return s.increment(ctx, "increment xp", `SELECT incrementar_xp($1, $2)`, userID, amount)
}

// IncrementScore implements domain.ProgressRepository via incrementar_pontuacao.
func (s *Store) IncrementScore(ctx context.Context, userID string, amount int) error {
	return s.increment(ctx, "increment score", `SELECT incrementar_pontuacao($1, $2)`, userID, amount)
}

func (s *Store) increment(ctx context.Context, op, query, userID string, amount int) error {
	var total *int
	if err := s.q.QueryRow(ctx, query, userID, amount).Scan(&total); err != nil {
		return &domain.PersistenceError{Op: op, Err: err}
	}
	if total == nil {
		return &domain.PersistenceError{Op: op, Err: domain.ErrUserNotFound}
	}
	return nil
}

// WithinTx implements domain.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(domain.ProgressRepository) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return &domain.PersistenceError{Op: "begin tx", Err: err}
	}

	if err := fn(&Store{pool: s.pool, q: tx}); err != nil {
		tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return &domain.PersistenceError{Op: "commit tx", Err: err}
	}
	return nil
}

// CreateUser implements domain.UserRepository.
func (s *Store) CreateUser(ctx context.Context) (*domain.UserProgress, error) {
	u := &domain.UserProgress{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	_, err := s.q.Exec(ctx,
		`INSERT INTO usuarios (id, xp, pontuacao, criado_em) VALUES ($1, 0, 0, $2)`,
		u.ID, u.CreatedAt,
	)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "create user", Err: err}
	}
	return u, nil
}

// GetUser implements domain.UserRepository.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.UserProgress, error) {
	u := &domain.UserProgress{}
	err := s.q.QueryRow(ctx,
		`SELECT id, xp, pontuacao, criado_em FROM usuarios WHERE id = $1`, id,
	).Scan(&u.ID, &u.XP, &u.Score, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get user", Err: err}
	}
	return u, nil
}

// Ranking implements domain.UserRepository.
func (s *Store) Ranking(ctx context.Context, limit int) ([]domain.UserProgress, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, xp, pontuacao, criado_em FROM usuarios
		ORDER BY pontuacao DESC, xp DESC, criado_em ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "ranking", Err: err}
	}

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.UserProgress, error) {
		var u domain.UserProgress
		err := row.Scan(&u.ID, &u.XP, &u.Score, &u.CreatedAt)
		return u, err
	})
	if err != nil {
		return nil, &domain.PersistenceError{Op: "ranking", Err: err}
	}
	return users, nil
}

// AnswerStats implements domain.DashboardRepository.
func (s *Store) AnswerStats(ctx context.Context, userID string) (domain.AnswerStats, error) {
	var stats domain.AnswerStats
	err := s.q.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE correta),
		       COUNT(*) FILTER (WHERE NOT correta)
		FROM envios WHERE usuario_id = $1`, userID,
	).Scan(&stats.Correct, &stats.Incorrect)
	if err != nil {
		return stats, &domain.PersistenceError{Op: "answer stats", Err: err}
	}
	return stats, nil
}

// XPHistory implements domain.DashboardRepository, oldest first.
func (s *Store) XPHistory(ctx context.Context, userID string) ([]domain.XPPoint, error) {
	rows, err := s.q.Query(ctx, `
		SELECT xp, criado_em FROM xp_hist
		WHERE usuario_id = $1
		ORDER BY criado_em ASC, id ASC`, userID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "xp history", Err: err}
	}

	points, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.XPPoint, error) {
		var p domain.XPPoint
		err := row.Scan(&p.XP, &p.CreatedAt)
		return p, err
	})
	if err != nil {
		return nil, &domain.PersistenceError{Op: "xp history", Err: err}
	}
	if points == nil {
		points = []domain.XPPoint{}
	}
	return points, nil
}

// RecentSubmissions implements domain.DashboardRepository, newest first.
func (s *Store) RecentSubmissions(ctx context.Context, userID string, limit int) ([]domain.Submission, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, usuario_id, problema_id, resposta, complexidade,
			correta, complexidade_correta, nota, criado_em
		FROM envios
		WHERE usuario_id = $1
		ORDER BY criado_em DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "recent submissions", Err: err}
	}

	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Submission, error) {
		var sub domain.Submission
		err := row.Scan(&sub.ID, &sub.UserID, &sub.ProblemID, &sub.Answer, &sub.ComplexityClaim,
			&sub.CodeCorrect, &sub.ComplexityCorrect, &sub.Score, &sub.CreatedAt)
		return sub, err
	})
	if err != nil {
		return nil, &domain.PersistenceError{Op: "recent submissions", Err: err}
	}
	if subs == nil {
		subs = []domain.Submission{}
	}
	return subs, nil
}

// Ping implements domain.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements domain.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
