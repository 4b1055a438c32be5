package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/felixgeelhaar/benjudge/internal/domain"
	"github.com/google/uuid"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements domain.Store backed by SQLite. The increment calls
// emulate the incrementar_xp and incrementar_pontuacao functions of the
// Postgres schema.
type Store struct {
	db  *DB
	q   querier
	now func() time.Time
}

var _ domain.Store = (*Store)(nil)

// NewStore creates a store over an opened and migrated database.
func NewStore(db *DB) *Store {
	return &Store{db: db, q: db.DB, now: func() time.Time { return time.Now().UTC() }}
}

// CountSubmissions implements domain.ProgressRepository.
func (s *Store) CountSubmissions(ctx context.Context, userID string, problemID int) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM envios WHERE usuario_id = ? AND problema_id = ?`,
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
		sub.CreatedAt = s.now()
	}

	var complexity sql.NullBool
	if sub.ComplexityCorrect != nil {
		complexity = sql.NullBool{Bool: *sub.ComplexityCorrect, Valid: true}
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO envios (id, usuario_id, problema_id, resposta, complexidade,
			correta, complexidade_correta, nota, criado_em)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.UserID, sub.ProblemID, sub.Answer, sub.ComplexityClaim,
		sub.CodeCorrect, complexity, sub.Score, sub.CreatedAt,
	)
	if err != nil {
		return &domain.PersistenceError{Op: "insert submission", Err: err}
	}
	return nil
}

// IncrementXP implements domain.ProgressRepository. The new total is
// appended to the XP history.
func (s *Store) IncrementXP(ctx context.Context, userID string, amount int) error {
	var total int
	err := s.q.QueryRowContext(ctx,
		`UPDATE usuarios SET xp = xp + ? WHERE id = ? RETURNING xp`,
		amount, userID,
	).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.PersistenceError{Op: "increment xp", Err: domain.ErrUserNotFound}
	}
	if err != nil {
		return &domain.PersistenceError{Op: "increment xp", Err: err}
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO xp_hist (usuario_id, xp, criado_em) VALUES (?, ?, ?)`,
		userID, total, s.now(),
	)
	if err != nil {
		return &domain.PersistenceError{Op: "record xp history", Err: err}
	}
	return nil
}

// IncrementScore implements domain.ProgressRepository.
func (s *Store) IncrementScore(ctx context.Context, userID string, amount int) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE usuarios SET pontuacao = pontuacao + ? WHERE id = ?`,
		amount, userID,
	)
	if err != nil {
		return &domain.PersistenceError{Op: "increment score", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.PersistenceError{Op: "increment score", Err: domain.ErrUserNotFound}
	}
	return nil
}

// WithinTx implements domain.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(domain.ProgressRepository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "begin tx", Err: err}
	}

	if err := fn(&Store{db: s.db, q: tx, now: s.now}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "commit tx", Err: err}
	}
	return nil
}

// CreateUser implements domain.UserRepository.
func (s *Store) CreateUser(ctx context.Context) (*domain.UserProgress, error) {
	u := &domain.UserProgress{ID: uuid.NewString(), CreatedAt: s.now()}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO usuarios (id, xp, pontuacao, criado_em) VALUES (?, 0, 0, ?)`,
		u.ID, u.CreatedAt,
	)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "create user", Err: err}
	}
	return u, nil
}

// GetUser implements domain.UserRepository.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.UserProgress, error) {
	var u domain.UserProgress
	err := s.q.QueryRowContext(ctx,
		`SELECT id, xp, pontuacao, criado_em FROM usuarios WHERE id = ?`, id,
	).Scan(&u.ID, &u.XP, &u.Score, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get user", Err: err}
	}
	return &u, nil
}

// Ranking implements domain.UserRepository. Level derives from XP, so
// ordering by score then XP also orders by level.
func (s *Store) Ranking(ctx context.Context, limit int) ([]domain.UserProgress, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, xp, pontuacao, criado_em FROM usuarios
		ORDER BY pontuacao DESC, xp DESC, criado_em ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "ranking", Err: err}
	}
	defer rows.Close()

	var users []domain.UserProgress
	for rows.Next() {
		var u domain.UserProgress
		if err := rows.Scan(&u.ID, &u.XP, &u.Score, &u.CreatedAt); err != nil {
			return nil, &domain.PersistenceError{Op: "scan ranking", Err: err}
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "ranking", Err: err}
	}
	return users, nil
}

// AnswerStats implements domain.DashboardRepository.
func (s *Store) AnswerStats(ctx context.Context, userID string) (domain.AnswerStats, error) {
	var stats domain.AnswerStats
	err := s.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN correta THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN correta THEN 0 ELSE 1 END), 0)
		FROM envios WHERE usuario_id = ?`, userID,
	).Scan(&stats.Correct, &stats.Incorrect)
	if err != nil {
		return stats, &domain.PersistenceError{Op: "answer stats", Err: err}
	}
	return stats, nil
}

// XPHistory implements domain.DashboardRepository, oldest first.
func (s *Store) XPHistory(ctx context.Context, userID string) ([]domain.XPPoint, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT xp, criado_em FROM xp_hist
		WHERE usuario_id = ?
		ORDER BY criado_em ASC, id ASC`, userID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "xp history", Err: err}
	}
	defer rows.Close()

	points := []domain.XPPoint{}
	for rows.Next() {
		var p domain.XPPoint
		if err := rows.Scan(&p.XP, &p.CreatedAt); err != nil {
			return nil, &domain.PersistenceError{Op: "scan xp history", Err: err}
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "xp history", Err: err}
	}
	return points, nil
}

// RecentSubmissions implements domain.DashboardRepository, newest first.
func (s *Store) RecentSubmissions(ctx context.Context, userID string, limit int) ([]domain.Submission, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, usuario_id, problema_id, resposta, complexidade,
			correta, complexidade_correta, nota, criado_em
		FROM envios
		WHERE usuario_id = ?
		ORDER BY criado_em DESC, rowid DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "recent submissions", Err: err}
	}
	defer rows.Close()

	subs := []domain.Submission{}
	for rows.Next() {
		var (
			sub        domain.Submission
			complexity sql.NullBool
		)
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.ProblemID, &sub.Answer, &sub.ComplexityClaim,
			&sub.CodeCorrect, &complexity, &sub.Score, &sub.CreatedAt); err != nil {
			return nil, &domain.PersistenceError{Op: "scan submission", Err: err}
		}
		if complexity.Valid {
			sub.ComplexityCorrect = domain.Bool(complexity.Bool)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "recent submissions", Err: err}
	}
	return subs, nil
}

// Ping implements domain.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements domain.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

