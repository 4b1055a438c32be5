// Package ledger converts verdicts into XP and score deltas and records the
// submission history.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/benjudge/internal/domain"
)

// Attempt identifies a graded submission.
type Attempt struct {
	UserID          string
	ProblemID       int
	Answer          string
	ComplexityClaim string
}

// Result is the outcome of RecordAttempt.
type Result struct {
	XPAwarded    int
	Submission   *domain.Submission
	FirstSuccess bool
}

// Notifier is told about every recorded attempt.
type Notifier interface {
	SubmissionRecorded(ctx context.Context, r *Result) error
}

// Store is what the ledger needs from persistence. Transactor is only used
// in atomic mode.
type Store interface {
	domain.ProgressRepository
	domain.Transactor
}

// Options toggles the ledger's consistency guarantees.
type Options struct {
	// Atomic runs the whole recording sequence in one transaction, so a
	// failed increment leaves no submission behind.
	Atomic bool

	// SerializeFirstBonus serializes attempts per (user, problem) in this
	// process, so concurrent first submissions cannot both earn the bonus.
	SerializeFirstBonus bool
}

// Ledger records attempts.
type Ledger struct {
	store    Store
	rules    Rules
	opts     Options
	notifier Notifier
	locks    *keyedMutex
	logger   *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithNotifier sets the notifier called after each recorded attempt.
func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New creates a Ledger.
func New(store Store, rules Rules, opts Options, options ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		rules:  rules,
		opts:   opts,
		locks:  newKeyedMutex(),
		logger: slog.Default(),
	}
	for _, o := range options {
		o(l)
	}
	return l
}

// Rules returns the rule table in use.
func (l *Ledger) Rules() Rules {
	return l.rules
}

// RecordAttempt applies a verdict to the user's progression:
//
//  1. count prior submissions for (user, problem)
//  2. compute XP, adding the first-success bonus on a first correct attempt
//  3. insert the submission with its score
//  4. increment XP
//  5. increment score, only when the code is correct
//
// Outside atomic mode a failure in steps 4 or 5 leaves the submission in
// place without its credit.
func (l *Ledger) RecordAttempt(ctx context.Context, a Attempt, v *domain.Verdict) (*Result, error) {
	if v == nil {
		return nil, fmt.Errorf("record attempt: %w: nil verdict", domain.ErrInvalidInput)
	}
	if a.UserID == "" {
		return nil, fmt.Errorf("record attempt: %w: empty user id", domain.ErrInvalidInput)
	}

	if l.opts.SerializeFirstBonus {
		unlock := l.locks.Lock(fmt.Sprintf("%s:%d", a.UserID, a.ProblemID))
		defer unlock()
	}

	var (
		res *Result
		err error
	)
	if l.opts.Atomic {
		err = l.store.WithinTx(ctx, func(repo domain.ProgressRepository) error {
			r, rerr := l.record(ctx, repo, a, *v)
			res = r
			return rerr
		})
	} else {
		res, err = l.record(ctx, l.store, a, *v)
	}
	if err != nil {
		return nil, err
	}

	l.logger.Info("attempt recorded",
		"user_id", a.UserID,
		"problem_id", a.ProblemID,
		"correct", v.CodeCorrect,
		"xp", res.XPAwarded,
		"first_success", res.FirstSuccess,
	)

	if l.notifier != nil {
		if nerr := l.notifier.SubmissionRecorded(ctx, res); nerr != nil {
			l.logger.Warn("submission notifier failed", "user_id", a.UserID, "error", nerr)
		}
	}

	return res, nil
}

func (l *Ledger) record(ctx context.Context, repo domain.ProgressRepository, a Attempt, v domain.Verdict) (*Result, error) {
	prior, err := repo.CountSubmissions(ctx, a.UserID, a.ProblemID)
	if err != nil {
		return nil, persistence("count submissions", err)
	}

	xp := l.rules.XPFor(v, prior)

	sub := &domain.Submission{
		UserID:            a.UserID,
		ProblemID:         a.ProblemID,
		Answer:            a.Answer,
		ComplexityClaim:   a.ComplexityClaim,
		CodeCorrect:       v.CodeCorrect,
		ComplexityCorrect: v.ComplexityCorrect,
		Score:             domain.ScoreFor(v),
	}
	if err := repo.InsertSubmission(ctx, sub); err != nil {
		return nil, persistence("insert submission", err)
	}

	if err := repo.IncrementXP(ctx, a.UserID, xp); err != nil {
		return nil, persistence("increment xp", err)
	}

	if v.CodeCorrect {
		if err := repo.IncrementScore(ctx, a.UserID, l.rules.ScoreIncrement); err != nil {
			return nil, persistence("increment score", err)
		}
	}

	return &Result{
		XPAwarded:    xp,
		Submission:   sub,
		FirstSuccess: prior == 0 && v.CodeCorrect,
	}, nil
}

// persistence wraps err as a *domain.PersistenceError unless it already is one.
func persistence(op string, err error) error {
	var pe *domain.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &domain.PersistenceError{Op: op, Err: err}
}
