package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/benjudge/internal/ledger"
	"github.com/google/uuid"
)

// Publisher sends a JSON body to a named queue. *Connection implements it.
type Publisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

// Producer publishes submission events. It implements ledger.Notifier.
type Producer struct {
	pub Publisher
}

// NewProducer creates a new queue producer
func NewProducer(pub Publisher) *Producer {
	return &Producer{pub: pub}
}

// PublishSubmission publishes ev, filling in its ID and timestamp when unset.
func (p *Producer) PublishSubmission(ctx context.Context, ev *SubmissionEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Type == "" {
		ev.Type = EventSubmissionRecorded
	}
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = time.Now().UTC()
	}

	if err := p.pub.PublishJSON(ctx, SubmissionQueueName, ev); err != nil {
		return fmt.Errorf("failed to publish submission event: %w", err)
	}

	slog.Debug("published submission event",
		"event_id", ev.ID,
		"user_id", ev.UserID,
		"problem_id", ev.ProblemID,
	)
	return nil
}

// SubmissionRecorded implements ledger.Notifier.
func (p *Producer) SubmissionRecorded(ctx context.Context, r *ledger.Result) error {
	return p.PublishSubmission(ctx, EventFromResult(r))
}

// EventFromResult builds the event describing a recorded attempt.
func EventFromResult(r *ledger.Result) *SubmissionEvent {
	ev := &SubmissionEvent{
		Type:         EventSubmissionRecorded,
		XPAwarded:    r.XPAwarded,
		FirstSuccess: r.FirstSuccess,
	}
	if s := r.Submission; s != nil {
		ev.SubmissionID = s.ID
		ev.UserID = s.UserID
		ev.ProblemID = s.ProblemID
		ev.Correct = s.CodeCorrect
		ev.ComplexityCorrect = s.ComplexityCorrect
		ev.Score = s.Score
		if !s.CreatedAt.IsZero() {
			ev.RecordedAt = s.CreatedAt
		}
	}
	return ev
}
