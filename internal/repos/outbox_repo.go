package repos

import (
	"context"

	"github.com/google/uuid"
)

const (
	OutboxPending = "PENDING"
	OutboxSent    = "SENT"
)

// OutboxEvent is a domain event written in the same transaction as the
// state change it describes.
type OutboxEvent struct {
	ID          string `db:"id"`
	Topic       string `db:"topic"`
	Payload     string `db:"payload"`
	Status      string `db:"status"`
	Attempts    int    `db:"attempts"`
	LastError   string `db:"last_error"`
	CreatedAt   string `db:"created_at"`
	PublishedAt string `db:"published_at"`
}

type OutboxRepo struct{ db Querier }

func NewOutboxRepo(db Querier) *OutboxRepo { return &OutboxRepo{db: db} }

func (r *OutboxRepo) Insert(ctx context.Context, topic string, payload []byte) (string, error) {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox(id, topic, payload, status, attempts, last_error, created_at, published_at)
		VALUES (?, ?, ?, ?, 0, '', ?, '')
	`, id, topic, string(payload), OutboxPending, now())
	return id, err
}

// Pending returns up to limit unsent events, oldest first.
func (r *OutboxRepo) Pending(ctx context.Context, limit int) ([]OutboxEvent, error) {
	out := []OutboxEvent{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, topic, payload, status, attempts, last_error, created_at, published_at
		FROM outbox
		WHERE status = ?
		ORDER BY created_at, id
		LIMIT ?
	`, OutboxPending, limit)
	return out, err
}

func (r *OutboxRepo) MarkSent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET status = ?, attempts = attempts + 1, last_error = '', published_at = ? WHERE id = ?
	`, OutboxSent, now(), id)
	return err
}

// MarkFailed keeps the event pending and records why the last attempt failed.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id string, cause error) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?
	`, cause.Error(), id)
	return err
}
