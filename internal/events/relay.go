package events

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"storefront/internal/repos"
)

// Relay drains the outbox: every tick it publishes up to Batch pending
// events, oldest first, and marks each one sent or failed.
type Relay struct {
	Outbox   *repos.OutboxRepo
	Pub      Publisher
	Interval time.Duration
	Batch    int
	Log      *zap.Logger

	// optional hook, e.g. a prometheus counter
	OnResult func(topic string, err error)
}

func NewRelay(db *sqlx.DB, pub Publisher, interval time.Duration, batch int, l *zap.Logger) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batch <= 0 {
		batch = 50
	}
	return &Relay{Outbox: repos.NewOutboxRepo(db), Pub: pub, Interval: interval, Batch: batch, Log: l}
}

// Run blocks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	t := time.NewTicker(r.Interval)
	defer t.Stop()
	for {
		if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
			r.Log.Error("outbox.drain.fail", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Drain runs one pass and returns how many events were published. A
// publish failure is recorded on the row and does not stop the batch.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	pending, err := r.Outbox.Pending(ctx, r.Batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, ev := range pending {
		perr := r.Pub.Publish(ctx, ev.Topic, []byte(ev.Payload))
		if r.OnResult != nil {
			r.OnResult(ev.Topic, perr)
		}
		if perr != nil {
			r.Log.Warn("outbox.publish.fail",
				zap.String("event_id", ev.ID),
				zap.String("topic", ev.Topic),
				zap.Int("attempts", ev.Attempts+1),
				zap.Error(perr))
			if err := r.Outbox.MarkFailed(ctx, ev.ID, perr); err != nil {
				return sent, err
			}
			continue
		}
		if err := r.Outbox.MarkSent(ctx, ev.ID); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
