package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront/internal/config"
	"storefront/internal/events"
	"storefront/internal/repos"
)

type fakePub struct {
	fail  map[string]bool
	topic []string
}

func (f *fakePub) Publish(_ context.Context, topic string, payload []byte) error {
	if f.fail[string(payload)] {
		return errors.New("broker down")
	}
	f.topic = append(f.topic, topic)
	return nil
}

func TestRelay_DrainMarksSentAndKeepsFailures(t *testing.T) {
	ctx := context.Background()
	db, err := repos.OpenDB(config.DBConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	out := repos.NewOutboxRepo(db)
	_, err = out.Insert(ctx, events.TopicOrderCreated, []byte(`{"n":1}`))
	require.NoError(t, err)
	_, err = out.Insert(ctx, events.TopicOrderStatusChanged, []byte(`{"n":2}`))
	require.NoError(t, err)

	pub := &fakePub{fail: map[string]bool{`{"n":2}`: true}}
	var results []error
	r := events.NewRelay(db, pub, 0, 10, zap.NewNop())
	r.OnResult = func(_ string, err error) { results = append(results, err) }

	sent, err := r.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{events.TopicOrderCreated}, pub.topic)
	require.Len(t, results, 2)
	failed := 0
	for _, e := range results {
		if e != nil {
			failed++
		}
	}
	assert.Equal(t, 1, failed)

	left, err := out.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, 1, left[0].Attempts)
	assert.Equal(t, "broker down", left[0].LastError)

	// broker back: the retry goes through and nothing is pending
	pub.fail = nil
	sent, err = r.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	left, err = out.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	db, err := repos.OpenDB(config.DBConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		events.NewRelay(db, &fakePub{}, 0, 0, zap.NewNop()).Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}
