package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes events to the application log. Used when no broker
// is configured so the outbox still drains in development.
type LogPublisher struct {
	L *zap.Logger
}

func (p LogPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.L.Info("event.publish",
		zap.String("category", "audit"),
		zap.String("topic", topic),
		zap.ByteString("payload", payload))
	return nil
}
