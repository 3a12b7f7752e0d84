// Package events fans out file lifecycle notifications to interested
// services (previews, search indexing, audit). Publishing is best-effort:
// the upload pipeline never fails because an event could not be emitted.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	StreamName = "file-events"

	SubjectFileReady   = "files.ready"
	SubjectFileDeleted = "files.deleted"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Noop discards events; used where no broker is wired (tests, tooling).
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }

// JetStreamPublisher emits durable events on the shared NATS connection.
type JetStreamPublisher struct {
	js     nats.JetStreamContext
	logger *slog.Logger
}

func NewJetStreamPublisher(js nats.JetStreamContext, logger *slog.Logger) (*JetStreamPublisher, error) {
	p := &JetStreamPublisher{
		js:     js,
		logger: logger.With(slog.String("component", "events")),
	}
	if err := p.ensureStream(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *JetStreamPublisher) ensureStream() error {
	if _, err := p.js.StreamInfo(StreamName); err == nil {
		return nil
	}
	_, err := p.js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{"files.*"},
		Storage:  nats.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", StreamName, err)
	}
	return nil
}

func (p *JetStreamPublisher) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = p.js.Publish(subject, data,
		nats.MsgId(uuid.New().String()),
		nats.Context(ctx))
	if err != nil {
		p.logger.Warn("event publish failed",
			slog.String("subject", subject), slog.Any("error", err))
		return err
	}
	return nil
}
