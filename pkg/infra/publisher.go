package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/fystack/storage-inspector/pkg/common/logger"
)

const msgIDHeader = "Nats-Msg-Id"

// MaxMsgSize bounds a published snapshot.
var MaxMsgSize = 1 << 20

type Publisher interface {
	Publish(ctx context.Context, subject string, message []byte, options *PublishOptions) error
	Close()
}

type PublishOptions struct {
	// IdempotencyKey lets JetStream drop a message it has already stored.
	IdempotencyKey string
}

type natsPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher publishes with core NATS, fire and forget.
func NewNATSPublisher(nc *nats.Conn) Publisher {
	return &natsPublisher{nc: nc}
}

func (p *natsPublisher) Publish(_ context.Context, subject string, message []byte, options *PublishOptions) error {
	if len(message) > MaxMsgSize {
		return fmt.Errorf("message of %d bytes exceeds %d", len(message), MaxMsgSize)
	}
	msg := &nats.Msg{Subject: subject, Data: message, Header: nats.Header{}}
	if options != nil && options.IdempotencyKey != "" {
		msg.Header.Set(msgIDHeader, options.IdempotencyKey)
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return p.nc.FlushTimeout(5 * time.Second)
}

func (p *natsPublisher) Close() {
	p.nc.Close()
}

type jetStreamPublisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewJetStreamPublisher makes sure stream exists for subjects and publishes
// into it, waiting for the server ack.
func NewJetStreamPublisher(ctx context.Context, nc *nats.Conn, stream string, subjects []string) (Publisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        stream,
		Description: "Stream for " + stream,
		Subjects:    subjects,
		MaxMsgSize:  int32(MaxMsgSize),
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Duplicates:  time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("create JetStream stream %s: %w", stream, err)
	}
	logger.Info("JetStream stream ready", "stream", stream, "subjects", subjects)

	return &jetStreamPublisher{nc: nc, js: js}, nil
}

func (p *jetStreamPublisher) Publish(ctx context.Context, subject string, message []byte, options *PublishOptions) error {
	var opts []jetstream.PublishOpt
	if options != nil && options.IdempotencyKey != "" {
		opts = append(opts, jetstream.WithMsgID(options.IdempotencyKey))
	}

	ack, err := p.js.Publish(ctx, subject, message, opts...)
	if err != nil {
		return fmt.Errorf("error publishing message: %w", err)
	}
	if ack.Duplicate {
		logger.Debug("Snapshot already published", "subject", subject, "seq", ack.Sequence)
	}
	return nil
}

func (p *jetStreamPublisher) Close() {
	p.nc.Close()
}
