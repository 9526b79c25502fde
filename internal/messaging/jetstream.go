package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/harrierlabs/harrier/internal/logging"
	"github.com/harrierlabs/harrier/internal/metrics"
)

// EventsStream is the durable work queue for raw event processing. Work
// queue retention means each notice is delivered to exactly one worker and
// removed once acknowledged.
var EventsStream = StreamConfig{
	Name:      "HARRIER_EVENTS",
	Subjects:  []string{"harrier.events.>"},
	MaxAge:    24 * time.Hour,
	MaxBytes:  1024 * 1024 * 1024,
	MaxMsgs:   1_000_000,
	Retention: jetstream.WorkQueuePolicy,
	Storage:   jetstream.FileStorage,
}

// EnrichConsumer is the durable consumer shared by the enrichment worker
// pool.
var EnrichConsumer = ConsumerConfig{
	Name:          "enrich-workers",
	FilterSubject: SubjectEventsRaw,
	AckWait:       30 * time.Second,
	MaxDeliver:    5,
	MaxAckPending: 100,
}

// StreamConfig defines a JetStream stream.
type StreamConfig struct {
	Name      string
	Subjects  []string
	MaxAge    time.Duration
	MaxBytes  int64
	MaxMsgs   int64
	Retention jetstream.RetentionPolicy
	Storage   jetstream.StorageType
}

// ConsumerConfig defines a durable JetStream consumer.
type ConsumerConfig struct {
	Name          string
	FilterSubject string
	AckWait       time.Duration
	MaxDeliver    int
	MaxAckPending int
}

// JetStreamClient extends Client with JetStream persistence.
type JetStreamClient struct {
	*Client
	js jetstream.JetStream
}

// NewJetStreamClient creates a JetStream-enabled client.
func NewJetStreamClient(cfg Config, logger *logging.Logger) (*JetStreamClient, error) {
	client, err := NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(client.conn)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &JetStreamClient{Client: client, js: js}, nil
}

// EnsureStream creates or updates a stream.
func (c *JetStreamClient) EnsureStream(ctx context.Context, cfg StreamConfig) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		MaxAge:    cfg.MaxAge,
		MaxBytes:  cfg.MaxBytes,
		MaxMsgs:   cfg.MaxMsgs,
		Retention: cfg.Retention,
		Storage:   cfg.Storage,
	})
	if err != nil {
		return fmt.Errorf("failed to create/update stream %s: %w", cfg.Name, err)
	}
	return nil
}

// EnsureConsumer creates or updates a durable consumer on the stream.
func (c *JetStreamClient) EnsureConsumer(ctx context.Context, streamName string, cfg ConsumerConfig) error {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return fmt.Errorf("failed to get stream %s: %w", streamName, err)
	}

	_, err = stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          cfg.Name,
		Durable:       cfg.Name,
		FilterSubject: cfg.FilterSubject,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: cfg.MaxAckPending,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create/update consumer %s: %w", cfg.Name, err)
	}

	return nil
}

// PublishSync publishes a message and waits for the stream acknowledgment.
func (c *JetStreamClient) PublishSync(ctx context.Context, subject string, data []byte) error {
	if _, err := c.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Consume starts consuming messages from a durable consumer. A handler error
// NAKs the message with a delay so it is redelivered; success acknowledges
// it. The returned stop function halts consumption.
func (c *JetStreamClient) Consume(ctx context.Context, streamName, consumerName string, handler MessageHandler) (func(), error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s: %w", streamName, err)
	}

	consumer, err := stream.Consumer(ctx, consumerName)
	if err != nil {
		return nil, fmt.Errorf("failed to get consumer %s: %w", consumerName, err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		m := &Message{
			Subject:   msg.Subject(),
			Data:      msg.Data(),
			Timestamp: time.Now(),
		}

		if headers := msg.Headers(); headers != nil {
			m.Metadata = make(map[string]string)
			for k := range headers {
				m.Metadata[k] = headers.Get(k)
			}
		}

		if err := handler(consumeCtx, m); err != nil {
			metrics.QueueRedeliveries.Inc()
			_ = msg.NakWithDelay(5 * time.Second)
			return
		}

		_ = msg.Ack()
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	return func() {
		cancel()
		cons.Stop()
	}, nil
}
