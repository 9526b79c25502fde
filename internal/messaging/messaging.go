// Package messaging provides the NATS-backed transport for asynchronous
// event processing. Ingest publishes raw event IDs; enrichment workers
// consume them from a durable work queue.
package messaging

import (
	"context"
	"time"
)

// Subject constants for the event pipeline.
// Follow the pattern: {domain}.{resource}.{action}
const (
	// SubjectEventsRaw carries IDs of freshly persisted raw events awaiting
	// processing.
	SubjectEventsRaw = "harrier.events.raw"

	// SubjectAlertsFired announces fired alerts for interested listeners.
	SubjectAlertsFired = "harrier.alerts.fired"
)

// Queue group names for load-balanced consumers.
const (
	// QueueEnrichWorkers is the pool of extraction/enrichment workers.
	// Workers in the group share the queue; each message is processed once.
	QueueEnrichWorkers = "enrich-workers"
)

// Message represents a message received from or sent to the broker.
type Message struct {
	// Subject is the topic the message was published to.
	Subject string

	// Data is the raw message payload.
	Data []byte

	// Metadata contains optional key-value pairs from message headers.
	Metadata map[string]string

	// Timestamp is when the message was received.
	Timestamp time.Time
}

// MessageHandler processes a received message. Returning an error signals
// processing failure; the work-queue consumer will redeliver after a delay.
type MessageHandler func(ctx context.Context, msg *Message) error

// RawEventNotice is the payload published for each persisted raw event.
type RawEventNotice struct {
	RawID string `json:"raw_id"`
}
