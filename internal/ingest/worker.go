package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harrierlabs/harrier/internal/logging"
	"github.com/harrierlabs/harrier/internal/messaging"
)

// Worker consumes raw event notices from the durable work queue and runs
// processing for each. A processing failure leaves the message unacked so the
// queue redelivers it.
type Worker struct {
	service *Service
	client  *messaging.JetStreamClient
	logger  *logging.Logger
	stop    func()
}

// NewWorker creates a queue worker over the given service.
func NewWorker(service *Service, client *messaging.JetStreamClient, logger *logging.Logger) *Worker {
	return &Worker{service: service, client: client, logger: logger}
}

// Start ensures the stream and consumer exist and begins consuming. Processing
// is at-least-once: a worker crash after the enriched write but before the ack
// yields a duplicate enriched event, which reconciliation tolerates.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.client.EnsureStream(ctx, messaging.EventsStream); err != nil {
		return err
	}
	if err := w.client.EnsureConsumer(ctx, messaging.EventsStream.Name, messaging.EnrichConsumer); err != nil {
		return err
	}

	stop, err := w.client.Consume(ctx, messaging.EventsStream.Name, messaging.EnrichConsumer.Name, w.handle)
	if err != nil {
		return err
	}
	w.stop = stop

	w.logger.Info("enrichment worker started", "stream", messaging.EventsStream.Name, "consumer", messaging.EnrichConsumer.Name)
	return nil
}

// Stop halts consumption.
func (w *Worker) Stop() {
	if w.stop != nil {
		w.stop()
	}
}

func (w *Worker) handle(ctx context.Context, msg *messaging.Message) error {
	notice, err := decodeNotice(msg.Data)
	if err != nil {
		// A malformed notice will never parse; ack it by returning nil so
		// it does not loop through redelivery forever.
		w.logger.Error("dropping malformed raw event notice", "error", err)
		return nil
	}

	if err := w.service.ProcessByID(ctx, notice.RawID); err != nil {
		w.logger.Error("worker processing failed", "raw_id", notice.RawID, "error", err)
		return err
	}

	return nil
}

func encodeNotice(rawID string) ([]byte, error) {
	data, err := json.Marshal(messaging.RawEventNotice{RawID: rawID})
	if err != nil {
		return nil, fmt.Errorf("marshal raw event notice: %w", err)
	}
	return data, nil
}

func decodeNotice(data []byte) (*messaging.RawEventNotice, error) {
	var notice messaging.RawEventNotice
	if err := json.Unmarshal(data, &notice); err != nil {
		return nil, fmt.Errorf("unmarshal raw event notice: %w", err)
	}
	if notice.RawID == "" {
		return nil, fmt.Errorf("raw event notice missing raw_id")
	}
	return &notice, nil
}
