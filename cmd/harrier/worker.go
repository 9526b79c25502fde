package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrierlabs/harrier/internal/ingest"
	"github.com/harrierlabs/harrier/internal/messaging"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run an enrichment worker consuming the event work queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	js, err := messaging.NewJetStreamClient(messaging.Config{
		URL:           p.cfg.NATS.URL,
		Name:          p.cfg.NATS.Name + "-worker",
		MaxReconnects: p.cfg.NATS.MaxReconnects,
		ReconnectWait: p.cfg.NATS.ReconnectWait,
		Timeout:       p.cfg.NATS.Timeout,
	}, p.logger)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer js.Close()

	svc := ingest.NewService(p.repo, p.extractor, p.enricher, nil, p.logger)

	worker := ingest.NewWorker(svc, js, p.logger)
	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer worker.Stop()

	<-ctx.Done()
	p.logger.Info("worker shutting down")
	return nil
}
