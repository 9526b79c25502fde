package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrierlabs/harrier/internal/ingest"
)

func newReconcileCmd() *cobra.Command {
	var olderThan time.Duration
	var limit int

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reprocess raw events that never produced an enriched event",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context(), olderThan, limit)
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 10*time.Minute, "only consider raws received before now minus this duration")
	cmd.Flags().IntVar(&limit, "limit", 1000, "maximum raws to reprocess in one pass")
	return cmd
}

func runReconcile(ctx context.Context, olderThan time.Duration, limit int) error {
	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	svc := ingest.NewService(p.repo, p.extractor, p.enricher, nil, p.logger)

	recovered, err := svc.Reconcile(ctx, olderThan, limit)
	if err != nil {
		return err
	}

	p.logger.Info("reconcile finished", "recovered", recovered)
	return nil
}
