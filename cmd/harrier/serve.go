package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/harrierlabs/harrier/internal/evaluator"
	"github.com/harrierlabs/harrier/internal/handlers"
	"github.com/harrierlabs/harrier/internal/health"
	"github.com/harrierlabs/harrier/internal/ingest"
	"github.com/harrierlabs/harrier/internal/messaging"
	"github.com/harrierlabs/harrier/internal/notification"
	"github.com/harrierlabs/harrier/internal/scheduler"
	"github.com/harrierlabs/harrier/internal/server"
)

func newServeCmd() *cobra.Command {
	var migrationsPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingest API server and rule evaluation scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), migrationsPath)
		},
	}

	cmd.Flags().StringVar(&migrationsPath, "migrations", "file://migrations", "migrations source URL")
	return cmd
}

func runServe(ctx context.Context, migrationsPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	if err := runMigrations(migrationsPath, p.cfg.Database.Postgres.ConnString()); err != nil {
		return err
	}
	p.logger.Info("database migrations complete")

	var publisher ingest.Publisher
	var js *messaging.JetStreamClient
	if p.cfg.Ingest.Mode == "async" {
		js, err = messaging.NewJetStreamClient(messaging.Config{
			URL:           p.cfg.NATS.URL,
			Name:          p.cfg.NATS.Name,
			MaxReconnects: p.cfg.NATS.MaxReconnects,
			ReconnectWait: p.cfg.NATS.ReconnectWait,
			Timeout:       p.cfg.NATS.Timeout,
		}, p.logger)
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer js.Close()

		if err := js.EnsureStream(ctx, messaging.EventsStream); err != nil {
			return err
		}
		publisher = js
		p.logger.Info("async ingest mode, publishing to work queue")
	}

	svc := ingest.NewService(p.repo, p.extractor, p.enricher, publisher, p.logger)

	transport := notification.NewSMTPTransport(notification.SMTPConfig{
		Host:     p.cfg.SMTP.Host,
		Port:     p.cfg.SMTP.Port,
		Username: p.cfg.SMTP.Username,
		Password: p.cfg.SMTP.Password,
		From:     p.cfg.SMTP.From,
		Timeout:  p.cfg.SMTP.Timeout,
	})
	dispatcher := notification.NewDispatcher(transport, p.cfg.SMTP.From, p.logger)

	eval := evaluator.New(p.repo, p.repo, p.repo, dispatcher, p.logger)
	sched := scheduler.New(eval, p.cfg.Evaluator.Interval, p.logger)
	sched.Start(ctx)
	defer sched.Stop()

	if len(p.cfg.Health.Recipients) > 0 {
		var queue health.Queue
		if js != nil {
			queue = js
		}
		checker := health.New(p.repo, queue, dispatcher, p.cfg.Health.Recipients, p.cfg.Health.Interval, p.logger)
		checker.Start(ctx)
		defer checker.Stop()
	}

	h := handlers.New(svc, p.repo, p.repo, p.repo, p.logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", p.cfg.Server.Port),
		Handler:      server.NewRouter(h, p.cfg.Ingest.Token),
		ReadTimeout:  p.cfg.Server.ReadTimeout,
		WriteTimeout: p.cfg.Server.WriteTimeout,
		IdleTimeout:  p.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		p.logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	p.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func runMigrations(sourceURL, connString string) error {
	m, err := migrate.New(sourceURL, connString)
	if err != nil {
		return fmt.Errorf("initialize migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}
