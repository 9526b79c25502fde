package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/harrierlabs/harrier/internal/config"
	"github.com/harrierlabs/harrier/internal/enrichment"
	"github.com/harrierlabs/harrier/internal/extractor"
	"github.com/harrierlabs/harrier/internal/logging"
	"github.com/harrierlabs/harrier/internal/repository"
)

// pipeline bundles the dependencies shared by the serve, worker and
// reconcile commands.
type pipeline struct {
	cfg       *config.Config
	logger    *logging.Logger
	repo      *repository.PostgresRepository
	extractor *extractor.Extractor
	enricher  *enrichment.Enricher

	geoLocator *enrichment.MaxMindLocator
	threatFeed *enrichment.RedisThreatFeed
	redis      *redis.Client
}

// buildPipeline loads configuration and constructs everything up to and
// including the enricher. The caller owns shutdown via close().
func buildPipeline(ctx context.Context) (*pipeline, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	logging.SetDefault(logger)

	repo, err := repository.NewPostgresRepository(ctx, cfg.Database.Postgres.ConnString())
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	p := &pipeline{cfg: cfg, logger: logger, repo: repo}

	patterns := extractor.DefaultPatterns()
	if cfg.Extractor.PatternsFile != "" {
		patterns, err = extractor.LoadPatternsFile(cfg.Extractor.PatternsFile)
		if err != nil {
			p.close()
			return nil, fmt.Errorf("load extraction patterns: %w", err)
		}
		logger.Info("loaded extraction patterns", "file", cfg.Extractor.PatternsFile, "count", len(patterns))
	}
	p.extractor = extractor.New(patterns, logger)

	enrichedStore, err := p.enrichedStore(ctx)
	if err != nil {
		p.close()
		return nil, err
	}

	geo := p.geoLocatorFromConfig()
	threat := p.threatIntelFromConfig(ctx)

	p.enricher = enrichment.New(
		enrichedStore,
		geo,
		enrichment.NewNetResolver(),
		threat,
		enrichment.Config{
			DNSTimeout: cfg.Enrichment.DNSTimeout,
			GeoTimeout: cfg.GeoIP.Timeout,
		},
		logger,
	)

	return p, nil
}

// enrichedStore picks the enriched-event backend. Alerts, rules and raws
// always live in postgres.
func (p *pipeline) enrichedStore(ctx context.Context) (enrichment.EventStore, error) {
	switch p.cfg.Storage.Backend {
	case "postgres", "":
		return p.repo, nil
	case "opensearch":
		store, err := repository.NewOpenSearchStore(ctx, repository.OpenSearchConfig{
			URL:      p.cfg.Storage.OpenSearch.URL,
			Username: p.cfg.Storage.OpenSearch.Username,
			Password: p.cfg.Storage.OpenSearch.Password,
			Insecure: p.cfg.Storage.OpenSearch.Insecure,
			Index:    p.cfg.Storage.OpenSearch.Index,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to opensearch: %w", err)
		}
		p.logger.Info("using opensearch enriched-event store", "index", p.cfg.Storage.OpenSearch.Index)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", p.cfg.Storage.Backend)
	}
}

// geoLocatorFromConfig opens the MaxMind database if present. A missing
// database disables geolocation rather than failing startup.
func (p *pipeline) geoLocatorFromConfig() enrichment.GeoLocator {
	path := p.cfg.GeoIP.DatabasePath
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		p.logger.Warn("geoip database not found, geolocation disabled", "path", path)
		return nil
	}

	locator, err := enrichment.NewMaxMindLocator(path)
	if err != nil {
		p.logger.Warn("failed to open geoip database, geolocation disabled", "path", path, "error", err)
		return nil
	}

	p.geoLocator = locator
	return locator
}

// threatIntelFromConfig builds the threat feed: a redis-backed set kept warm
// in the background when enabled, otherwise the static list from config.
func (p *pipeline) threatIntelFromConfig(ctx context.Context) enrichment.ThreatIntel {
	if !p.cfg.Redis.Enabled {
		if len(p.cfg.Enrichment.ThreatIPs) == 0 {
			return nil
		}
		return enrichment.NewStaticThreatSet(p.cfg.Enrichment.ThreatIPs)
	}

	opts, err := redis.ParseURL(p.cfg.Redis.URL)
	if err != nil {
		p.logger.Warn("invalid redis url, threat feed disabled", "error", err)
		return nil
	}

	p.redis = redis.NewClient(opts)
	p.threatFeed = enrichment.NewRedisThreatFeed(p.redis, p.cfg.Redis.ThreatSetKey, p.logger)
	go p.threatFeed.Run(ctx, p.cfg.Redis.RefreshInterval)

	return p.threatFeed
}

func (p *pipeline) close() {
	if p.geoLocator != nil {
		if err := p.geoLocator.Close(); err != nil {
			p.logger.Warn("failed to close geoip database", "error", err)
		}
	}
	if p.redis != nil {
		if err := p.redis.Close(); err != nil {
			p.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if p.repo != nil {
		_ = p.repo.Close()
	}
}
