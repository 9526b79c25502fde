package enrichment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harrierlabs/harrier/internal/logging"
)

// ThreatIntel answers membership queries against a set of known-bad IPs.
type ThreatIntel interface {
	Contains(ip string) bool
}

// StaticThreatSet is a fixed in-memory threat list, typically seeded from
// configuration.
type StaticThreatSet struct {
	ips map[string]struct{}
}

// NewStaticThreatSet builds a set from the given IPs.
func NewStaticThreatSet(ips []string) *StaticThreatSet {
	set := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		set[ip] = struct{}{}
	}
	return &StaticThreatSet{ips: set}
}

// Contains reports whether ip is in the set.
func (s *StaticThreatSet) Contains(ip string) bool {
	_, ok := s.ips[ip]
	return ok
}

// RedisThreatFeed keeps a process-local copy of a threat-intel IP set stored
// in a redis set, refreshed on an interval. Each worker warms its own copy;
// there is no cross-process coherency requirement.
type RedisThreatFeed struct {
	client *redis.Client
	key    string
	logger *logging.Logger

	mu  sync.RWMutex
	ips map[string]struct{}
}

// NewRedisThreatFeed creates a feed reading from the redis set at key.
func NewRedisThreatFeed(client *redis.Client, key string, logger *logging.Logger) *RedisThreatFeed {
	return &RedisThreatFeed{
		client: client,
		key:    key,
		logger: logger,
		ips:    make(map[string]struct{}),
	}
}

// Refresh replaces the local copy with the current set members.
func (f *RedisThreatFeed) Refresh(ctx context.Context) error {
	members, err := f.client.SMembers(ctx, f.key).Result()
	if err != nil {
		return fmt.Errorf("fetch threat set %s: %w", f.key, err)
	}

	ips := make(map[string]struct{}, len(members))
	for _, m := range members {
		ips[m] = struct{}{}
	}

	f.mu.Lock()
	f.ips = ips
	f.mu.Unlock()

	f.logger.Debug("threat feed refreshed", "key", f.key, "count", len(ips))
	return nil
}

// Run refreshes the feed on the given interval until ctx is cancelled. An
// initial refresh happens immediately; refresh failures are logged and the
// previous copy stays in effect.
func (f *RedisThreatFeed) Run(ctx context.Context, interval time.Duration) {
	if err := f.Refresh(ctx); err != nil {
		f.logger.Warn("initial threat feed refresh failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.Refresh(ctx); err != nil {
				f.logger.Warn("threat feed refresh failed", "error", err)
			}
		}
	}
}

// Contains reports whether ip is in the local copy of the set.
func (f *RedisThreatFeed) Contains(ip string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.ips[ip]
	return ok
}
