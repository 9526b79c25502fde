// Package enrichment attaches geolocation, reverse-DNS and threat-intel
// context to IP-bearing fields of parsed events, then persists the result.
// Lookup failures degrade to absent fields; only a persistence failure aborts
// an event.
package enrichment

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/harrierlabs/harrier/internal/logging"
	"github.com/harrierlabs/harrier/internal/metrics"
	"github.com/harrierlabs/harrier/internal/models"
)

// ipFields are the field names scanned for enrichable IP addresses.
var ipFields = []string{"src_ip", "dst_ip", "client_ip", "remote_ip"}

// TagMaliciousIP marks events whose IP fields matched the threat-intel set.
const TagMaliciousIP = "malicious_ip"

// EventStore is the persistence surface the enricher needs.
type EventStore interface {
	AppendEnriched(ctx context.Context, event *models.EnrichedEvent) (string, error)
}

// Enricher runs the enrichment step. The geo locator, reverse resolver and
// threat feed are injected so workers can carry their own instances and tests
// can use doubles.
type Enricher struct {
	store      EventStore
	geo        GeoLocator
	resolver   ReverseResolver
	threat     ThreatIntel
	logger     *logging.Logger
	dnsTimeout time.Duration
	geoTimeout time.Duration

	// Per-process reverse-DNS memo. A failed lookup is cached as "" and
	// never retried for the lifetime of the process.
	mu       sync.Mutex
	dnsCache map[string]string
}

// Config holds enricher settings.
type Config struct {
	DNSTimeout time.Duration
	GeoTimeout time.Duration
}

// New creates an Enricher. geo, resolver and threat may be nil, disabling the
// corresponding lookup.
func New(store EventStore, geo GeoLocator, resolver ReverseResolver, threat ThreatIntel, cfg Config, logger *logging.Logger) *Enricher {
	if cfg.DNSTimeout == 0 {
		cfg.DNSTimeout = 2 * time.Second
	}
	if cfg.GeoTimeout == 0 {
		cfg.GeoTimeout = 2 * time.Second
	}
	return &Enricher{
		store:      store,
		geo:        geo,
		resolver:   resolver,
		threat:     threat,
		logger:     logger,
		dnsTimeout: cfg.DNSTimeout,
		geoTimeout: cfg.GeoTimeout,
		dnsCache:   make(map[string]string),
	}
}

// Enrich assembles the enrichment bag for a parsed event and persists the
// resulting EnrichedEvent. Safe to run twice for the same raw record: it only
// ever appends. Returns an error only when the store rejects the write.
func (e *Enricher) Enrich(ctx context.Context, raw *models.RawRecord, parsed *models.ParsedEvent) (*models.EnrichedEvent, error) {
	enrichment := models.Enrichment{}

	for _, field := range ipFields {
		value, ok := parsed.Fields[field]
		if !ok {
			continue
		}
		addr, err := netip.ParseAddr(value)
		if err != nil {
			continue
		}

		ipCtx := models.IPContext{}
		if geo := e.lookupGeo(ctx, addr); geo != nil {
			ipCtx.GeoIP = geo
		}
		if hostname := e.resolveHostname(ctx, value); hostname != "" {
			ipCtx.Hostname = hostname
		}

		if enrichment.IPs == nil {
			enrichment.IPs = make(map[string]models.IPContext)
		}
		enrichment.IPs[field] = ipCtx
	}

	if e.checkThreatIntel(parsed.Fields) {
		enrichment.ThreatTags = append(enrichment.ThreatTags, TagMaliciousIP)
	}

	event := &models.EnrichedEvent{
		RawID:      raw.ID,
		Timestamp:  parsed.Timestamp,
		Source:     raw.Source,
		Host:       raw.Host,
		EventType:  parsed.EventType,
		Message:    parsed.Message,
		Enrichment: enrichment,
		Fields:     parsed.Fields,
	}

	id, err := e.store.AppendEnriched(ctx, event)
	if err != nil {
		metrics.StorageErrors.Inc()
		return nil, fmt.Errorf("persist enriched event for raw %s: %w", raw.ID, err)
	}
	event.ID = id

	e.logger.InfoContext(ctx, "enriched event persisted", "event_id", id, "raw_id", raw.ID, "event_type", event.EventType)
	return event, nil
}

// lookupGeo returns geolocation for addr, or nil when unavailable. Private,
// loopback and link-local addresses get the sentinel result without touching
// the database.
func (e *Enricher) lookupGeo(ctx context.Context, addr netip.Addr) *models.GeoInfo {
	if isPrivateAddr(addr) {
		return privateGeoInfo()
	}
	if e.geo == nil {
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.geoTimeout)
	defer cancel()

	info, err := e.geo.Lookup(lookupCtx, addr)
	if err != nil {
		metrics.EnrichmentLookupFailures.WithLabelValues("geoip").Inc()
		e.logger.Warn("geoip lookup failed", "ip", addr.String(), "error", err)
		return nil
	}
	return info
}

// resolveHostname returns the reverse-DNS name for ip, memoized per process.
// A lookup failure is cached as no-hostname and never retried.
func (e *Enricher) resolveHostname(ctx context.Context, ip string) string {
	e.mu.Lock()
	if hostname, ok := e.dnsCache[ip]; ok {
		e.mu.Unlock()
		metrics.DNSCacheHits.Inc()
		return hostname
	}
	e.mu.Unlock()

	hostname := ""
	if e.resolver != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, e.dnsTimeout)
		defer cancel()

		names, err := e.resolver.LookupAddr(lookupCtx, ip)
		if err != nil {
			metrics.EnrichmentLookupFailures.WithLabelValues("dns").Inc()
			e.logger.Debug("reverse lookup failed", "ip", ip, "error", err)
		} else {
			hostname = firstHostname(names)
		}
	}

	e.mu.Lock()
	e.dnsCache[ip] = hostname
	e.mu.Unlock()

	return hostname
}

// checkThreatIntel reports whether any IP-bearing field matches the
// known-bad set. One match tags the whole event regardless of which field
// matched.
func (e *Enricher) checkThreatIntel(fields map[string]string) bool {
	if e.threat == nil {
		return false
	}
	for _, field := range ipFields {
		if value, ok := fields[field]; ok && e.threat.Contains(value) {
			return true
		}
	}
	return false
}
