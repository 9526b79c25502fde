package enrichment

import (
	"context"
	"net"
	"strings"
)

// ReverseResolver performs reverse-DNS lookups. The context carries the
// per-lookup timeout.
type ReverseResolver interface {
	LookupAddr(ctx context.Context, ip string) ([]string, error)
}

// NetResolver is the default ReverseResolver backed by net.Resolver.
type NetResolver struct {
	resolver net.Resolver
}

// NewNetResolver creates a resolver using the system DNS configuration.
func NewNetResolver() *NetResolver {
	return &NetResolver{}
}

// LookupAddr resolves ip to hostnames.
func (r *NetResolver) LookupAddr(ctx context.Context, ip string) ([]string, error) {
	return r.resolver.LookupAddr(ctx, ip)
}

// firstHostname picks the primary name from a reverse lookup result,
// trimming the trailing dot DNS answers carry.
func firstHostname(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}
