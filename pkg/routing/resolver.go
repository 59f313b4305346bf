package routing

import (
	"context"
	"net"
	"sort"
)

// SeedResolver expands a seed host into candidate endpoints (spec §4.6 step
// 2(b): "DNS-resolve (or user-provided resolver) the seed").
type SeedResolver interface {
	Resolve(ctx context.Context, seed string) ([]string, error)
}

// DNSResolver resolves a seed host via the standard resolver and reattaches
// the original port to every returned address.
type DNSResolver struct {
	LookupHost func(ctx context.Context, host string) ([]string, error)
}

// NewDNSResolver returns a DNSResolver backed by net.DefaultResolver.
func NewDNSResolver() *DNSResolver {
	return &DNSResolver{LookupHost: net.DefaultResolver.LookupHost}
}

func (d *DNSResolver) Resolve(ctx context.Context, seed string) ([]string, error) {
	host, port, err := net.SplitHostPort(seed)
	if err != nil {
		host, port = seed, "7687"
	}
	ips, err := d.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	sort.Strings(ips) // deterministic candidate order across identical lookups
	out := make([]string, len(ips))
	for i, ip := range ips {
		out[i] = net.JoinHostPort(ip, port)
	}
	return out, nil
}

// UserResolver wraps a driver-supplied resolver function (spec §6.6
// "resolver: fn").
type UserResolver func(seed string) ([]string, error)

func (f UserResolver) Resolve(_ context.Context, seed string) ([]string, error) {
	return f(seed)
}

// ChainResolver tries a user-supplied resolver first (if any), falling back
// to DNS (spec §4.6 step 2(b)).
type ChainResolver struct {
	User SeedResolver
	DNS  SeedResolver
}

func NewChainResolver(user SeedResolver) *ChainResolver {
	return &ChainResolver{User: user, DNS: NewDNSResolver()}
}

func (c *ChainResolver) Resolve(ctx context.Context, seed string) ([]string, error) {
	if c.User != nil {
		addrs, err := c.User.Resolve(ctx, seed)
		if err == nil && len(addrs) > 0 {
			return addrs, nil
		}
	}
	return c.DNS.Resolve(ctx, seed)
}
