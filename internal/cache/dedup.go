package cache

import (
	"context"
	"time"
)

// Dedup suppresses repeat scheduler alerts: once a signature has been queued
// for a service, further sightings within the TTL are skipped instead of
// producing another investigation. Cache failures fail open — a signature is
// never swallowed because the cache was unreachable.
type Dedup struct {
	provider Provider
	ttl      time.Duration
}

// NewDedup builds a dedup window over the given cache provider.
func NewDedup(provider Provider, ttl time.Duration) *Dedup {
	if provider == nil {
		provider = NoopProvider{}
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Dedup{provider: provider, ttl: ttl}
}

// Seen reports whether the signature was marked for this service within the
// TTL.
func (d *Dedup) Seen(ctx context.Context, service, signature string) bool {
	// Misses and cache errors both read as unseen.
	_, err := d.provider.Get(ctx, dedupKey(service, signature))
	return err == nil
}

// Mark records the signature as recently queued for this service.
func (d *Dedup) Mark(ctx context.Context, service, signature string) error {
	return d.provider.Set(ctx, dedupKey(service, signature), []byte("1"), d.ttl)
}

func dedupKey(service, signature string) string {
	return "dinewatch:seen:" + service + ":" + signature
}
