package ntp

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/maximewewer/ntp-sync/pkg/logger"
)

// dnsEntry is a cached resolution for one hostname
type dnsEntry struct {
	ips        []string
	expiresAt  time.Time
	ttl        time.Duration
	errorCount int
}

// DNSCache caches hostname lookups for time servers. Entries that resolved
// cleanly before get the long TTL; entries with recent failures get the
// short one. A failed refresh falls back to the stale addresses.
type DNSCache struct {
	mu     sync.RWMutex
	cache  map[string]*dnsEntry
	minTTL time.Duration
	maxTTL time.Duration
	lookup func(ctx context.Context, host string) ([]string, error)
}

// DNSCacheConfig configures the DNS cache behavior
type DNSCacheConfig struct {
	MinTTL time.Duration // default: 5min
	MaxTTL time.Duration // default: 60min
}

// NewDNSCache creates a DNS cache backed by the pure-Go resolver
func NewDNSCache(config DNSCacheConfig) *DNSCache {
	if config.MinTTL == 0 {
		config.MinTTL = 5 * time.Minute
	}
	if config.MaxTTL == 0 {
		config.MaxTTL = 60 * time.Minute
	}

	resolver := &net.Resolver{PreferGo: true}

	return &DNSCache{
		cache:  make(map[string]*dnsEntry),
		minTTL: config.MinTTL,
		maxTTL: config.MaxTTL,
		lookup: resolver.LookupHost,
	}
}

// Resolve returns the addresses for hostname
func (c *DNSCache) Resolve(ctx context.Context, hostname string) ([]string, error) {
	if net.ParseIP(hostname) != nil {
		return []string{hostname}, nil
	}

	c.mu.RLock()
	entry, exists := c.cache[hostname]
	var stale []string
	var fresh bool
	if exists {
		stale = entry.ips
		fresh = time.Now().Before(entry.expiresAt)
	}
	c.mu.RUnlock()

	if fresh {
		return stale, nil
	}

	ips, err := c.lookup(ctx, hostname)
	if err != nil {
		if exists {
			c.mu.Lock()
			entry.errorCount++
			count := entry.errorCount
			c.mu.Unlock()

			logger.SafeWarn("dns", "Resolution failed, using stale addresses", map[string]interface{}{
				"hostname":    hostname,
				"error":       err.Error(),
				"error_count": count,
			})
			return stale, nil
		}
		return nil, err
	}

	ttl := (c.minTTL + c.maxTTL) / 2
	if exists {
		c.mu.RLock()
		hadErrors := entry.errorCount > 0
		c.mu.RUnlock()
		if hadErrors {
			ttl = c.minTTL
		} else {
			ttl = c.maxTTL
		}
	}

	c.mu.Lock()
	c.cache[hostname] = &dnsEntry{
		ips:       ips,
		expiresAt: time.Now().Add(ttl),
		ttl:       ttl,
	}
	c.mu.Unlock()

	logger.SafeDebug("dns", "DNS cache updated", map[string]interface{}{
		"hostname": hostname,
		"ips":      len(ips),
		"ttl":      ttl.String(),
	})

	return ips, nil
}

// Invalidate removes a hostname from the cache
func (c *DNSCache) Invalidate(hostname string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.cache, hostname)
}

// Len returns the number of cached hostnames
func (c *DNSCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.cache)
}

// CleanupExpired removes expired entries and returns how many were dropped
func (c *DNSCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for hostname, entry := range c.cache {
		if now.After(entry.expiresAt) {
			delete(c.cache, hostname)
			removed++
		}
	}

	return removed
}

// StartCleanupWorker periodically drops expired entries until ctx is done
func (c *DNSCache) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	if interval == 0 {
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := c.CleanupExpired(); removed > 0 {
				logger.SafeDebug("dns", "Cleaned up expired DNS entries", map[string]interface{}{
					"removed": removed,
				})
			}
		}
	}
}
