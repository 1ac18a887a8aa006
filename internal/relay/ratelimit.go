package relay

import (
	"net"
	"sync"

	"golang.org/x/time/rate"
)

// Rate-limit tiers (spec.md §6 "relay endpoints are rate-limited per
// caller IP"): submitting endpoints are scarcer than read-only ones.
const (
	relayBurst      = 3
	relayPerMinute  = 10
	readOnlyBurst   = 10
	readOnlyPerMin  = 100
)

// perMinute converts a requests-per-minute budget to a rate.Limit.
func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

// IPLimiter issues a token-bucket limiter per caller IP, one bucket set
// for submitting ("relay") endpoints and one for read-only endpoints.
// Loopback callers (local tooling, health checks) are exempt.
type IPLimiter struct {
	mu        sync.Mutex
	relay     map[string]*rate.Limiter
	readOnly  map[string]*rate.Limiter
}

// NewIPLimiter creates an empty limiter set.
func NewIPLimiter() *IPLimiter {
	return &IPLimiter{
		relay:    make(map[string]*rate.Limiter),
		readOnly: make(map[string]*rate.Limiter),
	}
}

// AllowRelay reports whether ip may proceed with a submitting request.
func (l *IPLimiter) AllowRelay(ip string) bool {
	if isLoopback(ip) {
		return true
	}
	return l.limiterFor(l.relay, ip, relayBurst, perMinute(relayPerMinute)).Allow()
}

// AllowReadOnly reports whether ip may proceed with a read-only request.
func (l *IPLimiter) AllowReadOnly(ip string) bool {
	if isLoopback(ip) {
		return true
	}
	return l.limiterFor(l.readOnly, ip, readOnlyBurst, perMinute(readOnlyPerMin)).Allow()
}

func (l *IPLimiter) limiterFor(set map[string]*rate.Limiter, ip string, burst int, limit rate.Limit) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := set[ip]
	if !ok {
		lim = rate.NewLimiter(limit, burst)
		set[ip] = lim
	}
	return lim
}

func isLoopback(ip string) bool {
	host := ip
	if h, _, err := net.SplitHostPort(ip); err == nil {
		host = h
	}
	parsed := net.ParseIP(host)
	return parsed != nil && parsed.IsLoopback()
}
