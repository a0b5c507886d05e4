// Package ratelimit throttles booking attempts per client IP and per customer.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds rate limit configuration.
type Config struct {
	Window          time.Duration // Length of the counting window (default: 1m)
	MaxPerIP        int           // Booking attempts per client IP per window (default: 30)
	MaxPerCustomer  int           // Booking attempts per customer email per window (default: 10)
	CleanupInterval time.Duration // How often idle entries are dropped (default: 5m)
	Clock           Clock         // nil uses real time
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		Window:          time.Minute,
		MaxPerIP:        30,
		MaxPerCustomer:  10,
		CleanupInterval: 5 * time.Minute,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string // For logging
}

// window counts attempts in one fixed window.
type window struct {
	count   int
	firstAt time.Time
	lastAt  time.Time
}

// Limiter counts booking attempts in fixed windows. Rejected attempts are not counted.
type Limiter struct {
	config *Config
	clock  Clock
	mu     sync.Mutex
	// Keyed by hash of IP or customer email
	byIP       map[string]*window
	byCustomer map[string]*window

	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

// New creates a new rate limiter with the given config. Zero fields take defaults.
func New(cfg *Config) *Limiter {
	merged := DefaultConfig()
	if cfg != nil {
		if cfg.Window > 0 {
			merged.Window = cfg.Window
		}
		if cfg.MaxPerIP > 0 {
			merged.MaxPerIP = cfg.MaxPerIP
		}
		if cfg.MaxPerCustomer > 0 {
			merged.MaxPerCustomer = cfg.MaxPerCustomer
		}
		if cfg.CleanupInterval > 0 {
			merged.CleanupInterval = cfg.CleanupInterval
		}
		merged.Clock = cfg.Clock
	}
	clock := merged.Clock
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        merged,
		clock:         clock,
		byIP:          make(map[string]*window),
		byCustomer:    make(map[string]*window),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine and releases resources.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// AllowBookingAttempt checks both limits and, when allowed, records the attempt against both.
// An empty customer is only limited by IP.
func (l *Limiter) AllowBookingAttempt(customer, ip string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	ipKey := hashKey("ip:", ip)
	customerKey := ""
	if c := normalizeIdentifier(customer); c != "" {
		customerKey = hashKey("customer:", c)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if res := l.check(l.byIP[ipKey], l.config.MaxPerIP, now, "ip_limit"); !res.Allowed {
		return res
	}
	if customerKey != "" {
		if res := l.check(l.byCustomer[customerKey], l.config.MaxPerCustomer, now, "customer_limit"); !res.Allowed {
			return res
		}
	}

	l.byIP[ipKey] = l.record(l.byIP[ipKey], now)
	if customerKey != "" {
		l.byCustomer[customerKey] = l.record(l.byCustomer[customerKey], now)
	}
	return LimitResult{Allowed: true}
}

func (l *Limiter) check(w *window, limit int, now time.Time, reason string) LimitResult {
	if w == nil {
		return LimitResult{Allowed: true}
	}
	elapsed := now.Sub(w.firstAt)
	if elapsed < l.config.Window && w.count >= limit {
		return LimitResult{Allowed: false, RetryAfter: l.config.Window - elapsed, Reason: reason}
	}
	return LimitResult{Allowed: true}
}

func (l *Limiter) record(w *window, now time.Time) *window {
	if w == nil || now.Sub(w.firstAt) >= l.config.Window {
		return &window{count: 1, firstAt: now, lastAt: now}
	}
	w.count++
	w.lastAt = now
	return w
}

func hashKey(prefix, value string) string {
	hash := sha256.Sum256([]byte(value))
	return prefix + hex.EncodeToString(hash[:8])
}

// normalizeIdentifier lowercases the identifier to prevent case-based bypass.
func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(l.config.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, m := range []map[string]*window{l.byIP, l.byCustomer} {
		for k, w := range m {
			if now.Sub(w.lastAt) > l.config.Window {
				delete(m, k)
			}
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byIP) + len(l.byCustomer)
}

// GetClientIP extracts the client IP from a request.
// When trustProxy is true, uses the rightmost public IP from X-Forwarded-For.
// When trustProxy is false, ignores forwarding headers entirely.
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				ip := strings.TrimSpace(parts[i])
				if ip != "" && !isPrivateIP(ip) {
					return ip
				}
			}
			return strings.TrimSpace(parts[len(parts)-1])
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

var privateNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid private CIDR: " + cidr)
		}
		networks = append(networks, network)
	}
	return networks
}

// isPrivateIP reports whether ipStr is in a private or loopback range. IPv4-mapped IPv6
// addresses match their IPv4 form.
func isPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	if ipv4 := ip.To4(); ipv4 != nil {
		ip = ipv4
	}
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// MaskEmail hides most of the local part of an email address for logging.
func MaskEmail(email string) string {
	email = normalizeIdentifier(email)
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}

// LogRateLimitExceeded logs a rejected booking attempt with a masked customer email.
func LogRateLimitExceeded(ctx context.Context, customer, ip string, res LimitResult) {
	log.Ctx(ctx).Warn().
		Str("event", "rate_limit_exceeded").
		Str("customer", MaskEmail(customer)).
		Str("ip", ip).
		Str("reason", res.Reason).
		Dur("retry_after", res.RetryAfter).
		Msg("Booking attempt rate limit exceeded")
}
