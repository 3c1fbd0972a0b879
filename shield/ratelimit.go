package shield

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig defines the rate limit for a single endpoint.
type RateLimitConfig struct {
	MaxRequests   int
	WindowSeconds int
	Enabled       bool
}

type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// RateLimiter provides per-IP, per-endpoint fixed-window rate limiting.
// Rules live in the rate_limits table (see Schema) and are reloaded
// periodically; expired buckets are garbage collected.
type RateLimiter struct {
	db      *sql.DB
	logger  *slog.Logger
	now     func() time.Time
	rules   map[string]RateLimitConfig
	trusted []netip.Prefix
	buckets sync.Map
	mu      sync.RWMutex
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimitLogger sets the logger.
func WithRateLimitLogger(l *slog.Logger) RateLimiterOption {
	return func(rl *RateLimiter) { rl.logger = l }
}

// WithRateLimitClock overrides the clock used for windows.
func WithRateLimitClock(now func() time.Time) RateLimiterOption {
	return func(rl *RateLimiter) { rl.now = now }
}

// WithTrustedProxies lists the reverse proxies whose X-Forwarded-For header
// is believed. Requests from any other peer are keyed by RemoteAddr.
func WithTrustedProxies(prefixes []netip.Prefix) RateLimiterOption {
	return func(rl *RateLimiter) { rl.trusted = prefixes }
}

// ParseTrustedProxies parses CIDRs or bare addresses ("10.0.0.0/8",
// "127.0.0.1").
func ParseTrustedProxies(list []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
		}
		out = append(out, netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen()))
	}
	return out, nil
}

// NewRateLimiter loads the rules from db. Call StartReloader to refresh
// them in the background.
func NewRateLimiter(ctx context.Context, db *sql.DB, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		db:     db,
		logger: slog.Default(),
		now:    time.Now,
		rules:  make(map[string]RateLimitConfig),
	}
	for _, o := range opts {
		o(rl)
	}
	rl.Reload(ctx)
	return rl
}

// StartReloader reloads rules every minute and drops expired buckets every
// five minutes until ctx is done.
func (rl *RateLimiter) StartReloader(ctx context.Context) {
	reloadTick := time.NewTicker(time.Minute)
	gcTick := time.NewTicker(5 * time.Minute)
	go func() {
		defer reloadTick.Stop()
		defer gcTick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-reloadTick.C:
				rl.Reload(ctx)
			case <-gcTick.C:
				rl.gc()
			}
		}
	}()
}

// Reload replaces the rules with the current table content. On error the
// previous rules stay in force.
func (rl *RateLimiter) Reload(ctx context.Context) {
	rows, err := rl.db.QueryContext(ctx, `SELECT endpoint, max_requests, window_seconds, enabled FROM rate_limits`)
	if err != nil {
		rl.logger.Warn("ratelimit: failed to reload rules", "error", err)
		return
	}
	defer rows.Close()

	rules := make(map[string]RateLimitConfig)
	for rows.Next() {
		var endpoint string
		var cfg RateLimitConfig
		var enabled int
		if err := rows.Scan(&endpoint, &cfg.MaxRequests, &cfg.WindowSeconds, &enabled); err != nil {
			continue
		}
		cfg.Enabled = enabled == 1 && cfg.MaxRequests > 0 && cfg.WindowSeconds > 0
		rules[endpoint] = cfg
	}

	rl.mu.Lock()
	rl.rules = rules
	rl.mu.Unlock()
	rl.logger.Debug("ratelimit: rules reloaded", "count", len(rules))
}

func (rl *RateLimiter) gc() {
	now := rl.now()
	rl.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		expired := now.After(b.resetAt)
		b.mu.Unlock()
		if expired {
			rl.buckets.Delete(key)
		}
		return true
	})
}

// allow reports whether the request fits the window and, when it does
// not, how long until the window resets.
func (rl *RateLimiter) allow(ip, endpoint string) (bool, time.Duration) {
	rl.mu.RLock()
	cfg, ok := rl.rules[endpoint]
	rl.mu.RUnlock()
	if !ok || !cfg.Enabled {
		return true, 0
	}

	now := rl.now()
	window := time.Duration(cfg.WindowSeconds) * time.Second
	val, _ := rl.buckets.LoadOrStore(ip+" "+endpoint, &bucket{resetAt: now.Add(window)})
	b := val.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()
	if now.After(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(window)
	}
	b.count++
	if b.count <= cfg.MaxRequests {
		return true, 0
	}
	return false, b.resetAt.Sub(now)
}

// Middleware rejects requests over the limit with 429 and a JSON body.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.Method + " " + r.URL.Path
		ip := ExtractIP(r, rl.trusted)

		ok, wait := rl.allow(ip, endpoint)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		rl.logger.Warn("ratelimit: request blocked", "ip", ip, "endpoint", endpoint)
		secs := int(wait.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

// ExtractIP returns the client address of r. X-Forwarded-For is only read
// when the direct peer is one of trusted; the header is then walked from the
// right, skipping trusted hops, so a client cannot pick its own key by
// prepending entries.
func ExtractIP(r *http.Request, trusted []netip.Prefix) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if len(trusted) == 0 || !isTrusted(host, trusted) {
		return host
	}
	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !isTrusted(hop, trusted) {
			return hop
		}
		host = hop
	}
	return host
}

func isTrusted(addr string, trusted []netip.Prefix) bool {
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
