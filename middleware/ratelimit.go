package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/upb/kudos-portal/internal/observability"
	"github.com/upb/kudos-portal/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	guardLoginThrottle = "login_throttle"

	// Upper bound on tracked keys per limiter. New keys past it are refused.
	maxLimiterKeys = 100_000
	maxLoginForm   = 64 << 10
)

type keyedLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	maxKeys int
	entries map[string]*limBucket
}

type limBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newKeyedLimiter(limit rate.Limit, burst int, ttl time.Duration) *keyedLimiter {
	if burst < 1 {
		burst = 1
	}
	return &keyedLimiter{
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
		maxKeys: maxLimiterKeys,
		entries: make(map[string]*limBucket),
	}
}

func (l *keyedLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.entries[key]
	if b == nil {
		if len(l.entries) >= l.maxKeys {
			return false
		}
		b = &limBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = b
	}
	b.lastSeen = now
	return b.lim.Allow()
}

// prune forgets buckets idle for longer than ttl
func (l *keyedLimiter) prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range l.entries {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.entries, k)
		}
	}
}

func (l *keyedLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// LoginThrottle limits credential submissions per client IP and per
// submitted email. The email limit holds across IPs.
type LoginThrottle struct {
	byIP      *keyedLimiter
	byEmail   *keyedLimiter
	ttl       time.Duration
	loginPath string
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewLoginThrottle allows perMinute attempts per IP with the given burst and
// perEmail attempts per minute for any one email. A perEmail of zero disables
// the email limit. Idle buckets are forgotten after ttl once Run is started.
func NewLoginThrottle(perMinute, burst, perEmail int, ttl time.Duration, loginPath string, metrics *observability.Metrics, logger *zap.Logger) *LoginThrottle {
	t := &LoginThrottle{
		byIP:      newKeyedLimiter(perMinuteLimit(perMinute), burst, ttl),
		ttl:       ttl,
		loginPath: loginPath,
		metrics:   metrics,
		logger:    logger,
	}
	if perEmail > 0 {
		t.byEmail = newKeyedLimiter(perMinuteLimit(perEmail), perEmail, ttl)
	}
	return t
}

func perMinuteLimit(n int) rate.Limit {
	return rate.Limit(float64(n) / 60)
}

// Run prunes idle buckets until ctx is done
func (t *LoginThrottle) Run(ctx context.Context) {
	interval := t.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.prune(now)
		}
	}
}

func (t *LoginThrottle) prune(now time.Time) {
	t.byIP.prune(now)
	fields := []zap.Field{zap.Int("ip_keys", t.byIP.size())}
	if t.byEmail != nil {
		t.byEmail.prune(now)
		fields = append(fields, zap.Int("email_keys", t.byEmail.size()))
	}
	t.logger.Debug("login throttle pruned", fields...)
}

// Limit sends throttled clients back to the login form with a flash message
func (t *LoginThrottle) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !t.byIP.allow(ip) {
			t.reject(w, r, zap.String("ip_address", ip))
			return
		}

		if t.byEmail != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxLoginForm)
			if err := r.ParseForm(); err == nil {
				email := strings.ToLower(strings.TrimSpace(r.PostForm.Get("email")))
				if email != "" && !t.byEmail.allow(email) {
					t.reject(w, r, zap.String("ip_address", ip), zap.String("email", email))
					return
				}
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (t *LoginThrottle) reject(w http.ResponseWriter, r *http.Request, fields ...zap.Field) {
	t.metrics.RecordGuardDecision(guardLoginThrottle, "limited")
	t.logger.Warn("login attempts throttled",
		append(fields, zap.String("request_id", GetRequestIDFromContext(r.Context())))...)
	utils.Redirect(w, r, t.loginPath, "Too many login attempts, please wait a minute")
}
