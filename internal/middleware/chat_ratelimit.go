package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AnshRaj112/campus-chat-backend/pkg/clientip"
	"golang.org/x/time/rate"
)

// Message send rate limit: per identity, falling back to the client IP for
// unauthenticated requests. Only POST .../messages is limited so history
// scrolling and conversation switching never hit 429.

const (
	sendLimiterCleanup = 5 * time.Minute
	sendLimiterTTL     = 30 * time.Minute
)

type chatLimiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// SendLimiter keeps one token bucket per sender.
type SendLimiter struct {
	perMinute int
	burst     int

	mu      sync.Mutex
	entries map[string]*chatLimiterEntry
	stop    chan struct{}
	once    sync.Once
}

// NewSendLimiter allows perMinute sends per sender with a burst of a quarter of that (at least 5).
func NewSendLimiter(perMinute int) *SendLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	burst := perMinute / 4
	if burst < 5 {
		burst = 5
	}
	l := &SendLimiter{
		perMinute: perMinute,
		burst:     burst,
		entries:   make(map[string]*chatLimiterEntry),
		stop:      make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *SendLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &chatLimiterEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(l.perMinute)/60), l.burst),
		}
		l.entries[key] = e
	}
	e.lastUse = time.Now()
	return e.limiter
}

func (l *SendLimiter) cleanup() {
	ticker := time.NewTicker(sendLimiterCleanup)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for k, e := range l.entries {
				if now.Sub(e.lastUse) > sendLimiterTTL {
					delete(l.entries, k)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine.
func (l *SendLimiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

// Middleware applies the limit to message sends. Returns 429 with headers when exceeded.
func (l *SendLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(strings.TrimRight(r.URL.Path, "/"), "/messages") {
			next.ServeHTTP(w, r)
			return
		}

		key := "ip:" + clientip.RealClientIP(r)
		if id, ok := IdentityFrom(r.Context()); ok {
			key = "id:" + string(id)
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.perMinute))
		if !l.limiter(key).Allow() {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", "1")
			writeJSONError(w, http.StatusTooManyRequests, "Too many messages. Please slow down.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
