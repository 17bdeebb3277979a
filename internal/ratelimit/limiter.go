package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter controls how frequently a user may submit work.
type Limiter interface {
	Allow(userID int64) bool
}

// perUserLimiter keeps one token bucket per telegram user and forgets idle users.
type perUserLimiter struct {
	mu       sync.Mutex
	visitors map[int64]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

// NewPerUser constructs a limiter that allows up to `requests` events per
// `window` for each user, plus burst capacity. A non-positive requests value
// disables limiting.
func NewPerUser(requests int, window time.Duration, burst int, ttl time.Duration) Limiter {
	if requests <= 0 {
		return unlimited{}
	}
	if window <= 0 {
		window = time.Minute
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &perUserLimiter{
		visitors: make(map[int64]*visitor),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (l *perUserLimiter) Allow(userID int64) bool {
	now := l.now()

	l.mu.Lock()
	v := l.getVisitorLocked(userID, now)
	l.gcLocked(now)
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

func (l *perUserLimiter) getVisitorLocked(userID int64, now time.Time) *visitor {
	if v, ok := l.visitors[userID]; ok {
		v.lastSeen = now
		return v
	}

	v := &visitor{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
	l.visitors[userID] = v
	return v
}

func (l *perUserLimiter) gcLocked(now time.Time) {
	for userID, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, userID)
		}
	}
}

// WithNowFunc allows tests to override the time source.
func (l *perUserLimiter) WithNowFunc(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

type unlimited struct{}

func (unlimited) Allow(int64) bool { return true }
