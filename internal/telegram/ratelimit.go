package telegram

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// chatVisitor holds one chat's limiter and the last time it was used, so
// idle buckets can be evicted to bound memory.
type chatVisitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// chatLimiter is a per-chat token bucket. The platform throttles roughly one
// message per second per chat; the sweep and the manual send path both pass
// through here, so neither can push a chat over that budget.
//
// Safe for concurrent use.
type chatLimiter struct {
	perSecond rate.Limit
	burst     int

	mu       sync.Mutex
	visitors map[int64]*chatVisitor
	ttl      time.Duration
	lookups  uint64
}

func newChatLimiter(perSecond float64, burst int) *chatLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &chatLimiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		visitors:  make(map[int64]*chatVisitor),
		ttl:       10 * time.Minute,
	}
}

// wait blocks until the chat's bucket grants a token or ctx expires.
func (l *chatLimiter) wait(ctx context.Context, chatID int64) error {
	return l.get(chatID).Wait(ctx)
}

// get returns (and refreshes) the limiter for chatID, creating it if absent.
// Idle entries are swept opportunistically after a threshold of lookups,
// before the requested visitor is touched, so a stale bucket for the chat
// being fetched is evicted rather than refreshed.
func (l *chatLimiter) get(chatID int64) *rate.Limiter {
	now := time.Now()

	l.mu.Lock()
	l.lookups++
	if l.lookups >= 5000 {
		for id, v := range l.visitors {
			if now.Sub(v.lastSeen) >= l.ttl {
				delete(l.visitors, id)
			}
		}
		l.lookups = 0
	}

	if v, ok := l.visitors[chatID]; ok {
		v.lastSeen = now
		lim := v.limiter
		l.mu.Unlock()
		return lim
	}

	lim := rate.NewLimiter(l.perSecond, l.burst)
	l.visitors[chatID] = &chatVisitor{limiter: lim, lastSeen: now}
	l.mu.Unlock()
	return lim
}
