package server

import (
	"fmt"
	"sync"
	"time"
)

// maxTrackedClients bounds the usage map; idle clients are pruned beyond it.
const maxTrackedClients = 10000

// RateLimitConfig holds per-client limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

// RateLimiter enforces request rates and daily quotas per client.
type RateLimiter struct {
	mu      sync.Mutex
	limits  RateLimitConfig
	clients map[string]*clientUsage
	now     func() time.Time
}

type clientUsage struct {
	minuteStart time.Time
	hourStart   time.Time
	dayStart    time.Time
	minute      int
	hour        int
	day         int
	dayBytes    int64
	lastSeen    time.Time
}

// Usage is a snapshot of one client's counters.
type Usage struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	BytesToday         int64
}

// NewRateLimiter creates a rate limiter with the given limits.
func NewRateLimiter(limits RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limits:  limits,
		clients: make(map[string]*clientUsage),
		now:     time.Now,
	}
}

// Allow records a request of dataSize bytes from clientID, or returns a
// *RateLimitError / *QuotaExceededError without recording it.
func (rl *RateLimiter) Allow(clientID string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u := rl.usageFor(clientID, now)
	u.roll(now)

	if rl.limits.RequestsPerMinute > 0 && u.minute >= rl.limits.RequestsPerMinute {
		return &RateLimitError{Type: "minute", Limit: rl.limits.RequestsPerMinute, RetryAfter: u.minuteStart.Add(time.Minute).Sub(now)}
	}
	if rl.limits.RequestsPerHour > 0 && u.hour >= rl.limits.RequestsPerHour {
		return &RateLimitError{Type: "hour", Limit: rl.limits.RequestsPerHour, RetryAfter: u.hourStart.Add(time.Hour).Sub(now)}
	}

	resets := nextMidnight(now)
	if rl.limits.MaxRequestsPerDay > 0 && u.day >= rl.limits.MaxRequestsPerDay {
		return &QuotaExceededError{Type: "requests", Limit: int64(rl.limits.MaxRequestsPerDay), Used: int64(u.day), Resets: resets}
	}
	if rl.limits.MaxDataPerDay > 0 && u.dayBytes+dataSize > rl.limits.MaxDataPerDay {
		return &QuotaExceededError{Type: "data", Limit: rl.limits.MaxDataPerDay, Used: u.dayBytes, Resets: resets}
	}

	u.minute++
	u.hour++
	u.day++
	u.dayBytes += dataSize
	u.lastSeen = now
	return nil
}

// Usage returns the current counters for clientID.
func (rl *RateLimiter) Usage(clientID string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	u, ok := rl.clients[clientID]
	if !ok {
		return Usage{}
	}
	u.roll(rl.now())
	return Usage{
		RequestsLastMinute: u.minute,
		RequestsLastHour:   u.hour,
		RequestsToday:      u.day,
		BytesToday:         u.dayBytes,
	}
}

// Prune drops clients idle for longer than idle and returns how many were removed.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.pruneLocked(rl.now(), idle)
}

func (rl *RateLimiter) pruneLocked(now time.Time, idle time.Duration) int {
	removed := 0
	for id, u := range rl.clients {
		if now.Sub(u.lastSeen) > idle {
			delete(rl.clients, id)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) usageFor(clientID string, now time.Time) *clientUsage {
	u, ok := rl.clients[clientID]
	if ok {
		return u
	}
	if len(rl.clients) >= maxTrackedClients {
		rl.pruneLocked(now, time.Hour)
	}
	u = &clientUsage{minuteStart: now, hourStart: now, dayStart: now, lastSeen: now}
	rl.clients[clientID] = u
	return u
}

// roll starts new windows once the current ones have elapsed.
func (u *clientUsage) roll(now time.Time) {
	if now.Sub(u.minuteStart) >= time.Minute {
		u.minute = 0
		u.minuteStart = now
	}
	if now.Sub(u.hourStart) >= time.Hour {
		u.hour = 0
		u.hourStart = now
	}
	if y1, d1 := now.Year(), now.YearDay(); y1 != u.dayStart.Year() || d1 != u.dayStart.YearDay() {
		u.day = 0
		u.dayBytes = 0
		u.dayStart = now
	}
}

func nextMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string        // "minute" or "hour"
	Limit      int           // the limit that was exceeded
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a daily quota violation.
type QuotaExceededError struct {
	Type   string // "requests" or "data"
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
