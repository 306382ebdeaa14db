package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Per-trainer budgets for remote calendar operations, requests per window.
const (
	OpListEvents  = "list_events"
	OpCreateEvent = "create_event"
	OpUpdateEvent = "update_event"
	OpDeleteEvent = "delete_event"
	OpBulkUpdate  = "bulk_update"
	OpDisconnect  = "disconnect"
	OpOAuth       = "oauth"
	OpSettings    = "settings"
	OpSyncNow     = "sync_now"
)

const Window = time.Minute

var Budgets = map[string]int{
	OpListEvents:  60,
	OpCreateEvent: 50,
	OpUpdateEvent: 50,
	OpDeleteEvent: 30,
	OpBulkUpdate:  5,
	OpDisconnect:  5,
	OpOAuth:       5,
	OpSettings:    20,
	OpSyncNow:     10,
}

type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window in-process rate limiter, keyed by
// operation + trainer so one trainer's burst cannot starve another's quota.
type Limiter struct {
	mutex   sync.Mutex
	entries map[string]*entry
	nowFunc func() time.Time
}

func NewLimiter() *Limiter {
	return &Limiter{
		entries: make(map[string]*entry),
		nowFunc: time.Now,
	}
}

// Key builds the limiter key for an operation done on behalf of a trainer.
func Key(op string, trainerID int) string {
	return fmt.Sprintf("%s:%d", op, trainerID)
}

// Check admits or rejects one call against the given budget. A rejected
// call has no side effects on the counter.
func (l *Limiter) Check(key string, limit int, window time.Duration) Result {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.nowFunc()

	e, ok := l.entries[key]
	if !ok || now.After(e.resetAt) {
		e = &entry{
			count:   1,
			resetAt: now.Add(window),
		}
		l.entries[key] = e
		return Result{
			Allowed:   true,
			Remaining: limit - 1,
			ResetAt:   e.resetAt,
		}
	}

	if e.count >= limit {
		return Result{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   e.resetAt,
		}
	}

	e.count++
	return Result{
		Allowed:   true,
		Remaining: limit - e.count,
		ResetAt:   e.resetAt,
	}
}

// Allow checks an operation against its configured budget.
func (l *Limiter) Allow(op string, trainerID int) Result {
	limit, ok := Budgets[op]
	if !ok {
		// unknown operations get a conservative budget
		limit = 10
	}
	return l.Check(Key(op, trainerID), limit, Window)
}

// Cleanup drops expired entries, to be called periodically.
func (l *Limiter) Cleanup() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.nowFunc()
	for key, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, key)
		}
	}
}
