package calendar

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/coocood/freecache"
)

const eventCacheSizeBytes = 10 * 1024 * 1024

// EventCache keeps recently listed event windows per trainer so that
// repeated reads within the TTL skip the remote round trip entirely.
type EventCache struct {
	cache      *freecache.Cache
	ttlSeconds int
}

func NewEventCache(ttlSeconds int) *EventCache {
	return &EventCache{
		cache:      freecache.NewCache(eventCacheSizeBytes),
		ttlSeconds: ttlSeconds,
	}
}

func eventCacheKey(trainerID int, from, to time.Time) []byte {
	return []byte(fmt.Sprintf("events::%d::%d::%d", trainerID, from.Unix(), to.Unix()))
}

func (c *EventCache) Get(trainerID int, from, to time.Time) ([]Event, bool) {
	raw, err := c.cache.Get(eventCacheKey(trainerID, from, to))
	if err != nil {
		return nil, false
	}
	var events []Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, false
	}
	return events, true
}

func (c *EventCache) Set(trainerID int, from, to time.Time, events []Event) {
	raw, err := json.Marshal(events)
	if err != nil {
		return
	}
	_ = c.cache.Set(eventCacheKey(trainerID, from, to), raw, c.ttlSeconds)
}

// InvalidateTrainer drops every cached window for a trainer. Freecache
// has no prefix scan, so we clear the whole cache; it is small and
// short-lived anyway.
func (c *EventCache) InvalidateTrainer(_ int) {
	c.cache.Clear()
}

func (c *EventCache) EntryCount() int64 {
	return c.cache.EntryCount()
}
