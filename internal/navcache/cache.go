// Package navcache stores raw NAV source responses under opaque keys with a
// fetch timestamp. It knows nothing about schemes or prices; freshness is
// decided by the TTL the caller passes to Get.
package navcache

import (
	"time"
)

// Entry is one cached payload.
type Entry struct {
	Key       string    `json:"key"`
	Payload   []byte    `json:"payload"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Age returns how long ago the entry was fetched.
func (e Entry) Age(now time.Time) time.Duration { return now.Sub(e.FetchedAt) }

// Fresh reports whether the entry is younger than ttl.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool { return e.Age(now) < ttl }

// Stats summarises what a cache currently holds.
type Stats struct {
	Backend    string `json:"backend"`
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"total_bytes"`
}

// Cache is keyed payload storage with expiry.
// Implementations must make Put an atomic replace: a concurrent reader sees
// either the previous entry or the new one, never a partial write.
type Cache interface {
	// Get returns the entry for key if it exists and is younger than ttl.
	Get(key string, ttl time.Duration) (Entry, bool)
	// Peek returns the entry for key regardless of its age.
	Peek(key string) (Entry, bool)
	// Put stores payload under key with a fresh timestamp.
	Put(key string, payload []byte) error
	// Invalidate removes the entry for key, if any.
	Invalidate(key string) error
	// InvalidateAll removes every entry.
	InvalidateAll() error
	// Stats reports the number and size of stored entries.
	Stats() (Stats, error)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
