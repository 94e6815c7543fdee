package models

import "time"

// CacheEntry is a NAV source response stored by the SQL cache backend.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;column:cache_key"`
	Payload   []byte    `gorm:"not null"`
	FetchedAt time.Time `gorm:"not null"`
}
