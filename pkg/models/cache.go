package models

import "time"

// CacheRecord is a persisted cache entry.
type CacheRecord struct {
	Fingerprint string        `json:"fingerprint"`
	Payload     []byte        `json:"payload"`
	CreatedAt   time.Time     `json:"created_at"`
	TTL         time.Duration `json:"ttl"`
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Name      string        `json:"name"`
	Size      int           `json:"size"`
	MaxSize   int           `json:"max_size"`
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	HitRate   float64       `json:"hit_rate"`
	Evictions int64         `json:"evictions"`
	TTL       time.Duration `json:"ttl"`
}

// CacheReport groups the statistics of both analysis caches.
type CacheReport struct {
	SentimentCache CacheStats `json:"sentiment_cache"`
	BatchCache     CacheStats `json:"batch_cache"`
}

// SnapshotStats reports persisted rows for one cache.
type SnapshotStats struct {
	Cache   string `json:"cache"`
	Entries int64  `json:"entries"`
	Expired int64  `json:"expired"`
}
