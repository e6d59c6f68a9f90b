// Package cache provides the bounded in-memory TTL caches used by the analyzer.
package cache

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tubepulse/tubepulse/pkg/models"
)

// Value is anything the cache can hold. Values that report Failed are never stored.
type Value interface {
	Failed() bool
}

// Entry is a cached value with its creation time and time-to-live.
type Entry[V any] struct {
	Result    V
	CreatedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the entry is past its TTL at now.
func (e Entry[V]) Expired(now time.Time) bool {
	return now.After(e.CreatedAt.Add(e.TTL))
}

// Snapshot is an exported entry together with its fingerprint.
type Snapshot[V any] struct {
	Fingerprint string
	Entry       Entry[V]
}

// Observer receives cache events, typically to export them as metrics.
type Observer interface {
	CacheHit(cache string)
	CacheMiss(cache string)
	CacheEviction(cache string)
}

// KeyFunc derives the fingerprint of a key.
type KeyFunc[K any] func(K) string

type item[V any] struct {
	entry Entry[V]
	seq   uint64
}

// Keyed is a bounded TTL cache keyed by a fingerprint of K. When full, inserting a new
// fingerprint evicts the entry created earliest.
type Keyed[K any, V Value] struct {
	mu        sync.Mutex
	name      string
	key       KeyFunc[K]
	items     map[string]*item[V]
	maxSize   int
	ttl       time.Duration
	seq       uint64
	hits      int64
	misses    int64
	evictions int64

	now      func() time.Time
	logger   *zap.Logger
	observer Observer
}

// Option configures a Keyed cache.
type Option func(*options)

type options struct {
	now      func() time.Time
	logger   *zap.Logger
	observer Observer
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger used for cache events.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver registers an observer for hits, misses and evictions.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// New creates a Keyed cache. A maxSize below 1 is treated as 1.
func New[K any, V Value](name string, key KeyFunc[K], maxSize int, ttl time.Duration, opts ...Option) *Keyed[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if maxSize < 1 {
		maxSize = 1
	}
	return &Keyed[K, V]{
		name:     name,
		key:      key,
		items:    make(map[string]*item[V]),
		maxSize:  maxSize,
		ttl:      ttl,
		now:      o.now,
		logger:   o.logger.With(zap.String("cache", name)),
		observer: o.observer,
	}
}

// Name returns the cache name.
func (c *Keyed[K, V]) Name() string {
	return c.name
}

// Get returns the cached value for key. Expired entries are removed and count as misses.
func (c *Keyed[K, V]) Get(key K) (V, bool) {
	fp := c.key(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[fp]
	if ok && it.entry.Expired(c.now()) {
		delete(c.items, fp)
		ok = false
	}
	if !ok {
		c.misses++
		c.logger.Debug("cache miss", zap.String("fingerprint", short(fp)))
		if c.observer != nil {
			c.observer.CacheMiss(c.name)
		}
		var zero V
		return zero, false
	}

	c.hits++
	c.logger.Debug("cache hit", zap.String("fingerprint", short(fp)))
	if c.observer != nil {
		c.observer.CacheHit(c.name)
	}
	return it.entry.Result, true
}

// Peek returns the live value for key without touching the counters.
func (c *Keyed[K, V]) Peek(key K) (V, bool) {
	fp := c.key(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[fp]
	if !ok || it.entry.Expired(c.now()) {
		var zero V
		return zero, false
	}
	return it.entry.Result, true
}

// Put stores v under key unless v is a failure.
func (c *Keyed[K, V]) Put(key K, v V) {
	if v.Failed() {
		return
	}
	fp := c.key(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.insert(fp, Entry[V]{Result: v, CreatedAt: c.now(), TTL: c.ttl})
}

// insert must be called with the lock held.
func (c *Keyed[K, V]) insert(fp string, e Entry[V]) {
	if _, exists := c.items[fp]; !exists && len(c.items) >= c.maxSize {
		c.evictOldest()
	}
	c.seq++
	c.items[fp] = &item[V]{entry: e, seq: c.seq}
}

// evictOldest must be called with the lock held.
func (c *Keyed[K, V]) evictOldest() {
	var (
		oldestFP string
		oldest   *item[V]
	)
	for fp, it := range c.items {
		if oldest == nil ||
			it.entry.CreatedAt.Before(oldest.entry.CreatedAt) ||
			(it.entry.CreatedAt.Equal(oldest.entry.CreatedAt) && it.seq < oldest.seq) {
			oldestFP, oldest = fp, it
		}
	}
	if oldest == nil {
		return
	}
	delete(c.items, oldestFP)
	c.evictions++
	c.logger.Debug("cache eviction", zap.String("fingerprint", short(oldestFP)))
	if c.observer != nil {
		c.observer.CacheEviction(c.name)
	}
}

// Clear removes every entry. Counters are preserved.
func (c *Keyed[K, V]) Clear() {
	c.mu.Lock()
	n := len(c.items)
	c.items = make(map[string]*item[V])
	c.mu.Unlock()

	c.logger.Info("cache cleared", zap.Int("entries", n))
}

// CleanupExpired removes every expired entry and returns how many were removed.
func (c *Keyed[K, V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for fp, it := range c.items {
		if it.entry.Expired(now) {
			delete(c.items, fp)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (c *Keyed[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns cache performance metrics.
func (c *Keyed[K, V]) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRate := 0.0
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return models.CacheStats{
		Name:      c.name,
		Size:      len(c.items),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		HitRate:   hitRate,
		Evictions: c.evictions,
		TTL:       c.ttl,
	}
}

// Export returns the live entries ordered by insertion.
func (c *Keyed[K, V]) Export() []Snapshot[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	type ordered struct {
		seq  uint64
		snap Snapshot[V]
	}
	list := make([]ordered, 0, len(c.items))
	for fp, it := range c.items {
		if it.entry.Expired(now) {
			continue
		}
		list = append(list, ordered{seq: it.seq, snap: Snapshot[V]{Fingerprint: fp, Entry: it.entry}})
	}
	slices.SortFunc(list, func(a, b ordered) int { return cmp.Compare(a.seq, b.seq) })

	out := make([]Snapshot[V], len(list))
	for i, o := range list {
		out[i] = o.snap
	}
	return out
}

// Restore inserts previously exported entries, keeping their creation time. The
// cache's own TTL applies, not the one recorded in the snapshot. Expired and failed
// values are skipped. Capacity is enforced as for Put. It returns the number of
// entries restored.
func (c *Keyed[K, V]) Restore(snaps []Snapshot[V]) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for _, s := range snaps {
		e := Entry[V]{Result: s.Entry.Result, CreatedAt: s.Entry.CreatedAt, TTL: c.ttl}
		if e.Result.Failed() || e.Expired(now) {
			continue
		}
		c.insert(s.Fingerprint, e)
		n++
	}
	return n
}

// RunJanitor removes expired entries every interval until ctx is done.
func (c *Keyed[K, V]) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.CleanupExpired(); n > 0 {
				c.logger.Info("expired entries removed", zap.Int("count", n))
			}
		}
	}
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
