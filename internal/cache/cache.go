package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/rs/zerolog"

	"github.com/dshills/llmbridge/internal/metrics"
)

// Defaults applied when the corresponding option is not given.
const (
	DefaultMaxSize = 1000
	DefaultTTL     = time.Hour
)

type config struct {
	maxSize       int
	ttl           time.Duration
	sweepInterval time.Duration
	name          string
	logger        zerolog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

// Option configures a Cache.
type Option func(*config)

// WithMaxSize sets the capacity. Values <= 0 keep DefaultMaxSize.
func WithMaxSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithTTL sets how long an entry lives after its last Set. Values <= 0 keep
// DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithSweepInterval overrides the background cleanup interval, which defaults
// to half the TTL.
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) { c.sweepInterval = d }
}

// WithName labels the cache in logs and metrics.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

type entry[V any] struct {
	value    V
	created  time.Time
	accessed time.Time
}

// Cache is a bounded key/value store with time-based expiry and
// least-recently-accessed eviction. It is safe for concurrent use.
type Cache[V any] struct {
	mu      sync.Mutex
	entries *simplelru.LRU[string, *entry[V]]
	cfg     config

	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	once      sync.Once
}

// New returns a Cache and starts its background sweep. The sweep stops when
// parent is cancelled or Close is called; owners must call Close.
func New[V any](parent context.Context, opts ...Option) *Cache[V] {
	cfg := config{
		maxSize: DefaultMaxSize,
		ttl:     DefaultTTL,
		name:    "default",
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sweepInterval <= 0 {
		cfg.sweepInterval = cfg.ttl / 2
	}
	if cfg.sweepInterval <= 0 {
		cfg.sweepInterval = time.Millisecond
	}

	// One slot of headroom: eviction is decided by Cleanup, never by the list.
	entries, err := simplelru.NewLRU[string, *entry[V]](cfg.maxSize+1, nil)
	if err != nil {
		// only possible for a non-positive size, which the options rule out
		panic(err)
	}

	ctx, cancel := context.WithCancel(parent)
	c := &Cache[V]{
		entries: entries,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
	}
	c.waitGroup.Add(1)
	go c.run()
	return c
}

// Get returns the value stored under key. A hit refreshes the entry's recency
// but not its expiry. An expired entry is removed and reported absent.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	now := c.cfg.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if !ok {
		c.cfg.metrics.CacheMiss(c.cfg.name)
		return zero, false
	}
	if c.expired(e, now) {
		c.entries.Remove(key)
		c.cfg.metrics.CacheMiss(c.cfg.name)
		c.cfg.metrics.CacheEvicted(c.cfg.name, "expired", 1)
		c.cfg.metrics.CacheSize(c.cfg.name, c.entries.Len())
		return zero, false
	}
	e.accessed = now
	c.cfg.metrics.CacheHit(c.cfg.name)
	return e.value, true
}

// Set stores value under key, replacing any previous value and restarting its
// TTL. When the cache grows past its capacity, Cleanup runs before Set returns.
func (c *Cache[V]) Set(key string, value V) {
	now := c.cfg.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Add(key, &entry[V]{value: value, created: now, accessed: now})
	if c.entries.Len() > c.cfg.maxSize {
		c.cleanupLocked(now)
	}
	c.cfg.metrics.CacheSize(c.cfg.name, c.entries.Len())
}

// Delete removes key and reports whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.entries.Remove(key)
	c.cfg.metrics.CacheSize(c.cfg.name, c.entries.Len())
	return ok
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Cleanup removes expired entries, then evicts least-recently-accessed entries
// until the cache is within capacity.
func (c *Cache[V]) Cleanup() {
	now := c.cfg.now()
	c.mu.Lock()
	c.cleanupLocked(now)
	c.cfg.metrics.CacheSize(c.cfg.name, c.entries.Len())
	c.mu.Unlock()
}

// Close stops the background sweep and drops every entry. It is safe to call
// more than once.
func (c *Cache[V]) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.waitGroup.Wait()
		c.mu.Lock()
		c.entries.Purge()
		c.cfg.metrics.CacheSize(c.cfg.name, 0)
		c.mu.Unlock()
	})
	return nil
}

func (c *Cache[V]) expired(e *entry[V], now time.Time) bool {
	return now.Sub(e.created) > c.cfg.ttl
}

func (c *Cache[V]) cleanupLocked(now time.Time) {
	expired := 0
	// Keys are ordered oldest to newest; Peek leaves the order alone.
	for _, key := range c.entries.Keys() {
		e, ok := c.entries.Peek(key)
		if ok && c.expired(e, now) {
			c.entries.Remove(key)
			expired++
		}
	}

	evicted := 0
	for c.entries.Len() > c.cfg.maxSize {
		if _, _, ok := c.entries.RemoveOldest(); !ok {
			break
		}
		evicted++
	}

	c.cfg.metrics.CacheEvicted(c.cfg.name, "expired", expired)
	c.cfg.metrics.CacheEvicted(c.cfg.name, "capacity", evicted)
	if expired > 0 || evicted > 0 {
		c.cfg.logger.Debug().
			Str("cache", c.cfg.name).
			Int("expired", expired).
			Int("evicted", evicted).
			Int("size", c.entries.Len()).
			Msg("cache cleanup")
	}
}

func (c *Cache[V]) run() {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(c.cfg.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}
