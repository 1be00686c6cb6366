package cache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/phagelab/go-playback/frame"
	"github.com/phagelab/go-playback/logger"
)

// DefaultBudget is the default memory budget for a ProjectionCache.
const DefaultBudget int64 = 1 << 30 // 1 GiB

// Stats is an atomic snapshot of cache occupancy.
type Stats struct {
	// BytesUsed is the total tracked bytes across primary and pyramid
	// entries.
	BytesUsed int64
	// Entries counts entries in both maps.
	Entries int
}

// Telemetry tracks cache effectiveness for diagnostics and UI display.
type Telemetry struct {
	Hits             int64
	Misses           int64
	Evictions        int64
	PyramidEvictions int64
	BytesEvicted     int64
}

// HitRatio returns hits/(hits+misses), or 0 when the cache is cold.
func (t Telemetry) HitRatio() float64 {
	total := t.Hits + t.Misses
	if total == 0 {
		return 0
	}
	return float64(t.Hits) / float64(total)
}

// WarningFunc receives the one-shot near-budget warning message, e.g.
// for surfacing as a toast in a host UI.
type WarningFunc func(msg string)

type config struct {
	budget        int64
	warnThreshold float64
	logger        logger.Logger
	warnFunc      WarningFunc
}

// Option configures a ProjectionCache.
type Option func(*config)

// WithBudget sets the memory budget in bytes. Non-positive budgets are
// clamped to 1.
func WithBudget(bytes int64) Option {
	return func(c *config) { c.budget = bytes }
}

// WithLogger sets the logger used for eviction and budget warnings.
func WithLogger(l logger.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithWarningFunc sets a callback invoked once when usage first crosses
// the warning threshold. Re-armed by SetBudget.
func WithWarningFunc(fn WarningFunc) Option {
	return func(c *config) { c.warnFunc = fn }
}

// WithWarnThreshold sets the budget fraction at which the near-budget
// warning fires. Defaults to 0.9.
func WithWarnThreshold(fraction float64) Option {
	return func(c *config) { c.warnThreshold = fraction }
}

type entry[K comparable] struct {
	key    K
	data   frame.Frame
	nbytes int64
}

// lruMap is an access-ordered map: front of the list is least recently
// used, back is most recently used. Not safe for concurrent use; the
// owning cache serializes access.
type lruMap[K comparable] struct {
	order *list.List
	index map[K]*list.Element
}

func newLRUMap[K comparable]() lruMap[K] {
	return lruMap[K]{order: list.New(), index: make(map[K]*list.Element)}
}

func (m *lruMap[K]) get(key K) (*entry[K], bool) {
	el, ok := m.index[key]
	if !ok {
		return nil, false
	}
	m.order.MoveToBack(el)
	return el.Value.(*entry[K]), true
}

// put inserts or replaces an entry and returns the byte delta applied.
// A replaced entry's bytes are released in the same step, so the caller
// never double counts.
func (m *lruMap[K]) put(key K, data frame.Frame, nbytes int64) int64 {
	if el, ok := m.index[key]; ok {
		old := el.Value.(*entry[K])
		delta := nbytes - old.nbytes
		old.data = data
		old.nbytes = nbytes
		m.order.MoveToBack(el)
		return delta
	}
	m.index[key] = m.order.PushBack(&entry[K]{key: key, data: data, nbytes: nbytes})
	return nbytes
}

// removeOldest evicts the least-recently-used entry, returning its byte
// size. ok is false when the map is empty.
func (m *lruMap[K]) removeOldest() (int64, bool) {
	el := m.order.Front()
	if el == nil {
		return 0, false
	}
	e := el.Value.(*entry[K])
	m.order.Remove(el)
	delete(m.index, e.key)
	return e.nbytes, true
}

func (m *lruMap[K]) remove(key K) (int64, bool) {
	el, ok := m.index[key]
	if !ok {
		return 0, false
	}
	e := el.Value.(*entry[K])
	m.order.Remove(el)
	delete(m.index, key)
	return e.nbytes, true
}

func (m *lruMap[K]) len() int {
	return len(m.index)
}

// ProjectionCache is a dual LRU cache for projection arrays keyed by
// image/projection/crop/selection. Primary projections and pyramid
// levels are ordered independently but share one byte budget; pyramid
// levels are evicted first. Safe for concurrent use.
type ProjectionCache struct {
	mu            sync.Mutex
	primary       lruMap[PrimaryKey]
	pyramid       lruMap[PyramidKey]
	budget        int64
	totalBytes    int64
	telemetry     Telemetry
	warnIssued    bool
	warnThreshold float64
	logger        logger.Logger
	warnFunc      WarningFunc
}

// New returns a ProjectionCache with the given options applied.
func New(opts ...Option) *ProjectionCache {
	cfg := config{
		budget:        DefaultBudget,
		warnThreshold: 0.9,
		logger:        logger.Discard,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.budget < 1 {
		cfg.budget = 1
	}
	return &ProjectionCache{
		primary:       newLRUMap[PrimaryKey](),
		pyramid:       newLRUMap[PyramidKey](),
		budget:        cfg.budget,
		warnThreshold: cfg.warnThreshold,
		logger:        cfg.logger,
		warnFunc:      cfg.warnFunc,
	}
}

// Get returns a cached projection and marks it most-recently-used.
func (c *ProjectionCache) Get(key PrimaryKey) (frame.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.primary.get(key)
	if !ok {
		c.telemetry.Misses++
		return frame.Frame{}, false
	}
	c.telemetry.Hits++
	return e.data, true
}

// Put inserts or replaces a cached projection and enforces the budget.
// An insert counts as an access for recency purposes.
func (c *ProjectionCache) Put(key PrimaryKey, data frame.Frame) {
	c.mu.Lock()
	c.totalBytes += c.primary.put(key, data, data.NBytes())
	warn := c.checkWarnLocked()
	c.evictLocked()
	c.mu.Unlock()
	c.fireWarning(warn)
}

// GetPyramid returns a cached pyramid level and marks it
// most-recently-used within the pyramid map.
func (c *ProjectionCache) GetPyramid(key PyramidKey) (frame.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.pyramid.get(key)
	if !ok {
		c.telemetry.Misses++
		return frame.Frame{}, false
	}
	c.telemetry.Hits++
	return e.data, true
}

// PutPyramid inserts or replaces a cached pyramid level. Pyramid
// entries sit in the lower-priority map and are evicted before any
// primary entry.
func (c *ProjectionCache) PutPyramid(key PyramidKey, data frame.Frame) {
	c.mu.Lock()
	c.totalBytes += c.pyramid.put(key, data, data.NBytes())
	warn := c.checkWarnLocked()
	c.evictLocked()
	c.mu.Unlock()
	c.fireWarning(warn)
}

// InvalidateImage removes every primary and pyramid entry belonging to
// the given image. Called when an image is unloaded or its pixel data
// changes.
func (c *ProjectionCache) InvalidateImage(imageID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.primaryKeysLocked(imageID) {
		if nbytes, ok := c.primary.remove(key); ok {
			c.totalBytes -= nbytes
		}
	}
	for _, key := range c.pyramidKeysLocked(imageID) {
		if nbytes, ok := c.pyramid.remove(key); ok {
			c.totalBytes -= nbytes
		}
	}
}

func (c *ProjectionCache) primaryKeysLocked(imageID int64) []PrimaryKey {
	var keys []PrimaryKey
	for key := range c.primary.index {
		if key.ImageID == imageID {
			keys = append(keys, key)
		}
	}
	return keys
}

func (c *ProjectionCache) pyramidKeysLocked(imageID int64) []PyramidKey {
	var keys []PyramidKey
	for key := range c.pyramid.index {
		if key.ImageID == imageID {
			keys = append(keys, key)
		}
	}
	return keys
}

// SetBudget updates the byte budget and immediately evicts to comply.
// The near-budget warning latch is re-armed.
func (c *ProjectionCache) SetBudget(bytes int64) {
	if bytes < 1 {
		bytes = 1
	}
	c.mu.Lock()
	c.budget = bytes
	c.warnIssued = false
	warn := c.checkWarnLocked()
	c.evictLocked()
	c.mu.Unlock()
	c.fireWarning(warn)
}

// Clear drops all entries and resets the byte counter.
func (c *ProjectionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primary = newLRUMap[PrimaryKey]()
	c.pyramid = newLRUMap[PyramidKey]()
	c.totalBytes = 0
}

// Stats returns current occupancy as a single atomic snapshot.
func (c *ProjectionCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		BytesUsed: c.totalBytes,
		Entries:   c.primary.len() + c.pyramid.len(),
	}
}

// Telemetry returns a snapshot of the telemetry counters.
func (c *ProjectionCache) Telemetry() Telemetry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.telemetry
}

// ResetTelemetry zeroes the telemetry counters.
func (c *ProjectionCache) ResetTelemetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.telemetry = Telemetry{}
}

// checkWarnLocked arms the one-shot near-budget warning and returns the
// message to emit, or "" when no warning is due.
func (c *ProjectionCache) checkWarnLocked() string {
	if c.warnIssued || c.budget <= 0 {
		return ""
	}
	used := float64(c.totalBytes) / float64(c.budget)
	if used < c.warnThreshold {
		return ""
	}
	c.warnIssued = true
	return fmt.Sprintf("projection cache at %.1f%% of budget (%d/%d bytes)",
		used*100, c.totalBytes, c.budget)
}

// fireWarning emits the warning outside the cache lock so callbacks may
// re-enter the cache.
func (c *ProjectionCache) fireWarning(msg string) {
	if msg == "" {
		return
	}
	c.logger.Warn("%s", msg)
	if c.warnFunc != nil {
		c.warnFunc(msg)
	}
}

// evictLocked removes least-recently-used entries until total bytes fit
// the budget, draining the pyramid map before touching any primary
// entry.
func (c *ProjectionCache) evictLocked() {
	var evicted, pyramidEvicted, reclaimed int64
	for c.totalBytes > c.budget {
		if nbytes, ok := c.pyramid.removeOldest(); ok {
			c.totalBytes -= nbytes
			pyramidEvicted++
			reclaimed += nbytes
			continue
		}
		nbytes, ok := c.primary.removeOldest()
		if !ok {
			break
		}
		c.totalBytes -= nbytes
		evicted++
		reclaimed += nbytes
	}
	if evicted > 0 || pyramidEvicted > 0 {
		c.telemetry.Evictions += evicted
		c.telemetry.PyramidEvictions += pyramidEvicted
		c.telemetry.BytesEvicted += reclaimed
		c.logger.Debug("evicted %d projections and %d pyramid levels, reclaimed %d bytes",
			evicted, pyramidEvicted, reclaimed)
	}
}
