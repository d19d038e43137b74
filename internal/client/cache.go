package client

import (
	"fmt"
	"math"
	"sync"

	"github.com/pulsekit/pulse/internal/broadcast"
	"github.com/pulsekit/pulse/internal/event"
	"github.com/pulsekit/pulse/internal/retention"
)

// OverflowStrategy selects how the combined view is bounded when both pools
// together exceed the display limit.
type OverflowStrategy string

const (
	// PreservePriority applies the server's intelligent-limiting rule.
	PreservePriority OverflowStrategy = "preservePriority"
	// PreserveNewest keeps the newest events overall regardless of bucket.
	PreserveNewest OverflowStrategy = "preserveNewest"
	// StrictPerBucket gives each bucket a fixed slice of the display limit.
	StrictPerBucket OverflowStrategy = "strictPerBucket"
)

// Config bounds the client cache.
type Config struct {
	MaxPriorityEvents int              `json:"maxPriorityEvents"`
	MaxRegularEvents  int              `json:"maxRegularEvents"`
	TotalDisplayLimit int              `json:"totalDisplayLimit"`
	OverflowStrategy  OverflowStrategy `json:"overflowStrategy"`
	PriorityShare     float64          `json:"priorityShare"`
}

// DefaultConfig returns the built-in cache bounds.
func DefaultConfig() Config {
	return Config{
		MaxPriorityEvents: 200,
		MaxRegularEvents:  300,
		TotalDisplayLimit: 300,
		OverflowStrategy:  PreservePriority,
		PriorityShare:     0.7,
	}
}

// Validate rejects bounds the cache cannot honor.
func (c Config) Validate() error {
	if c.MaxPriorityEvents <= 0 || c.MaxRegularEvents <= 0 || c.TotalDisplayLimit <= 0 {
		return fmt.Errorf("client: cache limits must be positive: %+v", c)
	}
	if c.PriorityShare <= 0 || c.PriorityShare > 1 {
		return fmt.Errorf("client: priorityShare must be in (0,1]: %v", c.PriorityShare)
	}
	switch c.OverflowStrategy {
	case PreservePriority, PreserveNewest, StrictPerBucket:
		return nil
	default:
		return fmt.Errorf("client: unknown overflow strategy %q", c.OverflowStrategy)
	}
}

// Cache mirrors the server's dual-bucket retention on the consumer side.
// Incoming events land in the pool matching their priority; the combined
// view is derived on demand. Safe for one receive loop plus any number of
// readers.
type Cache struct {
	cfg Config

	mu       sync.Mutex
	priority Pool
	regular  Pool
	info     *broadcast.PriorityInfo
}

// NewCache builds an empty cache with the given bounds.
func NewCache(cfg Config) *Cache {
	return &Cache{
		cfg: cfg,
		// The priority pool is low-churn and trims exactly; the regular pool
		// takes the write load and trims in batches.
		priority: newBoundedPool(cfg.MaxPriorityEvents, evictStrict),
		regular:  newBoundedPool(cfg.MaxRegularEvents, evictBatch),
	}
}

// Insert routes one live event to its bucket. Duplicates (by id) are
// dropped. Returns whether the event was added.
func (c *Cache) Insert(ev event.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Check both pools: a redelivery must not duplicate an event into the
	// other bucket even if it carries a different priority.
	if c.priority.Has(ev.ID) || c.regular.Has(ev.ID) {
		return false
	}
	if ev.IsPriority() {
		return c.priority.Insert(ev)
	}
	return c.regular.Insert(ev)
}

// Reset replaces both pools wholesale from a fresh snapshot. Pre-reset state
// never survives, bounding drift across reconnects.
func (c *Cache) Reset(snapshot []event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var priority, regular []event.Event
	for _, ev := range snapshot {
		if ev.IsPriority() {
			priority = append(priority, ev)
		} else {
			regular = append(regular, ev)
		}
	}
	c.priority.Replace(priority)
	c.regular.Replace(regular)
}

// SetPriorityInfo records the most recent server-side bucket occupancy.
func (c *Cache) SetPriorityInfo(info *broadcast.PriorityInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info = info
}

// PriorityInfo returns the most recent server-side bucket occupancy, if any.
func (c *Cache) PriorityInfo() *broadcast.PriorityInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// CombinedView merges both pools ascending by (ts, id) and bounds the result
// to the display limit per the configured overflow strategy.
func (c *Cache) CombinedView() retention.BucketView {
	c.mu.Lock()
	priority := c.priority.Events()
	regular := c.regular.Events()
	c.mu.Unlock()

	limit := c.cfg.TotalDisplayLimit
	if c.cfg.OverflowStrategy == StrictPerBucket {
		priority, regular = strictSplit(priority, regular, limit, c.cfg.PriorityShare)
	}

	merged := make([]event.Event, 0, len(priority)+len(regular))
	merged = append(merged, priority...)
	merged = append(merged, regular...)
	event.SortAsc(merged)

	if len(merged) > limit {
		switch c.cfg.OverflowStrategy {
		case PreserveNewest:
			merged = merged[len(merged)-limit:]
		default:
			merged = retention.Limit(merged, limit, c.cfg.PriorityShare)
		}
	}
	return retention.NewBucketView(merged)
}

// strictSplit caps each bucket at its fixed slice of the display limit:
// floor(limit*share) for priority, the remainder for regular. Unused
// headroom is not reallocated.
func strictSplit(priority, regular []event.Event, limit int, share float64) ([]event.Event, []event.Event) {
	priorityCap := int(math.Floor(float64(limit) * share))
	regularCap := limit - priorityCap
	if len(priority) > priorityCap {
		priority = priority[len(priority)-priorityCap:]
	}
	if len(regular) > regularCap {
		regular = regular[len(regular)-regularCap:]
	}
	return priority, regular
}
