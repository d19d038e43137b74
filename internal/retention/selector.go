// Package retention implements the dual-bucket retention policy: two
// independently-windowed, independently-capped pools merged into one
// deterministic bounded ordered view, with priority events preferentially
// preserved up to a configured share of the total.
package retention

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pulsekit/pulse/internal/event"
)

// Config is the process-wide retention policy. Changed only at process
// (re)configuration, never per-request.
type Config struct {
	PriorityRetentionHours int     `json:"priorityRetentionHours"`
	RegularRetentionHours  int     `json:"regularRetentionHours"`
	TotalLimit             int     `json:"totalLimit"`
	PriorityLimit          int     `json:"priorityLimit"`
	RegularLimit           int     `json:"regularLimit"`
	PriorityShare          float64 `json:"priorityShare"`
}

// Default returns the built-in retention policy.
func Default() Config {
	return Config{
		PriorityRetentionHours: 24,
		RegularRetentionHours:  4,
		TotalLimit:             300,
		PriorityLimit:          200,
		RegularLimit:           300,
		PriorityShare:          0.7,
	}
}

// Validate rejects configurations the selector cannot honor.
func (c Config) Validate() error {
	if c.TotalLimit <= 0 || c.PriorityLimit <= 0 || c.RegularLimit <= 0 {
		return fmt.Errorf("retention: limits must be positive: %+v", c)
	}
	if c.PriorityRetentionHours <= 0 || c.RegularRetentionHours <= 0 {
		return fmt.Errorf("retention: windows must be positive: %+v", c)
	}
	if c.PriorityShare <= 0 || c.PriorityShare > 1 {
		return fmt.Errorf("retention: priorityShare must be in (0,1]: %v", c.PriorityShare)
	}
	return nil
}

// PriorityWindow returns the priority bucket's retention window.
func (c Config) PriorityWindow() time.Duration {
	return time.Duration(c.PriorityRetentionHours) * time.Hour
}

// RegularWindow returns the regular bucket's retention window.
func (c Config) RegularWindow() time.Duration {
	return time.Duration(c.RegularRetentionHours) * time.Hour
}

// BucketView is a bounded ordered view over both buckets: events ascending by
// (ts, id), at most TotalLimit of them, annotated with per-bucket counts.
type BucketView struct {
	Events         []event.Event `json:"events"`
	TotalEvents    int           `json:"total_events"`
	PriorityEvents int           `json:"priority_events"`
	RegularEvents  int           `json:"regular_events"`
}

// Querier is the store surface the selector reads through. Both queries
// return events newest-first by (ts, id).
type Querier interface {
	QueryPriority(ctx context.Context, sinceTsMs int64, limit int) ([]event.Event, error)
	QueryRegular(ctx context.Context, sinceTsMs int64, limit int) ([]event.Event, error)
}

// Selector produces bounded ordered views from store queries.
type Selector struct {
	cfg Config
	q   Querier
	now func() time.Time
}

// NewSelector builds a Selector over the given querier.
func NewSelector(cfg Config, q Querier) *Selector {
	return &Selector{cfg: cfg, q: q, now: time.Now}
}

// Config returns the selector's retention policy.
func (s *Selector) Config() Config { return s.cfg }

// Select computes a BucketView under a consistent read: both cutoffs are
// fixed once from a single "now", never re-evaluated mid-scan.
func (s *Selector) Select(ctx context.Context) (BucketView, error) {
	return s.SelectWithConfig(ctx, s.cfg)
}

// SelectWithConfig is Select with per-call limits; query surfaces use it to
// honor explicit request parameters without mutating the process policy.
func (s *Selector) SelectWithConfig(ctx context.Context, cfg Config) (BucketView, error) {
	now := s.now()
	priorityCutoff := now.Add(-cfg.PriorityWindow()).UnixMilli()
	regularCutoff := now.Add(-cfg.RegularWindow()).UnixMilli()

	priority, err := s.q.QueryPriority(ctx, priorityCutoff, cfg.PriorityLimit)
	if err != nil {
		return BucketView{}, fmt.Errorf("retention: priority query: %w", err)
	}
	regular, err := s.q.QueryRegular(ctx, regularCutoff, cfg.RegularLimit)
	if err != nil {
		return BucketView{}, fmt.Errorf("retention: regular query: %w", err)
	}

	merged := make([]event.Event, 0, len(priority)+len(regular))
	merged = append(merged, priority...)
	merged = append(merged, regular...)
	event.SortAsc(merged)

	if len(merged) > cfg.TotalLimit {
		merged = Limit(merged, cfg.TotalLimit, cfg.PriorityShare)
	}
	return NewBucketView(merged), nil
}

// NewBucketView wraps an ascending event slice with its counts.
func NewBucketView(events []event.Event) BucketView {
	view := BucketView{Events: events, TotalEvents: len(events)}
	for _, ev := range events {
		if ev.IsPriority() {
			view.PriorityEvents++
		} else {
			view.RegularEvents++
		}
	}
	return view
}

// Limit bounds an ascending merged view to totalLimit events while
// preferentially preserving priority events: the newest
// min(#priority, floor(totalLimit*priorityShare)) priority events are kept,
// and the remaining budget goes to the newest regular events. The result is
// re-merged ascending. Idempotent: applying Limit to its own output is a
// no-op.
func Limit(events []event.Event, totalLimit int, priorityShare float64) []event.Event {
	if totalLimit <= 0 || len(events) <= totalLimit {
		return events
	}
	priority := make([]event.Event, 0, len(events))
	regular := make([]event.Event, 0, len(events))
	for _, ev := range events {
		if ev.IsPriority() {
			priority = append(priority, ev)
		} else {
			regular = append(regular, ev)
		}
	}

	maxPriorityKeep := int(math.Floor(float64(totalLimit) * priorityShare))
	keepPriority := len(priority)
	if keepPriority > maxPriorityKeep {
		keepPriority = maxPriorityKeep
	}
	remaining := totalLimit - keepPriority
	keepRegular := len(regular)
	if keepRegular > remaining {
		keepRegular = remaining
	}

	// Inputs are ascending, so the newest N of each bucket is the tail.
	kept := make([]event.Event, 0, keepPriority+keepRegular)
	kept = append(kept, priority[len(priority)-keepPriority:]...)
	kept = append(kept, regular[len(regular)-keepRegular:]...)
	event.SortAsc(kept)
	return kept
}
