// Package broadcast fans live events out to attached subscribers over
// buffered channels, with a consistent initial snapshot on attach.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pulsekit/pulse/internal/event"
	"github.com/pulsekit/pulse/internal/retention"
	"github.com/pulsekit/pulse/internal/store"
	logpkg "github.com/pulsekit/pulse/pkg/log"
)

// EventStore is the persistence surface the broadcaster writes through.
type EventStore interface {
	Append(ctx context.Context, ev event.Event) (event.Event, error)
	Counts() store.Counts
}

// Options tunes fan-out behavior.
type Options struct {
	// SendTimeout bounds how long a full subscriber buffer may stall a
	// broadcast before the subscriber is dropped.
	SendTimeout time.Duration
	// BufferSize is the per-subscriber envelope buffer.
	BufferSize int
	// PriorityInfoEvery attaches bucket occupancy to every Nth live event.
	PriorityInfoEvery int
}

// DefaultOptions returns the built-in fan-out tuning.
func DefaultOptions() Options {
	return Options{
		SendTimeout:       1 * time.Second,
		BufferSize:        256,
		PriorityInfoEvery: 50,
	}
}

func (o Options) normalized() Options {
	if o.SendTimeout <= 0 {
		o.SendTimeout = DefaultOptions().SendTimeout
	}
	if o.BufferSize < 1 {
		o.BufferSize = DefaultOptions().BufferSize
	}
	if o.PriorityInfoEvery < 1 {
		o.PriorityInfoEvery = DefaultOptions().PriorityInfoEvery
	}
	return o
}

// Broadcaster classifies, persists, and fans out events. A single mutex
// orders Connect (snapshot plus registration) against Append (persist plus
// fan-out), so a new subscriber's initial snapshot and subsequent live
// events never duplicate or skip an event.
type Broadcaster struct {
	store      EventStore
	classifier *event.Classifier
	selector   *retention.Selector
	registry   *Registry
	logger     logpkg.Logger
	opts       Options

	mu               sync.Mutex
	appendsSinceInfo int
}

// New builds a Broadcaster over the given store and selector.
func New(st EventStore, classifier *event.Classifier, selector *retention.Selector, logger logpkg.Logger, opts Options) *Broadcaster {
	return &Broadcaster{
		store:      st,
		classifier: classifier,
		selector:   selector,
		registry:   NewRegistry(),
		logger:     logger.WithComponent("broadcast"),
		opts:       opts.normalized(),
	}
}

// Registry exposes attached subscribers for control and stats surfaces.
func (b *Broadcaster) Registry() *Registry { return b.registry }

// Append classifies the event, persists it, and fans it out to every
// interested subscriber. Returns the stored form with id, timestamp, and
// priority assigned. A persistence failure reaches no subscriber.
func (b *Broadcaster) Append(ctx context.Context, ev event.Event) (event.Event, error) {
	ev.Priority, ev.Classification = b.classifier.Classify(ev.Kind, ev.Payload)

	b.mu.Lock()
	defer b.mu.Unlock()

	stored, err := b.store.Append(ctx, ev)
	if err != nil {
		return event.Event{}, err
	}

	var info *PriorityInfo
	b.appendsSinceInfo++
	if b.appendsSinceInfo >= b.opts.PriorityInfoEvery {
		b.appendsSinceInfo = 0
		info = b.priorityInfo(b.store.Counts())
	}
	b.fanOut(stored, info)
	return stored, nil
}

// Connect computes a retention snapshot, attaches a subscriber, and enqueues
// the initial envelope, all under the append lock: every event is either in
// the snapshot or delivered live, never both, never neither.
func (b *Broadcaster) Connect(ctx context.Context, scope Scope, sessionIDs []string) (*Subscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	view, err := b.selector.Select(ctx)
	if err != nil {
		return nil, fmt.Errorf("broadcast: initial snapshot: %w", err)
	}
	sub := newSubscriber(scope, b.opts.BufferSize, sessionIDs)
	if scope == ScopeSession {
		view = b.sessionView(view, sub)
	}
	// Initial occupancy describes the snapshot itself, not raw store totals.
	info := b.priorityInfo(store.Counts{
		Total:    uint64(view.TotalEvents),
		Priority: uint64(view.PriorityEvents),
		Regular:  uint64(view.RegularEvents),
	})
	env, err := newInitialEnvelope(view, info, sub.id)
	if err != nil {
		return nil, fmt.Errorf("broadcast: initial envelope: %w", err)
	}

	b.registry.add(sub)
	// The buffer is fresh, so this send cannot block.
	sub.out <- env

	b.logger.Info("subscriber attached",
		logpkg.Str("subscriber_id", sub.id),
		logpkg.Int("scope", int(scope)),
		logpkg.Int("snapshot_events", view.TotalEvents))
	return sub, nil
}

// Disconnect detaches and closes a subscriber. Safe to call for ids already
// gone.
func (b *Broadcaster) Disconnect(id string) {
	if sub := b.registry.remove(id); sub != nil {
		sub.close()
		b.logger.Debug("subscriber detached", logpkg.Str("subscriber_id", id))
	}
}

// Close detaches every subscriber.
func (b *Broadcaster) Close() {
	b.registry.Close()
}

// fanOut delivers one stored event to every interested subscriber. Callers
// hold b.mu. Subscribers that stall past the send timeout are dropped
// without affecting the rest.
func (b *Broadcaster) fanOut(ev event.Event, info *PriorityInfo) {
	subs := b.registry.list()
	if len(subs) == 0 {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("marshal event for fan-out", logpkg.Err(err), logpkg.Uint64("event_id", ev.ID))
		return
	}
	for _, sub := range subs {
		if sub.scope == ScopeSession && !sub.interested(ev.SessionID) {
			continue
		}
		env := newEventEnvelope(ev, data, sub.scope == ScopeSession, info)
		if err := sub.deliver(env, b.opts.SendTimeout); err != nil {
			b.registry.remove(sub.id)
			sub.close()
			b.logger.Warn("dropping subscriber",
				logpkg.Str("subscriber_id", sub.id),
				logpkg.Err(err))
		}
	}
}

// sessionView narrows an initial snapshot to the subscriber's interest set.
func (b *Broadcaster) sessionView(view retention.BucketView, sub *Subscriber) retention.BucketView {
	kept := make([]event.Event, 0, len(view.Events))
	for _, ev := range view.Events {
		if sub.interested(ev.SessionID) {
			kept = append(kept, ev)
		}
	}
	return retention.NewBucketView(kept)
}

func (b *Broadcaster) priorityInfo(counts store.Counts) *PriorityInfo {
	cfg := b.selector.Config()
	return &PriorityInfo{
		TotalEvents:    int(counts.Total),
		PriorityEvents: int(counts.Priority),
		RegularEvents:  int(counts.Regular),
		RetentionWindow: RetentionWindow{
			PriorityHours: cfg.PriorityRetentionHours,
			RegularHours:  cfg.RegularRetentionHours,
		},
	}
}
