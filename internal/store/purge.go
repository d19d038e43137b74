package store

import (
	"context"
	"time"

	"github.com/cockroachdb/pebble"

	logpkg "github.com/pulsekit/pulse/pkg/log"
)

// PurgeOptions bounds a purge pass. Each committed batch removes at most
// BatchLimit events; Throttle, when positive, pauses between batches.
type PurgeOptions struct {
	PriorityCutoffMs int64
	RegularCutoffMs  int64
	BatchLimit       int
	Throttle         time.Duration
}

// PurgeExpired deletes events older than each bucket's cutoff. Deletes are
// committed in batches; every batch removes the primary record, both index
// entries, and updates the counters atomically, so cancellation between
// batches never leaves a partially-applied deletion visible.
// Returns the number of deleted events.
func (s *Store) PurgeExpired(ctx context.Context, opts PurgeOptions) (int, error) {
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 1024
	}
	deleted, err := s.purgeBucket(ctx, BucketPriority, opts.PriorityCutoffMs, opts.BatchLimit, opts.Throttle)
	if err != nil {
		return deleted, err
	}
	n, err := s.purgeBucket(ctx, BucketRegular, opts.RegularCutoffMs, opts.BatchLimit, opts.Throttle)
	return deleted + n, err
}

func (s *Store) purgeBucket(ctx context.Context, bucket byte, cutoffMs int64, batchLimit int, throttle time.Duration) (int, error) {
	deleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		n, err := s.purgeBatch(ctx, bucket, cutoffMs, batchLimit)
		deleted += n
		if err != nil {
			return deleted, err
		}
		if n < batchLimit {
			return deleted, nil
		}
		if throttle > 0 {
			select {
			case <-time.After(throttle):
			case <-ctx.Done():
				return deleted, ctx.Err()
			}
		}
	}
}

// purgeBatch removes up to batchLimit expired entries from one bucket in a
// single atomic commit. Holds the append lock for the duration of the batch
// so the metadata counters stay consistent with concurrent appends.
func (s *Store) purgeBatch(ctx context.Context, bucket byte, cutoffMs int64, batchLimit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	low := keyBucketScanPrefix(bucket)
	hi := keyBucketTsPrefix(bucket, cutoffMs) // exclusive: entries with ts < cutoff
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	b := s.db.NewBatch()
	defer b.Close()

	counts := s.counts
	n := 0
	for ok := iter.First(); ok && n < batchLimit; ok = iter.Next() {
		tsMs, id, ok2 := indexKeyTail(iter.Key())
		if !ok2 {
			continue
		}
		if err := b.Delete(iter.Key(), nil); err != nil {
			return 0, err
		}
		if err := b.Delete(keyEvent(id), nil); err != nil {
			return 0, err
		}
		if sid := iter.Value(); len(sid) > 0 {
			if err := b.Delete(keySession(string(sid), tsMs, id), nil); err != nil {
				return 0, err
			}
		}
		counts.Total--
		if bucket == BucketPriority {
			counts.Priority--
		} else {
			counts.Regular--
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	if err := b.Set(keyMeta(), encodeMeta(s.lastID, counts), nil); err != nil {
		return 0, err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	s.counts = counts
	return n, nil
}

// RetentionWindows supplies the purge cutoffs for each bucket.
type RetentionWindows struct {
	PriorityRetention time.Duration
	RegularRetention  time.Duration
}

// Purger periodically removes events past both retention windows.
type Purger struct {
	store    *Store
	windows  RetentionWindows
	interval time.Duration
	batch    int
	logger   logpkg.Logger
}

// NewPurger builds a Purger. interval <= 0 defaults to one minute.
func NewPurger(s *Store, windows RetentionWindows, interval time.Duration, batchLimit int, logger logpkg.Logger) *Purger {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Purger{store: s, windows: windows, interval: interval, batch: batchLimit, logger: logger}
}

// Run blocks, purging on every tick until ctx is cancelled. Cancellation
// mid-pass stops between batches, leaving the store consistent.
func (p *Purger) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			n, err := p.store.PurgeExpired(ctx, PurgeOptions{
				PriorityCutoffMs: now.Add(-p.windows.PriorityRetention).UnixMilli(),
				RegularCutoffMs:  now.Add(-p.windows.RegularRetention).UnixMilli(),
				BatchLimit:       p.batch,
			})
			if err != nil && ctx.Err() == nil {
				p.logger.Error("purge pass failed", logpkg.Err(err))
				continue
			}
			if n > 0 {
				p.logger.Debug("purged expired events", logpkg.Int("deleted", n))
			}
		}
	}
}
