package store

import (
	"context"

	"github.com/cockroachdb/pebble"

	"github.com/pulsekit/pulse/internal/event"
	logpkg "github.com/pulsekit/pulse/pkg/log"
)

// QueryPriority returns up to limit priority-bucket events with ts >= sinceTsMs,
// newest-first by (ts, id).
func (s *Store) QueryPriority(ctx context.Context, sinceTsMs int64, limit int) ([]event.Event, error) {
	return s.queryBucket(ctx, BucketPriority, sinceTsMs, limit)
}

// QueryRegular returns up to limit regular-bucket events with ts >= sinceTsMs,
// newest-first by (ts, id).
func (s *Store) QueryRegular(ctx context.Context, sinceTsMs int64, limit int) ([]event.Event, error) {
	return s.queryBucket(ctx, BucketRegular, sinceTsMs, limit)
}

func (s *Store) queryBucket(ctx context.Context, bucket byte, sinceTsMs int64, limit int) ([]event.Event, error) {
	low := keyBucketTsPrefix(bucket, sinceTsMs)
	hi := prefixUpperBound(keyBucketScanPrefix(bucket))
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]event.Event, 0, capHint(limit))
	for ok := iter.Last(); ok && (limit <= 0 || len(out) < limit); ok = iter.Prev() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, id, ok2 := indexKeyTail(iter.Key())
		if !ok2 {
			continue
		}
		ev, err := s.Get(id)
		if err != nil {
			// Index entries can briefly outlive the record during a purge
			// batch race; skip rather than fail the read.
			s.logger.Warn("skipping dangling index entry", logpkg.Uint64("id", id), logpkg.Err(err))
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// SessionQuery bounds a session-scoped range read. Kinds, when non-empty,
// whitelists event kinds. The per-bucket windows mirror the global retention
/// policy: priority events are visible back to SincePriorityMs, regular events
// back to SinceRegularMs.
type SessionQuery struct {
	SessionID       string
	Kinds           []string
	SincePriorityMs int64
	SinceRegularMs  int64
	Limit           int
}

// QuerySession returns a session's events ascending by (ts, id), honoring the
// dual retention windows.
func (s *Store) QuerySession(ctx context.Context, q SessionQuery) ([]event.Event, error) {
	prefix := keySessionScanPrefix(q.SessionID)
	since := q.SincePriorityMs
	if q.SinceRegularMs < since {
		since = q.SinceRegularMs
	}
	low := append(append([]byte(nil), prefix...), be8(uint64(since))...)
	hi := prefixUpperBound(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var kindSet map[string]struct{}
	if len(q.Kinds) > 0 {
		kindSet = make(map[string]struct{}, len(q.Kinds))
		for _, k := range q.Kinds {
			kindSet[k] = struct{}{}
		}
	}

	var out []event.Event
	for ok := iter.First(); ok && (q.Limit <= 0 || len(out) < q.Limit); ok = iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, id, ok2 := indexKeyTail(iter.Key())
		if !ok2 {
			continue
		}
		ev, err := s.Get(id)
		if err != nil {
			continue
		}
		if ev.IsPriority() {
			if ev.TsMs < q.SincePriorityMs {
				continue
			}
		} else if ev.TsMs < q.SinceRegularMs {
			continue
		}
		if kindSet != nil {
			if _, want := kindSet[ev.Kind]; !want {
				continue
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func be8(v uint64) []byte {
	return appendBE8(nil, v)
}

func capHint(limit int) int {
	if limit > 0 && limit < 64 {
		return limit
	}
	return 64
}
