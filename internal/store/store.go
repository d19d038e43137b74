package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pulsekit/pulse/internal/event"
	pebblestore "github.com/pulsekit/pulse/internal/storage/pebble"
	logpkg "github.com/pulsekit/pulse/pkg/log"
)

// ErrNotFound is returned when an event id has no stored record.
var ErrNotFound = errors.New("store: event not found")

// Store provides append and range-query persistence for events on Pebble.
// Appends are serialized internally; id assignment is atomic here.
type Store struct {
	db     *pebblestore.DB
	logger logpkg.Logger

	mu     sync.Mutex
	lastID uint64
	counts Counts

	nowMs func() int64
}

// Counts tracks how many events each bucket currently holds.
type Counts struct {
	Total    uint64 `json:"total_events"`
	Priority uint64 `json:"priority_events"`
	Regular  uint64 `json:"regular_events"`
}

// Open initializes a Store and loads the last assigned id and bucket counters
// from metadata (if any).
func Open(db *pebblestore.DB, logger logpkg.Logger) (*Store, error) {
	s := &Store{db: db, logger: logger, nowMs: func() int64 { return time.Now().UnixMilli() }}
	meta, err := db.Get(keyMeta())
	if err == nil && len(meta) >= 32 {
		s.lastID = binary.BigEndian.Uint64(meta[0:8])
		s.counts.Total = binary.BigEndian.Uint64(meta[8:16])
		s.counts.Priority = binary.BigEndian.Uint64(meta[16:24])
		s.counts.Regular = binary.BigEndian.Uint64(meta[24:32])
	} else if err != nil && err != pebblestore.ErrKeyNotFound {
		return nil, fmt.Errorf("store: load meta: %w", err)
	}
	return s, nil
}

func encodeMeta(lastID uint64, counts Counts) []byte {
	var meta [32]byte
	binary.BigEndian.PutUint64(meta[0:8], lastID)
	binary.BigEndian.PutUint64(meta[8:16], counts.Total)
	binary.BigEndian.PutUint64(meta[16:24], counts.Priority)
	binary.BigEndian.PutUint64(meta[24:32], counts.Regular)
	return meta[:]
}

// Append assigns the next id (and the current timestamp when absent), then
// persists the record together with its bucket and session index entries and
// the updated metadata as a single atomic batch. Returns the stored form.
// Fails only on storage-layer error; never retried internally.
func (s *Store) Append(ctx context.Context, ev event.Event) (event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.TsMs == 0 {
		ev.TsMs = s.nowMs()
	}
	ev.ID = s.lastID + 1

	rec, err := event.EncodeRecord(ev)
	if err != nil {
		return event.Event{}, fmt.Errorf("store: encode record: %w", err)
	}

	counts := s.counts
	counts.Total++
	if ev.IsPriority() {
		counts.Priority++
	} else {
		counts.Regular++
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyEvent(ev.ID), rec, nil); err != nil {
		return event.Event{}, err
	}
	// The bucket index value carries the session id so purging can delete the
	// session index entry without reading the record.
	if err := b.Set(keyBucket(bucketFor(ev.Priority), ev.TsMs, ev.ID), []byte(ev.SessionID), nil); err != nil {
		return event.Event{}, err
	}
	if ev.SessionID != "" {
		if err := b.Set(keySession(ev.SessionID, ev.TsMs, ev.ID), nil, nil); err != nil {
			return event.Event{}, err
		}
	}
	if err := b.Set(keyMeta(), encodeMeta(ev.ID, counts), nil); err != nil {
		return event.Event{}, err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return event.Event{}, fmt.Errorf("store: commit append: %w", err)
	}

	s.lastID = ev.ID
	s.counts = counts
	return ev, nil
}

// Get returns the stored event with the given id.
func (s *Store) Get(id uint64) (event.Event, error) {
	rec, err := s.db.Get(keyEvent(id))
	if err == pebblestore.ErrKeyNotFound {
		return event.Event{}, ErrNotFound
	}
	if err != nil {
		return event.Event{}, err
	}
	ev, ok := event.DecodeRecord(id, rec)
	if !ok {
		return event.Event{}, fmt.Errorf("store: corrupt record for id %d", id)
	}
	return ev, nil
}

// Counts returns the current per-bucket totals.
func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}

// LastID returns the most recently assigned event id.
func (s *Store) LastID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID
}
