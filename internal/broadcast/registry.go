package broadcast

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scope selects which live envelopes a subscriber receives.
type Scope int

const (
	// ScopeGlobal receives every live event.
	ScopeGlobal Scope = iota
	// ScopeSession receives only events whose session id is in the
	// subscriber's interest set.
	ScopeSession
)

var (
	// ErrSubscriberClosed is returned when delivering to a closed subscriber.
	ErrSubscriberClosed = errors.New("broadcast: subscriber closed")
	// ErrDeliveryTimeout is returned when a subscriber's buffer stays full
	// past the send timeout.
	ErrDeliveryTimeout = errors.New("broadcast: delivery timed out")
)

// Subscriber is one attached consumer. Envelopes arrive on Events; Done is
// closed when the subscriber is detached. The out channel is never closed so
// a concurrent deliver can never panic.
type Subscriber struct {
	id    string
	scope Scope

	out  chan Envelope
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	interest map[string]struct{}
}

func newSubscriber(scope Scope, buffer int, sessionIDs []string) *Subscriber {
	s := &Subscriber{
		id:       uuid.NewString(),
		scope:    scope,
		out:      make(chan Envelope, buffer),
		done:     make(chan struct{}),
		interest: make(map[string]struct{}, len(sessionIDs)),
	}
	for _, sid := range sessionIDs {
		if sid != "" {
			s.interest[sid] = struct{}{}
		}
	}
	return s
}

// ID returns the subscriber's handle, used by control requests.
func (s *Subscriber) ID() string { return s.id }

// Scope returns the subscriber's scope.
func (s *Subscriber) Scope() Scope { return s.scope }

// Events is the subscriber's envelope stream.
func (s *Subscriber) Events() <-chan Envelope { return s.out }

// Done is closed when the subscriber has been detached.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Subscribe adds session ids to the interest set. Takes effect for events
// broadcast after the call; earlier events are not replayed.
func (s *Subscriber) Subscribe(sessionIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sid := range sessionIDs {
		if sid != "" {
			s.interest[sid] = struct{}{}
		}
	}
}

// Unsubscribe removes session ids from the interest set. Unknown ids are
// ignored.
func (s *Subscriber) Unsubscribe(sessionIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sid := range sessionIDs {
		delete(s.interest, sid)
	}
}

// Interest returns a sorted copy of the interest set.
func (s *Subscriber) Interest() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.interest))
	for sid := range s.interest {
		out = append(out, sid)
	}
	sort.Strings(out)
	return out
}

func (s *Subscriber) interested(sessionID string) bool {
	if s.scope == ScopeGlobal {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.interest[sessionID]
	return ok
}

// deliver enqueues an envelope, waiting up to timeout when the buffer is
// full. The interest check happens in the caller; no subscriber lock is held
// across the send.
func (s *Subscriber) deliver(env Envelope, timeout time.Duration) error {
	select {
	case <-s.done:
		return ErrSubscriberClosed
	case s.out <- env:
		return nil
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.done:
		return ErrSubscriberClosed
	case s.out <- env:
		return nil
	case <-t.C:
		return ErrDeliveryTimeout
	}
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// Registry tracks attached subscribers by id.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*Subscriber)}
}

func (r *Registry) add(s *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[s.id] = s
}

func (r *Registry) remove(id string) *Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return nil
	}
	delete(r.subs, id)
	return s
}

// Get returns the subscriber with the given id, if attached.
func (r *Registry) Get(id string) (*Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[id]
	return s, ok
}

// Len returns the number of attached subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Registry) list() []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	return out
}

// Close detaches every subscriber.
func (r *Registry) Close() {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]*Subscriber)
	r.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
}
