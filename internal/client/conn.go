package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulsekit/pulse/internal/broadcast"
	"github.com/pulsekit/pulse/internal/event"
	logpkg "github.com/pulsekit/pulse/pkg/log"
)

// State is the connection lifecycle phase.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateLive
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// ConnOptions configures a stream connection.
type ConnOptions struct {
	// URL is the SSE endpoint, e.g. http://host/v1/subscribe/events.
	URL string
	// SessionIDs, when non-empty, requests a session-scoped stream.
	SessionIDs []string
	// InitialBackoff is the first reconnect delay; doubled per attempt up to
	// MaxBackoff, with jitter.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	HTTPClient     *http.Client
	Logger         logpkg.Logger
	// OnEnvelope, when set, observes every well-formed envelope after it has
	// been applied to the cache.
	OnEnvelope func(env broadcast.Envelope)
}

func (o ConnOptions) normalized() ConnOptions {
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.Logger == nil {
		o.Logger = logpkg.NewNopLogger()
	}
	return o
}

// Conn maintains one live stream into a Cache, reconnecting with bounded
// exponential backoff. On every reconnect the cache is replaced wholesale by
// the new initial snapshot.
type Conn struct {
	cache  *Cache
	opts   ConnOptions
	logger logpkg.Logger

	state atomic.Int32

	mu           sync.Mutex
	subscriberID string
}

// NewConn builds a connection over the given cache. Run drives it.
func NewConn(cache *Cache, opts ConnOptions) *Conn {
	opts = opts.normalized()
	return &Conn{
		cache:  cache,
		opts:   opts,
		logger: opts.Logger.WithComponent("client"),
	}
}

// State returns the current lifecycle phase.
func (c *Conn) State() State { return State(c.state.Load()) }

// SubscriberID returns the server-assigned handle from the last initial
// envelope, used for session control requests. Empty before first connect.
func (c *Conn) SubscriberID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscriberID
}

func (c *Conn) setState(s State) {
	if c.state.Swap(int32(s)) != int32(s) {
		c.logger.Debug("connection state", logpkg.Str("state", s.String()))
	}
}

// Run connects and consumes the stream until ctx is cancelled, reconnecting
// on error. Each stream failure discards nothing locally; the cache is only
// replaced once the next snapshot arrives, so readers keep a coherent (if
// stale) view while reconnecting.
func (c *Conn) Run(ctx context.Context) error {
	backoff := c.opts.InitialBackoff
	for {
		c.setState(StateConnecting)
		err := c.consume(ctx)
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}
		c.setState(StateReconnecting)
		c.logger.Warn("stream lost, reconnecting",
			logpkg.Err(err),
			logpkg.Dur("backoff", backoff))

		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		case <-time.After(jitter(backoff)):
		}
		backoff *= 2
		if backoff > c.opts.MaxBackoff {
			backoff = c.opts.MaxBackoff
		}
	}
}

// jitter spreads a delay by ±20% so reconnecting clients don't stampede.
func jitter(d time.Duration) time.Duration {
	f := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * f)
}

func (c *Conn) streamURL() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", fmt.Errorf("client: parse url: %w", err)
	}
	if len(c.opts.SessionIDs) > 0 {
		q := u.Query()
		q.Set("session_ids", strings.Join(c.opts.SessionIDs, ","))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// consume runs one stream attempt: request, then read envelopes until the
// connection drops or ctx is cancelled.
func (c *Conn) consume(ctx context.Context) error {
	target, err := c.streamURL()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: stream status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			if data.Len() > 0 {
				c.handleFrame(data.Bytes())
				data.Reset()
			}
			continue
		}
		if rest, ok := bytes.CutPrefix(line, []byte("data: ")); ok {
			data.Write(rest)
		}
		// other SSE fields (comments, ids) are ignored
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("client: stream closed")
}

// handleFrame decodes one envelope. Malformed frames are logged and dropped;
// they never terminate the receive loop.
func (c *Conn) handleFrame(frame []byte) {
	var env broadcast.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		c.logger.Warn("malformed envelope dropped", logpkg.Err(err))
		return
	}
	if env.PriorityInfo != nil {
		c.cache.SetPriorityInfo(env.PriorityInfo)
	}
	defer func() {
		if c.opts.OnEnvelope != nil {
			c.opts.OnEnvelope(env)
		}
	}()
	switch env.Type {
	case broadcast.TypeInitial:
		var snapshot []event.Event
		if err := json.Unmarshal(env.Data, &snapshot); err != nil {
			c.logger.Warn("malformed snapshot dropped", logpkg.Err(err))
			return
		}
		c.cache.Reset(snapshot)
		c.mu.Lock()
		c.subscriberID = env.SubscriberID
		c.mu.Unlock()
		c.setState(StateLive)
		c.logger.Info("snapshot applied",
			logpkg.Int("events", len(snapshot)),
			logpkg.Str("subscriber_id", env.SubscriberID))
	case broadcast.TypeEvent, broadcast.TypePriorityEvent, broadcast.TypeSessionEvent, broadcast.TypePrioritySessionEvent:
		var ev event.Event
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			c.logger.Warn("malformed event dropped", logpkg.Err(err))
			return
		}
		c.cache.Insert(ev)
	default:
		c.logger.Warn("unknown envelope type dropped", logpkg.Str("type", string(env.Type)))
	}
}
