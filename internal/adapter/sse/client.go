package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"mime"
	"net/http"
	"sync"
	"time"

	"github.com/Strob0t/echobox/internal/domain/stream"
)

// Reconnect policy.
const (
	BaseDelay   = time.Second
	MaxDelay    = 30 * time.Second
	MaxAttempts = 10

	dedupeWindow = 256
)

var (
	// ErrReconnectExhausted is reported once when the client gives up.
	ErrReconnectExhausted = errors.New("sse: reconnect attempts exhausted")
	// ErrClientClosed is the terminal error after Disconnect.
	ErrClientClosed = errors.New("sse: client closed")
)

// State is the connection state of a Client.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Callbacks receive stream events. Any of them may be nil. Callbacks are
// never run concurrently with each other and may call Disconnect or
// Reconnect.
type Callbacks struct {
	OnConnected    func(stream.Connected)
	OnDisconnected func()
	OnMessage      func(stream.Message)
	OnHeartbeat    func(stream.Heartbeat)
	// OnError receives terminal errors only. Transport failures that lead to
	// a scheduled retry are logged.
	OnError func(error)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientHTTPClient sets the HTTP client used for stream requests. It must
// not set a total request timeout.
func WithClientHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithBackoff overrides the base and cap of the reconnect delay. The attempt
// ceiling is fixed.
func WithBackoff(base, maxDelay time.Duration) ClientOption {
	return func(c *Client) { c.base, c.max = base, maxDelay }
}

// Backoff returns the reconnect delay for attempt with the default policy.
// jitter in [0, 1) scales the random extra of up to a quarter of the delay.
func Backoff(attempt int, jitter float64) time.Duration {
	return backoff(BaseDelay, MaxDelay, attempt, jitter)
}

func backoff(base, maxDelay time.Duration, attempt int, jitter float64) time.Duration {
	d := base
	for i := 0; i < attempt && d < maxDelay; i++ {
		d *= 2
	}
	d = min(d, maxDelay)
	return d + time.Duration(jitter*0.25*float64(d))
}

// Client consumes a session event stream and keeps it open across transport
// failures with exponential backoff.
type Client struct {
	url    string
	cb     Callbacks
	http   *http.Client
	base   time.Duration
	max    time.Duration
	jitter func() float64

	cbMu sync.Mutex // serializes callbacks

	mu        sync.Mutex
	state     State
	up        bool // OnConnected fired without a matching OnDisconnected
	destroyed bool
	gen       uint64
	attempt   int
	cancel    context.CancelFunc
	timer     *time.Timer
	err       error
	seen      map[int64]struct{}
	order     []int64
}

// NewClient creates a client for url and starts connecting.
func NewClient(url string, cb Callbacks, opts ...ClientOption) *Client {
	c := &Client{
		url:    url,
		cb:     cb,
		http:   &http.Client{},
		base:   BaseDelay,
		max:    MaxDelay,
		jitter: rand.Float64,
		seen:   make(map[int64]struct{}, dedupeWindow),
	}
	for _, o := range opts {
		o(c)
	}
	c.connect()
	return c
}

// IsConnected reports whether the stream is open and has sent its
// connected event.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the terminal error: ErrClientClosed after Disconnect,
// ErrReconnectExhausted after giving up, nil otherwise.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Disconnect closes the stream and cancels any pending retry. No callback
// starts after Disconnect returns unless Reconnect is called.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = true
	c.gen++
	c.stopLocked()
	c.state = StateDisconnected
	c.up = false
	c.err = ErrClientClosed
}

// Reconnect drops the current connection and any pending retry and connects
// immediately with a fresh attempt counter. The dropped connection does not
// report OnDisconnected.
func (c *Client) Reconnect() {
	c.mu.Lock()
	c.destroyed = false
	c.stopLocked()
	c.up = false
	c.attempt = 0
	c.err = nil
	// Superseding the old generation under the same lock keeps its pending
	// failure from rescheduling and counting an attempt.
	c.connectLocked()
	c.mu.Unlock()
}

func (c *Client) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Client) connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectLocked()
}

func (c *Client) connectLocked() {
	if c.destroyed {
		return
	}
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = StateConnecting
	go c.run(ctx, gen)
}

func (c *Client) run(ctx context.Context, gen uint64) {
	err := c.stream(ctx, gen)
	if ctx.Err() != nil {
		return
	}
	c.fail(gen, err)
}

func (c *Client) stream(ctx context.Context, gen uint64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "text/event-stream" {
		return fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	p := NewParser(resp.Body)
	for {
		ev, err := p.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("stream closed by server")
			}
			return err
		}
		c.dispatch(gen, ev)
	}
}

func (c *Client) dispatch(gen uint64, ev Event) {
	switch ev.Event {
	case stream.EventConnected:
		var msg stream.Connected
		if err := json.Unmarshal([]byte(ev.Data), &msg); err != nil {
			slog.Warn("malformed connected event dropped", "error", err)
			return
		}
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.state = StateConnected
		c.attempt = 0
		notify := !c.up
		c.up = true
		c.mu.Unlock()
		if notify && c.cb.OnConnected != nil {
			c.emit(gen, func() { c.cb.OnConnected(msg) })
		}

	case stream.EventMessage:
		var msg stream.Message
		if err := json.Unmarshal([]byte(ev.Data), &msg); err != nil {
			slog.Warn("malformed stream message dropped", "error", err)
			return
		}
		if c.duplicate(msg.MessageID) {
			slog.Debug("duplicate stream message dropped", "message_id", msg.MessageID)
			return
		}
		if c.cb.OnMessage != nil {
			c.emit(gen, func() { c.cb.OnMessage(msg) })
		}

	case stream.EventHeartbeat:
		var msg stream.Heartbeat
		if err := json.Unmarshal([]byte(ev.Data), &msg); err != nil {
			slog.Warn("malformed heartbeat dropped", "error", err)
			return
		}
		if c.cb.OnHeartbeat != nil {
			c.emit(gen, func() { c.cb.OnHeartbeat(msg) })
		}

	default:
		slog.Debug("unknown stream event ignored", "event", ev.Event)
	}
}

func (c *Client) duplicate(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[id]; ok {
		return true
	}
	if len(c.order) == dedupeWindow {
		delete(c.seen, c.order[0])
		c.order = c.order[1:]
	}
	c.seen[id] = struct{}{}
	c.order = append(c.order, id)
	return false
}

// fail handles the end of connection gen and schedules the next attempt.
func (c *Client) fail(gen uint64, cause error) {
	c.mu.Lock()
	if c.gen != gen || c.destroyed {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	wasUp := c.up
	c.up = false

	if c.attempt >= MaxAttempts {
		c.state = StateDisconnected
		c.err = ErrReconnectExhausted
		attempts := c.attempt
		c.mu.Unlock()

		slog.Error("stream reconnect attempts exhausted", "url", c.url, "attempts", attempts, "error", cause)
		if wasUp && c.cb.OnDisconnected != nil {
			c.emit(gen, c.cb.OnDisconnected)
		}
		if c.cb.OnError != nil {
			c.emit(gen, func() { c.cb.OnError(fmt.Errorf("%w: %w", ErrReconnectExhausted, cause)) })
		}
		return
	}

	delay := backoff(c.base, c.max, c.attempt, c.jitter())
	c.attempt++
	attempt := c.attempt
	c.state = StateConnecting
	c.mu.Unlock()

	slog.Warn("stream connection lost, reconnecting", "url", c.url, "attempt", attempt, "delay", delay, "error", cause)
	if wasUp && c.cb.OnDisconnected != nil {
		c.emit(gen, c.cb.OnDisconnected)
	}

	// The callback may have called Disconnect or Reconnect.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen && !c.destroyed {
		c.timer = time.AfterFunc(delay, func() { c.retry(gen) })
	}
}

func (c *Client) retry(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.destroyed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.connectLocked()
	c.mu.Unlock()
}

// emit runs f unless connection gen has been superseded.
func (c *Client) emit(gen uint64, f func()) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()

	c.mu.Lock()
	live := c.gen == gen && !c.destroyed
	c.mu.Unlock()
	if live {
		f()
	}
}
