package sse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/echobox/internal/domain/stream"
	"github.com/Strob0t/echobox/internal/service"
)

// recorder collects callback invocations in order.
type recorder struct {
	mu     sync.Mutex
	events []string
	msgs   []stream.Message
	errs   []error
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnConnected:    func(stream.Connected) { r.add("connected") },
		OnDisconnected: func() { r.add("disconnected") },
		OnMessage: func(m stream.Message) {
			r.mu.Lock()
			r.msgs = append(r.msgs, m)
			r.mu.Unlock()
			r.add(fmt.Sprintf("message:%d", m.MessageID))
		},
		OnHeartbeat: func(stream.Heartbeat) { r.add("heartbeat") },
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.add("error")
		},
	}
}

func (r *recorder) count(ev string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == ev {
			n++
		}
	}
	return n
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestBackoffMonotonicAndCapped(t *testing.T) {
	prev := time.Duration(0)
	for attempt := range 15 {
		d := Backoff(attempt, 0)
		if d < prev {
			t.Fatalf("attempt %d: delay %v shorter than previous %v", attempt, d, prev)
		}
		if d > MaxDelay {
			t.Fatalf("attempt %d: delay %v exceeds cap", attempt, d)
		}
		prev = d
	}
	if Backoff(0, 0) != time.Second || Backoff(3, 0) != 8*time.Second || Backoff(5, 0) != MaxDelay {
		t.Fatalf("unexpected base schedule: %v %v %v", Backoff(0, 0), Backoff(3, 0), Backoff(5, 0))
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	for attempt := range 12 {
		base := Backoff(attempt, 0)
		top := Backoff(attempt, 0.999999)
		if top < base || top > base+base/4 {
			t.Fatalf("attempt %d: jittered delay %v outside [%v, %v]", attempt, top, base, base+base/4)
		}
	}
}

func TestClientEndToEnd(t *testing.T) {
	bus := service.NewSessionBus()
	srv := newStreamServer(t, bus, WithHeartbeat(time.Hour))
	rec := &recorder{}

	c := NewClient(srv.URL+"/sessions/sess_abc/stream", rec.callbacks())
	defer c.Disconnect()

	waitFor(t, "connected", func() bool { return rec.count("connected") == 1 })
	if !c.IsConnected() {
		t.Fatal("expected client to report connected")
	}

	bus.Publish(context.Background(), "sess_abc", stream.Message{Text: "Thanks!", Timestamp: time.Now().UTC(), MessageID: 42})
	waitFor(t, "message 42", func() bool { return rec.count("message:42") == 1 })

	c.Disconnect()
	if c.IsConnected() || c.State() != StateDisconnected || !errors.Is(c.Err(), ErrClientClosed) {
		t.Fatalf("expected closed client, state %v err %v", c.State(), c.Err())
	}

	c.Reconnect()
	waitFor(t, "second connected", func() bool { return rec.count("connected") == 2 })
	waitFor(t, "resubscription", func() bool { return bus.SubscriberCount("sess_abc") >= 1 })

	bus.Publish(context.Background(), "sess_abc", stream.Message{Text: "Again", Timestamp: time.Now().UTC(), MessageID: 43})
	waitFor(t, "message 43", func() bool { return rec.count("message:43") == 1 })

	want := []string{"connected", "message:42", "connected", "message:43"}
	got := rec.snapshot()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	var requests atomic.Int32
	var healthy atomic.Bool
	bus := service.NewSessionBus()
	ep := NewEndpoint(bus, WithHeartbeat(time.Hour))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if !healthy.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		ep.ServeHTTP(w, withSessionParam(r, "s1"))
	}))
	defer srv.Close()

	rec := &recorder{}
	c := NewClient(srv.URL, rec.callbacks(), WithBackoff(time.Millisecond, 4*time.Millisecond))
	defer c.Disconnect()

	waitFor(t, "terminal error", func() bool { return rec.count("error") == 1 })
	time.Sleep(50 * time.Millisecond)

	if got := requests.Load(); got != MaxAttempts+1 {
		t.Fatalf("expected %d requests, got %d", MaxAttempts+1, got)
	}
	if rec.count("error") != 1 {
		t.Fatalf("terminal error must fire once, got %d", rec.count("error"))
	}
	rec.mu.Lock()
	terminal := rec.errs[0]
	rec.mu.Unlock()
	if !errors.Is(terminal, ErrReconnectExhausted) {
		t.Fatalf("expected ErrReconnectExhausted, got %v", terminal)
	}
	if rec.count("connected") != 0 || rec.count("disconnected") != 0 {
		t.Fatalf("never-connected client must not report transitions: %v", rec.snapshot())
	}
	if c.State() != StateDisconnected || !errors.Is(c.Err(), ErrReconnectExhausted) {
		t.Fatalf("expected exhausted state, got %v %v", c.State(), c.Err())
	}

	// Manual override after giving up.
	healthy.Store(true)
	c.Reconnect()
	waitFor(t, "manual reconnect", func() bool { return rec.count("connected") == 1 })
	if c.Err() != nil {
		t.Fatalf("expected error cleared, got %v", c.Err())
	}
}

func TestClientDisconnectCancelsPendingRetry(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	rec := &recorder{}
	c := NewClient(srv.URL, rec.callbacks(), WithBackoff(100*time.Millisecond, time.Second))
	waitFor(t, "first attempt", func() bool { return requests.Load() == 1 })
	waitFor(t, "retry scheduled", func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.timer != nil
	})

	c.Disconnect()
	time.Sleep(300 * time.Millisecond)

	if got := requests.Load(); got != 1 {
		t.Fatalf("expected no retry after disconnect, got %d requests", got)
	}
	if ev := rec.snapshot(); len(ev) != 0 {
		t.Fatalf("expected no callbacks, got %v", ev)
	}
}

func TestClientDisconnectCancelsInFlightStream(t *testing.T) {
	bus := service.NewSessionBus()
	srv := newStreamServer(t, bus, WithHeartbeat(time.Hour))
	rec := &recorder{}

	c := NewClient(srv.URL+"/sessions/s1/stream", rec.callbacks())
	waitFor(t, "connected", func() bool { return rec.count("connected") == 1 })

	c.Disconnect()
	waitFor(t, "server side release", func() bool { return bus.SessionCount() == 0 })

	bus.Publish(context.Background(), "s1", stream.Message{MessageID: 9})
	time.Sleep(30 * time.Millisecond)
	if rec.count("message:9") != 0 || rec.count("disconnected") != 0 {
		t.Fatalf("no callback may fire after Disconnect: %v", rec.snapshot())
	}
}

func TestClientReconnectsAfterServerDrop(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := conns.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: connected\ndata: {\"sessionId\":\"s1\",\"timestamp\":\"2026-10-16T12:00:00Z\"}\n\n")
		fmt.Fprintf(w, "event: message\nid: %d\ndata: {\"text\":\"hi\",\"timestamp\":\"2026-10-16T12:00:00Z\",\"messageId\":%d}\n\n", n, n)
		// Returning ends the response; the client sees a dropped stream.
	}))
	defer srv.Close()

	rec := &recorder{}
	c := NewClient(srv.URL, rec.callbacks(), WithBackoff(time.Millisecond, 2*time.Millisecond))
	defer c.Disconnect()

	waitFor(t, "three connections", func() bool { return rec.count("message:3") == 1 })
	c.Disconnect()

	got := rec.snapshot()
	want := []string{"connected", "message:1", "disconnected", "connected", "message:2", "disconnected", "connected", "message:3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected transitions %v, got %v", want, got)
		}
	}
}

func TestClientDropsMalformedAndDuplicateMessages(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: connected\ndata: {\"sessionId\":\"s1\"}\n\n")
		fmt.Fprint(w, "event: message\ndata: {not json\n\n")
		fmt.Fprint(w, "event: message\ndata: {\"text\":\"ok\",\"messageId\":7}\n\n")
		fmt.Fprint(w, "event: message\ndata: {\"text\":\"ok\",\"messageId\":7}\n\n")
		fmt.Fprint(w, "event: message\ndata: {\"text\":\"next\",\"messageId\":8}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	rec := &recorder{}
	c := NewClient(srv.URL, rec.callbacks())
	defer c.Disconnect()

	waitFor(t, "message 8", func() bool { return rec.count("message:8") == 1 })
	if rec.count("message:7") != 1 {
		t.Fatalf("expected one delivery of message 7, got %v", rec.snapshot())
	}
	if !c.IsConnected() || rec.count("disconnected") != 0 {
		t.Fatal("malformed payload must not break the connection")
	}
}

func TestClientCallbackMayDisconnect(t *testing.T) {
	bus := service.NewSessionBus()
	srv := newStreamServer(t, bus, WithHeartbeat(time.Hour))

	var cp atomic.Pointer[Client]
	var delivered atomic.Int32
	c := NewClient(srv.URL+"/sessions/s1/stream", Callbacks{
		OnMessage: func(stream.Message) {
			delivered.Add(1)
			cp.Load().Disconnect()
		},
	})
	cp.Store(c)
	waitFor(t, "subscription", func() bool { return bus.SubscriberCount("s1") == 1 && c.IsConnected() })

	bus.Publish(context.Background(), "s1", stream.Message{MessageID: 1})
	waitFor(t, "disconnect from callback", func() bool { return c.State() == StateDisconnected })
	bus.Publish(context.Background(), "s1", stream.Message{MessageID: 2})
	time.Sleep(30 * time.Millisecond)
	if delivered.Load() != 1 {
		t.Fatalf("expected exactly one delivery, got %d", delivered.Load())
	}
}

func (c *Client) attempts() (attempt int, pending bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt, c.timer != nil
}

func TestClientReconnectOverridesPendingBackoff(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Callbacks{}, WithBackoff(time.Hour, time.Hour))
	defer c.Disconnect()
	waitFor(t, "retry scheduled", func() bool {
		attempt, pending := c.attempts()
		return requests.Load() == 1 && attempt == 1 && pending
	})

	c.Reconnect()
	// An hour-long backoff would push the next request far past the wait.
	waitFor(t, "immediate request", func() bool { return requests.Load() == 2 })
	waitFor(t, "retry rescheduled", func() bool {
		_, pending := c.attempts()
		return pending
	})
	if attempt, _ := c.attempts(); attempt != 1 {
		t.Fatalf("expected the attempt counter to restart, got %d", attempt)
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("expected the old timer to be cancelled, got %d requests", got)
	}
}

func TestClientConnectedResetsAttempts(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch requests.Add(1) {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
		case 2:
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "event: connected\ndata: {\"sessionId\":\"s1\"}\n\n")
		default:
			// Open but silent: the client stays in connecting.
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
			<-r.Context().Done()
		}
	}))
	defer srv.Close()

	rec := &recorder{}
	c := NewClient(srv.URL, rec.callbacks(), WithBackoff(time.Millisecond, 2*time.Millisecond))
	defer c.Disconnect()

	waitFor(t, "third request", func() bool { return requests.Load() == 3 })
	if rec.count("connected") != 1 || rec.count("disconnected") != 1 {
		t.Fatalf("expected one connect and one drop, got %v", rec.snapshot())
	}
	// One failure before the connected event, one after it.
	if attempt, _ := c.attempts(); attempt != 1 {
		t.Fatalf("expected the drop after connecting to restart at the base delay, got attempt %d", attempt)
	}
}

func TestClientReconnectSupersedesStaleFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Callbacks{}, WithBackoff(time.Hour, time.Hour))
	defer c.Disconnect()

	c.mu.Lock()
	stale := c.gen
	c.mu.Unlock()

	c.Reconnect()
	c.fail(stale, errors.New("connection reset"))

	if attempt, pending := c.attempts(); attempt != 0 || pending {
		t.Fatalf("stale failure must not count or schedule, got attempt %d pending %v", attempt, pending)
	}
	if c.State() != StateConnecting {
		t.Fatalf("expected the new connection to stay live, got %v", c.State())
	}
}

func TestStateString(t *testing.T) {
	if StateConnecting.String() != "connecting" || StateConnected.String() != "connected" || StateDisconnected.String() != "disconnected" {
		t.Fatal("unexpected state names")
	}
}

func withSessionParam(r *http.Request, sessionID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("sessionId", sessionID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
