// Package sse implements the server-sent events stream of a visitor session
// and the reconnecting client that consumes it.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	cfotel "github.com/Strob0t/echobox/internal/adapter/otel"
	"github.com/Strob0t/echobox/internal/domain/stream"
	"github.com/Strob0t/echobox/internal/logger"
)

// Defaults for a stream connection.
const (
	DefaultHeartbeat  = 30 * time.Second
	DefaultBufferSize = 16
	DefaultRetryHint  = time.Second
)

// Subscriber registers a per-session message handler.
type Subscriber interface {
	Subscribe(sessionID string, h func(stream.Message)) (unsubscribe func())
}

// EndpointOption configures an Endpoint.
type EndpointOption func(*Endpoint)

// WithHeartbeat sets the heartbeat interval.
func WithHeartbeat(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.heartbeat = d }
}

// WithBufferSize sets the number of messages buffered per connection before
// new ones are dropped.
func WithBufferSize(n int) EndpointOption {
	return func(e *Endpoint) { e.bufferSize = n }
}

// WithRetryHint sets the retry hint written once at the start of a stream.
// Zero omits it.
func WithRetryHint(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.retryHint = d }
}

// Endpoint streams the messages of one session to a connected client.
type Endpoint struct {
	bus        Subscriber
	heartbeat  time.Duration
	bufferSize int
	retryHint  time.Duration
	metrics    *cfotel.Metrics
	now        func() time.Time
}

// NewEndpoint creates a stream endpoint backed by bus.
func NewEndpoint(bus Subscriber, opts ...EndpointOption) *Endpoint {
	e := &Endpoint{
		bus:        bus,
		heartbeat:  DefaultHeartbeat,
		bufferSize: DefaultBufferSize,
		retryHint:  DefaultRetryHint,
		now:        time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.heartbeat <= 0 {
		e.heartbeat = DefaultHeartbeat
	}
	if e.bufferSize <= 0 {
		e.bufferSize = DefaultBufferSize
	}
	return e
}

// SetMetrics enables stream metrics.
func (e *Endpoint) SetMetrics(m *cfotel.Metrics) {
	e.metrics = m
}

// ServeHTTP handles GET /sessions/{sessionId}/stream. It returns when the
// client goes away or a write fails; the bus subscription and heartbeat
// ticker are released on every return path.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := logger.WithSessionID(r.Context(), sessionID)
	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	msgs := make(chan stream.Message, e.bufferSize)
	unsubscribe := e.bus.Subscribe(sessionID, func(m stream.Message) {
		select {
		case msgs <- m:
		default:
			slog.WarnContext(ctx, "stream buffer full, message dropped", "message_id", m.MessageID)
			if e.metrics != nil {
				e.metrics.MessagesDropped.Add(ctx, 1)
			}
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(e.heartbeat)
	defer ticker.Stop()

	if e.metrics != nil {
		e.metrics.ActiveStreams.Add(ctx, 1)
		defer e.metrics.ActiveStreams.Add(context.WithoutCancel(ctx), -1)
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if e.retryHint > 0 {
		if _, err := fmt.Fprintf(w, "retry: %d\n\n", e.retryHint.Milliseconds()); err != nil {
			return
		}
	}
	if err := writeEvent(w, stream.EventConnected, "", stream.Connected{SessionID: sessionID, Timestamp: e.now().UTC()}); err != nil {
		slog.DebugContext(ctx, "stream write failed", "error", err)
		return
	}
	flusher.Flush()
	slog.InfoContext(ctx, "stream opened", "remote", r.RemoteAddr)

	for {
		var err error
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "stream closed by client")
			return
		case m := <-msgs:
			err = writeEvent(w, stream.EventMessage, strconv.FormatInt(m.MessageID, 10), m)
			if err == nil && e.metrics != nil {
				e.metrics.MessagesForwarded.Add(ctx, 1)
			}
		case <-ticker.C:
			err = writeEvent(w, stream.EventHeartbeat, "", stream.Heartbeat{Timestamp: e.now().UTC()})
		}
		if err != nil {
			slog.InfoContext(ctx, "stream write failed", "error", err)
			return
		}
		flusher.Flush()
	}
}

func writeEvent(w io.Writer, event, id string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if id != "" {
		_, err = fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", event, id, data)
	} else {
		_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	}
	return err
}
