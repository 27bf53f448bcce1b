// Package ws implements the WebSocket variant of the session stream.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	cfotel "github.com/Strob0t/echobox/internal/adapter/otel"
	"github.com/Strob0t/echobox/internal/domain/stream"
	"github.com/Strob0t/echobox/internal/logger"
)

const writeTimeout = 5 * time.Second

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Subscriber registers a per-session message handler.
type Subscriber interface {
	Subscribe(sessionID string, h func(stream.Message)) (unsubscribe func())
}

// Handler streams a session's messages over a WebSocket connection using the
// same events as the SSE endpoint.
type Handler struct {
	bus        Subscriber
	heartbeat  time.Duration
	bufferSize int
	accept     *websocket.AcceptOptions
	metrics    *cfotel.Metrics
	now        func() time.Time
}

// NewHandler creates a WebSocket stream handler.
func NewHandler(bus Subscriber, heartbeat time.Duration, bufferSize int) *Handler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Handler{bus: bus, heartbeat: heartbeat, bufferSize: bufferSize, accept: acceptOptions("*"), now: time.Now}
}

// SetAllowedOrigin restricts upgrades to pages served from origin, the value
// the CORS middleware allows. Browsers skip CORS for WebSocket handshakes, so
// the check happens here. "*" or "" accepts any origin and leaves the session
// id as the only gate.
func (h *Handler) SetAllowedOrigin(origin string) {
	h.accept = acceptOptions(origin)
}

func acceptOptions(origin string) *websocket.AcceptOptions {
	if origin == "" || origin == "*" {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	host := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		host = u.Host
	}
	return &websocket.AcceptOptions{OriginPatterns: []string{host}}
}

// SetMetrics enables stream metrics.
func (h *Handler) SetMetrics(m *cfotel.Metrics) {
	h.metrics = m
}

// ServeHTTP upgrades GET /sessions/{sessionId}/ws and streams until either
// side closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return
	}

	// The hijacked conn keeps the server deadlines otherwise.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		slog.Warn("websocket accept failed", "origin", r.Header.Get("Origin"), "error", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(logger.WithSessionID(r.Context(), sessionID))
	defer cancel()

	msgs := make(chan stream.Message, h.bufferSize)
	unsubscribe := h.bus.Subscribe(sessionID, func(m stream.Message) {
		select {
		case msgs <- m:
		default:
			slog.WarnContext(ctx, "websocket buffer full, message dropped", "message_id", m.MessageID)
			if h.metrics != nil {
				h.metrics.MessagesDropped.Add(ctx, 1)
			}
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	if h.metrics != nil {
		h.metrics.ActiveStreams.Add(ctx, 1)
		defer h.metrics.ActiveStreams.Add(context.WithoutCancel(ctx), -1)
	}

	// Read loop (to detect disconnects and consume pings)
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	if err := h.write(ctx, conn, stream.EventConnected, stream.Connected{SessionID: sessionID, Timestamp: h.now().UTC()}); err != nil {
		return
	}
	slog.InfoContext(ctx, "websocket connected", "remote", r.RemoteAddr)

	for {
		var err error
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "websocket disconnected")
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case m := <-msgs:
			err = h.write(ctx, conn, stream.EventMessage, m)
			if err == nil && h.metrics != nil {
				h.metrics.MessagesForwarded.Add(ctx, 1)
			}
		case <-ticker.C:
			err = h.write(ctx, conn, stream.EventHeartbeat, stream.Heartbeat{Timestamp: h.now().UTC()})
		}
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.DebugContext(ctx, "websocket write failed", "error", err)
			}
			return
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, typ string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Message{Type: typ, Payload: body})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
