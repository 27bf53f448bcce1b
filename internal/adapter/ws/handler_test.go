package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/echobox/internal/domain/stream"
	"github.com/Strob0t/echobox/internal/service"
)

func dial(t *testing.T, bus *service.SessionBus, heartbeat time.Duration, session string) *websocket.Conn {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/sessions/{sessionId}/ws", NewHandler(bus, heartbeat, 4).ServeHTTP)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + session + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return m
}

func TestHandlerConnectedThenMessage(t *testing.T) {
	bus := service.NewSessionBus()
	conn := dial(t, bus, time.Hour, "sess_abc")

	first := readMessage(t, conn)
	if first.Type != stream.EventConnected {
		t.Fatalf("expected connected first, got %q", first.Type)
	}
	var c stream.Connected
	if err := json.Unmarshal(first.Payload, &c); err != nil || c.SessionID != "sess_abc" {
		t.Fatalf("unexpected connected payload %s (%v)", first.Payload, err)
	}

	bus.Publish(context.Background(), "sess_abc", stream.Message{Text: "Fixed", MessageID: 42})
	msg := readMessage(t, conn)
	var m stream.Message
	if err := json.Unmarshal(msg.Payload, &m); err != nil {
		t.Fatal(err)
	}
	if msg.Type != stream.EventMessage || m.MessageID != 42 || m.Text != "Fixed" {
		t.Fatalf("unexpected message %+v %+v", msg, m)
	}
}

func TestHandlerHeartbeat(t *testing.T) {
	bus := service.NewSessionBus()
	conn := dial(t, bus, 20*time.Millisecond, "s1")
	_ = readMessage(t, conn)
	if hb := readMessage(t, conn); hb.Type != stream.EventHeartbeat {
		t.Fatalf("expected heartbeat, got %q", hb.Type)
	}
}

func TestHandlerReleasesSubscriptionOnClose(t *testing.T) {
	bus := service.NewSessionBus()
	conn := dial(t, bus, time.Hour, "s1")
	_ = readMessage(t, conn)
	if bus.SubscriberCount("s1") != 1 {
		t.Fatalf("expected one subscriber, got %d", bus.SubscriberCount("s1"))
	}

	_ = conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(2 * time.Second)
	for bus.SessionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not released after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandlerAllowedOrigin(t *testing.T) {
	h := NewHandler(service.NewSessionBus(), time.Hour, 4)
	h.SetAllowedOrigin("https://shop.example.com")
	r := chi.NewRouter()
	r.Get("/sessions/{sessionId}/ws", h.ServeHTTP)
	srv := httptest.NewServer(r)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/s1/ws"

	tests := []struct {
		origin string
		ok     bool
	}{
		{"https://shop.example.com", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
				HTTPHeader: http.Header{"Origin": {tt.origin}},
			})
			if tt.ok {
				if err != nil {
					t.Fatalf("expected upgrade, got %v", err)
				}
				conn.CloseNow()
				return
			}
			if err == nil {
				conn.CloseNow()
				t.Fatal("expected foreign origin to be rejected")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Fatalf("expected 403, got %v", resp)
			}
		})
	}
}
