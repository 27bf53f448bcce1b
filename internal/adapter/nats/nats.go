// Package nats relays session messages between Echobox instances over core
// NATS so a reply published on one node reaches streams held by another.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Strob0t/echobox/internal/domain/stream"
	"github.com/Strob0t/echobox/internal/port/broadcast"
)

// DefaultSubject carries relayed session messages.
const DefaultSubject = "echobox.session.replies"

var _ broadcast.Publisher = (*Relay)(nil)

// envelope is the wire form of a relayed message.
type envelope struct {
	Origin    string         `json:"origin"`
	SessionID string         `json:"session_id"`
	Message   stream.Message `json:"message"`
}

// Relay publishes to the local bus and to every other instance. Delivery
// stays at-most-once: core NATS does not queue for absent subscribers.
type Relay struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	origin  string
	local   broadcast.Publisher
}

// Connect establishes a connection to NATS and subscribes to subject.
func Connect(url, subject string, local broadcast.Publisher) (*Relay, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(url,
		nats.Name("echobox"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	r := newRelay(subject, local)
	r.nc = nc
	r.sub, err = nc.Subscribe(subject, r.handle)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	if err := nc.Flush(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats flush: %w", err)
	}

	slog.Info("nats relay connected", "url", url, "subject", subject, "origin", r.origin)
	return r, nil
}

func newRelay(subject string, local broadcast.Publisher) *Relay {
	return &Relay{subject: subject, origin: uuid.NewString(), local: local}
}

// Publish delivers msg to local subscribers and forwards it to the other
// instances. The returned count covers local subscribers only.
func (r *Relay) Publish(ctx context.Context, sessionID string, msg stream.Message) int {
	n := r.local.Publish(ctx, sessionID, msg)

	data, err := json.Marshal(envelope{Origin: r.origin, SessionID: sessionID, Message: msg})
	if err != nil {
		slog.ErrorContext(ctx, "relay marshal failed", "error", err)
		return n
	}
	m := nats.NewMsg(r.subject)
	m.Data = data
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(m.Header))
	if err := r.nc.PublishMsg(m); err != nil {
		slog.WarnContext(ctx, "relay publish failed", "subject", r.subject, "error", err)
	}
	return n
}

func (r *Relay) handle(m *nats.Msg) {
	var env envelope
	if err := json.Unmarshal(m.Data, &env); err != nil {
		slog.Warn("malformed relay message dropped", "subject", m.Subject, "error", err)
		return
	}
	if env.Origin == r.origin || env.SessionID == "" {
		return
	}
	ctx := context.Background()
	if m.Header != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(m.Header))
	}
	r.local.Publish(ctx, env.SessionID, env.Message)
}

// Connected reports whether the NATS connection is up.
func (r *Relay) Connected() bool {
	return r.nc != nil && r.nc.IsConnected()
}

// Close unsubscribes and shuts down the NATS connection.
func (r *Relay) Close() error {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
	if r.nc != nil {
		r.nc.Close()
	}
	return nil
}
