// Package service contains application services.
package service

import (
	"context"
	"log/slog"
	"sync"

	cfotel "github.com/Strob0t/echobox/internal/adapter/otel"
	"github.com/Strob0t/echobox/internal/domain/stream"
	"github.com/Strob0t/echobox/internal/port/broadcast"
)

var _ broadcast.Publisher = (*SessionBus)(nil)

// SessionBus maps a visitor session to the handlers of its live streams.
//
// Delivery is at-most-once and process-local: a message published while a
// session has no subscriber is dropped. Handlers run on the publisher's
// goroutine and must not block.
type SessionBus struct {
	mu       sync.RWMutex
	sessions map[string]map[uint64]func(stream.Message)
	nextID   uint64
	metrics  *cfotel.Metrics
}

// NewSessionBus creates an empty bus.
func NewSessionBus() *SessionBus {
	return &SessionBus{sessions: make(map[string]map[uint64]func(stream.Message))}
}

// SetMetrics enables publish counters.
func (b *SessionBus) SetMetrics(m *cfotel.Metrics) {
	b.metrics = m
}

// Subscribe registers h for sessionID and returns its unsubscribe function.
// Any Publish that starts after Subscribe returns reaches h. Unsubscribe is
// idempotent and removes the session entry once its last handler is gone.
func (b *SessionBus) Subscribe(sessionID string, h func(stream.Message)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	subs, ok := b.sessions[sessionID]
	if !ok {
		subs = make(map[uint64]func(stream.Message))
		b.sessions[sessionID] = subs
	}
	subs[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sessionID, id) })
	}
}

func (b *SessionBus) remove(sessionID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.sessions[sessionID]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(b.sessions, sessionID)
	}
}

// Publish hands msg to every current subscriber of sessionID and returns how
// many there were. Handlers are called outside the lock; a panicking handler
// is logged and does not affect the others.
func (b *SessionBus) Publish(ctx context.Context, sessionID string, msg stream.Message) int {
	b.mu.RLock()
	subs := b.sessions[sessionID]
	handlers := make([]func(stream.Message), 0, len(subs))
	for _, h := range subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	if len(handlers) == 0 {
		slog.DebugContext(ctx, "no subscribers, message dropped", "session_id", sessionID, "message_id", msg.MessageID)
		return 0
	}

	for _, h := range handlers {
		b.deliver(ctx, sessionID, h, msg)
	}
	if b.metrics != nil {
		b.metrics.MessagesPublished.Add(ctx, int64(len(handlers)))
	}
	return len(handlers)
}

func (b *SessionBus) deliver(ctx context.Context, sessionID string, h func(stream.Message), msg stream.Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "session subscriber panicked", "session_id", sessionID, "panic", r)
		}
	}()
	h(msg)
}

// SubscriberCount returns the number of live subscribers of sessionID.
func (b *SessionBus) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions[sessionID])
}

// SessionCount returns the number of sessions with at least one subscriber.
func (b *SessionBus) SessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}
