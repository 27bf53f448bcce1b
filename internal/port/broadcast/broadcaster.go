// Package broadcast defines the port for pushing real-time events to live
// visitor sessions.
package broadcast

import (
	"context"

	"github.com/Strob0t/echobox/internal/domain/stream"
)

// Publisher delivers a message to every live subscriber of a session.
type Publisher interface {
	// Publish is fire-and-forget and returns the number of local subscribers
	// the message was handed to. Zero subscribers is not an error.
	Publish(ctx context.Context, sessionID string, msg stream.Message) int
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, sessionID string, msg stream.Message) int

func (f PublisherFunc) Publish(ctx context.Context, sessionID string, msg stream.Message) int {
	return f(ctx, sessionID, msg)
}
