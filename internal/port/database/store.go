// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/echobox/internal/domain/channel"
	"github.com/Strob0t/echobox/internal/domain/reply"
)

// ChannelStore reads notification channels. Channel management itself lives
// outside this service, so the only write is the verification flag.
type ChannelStore interface {
	// ListEnabledChannels returns the enabled channels of a project key,
	// ordered by id. An unknown key yields an empty slice.
	ListEnabledChannels(ctx context.Context, projectKeyID string) ([]channel.Channel, error)
	GetChannel(ctx context.Context, id int64) (*channel.Channel, error)
	MarkChannelVerified(ctx context.Context, id int64) error
}

// ChannelAdmin manages channels from the operator CLI.
type ChannelAdmin interface {
	CreateChannel(ctx context.Context, ch *channel.Channel) error
	// ListChannels returns every channel of a project key, ordered by id.
	ListChannels(ctx context.Context, projectKeyID string) ([]channel.Channel, error)
}

// ReplyStore persists developer replies.
type ReplyStore interface {
	CreateReply(ctx context.Context, req reply.CreateRequest) (*reply.Reply, error)
	// ListReplies returns the replies of a session, oldest first.
	ListReplies(ctx context.Context, sessionID string) ([]reply.Reply, error)
}

// Store is the port interface for database operations.
type Store interface {
	ChannelStore
	ReplyStore

	Ping(ctx context.Context) error
	Close() error
}
