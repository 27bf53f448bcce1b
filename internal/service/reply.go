package service

import (
	"context"
	"fmt"
	"log/slog"

	cfotel "github.com/Strob0t/echobox/internal/adapter/otel"
	"github.com/Strob0t/echobox/internal/domain"
	"github.com/Strob0t/echobox/internal/domain/reply"
	"github.com/Strob0t/echobox/internal/logger"
	"github.com/Strob0t/echobox/internal/port/broadcast"
	"github.com/Strob0t/echobox/internal/port/database"
)

// ReplyService stores developer replies and pushes them to the visitor's
// live session.
type ReplyService struct {
	store     database.ReplyStore
	publisher broadcast.Publisher
}

// NewReplyService creates a ReplyService.
func NewReplyService(store database.ReplyStore, publisher broadcast.Publisher) *ReplyService {
	return &ReplyService{store: store, publisher: publisher}
}

// Create persists the reply, then publishes it to the session. The reply is
// stored even when no stream is open; the visitor picks it up from History.
func (s *ReplyService) Create(ctx context.Context, req reply.CreateRequest) (*reply.Reply, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	r, err := s.store.CreateReply(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create reply: %w", err)
	}

	ctx = logger.WithSessionID(ctx, r.SessionID)
	ctx, span := cfotel.StartPublishSpan(ctx, r.SessionID, r.ID)
	defer span.End()

	n := s.publisher.Publish(ctx, r.SessionID, r.StreamMessage())
	slog.InfoContext(ctx, "reply published", "reply_id", r.ID, "subscribers", n)
	return r, nil
}

// History returns the stored replies of a session, oldest first.
func (s *ReplyService) History(ctx context.Context, sessionID string) ([]reply.Reply, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", domain.ErrValidation)
	}
	replies, err := s.store.ListReplies(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	return replies, nil
}
