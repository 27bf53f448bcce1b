package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/echobox/internal/domain"
	"github.com/Strob0t/echobox/internal/domain/delivery"
	"github.com/Strob0t/echobox/internal/port/database"
	"github.com/Strob0t/echobox/internal/port/notifier"
)

// ChannelTestService runs a channel's test call and marks the channel
// verified when it succeeds.
type ChannelTestService struct {
	channels database.ChannelStore
	registry *notifier.Registry
}

// NewChannelTestService creates a ChannelTestService.
func NewChannelTestService(channels database.ChannelStore, registry *notifier.Registry) *ChannelTestService {
	return &ChannelTestService{channels: channels, registry: registry}
}

// Test runs the test call for channel id. A failed test call is reported in
// the result, not as an error.
func (s *ChannelTestService) Test(ctx context.Context, id int64) (delivery.Result, error) {
	ch, err := s.channels.GetChannel(ctx, id)
	if err != nil {
		return delivery.Result{}, fmt.Errorf("get channel %d: %w", id, err)
	}
	tester, ok := s.registry.Tester(ch.Type)
	if !ok {
		return delivery.Result{}, fmt.Errorf("%w: no test call for channel type %q", domain.ErrUnsupported, ch.Type)
	}

	res := tester.Test(ctx, *ch)
	if !res.Success {
		slog.InfoContext(ctx, "channel test failed", "channel", ch.String(), "kind", res.Kind, "error", res.Error)
		return res, nil
	}
	if !ch.Verified {
		if err := s.channels.MarkChannelVerified(ctx, ch.ID); err != nil {
			return res, fmt.Errorf("mark channel %d verified: %w", ch.ID, err)
		}
	}
	slog.InfoContext(ctx, "channel verified", "channel", ch.String())
	return res, nil
}
