package service

import (
	"context"
	"fmt"

	"github.com/Strob0t/echobox/internal/domain"
	"github.com/Strob0t/echobox/internal/domain/delivery"
	"github.com/Strob0t/echobox/internal/domain/feedback"
	"github.com/Strob0t/echobox/internal/logger"
)

// FeedbackService accepts widget submissions and hands them to the router.
type FeedbackService struct {
	router *ChannelRouter
}

// NewFeedbackService creates a FeedbackService.
func NewFeedbackService(router *ChannelRouter) *FeedbackService {
	return &FeedbackService{router: router}
}

// Submit validates the delivery and fans it out to the project's channels.
func (s *FeedbackService) Submit(ctx context.Context, projectKeyID string, d feedback.Delivery) (delivery.Summary, error) {
	if projectKeyID == "" {
		return delivery.Summary{}, fmt.Errorf("%w: project key is required", domain.ErrValidation)
	}
	if err := d.Validate(); err != nil {
		return delivery.Summary{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return s.router.Route(logger.WithSessionID(ctx, d.SessionID), projectKeyID, d)
}
