package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Strob0t/echobox/internal/domain"
	"github.com/Strob0t/echobox/internal/domain/channel"
	"github.com/Strob0t/echobox/internal/domain/feedback"
	"github.com/Strob0t/echobox/internal/port/notifier"
)

func TestFeedbackService_Submit(t *testing.T) {
	store := &memStore{channels: chans("pk_1", channel.TypeWebhook)}
	svc := NewFeedbackService(NewChannelRouter(store, notifier.NewRegistry(ok(channel.TypeWebhook))))

	s, err := svc.Submit(context.Background(), "pk_1", testFeedback())
	if err != nil {
		t.Fatal(err)
	}
	if s.TotalChannels != 1 || s.Successful != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestFeedbackService_SubmitValidation(t *testing.T) {
	store := &memStore{channels: chans("pk_1", channel.TypeWebhook)}
	svc := NewFeedbackService(NewChannelRouter(store, notifier.NewRegistry(ok(channel.TypeWebhook))))

	tests := []struct {
		name   string
		pk     string
		modify func(*feedback.Delivery)
	}{
		{"missing project key", "", func(*feedback.Delivery) {}},
		{"empty text", "pk_1", func(d *feedback.Delivery) { d.Feedback.Text = "" }},
		{"text too long", "pk_1", func(d *feedback.Delivery) { d.Feedback.Text = strings.Repeat("a", feedback.MaxTextRunes+1) }},
		{"missing url", "pk_1", func(d *feedback.Delivery) { d.Context.URL = "" }},
		{"missing session", "pk_1", func(d *feedback.Delivery) { d.SessionID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testFeedback()
			tt.modify(&d)
			if _, err := svc.Submit(context.Background(), tt.pk, d); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if store.lists != 0 {
		t.Fatalf("invalid submissions must not reach the router, got %d lookups", store.lists)
	}
}
