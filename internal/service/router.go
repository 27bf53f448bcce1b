package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	cfotel "github.com/Strob0t/echobox/internal/adapter/otel"
	"github.com/Strob0t/echobox/internal/domain/channel"
	"github.com/Strob0t/echobox/internal/domain/delivery"
	"github.com/Strob0t/echobox/internal/domain/feedback"
	"github.com/Strob0t/echobox/internal/port/database"
	"github.com/Strob0t/echobox/internal/port/notifier"
	"github.com/Strob0t/echobox/internal/resilience"
)

// ChannelRouter delivers one feedback event to every enabled channel of a
// project key concurrently and aggregates the outcomes.
type ChannelRouter struct {
	channels    database.ChannelStore
	registry    *notifier.Registry
	breakers    *resilience.BreakerSet[int64]
	maxParallel int
	metrics     *cfotel.Metrics
}

// NewChannelRouter creates a router that owns registry.
func NewChannelRouter(channels database.ChannelStore, registry *notifier.Registry) *ChannelRouter {
	if registry == nil {
		registry = notifier.NewRegistry()
	}
	return &ChannelRouter{channels: channels, registry: registry}
}

// SetBreakers enables per-channel circuit breaking.
func (r *ChannelRouter) SetBreakers(b *resilience.BreakerSet[int64]) {
	r.breakers = b
}

// SetMaxParallel bounds the number of concurrent sends per fanout. Zero means
// every channel is attempted at once.
func (r *ChannelRouter) SetMaxParallel(n int) {
	r.maxParallel = n
}

// SetMetrics enables delivery metrics.
func (r *ChannelRouter) SetMetrics(m *cfotel.Metrics) {
	r.metrics = m
}

// RegisterSender installs sender for typ, replacing any previous one.
func (r *ChannelRouter) RegisterSender(typ channel.Type, sender notifier.Sender) {
	r.registry.Register(typ, sender)
}

// Registry returns the sender registry owned by the router.
func (r *ChannelRouter) Registry() *notifier.Registry {
	return r.registry
}

// Route attempts delivery to every enabled channel and returns once all
// attempts have settled. Per-channel failures are reported in the summary;
// an error is returned only when the channels cannot be listed.
func (r *ChannelRouter) Route(ctx context.Context, projectKeyID string, d feedback.Delivery) (delivery.Summary, error) {
	ctx, span := cfotel.StartRouteSpan(ctx, projectKeyID, d.SessionID)
	defer span.End()

	chans, err := r.channels.ListEnabledChannels(ctx, projectKeyID)
	if err != nil {
		return delivery.Summarize(nil), fmt.Errorf("list enabled channels: %w", err)
	}
	if len(chans) == 0 {
		slog.DebugContext(ctx, "no enabled channels", "project_key_id", projectKeyID)
		return delivery.Summarize(nil), nil
	}
	if r.metrics != nil {
		r.metrics.FanoutsStarted.Add(ctx, 1)
	}

	results := make([]delivery.Result, len(chans))
	var g errgroup.Group
	if r.maxParallel > 0 {
		g.SetLimit(r.maxParallel)
	}
	for i := range chans {
		g.Go(func() error {
			results[i] = r.send(ctx, chans[i], d)
			return nil
		})
	}
	_ = g.Wait()

	summary := delivery.Summarize(results)
	span.SetAttributes(
		attribute.Int("fanout.total", summary.TotalChannels),
		attribute.Int("fanout.failed", summary.Failed),
	)
	for i := range results {
		if res := &results[i]; !res.Success {
			slog.WarnContext(ctx, "channel delivery failed",
				"project_key_id", projectKeyID,
				"channel_id", res.ChannelID,
				"channel_type", res.ChannelType,
				"kind", res.Kind,
				"status_code", res.StatusCode,
				"error", res.Error,
			)
		}
	}
	slog.InfoContext(ctx, "feedback routed",
		"project_key_id", projectKeyID,
		"total", summary.TotalChannels,
		"successful", summary.Successful,
		"failed", summary.Failed,
	)
	return summary, nil
}

// send performs one isolated delivery. It never panics and always returns a
// result attributed to ch.
func (r *ChannelRouter) send(ctx context.Context, ch channel.Channel, d feedback.Delivery) (res delivery.Result) {
	sender, ok := r.registry.Lookup(ch.Type)
	if !ok {
		return delivery.Unregistered(&ch)
	}

	var breaker *resilience.Breaker
	if r.breakers != nil {
		breaker = r.breakers.Get(ch.ID)
		if !breaker.Allow() {
			return delivery.Failed(&ch, delivery.KindCircuitOpen, "circuit open after repeated failures")
		}
	}

	ctx, span := cfotel.StartSendSpan(ctx, ch.ID, string(ch.Type))
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			slog.ErrorContext(ctx, "channel sender panicked", "channel_id", ch.ID, "channel_type", ch.Type, "panic", p)
			res = delivery.Failed(&ch, delivery.KindPanic, fmt.Sprintf("sender panicked: %v", p))
		}
		res.ChannelID, res.ChannelType = ch.ID, ch.Type
		if breaker != nil {
			// Config failures say nothing about the sink's health.
			breaker.Record(res.Success || res.Kind == delivery.KindConfig)
		}
		cfotel.EndSendSpan(span, &res)
		r.record(ctx, &res, time.Since(start))
	}()

	return sender.Send(ctx, ch, d)
}

func (r *ChannelRouter) record(ctx context.Context, res *delivery.Result, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("channel.type", string(res.ChannelType)))
	r.metrics.DeliveryDuration.Record(ctx, elapsed.Seconds(), attrs)
	if res.Success {
		r.metrics.DeliveriesSucceeded.Add(ctx, 1, attrs)
		return
	}
	r.metrics.DeliveriesFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel.type", string(res.ChannelType)),
		attribute.String("failure.kind", string(res.Kind)),
	))
}
