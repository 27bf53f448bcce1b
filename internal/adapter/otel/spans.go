package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Strob0t/echobox/internal/domain/delivery"
)

const tracerName = "echobox"

// StartRouteSpan starts a span for one feedback fanout.
func StartRouteSpan(ctx context.Context, projectKeyID, sessionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "route",
		trace.WithAttributes(
			attribute.String("project_key.id", projectKeyID),
			attribute.String("session.id", sessionID),
		),
	)
}

// StartSendSpan starts a span for one channel delivery within a fanout.
func StartSendSpan(ctx context.Context, channelID int64, channelType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "send",
		trace.WithAttributes(
			attribute.Int64("channel.id", channelID),
			attribute.String("channel.type", channelType),
		),
	)
}

// EndSendSpan records the result on span and ends it.
func EndSendSpan(span trace.Span, res *delivery.Result) {
	span.SetAttributes(attribute.Bool("delivery.success", res.Success))
	if res.StatusCode != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))
	}
	if !res.Success {
		span.SetAttributes(attribute.String("delivery.failure_kind", string(res.Kind)))
		span.SetStatus(codes.Error, res.Error)
	}
	span.End()
}

// StartPublishSpan starts a span for a reply published to a session.
func StartPublishSpan(ctx context.Context, sessionID string, messageID int64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "publish",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int64("message.id", messageID),
		),
	)
}
