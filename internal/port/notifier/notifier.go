// Package notifier defines the channel sender port and the sender registry a
// router owns.
package notifier

import (
	"context"

	"github.com/Strob0t/echobox/internal/domain/channel"
	"github.com/Strob0t/echobox/internal/domain/delivery"
	"github.com/Strob0t/echobox/internal/domain/feedback"
)

// Sender delivers one feedback event to one channel.
//
// Send must not panic and must not return until its own timeout has elapsed
// at the latest; every failure is reported through the returned Result.
type Sender interface {
	// Type returns the channel type this sender handles.
	Type() channel.Type

	// Send attempts exactly one delivery.
	Send(ctx context.Context, ch channel.Channel, d feedback.Delivery) delivery.Result
}

// Tester is implemented by senders that can prove a channel works with a
// test call before it is marked verified.
type Tester interface {
	Test(ctx context.Context, ch channel.Channel) delivery.Result
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc struct {
	ChannelType channel.Type
	Fn          func(ctx context.Context, ch channel.Channel, d feedback.Delivery) delivery.Result
}

func (f SenderFunc) Type() channel.Type { return f.ChannelType }

func (f SenderFunc) Send(ctx context.Context, ch channel.Channel, d feedback.Delivery) delivery.Result {
	return f.Fn(ctx, ch, d)
}
