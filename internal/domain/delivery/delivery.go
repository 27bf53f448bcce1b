// Package delivery provides the per-channel result and aggregate summary of a
// feedback fanout.
package delivery

import (
	"fmt"

	"github.com/Strob0t/echobox/internal/domain/channel"
)

// FailureKind classifies why a channel delivery failed, so a summary can be
// diagnosed without parsing error strings.
type FailureKind string

const (
	KindTimeout      FailureKind = "timeout"
	KindHTTPStatus   FailureKind = "http_status"
	KindTransport    FailureKind = "transport"
	KindConfig       FailureKind = "config"
	KindUnregistered FailureKind = "unregistered"
	KindPanic        FailureKind = "panic"
	KindCircuitOpen  FailureKind = "circuit_open"
)

// ErrNoSender is the error text of results for channel types without a sender.
const ErrNoSender = "no sender registered"

// Result is the outcome of one delivery attempt to one channel.
type Result struct {
	ChannelID   int64        `json:"channelId"`
	ChannelType channel.Type `json:"channelType"`
	Success     bool         `json:"success"`
	Error       string       `json:"error,omitempty"`
	StatusCode  int          `json:"statusCode,omitempty"`
	Kind        FailureKind  `json:"kind,omitempty"`
}

// Succeeded returns a successful result. statusCode may be zero for sinks
// that have no HTTP status (email).
func Succeeded(ch *channel.Channel, statusCode int) Result {
	return Result{ChannelID: ch.ID, ChannelType: ch.Type, Success: true, StatusCode: statusCode}
}

// Failed returns a failed result of the given kind.
func Failed(ch *channel.Channel, kind FailureKind, msg string) Result {
	return Result{ChannelID: ch.ID, ChannelType: ch.Type, Error: msg, Kind: kind}
}

// TimedOut returns the distinct timeout failure.
func TimedOut(ch *channel.Channel, after fmt.Stringer) Result {
	return Failed(ch, KindTimeout, "request timed out after "+after.String())
}

// HTTPStatus returns a failure for a non-2xx response.
func HTTPStatus(ch *channel.Channel, code int, status string) Result {
	r := Failed(ch, KindHTTPStatus, "HTTP "+status)
	r.StatusCode = code
	return r
}

// Transport returns a failure for a network-level error.
func Transport(ch *channel.Channel, err error) Result {
	return Failed(ch, KindTransport, err.Error())
}

// ConfigError returns a failure raised before any network call.
func ConfigError(ch *channel.Channel, msg string) Result {
	return Failed(ch, KindConfig, msg)
}

// Unregistered returns the failure for a channel type no sender handles.
func Unregistered(ch *channel.Channel) Result {
	return Failed(ch, KindUnregistered, ErrNoSender)
}

// Summary aggregates the results of one fanout. It is only built once every
// attempt has settled.
type Summary struct {
	TotalChannels int      `json:"totalChannels"`
	Successful    int      `json:"successful"`
	Failed        int      `json:"failed"`
	Results       []Result `json:"results"`
}

// Summarize tallies results. The returned summary always satisfies
// Successful+Failed == TotalChannels == len(Results).
func Summarize(results []Result) Summary {
	s := Summary{TotalChannels: len(results), Results: results}
	if s.Results == nil {
		s.Results = []Result{}
	}
	for i := range results {
		if results[i].Success {
			s.Successful++
		} else {
			s.Failed++
		}
	}
	return s
}
