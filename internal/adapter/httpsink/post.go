// Package httpsink provides the timeout-and-classify POST shared by the
// HTTP-based channel senders (webhook, Slack).
package httpsink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Strob0t/echobox/internal/domain/channel"
	"github.com/Strob0t/echobox/internal/domain/delivery"
)

// DefaultTimeout bounds a single outbound call.
const DefaultTimeout = 5 * time.Second

// maxDrain caps how much of a response body is read before closing.
const maxDrain = 64 << 10

// Request describes one outbound POST.
type Request struct {
	URL     string
	Body    []byte
	Headers http.Header
	Timeout time.Duration
}

// Post sends req and classifies the outcome into one of three failure shapes:
// timed out, non-2xx response, or transport error. It never returns a Go error.
func Post(ctx context.Context, client *http.Client, ch *channel.Channel, req Request) delivery.Result {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return delivery.ConfigError(ch, "build request: "+err.Error())
	}
	for k, vs := range req.Headers {
		httpReq.Header[k] = vs
	}

	resp, err := client.Do(httpReq) //nolint:gosec // G704: target URL comes from channel config
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return delivery.TimedOut(ch, timeout)
		}
		return delivery.Transport(ch, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return delivery.HTTPStatus(ch, resp.StatusCode, resp.Status)
	}
	return delivery.Succeeded(ch, resp.StatusCode)
}
