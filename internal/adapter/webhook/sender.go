// Package webhook implements a notifier.Sender that POSTs a signed JSON
// envelope to a project-configured URL.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Strob0t/echobox/internal/adapter/httpsink"
	"github.com/Strob0t/echobox/internal/domain/channel"
	"github.com/Strob0t/echobox/internal/domain/delivery"
	"github.com/Strob0t/echobox/internal/domain/feedback"
)

const (
	// SignatureHeader carries the hex HMAC-SHA256 of the request body.
	SignatureHeader = "X-Echobox-Signature"
	// UserAgent is sent with every webhook call.
	UserAgent = "Echobox-Webhook/1.0"

	EventFeedbackReceived = "feedback.received"
	EventTest             = "feedback.test"
)

// Envelope is the JSON body of a webhook call.
type Envelope struct {
	Event     string            `json:"event"`
	Feedback  *feedback.Event   `json:"feedback,omitempty"`
	Context   *feedback.Context `json:"context,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Sender delivers feedback to webhook channels.
type Sender struct {
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
}

// Option configures a Sender.
type Option func(*Sender)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) { s.httpClient = c }
}

// WithTimeout overrides the per-call timeout (default 5s).
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) { s.timeout = d }
}

// NewSender creates a webhook sender.
func NewSender(opts ...Option) *Sender {
	s := &Sender{
		httpClient: http.DefaultClient,
		timeout:    httpsink.DefaultTimeout,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sender) Type() channel.Type { return channel.TypeWebhook }

// Send posts the feedback.received envelope to the channel URL.
func (s *Sender) Send(ctx context.Context, ch channel.Channel, d feedback.Delivery) delivery.Result {
	cfg, err := channel.DecodeWebhook(&ch)
	if err != nil {
		return delivery.ConfigError(&ch, err.Error())
	}
	return s.post(ctx, &ch, cfg, Envelope{
		Event:     EventFeedbackReceived,
		Feedback:  &d.Feedback,
		Context:   &d.Context,
		SessionID: d.SessionID,
		Timestamp: s.now().UTC(),
	})
}

// Test posts a feedback.test envelope so the owner can verify the endpoint.
func (s *Sender) Test(ctx context.Context, ch channel.Channel) delivery.Result {
	cfg, err := channel.DecodeWebhook(&ch)
	if err != nil {
		return delivery.ConfigError(&ch, err.Error())
	}
	return s.post(ctx, &ch, cfg, Envelope{Event: EventTest, Timestamp: s.now().UTC()})
}

func (s *Sender) post(ctx context.Context, ch *channel.Channel, cfg channel.WebhookConfig, env Envelope) delivery.Result {
	body, err := json.Marshal(env)
	if err != nil {
		return delivery.ConfigError(ch, "marshal envelope: "+err.Error())
	}

	// Custom headers go first; Set canonicalizes keys, so the fixed headers
	// below replace any case variant of them.
	headers := make(http.Header, len(cfg.Headers)+3)
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}
	headers.Set("Content-Type", "application/json")
	headers.Set("User-Agent", UserAgent)
	if cfg.Secret != "" {
		headers.Set(SignatureHeader, Sign(body, cfg.Secret))
	} else {
		headers.Del(SignatureHeader)
	}

	return httpsink.Post(ctx, s.httpClient, ch, httpsink.Request{
		URL:     cfg.URL,
		Body:    body,
		Headers: headers,
		Timeout: s.timeout,
	})
}
