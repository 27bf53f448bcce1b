// Package slack implements a notifier.Sender for Slack incoming webhooks.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Strob0t/echobox/internal/adapter/httpsink"
	"github.com/Strob0t/echobox/internal/domain/channel"
	"github.com/Strob0t/echobox/internal/domain/delivery"
	"github.com/Strob0t/echobox/internal/domain/feedback"
)

// HookPrefix is the only URL prefix accepted on the test-call path.
const HookPrefix = "https://hooks.slack.com/"

// headerLimit is Slack's maximum length for plain_text header blocks.
const headerLimit = 150

// Sender posts Block Kit messages to Slack incoming webhooks.
type Sender struct {
	httpClient *http.Client
	timeout    time.Duration
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

// NewSender creates a Slack sender.
func NewSender(opts ...Option) *Sender {
	s := &Sender{
		httpClient: http.DefaultClient,
		timeout:    httpsink.DefaultTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sender) Type() channel.Type { return channel.TypeSlack }

// Send posts the feedback as a Block Kit message.
func (s *Sender) Send(ctx context.Context, ch channel.Channel, d feedback.Delivery) delivery.Result {
	cfg, err := channel.DecodeSlack(&ch)
	if err != nil {
		return delivery.ConfigError(&ch, err.Error())
	}
	return s.post(ctx, &ch, cfg.WebhookURL, feedbackMessage(d))
}

// Test validates the hook URL prefix before posting a short confirmation.
func (s *Sender) Test(ctx context.Context, ch channel.Channel) delivery.Result {
	cfg, err := channel.DecodeSlack(&ch)
	if err != nil {
		return delivery.ConfigError(&ch, err.Error())
	}
	if !strings.HasPrefix(cfg.WebhookURL, HookPrefix) {
		return delivery.ConfigError(&ch, "invalid Slack webhook URL: must start with "+HookPrefix)
	}
	return s.post(ctx, &ch, cfg.WebhookURL, message{
		Text: "Echobox test notification",
		Blocks: []block{
			{Type: "section", Text: &text{Type: "mrkdwn", Text: ":white_check_mark: Echobox is connected to this channel."}},
		},
	})
}

func (s *Sender) post(ctx context.Context, ch *channel.Channel, url string, msg message) delivery.Result {
	body, err := json.Marshal(msg)
	if err != nil {
		return delivery.ConfigError(ch, "marshal slack message: "+err.Error())
	}
	return httpsink.Post(ctx, s.httpClient, ch, httpsink.Request{
		URL:     url,
		Body:    body,
		Headers: http.Header{"Content-Type": {"application/json"}},
		Timeout: s.timeout,
	})
}

// message is the Slack Block Kit payload. Text is the notification fallback.
type message struct {
	Text   string  `json:"text"`
	Blocks []block `json:"blocks"`
}

type block struct {
	Type     string  `json:"type"`
	Text     *text   `json:"text,omitempty"`
	Elements []*text `json:"elements,omitempty"`
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func feedbackMessage(d feedback.Delivery) message {
	fc := d.Context
	blocks := []block{
		{Type: "header", Text: &text{Type: "plain_text", Text: truncate("New feedback on "+pageLabel(fc.URL), headerLimit)}},
		{Type: "section", Text: &text{Type: "mrkdwn", Text: quote(escape(d.Feedback.Text))}},
		{Type: "context", Elements: []*text{
			{Type: "mrkdwn", Text: fmt.Sprintf("*Page:* %s", escape(fc.URL))},
			{Type: "mrkdwn", Text: fmt.Sprintf("*Browser:* %s · *OS:* %s · %dx%d", escape(fc.Browser), escape(fc.OS), fc.Viewport.Width, fc.Viewport.Height)},
		}},
	}

	var links []string
	if u := d.Feedback.ScreenshotURL; u != nil && *u != "" {
		links = append(links, fmt.Sprintf("<%s|Screenshot>", *u))
	}
	if u := d.Feedback.AudioURL; u != nil && *u != "" {
		links = append(links, fmt.Sprintf("<%s|Voice note>", *u))
	}
	if len(links) > 0 {
		blocks = append(blocks, block{Type: "section", Text: &text{Type: "mrkdwn", Text: strings.Join(links, "  ")}})
	}

	if n := len(fc.ConsoleErrors); n > 0 {
		blocks = append(blocks, block{Type: "context", Elements: []*text{
			{Type: "mrkdwn", Text: fmt.Sprintf(":warning: %d console error(s), first: `%s`", n, escape(truncate(fc.ConsoleErrors[0].Message, 200)))},
		}})
	}
	if d.SessionID != "" {
		blocks = append(blocks, block{Type: "context", Elements: []*text{
			{Type: "mrkdwn", Text: "Reply from the dashboard to session `" + escape(d.SessionID) + "`"},
		}})
	}

	return message{Text: truncate("New feedback: "+d.Feedback.Text, headerLimit), Blocks: blocks}
}

func pageLabel(u string) string {
	u = strings.TrimPrefix(strings.TrimPrefix(u, "https://"), "http://")
	if u == "" {
		return "your site"
	}
	return u
}

// escape applies Slack's control character escaping for mrkdwn text.
func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

func quote(s string) string {
	return "> " + strings.ReplaceAll(s, "\n", "\n> ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
