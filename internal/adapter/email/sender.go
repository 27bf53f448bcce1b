package email

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/Strob0t/echobox/internal/domain/channel"
	"github.com/Strob0t/echobox/internal/domain/delivery"
	"github.com/Strob0t/echobox/internal/domain/feedback"
)

// DefaultTimeout bounds one mail hand-off.
const DefaultTimeout = 5 * time.Second

// NotVerifiedMessage is the config failure reported for unverified addresses.
const NotVerifiedMessage = "email not verified"

// Sender delivers feedback by email through a Mailer.
type Sender struct {
	mailer  Mailer
	timeout time.Duration
}

// NewSender creates an email sender. A zero timeout uses DefaultTimeout.
func NewSender(m Mailer, timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sender{mailer: m, timeout: timeout}
}

func (s *Sender) Type() channel.Type { return channel.TypeEmail }

// Send mails the feedback to the channel address. Unverified addresses fail
// before the mailer is called. The address is verified out of band by setting
// the config's verified flag; email channels have no test call.
func (s *Sender) Send(ctx context.Context, ch channel.Channel, d feedback.Delivery) delivery.Result {
	cfg, err := channel.DecodeEmail(&ch)
	if err != nil {
		return delivery.ConfigError(&ch, err.Error())
	}
	if !cfg.Verified {
		return delivery.ConfigError(&ch, NotVerifiedMessage)
	}
	return s.deliver(ctx, &ch, cfg.Email, subject(d), renderHTML(d))
}

func (s *Sender) deliver(ctx context.Context, ch *channel.Channel, to, subj, body string) delivery.Result {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.mailer.Send(ctx, to, subj, body); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return delivery.TimedOut(ch, s.timeout)
		}
		return delivery.Transport(ch, err)
	}
	return delivery.Succeeded(ch, 0)
}

func subject(d feedback.Delivery) string {
	text := []rune(strings.Join(strings.Fields(d.Feedback.Text), " "))
	if len(text) > 60 {
		text = append(text[:57], []rune("...")...)
	}
	return fmt.Sprintf("[Echobox] New feedback: %s", string(text))
}

func renderHTML(d feedback.Delivery) string {
	e := html.EscapeString
	fc := d.Context

	var b strings.Builder
	b.WriteString("<h2>New feedback</h2>\n")
	fmt.Fprintf(&b, "<blockquote>%s</blockquote>\n", strings.ReplaceAll(e(d.Feedback.Text), "\n", "<br>"))
	fmt.Fprintf(&b, "<p><strong>Page:</strong> <a href=\"%s\">%s</a></p>\n", e(fc.URL), e(fc.URL))
	fmt.Fprintf(&b, "<p><strong>Browser:</strong> %s &middot; <strong>OS:</strong> %s &middot; %dx%d</p>\n",
		e(fc.Browser), e(fc.OS), fc.Viewport.Width, fc.Viewport.Height)
	if fc.Timestamp != "" {
		fmt.Fprintf(&b, "<p><strong>Sent:</strong> %s (%s)</p>\n", e(fc.Timestamp), e(fc.Timezone))
	}
	if u := d.Feedback.ScreenshotURL; u != nil && *u != "" {
		fmt.Fprintf(&b, "<p><a href=\"%s\">View screenshot</a></p>\n", e(*u))
	}
	if u := d.Feedback.AudioURL; u != nil && *u != "" {
		fmt.Fprintf(&b, "<p><a href=\"%s\">Listen to voice note</a></p>\n", e(*u))
	}
	if len(fc.ConsoleErrors) > 0 {
		b.WriteString("<h3>Console errors</h3>\n<ul>\n")
		for _, ce := range fc.ConsoleErrors {
			fmt.Fprintf(&b, "<li><code>%s</code></li>\n", e(ce.Message))
		}
		b.WriteString("</ul>\n")
	}
	if d.SessionID != "" {
		fmt.Fprintf(&b, "<p>Reply from the dashboard to session <code>%s</code>.</p>\n", e(d.SessionID))
	}
	return b.String()
}
