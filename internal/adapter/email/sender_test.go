package email

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/echobox/internal/domain/channel"
	"github.com/Strob0t/echobox/internal/domain/delivery"
	"github.com/Strob0t/echobox/internal/domain/feedback"
	"github.com/Strob0t/echobox/internal/port/notifier"
)

// Compile-time interface checks.
var (
	_ notifier.Sender = (*Sender)(nil)
	_ Mailer          = (*SMTPMailer)(nil)
)

type sentMail struct {
	to, subject, html string
}

type fakeMailer struct {
	sent  []sentMail
	err   error
	block bool
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, html string) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, html})
	return nil
}

func emailChannel(addr string, verified bool) channel.Channel {
	raw, _ := json.Marshal(channel.EmailConfig{Email: addr, Verified: verified})
	return channel.Channel{ID: 9, Type: channel.TypeEmail, Enabled: true, Config: raw}
}

func TestSendUnverifiedFailsFast(t *testing.T) {
	m := &fakeMailer{}
	res := NewSender(m, 0).Send(context.Background(), emailChannel("dev@example.com", false), feedback.Delivery{})
	if res.Success || res.Kind != delivery.KindConfig || res.Error != NotVerifiedMessage {
		t.Fatalf("expected not verified config failure, got %+v", res)
	}
	if len(m.sent) != 0 {
		t.Fatal("mailer must not be called for an unverified address")
	}
}

func TestSendEscapesContent(t *testing.T) {
	m := &fakeMailer{}
	d := feedback.Delivery{
		Feedback: feedback.Event{Text: "<script>alert(1)</script>\nsecond line"},
		Context:  feedback.Context{URL: "https://example.com/?a=1&b=2", Browser: "Safari", OS: "iOS"},
	}
	res := NewSender(m, 0).Send(context.Background(), emailChannel("dev@example.com", true), d)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(m.sent) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(m.sent))
	}
	got := m.sent[0]
	if got.to != "dev@example.com" {
		t.Errorf("unexpected recipient %q", got.to)
	}
	if strings.Contains(got.html, "<script>") {
		t.Error("feedback text must be escaped")
	}
	if !strings.Contains(got.html, "&lt;script&gt;") || !strings.Contains(got.html, "a=1&amp;b=2") {
		t.Errorf("unexpected body %q", got.html)
	}
	if strings.Contains(got.subject, "\n") || !strings.HasPrefix(got.subject, "[Echobox] New feedback:") {
		t.Errorf("unexpected subject %q", got.subject)
	}
}

func TestSendMailerError(t *testing.T) {
	m := &fakeMailer{err: errors.New("connection refused")}
	res := NewSender(m, 0).Send(context.Background(), emailChannel("dev@example.com", true), feedback.Delivery{})
	if res.Success || res.Kind != delivery.KindTransport || !strings.Contains(res.Error, "connection refused") {
		t.Fatalf("expected transport failure, got %+v", res)
	}
}

func TestSendTimeout(t *testing.T) {
	m := &fakeMailer{block: true}
	res := NewSender(m, 20*time.Millisecond).Send(context.Background(), emailChannel("dev@example.com", true), feedback.Delivery{})
	if res.Success || res.Kind != delivery.KindTimeout {
		t.Fatalf("expected timeout, got %+v", res)
	}
}

func TestSenderHasNoTestCall(t *testing.T) {
	var s notifier.Sender = NewSender(&fakeMailer{}, 0)
	if _, ok := s.(notifier.Tester); ok {
		t.Fatal("email verification is out of band; the sender must not offer a test call")
	}
}

func TestSMTPMailerNotConfigured(t *testing.T) {
	err := NewSMTPMailer(SMTPConfig{}).Send(context.Background(), "a@b.c", "s", "b")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestBuildMessageStripsHeaderNewlines(t *testing.T) {
	msg := string(buildMessage("from@x.y", "to@x.y", "hi\r\nBcc: evil@x.y", "<p>b</p>"))
	if strings.Contains(msg, "\r\nBcc:") {
		t.Fatalf("header injection not prevented: %q", msg)
	}
}

func TestSMTPMailerPasswordSource(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Password: "static"})
	if got := m.currentPassword(); got != "static" {
		t.Fatalf("expected configured password, got %q", got)
	}
	current := "rotated-1"
	m.SetPasswordSource(func() string { return current })
	current = "rotated-2"
	if got := m.currentPassword(); got != "rotated-2" {
		t.Fatalf("expected password to be read per send, got %q", got)
	}
}
