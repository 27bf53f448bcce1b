package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// ErrInvalidConfig is wrapped by every config decoding or validation failure.
var ErrInvalidConfig = errors.New("invalid channel config")

// WebhookConfig is the config blob of a webhook channel.
type WebhookConfig struct {
	URL     string            `json:"url"`
	Secret  string            `json:"secret,omitempty"` //nolint:gosec // config field name, not a credential
	Headers map[string]string `json:"headers,omitempty"`
}

// Validate checks that the target URL is an absolute http(s) URL.
func (c WebhookConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URL, validation.Required, is.URL, validation.By(httpScheme)),
	)
}

// EmailConfig is the config blob of an email channel. Verified is set once the
// owner confirmed the address out of band.
type EmailConfig struct {
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}

// Validate checks the address format.
func (c EmailConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.EmailFormat),
	)
}

// SlackConfig is the config blob of a Slack incoming-webhook channel.
type SlackConfig struct {
	WebhookURL string `json:"webhookUrl"`
}

// Validate checks that the webhook URL is an absolute http(s) URL. The
// hooks.slack.com host requirement is enforced on the test-call path only.
func (c SlackConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.WebhookURL, validation.Required, is.URL, validation.By(httpScheme)),
	)
}

// DecodeWebhook parses and validates the config of a webhook channel.
func DecodeWebhook(ch *Channel) (WebhookConfig, error) {
	var cfg WebhookConfig
	if err := decode(ch, TypeWebhook, &cfg, func() error { return cfg.Validate() }); err != nil {
		return WebhookConfig{}, err
	}
	return cfg, nil
}

// DecodeEmail parses and validates the config of an email channel.
func DecodeEmail(ch *Channel) (EmailConfig, error) {
	var cfg EmailConfig
	if err := decode(ch, TypeEmail, &cfg, func() error { return cfg.Validate() }); err != nil {
		return EmailConfig{}, err
	}
	return cfg, nil
}

// DecodeSlack parses and validates the config of a Slack channel.
func DecodeSlack(ch *Channel) (SlackConfig, error) {
	var cfg SlackConfig
	if err := decode(ch, TypeSlack, &cfg, func() error { return cfg.Validate() }); err != nil {
		return SlackConfig{}, err
	}
	return cfg, nil
}

// ValidateConfig checks the config blob against the channel type. Types
// without a schema only need well-formed JSON.
func ValidateConfig(ch *Channel) error {
	var err error
	switch ch.Type {
	case TypeWebhook:
		_, err = DecodeWebhook(ch)
	case TypeEmail:
		_, err = DecodeEmail(ch)
	case TypeSlack:
		_, err = DecodeSlack(ch)
	default:
		if !json.Valid(ch.Config) {
			err = fmt.Errorf("%w: %s config is not valid JSON", ErrInvalidConfig, ch.Type)
		}
	}
	return err
}

func decode(ch *Channel, want Type, dst any, validate func() error) error {
	if ch.Type != want {
		return fmt.Errorf("%w: channel %s is not a %s channel", ErrInvalidConfig, ch, want)
	}
	if len(ch.Config) == 0 {
		return fmt.Errorf("%w: %s config is empty", ErrInvalidConfig, want)
	}
	if err := json.Unmarshal(ch.Config, dst); err != nil {
		return fmt.Errorf("%w: parse %s config: %v", ErrInvalidConfig, want, err)
	}
	if err := validate(); err != nil {
		return fmt.Errorf("%w: %s config: %v", ErrInvalidConfig, want, err)
	}
	return nil
}

func httpScheme(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return errors.New("must use http or https")
	}
	return nil
}
