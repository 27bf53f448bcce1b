// Package feedback provides the domain model for visitor feedback submitted
// through the embedded widget and the browser context captured with it.
package feedback

import (
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxTextRunes bounds the visitor message length.
const MaxTextRunes = 10000

// Event is the visitor message handed to every notification channel.
// It is never mutated after construction.
type Event struct {
	Text          string  `json:"text"`
	ScreenshotURL *string `json:"screenshot_url"`
	AudioURL      *string `json:"audio_url"`
}

// Validate checks the visitor message.
func (e Event) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Text, validation.Required, validation.By(maxRunes(MaxTextRunes))),
	)
}

// Viewport is the visitor's browser viewport size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ConsoleError is a console error captured by the widget before submission.
type ConsoleError struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Context describes where the feedback was written. Timestamp and Timezone
// are passed through as reported by the browser.
type Context struct {
	URL           string         `json:"url"`
	Browser       string         `json:"browser"`
	OS            string         `json:"os"`
	Viewport      Viewport       `json:"viewport"`
	Timestamp     string         `json:"timestamp"`
	Timezone      string         `json:"timezone"`
	ConsoleErrors []ConsoleError `json:"console_errors,omitempty"`
}

// Validate checks the browser context.
func (c Context) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URL, validation.Required, validation.Length(1, 2048)),
		validation.Field(&c.ConsoleErrors, validation.Length(0, 50)),
	)
}

// Delivery bundles everything a channel sender receives for one fanout.
type Delivery struct {
	Feedback  Event
	Context   Context
	SessionID string
}

// Validate checks all parts of the delivery.
func (d Delivery) Validate() error {
	if err := d.Feedback.Validate(); err != nil {
		return err
	}
	if err := d.Context.Validate(); err != nil {
		return err
	}
	return validation.Validate(d.SessionID, validation.Required, validation.Length(1, 128))
}

func maxRunes(n int) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if utf8.RuneCountInString(s) > n {
			return validation.NewError("validation_too_long", "the length must be no more than {{.max}}").
				SetParams(map[string]any{"max": n})
		}
		return nil
	}
}
