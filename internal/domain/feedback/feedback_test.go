package feedback

import (
	"strings"
	"testing"
)

func validDelivery() Delivery {
	return Delivery{
		Feedback: Event{Text: "The checkout button does nothing"},
		Context: Context{
			URL:       "https://shop.example.com/cart",
			Browser:   "Firefox 131",
			OS:        "Linux",
			Viewport:  Viewport{Width: 1280, Height: 720},
			Timestamp: "2026-10-16T09:00:00Z",
			Timezone:  "Europe/Berlin",
		},
		SessionID: "sess_abc",
	}
}

func TestDeliveryValidate(t *testing.T) {
	if err := validDelivery().Validate(); err != nil {
		t.Fatalf("expected valid delivery, got %v", err)
	}
}

func TestDeliveryValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Delivery)
	}{
		{"empty text", func(d *Delivery) { d.Feedback.Text = "" }},
		{"text too long", func(d *Delivery) { d.Feedback.Text = strings.Repeat("ä", MaxTextRunes+1) }},
		{"missing url", func(d *Delivery) { d.Context.URL = "" }},
		{"missing session", func(d *Delivery) { d.SessionID = "" }},
		{"too many console errors", func(d *Delivery) { d.Context.ConsoleErrors = make([]ConsoleError, 51) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDelivery()
			tt.modify(&d)
			if err := d.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestTextLimitCountsRunes(t *testing.T) {
	e := Event{Text: strings.Repeat("ä", MaxTextRunes)}
	if err := e.Validate(); err != nil {
		t.Fatalf("expected %d runes to be accepted, got %v", MaxTextRunes, err)
	}
}
