// Package channel provides the domain model for notification channels: the
// sinks (webhook, email, Slack) a project key fans feedback out to.
package channel

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies the kind of notification sink.
type Type string

const (
	TypeWebhook Type = "webhook"
	TypeEmail   Type = "email"
	TypeSlack   Type = "slack"
	TypeSMS     Type = "sms" // accepted in configuration, no sender ships for it
)

// Types lists every channel type accepted in configuration.
var Types = []Type{TypeWebhook, TypeEmail, TypeSlack, TypeSMS}

// Valid reports whether t is one of the known channel types.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Channel is a configured notification sink owned by exactly one project key.
// The router only reads channels; they are created and updated elsewhere.
type Channel struct {
	ID           int64           `json:"id"`
	ProjectKeyID string          `json:"project_key_id"`
	Type         Type            `json:"type"`
	Enabled      bool            `json:"enabled"`
	Verified     bool            `json:"verified"`
	Config       json.RawMessage `json:"config"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// String returns a short label used in logs ("slack#12").
func (c *Channel) String() string {
	return fmt.Sprintf("%s#%d", c.Type, c.ID)
}
