// Package reply provides the domain model for developer replies to a visitor
// session.
package reply

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/Strob0t/echobox/internal/domain/stream"
)

// Reply is a stored developer reply. ID doubles as the stream message id.
type Reply struct {
	ID           int64     `json:"id"`
	ProjectKeyID string    `json:"project_key_id"`
	SessionID    string    `json:"session_id"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateRequest holds the fields needed to store a reply.
type CreateRequest struct {
	ProjectKeyID string `json:"project_key_id"`
	SessionID    string `json:"session_id"`
	Text         string `json:"text"`
}

// Validate checks required fields.
func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ProjectKeyID, validation.Required),
		validation.Field(&r.SessionID, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.Text, validation.Required, validation.Length(1, 10000)),
	)
}

// StreamMessage converts the stored reply to its wire form.
func (r *Reply) StreamMessage() stream.Message {
	return stream.Message{
		Text:      r.Text,
		Timestamp: r.CreatedAt.UTC(),
		MessageID: r.ID,
	}
}
