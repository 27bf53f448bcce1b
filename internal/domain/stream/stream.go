// Package stream provides the wire payloads pushed to a live visitor session.
package stream

import "time"

// Event names on the session stream.
const (
	EventConnected = "connected"
	EventMessage   = "message"
	EventHeartbeat = "heartbeat"
)

// Message is a developer reply pushed to a subscriber. MessageID is the
// durable id of the stored reply; clients use it to drop duplicates.
type Message struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	MessageID int64     `json:"messageId"`
}

// Connected is the first event of every stream connection.
type Connected struct {
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

// Heartbeat keeps intermediaries from closing an idle stream.
type Heartbeat struct {
	Timestamp time.Time `json:"timestamp"`
}
