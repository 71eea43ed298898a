package models

import "time"

// Event types published to the bus after a message is persisted.
const (
	EventMessageReceived = "message.received"
	EventMessageSent     = "message.sent"
)

// Event is the normalized payload handed to the event bus for downstream
// consumers (AI enrichment, analytics). Publishing is fire-and-forget: a
// publish failure never fails the message-persistence operation.
type Event struct {
	ID        string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"event_type"`
	FlowID    string    `json:"flow_id"`
	MessageID string    `json:"message_id"`
	Channel   Channel   `json:"channel"`
	From      string    `json:"from"`
	Subject   string    `json:"subject,omitempty"`
	Preview   string    `json:"preview,omitempty"`
}
