package domain

import "time"

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationClosed ConversationStatus = "closed"
)

// Conversation is one bounded dialogue between a customer and the system
// on a single channel. At most one active conversation exists per
// (customer, channel) pair.
type Conversation struct {
	ID            string             `json:"id"`
	CustomerID    string             `json:"customer_id"`
	Channel       Channel            `json:"channel"`
	Status        ConversationStatus `json:"status"`
	Sentiment     float64            `json:"sentiment"`
	Metadata      map[string]string  `json:"metadata,omitempty"`
	StartedAt     time.Time          `json:"started_at"`
	EndedAt       *time.Time         `json:"ended_at,omitempty"`
	LastMessageAt time.Time          `json:"last_message_at"`
}

// ClampSentiment bounds an aggregate sentiment score to [-1, 1].
func ClampSentiment(s float64) float64 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
