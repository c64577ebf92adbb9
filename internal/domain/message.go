package domain

import "time"

// MessageDirection distinguishes customer input from system output.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// MessageRole identifies who authored a message.
type MessageRole string

const (
	RoleCustomer MessageRole = "customer"
	RoleAgent    MessageRole = "agent"
	RoleSystem   MessageRole = "system"
)

// Message is a single turn within a conversation. ChannelMessageID is the
// channel-native id when the transport supplies one (e.g. an email
// Message-ID) and is used for transport-level deduplication.
type Message struct {
	ID               string           `json:"id"`
	ConversationID   string           `json:"conversation_id"`
	Direction        MessageDirection `json:"direction"`
	Role             MessageRole      `json:"role"`
	Content          string           `json:"content"`
	Channel          Channel          `json:"channel"`
	ChannelMessageID string           `json:"channel_message_id,omitempty"`
	Sentiment        *float64         `json:"sentiment,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}
