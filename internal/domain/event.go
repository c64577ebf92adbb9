package domain

import (
	"fmt"
	"time"
)

// InboundEvent is the normalized form of one customer message from any
// channel, as carried on the inbound topics.
type InboundEvent struct {
	EventID           string            `json:"event_id"`
	Channel           Channel           `json:"channel"`
	SenderIdentifier  string            `json:"sender_identifier"`
	SenderDisplayName string            `json:"sender_display_name,omitempty"`
	Content           string            `json:"content"`
	ReceivedAt        time.Time         `json:"received_at"`
	ChannelMessageID  string            `json:"channel_message_id,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Validate checks the fields the pipeline cannot proceed without.
func (e InboundEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("inbound event: missing event_id")
	}
	if !e.Channel.Valid() {
		return fmt.Errorf("inbound event %s: unknown channel %q", e.EventID, e.Channel)
	}
	if e.SenderIdentifier == "" {
		return fmt.Errorf("inbound event %s: missing sender_identifier", e.EventID)
	}
	return nil
}

// OutboundReply is a formatted agent reply published on a per-channel
// outbound topic for delivery.
type OutboundReply struct {
	EventID          string    `json:"event_id"`
	TicketID         string    `json:"ticket_id"`
	ConversationID   string    `json:"conversation_id"`
	Channel          Channel   `json:"channel"`
	SenderIdentifier string    `json:"sender_identifier"`
	Content          string    `json:"content"`
	CreatedAt        time.Time `json:"created_at"`
}

// EscalationNotice is published on the escalations topic for human routing.
type EscalationNotice struct {
	TicketID       string          `json:"ticket_id"`
	ConversationID string          `json:"conversation_id"`
	CustomerID     string          `json:"customer_id"`
	Route          EscalationRoute `json:"route"`
	Reason         string          `json:"reason"`
	Channel        Channel         `json:"channel"`
	At             time.Time       `json:"at"`
}

// DeadLetter wraps an event that exhausted processing, for manual
// remediation.
type DeadLetter struct {
	Event     InboundEvent `json:"event"`
	Reason    string       `json:"reason"`
	ErrorKind string       `json:"error_kind"`
	Attempts  int          `json:"attempts"`
	FailedAt  time.Time    `json:"failed_at"`
}

// AgentRecord is the analytics payload describing one responder call.
type AgentRecord struct {
	EventID        string    `json:"event_id"`
	TicketID       string    `json:"ticket_id"`
	ConversationID string    `json:"conversation_id"`
	CustomerID     string    `json:"customer_id"`
	Provider       string    `json:"provider"`
	Intent         string    `json:"intent"`
	Confidence     float64   `json:"confidence"`
	Sentiment      float64   `json:"sentiment"`
	KBQueried      bool      `json:"kb_queried"`
	LatencyMS      int64     `json:"latency_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// SnapshotMessage is one message in a ticket status snapshot.
type SnapshotMessage struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
	Channel   Channel     `json:"channel"`
}

// TicketSnapshot is the outward-facing ticket status read model: ticket
// fields plus the ordered message history of its conversation, read as
// one consistent snapshot.
type TicketSnapshot struct {
	TicketID      string            `json:"ticket_id"`
	Status        TicketStatus      `json:"status"`
	Category      TicketCategory    `json:"category"`
	Priority      TicketPriority    `json:"priority"`
	SourceChannel Channel           `json:"source_channel"`
	CreatedAt     time.Time         `json:"created_at"`
	ResolvedAt    *time.Time        `json:"resolved_at,omitempty"`
	Messages      []SnapshotMessage `json:"messages"`
}
