// Package stream carries events between the channel adapters, the
// pipeline workers, and downstream consumers over Kafka. One logical
// topic exists per concern; all payloads are JSON.
package stream

import (
	"github.com/soyeahso/deskd/internal/domain"
)

// DefaultPrefix namespaces the topics of one deployment.
const DefaultPrefix = "desk"

// Consumer group names, fixed per role rather than derived from the
// topic prefix so a renamed deployment keeps its committed offsets.
const (
	GroupWorkers  = "desk-workers"
	GroupIntake   = "desk-intake"
	GroupChatPush = "desk-chat-push"
)

// Topics derives the topic names for a deployment prefix.
type Topics struct {
	prefix string
}

// NewTopics creates the topic table. An empty prefix uses the default.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{prefix: prefix}
}

// Inbound is the per-channel topic adapters publish normalized events to.
func (t Topics) Inbound(ch domain.Channel) string {
	return t.prefix + "." + string(ch) + ".in"
}

// Outbound is the per-channel topic replies are published to for delivery.
func (t Topics) Outbound(ch domain.Channel) string {
	return t.prefix + "." + string(ch) + ".out"
}

// TicketsIncoming is the unified inbound topic the workers consume,
// re-keyed by sender so one customer's events stay in order.
func (t Topics) TicketsIncoming() string {
	return t.prefix + ".tickets.incoming"
}

// Escalations carries ticket handoffs for human routing.
func (t Topics) Escalations() string {
	return t.prefix + ".escalations"
}

// DeadLetters carries events that exhausted processing.
func (t Topics) DeadLetters() string {
	return t.prefix + ".dlq"
}

// AgentResponses carries responder call records for analytics.
func (t Topics) AgentResponses() string {
	return t.prefix + ".agent.responses"
}

// AllInbound lists the per-channel inbound topics, for the intake relay's
// group subscription.
func (t Topics) AllInbound() []string {
	return []string{
		t.Inbound(domain.ChannelEmail),
		t.Inbound(domain.ChannelChat),
		t.Inbound(domain.ChannelWebform),
	}
}
