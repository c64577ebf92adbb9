package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/soyeahso/deskd/internal/domain"
	"github.com/soyeahso/deskd/internal/logging"
)

// correlationHeader carries the originating event id across topics so
// one customer interaction can be traced end to end.
const correlationHeader = "correlation_id"

// Producer publishes the engine's events. Messages are keyed so that
// everything belonging to one customer lands on one partition, keeping
// per-customer order.
type Producer struct {
	writer *kafka.Writer
	topics Topics
	log    *logging.Logger
}

// NewProducer creates a producer for the given brokers. Writes wait for
// acknowledgement from all replicas; losing an inbound event would break
// the delivery guarantee upstream of the idempotency guard.
func NewProducer(brokers []string, topics Topics, log *logging.Logger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		topics: topics,
		log:    log.Sub("producer"),
	}
}

// Topics returns the producer's topic table.
func (p *Producer) Topics() Topics {
	return p.topics
}

func (p *Producer) publish(ctx context.Context, topic, key, correlationID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}
	if correlationID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{
			Key:   correlationHeader,
			Value: []byte(correlationID),
		})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.log.Debug().Str("topic", topic).Str("key", key).Msg("published")
	return nil
}

// PublishInbound puts a normalized channel event on its per-channel
// inbound topic.
func (p *Producer) PublishInbound(ctx context.Context, ev domain.InboundEvent) error {
	return p.publish(ctx, p.topics.Inbound(ev.Channel), ev.SenderIdentifier, ev.EventID, ev)
}

// PublishIncoming relays an event onto the unified workers' topic,
// keyed by sender identifier.
func (p *Producer) PublishIncoming(ctx context.Context, ev domain.InboundEvent) error {
	return p.publish(ctx, p.topics.TicketsIncoming(), ev.SenderIdentifier, ev.EventID, ev)
}

// PublishReply puts a drafted reply on the channel's outbound topic for
// delivery.
func (p *Producer) PublishReply(ctx context.Context, r domain.OutboundReply) error {
	return p.publish(ctx, p.topics.Outbound(r.Channel), r.SenderIdentifier, r.EventID, r)
}

// PublishEscalation emits a handoff notice for the human-routing consumer.
func (p *Producer) PublishEscalation(ctx context.Context, n domain.EscalationNotice) error {
	return p.publish(ctx, p.topics.Escalations(), n.CustomerID, n.TicketID, n)
}

// PublishDeadLetter parks an unprocessable event for manual remediation.
func (p *Producer) PublishDeadLetter(ctx context.Context, dl domain.DeadLetter) error {
	return p.publish(ctx, p.topics.DeadLetters(), dl.Event.SenderIdentifier, dl.Event.EventID, dl)
}

// PublishAgentRecord emits one responder call record for analytics.
func (p *Producer) PublishAgentRecord(ctx context.Context, rec domain.AgentRecord) error {
	return p.publish(ctx, p.topics.AgentResponses(), rec.CustomerID, rec.EventID, rec)
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
