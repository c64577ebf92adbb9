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

// ConsumerConfig selects what a consumer group member reads. Set Topic
// for a single topic or GroupTopics to fan one group over several.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	Topic       string
	GroupTopics []string
}

// Consumer is a consumer-group reader with explicit commits: a message
// is committed only after the caller finished processing it, so a crash
// re-delivers instead of losing work.
type Consumer struct {
	reader *kafka.Reader
	log    *logging.Logger
}

// NewConsumer creates a group consumer.
func NewConsumer(cfg ConsumerConfig, log *logging.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.GroupID,
			Topic:       cfg.Topic,
			GroupTopics: cfg.GroupTopics,
			MinBytes:    1,
			MaxBytes:    10 << 20,
			MaxWait:     500 * time.Millisecond,
		}),
		log: log.Sub("consumer").WithStr("group", cfg.GroupID),
	}
}

// Fetch blocks for the next message without committing its offset.
func (c *Consumer) Fetch(ctx context.Context) (kafka.Message, error) {
	return c.reader.FetchMessage(ctx)
}

// Commit acknowledges processed messages. Committing a message implies
// committing everything before it on the same partition.
func (c *Consumer) Commit(ctx context.Context, msgs ...kafka.Message) error {
	return c.reader.CommitMessages(ctx, msgs...)
}

// Close leaves the group and releases the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Scanner reads one topic from the first offset without joining a
// consumer group, so operator tools can inspect a topic without
// touching committed offsets. It reads a single partition; the
// dead-letter topic it exists for carries one.
type Scanner struct {
	reader *kafka.Reader
}

// NewScanner opens a groupless reader at the start of the topic.
func NewScanner(brokers []string, topic string) *Scanner {
	return &Scanner{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10 << 20,
			MaxWait:  500 * time.Millisecond,
		}),
	}
}

// Next blocks for the next message until ctx expires. Callers detect
// the end of the topic by bounding ctx.
func (s *Scanner) Next(ctx context.Context) (kafka.Message, error) {
	return s.reader.ReadMessage(ctx)
}

// Close releases the reader.
func (s *Scanner) Close() error {
	return s.reader.Close()
}

// CorrelationID extracts the tracing header from a message, empty when
// absent.
func CorrelationID(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == correlationHeader {
			return string(h.Value)
		}
	}
	return ""
}

// DecodeInbound parses and validates a normalized inbound event payload.
func DecodeInbound(msg kafka.Message) (domain.InboundEvent, error) {
	var ev domain.InboundEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return ev, fmt.Errorf("decode inbound event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return ev, err
	}
	return ev, nil
}

// DecodeReply parses an outbound reply payload.
func DecodeReply(msg kafka.Message) (domain.OutboundReply, error) {
	var reply domain.OutboundReply
	if err := json.Unmarshal(msg.Value, &reply); err != nil {
		return reply, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}

// DecodeDeadLetter parses a dead-letter payload.
func DecodeDeadLetter(msg kafka.Message) (domain.DeadLetter, error) {
	var dl domain.DeadLetter
	if err := json.Unmarshal(msg.Value, &dl); err != nil {
		return dl, fmt.Errorf("decode dead letter: %w", err)
	}
	return dl, nil
}
