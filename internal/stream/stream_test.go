package stream

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/deskd/internal/domain"
)

func TestTopics(t *testing.T) {
	topics := NewTopics("desk")

	assert.Equal(t, "desk.email.in", topics.Inbound(domain.ChannelEmail))
	assert.Equal(t, "desk.chat.out", topics.Outbound(domain.ChannelChat))
	assert.Equal(t, "desk.tickets.incoming", topics.TicketsIncoming())
	assert.Equal(t, "desk.escalations", topics.Escalations())
	assert.Equal(t, "desk.dlq", topics.DeadLetters())
	assert.Equal(t, "desk.agent.responses", topics.AgentResponses())

	assert.Equal(t, []string{"desk.email.in", "desk.chat.in", "desk.webform.in"}, topics.AllInbound())
}

func TestTopics_DefaultPrefix(t *testing.T) {
	topics := NewTopics("")
	assert.Equal(t, "desk.webform.in", topics.Inbound(domain.ChannelWebform))
}

func TestTopics_CustomPrefix(t *testing.T) {
	topics := NewTopics("staging")
	assert.Equal(t, "staging.tickets.incoming", topics.TicketsIncoming())
}

func TestCorrelationID(t *testing.T) {
	msg := kafka.Message{
		Headers: []kafka.Header{
			{Key: "other", Value: []byte("x")},
			{Key: "correlation_id", Value: []byte("evt-42")},
		},
	}
	assert.Equal(t, "evt-42", CorrelationID(msg))
	assert.Empty(t, CorrelationID(kafka.Message{}))
}

func TestDecodeInbound(t *testing.T) {
	ev := domain.InboundEvent{
		EventID:          "evt-1",
		Channel:          domain.ChannelEmail,
		SenderIdentifier: "ada@example.com",
		Content:          "hello",
		ReceivedAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		ChannelMessageID: "<abc@mail>",
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	got, err := DecodeInbound(kafka.Message{Value: data})
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestDecodeInbound_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not json", "{{"},
		{"missing event id", `{"channel": "email", "sender_identifier": "a@x.com"}`},
		{"unknown channel", `{"event_id": "e1", "channel": "fax", "sender_identifier": "a@x.com"}`},
		{"missing sender", `{"event_id": "e1", "channel": "email"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInbound(kafka.Message{Value: []byte(tt.value)})
			assert.Error(t, err)
		})
	}
}

func TestDecodeDeadLetter(t *testing.T) {
	dl := domain.DeadLetter{
		Event: domain.InboundEvent{
			EventID:          "evt-1",
			Channel:          domain.ChannelChat,
			SenderIdentifier: "+15550100",
			Content:          "help",
		},
		Reason:    "agent timeout",
		ErrorKind: "external_timeout",
		Attempts:  5,
		FailedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(dl)
	require.NoError(t, err)

	got, err := DecodeDeadLetter(kafka.Message{Value: data})
	require.NoError(t, err)
	assert.Equal(t, dl, got)
}
