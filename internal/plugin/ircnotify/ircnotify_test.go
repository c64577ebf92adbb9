package ircnotify

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/deskd/internal/config"
	"github.com/soyeahso/deskd/internal/hooks"
	"github.com/soyeahso/deskd/internal/plugin"
)

func TestEscalationLine(t *testing.T) {
	line := escalationLine(hooks.Payload{
		Event: hooks.EventTicketEscalated,
		Data: map[string]any{
			"ticket_id": "tkt-1",
			"route":     "legal",
			"reason":    "legal_matter",
			"channel":   "email",
		},
	})
	assert.Equal(t, "escalation: ticket tkt-1 -> legal (legal_matter) via email", line)
}

func TestDeadLetterLine(t *testing.T) {
	line := deadLetterLine(hooks.Payload{
		Event: hooks.EventDeadLettered,
		Data: map[string]any{
			"event_id":   "evt-9",
			"error_kind": "external_timeout",
			"reason":     "mock: context deadline exceeded",
		},
	})
	assert.Equal(t, "dead letter: event evt-9 [external_timeout] mock: context deadline exceeded", line)
}

func TestLine_MissingFields(t *testing.T) {
	line := escalationLine(hooks.Payload{Event: hooks.EventTicketEscalated})
	assert.Equal(t, "escalation: ticket ? -> ? (?) via ?", line)
}

func TestSplitMessage(t *testing.T) {
	t.Run("short stays whole", func(t *testing.T) {
		assert.Equal(t, []string{"hello"}, splitMessage("hello", 400))
	})

	t.Run("long line chunks at limit", func(t *testing.T) {
		chunks := splitMessage(strings.Repeat("a", 1000), 400)
		require.Len(t, chunks, 3)
		assert.Len(t, chunks[0], 400)
		assert.Len(t, chunks[1], 400)
		assert.Len(t, chunks[2], 200)
	})

	t.Run("newlines split and empties drop", func(t *testing.T) {
		chunks := splitMessage("one\n\ntwo", 400)
		assert.Equal(t, []string{"one", "two"}, chunks)
	})

	t.Run("empty input returns itself", func(t *testing.T) {
		assert.Equal(t, []string{""}, splitMessage("", 400))
	})
}

func TestSendRequiresConnection(t *testing.T) {
	n := New(config.IRCNotifyConfig{Server: "irc.example.net", Nick: "deskd", Channel: "#support"})
	err := n.send("hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestInitValidatesConfig(t *testing.T) {
	n := New(config.IRCNotifyConfig{Server: "irc.example.net"})
	err := n.Init(context.Background(), plugin.API{})
	require.Error(t, err)
}
