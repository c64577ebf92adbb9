package domain

import "strings"

// Channel identifies the communication medium an event arrived on.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelChat    Channel = "chat"
	ChannelWebform Channel = "webform"
)

// Valid reports whether the channel is one of the supported media.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelChat, ChannelWebform:
		return true
	}
	return false
}

// IdentifierType classifies a channel-specific customer address.
type IdentifierType string

const (
	IdentifierEmail      IdentifierType = "email"
	IdentifierPhone      IdentifierType = "phone"
	IdentifierChatHandle IdentifierType = "chat_handle"
)

// Valid reports whether the identifier type is known.
func (t IdentifierType) Valid() bool {
	switch t {
	case IdentifierEmail, IdentifierPhone, IdentifierChatHandle:
		return true
	}
	return false
}

// IdentifierTypeFor infers the identifier type for a sender address on a
// given channel. Email and webform senders are email addresses; chat
// senders are phone numbers when they look like one (WhatsApp) and
// handles otherwise.
func IdentifierTypeFor(ch Channel, value string) IdentifierType {
	switch ch {
	case ChannelEmail, ChannelWebform:
		return IdentifierEmail
	case ChannelChat:
		if looksLikePhone(value) {
			return IdentifierPhone
		}
		return IdentifierChatHandle
	}
	return IdentifierChatHandle
}

func looksLikePhone(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if s[0] == '+' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 7
}
