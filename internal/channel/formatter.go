package channel

import (
	"fmt"
	"strings"

	"github.com/soyeahso/deskd/internal/domain"
)

// Formatter renders a drafted reply in a channel's native presentation.
// It is applied only at the publish boundary; stored message history
// keeps the raw draft text.
type Formatter interface {
	FormatReply(reply *domain.OutboundReply, customerName string) string
}

// EmailFormatter wraps replies in a conventional email body with a
// greeting and a ticket-reference signature.
type EmailFormatter struct{}

func (EmailFormatter) FormatReply(reply *domain.OutboundReply, customerName string) string {
	greeting := "Hello,"
	if name := strings.TrimSpace(customerName); name != "" {
		greeting = fmt.Sprintf("Hi %s,", name)
	}
	return fmt.Sprintf("%s\n\n%s\n\n--\nSupport Team\nTicket %s",
		greeting, strings.TrimSpace(reply.Content), reply.TicketID)
}

// ChatFormatter passes the reply through as-is; chat surfaces render
// plain text.
type ChatFormatter struct{}

func (ChatFormatter) FormatReply(reply *domain.OutboundReply, _ string) string {
	return strings.TrimSpace(reply.Content)
}

// WebformFormatter appends the ticket reference customers use to follow
// up on portal submissions.
type WebformFormatter struct{}

func (WebformFormatter) FormatReply(reply *domain.OutboundReply, _ string) string {
	return fmt.Sprintf("%s\n\n[ref: %s]", strings.TrimSpace(reply.Content), reply.TicketID)
}

// FormatterFor returns the formatter for ch. Unknown channels fall back
// to the plain chat presentation.
func FormatterFor(ch domain.Channel) Formatter {
	switch ch {
	case domain.ChannelEmail:
		return EmailFormatter{}
	case domain.ChannelWebform:
		return WebformFormatter{}
	default:
		return ChatFormatter{}
	}
}
