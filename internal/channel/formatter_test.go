package channel

import (
	"testing"
	"time"

	"github.com/soyeahso/deskd/internal/domain"
	"github.com/stretchr/testify/assert"
)

func testReply() *domain.OutboundReply {
	return &domain.OutboundReply{
		EventID:          "evt-1",
		TicketID:         "tck-42",
		ConversationID:   "conv-1",
		Channel:          domain.ChannelEmail,
		SenderIdentifier: "alice@example.com",
		Content:          "Your refund has been initiated.",
		CreatedAt:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEmailFormatter_GreetingAndSignature(t *testing.T) {
	out := EmailFormatter{}.FormatReply(testReply(), "Alice")

	assert.Contains(t, out, "Hi Alice,")
	assert.Contains(t, out, "Your refund has been initiated.")
	assert.Contains(t, out, "Ticket tck-42")
}

func TestEmailFormatter_NoName(t *testing.T) {
	out := EmailFormatter{}.FormatReply(testReply(), "")
	assert.Contains(t, out, "Hello,")
}

func TestChatFormatter_Plain(t *testing.T) {
	reply := testReply()
	reply.Content = "  Your refund has been initiated.  "
	out := ChatFormatter{}.FormatReply(reply, "Alice")

	assert.Equal(t, "Your refund has been initiated.", out)
}

func TestWebformFormatter_TicketReference(t *testing.T) {
	out := WebformFormatter{}.FormatReply(testReply(), "Alice")

	assert.Contains(t, out, "Your refund has been initiated.")
	assert.Contains(t, out, "[ref: tck-42]")
}

func TestFormatterFor(t *testing.T) {
	assert.IsType(t, EmailFormatter{}, FormatterFor(domain.ChannelEmail))
	assert.IsType(t, ChatFormatter{}, FormatterFor(domain.ChannelChat))
	assert.IsType(t, WebformFormatter{}, FormatterFor(domain.ChannelWebform))
	assert.IsType(t, ChatFormatter{}, FormatterFor(domain.Channel("sms")))
}
