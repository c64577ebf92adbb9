// Package email polls a support mailbox and publishes new mail as
// inbound events. Two poller flavors exist: plain IMAP for any
// provider, and the Gmail API for accounts where IMAP is disabled.
package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/deskd/internal/channel"
	"github.com/soyeahso/deskd/internal/config"
	"github.com/soyeahso/deskd/internal/domain"
	"github.com/soyeahso/deskd/internal/logging"
)

const defaultPollInterval = 60 * time.Second

// InboundPublisher is the slice of the stream producer the pollers
// publish through.
type InboundPublisher interface {
	PublishInbound(ctx context.Context, ev domain.InboundEvent) error
}

// NewAdapter builds the poller selected by cfg.Mode.
func NewAdapter(cfg config.EmailConfig, producer InboundPublisher, log *logging.Logger) (channel.Adapter, error) {
	interval := defaultPollInterval
	if cfg.PollSeconds > 0 {
		interval = time.Duration(cfg.PollSeconds) * time.Second
	}
	switch cfg.Mode {
	case "imap":
		return NewIMAPPoller(cfg.IMAP, interval, producer, log), nil
	case "gmail":
		return NewGmailPoller(cfg.Gmail, interval, producer, log), nil
	default:
		return nil, fmt.Errorf("email: unknown mode %q (want imap or gmail)", cfg.Mode)
	}
}

// eventFromMail assembles one inbound event from a parsed mail. The
// subject rides ahead of the body because it often carries the actual
// request on short mails. The provider's Message-ID becomes the
// channel-native id, so a re-fetched mail deduplicates downstream.
func eventFromMail(messageID, from, displayName, subject, body string, at time.Time) domain.InboundEvent {
	content := strings.TrimSpace(body)
	if subject = strings.TrimSpace(subject); subject != "" {
		if content == "" {
			content = subject
		} else {
			content = subject + "\n\n" + content
		}
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return domain.InboundEvent{
		EventID:           uuid.NewString(),
		Channel:           domain.ChannelEmail,
		SenderIdentifier:  strings.ToLower(strings.TrimSpace(from)),
		SenderDisplayName: strings.TrimSpace(displayName),
		Content:           content,
		ReceivedAt:        at.UTC(),
		ChannelMessageID:  messageID,
	}
}
