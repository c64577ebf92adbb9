package email

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/soyeahso/deskd/internal/channel"
	"github.com/soyeahso/deskd/internal/config"
	"github.com/soyeahso/deskd/internal/domain"
	"github.com/soyeahso/deskd/internal/logging"
)

// IMAPPoller watches one IMAP mailbox for unseen mail. Each poll opens
// a fresh connection, publishes what it finds, and marks only
// successfully published mail as seen, so a failed publish is retried
// on the next cycle.
type IMAPPoller struct {
	cfg      config.IMAPConfig
	interval time.Duration
	producer InboundPublisher
	log      *logging.Logger

	mu      sync.Mutex
	running bool
	lastErr string
}

// NewIMAPPoller creates a poller for the configured mailbox.
func NewIMAPPoller(cfg config.IMAPConfig, interval time.Duration, producer InboundPublisher, log *logging.Logger) *IMAPPoller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &IMAPPoller{
		cfg:      cfg,
		interval: interval,
		producer: producer,
		log:      log.Sub("email-imap"),
	}
}

func (p *IMAPPoller) ID() string           { return "email-imap" }
func (p *IMAPPoller) Kind() domain.Channel { return domain.ChannelEmail }

// Start polls until ctx ends. The first poll runs immediately.
func (p *IMAPPoller) Start(ctx context.Context) error {
	p.setRunning(true)
	defer p.setRunning(false)

	p.log.Info().
		Str("server", p.cfg.Server).
		Str("mailbox", p.mailbox()).
		Dur("interval", p.interval).
		Msg("imap poller starting")

	for {
		if err := p.poll(ctx); err != nil {
			p.setErr(err.Error())
			p.log.Error().Err(err).Msg("poll failed")
		} else {
			p.setErr("")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.interval):
		}
	}
}

// Stop is a no-op: connections live only for the duration of one poll.
func (p *IMAPPoller) Stop(ctx context.Context) error { return nil }

func (p *IMAPPoller) Status() channel.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return channel.Status{
		ID:        p.ID(),
		Kind:      domain.ChannelEmail,
		Running:   p.running,
		LastError: p.lastErr,
	}
}

func (p *IMAPPoller) setRunning(v bool) {
	p.mu.Lock()
	p.running = v
	p.mu.Unlock()
}

func (p *IMAPPoller) setErr(s string) {
	p.mu.Lock()
	p.lastErr = s
	p.mu.Unlock()
}

func (p *IMAPPoller) mailbox() string {
	if p.cfg.Mailbox != "" {
		return p.cfg.Mailbox
	}
	return "INBOX"
}

func (p *IMAPPoller) connect() (*client.Client, error) {
	port := p.cfg.Port
	if port == 0 {
		port = 993
	}
	addr := fmt.Sprintf("%s:%d", p.cfg.Server, port)

	c, err := client.DialTLS(addr, &tls.Config{ServerName: p.cfg.Server})
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", addr, err)
	}
	if err := c.Login(p.cfg.Username, p.cfg.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return c, nil
}

// poll fetches all unseen mail, publishes each as an inbound event, and
// flags the published ones seen.
func (p *IMAPPoller) poll(ctx context.Context) error {
	c, err := p.connect()
	if err != nil {
		return err
	}
	defer c.Logout()

	if _, err := c.Select(p.mailbox(), false); err != nil {
		return fmt.Errorf("imap select %s: %w", p.mailbox(), err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	seqNums, err := c.Search(criteria)
	if err != nil {
		return fmt.Errorf("imap search: %w", err)
	}
	if len(seqNums) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var published []uint32
	for msg := range messages {
		ev, ok := p.eventFromMessage(msg, section)
		if !ok {
			continue
		}
		if err := p.producer.PublishInbound(ctx, ev); err != nil {
			// Left unseen, the mail comes around again next poll.
			p.log.Error().Err(err).Str("from", ev.SenderIdentifier).Msg("publish failed")
			continue
		}
		published = append(published, msg.SeqNum)
		p.log.Info().
			Str("eventId", ev.EventID).
			Str("from", ev.SenderIdentifier).
			Msg("mail ingested")
	}
	if err := <-done; err != nil {
		return fmt.Errorf("imap fetch: %w", err)
	}

	if len(published) > 0 {
		ss := new(imap.SeqSet)
		ss.AddNum(published...)
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.Store(ss, item, []interface{}{imap.SeenFlag}, nil); err != nil {
			return fmt.Errorf("imap store seen: %w", err)
		}
	}
	return nil
}

func (p *IMAPPoller) eventFromMessage(msg *imap.Message, section *imap.BodySectionName) (domain.InboundEvent, bool) {
	env := msg.Envelope
	if env == nil || len(env.From) == 0 || env.From[0].Address() == "" {
		return domain.InboundEvent{}, false
	}

	var body string
	if r := msg.GetBody(section); r != nil {
		m, err := mail.ReadMessage(r)
		if err != nil {
			p.log.Warn().Err(err).Str("from", env.From[0].Address()).Msg("unreadable mail body")
		} else if body, err = extractMailBody(m); err != nil {
			p.log.Warn().Err(err).Str("from", env.From[0].Address()).Msg("could not extract body")
		}
	}

	ev := eventFromMail(env.MessageId, env.From[0].Address(), env.From[0].PersonalName, env.Subject, body, env.Date)
	if ev.Content == "" {
		return domain.InboundEvent{}, false
	}
	return ev, true
}

// extractMailBody pulls the text content out of a parsed mail,
// preferring text/plain over text/html in multipart messages.
func extractMailBody(msg *mail.Message) (string, error) {
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil {
		b, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		var htmlFallback string
		mr := multipart.NewReader(msg.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", err
			}
			partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
			if !strings.HasPrefix(partType, "text/") {
				continue
			}
			b, err := decodeTransfer(part, part.Header.Get("Content-Transfer-Encoding"))
			if err != nil {
				continue
			}
			if strings.HasPrefix(partType, "text/plain") {
				return string(b), nil
			}
			if htmlFallback == "" {
				htmlFallback = string(b)
			}
		}
		return htmlFallback, nil
	}

	b, err := decodeTransfer(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeTransfer(r io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(r))
	case "base64":
		return io.ReadAll(base64.NewDecoder(base64.StdEncoding, r))
	default:
		return io.ReadAll(r)
	}
}
