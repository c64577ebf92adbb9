package email

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/soyeahso/deskd/internal/channel"
	"github.com/soyeahso/deskd/internal/config"
	"github.com/soyeahso/deskd/internal/domain"
	"github.com/soyeahso/deskd/internal/logging"
)

const gmailPageSize = 25

// GmailPoller watches a Gmail account through the API rather than IMAP.
// Authentication uses a pre-obtained oauth2 token file; obtaining one is
// an interactive browser flow and happens outside the daemon.
type GmailPoller struct {
	cfg      config.GmailConfig
	interval time.Duration
	producer InboundPublisher
	log      *logging.Logger

	svc *gmail.Service

	mu      sync.Mutex
	running bool
	lastErr string
}

// NewGmailPoller creates a poller for the configured account.
func NewGmailPoller(cfg config.GmailConfig, interval time.Duration, producer InboundPublisher, log *logging.Logger) *GmailPoller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &GmailPoller{
		cfg:      cfg,
		interval: interval,
		producer: producer,
		log:      log.Sub("email-gmail"),
	}
}

func (p *GmailPoller) ID() string           { return "email-gmail" }
func (p *GmailPoller) Kind() domain.Channel { return domain.ChannelEmail }

// Start authenticates and polls until ctx ends.
func (p *GmailPoller) Start(ctx context.Context) error {
	if err := p.initService(ctx); err != nil {
		p.setErr(err.Error())
		return err
	}

	p.setRunning(true)
	defer p.setRunning(false)

	p.log.Info().Str("query", p.query()).Dur("interval", p.interval).Msg("gmail poller starting")

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

// Stop is a no-op: the poll loop ends with its context.
func (p *GmailPoller) Stop(ctx context.Context) error { return nil }

func (p *GmailPoller) Status() channel.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return channel.Status{
		ID:        p.ID(),
		Kind:      domain.ChannelEmail,
		Running:   p.running,
		LastError: p.lastErr,
	}
}

func (p *GmailPoller) setRunning(v bool) {
	p.mu.Lock()
	p.running = v
	p.mu.Unlock()
}

func (p *GmailPoller) setErr(s string) {
	p.mu.Lock()
	p.lastErr = s
	p.mu.Unlock()
}

func (p *GmailPoller) query() string {
	if p.cfg.Query != "" {
		return p.cfg.Query
	}
	return "is:unread"
}

func (p *GmailPoller) initService(ctx context.Context) error {
	b, err := os.ReadFile(p.cfg.CredentialsFile)
	if err != nil {
		return fmt.Errorf("gmail credentials: %w", err)
	}
	conf, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope, gmail.GmailModifyScope)
	if err != nil {
		return fmt.Errorf("gmail credentials: %w", err)
	}
	token, err := tokenFromFile(p.cfg.TokenFile)
	if err != nil {
		return fmt.Errorf("gmail token (run deskd auth gmail first): %w", err)
	}
	p.svc, err = gmail.NewService(ctx, option.WithHTTPClient(conf.Client(ctx, token)))
	if err != nil {
		return fmt.Errorf("gmail service: %w", err)
	}
	return nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	return tok, json.NewDecoder(f).Decode(tok)
}

// Authorize runs the interactive oauth2 consent flow and caches the
// token where the poller expects it. Meant for the CLI; the daemon
// never prompts.
func Authorize(ctx context.Context, credentialsFile, tokenFile string) error {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return fmt.Errorf("gmail credentials: %w", err)
	}
	conf, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope, gmail.GmailModifyScope)
	if err != nil {
		return fmt.Errorf("gmail credentials: %w", err)
	}

	authURL := conf.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Open this URL in a browser and paste the code here:\n%s\n\ncode: ", authURL)
	var code string
	if _, err := fmt.Scan(&code); err != nil {
		return fmt.Errorf("read auth code: %w", err)
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange auth code: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(tokenFile), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}

// poll lists messages matching the query, publishes each, and clears
// the UNREAD label only after a successful publish.
func (p *GmailPoller) poll(ctx context.Context) error {
	list, err := p.svc.Users.Messages.List("me").Q(p.query()).MaxResults(gmailPageSize).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail list: %w", err)
	}

	for _, ref := range list.Messages {
		full, err := p.svc.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			p.log.Error().Err(err).Str("messageId", ref.Id).Msg("fetch failed")
			continue
		}

		ev, ok := p.eventFromGmail(full)
		if !ok {
			// Unparseable mail would loop forever unread; skip it.
			p.log.Warn().Str("messageId", ref.Id).Msg("skipping unparseable mail")
			p.markRead(ctx, ref.Id)
			continue
		}

		if err := p.producer.PublishInbound(ctx, ev); err != nil {
			p.log.Error().Err(err).Str("from", ev.SenderIdentifier).Msg("publish failed")
			continue
		}
		p.markRead(ctx, ref.Id)
		p.log.Info().
			Str("eventId", ev.EventID).
			Str("from", ev.SenderIdentifier).
			Msg("mail ingested")
	}
	return nil
}

func (p *GmailPoller) markRead(ctx context.Context, id string) {
	_, err := p.svc.Users.Messages.Modify("me", id, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		p.log.Error().Err(err).Str("messageId", id).Msg("could not clear unread label")
	}
}

func (p *GmailPoller) eventFromGmail(m *gmail.Message) (domain.InboundEvent, bool) {
	if m == nil || m.Payload == nil {
		return domain.InboundEvent{}, false
	}

	var fromHeader, subject, messageID string
	for _, h := range m.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			fromHeader = h.Value
		case "subject":
			subject = h.Value
		case "message-id":
			messageID = h.Value
		}
	}
	if messageID == "" {
		messageID = m.Id
	}

	from, display := fromHeader, ""
	if addr, err := mail.ParseAddress(fromHeader); err == nil {
		from, display = addr.Address, addr.Name
	}
	if from == "" {
		return domain.InboundEvent{}, false
	}

	body := extractGmailBody(m.Payload)
	ev := eventFromMail(messageID, from, display, subject, body, time.UnixMilli(m.InternalDate))
	if ev.Content == "" {
		return domain.InboundEvent{}, false
	}
	return ev, true
}

// extractGmailBody walks the part tree for text content, preferring
// text/plain. Gmail base64url-encodes part bodies.
func extractGmailBody(part *gmail.MessagePart) string {
	if body := findPart(part, "text/plain"); body != "" {
		return body
	}
	return findPart(part, "text/html")
}

func findPart(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
			return string(data)
		}
	}
	for _, child := range part.Parts {
		if body := findPart(child, mimeType); body != "" {
			return body
		}
	}
	return ""
}
