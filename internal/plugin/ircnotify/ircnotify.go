// Package ircnotify is a plugin that announces ticket escalations and
// dead-lettered events to an IRC channel, so an on-call operator sees
// them without watching dashboards.
package ircnotify

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/lrstanley/girc"
	"github.com/soyeahso/deskd/internal/config"
	"github.com/soyeahso/deskd/internal/hooks"
	"github.com/soyeahso/deskd/internal/logging"
	"github.com/soyeahso/deskd/internal/plugin"
)

// reconnectDelay spaces reconnect attempts after a dropped connection.
const reconnectDelay = 30 * time.Second

// Notifier is the IRC announcer plugin.
type Notifier struct {
	cfg    config.IRCNotifyConfig
	client *girc.Client
	log    *logging.Logger
}

var _ plugin.Plugin = (*Notifier)(nil)

// New creates the announcer for the given IRC target.
func New(cfg config.IRCNotifyConfig) *Notifier {
	return &Notifier{cfg: cfg}
}

func (n *Notifier) ID() string      { return "ircnotify" }
func (n *Notifier) Name() string    { return "IRC escalation announcer" }
func (n *Notifier) Version() string { return "1.0.0" }

// Init connects to the IRC server in the background and subscribes to
// the escalation and dead-letter hook events. The connection is
// maintained until ctx ends.
func (n *Notifier) Init(ctx context.Context, api plugin.API) error {
	if n.cfg.Server == "" || n.cfg.Nick == "" || n.cfg.Channel == "" {
		return fmt.Errorf("ircnotify: server, nick and channel are required")
	}
	n.log = api.Log

	port := n.cfg.Port
	if port == 0 {
		if n.cfg.UseTLS {
			port = 6697
		} else {
			port = 6667
		}
	}

	gircCfg := girc.Config{
		Server:  n.cfg.Server,
		Port:    port,
		Nick:    n.cfg.Nick,
		User:    n.cfg.Nick,
		Name:    "deskd notifier",
		SSL:     n.cfg.UseTLS,
		Version: "deskd/1.0",
	}
	if n.cfg.UseTLS {
		gircCfg.TLSConfig = &tls.Config{ServerName: n.cfg.Server}
	}
	if n.cfg.SASL && n.cfg.Password != "" {
		gircCfg.SASL = &girc.SASLPlain{User: n.cfg.Nick, Pass: n.cfg.Password}
	} else if n.cfg.Password != "" {
		gircCfg.ServerPass = n.cfg.Password
	}

	n.client = girc.New(gircCfg)
	n.client.Handlers.Add(girc.CONNECTED, func(c *girc.Client, _ girc.Event) {
		n.log.Info().Str("nick", c.GetNick()).Str("channel", n.cfg.Channel).Msg("irc connected, joining channel")
		c.Cmd.Join(n.cfg.Channel)
	})
	n.client.Handlers.Add(girc.DISCONNECTED, func(_ *girc.Client, _ girc.Event) {
		n.log.Warn().Msg("irc disconnected")
	})

	api.Hooks.On(hooks.EventTicketEscalated, n.ID(), n.onEscalated)
	api.Hooks.On(hooks.EventDeadLettered, n.ID(), n.onDeadLetter)

	n.log.Info().
		Str("server", n.cfg.Server).
		Int("port", port).
		Str("channel", n.cfg.Channel).
		Bool("tls", n.cfg.UseTLS).
		Msg("connecting to irc")

	// Connect blocks, so it runs in its own goroutine; a second one
	// closes the client when ctx ends, which unblocks the first.
	go n.maintain(ctx)
	go func() {
		<-ctx.Done()
		n.client.Close()
	}()
	return nil
}

// maintain keeps the connection alive, reconnecting after drops until
// ctx ends.
func (n *Notifier) maintain(ctx context.Context) {
	for {
		err := n.client.Connect()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			n.log.Warn().Err(err).Dur("retryIn", reconnectDelay).Msg("irc connection lost")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// Close quits the IRC session.
func (n *Notifier) Close() error {
	if n.client != nil && n.client.IsConnected() {
		n.client.Quit("deskd shutting down")
	}
	return nil
}

func (n *Notifier) onEscalated(_ context.Context, p hooks.Payload) error {
	return n.send(escalationLine(p))
}

func (n *Notifier) onDeadLetter(_ context.Context, p hooks.Payload) error {
	return n.send(deadLetterLine(p))
}

func (n *Notifier) send(text string) error {
	if n.client == nil || !n.client.IsConnected() {
		return fmt.Errorf("ircnotify: not connected")
	}
	for _, line := range splitMessage(text, 400) {
		n.client.Cmd.Message(n.cfg.Channel, line)
	}
	return nil
}

// escalationLine renders one ticket.escalated payload as a single IRC
// line.
func escalationLine(p hooks.Payload) string {
	return fmt.Sprintf("escalation: ticket %s -> %s (%s) via %s",
		field(p, "ticket_id"), field(p, "route"), field(p, "reason"), field(p, "channel"))
}

// deadLetterLine renders one event.deadlettered payload.
func deadLetterLine(p hooks.Payload) string {
	return fmt.Sprintf("dead letter: event %s [%s] %s",
		field(p, "event_id"), field(p, "error_kind"), field(p, "reason"))
}

func field(p hooks.Payload, key string) string {
	v, ok := p.Data[key]
	if !ok || v == nil {
		return "?"
	}
	return fmt.Sprint(v)
}

// splitMessage breaks text into IRC-safe chunks: one chunk per line,
// long lines cut at maxLen bytes. IRC caps a raw line around 512 bytes
// including the protocol framing.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLen {
			chunks = append(chunks, line[:maxLen])
			line = line[maxLen:]
		}
		if line != "" {
			chunks = append(chunks, line)
		}
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}
