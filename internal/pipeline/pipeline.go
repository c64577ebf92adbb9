// Package pipeline is the engine core: a pool of workers consumes the
// unified incoming topic, drives identity, conversation and ticket
// state through the store, calls the responder for a draft, evaluates
// escalation, and publishes the outcomes. Offsets commit only after an
// event's full pass, so delivery is at-least-once upstream while the
// admission guard keeps effects exactly-once downstream.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/deskd/internal/config"
	"github.com/soyeahso/deskd/internal/domain"
	"github.com/soyeahso/deskd/internal/escalation"
	"github.com/soyeahso/deskd/internal/hooks"
	"github.com/soyeahso/deskd/internal/logging"
	"github.com/soyeahso/deskd/internal/responder"
	"github.com/soyeahso/deskd/internal/store"
	"github.com/soyeahso/deskd/internal/stream"
)

// Publisher is the subset of the stream producer the pipeline publishes
// through.
type Publisher interface {
	PublishIncoming(ctx context.Context, ev domain.InboundEvent) error
	PublishReply(ctx context.Context, r domain.OutboundReply) error
	PublishEscalation(ctx context.Context, n domain.EscalationNotice) error
	PublishDeadLetter(ctx context.Context, dl domain.DeadLetter) error
	PublishAgentRecord(ctx context.Context, rec domain.AgentRecord) error
}

// Options tunes event processing. Zero fields fall back to the config
// defaults.
type Options struct {
	Workers             int
	Window              time.Duration // conversation inactivity window
	SentimentWindow     int           // K scores averaged per conversation
	SentimentThreshold  float64
	ConfidenceThreshold float64
	MaxRetries          int
	RetryBackoff        time.Duration
	AgentTimeout        time.Duration
	Retention           time.Duration // processed-event purge horizon
}

// OptionsFromConfig maps the pipeline config block onto Options.
func OptionsFromConfig(cfg config.PipelineConfig) Options {
	return Options{
		Workers:             cfg.Workers,
		Window:              time.Duration(cfg.WindowHours) * time.Hour,
		SentimentWindow:     cfg.SentimentWindow,
		SentimentThreshold:  cfg.SentimentThreshold,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		MaxRetries:          cfg.MaxRetries,
		RetryBackoff:        time.Duration(cfg.RetryBackoffSeconds) * time.Second,
		AgentTimeout:        time.Duration(cfg.AgentTimeoutSeconds) * time.Second,
		Retention:           time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}
}

func (o Options) withDefaults() Options {
	d := OptionsFromConfig(config.Defaults().Pipeline)
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.Window <= 0 {
		o.Window = d.Window
	}
	if o.SentimentWindow <= 0 {
		o.SentimentWindow = d.SentimentWindow
	}
	if o.SentimentThreshold <= 0 {
		o.SentimentThreshold = d.SentimentThreshold
	}
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = d.RetryBackoff
	}
	if o.AgentTimeout <= 0 {
		o.AgentTimeout = d.AgentTimeout
	}
	if o.Retention <= 0 {
		o.Retention = d.Retention
	}
	return o
}

// Pipeline owns the worker pool, the intake relay, and the retention
// sweeper.
type Pipeline struct {
	db            *store.DB
	events        *store.EventStore
	customers     *store.CustomerStore
	conversations *store.ConversationStore
	tickets       *store.TicketStore
	producer      Publisher
	agent         responder.Client
	engine        *escalation.Engine
	hooks         *hooks.Manager
	brokers       []string
	topics        stream.Topics
	opts          Options
	log           *logging.Logger
}

// New wires a pipeline over its collaborators. Consumers are created
// per loop inside Run; the producer is shared.
func New(
	db *store.DB,
	producer Publisher,
	agent responder.Client,
	hm *hooks.Manager,
	brokers []string,
	topics stream.Topics,
	opts Options,
	log *logging.Logger,
) *Pipeline {
	opts = opts.withDefaults()
	return &Pipeline{
		db:            db,
		events:        store.NewEventStore(db),
		customers:     store.NewCustomerStore(db),
		conversations: store.NewConversationStore(db),
		tickets:       store.NewTicketStore(db),
		producer:      producer,
		agent:         agent,
		engine:        escalation.NewEngine(opts.SentimentThreshold, opts.ConfidenceThreshold),
		hooks:         hm,
		brokers:       brokers,
		topics:        topics,
		opts:          opts,
		log:           log.Sub("pipeline"),
	}
}

// Run starts the worker pool, the intake relay, and the retention
// sweeper, and blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.log.Info().
		Int("workers", p.opts.Workers).
		Str("topic", p.topics.TicketsIncoming()).
		Msg("pipeline starting")
	p.hooks.Emit(ctx, hooks.EventPipelineStart, map[string]any{"workers": p.opts.Workers})
	defer p.hooks.Emit(context.Background(), hooks.EventPipelineStop, nil)

	var wg sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.workerLoop(ctx, n)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.relayLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.retentionLoop(ctx)
	}()

	wg.Wait()
	p.log.Info().Msg("pipeline stopped")
	return nil
}

// workerLoop consumes the unified incoming topic. One reader per worker
// keeps each partition's events strictly sequential, so one customer's
// events never interleave across workers.
func (p *Pipeline) workerLoop(ctx context.Context, n int) {
	log := p.log.Sub(fmt.Sprintf("worker-%d", n))
	consumer := stream.NewConsumer(stream.ConsumerConfig{
		Brokers: p.brokers,
		GroupID: stream.GroupWorkers,
		Topic:   p.topics.TicketsIncoming(),
	}, log)
	defer consumer.Close()

	for {
		msg, err := consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("fetch failed")
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}

		ev, err := stream.DecodeInbound(msg)
		if err != nil {
			// Nothing upstream can fix a malformed payload; park it for
			// inspection and move on.
			log.Error().Err(err).Str("topic", msg.Topic).Msg("undecodable incoming event")
			p.deadLetter(ctx, ev, err, 0)
		} else if p.Process(ctx, ev) == OutcomeAborted {
			// Shutdown mid-event: leave the offset uncommitted so the
			// event redelivers.
			return
		}

		if err := consumer.Commit(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("offset commit failed")
		}
	}
}

// relayLoop funnels the per-channel inbound topics onto the unified
// incoming topic, re-keyed by sender identifier so every event for one
// customer lands on the same partition regardless of source channel.
func (p *Pipeline) relayLoop(ctx context.Context) {
	log := p.log.Sub("relay")
	consumer := stream.NewConsumer(stream.ConsumerConfig{
		Brokers:     p.brokers,
		GroupID:     stream.GroupIntake,
		GroupTopics: p.topics.AllInbound(),
	}, log)
	defer consumer.Close()

	for {
		msg, err := consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("fetch failed")
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}

		ev, err := stream.DecodeInbound(msg)
		if err != nil {
			log.Error().Err(err).Str("topic", msg.Topic).Msg("undecodable inbound event")
			p.deadLetter(ctx, ev, err, 0)
		} else {
			// The broker is the system's spine: if the republish fails,
			// wait it out rather than dropping or dead-lettering.
			for {
				err := p.producer.PublishIncoming(ctx, ev)
				if err == nil {
					break
				}
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Str("eventId", ev.EventID).Msg("relay publish failed, retrying")
				if !sleepCtx(ctx, time.Second) {
					return
				}
			}
			log.Debug().
				Str("eventId", ev.EventID).
				Str("channel", string(ev.Channel)).
				Msg("relayed inbound event")
		}

		if err := consumer.Commit(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("offset commit failed")
		}
	}
}

// retentionLoop purges processed-event ids past the retention horizon
// once an hour. The delete is range-bounded on admission time, so it
// never contends with in-flight admissions.
func (p *Pipeline) retentionLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-p.opts.Retention)
			n, err := p.events.PurgeBefore(ctx, cutoff)
			if err != nil {
				p.log.Error().Err(err).Msg("processed-event purge failed")
				continue
			}
			if n > 0 {
				p.log.Info().Int64("purged", n).Time("cutoff", cutoff).Msg("purged processed events")
			}
		}
	}
}

// sleepCtx pauses for d, returning false when ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
