package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/deskd/internal/channel"
	"github.com/soyeahso/deskd/internal/domain"
	"github.com/soyeahso/deskd/internal/escalation"
	"github.com/soyeahso/deskd/internal/hooks"
	"github.com/soyeahso/deskd/internal/metrics"
	"github.com/soyeahso/deskd/internal/responder"
	"github.com/soyeahso/deskd/internal/store"
)

// draftHistoryLimit bounds the transcript handed to the responder and
// the repetition detector.
const draftHistoryLimit = 10

// Outcome labels how one event left the pipeline.
type Outcome string

const (
	OutcomeProcessed    Outcome = "processed"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeDeadLettered Outcome = "deadlettered"
	// OutcomeAborted means shutdown interrupted the event mid-flight;
	// the offset must stay uncommitted so the event redelivers.
	OutcomeAborted Outcome = "aborted"
)

// eventState accumulates what one event establishes as it moves through
// the phases.
type eventState struct {
	customerID      string
	customerCreated bool
	customerName    string
	conversationID  string
	ticketID        string
	ticket          *domain.Ticket
	inboundMsgID    string
	// history is the conversation transcript in chronological order,
	// ending with this event's message.
	history []domain.Message
	// lastSentiment is the newest score in the customer's history from
	// before this event.
	lastSentiment *float64
}

// draftResult carries the responder outcome plus call accounting.
type draftResult struct {
	draft    *responder.Draft
	attempts int
	latency  time.Duration // duration of the successful call
}

// phaseTwoResult reports what the closing transaction changed.
type phaseTwoResult struct {
	transitionFrom domain.TicketStatus
	transitionTo   domain.TicketStatus // empty when no transition applied
	convSentiment  float64
}

// Process runs one event through the full pass. Except for shutdown,
// every path terminates the event (a dead letter still counts as
// terminated), so the caller can commit the offset unconditionally.
func (p *Pipeline) Process(ctx context.Context, ev domain.InboundEvent) Outcome {
	start := time.Now()
	outcome := p.process(ctx, ev)
	if outcome != OutcomeAborted {
		metrics.RecordEvent(string(ev.Channel), string(outcome), time.Since(start).Seconds())
	}
	return outcome
}

func (p *Pipeline) process(ctx context.Context, ev domain.InboundEvent) Outcome {
	var st eventState
	err := p.withRetry(ctx, "phase one", func() error {
		return p.phaseOne(ctx, ev, &st)
	})
	if errors.Is(err, domain.ErrDuplicateEvent) {
		p.log.Debug().Str("eventId", ev.EventID).Msg("duplicate event dropped")
		return OutcomeDuplicate
	}
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeAborted
		}
		p.deadLetter(ctx, ev, err, retryAttempts(p.opts.MaxRetries, err))
		return OutcomeDeadLettered
	}

	if st.customerCreated {
		p.hooks.EmitAsync(ctx, hooks.EventCustomerCreated, map[string]any{
			"customer_id": st.customerID,
			"channel":     string(ev.Channel),
		})
	}

	if err := p.loadContext(ctx, &st); err != nil {
		if ctx.Err() != nil {
			return OutcomeAborted
		}
		p.deadLetter(ctx, ev, err, 1)
		return OutcomeDeadLettered
	}

	// The responder call happens outside any store transaction so a slow
	// draft never holds the write lock.
	dr, err := p.draftWithRetry(ctx, p.draftRequest(ev, &st))
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeAborted
		}
		p.noteDraftFailure(ctx, ev, &st, err, dr.attempts)
		return OutcomeDeadLettered
	}

	decision := p.evaluate(ev, &st, dr.draft)

	var res phaseTwoResult
	err = p.withRetry(ctx, "phase two", func() error {
		return p.phaseTwo(ctx, ev, &st, dr.draft, decision, &res)
	})
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeAborted
		}
		p.deadLetter(ctx, ev, err, retryAttempts(p.opts.MaxRetries, err))
		return OutcomeDeadLettered
	}

	p.publishOutcomes(ctx, ev, &st, dr, decision, &res)
	return OutcomeProcessed
}

// phaseOne is the admission transaction: admit the event id, resolve
// identity, attach the message to the active conversation, and make
// sure an open ticket exists. Everything commits together, so a crash
// cannot admit an event whose message was lost, or vice versa.
func (p *Pipeline) phaseOne(ctx context.Context, ev domain.InboundEvent, st *eventState) error {
	now := time.Now().UTC()
	return p.db.WithTx(ctx, func(tx *sql.Tx) error {
		admitted, err := p.events.Admit(ctx, tx, ev.EventID, now)
		if err != nil {
			return err
		}
		if !admitted {
			return domain.ErrDuplicateEvent
		}

		idType := domain.IdentifierTypeFor(ev.Channel, ev.SenderIdentifier)
		customerID, created, err := p.customers.Resolve(ctx, tx, idType, ev.SenderIdentifier, ev.SenderDisplayName, now)
		if err != nil {
			return err
		}

		convID, _, err := p.conversations.OpenOrGet(ctx, tx, customerID, ev.Channel, now, p.opts.Window)
		if err != nil {
			return err
		}

		msg := &domain.Message{
			ConversationID:   convID,
			Direction:        domain.DirectionInbound,
			Role:             domain.RoleCustomer,
			Content:          ev.Content,
			Channel:          ev.Channel,
			ChannelMessageID: ev.ChannelMessageID,
			CreatedAt:        now,
		}
		if err := p.conversations.AppendMessage(ctx, tx, msg); err != nil {
			// Channel-native redelivery surfaces here as a duplicate.
			return err
		}

		ticketID, _, err := p.tickets.EnsureOpen(ctx, tx, convID, customerID, ev.Channel, domain.CategoryGeneral, now)
		if err != nil {
			return err
		}

		st.customerID = customerID
		st.customerCreated = created
		st.conversationID = convID
		st.ticketID = ticketID
		st.inboundMsgID = msg.ID
		return nil
	})
}

// loadContext reads the committed phase-one state the draft and the
// escalation input need.
func (p *Pipeline) loadContext(ctx context.Context, st *eventState) error {
	customer, _, err := p.customers.Get(ctx, st.customerID)
	if err != nil {
		return err
	}
	if customer != nil {
		st.customerName = customer.Name
		if n := len(customer.SentimentHistory); n > 0 {
			score := customer.SentimentHistory[n-1].Score
			st.lastSentiment = &score
		}
	}

	ticket, err := p.tickets.Get(ctx, st.ticketID)
	if err != nil {
		return err
	}
	if ticket == nil {
		return &domain.PersistenceError{Op: "load ticket", Err: fmt.Errorf("ticket %s not found after ensure", st.ticketID)}
	}
	st.ticket = ticket

	history, err := p.conversations.RecentMessages(ctx, p.db.SQL(), st.conversationID, draftHistoryLimit)
	if err != nil {
		return err
	}
	st.history = history
	return nil
}

// draftRequest builds the responder context. The current message rides
// in MessageText, so it is dropped from the history tail.
func (p *Pipeline) draftRequest(ev domain.InboundEvent, st *eventState) responder.DraftRequest {
	history := st.history
	if n := len(history); n > 0 && history[n-1].ID == st.inboundMsgID {
		history = history[:n-1]
	}
	return responder.DraftRequest{
		Channel:        ev.Channel,
		CustomerName:   st.customerName,
		MessageText:    ev.Content,
		History:        history,
		TicketCategory: st.ticket.Category,
	}
}

// draftWithRetry calls the responder under the per-call timeout,
// retrying retryable failures on the backoff schedule.
func (p *Pipeline) draftWithRetry(ctx context.Context, req responder.DraftRequest) (draftResult, error) {
	var res draftResult
	err := p.withRetry(ctx, "responder draft", func() error {
		res.attempts++
		draft, latency, err := p.draftOnce(ctx, req)
		if err != nil {
			return err
		}
		res.draft = draft
		res.latency = latency
		return nil
	})
	return res, err
}

func (p *Pipeline) draftOnce(ctx context.Context, req responder.DraftRequest) (*responder.Draft, time.Duration, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.AgentTimeout)
	defer cancel()

	start := time.Now()
	draft, err := p.agent.Draft(callCtx, req)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		metrics.RecordAgentRequest(p.agent.Name(), "ok", elapsed.Seconds(), draft.KBQueried)
		return draft, elapsed, nil
	case errors.Is(err, context.DeadlineExceeded):
		metrics.RecordAgentRequest(p.agent.Name(), "timeout", elapsed.Seconds(), false)
		return nil, elapsed, &domain.ExternalCallError{Provider: p.agent.Name(), Timeout: true, Err: err}
	default:
		metrics.RecordAgentRequest(p.agent.Name(), "error", elapsed.Seconds(), false)
		return nil, elapsed, &domain.ExternalCallError{
			Provider:  p.agent.Name(),
			Retryable: responder.IsRetryable(err),
			Err:       err,
		}
	}
}

// evaluate builds the escalation input from the post-draft context. The
// last-two sentiment window is the newest prior score plus the current
// draft's, since phase two has not appended the new sample yet.
func (p *Pipeline) evaluate(ev domain.InboundEvent, st *eventState, draft *responder.Draft) escalation.Decision {
	sentiments := make([]float64, 0, 2)
	if st.lastSentiment != nil {
		sentiments = append(sentiments, *st.lastSentiment)
	}
	sentiments = append(sentiments, draft.Sentiment)

	// The webform carries an explicit enterprise checkbox; the responder
	// may also detect enterprise interest in free text. Either counts.
	enterprise := draft.EnterprisePricing || ev.Metadata["enterprise"] == "true"

	return p.engine.Evaluate(escalation.Input{
		MessageText:        ev.Content,
		LastSentiments:     sentiments,
		IntentConfidence:   draft.Confidence,
		ResolutionAttempts: st.ticket.ResolutionAttempts,
		RepeatedQuestion:   escalation.DetectRepeatedQuestion(st.history),
		EnterprisePricing:  enterprise,
		TicketCategory:     st.ticket.Category,
	})
}

// phaseTwo is the outcome transaction: record the agent reply and its
// sentiment, refresh the classification, bump the attempt counter, and
// apply the resulting status transition.
func (p *Pipeline) phaseTwo(
	ctx context.Context,
	ev domain.InboundEvent,
	st *eventState,
	draft *responder.Draft,
	dec escalation.Decision,
	res *phaseTwoResult,
) error {
	now := time.Now().UTC()
	return p.db.WithTx(ctx, func(tx *sql.Tx) error {
		score := draft.Sentiment
		out := &domain.Message{
			ConversationID: st.conversationID,
			Direction:      domain.DirectionOutbound,
			Role:           domain.RoleAgent,
			Content:        draft.Reply,
			Channel:        ev.Channel,
			Sentiment:      &score,
			CreatedAt:      now,
		}
		if err := p.conversations.AppendMessage(ctx, tx, out); err != nil {
			return err
		}

		sentiment, err := p.conversations.UpdateSentiment(ctx, tx, st.conversationID, p.opts.SentimentWindow)
		if err != nil {
			return err
		}
		res.convSentiment = sentiment

		if err := p.customers.AppendSentiment(ctx, tx, st.customerID, score, now); err != nil {
			return err
		}

		var priority domain.TicketPriority
		if draft.SystemOutage {
			// An outage report is not an escalation rule, but it is
			// urgent: raise the ticket for human attention.
			priority = domain.PriorityHigh
		}
		if err := p.tickets.UpdateClassification(ctx, tx, st.ticketID, domain.CategoryForIntent(draft.Intent), priority, now); err != nil {
			return err
		}

		if _, err := p.tickets.IncrementAttempts(ctx, tx, st.ticketID, now); err != nil {
			return err
		}

		res.transitionFrom = st.ticket.Status
		switch {
		case dec.Escalate:
			opts := store.TransitionOpts{Reason: dec.Reason, Route: dec.Route}
			if err := p.tickets.Transition(ctx, tx, st.ticketID, domain.TicketEscalated, now, opts); err != nil {
				return err
			}
			if err := p.tickets.UpdateClassification(ctx, tx, st.ticketID, "", domain.PriorityHigh, now); err != nil {
				return err
			}
			res.transitionTo = domain.TicketEscalated
		case st.ticket.Status == domain.TicketEscalated:
			// A human owns the ticket; the reply still goes out, the
			// status stays put.
		case draft.Confidence >= p.opts.ConfidenceThreshold:
			if err := p.tickets.Transition(ctx, tx, st.ticketID, domain.TicketResolved, now, store.TransitionOpts{}); err != nil {
				return err
			}
			if err := p.conversations.Close(ctx, tx, st.conversationID, now); err != nil {
				return err
			}
			res.transitionTo = domain.TicketResolved
		case st.ticket.Status == domain.TicketOpen:
			if err := p.tickets.Transition(ctx, tx, st.ticketID, domain.TicketInProgress, now, store.TransitionOpts{}); err != nil {
				return err
			}
			res.transitionTo = domain.TicketInProgress
		}
		return nil
	})
}

// noteDraftFailure records responder exhaustion: a system note lands in
// the conversation in a short transaction, the ticket stays open, and
// the event parks on the dead-letter topic so the stream never blocks.
func (p *Pipeline) noteDraftFailure(ctx context.Context, ev domain.InboundEvent, st *eventState, cause error, attempts int) {
	now := time.Now().UTC()
	err := p.db.WithTx(ctx, func(tx *sql.Tx) error {
		return p.conversations.AppendMessage(ctx, tx, &domain.Message{
			ConversationID: st.conversationID,
			Direction:      domain.DirectionOutbound,
			Role:           domain.RoleSystem,
			Content:        fmt.Sprintf("automated response failed after %d attempts (%s); awaiting follow-up", attempts, domain.ErrorKind(cause)),
			Channel:        ev.Channel,
			CreatedAt:      now,
		})
	})
	if err != nil {
		p.log.Error().Err(err).Str("eventId", ev.EventID).Msg("failed to record system note")
	}

	p.deadLetter(ctx, ev, cause, attempts)
}

// retryAttempts reports how many times a failed step ran: a retryable
// error reaching the caller means the budget was exhausted.
func retryAttempts(max int, err error) int {
	if domain.IsRetryable(err) {
		return max
	}
	return 1
}

// deadLetter parks an event for manual remediation and announces it.
func (p *Pipeline) deadLetter(ctx context.Context, ev domain.InboundEvent, cause error, attempts int) {
	kind := domain.ErrorKind(cause)
	dl := domain.DeadLetter{
		Event:     ev,
		Reason:    cause.Error(),
		ErrorKind: kind,
		Attempts:  attempts,
		FailedAt:  time.Now().UTC(),
	}
	if err := p.producer.PublishDeadLetter(ctx, dl); err != nil {
		p.log.Error().Err(err).Str("eventId", ev.EventID).Msg("dead-letter publish failed")
	}
	metrics.RecordDeadLetter(kind)
	p.hooks.EmitAsync(ctx, hooks.EventDeadLettered, map[string]any{
		"event_id":   ev.EventID,
		"channel":    string(ev.Channel),
		"error_kind": kind,
		"reason":     cause.Error(),
	})
	p.log.Error().
		Err(cause).
		Str("eventId", ev.EventID).
		Str("errorKind", kind).
		Int("attempts", attempts).
		Msg("event dead-lettered")
}

// publishOutcomes emits everything downstream consumers see once the
// closing transaction has committed: the formatted reply, the
// escalation notice, the analytics record, and the hook events.
func (p *Pipeline) publishOutcomes(
	ctx context.Context,
	ev domain.InboundEvent,
	st *eventState,
	dr draftResult,
	dec escalation.Decision,
	res *phaseTwoResult,
) {
	now := time.Now().UTC()

	reply := domain.OutboundReply{
		EventID:          ev.EventID,
		TicketID:         st.ticketID,
		ConversationID:   st.conversationID,
		Channel:          ev.Channel,
		SenderIdentifier: ev.SenderIdentifier,
		Content:          dr.draft.Reply,
		CreatedAt:        now,
	}
	// Presentation is applied only here, at the output boundary; the
	// stored history keeps the raw draft.
	reply.Content = channel.FormatterFor(ev.Channel).FormatReply(&reply, st.customerName)
	if err := p.producer.PublishReply(ctx, reply); err != nil {
		p.log.Error().Err(err).Str("eventId", ev.EventID).Msg("reply publish failed")
	}

	if dec.Escalate {
		notice := domain.EscalationNotice{
			TicketID:       st.ticketID,
			ConversationID: st.conversationID,
			CustomerID:     st.customerID,
			Route:          dec.Route,
			Reason:         dec.Reason,
			Channel:        ev.Channel,
			At:             now,
		}
		if err := p.producer.PublishEscalation(ctx, notice); err != nil {
			p.log.Error().Err(err).Str("ticketId", st.ticketID).Msg("escalation publish failed")
		}
		metrics.RecordEscalation(string(dec.Route), dec.Reason)
		p.hooks.EmitAsync(ctx, hooks.EventTicketEscalated, map[string]any{
			"ticket_id": st.ticketID,
			"route":     string(dec.Route),
			"reason":    dec.Reason,
			"channel":   string(ev.Channel),
		})
	}

	if res.transitionTo != "" {
		metrics.RecordTransition(string(res.transitionFrom), string(res.transitionTo))
	}
	if res.transitionTo == domain.TicketResolved {
		p.hooks.EmitAsync(ctx, hooks.EventTicketResolved, map[string]any{
			"ticket_id": st.ticketID,
			"channel":   string(ev.Channel),
		})
	}

	provider := dr.draft.Provider
	if provider == "" {
		provider = p.agent.Name()
	}
	rec := domain.AgentRecord{
		EventID:        ev.EventID,
		TicketID:       st.ticketID,
		ConversationID: st.conversationID,
		CustomerID:     st.customerID,
		Provider:       provider,
		Intent:         dr.draft.Intent,
		Confidence:     dr.draft.Confidence,
		Sentiment:      dr.draft.Sentiment,
		KBQueried:      dr.draft.KBQueried,
		LatencyMS:      dr.latency.Milliseconds(),
		CreatedAt:      now,
	}
	if err := p.producer.PublishAgentRecord(ctx, rec); err != nil {
		p.log.Error().Err(err).Str("eventId", ev.EventID).Msg("agent record publish failed")
	}

	p.log.Info().
		Str("eventId", ev.EventID).
		Str("ticketId", st.ticketID).
		Str("channel", string(ev.Channel)).
		Str("intent", dr.draft.Intent).
		Float64("confidence", dr.draft.Confidence).
		Float64("sentiment", res.convSentiment).
		Bool("escalated", dec.Escalate).
		Msg("event processed")
}
