// Package escalation decides whether a ticket leaves automated handling
// and which human team receives it. The engine is a pure function over
// the event's conversation context; all state it consults arrives in the
// Input.
package escalation

import (
	"strings"
	"unicode"

	"github.com/soyeahso/deskd/internal/domain"
)

// minResolutionAttempts is how many automated attempts a ticket gets
// before low intent confidence hands it to a human.
const minResolutionAttempts = 2

// Input is the conversation context one evaluation sees.
type Input struct {
	// MessageText is the latest inbound customer message.
	MessageText string
	// LastSentiments holds up to the last two sentiment scores on a 0-1
	// scale, oldest first.
	LastSentiments []float64
	// IntentConfidence is the external agent's confidence in its draft.
	IntentConfidence float64
	// ResolutionAttempts counts automated attempts on the open ticket.
	ResolutionAttempts int
	// RepeatedQuestion is set when the customer re-asked a question that
	// already received an answer.
	RepeatedQuestion bool
	// EnterprisePricing is the structured business flag for
	// enterprise or custom-contract requests.
	EnterprisePricing bool
	// TicketCategory routes sentiment escalations to the right team.
	TicketCategory domain.TicketCategory
}

// Decision is the evaluation outcome. Reason and Route are empty unless
// Escalate is set.
type Decision struct {
	Escalate bool
	Reason   string
	Route    domain.EscalationRoute
}

// Engine evaluates the ordered escalation rules.
type Engine struct {
	sentimentThreshold  float64
	confidenceThreshold float64
}

// NewEngine creates an engine. sentimentThreshold is the 0-1 score under
// which two consecutive messages escalate; confidenceThreshold is the
// intent confidence at or under which a repeatedly-attempted ticket
// escalates.
func NewEngine(sentimentThreshold, confidenceThreshold float64) *Engine {
	return &Engine{
		sentimentThreshold:  sentimentThreshold,
		confidenceThreshold: confidenceThreshold,
	}
}

// Evaluate applies the rules in precedence order and returns the first
// match. Legal and compliance risk always wins, so the lexicon is
// checked first; the enterprise flag is checked ahead of low confidence
// so a sales routing is not masked as a technical failure.
func (e *Engine) Evaluate(in Input) Decision {
	if g, ok := matchLexicon(in.MessageText); ok {
		route := g.route
		if g.categoryRouted && in.TicketCategory == domain.CategoryBilling {
			route = domain.RouteBilling
		}
		return Decision{Escalate: true, Reason: g.reason, Route: route}
	}

	if n := len(in.LastSentiments); n >= 2 {
		a, b := in.LastSentiments[n-2], in.LastSentiments[n-1]
		if a < e.sentimentThreshold && b < e.sentimentThreshold {
			route := domain.RouteTechnical
			if in.TicketCategory == domain.CategoryBilling {
				route = domain.RouteBilling
			}
			return Decision{Escalate: true, Reason: ReasonNegativeSentiment, Route: route}
		}
	}

	if in.RepeatedQuestion {
		return Decision{Escalate: true, Reason: ReasonRepeatedQuestion, Route: domain.RouteTechnical}
	}

	if in.EnterprisePricing {
		return Decision{Escalate: true, Reason: ReasonEnterprisePricing, Route: domain.RouteSales}
	}

	if in.IntentConfidence <= e.confidenceThreshold && in.ResolutionAttempts >= minResolutionAttempts {
		return Decision{Escalate: true, Reason: ReasonLowConfidence, Route: domain.RouteTechnical}
	}

	return Decision{}
}

// Normalize reduces text for comparison: lowercased, punctuation
// stripped, whitespace collapsed. Two messages with the same normalized
// form count as the same question.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			// Punctuation becomes a separator so "order#42" and
			// "order 42" compare equal.
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// DetectRepeatedQuestion reports whether the newest customer message in
// the transcript re-asks the previous customer question after an agent
// already answered it. The transcript is in chronological order.
func DetectRepeatedQuestion(history []domain.Message) bool {
	cur := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleCustomer {
			cur = i
			break
		}
	}
	if cur < 0 {
		return false
	}

	prev := -1
	answered := false
	for i := cur - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleCustomer {
			prev = i
			break
		}
		if history[i].Role == domain.RoleAgent {
			answered = true
		}
	}
	if prev < 0 || !answered {
		return false
	}

	norm := Normalize(history[cur].Content)
	return norm != "" && norm == Normalize(history[prev].Content)
}
