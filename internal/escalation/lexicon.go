package escalation

import (
	"strings"

	"github.com/soyeahso/deskd/internal/domain"
)

// Escalation reasons carried on tickets and escalation notices.
const (
	ReasonLegalMatter       = "legal_matter"
	ReasonRefundRequest     = "refund_request"
	ReasonPricingInquiry    = "pricing_inquiry"
	ReasonProfanity         = "profanity_aggressive_language"
	ReasonHumanRequest      = "explicit_human_request"
	ReasonNegativeSentiment = "negative_sentiment"
	ReasonRepeatedQuestion  = "repeated_question"
	ReasonLowConfidence     = "low_confidence"
	ReasonEnterprisePricing = "enterprise_pricing"
)

type lexiconGroup struct {
	reason string
	route  domain.EscalationRoute
	// categoryRouted sends the escalation to the billing team instead of
	// route when the open ticket is a billing ticket.
	categoryRouted bool
	terms          []string
}

// lexicon is ordered by route priority: legal beats billing beats
// technical. Within a route, the more specific group comes first so a
// refund demand is not reported as a generic pricing inquiry.
var lexicon = []lexiconGroup{
	{
		reason: ReasonLegalMatter,
		route:  domain.RouteLegal,
		terms: []string{
			"lawyer", "legal", "sue", "attorney", "litigation",
			"lawsuit", "legal action", "court",
		},
	},
	{
		reason: ReasonRefundRequest,
		route:  domain.RouteBilling,
		terms: []string{
			"refund", "money back", "cancel subscription", "charge back",
			"return payment", "reimbursement",
		},
	},
	{
		reason: ReasonPricingInquiry,
		route:  domain.RouteBilling,
		terms: []string{
			"pricing", "how much", "cost", "price", "quote", "rate",
			"fee", "charge", "payment plan",
		},
	},
	{
		reason:         ReasonProfanity,
		route:          domain.RouteTechnical,
		categoryRouted: true,
		terms: []string{
			"damn", "hell", "crap", "shit", "fuck", "ass", "bitch", "bastard",
			"stupid", "idiotic", "useless", "worthless", "pathetic",
			"incompetent", "garbage", "trash",
		},
	},
	{
		reason:         ReasonHumanRequest,
		route:          domain.RouteTechnical,
		categoryRouted: true,
		terms: []string{
			"talk to human", "speak to person", "human agent", "real person",
			"representative", "talk to someone", "human", "agent", "operator",
			"support team",
		},
	},
}

// matchLexicon scans the message against the keyword groups in priority
// order. Terms match on word boundaries over the normalized text, so
// "issue" does not trigger "sue" and "hello" does not trigger "hell".
func matchLexicon(text string) (lexiconGroup, bool) {
	padded := " " + Normalize(text) + " "
	for _, g := range lexicon {
		for _, term := range g.terms {
			if strings.Contains(padded, " "+term+" ") {
				return g, true
			}
		}
	}
	return lexiconGroup{}, false
}
