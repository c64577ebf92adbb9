package escalation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/deskd/internal/domain"
)

func testEngine() *Engine {
	return NewEngine(0.3, 0.7)
}

// --- Lexicon tests ---

func TestEvaluate_Lexicon(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		reason string
		route  domain.EscalationRoute
	}{
		{"legal keyword", "I am going to sue you", ReasonLegalMatter, domain.RouteLegal},
		{"legal phrase", "expect legal action from us", ReasonLegalMatter, domain.RouteLegal},
		{"attorney", "my attorney will be in touch", ReasonLegalMatter, domain.RouteLegal},
		{"refund", "I want a refund now", ReasonRefundRequest, domain.RouteBilling},
		{"refund phrase", "give me my money back", ReasonRefundRequest, domain.RouteBilling},
		{"cancel subscription", "please cancel subscription immediately", ReasonRefundRequest, domain.RouteBilling},
		{"pricing", "what is the pricing for the pro plan", ReasonPricingInquiry, domain.RouteBilling},
		{"pricing phrase", "how much does this cost", ReasonPricingInquiry, domain.RouteBilling},
		{"profanity", "this is complete garbage", ReasonProfanity, domain.RouteTechnical},
		{"aggressive", "your product is useless", ReasonProfanity, domain.RouteTechnical},
		{"human request", "let me talk to human please", ReasonHumanRequest, domain.RouteTechnical},
		{"representative", "I need a representative", ReasonHumanRequest, domain.RouteTechnical},
		{"case insensitive", "I WILL SUE", ReasonLegalMatter, domain.RouteLegal},
		{"punctuation around term", "Refund, please.", ReasonRefundRequest, domain.RouteBilling},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testEngine().Evaluate(Input{MessageText: tt.text})
			require.True(t, d.Escalate)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, tt.route, d.Route)
		})
	}
}

func TestEvaluate_LexiconCategoryRouting(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		category domain.TicketCategory
		route    domain.EscalationRoute
	}{
		{"profanity on billing ticket", "this is complete garbage", domain.CategoryBilling, domain.RouteBilling},
		{"human request on billing ticket", "I need a representative", domain.CategoryBilling, domain.RouteBilling},
		{"profanity on technical ticket", "this is complete garbage", domain.CategoryTechnical, domain.RouteTechnical},
		{"legal ignores category", "I will sue", domain.CategoryBilling, domain.RouteLegal},
		{"refund ignores category", "I want a refund", domain.CategoryTechnical, domain.RouteBilling},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testEngine().Evaluate(Input{MessageText: tt.text, TicketCategory: tt.category})
			require.True(t, d.Escalate)
			assert.Equal(t, tt.route, d.Route)
		})
	}
}

func TestEvaluate_LexiconWordBoundaries(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"sue inside issue", "I have an issue with my login"},
		{"hell inside hello", "hello there"},
		{"rate inside separate", "please separate the invoices"},
		{"court inside courtesy", "thanks for the courtesy call"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testEngine().Evaluate(Input{MessageText: tt.text})
			assert.False(t, d.Escalate, "substring inside a longer word must not trigger")
		})
	}
}

func TestEvaluate_LexiconPriority(t *testing.T) {
	// Legal wins over refund even though both groups match.
	d := testEngine().Evaluate(Input{
		MessageText: "I want to speak to a lawyer about a refund",
	})
	require.True(t, d.Escalate)
	assert.Equal(t, ReasonLegalMatter, d.Reason)
	assert.Equal(t, domain.RouteLegal, d.Route)

	// Refund is reported ahead of a generic pricing term.
	d = testEngine().Evaluate(Input{
		MessageText: "refund the charge on my card",
	})
	require.True(t, d.Escalate)
	assert.Equal(t, ReasonRefundRequest, d.Reason)
}

func TestEvaluate_LegalBeatsLowConfidence(t *testing.T) {
	d := testEngine().Evaluate(Input{
		MessageText:        "I will contact my lawyer",
		IntentConfidence:   0.2,
		ResolutionAttempts: 3,
	})
	require.True(t, d.Escalate)
	assert.Equal(t, domain.RouteLegal, d.Route, "legal risk wins regardless of other signals")
}

// --- Sentiment rule tests ---

func TestEvaluate_NegativeSentiment(t *testing.T) {
	tests := []struct {
		name       string
		sentiments []float64
		category   domain.TicketCategory
		escalate   bool
		route      domain.EscalationRoute
	}{
		{"two low general", []float64{0.2, 0.1}, domain.CategoryGeneral, true, domain.RouteTechnical},
		{"two low billing", []float64{0.25, 0.2}, domain.CategoryBilling, true, domain.RouteBilling},
		{"two low technical", []float64{0.1, 0.1}, domain.CategoryTechnical, true, domain.RouteTechnical},
		{"recovered", []float64{0.2, 0.5}, domain.CategoryGeneral, false, ""},
		{"only one low", []float64{0.1}, domain.CategoryGeneral, false, ""},
		{"none", nil, domain.CategoryGeneral, false, ""},
		{"exactly at threshold", []float64{0.3, 0.3}, domain.CategoryGeneral, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testEngine().Evaluate(Input{
				MessageText:    "still waiting on this",
				LastSentiments: tt.sentiments,
				TicketCategory: tt.category,
			})
			assert.Equal(t, tt.escalate, d.Escalate)
			if tt.escalate {
				assert.Equal(t, ReasonNegativeSentiment, d.Reason)
				assert.Equal(t, tt.route, d.Route)
			}
		})
	}
}

// --- Remaining rule order tests ---

func TestEvaluate_RepeatedQuestion(t *testing.T) {
	d := testEngine().Evaluate(Input{
		MessageText:      "where is my order",
		RepeatedQuestion: true,
	})
	require.True(t, d.Escalate)
	assert.Equal(t, ReasonRepeatedQuestion, d.Reason)
	assert.Equal(t, domain.RouteTechnical, d.Route)
}

func TestEvaluate_SentimentBeatsRepeatedQuestion(t *testing.T) {
	d := testEngine().Evaluate(Input{
		MessageText:      "where is my order",
		LastSentiments:   []float64{0.1, 0.1},
		RepeatedQuestion: true,
	})
	require.True(t, d.Escalate)
	assert.Equal(t, ReasonNegativeSentiment, d.Reason)
}

func TestEvaluate_LowConfidence(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		attempts   int
		escalate   bool
	}{
		{"low confidence enough attempts", 0.5, 2, true},
		{"at threshold", 0.7, 2, true},
		{"above threshold", 0.71, 5, false},
		{"first attempt", 0.2, 1, false},
		{"zero attempts", 0.2, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testEngine().Evaluate(Input{
				MessageText:        "it still does not work",
				IntentConfidence:   tt.confidence,
				ResolutionAttempts: tt.attempts,
			})
			assert.Equal(t, tt.escalate, d.Escalate)
			if tt.escalate {
				assert.Equal(t, ReasonLowConfidence, d.Reason)
				assert.Equal(t, domain.RouteTechnical, d.Route)
			}
		})
	}
}

func TestEvaluate_EnterprisePricing(t *testing.T) {
	d := testEngine().Evaluate(Input{
		MessageText:       "we need a custom contract for 500 seats",
		EnterprisePricing: true,
	})
	require.True(t, d.Escalate)
	assert.Equal(t, ReasonEnterprisePricing, d.Reason)
	assert.Equal(t, domain.RouteSales, d.Route)
}

func TestEvaluate_EnterpriseNotMaskedByLowConfidence(t *testing.T) {
	d := testEngine().Evaluate(Input{
		MessageText:        "we need an enterprise rollout plan",
		IntentConfidence:   0.4,
		ResolutionAttempts: 3,
		EnterprisePricing:  true,
	})
	require.True(t, d.Escalate)
	assert.Equal(t, domain.RouteSales, d.Route, "a sales routing is not a technical failure")
	assert.Equal(t, ReasonEnterprisePricing, d.Reason)
}

func TestEvaluate_NoEscalation(t *testing.T) {
	d := testEngine().Evaluate(Input{
		MessageText:        "thanks, that solved it",
		LastSentiments:     []float64{0.8, 0.9},
		IntentConfidence:   0.95,
		ResolutionAttempts: 1,
	})
	assert.False(t, d.Escalate)
	assert.Empty(t, d.Reason)
	assert.Empty(t, d.Route)
}

// --- Normalize tests ---

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "WHERE Is My Order", "where is my order"},
		{"strips punctuation", "Where is my order?!", "where is my order"},
		{"collapses whitespace", "where   is\tmy\norder", "where is my order"},
		{"punctuation as separator", "order#42", "order 42"},
		{"empty", "", ""},
		{"only punctuation", "?!...", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

// --- Repeated question detection tests ---

func msg(role domain.MessageRole, content string) domain.Message {
	return domain.Message{Role: role, Content: content}
}

func TestDetectRepeatedQuestion(t *testing.T) {
	tests := []struct {
		name    string
		history []domain.Message
		want    bool
	}{
		{
			"question repeated after answer",
			[]domain.Message{
				msg(domain.RoleCustomer, "Where is my order?"),
				msg(domain.RoleAgent, "It shipped yesterday."),
				msg(domain.RoleCustomer, "where is my order"),
			},
			true,
		},
		{
			"different question",
			[]domain.Message{
				msg(domain.RoleCustomer, "Where is my order?"),
				msg(domain.RoleAgent, "It shipped yesterday."),
				msg(domain.RoleCustomer, "Can I change the address?"),
			},
			false,
		},
		{
			"no intervening answer",
			[]domain.Message{
				msg(domain.RoleCustomer, "Where is my order?"),
				msg(domain.RoleCustomer, "where is my order"),
			},
			false,
		},
		{
			"system note is not an answer",
			[]domain.Message{
				msg(domain.RoleCustomer, "Where is my order?"),
				msg(domain.RoleSystem, "ticket escalated"),
				msg(domain.RoleCustomer, "where is my order"),
			},
			false,
		},
		{
			"single message",
			[]domain.Message{
				msg(domain.RoleCustomer, "Where is my order?"),
			},
			false,
		},
		{"empty history", nil, false},
		{
			"empty content does not repeat",
			[]domain.Message{
				msg(domain.RoleCustomer, "!!"),
				msg(domain.RoleAgent, "sorry?"),
				msg(domain.RoleCustomer, "??"),
			},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectRepeatedQuestion(tt.history))
		})
	}
}
