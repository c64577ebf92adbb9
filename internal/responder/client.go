// Package responder calls the external reply-drafting agent. The agent
// is a black box: it receives the conversation context and returns a
// drafted reply with intent, confidence, and structured business flags.
// Nothing in this package decides escalation or ticket state.
package responder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/deskd/internal/domain"
)

// defaultTimeout bounds a single draft call. The pipeline usually passes
// a tighter deadline via context; this is the transport backstop.
const defaultTimeout = 180 * time.Second

// DraftRequest is the conversation context sent to the agent.
type DraftRequest struct {
	Channel        domain.Channel        `json:"channel"`
	CustomerName   string                `json:"customer_name,omitempty"`
	MessageText    string                `json:"message_text"`
	History        []domain.Message      `json:"history,omitempty"`
	TicketCategory domain.TicketCategory `json:"ticket_category,omitempty"`
}

// Draft is the agent's structured answer. Confidence and Sentiment are
// on a 0-1 scale.
type Draft struct {
	Reply             string  `json:"reply"`
	Intent            string  `json:"intent"`
	Confidence        float64 `json:"confidence"`
	Sentiment         float64 `json:"sentiment"`
	EnterprisePricing bool    `json:"enterprise_pricing"`
	SystemOutage      bool    `json:"system_outage"`
	KBQueried         bool    `json:"kb_queried"`
	Provider          string  `json:"provider,omitempty"`
}

// Client is the interface all draft providers implement.
type Client interface {
	// Draft sends the conversation context and returns the agent's draft.
	Draft(ctx context.Context, req DraftRequest) (*Draft, error)

	// Name returns the provider name (e.g. "openai", "mock").
	Name() string
}

// ProviderError is returned when a draft provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP-like status code (401, 429, 500, etc.)
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// IsRetryable checks if the error suggests trying another provider or a
// later retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Code {
		// 401/403 are retryable here because a fallback provider holds
		// its own credentials.
		case 401, 403, 408, 429, 500, 502, 503, 529:
			return true
		}
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "capacity") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused")
}

// draftSchema is the JSON shape the agent must answer with. It is
// embedded in the system prompt and mirrored by parseDraft.
const draftSchema = `{"reply": string, "intent": string, "confidence": number 0-1, "sentiment": number 0-1, "enterprise_pricing": bool, "system_outage": bool, "kb_queried": bool}`

func systemPrompt(ch domain.Channel) string {
	base := "You are a customer support agent. Draft a reply to the customer's latest message using the conversation history for context. " +
		"Classify the customer's intent in a short snake_case label, rate your confidence that the draft fully resolves the request, " +
		"and score the sentiment of the customer's message from 0 (hostile) to 1 (delighted). " +
		"Set enterprise_pricing when the customer asks about enterprise or custom-contract terms, " +
		"system_outage when they report a platform-wide failure, and kb_queried when you consulted the knowledge base. " +
		"Answer with a single JSON object: " + draftSchema
	switch ch {
	case domain.ChannelChat:
		return base + "\nKeep the reply under 300 characters and conversational; it is delivered as a chat message."
	case domain.ChannelEmail:
		return base + "\nWrite the reply as a complete email body with a greeting and sign-off."
	default:
		return base
	}
}

// parseDraft decodes the agent's JSON answer, tolerating a fenced code
// block around it, and clamps the numeric fields to the 0-1 scale.
func parseDraft(provider, content string) (*Draft, error) {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	var d Draft
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return nil, &ProviderError{Provider: provider, Message: fmt.Sprintf("unparseable draft: %v", err)}
	}
	if d.Reply == "" {
		return nil, &ProviderError{Provider: provider, Message: "draft has no reply text"}
	}
	d.Confidence = clamp01(d.Confidence)
	d.Sentiment = clamp01(d.Sentiment)
	d.Provider = provider
	return &d, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
