package responder

import (
	"context"
	"strings"
)

// MockClient is a deterministic draft provider for development and
// tests. With no DraftFunc it answers a canned acknowledgement whose
// intent follows obvious cues in the message text.
type MockClient struct {
	ProviderName string
	DraftFunc    func(ctx context.Context, req DraftRequest) (*Draft, error)
}

func (m *MockClient) Name() string {
	if m.ProviderName != "" {
		return m.ProviderName
	}
	return "mock"
}

func (m *MockClient) Draft(ctx context.Context, req DraftRequest) (*Draft, error) {
	if m.DraftFunc != nil {
		return m.DraftFunc(ctx, req)
	}

	text := strings.ToLower(req.MessageText)
	intent := "general_question"
	switch {
	case strings.Contains(text, "refund") || strings.Contains(text, "invoice") || strings.Contains(text, "charge"):
		intent = "billing_question"
	case strings.Contains(text, "error") || strings.Contains(text, "broken") || strings.Contains(text, "bug"):
		intent = "technical_issue"
	case strings.Contains(text, "feature") || strings.Contains(text, "suggest"):
		intent = "feedback"
	}

	return &Draft{
		Reply:      "Thanks for reaching out. We've recorded your request and will follow up shortly.",
		Intent:     intent,
		Confidence: 0.9,
		Sentiment:  0.5,
		Provider:   m.Name(),
	}, nil
}
