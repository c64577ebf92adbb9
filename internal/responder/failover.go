package responder

import (
	"context"
	"fmt"

	"github.com/soyeahso/deskd/internal/config"
	"github.com/soyeahso/deskd/internal/logging"
)

// FailoverClient tries the primary provider first, then falls back
// through the list on retryable errors (429, 5xx, timeouts). A
// non-retryable error stops the chain: a bad request will not get
// better on another provider.
type FailoverClient struct {
	clients []Client
	log     *logging.Logger
}

// NewFailoverClient creates a client that drafts through the first
// provider in the chain that answers.
func NewFailoverClient(primary Client, fallbacks []Client, log *logging.Logger) *FailoverClient {
	return &FailoverClient{
		clients: append([]Client{primary}, fallbacks...),
		log:     log.Sub("failover"),
	}
}

// Name returns the primary provider's name.
func (f *FailoverClient) Name() string { return f.clients[0].Name() }

// Draft tries each provider in order.
func (f *FailoverClient) Draft(ctx context.Context, req DraftRequest) (*Draft, error) {
	var lastErr error
	for i, client := range f.clients {
		d, err := client.Draft(ctx, req)
		if err == nil {
			if i > 0 {
				f.log.Info().Str("provider", client.Name()).Msg("fallback provider answered")
			}
			return d, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			// The event deadline is spent; trying more providers only
			// burns it further.
			return nil, err
		}
		if !IsRetryable(err) {
			return nil, err
		}
		f.log.Warn().
			Str("provider", client.Name()).
			Err(err).
			Msg("retryable error, trying next provider")
	}
	return nil, lastErr
}

// New builds the draft client described by the responder configuration:
// a single provider, or a failover chain when fallbacks are configured.
func New(cfg config.ResponderConfig, log *logging.Logger) (Client, error) {
	primary, err := newProvider(cfg.Provider, providerSettings{
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Endpoint:    cfg.Endpoint,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("responder provider %q: %w", cfg.Provider, err)
	}
	if len(cfg.Fallbacks) == 0 {
		return primary, nil
	}

	var fallbacks []Client
	for _, fb := range cfg.Fallbacks {
		c, err := newProvider(fb.Provider, providerSettings{
			Model:       fb.Model,
			APIKey:      fb.APIKey,
			BaseURL:     fb.BaseURL,
			Endpoint:    fb.Endpoint,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("responder fallback %q: %w", fb.Provider, err)
		}
		fallbacks = append(fallbacks, c)
	}
	return NewFailoverClient(primary, fallbacks, log), nil
}

type providerSettings struct {
	Model       string
	APIKey      string
	BaseURL     string
	Endpoint    string
	MaxTokens   int
	Temperature *float64
}

func newProvider(name string, s providerSettings) (Client, error) {
	switch name {
	case "mock", "":
		return &MockClient{}, nil
	case "openai":
		return NewOpenAIClient(s.APIKey, s.Model, s.BaseURL, s.MaxTokens, s.Temperature)
	case "http":
		return NewHTTPClient(s.Endpoint, s.APIKey)
	default:
		return nil, fmt.Errorf("unknown provider")
	}
}
