package responder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/deskd/internal/config"
	"github.com/soyeahso/deskd/internal/domain"
	"github.com/soyeahso/deskd/internal/logging"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// --- Draft parsing tests ---

func TestParseDraft(t *testing.T) {
	d, err := parseDraft("test", `{"reply": "Hi there", "intent": "greeting", "confidence": 0.92, "sentiment": 0.8, "kb_queried": true}`)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", d.Reply)
	assert.Equal(t, "greeting", d.Intent)
	assert.InDelta(t, 0.92, d.Confidence, 1e-9)
	assert.InDelta(t, 0.8, d.Sentiment, 1e-9)
	assert.True(t, d.KBQueried)
	assert.False(t, d.EnterprisePricing)
	assert.Equal(t, "test", d.Provider)
}

func TestParseDraft_FencedJSON(t *testing.T) {
	content := "```json\n{\"reply\": \"done\", \"intent\": \"x\", \"confidence\": 1, \"sentiment\": 0.5}\n```"
	d, err := parseDraft("test", content)
	require.NoError(t, err)
	assert.Equal(t, "done", d.Reply)
}

func TestParseDraft_ClampsScores(t *testing.T) {
	d, err := parseDraft("test", `{"reply": "ok", "confidence": 1.7, "sentiment": -0.4}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, d.Confidence)
	assert.Equal(t, 0.0, d.Sentiment)
}

func TestParseDraft_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "sorry, I cannot help with that"},
		{"empty reply", `{"reply": "", "intent": "x"}`},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseDraft("test", tt.content)
			var provErr *ProviderError
			require.ErrorAs(t, err, &provErr)
			assert.Equal(t, "test", provErr.Provider)
		})
	}
}

// --- Retryability tests ---

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &ProviderError{Provider: "p", Code: 429}, true},
		{"server error", &ProviderError{Provider: "p", Code: 500}, true},
		{"bad gateway", &ProviderError{Provider: "p", Code: 502}, true},
		{"unauthorized falls through to next provider", &ProviderError{Provider: "p", Code: 401}, true},
		{"bad request", &ProviderError{Provider: "p", Code: 400}, false},
		{"not found", &ProviderError{Provider: "p", Code: 404}, false},
		{"unparseable draft", &ProviderError{Provider: "p", Message: "unparseable draft"}, false},
		{"timeout message", errors.New("request timeout exceeded"), true},
		{"rate limit message", errors.New("openai: rate limit reached"), true},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

// --- Mock client tests ---

func TestMockClient_DefaultDraft(t *testing.T) {
	m := &MockClient{}

	d, err := m.Draft(context.Background(), DraftRequest{MessageText: "I was double charged on my invoice"})
	require.NoError(t, err)
	assert.Equal(t, "billing_question", d.Intent)
	assert.NotEmpty(t, d.Reply)
	assert.InDelta(t, 0.9, d.Confidence, 1e-9)

	d, err = m.Draft(context.Background(), DraftRequest{MessageText: "the dashboard shows an error"})
	require.NoError(t, err)
	assert.Equal(t, "technical_issue", d.Intent)

	d, err = m.Draft(context.Background(), DraftRequest{MessageText: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "general_question", d.Intent)
}

func TestMockClient_DraftFunc(t *testing.T) {
	m := &MockClient{
		DraftFunc: func(ctx context.Context, req DraftRequest) (*Draft, error) {
			return &Draft{Reply: "custom", Confidence: 0.1}, nil
		},
	}
	d, err := m.Draft(context.Background(), DraftRequest{MessageText: "anything"})
	require.NoError(t, err)
	assert.Equal(t, "custom", d.Reply)
}

// --- HTTP client tests ---

func TestHTTPClient_Draft(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"reply": "from sidecar", "intent": "general_question", "confidence": 0.75, "sentiment": 0.6}`)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL+"/draft", "secret")
	require.NoError(t, err)

	d, err := c.Draft(context.Background(), DraftRequest{Channel: domain.ChannelEmail, MessageText: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "from sidecar", d.Reply)
	assert.Equal(t, "http", d.Provider)
	assert.Equal(t, "/draft", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestHTTPClient_Draft_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, "")
	require.NoError(t, err)

	_, err = c.Draft(context.Background(), DraftRequest{MessageText: "hi"})
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusServiceUnavailable, provErr.Code)
	assert.True(t, IsRetryable(err))
}

func TestNewHTTPClient_RequiresEndpoint(t *testing.T) {
	_, err := NewHTTPClient("  ", "")
	assert.Error(t, err)
}

// --- Failover tests ---

func TestFailover_PrimaryAnswers(t *testing.T) {
	fallbackCalled := false
	primary := &MockClient{ProviderName: "primary"}
	fallback := &MockClient{
		ProviderName: "fallback",
		DraftFunc: func(ctx context.Context, req DraftRequest) (*Draft, error) {
			fallbackCalled = true
			return &Draft{Reply: "fb"}, nil
		},
	}

	f := NewFailoverClient(primary, []Client{fallback}, silentLog())
	d, err := f.Draft(context.Background(), DraftRequest{MessageText: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, d.Reply)
	assert.False(t, fallbackCalled)
	assert.Equal(t, "primary", f.Name())
}

func TestFailover_RetryableErrorFallsThrough(t *testing.T) {
	primary := &MockClient{
		ProviderName: "primary",
		DraftFunc: func(ctx context.Context, req DraftRequest) (*Draft, error) {
			return nil, &ProviderError{Provider: "primary", Code: 429, Message: "rate limited"}
		},
	}
	fallback := &MockClient{
		ProviderName: "fallback",
		DraftFunc: func(ctx context.Context, req DraftRequest) (*Draft, error) {
			return &Draft{Reply: "fallback answer", Provider: "fallback"}, nil
		},
	}

	f := NewFailoverClient(primary, []Client{fallback}, silentLog())
	d, err := f.Draft(context.Background(), DraftRequest{MessageText: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "fallback answer", d.Reply)
}

func TestFailover_NonRetryableStopsChain(t *testing.T) {
	fallbackCalled := false
	primary := &MockClient{
		ProviderName: "primary",
		DraftFunc: func(ctx context.Context, req DraftRequest) (*Draft, error) {
			return nil, &ProviderError{Provider: "primary", Code: 400, Message: "bad request"}
		},
	}
	fallback := &MockClient{
		ProviderName: "fallback",
		DraftFunc: func(ctx context.Context, req DraftRequest) (*Draft, error) {
			fallbackCalled = true
			return &Draft{Reply: "fb"}, nil
		},
	}

	f := NewFailoverClient(primary, []Client{fallback}, silentLog())
	_, err := f.Draft(context.Background(), DraftRequest{MessageText: "hi"})
	require.Error(t, err)
	assert.False(t, fallbackCalled, "a bad request does not improve on another provider")
}

func TestFailover_AllFail(t *testing.T) {
	fail := func(provider string) *MockClient {
		return &MockClient{
			ProviderName: provider,
			DraftFunc: func(ctx context.Context, req DraftRequest) (*Draft, error) {
				return nil, &ProviderError{Provider: provider, Code: 503, Message: "down"}
			},
		}
	}

	f := NewFailoverClient(fail("a"), []Client{fail("b"), fail("c")}, silentLog())
	_, err := f.Draft(context.Background(), DraftRequest{MessageText: "hi"})
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "c", provErr.Provider, "the last provider's error surfaces")
}

func TestFailover_SpentDeadlineStops(t *testing.T) {
	fallbackCalled := false
	ctx, cancel := context.WithCancel(context.Background())
	primary := &MockClient{
		ProviderName: "primary",
		DraftFunc: func(ctx context.Context, req DraftRequest) (*Draft, error) {
			cancel()
			return nil, &ProviderError{Provider: "primary", Code: 503, Message: "down"}
		},
	}
	fallback := &MockClient{
		ProviderName: "fallback",
		DraftFunc: func(ctx context.Context, req DraftRequest) (*Draft, error) {
			fallbackCalled = true
			return &Draft{Reply: "fb"}, nil
		},
	}

	f := NewFailoverClient(primary, []Client{fallback}, silentLog())
	_, err := f.Draft(ctx, DraftRequest{MessageText: "hi"})
	require.Error(t, err)
	assert.False(t, fallbackCalled, "no provider is tried after the deadline is spent")
}

// --- Builder tests ---

func TestNew_Defaults(t *testing.T) {
	c, err := New(config.ResponderConfig{Provider: "mock"}, silentLog())
	require.NoError(t, err)
	assert.Equal(t, "mock", c.Name())
}

func TestNew_HTTPRequiresEndpoint(t *testing.T) {
	_, err := New(config.ResponderConfig{Provider: "http"}, silentLog())
	assert.Error(t, err)
}

func TestNew_OpenAIRequiresKey(t *testing.T) {
	_, err := New(config.ResponderConfig{Provider: "openai"}, silentLog())
	assert.Error(t, err)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(config.ResponderConfig{Provider: "telepathy"}, silentLog())
	assert.Error(t, err)
}

func TestNew_WithFallbacks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"reply": "ok", "confidence": 0.9, "sentiment": 0.5}`)
	}))
	defer srv.Close()

	c, err := New(config.ResponderConfig{
		Provider: "mock",
		Fallbacks: []config.FallbackEntry{
			{Provider: "http", Endpoint: srv.URL},
		},
	}, silentLog())
	require.NoError(t, err)

	_, ok := c.(*FailoverClient)
	assert.True(t, ok, "fallbacks wrap the primary in a failover chain")
}
