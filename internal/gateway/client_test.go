package gateway

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/deskd/internal/config"
	"github.com/soyeahso/deskd/internal/logging"
)

func testLog() *logging.Logger {
	return logging.New(io.Discard, "silent")
}

// --- ClientRegistry tests ---

func TestClientRegistryNew(t *testing.T) {
	reg := NewClientRegistry(testLog())
	require.NotNil(t, reg)
	assert.Equal(t, 0, reg.Count())
}

func TestClientRegistryAddAndGet(t *testing.T) {
	reg := NewClientRegistry(testLog())

	c := &Client{
		ConnID: "conn-1",
		Info:   ClientInfo{ID: "visitor-1"},
	}
	reg.Add(c)

	assert.Equal(t, 1, reg.Count())

	got, ok := reg.Get("conn-1")
	assert.True(t, ok)
	assert.Equal(t, "visitor-1", got.Info.ID)
}

func TestClientRegistryGetNotFound(t *testing.T) {
	reg := NewClientRegistry(testLog())

	_, ok := reg.Get("nonexistent")
	assert.False(t, ok)
}

func TestClientRegistryRemove(t *testing.T) {
	reg := NewClientRegistry(testLog())

	c := &Client{ConnID: "conn-1"}
	reg.Add(c)
	assert.Equal(t, 1, reg.Count())

	reg.Remove("conn-1")
	assert.Equal(t, 0, reg.Count())

	_, ok := reg.Get("conn-1")
	assert.False(t, ok)
}

func TestClientRegistryRemoveNonexistent(t *testing.T) {
	reg := NewClientRegistry(testLog())
	// Should not panic
	reg.Remove("nonexistent")
	assert.Equal(t, 0, reg.Count())
}

func TestClientRegistryCount(t *testing.T) {
	reg := NewClientRegistry(testLog())
	assert.Equal(t, 0, reg.Count())

	reg.Add(&Client{ConnID: "conn-1"})
	assert.Equal(t, 1, reg.Count())

	reg.Add(&Client{ConnID: "conn-2"})
	assert.Equal(t, 2, reg.Count())

	reg.Remove("conn-1")
	assert.Equal(t, 1, reg.Count())
}

func TestClientRegistryFindByIdentity(t *testing.T) {
	reg := NewClientRegistry(testLog())

	// Two connections under one identity (two tabs), one under another.
	reg.Add(&Client{ConnID: "conn-1", Info: ClientInfo{ID: "visitor-9"}})
	reg.Add(&Client{ConnID: "conn-2", Info: ClientInfo{ID: "visitor-9"}})
	reg.Add(&Client{ConnID: "conn-3", Info: ClientInfo{ID: "visitor-12"}})

	matches := reg.FindByIdentity("visitor-9")
	assert.Len(t, matches, 2)
	for _, c := range matches {
		assert.Equal(t, "visitor-9", c.Info.ID)
	}

	assert.Len(t, reg.FindByIdentity("visitor-12"), 1)
	assert.Empty(t, reg.FindByIdentity("visitor-404"))
}

func TestClientRegistryFindByIdentityAfterRemove(t *testing.T) {
	reg := NewClientRegistry(testLog())

	reg.Add(&Client{ConnID: "conn-1", Info: ClientInfo{ID: "visitor-9"}})
	reg.Remove("conn-1")

	assert.Empty(t, reg.FindByIdentity("visitor-9"))
}

func TestClientRegistryCloseAll(t *testing.T) {
	reg := NewClientRegistry(testLog())

	// Clients without real sockets; closed guards against the nil conn.
	reg.Add(&Client{ConnID: "conn-1", closed: true})
	reg.Add(&Client{ConnID: "conn-2", closed: true})

	assert.Equal(t, 2, reg.Count())
	reg.CloseAll()
	assert.Equal(t, 0, reg.Count())
}

// --- resolveBindAddr tests ---

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		name string
		bind string
		port int
		host string
		want string
	}{
		{"loopback", "loopback", 18790, "", "127.0.0.1:18790"},
		{"lan", "lan", 9999, "", "0.0.0.0:9999"},
		{"auto", "auto", 8080, "", "0.0.0.0:8080"},
		{"custom_default", "custom", 3000, "", "0.0.0.0:3000"},
		{"custom_host", "custom", 3000, "10.0.0.1", "10.0.0.1:3000"},
		{"unknown_fallback", "whatever", 5000, "", "127.0.0.1:5000"},
		{"empty_fallback", "", 5000, "", "127.0.0.1:5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.GatewayConfig{Bind: tt.bind, Port: tt.port, CustomBindHost: tt.host}
			assert.Equal(t, tt.want, resolveBindAddr(cfg))
		})
	}
}
