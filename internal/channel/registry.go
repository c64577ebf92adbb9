// Package channel manages the intake adapters that feed external
// mailboxes and chat surfaces into the inbound topics, plus the
// per-channel presentation applied to outbound replies.
package channel

import (
	"context"
	"sync"

	"github.com/soyeahso/deskd/internal/domain"
	"github.com/soyeahso/deskd/internal/logging"
)

// Adapter is an intake integration that watches one external source and
// publishes the messages it finds as inbound events.
type Adapter interface {
	// ID uniquely names the adapter instance (e.g. "email-imap").
	ID() string

	// Kind is the domain channel the adapter feeds.
	Kind() domain.Channel

	// Start runs the adapter until ctx is cancelled. Implementations may
	// block; the registry launches each in its own goroutine.
	Start(ctx context.Context) error

	// Stop releases adapter resources.
	Stop(ctx context.Context) error

	// Status reports the adapter's current condition.
	Status() Status
}

// Status describes one adapter's runtime condition.
type Status struct {
	ID        string         `json:"id"`
	Kind      domain.Channel `json:"kind"`
	Running   bool           `json:"running"`
	LastError string         `json:"last_error,omitempty"`
}

// Registry manages a set of intake adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	log      *logging.Logger
}

// NewRegistry creates an adapter registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		log:      log.Sub("channels"),
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.ID()] = a
	r.log.Info().Str("adapter", a.ID()).Str("kind", string(a.Kind())).Msg("adapter registered")
}

// Get returns an adapter by ID.
func (r *Registry) Get(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// List returns all adapter IDs.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}

// Status returns the status of all registered adapters.
func (r *Registry) Status() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	statuses := make([]Status, 0, len(r.adapters))
	for _, a := range r.adapters {
		statuses = append(statuses, a.Status())
	}
	return statuses
}

// StartAll starts all registered adapters in background goroutines.
// Adapter Start methods may block (poll loops run until cancelled), so
// each is launched concurrently to avoid preventing subsequent
// initialization.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, a := range r.adapters {
		r.log.Info().Str("adapter", id).Msg("starting adapter")
		go func(id string, a Adapter) {
			if err := a.Start(ctx); err != nil {
				r.log.Error().Err(err).Str("adapter", id).Msg("adapter exited with error")
			}
		}(id, a)
	}
	return nil
}

// StopAll stops all registered adapters.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, a := range r.adapters {
		r.log.Info().Str("adapter", id).Msg("stopping adapter")
		if err := a.Stop(ctx); err != nil {
			r.log.Error().Err(err).Str("adapter", id).Msg("failed to stop adapter")
		}
	}
}

// Count returns the number of registered adapters.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
