// Package plugin provides the plugin interface and lifecycle management
// for in-process deskd extensions.
package plugin

import (
	"context"

	"github.com/soyeahso/deskd/internal/hooks"
	"github.com/soyeahso/deskd/internal/logging"
)

// Plugin is the interface that all deskd plugins must implement.
type Plugin interface {
	// ID returns a unique identifier for the plugin (e.g., "ircnotify").
	ID() string

	// Name returns a human-readable name.
	Name() string

	// Version returns the plugin version string.
	Version() string

	// Init initializes the plugin with the given context.
	// Plugins should register hooks and set up resources here.
	Init(ctx context.Context, api API) error

	// Close shuts down the plugin and releases resources.
	Close() error
}

// API is the surface exposed to plugins for interacting with deskd.
// Plugins observe the engine through hook events rather than calling
// into the pipeline directly.
type API struct {
	Hooks *hooks.Manager
	Log   *logging.Logger
}
