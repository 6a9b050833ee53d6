// Package store provides persistence driver selection for team registrations.
package store

import (
	"context"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/teams"
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Init opens the backend and prepares its schema.
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (memory, sqlite).
	Name() string

	// Teams returns the team and invite repository backed by this driver.
	// Only valid after Init.
	Teams() teams.Repository

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
