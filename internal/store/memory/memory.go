// Package memory registers the in-process store driver. Data is lost on exit.
package memory

import (
	"context"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/teams"
	"github.com/MahdiBaghbani/teamverify-go/internal/store"
)

func init() {
	store.Register("memory", NewDriver)
}

// Driver serves a teams.MemoryRepository.
type Driver struct {
	repo *teams.MemoryRepository
}

// NewDriver creates a memory driver. DataDir is ignored.
func NewDriver(_ *store.DriverConfig) (store.Driver, error) {
	return &Driver{}, nil
}

func (d *Driver) Name() string { return "memory" }

func (d *Driver) Init(_ context.Context) error {
	if d.repo == nil {
		d.repo = teams.NewMemoryRepository()
	}
	return nil
}

func (d *Driver) Close() error { return nil }

func (d *Driver) Teams() teams.Repository { return d.repo }

func (d *Driver) Ping(_ context.Context) error { return nil }

var _ store.Driver = (*Driver)(nil)
