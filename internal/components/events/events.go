// Package events is the read-only Event Directory consulted when a team is
// created.
package events

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrNotFound is returned when no event has the requested id.
var ErrNotFound = errors.New("event not found")

// Event is the directory's view of an event. PerPersonFee is in minor units.
type Event struct {
	ID           string    `toml:"id"`
	Title        string    `toml:"title"`
	Organization string    `toml:"organization"`
	Start        time.Time `toml:"start"`
	City         string    `toml:"city"`
	Category     string    `toml:"category"`
	LogoURL      string    `toml:"logo_url"`
	BannerURL    string    `toml:"banner_url"`
	PerPersonFee int64     `toml:"per_person_fee"`
	IsTeamEvent  bool      `toml:"is_team_event"`
	TeamMin      int       `toml:"team_min"`
	TeamMax      int       `toml:"team_max"`
}

// Directory looks up events by id.
type Directory interface {
	Get(ctx context.Context, id string) (*Event, error)
}

// MemoryDirectory is a Directory backed by a map.
type MemoryDirectory struct {
	mu     sync.RWMutex
	events map[string]Event
}

// NewMemoryDirectory creates a directory holding the given events.
func NewMemoryDirectory(evs ...Event) *MemoryDirectory {
	d := &MemoryDirectory{events: make(map[string]Event, len(evs))}
	for _, ev := range evs {
		d.events[ev.ID] = ev
	}
	return d
}

// Get returns a copy of the event.
func (d *MemoryDirectory) Get(_ context.Context, id string) (*Event, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ev, ok := d.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &ev, nil
}

// Put adds or replaces an event.
func (d *MemoryDirectory) Put(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events[ev.ID] = ev
}

// IDs returns the known event ids, sorted.
func (d *MemoryDirectory) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.events))
	for id := range d.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type catalogFile struct {
	Events []Event `toml:"events"`
}

// LoadCatalog reads a TOML file of [[events]] tables into a MemoryDirectory.
func LoadCatalog(path string) (*MemoryDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event catalog: %w", err)
	}
	return ParseCatalog(string(data))
}

// ParseCatalog parses catalog TOML.
func ParseCatalog(data string) (*MemoryDirectory, error) {
	var f catalogFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse event catalog: %w", err)
	}

	d := NewMemoryDirectory()
	for i, ev := range f.Events {
		ev.ID = strings.TrimSpace(ev.ID)
		if err := validate(ev); err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		if _, dup := d.events[ev.ID]; dup {
			return nil, fmt.Errorf("events[%d]: duplicate id %q", i, ev.ID)
		}
		d.events[ev.ID] = ev
	}
	return d, nil
}

func validate(ev Event) error {
	if ev.ID == "" {
		return errors.New("id is required")
	}
	if ev.PerPersonFee < 0 {
		return errors.New("per_person_fee must not be negative")
	}
	if !ev.IsTeamEvent {
		return nil
	}
	if ev.TeamMin != 0 && ev.TeamMin < 2 {
		return errors.New("team_min must be at least 2")
	}
	if ev.TeamMax != 0 && ev.TeamMax < ev.TeamMin {
		return errors.New("team_max must not be below team_min")
	}
	return nil
}
