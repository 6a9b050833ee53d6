// Package notify is the outbound Notification Dispatcher. It renders a
// message kind and its data into an email and hands it to a delivery driver.
//
// Drivers register themselves by name; "log" and "memory" live here and
// "sendgrid" in its own package.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Kind selects the template for a message.
type Kind string

const (
	KindTeamInvitation   Kind = "team_invitation"
	KindVerificationCode Kind = "verification_code"
	KindTeamProgress     Kind = "team_progress"
	KindTeamConfirmed    Kind = "team_confirmed"
)

// Message is one notification to one recipient.
type Message struct {
	To   string
	Kind Kind
	Data map[string]string
}

// Dispatcher delivers messages. Dispatch returning nil means the message was
// accepted by the driver, not that it reached the recipient.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// Factory builds a driver from its raw [notify.drivers.<name>] table.
type Factory func(conf map[string]any, log *slog.Logger) (Dispatcher, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// RegisterDriver registers a driver factory. Called from driver init().
func RegisterDriver(name string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = f
}

// New builds the named driver.
func New(name string, conf map[string]any, log *slog.Logger) (Dispatcher, error) {
	driversMu.RLock()
	f, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown notify driver %q (available: %v)", name, Drivers())
	}
	return f(conf, log)
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
