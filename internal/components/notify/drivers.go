package notify

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	svccfg "github.com/MahdiBaghbani/teamverify-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/logutil"
)

func init() {
	RegisterDriver("log", func(conf map[string]any, log *slog.Logger) (Dispatcher, error) {
		var c LogConfig
		if err := svccfg.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewLog(log, c.AllowSensitive), nil
	})
	RegisterDriver("memory", func(map[string]any, *slog.Logger) (Dispatcher, error) {
		return NewRecorder(), nil
	})
}

// LogConfig is the [notify.drivers.log] table.
type LogConfig struct {
	// AllowSensitive logs one-time codes in clear. Development only.
	AllowSensitive bool `mapstructure:"allow_sensitive"`
}

// Log writes rendered messages to the logger instead of sending them.
type Log struct {
	log            *slog.Logger
	allowSensitive bool
}

// NewLog creates a log dispatcher.
func NewLog(log *slog.Logger, allowSensitive bool) *Log {
	return &Log{log: logutil.NoopIfNil(log), allowSensitive: allowSensitive}
}

func (l *Log) Dispatch(ctx context.Context, msg Message) error {
	r, err := Render(msg)
	if err != nil {
		return err
	}
	attrs := []any{"to", msg.To, "kind", string(msg.Kind), "subject", r.Subject}
	if l.allowSensitive {
		attrs = append(attrs, "body", r.Text)
	} else if _, ok := msg.Data["code"]; ok {
		attrs = append(attrs, "code", "[REDACTED]")
	}
	l.log.InfoContext(ctx, "notification", attrs...)
	return nil
}

// Recorder keeps every dispatched message in memory.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Dispatch(_ context.Context, msg Message) error {
	if _, err := Render(msg); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	data := make(map[string]string, len(msg.Data))
	for k, v := range msg.Data {
		data[k] = v
	}
	msg.Data = data
	r.msgs = append(r.msgs, msg)
	return nil
}

// SetErr makes later dispatches fail with err (nil to recover).
func (r *Recorder) SetErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

// Last returns the most recent message sent to addr of the given kind.
func (r *Recorder) Last(to string, kind Kind) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].To == to && r.msgs[i].Kind == kind {
			return r.msgs[i], true
		}
	}
	return Message{}, false
}

// Async dispatches on a background goroutine. Dispatch always returns nil;
// failures and panics of the wrapped driver are logged.
type Async struct {
	next Dispatcher
	log  *slog.Logger
	wg   sync.WaitGroup
}

// NewAsync wraps next.
func NewAsync(next Dispatcher, log *slog.Logger) *Async {
	return &Async{next: next, log: logutil.NoopIfNil(log)}
}

func (a *Async) Dispatch(ctx context.Context, msg Message) error {
	ctx = context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				a.log.Error("notification dispatch panicked",
					"kind", string(msg.Kind), "panic", rec, "stack", string(debug.Stack()))
			}
		}()
		if err := a.next.Dispatch(ctx, msg); err != nil {
			a.log.Warn("notification dispatch failed", "kind", string(msg.Kind), "error", err)
		}
	}()
	return nil
}

// Wait blocks until every in-flight dispatch has finished.
func (a *Async) Wait() { a.wg.Wait() }
