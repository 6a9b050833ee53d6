// Package sendgrid delivers notifications through the SendGrid v3 mail API.
package sendgrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sg "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/notify"
	svccfg "github.com/MahdiBaghbani/teamverify-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/logutil"
)

const sendPath = "/v3/mail/send"

func init() {
	notify.RegisterDriver("sendgrid", func(conf map[string]any, log *slog.Logger) (notify.Dispatcher, error) {
		var c Config
		if err := svccfg.Decode(conf, &c); err != nil {
			return nil, err
		}
		return New(c, log)
	})
}

// Config is the [notify.drivers.sendgrid] table.
type Config struct {
	APIKey    string        `mapstructure:"api_key"`
	FromEmail string        `mapstructure:"from_email"`
	FromName  string        `mapstructure:"from_name"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.sendgrid.com"
	}
	if c.FromName == "" {
		c.FromName = "Team Registration"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// Dispatcher sends one email per message.
type Dispatcher struct {
	cfg Config
	log *slog.Logger
}

// New validates cfg and creates a Dispatcher.
func New(cfg Config, log *slog.Logger) (*Dispatcher, error) {
	cfg.ApplyDefaults()
	if cfg.APIKey == "" {
		return nil, errors.New("sendgrid: api_key is required")
	}
	if cfg.FromEmail == "" {
		return nil, errors.New("sendgrid: from_email is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Dispatcher{cfg: cfg, log: logutil.NoopIfNil(log)}, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg notify.Message) error {
	r, err := notify.Render(msg)
	if err != nil {
		return err
	}

	from := mail.NewEmail(d.cfg.FromName, d.cfg.FromEmail)
	to := mail.NewEmail("", msg.To)
	m := mail.NewSingleEmail(from, r.Subject, to, r.Text, r.HTML)
	m.AddCategories(string(msg.Kind))

	client := sg.NewSendClient(d.cfg.APIKey)
	client.BaseURL = d.cfg.BaseURL + sendPath

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	resp, err := client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid: send %s: %w", msg.Kind, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sendgrid: send %s: status %d: %s", msg.Kind, resp.StatusCode, truncate(resp.Body, 200))
	}

	d.log.DebugContext(ctx, "sendgrid accepted notification",
		"kind", string(msg.Kind), "status", resp.StatusCode)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
