package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MahdiBaghbani/teamverify-go/internal/platform/logutil"
)

// SeededUser is a [[server.users]] entry.
type SeededUser struct {
	Username    string `toml:"username" mapstructure:"username"`
	Email       string `toml:"email" mapstructure:"email"`
	DisplayName string `toml:"display_name" mapstructure:"display_name"`
	Password    string `toml:"password" mapstructure:"password"`
}

// Bootstrap creates configured users idempotently.
type Bootstrap struct {
	repo PartyRepo
	auth *UserAuth
	log  *slog.Logger
}

func NewBootstrap(repo PartyRepo, auth *UserAuth, log *slog.Logger) *Bootstrap {
	return &Bootstrap{repo: repo, auth: auth, log: logutil.NoopIfNil(log)}
}

// Run creates every seeded user that does not exist yet and returns how many
// it created. Existing users are left as they are.
func (b *Bootstrap) Run(ctx context.Context, seeded []SeededUser) (int, error) {
	created := 0
	for _, s := range seeded {
		if s.Username == "" || s.Password == "" {
			return created, fmt.Errorf("seeded user %q: username and password are required", s.Username)
		}
		_, err := b.repo.GetByUsername(ctx, s.Username)
		if err == nil {
			b.log.Debug("user already exists", "username", s.Username)
			continue
		}
		if !errors.Is(err, ErrUserNotFound) {
			return created, err
		}

		hash, err := b.auth.HashPassword(s.Password)
		if err != nil {
			return created, err
		}
		user := &User{
			Username:     s.Username,
			Email:        emailKey(s.Email),
			DisplayName:  s.DisplayName,
			PasswordHash: hash,
		}
		if err := b.repo.Create(ctx, user); err != nil {
			return created, fmt.Errorf("seeded user %q: %w", s.Username, err)
		}
		b.log.Info("created user", "username", s.Username, "user_id", user.ID)
		created++
	}
	return created, nil
}
