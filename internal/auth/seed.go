package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// seedPasswordBytes is the number of random bytes for a generated admin password.
const seedPasswordBytes = 16

// SeedAccounts is the user store the seeder needs.
type SeedAccounts interface {
	CountUsers(ctx context.Context) (int, error)
	CreateUser(ctx context.Context, username, passwordHash string, role Role) error
}

// SeedLogger is the subset of the logger used while seeding.
type SeedLogger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// SeedAdmin creates the first admin account when the users table is empty.
// With an empty password a random one is generated and logged; it must be
// changed immediately. Returns the password used, or "" when seeding was
// skipped.
func SeedAdmin(ctx context.Context, accounts SeedAccounts, username, password string, logger SeedLogger) (string, error) {
	count, err := accounts.CountUsers(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Info("users exist, skipping admin seed")
		return "", nil
	}

	if username == "" {
		username = "admin"
	}
	generated := password == ""
	if generated {
		b := make([]byte, seedPasswordBytes)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("generating seed password: %w", err)
		}
		password = hex.EncodeToString(b)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}
	if err := accounts.CreateUser(ctx, username, hash, RoleAdmin); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}

	if generated {
		logger.Warn("seed admin account created",
			"username", username,
			"password", password,
			"action_required", "change this password immediately",
		)
	} else {
		logger.Info("seed admin account created", "username", username)
	}
	return password, nil
}
