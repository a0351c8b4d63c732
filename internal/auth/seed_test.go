package auth

import (
	"context"
	"testing"
)

type fakeAccounts struct {
	users map[string]string
	roles map[string]Role
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{users: map[string]string{}, roles: map[string]Role{}}
}

func (f *fakeAccounts) CountUsers(context.Context) (int, error) {
	return len(f.users), nil
}

func (f *fakeAccounts) CreateUser(_ context.Context, username, hash string, role Role) error {
	f.users[username] = hash
	f.roles[username] = role
	return nil
}

type discardLogger struct{}

func (discardLogger) Info(string, ...any) {}
func (discardLogger) Warn(string, ...any) {}

func TestSeedAdmin_GeneratesPassword(t *testing.T) {
	accounts := newFakeAccounts()

	password, err := SeedAdmin(context.Background(), accounts, "", "", discardLogger{})
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password == "" {
		t.Fatal("SeedAdmin() should return the generated password")
	}
	if accounts.roles["admin"] != RoleAdmin {
		t.Errorf("role = %q, want admin", accounts.roles["admin"])
	}

	ok, err := VerifyPassword(password, accounts.users["admin"])
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if !ok {
		t.Error("generated password should verify against stored hash")
	}
}

func TestSeedAdmin_UsesConfiguredCredentials(t *testing.T) {
	accounts := newFakeAccounts()

	password, err := SeedAdmin(context.Background(), accounts, "root", "s3cret-pass", discardLogger{})
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password != "s3cret-pass" {
		t.Errorf("password = %q", password)
	}
	if _, ok := accounts.users["root"]; !ok {
		t.Error("configured username was not used")
	}
}

func TestSeedAdmin_SkipsWhenUsersExist(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.users["existing"] = "hash"

	password, err := SeedAdmin(context.Background(), accounts, "", "", discardLogger{})
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password != "" {
		t.Error("SeedAdmin() should return empty password when users exist")
	}
	if len(accounts.users) != 1 {
		t.Errorf("users = %d, want 1", len(accounts.users))
	}
}
