package authgate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/playbaseball/authgate/routes"
)

// memStore is the in-memory AccountStore used across the engine tests.
type memStore struct {
	mu       sync.RWMutex
	accounts map[string]AccountRecord

	lastLoginCalls int
}

func newMemStore(records ...AccountRecord) *memStore {
	s := &memStore{accounts: make(map[string]AccountRecord)}
	for _, r := range records {
		s.accounts[r.Email] = r
	}
	return s
}

func (s *memStore) GetByEmail(_ context.Context, email string) (AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.accounts[email]
	if !ok {
		return AccountRecord{}, errors.New("account not found")
	}
	return record, nil
}

func (s *memStore) UpdateLastLogin(_ context.Context, email string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.accounts[email]
	if !ok {
		return errors.New("account not found")
	}
	record.LastLoginAt = at
	s.accounts[email] = record
	s.lastLoginCalls++
	return nil
}

func (s *memStore) MarkDeleted(_ context.Context, email string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.accounts[email]
	if !ok {
		return errors.New("account not found")
	}
	record.DeletedAt = &at
	s.accounts[email] = record
	return nil
}

func (s *memStore) get(email string) AccountRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[email]
}

// plainHasher keeps credential tests fast; the real Argon2 hasher has its own
// package tests.
type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "plain$" + p, nil }

func (plainHasher) Verify(p, encoded string) (bool, error) {
	return encoded == "plain$"+p, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Audit.Enabled = false
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, store AccountStore) *Engine {
	t.Helper()
	engine, err := New().
		WithConfig(cfg).
		WithAccountStore(store).
		WithPasswordHasher(plainHasher{}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func hashed(p string) string { return "plain$" + p }

func activeUser(email string) AccountRecord {
	return AccountRecord{
		Email:         email,
		PasswordHash:  hashed("secret-pass"),
		Role:          RoleUser,
		EmailVerified: true,
	}
}

// Route rules used across pipeline tests.
var (
	publicRule   = routes.Rule{Pattern: "/api/exchanges", Access: routes.AccessPublic}
	authRule     = routes.Rule{Pattern: "/api/orders", Access: routes.AccessAuthenticated}
	verifiedRule = routes.Rule{Pattern: "/api/exchanges", Access: routes.AccessVerified}
	adminRule    = routes.Rule{Pattern: "/api/members", Access: routes.AccessAdmin}
	selfRule     = routes.Rule{Pattern: "/api/auth/logout", Access: routes.AccessAuthenticated, SelfService: true}
)

func protectedRequest(accessToken string, rule routes.Rule) Request {
	return Request{
		AccessToken: accessToken,
		Method:      "GET",
		Path:        rule.Pattern,
		ClientIP:    "203.0.113.7",
		UserAgent:   "test-agent",
		Rule:        rule,
	}
}

func mustIssueAccess(t *testing.T, e *Engine, subject string, authorities []string, now time.Time) string {
	t.Helper()
	tok, err := e.IssueAccessToken(subject, authorities, now)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	return tok
}

func mustIssueRefresh(t *testing.T, e *Engine, subject string, authorities []string, now time.Time) string {
	t.Helper()
	tok, err := e.IssueRefreshToken(subject, authorities, now)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	return tok
}
