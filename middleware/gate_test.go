package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	authgate "github.com/playbaseball/authgate"
	"github.com/playbaseball/authgate/routes"
)

// memStore is a map-backed AccountStore for the HTTP tests.
type memStore struct {
	mu       sync.RWMutex
	accounts map[string]authgate.AccountRecord
}

func newMemStore(records ...authgate.AccountRecord) *memStore {
	s := &memStore{accounts: make(map[string]authgate.AccountRecord)}
	for _, r := range records {
		s.accounts[r.Email] = r
	}
	return s
}

func (s *memStore) GetByEmail(_ context.Context, email string) (authgate.AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.accounts[email]
	if !ok {
		return authgate.AccountRecord{}, errors.New("account not found")
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

type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "plain$" + p, nil }

func (plainHasher) Verify(p, encoded string) (bool, error) {
	return encoded == "plain$"+p, nil
}

func user(email string, role authgate.Role, verified bool) authgate.AccountRecord {
	return authgate.AccountRecord{
		Email:         email,
		PasswordHash:  "plain$secret-pass",
		Role:          role,
		EmailVerified: verified,
	}
}

func newTestEngine(t *testing.T, store authgate.AccountStore) *authgate.Engine {
	t.Helper()
	cfg := authgate.DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Audit.Enabled = false
	engine, err := authgate.New().
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

func testTable(t *testing.T) *routes.Table {
	t.Helper()
	table, err := routes.NewTable([]routes.Rule{
		{Pattern: "/api/auth/login", Methods: []string{"POST"}, Access: routes.AccessPublic},
		{Pattern: "/api/auth/logout", Methods: []string{"POST"}, Access: routes.AccessAuthenticated, SelfService: true},
		{Pattern: "/api/exchanges", Methods: []string{"GET"}, Access: routes.AccessPublic},
		{Pattern: "/api/orders/**", Access: routes.AccessAuthenticated},
		{Pattern: "/api/members/**", Access: routes.AccessAdmin},
	})
	if err != nil {
		t.Fatalf("routes.NewTable: %v", err)
	}
	return table
}

// okHandler echoes the bound principal, or "anonymous".
func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who := "anonymous"
		if p := authgate.PrincipalFromContext(r.Context()); p != nil {
			who = p.Email
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(who))
	})
}

func issueAccess(t *testing.T, e *authgate.Engine, email string, authorities []string, now time.Time) string {
	t.Helper()
	tok, err := e.IssueAccessToken(email, authorities, now)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	return tok
}

func doGated(t *testing.T, e *authgate.Engine, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	Gate(e, testTable(t))(okHandler()).ServeHTTP(rec, req)
	return rec
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestGateAllowsPublicRoute(t *testing.T) {
	e := newTestEngine(t, newMemStore())

	req := httptest.NewRequest("GET", "/api/exchanges", nil)
	rec := doGated(t, e, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if got := rec.Body.String(); got != "anonymous" {
		t.Fatalf("body = %q", got)
	}
}

func TestGateBindsPrincipal(t *testing.T) {
	e := newTestEngine(t, newMemStore(user("alice@example.com", authgate.RoleUser, true)))

	req := httptest.NewRequest("GET", "/api/orders/42", nil)
	req.Header.Set("Authorization", "Bearer "+issueAccess(t, e, "alice@example.com", []string{"ROLE_USER"}, time.Now()))
	rec := doGated(t, e, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if got := rec.Body.String(); got != "alice@example.com" {
		t.Fatalf("body = %q", got)
	}
}

func TestGateErrorBodyShape(t *testing.T) {
	e := newTestEngine(t, newMemStore())

	req := httptest.NewRequest("GET", "/api/orders/42", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := doGated(t, e, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}

	body := decodeErrorBody(t, rec)
	if body.Status != http.StatusUnauthorized {
		t.Fatalf("body.status = %d", body.Status)
	}
	if body.Error != "Malformed" {
		t.Fatalf("body.error = %q", body.Error)
	}
	if body.Path != "/api/orders/42" {
		t.Fatalf("body.path = %q", body.Path)
	}
	if body.Message == "" {
		t.Fatal("body.message empty")
	}
	if _, err := time.Parse(time.RFC3339, body.Timestamp); err != nil {
		t.Fatalf("body.timestamp %q not RFC3339: %v", body.Timestamp, err)
	}
}

func TestGateRateLimitReturns429(t *testing.T) {
	e := newTestEngine(t, newMemStore())

	var rec *httptest.ResponseRecorder
	for i := 0; i < 31; i++ {
		req := httptest.NewRequest("GET", "/api/exchanges", nil)
		req.RemoteAddr = "198.51.100.9:4711"
		req.Header.Set("User-Agent", "curl/8.0")
		rec = doGated(t, e, req)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("31st request status = %d, want 429", rec.Code)
	}
	if body := decodeErrorBody(t, rec); body.Error != "RateLimited" {
		t.Fatalf("body.error = %q", body.Error)
	}
}

func TestGateHandsBackRefreshedToken(t *testing.T) {
	e := newTestEngine(t, newMemStore(user("alice@example.com", authgate.RoleUser, true)))

	now := time.Now()
	expired := issueAccess(t, e, "alice@example.com", []string{"ROLE_USER"}, now.Add(-time.Hour))
	refresh, err := e.IssueRefreshToken("alice@example.com", []string{"ROLE_USER"}, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/orders/42", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: refresh})
	rec := doGated(t, e, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	auth := rec.Header().Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") || auth == "Bearer "+expired {
		t.Fatalf("Authorization header = %q", auth)
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != "Authorization" {
		t.Fatalf("expose header = %q", got)
	}
}

func TestGateEnforcesAdminRoutes(t *testing.T) {
	store := newMemStore(
		user("alice@example.com", authgate.RoleUser, true),
		user("root@example.com", authgate.RoleAdmin, true),
	)
	e := newTestEngine(t, store)
	now := time.Now()

	req := httptest.NewRequest("GET", "/api/members/list", nil)
	req.Header.Set("Authorization", "Bearer "+issueAccess(t, e, "alice@example.com", []string{"ROLE_USER"}, now))
	rec := doGated(t, e, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("user on admin route: status = %d", rec.Code)
	}
	if body := decodeErrorBody(t, rec); body.Error != "Forbidden" {
		t.Fatalf("body.error = %q", body.Error)
	}

	req = httptest.NewRequest("GET", "/api/members/list", nil)
	req.Header.Set("Authorization", "Bearer "+issueAccess(t, e, "root@example.com", []string{"ROLE_ADMIN", "ROLE_USER"}, now))
	rec = doGated(t, e, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin on admin route: status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestGateNilEngine(t *testing.T) {
	rec := httptest.NewRecorder()
	Gate(nil, testTable(t))(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/api/exchanges", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestGateRecoversPanics(t *testing.T) {
	e := newTestEngine(t, newMemStore())

	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("downstream exploded")
	})
	rec := httptest.NewRecorder()
	Gate(e, testTable(t))(panicking).ServeHTTP(rec, httptest.NewRequest("GET", "/api/exchanges", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decodeErrorBody(t, rec)
	if body.Error != "Internal" {
		t.Fatalf("body.error = %q", body.Error)
	}
	if strings.Contains(body.Message, "exploded") {
		t.Fatalf("panic detail leaked: %q", body.Message)
	}
}

func TestBearerToken(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"Bearer  padded ", "padded"},
		{"bearer abc", ""},
		{"Basic dXNlcg==", ""},
		{"", ""},
	} {
		if got := bearerToken(tc.in); got != tc.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:5000"
	if got := clientIP(req); got != "192.0.2.1" {
		t.Fatalf("clientIP = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("clientIP with forwarding = %q", got)
	}
}
