package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	authgate "github.com/playbaseball/authgate"
)

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == RefreshCookieName {
			return c
		}
	}
	t.Fatal("refresh cookie not set")
	return nil
}

func TestLoginHandlerSuccess(t *testing.T) {
	e := newTestEngine(t, newMemStore(user("alice@example.com", authgate.RoleUser, true)))

	rec := httptest.NewRecorder()
	LoginHandler(e).ServeHTTP(rec, postJSON("/api/auth/login", `{"email":"alice@example.com","password":"secret-pass"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if auth := rec.Header().Get("Authorization"); !strings.HasPrefix(auth, "Bearer ") {
		t.Fatalf("Authorization header = %q", auth)
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != "Authorization" {
		t.Fatalf("expose header = %q", got)
	}

	cookie := refreshCookie(t, rec)
	if cookie.Value == "" {
		t.Fatal("refresh cookie empty")
	}
	if !cookie.HttpOnly || !cookie.Secure {
		t.Fatalf("cookie flags: HttpOnly=%v Secure=%v", cookie.HttpOnly, cookie.Secure)
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie SameSite = %v", cookie.SameSite)
	}
	if cookie.Path != "/" {
		t.Fatalf("cookie Path = %q", cookie.Path)
	}
	if want := int(e.RefreshTTL() / time.Second); cookie.MaxAge != want {
		t.Fatalf("cookie MaxAge = %d, want %d", cookie.MaxAge, want)
	}

	var body loginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Email != "alice@example.com" || body.Role != "USER" {
		t.Fatalf("body = %+v", body)
	}
}

func TestLoginHandlerRejectsBadCredentials(t *testing.T) {
	e := newTestEngine(t, newMemStore(user("alice@example.com", authgate.RoleUser, true)))

	rec := httptest.NewRecorder()
	LoginHandler(e).ServeHTTP(rec, postJSON("/api/auth/login", `{"email":"alice@example.com","password":"wrong"}`))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeErrorBody(t, rec); body.Error != "InvalidCredentials" {
		t.Fatalf("body.error = %q", body.Error)
	}
}

func TestLoginHandlerRejectsBadJSON(t *testing.T) {
	e := newTestEngine(t, newMemStore())

	rec := httptest.NewRecorder()
	LoginHandler(e).ServeHTTP(rec, postJSON("/api/auth/login", `{not json`))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLoginHandlerMethodNotAllowed(t *testing.T) {
	e := newTestEngine(t, newMemStore())

	rec := httptest.NewRecorder()
	LoginHandler(e).ServeHTTP(rec, httptest.NewRequest("GET", "/api/auth/login", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != "POST" {
		t.Fatalf("Allow = %q", allow)
	}
}

func TestLogoutHandlerRevokesAndClearsCookie(t *testing.T) {
	e := newTestEngine(t, newMemStore(user("alice@example.com", authgate.RoleUser, true)))
	access := issueAccess(t, e, "alice@example.com", []string{"ROLE_USER"}, time.Now())

	req := httptest.NewRequest("POST", "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	LogoutHandler(e).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	cookie := refreshCookie(t, rec)
	if cookie.Value != "" || cookie.MaxAge >= 0 {
		t.Fatalf("cookie not cleared: value=%q maxAge=%d", cookie.Value, cookie.MaxAge)
	}

	// The revoked token no longer passes the gate.
	gated := httptest.NewRequest("GET", "/api/orders/42", nil)
	gated.Header.Set("Authorization", "Bearer "+access)
	rec = doGated(t, e, gated)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token status = %d", rec.Code)
	}
	if body := decodeErrorBody(t, rec); body.Error != "Revoked" {
		t.Fatalf("body.error = %q", body.Error)
	}
}

func TestLogoutHandlerWithoutTokenSucceeds(t *testing.T) {
	e := newTestEngine(t, newMemStore())

	rec := httptest.NewRecorder()
	LogoutHandler(e).ServeHTTP(rec, httptest.NewRequest("POST", "/api/auth/logout", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDeactivateHandler(t *testing.T) {
	store := newMemStore(user("alice@example.com", authgate.RoleUser, true))
	e := newTestEngine(t, store)
	access := issueAccess(t, e, "alice@example.com", []string{"ROLE_USER"}, time.Now())

	req := httptest.NewRequest("DELETE", "/api/members/my", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	DeactivateHandler(e).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	record, err := store.GetByEmail(req.Context(), "alice@example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if record.DeletedAt == nil {
		t.Fatal("account not marked deleted")
	}
	if cookie := refreshCookie(t, rec); cookie.MaxAge >= 0 {
		t.Fatalf("cookie not cleared: maxAge=%d", cookie.MaxAge)
	}
}

func TestDeactivateHandlerRequiresToken(t *testing.T) {
	e := newTestEngine(t, newMemStore())

	rec := httptest.NewRecorder()
	DeactivateHandler(e).ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/members/my", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}
