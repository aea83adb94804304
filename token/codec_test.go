package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(Config{
		SigningMethod: MethodHS256,
		Secret:        testSecret,
		Issuer:        "play_baseball",
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	now := time.Now()

	raw, err := c.Issue("alice@example.com", []string{"USER", "VERIFIED_USER"}, KindAccess, 30*time.Minute, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := c.Parse(raw, now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "alice@example.com" {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if claims.Kind() != KindAccess {
		t.Fatalf("kind = %q", claims.Kind())
	}
	if got := claims.AuthorityList(); len(got) != 2 || got[0] != "USER" || got[1] != "VERIFIED_USER" {
		t.Fatalf("authorities = %v", got)
	}
	if claims.ID == "" {
		t.Fatal("expected a jti")
	}
	wantExp := now.Add(30 * time.Minute)
	if diff := claims.Expiry().Sub(wantExp); diff < -time.Second || diff > time.Second {
		t.Fatalf("expiry %v, want ~%v", claims.Expiry(), wantExp)
	}
}

func TestIssueGeneratesUniqueJTI(t *testing.T) {
	c := newTestCodec(t)
	now := time.Now()

	a, err := c.Issue("bob@example.com", nil, KindAccess, time.Minute, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	b, err := c.Issue("bob@example.com", nil, KindAccess, time.Minute, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if a == b {
		t.Fatal("two issuances with identical inputs produced identical tokens")
	}
}

func TestParseExpired(t *testing.T) {
	c := newTestCodec(t)
	issued := time.Now()

	raw, err := c.Issue("alice@example.com", nil, KindAccess, time.Minute, issued)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	_, err = c.Parse(raw, issued.Add(2*time.Minute))
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestParseWrongSecretIsSignatureNotExpired(t *testing.T) {
	c := newTestCodec(t)
	issued := time.Now().Add(-time.Hour)

	raw, err := c.Issue("alice@example.com", nil, KindAccess, time.Minute, issued)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other, err := NewCodec(Config{
		SigningMethod: MethodHS256,
		Secret:        []byte("ffffffffffffffffffffffffffffffff"),
		Issuer:        "play_baseball",
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	// The token is both expired and wrongly signed; the signature failure
	// must win.
	_, err = other.Parse(raw, time.Now())
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
	if errors.Is(err, ErrExpired) {
		t.Fatalf("signature failure misreported as expiry: %v", err)
	}
}

func TestParseMalformed(t *testing.T) {
	c := newTestCodec(t)

	for _, raw := range []string{"", "not-a-token", "a.b", strings.Repeat("x", 64)} {
		if _, err := c.Parse(raw, time.Now()); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Parse(%q): expected ErrMalformed, got %v", raw, err)
		}
	}
}

func TestParseTamperedPayload(t *testing.T) {
	c := newTestCodec(t)
	now := time.Now()

	raw, err := c.Issue("alice@example.com", []string{"USER"}, KindAccess, time.Minute, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %d parts", len(parts))
	}
	parts[1] = parts[1][:len(parts[1])-2] + "AA"
	_, err = c.Parse(strings.Join(parts, "."), now)
	if !errors.Is(err, ErrSignatureInvalid) && !errors.Is(err, ErrMalformed) {
		t.Fatalf("tampered token accepted or misclassified: %v", err)
	}
}

func TestKindDefaultsToAccess(t *testing.T) {
	claims := &Claims{}
	if claims.Kind() != KindAccess {
		t.Fatalf("kind = %q, want access", claims.Kind())
	}
}

func TestRefreshKindSurvivesRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	now := time.Now()

	raw, err := c.Issue("alice@example.com", []string{"USER"}, KindRefresh, 24*time.Hour, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := c.Parse(raw, now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Kind() != KindRefresh {
		t.Fatalf("kind = %q, want refresh", claims.Kind())
	}
}

func TestNewCodecRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"short secret", Config{SigningMethod: MethodHS256, Secret: []byte("short")}},
		{"unknown method", Config{SigningMethod: "rs256", Secret: testSecret}},
		{"ed25519 missing public key", Config{SigningMethod: MethodEd25519}},
		{"excessive leeway", Config{SigningMethod: MethodHS256, Secret: testSecret, Leeway: time.Hour}},
	}
	for _, tc := range cases {
		if _, err := NewCodec(tc.cfg); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
