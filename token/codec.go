package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes the two token families. A refresh token is only ever
// exchanged for a new access token; it is never accepted as an API credential.
type Kind string

const (
	// KindAccess is the short-lived credential presented on API calls.
	KindAccess Kind = "access"
	// KindRefresh is the long-lived credential exchanged for new access tokens.
	KindRefresh Kind = "refresh"
)

// SigningMethod selects the signature algorithm for issued tokens.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

// Parse failures, classified so callers can branch without string matching.
var (
	// ErrMalformed means the value is not a structurally valid token.
	ErrMalformed = errors.New("token malformed")
	// ErrSignatureInvalid means the token was tampered with or signed with a
	// different key.
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrExpired means signature and structure are fine but exp has passed.
	ErrExpired = errors.New("token expired")
	// ErrWrongKind means an access token arrived where a refresh token was
	// required, or the other way around.
	ErrWrongKind = errors.New("token kind mismatch")
)

// Config holds the immutable signing parameters for a Codec.
type Config struct {
	SigningMethod SigningMethod
	// Secret is the HS256 shared key.
	Secret []byte
	// PrivateKey/PublicKey are the Ed25519 pair, raw or PEM.
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	// Leeway is applied to exp/iat comparisons during parsing.
	Leeway time.Duration
}

// Claims is the payload carried by every issued token. Authorities are
// comma-joined so the token stays self-contained for authorization decisions.
type Claims struct {
	Authorities string `json:"authorities,omitempty"`
	TokenKind   string `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

// Kind reports the token family the claims were issued for. Tokens minted
// before the kind claim existed are treated as access tokens.
func (c *Claims) Kind() Kind {
	if c.TokenKind == "" {
		return KindAccess
	}
	return Kind(c.TokenKind)
}

// AuthorityList splits the comma-joined authorities claim.
func (c *Claims) AuthorityList() []string {
	if c.Authorities == "" {
		return nil
	}
	parts := strings.Split(c.Authorities, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Expiry returns the exp claim as a time, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Codec signs and parses bearer tokens. It is pure and stateless: the only
// non-determinism in Issue is the random jti.
type Codec struct {
	config Config
}

// NewCodec validates cfg and returns a ready Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Secret) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires a public key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}
	return &Codec{config: cfg}, nil
}

// Issue builds and signs a token of the given kind. now is supplied by the
// caller so that every timestamp decision within one request shares a single
// observation of the clock.
func (c *Codec) Issue(subject string, authorities []string, kind Kind, ttl time.Duration, now time.Time) (string, error) {
	if subject == "" {
		return "", errors.New("subject required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}

	claims := Claims{
		Authorities: strings.Join(authorities, ","),
		TokenKind:   string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.config.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	tok := jwt.NewWithClaims(c.method(), claims)
	key, err := c.signKey()
	if err != nil {
		return "", err
	}
	return tok.SignedString(key)
}

// Parse verifies the signature and registered claims of tokenStr, evaluating
// time-based claims against at. Failures are classified as ErrMalformed,
// ErrSignatureInvalid or ErrExpired; signature problems always win over
// expiry so a forged token is never mistaken for a merely stale one.
func (c *Codec) Parse(tokenStr string, at time.Time) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method().Alg()}),
		jwt.WithTimeFunc(func() time.Time { return at }),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return c.verifyKey()
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	return claims, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

func (c *Codec) method() jwt.SigningMethod {
	if c.config.SigningMethod == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func (c *Codec) signKey() (interface{}, error) {
	if c.config.SigningMethod == MethodEd25519 {
		return parseEdPrivateKey(c.config.PrivateKey)
	}
	return c.config.Secret, nil
}

func (c *Codec) verifyKey() (interface{}, error) {
	if c.config.SigningMethod == MethodEd25519 {
		return parseEdPublicKey(c.config.PublicKey)
	}
	return c.config.Secret, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
