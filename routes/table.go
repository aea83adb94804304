// Package routes holds the data-driven route classification consulted by the
// authentication pipeline.
//
// Classification is external configuration, not logic owned by the pipeline:
// a table is an ordered list of rules matched first-wins against method and
// path, loadable from YAML and hot-reloadable from disk.
package routes

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Access is the credential class a rule demands.
type Access string

const (
	// AccessPublic routes skip authentication entirely.
	AccessPublic Access = "public"
	// AccessAuthenticated routes require any valid principal.
	AccessAuthenticated Access = "authenticated"
	// AccessVerified routes additionally require a verified email address
	// (mutating operations on listings, reviews, messages).
	AccessVerified Access = "verified"
	// AccessAdmin routes require the ADMIN role.
	AccessAdmin Access = "admin"
)

// Rule classifies one pattern. Patterns are exact paths or prefixes ending in
// "/**"; Methods empty means all methods.
type Rule struct {
	Pattern string   `yaml:"pattern"`
	Methods []string `yaml:"methods,omitempty"`
	Access  Access   `yaml:"access"`
	// SelfService marks the narrow allow-list reachable by banned and
	// deleted accounts: logout and the self-service account routes.
	SelfService bool `yaml:"selfService,omitempty"`
}

func (r Rule) matches(method, path string) bool {
	if len(r.Methods) > 0 {
		ok := false
		for _, m := range r.Methods {
			if strings.EqualFold(m, method) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if prefix, wild := strings.CutSuffix(r.Pattern, "/**"); wild {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return path == r.Pattern
}

// Table is an immutable, ordered rule set. Build a new Table and swap it to
// change classification at runtime.
type Table struct {
	rules []Rule
}

// NewTable validates the rules and returns a Table.
func NewTable(rules []Rule) (*Table, error) {
	for i, r := range rules {
		if r.Pattern == "" {
			return nil, fmt.Errorf("rule %d: empty pattern", i)
		}
		if !strings.HasPrefix(r.Pattern, "/") {
			return nil, fmt.Errorf("rule %d: pattern %q must start with /", i, r.Pattern)
		}
		switch r.Access {
		case AccessPublic, AccessAuthenticated, AccessVerified, AccessAdmin:
		default:
			return nil, fmt.Errorf("rule %d: unknown access class %q", i, r.Access)
		}
	}
	copied := make([]Rule, len(rules))
	copy(copied, rules)
	return &Table{rules: copied}, nil
}

// Classify returns the first rule matching method and path. Unmatched
// requests default to requiring authentication, never to public.
func (t *Table) Classify(method, path string) Rule {
	for _, r := range t.rules {
		if r.matches(method, path) {
			return r
		}
	}
	return Rule{Pattern: path, Access: AccessAuthenticated}
}

// Rules returns a copy of the rule list.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

type tableFile struct {
	Rules []Rule `yaml:"rules"`
}

// Load reads a YAML rule file:
//
//	rules:
//	  - pattern: /api/auth/login
//	    methods: [POST]
//	    access: public
//	  - pattern: /api/exchanges/**
//	    methods: [POST, PUT, DELETE]
//	    access: verified
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route table: %w", err)
	}
	return Parse(data)
}

// Parse builds a Table from YAML bytes.
func Parse(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse route table: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("route table contains no rules")
	}
	return NewTable(f.Rules)
}

// Default returns the built-in marketplace classification used when no file
// is supplied.
func Default() *Table {
	t, err := NewTable([]Rule{
		{Pattern: "/", Access: AccessPublic},
		{Pattern: "/health", Access: AccessPublic},
		{Pattern: "/favicon.ico", Access: AccessPublic},
		{Pattern: "/api/auth/login", Methods: []string{"POST"}, Access: AccessPublic},
		{Pattern: "/api/members/join", Methods: []string{"POST"}, Access: AccessPublic},
		{Pattern: "/api/members/verify-email", Methods: []string{"GET"}, Access: AccessPublic},
		{Pattern: "/api/members/request-password-reset", Access: AccessPublic},
		{Pattern: "/api/members/reset-password", Access: AccessPublic},
		{Pattern: "/api/exchanges", Methods: []string{"GET"}, Access: AccessPublic},
		{Pattern: "/api/exchanges/five", Methods: []string{"GET"}, Access: AccessPublic},
		{Pattern: "/api/reviews", Methods: []string{"GET"}, Access: AccessPublic},

		{Pattern: "/api/auth/logout", Access: AccessAuthenticated, SelfService: true},
		{Pattern: "/api/members/my", Access: AccessAuthenticated, SelfService: true},
		{Pattern: "/api/members/my/**", Access: AccessAuthenticated, SelfService: true},
		{Pattern: "/api/members/resend-verification-email", Access: AccessAuthenticated, SelfService: true},

		{Pattern: "/api/members", Methods: []string{"GET"}, Access: AccessAdmin},
		{Pattern: "/api/members/verify-role/**", Methods: []string{"PUT"}, Access: AccessAdmin},

		{Pattern: "/api/exchanges/**", Methods: []string{"POST", "PUT", "DELETE"}, Access: AccessVerified},
		{Pattern: "/api/exchanges", Methods: []string{"POST"}, Access: AccessVerified},
		{Pattern: "/api/reviews/**", Methods: []string{"POST", "PUT", "DELETE"}, Access: AccessVerified},
		{Pattern: "/api/reviews", Methods: []string{"POST"}, Access: AccessVerified},
		{Pattern: "/api/messages", Access: AccessVerified},
		{Pattern: "/api/messages/**", Access: AccessVerified},
		{Pattern: "/ws/**", Access: AccessVerified},
	})
	if err != nil {
		panic(err) // static table, cannot fail
	}
	return t
}
