package domain

import (
	"strings"
	"time"
)

// Credential is the stored login record of an account.
type Credential struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	PasswordHash string     `json:"-"`
	Active       bool       `json:"active"`
	Locked       bool       `json:"locked"`
	Roles        []RoleName `json:"roles"`
	PersonID     string     `json:"person_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CanLogin reports whether the account is active and not locked.
func (c *Credential) CanLogin() bool {
	return c.Active && !c.Locked
}

// NormalizeIdentifier folds a username or email for case-insensitive lookup.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Principal is the identity resolved for one authenticated request. It is
// rebuilt on every authentication and never stored.
type Principal struct {
	ID          string      `json:"id"`
	Username    string      `json:"username"`
	DisplayName string      `json:"display_name"`
	Email       string      `json:"email"`
	Authorities []Authority `json:"authorities"`
	PrimaryRole RoleName    `json:"primary_role,omitempty"`
}

// HasAny reports whether the principal holds at least one of want.
func (p *Principal) HasAny(want ...Authority) bool {
	for _, have := range p.Authorities {
		for _, w := range want {
			if have == w {
				return true
			}
		}
	}
	return false
}

// RoleNames returns the role names behind the principal's role authorities.
func (p *Principal) RoleNames() []string {
	out := make([]string, 0, len(p.Authorities))
	for _, a := range p.Authorities {
		if a.IsRole() {
			out = append(out, strings.TrimPrefix(string(a), RolePrefix))
		}
	}
	return out
}
