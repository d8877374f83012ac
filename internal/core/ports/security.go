package ports

import (
	"context"
	"time"

	"github.com/waldorf/school-records/internal/core/domain"
)

// CredentialHasher is the one-way password hash used for stored credentials.
type CredentialHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// SigningKeyProvider supplies the process-wide token signing secret.
type SigningKeyProvider interface {
	SigningKey() ([]byte, error)
}

// AccessClaims is what a verified access token carries.
type AccessClaims struct {
	Subject     string
	TokenID     string
	Username    string
	Name        string
	Email       string
	Authorities []domain.Authority
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// RefreshClaims carries no authorities; they are resolved again on renewal.
type RefreshClaims struct {
	Subject   string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer mints and verifies signed, time-bounded tokens.
type TokenIssuer interface {
	IssueAccessToken(p *domain.Principal) (string, error)
	IssueRefreshToken(principalID string) (string, error)
	ParseAccessToken(token string) (*AccessClaims, error)
	ParseRefreshToken(token string) (*RefreshClaims, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

// TokenRevocationStore remembers revoked token IDs until they would have expired anyway.
type TokenRevocationStore interface {
	// Revoke atomically marks tokenID as used. It reports false when the
	// token was already revoked or has already expired.
	Revoke(ctx context.Context, tokenID string, until time.Time) (bool, error)
}

// AuthorityResolver turns a credential's role assignments into authorities.
type AuthorityResolver interface {
	ResolveAuthorities(cred *domain.Credential) []domain.Authority
	ResolvePermissions(cred *domain.Credential) []domain.Permission
	PrimaryRole(cred *domain.Credential) domain.RoleName
}
