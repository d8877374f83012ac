package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/waldorf/school-records/internal/core/domain"
	"github.com/waldorf/school-records/internal/core/ports"
)

const (
	DefaultAccessTTL  = 900 * time.Second
	DefaultRefreshTTL = 604800 * time.Second

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	minSigningKeyLen = 32
)

type accessClaims struct {
	Type        string   `json:"typ"`
	Username    string   `json:"preferred_username,omitempty"`
	Name        string   `json:"name,omitempty"`
	Email       string   `json:"email,omitempty"`
	Authorities []string `json:"authorities"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// JWTIssuer signs HS256 tokens with a key loaded once at construction.
type JWTIssuer struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenOption customises a JWTIssuer.
type TokenOption func(*JWTIssuer)

// WithTokenClock overrides the clock used for iat/exp and validation.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(i *JWTIssuer) { i.now = now }
}

func WithIssuer(issuer string) TokenOption {
	return func(i *JWTIssuer) { i.issuer = issuer }
}

// NewJWTIssuer loads the signing key from keys. A missing or short key is an error;
// callers treat it as fatal at startup. Non-positive TTLs fall back to the defaults.
func NewJWTIssuer(keys ports.SigningKeyProvider, accessTTL, refreshTTL time.Duration, opts ...TokenOption) (*JWTIssuer, error) {
	key, err := keys.SigningKey()
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	if len(key) < minSigningKeyLen {
		return nil, fmt.Errorf("load signing key: key must be at least %d bytes", minSigningKeyLen)
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}

	i := &JWTIssuer{
		key:        key,
		issuer:     "school-records",
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

func (i *JWTIssuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *JWTIssuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccessToken mints a token carrying the principal's identity and authorities.
func (i *JWTIssuer) IssueAccessToken(p *domain.Principal) (string, error) {
	auths := make([]string, 0, len(p.Authorities))
	for _, a := range p.Authorities {
		auths = append(auths, a.String())
	}

	claims := accessClaims{
		Type:             tokenTypeAccess,
		Username:         p.Username,
		Name:             p.DisplayName,
		Email:            p.Email,
		Authorities:      auths,
		RegisteredClaims: i.registered(p.ID, i.accessTTL),
	}
	return i.sign(claims)
}

// IssueRefreshToken mints a token bound to the subject only.
func (i *JWTIssuer) IssueRefreshToken(principalID string) (string, error) {
	claims := refreshClaims{
		Type:             tokenTypeRefresh,
		RegisteredClaims: i.registered(principalID, i.refreshTTL),
	}
	return i.sign(claims)
}

func (i *JWTIssuer) ParseAccessToken(token string) (*ports.AccessClaims, error) {
	var c accessClaims
	if err := i.parse(token, &c); err != nil {
		return nil, err
	}
	if c.Type != tokenTypeAccess {
		return nil, domain.ErrInvalidToken
	}

	auths := make([]domain.Authority, 0, len(c.Authorities))
	for _, a := range c.Authorities {
		auths = append(auths, domain.Authority(a))
	}
	return &ports.AccessClaims{
		Subject:     c.Subject,
		TokenID:     c.ID,
		Username:    c.Username,
		Name:        c.Name,
		Email:       c.Email,
		Authorities: auths,
		IssuedAt:    timeOf(c.IssuedAt),
		ExpiresAt:   timeOf(c.ExpiresAt),
	}, nil
}

func (i *JWTIssuer) ParseRefreshToken(token string) (*ports.RefreshClaims, error) {
	var c refreshClaims
	if err := i.parse(token, &c); err != nil {
		return nil, err
	}
	if c.Type != tokenTypeRefresh {
		return nil, domain.ErrInvalidToken
	}
	return &ports.RefreshClaims{
		Subject:   c.Subject,
		TokenID:   c.ID,
		IssuedAt:  timeOf(c.IssuedAt),
		ExpiresAt: timeOf(c.ExpiresAt),
	}, nil
}

func (i *JWTIssuer) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := i.now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    i.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
}

func (i *JWTIssuer) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSigningFailure, err)
	}
	return signed, nil
}

func (i *JWTIssuer) parse(token string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.ErrTokenExpired
		}
		return domain.ErrInvalidToken
	}
	if !parsed.Valid {
		return domain.ErrInvalidToken
	}
	return nil
}

func timeOf(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
