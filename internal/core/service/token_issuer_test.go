package service

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/waldorf/school-records/internal/core/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestIssuer(t *testing.T, clock *fakeClock) *JWTIssuer {
	t.Helper()
	i, err := NewJWTIssuer(testKey, 0, 0, WithTokenClock(clock.now))
	if err != nil {
		t.Fatalf("NewJWTIssuer: %v", err)
	}
	return i
}

func teacherPrincipal() *domain.Principal {
	return &domain.Principal{
		ID:          "u-maria",
		Username:    "maria",
		DisplayName: "Maria Souza",
		Email:       "maria@school.example",
		Authorities: []domain.Authority{"PERSON:READ:GLOBAL", "ROLE_TEACHER"},
	}
}

func TestJWTIssuer_AccessRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	i := newTestIssuer(t, clock)

	tok, err := i.IssueAccessToken(teacherPrincipal())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	claims, err := i.ParseAccessToken(tok)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.Subject != "u-maria" || claims.Username != "maria" || claims.Name != "Maria Souza" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !reflect.DeepEqual(claims.Authorities, teacherPrincipal().Authorities) {
		t.Fatalf("authorities = %v", claims.Authorities)
	}
	if claims.TokenID == "" {
		t.Fatalf("expected a token id")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got != 900*time.Second {
		t.Fatalf("lifetime = %v", got)
	}
}

func TestJWTIssuer_AccessExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	i := newTestIssuer(t, clock)

	tok, err := i.IssueAccessToken(teacherPrincipal())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	clock.advance(899 * time.Second)
	if _, err := i.ParseAccessToken(tok); err != nil {
		t.Fatalf("token should still be valid at +899s: %v", err)
	}
	clock.advance(2 * time.Second)
	if _, err := i.ParseAccessToken(tok); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired at +901s, got %v", err)
	}
}

func TestJWTIssuer_RefreshCarriesNoAuthorities(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	i := newTestIssuer(t, clock)

	tok, err := i.IssueRefreshToken("u-maria")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	claims, err := i.ParseRefreshToken(tok)
	if err != nil {
		t.Fatalf("ParseRefreshToken: %v", err)
	}
	if claims.Subject != "u-maria" {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got != 604800*time.Second {
		t.Fatalf("lifetime = %v", got)
	}

	raw := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, raw); err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	if _, ok := raw["authorities"]; ok {
		t.Fatalf("refresh token must not carry authorities")
	}
}

func TestJWTIssuer_TokenTypesAreNotInterchangeable(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	i := newTestIssuer(t, clock)

	access, _ := i.IssueAccessToken(teacherPrincipal())
	refresh, _ := i.IssueRefreshToken("u-maria")

	if _, err := i.ParseRefreshToken(access); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
	if _, err := i.ParseAccessToken(refresh); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
}

func TestJWTIssuer_RejectsTamperedAndForeignTokens(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	i := newTestIssuer(t, clock)

	tok, _ := i.IssueAccessToken(teacherPrincipal())
	parts := strings.Split(tok, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := i.ParseAccessToken(tampered); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("tampered signature: expected ErrInvalidToken, got %v", err)
	}

	other, err := NewJWTIssuer(staticKey("ffffffffffffffffffffffffffffffff"), 0, 0, WithTokenClock(clock.now))
	if err != nil {
		t.Fatalf("NewJWTIssuer: %v", err)
	}
	foreign, _ := other.IssueAccessToken(teacherPrincipal())
	if _, err := i.ParseAccessToken(foreign); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("foreign key: expected ErrInvalidToken, got %v", err)
	}

	if _, err := i.ParseAccessToken("not-a-jwt"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("garbage: expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTIssuer_RejectsOtherIssuer(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	i := newTestIssuer(t, clock)
	other, err := NewJWTIssuer(testKey, 0, 0, WithTokenClock(clock.now), WithIssuer("someone-else"))
	if err != nil {
		t.Fatalf("NewJWTIssuer: %v", err)
	}

	tok, _ := other.IssueAccessToken(teacherPrincipal())
	if _, err := i.ParseAccessToken(tok); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestNewJWTIssuer_KeyErrors(t *testing.T) {
	if _, err := NewJWTIssuer(staticKey(nil), 0, 0); err == nil {
		t.Fatalf("expected error for missing key")
	}
	if _, err := NewJWTIssuer(staticKey("short"), 0, 0); err == nil {
		t.Fatalf("expected error for short key")
	}
}

func TestNewJWTIssuer_CustomTTL(t *testing.T) {
	i, err := NewJWTIssuer(testKey, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewJWTIssuer: %v", err)
	}
	if i.AccessTTL() != time.Minute || i.RefreshTTL() != time.Hour {
		t.Fatalf("unexpected TTLs %v / %v", i.AccessTTL(), i.RefreshTTL())
	}
}
