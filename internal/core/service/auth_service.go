package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/waldorf/school-records/internal/core/domain"
	"github.com/waldorf/school-records/internal/core/ports"
)

// dummyPassword is hashed at construction and compared against when the
// identifier is unknown, so a miss costs the same as a wrong password.
const dummyPassword = "school-records/timing-equalizer"

// AuthService implements login, token renewal and credential provisioning.
type AuthService struct {
	creds       ports.CredentialRepository
	hasher      ports.CredentialHasher
	roles       ports.AuthorityResolver
	tokens      ports.TokenIssuer
	revocations ports.TokenRevocationStore
	log         zerolog.Logger
	now         func() time.Time
	dummyHash   string
}

func NewAuthService(
	creds ports.CredentialRepository,
	hasher ports.CredentialHasher,
	roles ports.AuthorityResolver,
	tokens ports.TokenIssuer,
	revocations ports.TokenRevocationStore,
	log zerolog.Logger,
) (*AuthService, error) {
	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("prepare timing-equalizer hash: %w", err)
	}
	return &AuthService{
		creds:       creds,
		hasher:      hasher,
		roles:       roles,
		tokens:      tokens,
		revocations: revocations,
		log:         log,
		now:         time.Now,
		dummyHash:   dummy,
	}, nil
}

// Authenticate verifies identifier and password and builds the principal.
// Unknown identifiers and wrong passwords both yield ErrInvalidCredentials;
// ErrAccountDisabled is only reported once the password matched.
func (s *AuthService) Authenticate(ctx context.Context, identifier, password string) (*domain.Principal, error) {
	id := domain.NormalizeIdentifier(identifier)
	if id == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	cred, err := s.creds.FindByIdentifier(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	if !s.hasher.Verify(password, cred.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	if !cred.CanLogin() {
		s.log.Info().Str("credential_id", cred.ID).Bool("active", cred.Active).Bool("locked", cred.Locked).Msg("login refused for disabled account")
		return nil, domain.ErrAccountDisabled
	}

	return s.principalFor(cred), nil
}

// Login authenticates and mints an access/refresh token pair.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*ports.LoginResult, error) {
	principal, err := s.Authenticate(ctx, identifier, password)
	if err != nil {
		return nil, err
	}

	res, err := s.issuePair(principal)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("credential_id", principal.ID).Int("authorities", len(principal.Authorities)).Msg("login succeeded")
	return res, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// claimed first (rotation), so of two concurrent refreshes with the same
// token only one succeeds. The credential is then loaded again and its
// authorities re-resolved, so revoked roles take effect here.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*ports.LoginResult, error) {
	claims, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	claimed, err := s.revocations.Revoke(ctx, claims.TokenID, claims.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("refresh: revoke previous token: %w", err)
	}
	if !claimed {
		s.log.Warn().Str("credential_id", claims.Subject).Str("jti", claims.TokenID).Msg("revoked refresh token presented")
		return nil, domain.ErrTokenRevoked
	}

	cred, err := s.creds.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if !cred.CanLogin() {
		return nil, domain.ErrAccountDisabled
	}

	return s.issuePair(s.principalFor(cred))
}

// Logout revokes a refresh token. Expired tokens need no revocation.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			return nil
		}
		return err
	}
	if _, err := s.revocations.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.log.Info().Str("credential_id", claims.Subject).Msg("refresh token revoked")
	return nil
}

// Provision creates a new active credential with a hashed password.
func (s *AuthService) Provision(ctx context.Context, in ports.ProvisionCredentialInput) (*domain.Credential, error) {
	username := domain.NormalizeIdentifier(in.Username)
	email := domain.NormalizeIdentifier(in.Email)
	if username == "" || email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", domain.ErrInvalidInput)
	}

	roles := make([]domain.RoleName, 0, len(in.Roles))
	for _, r := range in.Roles {
		name, err := domain.ParseRoleName(r)
		if err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}

	taken, err := s.creds.ExistsByIdentifier(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("provision: %w", err)
	}
	if taken {
		return nil, &domain.DuplicateIdentifierError{Field: domain.FieldUsername, Value: username}
	}
	taken, err = s.creds.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("provision: %w", err)
	}
	if taken {
		return nil, &domain.DuplicateIdentifierError{Field: domain.FieldEmail, Value: email}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("provision: hash password: %w", err)
	}

	now := s.now().UTC()
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = username
	}
	created, err := s.creds.Create(ctx, &domain.Credential{
		Username:     username,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		Active:       true,
		Roles:        roles,
		PersonID:     in.PersonID,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("credential_id", created.ID).Str("username", created.Username).Msg("credential provisioned")
	return created, nil
}

func (s *AuthService) principalFor(cred *domain.Credential) *domain.Principal {
	return &domain.Principal{
		ID:          cred.ID,
		Username:    cred.Username,
		DisplayName: cred.DisplayName,
		Email:       cred.Email,
		Authorities: s.roles.ResolveAuthorities(cred),
		PrimaryRole: s.roles.PrimaryRole(cred),
	}
}

func (s *AuthService) issuePair(p *domain.Principal) (*ports.LoginResult, error) {
	access, err := s.tokens.IssueAccessToken(p)
	if err != nil {
		s.log.Error().Err(err).Str("credential_id", p.ID).Msg("access token signing failed")
		return nil, err
	}
	refresh, err := s.tokens.IssueRefreshToken(p.ID)
	if err != nil {
		s.log.Error().Err(err).Str("credential_id", p.ID).Msg("refresh token signing failed")
		return nil, err
	}
	return &ports.LoginResult{
		Principal:        p,
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresIn:        s.tokens.AccessTTL(),
		RefreshExpiresIn: s.tokens.RefreshTTL(),
	}, nil
}
