package ports

import (
	"context"
	"time"

	"github.com/waldorf/school-records/internal/core/domain"
)

// LoginResult is returned by a successful login or refresh.
type LoginResult struct {
	Principal        *domain.Principal
	AccessToken      string
	RefreshToken     string
	ExpiresIn        time.Duration
	RefreshExpiresIn time.Duration
}

// ProvisionCredentialInput carries the data needed to create a login account.
type ProvisionCredentialInput struct {
	Username    string
	Email       string
	DisplayName string
	Password    string
	Roles       []string
	PersonID    string
}

type AuthService interface {
	Authenticate(ctx context.Context, identifier, password string) (*domain.Principal, error)
	Login(ctx context.Context, identifier, password string) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*LoginResult, error)
	Logout(ctx context.Context, refreshToken string) error
	Provision(ctx context.Context, in ProvisionCredentialInput) (*domain.Credential, error)
}
