package ports

import (
	"context"

	"github.com/waldorf/school-records/internal/core/domain"
)

// CredentialRepository defines the persistence operations for login credentials.
// Identifier lookups are case-insensitive.
type CredentialRepository interface {
	// FindByIdentifier matches the username or the email. Returns domain.ErrCredentialNotFound when absent.
	FindByIdentifier(ctx context.Context, identifier string) (*domain.Credential, error)
	FindByID(ctx context.Context, id string) (*domain.Credential, error)
	ExistsByIdentifier(ctx context.Context, identifier string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, cred *domain.Credential) (*domain.Credential, error)
}

// RoleRepository exposes the role/permission catalog. Each role comes with
// its permissions already attached.
type RoleRepository interface {
	ListRoles(ctx context.Context) ([]domain.Role, error)
}
