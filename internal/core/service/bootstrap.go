package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/waldorf/school-records/internal/core/domain"
	"github.com/waldorf/school-records/internal/core/ports"
)

// EnsureAdmin provisions an ADMIN credential unless one with the same
// username or email already exists. It reports whether a credential was created.
func EnsureAdmin(ctx context.Context, auth ports.AuthService, in ports.ProvisionCredentialInput, log zerolog.Logger) (bool, error) {
	in.Roles = []string{string(domain.RoleAdmin)}
	cred, err := auth.Provision(ctx, in)
	if _, dup := domain.IsDuplicateIdentifier(err); dup {
		log.Debug().Str("username", in.Username).Msg("bootstrap admin already present")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}
	log.Info().Str("credential_id", cred.ID).Msg("bootstrap admin provisioned")
	return true, nil
}
