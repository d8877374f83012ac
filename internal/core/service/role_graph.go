package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/waldorf/school-records/internal/core/domain"
	"github.com/waldorf/school-records/internal/core/ports"
)

// RoleGraphConfig holds the resolution policy knobs.
type RoleGraphConfig struct {
	// DefaultRole is substituted for credentials that hold no usable role.
	// Empty means fail closed: such credentials resolve to no authorities.
	DefaultRole domain.RoleName
	// IncludePermissions adds the flattened permission closure to the
	// authority set next to the role authorities.
	IncludePermissions bool
}

// RoleGraph is an immutable snapshot of the role catalog, loaded once at
// startup and shared by all requests.
type RoleGraph struct {
	roles map[domain.RoleName]domain.Role
	cfg   RoleGraphConfig
	log   zerolog.Logger
}

// LoadRoleGraph reads the catalog from repo and validates it.
func LoadRoleGraph(ctx context.Context, repo ports.RoleRepository, cfg RoleGraphConfig, log zerolog.Logger) (*RoleGraph, error) {
	roles, err := repo.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load role catalog: %w", err)
	}
	return NewRoleGraph(roles, cfg, log)
}

// NewRoleGraph validates roles and builds the graph. Unknown role names,
// malformed permissions, duplicates and an unknown default role are errors.
func NewRoleGraph(roles []domain.Role, cfg RoleGraphConfig, log zerolog.Logger) (*RoleGraph, error) {
	g := &RoleGraph{
		roles: make(map[domain.RoleName]domain.Role, len(roles)),
		cfg:   cfg,
		log:   log,
	}

	for _, r := range roles {
		if !r.Name.Valid() {
			return nil, fmt.Errorf("role catalog: %w: %q", domain.ErrUnknownRole, r.Name)
		}
		if _, dup := g.roles[r.Name]; dup {
			return nil, fmt.Errorf("role catalog: duplicate role %q", r.Name)
		}
		perms := make([]domain.Permission, 0, len(r.Permissions))
		seen := make(map[domain.PermissionKey]struct{}, len(r.Permissions))
		for _, p := range r.Permissions {
			if err := p.Validate(); err != nil {
				return nil, fmt.Errorf("role catalog: role %s: %w", r.Name, err)
			}
			if _, ok := seen[p.Key()]; ok {
				continue
			}
			seen[p.Key()] = struct{}{}
			perms = append(perms, p)
		}
		r.Permissions = perms
		g.roles[r.Name] = r
	}

	if cfg.DefaultRole != "" {
		if !cfg.DefaultRole.Valid() {
			return nil, fmt.Errorf("default role: %w: %q", domain.ErrUnknownRole, cfg.DefaultRole)
		}
		if _, ok := g.roles[cfg.DefaultRole]; !ok {
			return nil, fmt.Errorf("default role %q is not in the role catalog", cfg.DefaultRole)
		}
	}
	return g, nil
}

// Role returns the catalog entry for name.
func (g *RoleGraph) Role(name domain.RoleName) (domain.Role, bool) {
	r, ok := g.roles[name]
	return r, ok
}

// RolesOf returns the active catalog roles held by cred, falling back to
// the configured default role when none remain.
func (g *RoleGraph) RolesOf(cred *domain.Credential) []domain.Role {
	held := make([]domain.Role, 0, len(cred.Roles))
	seen := make(map[domain.RoleName]struct{}, len(cred.Roles))
	for _, name := range cred.Roles {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		r, ok := g.roles[name]
		if !ok {
			g.log.Warn().Str("credential_id", cred.ID).Str("role", string(name)).Msg("credential references a role missing from the catalog")
			continue
		}
		if !r.Active {
			continue
		}
		held = append(held, r)
	}

	if len(held) == 0 {
		if g.cfg.DefaultRole == "" {
			g.log.Warn().Str("credential_id", cred.ID).Msg("credential has no roles, resolving to no authorities")
			return held
		}
		g.log.Warn().Str("credential_id", cred.ID).Str("default_role", string(g.cfg.DefaultRole)).Msg("credential has no roles, substituting default role")
		held = append(held, g.roles[g.cfg.DefaultRole])
	}
	return held
}

// ResolveAuthorities returns the sorted authority set for cred.
func (g *RoleGraph) ResolveAuthorities(cred *domain.Credential) []domain.Authority {
	roles := g.RolesOf(cred)
	out := make([]domain.Authority, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.Name.Authority())
	}
	if g.cfg.IncludePermissions {
		for _, p := range unionPermissions(roles) {
			out = append(out, p.Authority())
		}
	}
	return domain.SortAuthorities(out)
}

// ResolvePermissions returns the union of the permissions of every role held by cred.
func (g *RoleGraph) ResolvePermissions(cred *domain.Credential) []domain.Permission {
	return unionPermissions(g.RolesOf(cred))
}

// PrimaryRole picks the held role with the highest access level.
func (g *RoleGraph) PrimaryRole(cred *domain.Credential) domain.RoleName {
	var best *domain.Role
	for _, r := range g.RolesOf(cred) {
		r := r
		if best == nil || r.AccessLevel > best.AccessLevel ||
			(r.AccessLevel == best.AccessLevel && r.Name < best.Name) {
			best = &r
		}
	}
	if best == nil {
		return ""
	}
	return best.Name
}

func unionPermissions(roles []domain.Role) []domain.Permission {
	set := make(map[domain.PermissionKey]domain.Permission)
	for _, r := range roles {
		for _, p := range r.Permissions {
			if _, ok := set[p.Key()]; !ok {
				set[p.Key()] = p
			}
		}
	}
	out := make([]domain.Permission, 0, len(set))
	for _, p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Authority() < out[j].Authority() })
	return out
}
