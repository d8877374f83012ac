package domain

import (
	"fmt"
	"sort"
	"strings"
)

// RolePrefix is prepended to a role name to build its authority string.
const RolePrefix = "ROLE_"

// RoleName is one of the capability bundles known to the system.
type RoleName string

const (
	RoleAdmin     RoleName = "ADMIN"
	RoleDirector  RoleName = "DIRECTOR"
	RoleSecretary RoleName = "SECRETARY"
	RoleTeacher   RoleName = "TEACHER"
	RoleGuardian  RoleName = "GUARDIAN"
	RoleUser      RoleName = "USER"
)

var knownRoles = map[RoleName]struct{}{
	RoleAdmin:     {},
	RoleDirector:  {},
	RoleSecretary: {},
	RoleTeacher:   {},
	RoleGuardian:  {},
	RoleUser:      {},
}

// ParseRoleName normalises s and checks it against the known roles.
func ParseRoleName(s string) (RoleName, error) {
	r := RoleName(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

func (r RoleName) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

// Authority returns the role's authority string, e.g. ROLE_TEACHER.
func (r RoleName) Authority() Authority {
	return Authority(RolePrefix + string(r))
}

// Authority is a granted role or permission as checked at the authorization boundary.
type Authority string

func (a Authority) String() string { return string(a) }

// IsRole reports whether a was built from a role name.
func (a Authority) IsRole() bool {
	return strings.HasPrefix(string(a), RolePrefix)
}

type Resource string

const (
	ResourcePerson      Resource = "PERSON"
	ResourceAddress     Resource = "ADDRESS"
	ResourceConsent     Resource = "CONSENT"
	ResourceCredential  Resource = "CREDENTIAL"
	ResourceStudent     Resource = "STUDENT"
	ResourceObservation Resource = "OBSERVATION"
)

type Action string

const (
	ActionRead       Action = "READ"
	ActionCreate     Action = "CREATE"
	ActionUpdate     Action = "UPDATE"
	ActionDelete     Action = "DELETE"
	ActionApprove    Action = "APPROVE"
	ActionDeactivate Action = "DEACTIVATE"
	ActionPurge      Action = "PURGE"
)

type Scope string

const (
	ScopeGlobal Scope = "GLOBAL"
	ScopeClass  Scope = "CLASS"
	ScopeOwn    Scope = "OWN"
)

var (
	knownResources = map[Resource]struct{}{
		ResourcePerson: {}, ResourceAddress: {}, ResourceConsent: {},
		ResourceCredential: {}, ResourceStudent: {}, ResourceObservation: {},
	}
	knownActions = map[Action]struct{}{
		ActionRead: {}, ActionCreate: {}, ActionUpdate: {}, ActionDelete: {},
		ActionApprove: {}, ActionDeactivate: {}, ActionPurge: {},
	}
	knownScopes = map[Scope]struct{}{
		ScopeGlobal: {}, ScopeClass: {}, ScopeOwn: {},
	}
)

// Permission is immutable reference data. Two permissions are the same when
// their {resource, action, scope} tuples match; Name is descriptive only.
type Permission struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Resource    Resource `json:"resource"`
	Action      Action   `json:"action"`
	Scope       Scope    `json:"scope"`
}

// PermissionKey is the identity of a permission.
type PermissionKey struct {
	Resource Resource
	Action   Action
	Scope    Scope
}

func (p Permission) Key() PermissionKey {
	return PermissionKey{Resource: p.Resource, Action: p.Action, Scope: p.Scope}
}

// Authority returns the permission's authority string, e.g. PERSON:READ:GLOBAL.
func (p Permission) Authority() Authority {
	return PermissionAuthority(p.Resource, p.Action, p.Scope)
}

// PermissionAuthority builds the authority string for a permission tuple.
func PermissionAuthority(res Resource, act Action, scope Scope) Authority {
	return Authority(string(res) + ":" + string(act) + ":" + string(scope))
}

// Validate checks every tuple component against the known catalog values.
func (p Permission) Validate() error {
	if _, ok := knownResources[p.Resource]; !ok {
		return fmt.Errorf("%w: unknown resource %q in %q", ErrInvalidPermission, p.Resource, p.Name)
	}
	if _, ok := knownActions[p.Action]; !ok {
		return fmt.Errorf("%w: unknown action %q in %q", ErrInvalidPermission, p.Action, p.Name)
	}
	if _, ok := knownScopes[p.Scope]; !ok {
		return fmt.Errorf("%w: unknown scope %q in %q", ErrInvalidPermission, p.Scope, p.Name)
	}
	return nil
}

// Role is a named capability bundle with an access level.
type Role struct {
	Name        RoleName     `json:"name"`
	Description string       `json:"description,omitempty"`
	AccessLevel int          `json:"access_level"`
	Active      bool         `json:"active"`
	Permissions []Permission `json:"permissions"`
}

// SortAuthorities returns a sorted copy without duplicates.
func SortAuthorities(in []Authority) []Authority {
	seen := make(map[Authority]struct{}, len(in))
	out := make([]Authority, 0, len(in))
	for _, a := range in {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
