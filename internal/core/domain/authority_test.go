package domain

import (
	"errors"
	"reflect"
	"testing"
)

func TestRoleName_Authority(t *testing.T) {
	if got := RoleTeacher.Authority(); got != "ROLE_TEACHER" {
		t.Fatalf("got %q", got)
	}
	if !RoleTeacher.Authority().IsRole() {
		t.Fatalf("role authority should report IsRole")
	}
	if PermissionAuthority(ResourcePerson, ActionRead, ScopeGlobal).IsRole() {
		t.Fatalf("permission authority must not report IsRole")
	}
}

func TestParseRoleName(t *testing.T) {
	r, err := ParseRoleName(" teacher")
	if err != nil || r != RoleTeacher {
		t.Fatalf("got %q, %v", r, err)
	}
	if _, err := ParseRoleName("TEACHR"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestPermission_Validate(t *testing.T) {
	ok := Permission{Name: "person.read", Resource: ResourcePerson, Action: ActionRead, Scope: ScopeGlobal}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok.Authority() != "PERSON:READ:GLOBAL" {
		t.Fatalf("unexpected authority %q", ok.Authority())
	}

	bad := []Permission{
		{Name: "x", Resource: "PERSONS", Action: ActionRead, Scope: ScopeGlobal},
		{Name: "x", Resource: ResourcePerson, Action: "LIST", Scope: ScopeGlobal},
		{Name: "x", Resource: ResourcePerson, Action: ActionRead, Scope: "WORLD"},
	}
	for _, p := range bad {
		if err := p.Validate(); !errors.Is(err, ErrInvalidPermission) {
			t.Errorf("%+v: expected ErrInvalidPermission, got %v", p, err)
		}
	}
}

func TestPermission_KeyIgnoresName(t *testing.T) {
	a := Permission{Name: "a", Resource: ResourcePerson, Action: ActionRead, Scope: ScopeGlobal}
	b := Permission{Name: "b", Description: "other", Resource: ResourcePerson, Action: ActionRead, Scope: ScopeGlobal}
	if a.Key() != b.Key() {
		t.Fatalf("permissions with the same tuple must share a key")
	}
}

func TestSortAuthorities(t *testing.T) {
	got := SortAuthorities([]Authority{"ROLE_TEACHER", "PERSON:READ:GLOBAL", "ROLE_TEACHER"})
	want := []Authority{"PERSON:READ:GLOBAL", "ROLE_TEACHER"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestPrincipal_HasAnyAndRoleNames(t *testing.T) {
	p := &Principal{Authorities: []Authority{"ROLE_ADMIN", "PERSON:PURGE:GLOBAL"}}
	if !p.HasAny(RoleSecretary.Authority(), RoleAdmin.Authority()) {
		t.Fatalf("expected admin to match")
	}
	if p.HasAny(RoleTeacher.Authority()) {
		t.Fatalf("teacher should not match")
	}
	if got := p.RoleNames(); !reflect.DeepEqual(got, []string{"ADMIN"}) {
		t.Fatalf("got %v", got)
	}
}

func TestDefaultRoleCatalog_IsValid(t *testing.T) {
	seen := map[RoleName]bool{}
	for _, r := range DefaultRoleCatalog() {
		if !r.Name.Valid() {
			t.Fatalf("invalid role %q", r.Name)
		}
		if seen[r.Name] {
			t.Fatalf("duplicate role %q", r.Name)
		}
		seen[r.Name] = true
		for _, p := range r.Permissions {
			if err := p.Validate(); err != nil {
				t.Fatalf("role %s: %v", r.Name, err)
			}
		}
	}
	if len(seen) != len(knownRoles) {
		t.Fatalf("catalog covers %d of %d roles", len(seen), len(knownRoles))
	}
}
