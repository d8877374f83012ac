package domain

func perm(res Resource, act Action, scope Scope) Permission {
	return Permission{
		Name:     string(res) + ":" + string(act) + ":" + string(scope),
		Resource: res,
		Action:   act,
		Scope:    scope,
	}
}

// DefaultRoleCatalog is the catalog written to an empty role store on first start.
func DefaultRoleCatalog() []Role {
	return []Role{
		{
			Name: RoleAdmin, Description: "Full back-office access", AccessLevel: 100, Active: true,
			Permissions: []Permission{
				perm(ResourcePerson, ActionRead, ScopeGlobal),
				perm(ResourcePerson, ActionCreate, ScopeGlobal),
				perm(ResourcePerson, ActionUpdate, ScopeGlobal),
				perm(ResourcePerson, ActionDeactivate, ScopeGlobal),
				perm(ResourcePerson, ActionPurge, ScopeGlobal),
				perm(ResourceAddress, ActionCreate, ScopeGlobal),
				perm(ResourceAddress, ActionDelete, ScopeGlobal),
				perm(ResourceConsent, ActionUpdate, ScopeGlobal),
				perm(ResourceCredential, ActionCreate, ScopeGlobal),
			},
		},
		{
			Name: RoleDirector, Description: "School direction", AccessLevel: 80, Active: true,
			Permissions: []Permission{
				perm(ResourcePerson, ActionRead, ScopeGlobal),
				perm(ResourceObservation, ActionApprove, ScopeGlobal),
			},
		},
		{
			Name: RoleSecretary, Description: "Registry and enrolment", AccessLevel: 60, Active: true,
			Permissions: []Permission{
				perm(ResourcePerson, ActionRead, ScopeGlobal),
				perm(ResourcePerson, ActionCreate, ScopeGlobal),
				perm(ResourcePerson, ActionUpdate, ScopeGlobal),
				perm(ResourcePerson, ActionDeactivate, ScopeGlobal),
				perm(ResourceAddress, ActionCreate, ScopeGlobal),
				perm(ResourceAddress, ActionDelete, ScopeGlobal),
				perm(ResourceConsent, ActionUpdate, ScopeGlobal),
			},
		},
		{
			Name: RoleTeacher, Description: "Class teacher", AccessLevel: 40, Active: true,
			Permissions: []Permission{
				perm(ResourceStudent, ActionRead, ScopeClass),
				perm(ResourceObservation, ActionCreate, ScopeClass),
			},
		},
		{
			Name: RoleGuardian, Description: "Parent or legal guardian", AccessLevel: 20, Active: true,
			Permissions: []Permission{
				perm(ResourceStudent, ActionRead, ScopeOwn),
			},
		},
		{Name: RoleUser, Description: "Authenticated user", AccessLevel: 10, Active: true},
	}
}
