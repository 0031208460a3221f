package identity

import "slices"

// Grants understood by the builtin abilities.
const (
	GrantEditPosts        = "edit-posts"
	GrantManageCategories = "manage-categories"
)

// Identity is the acting principal a run executes abilities as.
type Identity struct {
	Name   string
	Admin  bool
	Grants []string
}

// Can reports whether the identity holds one grant. Administrators hold all.
func (id Identity) Can(grant string) bool {
	if id.Admin {
		return true
	}
	return slices.Contains(id.Grants, grant)
}

// Administrator is the designated fallback principal used when no
// authenticated identity exists. Every use of it is audit-logged by the
// orchestrator, since it silently broadens permission scope.
func Administrator() Identity {
	return Identity{Name: "administrator", Admin: true}
}

// Editor is the principal resolved for token-authenticated web requests.
func Editor(name string) Identity {
	if name == "" {
		name = "editor"
	}
	return Identity{Name: name, Grants: []string{GrantEditPosts, GrantManageCategories}}
}
