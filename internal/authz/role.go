// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz

import "github.com/taibuivan/dreamlog/internal/platform/apperr"

// # Roles

// Role is the authorization level of a principal. The set is closed.
type Role string

const (
	// RoleUser is the default for every signed-in principal without a stored role.
	RoleUser Role = "user"

	// RoleContributor may write and edit their own posts.
	RoleContributor Role = "contributor"

	// RoleEditor curates everyone's content and publishes.
	RoleEditor Role = "editor"

	// RoleAdmin manages users and site content.
	RoleAdmin Role = "admin"

	// RoleSuperAdmin is the only role allowed to change roles.
	RoleSuperAdmin Role = "super_admin"
)

// Roles lists every role in ascending order of privilege.
var Roles = []Role{RoleUser, RoleContributor, RoleEditor, RoleAdmin, RoleSuperAdmin}

// ladder is the promotion path. super_admin is granted explicitly, never by promotion.
var ladder = []Role{RoleUser, RoleContributor, RoleEditor, RoleAdmin}

// ParseRole converts a stored string into a [Role].
// Unknown values are an UNKNOWN_ROLE error rather than a silent default.
func ParseRole(raw string) (Role, error) {
	role := Role(raw)
	if !role.Valid() {
		return "", apperr.UnknownRole(raw)
	}
	return role, nil
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	return r.level() > 0
}

// String implements [fmt.Stringer].
func (r Role) String() string { return string(r) }

// # Role Hierarchy

// AtLeast checks if the role meets or exceeds target.
func (r Role) AtLeast(target Role) bool {
	return r.Valid() && r.level() >= target.level()
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r Role) level() int {
	switch r {
	case RoleSuperAdmin:
		return 50
	case RoleAdmin:
		return 40
	case RoleEditor:
		return 30
	case RoleContributor:
		return 20
	case RoleUser:
		return 10
	default:
		return 0
	}
}

// Next returns the role one step up the promotion ladder.
func (r Role) Next() (Role, bool) {
	for i, step := range ladder {
		if step == r && i+1 < len(ladder) {
			return ladder[i+1], true
		}
	}
	return "", false
}

// Previous returns the role one step down the promotion ladder.
func (r Role) Previous() (Role, bool) {
	for i, step := range ladder {
		if step == r && i > 0 {
			return ladder[i-1], true
		}
	}
	return "", false
}

// IsEditorOrAbove reports membership in the editorial group.
func IsEditorOrAbove(r Role) bool {
	switch r {
	case RoleEditor, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsContributorOrAbove reports whether r may author posts at all.
//
// It is a fixed membership list rather than a level comparison: an editor is
// "above" a contributor here even though the editor permission set lacks
// canEditOwnPosts.
func IsContributorOrAbove(r Role) bool {
	switch r {
	case RoleContributor, RoleEditor, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}
