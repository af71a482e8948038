// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz

import (
	"fmt"
	"maps"
	"slices"
)

// # Capabilities

// Capability names a single boolean permission.
type Capability string

const (
	CanCreatePosts        Capability = "canCreatePosts"
	CanEditOwnPosts       Capability = "canEditOwnPosts"
	CanEditAllPosts       Capability = "canEditAllPosts"
	CanDeleteOwnPosts     Capability = "canDeleteOwnPosts"
	CanDeleteAllPosts     Capability = "canDeleteAllPosts"
	CanManageUsers        Capability = "canManageUsers"
	CanModerateComments   Capability = "canModerateComments"
	CanManageCategories   Capability = "canManageCategories"
	CanViewDrafts         Capability = "canViewDrafts"
	CanPublishPosts       Capability = "canPublishPosts"
	CanManageRoles        Capability = "canManageRoles"
	CanAccessAdminPanel   Capability = "canAccessAdminPanel"
	CanManageSiteSettings Capability = "canManageSiteSettings"
	CanViewAnalytics      Capability = "canViewAnalytics"
	CanManageBackups      Capability = "canManageBackups"
)

// Capabilities lists every known capability.
var Capabilities = []Capability{
	CanCreatePosts, CanEditOwnPosts, CanEditAllPosts, CanDeleteOwnPosts, CanDeleteAllPosts,
	CanManageUsers, CanModerateComments, CanManageCategories, CanViewDrafts, CanPublishPosts,
	CanManageRoles, CanAccessAdminPanel, CanManageSiteSettings, CanViewAnalytics, CanManageBackups,
}

// ParseCapability validates a capability name.
func ParseCapability(raw string) (Capability, error) {
	capability := Capability(raw)
	if !slices.Contains(Capabilities, capability) {
		return "", fmt.Errorf("authz: unknown capability %q", raw)
	}
	return capability, nil
}

// # Permission Sets

// PermissionSet is an immutable set of capabilities.
type PermissionSet struct {
	granted map[Capability]bool
}

// NewPermissionSet builds a set from the given capabilities.
func NewPermissionSet(capabilities ...Capability) PermissionSet {
	granted := make(map[Capability]bool, len(capabilities))
	for _, capability := range capabilities {
		granted[capability] = true
	}
	return PermissionSet{granted: granted}
}

// Has reports whether the set grants capability.
func (set PermissionSet) Has(capability Capability) bool {
	return set.granted[capability]
}

// Contains reports whether set grants every capability of other.
func (set PermissionSet) Contains(other PermissionSet) bool {
	for capability := range other.granted {
		if !set.granted[capability] {
			return false
		}
	}
	return true
}

// Missing lists the capabilities of other that set lacks.
func (set PermissionSet) Missing(other PermissionSet) []Capability {
	var missing []Capability
	for _, capability := range Capabilities {
		if other.granted[capability] && !set.granted[capability] {
			missing = append(missing, capability)
		}
	}
	return missing
}

// List returns the granted capabilities in canonical order.
func (set PermissionSet) List() []Capability {
	var list []Capability
	for _, capability := range Capabilities {
		if set.granted[capability] {
			list = append(list, capability)
		}
	}
	return list
}

// Flags renders the set as a complete capability→bool map, the shape stored
// on user profiles.
func (set PermissionSet) Flags() map[string]bool {
	flags := make(map[string]bool, len(Capabilities))
	for _, capability := range Capabilities {
		flags[string(capability)] = set.granted[capability]
	}
	return flags
}

// PermissionSetFromFlags parses a stored capability map, rejecting unknown keys.
func PermissionSetFromFlags(flags map[string]bool) (PermissionSet, error) {
	var capabilities []Capability
	for _, name := range slices.Sorted(maps.Keys(flags)) {
		capability, err := ParseCapability(name)
		if err != nil {
			return PermissionSet{}, err
		}
		if flags[name] {
			capabilities = append(capabilities, capability)
		}
	}
	return NewPermissionSet(capabilities...), nil
}

// # Role Table

// permissionTable is built once and never mutated.
var permissionTable = map[Role]PermissionSet{
	RoleUser: NewPermissionSet(),

	RoleContributor: NewPermissionSet(
		CanCreatePosts,
		CanEditOwnPosts,
	),

	// Editors edit every post but hold no own-edit capability of their own.
	RoleEditor: NewPermissionSet(
		CanCreatePosts,
		CanEditAllPosts,
		CanDeleteOwnPosts,
		CanModerateComments,
		CanManageCategories,
		CanViewDrafts,
		CanPublishPosts,
	),

	RoleAdmin: NewPermissionSet(
		CanCreatePosts,
		CanEditOwnPosts,
		CanEditAllPosts,
		CanDeleteOwnPosts,
		CanDeleteAllPosts,
		CanManageUsers,
		CanModerateComments,
		CanManageCategories,
		CanViewDrafts,
		CanPublishPosts,
	),

	RoleSuperAdmin: NewPermissionSet(Capabilities...),
}

// PermissionsFor returns the default permission set of role. The second result
// is false for roles outside the closed set.
func PermissionsFor(role Role) (PermissionSet, bool) {
	set, ok := permissionTable[role]
	return set, ok
}

// HasPermission is a pure table lookup. It never fails: unknown or empty roles
// and unknown capabilities simply yield false.
func HasPermission(role Role, capability Capability) bool {
	set, ok := permissionTable[role]
	if !ok {
		return false
	}
	return set.Has(capability)
}
