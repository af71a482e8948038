// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz

// # Principals

// Principal is an authenticated identity bound to its current role.
type Principal struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	IsActive    bool   `json:"isActive"`
	Role        Role   `json:"role"`
}

// Permissions returns the default capability set of the principal's role.
func (principal *Principal) Permissions() PermissionSet {
	if principal == nil {
		return NewPermissionSet()
	}
	set, _ := PermissionsFor(principal.Role)
	return set
}

// Can reports whether the principal holds capability. A nil or deactivated
// principal holds nothing.
func (principal *Principal) Can(capability Capability) bool {
	if principal == nil || !principal.IsActive {
		return false
	}
	return HasPermission(principal.Role, capability)
}

// Resource is anything owned by a principal: posts and comments.
type Resource interface {
	OwnerID() string
}

// # Ownership Decisions

func ownedBy(principal *Principal, resource Resource) bool {
	return resource != nil && resource.OwnerID() != "" && resource.OwnerID() == principal.ID
}

// CanEditPost reports whether principal may change post: the all-posts
// capability, or the own-posts capability on their own post.
func CanEditPost(principal *Principal, post Resource) bool {
	if principal == nil || post == nil {
		return false
	}
	if principal.Can(CanEditAllPosts) {
		return true
	}
	return principal.Can(CanEditOwnPosts) && ownedBy(principal, post)
}

// CanDeletePost mirrors [CanEditPost] with the delete capabilities.
func CanDeletePost(principal *Principal, post Resource) bool {
	if principal == nil || post == nil {
		return false
	}
	if principal.Can(CanDeleteAllPosts) {
		return true
	}
	return principal.Can(CanDeleteOwnPosts) && ownedBy(principal, post)
}

// CanModifyComment allows the comment author or any moderator.
func CanModifyComment(principal *Principal, comment Resource) bool {
	if principal == nil || comment == nil || !principal.IsActive {
		return false
	}
	return ownedBy(principal, comment) || principal.Can(CanModerateComments)
}
