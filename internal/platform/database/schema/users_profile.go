package schema

// UserProfileCollection represents the 'users' document collection.
// The role field is the single source of truth for authorization.
type UserProfileCollection struct {
	Collection  string
	Email       string
	DisplayName string
	Role        string
	Permissions string
	IsActive    string
	LastLoginAt string
	CreatedAt   string
	UpdatedAt   string
	UpdatedBy   string
}

// UserProfile is the schema definition for users
var UserProfile = UserProfileCollection{
	Collection:  "users",
	Email:       "email",
	DisplayName: "displayName",
	Role:        "role",
	Permissions: "permissions",
	IsActive:    "isActive",
	LastLoginAt: "lastLoginAt",
	CreatedAt:   "createdAt",
	UpdatedAt:   "updatedAt",
	UpdatedBy:   "updatedBy",
}
