package schema

// UserAccountCollection represents the 'accounts' document collection.
// It holds login credentials, is keyed by the lowercased email, and is never
// exposed through the API.
type UserAccountCollection struct {
	Collection   string
	UserID       string
	Email        string
	PasswordHash string
	CreatedAt    string
	UpdatedAt    string
}

// UserAccount is the schema definition for accounts
var UserAccount = UserAccountCollection{
	Collection:   "accounts",
	UserID:       "userId",
	Email:        "email",
	PasswordHash: "passwordHash",
	CreatedAt:    "createdAt",
	UpdatedAt:    "updatedAt",
}
