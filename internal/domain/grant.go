package domain

import "time"

// AccessGrant records whether a user allows the AI agent to read a category.
// A missing grant means denied. Grants are toggled, never deleted.
type AccessGrant struct {
	UserID    string
	Category  Category
	Enabled   bool
	UpdatedAt time.Time
}
