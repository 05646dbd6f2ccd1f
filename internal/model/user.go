package model

import "time"

// Roles a user may hold.
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Theme preferences accepted by the profile endpoints.
const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// ValidRole reports whether r is one of the enumerated roles.
func ValidRole(r string) bool { return r == RoleAdmin || r == RoleStaff }

// ValidTheme reports whether t is an accepted theme preference.
func ValidTheme(t string) bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	}
	return false
}

// User represents an application user record as stored in the
// `users` table. Each field corresponds to a column in the
// database. The password hash is tagged out of JSON so a User
// can never leak it even if a handler serializes it directly.
//
// Fields:
//
//	ID              – primary key identifier of the user.
//	Email           – unique email address, stored lower-cased.
//	PasswordHash    – bcrypt hashed password.
//	Role            – admin or staff.
//	BranchID        – branch scope; nil means unscoped (admins) or no branch (staff).
//	DisplayName     – optional profile name.
//	ThemePreference – UI theme, "light" unless changed.
//	IsActive        – inactive users can never authenticate.
//	CreatedAt       – timestamp of creation.
//	UpdatedAt       – timestamp of last update.
type User struct {
	ID              uint64    `json:"id"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Role            string    `json:"role"`
	BranchID        *uint64   `json:"branch_id"`
	DisplayName     *string   `json:"display_name"`
	ThemePreference string    `json:"theme_preference"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
