package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleDispatcher UserRole = "DISPATCHER"
	RoleOfficer    UserRole = "OFFICER"
	RoleCivilian   UserRole = "CIVILIAN"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Phone        string     `db:"phone" json:"phone,omitempty"`
	Role         UserRole   `db:"role" json:"role"`
	BadgeNumber  *string    `db:"badge_number" json:"badge_number,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// IsOfficer reports whether the user may be assigned to reports.
func (u *User) IsOfficer() bool {
	return u != nil && u.Role == RoleOfficer
}

// OfficerSummary is the compact officer representation embedded in
// assignment and backup responses.
type OfficerSummary struct {
	ID          string  `db:"officer_id" json:"id"`
	FullName    string  `db:"officer_name" json:"full_name"`
	BadgeNumber *string `db:"officer_badge" json:"badge_number,omitempty"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
