package users

import "strings"

// Roles with special meaning in the user list.
const (
	RoleAdmin   = "Admin"
	RoleManager = "Manager"
)

// Statuses a user account can take.
var Statuses = []string{"Actif", "Inactif", "Suspendu", "Bloqué"}

// User is a row of the user list as served by the user API.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Manager   string `json:"manager"`
	ManagerID *int64 `json:"managerId"`
	Status    string `json:"status"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ManagerRef returns the manager ID or zero when unset.
func (u User) ManagerRef() int64 {
	if u.ManagerID == nil {
		return 0
	}
	return *u.ManagerID
}

// IsProtectedRole reports whether role cannot be changed inline.
func IsProtectedRole(role string) bool {
	return role == RoleAdmin
}
