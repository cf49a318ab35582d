// Package groups lists the user groups of the back office.
package groups

// Group is a user group as served by the group API. Group names double as
// user roles.
type Group struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
