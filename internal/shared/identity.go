package shared

import "strconv"

// Identity is the authenticated actor of a session as written by the login
// service.
type Identity struct {
	UserID int64
	Role   string
}

// Anonymous reports whether no user is attached.
func (i Identity) Anonymous() bool {
	return i.UserID <= 0
}

// Bypass reports whether the identity carries the privileged bypass role.
func (i Identity) Bypass() bool {
	return !i.Anonymous() && i.Role == BypassRole
}

// Key is a stable string form used for cache scoping.
func (i Identity) Key() string {
	return strconv.FormatInt(i.UserID, 10) + ":" + i.Role
}
