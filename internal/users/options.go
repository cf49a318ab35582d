package users

import (
	"github.com/odyssey-erp/backoffice/internal/inline"
)

// RoleOptions turns group names into role options.
func RoleOptions(groups []string) []inline.Option[string] {
	opts := make([]inline.Option[string], 0, len(groups))
	for _, g := range groups {
		opts = append(opts, inline.Option[string]{Value: g, Label: g})
	}
	return opts
}

// StatusOptions lists the account statuses.
func StatusOptions() []inline.Option[string] {
	return RoleOptions(Statuses)
}

// ManagerOptions returns the candidate managers of row. A Manager may only
// report to an Admin, an Admin has no manager at all, everybody else may
// report to any Manager or Admin. The row itself is never a candidate. When
// the row currently has a manager, a "no manager" entry is appended.
func ManagerOptions(row User, all []User, noManagerLabel string) []inline.Option[int64] {
	if row.Role == RoleAdmin {
		return nil
	}
	var managers, admins []inline.Option[int64]
	for _, u := range all {
		if u.ID == row.ID {
			continue
		}
		opt := inline.Option[int64]{Value: u.ID, Label: u.FullName()}
		switch u.Role {
		case RoleManager:
			managers = append(managers, opt)
		case RoleAdmin:
			admins = append(admins, opt)
		}
	}
	var opts []inline.Option[int64]
	if row.Role == RoleManager {
		opts = admins
	} else {
		opts = append(managers, admins...)
	}
	if row.ManagerRef() != 0 && len(opts) > 0 {
		opts = append(opts, inline.Option[int64]{Value: 0, Label: noManagerLabel})
	}
	return opts
}
