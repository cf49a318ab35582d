package shared

// Permissioned modules.
const (
	ModuleUsers  = "users"
	ModulePlan   = "plan"
	ModuleGroups = "groups"
)

// Actions that can be granted inside a module.
const (
	ActionView              = "view"
	ActionCreate            = "create"
	ActionEdit              = "edit"
	ActionDelete            = "delete"
	ActionExport            = "export"
	ActionViewDetails       = "view_details"
	ActionApprove           = "approve"
	ActionManagePermissions = "manage_permissions"
)

// BypassRole is the role that is granted every action without asking the
// authorization service.
const BypassRole = "Admin"

// DefaultModuleActions lists the actions resolved for each module when a
// session loads its permissions.
func DefaultModuleActions() map[string][]string {
	return map[string][]string{
		ModuleUsers: {
			ActionView,
			ActionCreate,
			ActionEdit,
			ActionDelete,
			ActionExport,
			ActionViewDetails,
		},
		ModulePlan: {
			ActionView,
			ActionCreate,
			ActionEdit,
			ActionApprove,
		},
		ModuleGroups: {
			ActionView,
			ActionCreate,
			ActionEdit,
			ActionDelete,
			ActionManagePermissions,
		},
	}
}
