package shared

// Ledger permissions granted through organization roles.
const (
	PermLedgerView     = "ledger.view"
	PermLedgerEdit     = "ledger.edit"
	PermMembersEdit    = "members.edit"
	PermDuesConfigEdit = "dues_config.edit"
	PermPersonalView   = "personal.view"
)

var rolePermissions = map[Role][]string{
	RoleAdmin:     {PermLedgerView, PermLedgerEdit, PermMembersEdit, PermDuesConfigEdit, PermPersonalView},
	RoleTreasurer: {PermLedgerView, PermLedgerEdit, PermMembersEdit, PermPersonalView},
	RoleMember:    {PermLedgerView, PermPersonalView},
}

// RolePermissions lists the permissions granted to role.
func RolePermissions(role Role) []string {
	return append([]string(nil), rolePermissions[role]...)
}
