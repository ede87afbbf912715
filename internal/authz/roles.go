// Package authz implements the static role policy and the fine-grained
// permission evaluator used for every authorization decision in the gateway.
package authz

// Platform role identifiers. The set is a closed enumeration: adding a role
// requires a code change, which keeps the policy auditable.
const (
	// RoleSuperAdmin holds every capability and every permission implicitly.
	RoleSuperAdmin int64 = 1
	// RoleManager manages the catalog, orders, customers and marketing.
	RoleManager int64 = 2
	// RoleStaff may only view the dashboard.
	RoleStaff int64 = 3
	// RoleBlocked is a sentinel: accounts carrying it must never obtain a
	// session, enforced at login time on top of upstream authentication.
	RoleBlocked int64 = 4
)

// Coarse-grained capabilities checked against the role policy table.
const (
	CapDashboardAccess  = "dashboard_access"
	CapProductManager   = "product_manager"
	CapOrderManager     = "order_manager"
	CapCustomerManager  = "customer_manager"
	CapMarketingManager = "marketing_manager"
	CapSettingsAccess   = "settings_access"
)

var managerCapabilities = map[string]struct{}{
	CapProductManager:   {},
	CapOrderManager:     {},
	CapCustomerManager:  {},
	CapMarketingManager: {},
}

// IsSuperRole reports whether the role bypasses all permission checks.
// Both Grants and HasPermission consult this single predicate so the two
// policies cannot drift apart.
func IsSuperRole(roleID int64) bool {
	return roleID == RoleSuperAdmin
}

// Grants resolves a coarse capability against the static role policy.
// Unknown roles and unknown capabilities resolve to false rather than
// erroring; denial is the default. Pure and safe for concurrent use.
func Grants(roleID int64, capability string) bool {
	switch roleID {
	case RoleSuperAdmin:
		return true
	case RoleManager:
		_, ok := managerCapabilities[capability]
		return ok
	case RoleStaff:
		return capability == CapDashboardAccess
	default:
		return false
	}
}
