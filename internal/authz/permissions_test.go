package authz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-commerce/meridian-admin/internal/authz"
)

func TestHasPermissionSuperRoleBypassesSnapshot(t *testing.T) {
	assert.True(t, authz.HasPermission(authz.RoleSuperAdmin, nil, "anything:whatever"))
	assert.True(t, authz.HasPermission(authz.RoleSuperAdmin, authz.Snapshot{}, "delete:everything"))
}

func TestHasPermissionMatchesActiveEntry(t *testing.T) {
	snapshot := authz.Snapshot{
		{ID: 10, Name: "create:product", Service: "catalog", Action: "create", IsActive: true},
	}
	assert.True(t, authz.HasPermission(authz.RoleManager, snapshot, "create:product"))
	assert.False(t, authz.HasPermission(authz.RoleManager, snapshot, "delete:product"))
}

func TestHasPermissionInactiveNeverGrants(t *testing.T) {
	snapshot := authz.Snapshot{
		{ID: 10, Name: "create:product", Service: "catalog", Action: "create", IsActive: false},
	}
	assert.False(t, authz.HasPermission(authz.RoleManager, snapshot, "create:product"))
}

func TestHasPermissionEmptySnapshotDenies(t *testing.T) {
	assert.False(t, authz.HasPermission(authz.RoleManager, nil, "create:product"))
	assert.False(t, authz.HasPermission(authz.RoleStaff, authz.Snapshot{}, "create:product"))
}

func TestCheckAny(t *testing.T) {
	snapshot := authz.Snapshot{
		{ID: 10, Name: "create:product", IsActive: true},
	}
	assert.True(t, authz.CheckAny(authz.RoleManager, snapshot, "x", "create:product"))
	assert.False(t, authz.CheckAny(authz.RoleManager, snapshot, "x", "y"))
	assert.False(t, authz.CheckAny(authz.RoleManager, snapshot))
}

func TestCheckAll(t *testing.T) {
	snapshot := authz.Snapshot{
		{ID: 10, Name: "create:product", IsActive: true},
		{ID: 11, Name: "update:product", IsActive: true},
	}
	assert.True(t, authz.CheckAll(authz.RoleManager, snapshot, "create:product", "update:product"))
	assert.False(t, authz.CheckAll(authz.RoleManager, snapshot, "x", "create:product"))
	// Vacuous truth on an empty list is preserved; route middleware refuses
	// to be constructed with zero permissions instead.
	assert.True(t, authz.CheckAll(authz.RoleManager, snapshot))
}

func TestSnapshotAllows(t *testing.T) {
	snapshot := authz.Snapshot{
		{Name: "view:order", IsActive: true},
		{Name: "refund:order", IsActive: false},
	}
	assert.True(t, snapshot.Allows("view:order"))
	assert.False(t, snapshot.Allows("refund:order"))
	assert.False(t, snapshot.Allows("missing"))
}
