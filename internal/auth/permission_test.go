package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanPerformAction_OwnerAlwaysAllowed(t *testing.T) {
	owner := User{IsOwner: true}
	assert.True(t, CanPerformAction(owner, ActionWriteFile, "INSTANCE_x"))
	assert.True(t, CanPerformAction(owner, ActionManageUser, ""))
}

func TestCanPerformAction_AdminAutoAllowedSubset(t *testing.T) {
	admin := User{IsAdmin: true}
	assert.True(t, CanPerformAction(admin, ActionViewInstance, "INSTANCE_x"))
	assert.True(t, CanPerformAction(admin, ActionStartInstance, "INSTANCE_x"))
	assert.True(t, CanPerformAction(admin, ActionCreateInstance, ""))

	assert.False(t, CanPerformAction(admin, ActionWriteFile, "INSTANCE_x"))
	assert.False(t, CanPerformAction(admin, ActionWriteResource, "INSTANCE_x"))
	assert.False(t, CanPerformAction(admin, ActionAccessMacro, "INSTANCE_x"))
	assert.False(t, CanPerformAction(admin, ActionWriteGlobalFile, ""))
	assert.False(t, CanPerformAction(admin, ActionManagePermission, ""))
}

func TestCanPerformAction_RegularUserNeedsExplicitGrant(t *testing.T) {
	u := User{}
	assert.False(t, CanPerformAction(u, ActionStartInstance, "INSTANCE_x"))

	u.Permissions.CanStartInstance = InstanceSet{"INSTANCE_x": {}}
	assert.True(t, CanPerformAction(u, ActionStartInstance, "INSTANCE_x"))
	assert.False(t, CanPerformAction(u, ActionStartInstance, "INSTANCE_y"))
}

func TestCanPerformAction_MacroAccessWithoutInstanceAlwaysDenied(t *testing.T) {
	owner := User{IsOwner: true}
	assert.False(t, CanPerformAction(owner, ActionAccessMacro, ""))
}

func TestCanPerformAction_ManageUserIsOwnerOnly(t *testing.T) {
	admin := User{IsAdmin: true}
	assert.False(t, CanPerformAction(admin, ActionManageUser, ""))
}

func TestCanGrantPermission_MustBeStrictlyMorePrivileged(t *testing.T) {
	admin := User{IsAdmin: true}
	otherAdmin := User{IsAdmin: true}
	user := User{}

	assert.False(t, CanGrantPermission(admin, otherAdmin, ActionStartInstance))
	assert.True(t, CanGrantPermission(admin, user, ActionStartInstance))
}

func TestCanGrantPermission_NonOwnerCannotGrantUnsafe(t *testing.T) {
	admin := User{IsAdmin: true}
	user := User{}

	assert.False(t, CanGrantPermission(admin, user, ActionWriteFile))
	assert.False(t, CanGrantPermission(admin, user, ActionAccessMacro))
	assert.False(t, CanGrantPermission(admin, user, ActionManagePermission))
}

func TestCanGrantPermission_OwnerCanGrantUnsafe(t *testing.T) {
	owner := User{IsOwner: true}
	user := User{}
	assert.True(t, CanGrantPermission(owner, user, ActionWriteFile))
	assert.True(t, CanGrantPermission(owner, user, ActionManagePermission))
}

func TestCanViewEvent(t *testing.T) {
	u := User{}
	u.Permissions.CanViewInstance = InstanceSet{"INSTANCE_x": {}}

	assert.True(t, CanViewEvent(u, EventVisibilityInstance, "INSTANCE_x"))
	assert.False(t, CanViewEvent(u, EventVisibilityInstance, "INSTANCE_y"))
	assert.True(t, CanViewEvent(u, EventVisibilityProgression, ""))
	assert.False(t, CanViewEvent(u, EventVisibilityUserOrFS, ""))
}
