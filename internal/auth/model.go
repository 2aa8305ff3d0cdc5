// Package auth implements the authorization core: user records, password
// hashing, per-user-secret bearer tokens, and the can_perform_action
// decision procedure, grounded on the teacher's legacy
// applications/auth.Manager shape (golang-jwt/jwt/v5, a users map behind a
// mutex) but reworked onto per-user signing secrets and HS512.
package auth

import "github.com/lodestone-core/lodestone/internal/id"

// PermissionLevel orders the three privilege tiers; owner outranks admin
// outranks user.
type PermissionLevel int

const (
	LevelUser  PermissionLevel = 1
	LevelAdmin PermissionLevel = 2
	LevelOwner PermissionLevel = 255
)

// Level returns this user's effective PermissionLevel.
func (u User) Level() PermissionLevel {
	switch {
	case u.IsOwner:
		return LevelOwner
	case u.IsAdmin:
		return LevelAdmin
	default:
		return LevelUser
	}
}

// User is a human account. HashedPassword is an argon2id hash; Secret is the
// per-user signing key for that user's bearer tokens — rotating it
// invalidates every token ever issued to the user.
type User struct {
	UID            string          `json:"uid"`
	Username       string          `json:"username"`
	HashedPassword string          `json:"hashed_password"`
	IsOwner        bool            `json:"is_owner"`
	IsAdmin        bool            `json:"is_admin"`
	Permissions    UserPermission  `json:"permissions"`
	Secret         string          `json:"secret"`
}

// UserPermission is the set of capability fields consulted by
// can_perform_action. Boolean fields are global; set fields scope a
// per-instance capability to the instances named in the set.
type UserPermission struct {
	CanCreateInstance    bool `json:"can_create_instance"`
	CanDeleteInstance    bool `json:"can_delete_instance"`
	CanReadGlobalFile    bool `json:"can_read_global_file"`
	CanWriteGlobalFile   bool `json:"can_write_global_file"`
	CanManagePermission  bool `json:"can_manage_permission"`

	CanViewInstance           InstanceSet `json:"can_view_instance"`
	CanStartInstance          InstanceSet `json:"can_start_instance"`
	CanStopInstance           InstanceSet `json:"can_stop_instance"`
	CanAccessInstanceConsole  InstanceSet `json:"can_access_instance_console"`
	CanAccessInstanceSetting  InstanceSet `json:"can_access_instance_setting"`
	CanReadInstanceResource   InstanceSet `json:"can_read_instance_resource"`
	CanWriteInstanceResource  InstanceSet `json:"can_write_instance_resource"`
	CanReadInstanceFile       InstanceSet `json:"can_read_instance_file"`
	CanWriteInstanceFile      InstanceSet `json:"can_write_instance_file"`
	CanAccessInstanceMacro    InstanceSet `json:"can_access_instance_macro"`
}

// InstanceSet is a set of instance uuids, serialized as a JSON object for
// O(1) membership tests without importing a generic set type into the wire
// format.
type InstanceSet map[string]struct{}

// Has reports whether uuid is a member of the set.
func (s InstanceSet) Has(uuid string) bool {
	if s == nil {
		return false
	}
	_, ok := s[uuid]
	return ok
}

// Add inserts uuid into the set, allocating it if nil.
func (s *InstanceSet) Add(uuid string) {
	if *s == nil {
		*s = make(InstanceSet)
	}
	(*s)[uuid] = struct{}{}
}

// Remove deletes uuid from the set.
func (s InstanceSet) Remove(uuid string) {
	delete(s, uuid)
}

// UserAction enumerates the 16 actions consulted by can_perform_action.
type UserAction string

const (
	ActionViewInstance           UserAction = "VIEW_INSTANCE"
	ActionStartInstance          UserAction = "START_INSTANCE"
	ActionStopInstance           UserAction = "STOP_INSTANCE"
	ActionAccessConsole          UserAction = "ACCESS_CONSOLE"
	ActionAccessSetting          UserAction = "ACCESS_SETTING"
	ActionReadResource           UserAction = "READ_RESOURCE"
	ActionWriteResource          UserAction = "WRITE_RESOURCE"
	ActionReadFile               UserAction = "READ_FILE"
	ActionWriteFile              UserAction = "WRITE_FILE"
	ActionCreateInstance         UserAction = "CREATE_INSTANCE"
	ActionDeleteInstance         UserAction = "DELETE_INSTANCE"
	ActionAccessMacro            UserAction = "ACCESS_MACRO"
	ActionReadGlobalFile         UserAction = "READ_GLOBAL_FILE"
	ActionWriteGlobalFile        UserAction = "WRITE_GLOBAL_FILE"
	ActionManagePermission       UserAction = "MANAGE_PERMISSION"
	ActionManageUser             UserAction = "MANAGE_USER"
)

// NewUser builds a fresh non-privileged User with a generated uid and
// signing secret. Callers still need to set HashedPassword.
func NewUser(username string) User {
	return User{
		UID:      string(id.NewUserID()),
		Username: username,
		Secret:   randomAlphanumeric(32),
	}
}
