package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
	"github.com/lodestone-core/lodestone/infrastructure/httputil"
	"github.com/lodestone-core/lodestone/internal/app"
	"github.com/lodestone-core/lodestone/internal/auth"
)

type userSummary struct {
	UID         string               `json:"uid"`
	Username    string               `json:"username"`
	IsOwner     bool                 `json:"is_owner"`
	IsAdmin     bool                 `json:"is_admin"`
	Permissions auth.UserPermission  `json:"permissions"`
}

func summarizeUser(u auth.User) userSummary {
	return userSummary{UID: u.UID, Username: u.Username, IsOwner: u.IsOwner, IsAdmin: u.IsAdmin, Permissions: u.Permissions}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  userSummary `json:"user"`
}

// login handles POST /user/login.
func login(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		u, token, err := a.Auth.Login(req.Username, req.Password)
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, loginResponse{Token: token, User: summarizeUser(u)})
	}
}

type firstTimeSetupRequest struct {
	Key      string `json:"key"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// firstTimeSetup handles POST /setup, redeeming the one-time setup key
// printed at startup and creating the owner account.
func firstTimeSetup(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req firstTimeSetupRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		u, err := a.Auth.FirstTimeSetup(req.Key, req.Username, req.Password)
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		httputil.RespondCreated(w, summarizeUser(u))
	}
}

// whoami handles GET /user/info, returning the caller's own record.
func whoami(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := requireUser(w, r)
		if !ok {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, summarizeUser(u))
	}
}

// listUsers handles GET /user/list, requiring ManageUser.
func listUsers(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAction(w, r, auth.ActionManageUser, ""); !ok {
			return
		}
		var out []userSummary
		for _, u := range a.Auth.Store.All() {
			out = append(out, summarizeUser(u))
		}
		httputil.WriteJSON(w, http.StatusOK, out)
	}
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// createUser handles POST /user, requiring ManageUser.
func createUser(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAction(w, r, auth.ActionManageUser, ""); !ok {
			return
		}
		var req createUserRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if req.Username == "" {
			writeCoreError(w, r, coreerrors.BadRequestError("username", "required"))
			return
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			writeCoreError(w, r, coreerrors.InternalError("hash password", err))
			return
		}
		newUser := auth.NewUser(req.Username)
		newUser.HashedPassword = hash
		if err := a.Auth.Store.Put(newUser); err != nil {
			writeCoreError(w, r, err)
			return
		}
		httputil.RespondCreated(w, summarizeUser(newUser))
	}
}

// deleteUser handles DELETE /user/:uid, requiring ManageUser.
func deleteUser(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAction(w, r, auth.ActionManageUser, ""); !ok {
			return
		}
		uid := mux.Vars(r)["uid"]
		if err := a.Auth.Store.Delete(uid); err != nil {
			writeCoreError(w, r, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// changePassword handles PUT /user/:uid/password. Callers changing their
// own password must supply OldPassword; a ManageUser-holder resetting
// another account may omit it.
func changePassword(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireUser(w, r)
		if !ok {
			return
		}
		uid := mux.Vars(r)["uid"]
		if uid != caller.UID && !auth.CanPerformAction(caller, auth.ActionManageUser, "") {
			writeCoreError(w, r, coreerrors.PermissionDeniedError(string(auth.ActionManageUser)))
			return
		}
		var req changePasswordRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if uid != caller.UID {
			req.OldPassword = ""
		}
		if err := a.Auth.ChangePassword(uid, req.OldPassword, req.NewPassword); err != nil {
			writeCoreError(w, r, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

type updatePermissionsRequest struct {
	Action auth.UserAction `json:"action"`
	Grant  bool            `json:"grant"`
	UUID   string          `json:"instance_uuid"`
}

// updatePermissions handles PUT /user/:uid/permissions, enforcing the §4.2
// CanGrantPermission strict-outrank rule.
func updatePermissions(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		granter, ok := requireUser(w, r)
		if !ok {
			return
		}
		uid := mux.Vars(r)["uid"]
		target, found := a.Auth.Store.Get(uid)
		if !found {
			writeCoreError(w, r, coreerrors.NotFoundError("user", uid))
			return
		}
		var req updatePermissionsRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if !auth.CanGrantPermission(granter, target, req.Action) {
			writeCoreError(w, r, coreerrors.PermissionDeniedError(string(req.Action)))
			return
		}
		applyPermission(&target.Permissions, req.Action, req.Grant, req.UUID)
		if err := a.Auth.Store.Put(target); err != nil {
			writeCoreError(w, r, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

func applyPermission(p *auth.UserPermission, action auth.UserAction, grant bool, instanceUUID string) {
	setField := func(s *auth.InstanceSet) {
		if grant {
			s.Add(instanceUUID)
		} else {
			s.Remove(instanceUUID)
		}
	}
	switch action {
	case auth.ActionCreateInstance:
		p.CanCreateInstance = grant
	case auth.ActionDeleteInstance:
		p.CanDeleteInstance = grant
	case auth.ActionReadGlobalFile:
		p.CanReadGlobalFile = grant
	case auth.ActionWriteGlobalFile:
		p.CanWriteGlobalFile = grant
	case auth.ActionManagePermission:
		p.CanManagePermission = grant
	case auth.ActionViewInstance:
		setField(&p.CanViewInstance)
	case auth.ActionStartInstance:
		setField(&p.CanStartInstance)
	case auth.ActionStopInstance:
		setField(&p.CanStopInstance)
	case auth.ActionAccessConsole:
		setField(&p.CanAccessInstanceConsole)
	case auth.ActionAccessSetting:
		setField(&p.CanAccessInstanceSetting)
	case auth.ActionReadResource:
		setField(&p.CanReadInstanceResource)
	case auth.ActionWriteResource:
		setField(&p.CanWriteInstanceResource)
	case auth.ActionReadFile:
		setField(&p.CanReadInstanceFile)
	case auth.ActionWriteFile:
		setField(&p.CanWriteInstanceFile)
	case auth.ActionAccessMacro:
		setField(&p.CanAccessInstanceMacro)
	}
}
