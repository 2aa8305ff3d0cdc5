package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
	"github.com/lodestone-core/lodestone/infrastructure/httputil"
	"github.com/lodestone-core/lodestone/internal/app"
	"github.com/lodestone-core/lodestone/internal/auth"
	"github.com/lodestone-core/lodestone/internal/id"
	"github.com/lodestone-core/lodestone/internal/macro"
)

// listMacros handles GET /instance/:uuid/macro/list, listing module names
// in the instance's macro directory.
func listMacros(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uuid := mux.Vars(r)["uuid"]
		if _, ok := requireAction(w, r, auth.ActionAccessMacro, uuid); !ok {
			return
		}
		inst, ok := lookupInstance(a, w, r, uuid)
		if !ok {
			return
		}
		dir := filepath.Join(a.Dir, "instances", inst.Name(), "macro")
		entries, err := os.ReadDir(dir)
		var names []string
		if err == nil {
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				ext := filepath.Ext(e.Name())
				switch ext {
				case ".js", ".ts", ".mjs", ".cjs", ".tsx", ".jsx":
					names = append(names, strings.TrimSuffix(e.Name(), ext))
				}
			}
		}
		httputil.WriteJSON(w, http.StatusOK, names)
	}
}

// macroTaskList handles GET /instance/:uuid/macro/task/list via the app's
// ProcedureCall bridge so the route and macro host calls share one code
// path, per §4.6.
func macroTaskList(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uuid := mux.Vars(r)["uuid"]
		if _, ok := requireAction(w, r, auth.ActionAccessMacro, uuid); !ok {
			return
		}
		result, err := a.Call(macro.ProcedureCall{Op: macro.OpMacroTaskList, Args: map[string]interface{}{"instance_uuid": uuid}})
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, result)
	}
}

// macroHistoryList handles GET /instance/:uuid/macro/history/list.
func macroHistoryList(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uuid := mux.Vars(r)["uuid"]
		if _, ok := requireAction(w, r, auth.ActionAccessMacro, uuid); !ok {
			return
		}
		result, err := a.Call(macro.ProcedureCall{Op: macro.OpMacroHistoryList, Args: map[string]interface{}{"instance_uuid": uuid}})
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, result)
	}
}

type runMacroRequest struct {
	Args []string `json:"args"`
}

// runMacroRoute handles PUT /instance/:uuid/macro/run/:name.
func runMacroRoute(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		uuid, name := vars["uuid"], vars["name"]
		u, ok := requireAction(w, r, auth.ActionAccessMacro, uuid)
		if !ok {
			return
		}
		var req runMacroRequest
		if !httputil.DecodeJSONOptional(w, r, &req) {
			return
		}

		argv := make([]interface{}, len(req.Args))
		for i, s := range req.Args {
			argv[i] = s
		}
		result, err := a.Call(macro.ProcedureCall{
			Op: macro.OpMacroRun,
			Args: map[string]interface{}{
				"instance_uuid":      uuid,
				"name":               name,
				"args":               argv,
				"caused_by_user_id":  u.UID,
				"caused_by_username": u.Username,
			},
		})
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"pid": result})
	}
}

// killMacroRoute handles PUT /instance/:uuid/macro/kill/:pid (§4.6's
// idempotent abort).
func killMacroRoute(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		uuid, pidStr := vars["uuid"], vars["pid"]
		if _, ok := requireAction(w, r, auth.ActionAccessMacro, uuid); !ok {
			return
		}
		pid, err := strconv.ParseUint(pidStr, 10, 64)
		if err != nil {
			writeCoreError(w, r, coreerrors.BadRequestError("pid", "must be an unsigned integer"))
			return
		}
		a.Macros.Abort(id.MacroPid(pid))
		httputil.RespondNoContent(w)
	}
}

// macroConfigGet handles GET /instance/:uuid/macro/config/get/:name, running
// the §4.6 config-manifest extractor over the macro's main module source.
func macroConfigGet(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		uuid, name := vars["uuid"], vars["name"]
		if _, ok := requireAction(w, r, auth.ActionAccessMacro, uuid); !ok {
			return
		}
		inst, ok := lookupInstance(a, w, r, uuid)
		if !ok {
			return
		}
		dir := filepath.Join(a.Dir, "instances", inst.Name(), "macro")
		entries, err := os.ReadDir(dir)
		if err != nil {
			writeCoreError(w, r, coreerrors.NotFoundError("macro", name))
			return
		}
		var source string
		found := false
		for _, e := range entries {
			if strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())) == name {
				raw, readErr := os.ReadFile(filepath.Join(dir, e.Name()))
				if readErr != nil {
					writeCoreError(w, r, coreerrors.InternalError("read macro source", readErr))
					return
				}
				source = string(raw)
				found = true
				break
			}
		}
		if !found {
			writeCoreError(w, r, coreerrors.NotFoundError("macro", name))
			return
		}
		settings, err := macro.ExtractConfigManifest(name, source)
		if err != nil {
			writeCoreError(w, r, coreerrors.BadRequestError("source", err.Error()))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, settings)
	}
}

// macroConfigStore handles PUT /instance/:uuid/macro/config/store/:name.
// Lodestone stores a macro's resolved config values alongside its source as
// a sibling JSON file, read back by the macro's own bootstrap (user-code
// concern, not this route's).
func macroConfigStore(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		uuid, name := vars["uuid"], vars["name"]
		if _, ok := requireAction(w, r, auth.ActionAccessMacro, uuid); !ok {
			return
		}
		inst, ok := lookupInstance(a, w, r, uuid)
		if !ok {
			return
		}
		body, err := httputil.ReadAllStrict(r.Body, 1<<20)
		if err != nil {
			writeCoreError(w, r, coreerrors.BadRequestError("body", "too large or unreadable"))
			return
		}
		dir := filepath.Join(a.Dir, "instances", inst.Name(), "macro")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			writeCoreError(w, r, coreerrors.InternalError("create macro directory", err))
			return
		}
		if err := os.WriteFile(filepath.Join(dir, name+".config.json"), body, 0o644); err != nil {
			writeCoreError(w, r, coreerrors.InternalError("write macro config", err))
			return
		}
		httputil.RespondNoContent(w)
	}
}

// deleteMacroRoute handles DELETE /instance/:uuid/macro/:name.
func deleteMacroRoute(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		uuid, name := vars["uuid"], vars["name"]
		if _, ok := requireAction(w, r, auth.ActionAccessMacro, uuid); !ok {
			return
		}
		if _, err := a.Call(macro.ProcedureCall{Op: macro.OpMacroDelete, Args: map[string]interface{}{"instance_uuid": uuid, "name": name}}); err != nil {
			writeCoreError(w, r, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}
