package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
	"github.com/lodestone-core/lodestone/infrastructure/httputil"
	"github.com/lodestone-core/lodestone/internal/app"
	"github.com/lodestone-core/lodestone/internal/auth"
	"github.com/lodestone-core/lodestone/internal/event"
	"github.com/lodestone-core/lodestone/internal/instance"
)

type instanceSummary struct {
	UUID        string        `json:"uuid"`
	Name        string        `json:"name"`
	Kind        instance.Kind `json:"kind"`
	State       event.State   `json:"state"`
	Port        int           `json:"port"`
	Description string        `json:"description"`
}

func summarize(inst instance.Instance) instanceSummary {
	return instanceSummary{
		UUID:        inst.UUID(),
		Name:        inst.Name(),
		Kind:        inst.Kind(),
		State:       inst.State(),
		Port:        inst.Port(),
		Description: inst.Description(),
	}
}

// listInstances handles GET /instance/list. Only instances the caller may
// view are returned, per §7's visibility rule generalized to list scope.
func listInstances(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := requireUser(w, r)
		if !ok {
			return
		}
		var out []instanceSummary
		for _, inst := range a.Registry.All() {
			if auth.CanPerformAction(u, auth.ActionViewInstance, inst.UUID()) {
				out = append(out, summarize(inst))
			}
		}
		httputil.WriteJSON(w, http.StatusOK, out)
	}
}

type createInstanceRequest struct {
	Name      string `json:"name"`
	Kind      string `json:"flavour"`
	Port      int    `json:"port"`
	JavaMajor int    `json:"java_major"`
	MinMemMB  int    `json:"min_memory_mb"`
	MaxMemMB  int    `json:"max_memory_mb"`
	JarPath   string `json:"jar_path"`
	Command   string `json:"command"`
	Args      []string `json:"args"`
}

// createInstance handles POST /instance, the game-type-specific setup
// manifest of §6.
func createInstance(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := requireAction(w, r, auth.ActionCreateInstance, "")
		if !ok {
			return
		}
		var req createInstanceRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if req.Name == "" {
			writeCoreError(w, r, coreerrors.BadRequestError("name", "required"))
			return
		}
		inst, err := a.CreateInstance(app.InstanceSetup{
			Name:      req.Name,
			Kind:      instance.Kind(req.Kind),
			Port:      req.Port,
			JavaMajor: req.JavaMajor,
			MinMemMB:  req.MinMemMB,
			MaxMemMB:  req.MaxMemMB,
			JarPath:   req.JarPath,
			Command:   req.Command,
			Args:      req.Args,
			CausedBy:  event.ByUser(u.UID, u.Username),
		})
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		httputil.RespondCreated(w, summarize(inst))
	}
}

// deleteInstance handles DELETE /instance/:uuid.
func deleteInstance(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uuid := mux.Vars(r)["uuid"]
		if _, ok := requireAction(w, r, auth.ActionDeleteInstance, uuid); !ok {
			return
		}
		if err := a.DestructInstance(uuid); err != nil {
			writeCoreError(w, r, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

func lookupInstance(a *app.App, w http.ResponseWriter, r *http.Request, uuid string) (instance.Instance, bool) {
	inst, ok := a.Registry.Get(uuid)
	if !ok {
		writeCoreError(w, r, coreerrors.NotFoundError("instance", uuid))
		return nil, false
	}
	return inst, true
}

// instanceState handles GET /instance/:uuid/state.
func instanceState(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uuid := mux.Vars(r)["uuid"]
		if _, ok := requireAction(w, r, auth.ActionViewInstance, uuid); !ok {
			return
		}
		inst, ok := lookupInstance(a, w, r, uuid)
		if !ok {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"state": string(inst.State())})
	}
}

// instanceAction returns the PUT /instance/:uuid/{start,stop,kill,restart}
// handler for the given lifecycle operation.
func instanceAction(a *app.App, op string, action auth.UserAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uuid := mux.Vars(r)["uuid"]
		u, ok := requireAction(w, r, action, uuid)
		if !ok {
			return
		}
		inst, ok := lookupInstance(a, w, r, uuid)
		if !ok {
			return
		}
		causedBy := event.ByUser(u.UID, u.Username)
		var err error
		switch op {
		case "start":
			err = inst.Start(causedBy, false)
		case "stop":
			err = inst.Stop(causedBy, false)
		case "kill":
			err = inst.Kill(causedBy)
		case "restart":
			err = inst.Restart(causedBy, false)
		}
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

type consoleRequest struct {
	Command string `json:"command"`
}

// instanceConsole handles PUT /instance/:uuid/console, sending a command to
// the instance's stdin (§4.4's "send command").
func instanceConsole(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uuid := mux.Vars(r)["uuid"]
		u, ok := requireAction(w, r, auth.ActionAccessConsole, uuid)
		if !ok {
			return
		}
		inst, ok := lookupInstance(a, w, r, uuid)
		if !ok {
			return
		}
		var req consoleRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if err := inst.SendCommand(req.Command, event.ByUser(u.UID, u.Username)); err != nil {
			writeCoreError(w, r, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

// instanceMonitor handles GET /instance/:uuid/monitor (§4.4's sample).
func instanceMonitor(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uuid := mux.Vars(r)["uuid"]
		if _, ok := requireAction(w, r, auth.ActionViewInstance, uuid); !ok {
			return
		}
		inst, ok := lookupInstance(a, w, r, uuid)
		if !ok {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, inst.Monitor())
	}
}
