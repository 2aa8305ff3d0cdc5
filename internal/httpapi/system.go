package httpapi

import (
	"net/http"
	"runtime"
	"time"

	"github.com/lodestone-core/lodestone/infrastructure/httputil"
	"github.com/lodestone-core/lodestone/internal/app"
	"github.com/lodestone-core/lodestone/internal/auth"
)

const lodestoneVersion = "1.0.0"

type coreInfo struct {
	Version       string `json:"version"`
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	UpSince       int64  `json:"up_since"`
	HasOwner      bool   `json:"has_owner"`
	InstanceCount int    `json:"instance_count"`
}

var startedAt = time.Now().Unix()

// coreInfoRoute handles GET /info, an unauthenticated summary of this Core.
func coreInfoRoute(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, coreInfo{
			Version:       lodestoneVersion,
			OS:            runtime.GOOS,
			Arch:          runtime.GOARCH,
			UpSince:       startedAt,
			HasOwner:      a.Auth.Setup == nil,
			InstanceCount: len(a.Registry.All()),
		})
	}
}

// checks handles GET /checks, a liveness probe distinct from the
// Kubernetes-style middleware.HealthChecker used by the teacher's gateway,
// matching the dedicated endpoint §6 names for this surface.
func checks(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// globalSettingsGet handles GET /global_settings, requiring no specific
// global capability beyond being authenticated (read-only summary).
func globalSettingsGet(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireUser(w, r); !ok {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, a.Settings.All())
	}
}

type globalSettingRequest struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// globalSettingsSet handles PUT /global_settings, requiring ManagePermission
// as the closest-scoped "administrative" capability among the 16 actions.
func globalSettingsSet(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAction(w, r, auth.ActionManagePermission, ""); !ok {
			return
		}
		var req globalSettingRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if err := a.Settings.Set(req.Key, req.Value); err != nil {
			writeCoreError(w, r, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

// gatewayInfo handles GET /gateway, a placeholder describing the PlayIt
// tunnel client's status. The tunnel client itself is an external
// collaborator out of scope for this core; this route only reports that no
// tunnel is configured, matching §1's "external collaborator" framing.
func gatewayInfo(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireUser(w, r); !ok {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"configured": false})
	}
}

// systemMonitor handles GET /monitor, the process-wide resource sample
// (distinct from /instance/:uuid/monitor's per-instance sample).
func systemMonitor(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireUser(w, r); !ok {
			return
		}
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"goroutines":   runtime.NumGoroutine(),
			"memory_bytes": mem.Alloc,
		})
	}
}
