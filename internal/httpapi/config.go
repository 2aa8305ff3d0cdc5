package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
	"github.com/lodestone-core/lodestone/infrastructure/httputil"
	"github.com/lodestone-core/lodestone/internal/app"
	"github.com/lodestone-core/lodestone/internal/auth"
	"github.com/lodestone-core/lodestone/internal/manifest"
)

// getConfig handles GET /instance/:uuid/config, returning the whole
// ConfigurableManifest.
func getConfig(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uuid := mux.Vars(r)["uuid"]
		if _, ok := requireAction(w, r, auth.ActionAccessSetting, uuid); !ok {
			return
		}
		inst, ok := lookupInstance(a, w, r, uuid)
		if !ok {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, inst.Manifest())
	}
}

type updateSettingRequest struct {
	Section   string          `json:"section"`
	SettingID string          `json:"setting_id"`
	Value     *manifest.Value `json:"value"`
}

// updateConfigSetting handles PUT /instance/:uuid/config, the §6 "update a
// (section, setting) value" route.
func updateConfigSetting(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uuid := mux.Vars(r)["uuid"]
		if _, ok := requireAction(w, r, auth.ActionAccessSetting, uuid); !ok {
			return
		}
		inst, ok := lookupInstance(a, w, r, uuid)
		if !ok {
			return
		}
		var req updateSettingRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if req.Section == "" || req.SettingID == "" {
			writeCoreError(w, r, coreerrors.BadRequestError("section/setting_id", "both required"))
			return
		}
		if err := inst.Manifest().UpdateValue(req.Section, req.SettingID, req.Value); err != nil {
			writeCoreError(w, r, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}
