package httpapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lodestone-core/lodestone/infrastructure/metrics"
	"github.com/lodestone-core/lodestone/infrastructure/middleware"
	"github.com/lodestone-core/lodestone/infrastructure/runtime"
	"github.com/lodestone-core/lodestone/internal/app"
	"github.com/lodestone-core/lodestone/internal/auth"
)

// NewRouter builds the full HTTP surface of §6 atop a.  It is a thin
// adapter: every handler delegates straight into the already-built core
// (App, auth, instance, macro, event packages). Grounded on the teacher's
// cmd/gateway router assembly — gorilla/mux with a middleware chain applied
// via router.Use in the same order (logging, recovery, metrics, body
// limit) — generalized from the gateway's JWT/CORS/rate-limit stack to
// Lodestone's bearer-token auth.
func NewRouter(a *app.App) http.Handler {
	router := mux.NewRouter()

	router.Use(middleware.LoggingMiddleware(a.Logger))
	router.Use(middleware.NewRecoveryMiddleware(a.Logger).Handler)
	if m := metrics.Global(); m != nil {
		router.Use(middleware.MetricsMiddleware("lodestone-core", m))
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	router.Use(middleware.NewBodyLimitMiddleware(0).Handler)
	if rl, stop := newAPIRateLimiter(a); rl != nil {
		a.SetRateLimiterStop(stop)
		router.Use(rl.Handler)
	}
	router.Use(authMiddleware(a))

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/setup", firstTimeSetup(a)).Methods(http.MethodPost)
	api.HandleFunc("/user/login", login(a)).Methods(http.MethodPost)
	api.HandleFunc("/user/info", whoami(a)).Methods(http.MethodGet)
	api.HandleFunc("/user/list", listUsers(a)).Methods(http.MethodGet)
	api.HandleFunc("/user", createUser(a)).Methods(http.MethodPost)
	api.HandleFunc("/user/{uid}", deleteUser(a)).Methods(http.MethodDelete)
	api.HandleFunc("/user/{uid}/password", changePassword(a)).Methods(http.MethodPut)
	api.HandleFunc("/user/{uid}/permissions", updatePermissions(a)).Methods(http.MethodPut)

	api.HandleFunc("/instance/list", listInstances(a)).Methods(http.MethodGet)
	api.HandleFunc("/instance", createInstance(a)).Methods(http.MethodPost)
	api.HandleFunc("/instance/{uuid}", deleteInstance(a)).Methods(http.MethodDelete)
	api.HandleFunc("/instance/{uuid}/state", instanceState(a)).Methods(http.MethodGet)
	api.HandleFunc("/instance/{uuid}/start", instanceAction(a, "start", auth.ActionStartInstance)).Methods(http.MethodPut)
	api.HandleFunc("/instance/{uuid}/stop", instanceAction(a, "stop", auth.ActionStopInstance)).Methods(http.MethodPut)
	api.HandleFunc("/instance/{uuid}/kill", instanceAction(a, "kill", auth.ActionStopInstance)).Methods(http.MethodPut)
	api.HandleFunc("/instance/{uuid}/restart", instanceAction(a, "restart", auth.ActionStartInstance)).Methods(http.MethodPut)
	api.HandleFunc("/instance/{uuid}/console", instanceConsole(a)).Methods(http.MethodPut)
	api.HandleFunc("/instance/{uuid}/monitor", instanceMonitor(a)).Methods(http.MethodGet)
	api.HandleFunc("/instance/{uuid}/console/buffer", instanceConsoleBuffer(a)).Methods(http.MethodGet)
	api.HandleFunc("/instance/{uuid}/console/stream", instanceConsoleStream(a)).Methods(http.MethodGet)

	api.HandleFunc("/instance/{uuid}/config", getConfig(a)).Methods(http.MethodGet)
	api.HandleFunc("/instance/{uuid}/config", updateConfigSetting(a)).Methods(http.MethodPut)

	api.HandleFunc("/instance/{uuid}/macro/list", listMacros(a)).Methods(http.MethodGet)
	api.HandleFunc("/instance/{uuid}/macro/task/list", macroTaskList(a)).Methods(http.MethodGet)
	api.HandleFunc("/instance/{uuid}/macro/history/list", macroHistoryList(a)).Methods(http.MethodGet)
	api.HandleFunc("/instance/{uuid}/macro/run/{name}", runMacroRoute(a)).Methods(http.MethodPut)
	api.HandleFunc("/instance/{uuid}/macro/kill/{pid}", killMacroRoute(a)).Methods(http.MethodPut)
	api.HandleFunc("/instance/{uuid}/macro/config/get/{name}", macroConfigGet(a)).Methods(http.MethodGet)
	api.HandleFunc("/instance/{uuid}/macro/config/store/{name}", macroConfigStore(a)).Methods(http.MethodPut)
	api.HandleFunc("/instance/{uuid}/macro/{name}", deleteMacroRoute(a)).Methods(http.MethodDelete)

	api.HandleFunc("/instance/{uuid}/fs/ls/{path}", fsLs(a)).Methods(http.MethodGet)
	api.HandleFunc("/instance/{uuid}/fs/read/{path}", fsRead(a)).Methods(http.MethodGet)
	api.HandleFunc("/instance/{uuid}/fs/write/{path}", fsWrite(a)).Methods(http.MethodPut)
	api.HandleFunc("/instance/{uuid}/fs/upload/{path}", fsUpload(a)).Methods(http.MethodPut)
	api.HandleFunc("/instance/{uuid}/fs/mkdir/{path}", fsMkdir(a)).Methods(http.MethodPut)
	api.HandleFunc("/instance/{uuid}/fs/new/{path}", fsNew(a)).Methods(http.MethodPut)
	api.HandleFunc("/instance/{uuid}/fs/move/{path}", fsMove(a)).Methods(http.MethodPut)
	api.HandleFunc("/instance/{uuid}/fs/unzip/{path}", fsUnzip(a)).Methods(http.MethodPut)
	api.HandleFunc("/instance/{uuid}/fs/rm/{path}", fsRemove(a, false)).Methods(http.MethodDelete)
	api.HandleFunc("/instance/{uuid}/fs/rmdir/{path}", fsRemove(a, true)).Methods(http.MethodDelete)

	api.HandleFunc("/fs/ls/{path}", globalFsLs(a)).Methods(http.MethodGet)
	router.HandleFunc("/file/{key}", fsDownload(a)).Methods(http.MethodGet)

	api.HandleFunc("/events/buffer", eventsBuffer(a)).Methods(http.MethodGet)
	api.HandleFunc("/events/search", eventsSearch(a)).Methods(http.MethodPost)
	api.HandleFunc("/events/stream", eventsStream(a)).Methods(http.MethodGet)

	api.HandleFunc("/info", coreInfoRoute(a)).Methods(http.MethodGet)
	api.HandleFunc("/checks", checks(a)).Methods(http.MethodGet)
	api.HandleFunc("/gateway", gatewayInfo(a)).Methods(http.MethodGet)
	api.HandleFunc("/monitor", systemMonitor(a)).Methods(http.MethodGet)
	api.HandleFunc("/global_settings", globalSettingsGet(a)).Methods(http.MethodGet)
	api.HandleFunc("/global_settings", globalSettingsSet(a)).Methods(http.MethodPut)

	return router
}

// newAPIRateLimiter builds the optional rate-limit middleware from
// RATE_LIMIT_* environment variables, mirroring the teacher's
// newGatewayRateLimiter: unset/false leaves the API unthrottled, matching
// this spec's silence on a default limit. Returns a nil limiter and a nil
// stop func when disabled.
func newAPIRateLimiter(a *app.App) (rl *middleware.RateLimiter, stop func()) {
	enabled := strings.TrimSpace(strings.ToLower(os.Getenv("RATE_LIMIT_ENABLED")))
	switch enabled {
	case "1", "true", "yes", "on":
	default:
		return nil, nil
	}

	requests := 100
	if raw := strings.TrimSpace(os.Getenv("RATE_LIMIT_REQUESTS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			requests = parsed
		}
	}

	window := runtime.ResolveDuration(0, "RATE_LIMIT_WINDOW", time.Minute)

	burst := requests
	if raw := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			burst = parsed
		}
	}

	limiter := middleware.NewRateLimiterWithWindow(requests, window, burst, a.Logger)
	return limiter, limiter.StartCleanup(5 * time.Minute)
}
