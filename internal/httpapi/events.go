package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
	"github.com/lodestone-core/lodestone/infrastructure/httputil"
	"github.com/lodestone-core/lodestone/internal/app"
	"github.com/lodestone-core/lodestone/internal/auth"
	"github.com/lodestone-core/lodestone/internal/event"
)

var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func visibleEvents(u auth.User, a *app.App, evs []event.Event) []event.Event {
	out := make([]event.Event, 0, len(evs))
	for _, ev := range evs {
		kind := visibilityKind(ev)
		instanceUUID := ""
		if ev.Instance != nil {
			instanceUUID = ev.Instance.InstanceUuid
		} else if ev.Macro != nil {
			instanceUUID = ev.Macro.InstanceUuid
		}
		if auth.CanViewEvent(u, kind, instanceUUID) {
			out = append(out, ev)
		}
	}
	return out
}

func visibilityKind(ev event.Event) auth.EventKindForVisibility {
	switch {
	case ev.Instance != nil:
		return auth.EventVisibilityInstance
	case ev.Macro != nil:
		return auth.EventVisibilityMacro
	case ev.Progression != nil:
		return auth.EventVisibilityProgression
	default:
		return auth.EventVisibilityUserOrFS
	}
}

// eventsBuffer handles GET /events/buffer, the §6 "recent global events"
// route backed by the in-memory global ring (§3's 512-entry buffer).
func eventsBuffer(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := requireUser(w, r)
		if !ok {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, visibleEvents(u, a, a.Buffers.Global.Snapshot()))
	}
}

// instanceConsoleBuffer handles GET /instance/:uuid/console/buffer, the
// per-instance console ring (§3's 1024-entry buffer).
func instanceConsoleBuffer(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uuid := mux.Vars(r)["uuid"]
		u, ok := requireAction(w, r, auth.ActionAccessConsole, uuid)
		if !ok {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, visibleEvents(u, a, a.Buffers.Console(uuid).Snapshot()))
	}
}

// eventsSearch handles POST /events/search, running the §6 event filter
// query against persisted events.
func eventsSearch(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := requireUser(w, r)
		if !ok {
			return
		}
		var f event.Filter
		if !httputil.DecodeJSONOptional(w, r, &f) {
			return
		}
		limit := httputil.QueryInt(r, "limit", 200)
		results, err := event.Search(r.Context(), a.DB, f, limit)
		if err != nil {
			writeCoreError(w, r, coreerrors.InternalError("search events", err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, visibleEvents(u, a, results))
	}
}

// eventsStream handles GET /events/stream, a WebSocket that replays
// subscribe-time backlog behavior per §3's bus broadcast semantics: a slow
// consumer is told it lagged rather than disconnected.
func eventsStream(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = httputil.BearerToken(r)
		}
		u, err := a.Auth.Authenticate(token)
		if err != nil {
			writeCoreError(w, r, coreerrors.UnauthorizedError("missing or invalid bearer token"))
			return
		}

		conn, err := eventsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var f event.Filter
		if _, payload, readErr := conn.ReadMessage(); readErr == nil {
			_ = json.Unmarshal(payload, &f)
		}

		recv := a.Bus.Subscribe()
		defer recv.Unsubscribe()

		for {
			ev, lagged, ok := recv.Recv()
			if !ok {
				return
			}
			if lagged {
				_ = conn.WriteJSON(map[string]string{"type": "lagged"})
				continue
			}
			if !f.Matches(ev) {
				continue
			}
			kind := visibilityKind(ev)
			instanceUUID := ""
			if ev.Instance != nil {
				instanceUUID = ev.Instance.InstanceUuid
			} else if ev.Macro != nil {
				instanceUUID = ev.Macro.InstanceUuid
			}
			if !auth.CanViewEvent(u, kind, instanceUUID) {
				continue
			}
			if ev.Kind == event.KindUser && ev.User != nil && ev.User.Variant == event.UserLoggedOut && ev.User.UserId == u.UID {
				_ = conn.WriteJSON(map[string]string{"type": "logged_out"})
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
