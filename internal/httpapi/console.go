package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
	"github.com/lodestone-core/lodestone/internal/app"
	"github.com/lodestone-core/lodestone/internal/auth"
	"github.com/lodestone-core/lodestone/internal/event"
)

var consoleUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// instanceConsoleStream handles GET /instance/:uuid/console/stream?token=,
// a WebSocket that replays the console buffer then tails new console
// messages, closing when the subscribing user logs out or is deleted
// (§6's "until disconnected" note).
func instanceConsoleStream(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uuid := mux.Vars(r)["uuid"]
		token := r.URL.Query().Get("token")
		u, err := a.Auth.Authenticate(token)
		if err != nil {
			writeCoreError(w, r, coreerrors.UnauthorizedError("missing or invalid bearer token"))
			return
		}
		if !auth.CanPerformAction(u, auth.ActionAccessConsole, uuid) {
			writeCoreError(w, r, coreerrors.PermissionDeniedError(string(auth.ActionAccessConsole)))
			return
		}
		if _, ok := lookupInstance(a, w, r, uuid); !ok {
			return
		}

		conn, err := consoleUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, ev := range a.Buffers.Console(uuid).Snapshot() {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
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
			if ev.Kind == event.KindUser && ev.User != nil && ev.User.UserId == u.UID {
				switch ev.User.Variant {
				case event.UserLoggedOut, event.UserDeleted:
					return
				}
			}
			if !ev.IsConsoleMessage() || ev.Instance == nil || ev.Instance.InstanceUuid != uuid {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
