// Package app is the glue layer (C10): it holds the shared handles every
// other component needs — the event bus and ring buffers, the persistence
// writer, the auth core, the port allocator, the macro executor, and the
// instance registry — and it is the one package allowed to import all of
// C2-C9, since it is the only thing that assembles them, mirroring the
// teacher's `infrastructure/runtime` app-context aggregation generalized
// from env detection to full component wiring.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lodestone-core/lodestone/infrastructure/logging"
	"github.com/lodestone-core/lodestone/infrastructure/metrics"
	"github.com/lodestone-core/lodestone/internal/auth"
	"github.com/lodestone-core/lodestone/internal/event"
	"github.com/lodestone-core/lodestone/internal/id"
	"github.com/lodestone-core/lodestone/internal/instance"
	"github.com/lodestone-core/lodestone/internal/macro"
	"github.com/lodestone-core/lodestone/internal/portalloc"
	"github.com/lodestone-core/lodestone/internal/settings"
)

// App is the process-wide set of shared handles. A single App is
// constructed at startup and threaded into the HTTP layer.
type App struct {
	Dir string

	Bus      *event.Bus
	Buffers  *event.Buffers
	Writer   *event.Writer
	DB       *sqlx.DB
	Auth     *auth.Service
	PortAlloc *portalloc.Allocator
	Macros   *macro.Executor
	Registry *instance.Registry
	IDGen    *id.Generator
	Logger   *logging.Logger
	Settings *settings.Store

	writerCancel context.CancelFunc
	wg           sync.WaitGroup

	tasksMu    sync.RWMutex
	macroTasks map[id.MacroPid]string // pid -> instance uuid, cleared on exit

	historyMu    sync.RWMutex
	macroHistory map[string][]MacroHistoryEntry // instance uuid -> completed runs

	rateLimiterStop func()
}

// SetRateLimiterStop records the stop func of an optional rate-limiter
// cleanup goroutine started by the HTTP layer, so Shutdown can stop it.
func (a *App) SetRateLimiterStop(stop func()) {
	a.rateLimiterStop = stop
}

// New assembles an App rooted at dir, creating the on-disk layout described
// in §6 ("instances/", "stores/", "bin/", "log/", "tls/") if it doesn't
// already exist, opening stores/data.db, and loading stores/users.json.
func New(dir string, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.NewFromEnv("lodestone-core")
	}

	for _, sub := range []string{"instances", "stores", "bin", "log", "tls"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", sub, err)
		}
	}

	db, err := sqlx.Open("sqlite3", filepath.Join(dir, "stores", "data.db"))
	if err != nil {
		return nil, fmt.Errorf("open data.db: %w", err)
	}

	writer, err := event.NewWriter(db, logger)
	if err != nil {
		return nil, fmt.Errorf("init event writer: %w", err)
	}

	store, err := auth.NewStore(filepath.Join(dir, "stores", "users.json"))
	if err != nil {
		return nil, fmt.Errorf("load users.json: %w", err)
	}

	settingsStore, err := settings.NewStore(filepath.Join(dir, "stores", "global_settings.json"))
	if err != nil {
		return nil, fmt.Errorf("load global_settings.json: %w", err)
	}

	bus := event.NewBus()
	a := &App{
		Dir:          dir,
		Bus:          bus,
		Buffers:      event.NewBuffers(),
		Writer:       writer,
		DB:           db,
		Auth:         auth.NewService(store),
		PortAlloc:    portalloc.New(),
		Macros:       macro.NewExecutor(bus),
		Registry:     instance.NewRegistry(),
		IDGen:        id.NewGenerator(0),
		Logger:       logger,
		Settings:     settingsStore,
		macroTasks:   make(map[id.MacroPid]string),
		macroHistory: make(map[string][]MacroHistoryEntry),
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.writerCancel = cancel

	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		a.Writer.Run(ctx, a.Bus.Subscribe())
	}()
	go func() {
		defer a.wg.Done()
		a.Buffers.Consume(a.Bus.Subscribe())
	}()
	go func() {
		defer a.wg.Done()
		a.trackMacroHistory(a.Bus.Subscribe())
	}()

	return a, nil
}

// Shutdown unsubscribes the background consumers and closes the database.
// Per §5, graceful instance teardown (kill Starting, stop Running) is the
// caller's responsibility via Shutdown InstancesGraceful, kept separate so
// callers can bound it with their own timeout.
func (a *App) Shutdown() error {
	if a.rateLimiterStop != nil {
		a.rateLimiterStop()
	}
	a.writerCancel()
	a.Bus.Close()
	a.wg.Wait()
	return a.DB.Close()
}

// ShutdownInstancesGraceful best-effort kills every Starting instance and
// stops every Running instance, each on its own goroutine so one stuck
// instance does not starve the others, per §5's shutdown cancellation rule.
func (a *App) ShutdownInstancesGraceful(timeout time.Duration) {
	all := a.Registry.All()
	done := make(chan struct{}, len(all))

	for _, inst := range all {
		inst := inst
		go func() {
			defer func() { done <- struct{}{} }()
			switch inst.State() {
			case event.StateStarting:
				_ = inst.Kill(event.BySystem())
			case event.StateRunning:
				_ = inst.Stop(event.BySystem(), true)
			}
		}()
	}

	deadline := time.After(timeout)
	for range all {
		select {
		case <-done:
		case <-deadline:
			return
		}
	}
}

// trackMacroHistory drains r, recording each MacroEvent{Stopped} into the
// per-instance history list and retiring the pid from the active-task map,
// backing the macro task/list and history/list routes.
func (a *App) trackMacroHistory(r *event.Receiver) {
	for {
		ev, lagged, ok := r.Recv()
		if !ok {
			return
		}
		if lagged || ev.Kind != event.KindMacro || ev.Macro == nil {
			continue
		}
		if ev.Macro.Variant != event.MacroStopped {
			continue
		}

		a.tasksMu.Lock()
		delete(a.macroTasks, ev.Macro.Pid)
		a.tasksMu.Unlock()

		status := event.ExitStatus{}
		if ev.Macro.ExitStatus != nil {
			status = *ev.Macro.ExitStatus
		}
		entry := MacroHistoryEntry{Pid: ev.Macro.Pid, Exit: status}

		a.historyMu.Lock()
		a.macroHistory[ev.Macro.InstanceUuid] = append(a.macroHistory[ev.Macro.InstanceUuid], entry)
		a.historyMu.Unlock()
	}
}

// InstanceDeps builds the instance.Deps for the instance identified by
// instanceUUID, wiring its SpawnMacro/AbortMacro hooks back through this App
// so instance.Deps never has to import internal/macro directly (narrow
// func-field injection, per SPEC_FULL.md's import-cycle note). The in-chat
// `.macro spawn` command (§4.5) is the caller of SpawnMacro; its cause is
// the issuing player, threaded through as a user id/username pair.
func (a *App) InstanceDeps(instanceUUID string) instance.Deps {
	return instance.Deps{
		Bus:       a.Bus,
		IDGen:     a.IDGen,
		PortAlloc: a.PortAlloc,
		Logger:    a.Logger,
		SpawnMacro: func(name string, args []string, causedBy event.CausedBy) {
			argv := make([]interface{}, len(args))
			for i, s := range args {
				argv[i] = s
			}
			_, _ = a.runMacro(map[string]interface{}{
				"instance_uuid":      instanceUUID,
				"name":               name,
				"args":               argv,
				"caused_by_user_id":  causedBy.UserId,
				"caused_by_username": causedBy.Username,
			})
		},
		AbortMacro: func(pid uint64) {
			a.Macros.Abort(id.MacroPid(pid))
		},
	}
}

// RecordRegistryMetrics publishes the current instance-by-state gauge,
// called on a ticker from cmd/lodestone-core.
func (a *App) RecordRegistryMetrics() {
	m := metrics.Global()
	if m == nil {
		return
	}
	for kind, byState := range a.Registry.CountByState() {
		for state, count := range byState {
			m.SetInstancesByState(string(kind), state, count)
		}
	}
}
