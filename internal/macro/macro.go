// Package macro implements the macro executor (§4.6): a JS/TS module run in
// its own goja.Runtime on a dedicated goroutine, with a bidirectional
// procedure-call bridge to the host, grounded on the teacher's
// system/tee/script_engine.go gojaScriptEngine (one goja.Runtime per
// Execute call, console shim, builtin injection) generalized from
// one-shot script execution to a long-lived worker with host callbacks.
package macro

import (
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/lodestone-core/lodestone/infrastructure/metrics"
	"github.com/lodestone-core/lodestone/internal/event"
	"github.com/lodestone-core/lodestone/internal/id"
)

// SpawnAckTimeout bounds how long a spawn call waits for MacroEvent{Started}
// before failing.
const SpawnAckTimeout = 1 * time.Second

// terminatedSignature is the recognizable error text goja reports when a
// Runtime is interrupted via Interrupt(), used to distinguish an explicit
// abort from any other uncaught error.
const terminatedSignature = "execution terminated"

// Task is a single running or finished macro. The call site gets three
// handles: the Pid, a detach signal, and an exit signal.
type Task struct {
	Pid          id.MacroPid
	InstanceUUID string

	vm        *goja.Runtime
	vmMu      sync.Mutex
	started   chan struct{}
	detach    chan struct{}
	exit      chan event.ExitStatus
	exitOnce  sync.Once
	exitValue event.ExitStatus
	bridge    *Bridge
}

// Executor runs macros and keeps an in-memory exit-status table keyed by
// pid, recording the first Stopped status observed for each pid and never
// overwriting it.
type Executor struct {
	bus    *event.Bus
	pidGen *id.PidGenerator

	mu    sync.RWMutex
	tasks map[id.MacroPid]*Task
}

// NewExecutor builds an Executor that emits MacroEvents onto bus.
func NewExecutor(bus *event.Bus) *Executor {
	return &Executor{
		bus:    bus,
		pidGen: &id.PidGenerator{},
		tasks:  make(map[id.MacroPid]*Task),
	}
}

// SpawnRequest describes a macro invocation.
type SpawnRequest struct {
	InstanceUUID string
	MainModule   string // file: or http(s): URL
	Source       string // resolved JS source of the main module
	Args         []string
	CausedBy     event.CausedBy
	Host         HostBridge
}

// HostBridge is the set of host capabilities a macro's ProcedureCalls may
// invoke. Implemented by the instance supervisor / app glue; kept as a
// narrow interface here so this package never imports internal/supervisor.
type HostBridge interface {
	Call(call ProcedureCall) (interface{}, error)
}

// Spawn starts a macro on a dedicated goroutine and blocks until
// MacroEvent{Started} is observed or SpawnAckTimeout elapses.
func (e *Executor) Spawn(req SpawnRequest) (*Task, error) {
	pid := e.pidGen.Next()
	t := &Task{
		Pid:          pid,
		InstanceUUID: req.InstanceUUID,
		started:      make(chan struct{}),
		detach:       make(chan struct{}),
		exit:         make(chan event.ExitStatus, 1),
		bridge:       NewBridge(req.Host),
	}

	e.mu.Lock()
	e.tasks[pid] = t
	e.mu.Unlock()
	e.recordActive()

	go e.run(t, req)

	select {
	case <-t.started:
		return t, nil
	case <-time.After(SpawnAckTimeout):
		return nil, fmt.Errorf("macro %d: spawn acknowledgement timed out", pid)
	}
}

// recordActive publishes the count of tasks with no recorded exit status
// yet, for the lodestone_macros_active gauge.
func (e *Executor) recordActive() {
	m := metrics.Global()
	if m == nil {
		return
	}
	e.mu.RLock()
	active := 0
	for _, t := range e.tasks {
		select {
		case status := <-t.exit:
			t.exit <- status
		default:
			active++
		}
	}
	e.mu.RUnlock()
	m.SetMacrosActive(active)
}

func (e *Executor) run(t *Task, req SpawnRequest) {
	defer func() {
		if r := recover(); r != nil {
			e.finish(t, event.ExitStatus{Kind: event.ExitError, Msg: "macro executor thread unexpectedly panicked"})
		}
	}()

	vm := goja.New()
	t.vmMu.Lock()
	t.vm = vm
	t.vmMu.Unlock()

	installConsole(vm)
	installBootstrap(vm, t.Pid, req.InstanceUUID)
	installProcedureBridge(vm, t.bridge)

	close(t.started)
	e.emit(t, event.MacroStarted, nil, req.CausedBy)

	_, err := vm.RunString(req.Source)
	if err != nil {
		if isTerminated(err) {
			e.finish(t, event.ExitStatus{Kind: event.ExitKilled})
			return
		}
		e.finish(t, event.ExitStatus{Kind: event.ExitError, Msg: err.Error()})
		return
	}

	e.emit(t, event.MacroMainModuleExecuted, nil, req.CausedBy)
	e.finish(t, event.ExitStatus{Kind: event.ExitSuccess})
}

func (e *Executor) emit(t *Task, variant event.MacroEventVariant, exit *event.ExitStatus, causedBy event.CausedBy) {
	if e.bus == nil {
		return
	}
	e.bus.Send(event.NewMacroEvent(nil, t.Pid, t.InstanceUUID, variant, exit, causedBy))
}

// finish records the first Stopped status for t, idempotently, and emits the
// corresponding MacroEvent. Subsequent calls are no-ops.
func (e *Executor) finish(t *Task, status event.ExitStatus) {
	t.exitOnce.Do(func() {
		t.exitValue = status
		t.exit <- status
		e.emit(t, event.MacroStopped, &status, event.BySystem())
		if m := metrics.Global(); m != nil {
			m.RecordMacroExit(string(status.Kind))
		}
		e.recordActive()
	})
}

// Abort terminates the macro's isolate via its thread-safe handle. Safe to
// call any number of times; only the first call's termination produces
// Stopped{Killed}.
func (e *Executor) Abort(pid id.MacroPid) {
	e.mu.RLock()
	t, ok := e.tasks[pid]
	e.mu.RUnlock()
	if !ok {
		return
	}
	t.vmMu.Lock()
	vm := t.vm
	t.vmMu.Unlock()
	if vm != nil {
		vm.Interrupt(terminatedSignature)
	}
}

// Wait blocks until the macro's exit status is recorded, returning it.
func (e *Executor) Wait(pid id.MacroPid) (event.ExitStatus, bool) {
	e.mu.RLock()
	t, ok := e.tasks[pid]
	e.mu.RUnlock()
	if !ok {
		return event.ExitStatus{}, false
	}
	status := <-t.exit
	t.exit <- status // allow repeated Wait calls to observe the same value
	return status, true
}

// ExitStatus returns the recorded exit status for pid without blocking, if
// any has been recorded yet.
func (e *Executor) ExitStatus(pid id.MacroPid) (event.ExitStatus, bool) {
	e.mu.RLock()
	t, ok := e.tasks[pid]
	e.mu.RUnlock()
	if !ok {
		return event.ExitStatus{}, false
	}
	select {
	case status := <-t.exit:
		t.exit <- status
		return status, true
	default:
		return event.ExitStatus{}, false
	}
}

func isTerminated(err error) bool {
	ie, ok := err.(*goja.InterruptedError)
	if !ok {
		return false
	}
	v := ie.Value()
	s, ok := v.(string)
	return ok && s == terminatedSignature
}

func installConsole(vm *goja.Runtime) {
	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		return goja.Undefined()
	})
	_ = vm.Set("console", console)
}

// installBootstrap injects the synchronous identification globals required
// before the main module runs.
func installBootstrap(vm *goja.Runtime, pid id.MacroPid, instanceUUID string) {
	_ = vm.Set("__macro_pid", uint64(pid))
	_ = vm.Set("__instance_uuid", instanceUUID)
}
