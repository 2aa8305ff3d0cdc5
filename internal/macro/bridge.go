package macro

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
)

// ProcedureOp discriminates the host operations a macro may invoke through
// the bridge. Each variant carries exactly its inputs (see CallArgs) and
// produces exactly its result shape, per §4.6's "macro host calls as a sum
// type" design note.
type ProcedureOp string

const (
	OpInstanceSetup         ProcedureOp = "INSTANCE_SETUP"
	OpInstanceRestore       ProcedureOp = "INSTANCE_RESTORE"
	OpInstanceDestruct      ProcedureOp = "INSTANCE_DESTRUCT"
	OpGetName               ProcedureOp = "GET_NAME"
	OpSetName               ProcedureOp = "SET_NAME"
	OpGetDescription        ProcedureOp = "GET_DESCRIPTION"
	OpSetDescription        ProcedureOp = "SET_DESCRIPTION"
	OpGetPort               ProcedureOp = "GET_PORT"
	OpSetPort               ProcedureOp = "SET_PORT"
	OpGetAutoStart          ProcedureOp = "GET_AUTO_START"
	OpSetAutoStart          ProcedureOp = "SET_AUTO_START"
	OpGetRestartOnCrash     ProcedureOp = "GET_RESTART_ON_CRASH"
	OpSetRestartOnCrash     ProcedureOp = "SET_RESTART_ON_CRASH"
	OpManifestGet           ProcedureOp = "MANIFEST_GET"
	OpManifestUpdate        ProcedureOp = "MANIFEST_UPDATE"
	OpStart                 ProcedureOp = "START"
	OpStop                  ProcedureOp = "STOP"
	OpRestart               ProcedureOp = "RESTART"
	OpKill                  ProcedureOp = "KILL"
	OpSendCommand           ProcedureOp = "SEND_COMMAND"
	OpMonitor               ProcedureOp = "MONITOR"
	OpGetState              ProcedureOp = "GET_STATE"
	OpGetPlayerCount        ProcedureOp = "GET_PLAYER_COUNT"
	OpGetPlayerMax          ProcedureOp = "GET_PLAYER_MAX"
	OpGetPlayerList         ProcedureOp = "GET_PLAYER_LIST"
	OpMacroList             ProcedureOp = "MACRO_LIST"
	OpMacroTaskList         ProcedureOp = "MACRO_TASK_LIST"
	OpMacroHistoryList      ProcedureOp = "MACRO_HISTORY_LIST"
	OpMacroDelete           ProcedureOp = "MACRO_DELETE"
	OpMacroCreate           ProcedureOp = "MACRO_CREATE"
	OpMacroRun              ProcedureOp = "MACRO_RUN"
)

// ProcedureCall is what a macro sends into the bridge's queue.
type ProcedureCall struct {
	CallID int64                  `json:"call_id"`
	Op     ProcedureOp            `json:"op"`
	Args   map[string]interface{} `json:"args"`
}

// Bridge allocates monotone call ids, forwards calls to the host, and blocks
// the caller until the matching result arrives. It is only ready once the
// guest script signals readiness; calls made before that block.
type Bridge struct {
	host    HostBridge
	nextID  int64
	readyMu sync.Mutex
	ready   bool
	readyCh chan struct{}
}

// NewBridge builds a Bridge forwarding calls to host.
func NewBridge(host HostBridge) *Bridge {
	return &Bridge{host: host, readyCh: make(chan struct{})}
}

// SignalReady marks the bridge ready, unblocking any host calls already
// waiting and all future ones.
func (b *Bridge) SignalReady() {
	b.readyMu.Lock()
	defer b.readyMu.Unlock()
	if !b.ready {
		b.ready = true
		close(b.readyCh)
	}
}

// Call blocks until the bridge is ready, then forwards op to the host and
// returns its result.
func (b *Bridge) Call(op ProcedureOp, args map[string]interface{}) (interface{}, error) {
	<-b.readyCh
	callID := atomic.AddInt64(&b.nextID, 1)
	call := ProcedureCall{CallID: callID, Op: op, Args: args}
	if b.host == nil {
		return nil, fmt.Errorf("macro bridge: no host bound for call %d (%s)", callID, op)
	}
	return b.host.Call(call)
}

// installProcedureBridge exposes the bridge to guest code as a global
// `__lodestone_call(op, args)` function and a `proc_bridge_ready()` signal,
// the minimal surface a generated TS SDK would wrap with typed helpers.
func installProcedureBridge(vm *goja.Runtime, bridge *Bridge) {
	_ = vm.Set("__lodestone_call", func(op string, args map[string]interface{}) goja.Value {
		result, err := bridge.Call(ProcedureOp(op), args)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(result)
	})
	_ = vm.Set("proc_bridge_ready", func() {
		bridge.SignalReady()
	})
}
