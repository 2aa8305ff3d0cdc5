package app

import (
	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
	"github.com/lodestone-core/lodestone/internal/event"
	"github.com/lodestone-core/lodestone/internal/id"
	"github.com/lodestone-core/lodestone/internal/instance"
	"github.com/lodestone-core/lodestone/internal/macro"
	"github.com/lodestone-core/lodestone/internal/manifest"
)

// Call implements macro.HostBridge: it dispatches a macro's ProcedureCall
// into the instance/auth operation it names, per §4.6's procedure bridge.
// Every branch is intentionally thin — the real behavior already lives on
// instance.Instance / auth.Service; this is only the routing table.
func (a *App) Call(call macro.ProcedureCall) (interface{}, error) {
	if call.Op == macro.OpInstanceSetup || call.Op == macro.OpInstanceRestore || call.Op == macro.OpInstanceDestruct || call.Op == macro.OpMacroCreate || call.Op == macro.OpMacroRun {
		return a.callWithoutInstance(call)
	}

	uuid, err := argString(call.Args, "instance_uuid")
	if err != nil {
		return nil, err
	}
	inst, ok := a.Registry.Get(uuid)
	if !ok {
		return nil, coreerrors.NotFoundError("instance", uuid)
	}
	causedBy := causedByFromArgs(call.Args)

	switch call.Op {
	case macro.OpGetName:
		return inst.Name(), nil
	case macro.OpSetName:
		name, err := argString(call.Args, "name")
		if err != nil {
			return nil, err
		}
		inst.SetName(name)
		return nil, nil
	case macro.OpGetDescription:
		return inst.Description(), nil
	case macro.OpSetDescription:
		desc, err := argString(call.Args, "description")
		if err != nil {
			return nil, err
		}
		inst.SetDescription(desc)
		return nil, nil
	case macro.OpGetPort:
		return inst.Port(), nil
	case macro.OpSetPort:
		return nil, coreerrors.UnsupportedOperationError("port is fixed at instance setup")
	case macro.OpGetAutoStart:
		return inst.AutoStart(), nil
	case macro.OpSetAutoStart:
		v, _ := call.Args["value"].(bool)
		inst.SetAutoStart(v)
		return nil, nil
	case macro.OpGetRestartOnCrash:
		return inst.RestartOnCrash(), nil
	case macro.OpSetRestartOnCrash:
		v, _ := call.Args["value"].(bool)
		inst.SetRestartOnCrash(v)
		return nil, nil
	case macro.OpManifestGet:
		return inst.Manifest(), nil
	case macro.OpManifestUpdate:
		return nil, a.manifestUpdate(inst, call.Args)
	case macro.OpStart:
		block, _ := call.Args["block"].(bool)
		return nil, inst.Start(causedBy, block)
	case macro.OpStop:
		block, _ := call.Args["block"].(bool)
		return nil, inst.Stop(causedBy, block)
	case macro.OpRestart:
		block, _ := call.Args["block"].(bool)
		return nil, inst.Restart(causedBy, block)
	case macro.OpKill:
		return nil, inst.Kill(causedBy)
	case macro.OpSendCommand:
		cmd, err := argString(call.Args, "command")
		if err != nil {
			return nil, err
		}
		return nil, inst.SendCommand(cmd, causedBy)
	case macro.OpMonitor:
		return inst.Monitor(), nil
	case macro.OpGetState:
		return string(inst.State()), nil
	case macro.OpGetPlayerCount:
		return inst.Roster().Count(), nil
	case macro.OpGetPlayerMax:
		return a.playerMax(inst), nil
	case macro.OpGetPlayerList:
		return inst.Roster().List(), nil
	case macro.OpMacroList:
		return a.listMacroConfigs(inst), nil
	case macro.OpMacroTaskList:
		return a.listMacroTasks(uuid), nil
	case macro.OpMacroHistoryList:
		return a.listMacroHistory(uuid), nil
	case macro.OpMacroDelete:
		return nil, a.deleteMacro(uuid, call.Args)
	default:
		return nil, coreerrors.UnsupportedOperationError("unrecognized procedure op: " + string(call.Op))
	}
}

// callWithoutInstance handles the handful of ops whose target isn't an
// already-registered instance (instance lifecycle and macro creation).
func (a *App) callWithoutInstance(call macro.ProcedureCall) (interface{}, error) {
	switch call.Op {
	case macro.OpInstanceSetup:
		return a.setupInstanceFromArgs(call.Args)
	case macro.OpInstanceRestore:
		return nil, a.RestoreInstances()
	case macro.OpInstanceDestruct:
		uuid, err := argString(call.Args, "instance_uuid")
		if err != nil {
			return nil, err
		}
		return nil, a.DestructInstance(uuid)
	case macro.OpMacroCreate:
		return nil, a.createMacro(call.Args)
	case macro.OpMacroRun:
		return a.runMacro(call.Args)
	default:
		return nil, coreerrors.UnsupportedOperationError("unrecognized procedure op: " + string(call.Op))
	}
}

func (a *App) manifestUpdate(inst instance.Instance, args map[string]interface{}) error {
	section, err := argString(args, "section")
	if err != nil {
		return err
	}
	settingID, err := argString(args, "setting_id")
	if err != nil {
		return err
	}
	kind := manifest.KindString
	if sec, ok := inst.Manifest().Section(section); ok {
		if setting, ok := sec.Get(settingID); ok {
			kind = setting.ValueType.Kind
		}
	}
	value := manifestValueFromArg(args["value"], kind)
	if value == nil && args["value"] != nil {
		return coreerrors.BadRequestError(settingID, "value does not match the setting's type")
	}
	return inst.Manifest().UpdateValue(section, settingID, value)
}

func (a *App) playerMax(inst instance.Instance) int {
	sec, ok := inst.Manifest().Section("server.properties")
	if !ok {
		return 0
	}
	setting, ok := sec.Get("server.properties|max-players")
	if !ok || setting.Value == nil {
		return 0
	}
	return int(setting.Value.Int)
}

func (a *App) listMacroConfigs(inst instance.Instance) []string {
	dir := a.macroDir(inst.UUID())
	entries, err := dirJSFiles(dir)
	if err != nil {
		return nil
	}
	return entries
}

// MacroTaskInfo describes a currently running (or just-finished) macro task
// for the task/list endpoint.
type MacroTaskInfo struct {
	Pid          id.MacroPid `json:"pid"`
	InstanceUUID string      `json:"instance_uuid"`
}

func (a *App) listMacroTasks(instanceUUID string) []MacroTaskInfo {
	a.tasksMu.RLock()
	defer a.tasksMu.RUnlock()
	var out []MacroTaskInfo
	for pid, uuid := range a.macroTasks {
		if uuid == instanceUUID {
			out = append(out, MacroTaskInfo{Pid: pid, InstanceUUID: uuid})
		}
	}
	return out
}

// MacroHistoryEntry is one completed macro run, recorded by trackMacroHistory.
type MacroHistoryEntry struct {
	Pid    id.MacroPid      `json:"pid"`
	Exit   event.ExitStatus `json:"exit"`
}

func (a *App) listMacroHistory(instanceUUID string) []MacroHistoryEntry {
	a.historyMu.RLock()
	defer a.historyMu.RUnlock()
	out := append([]MacroHistoryEntry(nil), a.macroHistory[instanceUUID]...)
	return out
}

func (a *App) deleteMacro(instanceUUID string, args map[string]interface{}) error {
	name, err := argString(args, "name")
	if err != nil {
		return err
	}
	return removeMacroFile(a.macroDir(instanceUUID), name)
}
