package app

import (
	"os"
	"path/filepath"
	"strings"

	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
	"github.com/lodestone-core/lodestone/internal/macro"
)

// dirJSFiles lists the macro module files (by base name, extension
// stripped) directly under dir.
func dirJSFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		switch ext {
		case ".js", ".ts", ".mjs", ".cjs", ".tsx", ".jsx":
			out = append(out, strings.TrimSuffix(name, ext))
		}
	}
	return out, nil
}

func removeMacroFile(dir, name string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return coreerrors.NotFoundError("macro", name)
	}
	for _, e := range entries {
		if strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())) == name {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return coreerrors.InternalError("delete macro file", err)
			}
			return nil
		}
	}
	return coreerrors.NotFoundError("macro", name)
}

// createMacro writes a macro module's source into the instance's macro
// directory.
func (a *App) createMacro(args map[string]interface{}) error {
	instanceUUID, err := argString(args, "instance_uuid")
	if err != nil {
		return err
	}
	name, err := argString(args, "name")
	if err != nil {
		return err
	}
	source, err := argString(args, "source")
	if err != nil {
		return err
	}

	dir := a.macroDir(instanceUUID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return coreerrors.InternalError("create macro directory", err)
	}
	path := filepath.Join(dir, name+".js")
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		return coreerrors.InternalError("write macro file", err)
	}
	return nil
}

// runMacro loads a macro's main module from its instance's macro directory
// and spawns it, with this App bound as the procedure bridge's host.
func (a *App) runMacro(args map[string]interface{}) (interface{}, error) {
	instanceUUID, err := argString(args, "instance_uuid")
	if err != nil {
		return nil, err
	}
	name, err := argString(args, "name")
	if err != nil {
		return nil, err
	}

	var argv []string
	if raw, ok := args["args"].([]interface{}); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				argv = append(argv, s)
			}
		}
	}

	dir := a.macroDir(instanceUUID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, coreerrors.NotFoundError("macro", name)
	}
	var modulePath string
	for _, e := range entries {
		if strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())) == name {
			modulePath = filepath.Join(dir, e.Name())
			break
		}
	}
	if modulePath == "" {
		return nil, coreerrors.NotFoundError("macro", name)
	}

	loader := macro.NewLoader()
	source, _, err := loader.Load("file://" + modulePath)
	if err != nil {
		return nil, coreerrors.InternalError("load macro module", err)
	}

	task, err := a.Macros.Spawn(macro.SpawnRequest{
		InstanceUUID: instanceUUID,
		MainModule:   modulePath,
		Source:       source,
		Args:         argv,
		CausedBy:     causedByFromArgs(args),
		Host:         a,
	})
	if err != nil {
		return nil, coreerrors.InternalError("spawn macro", err)
	}

	a.tasksMu.Lock()
	a.macroTasks[task.Pid] = instanceUUID
	a.tasksMu.Unlock()

	return task.Pid, nil
}
