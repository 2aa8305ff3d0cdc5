package app

import (
	"os"
	"path/filepath"
	"time"

	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
	"github.com/lodestone-core/lodestone/internal/event"
	"github.com/lodestone-core/lodestone/internal/id"
	"github.com/lodestone-core/lodestone/internal/instance"
)

// lodestoneVersion is stamped into every .lodestone_config this build
// writes.
const lodestoneVersion = "1.0.0"

// instancesDir is the root all instance directories live under.
func (a *App) instancesDir() string {
	return filepath.Join(a.Dir, "instances")
}

func (a *App) macroDir(instanceUUID string) string {
	inst, ok := a.Registry.Get(instanceUUID)
	if !ok {
		return filepath.Join(a.instancesDir(), instanceUUID, "macro")
	}
	return filepath.Join(a.instanceRoot(inst), "macro")
}

func (a *App) instanceRoot(inst instance.Instance) string {
	return filepath.Join(a.instancesDir(), inst.Name())
}

// InstanceSetup describes the game-type-specific setup manifest a create
// call supplies, per §6's "create (game-type-specific setup manifest)".
type InstanceSetup struct {
	Name      string
	Kind      instance.Kind
	Port      int
	JavaMajor int
	MinMemMB  int
	MaxMemMB  int
	JarPath   string
	Command   string
	Args      []string
	CausedBy  event.CausedBy
}

// CreateInstance builds a new instance directory, constructs the
// appropriate supervisor, writes its .lodestone_config marker, and
// registers it, per §4.4's setup step and §6's instance-create route.
func (a *App) CreateInstance(setup InstanceSetup) (instance.Instance, error) {
	uuid := string(id.NewInstanceUUID())
	path := filepath.Join(a.instancesDir(), setup.Name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, coreerrors.InternalError("create instance directory", err)
	}

	deps := a.InstanceDeps(uuid)
	var inst instance.Instance
	switch setup.Kind {
	case instance.KindMinecraftJava:
		inst = instance.NewMinecraftInstance(uuid, setup.Name, path, setup.Port, setup.JavaMajor, setup.MinMemMB, setup.MaxMemMB, setup.JarPath, deps)
	case instance.KindGeneric:
		inst = instance.NewGenericInstance(uuid, setup.Name, path, setup.Command, setup.Args, deps)
	default:
		return nil, coreerrors.BadRequestError("kind", "unrecognized instance kind")
	}

	cfg := instance.Config{
		GameType:         setup.Kind,
		UUID:             uuid,
		CreationTime:     time.Now(),
		LodestoneVersion: lodestoneVersion,
	}
	if err := instance.WriteConfig(path, cfg); err != nil {
		return nil, coreerrors.InternalError("write .lodestone_config", err)
	}

	a.Registry.Add(inst)
	return inst, nil
}

func (a *App) setupInstanceFromArgs(args map[string]interface{}) (instance.Instance, error) {
	name, err := argString(args, "name")
	if err != nil {
		return nil, err
	}
	kind, _ := args["kind"].(string)
	setup := InstanceSetup{Name: name, Kind: instance.Kind(kind)}
	if kind == "" {
		setup.Kind = instance.KindGeneric
	}
	if port, ok := args["port"].(float64); ok {
		setup.Port = int(port)
	}
	if cmd, ok := args["command"].(string); ok {
		setup.Command = cmd
	}
	return a.CreateInstance(setup)
}

// RestoreInstances walks instances/ at startup, constructing a supervisor
// handle for every directory carrying a .lodestone_config marker and
// registering it without starting it, per §4's restore path. No restored
// instance is started: the stored config carries no auto-start flag.
func (a *App) RestoreInstances() error {
	root := a.instancesDir()
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return coreerrors.InternalError("read instances directory", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(root, entry.Name())
		cfg, ok, err := instance.ReadConfig(path)
		if err != nil || !ok {
			continue
		}

		deps := a.InstanceDeps(cfg.UUID)
		var inst instance.Instance
		switch cfg.GameType {
		case instance.KindMinecraftJava:
			inst = instance.NewMinecraftInstance(cfg.UUID, entry.Name(), path, 0, 0, 0, 0, "", deps)
		default:
			inst = instance.NewGenericInstance(cfg.UUID, entry.Name(), path, "", nil, deps)
		}
		a.Registry.Add(inst)

		if inst.AutoStart() {
			go func(inst instance.Instance) {
				_ = inst.Start(event.BySystem(), false)
			}(inst)
		}
	}
	return nil
}

// DestructInstance stops a running instance (best-effort) and removes it
// from the registry and ring buffers. The on-disk directory is left in
// place; deleting game files is a filesystem-route concern, not this one's.
func (a *App) DestructInstance(uuid string) error {
	inst, ok := a.Registry.Get(uuid)
	if !ok {
		return coreerrors.NotFoundError("instance", uuid)
	}
	if inst.State() == event.StateRunning {
		_ = inst.Stop(event.BySystem(), true)
	}
	a.Registry.Remove(uuid)
	a.Buffers.Drop(uuid)
	return nil
}
