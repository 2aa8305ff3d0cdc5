package instance

import (
	"os/exec"
	"strings"

	"github.com/lodestone-core/lodestone/internal/event"
)

// GenericInstance supervises an arbitrary scriptable process: a shell
// command and argument list with no game-specific ready marker or RCON
// side channel. It transitions to Running as soon as the process spawns.
type GenericInstance struct {
	*base

	command string
	args    []string
}

// NewGenericInstance builds a GenericInstance rooted at path, running
// command with args.
func NewGenericInstance(uuid, name, path, command string, args []string, deps Deps) *GenericInstance {
	b := newBase(uuid, name, KindGeneric, path, 0, deps)
	b.stopCommand = "stop"
	b.waitForReadyMarker = false

	g := &GenericInstance{base: b, command: command, args: args}
	b.buildCommand = g.buildCommand
	return g
}

// Start forwards to the shared startup sequence.
func (g *GenericInstance) Start(causedBy event.CausedBy, block bool) error {
	return g.base.Start(causedBy, block)
}

// Stop forwards to the shared stop sequence.
func (g *GenericInstance) Stop(causedBy event.CausedBy, block bool) error {
	return g.base.Stop(causedBy, block)
}

// Restart stops then starts, dispatching through the Instance interface so
// restartImpl's internal Start/Stop calls land back on this type.
func (g *GenericInstance) Restart(causedBy event.CausedBy, block bool) error {
	return g.base.restartImpl(causedBy, block, g)
}

func (g *GenericInstance) buildCommand(b *base) (*exec.Cmd, error) {
	cmd := exec.Command(g.command, g.args...)
	cmd.Dir = b.path
	return cmd, nil
}

// SetCommand updates the command line a future Start will run; takes
// effect only after the instance is next started.
func (g *GenericInstance) SetCommand(command string, args []string) {
	g.command = command
	g.args = args
}

// CommandLine returns the configured command and args joined for display.
func (g *GenericInstance) CommandLine() string {
	return strings.TrimSpace(g.command + " " + strings.Join(g.args, " "))
}
