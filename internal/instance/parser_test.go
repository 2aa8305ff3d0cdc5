package instance

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-core/lodestone/internal/event"
)

func TestParser_ReadyMarkerTransitionsOnce(t *testing.T) {
	transitions := 0
	roster := NewRoster()
	p := NewParser("u1", "test", roster, ParserHooks{
		TransitionRunning: func() { transitions++ },
	})

	p.ProcessLine("[12:00:00] [Server thread/INFO]: Done (3.141s)!")
	p.ProcessLine("[12:00:01] [Server thread/INFO]: Done (9.9s)!")

	assert.Equal(t, 1, transitions)
}

func TestParser_PlayerJoinAndLeave(t *testing.T) {
	roster := NewRoster()
	var events []event.Event
	p := NewParser("u1", "test", roster, ParserHooks{
		Emit: func(e event.Event) { events = append(events, e) },
	})

	p.ProcessLine("[12:00:00] [Server thread/INFO]: Alice joined the game")
	p.ProcessLine("[12:00:01] [Server thread/INFO]: Alice left the game")

	var changes []event.InstanceEventInner
	for _, e := range events {
		if e.Instance != nil && e.Instance.Inner.Variant == event.InstancePlayerChange {
			changes = append(changes, e.Instance.Inner)
		}
	}
	require.Len(t, changes, 2)

	assert.Len(t, changes[0].Joined, 1)
	assert.Equal(t, "Alice", changes[0].Joined[0].Name)
	assert.Len(t, changes[0].Players, 1)

	assert.Len(t, changes[1].Left, 1)
	assert.Equal(t, "Alice", changes[1].Left[0].Name)
	assert.Empty(t, changes[1].Players)
}

func TestParser_PlayerChatEmitsMessage(t *testing.T) {
	roster := NewRoster()
	var events []event.Event
	p := NewParser("u1", "test", roster, ParserHooks{
		Emit: func(e event.Event) { events = append(events, e) },
	})

	p.ProcessLine("[12:00:00] [Server thread/INFO]: <Alice> hello world")

	var found bool
	for _, e := range events {
		if e.Instance != nil && e.Instance.Inner.Variant == event.InstancePlayerMessage {
			found = true
			assert.Equal(t, "Alice", e.Instance.Inner.PlayerName)
			assert.Equal(t, "hello world", e.Instance.Inner.Message)
		}
	}
	assert.True(t, found)
}

func TestParser_MacroAbortCommand(t *testing.T) {
	roster := NewRoster()
	var abortedPid uint64
	p := NewParser("u1", "test", roster, ParserHooks{
		Emit:       func(event.Event) {},
		AbortMacro: func(pid uint64) { abortedPid = pid },
	})

	p.ProcessLine("[12:00:00] [Server thread/INFO]: <Alice> .macro abort 42")
	assert.Equal(t, uint64(42), abortedPid)
}

func TestParser_MacroSpawnCommand(t *testing.T) {
	roster := NewRoster()
	var spawnedName, spawnedPlayer string
	var spawnedArgs []string
	p := NewParser("u1", "test", roster, ParserHooks{
		Emit: func(event.Event) {},
		SpawnMacro: func(name string, args []string, player string) {
			spawnedName = name
			spawnedArgs = args
			spawnedPlayer = player
		},
	})

	p.ProcessLine("[12:00:00] [Server thread/INFO]: <Bob> .macro spawn greet hello world")
	assert.Equal(t, "greet", spawnedName)
	assert.Equal(t, []string{"hello", "world"}, spawnedArgs)
	assert.Equal(t, "Bob", spawnedPlayer)
}

func TestParser_RunTransitionsStoppedOnEOF(t *testing.T) {
	roster := NewRoster()
	roster.Join(event.Player{Name: "Leftover"})

	stopped := false
	p := NewParser("u1", "test", roster, ParserHooks{
		Emit:              func(event.Event) {},
		TransitionStopped: func() { stopped = true },
	})

	stdout := strings.NewReader("[12:00:00] [Server thread/INFO]: Done (1s)!\n")
	stderr := strings.NewReader("")
	p.Run(stdout, stderr)

	assert.True(t, stopped)
	assert.Equal(t, 0, roster.Count())
}
