package instance

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/lodestone-core/lodestone/internal/event"
)

// readyMarkerRe recognizes the Minecraft "server ready" line, e.g.
// `[12:00:00] [Server thread/INFO]: Done (3.141s)!`.
var readyMarkerRe = regexp.MustCompile(`Done \([^)]*\)!`)

// systemMessageEnvelopeRe matches `[HH:MM:SS] [thread/LEVEL]: TEXT`. Whether
// TEXT itself carries an angle-bracketed speaker (and so is really a chat
// line, not a system message) is decided separately by chatBodyRe, since Go's
// RE2 engine has no negative lookahead.
var systemMessageEnvelopeRe = regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\] \[[^/\]]+/[A-Z]+\]: (?P<text>.*)$`)

// chatBodyRe matches a system-message TEXT body that is itself a chat line:
// `<NAME> MSG`.
var chatBodyRe = regexp.MustCompile(`^<(?P<name>[^>]+)> (?P<msg>.*)$`)

// playerChatRe matches `[…]: <NAME> MSG` against a whole line.
var playerChatRe = regexp.MustCompile(`^\[.*\]: <(?P<name>[^>]+)> (?P<msg>.*)$`)

var joinedRe = regexp.MustCompile(`^(?P<name>\S+) joined the game$`)
var leftRe = regexp.MustCompile(`^(?P<name>\S+) left the game$`)

var macroAbortRe = regexp.MustCompile(`^\.macro abort (\d+)`)
var macroSpawnRe = regexp.MustCompile(`^\.macro spawn (\S+)(.*)$`)

// ParserHooks are the side effects the output parser drives as it reads a
// child process's stdout/stderr, kept as free functions so Parser has no
// import-time dependency on the macro executor or the instance itself,
// mirroring the macro package's narrow HostBridge interface.
type ParserHooks struct {
	// Emit publishes an event onto the bus.
	Emit func(event.Event)
	// TransitionRunning is called exactly once, the first time the ready
	// marker is observed, before ReloadManifest and the RCON connect run.
	TransitionRunning func()
	// TransitionStopped is called on EOF from both streams, regardless of
	// the prior state.
	TransitionStopped func()
	// ReloadManifest re-reads the instance's on-disk config (e.g.
	// server.properties) into the configurable manifest.
	ReloadManifest func()
	// RconEnabled reports whether the freshly reloaded config asks for
	// RCON, and if so its address/password.
	RconEnabled func() (addr, password string, enabled bool)
	// SetRcon installs (or clears, on nil) the connected RCON client.
	SetRcon func(*RconClient)
	// AbortMacro aborts the macro with the given pid.
	AbortMacro func(pid uint64)
	// SpawnMacro spawns a macro by name with args, attributed to the
	// chatting player.
	SpawnMacro func(name string, args []string, player string)
}

// Parser drives the §4.5 output-parsing algorithm for one instance.
type Parser struct {
	uuid, name string
	roster     *Roster
	hooks      ParserHooks

	didStartMu sync.Mutex
	didStart   bool
}

// NewParser builds a Parser for the named instance.
func NewParser(uuid, name string, roster *Roster, hooks ParserHooks) *Parser {
	return &Parser{uuid: uuid, name: name, roster: roster, hooks: hooks}
}

// Run reads stdout and stderr until both are exhausted, processing each
// line as it arrives in arrival order (whichever stream yields next), and
// transitions to Stopped on EOF regardless of prior state.
func (p *Parser) Run(stdout, stderr io.Reader) {
	lines := make(chan string, 64)
	var wg sync.WaitGroup
	wg.Add(2)

	pump := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}
	go pump(stdout)
	go pump(stderr)

	go func() {
		wg.Wait()
		close(lines)
	}()

	for line := range lines {
		p.ProcessLine(line)
	}

	p.roster.Clear()
	if p.hooks.TransitionStopped != nil {
		p.hooks.TransitionStopped()
	}
}

// ProcessLine runs one line through the §4.5 algorithm's steps 1-4.
func (p *Parser) ProcessLine(line string) {
	p.emitOutput(line)
	p.maybeHandleReady(line)
	p.maybeHandleSystemMessage(line)
	p.maybeHandlePlayerChat(line)
}

func (p *Parser) emitOutput(line string) {
	if p.hooks.Emit == nil {
		return
	}
	p.hooks.Emit(event.NewInstanceEvent(nil, p.uuid, p.name, event.InstanceEventInner{
		Variant: event.InstanceOutput,
		Message: line,
	}, event.BySystem()))
}

func (p *Parser) maybeHandleReady(line string) {
	if !readyMarkerRe.MatchString(line) {
		return
	}

	p.didStartMu.Lock()
	if p.didStart {
		p.didStartMu.Unlock()
		return
	}
	p.didStart = true
	p.didStartMu.Unlock()

	if p.hooks.TransitionRunning != nil {
		p.hooks.TransitionRunning()
	}
	if p.hooks.ReloadManifest != nil {
		p.hooks.ReloadManifest()
	}
	if p.hooks.RconEnabled == nil || p.hooks.SetRcon == nil {
		return
	}
	addr, password, enabled := p.hooks.RconEnabled()
	if !enabled {
		return
	}
	client, err := ConnectWithBackoff(addr, password)
	if err != nil {
		// Give up and continue without RCON, per §4.5 step 2.
		return
	}
	p.hooks.SetRcon(client)
}

func (p *Parser) maybeHandleSystemMessage(line string) {
	m := systemMessageEnvelopeRe.FindStringSubmatch(line)
	if m == nil {
		return
	}
	text := m[systemMessageEnvelopeRe.SubexpIndex("text")]
	if chatBodyRe.MatchString(text) {
		// TEXT has an angle-bracketed speaker: this is the "<NAME> MSG"
		// chat shape and belongs to maybeHandlePlayerChat.
		return
	}

	if p.hooks.Emit != nil {
		p.hooks.Emit(event.NewInstanceEvent(nil, p.uuid, p.name, event.InstanceEventInner{
			Variant: event.InstanceSystemMessage,
			Message: text,
		}, event.BySystem()))
	}

	if jm := joinedRe.FindStringSubmatch(text); jm != nil {
		p.emitPlayerChange(p.roster.Join(event.Player{Name: jm[1]}))
		return
	}
	if lm := leftRe.FindStringSubmatch(text); lm != nil {
		p.emitPlayerChange(p.roster.Leave(event.Player{Name: lm[1]}))
		return
	}
}

func (p *Parser) emitPlayerChange(list, joined, left []event.Player) {
	if len(joined) == 0 && len(left) == 0 {
		return
	}
	if p.hooks.Emit == nil {
		return
	}
	p.hooks.Emit(event.NewInstanceEvent(nil, p.uuid, p.name, event.InstanceEventInner{
		Variant: event.InstancePlayerChange,
		Players: list,
		Joined:  joined,
		Left:    left,
	}, event.BySystem()))
}

func (p *Parser) maybeHandlePlayerChat(line string) {
	m := playerChatRe.FindStringSubmatch(line)
	if m == nil {
		return
	}
	name := m[playerChatRe.SubexpIndex("name")]
	msg := m[playerChatRe.SubexpIndex("msg")]

	if p.hooks.Emit != nil {
		p.hooks.Emit(event.NewInstanceEvent(nil, p.uuid, p.name, event.InstanceEventInner{
			Variant:    event.InstancePlayerMessage,
			Message:    msg,
			PlayerName: name,
		}, event.ByUnknown()))
	}

	if am := macroAbortRe.FindStringSubmatch(msg); am != nil {
		if p.hooks.AbortMacro != nil {
			if pid, err := strconv.ParseUint(am[1], 10, 64); err == nil {
				p.hooks.AbortMacro(pid)
			}
		}
		return
	}
	if sm := macroSpawnRe.FindStringSubmatch(msg); sm != nil {
		if p.hooks.SpawnMacro != nil {
			args := strings.Fields(sm[2])
			p.hooks.SpawnMacro(sm[1], args, name)
		}
	}
}
