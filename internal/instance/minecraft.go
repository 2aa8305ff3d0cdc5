package instance

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lodestone-core/lodestone/internal/event"
	"github.com/lodestone-core/lodestone/internal/manifest"
)

// propertiesFileName is Minecraft's settings file, re-read into the
// configurable manifest once the instance reaches Running (§4.4 step 2).
const propertiesFileName = "server.properties"

// MinecraftInstance supervises a Minecraft Java server child process.
type MinecraftInstance struct {
	*base

	jarPath      string
	javaMajor    int
	minMemoryMB  int
	maxMemoryMB  int
	extraJVMArgs []string
	extraArgs    []string
}

// NewMinecraftInstance builds a MinecraftInstance rooted at path.
func NewMinecraftInstance(uuid, name, path string, port, javaMajor, minMemoryMB, maxMemoryMB int, jarPath string, deps Deps) *MinecraftInstance {
	b := newBase(uuid, name, KindMinecraftJava, path, port, deps)
	b.stopCommand = "stop"
	b.waitForReadyMarker = true

	mc := &MinecraftInstance{
		base:        b,
		jarPath:     jarPath,
		javaMajor:   javaMajor,
		minMemoryMB: minMemoryMB,
		maxMemoryMB: maxMemoryMB,
	}

	b.buildCommand = mc.buildCommand
	b.reloadManifestFn = func(*base) { mc.reloadManifest() }
	b.rconEnabledFn = func(*base) (string, string, bool) { return mc.rconEnabled() }
	mc.seedManifest()
	return mc
}

// Start forwards to the shared startup sequence.
func (m *MinecraftInstance) Start(causedBy event.CausedBy, block bool) error {
	return m.base.Start(causedBy, block)
}

// Stop forwards to the shared stop sequence.
func (m *MinecraftInstance) Stop(causedBy event.CausedBy, block bool) error {
	return m.base.Stop(causedBy, block)
}

// Restart stops then starts, dispatching through the Instance interface so
// restartImpl's internal Start/Stop calls land back on this type.
func (m *MinecraftInstance) Restart(causedBy event.CausedBy, block bool) error {
	return m.base.restartImpl(causedBy, block, m)
}

func (m *MinecraftInstance) buildCommand(b *base) (*exec.Cmd, error) {
	java := b.resolveJava(m.javaMajor)

	args := []string{
		fmt.Sprintf("-Xms%dM", m.minMemoryMB),
		fmt.Sprintf("-Xmx%dM", m.maxMemoryMB),
	}
	args = append(args, m.extraJVMArgs...)
	args = append(args, "-jar", m.jarPath, "nogui")
	args = append(args, m.extraArgs...)

	cmd := exec.Command(java, args...)
	cmd.Dir = b.path
	return cmd, nil
}

// seedManifest declares the settings this supervisor reads from
// server.properties, so §4.7 validation has bounds/regex/options to check
// against even before the file is first parsed.
func (m *MinecraftInstance) seedManifest() {
	section := manifest.NewSection("server.properties")

	portMin, portMax := 1.0, 65535.0
	section.Add(manifest.Setting{
		SettingID:  "server.properties|server-port",
		Name:       "server-port",
		ValueType:  manifest.ValueType{Kind: manifest.KindInteger, Min: &portMin, Max: &portMax},
		IsMutable:  true,
		IsRequired: true,
	})
	section.Add(manifest.Setting{
		SettingID:  "server.properties|motd",
		Name:       "motd",
		ValueType:  manifest.ValueType{Kind: manifest.KindString},
		IsMutable:  true,
		IsRequired: false,
	})
	section.Add(manifest.Setting{
		SettingID:  "server.properties|enable-rcon",
		Name:       "enable-rcon",
		ValueType:  manifest.ValueType{Kind: manifest.KindBoolean},
		IsMutable:  true,
		IsRequired: false,
	})
	section.Add(manifest.Setting{
		SettingID:  "server.properties|rcon.password",
		Name:       "rcon.password",
		ValueType:  manifest.ValueType{Kind: manifest.KindString},
		IsMutable:  true,
		IsRequired: false,
		IsSecret:   true,
	})
	section.Add(manifest.Setting{
		SettingID:  "server.properties|rcon.port",
		Name:       "rcon.port",
		ValueType:  manifest.ValueType{Kind: manifest.KindInteger, Min: &portMin, Max: &portMax},
		IsMutable:  true,
		IsRequired: false,
	})
	section.Add(manifest.Setting{
		SettingID:  "server.properties|difficulty",
		Name:       "difficulty",
		ValueType:  manifest.ValueType{Kind: manifest.KindEnum, Options: []string{"peaceful", "easy", "normal", "hard"}},
		IsMutable:  true,
		IsRequired: false,
	})
	section.Add(manifest.Setting{
		SettingID:  "server.properties|max-players",
		Name:       "max-players",
		ValueType:  manifest.ValueType{Kind: manifest.KindInteger},
		IsMutable:  true,
		IsRequired: false,
	})

	m.manifest.AddSection(section)
}

func (m *MinecraftInstance) reloadManifest() {
	props, err := readLines(filepath.Join(m.path, propertiesFileName))
	if err != nil {
		return
	}
	section, ok := m.manifest.Section("server.properties")
	if !ok {
		return
	}
	for _, setting := range section.Settings() {
		key := strings.TrimPrefix(setting.SettingID, "server.properties|")
		raw, present := props[key]
		if !present {
			continue
		}
		value := parsePropertyValue(setting.ValueType, raw)
		setting.Value = value
	}
}

func parsePropertyValue(t manifest.ValueType, raw string) *manifest.Value {
	switch t.Kind {
	case manifest.KindInteger:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			v := manifest.IntValue(n)
			return &v
		}
		return nil
	case manifest.KindBoolean:
		v := manifest.BoolValue(parseBool(raw))
		return &v
	case manifest.KindEnum:
		v := manifest.EnumValue(raw)
		return &v
	default:
		v := manifest.StringValue(raw)
		return &v
	}
}

// rconEnabled reports whether server.properties currently asks for RCON.
func (m *MinecraftInstance) rconEnabled() (addr, password string, enabled bool) {
	section, ok := m.manifest.Section("server.properties")
	if !ok {
		return "", "", false
	}

	enabledSetting, ok := section.Get("server.properties|enable-rcon")
	if !ok || enabledSetting.Value == nil || !enabledSetting.Value.Bool {
		return "", "", false
	}

	portSetting, ok := section.Get("server.properties|rcon.port")
	if !ok || portSetting.Value == nil {
		return "", "", false
	}
	passSetting, ok := section.Get("server.properties|rcon.password")
	if !ok || passSetting.Value == nil || passSetting.Value.Str == "" {
		return "", "", false
	}

	return fmt.Sprintf("127.0.0.1:%d", portSetting.Value.Int), passSetting.Value.Str, true
}

// SendRconCommand sends cmd over the connected RCON side channel, failing
// UnsupportedOperation if RCON isn't currently connected.
func (m *MinecraftInstance) SendRconCommand(cmd string) (string, error) {
	m.rconMu.Lock()
	client := m.rcon
	m.rconMu.Unlock()
	if client == nil {
		return "", fmt.Errorf("rcon is not connected")
	}
	return client.Command(cmd)
}
