package macro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfigSource = `
class LodestoneConfig {
  /** Tick interval in seconds */
  interval: number = 5;
  mode: 'fast'|'slow' = 'fast';
  note?: string;
}
declare let cfg: LodestoneConfig;
`

func TestExtractConfigManifest_SampleFromSpec(t *testing.T) {
	manifests, err := ExtractConfigManifest("cfg", sampleConfigSource)
	require.NoError(t, err)
	require.Len(t, manifests, 3)

	interval := manifests[0]
	assert.Equal(t, "cfg|interval", interval.SettingID)
	assert.Equal(t, ValueFloat, interval.ValueType)
	assert.Equal(t, 5.0, interval.Default)
	assert.True(t, interval.IsRequired)
	assert.Equal(t, "Tick interval in seconds", interval.Description)

	mode := manifests[1]
	assert.Equal(t, "cfg|mode", mode.SettingID)
	assert.Equal(t, ValueEnum, mode.ValueType)
	assert.Equal(t, []string{"fast", "slow"}, mode.EnumOptions)
	assert.Equal(t, "fast", mode.Default)
	assert.True(t, mode.IsRequired)
	assert.Empty(t, mode.Description)

	note := manifests[2]
	assert.Equal(t, "cfg|note", note.SettingID)
	assert.Equal(t, ValueString, note.ValueType)
	assert.False(t, note.IsRequired)
	assert.Empty(t, note.Description)
}

func TestExtractConfigManifest_NoClassIsVacuouslyValid(t *testing.T) {
	manifests, err := ExtractConfigManifest("cfg", "console.log('hi');")
	require.NoError(t, err)
	assert.Empty(t, manifests)
}

func TestExtractConfigManifest_ClassWithoutVarDeclIsError(t *testing.T) {
	_, err := ExtractConfigManifest("cfg", `class LodestoneConfig { x: number = 1; }`)
	assert.Error(t, err)
}

func TestExtractConfigManifest_VarDeclWithoutClassIsError(t *testing.T) {
	_, err := ExtractConfigManifest("cfg", `declare let cfg: LodestoneConfig;`)
	assert.Error(t, err)
}

func TestExtractConfigManifest_RequiredFieldWithoutDefaultIsError(t *testing.T) {
	src := `
class LodestoneConfig {
  missing: number;
}
declare let cfg: LodestoneConfig;
`
	_, err := ExtractConfigManifest("cfg", src)
	assert.Error(t, err)
}

func TestExtractConfigManifest_UnsupportedTypeIsError(t *testing.T) {
	src := `
class LodestoneConfig {
  weird: SomeObject = null;
}
declare let cfg: LodestoneConfig;
`
	_, err := ExtractConfigManifest("cfg", src)
	assert.Error(t, err)
}
