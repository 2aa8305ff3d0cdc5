package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
)

func buildTestManifest() *Manifest {
	m := New()
	section := NewSection("network")
	min := 1024.0
	max := 65535.0
	section.Add(Setting{
		SettingID:  "network|port",
		Name:       "port",
		ValueType:  ValueType{Kind: KindInteger, Min: &min, Max: &max},
		IsMutable:  true,
		IsRequired: true,
	})
	section.Add(Setting{
		SettingID:  "network|motd",
		Name:       "motd",
		ValueType:  ValueType{Kind: KindString},
		IsMutable:  false,
		IsRequired: false,
	})
	section.Add(Setting{
		SettingID:  "network|difficulty",
		Name:       "difficulty",
		ValueType:  ValueType{Kind: KindEnum, Options: []string{"easy", "normal", "hard"}},
		IsMutable:  true,
		IsRequired: true,
	})
	m.AddSection(section)
	return m
}

func TestUpdateValue_NotFoundSection(t *testing.T) {
	m := buildTestManifest()
	err := m.UpdateValue("missing", "network|port", nil)
	ce := coreerrors.GetCoreError(err)
	require.NotNil(t, ce)
	assert.Equal(t, coreerrors.NotFound, ce.Kind)
}

func TestUpdateValue_NotFoundSetting(t *testing.T) {
	m := buildTestManifest()
	err := m.UpdateValue("network", "network|nonexistent", nil)
	ce := coreerrors.GetCoreError(err)
	require.NotNil(t, ce)
	assert.Equal(t, coreerrors.NotFound, ce.Kind)
}

func TestUpdateValue_NotMutable(t *testing.T) {
	m := buildTestManifest()
	v := StringValue("hello")
	err := m.UpdateValue("network", "network|motd", &v)
	ce := coreerrors.GetCoreError(err)
	require.NotNil(t, ce)
	assert.Equal(t, coreerrors.BadRequest, ce.Kind)
}

func TestUpdateValue_TypeMismatch(t *testing.T) {
	m := buildTestManifest()
	v := StringValue("not a number")
	err := m.UpdateValue("network", "network|port", &v)
	ce := coreerrors.GetCoreError(err)
	require.NotNil(t, ce)
	assert.Equal(t, coreerrors.BadRequest, ce.Kind)
}

func TestUpdateValue_OutOfBounds(t *testing.T) {
	m := buildTestManifest()
	v := IntValue(80)
	err := m.UpdateValue("network", "network|port", &v)
	ce := coreerrors.GetCoreError(err)
	require.NotNil(t, ce)
	assert.Equal(t, coreerrors.BadRequest, ce.Kind)
}

func TestUpdateValue_EnumRejectsUnknownOption(t *testing.T) {
	m := buildTestManifest()
	v := EnumValue("impossible")
	err := m.UpdateValue("network", "network|difficulty", &v)
	require.Error(t, err)
}

func TestUpdateValue_Success(t *testing.T) {
	m := buildTestManifest()
	v := IntValue(25565)
	require.NoError(t, m.UpdateValue("network", "network|port", &v))

	section, ok := m.Section("network")
	require.True(t, ok)
	setting, ok := section.Get("network|port")
	require.True(t, ok)
	require.NotNil(t, setting.Value)
	assert.Equal(t, int64(25565), setting.Value.Int)
}

func TestUpdateValue_UnsetRequiredRejected(t *testing.T) {
	m := buildTestManifest()
	err := m.UpdateValue("network", "network|port", nil)
	require.Error(t, err)
}

func TestUpdateValue_UnsetOptionalAllowed(t *testing.T) {
	m := buildTestManifest()
	v := StringValue("placeholder")
	section, _ := m.Section("network")
	setting, _ := section.Get("network|motd")
	setting.IsMutable = true
	require.NoError(t, m.UpdateValue("network", "network|motd", &v))
	require.NoError(t, m.UpdateValue("network", "network|motd", nil))
	setting, _ = section.Get("network|motd")
	assert.Nil(t, setting.Value)
}

func TestValidateSetup_UnknownSettingRejected(t *testing.T) {
	m := buildTestManifest()
	setup := SetupValue{"network": {"network|ghost": IntValue(1)}}
	err := m.ValidateSetup(setup)
	require.Error(t, err)
}

func TestValidateSetup_AllValid(t *testing.T) {
	m := buildTestManifest()
	setup := SetupValue{
		"network": {
			"network|port":       IntValue(25565),
			"network|difficulty": EnumValue("hard"),
		},
	}
	require.NoError(t, m.ValidateSetup(setup))
	m.ApplySetup(setup)

	section, _ := m.Section("network")
	port, _ := section.Get("network|port")
	require.NotNil(t, port.Value)
	assert.Equal(t, int64(25565), port.Value.Int)
}

func TestSectionsPreserveDeclarationOrder(t *testing.T) {
	m := New()
	m.AddSection(NewSection("b"))
	m.AddSection(NewSection("a"))
	m.AddSection(NewSection("c"))

	var names []string
	for _, s := range m.Sections() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"b", "a", "c"}, names)
}
