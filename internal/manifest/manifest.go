// Package manifest implements the per-instance ConfigurableManifest model
// (§3, §4.7): an ordered collection of named sections, each an ordered map
// of typed settings, with validation on every mutation. Grounded on the
// teacher's macro.SettingManifest shape (internal/macro/config_manifest.go)
// generalized from a flat field list to sectioned settings with bounds.
package manifest

import (
	"fmt"
	"regexp"

	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
)

// ValueKind discriminates the ConfigurableValue tagged union.
type ValueKind string

const (
	KindString          ValueKind = "STRING"
	KindInteger         ValueKind = "INTEGER"
	KindUnsignedInteger ValueKind = "UNSIGNED_INTEGER"
	KindFloat           ValueKind = "FLOAT"
	KindBoolean         ValueKind = "BOOLEAN"
	KindEnum            ValueKind = "ENUM"
)

// Value is one concrete ConfigurableValue. Exactly the field matching Kind
// is meaningful.
type Value struct {
	Kind   ValueKind `json:"kind"`
	Str    string    `json:"string_value,omitempty"`
	Int    int64     `json:"int_value,omitempty"`
	Uint   uint64    `json:"uint_value,omitempty"`
	Float  float64   `json:"float_value,omitempty"`
	Bool   bool      `json:"bool_value,omitempty"`
	Enum   string    `json:"enum_value,omitempty"`
}

func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func IntValue(i int64) Value      { return Value{Kind: KindInteger, Int: i} }
func UintValue(u uint64) Value    { return Value{Kind: KindUnsignedInteger, Uint: u} }
func FloatValue(f float64) Value  { return Value{Kind: KindFloat, Float: f} }
func BoolValue(b bool) Value      { return Value{Kind: KindBoolean, Bool: b} }
func EnumValue(s string) Value    { return Value{Kind: KindEnum, Enum: s} }

// String renders whichever field is meaningful for Kind, for writing config
// files (e.g. server.properties) back out.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInteger:
		return fmt.Sprintf("%d", v.Int)
	case KindUnsignedInteger:
		return fmt.Sprintf("%d", v.Uint)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindBoolean:
		return fmt.Sprintf("%t", v.Bool)
	case KindEnum:
		return v.Enum
	default:
		return ""
	}
}

// ValueType is the declared type of a setting: its kind plus whichever
// bounds apply (regex for strings, min/max for numerics, options for enums).
type ValueType struct {
	Kind ValueKind `json:"kind"`

	Regex string `json:"regex,omitempty"`

	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	Options []string `json:"options,omitempty"`
}

// Validate reports whether v satisfies t's kind and bounds/regex/options.
func (t ValueType) Validate(v Value) error {
	if v.Kind != t.Kind {
		return fmt.Errorf("value kind %s does not match declared type %s", v.Kind, t.Kind)
	}
	switch t.Kind {
	case KindString:
		if t.Regex != "" {
			re, err := regexp.Compile(t.Regex)
			if err != nil {
				return fmt.Errorf("invalid regex %q on setting type: %w", t.Regex, err)
			}
			if !re.MatchString(v.Str) {
				return fmt.Errorf("value %q does not match pattern %q", v.Str, t.Regex)
			}
		}
	case KindInteger:
		f := float64(v.Int)
		if t.Min != nil && f < *t.Min {
			return fmt.Errorf("value %d is below minimum %v", v.Int, *t.Min)
		}
		if t.Max != nil && f > *t.Max {
			return fmt.Errorf("value %d is above maximum %v", v.Int, *t.Max)
		}
	case KindUnsignedInteger:
		f := float64(v.Uint)
		if t.Min != nil && f < *t.Min {
			return fmt.Errorf("value %d is below minimum %v", v.Uint, *t.Min)
		}
		if t.Max != nil && f > *t.Max {
			return fmt.Errorf("value %d is above maximum %v", v.Uint, *t.Max)
		}
	case KindFloat:
		if t.Min != nil && v.Float < *t.Min {
			return fmt.Errorf("value %v is below minimum %v", v.Float, *t.Min)
		}
		if t.Max != nil && v.Float > *t.Max {
			return fmt.Errorf("value %v is above maximum %v", v.Float, *t.Max)
		}
	case KindBoolean:
		// no bounds
	case KindEnum:
		ok := false
		for _, opt := range t.Options {
			if opt == v.Enum {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("value %q is not one of %v", v.Enum, t.Options)
		}
	}
	return nil
}

// Setting is one named field of a section, per §3.
type Setting struct {
	SettingID   string    `json:"setting_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Value       *Value    `json:"value"`
	ValueType   ValueType `json:"value_type"`
	Default     *Value    `json:"default_value"`
	IsRequired  bool      `json:"is_required"`
	IsMutable   bool      `json:"is_mutable"`
	IsSecret    bool      `json:"is_secret"`
}

// Section is an ordered map of settings, keyed by SettingID but iterated in
// declaration order.
type Section struct {
	Name     string     `json:"name"`
	order    []string   // setting ids in declaration order
	settings map[string]*Setting
}

// NewSection builds an empty, named Section.
func NewSection(name string) *Section {
	return &Section{Name: name, settings: make(map[string]*Setting)}
}

// Add appends a setting to the section in declaration order.
func (s *Section) Add(setting Setting) {
	if _, exists := s.settings[setting.SettingID]; !exists {
		s.order = append(s.order, setting.SettingID)
	}
	cp := setting
	s.settings[setting.SettingID] = &cp
}

// Get returns the setting with the given id, if present.
func (s *Section) Get(settingID string) (*Setting, bool) {
	st, ok := s.settings[settingID]
	return st, ok
}

// Settings returns every setting in declaration order.
func (s *Section) Settings() []*Setting {
	out := make([]*Setting, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.settings[id])
	}
	return out
}

// Manifest is the per-instance ordered collection of named sections.
type Manifest struct {
	order    []string
	sections map[string]*Section
}

// New builds an empty Manifest.
func New() *Manifest {
	return &Manifest{sections: make(map[string]*Section)}
}

// AddSection appends a section in declaration order, replacing any existing
// section of the same name.
func (m *Manifest) AddSection(s *Section) {
	if _, exists := m.sections[s.Name]; !exists {
		m.order = append(m.order, s.Name)
	}
	m.sections[s.Name] = s
}

// Section returns the named section, if present.
func (m *Manifest) Section(name string) (*Section, bool) {
	s, ok := m.sections[name]
	return s, ok
}

// Sections returns every section in declaration order.
func (m *Manifest) Sections() []*Section {
	out := make([]*Section, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.sections[name])
	}
	return out
}

// lookup resolves (sectionName, settingID) to its Setting, failing NotFound
// if either does not exist.
func (m *Manifest) lookup(sectionName, settingID string) (*Setting, error) {
	section, ok := m.Section(sectionName)
	if !ok {
		return nil, coreerrors.NotFoundError("manifest section", sectionName)
	}
	setting, ok := section.Get(settingID)
	if !ok {
		return nil, coreerrors.NotFoundError("manifest setting", settingID)
	}
	return setting, nil
}

// UpdateValue sets a (section, setting)'s value, enforcing §4.7's
// validation policy: NotFound if the pair doesn't exist, BadRequest if the
// setting isn't mutable, BadRequest with a type-mismatch message if the
// value fails ValueType.Validate, and a None value is only accepted for a
// setting that isn't required.
func (m *Manifest) UpdateValue(sectionName, settingID string, value *Value) error {
	setting, err := m.lookup(sectionName, settingID)
	if err != nil {
		return err
	}
	if !setting.IsMutable {
		return coreerrors.BadRequestError(settingID, "setting is not mutable")
	}
	if value == nil {
		if setting.IsRequired {
			return coreerrors.BadRequestError(settingID, "setting is required and cannot be unset")
		}
		setting.Value = nil
		return nil
	}
	if err := setting.ValueType.Validate(*value); err != nil {
		return coreerrors.BadRequestError(settingID, err.Error())
	}
	v := *value
	setting.Value = &v
	return nil
}

// SetupValue is a caller-supplied (section, setting) -> value map submitted
// at instance-setup time, validated wholesale against a SetupManifest.
type SetupValue map[string]map[string]Value

// ValidateSetup checks every section and setting against m, per §4.7:
// unknown setting ids fail BadRequest, and every present value is validated
// against its declared type.
func (m *Manifest) ValidateSetup(setup SetupValue) error {
	for sectionName, settings := range setup {
		for settingID, value := range settings {
			setting, err := m.lookup(sectionName, settingID)
			if err != nil {
				return coreerrors.BadRequestError(settingID, fmt.Sprintf("unknown setting in section %q", sectionName))
			}
			if err := setting.ValueType.Validate(value); err != nil {
				return coreerrors.BadRequestError(settingID, err.Error())
			}
		}
	}
	return nil
}

// ApplySetup writes every value in setup into m without re-validating
// mutability (setup runs before the instance is Running, so IsMutable does
// not yet apply); callers should call ValidateSetup first.
func (m *Manifest) ApplySetup(setup SetupValue) {
	for sectionName, settings := range setup {
		section, ok := m.Section(sectionName)
		if !ok {
			continue
		}
		for settingID, value := range settings {
			if setting, ok := section.Get(settingID); ok {
				v := value
				setting.Value = &v
			}
		}
	}
}
