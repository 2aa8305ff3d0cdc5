package macro

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ValueKind discriminates the ConfigurableValueType variants a macro config
// field can declare.
type ValueKind string

const (
	ValueString  ValueKind = "STRING"
	ValueFloat   ValueKind = "FLOAT"
	ValueBoolean ValueKind = "BOOLEAN"
	ValueEnum    ValueKind = "ENUM"
)

// SettingManifest is one field of a LodestoneConfig class, turned into a
// configurable-manifest setting.
type SettingManifest struct {
	SettingID   string    `json:"setting_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ValueType   ValueKind `json:"value_type"`
	EnumOptions []string  `json:"enum_options,omitempty"`
	Default     interface{} `json:"default_value"`
	IsRequired  bool      `json:"is_required"`
}

var (
	classDeclRe = regexp.MustCompile(`class\s+LodestoneConfig\s*\{`)
	varDeclRe   = regexp.MustCompile(`(?:declare\s+)?(?:let|var|const)\s+\w+\s*:\s*LodestoneConfig\s*;`)
	fieldRe     = regexp.MustCompile(`^(\w+)(\??)\s*:\s*([^=;]+?)\s*(?:=\s*(.+?))?;?\s*$`)
	enumLiteralRe = regexp.MustCompile(`^'([^']*)'|^"([^"]*)"`)
)

// ExtractConfigManifest scans source for a `LodestoneConfig` class followed
// by a declaration of that type and returns one SettingManifest per field,
// in declaration order. If no LodestoneConfig class appears, returns an
// empty, vacuously valid manifest. If one appears without a matching
// variable declaration, or vice versa, returns a syntax error.
func ExtractConfigManifest(instanceName, source string) ([]SettingManifest, error) {
	classLoc := classDeclRe.FindStringIndex(source)
	hasVarDecl := varDeclRe.MatchString(source)

	switch {
	case classLoc == nil && !hasVarDecl:
		return nil, nil
	case classLoc == nil && hasVarDecl:
		return nil, fmt.Errorf("config manifest: found a LodestoneConfig declaration with no class definition")
	case classLoc != nil && !hasVarDecl:
		return nil, fmt.Errorf("config manifest: found class LodestoneConfig with no matching variable declaration")
	}

	body, err := extractBraceBody(source, classLoc[1]-1)
	if err != nil {
		return nil, fmt.Errorf("config manifest: %w", err)
	}

	return parseFields(instanceName, body)
}

// extractBraceBody returns the contents between the opening brace at index
// openIdx (inclusive of that brace) and its matching close.
func extractBraceBody(source string, openIdx int) (string, error) {
	depth := 0
	start := -1
	for i := openIdx; i < len(source); i++ {
		switch source[i] {
		case '{':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case '}':
			depth--
			if depth == 0 {
				return source[start:i], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated class body")
}

// parseFields splits a class body into statements and comments, attaching
// each statement's preceding comment as its description.
func parseFields(instanceName, body string) ([]SettingManifest, error) {
	var manifests []SettingManifest

	var pendingComment strings.Builder
	var stmt strings.Builder
	inBlockComment := false
	inLineComment := false

	flushStatement := func() error {
		text := strings.TrimSpace(stmt.String())
		stmt.Reset()
		if text == "" {
			return nil
		}
		m, err := parseField(instanceName, text, strings.TrimSpace(pendingComment.String()))
		pendingComment.Reset()
		if err != nil {
			return err
		}
		manifests = append(manifests, m)
		return nil
	}

	lines := strings.Split(body, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inBlockComment {
			end := strings.Index(trimmed, "*/")
			content := trimmed
			if end >= 0 {
				content = trimmed[:end]
				inBlockComment = false
			}
			content = strings.TrimPrefix(content, "*")
			content = strings.TrimSpace(content)
			if content != "" {
				if pendingComment.Len() > 0 {
					pendingComment.WriteString(" ")
				}
				pendingComment.WriteString(content)
			}
			if end >= 0 && len(trimmed) > end+2 {
				line = trimmed[end+2:]
			} else {
				continue
			}
		}
		_ = inLineComment

		if strings.HasPrefix(trimmed, "/**") || strings.HasPrefix(trimmed, "/*") {
			rest := trimmed[strings.Index(trimmed, "/*")+2:]
			if end := strings.Index(rest, "*/"); end >= 0 {
				content := strings.TrimSpace(strings.TrimPrefix(rest[:end], "*"))
				if content != "" {
					pendingComment.Reset()
					pendingComment.WriteString(content)
				}
			} else {
				inBlockComment = true
				pendingComment.Reset()
				content := strings.TrimSpace(strings.TrimPrefix(rest, "*"))
				if content != "" {
					pendingComment.WriteString(content)
				}
			}
			continue
		}

		if strings.HasPrefix(trimmed, "//") {
			content := strings.TrimSpace(strings.TrimPrefix(trimmed, "//"))
			if pendingComment.Len() > 0 {
				pendingComment.WriteString(" ")
			}
			pendingComment.WriteString(content)
			continue
		}

		if trimmed == "" {
			continue
		}

		stmt.WriteString(trimmed)
		if strings.HasSuffix(trimmed, ";") {
			if err := flushStatement(); err != nil {
				return nil, err
			}
		} else {
			stmt.WriteString(" ")
		}
	}
	if err := flushStatement(); err != nil {
		return nil, err
	}

	return manifests, nil
}

// parseField parses a single `IDENT ("?")? ":" TYPE ("=" DEFAULT)?;`
// statement into a SettingManifest.
func parseField(instanceName, stmt, description string) (SettingManifest, error) {
	m := fieldRe.FindStringSubmatch(stmt)
	if m == nil {
		return SettingManifest{}, fmt.Errorf("config manifest: cannot parse field declaration %q", stmt)
	}
	name := m[1]
	optional := m[2] == "?"
	typeStr := strings.TrimSpace(m[3])
	defaultStr := strings.TrimSpace(m[4])

	required := !optional

	sm := SettingManifest{
		SettingID:   instanceName + "|" + name,
		Name:        name,
		Description: description,
		IsRequired:  required,
	}

	switch {
	case typeStr == "string":
		sm.ValueType = ValueString
		if defaultStr != "" {
			sm.Default = unquote(defaultStr)
		}
	case typeStr == "number":
		sm.ValueType = ValueFloat
		if defaultStr != "" {
			f, err := strconv.ParseFloat(defaultStr, 64)
			if err != nil {
				return SettingManifest{}, fmt.Errorf("config manifest: field %q has non-numeric default %q", name, defaultStr)
			}
			sm.Default = f
		}
	case typeStr == "boolean":
		sm.ValueType = ValueBoolean
		if defaultStr != "" {
			sm.Default = defaultStr == "true"
		}
	case strings.Contains(typeStr, "|"):
		options, err := parseEnumOptions(typeStr)
		if err != nil {
			return SettingManifest{}, fmt.Errorf("config manifest: field %q: %w", name, err)
		}
		sm.ValueType = ValueEnum
		sm.EnumOptions = options
		if defaultStr != "" {
			sm.Default = unquote(defaultStr)
		}
	default:
		return SettingManifest{}, fmt.Errorf("config manifest: field %q has unsupported type %q", name, typeStr)
	}

	if !optional && defaultStr == "" {
		return SettingManifest{}, fmt.Errorf("config manifest: field %q is required but has no default", name)
	}

	return sm, nil
}

func parseEnumOptions(typeStr string) ([]string, error) {
	parts := strings.Split(typeStr, "|")
	options := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if !enumLiteralRe.MatchString(p) {
			return nil, fmt.Errorf("non-string-literal union member %q", p)
		}
		options = append(options, unquote(p))
	}
	return options, nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
