package app

import (
	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
	"github.com/lodestone-core/lodestone/internal/event"
	"github.com/lodestone-core/lodestone/internal/manifest"
)

// argString pulls a required string field out of a ProcedureCall's args,
// failing BadRequest with the field name when absent or the wrong type.
func argString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", coreerrors.BadRequestError(key, "missing required argument")
	}
	s, ok := v.(string)
	if !ok {
		return "", coreerrors.BadRequestError(key, "expected a string")
	}
	return s, nil
}

// causedByFromArgs builds the CausedBy a macro's calls are attributed to:
// the instance that hosts it unless an explicit player cause was supplied
// (in-chat macro commands attribute to the issuing player).
func causedByFromArgs(args map[string]interface{}) event.CausedBy {
	if uid, ok := args["caused_by_user_id"].(string); ok && uid != "" {
		username, _ := args["caused_by_username"].(string)
		return event.ByUser(uid, username)
	}
	if uuid, ok := args["instance_uuid"].(string); ok {
		return event.ByInstance(uuid)
	}
	return event.ByUnknown()
}

// manifestValueFromArg turns a loosely-typed JSON value (as decoded from a
// goja call, where every number is a float64) into a *manifest.Value typed
// per the setting's declared kind, or nil for an explicit unset.
func manifestValueFromArg(raw interface{}, kind manifest.ValueKind) *manifest.Value {
	if raw == nil {
		return nil
	}

	switch kind {
	case manifest.KindInteger:
		if f, ok := raw.(float64); ok {
			v := manifest.IntValue(int64(f))
			return &v
		}
	case manifest.KindUnsignedInteger:
		if f, ok := raw.(float64); ok {
			v := manifest.UintValue(uint64(f))
			return &v
		}
	case manifest.KindFloat:
		if f, ok := raw.(float64); ok {
			v := manifest.FloatValue(f)
			return &v
		}
	case manifest.KindBoolean:
		if b, ok := raw.(bool); ok {
			v := manifest.BoolValue(b)
			return &v
		}
	case manifest.KindEnum:
		if s, ok := raw.(string); ok {
			v := manifest.EnumValue(s)
			return &v
		}
	case manifest.KindString:
		if s, ok := raw.(string); ok {
			v := manifest.StringValue(s)
			return &v
		}
	}
	return nil
}
