package event

import "time"

// TimeRange bounds a Filter's time_range field (§6 event filter query).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Filter is the server-side event filter consulted by the buffer, search,
// and stream routes (§6): an event passes iff every specified field
// matches. A nil/zero field is unconstrained.
type Filter struct {
	EventLevels           []Level           `json:"event_levels,omitempty"`
	EventTypes            []InnerKind       `json:"event_types,omitempty"`
	InstanceEventTypes    []InstanceEventVariant `json:"instance_event_types,omitempty"`
	UserEventTypes        []UserEventVariant     `json:"user_event_types,omitempty"`
	MacroEventTypes       []MacroEventVariant    `json:"macro_event_types,omitempty"`
	EventUserIds          []string          `json:"event_user_ids,omitempty"`
	EventInstanceIds      []string          `json:"event_instance_ids,omitempty"`
	BearerToken           string            `json:"bearer_token,omitempty"`
	TimeRange             *TimeRange        `json:"time_range,omitempty"`
}

// Matches reports whether ev passes every constrained field of f.
func (f Filter) Matches(ev Event) bool {
	if len(f.EventLevels) > 0 && !containsLevel(f.EventLevels, ev.Level()) {
		return false
	}
	if len(f.EventTypes) > 0 && !containsKind(f.EventTypes, ev.Kind) {
		return false
	}
	if len(f.InstanceEventTypes) > 0 {
		if ev.Instance == nil || !containsInstanceVariant(f.InstanceEventTypes, ev.Instance.Inner.Variant) {
			return false
		}
	}
	if len(f.UserEventTypes) > 0 {
		if ev.User == nil || !containsUserVariant(f.UserEventTypes, ev.User.Variant) {
			return false
		}
	}
	if len(f.MacroEventTypes) > 0 {
		if ev.Macro == nil || !containsMacroVariant(f.MacroEventTypes, ev.Macro.Variant) {
			return false
		}
	}
	if len(f.EventUserIds) > 0 {
		if ev.CausedBy.Kind != CausedByUser || !containsString(f.EventUserIds, ev.CausedBy.UserId) {
			return false
		}
	}
	if len(f.EventInstanceIds) > 0 {
		uuid := ""
		switch {
		case ev.Instance != nil:
			uuid = ev.Instance.InstanceUuid
		case ev.Macro != nil:
			uuid = ev.Macro.InstanceUuid
		}
		if uuid == "" || !containsString(f.EventInstanceIds, uuid) {
			return false
		}
	}
	if f.TimeRange != nil {
		if !f.TimeRange.Start.IsZero() && ev.Timestamp.Before(f.TimeRange.Start) {
			return false
		}
		if !f.TimeRange.End.IsZero() && ev.Timestamp.After(f.TimeRange.End) {
			return false
		}
	}
	return true
}

func containsLevel(xs []Level, v Level) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsKind(xs []InnerKind, v InnerKind) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsInstanceVariant(xs []InstanceEventVariant, v InstanceEventVariant) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsUserVariant(xs []UserEventVariant, v UserEventVariant) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsMacroVariant(xs []MacroEventVariant, v MacroEventVariant) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
