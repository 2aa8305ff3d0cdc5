// Package event implements the core's event fabric: the tagged event model,
// the broadcast bus (bus.go), and the bounded ring buffers (ring.go).
package event

import (
	"time"

	"github.com/lodestone-core/lodestone/internal/id"
)

// Level is the severity implicitly derived from an event's inner variant.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARNING"
	LevelError Level = "ERROR"
)

// CausedByKind discriminates the CausedBy tagged union.
type CausedByKind string

const (
	CausedByUser     CausedByKind = "USER"
	CausedByInstance CausedByKind = "INSTANCE"
	CausedByMacro    CausedByKind = "MACRO"
	CausedBySystem   CausedByKind = "SYSTEM"
	CausedByUnknown  CausedByKind = "UNKNOWN"
)

// CausedBy records the provenance of a state-changing action.
type CausedBy struct {
	Kind     CausedByKind `json:"kind"`
	UserId   string       `json:"uid,omitempty"`
	Username string       `json:"username,omitempty"`
	Instance string       `json:"instance_uuid,omitempty"`
	Pid      id.MacroPid  `json:"pid,omitempty"`
}

// ByUser builds a CausedBy attributing the action to a human user.
func ByUser(uid, username string) CausedBy {
	return CausedBy{Kind: CausedByUser, UserId: uid, Username: username}
}

// ByInstance builds a CausedBy attributing the action to an instance itself.
func ByInstance(uuid string) CausedBy {
	return CausedBy{Kind: CausedByInstance, Instance: uuid}
}

// ByMacro builds a CausedBy attributing the action to a running macro.
func ByMacro(pid id.MacroPid) CausedBy {
	return CausedBy{Kind: CausedByMacro, Pid: pid}
}

// BySystem attributes the action to the core itself.
func BySystem() CausedBy { return CausedBy{Kind: CausedBySystem} }

// ByUnknown attributes the action to an unidentified caller.
func ByUnknown() CausedBy { return CausedBy{Kind: CausedByUnknown} }

// InnerKind discriminates the Event.event_inner tagged union.
type InnerKind string

const (
	KindInstance    InnerKind = "INSTANCE"
	KindUser        InnerKind = "USER"
	KindMacro       InnerKind = "MACRO"
	KindProgression InnerKind = "PROGRESSION"
	KindFS          InnerKind = "FS"
)

// InstanceEventVariant discriminates the kinds of events an instance emits.
type InstanceEventVariant string

const (
	InstanceStateTransition InstanceEventVariant = "STATE_TRANSITION"
	InstanceWarning         InstanceEventVariant = "WARNING"
	InstanceError           InstanceEventVariant = "ERROR"
	InstanceInput           InstanceEventVariant = "INPUT"
	InstanceOutput          InstanceEventVariant = "OUTPUT"
	InstanceSystemMessage   InstanceEventVariant = "SYSTEM_MESSAGE"
	InstancePlayerChange    InstanceEventVariant = "PLAYER_CHANGE"
	InstancePlayerMessage   InstanceEventVariant = "PLAYER_MESSAGE"
)

// State is the instance lifecycle state.
type State string

const (
	StateStarting State = "STARTING"
	StateRunning  State = "RUNNING"
	StateStopping State = "STOPPING"
	StateStopped  State = "STOPPED"
	StateError    State = "ERROR"
)

// InstanceEventInner carries the variant-specific payload for an InstanceEvent.
type InstanceEventInner struct {
	Variant InstanceEventVariant `json:"variant"`

	// STATE_TRANSITION
	From State `json:"from,omitempty"`
	To   State `json:"to,omitempty"`

	// WARNING / ERROR / SYSTEM_MESSAGE / INPUT / OUTPUT / PLAYER_MESSAGE
	Message string `json:"message,omitempty"`

	// PLAYER_MESSAGE
	PlayerName string `json:"player_name,omitempty"`

	// PLAYER_CHANGE
	Players []Player `json:"players,omitempty"`
	Joined  []Player `json:"joined,omitempty"`
	Left    []Player `json:"left,omitempty"`
}

// Player is a roster entry; equality is by UUID when present, else by name.
type Player struct {
	Name string  `json:"name"`
	UUID *string `json:"uuid,omitempty"`
}

// Equal compares two players per the roster's equality rule.
func (p Player) Equal(o Player) bool {
	if p.UUID != nil && o.UUID != nil {
		return *p.UUID == *o.UUID
	}
	return p.Name == o.Name
}

// InstanceEvent is the InstanceEvent variant of Event.event_inner.
type InstanceEvent struct {
	InstanceUuid string              `json:"instance_uuid"`
	InstanceName string              `json:"instance_name"`
	Inner        InstanceEventInner  `json:"inner"`
}

// UserEventVariant discriminates user lifecycle events.
type UserEventVariant string

const (
	UserCreated         UserEventVariant = "CREATED"
	UserDeleted         UserEventVariant = "DELETED"
	UserLoggedOut       UserEventVariant = "LOGGED_OUT"
	UserPermissionsChanged UserEventVariant = "PERMISSIONS_CHANGED"
)

// UserEvent is the UserEvent variant of Event.event_inner.
type UserEvent struct {
	UserId  string           `json:"uid"`
	Variant UserEventVariant `json:"variant"`
}

// MacroEventVariant discriminates macro lifecycle events.
type MacroEventVariant string

const (
	MacroStarted            MacroEventVariant = "STARTED"
	MacroStopped            MacroEventVariant = "STOPPED"
	MacroDetach             MacroEventVariant = "DETACH"
	MacroMainModuleExecuted MacroEventVariant = "MAIN_MODULE_EXECUTED"
)

// ExitStatusKind discriminates the Stopped variant's exit status.
type ExitStatusKind string

const (
	ExitSuccess ExitStatusKind = "SUCCESS"
	ExitKilled  ExitStatusKind = "KILLED"
	ExitError   ExitStatusKind = "ERROR"
)

// ExitStatus is the terminal status of a macro task.
type ExitStatus struct {
	Kind ExitStatusKind `json:"kind"`
	// Msg is populated only when Kind == ExitError.
	Msg string `json:"msg,omitempty"`
}

// MacroEvent is the MacroEvent variant of Event.event_inner.
type MacroEvent struct {
	Pid          id.MacroPid       `json:"pid"`
	InstanceUuid string            `json:"instance_uuid,omitempty"`
	Variant      MacroEventVariant `json:"variant"`
	ExitStatus   *ExitStatus       `json:"exit_status,omitempty"`
}

// ProgressionEventVariant discriminates progression stages.
type ProgressionEventVariant string

const (
	ProgressionStart  ProgressionEventVariant = "START"
	ProgressionUpdate ProgressionEventVariant = "UPDATE"
	ProgressionEnd    ProgressionEventVariant = "END"
)

// ProgressionEvent is the ProgressionEvent variant of Event.event_inner. The
// ProgressionId threads start/update/end events of the same task together.
type ProgressionEvent struct {
	ProgressionId string                  `json:"progression_id"`
	Variant       ProgressionEventVariant `json:"variant"`
	Message       string                  `json:"message,omitempty"`
	Progress      float64                 `json:"progress,omitempty"`
	Total         float64                 `json:"total,omitempty"`
	Success       *bool                   `json:"success,omitempty"`
}

// FSEvent is the FSEvent variant of Event.event_inner.
type FSEvent struct {
	Path      string `json:"path"`
	Operation string `json:"operation"`
}

// Event is the core's single wire/storage event envelope. Exactly one of
// Instance/User/Macro/Progression/FS is populated, selected by Kind.
type Event struct {
	Snowflake  id.Snowflake `json:"snowflake"`
	Kind       InnerKind    `json:"event_inner_kind"`
	CausedBy   CausedBy     `json:"caused_by"`
	Timestamp  time.Time    `json:"timestamp"`

	Instance    *InstanceEvent    `json:"instance_event,omitempty"`
	User        *UserEvent        `json:"user_event,omitempty"`
	Macro       *MacroEvent       `json:"macro_event,omitempty"`
	Progression *ProgressionEvent `json:"progression_event,omitempty"`
	FS          *FSEvent          `json:"fs_event,omitempty"`
}

// Level derives the event's severity from its inner variant and, for macro
// events, the exit status.
func (e Event) Level() Level {
	switch e.Kind {
	case KindInstance:
		if e.Instance == nil {
			return LevelInfo
		}
		switch e.Instance.Inner.Variant {
		case InstanceWarning:
			return LevelWarn
		case InstanceError:
			return LevelError
		default:
			return LevelInfo
		}
	case KindMacro:
		if e.Macro != nil && e.Macro.Variant == MacroStopped && e.Macro.ExitStatus != nil {
			switch e.Macro.ExitStatus.Kind {
			case ExitError:
				return LevelError
			case ExitKilled:
				return LevelWarn
			}
		}
		return LevelInfo
	default:
		return LevelInfo
	}
}

// NewInstanceEvent builds an Event wrapping an InstanceEvent.
func NewInstanceEvent(gen *id.Generator, uuid, name string, inner InstanceEventInner, causedBy CausedBy) Event {
	return Event{
		Snowflake: nextID(gen),
		Kind:      KindInstance,
		CausedBy:  causedBy,
		Timestamp: time.Now(),
		Instance: &InstanceEvent{
			InstanceUuid: uuid,
			InstanceName: name,
			Inner:        inner,
		},
	}
}

// NewUserEvent builds an Event wrapping a UserEvent.
func NewUserEvent(gen *id.Generator, uid string, variant UserEventVariant, causedBy CausedBy) Event {
	return Event{
		Snowflake: nextID(gen),
		Kind:      KindUser,
		CausedBy:  causedBy,
		Timestamp: time.Now(),
		User:      &UserEvent{UserId: uid, Variant: variant},
	}
}

// NewMacroEvent builds an Event wrapping a MacroEvent.
func NewMacroEvent(gen *id.Generator, pid id.MacroPid, instanceUUID string, variant MacroEventVariant, exit *ExitStatus, causedBy CausedBy) Event {
	return Event{
		Snowflake: nextID(gen),
		Kind:      KindMacro,
		CausedBy:  causedBy,
		Timestamp: time.Now(),
		Macro: &MacroEvent{
			Pid:          pid,
			InstanceUuid: instanceUUID,
			Variant:      variant,
			ExitStatus:   exit,
		},
	}
}

// NewProgressionEvent builds an Event wrapping a ProgressionEvent.
func NewProgressionEvent(gen *id.Generator, progressionID string, variant ProgressionEventVariant, causedBy CausedBy) Event {
	return Event{
		Snowflake: nextID(gen),
		Kind:      KindProgression,
		CausedBy:  causedBy,
		Timestamp: time.Now(),
		Progression: &ProgressionEvent{
			ProgressionId: progressionID,
			Variant:       variant,
		},
	}
}

// NewFSEvent builds an Event wrapping an FSEvent.
func NewFSEvent(gen *id.Generator, path, operation string, causedBy CausedBy) Event {
	return Event{
		Snowflake: nextID(gen),
		Kind:      KindFS,
		CausedBy:  causedBy,
		Timestamp: time.Now(),
		FS:        &FSEvent{Path: path, Operation: operation},
	}
}

func nextID(gen *id.Generator) id.Snowflake {
	if gen == nil {
		return id.Next()
	}
	return gen.Next()
}

// IsConsoleMessage reports whether this event belongs on an instance's
// per-instance console ring buffer: output, player message, or system
// message variants.
func (e Event) IsConsoleMessage() bool {
	if e.Kind != KindInstance || e.Instance == nil {
		return false
	}
	switch e.Instance.Inner.Variant {
	case InstanceOutput, InstancePlayerMessage, InstanceSystemMessage:
		return true
	default:
		return false
	}
}
