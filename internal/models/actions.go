package models

import (
	"time"
)

// ActionType enumerates the structured commands the assistant can execute
// against the backend. The set is closed; anything else is reported as an
// unknown action type at dispatch time since intent extraction can still
// produce arbitrary strings.
type ActionType string

const (
	ActionCreateAppointment   ActionType = "create_appointment"
	ActionUpdateAppointment   ActionType = "update_appointment"
	ActionDeleteAppointment   ActionType = "delete_appointment"
	ActionCreateWeight        ActionType = "create_weight"
	ActionCreateMood          ActionType = "create_mood"
	ActionCreateSleep         ActionType = "create_sleep"
	ActionCreateSymptom       ActionType = "create_symptom"
	ActionCreateMedicine      ActionType = "create_medicine"
	ActionCreateBloodPressure ActionType = "create_blood_pressure"
	ActionQueryStats          ActionType = "query_stats"
	ActionUndoLast            ActionType = "undo_last"
	ActionNavigate            ActionType = "navigate"
)

// IsValidActionType checks if the given action type is part of the closed set.
func IsValidActionType(t ActionType) bool {
	switch t {
	case ActionCreateAppointment, ActionUpdateAppointment, ActionDeleteAppointment,
		ActionCreateWeight, ActionCreateMood, ActionCreateSleep, ActionCreateSymptom,
		ActionCreateMedicine, ActionCreateBloodPressure, ActionQueryStats,
		ActionUndoLast, ActionNavigate:
		return true
	default:
		return false
	}
}

// Action is a structured command: a type plus a free-form payload whose
// required fields are validated by the handler for that type.
type Action struct {
	Type    ActionType     `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Validate checks the action envelope. Payload field requirements are
// handler-specific and checked at dispatch.
func (a *Action) Validate() error {
	if a == nil || a.Type == "" {
		return ErrInvalidAction
	}
	if a.Payload == nil {
		return ErrInvalidAction
	}
	return nil
}

// ActionResult is the structured, always-recoverable outcome of executing an
// action. Network and validation failures surface here as Success=false
// rather than as errors, to keep the chat flow resilient.
type ActionResult struct {
	Success       bool       `json:"success"`
	Message       string     `json:"message"`
	Data          any        `json:"data,omitempty"`
	Error         string     `json:"error,omitempty"`
	ActionType    ActionType `json:"action_type,omitempty"`
	MissingFields []string   `json:"missing_fields,omitempty"`
	Screen        string     `json:"screen,omitempty"`
	UndoneAction  ActionType `json:"undone_action,omitempty"`
}

// ActionLogEntry records one action submission for best-effort undo. Entries
// live in a capped ring; only the most recent one can be marked undone.
type ActionLogEntry struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Action      Action         `json:"action"`
	UserContext map[string]any `json:"user_context,omitempty"`
	Executed    bool           `json:"executed"`
	Undone      bool           `json:"undone"`
}
