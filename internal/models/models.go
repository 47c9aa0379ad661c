// Package models defines the core data structures for the BabyNest assistant.
//
// It includes the conversation message model, dialog state machine types,
// structured actions, and the result types shared across modules.
package models

import (
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks a message written by the user.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the assistant.
	RoleAssistant Role = "assistant"
)

// IsValidRole checks if the given role is supported.
func IsValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Message is a single conversation entry. Messages form an append-only,
// ordered sequence; insertion order is the conversation order and is used to
// reconstruct model prompts.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DialogStatus describes the lifecycle state of a dialog session.
type DialogStatus string

const (
	// DialogStatusActive marks a dialog still collecting slots.
	DialogStatusActive DialogStatus = "active"
	// DialogStatusCompleted marks a dialog confirmed by the user.
	DialogStatusCompleted DialogStatus = "completed"
	// DialogStatusCancelled marks a dialog declined by the user.
	DialogStatusCancelled DialogStatus = "cancelled"
	// DialogStatusTimeout marks a dialog that ran out of turns or went stale.
	DialogStatusTimeout DialogStatus = "timeout"
)

// IsTerminal reports whether the status never transitions further.
func (s DialogStatus) IsTerminal() bool {
	switch s {
	case DialogStatusCompleted, DialogStatusCancelled, DialogStatusTimeout:
		return true
	default:
		return false
	}
}

// DialogTemplate is the static, read-only description of a slot-filling
// intent: which slots to collect, how to ask for them, and how to confirm.
type DialogTemplate struct {
	Intent              string              `json:"intent"`
	Action              ActionType          `json:"action"`
	RequiredSlots       []string            `json:"required_slots"`
	OptionalSlots       []string            `json:"optional_slots,omitempty"`
	SlotQuestions       map[string]string   `json:"slot_questions"`
	QuickReplies        map[string][]string `json:"quick_replies,omitempty"`
	ConfirmationMessage string              `json:"confirmation_message"`
	MaxTurns            int                 `json:"max_turns"`
}

// Validate checks the template invariants. Every required slot must have a
// corresponding question, otherwise the dialog could never prompt for it.
func (t *DialogTemplate) Validate() error {
	if t.Intent == "" {
		return ErrEmptyIntent
	}
	if len(t.RequiredSlots) == 0 {
		return ErrNoRequiredSlots
	}
	if t.MaxTurns <= 0 {
		return ErrInvalidMaxTurns
	}
	for _, slot := range t.RequiredSlots {
		if _, ok := t.SlotQuestions[slot]; !ok {
			return ErrMissingSlotQuestion
		}
	}
	return nil
}

// DialogState is the per-user state of an in-flight slot-filling dialog.
// At most one exists per user; it is mutated only by the dialog manager and
// moved into conversation memory once it reaches a terminal status.
type DialogState struct {
	Intent       string              `json:"intent"`
	Template     *DialogTemplate     `json:"-"`
	Slots        map[string]any      `json:"slots"`
	FilledSlots  map[string]struct{} `json:"filled_slots"`
	CurrentTurn  int                 `json:"current_turn"`
	MaxTurns     int                 `json:"max_turns"`
	Status       DialogStatus        `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	LastActivity time.Time           `json:"last_activity"`
	EndedAt      time.Time           `json:"ended_at,omitempty"`
}

// PendingFollowUp bridges dialog turns across independent request cycles.
// At most one exists per session; it is owned exclusively by the
// conversation context and lives for a single multi-turn exchange.
type PendingFollowUp struct {
	Intent        string         `json:"intent"`
	PartialData   map[string]any `json:"partial_data"`
	MissingFields []string       `json:"missing_fields"`
}

// DialogResponse is the outcome of feeding one user turn into an active
// dialog: either a re-prompt for the next missing slot, a confirmation
// request, a completed action, or a terminal notice.
type DialogResponse struct {
	Message          string         `json:"message"`
	RequiresFollowUp bool           `json:"requires_follow_up"`
	Intent           string         `json:"intent,omitempty"`
	PartialData      map[string]any `json:"partial_data,omitempty"`
	MissingFields    []string       `json:"missing_fields,omitempty"`
	QuickReplies     []string       `json:"quick_replies,omitempty"`
	Confirmation     bool           `json:"confirmation,omitempty"`
	TimedOut         bool           `json:"timed_out,omitempty"`
	Cancelled        bool           `json:"cancelled,omitempty"`
	Action           *Action        `json:"action,omitempty"`
}

// AssistantResult is the top-level outcome of resolving one inbound user
// message, regardless of which stage of the resolution chain produced it.
type AssistantResult struct {
	Message          string         `json:"message"`
	Intent           string         `json:"intent,omitempty"`
	Source           string         `json:"source,omitempty"`
	RequiresFollowUp bool           `json:"requires_follow_up"`
	PartialData      map[string]any `json:"partial_data,omitempty"`
	MissingFields    []string       `json:"missing_fields,omitempty"`
	QuickReplies     []string       `json:"quick_replies,omitempty"`
	Action           *Action        `json:"action,omitempty"`
	ActionResult     *ActionResult  `json:"action_result,omitempty"`
	Navigate         string         `json:"navigate,omitempty"`
}

// Resolution chain stage names recorded in AssistantResult.Source.
const (
	SourceFollowUp = "followup"
	SourceRAG      = "rag"
	SourceRemote   = "remote"
	SourceLocal    = "local"
	SourceFallback = "fallback"
)
