// Package dialog implements the per-user multi-turn slot-filling state
// machine driven by a static table of intent templates.
package dialog

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BabyNest/assistant/internal/models"
)

// memoryLimit caps the number of terminal dialogs remembered per user.
const memoryLimit = 20

// confirmationReplies is the fixed suggestion triple offered once every
// required slot is filled.
var confirmationReplies = []string{"Yes, confirm", "No, cancel", "Let me change something"}

// Stats summarizes manager state.
type Stats struct {
	ActiveDialogs int `json:"active_dialogs"`
	TotalUsers    int `json:"total_users"`
	Templates     int `json:"templates"`
}

// Manager owns all active dialog states, partitioned by user id. A user has
// at most one active dialog; terminal dialogs move into a bounded per-user
// memory log.
type Manager struct {
	mu        sync.Mutex
	templates map[string]*models.DialogTemplate
	active    map[string]*models.DialogState
	memory    map[string][]*models.DialogState
}

// NewManager creates a dialog manager with the given templates, or the
// default template table when none are provided.
func NewManager(templates map[string]*models.DialogTemplate) *Manager {
	if templates == nil {
		templates = DefaultTemplates()
	}
	return &Manager{
		templates: templates,
		active:    make(map[string]*models.DialogState),
		memory:    make(map[string][]*models.DialogState),
	}
}

// Template returns the template registered for an intent.
func (m *Manager) Template(intent string) (*models.DialogTemplate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[intent]
	return t, ok
}

// Intents returns the set of registered intent names.
func (m *Manager) Intents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.templates))
	for intent := range m.templates {
		out = append(out, intent)
	}
	return out
}

// StartDialog creates a fresh dialog state for the user. Any prior active
// dialog for the same user is discarded without merging. Initial slot values
// that pass the acceptance rule count as filled.
func (m *Manager) StartDialog(userID, intent string, initialSlots map[string]any) (*models.DialogState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	template, ok := m.templates[intent]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownIntent, intent)
	}

	now := time.Now()
	state := &models.DialogState{
		Intent:       intent,
		Template:     template,
		Slots:        make(map[string]any),
		FilledSlots:  make(map[string]struct{}),
		CurrentTurn:  0,
		MaxTurns:     template.MaxTurns,
		Status:       models.DialogStatusActive,
		CreatedAt:    now,
		LastActivity: now,
	}
	mergeSlots(state, initialSlots)

	if _, exists := m.active[userID]; exists {
		slog.Info("Replacing active dialog with new intent", "userID", userID, "intent", intent)
	}
	m.active[userID] = state
	slog.Debug("Dialog started", "userID", userID, "intent", intent, "initialSlots", len(state.FilledSlots))
	return state, nil
}

// ProcessUserInput advances the user's active dialog by one turn, merging any
// extracted slot values, and returns either a re-prompt for the next missing
// required slot or a confirmation request once all are filled. Exceeding the
// turn budget ends the dialog with timeout status; no partial completion
// credit is given.
func (m *Manager) ProcessUserInput(userID, rawText string, extracted map[string]any) (*models.DialogResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.active[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNoActiveDialog, userID)
	}

	state.LastActivity = time.Now()
	state.CurrentTurn++

	if state.CurrentTurn > state.MaxTurns {
		m.endDialogLocked(userID, models.DialogStatusTimeout)
		slog.Info("Dialog exceeded turn budget", "userID", userID, "intent", state.Intent, "maxTurns", state.MaxTurns)
		return &models.DialogResponse{
			Message:  "This conversation has taken too many turns. Let's start over whenever you're ready.",
			TimedOut: true,
			Intent:   state.Intent,
		}, nil
	}

	mergeSlots(state, extracted)

	missing := missingRequiredSlots(state)
	if len(missing) == 0 {
		return m.confirmationResponseLocked(state), nil
	}
	return m.nextQuestionResponseLocked(state, missing), nil
}

// ConfirmDialog resolves a confirmation-pending dialog. Confirmation produces
// an executable action carrying the accumulated slots and ends the dialog as
// completed; declining ends it as cancelled. Either branch is terminal.
func (m *Manager) ConfirmDialog(userID string, confirmed bool) (*models.DialogResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.active[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNoActiveDialog, userID)
	}

	if !confirmed {
		m.endDialogLocked(userID, models.DialogStatusCancelled)
		slog.Info("Dialog cancelled by user", "userID", userID, "intent", state.Intent)
		return &models.DialogResponse{
			Message:   "No problem, I've cancelled that.",
			Cancelled: true,
			Intent:    state.Intent,
		}, nil
	}

	action := &models.Action{
		Type:    state.Template.Action,
		Payload: copySlots(state.Slots),
	}
	m.endDialogLocked(userID, models.DialogStatusCompleted)
	slog.Info("Dialog confirmed", "userID", userID, "intent", state.Intent, "action", action.Type)
	return &models.DialogResponse{
		Message: "Confirmed! I'm on it.",
		Intent:  state.Intent,
		Action:  action,
	}, nil
}

// QuickReplies returns the template suggestions for the next missing required
// slot, or the fixed confirm/cancel/modify triple once all required slots are
// filled. Users without an active dialog get nothing.
func (m *Manager) QuickReplies(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.active[userID]
	if !ok {
		return nil
	}
	missing := missingRequiredSlots(state)
	if len(missing) == 0 {
		return append([]string(nil), confirmationReplies...)
	}
	return append([]string(nil), state.Template.QuickReplies[missing[0]]...)
}

// HandleQuickReply maps a tapped suggestion onto the dialog: during slot
// collection it fills the next missing slot; during confirmation it resolves
// yes/no answers through ConfirmDialog.
func (m *Manager) HandleQuickReply(userID, reply string) (*models.DialogResponse, error) {
	m.mu.Lock()
	state, ok := m.active[userID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", models.ErrNoActiveDialog, userID)
	}
	missing := missingRequiredSlots(state)
	m.mu.Unlock()

	if len(missing) == 0 {
		lower := strings.ToLower(reply)
		switch {
		case strings.Contains(lower, "yes") || strings.Contains(lower, "confirm"):
			return m.ConfirmDialog(userID, true)
		case strings.Contains(lower, "no") || strings.Contains(lower, "cancel"):
			return m.ConfirmDialog(userID, false)
		default:
			// Modify request: keep the dialog alive and restate the summary.
			m.mu.Lock()
			defer m.mu.Unlock()
			if state, ok := m.active[userID]; ok {
				return m.confirmationResponseLocked(state), nil
			}
			return nil, fmt.Errorf("%w: %s", models.ErrNoActiveDialog, userID)
		}
	}

	return m.ProcessUserInput(userID, reply, map[string]any{missing[0]: reply})
}

// EndDialog force-terminates the user's active dialog with the given status.
func (m *Manager) EndDialog(userID string, status models.DialogStatus) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[userID]; !ok {
		return false
	}
	m.endDialogLocked(userID, status)
	return true
}

// ActiveDialog returns the user's active dialog state, if any.
func (m *Manager) ActiveDialog(userID string) (*models.DialogState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.active[userID]
	return state, ok
}

// HasActiveDialog reports whether the user has an active dialog.
func (m *Manager) HasActiveDialog(userID string) bool {
	_, ok := m.ActiveDialog(userID)
	return ok
}

// AwaitingConfirmation reports whether the user's active dialog has every
// required slot filled and is waiting for an explicit confirm.
func (m *Manager) AwaitingConfirmation(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.active[userID]
	if !ok {
		return false
	}
	return len(missingRequiredSlots(state)) == 0
}

// CleanupInactiveDialogs transitions every active dialog whose last activity
// is older than maxAge to timeout status and returns how many were swept.
// This is a periodic sweep; callers invoke it on a schedule.
func (m *Manager) CleanupInactiveDialogs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var swept int
	for userID, state := range m.active {
		if now.Sub(state.LastActivity) > maxAge {
			m.endDialogLocked(userID, models.DialogStatusTimeout)
			swept++
		}
	}
	if swept > 0 {
		slog.Info("Swept inactive dialogs", "count", swept, "maxAge", maxAge)
	}
	return swept
}

// History returns up to limit most recent terminal dialogs for a user.
func (m *Manager) History(userID string, limit int) []*models.DialogState {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := m.memory[userID]
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}
	out := make([]*models.DialogState, limit)
	copy(out, history[len(history)-limit:])
	return out
}

// ContextFromHistory returns the slots of the user's most recent terminal
// dialog with the same intent, or nil.
func (m *Manager) ContextFromHistory(userID, intent string) map[string]any {
	history := m.History(userID, 5)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Intent == intent {
			return copySlots(history[i].Slots)
		}
	}
	return nil
}

// Stats returns manager statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		ActiveDialogs: len(m.active),
		TotalUsers:    len(m.memory),
		Templates:     len(m.templates),
	}
}

// Reset drops all active dialogs and conversation memory.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = make(map[string]*models.DialogState)
	m.memory = make(map[string][]*models.DialogState)
	slog.Debug("Dialog manager reset")
}

// endDialogLocked marks the dialog terminal, records it in conversation
// memory, and removes it from the active map. Caller holds the lock.
func (m *Manager) endDialogLocked(userID string, status models.DialogStatus) {
	state, ok := m.active[userID]
	if !ok {
		return
	}
	state.Status = status
	state.EndedAt = time.Now()
	delete(m.active, userID)

	history := append(m.memory[userID], state)
	if len(history) > memoryLimit {
		history = history[len(history)-memoryLimit:]
	}
	m.memory[userID] = history
	slog.Debug("Dialog ended", "userID", userID, "intent", state.Intent, "status", status)
}

// confirmationResponseLocked renders the template confirmation with slot
// values substituted. It still requires a follow-up: the explicit confirm.
func (m *Manager) confirmationResponseLocked(state *models.DialogState) *models.DialogResponse {
	return &models.DialogResponse{
		Message:          renderConfirmation(state.Template.ConfirmationMessage, state.Slots),
		RequiresFollowUp: true,
		Intent:           state.Intent,
		PartialData:      copySlots(state.Slots),
		MissingFields:    []string{},
		QuickReplies:     append([]string(nil), confirmationReplies...),
		Confirmation:     true,
	}
}

// nextQuestionResponseLocked asks for the first missing required slot in
// template-declared order.
func (m *Manager) nextQuestionResponseLocked(state *models.DialogState, missing []string) *models.DialogResponse {
	next := missing[0]
	return &models.DialogResponse{
		Message:          state.Template.SlotQuestions[next],
		RequiresFollowUp: true,
		Intent:           state.Intent,
		PartialData:      copySlots(state.Slots),
		MissingFields:    append([]string(nil), missing...),
		QuickReplies:     append([]string(nil), state.Template.QuickReplies[next]...),
	}
}

// mergeSlots merges extracted values into the dialog state. A value is
// accepted only if non-nil and not an empty string; rejecting empty answers
// forces a re-prompt rather than accepting silence as an answer.
func mergeSlots(state *models.DialogState, extracted map[string]any) {
	for key, value := range extracted {
		if !acceptableSlotValue(value) {
			continue
		}
		state.Slots[key] = value
		state.FilledSlots[key] = struct{}{}
	}
}

func acceptableSlotValue(value any) bool {
	if value == nil {
		return false
	}
	if s, ok := value.(string); ok && s == "" {
		return false
	}
	return true
}

// missingRequiredSlots returns unfilled required slots in declared order.
func missingRequiredSlots(state *models.DialogState) []string {
	var missing []string
	for _, slot := range state.Template.RequiredSlots {
		if _, filled := state.FilledSlots[slot]; !filled {
			missing = append(missing, slot)
		}
	}
	return missing
}

// renderConfirmation substitutes every {field} placeholder that has a
// corresponding slot value; placeholders without one are left as-is.
func renderConfirmation(template string, slots map[string]any) string {
	out := template
	for key, value := range slots {
		out = strings.ReplaceAll(out, "{"+key+"}", fmt.Sprintf("%v", value))
	}
	return out
}

func copySlots(slots map[string]any) map[string]any {
	out := make(map[string]any, len(slots))
	for k, v := range slots {
		out[k] = v
	}
	return out
}
