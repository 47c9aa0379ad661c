package dialog

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BabyNest/assistant/internal/models"
)

func TestStartDialogUnknownIntent(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.StartDialog("u1", "order_pizza", nil); !errors.Is(err, models.ErrUnknownIntent) {
		t.Errorf("expected ErrUnknownIntent, got %v", err)
	}
}

func TestStartDialogMarksInitialSlotsFilled(t *testing.T) {
	m := NewManager(nil)
	state, err := m.StartDialog("u1", "create_appointment", map[string]any{
		"title": "Checkup",
		"date":  "",
	})
	if err != nil {
		t.Fatalf("StartDialog failed: %v", err)
	}
	if _, ok := state.FilledSlots["title"]; !ok {
		t.Error("non-empty initial slot not marked filled")
	}
	if _, ok := state.FilledSlots["date"]; ok {
		t.Error("empty string initial slot counted as filled")
	}
}

func TestSlotFillingAnyOrderThenConfirmation(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.StartDialog("u1", "create_appointment", map[string]any{"date": "2026-09-10", "time": "9:00"}); err != nil {
		t.Fatalf("StartDialog failed: %v", err)
	}

	resp, err := m.ProcessUserInput("u1", "a checkup", map[string]any{"title": "Checkup"})
	if err != nil {
		t.Fatalf("ProcessUserInput failed: %v", err)
	}
	if resp.Confirmation {
		t.Fatal("confirmation offered before all required slots filled")
	}
	if len(resp.MissingFields) == 0 || resp.MissingFields[0] != "location" {
		t.Fatalf("expected location to be the next missing slot, got %v", resp.MissingFields)
	}

	resp, err = m.ProcessUserInput("u1", "the clinic", map[string]any{"location": "Clinic"})
	if err != nil {
		t.Fatalf("ProcessUserInput failed: %v", err)
	}
	if !resp.Confirmation || !resp.RequiresFollowUp {
		t.Error("expected a confirmation request once all required slots are filled")
	}
	for _, want := range []string{"Checkup", "2026-09-10", "9:00", "Clinic"} {
		if !strings.Contains(resp.Message, want) {
			t.Errorf("confirmation message missing %q: %s", want, resp.Message)
		}
	}
	if len(resp.QuickReplies) != 3 {
		t.Errorf("confirmation quick replies %v, want the fixed triple", resp.QuickReplies)
	}
}

func TestEmptyExtractionReprompts(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.StartDialog("u1", "log_mood", nil); err != nil {
		t.Fatalf("StartDialog failed: %v", err)
	}

	resp, err := m.ProcessUserInput("u1", "hmm", map[string]any{"mood": ""})
	if err != nil {
		t.Fatalf("ProcessUserInput failed: %v", err)
	}
	if resp.Confirmation {
		t.Error("empty slot value accepted as an answer")
	}
	if resp.Message != "How are you feeling right now?" {
		t.Errorf("expected the mood question, got %q", resp.Message)
	}
}

func TestTurnBudgetTimeout(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.StartDialog("u1", "log_mood", nil); err != nil {
		t.Fatalf("StartDialog failed: %v", err)
	}

	// log_mood allows 3 turns; the 4th must time out with no partial credit.
	var resp *models.DialogResponse
	var err error
	for i := 0; i < 4; i++ {
		resp, err = m.ProcessUserInput("u1", "I don't know", nil)
		if err != nil {
			t.Fatalf("turn %d failed: %v", i+1, err)
		}
	}
	if !resp.TimedOut {
		t.Fatal("dialog did not time out after exceeding max turns")
	}
	if _, err := m.ProcessUserInput("u1", "happy", nil); !errors.Is(err, models.ErrNoActiveDialog) {
		t.Errorf("expected ErrNoActiveDialog after timeout, got %v", err)
	}

	history := m.History("u1", 0)
	if len(history) != 1 || history[0].Status != models.DialogStatusTimeout {
		t.Errorf("timed-out dialog not recorded in memory: %+v", history)
	}
}

func TestConfirmProducesAction(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.StartDialog("u1", "log_sleep", map[string]any{"duration": "8"}); err != nil {
		t.Fatalf("StartDialog failed: %v", err)
	}

	resp, err := m.ConfirmDialog("u1", true)
	if err != nil {
		t.Fatalf("ConfirmDialog failed: %v", err)
	}
	if resp.Action == nil {
		t.Fatal("confirmed dialog produced no action")
	}
	if resp.Action.Type != models.ActionCreateSleep {
		t.Errorf("action type %s, want %s", resp.Action.Type, models.ActionCreateSleep)
	}
	if resp.Action.Payload["duration"] != "8" {
		t.Errorf("action payload missing collected slot: %v", resp.Action.Payload)
	}
	if m.HasActiveDialog("u1") {
		t.Error("dialog still active after confirmation")
	}

	history := m.History("u1", 0)
	if len(history) != 1 || history[0].Status != models.DialogStatusCompleted {
		t.Errorf("completed dialog not recorded: %+v", history)
	}
}

func TestDeclineCancelsWithoutAction(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.StartDialog("u1", "log_mood", map[string]any{"mood": "happy"}); err != nil {
		t.Fatalf("StartDialog failed: %v", err)
	}

	resp, err := m.ConfirmDialog("u1", false)
	if err != nil {
		t.Fatalf("ConfirmDialog failed: %v", err)
	}
	if !resp.Cancelled || resp.Action != nil {
		t.Errorf("decline should cancel with no action, got %+v", resp)
	}
	if m.HasActiveDialog("u1") {
		t.Error("dialog still active after cancel")
	}
}

func TestQuickRepliesFollowNextMissingSlot(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.StartDialog("u1", "create_appointment", nil); err != nil {
		t.Fatalf("StartDialog failed: %v", err)
	}

	replies := m.QuickReplies("u1")
	if len(replies) == 0 || replies[0] != "Checkup" {
		t.Errorf("expected title suggestions first, got %v", replies)
	}

	// With the title filled the next missing slot is date, which deliberately
	// has no suggestions.
	if _, err := m.ProcessUserInput("u1", "checkup", map[string]any{"title": "Checkup"}); err != nil {
		t.Fatalf("ProcessUserInput failed: %v", err)
	}
	if replies := m.QuickReplies("u1"); len(replies) != 0 {
		t.Errorf("expected no suggestions for the date slot, got %v", replies)
	}
}

func TestHandleQuickReplyConfirms(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.StartDialog("u1", "log_mood", map[string]any{"mood": "calm"}); err != nil {
		t.Fatalf("StartDialog failed: %v", err)
	}

	resp, err := m.HandleQuickReply("u1", "Yes, confirm")
	if err != nil {
		t.Fatalf("HandleQuickReply failed: %v", err)
	}
	if resp.Action == nil || resp.Action.Type != models.ActionCreateMood {
		t.Errorf("quick reply confirm did not produce the action: %+v", resp)
	}
}

func TestHandleQuickReplyFillsSlot(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.StartDialog("u1", "log_mood", nil); err != nil {
		t.Fatalf("StartDialog failed: %v", err)
	}

	resp, err := m.HandleQuickReply("u1", "Happy")
	if err != nil {
		t.Fatalf("HandleQuickReply failed: %v", err)
	}
	if !resp.Confirmation {
		t.Errorf("tapping the only required slot should reach confirmation, got %+v", resp)
	}
	if resp.PartialData["mood"] != "Happy" {
		t.Errorf("quick reply value not recorded: %v", resp.PartialData)
	}
}

func TestStartDialogReplacesActive(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.StartDialog("u1", "log_mood", map[string]any{"mood": "happy"}); err != nil {
		t.Fatalf("StartDialog failed: %v", err)
	}
	if _, err := m.StartDialog("u1", "log_sleep", nil); err != nil {
		t.Fatalf("StartDialog failed: %v", err)
	}

	state, ok := m.ActiveDialog("u1")
	if !ok || state.Intent != "log_sleep" {
		t.Errorf("active dialog not replaced, got %+v", state)
	}
	if _, carried := state.Slots["mood"]; carried {
		t.Error("slots leaked from the discarded dialog")
	}
}

func TestCleanupInactiveDialogs(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.StartDialog("stale", "log_mood", nil); err != nil {
		t.Fatalf("StartDialog failed: %v", err)
	}
	if _, err := m.StartDialog("fresh", "log_mood", nil); err != nil {
		t.Fatalf("StartDialog failed: %v", err)
	}

	state, _ := m.ActiveDialog("stale")
	state.LastActivity = time.Now().Add(-time.Hour)

	if swept := m.CleanupInactiveDialogs(30 * time.Minute); swept != 1 {
		t.Errorf("swept %d dialogs, want 1", swept)
	}
	if m.HasActiveDialog("stale") {
		t.Error("stale dialog survived the sweep")
	}
	if !m.HasActiveDialog("fresh") {
		t.Error("fresh dialog was swept")
	}
}

func TestContextFromHistory(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.StartDialog("u1", "log_sleep", map[string]any{"duration": "7", "quality": "Good"}); err != nil {
		t.Fatalf("StartDialog failed: %v", err)
	}
	if _, err := m.ConfirmDialog("u1", true); err != nil {
		t.Fatalf("ConfirmDialog failed: %v", err)
	}

	prior := m.ContextFromHistory("u1", "log_sleep")
	if prior["duration"] != "7" {
		t.Errorf("expected prior slots, got %v", prior)
	}
	if m.ContextFromHistory("u1", "create_appointment") != nil {
		t.Error("history for a different intent should return nil")
	}
}

func TestMemoryBound(t *testing.T) {
	m := NewManager(nil)
	for i := 0; i < memoryLimit+5; i++ {
		if _, err := m.StartDialog("u1", "log_mood", map[string]any{"mood": "calm"}); err != nil {
			t.Fatalf("StartDialog failed: %v", err)
		}
		if _, err := m.ConfirmDialog("u1", true); err != nil {
			t.Fatalf("ConfirmDialog failed: %v", err)
		}
	}
	if got := len(m.History("u1", 0)); got != memoryLimit {
		t.Errorf("memory holds %d dialogs, want %d", got, memoryLimit)
	}
}

func TestTemplateValidation(t *testing.T) {
	for intent, template := range DefaultTemplates() {
		if err := template.Validate(); err != nil {
			t.Errorf("template %s invalid: %v", intent, err)
		}
	}
}
