// Package actions routes typed assistant commands to backend endpoints and
// keeps a capped log of executed actions for best-effort undo.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BabyNest/assistant/internal/models"
)

// LogLimit caps the undo log; older entries fall off.
const LogLimit = 50

// DefaultWeek is assumed when neither the payload nor the user context
// carries a pregnancy week.
const DefaultWeek = 12

// Backend is the slice of the HTTP client the executor needs.
type Backend interface {
	Post(ctx context.Context, path string, payload map[string]any) (map[string]any, error)
	Put(ctx context.Context, path string, payload map[string]any) (map[string]any, error)
	Delete(ctx context.Context, path string) (map[string]any, error)
}

type handlerFunc func(ctx context.Context, payload map[string]any, userCtx map[string]any) *models.ActionResult

// Executor dispatches actions to their backend endpoints. All failures come
// back as recoverable ActionResults, never as errors, so a botched action
// cannot take down the chat loop.
type Executor struct {
	mu       sync.Mutex
	backend  Backend
	log      []*models.ActionLogEntry
	handlers map[models.ActionType]handlerFunc
}

// NewExecutor creates an executor bound to a backend client.
func NewExecutor(backend Backend) *Executor {
	e := &Executor{backend: backend}
	e.handlers = map[models.ActionType]handlerFunc{
		models.ActionCreateAppointment:   e.createAppointment,
		models.ActionUpdateAppointment:   e.updateAppointment,
		models.ActionDeleteAppointment:   e.deleteAppointment,
		models.ActionCreateWeight:        e.createWeight,
		models.ActionCreateMood:          e.createMood,
		models.ActionCreateSleep:         e.createSleep,
		models.ActionCreateSymptom:       e.createSymptom,
		models.ActionCreateMedicine:      e.createMedicine,
		models.ActionCreateBloodPressure: e.createBloodPressure,
		models.ActionQueryStats:          e.queryStats,
		models.ActionUndoLast:            e.undoLast,
		models.ActionNavigate:            e.navigate,
	}
	return e
}

// ExecuteAction validates the envelope, logs the attempt, and dispatches to
// the handler for the action type. Unknown types and validation failures are
// reported in the result without touching the backend.
func (e *Executor) ExecuteAction(ctx context.Context, action *models.Action, userCtx map[string]any) *models.ActionResult {
	if err := action.Validate(); err != nil {
		slog.Warn("Rejected malformed action", "err", err)
		return &models.ActionResult{
			Success: false,
			Message: "I couldn't understand that request.",
			Error:   err.Error(),
		}
	}

	// Every well-formed invocation is logged before dispatch, unknown types
	// included; only malformed envelopes stay out of the log.
	entry := e.logAction(action, userCtx)

	handler, known := e.handlers[action.Type]
	if !known {
		slog.Warn("Unknown action type", "type", action.Type)
		return &models.ActionResult{
			Success:    false,
			Message:    fmt.Sprintf("I don't know how to perform %q yet.", action.Type),
			Error:      "unknown action type",
			ActionType: action.Type,
		}
	}

	result := handler(ctx, action.Payload, userCtx)
	result.ActionType = action.Type

	if result.Success {
		e.mu.Lock()
		entry.Executed = true
		e.mu.Unlock()
	}
	slog.Info("Action executed", "type", action.Type, "success", result.Success)
	return result
}

// History returns up to limit most recent log entries, newest last.
func (e *Executor) History(limit int) []*models.ActionLogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	if limit <= 0 || limit > len(e.log) {
		limit = len(e.log)
	}
	out := make([]*models.ActionLogEntry, limit)
	copy(out, e.log[len(e.log)-limit:])
	return out
}

// ClearHistory drops the action log.
func (e *Executor) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = nil
}

func (e *Executor) logAction(action *models.Action, userCtx map[string]any) *models.ActionLogEntry {
	entry := &models.ActionLogEntry{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		Action:      *action,
		UserContext: userCtx,
	}
	e.mu.Lock()
	e.log = append(e.log, entry)
	if len(e.log) > LogLimit {
		e.log = e.log[len(e.log)-LogLimit:]
	}
	e.mu.Unlock()
	return entry
}

func (e *Executor) createAppointment(ctx context.Context, payload, userCtx map[string]any) *models.ActionResult {
	if missing := requireFields(payload, "title"); missing != nil {
		return validationFailure(missing)
	}

	date := stringField(payload, "date")
	timeOfDay := stringField(payload, "time")
	if iso := stringField(payload, "startISO"); iso != "" && (date == "" || timeOfDay == "") {
		if d, t, ok := splitISO(iso); ok {
			if date == "" {
				date = d
			}
			if timeOfDay == "" {
				timeOfDay = t
			}
		}
	}
	if date == "" {
		return validationFailure([]string{"date"})
	}

	body := map[string]any{
		"title":              payload["title"],
		"appointment_date":   date,
		"appointment_time":   timeOfDay,
		"appointment_status": "scheduled",
		"content":            stringField(payload, "description"),
		"week_number":        weekNumber(payload, userCtx),
	}
	if loc := stringField(payload, "location"); loc != "" {
		body["location"] = loc
	}
	return e.post(ctx, "/create_appointment", body, "Appointment scheduled successfully!")
}

func (e *Executor) updateAppointment(ctx context.Context, payload, userCtx map[string]any) *models.ActionResult {
	if missing := requireFields(payload, "id"); missing != nil {
		return validationFailure(missing)
	}
	id := fmt.Sprintf("%v", payload["id"])
	body := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != "id" {
			body[k] = v
		}
	}
	data, err := e.backend.Put(ctx, "/update_appointment/"+id, body)
	if err != nil {
		return backendFailure(err)
	}
	return &models.ActionResult{Success: true, Message: "Appointment updated.", Data: data}
}

func (e *Executor) deleteAppointment(ctx context.Context, payload, userCtx map[string]any) *models.ActionResult {
	if missing := requireFields(payload, "id"); missing != nil {
		return validationFailure(missing)
	}
	id := fmt.Sprintf("%v", payload["id"])
	data, err := e.backend.Delete(ctx, "/delete_appointment/"+id)
	if err != nil {
		return backendFailure(err)
	}
	return &models.ActionResult{Success: true, Message: "Appointment removed.", Data: data}
}

func (e *Executor) createWeight(ctx context.Context, payload, userCtx map[string]any) *models.ActionResult {
	if missing := requireFields(payload, "weight"); missing != nil {
		return validationFailure(missing)
	}
	body := map[string]any{
		"weight":      payload["weight"],
		"week_number": weekNumber(payload, userCtx),
		"note":        stringField(payload, "note"),
	}
	return e.post(ctx, "/weight", body, "Weight logged successfully!")
}

func (e *Executor) createMood(ctx context.Context, payload, userCtx map[string]any) *models.ActionResult {
	if missing := requireFields(payload, "mood"); missing != nil {
		return validationFailure(missing)
	}
	intensity := stringField(payload, "intensity")
	if intensity == "" {
		intensity = "medium"
	}
	body := map[string]any{
		"mood":        payload["mood"],
		"intensity":   intensity,
		"note":        stringField(payload, "note"),
		"week_number": weekNumber(payload, userCtx),
	}
	return e.post(ctx, "/log_mood", body, "Mood logged, thanks for sharing!")
}

func (e *Executor) createSleep(ctx context.Context, payload, userCtx map[string]any) *models.ActionResult {
	if missing := requireFields(payload, "duration"); missing != nil {
		return validationFailure(missing)
	}
	quality := stringField(payload, "quality")
	if quality == "" {
		quality = "good"
	}
	body := map[string]any{
		"duration":    payload["duration"],
		"quality":     quality,
		"bedtime":     stringField(payload, "bedtime"),
		"wake_time":   stringField(payload, "wake_time"),
		"note":        stringField(payload, "note"),
		"week_number": weekNumber(payload, userCtx),
	}
	return e.post(ctx, "/log_sleep", body, "Sleep logged, rest well!")
}

func (e *Executor) createSymptom(ctx context.Context, payload, userCtx map[string]any) *models.ActionResult {
	if missing := requireFields(payload, "symptom"); missing != nil {
		return validationFailure(missing)
	}
	body := map[string]any{
		"symptom":     payload["symptom"],
		"severity":    stringField(payload, "severity"),
		"note":        stringField(payload, "note"),
		"week_number": weekNumber(payload, userCtx),
	}
	return e.post(ctx, "/symptoms", body, "Symptom recorded.")
}

func (e *Executor) createMedicine(ctx context.Context, payload, userCtx map[string]any) *models.ActionResult {
	if missing := requireFields(payload, "name"); missing != nil {
		return validationFailure(missing)
	}
	body := map[string]any{
		"name":        payload["name"],
		"dosage":      stringField(payload, "dosage"),
		"frequency":   stringField(payload, "frequency"),
		"week_number": weekNumber(payload, userCtx),
	}
	return e.post(ctx, "/medicine", body, "Medicine logged.")
}

func (e *Executor) createBloodPressure(ctx context.Context, payload, userCtx map[string]any) *models.ActionResult {
	if missing := requireFields(payload, "systolic", "diastolic"); missing != nil {
		return validationFailure(missing)
	}
	body := map[string]any{
		"systolic":    payload["systolic"],
		"diastolic":   payload["diastolic"],
		"pulse":       payload["pulse"],
		"week_number": weekNumber(payload, userCtx),
	}
	return e.post(ctx, "/blood_pressure", body, "Blood pressure recorded.")
}

func (e *Executor) queryStats(ctx context.Context, payload, userCtx map[string]any) *models.ActionResult {
	if missing := requireFields(payload, "metric"); missing != nil {
		return validationFailure(missing)
	}
	timeframe := stringField(payload, "timeframe")
	if timeframe == "" {
		timeframe = "week"
	}
	chartType := stringField(payload, "chart_type")
	if chartType == "" {
		chartType = "summary"
	}
	body := map[string]any{
		"metric":     payload["metric"],
		"timeframe":  timeframe,
		"chart_type": chartType,
	}
	data, err := e.backend.Post(ctx, "/get_analytics", body)
	if err != nil {
		return backendFailure(err)
	}
	return &models.ActionResult{
		Success: true,
		Message: fmt.Sprintf("Here's your %v %s for this %s.", payload["metric"], chartType, timeframe),
		Data:    data,
	}
}

// undoLast marks the most recent executed action as undone. The flag records
// intent; no compensating backend request is issued.
func (e *Executor) undoLast(ctx context.Context, payload, userCtx map[string]any) *models.ActionResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := len(e.log) - 1; i >= 0; i-- {
		entry := e.log[i]
		if entry.Action.Type == models.ActionUndoLast || entry.Undone {
			continue
		}
		entry.Undone = true
		return &models.ActionResult{
			Success:      true,
			Message:      fmt.Sprintf("Okay, I've undone the last action (%s).", entry.Action.Type),
			UndoneAction: entry.Action.Type,
		}
	}
	return &models.ActionResult{
		Success: false,
		Message: "There's nothing recent to undo.",
		Error:   "action log is empty",
	}
}

func (e *Executor) navigate(ctx context.Context, payload, userCtx map[string]any) *models.ActionResult {
	if missing := requireFields(payload, "screen"); missing != nil {
		return validationFailure(missing)
	}
	screen := fmt.Sprintf("%v", payload["screen"])
	return &models.ActionResult{
		Success: true,
		Message: fmt.Sprintf("Taking you to %s.", screen),
		Screen:  screen,
	}
}

func (e *Executor) post(ctx context.Context, path string, body map[string]any, successMessage string) *models.ActionResult {
	data, err := e.backend.Post(ctx, path, body)
	if err != nil {
		return backendFailure(err)
	}
	return &models.ActionResult{Success: true, Message: successMessage, Data: data}
}

// requireFields returns the payload fields that are absent or empty, or nil.
func requireFields(payload map[string]any, fields ...string) []string {
	var missing []string
	for _, field := range fields {
		value, ok := payload[field]
		if !ok || value == nil {
			missing = append(missing, field)
			continue
		}
		if s, isStr := value.(string); isStr && strings.TrimSpace(s) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

func validationFailure(missing []string) *models.ActionResult {
	return &models.ActionResult{
		Success:       false,
		Message:       fmt.Sprintf("I still need: %s.", strings.Join(missing, ", ")),
		Error:         "missing required fields",
		MissingFields: missing,
	}
}

func backendFailure(err error) *models.ActionResult {
	return &models.ActionResult{
		Success: false,
		Message: "I couldn't reach the server to do that. Please try again in a moment.",
		Error:   err.Error(),
	}
}

// splitISO breaks an ISO-ish timestamp like "2026-09-10T09:30" into its date
// and time parts.
func splitISO(iso string) (date, timeOfDay string, ok bool) {
	parts := strings.SplitN(iso, "T", 2)
	if parts[0] == "" {
		return "", "", false
	}
	date = parts[0]
	if len(parts) == 2 {
		timeOfDay = strings.TrimSuffix(parts[1], "Z")
		if idx := strings.IndexAny(timeOfDay, "+-"); idx > 0 {
			timeOfDay = timeOfDay[:idx]
		}
		if len(timeOfDay) > 5 {
			timeOfDay = timeOfDay[:5]
		}
	}
	return date, timeOfDay, true
}

func stringField(payload map[string]any, key string) string {
	if v, ok := payload[key]; ok && v != nil {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// weekNumber resolves the pregnancy week: payload first, then the user
// context snapshot, then the default.
func weekNumber(payload, userCtx map[string]any) int {
	if week, ok := numericWeek(payload["week_number"]); ok {
		return week
	}
	if userCtx != nil {
		if week, ok := numericWeek(userCtx["current_week"]); ok {
			return week
		}
	}
	return DefaultWeek
}

func numericWeek(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
