package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/BabyNest/assistant/internal/backend"
	"github.com/BabyNest/assistant/internal/models"
)

// recordingServer captures every request the executor makes.
type recordingServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	server   *httptest.Server
}

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

func newRecordingServer(t *testing.T) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&body)
		}
		rs.mu.Lock()
		rs.requests = append(rs.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body})
		rs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	t.Cleanup(rs.server.Close)
	return rs
}

func (rs *recordingServer) count() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.requests)
}

func (rs *recordingServer) last() recordedRequest {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.requests[len(rs.requests)-1]
}

func newTestExecutor(t *testing.T) (*Executor, *recordingServer) {
	t.Helper()
	rs := newRecordingServer(t)
	client := backend.NewClient(backend.WithBaseURL(rs.server.URL))
	return NewExecutor(client), rs
}

func TestCreateWeightSuccess(t *testing.T) {
	e, rs := newTestExecutor(t)

	result := e.ExecuteAction(context.Background(), &models.Action{
		Type:    models.ActionCreateWeight,
		Payload: map[string]any{"weight": 65.5},
	}, nil)

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.ActionType != models.ActionCreateWeight {
		t.Errorf("result action type %s", result.ActionType)
	}

	req := rs.last()
	if req.Method != http.MethodPost || req.Path != "/weight" {
		t.Errorf("unexpected request %s %s", req.Method, req.Path)
	}
	if week, _ := req.Body["week_number"].(float64); int(week) != DefaultWeek {
		t.Errorf("week_number %v, want default %d", req.Body["week_number"], DefaultWeek)
	}

	history := e.History(0)
	if len(history) != 1 || !history[0].Executed {
		t.Errorf("successful action not logged as executed: %+v", history)
	}
}

func TestWeekNumberFromUserContext(t *testing.T) {
	e, rs := newTestExecutor(t)

	e.ExecuteAction(context.Background(), &models.Action{
		Type:    models.ActionCreateWeight,
		Payload: map[string]any{"weight": 70},
	}, map[string]any{"current_week": 24.0})

	if week, _ := rs.last().Body["week_number"].(float64); int(week) != 24 {
		t.Errorf("week_number %v, want 24 from user context", rs.last().Body["week_number"])
	}
}

func TestMissingFieldSkipsNetworkCall(t *testing.T) {
	e, rs := newTestExecutor(t)

	result := e.ExecuteAction(context.Background(), &models.Action{
		Type:    models.ActionCreateWeight,
		Payload: map[string]any{"note": "feeling fine"},
	}, nil)

	if result.Success {
		t.Fatal("validation failure reported as success")
	}
	if len(result.MissingFields) != 1 || result.MissingFields[0] != "weight" {
		t.Errorf("missing fields %v, want [weight]", result.MissingFields)
	}
	if rs.count() != 0 {
		t.Errorf("validation failure still hit the backend %d times", rs.count())
	}
}

func TestBloodPressureRequiresBothReadings(t *testing.T) {
	e, _ := newTestExecutor(t)

	result := e.ExecuteAction(context.Background(), &models.Action{
		Type:    models.ActionCreateBloodPressure,
		Payload: map[string]any{"pulse": 80},
	}, nil)

	if result.Success || len(result.MissingFields) != 2 {
		t.Errorf("expected systolic and diastolic to be reported missing, got %+v", result)
	}
}

func TestCreateAppointmentSplitsStartISO(t *testing.T) {
	e, rs := newTestExecutor(t)

	result := e.ExecuteAction(context.Background(), &models.Action{
		Type:    models.ActionCreateAppointment,
		Payload: map[string]any{"title": "Checkup", "startISO": "2026-09-10T09:30"},
	}, nil)

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	body := rs.last().Body
	if body["appointment_date"] != "2026-09-10" || body["appointment_time"] != "09:30" {
		t.Errorf("startISO not split: date=%v time=%v", body["appointment_date"], body["appointment_time"])
	}
	if body["appointment_status"] != "scheduled" {
		t.Errorf("appointment_status %v, want scheduled", body["appointment_status"])
	}
}

func TestUpdateAndDeleteAppointmentRouting(t *testing.T) {
	e, rs := newTestExecutor(t)
	ctx := context.Background()

	e.ExecuteAction(ctx, &models.Action{
		Type:    models.ActionUpdateAppointment,
		Payload: map[string]any{"id": 7, "title": "Moved"},
	}, nil)
	if req := rs.last(); req.Method != http.MethodPut || req.Path != "/update_appointment/7" {
		t.Errorf("unexpected update request %s %s", req.Method, req.Path)
	}

	e.ExecuteAction(ctx, &models.Action{
		Type:    models.ActionDeleteAppointment,
		Payload: map[string]any{"id": 7},
	}, nil)
	if req := rs.last(); req.Method != http.MethodDelete || req.Path != "/delete_appointment/7" {
		t.Errorf("unexpected delete request %s %s", req.Method, req.Path)
	}
}

func TestQueryStatsDefaults(t *testing.T) {
	e, rs := newTestExecutor(t)

	result := e.ExecuteAction(context.Background(), &models.Action{
		Type:    models.ActionQueryStats,
		Payload: map[string]any{"metric": "weight"},
	}, nil)

	if !result.Success || result.Data == nil {
		t.Fatalf("expected analytics data, got %+v", result)
	}
	body := rs.last().Body
	if body["timeframe"] != "week" || body["chart_type"] != "summary" {
		t.Errorf("defaults not applied: %v", body)
	}
}

func TestInvalidActionEnvelope(t *testing.T) {
	e, rs := newTestExecutor(t)

	result := e.ExecuteAction(context.Background(), &models.Action{Type: models.ActionCreateWeight}, nil)
	if result.Success {
		t.Error("nil payload accepted")
	}
	if rs.count() != 0 {
		t.Error("invalid envelope reached the backend")
	}
	if len(e.History(0)) != 0 {
		t.Error("invalid envelope was logged")
	}
}

func TestUnknownActionTypeIsRecoverable(t *testing.T) {
	e, rs := newTestExecutor(t)

	result := e.ExecuteAction(context.Background(), &models.Action{
		Type:    models.ActionType("teleport"),
		Payload: map[string]any{},
	}, nil)

	if result.Success {
		t.Error("unknown action type reported as success")
	}
	if result.Error == "" {
		t.Error("unknown action type carries no error detail")
	}
	if rs.count() != 0 {
		t.Error("unknown action type reached the backend")
	}

	// The invocation still lands in the log so the attempt is auditable, but
	// it is never marked executed.
	history := e.History(0)
	if len(history) != 1 || history[0].Executed {
		t.Errorf("unknown action should be logged unexecuted: %+v", history)
	}
}

func TestActionLogCapacity(t *testing.T) {
	e, _ := newTestExecutor(t)
	ctx := context.Background()

	for i := 0; i < LogLimit+10; i++ {
		e.ExecuteAction(ctx, &models.Action{
			Type:    models.ActionNavigate,
			Payload: map[string]any{"screen": fmt.Sprintf("screen-%d", i)},
		}, nil)
	}

	history := e.History(0)
	if len(history) != LogLimit {
		t.Fatalf("log holds %d entries, want %d", len(history), LogLimit)
	}
	if got := history[0].Action.Payload["screen"]; got != "screen-10" {
		t.Errorf("oldest surviving entry %v, want screen-10", got)
	}
	if got := history[len(history)-1].Action.Payload["screen"]; got != fmt.Sprintf("screen-%d", LogLimit+9) {
		t.Errorf("newest entry %v", got)
	}
}

func TestNavigateReturnsScreen(t *testing.T) {
	e, rs := newTestExecutor(t)

	result := e.ExecuteAction(context.Background(), &models.Action{
		Type:    models.ActionNavigate,
		Payload: map[string]any{"screen": "appointments"},
	}, nil)

	if !result.Success || result.Screen != "appointments" {
		t.Errorf("expected navigation to appointments, got %+v", result)
	}
	if rs.count() != 0 {
		t.Error("navigation is client-side and must not call the backend")
	}
}

func TestUndoLastFlipsMostRecent(t *testing.T) {
	e, _ := newTestExecutor(t)
	ctx := context.Background()

	e.ExecuteAction(ctx, &models.Action{
		Type:    models.ActionCreateWeight,
		Payload: map[string]any{"weight": 60},
	}, nil)

	result := e.ExecuteAction(ctx, &models.Action{Type: models.ActionUndoLast, Payload: map[string]any{}}, nil)
	if !result.Success || result.UndoneAction != models.ActionCreateWeight {
		t.Fatalf("undo did not target the weight action: %+v", result)
	}

	history := e.History(0)
	if !history[0].Undone {
		t.Error("undone flag not set on the weight entry")
	}

	// Nothing left to undo: the weight entry is undone and undo entries
	// never undo each other.
	result = e.ExecuteAction(ctx, &models.Action{Type: models.ActionUndoLast, Payload: map[string]any{}}, nil)
	if result.Success {
		t.Errorf("second undo should fail, got %+v", result)
	}
}

func TestBackendFailureIsRecoverable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	e := NewExecutor(backend.NewClient(backend.WithBaseURL(server.URL)))
	result := e.ExecuteAction(context.Background(), &models.Action{
		Type:    models.ActionCreateWeight,
		Payload: map[string]any{"weight": 60},
	}, nil)

	if result.Success {
		t.Error("backend failure reported as success")
	}
	if result.Error == "" {
		t.Error("backend failure carries no error detail")
	}

	history := e.History(0)
	if len(history) != 1 || history[0].Executed {
		t.Errorf("failed action should be logged but not executed: %+v", history)
	}
}
