package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/kadirpekel/taskflow/pkg/broadcast"
	"github.com/kadirpekel/taskflow/pkg/dispatcher"
	"github.com/kadirpekel/taskflow/pkg/task"
)

type fakeSubmitter struct {
	submitted []dispatcher.Command
}

func (f *fakeSubmitter) Submit(cmd dispatcher.Command) {
	f.submitted = append(f.submitted, cmd)
}

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock, *fakeSubmitter) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := task.NewStore(db, "sqlite")
	submitter := &fakeSubmitter{}
	s := New(store, submitter, broadcast.New(), nil, nil, nil, nil)
	return s, mock, submitter
}

func TestCreateTaskAccepted(t *testing.T) {
	s, mock, submitter := newTestServer(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tasks")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	body, _ := json.Marshal(createTaskRequest{Prompt: "compare redis and postgres"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	var resp createTaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.State != task.Pending {
		t.Errorf("State = %v, want Pending", resp.State)
	}
	if len(submitter.submitted) != 1 {
		t.Fatalf("submitted %d commands, want 1", len(submitter.submitted))
	}
	if _, ok := submitter.submitted[0].(dispatcher.RunCommand); !ok {
		t.Errorf("submitted command type = %T, want RunCommand", submitter.submitted[0])
	}
}

func TestCreateTaskRejectsEmptyPrompt(t *testing.T) {
	s, _, _ := newTestServer(t)

	body, _ := json.Marshal(createTaskRequest{Prompt: ""})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	s, mock, _ := newTestServer(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, prompt, state")).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "prompt", "state", "result", "error", "activity_log", "created_at", "updated_at"}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+id.String(), nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetTaskInvalidID(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/not-a-uuid", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestApproveRejectsWrongState(t *testing.T) {
	s, mock, _ := newTestServer(t)
	id := uuid.New()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "prompt", "state", "result", "error", "activity_log", "created_at", "updated_at"}).
		AddRow(id.String(), "prompt", string(task.Running), nil, nil, "[]", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, prompt, state")).WithArgs(id.String()).WillReturnRows(rows)

	body, _ := json.Marshal(approveRequest{Approved: true})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/"+id.String()+"/approve", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
}

func TestApproveRejectedSkipsEnqueue(t *testing.T) {
	s, mock, submitter := newTestServer(t)
	id := uuid.New()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "prompt", "state", "result", "error", "activity_log", "created_at", "updated_at"}).
		AddRow(id.String(), "prompt", string(task.AwaitingApproval), nil, nil, "[]", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, prompt, state")).WithArgs(id.String()).WillReturnRows(rows)

	// SetError -> SetState(Failed) reads current state again, then two updates.
	rows2 := sqlmock.NewRows([]string{"id", "prompt", "state", "result", "error", "activity_log", "created_at", "updated_at"}).
		AddRow(id.String(), "prompt", string(task.AwaitingApproval), nil, nil, "[]", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, prompt, state")).WithArgs(id.String()).WillReturnRows(rows2)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks SET state")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks SET error")).WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(approveRequest{Approved: false, Feedback: "needs more detail"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/"+id.String()+"/approve", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if len(submitter.submitted) != 0 {
		t.Errorf("expected no command enqueued on rejection, got %d", len(submitter.submitted))
	}
}

func TestCORSDefaultAllowsAnyOrigin(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestHealthWithoutDependencies(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", resp.Status)
	}
}

type failingPinger struct{}

func (failingPinger) Ping() error { return context.DeadlineExceeded }

func TestHealthReportsUnhealthyDependency(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	_ = mock

	store := task.NewStore(db, "sqlite")
	s := New(store, &fakeSubmitter{}, broadcast.New(), nil, failingPinger{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
