package dispatcher

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/kadirpekel/taskflow/pkg/broadcast"
	"github.com/kadirpekel/taskflow/pkg/config"
	"github.com/kadirpekel/taskflow/pkg/task"
	"github.com/kadirpekel/taskflow/pkg/workflow"
)

type fakeExecutor struct {
	mu        sync.Mutex
	runFunc   func(taskID uuid.UUID, prompt string) (workflow.RunOutcome, error)
	resumeErr error
	calls     []string
	observer  workflow.StageObserver
}

func (f *fakeExecutor) SetStageObserver(obs workflow.StageObserver) {
	f.mu.Lock()
	f.observer = obs
	f.mu.Unlock()
}

// notify lets a test's runFunc simulate the engine entering a stage, the
// way the real workflow.Engine calls its registered StageObserver.
func (f *fakeExecutor) notify(ctx context.Context, taskID uuid.UUID, stage workflow.Stage) {
	f.mu.Lock()
	obs := f.observer
	f.mu.Unlock()
	if obs != nil {
		obs(ctx, taskID, stage)
	}
}

func (f *fakeExecutor) Run(_ context.Context, taskID uuid.UUID, prompt string) (workflow.RunOutcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "run:"+taskID.String())
	f.mu.Unlock()
	return f.runFunc(taskID, prompt)
}

func (f *fakeExecutor) Resume(_ context.Context, taskID uuid.UUID, approval workflow.Approval) (workflow.RunOutcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "resume:"+taskID.String())
	f.mu.Unlock()
	if f.resumeErr != nil {
		return workflow.RunOutcome{}, f.resumeErr
	}
	if approval.Approved {
		return workflow.RunOutcome{Kind: workflow.OutcomeCompleted, State: &workflow.WorkflowState{Result: "done"}}, nil
	}
	return workflow.RunOutcome{Kind: workflow.OutcomeFailed, Err: errors.New(approval.Feedback)}, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	states   map[uuid.UUID]task.State
	results  map[uuid.UUID]string
	errors   map[uuid.UUID]string
	appended int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		states:  make(map[uuid.UUID]task.State),
		results: make(map[uuid.UUID]string),
		errors:  make(map[uuid.UUID]string),
	}
}

func (f *fakeRecorder) SetState(_ context.Context, id uuid.UUID, next task.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = next
	return nil
}

func (f *fakeRecorder) SetResult(_ context.Context, id uuid.UUID, result string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = task.Completed
	f.results[id] = result
	return nil
}

func (f *fakeRecorder) SetError(_ context.Context, id uuid.UUID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = task.Failed
	f.errors[id] = message
	return nil
}

func (f *fakeRecorder) AppendLog(context.Context, uuid.UUID, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended++
	return nil
}

func (f *fakeRecorder) stateOf(id uuid.UUID) task.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[id]
}

func testConfig() *config.DispatcherConfig {
	cfg := &config.DispatcherConfig{Workers: 2, QueueSize: 8, MaxRetries: 2, BaseRetryDelaySeconds: 1}
	cfg.SetDefaults()
	return cfg
}

func waitForState(t *testing.T, recorder *fakeRecorder, id uuid.UUID, want task.State) {
	t.Helper()
	// testConfig's backoff (1s, then 2s, each with up to 10% jitter) must fit.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if recorder.stateOf(id) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state for %s = %v, want %v", id, recorder.stateOf(id), want)
}

func TestDispatcherSuspendedSetsAwaitingApproval(t *testing.T) {
	exec := &fakeExecutor{runFunc: func(uuid.UUID, string) (workflow.RunOutcome, error) {
		return workflow.RunOutcome{Kind: workflow.OutcomeSuspended}, nil
	}}
	recorder := newFakeRecorder()
	events := broadcast.New()
	d := New(testConfig(), exec, recorder, events)
	d.Start(context.Background())
	defer d.Stop()

	taskID := uuid.New()
	d.Submit(RunCommand{TaskID: taskID, Prompt: "hello"})

	waitForState(t, recorder, taskID, task.AwaitingApproval)
	if recorder.appended == 0 {
		t.Error("expected an activity log entry on suspension")
	}
}

func TestDispatcherCompletedSetsResult(t *testing.T) {
	exec := &fakeExecutor{runFunc: func(uuid.UUID, string) (workflow.RunOutcome, error) {
		return workflow.RunOutcome{Kind: workflow.OutcomeCompleted, State: &workflow.WorkflowState{Result: "final draft"}}, nil
	}}
	recorder := newFakeRecorder()
	d := New(testConfig(), exec, recorder, broadcast.New())
	d.Start(context.Background())
	defer d.Stop()

	taskID := uuid.New()
	d.Submit(RunCommand{TaskID: taskID, Prompt: "hello"})

	waitForState(t, recorder, taskID, task.Completed)
	if recorder.results[taskID] != "final draft" {
		t.Errorf("result = %q, want %q", recorder.results[taskID], "final draft")
	}
}

func TestDispatcherEngineFailureRetriesThenFails(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	exec := &fakeExecutor{runFunc: func(uuid.UUID, string) (workflow.RunOutcome, error) {
		mu.Lock()
		attempts++
		mu.Unlock()
		return workflow.RunOutcome{}, errors.New("engine exploded")
	}}
	recorder := newFakeRecorder()
	d := New(testConfig(), exec, recorder, broadcast.New())
	d.Start(context.Background())
	defer d.Stop()

	taskID := uuid.New()
	d.Submit(RunCommand{TaskID: taskID, Prompt: "hello"})

	waitForState(t, recorder, taskID, task.Failed)
	mu.Lock()
	got := attempts
	mu.Unlock()
	if got != 3 { // MaxRetries=2 => 1 initial + 2 retries
		t.Errorf("attempts = %d, want 3", got)
	}
	if recorder.errors[taskID] != "engine exploded" {
		t.Errorf("error = %q, want %q", recorder.errors[taskID], "engine exploded")
	}
}

func TestDispatcherRejectedResumeFails(t *testing.T) {
	exec := &fakeExecutor{}
	recorder := newFakeRecorder()
	d := New(testConfig(), exec, recorder, broadcast.New())
	d.Start(context.Background())
	defer d.Stop()

	taskID := uuid.New()
	d.Submit(ResumeCommand{TaskID: taskID, Approval: workflow.Approval{Approved: false, Feedback: "nope"}})

	waitForState(t, recorder, taskID, task.Failed)
	if recorder.errors[taskID] != "nope" {
		t.Errorf("error = %q, want %q", recorder.errors[taskID], "nope")
	}
}

func TestDispatcherSameTaskCommandsOrderedBySharding(t *testing.T) {
	taskID := uuid.New()

	var order []string
	var mu sync.Mutex
	exec := &fakeExecutor{runFunc: func(id uuid.UUID, _ string) (workflow.RunOutcome, error) {
		mu.Lock()
		order = append(order, "run")
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		return workflow.RunOutcome{Kind: workflow.OutcomeSuspended}, nil
	}}
	recorder := newFakeRecorder()
	d := New(testConfig(), exec, recorder, broadcast.New())
	d.Start(context.Background())

	d.Submit(RunCommand{TaskID: taskID, Prompt: "hello"})
	d.Submit(ResumeCommand{TaskID: taskID, Approval: workflow.Approval{Approved: true}})
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(order) == 0 || order[0] != "run" {
		t.Errorf("order = %v, want run to execute before resume reaches the engine", order)
	}
}

// taskRow builds the sqlmock row set for a single task in the given state.
func taskRow(taskID uuid.UUID, state task.State, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "prompt", "state", "result", "error", "activity_log", "created_at", "updated_at"}).
		AddRow(taskID.String(), "prompt", string(state), nil, nil, "[]", now, now)
}

// TestDispatcherDrivesLegalLifecycleToAwaitingApproval wires the dispatcher
// to a real task.Store (backed by sqlmock) instead of the transition-
// skipping fakeRecorder, proving the dispatcher drives Running, Researching,
// and Writing as legal edges before reaching AwaitingApproval.
func TestDispatcherDrivesLegalLifecycleToAwaitingApproval(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	store := task.NewStore(db, "sqlite")
	taskID := uuid.New()
	now := time.Now().UTC()

	getQuery := regexp.QuoteMeta("SELECT id, prompt, state")
	setStateExec := regexp.QuoteMeta("UPDATE tasks SET state")
	appendLogExec := regexp.QuoteMeta("UPDATE tasks SET activity_log")

	// Running (from Pending), Researching (from Running), Writing (from
	// Researching), AwaitingApproval (from Writing): each a legal edge per
	// task.validTransitions.
	mock.ExpectQuery(getQuery).WithArgs(taskID.String()).WillReturnRows(taskRow(taskID, task.Pending, now))
	mock.ExpectExec(setStateExec).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(getQuery).WithArgs(taskID.String()).WillReturnRows(taskRow(taskID, task.Running, now))
	mock.ExpectExec(setStateExec).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(getQuery).WithArgs(taskID.String()).WillReturnRows(taskRow(taskID, task.Researching, now))
	mock.ExpectExec(setStateExec).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(getQuery).WithArgs(taskID.String()).WillReturnRows(taskRow(taskID, task.Writing, now))
	mock.ExpectExec(setStateExec).WillReturnResult(sqlmock.NewResult(0, 1))

	// AppendLog("Awaiting approval"): read-modify-write of activity_log.
	mock.ExpectQuery(getQuery).WithArgs(taskID.String()).WillReturnRows(taskRow(taskID, task.AwaitingApproval, now))
	mock.ExpectExec(appendLogExec).WillReturnResult(sqlmock.NewResult(0, 1))

	var exec *fakeExecutor
	exec = &fakeExecutor{runFunc: func(id uuid.UUID, _ string) (workflow.RunOutcome, error) {
		exec.notify(context.Background(), id, workflow.StageResearch)
		exec.notify(context.Background(), id, workflow.StageWriting)
		return workflow.RunOutcome{Kind: workflow.OutcomeSuspended}, nil
	}}

	d := New(testConfig(), exec, store, broadcast.New())
	d.Start(context.Background())
	defer d.Stop()

	d.Submit(RunCommand{TaskID: taskID, Prompt: "hello"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mock.ExpectationsWereMet() == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations (illegal or missing state transition): %v", err)
	}
}
