package broadcast

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kadirpekel/taskflow/pkg/task"
)

func TestSubscribeReceivesBroadcast(t *testing.T) {
	r := New()
	taskID := uuid.New()
	ch := make(chan Event, 1)
	r.Subscribe(taskID, ch)

	r.Broadcast(Event{TaskID: taskID, State: task.Running})

	select {
	case evt := <-ch:
		if evt.State != task.Running {
			t.Errorf("State = %v, want Running", evt.State)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast delivery")
	}
}

func TestBroadcastIgnoresOtherTasks(t *testing.T) {
	r := New()
	taskID := uuid.New()
	other := uuid.New()
	ch := make(chan Event, 1)
	r.Subscribe(taskID, ch)

	r.Broadcast(Event{TaskID: other, State: task.Running})

	select {
	case evt := <-ch:
		t.Fatalf("unexpected delivery: %+v", evt)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r := New()
	taskID := uuid.New()
	ch := make(chan Event, 1)
	r.Subscribe(taskID, ch)
	r.Unsubscribe(taskID, ch)

	r.Broadcast(Event{TaskID: taskID, State: task.Running})

	select {
	case evt := <-ch:
		t.Fatalf("unexpected delivery after unsubscribe: %+v", evt)
	default:
	}
}

func TestBroadcastToMultipleObservers(t *testing.T) {
	r := New()
	taskID := uuid.New()
	a := make(chan Event, 1)
	b := make(chan Event, 1)
	r.Subscribe(taskID, a)
	r.Subscribe(taskID, b)

	r.Broadcast(Event{TaskID: taskID, State: task.Completed})

	for _, ch := range []chan Event{a, b} {
		select {
		case evt := <-ch:
			if evt.State != task.Completed {
				t.Errorf("State = %v, want Completed", evt.State)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for broadcast delivery")
		}
	}
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	r := New()
	taskID := uuid.New()
	ch := make(chan Event)
	r.Subscribe(taskID, ch)

	done := make(chan struct{})
	go func() {
		r.Broadcast(Event{TaskID: taskID, State: task.Running})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on an unbuffered, unread channel")
	}
}
