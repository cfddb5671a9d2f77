package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mediavault/mediavault/internal/scheduler"
	"github.com/mediavault/mediavault/pkg/api"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []api.Event
}

func (r *eventRecorder) send(ev api.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) snapshot() []api.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.Event(nil), r.events...)
}

func waitForEvents(t *testing.T, r *eventRecorder, n int) []api.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evs := r.snapshot(); len(evs) >= n {
			return evs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, have %d", n, len(r.snapshot()))
	return nil
}

func TestHubBroadcastReachesAllSubscribers(t *testing.T) {
	hub := NewHub()
	r1 := &eventRecorder{}
	r2 := &eventRecorder{}
	remove1 := hub.Add("sub1", r1.send)
	defer remove1()
	remove2 := hub.Add("sub2", r2.send)
	defer remove2()

	ev, err := api.NewEvent(api.EventTaskQueued, "t1", nil)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	hub.Broadcast(ev)

	for _, r := range []*eventRecorder{r1, r2} {
		evs := waitForEvents(t, r, 1)
		if evs[0].Type != api.EventTaskQueued || evs[0].TaskID != "t1" {
			t.Fatalf("unexpected event %+v", evs[0])
		}
	}
}

func TestHubRemoveStopsDelivery(t *testing.T) {
	hub := NewHub()
	r := &eventRecorder{}
	remove := hub.Add("sub", r.send)
	if hub.Count() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.Count())
	}
	remove()
	if hub.Count() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", hub.Count())
	}

	ev, _ := api.NewEvent(api.EventTaskCompleted, "t1", nil)
	hub.Broadcast(ev)
	time.Sleep(20 * time.Millisecond)
	if len(r.snapshot()) != 0 {
		t.Fatalf("removed subscriber must not receive events")
	}

	// Double remove is a no-op.
	remove()
}

func TestHubReplacesDuplicateSubscriberID(t *testing.T) {
	hub := NewHub()
	old := &eventRecorder{}
	fresh := &eventRecorder{}
	removeOld := hub.Add("sub", old.send)
	removeFresh := hub.Add("sub", fresh.send)
	defer removeFresh()
	if hub.Count() != 1 {
		t.Fatalf("expected replacement, got %d subscribers", hub.Count())
	}

	ev, _ := api.NewEvent(api.EventTaskStarted, "t1", nil)
	hub.Broadcast(ev)
	waitForEvents(t, fresh, 1)

	// The stale remove function must not evict the replacement.
	removeOld()
	if hub.Count() != 1 {
		t.Fatalf("stale remove evicted the replacement")
	}
}

func TestHubFailingSenderDoesNotBlockOthers(t *testing.T) {
	hub := NewHub()
	healthy := &eventRecorder{}
	removeBad := hub.Add("bad", func(api.Event) error { return errors.New("conn reset") })
	defer removeBad()
	removeGood := hub.Add("good", healthy.send)
	defer removeGood()

	for i := 0; i < 10; i++ {
		ev, _ := api.NewEvent(api.EventTaskProgress, "t1", api.ProgressPayload{BytesDone: int64(i)})
		hub.Broadcast(ev)
	}
	waitForEvents(t, healthy, 10)
}

func TestNotifierEventShapes(t *testing.T) {
	hub := NewHub()
	r := &eventRecorder{}
	remove := hub.Add("sub", r.send)
	defer remove()
	n := NewNotifier(hub, nil)

	task := scheduler.TransferTask{ID: "vault-7", DisplayName: "ep07.mkv", Priority: scheduler.Interactive}
	n.TaskQueued(task)
	n.TaskStarted(task, 3)
	n.TaskFinished(task, 3, scheduler.OutcomeSuccess, "rk7", nil)
	n.TaskFinished(task, 3, scheduler.OutcomeFailed, "", errors.New("source read failed"))
	n.TaskFinished(task, 3, scheduler.OutcomeCancelled, "", nil)

	evs := waitForEvents(t, r, 5)
	wantTypes := []string{
		api.EventTaskQueued,
		api.EventTaskStarted,
		api.EventTaskCompleted,
		api.EventTaskFailed,
		api.EventTaskCancelled,
	}
	for i, want := range wantTypes {
		if evs[i].Type != want {
			t.Fatalf("event %d: expected %s, got %s", i, want, evs[i].Type)
		}
		if evs[i].TaskID != "vault-7" {
			t.Fatalf("event %d: unexpected task id %s", i, evs[i].TaskID)
		}
		if err := evs[i].ValidateBasic(); err != nil {
			t.Fatalf("event %d invalid: %v", i, err)
		}
	}

	var started api.StartedPayload
	if err := evs[1].DecodePayload(&started); err != nil {
		t.Fatalf("decode started payload: %v", err)
	}
	if started.Slot != 3 || started.Priority != api.PriorityInteractive {
		t.Fatalf("unexpected started payload %+v", started)
	}

	var completed api.CompletedPayload
	if err := evs[2].DecodePayload(&completed); err != nil {
		t.Fatalf("decode completed payload: %v", err)
	}
	if completed.RemoteID != "rk7" {
		t.Fatalf("unexpected completed payload %+v", completed)
	}
}
