package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mediavault/mediavault/internal/progress"
)

// fakeExecutor blocks each task until the test releases it.
type fakeExecutor struct {
	mu     sync.Mutex
	order  []string
	blocks map[string]chan error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{blocks: make(map[string]chan error)}
}

func (f *fakeExecutor) Run(ctx context.Context, task TransferTask, meter *progress.Meter) (string, error) {
	f.mu.Lock()
	f.order = append(f.order, task.ID)
	ch := f.channel(task.ID)
	f.mu.Unlock()

	select {
	case err := <-ch:
		if err != nil {
			return "", err
		}
		return "remote-" + task.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeExecutor) channel(id string) chan error {
	ch, ok := f.blocks[id]
	if !ok {
		ch = make(chan error, 1)
		f.blocks[id] = ch
	}
	return ch
}

func (f *fakeExecutor) finish(id string, err error) {
	f.mu.Lock()
	ch := f.channel(id)
	f.mu.Unlock()
	ch <- err
}

func (f *fakeExecutor) started() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

type fakeProbe struct {
	stored map[string]string
}

func (p *fakeProbe) Lookup(ctx context.Context, id string) (string, bool) {
	remoteID, ok := p.stored[id]
	return remoteID, ok
}

func startScheduler(t *testing.T, cfg Config, exec Executor, probe DedupProbe) (*Scheduler, context.CancelFunc) {
	t.Helper()
	if cfg.WakeInterval == 0 {
		cfg.WakeInterval = 10 * time.Millisecond
	}
	s, err := New(cfg, exec, probe, nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	return s, cancel
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func bulkTask(id string) TransferTask {
	return TransferTask{ID: id, Priority: Bulk, DisplayName: id + ".mkv"}
}

func interactiveTask(id string) TransferTask {
	return TransferTask{ID: id, Priority: Interactive, DisplayName: id + ".mkv"}
}

func TestBulkFillsOnlyBulkSlots(t *testing.T) {
	exec := newFakeExecutor()
	s, cancel := startScheduler(t, Config{BulkSlots: 3, InteractiveSlots: 1}, exec, nil)
	defer cancel()

	for _, id := range []string{"b1", "b2", "b3", "b4", "b5"} {
		if res := s.Enqueue(context.Background(), bulkTask(id)); res.Status != Accepted {
			t.Fatalf("enqueue %s: unexpected status %v", id, res.Status)
		}
	}

	waitFor(t, "three bulk starts", func() bool { return len(exec.started()) == 3 })

	status := s.Status()
	if status.QueuedBulk != 2 {
		t.Fatalf("expected 2 queued bulk, got %d", status.QueuedBulk)
	}
	if len(status.Active) != 3 {
		t.Fatalf("expected 3 active, got %d", len(status.Active))
	}
	// The interactive-reserved slot must stay idle.
	if status.AvailableSlots != 1 {
		t.Fatalf("expected 1 available slot, got %d", status.AvailableSlots)
	}
}

func TestInteractiveAdmittedImmediately(t *testing.T) {
	exec := newFakeExecutor()
	s, cancel := startScheduler(t, Config{BulkSlots: 3, InteractiveSlots: 1}, exec, nil)
	defer cancel()

	for _, id := range []string{"b1", "b2", "b3", "b4"} {
		s.Enqueue(context.Background(), bulkTask(id))
	}
	waitFor(t, "bulk slots filled", func() bool { return len(exec.started()) == 3 })

	s.Enqueue(context.Background(), interactiveTask("i1"))
	waitFor(t, "interactive start", func() bool {
		for _, id := range exec.started() {
			if id == "i1" {
				return true
			}
		}
		return false
	})

	status := s.Status()
	if len(status.Active) != 4 {
		t.Fatalf("expected 4 active, got %d", len(status.Active))
	}
	if status.QueuedBulk != 1 {
		t.Fatalf("expected b4 still queued, got %d", status.QueuedBulk)
	}
}

func TestInteractiveBorrowsFreedBulkSlot(t *testing.T) {
	exec := newFakeExecutor()
	s, cancel := startScheduler(t, Config{BulkSlots: 3, InteractiveSlots: 1}, exec, nil)
	defer cancel()

	for _, id := range []string{"b1", "b2", "b3", "b4"} {
		s.Enqueue(context.Background(), bulkTask(id))
	}
	s.Enqueue(context.Background(), interactiveTask("i1"))
	waitFor(t, "all slots busy", func() bool { return len(exec.started()) == 4 })

	// i2 must wait: every slot is occupied.
	s.Enqueue(context.Background(), interactiveTask("i2"))
	status := s.Status()
	if status.QueuedInteractive != 1 {
		t.Fatalf("expected i2 queued, got %d", status.QueuedInteractive)
	}

	// Freeing a bulk-reserved slot must admit i2, not b4.
	exec.finish("b1", nil)
	waitFor(t, "i2 start", func() bool {
		for _, id := range exec.started() {
			if id == "i2" {
				return true
			}
		}
		return false
	})

	status = s.Status()
	if status.QueuedBulk != 1 {
		t.Fatalf("expected b4 still queued after i2 admitted, got %d", status.QueuedBulk)
	}
}

func TestBulkNeverTakesInteractiveSlot(t *testing.T) {
	exec := newFakeExecutor()
	s, cancel := startScheduler(t, Config{BulkSlots: 1, InteractiveSlots: 1}, exec, nil)
	defer cancel()

	s.Enqueue(context.Background(), bulkTask("b1"))
	s.Enqueue(context.Background(), bulkTask("b2"))
	waitFor(t, "first bulk start", func() bool { return len(exec.started()) == 1 })

	// Give the loop time to (incorrectly) admit b2.
	time.Sleep(50 * time.Millisecond)
	status := s.Status()
	if len(status.Active) != 1 {
		t.Fatalf("bulk must not occupy the interactive slot, active=%d", len(status.Active))
	}
	if status.QueuedBulk != 1 {
		t.Fatalf("expected b2 queued, got %d", status.QueuedBulk)
	}
}

func TestFCFSWithinClass(t *testing.T) {
	exec := newFakeExecutor()
	s, cancel := startScheduler(t, Config{BulkSlots: 1, InteractiveSlots: 1}, exec, nil)
	defer cancel()

	for _, id := range []string{"b1", "b2", "b3"} {
		s.Enqueue(context.Background(), bulkTask(id))
	}
	waitFor(t, "b1 start", func() bool { return len(exec.started()) == 1 })
	exec.finish("b1", nil)
	waitFor(t, "b2 start", func() bool { return len(exec.started()) == 2 })
	exec.finish("b2", nil)
	waitFor(t, "b3 start", func() bool { return len(exec.started()) == 3 })

	got := exec.started()
	want := []string{"b1", "b2", "b3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected start order %v, got %v", want, got)
		}
	}
}

func TestDuplicateEnqueueRejected(t *testing.T) {
	exec := newFakeExecutor()
	s, cancel := startScheduler(t, Config{BulkSlots: 1, InteractiveSlots: 1}, exec, nil)
	defer cancel()

	if res := s.Enqueue(context.Background(), bulkTask("x")); res.Status != Accepted {
		t.Fatalf("first enqueue: unexpected status %v", res.Status)
	}
	if res := s.Enqueue(context.Background(), bulkTask("x")); res.Status != AlreadyQueued {
		t.Fatalf("second enqueue: expected AlreadyQueued, got %v", res.Status)
	}

	waitFor(t, "x start", func() bool { return len(exec.started()) == 1 })
	// Still running: third enqueue must also be rejected.
	if res := s.Enqueue(context.Background(), bulkTask("x")); res.Status != AlreadyQueued {
		t.Fatalf("expected AlreadyQueued while running, got %v", res.Status)
	}

	exec.finish("x", nil)
	waitFor(t, "x completion", func() bool { return !s.InProgress("x") })
	if got := len(exec.started()); got != 1 {
		t.Fatalf("task x must run exactly once, ran %d times", got)
	}
}

func TestAlreadyStoredShortCircuits(t *testing.T) {
	exec := newFakeExecutor()
	probe := &fakeProbe{stored: map[string]string{"done": "remote-abc"}}
	s, cancel := startScheduler(t, Config{BulkSlots: 1, InteractiveSlots: 1}, exec, probe)
	defer cancel()

	res := s.Enqueue(context.Background(), interactiveTask("done"))
	if res.Status != AlreadyComplete {
		t.Fatalf("expected AlreadyComplete, got %v", res.Status)
	}
	if res.RemoteID != "remote-abc" {
		t.Fatalf("expected existing remote id, got %s", res.RemoteID)
	}
	if s.InProgress("done") {
		t.Fatalf("already-stored task must not be tracked")
	}
}

func TestCancelQueuedTask(t *testing.T) {
	exec := newFakeExecutor()
	s, cancel := startScheduler(t, Config{BulkSlots: 1, InteractiveSlots: 1}, exec, nil)
	defer cancel()

	s.Enqueue(context.Background(), bulkTask("b1"))
	s.Enqueue(context.Background(), bulkTask("b2"))
	waitFor(t, "b1 start", func() bool { return len(exec.started()) == 1 })

	if !s.Cancel("b2") {
		t.Fatalf("expected cancel of queued task to succeed")
	}
	status := s.Status()
	if status.QueuedBulk != 0 {
		t.Fatalf("expected empty bulk queue, got %d", status.QueuedBulk)
	}
	if len(status.Active) != 1 {
		t.Fatalf("cancel of queued task must not touch active, got %d", len(status.Active))
	}
	if status.TotalCompleted != 0 || status.TotalFailed != 0 {
		t.Fatalf("cancel of queued task must not move counters: %+v", status)
	}

	if s.Cancel("nope") {
		t.Fatalf("expected cancel of unknown id to fail")
	}
}

func TestCancelRunningTaskReleasesSlot(t *testing.T) {
	exec := newFakeExecutor()
	s, cancel := startScheduler(t, Config{BulkSlots: 1, InteractiveSlots: 1}, exec, nil)
	defer cancel()

	s.Enqueue(context.Background(), bulkTask("b1"))
	waitFor(t, "b1 start", func() bool { return len(exec.started()) == 1 })

	if !s.Cancel("b1") {
		t.Fatalf("expected cancel of running task to succeed")
	}
	waitFor(t, "slot release", func() bool { return !s.InProgress("b1") })

	status := s.Status()
	if status.AvailableSlots != 2 {
		t.Fatalf("expected all slots free, got %d", status.AvailableSlots)
	}
	if status.TotalFailed != 1 {
		t.Fatalf("cancelled run counts as failed outcome, got %d", status.TotalFailed)
	}
}

func TestCompletionCounters(t *testing.T) {
	exec := newFakeExecutor()
	s, cancel := startScheduler(t, Config{BulkSlots: 2, InteractiveSlots: 1}, exec, nil)
	defer cancel()

	s.Enqueue(context.Background(), bulkTask("b1"))
	s.Enqueue(context.Background(), interactiveTask("i1"))
	waitFor(t, "both started", func() bool { return len(exec.started()) == 2 })

	exec.finish("b1", nil)
	exec.finish("i1", errors.New("gateway unreachable"))
	waitFor(t, "both done", func() bool { return !s.InProgress("b1") && !s.InProgress("i1") })

	status := s.Status()
	if status.TotalCompleted != 1 || status.BulkCompleted != 1 {
		t.Fatalf("expected one bulk completion, got %+v", status)
	}
	if status.TotalFailed != 1 {
		t.Fatalf("expected one failure, got %+v", status)
	}
	if status.InteractiveCompleted != 0 {
		t.Fatalf("failed interactive task must not count as completed")
	}
	if status.TotalQueued != 2 {
		t.Fatalf("expected totalQueued 2, got %d", status.TotalQueued)
	}
}

func TestFailedTaskCanBeReEnqueued(t *testing.T) {
	exec := newFakeExecutor()
	s, cancel := startScheduler(t, Config{BulkSlots: 1, InteractiveSlots: 1}, exec, nil)
	defer cancel()

	s.Enqueue(context.Background(), bulkTask("b1"))
	waitFor(t, "b1 start", func() bool { return len(exec.started()) == 1 })
	exec.finish("b1", errors.New("read reset"))
	waitFor(t, "b1 gone", func() bool { return !s.InProgress("b1") })

	// No automatic retry: the caller re-enqueues explicitly.
	if res := s.Enqueue(context.Background(), bulkTask("b1")); res.Status != Accepted {
		t.Fatalf("expected re-enqueue to be accepted, got %v", res.Status)
	}
}

func TestZeroSlotsRejected(t *testing.T) {
	if _, err := New(Config{}, newFakeExecutor(), nil, nil, nil); err == nil {
		t.Fatalf("expected error for empty slot table")
	}
}
