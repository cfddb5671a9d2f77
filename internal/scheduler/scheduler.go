package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mediavault/mediavault/internal/progress"
	"github.com/mediavault/mediavault/pkg/api"
)

// Executor runs one accepted transfer end-to-end and returns the durable
// remote identifier. It must honor ctx cancellation between chunks and
// report progress through meter.
type Executor interface {
	Run(ctx context.Context, task TransferTask, meter *progress.Meter) (remoteID string, err error)
}

// DedupProbe reports whether an object is already durably stored, so
// enqueue can short-circuit already-complete work.
type DedupProbe interface {
	Lookup(ctx context.Context, id string) (remoteID string, ok bool)
}

// Notifier receives task lifecycle notifications. Implementations must
// not block; they are invoked outside the scheduler mutex.
type Notifier interface {
	TaskQueued(task TransferTask)
	TaskStarted(task TransferTask, slot int)
	TaskFinished(task TransferTask, slot int, outcome Outcome, remoteID string, err error)
}

// Config sizes the slot table and tunes the wake interval.
type Config struct {
	BulkSlots        int
	InteractiveSlots int
	// WakeInterval bounds how long the loop sleeps without a wake
	// signal (default 2s), so a lost signal never wedges it.
	WakeInterval time.Duration
}

type tracked struct {
	task   TransferTask
	slot   int // -1 while queued
	cancel context.CancelFunc
	meter  *progress.Meter
}

type counters struct {
	totalQueued          int64
	totalCompleted       int64
	totalFailed          int64
	interactiveCompleted int64
	bulkCompleted        int64
}

// Scheduler owns the task queues, the dedup index and the slot table.
// All mutations happen under a single mutex; executors run outside it.
type Scheduler struct {
	cfg    Config
	exec   Executor
	probe  DedupProbe
	notify Notifier
	logger *slog.Logger

	mu    sync.Mutex
	queue pendingQueue
	slots *slotTable
	tasks map[string]*tracked
	stats counters

	wake chan struct{}
}

// New creates a scheduler. It fails only on a misconfigured slot table;
// per-task errors are never fatal.
func New(cfg Config, exec Executor, probe DedupProbe, notify Notifier, logger *slog.Logger) (*Scheduler, error) {
	if cfg.BulkSlots < 0 {
		cfg.BulkSlots = 0
	}
	if cfg.BulkSlots+cfg.InteractiveSlots < 1 {
		return nil, fmt.Errorf("scheduler: at least one execution slot is required")
	}
	if cfg.WakeInterval <= 0 {
		cfg.WakeInterval = 2 * time.Second
	}
	if exec == nil {
		return nil, fmt.Errorf("scheduler: executor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg,
		exec:   exec,
		probe:  probe,
		notify: notify,
		logger: logger,
		slots:  newSlotTable(cfg.BulkSlots, cfg.InteractiveSlots),
		tasks:  make(map[string]*tracked),
		wake:   make(chan struct{}, 1),
	}, nil
}

// Run drives the scheduler loop until ctx is cancelled. It wakes on
// enqueue/cancel/completion events and on the bounded wake interval.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		"bulk_slots", s.cfg.BulkSlots,
		"interactive_slots", s.cfg.InteractiveSlots)

	ticker := time.NewTicker(s.cfg.WakeInterval)
	defer ticker.Stop()

	for {
		s.dispatch(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-s.wake:
		case <-ticker.C:
		}
	}
}

// dispatch matches free slots to pending tasks until no match remains.
// Interactive work is drained completely before bulk work is considered,
// and the check restarts after every successful match.
func (s *Scheduler) dispatch(ctx context.Context) {
	for {
		s.mu.Lock()
		var task TransferTask
		slot := -1

		switch {
		case s.queue.headInteractive():
			if id, ok := s.slots.acquire(Interactive); ok {
				task = s.queue.popInteractive()
				slot = id
			}
		case s.queue.headBulk():
			if id, ok := s.slots.acquire(Bulk); ok {
				task = s.queue.popBulk()
				slot = id
			}
		}

		if slot < 0 {
			s.mu.Unlock()
			return
		}

		taskCtx, cancel := context.WithCancel(ctx)
		meter := progress.NewMeter()
		tr := s.tasks[task.ID]
		tr.slot = slot
		tr.cancel = cancel
		tr.meter = meter
		s.slots.slots[slot].task = task
		s.slots.slots[slot].cancel = cancel
		s.slots.slots[slot].meter = meter
		s.mu.Unlock()

		s.logger.Info("transfer started",
			"slot", slot, "id", task.ID, "priority", task.Priority.String(),
			"name", task.DisplayName, "group", task.Group)
		if s.notify != nil {
			s.notify.TaskStarted(task, slot)
		}

		go s.execute(taskCtx, task, slot, meter)
	}
}

// execute runs one transfer in its slot and reports back. Slot release
// and dedup cleanup are unconditional regardless of outcome.
func (s *Scheduler) execute(ctx context.Context, task TransferTask, slot int, meter *progress.Meter) {
	remoteID, err := s.exec.Run(ctx, task, meter)
	s.complete(task, slot, remoteID, err)
}

func (s *Scheduler) complete(task TransferTask, slot int, remoteID string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		if errors.Is(err, context.Canceled) {
			outcome = OutcomeCancelled
		} else {
			outcome = OutcomeFailed
		}
	}

	s.mu.Lock()
	s.slots.release(slot)
	delete(s.tasks, task.ID)
	switch outcome {
	case OutcomeSuccess:
		s.stats.totalCompleted++
		if task.Priority == Interactive {
			s.stats.interactiveCompleted++
		} else {
			s.stats.bulkCompleted++
		}
	default:
		s.stats.totalFailed++
	}
	s.mu.Unlock()

	switch outcome {
	case OutcomeSuccess:
		s.logger.Info("transfer completed",
			"slot", slot, "id", task.ID, "priority", task.Priority.String(), "remote_id", remoteID)
	case OutcomeCancelled:
		s.logger.Info("transfer cancelled", "slot", slot, "id", task.ID)
	default:
		s.logger.Error("transfer failed",
			"slot", slot, "id", task.ID, "name", task.DisplayName, "error", err)
	}

	if s.notify != nil {
		s.notify.TaskFinished(task, slot, outcome, remoteID, err)
	}
	s.wakeSignal()
}

// Enqueue validates, dedups and appends a task. Duplicate ids are
// rejected with AlreadyQueued; ids the sink already holds durably are
// rejected with AlreadyComplete and the existing remote id.
func (s *Scheduler) Enqueue(ctx context.Context, task TransferTask) EnqueueResult {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}

	s.mu.Lock()
	if _, exists := s.tasks[task.ID]; exists {
		s.mu.Unlock()
		return EnqueueResult{Status: AlreadyQueued}
	}
	s.mu.Unlock()

	// Probe outside the mutex: it may touch the network.
	if s.probe != nil {
		if remoteID, ok := s.probe.Lookup(ctx, task.ID); ok {
			return EnqueueResult{Status: AlreadyComplete, RemoteID: remoteID}
		}
	}

	s.mu.Lock()
	if _, exists := s.tasks[task.ID]; exists {
		// Lost a race with a concurrent enqueue of the same id.
		s.mu.Unlock()
		return EnqueueResult{Status: AlreadyQueued}
	}
	position := s.queue.push(task)
	s.tasks[task.ID] = &tracked{task: task, slot: -1}
	s.stats.totalQueued++
	s.mu.Unlock()

	s.logger.Info("transfer queued",
		"id", task.ID, "priority", task.Priority.String(),
		"name", task.DisplayName, "group", task.Group, "position", position)
	if s.notify != nil {
		s.notify.TaskQueued(task)
	}
	s.wakeSignal()
	return EnqueueResult{Status: Accepted, Position: position}
}

// Cancel removes a queued task or signals cancellation to a running one.
// Returns false when the id is unknown.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	tr, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if tr.slot >= 0 {
		// Running: cooperative cancel; the slot is released when the
		// executor observes the signal and reports back.
		cancel := tr.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.logger.Info("cancellation requested", "id", id)
		return true
	}
	task, _ := s.queue.remove(id)
	delete(s.tasks, id)
	s.mu.Unlock()

	s.logger.Info("queued transfer removed", "id", id)
	if s.notify != nil {
		s.notify.TaskFinished(task, -1, OutcomeCancelled, "", context.Canceled)
	}
	s.wakeSignal()
	return true
}

// InProgress reports whether a task with the given id is queued or running.
func (s *Scheduler) InProgress(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	return ok
}

// Status returns a point-in-time snapshot of queues, slots and counters.
func (s *Scheduler) Status() api.StatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	qi, qb := s.queue.lengths()
	resp := api.StatusResponse{
		QueuedInteractive:    qi,
		QueuedBulk:           qb,
		AvailableSlots:       s.slots.freeCount(),
		TotalSlots:           len(s.slots.slots),
		TotalQueued:          s.stats.totalQueued,
		TotalCompleted:       s.stats.totalCompleted,
		TotalFailed:          s.stats.totalFailed,
		InteractiveCompleted: s.stats.interactiveCompleted,
		BulkCompleted:        s.stats.bulkCompleted,
	}

	for i := range s.slots.slots {
		st := &s.slots.slots[i]
		if !st.occupied {
			continue
		}
		active := api.ActiveTransfer{
			Slot:        i,
			ID:          st.task.ID,
			Priority:    st.task.Priority.String(),
			DisplayName: st.task.DisplayName,
			Group:       st.task.Group,
		}
		if st.meter != nil {
			snap := st.meter.Snapshot()
			active.BytesDone = snap.BytesDone
			active.TotalBytes = snap.Total
			active.Percent = snap.Percent
			active.RateBps = snap.RateBps
		}
		resp.Active = append(resp.Active, active)
	}

	for _, task := range s.queue.interactive {
		resp.Pending = append(resp.Pending, queuedTransfer(task))
	}
	for _, task := range s.queue.bulk {
		resp.Pending = append(resp.Pending, queuedTransfer(task))
	}
	return resp
}

func queuedTransfer(task TransferTask) api.QueuedTransfer {
	return api.QueuedTransfer{
		ID:          task.ID,
		Priority:    task.Priority.String(),
		DisplayName: task.DisplayName,
		Group:       task.Group,
		EnqueuedAt:  task.EnqueuedAt.Unix(),
	}
}

// wakeSignal nudges the loop without blocking; a full channel means a
// wake is already pending.
func (s *Scheduler) wakeSignal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
