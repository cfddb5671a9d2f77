package events

import (
	"log/slog"

	"github.com/mediavault/mediavault/internal/progress"
	"github.com/mediavault/mediavault/internal/scheduler"
	"github.com/mediavault/mediavault/pkg/api"
)

// Notifier translates scheduler lifecycle callbacks and executor progress
// into feed events on the hub.
type Notifier struct {
	hub    *Hub
	logger *slog.Logger
}

// NewNotifier wraps a hub as a scheduler notifier.
func NewNotifier(hub *Hub, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{hub: hub, logger: logger}
}

func (n *Notifier) emit(eventType, taskID string, payload any) {
	ev, err := api.NewEvent(eventType, taskID, payload)
	if err != nil {
		n.logger.Error("event encode failed", "type", eventType, "id", taskID, "error", err)
		return
	}
	n.hub.Broadcast(ev)
}

func (n *Notifier) TaskQueued(task scheduler.TransferTask) {
	n.emit(api.EventTaskQueued, task.ID, api.QueuedPayload{
		Priority:    task.Priority.String(),
		DisplayName: task.DisplayName,
	})
}

func (n *Notifier) TaskStarted(task scheduler.TransferTask, slot int) {
	n.emit(api.EventTaskStarted, task.ID, api.StartedPayload{
		Slot:     slot,
		Priority: task.Priority.String(),
	})
}

func (n *Notifier) TaskFinished(task scheduler.TransferTask, slot int, outcome scheduler.Outcome, remoteID string, err error) {
	switch outcome {
	case scheduler.OutcomeSuccess:
		n.emit(api.EventTaskCompleted, task.ID, api.CompletedPayload{RemoteID: remoteID})
	case scheduler.OutcomeCancelled:
		n.emit(api.EventTaskCancelled, task.ID, nil)
	default:
		reason := "transfer failed"
		if err != nil {
			reason = err.Error()
		}
		n.emit(api.EventTaskFailed, task.ID, api.FailedPayload{Reason: reason})
	}
}

// Progress forwards an executor progress sample. Throttling happens at
// the executor, so every call here becomes one event.
func (n *Notifier) Progress(task scheduler.TransferTask, snap progress.Stats, chunkSize int) {
	n.emit(api.EventTaskProgress, task.ID, api.ProgressPayload{
		BytesDone:  snap.BytesDone,
		TotalBytes: snap.Total,
		Percent:    snap.Percent,
		RateBps:    snap.RateBps,
		ChunkSize:  chunkSize,
	})
}
