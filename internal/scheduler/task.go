package scheduler

import (
	"fmt"
	"time"
)

// PriorityClass separates latency-sensitive transfers from batch work.
type PriorityClass int

const (
	// Interactive transfers serve an immediate playback request.
	Interactive PriorityClass = iota
	// Bulk transfers belong to a queued batch (e.g. a whole season).
	Bulk
)

func (c PriorityClass) String() string {
	switch c {
	case Interactive:
		return "interactive"
	case Bulk:
		return "bulk"
	default:
		return "unknown"
	}
}

// Locator identifies one object at the remote messaging source.
type Locator struct {
	Channel   string
	MessageID int64
}

// Key derives the deterministic task ID for a locator. The same object
// always maps to the same ID, which is what makes dedup work.
func (l Locator) Key() string {
	return fmt.Sprintf("%s-%d", l.Channel, l.MessageID)
}

// TransferTask is one requested object transfer.
// Priority is set at enqueue time and immutable thereafter.
type TransferTask struct {
	ID          string
	Locator     Locator
	DisplayName string
	Priority    PriorityClass
	EnqueuedAt  time.Time
	Group       string // series/season label, observability only
}

// EnqueueStatus is the outcome of an Enqueue call.
type EnqueueStatus int

const (
	// Accepted means the task was appended to its priority queue.
	Accepted EnqueueStatus = iota
	// AlreadyQueued means a task with the same ID is queued or running.
	AlreadyQueued
	// AlreadyComplete means the object is already durably stored.
	AlreadyComplete
)

// EnqueueResult reports the outcome of an Enqueue call.
// RemoteID is set for AlreadyComplete; Position is the 1-based queue
// position within the task's priority class for Accepted.
type EnqueueResult struct {
	Status   EnqueueStatus
	RemoteID string
	Position int
}

// Outcome classifies how an accepted transfer ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
