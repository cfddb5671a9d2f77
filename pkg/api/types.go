package api

// Event type constants for the /events feed.
const (
	EventTaskQueued    = "task_queued"
	EventTaskStarted   = "task_started"
	EventTaskProgress  = "task_progress"
	EventTaskCompleted = "task_completed"
	EventTaskFailed    = "task_failed"
	EventTaskCancelled = "task_cancelled"
)

// Enqueue status constants returned by POST /transfers and POST /batches.
const (
	StatusQueued          = "queued"
	StatusAlreadyQueued   = "already_queued"
	StatusAlreadyUploaded = "already_uploaded"
	StatusRejected        = "rejected"
)

// Priority class names as they appear on the wire.
const (
	PriorityInteractive = "interactive"
	PriorityBulk        = "bulk"
)
