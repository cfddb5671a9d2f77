package api

// EnqueueRequest asks the server to fetch and re-host one object.
type EnqueueRequest struct {
	URL string `json:"url"`
}

// EnqueueResponse reports the outcome of a single enqueue.
type EnqueueResponse struct {
	Status   string `json:"status"`
	ID       string `json:"id,omitempty"`
	RemoteID string `json:"remote_id,omitempty"`
	Position int    `json:"position,omitempty"`
	Error    string `json:"error,omitempty"`
}

// EpisodeRequest is one entry of a batch enqueue.
type EpisodeRequest struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// BatchRequest asks the server to fetch a whole season as bulk work.
type BatchRequest struct {
	Series   string           `json:"series,omitempty"`
	Season   string           `json:"season,omitempty"`
	Episodes []EpisodeRequest `json:"episodes"`
}

// BatchResponse reports per-episode enqueue outcomes.
type BatchResponse struct {
	Queued  int               `json:"queued"`
	Skipped int               `json:"skipped"`
	Failed  int               `json:"failed"`
	Results []EnqueueResponse `json:"results"`
}

// ActiveTransfer describes one occupied execution slot.
type ActiveTransfer struct {
	Slot        int     `json:"slot"`
	ID          string  `json:"id"`
	Priority    string  `json:"priority"`
	DisplayName string  `json:"display_name,omitempty"`
	Group       string  `json:"group,omitempty"`
	BytesDone   int64   `json:"bytes_done"`
	TotalBytes  int64   `json:"total_bytes"`
	Percent     float64 `json:"percent"`
	RateBps     float64 `json:"rate_bps"`
}

// QueuedTransfer describes one still-pending task.
type QueuedTransfer struct {
	ID          string `json:"id"`
	Priority    string `json:"priority"`
	DisplayName string `json:"display_name,omitempty"`
	Group       string `json:"group,omitempty"`
	EnqueuedAt  int64  `json:"enqueued_at"`
}

// StatusResponse is the full scheduler status payload.
type StatusResponse struct {
	QueuedInteractive    int              `json:"queued_interactive"`
	QueuedBulk           int              `json:"queued_bulk"`
	Active               []ActiveTransfer `json:"active"`
	Pending              []QueuedTransfer `json:"pending,omitempty"`
	AvailableSlots       int              `json:"available_slots"`
	TotalSlots           int              `json:"total_slots"`
	TotalQueued          int64            `json:"total_queued"`
	TotalCompleted       int64            `json:"total_completed"`
	TotalFailed          int64            `json:"total_failed"`
	InteractiveCompleted int64            `json:"interactive_completed"`
	BulkCompleted        int64            `json:"bulk_completed"`
	RegistryEntries      int              `json:"registry_entries,omitempty"`
}

// QueuedPayload is the payload of a task_queued event.
type QueuedPayload struct {
	Priority    string `json:"priority"`
	DisplayName string `json:"display_name,omitempty"`
}

// StartedPayload is the payload of a task_started event.
type StartedPayload struct {
	Slot     int    `json:"slot"`
	Priority string `json:"priority"`
}

// ProgressPayload is the payload of a task_progress event.
type ProgressPayload struct {
	BytesDone  int64   `json:"bytes_done"`
	TotalBytes int64   `json:"total_bytes"`
	Percent    float64 `json:"percent"`
	RateBps    float64 `json:"rate_bps"`
	ChunkSize  int     `json:"chunk_size"`
}

// CompletedPayload is the payload of a task_completed event.
type CompletedPayload struct {
	RemoteID string `json:"remote_id"`
}

// FailedPayload is the payload of a task_failed event.
type FailedPayload struct {
	Reason string `json:"reason"`
}
