package task

import (
	"context"
	"io"
	"time"

	"scorebatch/internal/remote"
)

// Status is the local lifecycle state of a queued submission. Transitions
// are forward-only: a task never re-enters idle, and done/error are final.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusUploading  Status = "uploading"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Task is one submitted item tracked through upload and remote processing.
//
// PayloadPath points at the spooled raw bytes and is only set while the task
// is idle or uploading; records reconstructed from history never carry one.
// JobID is assigned exactly once when the engine accepts the upload,
// ResultLocation exactly once on done, ErrorMessage exactly once on error.
type Task struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	PayloadPath    string    `json:"payload_path,omitempty"`
	Status         Status    `json:"status"`
	JobID          string    `json:"job_id,omitempty"`
	ResultLocation string    `json:"result_location,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Engine is the remote scoring engine as seen by the orchestrator.
// *remote.Client satisfies it; tests substitute fakes.
type Engine interface {
	Submit(ctx context.Context, payload io.Reader, filename, reference, mode string) (remote.SubmitResult, error)
	Status(ctx context.Context, jobID string) (remote.JobStatus, error)
	ListReports(ctx context.Context) ([]remote.Report, error)
	Delete(ctx context.Context, jobID string) error
	BatchDelete(ctx context.Context, jobIDs []string) error
}

// Options configures a Manager.
type Options struct {
	DataDir     string
	Engine      Engine
	EngineMode  string
	PollMaxWait time.Duration
	// Poll pacing; zero values fall back to the defaults below.
	PollInitialDelay time.Duration
	PollInterval     time.Duration
	// Debounce window for auto-run after appends.
	AutoRunDelay time.Duration
}

const (
	defaultPollInitialDelay = 1 * time.Second
	defaultPollInterval     = 2 * time.Second
	defaultPollMaxWait      = 30 * time.Minute
	defaultAutoRunDelay     = 500 * time.Millisecond
	defaultEngineMode       = "auto"
)
