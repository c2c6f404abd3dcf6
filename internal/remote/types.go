package remote

import "fmt"

// JobState is the engine-reported lifecycle state of a scoring job.
type JobState string

const (
	StateQueued     JobState = "queued"
	StateProcessing JobState = "processing"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
)

// Terminal reports whether the engine will not change this state again.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// SubmitResult is the engine's acknowledgement of an accepted upload.
type SubmitResult struct {
	JobID         string `json:"job_id"`
	SubmissionID  string `json:"submission_id"`
	QueuePosition int    `json:"queue_position"`
}

// JobStatus is one poll response for a job.
type JobStatus struct {
	ID        string   `json:"id"`
	State     JobState `json:"status"`
	ResultURL string   `json:"result_url"`
	Error     string   `json:"error"`
}

// Report is one historical record from the engine's listing endpoint.
type Report struct {
	ID        string  `json:"id"`
	URL       string  `json:"url"`
	Name      string  `json:"student_name"`
	Timestamp float64 `json:"timestamp"`
}

// SubmissionError means the engine (or a proxy in front of it) explicitly
// rejected a request. It is terminal for the task that triggered it.
type SubmissionError struct {
	StatusCode int
	Reason     string
}

func (e *SubmissionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("engine rejected request (HTTP %d): %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("engine rejected request (HTTP %d)", e.StatusCode)
}

// TransportError means a request never produced a usable engine response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
