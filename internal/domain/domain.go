package domain

import (
	"errors"
	"io"
	"time"
)

type JobStatus string

const (
	StatusPending        JobStatus = "PENDING"
	StatusUploadingFiles JobStatus = "UPLOADING_FILES"
	StatusQueued         JobStatus = "QUEUED"
	StatusProcessing     JobStatus = "PROCESSING"
	StatusCompleted      JobStatus = "COMPLETED"
	StatusFailed         JobStatus = "FAILED"
)

// IsTerminal reports whether a job in this status accepts no further writes.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress checkpoints along the job path. Advisory only; nothing decides
// correctness off them.
const (
	ProgressCreated    = 0
	ProgressUploading  = 10
	ProgressQueued     = 20
	ProgressProcessing = 30
	ProgressDone       = 100
)

type Job struct {
	ID string `json:"id"`

	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`

	// ResultKey is set only once Status is COMPLETED,
	// Error only once it is FAILED.
	ResultKey string `json:"result_key"`
	Error     string `json:"error"`

	// InputKeys is the ordered list of uploaded input objects. Inputs are
	// single-use: the processor deletes each one right after reading it, so
	// the list describes intent, not existence.
	InputKeys []string `json:"input_keys"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobPatch is a partial update of mutable job state. Nil fields are left
// untouched by the store.
type JobPatch struct {
	Status    *JobStatus
	Progress  *int
	ResultKey *string
	Error     *string
}

// StatusPatch builds the common status+progress patch.
func StatusPatch(status JobStatus, progress int) JobPatch {
	return JobPatch{Status: &status, Progress: &progress}
}

// Upload is one submitted input file, as received at the HTTP boundary.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Timeline bounds the period the generated book should cover.
// Both bounds are required at submission.
type Timeline struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WorkItem is the message carried by the dispatcher. Immutable once enqueued.
type WorkItem struct {
	JobID    string   `json:"job_id"`
	FileKeys []string `json:"file_keys"`
	Timeline Timeline `json:"timeline"`
	Prompt   string   `json:"prompt"`
}

type SubmitResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

type StatusResponse struct {
	JobID    string    `json:"jobId"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Result   string    `json:"result,omitempty"`
	Error    string    `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrJobNotFound    = errors.New("job not found")
	ErrJobTerminal    = errors.New("job already in terminal state")
	ErrJobNotReady    = errors.New("job result not ready")
)
