package model

import "time"

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobComplete JobStatus = "complete"
	JobFailed   JobStatus = "failed"
)

// IsTerminal reports whether no further transition can happen from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobComplete || s == JobFailed
}

// Rank orders statuses along the lifecycle. Both terminal states share the top rank.
func (s JobStatus) Rank() int {
	switch s {
	case JobPending:
		return 0
	case JobRunning:
		return 1
	case JobComplete, JobFailed:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	return s.Rank() >= 0
}

// Job is a tracked accessibility scan.
type Job struct {
	ID     string    `json:"id"`
	URL    string    `json:"url"`
	Status JobStatus `json:"status"`

	// Result is set only when Status == complete.
	Result *ReportResult `json:"result,omitempty"`

	// Error is set only when Status == failed.
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// Clone returns a copy that shares the (immutable once terminal) result.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	return &cp
}

type JobEventType string

const (
	JobEventStatus JobEventType = "status"
	JobEventResult JobEventType = "result"
)

// JobEvent is emitted on every job transition and streamed to subscribers.
type JobEvent struct {
	JobID  string       `json:"job_id"`
	Type   JobEventType `json:"type"`
	Status JobStatus    `json:"status"`
	Error  string       `json:"error,omitempty"`
	Score  *float64     `json:"score,omitempty"`
	At     time.Time    `json:"at"`
}
