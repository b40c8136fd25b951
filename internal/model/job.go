package model

import "time"

// Job status constants.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

// validTransitions maps each status to the status it may transition to.
// Completed is terminal.
var validTransitions = map[string]string{
	StatusPending:    StatusProcessing,
	StatusProcessing: StatusCompleted,
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	next, ok := validTransitions[from]
	return ok && next == to
}

var statusOrder = map[string]int{
	StatusPending:    1,
	StatusProcessing: 2,
	StatusCompleted:  3,
}

// StatusOrder returns the position of status in the lifecycle, or 0 for an
// unknown status. Later states have higher values.
func StatusOrder(status string) int {
	return statusOrder[status]
}

// Job is the status record of one submitted unit of work. Records are
// treated as immutable values: every transition produces a new record.
type Job struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	Args        []string   `json:"args"`
	Status      string     `json:"status"`
	Worker      *int       `json:"worker"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Clone returns a deep copy of the record so callers never share state
// with the status table.
func (j *Job) Clone() *Job {
	c := *j
	if j.Args != nil {
		c.Args = append([]string(nil), j.Args...)
	}
	if j.Worker != nil {
		w := *j.Worker
		c.Worker = &w
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Transition returns a copy of the record moved to status, stamped at now.
// worker is recorded when entering processing.
func (j *Job) Transition(status string, worker int, now time.Time) *Job {
	next := j.Clone()
	next.Status = status
	switch status {
	case StatusProcessing:
		next.Worker = &worker
		next.StartedAt = &now
	case StatusCompleted:
		next.FinishedAt = &now
	}
	return next
}
