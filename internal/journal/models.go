package journal

import (
	"time"
)

// Run is one invocation of the registration command
type Run struct {
	ID           int64      `db:"id"`
	StartedAt    time.Time  `db:"started_at"`
	FinishedAt   *time.Time `db:"finished_at"`
	Courses      int        `db:"courses"`
	Participants int        `db:"participants"`
	Status       string     `db:"status"` // "running", "completed", "interrupted"
}

// CourseResult is the outcome of one course within a run
type CourseResult struct {
	ID           int64     `db:"id"`
	RunID        int64     `db:"run_id"`
	CourseID     string    `db:"course_id"`
	Ledger       string    `db:"ledger"`
	Registered   int       `db:"registered"`
	Failures     int       `db:"failures"`
	Sweeps       int       `db:"sweeps"`
	Participants int       `db:"participants"`
	Appended     int       `db:"appended"`
	Error        string    `db:"error"`
	CreatedAt    time.Time `db:"created_at"`
}

// Run statuses
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusInterrupted = "interrupted"
)
