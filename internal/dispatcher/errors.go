package dispatcher

import "fmt"

// JobError records why a job was dead-lettered.
type JobError struct {
	JobID   string
	Input   string
	Attempt int
	Err     error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s (%s) failed on attempt %d: %v", e.JobID, e.Input, e.Attempt, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// ValidationError represents a fatal problem with the job payload itself.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}
