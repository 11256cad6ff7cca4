package scheduler

// RejectedError is returned by Submit for a job_descriptor that fails
// admission validation before any job record is created (spec.md
// section 3: "on failure the submission is rejected; no job record is
// retained").
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "submission rejected: " + e.Reason
}
