package semlock

import "fmt"

// NotFoundError reports an acquisition against a semaphore that is not
// registered in the catalog or has no configured slots. Nothing is written
// to the audit trail for such a request.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("semaphore %q has no registered slots", e.Name)
}

// AcquisitionFailedError reports that the retry budget was exhausted without
// a grant. The request row persists with a null grant_time as evidence.
type AcquisitionFailedError struct {
	Name     string
	Attempts int

	cause error
}

func (e *AcquisitionFailedError) Error() string {
	return fmt.Sprintf("failed to acquire semaphore %q after %d attempts: %v", e.Name, e.Attempts, e.cause)
}

func (e *AcquisitionFailedError) Unwrap() error {
	return e.cause
}
