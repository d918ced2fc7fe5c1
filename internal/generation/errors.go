package generation

import (
	"errors"
	"strings"
)

// ErrCancelled signals that the job was cancelled out-of-band; the run stops
// without overwriting the cancelled status.
var ErrCancelled = errors.New("job cancelled")

// ValidationFailedError is fatal for the job: remaining stages are aborted
// and the joined errors become the job's error message.
type ValidationFailedError struct {
	Errors []string
}

func (e *ValidationFailedError) Error() string {
	return "dataset validation failed: " + strings.Join(e.Errors, "; ")
}
