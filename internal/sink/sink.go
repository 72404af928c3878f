package sink

import (
	"context"
	"fmt"

	"github.com/wesleyorama2/httpmetrics/internal/metrics"
)

// Tags identify the probe a sample was taken by.
type Tags struct {
	// URL is the probed URL
	URL string

	// Location labels where the probe runs, e.g. the host name
	Location string
}

// Sink consumes exported samples.
type Sink interface {
	// Export synchronously writes one sample. Failures are returned as
	// *Error and never retried.
	Export(ctx context.Context, sample metrics.Sample, tags Tags) error

	// Close releases the sink's resources.
	Close() error
}

// Error is returned when a sample could not be exported.
type Error struct {
	Sink string
	Err  error
}

// Error returns the error message
func (e *Error) Error() string {
	return fmt.Sprintf("%s export failed: %v", e.Sink, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}
