package runner

import (
	"time"

	"github.com/wesleyorama2/httpmetrics/internal/metrics"
)

// Info describes a run when it starts
type Info struct {
	URL             string
	Method          string
	Mode            Mode
	Interval        time.Duration
	ReuseConnection bool
	Export          bool
}

// Summary is the outcome of a run
type Summary struct {
	Info

	// Attempts is the number of requests started and completed or failed
	Attempts  int
	Succeeded int
	Failed    int

	// Average is set for a FixedLoop run with at least one successful
	// sample, including one that was cancelled before its last iteration.
	Average *metrics.Average

	// Elapsed is the wall time of the run without the interval pauses
	Elapsed time.Duration

	// Cancelled is set when the run was interrupted
	Cancelled bool
}

// Reporter receives the events of a run in order. Every failure is
// delivered, including the ones that do not stop the run.
type Reporter interface {
	Started(info Info)
	Sample(iteration int, sample metrics.Sample)
	Failure(iteration int, err error)
	SinkFailure(iteration int, err error)
	Finished(summary Summary)
}

type nopReporter struct{}

func (nopReporter) Started(Info) {}
func (nopReporter) Sample(int, metrics.Sample) {}
func (nopReporter) Failure(int, error) {}
func (nopReporter) SinkFailure(int, error) {}
func (nopReporter) Finished(Summary) {}
