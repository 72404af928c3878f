package http

import (
	"context"
	"fmt"
	"io"
	"net/http/httptrace"

	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/httpmetrics/internal/metrics"
)

// Executor performs instrumented HTTP transactions. It keeps no state
// between calls.
type Executor struct {
	log logrus.FieldLogger
}

// NewExecutor creates an executor logging to log, or to the standard
// logrus logger when log is nil.
func NewExecutor(log logrus.FieldLogger) *Executor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{log: log}
}

// Execute performs req on a handle obtained from conn and returns the
// phase timings of the transaction.
//
// An ephemeral handle is closed before Execute returns, whatever the
// outcome. A reused handle is left open for the next call. Transport errors
// are returned as *TransportFailure; a cancelled ctx is returned as the
// context error.
func (e *Executor) Execute(ctx context.Context, req Request, conn Connection) (metrics.Sample, error) {
	if conn.reused() {
		e.log.Debug("Using existing connection")
	} else {
		e.log.Debug("Creating new connection")
	}

	handle, release := conn.acquire()
	defer release()

	httpReq, err := req.Build(ctx)
	if err != nil {
		return metrics.Sample{}, err
	}

	timer := newPhaseTimer()
	httpReq = httpReq.WithContext(httptrace.WithClientTrace(httpReq.Context(), timer.trace()))

	timer.begin()
	httpResp, err := handle.Do(httpReq)
	if err != nil {
		return metrics.Sample{}, e.failure(ctx, timer, err)
	}
	defer httpResp.Body.Close()

	received, err := io.Copy(io.Discard, httpResp.Body)
	timer.finish()
	if err != nil {
		return metrics.Sample{}, e.failure(ctx, timer, err)
	}

	sample := timer.sample()
	sample.DataReceivedKB = float64(received) / 1024
	sample.ResponseCode = httpResp.StatusCode

	if err := sample.Validate(); err != nil {
		return metrics.Sample{}, fmt.Errorf("inconsistent phase timing: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"status":      httpResp.StatusCode,
		"reused_conn": timer.connReused(),
		"total":       sample.Total,
	}).Debug("Request completed")

	return sample, nil
}

func (e *Executor) failure(ctx context.Context, timer *phaseTimer, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("request interrupted: %w", ctxErr)
	}
	failure := newTransportFailure(timer.failedPhase(), err)
	e.log.WithError(err).WithField("phase", failure.Phase).Debug("Request failed")
	return failure
}
