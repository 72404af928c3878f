package runner

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/httpmetrics/internal/config"
	"github.com/wesleyorama2/httpmetrics/internal/http"
	"github.com/wesleyorama2/httpmetrics/internal/metrics"
	"github.com/wesleyorama2/httpmetrics/internal/sink"
)

// Executor performs one instrumented request
type Executor interface {
	Execute(ctx context.Context, req http.Request, conn http.Connection) (metrics.Sample, error)
}

// Controller drives a run: it selects the mode once, issues requests one
// after the other, folds samples, exports them and paces iterations.
//
// Cancellation of the run context is observed after every request and
// during every pause. A cancelled run still releases its connection and
// reports a summary.
type Controller struct {
	cfg       config.RunConfig
	executor  Executor
	sink      sink.Sink
	reporter  Reporter
	newHandle http.HandleFactory
	log       logrus.FieldLogger
}

// Option configures a Controller
type Option func(*Controller)

// WithExecutor replaces the default HTTP executor
func WithExecutor(executor Executor) Option {
	return func(c *Controller) {
		c.executor = executor
	}
}

// WithSink exports every sample to s
func WithSink(s sink.Sink) Option {
	return func(c *Controller) {
		c.sink = s
	}
}

// WithReporter sends run events to r
func WithReporter(r Reporter) Option {
	return func(c *Controller) {
		c.reporter = r
	}
}

// WithHandleFactory replaces how connection handles are created
func WithHandleFactory(factory http.HandleFactory) Option {
	return func(c *Controller) {
		c.newHandle = factory
	}
}

// WithLogger sets the diagnostic logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// NewController creates a controller for cfg
func NewController(cfg config.RunConfig, options ...Option) *Controller {
	c := &Controller{
		cfg:      cfg,
		reporter: nopReporter{},
		log:      logrus.StandardLogger(),
	}

	for _, option := range options {
		option(c)
	}

	if c.executor == nil {
		c.executor = http.NewExecutor(c.log)
	}

	return c
}

// Run executes the run until its last iteration or until ctx is cancelled.
//
// Only a failed SingleShot request is returned as an error. Failures in loop
// modes and export failures are reported and the run goes on; an interrupt
// ends the run with Summary.Cancelled set.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	mode := SelectMode(c.cfg)
	summary := Summary{
		Info: Info{
			URL:             c.cfg.URL,
			Method:          c.cfg.Method,
			Mode:            mode,
			Interval:        c.cfg.Interval,
			ReuseConnection: c.cfg.ReuseConnection,
			Export:          c.sink != nil,
		},
	}

	c.log.WithField("mode", mode).Debug("Starting run")
	c.reporter.Started(summary.Info)

	err := c.run(ctx, mode, &summary)

	c.log.WithFields(logrus.Fields{
		"attempts":  summary.Attempts,
		"failed":    summary.Failed,
		"cancelled": summary.Cancelled,
	}).Debug("Run finished")
	c.reporter.Finished(summary)

	return summary, err
}

// run owns the connection of the run; a reused handle is closed exactly
// once when run returns.
func (c *Controller) run(ctx context.Context, mode Mode, summary *Summary) error {
	conn := http.Ephemeral(c.handleFactory(false))
	if c.cfg.ReuseConnection {
		c.log.Debug("Reusing connections")
		handle := c.handleFactory(true)()
		defer func() {
			if err := handle.Close(); err != nil {
				c.log.WithError(err).Warn("Failed to close connection")
			}
		}()
		conn = http.Reused(handle)
	}

	switch mode.Kind {
	case Background:
		c.runLoop(ctx, conn, 0, true, nil, summary)
	case FixedLoop:
		c.runLoop(ctx, conn, mode.Iterations, false, metrics.NewAggregator(), summary)
	default:
		return c.runSingle(ctx, conn, summary)
	}
	return nil
}

func (c *Controller) handleFactory(keepAlive bool) http.HandleFactory {
	if c.newHandle != nil {
		return c.newHandle
	}
	return func() http.Handle {
		options := []http.HandleOption{http.WithTimeout(c.cfg.Timeout)}
		if !keepAlive {
			options = append(options, http.WithoutKeepAlive())
		}
		return http.NewClientHandle(options...)
	}
}

func (c *Controller) runSingle(ctx context.Context, conn http.Connection, summary *Summary) error {
	start := time.Now()
	err := c.iterate(ctx, 1, conn, nil, summary)
	summary.Elapsed = time.Since(start)

	if ctx.Err() != nil {
		summary.Cancelled = true
		return nil
	}
	return err
}

// runLoop performs n iterations, or iterates until cancelled when forever is
// set. agg is nil when nothing is aggregated.
func (c *Controller) runLoop(ctx context.Context, conn http.Connection, n int, forever bool, agg *metrics.Aggregator, summary *Summary) {
	start := time.Now()
	var paused time.Duration

	for i := 1; forever || i <= n; i++ {
		if ctx.Err() != nil {
			break
		}

		// Failures are already reported; the loop goes on.
		_ = c.iterate(ctx, i, conn, agg, summary)

		if ctx.Err() != nil {
			break
		}
		if !forever && i == n {
			break
		}

		slept, ok := c.pause(ctx)
		paused += slept
		if !ok {
			break
		}
	}

	summary.Elapsed = time.Since(start) - paused
	summary.Cancelled = ctx.Err() != nil

	if agg == nil {
		return
	}
	avg, err := agg.Average()
	if err != nil {
		c.log.WithError(err).Debug("No statistics available")
		return
	}
	summary.Average = &avg
}

// iterate performs one request and forwards its sample. A request
// interrupted by cancellation is neither counted nor reported.
func (c *Controller) iterate(ctx context.Context, iteration int, conn http.Connection, agg *metrics.Aggregator, summary *Summary) error {
	sample, err := c.executor.Execute(ctx, c.request(), conn)
	if err != nil {
		if ctx.Err() != nil {
			c.log.WithField("iteration", iteration).Debug("Request abandoned")
			return ctx.Err()
		}
		summary.Attempts++
		summary.Failed++
		c.log.WithError(err).WithField("iteration", iteration).Debug("Request failed")
		c.reporter.Failure(iteration, err)
		return err
	}

	summary.Attempts++
	summary.Succeeded++
	if agg != nil {
		agg.Fold(sample)
	}

	exportErr := c.export(ctx, sample)
	c.reporter.Sample(iteration, sample)
	if exportErr != nil && ctx.Err() == nil {
		c.log.WithError(exportErr).WithField("iteration", iteration).Warn("Export failed")
		c.reporter.SinkFailure(iteration, exportErr)
	}
	return nil
}

func (c *Controller) request() http.Request {
	return *http.NewRequest(c.cfg.Method, c.cfg.URL).WithBody(c.cfg.Body)
}

func (c *Controller) export(ctx context.Context, sample metrics.Sample) error {
	if c.sink == nil {
		return nil
	}
	return c.sink.Export(ctx, sample, sink.Tags{
		URL:      c.cfg.URL,
		Location: c.cfg.Sink.Location,
	})
}

// pause waits for the configured interval. It returns the time actually
// spent waiting and false when ctx was cancelled meanwhile.
func (c *Controller) pause(ctx context.Context) (time.Duration, bool) {
	if c.cfg.Interval <= 0 {
		return 0, ctx.Err() == nil
	}

	start := time.Now()
	timer := time.NewTimer(c.cfg.Interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return time.Since(start), false
	case <-timer.C:
		return time.Since(start), true
	}
}
