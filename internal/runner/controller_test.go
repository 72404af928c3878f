package runner

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/httpmetrics/internal/config"
	"github.com/wesleyorama2/httpmetrics/internal/http"
	"github.com/wesleyorama2/httpmetrics/internal/metrics"
	"github.com/wesleyorama2/httpmetrics/internal/sink"
)

func testSample(totalMs int) metrics.Sample {
	total := time.Duration(totalMs) * time.Millisecond
	return metrics.Sample{
		DNSResolution:  total / 10,
		Connection:     total / 5,
		AppConnect:     total / 5,
		PreTransfer:    total / 4,
		TTFB:           total / 2,
		Total:          total,
		DataReceivedKB: 1,
		ResponseCode:   200,
	}
}

// step scripts one call of the fake executor. before runs first and may
// cancel the run.
type step struct {
	sample metrics.Sample
	err    error
	before func()
}

type scriptedExecutor struct {
	steps    []step
	calls    int
	conns    []http.Connection
	requests []http.Request
}

func (e *scriptedExecutor) Execute(ctx context.Context, req http.Request, conn http.Connection) (metrics.Sample, error) {
	i := e.calls
	e.calls++
	e.conns = append(e.conns, conn)
	e.requests = append(e.requests, req)

	st := step{sample: testSample(100)}
	if i < len(e.steps) {
		st = e.steps[i]
	}
	if st.before != nil {
		st.before()
	}
	if err := ctx.Err(); err != nil {
		return metrics.Sample{}, fmt.Errorf("request interrupted: %w", err)
	}
	return st.sample, st.err
}

type recordingReporter struct {
	events   []string
	info     Info
	summary  *Summary
	onSample func(iteration int)
}

func (r *recordingReporter) Started(info Info) {
	r.info = info
	r.events = append(r.events, "started")
}

func (r *recordingReporter) Sample(iteration int, sample metrics.Sample) {
	r.events = append(r.events, fmt.Sprintf("sample:%d", iteration))
	if r.onSample != nil {
		r.onSample(iteration)
	}
}

func (r *recordingReporter) Failure(iteration int, err error) {
	r.events = append(r.events, fmt.Sprintf("failure:%d", iteration))
}

func (r *recordingReporter) SinkFailure(iteration int, err error) {
	r.events = append(r.events, fmt.Sprintf("sink:%d", iteration))
}

func (r *recordingReporter) Finished(summary Summary) {
	r.summary = &summary
	r.events = append(r.events, "finished")
}

type countingHandle struct {
	http.Handle
	closes atomic.Int32
}

func (h *countingHandle) Close() error {
	h.closes.Add(1)
	return h.Handle.Close()
}

type handleCounter struct {
	mu      sync.Mutex
	handles []*countingHandle
}

func (c *handleCounter) factory() http.Handle {
	h := &countingHandle{Handle: http.NewClientHandle()}
	c.mu.Lock()
	c.handles = append(c.handles, h)
	c.mu.Unlock()
	return h
}

type fakeSink struct {
	err     error
	tags    []sink.Tags
	samples []metrics.Sample
}

func (s *fakeSink) Export(ctx context.Context, sample metrics.Sample, tags sink.Tags) error {
	s.samples = append(s.samples, sample)
	s.tags = append(s.tags, tags)
	return s.err
}

func (s *fakeSink) Close() error { return nil }

func loopConfig(n int) config.RunConfig {
	return config.RunConfig{
		URL:     "http://example.com/health",
		Method:  "GET",
		Loop:    &n,
		Timeout: time.Second,
	}
}

func TestController_SingleShot(t *testing.T) {
	executor := &scriptedExecutor{steps: []step{{sample: testSample(120)}}}
	reporter := &recordingReporter{}

	summary, err := NewController(config.RunConfig{URL: "http://example.com", Method: "GET"},
		WithExecutor(executor), WithReporter(reporter)).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"started", "sample:1", "finished"}, reporter.events)
	assert.Equal(t, Mode{Kind: SingleShot}, summary.Mode)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Nil(t, summary.Average)
	assert.False(t, summary.Cancelled)
}

func TestController_SingleShotFailure(t *testing.T) {
	failure := &http.TransportFailure{Phase: http.PhaseDNS, Err: errors.New("no such host")}
	executor := &scriptedExecutor{steps: []step{{err: failure}}}
	reporter := &recordingReporter{}

	summary, err := NewController(config.RunConfig{URL: "http://example.com", Method: "GET"},
		WithExecutor(executor), WithReporter(reporter)).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, []string{"started", "failure:1", "finished"}, reporter.events)
	assert.Equal(t, 1, summary.Failed)
}

func TestController_FixedLoopAverage(t *testing.T) {
	executor := &scriptedExecutor{steps: []step{
		{sample: testSample(100)},
		{sample: testSample(200)},
		{sample: testSample(600)},
	}}
	reporter := &recordingReporter{}

	summary, err := NewController(loopConfig(3), WithExecutor(executor), WithReporter(reporter)).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, executor.calls)
	require.NotNil(t, summary.Average)
	assert.Equal(t, 3, summary.Average.Count)
	assert.Equal(t, 300*time.Millisecond, summary.Average.Total)
	assert.Equal(t, 900*time.Millisecond, summary.Average.RequestTime)
	assert.Equal(t, reporter.summary.Average, summary.Average)
}

func TestController_PartialFailure(t *testing.T) {
	executor := &scriptedExecutor{steps: []step{
		{sample: testSample(100)},
		{err: &http.TransportFailure{Phase: http.PhaseConnect, Err: errors.New("connection refused")}},
		{sample: testSample(300)},
	}}
	reporter := &recordingReporter{}

	summary, err := NewController(loopConfig(3), WithExecutor(executor), WithReporter(reporter)).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"started", "sample:1", "failure:2", "sample:3", "finished"}, reporter.events)
	assert.Equal(t, 3, summary.Attempts)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.NotNil(t, summary.Average)
	assert.Equal(t, 2, summary.Average.Count)
	assert.Equal(t, 200*time.Millisecond, summary.Average.Total)
}

func TestController_AllFailed(t *testing.T) {
	failure := &http.TransportFailure{Phase: http.PhaseConnect, Err: errors.New("refused")}
	executor := &scriptedExecutor{steps: []step{{err: failure}, {err: failure}}}

	summary, err := NewController(loopConfig(2), WithExecutor(executor)).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	assert.Nil(t, summary.Average)
}

func TestController_ZeroIterations(t *testing.T) {
	executor := &scriptedExecutor{}

	summary, err := NewController(loopConfig(0), WithExecutor(executor)).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, executor.calls)
	assert.Nil(t, summary.Average)
	assert.Equal(t, Mode{Kind: FixedLoop, Iterations: 0}, summary.Mode)
}

func TestController_CancelMidLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	executor := &scriptedExecutor{steps: []step{
		{sample: testSample(100)},
		{sample: testSample(900), before: cancel},
	}}
	reporter := &recordingReporter{}
	handles := &handleCounter{}

	cfg := loopConfig(5)
	cfg.ReuseConnection = true
	summary, err := NewController(cfg,
		WithExecutor(executor),
		WithReporter(reporter),
		WithHandleFactory(handles.factory),
	).Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, executor.calls)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 1, summary.Attempts)
	require.NotNil(t, summary.Average)
	assert.Equal(t, 1, summary.Average.Count)
	assert.Equal(t, 100*time.Millisecond, summary.Average.Total)
	assert.Equal(t, []string{"started", "sample:1", "finished"}, reporter.events)

	require.Len(t, handles.handles, 1)
	assert.Equal(t, int32(1), handles.handles[0].closes.Load())
}

func TestController_CancelDuringPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reporter := &recordingReporter{onSample: func(int) { cancel() }}
	executor := &scriptedExecutor{}

	cfg := loopConfig(3)
	cfg.Interval = time.Hour

	done := make(chan Summary, 1)
	go func() {
		summary, _ := NewController(cfg, WithExecutor(executor), WithReporter(reporter)).Run(ctx)
		done <- summary
	}()

	select {
	case summary := <-done:
		assert.True(t, summary.Cancelled)
		assert.Equal(t, 1, executor.calls)
		require.NotNil(t, summary.Average)
		assert.Equal(t, 1, summary.Average.Count)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestController_Background(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	executor := &scriptedExecutor{steps: []step{
		{sample: testSample(100)},
		{err: &http.TransportFailure{Phase: http.PhaseTLS, Err: errors.New("handshake failure")}},
		{sample: testSample(100)},
		{before: cancel},
	}}
	reporter := &recordingReporter{}
	handles := &handleCounter{}

	cfg := loopConfig(2)
	cfg.Background = true
	cfg.ReuseConnection = true
	summary, err := NewController(cfg,
		WithExecutor(executor),
		WithReporter(reporter),
		WithHandleFactory(handles.factory),
	).Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, Mode{Kind: Background}, summary.Mode)
	assert.Equal(t, 4, executor.calls, "background ignores the loop count")
	assert.True(t, summary.Cancelled)
	assert.Nil(t, summary.Average)
	assert.Equal(t, []string{"started", "sample:1", "failure:2", "sample:3", "finished"}, reporter.events)

	require.Len(t, handles.handles, 1)
	assert.Equal(t, int32(1), handles.handles[0].closes.Load())
	for _, conn := range executor.conns {
		assert.Equal(t, executor.conns[0], conn)
	}
}

func TestController_Export(t *testing.T) {
	executor := &scriptedExecutor{}
	s := &fakeSink{}

	cfg := loopConfig(2)
	cfg.Sink = config.SinkConfig{Enabled: true, Location: "lab"}
	summary, err := NewController(cfg, WithExecutor(executor), WithSink(s)).Run(context.Background())

	require.NoError(t, err)
	assert.True(t, summary.Export)
	require.Len(t, s.samples, 2)
	assert.Equal(t, sink.Tags{URL: "http://example.com/health", Location: "lab"}, s.tags[0])
}

func TestController_ExportFailureKeepsSample(t *testing.T) {
	executor := &scriptedExecutor{}
	s := &fakeSink{err: &sink.Error{Sink: "influxdb", Err: errors.New("unauthorized")}}
	reporter := &recordingReporter{}

	summary, err := NewController(loopConfig(2), WithExecutor(executor), WithSink(s), WithReporter(reporter)).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"started", "sample:1", "sink:1", "sample:2", "sink:2", "finished"}, reporter.events)
	require.NotNil(t, summary.Average)
	assert.Equal(t, 2, summary.Average.Count)
}

func TestController_PauseExcludedFromElapsed(t *testing.T) {
	executor := &scriptedExecutor{}
	cfg := loopConfig(3)
	cfg.Interval = 25 * time.Millisecond

	start := time.Now()
	summary, err := NewController(cfg, WithExecutor(executor)).Run(context.Background())
	wall := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, wall, 50*time.Millisecond, "two pauses between three iterations")
	assert.Less(t, wall, 75*time.Millisecond+time.Second, "no pause after the last iteration")
	assert.Less(t, summary.Elapsed, 25*time.Millisecond)
}

func TestController_EphemeralHandles(t *testing.T) {
	requests := atomic.Int32{}
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if requests.Add(1) == 2 {
			w.WriteHeader(nethttp.StatusInternalServerError)
		}
		w.Write([]byte("pong"))
	}))
	defer server.Close()

	handles := &handleCounter{}
	cfg := loopConfig(3)
	cfg.URL = server.URL

	summary, err := NewController(cfg, WithHandleFactory(handles.factory)).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Succeeded)
	require.Len(t, handles.handles, 3)
	for i, h := range handles.handles {
		assert.Equal(t, int32(1), h.closes.Load(), "handle %d", i)
	}
	require.NotNil(t, summary.Average)
	assert.InDelta(t, (200.0+500.0+200.0)/3, summary.Average.ResponseCode, 1e-9)
}

func TestController_EphemeralHandlesOnFailure(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {}))
	url := server.URL
	server.Close()

	handles := &handleCounter{}
	reporter := &recordingReporter{}
	cfg := loopConfig(2)
	cfg.URL = url

	summary, err := NewController(cfg, WithHandleFactory(handles.factory), WithReporter(reporter)).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	assert.Nil(t, summary.Average)
	assert.Equal(t, []string{"started", "failure:1", "failure:2", "finished"}, reporter.events)
	require.Len(t, handles.handles, 2)
	for _, h := range handles.handles {
		assert.Equal(t, int32(1), h.closes.Load())
	}
}

func TestController_RequestFromConfig(t *testing.T) {
	cfg := loopConfig(2)
	cfg.Method = "POST"
	cfg.Body = "a=1"
	executor := &scriptedExecutor{}

	_, err := NewController(cfg, WithExecutor(executor)).Run(context.Background())
	require.NoError(t, err)

	expected := http.Request{URL: cfg.URL, Method: "POST", Body: "a=1"}
	require.Len(t, executor.requests, 2)
	for _, req := range executor.requests {
		assert.Equal(t, expected, req)
	}
}
