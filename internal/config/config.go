package config

import (
	"time"
)

// DefaultMeasurement is the measurement name samples are exported under
const DefaultMeasurement = "http_metrics"

// Defaults applied by Merge
const (
	DefaultMethod = "GET"

	// Interval between iterations when driven by command-line flags
	DefaultFlagInterval = 0 * time.Second

	// Interval between iterations when driven by a configuration file
	DefaultFileInterval = 10 * time.Second

	DefaultTimeout = 30 * time.Second
)

// RunConfig holds the resolved parameters of one run. It is built once by
// Merge and not modified afterwards.
type RunConfig struct {
	URL    string
	Method string
	Body   string

	// Interval is the pause between two iterations
	Interval time.Duration

	// Loop is the number of iterations, nil when not set
	Loop *int

	// Background runs until interrupted; it takes precedence over Loop
	Background bool

	// ReuseConnection keeps one connection for the whole run
	ReuseConnection bool

	// Timeout bounds a single request
	Timeout time.Duration

	Sink SinkConfig
}

// SinkConfig configures the InfluxDB export of samples.
type SinkConfig struct {
	Enabled     bool
	URL         string
	Token       string
	Org         string
	Bucket      string
	Location    string
	Measurement string
}

// Iterations returns the loop count and whether one was set.
func (c RunConfig) Iterations() (int, bool) {
	if c.Loop == nil {
		return 0, false
	}
	return *c.Loop, true
}
