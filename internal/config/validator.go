package config

import (
	"fmt"
	"strings"
	"time"

	probe "github.com/wesleyorama2/httpmetrics/internal/http"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Path    string
	Message string
}

// Error returns the error message
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a list of validation errors
type ValidationErrors []ValidationError

// Error returns all messages joined
func (ve ValidationErrors) Error() string {
	messages := make([]string, len(ve))
	for i, err := range ve {
		messages[i] = err.Error()
	}
	return strings.Join(messages, "; ")
}

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true, "TRACE": true, "CONNECT": true,
}

// ValidateRunConfig validates a resolved configuration
func ValidateRunConfig(config *RunConfig) ValidationErrors {
	var errors ValidationErrors

	if config.URL == "" {
		errors = append(errors, ValidationError{Path: "url", Message: "url is required"})
	} else if err := probe.ValidateURL(config.URL); err != nil {
		errors = append(errors, ValidationError{Path: "url", Message: err.Error()})
	}

	if !validMethods[config.Method] {
		errors = append(errors, ValidationError{
			Path:    "method",
			Message: fmt.Sprintf("invalid method: %s", config.Method),
		})
	}

	if config.Interval < 0 {
		errors = append(errors, ValidationError{Path: "interval", Message: "interval cannot be negative"})
	}

	if config.Timeout <= 0 {
		errors = append(errors, ValidationError{Path: "timeout", Message: "timeout must be positive"})
	}

	if n, ok := config.Iterations(); ok && n < 0 {
		errors = append(errors, ValidationError{Path: "loop", Message: "loop cannot be negative"})
	}

	if config.Sink.Enabled {
		if config.Sink.URL == "" {
			errors = append(errors, ValidationError{Path: "influxdb.url", Message: "url is required when export is enabled"})
		}
		if config.Sink.Org == "" {
			errors = append(errors, ValidationError{Path: "influxdb.org", Message: "org is required when export is enabled"})
		}
		if config.Sink.Bucket == "" {
			errors = append(errors, ValidationError{Path: "influxdb.bucket", Message: "bucket is required when export is enabled"})
		}
	}

	return errors
}

// Flags holds the command-line values the user set explicitly. A nil field
// was not given and leaves the file or default value in place.
type Flags struct {
	URL             string
	Method          *string
	Interval        *time.Duration
	Loop            *int
	Background      *bool
	ReuseConnection *bool
	Data            *string
	Timeout         *time.Duration

	Influx       *bool
	InfluxURL    *string
	InfluxToken  *string
	InfluxOrg    *string
	InfluxBucket *string
	Location     *string
}

// Merge builds the RunConfig of a run from an optional configuration file
// and the command-line flags; flags win over the file, the file over
// defaults. hostname supplies the location label when none is configured.
func Merge(file *FileConfig, flags Flags, hostname func() (string, error)) (RunConfig, error) {
	config := RunConfig{
		Method:   DefaultMethod,
		Interval: DefaultFlagInterval,
		Timeout:  DefaultTimeout,
		Sink: SinkConfig{
			Measurement: DefaultMeasurement,
		},
	}

	if file != nil {
		applyFile(&config, file)
	}
	applyFlags(&config, flags)

	config.Method = strings.ToUpper(config.Method)

	if config.Sink.Location == "" && hostname != nil {
		if name, err := hostname(); err == nil {
			config.Sink.Location = name
		}
	}

	if errs := ValidateRunConfig(&config); len(errs) > 0 {
		return RunConfig{}, fmt.Errorf("invalid configuration: %w", errs)
	}

	return config, nil
}

func applyFile(config *RunConfig, file *FileConfig) {
	config.Interval = DefaultFileInterval

	if file.URL != "" {
		config.URL = file.URL
	}
	if file.Method != "" {
		config.Method = file.Method
	}
	if file.Interval != nil {
		config.Interval = file.Interval.Duration
	}
	if file.Loop != nil {
		loop := *file.Loop
		config.Loop = &loop
	}
	if file.Timeout != nil {
		config.Timeout = file.Timeout.Duration
	}
	config.Background = file.Background
	config.ReuseConnection = file.ReuseConnection
	config.Body = file.Data

	if sink := file.InfluxDB; sink != nil {
		config.Sink.Enabled = sink.Enabled
		config.Sink.URL = sink.URL
		config.Sink.Token = sink.Token
		config.Sink.Org = sink.Org
		config.Sink.Bucket = sink.Bucket
		config.Sink.Location = sink.Location
		if sink.Measurement != "" {
			config.Sink.Measurement = sink.Measurement
		}
	}
}

func applyFlags(config *RunConfig, flags Flags) {
	if flags.URL != "" {
		config.URL = flags.URL
	}
	if flags.Method != nil {
		config.Method = *flags.Method
	}
	if flags.Interval != nil {
		config.Interval = *flags.Interval
	}
	if flags.Loop != nil {
		loop := *flags.Loop
		config.Loop = &loop
	}
	if flags.Background != nil {
		config.Background = *flags.Background
	}
	if flags.ReuseConnection != nil {
		config.ReuseConnection = *flags.ReuseConnection
	}
	if flags.Data != nil {
		config.Body = *flags.Data
	}
	if flags.Timeout != nil {
		config.Timeout = *flags.Timeout
	}
	if flags.Influx != nil {
		config.Sink.Enabled = *flags.Influx
	}
	if flags.InfluxURL != nil {
		config.Sink.URL = *flags.InfluxURL
	}
	if flags.InfluxToken != nil {
		config.Sink.Token = *flags.InfluxToken
	}
	if flags.InfluxOrg != nil {
		config.Sink.Org = *flags.InfluxOrg
	}
	if flags.InfluxBucket != nil {
		config.Sink.Bucket = *flags.InfluxBucket
	}
	if flags.Location != nil {
		config.Sink.Location = *flags.Location
	}
}
