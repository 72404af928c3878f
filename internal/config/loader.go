package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/httpmetrics/pkg/jsonschema"
)

// ConfigLoadError is returned when a configuration file cannot be used. It
// is fatal: no request is attempted.
type ConfigLoadError struct {
	Path string
	Err  error
}

// Error returns the error message
func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *ConfigLoadError) Unwrap() error {
	return e.Err
}

// FileConfig is the content of a configuration file
type FileConfig struct {
	URL             string    `json:"url,omitempty" yaml:"url,omitempty"`
	Method          string    `json:"method,omitempty" yaml:"method,omitempty"`
	Interval        *Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
	Loop            *int      `json:"loop,omitempty" yaml:"loop,omitempty"`
	Background      bool      `json:"background,omitempty" yaml:"background,omitempty"`
	ReuseConnection bool      `json:"reuse_connection,omitempty" yaml:"reuse_connection,omitempty"`
	Data            string    `json:"data,omitempty" yaml:"data,omitempty"`
	Timeout         *Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	InfluxDB        *FileSink `json:"influxdb,omitempty" yaml:"influxdb,omitempty"`
}

// FileSink is the influxdb block of a configuration file
type FileSink struct {
	Enabled     bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	URL         string `json:"url,omitempty" yaml:"url,omitempty"`
	Token       string `json:"token,omitempty" yaml:"token,omitempty"`
	Org         string `json:"org,omitempty" yaml:"org,omitempty"`
	Bucket      string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Location    string `json:"location,omitempty" yaml:"location,omitempty"`
	Measurement string `json:"measurement,omitempty" yaml:"measurement,omitempty"`
}

// Duration accepts a Go duration ("500ms", "1m") or a number of seconds.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseDurationString(node.Value)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	parsed, err := ParseDurationString(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// ParseDurationString parses a duration string.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format: %s", s)
	}
	return d, nil
}

// LoadConfig loads a configuration file.
//
// The file format is determined by extension: .json is JSON, anything else
// is YAML. The document is checked against the configuration schema before
// it is decoded.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ConfigLoadError{Path: path, Err: errors.New("config file not found")}
		}
		return nil, &ConfigLoadError{Path: path, Err: fmt.Errorf("error reading config file: %w", err)}
	}

	config, err := ParseConfig(data, path)
	if err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}
	return config, nil
}

// ParseConfig parses configuration data
func ParseConfig(data []byte, path string) (*FileConfig, error) {
	isJSON := strings.ToLower(filepath.Ext(path)) == ".json"

	var document interface{}
	if isJSON {
		if err := json.Unmarshal(data, &document); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &document); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := validateDocument(document); err != nil {
		return nil, err
	}

	var config FileConfig
	if isJSON {
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	return &config, nil
}

// validateDocument checks a decoded document against the configuration
// schema. YAML documents are normalized through JSON so the validator sees
// the same value types for both formats.
func validateDocument(document interface{}) error {
	if document == nil {
		return errors.New("config file is empty")
	}

	normalized, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("invalid config document: %w", err)
	}

	var value interface{}
	if err := json.Unmarshal(normalized, &value); err != nil {
		return fmt.Errorf("invalid config document: %w", err)
	}

	if errs := configSchema.Validate(value); len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errs)
	}
	return nil
}

var configSchema = jsonschema.MustCompile("config.json", schema)

const schema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"url": { "type": "string", "minLength": 1 },
		"method": { "type": "string", "pattern": "^[A-Za-z]+$" },
		"interval": { "type": ["string", "integer"] },
		"loop": { "type": "integer", "minimum": 0 },
		"background": { "type": "boolean" },
		"reuse_connection": { "type": "boolean" },
		"data": { "type": "string" },
		"timeout": { "type": ["string", "integer"] },
		"influxdb": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"enabled": { "type": "boolean" },
				"url": { "type": "string" },
				"token": { "type": "string" },
				"org": { "type": "string" },
				"bucket": { "type": "string" },
				"location": { "type": "string" },
				"measurement": { "type": "string", "minLength": 1 }
			}
		}
	}
}`
