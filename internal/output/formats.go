package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/httpmetrics/internal/metrics"
	"github.com/wesleyorama2/httpmetrics/internal/runner"
)

// OutputFormat represents the available output formats
type OutputFormat string

const (
	// FormatText is the default human-readable text format
	FormatText OutputFormat = "text"
	// FormatJSON writes the run as JSON
	FormatJSON OutputFormat = "json"
	// FormatYAML writes the run as YAML
	FormatYAML OutputFormat = "yaml"
)

// Event names of a streamed run
const (
	EventIteration = "iteration"
	EventSummary   = "summary"
)

// ParseFormat validates a format name
func ParseFormat(name string) (OutputFormat, error) {
	switch f := OutputFormat(name); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want text, json or yaml)", name)
	}
}

// NewReporter returns the reporter for a format
func NewReporter(format OutputFormat, w io.Writer, noColor bool) runner.Reporter {
	switch format {
	case FormatJSON, FormatYAML:
		return NewStructuredReporter(format, w)
	default:
		return NewTextReporter(w, noColor)
	}
}

// TimingData holds the phase timings of a sample in seconds
type TimingData struct {
	DNSResolution float64 `json:"dns_resolution_time" yaml:"dns_resolution_time"`
	Connection    float64 `json:"connection_time" yaml:"connection_time"`
	AppConnect    float64 `json:"appconnect_time" yaml:"appconnect_time"`
	PreTransfer   float64 `json:"pretransfer_time" yaml:"pretransfer_time"`
	TTFB          float64 `json:"ttfb_time" yaml:"ttfb_time"`
	Total         float64 `json:"total_request_time" yaml:"total_request_time"`
}

// IterationData is one request of a run
type IterationData struct {
	Iteration      int         `json:"iteration" yaml:"iteration"`
	Timing         *TimingData `json:"timing,omitempty" yaml:"timing,omitempty"`
	DataReceivedKB float64     `json:"data_received_kb,omitempty" yaml:"data_received_kb,omitempty"`
	ResponseCode   int         `json:"response_code,omitempty" yaml:"response_code,omitempty"`
	Error          string      `json:"error,omitempty" yaml:"error,omitempty"`
	ExportError    string      `json:"export_error,omitempty" yaml:"export_error,omitempty"`
}

// AverageData is the mean of the successful samples of a loop
type AverageData struct {
	Count          int        `json:"count" yaml:"count"`
	Timing         TimingData `json:"timing" yaml:"timing"`
	DataReceivedKB float64    `json:"data_received_kb" yaml:"data_received_kb"`
	ResponseCode   float64    `json:"response_code" yaml:"response_code"`
	RequestTime    float64    `json:"request_time" yaml:"request_time"`
	Min            float64    `json:"min" yaml:"min"`
	P50            float64    `json:"p50" yaml:"p50"`
	P95            float64    `json:"p95" yaml:"p95"`
	P99            float64    `json:"p99" yaml:"p99"`
	Max            float64    `json:"max" yaml:"max"`
}

// SummaryData describes a run and its outcome
type SummaryData struct {
	URL             string       `json:"url" yaml:"url"`
	Method          string       `json:"method" yaml:"method"`
	Mode            string       `json:"mode" yaml:"mode"`
	Interval        float64      `json:"interval" yaml:"interval"`
	ReuseConnection bool         `json:"reuse_connection" yaml:"reuse_connection"`
	Export          bool         `json:"export" yaml:"export"`
	Attempts        int          `json:"attempts" yaml:"attempts"`
	Succeeded       int          `json:"succeeded" yaml:"succeeded"`
	Failed          int          `json:"failed" yaml:"failed"`
	Average         *AverageData `json:"average,omitempty" yaml:"average,omitempty"`
	Elapsed         float64      `json:"elapsed" yaml:"elapsed"`
	Cancelled       bool         `json:"cancelled" yaml:"cancelled"`
}

// ReportData is the document written at the end of a single or loop run
type ReportData struct {
	SummaryData `yaml:",inline"`
	Iterations  []IterationData `json:"iterations" yaml:"iterations"`
}

// IterationEvent is one streamed document of a background run
type IterationEvent struct {
	Event         string `json:"event" yaml:"event"`
	IterationData `yaml:",inline"`
}

// SummaryEvent is the last streamed document of a background run
type SummaryEvent struct {
	Event       string `json:"event" yaml:"event"`
	SummaryData `yaml:",inline"`
}

// StructuredReporter writes a run as JSON or YAML.
//
// Single and loop runs are bounded and are written as one document when the
// run finishes. A background run is streamed: one document per event, as
// JSON lines or a YAML document stream, with nothing kept between events.
type StructuredReporter struct {
	format    OutputFormat
	w         io.Writer
	streaming bool
	report    ReportData
}

// NewStructuredReporter creates a reporter for the json or yaml format
func NewStructuredReporter(format OutputFormat, w io.Writer) *StructuredReporter {
	return &StructuredReporter{format: format, w: w}
}

func (r *StructuredReporter) Started(info runner.Info) {
	r.streaming = info.Mode.Kind == runner.Background
	r.report = ReportData{
		SummaryData: SummaryData{
			URL:             info.URL,
			Method:          info.Method,
			Mode:            info.Mode.String(),
			Interval:        info.Interval.Seconds(),
			ReuseConnection: info.ReuseConnection,
			Export:          info.Export,
		},
		Iterations: []IterationData{},
	}
}

func (r *StructuredReporter) Sample(iteration int, sample metrics.Sample) {
	r.iteration(IterationData{
		Iteration: iteration,
		Timing: &TimingData{
			DNSResolution: sample.DNSResolution.Seconds(),
			Connection:    sample.Connection.Seconds(),
			AppConnect:    sample.AppConnect.Seconds(),
			PreTransfer:   sample.PreTransfer.Seconds(),
			TTFB:          sample.TTFB.Seconds(),
			Total:         sample.Total.Seconds(),
		},
		DataReceivedKB: sample.DataReceivedKB,
		ResponseCode:   sample.ResponseCode,
	})
}

func (r *StructuredReporter) Failure(iteration int, err error) {
	r.iteration(IterationData{
		Iteration: iteration,
		Error:     err.Error(),
	})
}

// SinkFailure is attached to the sample of the same iteration, which is
// always reported first. A streamed sample is already written, so the
// failure becomes an event of its own.
func (r *StructuredReporter) SinkFailure(iteration int, err error) {
	if !r.streaming {
		for i := len(r.report.Iterations) - 1; i >= 0; i-- {
			if r.report.Iterations[i].Iteration == iteration {
				r.report.Iterations[i].ExportError = err.Error()
				return
			}
		}
	}
	r.iteration(IterationData{
		Iteration:   iteration,
		ExportError: err.Error(),
	})
}

func (r *StructuredReporter) Finished(summary runner.Summary) {
	r.report.Attempts = summary.Attempts
	r.report.Succeeded = summary.Succeeded
	r.report.Failed = summary.Failed
	r.report.Elapsed = summary.Elapsed.Seconds()
	r.report.Cancelled = summary.Cancelled
	if avg := summary.Average; avg != nil {
		r.report.Average = &AverageData{
			Count: avg.Count,
			Timing: TimingData{
				DNSResolution: avg.DNSResolution.Seconds(),
				Connection:    avg.Connection.Seconds(),
				AppConnect:    avg.AppConnect.Seconds(),
				PreTransfer:   avg.PreTransfer.Seconds(),
				TTFB:          avg.TTFB.Seconds(),
				Total:         avg.Total.Seconds(),
			},
			DataReceivedKB: avg.DataReceivedKB,
			ResponseCode:   avg.ResponseCode,
			RequestTime:    avg.RequestTime.Seconds(),
			Min:            avg.Min.Seconds(),
			P50:            avg.P50.Seconds(),
			P95:            avg.P95.Seconds(),
			P99:            avg.P99.Seconds(),
			Max:            avg.Max.Seconds(),
		}
	}

	if r.streaming {
		r.write(SummaryEvent{Event: EventSummary, SummaryData: r.report.SummaryData})
		return
	}
	r.write(r.report)
}

func (r *StructuredReporter) iteration(data IterationData) {
	if r.streaming {
		r.write(IterationEvent{Event: EventIteration, IterationData: data})
		return
	}
	r.report.Iterations = append(r.report.Iterations, data)
}

// write emits one document. Streamed JSON documents are single lines and
// streamed YAML documents start with a document marker.
func (r *StructuredReporter) write(doc interface{}) {
	var (
		out []byte
		err error
	)
	switch {
	case r.format == FormatYAML:
		out, err = yaml.Marshal(doc)
		if r.streaming {
			out = append([]byte("---\n"), out...)
		}
	case r.streaming:
		out, err = json.Marshal(doc)
		out = append(out, '\n')
	default:
		out, err = json.MarshalIndent(doc, "", "  ")
		out = append(out, '\n')
	}
	if err != nil {
		fmt.Fprintf(r.w, "Error formatting report: %v\n", err)
		return
	}
	r.w.Write(out)
}

var _ runner.Reporter = (*StructuredReporter)(nil)
var _ runner.Reporter = (*TextReporter)(nil)
