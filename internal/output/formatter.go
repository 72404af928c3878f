package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wesleyorama2/httpmetrics/internal/metrics"
	"github.com/wesleyorama2/httpmetrics/internal/runner"
)

const (
	separator       = "---------------------------------"
	strongSeparator = "================================="
)

// TextReporter writes a human-readable report of a run
type TextReporter struct {
	w       io.Writer
	colors  *ColorScheme
	noColor bool
	info    runner.Info
}

// NewTextReporter creates a text reporter writing to w
func NewTextReporter(w io.Writer, noColor bool) *TextReporter {
	colors := DefaultColorScheme()
	if noColor {
		colors = NoColorScheme()
	}
	return &TextReporter{
		w:       w,
		colors:  colors,
		noColor: noColor,
	}
}

// Started prints the probe header
func (r *TextReporter) Started(info runner.Info) {
	r.info = info

	if info.ReuseConnection {
		fmt.Fprintln(r.w, "Reusing connections!")
	}

	header := fmt.Sprintf("▶ PROBE: %s %s (mode: %s", r.colors.Method.Sprint(info.Method), r.colors.URL.Sprint(info.URL), info.Mode)
	if info.Mode.Kind != runner.SingleShot && info.Interval > 0 {
		header += fmt.Sprintf(", interval: %s", info.Interval)
	}
	if info.Export {
		header += ", export: influxdb"
	}
	fmt.Fprintln(r.w, header+")")
	fmt.Fprintln(r.w)
}

// Sample prints the phase timings of one request
func (r *TextReporter) Sample(iteration int, sample metrics.Sample) {
	var buf strings.Builder

	if r.info.Mode.Kind != runner.SingleShot {
		buf.WriteString(fmt.Sprintf("Iteration %d:\n", iteration))
		buf.WriteString(separator + "\n")
	}

	r.writeTimings(&buf, timings{
		dns:         sample.DNSResolution,
		connection:  sample.Connection,
		appConnect:  sample.AppConnect,
		preTransfer: sample.PreTransfer,
		ttfb:        sample.TTFB,
		total:       sample.Total,
		kb:          sample.DataReceivedKB,
	})
	buf.WriteString(fmt.Sprintf("%s %s %s\n", r.colors.Label.Sprint("HTTP Response Code:"),
		r.colors.StatusColor(sample.ResponseCode).Sprint(sample.ResponseCode), r.statusIcon(sample.ResponseCode)))
	buf.WriteString(separator + "\n\n")

	fmt.Fprint(r.w, buf.String())
}

// Failure prints a failed request
func (r *TextReporter) Failure(iteration int, err error) {
	if r.info.Mode.Kind == runner.SingleShot {
		fmt.Fprintf(r.w, "%s Request failed: %s\n\n", ErrorIcon(r.noColor), r.colors.Error.Sprint(err))
		return
	}
	fmt.Fprintf(r.w, "%s Iteration %d failed: %s\n\n", ErrorIcon(r.noColor), iteration, r.colors.Error.Sprint(err))
}

// SinkFailure prints a failed export
func (r *TextReporter) SinkFailure(iteration int, err error) {
	fmt.Fprintf(r.w, "%s Iteration %d not exported: %s\n\n", WarningIcon(r.noColor), iteration, r.colors.Warning.Sprint(err))
}

// Finished prints the closing summary of the run
func (r *TextReporter) Finished(summary runner.Summary) {
	var buf strings.Builder

	if summary.Cancelled {
		buf.WriteString("Exiting gracefully\n")
	}

	switch summary.Mode.Kind {
	case runner.FixedLoop:
		buf.WriteString(strongSeparator + "\n")
		if avg := summary.Average; avg != nil {
			buf.WriteString(r.colors.Highlight.Sprint("Average Metrics:") + "\n")
			r.writeTimings(&buf, timings{
				dns:         avg.DNSResolution,
				connection:  avg.Connection,
				appConnect:  avg.AppConnect,
				preTransfer: avg.PreTransfer,
				ttfb:        avg.TTFB,
				total:       avg.Total,
				kb:          avg.DataReceivedKB,
			})
			buf.WriteString(fmt.Sprintf("%s %.2f\n", r.colors.Label.Sprint("HTTP Response Code:"), avg.ResponseCode))
			buf.WriteString(fmt.Sprintf("%s min %s, p50 %s, p95 %s, p99 %s, max %s\n",
				r.colors.Label.Sprint("Total Request Time Distribution:"),
				avg.Min, avg.P50, avg.P95, avg.P99, avg.Max))
			buf.WriteString(separator + "\n\n")
		} else {
			buf.WriteString(r.colors.Warning.Sprint("No statistics available: no request succeeded") + "\n\n")
		}
		r.writeTotals(&buf, summary)
	case runner.Background:
		r.writeTotals(&buf, summary)
	}

	fmt.Fprint(r.w, buf.String())
}

type timings struct {
	dns, connection, appConnect, preTransfer, ttfb, total time.Duration
	kb                                                    float64
}

func (r *TextReporter) writeTimings(buf *strings.Builder, t timings) {
	line := func(label string, d time.Duration) {
		buf.WriteString(fmt.Sprintf("%s %s\n", r.colors.Label.Sprint(label), r.colors.Value.Sprint(seconds(d))))
	}

	line("DNS Resolution Time:", t.dns)
	line("Connection Time:", t.connection)
	line("AppConnect Time:", t.appConnect)
	line("Pre-transfer Time:", t.preTransfer)
	line("Time to First Byte (TTFB):", t.ttfb)
	buf.WriteString("\n")
	line("Total Request Time:", t.total)
	buf.WriteString(fmt.Sprintf("%s %s\n", r.colors.Label.Sprint("Total Data Received:"), r.colors.Value.Sprintf("%.2f KB", t.kb)))
}

func (r *TextReporter) writeTotals(buf *strings.Builder, summary runner.Summary) {
	buf.WriteString(fmt.Sprintf("URL: %s\n", summary.URL))
	buf.WriteString(fmt.Sprintf("Number of calls: %d (%s, %s)\n", summary.Attempts,
		r.colors.Success.Sprintf("%d succeeded", summary.Succeeded),
		r.colors.Error.Sprintf("%d failed", summary.Failed)))
	buf.WriteString(fmt.Sprintf("Connection reuse: %t\n", summary.ReuseConnection))
	buf.WriteString(fmt.Sprintf("Elapsed time without pauses: %s\n", seconds(summary.Elapsed)))
	if summary.Average != nil {
		buf.WriteString(fmt.Sprintf("Request total time: %s\n", seconds(summary.Average.RequestTime)))
	}
}

// statusIcon marks a 2xx response as a success and anything else as a warning
func (r *TextReporter) statusIcon(code int) string {
	if code >= 200 && code < 300 {
		return SuccessIcon(r.noColor)
	}
	return WarningIcon(r.noColor)
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.4f seconds", d.Seconds())
}
