package metrics

import (
	"fmt"
	"time"
)

// Sample is the measurement of one completed HTTP transaction.
//
// Every phase is measured from the start of the request, so a later phase
// always includes the earlier ones:
//
//	DNSResolution <= Connection <= AppConnect <= PreTransfer <= TTFB <= Total
//
// A phase that did not happen during the transaction (no DNS lookup for an
// IP literal, no TLS handshake for plain HTTP, no dial on a reused
// connection) carries the value of the phase before it.
type Sample struct {
	// DNSResolution is the time until the host name was resolved
	DNSResolution time.Duration

	// Connection is the time until the TCP connection was established
	Connection time.Duration

	// AppConnect is the time until the TLS handshake completed
	AppConnect time.Duration

	// PreTransfer is the time until the connection was ready to send the request
	PreTransfer time.Duration

	// TTFB is the time until the first response byte arrived
	TTFB time.Duration

	// Total is the time until the response body was fully read
	Total time.Duration

	// DataReceivedKB is the size of the response body in kilobytes
	DataReceivedKB float64

	// ResponseCode is the HTTP status code of the response
	ResponseCode int
}

// PhaseNames lists the timing phases in the order they occur.
var PhaseNames = []string{
	"dns_resolution_time",
	"connection_time",
	"appconnect_time",
	"pretransfer_time",
	"ttfb_time",
	"total_request_time",
}

// Phases returns the six phase timings in the order of PhaseNames.
func (s Sample) Phases() []time.Duration {
	return []time.Duration{
		s.DNSResolution,
		s.Connection,
		s.AppConnect,
		s.PreTransfer,
		s.TTFB,
		s.Total,
	}
}

// Validate reports a measurement error when a phase is negative or the
// phases are out of order.
func (s Sample) Validate() error {
	phases := s.Phases()
	for i, d := range phases {
		if d < 0 {
			return fmt.Errorf("%s is negative: %s", PhaseNames[i], d)
		}
		if i > 0 && d < phases[i-1] {
			return fmt.Errorf("%s (%s) is before %s (%s)", PhaseNames[i], d, PhaseNames[i-1], phases[i-1])
		}
	}
	if s.DataReceivedKB < 0 {
		return fmt.Errorf("data_received_kb is negative: %f", s.DataReceivedKB)
	}
	if s.ResponseCode <= 0 {
		return fmt.Errorf("invalid response code: %d", s.ResponseCode)
	}
	return nil
}
