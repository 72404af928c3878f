package http

import (
	"errors"
	"fmt"
	"net"
)

// Phase identifies the part of a transaction that failed.
type Phase string

const (
	PhaseDNS      Phase = "dns"
	PhaseConnect  Phase = "connect"
	PhaseTLS      Phase = "tls"
	PhaseRequest  Phase = "request"
	PhaseTransfer Phase = "transfer"
	PhaseUnknown  Phase = "unknown"
)

// TransportFailure is returned when a transaction could not complete. No
// sample is produced for it.
type TransportFailure struct {
	Phase   Phase
	Timeout bool
	Err     error
}

func newTransportFailure(phase Phase, err error) *TransportFailure {
	var netErr net.Error
	return &TransportFailure{
		Phase:   phase,
		Timeout: errors.As(err, &netErr) && netErr.Timeout(),
		Err:     err,
	}
}

// Error returns the error message
func (f *TransportFailure) Error() string {
	if f.Timeout {
		return fmt.Sprintf("%s timeout: %v", f.Phase, f.Err)
	}
	return fmt.Sprintf("%s failed: %v", f.Phase, f.Err)
}

// Unwrap returns the underlying transport error
func (f *TransportFailure) Unwrap() error {
	return f.Err
}
