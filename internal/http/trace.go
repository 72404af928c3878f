package http

import (
	"crypto/tls"
	"net/http/httptrace"
	"sync"
	"time"

	"github.com/wesleyorama2/httpmetrics/internal/metrics"
)

// phaseTimer records the milestones of one transaction through an
// httptrace.ClientTrace. Dial callbacks may run on transport goroutines, so
// every field is guarded by mu.
type phaseTimer struct {
	mu sync.Mutex

	start time.Time
	end   time.Time

	dnsStart     time.Time
	dnsDone      time.Time
	dnsErr       error
	connectStart time.Time
	connectDone  time.Time
	connectErr   error
	tlsStart     time.Time
	tlsDone      time.Time
	tlsErr       error
	gotConn      time.Time
	reusedConn   bool
	firstByte    time.Time
}

func newPhaseTimer() *phaseTimer {
	return &phaseTimer{}
}

func (p *phaseTimer) mark(f func()) {
	p.mu.Lock()
	f()
	p.mu.Unlock()
}

func (p *phaseTimer) trace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			p.mark(func() { p.dnsStart = time.Now() })
		},
		DNSDone: func(info httptrace.DNSDoneInfo) {
			p.mark(func() {
				p.dnsDone = time.Now()
				p.dnsErr = info.Err
			})
		},
		ConnectStart: func(network, addr string) {
			p.mark(func() {
				if p.connectStart.IsZero() {
					p.connectStart = time.Now()
				}
			})
		},
		ConnectDone: func(network, addr string, err error) {
			p.mark(func() {
				// With several addresses the first successful dial wins.
				if err != nil {
					p.connectErr = err
					return
				}
				if p.connectDone.IsZero() {
					p.connectDone = time.Now()
					p.connectErr = nil
				}
			})
		},
		TLSHandshakeStart: func() {
			p.mark(func() { p.tlsStart = time.Now() })
		},
		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			p.mark(func() {
				p.tlsDone = time.Now()
				p.tlsErr = err
			})
		},
		GotConn: func(info httptrace.GotConnInfo) {
			p.mark(func() {
				p.gotConn = time.Now()
				p.reusedConn = info.Reused
			})
		},
		GotFirstResponseByte: func() {
			p.mark(func() { p.firstByte = time.Now() })
		},
	}
}

func (p *phaseTimer) begin() {
	p.mark(func() { p.start = time.Now() })
}

func (p *phaseTimer) finish() {
	p.mark(func() { p.end = time.Now() })
}

// since returns the time from request start to t, never less than floor. A
// milestone that was not reached collapses onto floor.
func (p *phaseTimer) since(t time.Time, floor time.Duration) time.Duration {
	if t.IsZero() {
		return floor
	}
	if d := t.Sub(p.start); d > floor {
		return d
	}
	return floor
}

// sample converts the recorded milestones into cumulative phase timings.
func (p *phaseTimer) sample() metrics.Sample {
	p.mu.Lock()
	defer p.mu.Unlock()

	var s metrics.Sample
	if p.dnsErr == nil {
		s.DNSResolution = p.since(p.dnsDone, 0)
	}
	s.Connection = p.since(p.connectDone, s.DNSResolution)
	if p.tlsErr == nil {
		s.AppConnect = p.since(p.tlsDone, s.Connection)
	} else {
		s.AppConnect = s.Connection
	}
	s.PreTransfer = p.since(p.gotConn, s.AppConnect)
	s.TTFB = p.since(p.firstByte, s.PreTransfer)
	s.Total = p.since(p.end, s.TTFB)
	return s
}

// failedPhase names the phase a transaction was in when it failed.
func (p *phaseTimer) failedPhase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case !p.dnsStart.IsZero() && (p.dnsDone.IsZero() || p.dnsErr != nil):
		return PhaseDNS
	case !p.connectStart.IsZero() && p.connectDone.IsZero():
		return PhaseConnect
	case !p.tlsStart.IsZero() && (p.tlsDone.IsZero() || p.tlsErr != nil):
		return PhaseTLS
	case !p.gotConn.IsZero() && p.firstByte.IsZero():
		return PhaseRequest
	case !p.firstByte.IsZero():
		return PhaseTransfer
	default:
		return PhaseUnknown
	}
}

func (p *phaseTimer) connReused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reusedConn
}
