package runner

import (
	"fmt"

	"github.com/wesleyorama2/httpmetrics/internal/config"
)

// Kind is one of the three run modes
type Kind int

const (
	// SingleShot performs one request and reports it
	SingleShot Kind = iota

	// FixedLoop performs a fixed number of requests and reports their average
	FixedLoop

	// Background performs requests until interrupted, without aggregation
	Background
)

// String returns the mode name
func (k Kind) String() string {
	switch k {
	case SingleShot:
		return "single"
	case FixedLoop:
		return "loop"
	case Background:
		return "background"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Mode is the selected run mode. Iterations is only meaningful for FixedLoop.
type Mode struct {
	Kind       Kind
	Iterations int
}

// String returns a readable form of the mode
func (m Mode) String() string {
	if m.Kind == FixedLoop {
		return fmt.Sprintf("loop(%d)", m.Iterations)
	}
	return m.Kind.String()
}

// SelectMode derives the run mode from cfg. Background wins over an
// iteration count; without either a single request is made.
func SelectMode(cfg config.RunConfig) Mode {
	if cfg.Background {
		return Mode{Kind: Background}
	}
	if n, ok := cfg.Iterations(); ok {
		return Mode{Kind: FixedLoop, Iterations: n}
	}
	return Mode{Kind: SingleShot}
}
