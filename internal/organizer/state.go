package organizer

import (
	"sync/atomic"
	"time"

	"github.com/your-org/fileorganizer/internal/history"
)

// State is a step of a single file's lifecycle.
type State int

const (
	StateArrived State = iota
	StateFiltered
	StateAwaitingStability
	StateClassified
	StateResolved
	StateMoved
	StateRecorded
	StateSkipped
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateArrived:
		return "arrived"
	case StateFiltered:
		return "filtered"
	case StateAwaitingStability:
		return "awaiting_stability"
	case StateClassified:
		return "classified"
	case StateResolved:
		return "resolved"
	case StateMoved:
		return "moved"
	case StateRecorded:
		return "recorded"
	case StateSkipped:
		return "skipped"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Result is the terminal outcome of Process.
type Result struct {
	State       State
	Reason      string
	Destination string
	Record      history.Record
	Err         error
}

// Stats is a point-in-time snapshot of organizer counters.
type Stats struct {
	Moved     int64     `json:"moved"`
	Skipped   int64     `json:"skipped"`
	Errored   int64     `json:"errored"`
	InFlight  int64     `json:"in_flight"`
	StartedAt time.Time `json:"started_at"`
}

type stats struct {
	moved    atomic.Int64
	skipped  atomic.Int64
	errored  atomic.Int64
	inFlight atomic.Int64
	started  time.Time
}

func (s *stats) count(state State) {
	switch state {
	case StateRecorded:
		s.moved.Add(1)
	case StateSkipped:
		s.skipped.Add(1)
	case StateErrored:
		s.errored.Add(1)
	}
}

// Stats returns the current counters.
func (o *Organizer) Stats() Stats {
	return Stats{
		Moved:     o.stats.moved.Load(),
		Skipped:   o.stats.skipped.Load(),
		Errored:   o.stats.errored.Load(),
		InFlight:  o.stats.inFlight.Load(),
		StartedAt: o.stats.started,
	}
}
