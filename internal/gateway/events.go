package gateway

import "fmt"

// Event is one notification from a running tool. The set of variants is
// closed: only types in this package implement it.
type Event interface {
	event()
}

// Started is emitted once when the process is launched
type Started struct{}

// Progress reports completion percent in [0,100] and an optional rate
type Progress struct {
	Percent float64
	Rate    float64 // bytes/s for downloads, speed factor for conversions, 0 if unknown
	Title   string  // media title once the tool has learned it
}

// Log carries one line of raw tool output
type Log struct {
	Line string
}

// Completed is the normal end of a run
type Completed struct {
	Success      bool
	ProducedPath string // path reported on the tool's structured channel, if any
	Message      string
}

// Error is a run-time failure
type Error struct {
	Message string
	Cause   error
}

// Cancelled confirms that the run stopped after a cancel request
type Cancelled struct{}

// NetworkProblem is a failure attributed to connectivity
type NetworkProblem struct {
	Detail string
}

func (Started) event()        {}
func (Progress) event()       {}
func (Log) event()            {}
func (Completed) event()      {}
func (Error) event()          {}
func (Cancelled) event()      {}
func (NetworkProblem) event() {}

// IsTerminal reports whether ev ends the event stream of a run
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case Completed, Error, Cancelled, NetworkProblem:
		return true
	}
	return false
}

// Describe returns a short human readable form of ev for logs
func Describe(ev Event) string {
	switch e := ev.(type) {
	case Started:
		return "started"
	case Progress:
		return fmt.Sprintf("progress %.1f%%", e.Percent)
	case Log:
		return "log: " + e.Line
	case Completed:
		return fmt.Sprintf("completed success=%t", e.Success)
	case Error:
		return "error: " + e.Message
	case Cancelled:
		return "cancelled"
	case NetworkProblem:
		return "network problem: " + e.Detail
	default:
		return fmt.Sprintf("unknown event %T", ev)
	}
}
