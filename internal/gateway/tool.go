package gateway

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ytget/mediaqueue/internal/model"
)

// ErrUnsupportedKind is returned by Router for kinds without a registered tool
var ErrUnsupportedKind = errors.New("no tool registered for task kind")

// Handle controls a started run.
// Cancel is best effort, idempotent, and safe to call after the run ended.
type Handle interface {
	Cancel()
}

// CancelFunc adapts a plain function to Handle. The function runs at most once.
type CancelFunc struct {
	once sync.Once
	fn   func()
}

// NewCancelFunc wraps fn, typically a context.CancelFunc
func NewCancelFunc(fn func()) *CancelFunc {
	return &CancelFunc{fn: fn}
}

// Cancel calls the wrapped function the first time only
func (c *CancelFunc) Cancel() {
	c.once.Do(func() {
		if c.fn != nil {
			c.fn()
		}
	})
}

// Command is a kind-specific invocation prepared for a tool
type Command struct {
	TaskID     string
	Kind       model.Kind
	Download   *model.DownloadParams
	Conversion *model.ConversionParams
	// SinkFile is where the tool appends finalized output paths, one per line
	SinkFile  string
	OutputDir string
	Title     string
}

// Tool launches external work.
//
// Start must not block on the process. It returns an error only when the
// invocation itself is malformed; everything that happens later is reported
// through emit. Events for one run are delivered sequentially and the stream
// ends with exactly one terminal event. emit may be called before Start returns.
type Tool interface {
	Start(cmd Command, emit func(Event)) (Handle, error)
}

// ToolFunc adapts a function to Tool
type ToolFunc func(cmd Command, emit func(Event)) (Handle, error)

// Start calls f
func (f ToolFunc) Start(cmd Command, emit func(Event)) (Handle, error) {
	return f(cmd, emit)
}

// Router dispatches a Command to the tool registered for its kind
type Router map[model.Kind]Tool

// Start implements Tool
func (r Router) Start(cmd Command, emit func(Event)) (Handle, error) {
	tool, ok := r[cmd.Kind]
	if !ok || tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, cmd.Kind)
	}
	return tool.Start(cmd, emit)
}
