package history

import (
	"time"

	"github.com/ytget/mediaqueue/internal/model"
)

// Record describes a finished task
type Record struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	OutputPath string          `json:"output_path"`
	Flags      model.KindFlags `json:"flags"`
	Title      string          `json:"title,omitempty"`
	CreatedAt  int64           `json:"created_at"` // epoch milliseconds
}

// NewRecord builds a record stamped with the current time
func NewRecord(task *model.Task, outputPath string) Record {
	return Record{
		ID:         task.ID,
		Source:     task.Source(),
		OutputPath: outputPath,
		Flags:      task.Flags,
		Title:      task.DisplayTitle(),
		CreatedAt:  time.Now().UnixMilli(),
	}
}

// Sink accepts history records. Add must not block for long and never reports errors.
type Sink interface {
	Add(rec Record)
}

// Lister returns stored records, oldest first
type Lister interface {
	List() ([]Record, error)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(rec Record)

// Add calls f
func (f SinkFunc) Add(rec Record) {
	f(rec)
}

// Fanout delivers every record to all of its sinks in order
type Fanout []Sink

// Add implements Sink
func (f Fanout) Add(rec Record) {
	for _, s := range f {
		if s != nil {
			s.Add(rec)
		}
	}
}

// Discard drops all records
var Discard Sink = SinkFunc(func(Record) {})
