package scheduler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ytget/mediaqueue/internal/convert"
	"github.com/ytget/mediaqueue/internal/gateway"
	"github.com/ytget/mediaqueue/internal/history"
	"github.com/ytget/mediaqueue/internal/metrics"
	"github.com/ytget/mediaqueue/internal/model"
	"github.com/ytget/mediaqueue/internal/resolver"
)

// runner adapts the event stream of one admitted task onto its record
type runner struct {
	s       *Scheduler
	id      string
	task    model.Task // as admitted
	sink    string
	started time.Time
	logger  *zap.Logger

	// guarded by s.mu
	handle          gateway.Handle
	cancelRequested bool

	mu       sync.Mutex
	logs     []string
	finished bool
}

func newRunner(s *Scheduler, task *model.Task) *runner {
	return &runner{
		s:       s,
		id:      task.ID,
		task:    *task,
		sink:    resolver.SinkPath(s.sinkDir, task.ID, task.Source()),
		started: time.Now(),
		logger:  s.logger.With(zap.String("task_id", task.ID)),
	}
}

func (r *runner) outputDir() string {
	switch {
	case r.task.Download != nil:
		return r.task.Download.OutputDir
	case r.task.Conversion != nil:
		if r.task.Conversion.OutputDir != "" {
			return r.task.Conversion.OutputDir
		}
		return filepath.Dir(r.task.Conversion.InputPath)
	}
	return ""
}

func (r *runner) command() gateway.Command {
	return gateway.Command{
		TaskID:     r.id,
		Kind:       r.task.Kind,
		Download:   r.task.Download,
		Conversion: r.task.Conversion,
		SinkFile:   r.sink,
		OutputDir:  r.outputDir(),
		Title:      r.task.Title,
	}
}

// start dispatches the task to its tool. It runs without s.mu held.
func (r *runner) start() {
	if r.s.tool == nil {
		r.abort(errors.New("no tool configured"))
		return
	}

	h, err := r.s.tool.Start(r.command(), r.onEvent)
	if err != nil {
		r.abort(err)
		return
	}

	r.s.mu.Lock()
	r.handle = h
	cancel := r.cancelRequested
	r.s.mu.Unlock()

	// Cancelled while the tool was being started
	if cancel && h != nil {
		h.Cancel()
	}
	r.logger.Debug("task dispatched")
}

// abort fails a task whose tool could not be started
func (r *runner) abort(err error) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.finished = true
	r.mu.Unlock()

	r.logger.Warn("failed to start tool", zap.Error(err))
	r.fail(fmt.Sprintf("failed to start: %v", err), metrics.OutcomeFailed)
	resolver.DeleteSink(r.sink, r.logger)
	r.s.release(r)
}

// onEvent is the emit callback handed to the tool
func (r *runner) onEvent(ev gateway.Event) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		r.logger.Debug("event after terminal event ignored", zap.String("event", gateway.Describe(ev)))
		return
	}
	if l, ok := ev.(gateway.Log); ok {
		r.appendLog(l.Line)
		r.mu.Unlock()
		return
	}
	terminal := gateway.IsTerminal(ev)
	if terminal {
		r.finished = true
	}
	r.mu.Unlock()

	switch e := ev.(type) {
	case gateway.Started:
		r.updateRunning(func(t *model.Task) {
			t.Message = ""
		})
	case gateway.Progress:
		r.updateRunning(func(t *model.Task) {
			t.SetProgress(e.Percent)
			t.Rate = e.Rate
			if e.Title != "" && t.Title == "" {
				t.Title = e.Title
			}
		})
	case gateway.Completed:
		if e.Success {
			r.succeed(e)
		} else {
			message := e.Message
			if message == "" {
				message = "tool reported failure"
			}
			r.fail(message, metrics.OutcomeFailed)
		}
	case gateway.Error:
		message := e.Message
		if message == "" && e.Cause != nil {
			message = e.Cause.Error()
		}
		r.fail(message, metrics.OutcomeFailed)
	case gateway.NetworkProblem:
		r.fail("network problem: "+e.Detail, metrics.OutcomeNetwork)
	case gateway.Cancelled:
		r.cancelled()
	default:
		r.logger.Warn("unknown event ignored", zap.String("event", gateway.Describe(ev)))
	}

	if terminal {
		resolver.DeleteSink(r.sink, r.logger)
		metrics.TaskDuration.WithLabelValues(string(r.task.Kind)).Observe(time.Since(r.started).Seconds())
		r.s.release(r)
	}
}

// appendLog keeps the last logSize lines. Callers hold r.mu.
func (r *runner) appendLog(line string) {
	r.logs = append(r.logs, line)
	if len(r.logs) > 2*r.s.logSize {
		r.logs = append([]string(nil), r.logs[len(r.logs)-r.s.logSize:]...)
	}
}

func (r *runner) logTail() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.logs) > r.s.logSize {
		return append([]string(nil), r.logs[len(r.logs)-r.s.logSize:]...)
	}
	return append([]string(nil), r.logs...)
}

// updateRunning applies fn while the task is still Running
func (r *runner) updateRunning(fn func(t *model.Task)) {
	r.s.store.Update(r.id, func(t *model.Task) bool {
		if t.Status != model.TaskStatusRunning {
			return false
		}
		fn(t)
		return true
	})
}

func (r *runner) succeed(e gateway.Completed) {
	current, ok := r.s.store.Get(r.id)
	if !ok || current.Status != model.TaskStatusRunning {
		r.logger.Debug("task finished after it was cancelled or removed")
		return
	}

	title := current.Title
	if title == "" {
		title = r.task.Title
	}
	if title == "" {
		title = r.fallbackName()
	}
	res := r.s.resolver.Resolve(resolver.Input{
		SinkFile:      r.sink,
		Logs:          r.logTail(),
		ProducedPath:  e.ProducedPath,
		OutputDir:     r.outputDir(),
		Title:         title,
		Ext:           r.task.Extension(),
		SplitChapters: r.task.Flags.Has(model.FlagSplitChapters),
	})
	metrics.ResolvedPaths.WithLabelValues(string(res.Layer)).Inc()

	if res.SplitBase != "" {
		if err := os.Remove(res.SplitBase); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("failed to delete split base file", zap.String("path", res.SplitBase), zap.Error(err))
		}
	}
	if res.Path == "" {
		r.logger.Warn("output path could not be determined")
	}

	var done model.Task
	ok = r.s.store.Update(r.id, func(t *model.Task) bool {
		if !t.Status.CanTransition(model.TaskStatusCompleted) {
			return false
		}
		t.Status = model.TaskStatusCompleted
		t.SetProgress(100)
		t.Message = ""
		t.OutputPath = res.Path
		t.FinishedAt = time.Now()
		done = *t.Clone()
		return true
	})
	if !ok {
		return
	}

	r.s.history.Add(history.NewRecord(&done, res.Path))
	r.s.store.Delete(r.id)

	metrics.TasksFinished.WithLabelValues(string(r.task.Kind), metrics.OutcomeSuccess).Inc()
	r.logger.Info("task completed", zap.String("output", res.Path), zap.String("layer", string(res.Layer)))
}

// fallbackName names the artifact of a task whose title never became known
func (r *runner) fallbackName() string {
	if r.task.Conversion != nil {
		base := filepath.Base(convert.OutputPath(r.task.Conversion))
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return resolver.NameFromSource(r.task.Source())
}

func (r *runner) fail(message, outcome string) {
	if message == "" {
		message = "task failed"
	}
	ok := r.s.store.Update(r.id, func(t *model.Task) bool {
		if !t.Status.CanTransition(model.TaskStatusFailed) {
			return false
		}
		t.Status = model.TaskStatusFailed
		t.Message = message
		t.FinishedAt = time.Now()
		return true
	})
	if !ok {
		return
	}

	metrics.TasksFinished.WithLabelValues(string(r.task.Kind), outcome).Inc()
	r.logger.Info("task failed", zap.String("message", message), zap.String("outcome", outcome))
}

// cancelled handles a cancellation the scheduler has not recorded yet
func (r *runner) cancelled() {
	ok := r.s.store.Update(r.id, func(t *model.Task) bool {
		if !t.Status.CanTransition(model.TaskStatusCancelled) {
			return false
		}
		t.Status = model.TaskStatusCancelled
		t.FinishedAt = time.Now()
		return true
	})
	if !ok {
		return
	}
	r.s.store.Delete(r.id)
	metrics.TasksFinished.WithLabelValues(string(r.task.Kind), metrics.OutcomeCancelled).Inc()
	r.logger.Info("task cancelled by tool")
}
