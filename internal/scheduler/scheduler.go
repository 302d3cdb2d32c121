package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ytget/mediaqueue/internal/gateway"
	"github.com/ytget/mediaqueue/internal/history"
	"github.com/ytget/mediaqueue/internal/metrics"
	"github.com/ytget/mediaqueue/internal/model"
	"github.com/ytget/mediaqueue/internal/platform"
	"github.com/ytget/mediaqueue/internal/resolver"
	"github.com/ytget/mediaqueue/internal/store"
)

// DefaultLogBufferSize is how many tool output lines a running task keeps
const DefaultLogBufferSize = 500

// Defaults fill in download parameters a request left empty
type Defaults struct {
	OutputDir        string
	Quality          model.QualityPreset
	FilenameTemplate string
	AudioFormat      string
	VideoContainer   string
}

// Deps are the collaborators of a Scheduler
type Deps struct {
	Tool        gateway.Tool
	History     history.Sink
	MaxParallel func() int
	Resolver    resolver.Resolver
	// SinkDir holds the per-task output sink files
	SinkDir       string
	Logger        *zap.Logger
	Defaults      Defaults
	LogBufferSize int
}

// Scheduler owns the live task list and the pending queue
type Scheduler struct {
	tool        gateway.Tool
	history     history.Sink
	maxParallel func() int
	resolver    resolver.Resolver
	sinkDir     string
	logger      *zap.Logger
	defaults    Defaults
	logSize     int

	store *store.Store

	mu        sync.Mutex
	queue     []string           // pending task ids, FIFO
	runners   map[string]*runner // admitted tasks whose terminal event is not yet processed
	admitting bool
	closed    bool
	inflight  sync.WaitGroup
}

// New creates a scheduler. Missing optional dependencies get safe defaults.
func New(deps Deps) *Scheduler {
	s := &Scheduler{
		tool:        deps.Tool,
		history:     deps.History,
		maxParallel: deps.MaxParallel,
		resolver:    deps.Resolver,
		sinkDir:     deps.SinkDir,
		logger:      deps.Logger,
		defaults:    deps.Defaults,
		logSize:     deps.LogBufferSize,
		store:       store.New(),
		runners:     make(map[string]*runner),
	}
	if s.history == nil {
		s.history = history.Discard
	}
	if s.maxParallel == nil {
		s.maxParallel = func() int { return 1 }
	}
	if s.resolver == nil {
		s.resolver = resolver.Chain{}
	}
	if s.sinkDir == "" {
		s.sinkDir = filepath.Join(os.TempDir(), "mediaqueue-sinks")
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("scheduler")
	if s.logSize <= 0 {
		s.logSize = DefaultLogBufferSize
	}

	if err := platform.CreateDirectoryIfNotExists(s.sinkDir); err != nil {
		s.logger.Warn("failed to create sink directory", zap.String("dir", s.sinkDir), zap.Error(err))
	}
	return s
}

// EnqueueDownload adds a download task and returns its id
func (s *Scheduler) EnqueueDownload(params model.DownloadParams) (string, error) {
	s.applyDownloadDefaults(&params)
	return s.enqueue(model.NewDownloadTask(params))
}

// EnqueueConversion adds a conversion task and returns its id
func (s *Scheduler) EnqueueConversion(params model.ConversionParams) (string, error) {
	return s.enqueue(model.NewConversionTask(params))
}

// Enqueue adds a task of the given kind. params must be model.DownloadParams or
// model.ConversionParams matching kind.
func (s *Scheduler) Enqueue(kind model.Kind, params any) (string, error) {
	switch p := params.(type) {
	case model.DownloadParams:
		if kind == model.KindDownload {
			return s.EnqueueDownload(p)
		}
	case model.ConversionParams:
		if kind == model.KindConversion {
			return s.EnqueueConversion(p)
		}
	}
	return "", fmt.Errorf("%w: %T does not match kind %q", ErrInvalidTask, params, kind)
}

func (s *Scheduler) applyDownloadDefaults(p *model.DownloadParams) {
	if p.OutputDir == "" {
		p.OutputDir = s.defaults.OutputDir
	}
	if p.Quality == "" {
		p.Quality = s.defaults.Quality
	}
	if p.FilenameTemplate == "" {
		p.FilenameTemplate = s.defaults.FilenameTemplate
	}
	if p.AudioFormat == "" {
		p.AudioFormat = s.defaults.AudioFormat
	}
	if p.VideoContainer == "" {
		p.VideoContainer = s.defaults.VideoContainer
	}
}

func (s *Scheduler) enqueue(tasks ...*model.Task) (string, error) {
	for _, task := range tasks {
		if err := task.Validate(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidTask, err)
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	for _, task := range tasks {
		s.store.Insert(task)
		s.queue = append(s.queue, task.ID)
		metrics.TasksEnqueued.WithLabelValues(string(task.Kind)).Inc()
		s.logger.Info("task enqueued", zap.String("task_id", task.ID), zap.String("source", task.Source()))
	}
	metrics.TasksPending.Set(float64(len(s.queue)))
	s.mu.Unlock()

	s.admit()

	if len(tasks) == 0 {
		return "", nil
	}
	return tasks[0].ID, nil
}

// Cancel stops a task. A pending task is dropped from the queue; a running
// one has its handle cancelled. Either way the task is marked Cancelled and
// removed from the live list. Cancelling a finished task is a no-op.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	task, ok := s.store.Get(id)
	if !ok {
		s.mu.Unlock()
		return ErrTaskNotFound
	}
	if task.Status.IsTerminal() {
		s.mu.Unlock()
		return nil
	}

	wasPending := s.dequeueLocked(id)
	handle := s.requestCancelLocked(id)
	cancelled := s.store.Update(id, func(t *model.Task) bool {
		if !t.Status.CanTransition(model.TaskStatusCancelled) {
			return false
		}
		t.Status = model.TaskStatusCancelled
		t.FinishedAt = time.Now()
		return true
	})
	s.store.Delete(id)
	s.updateGaugesLocked()
	s.mu.Unlock()

	// Counted here for pending and running tasks alike; the runner's own
	// Cancelled handling finds the record gone and counts nothing.
	if cancelled {
		metrics.TasksFinished.WithLabelValues(string(task.Kind), metrics.OutcomeCancelled).Inc()
	}
	if handle != nil {
		handle.Cancel()
	}
	s.logger.Info("task cancelled", zap.String("task_id", id), zap.Bool("was_pending", wasPending))

	s.admit()
	return nil
}

// Remove deletes a task from the live list, cancelling it first if it runs.
// Removing an unknown or already removed task is a no-op.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	if _, ok := s.store.Get(id); !ok {
		s.mu.Unlock()
		return nil
	}
	s.dequeueLocked(id)
	handle := s.requestCancelLocked(id)
	s.store.Delete(id)
	s.updateGaugesLocked()
	s.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
	s.logger.Info("task removed", zap.String("task_id", id))

	s.admit()
	return nil
}

// Retry re-enqueues a failed task's parameters as a new task and removes the failed one
func (s *Scheduler) Retry(id string) (string, error) {
	task, ok := s.store.Get(id)
	if !ok {
		return "", ErrTaskNotFound
	}
	if task.Status != model.TaskStatusFailed {
		return "", fmt.Errorf("%w: %s is %s", ErrNotRetryable, id, task.Status)
	}

	var fresh *model.Task
	switch {
	case task.Download != nil:
		fresh = model.NewDownloadTask(*task.Download)
	case task.Conversion != nil:
		fresh = model.NewConversionTask(*task.Conversion)
	default:
		return "", fmt.Errorf("%w: %s has no parameters", ErrInvalidTask, id)
	}
	fresh.Flags = task.Flags
	fresh.Title = task.Title

	newID, err := s.enqueue(fresh)
	if err != nil {
		return "", err
	}
	s.store.Delete(id)
	return newID, nil
}

// Reschedule runs an admission pass. Call it after raising the parallel
// limit so pending tasks start without waiting for a running one to finish.
func (s *Scheduler) Reschedule() {
	s.admit()
}

// Get returns a copy of a live task
func (s *Scheduler) Get(id string) (model.Task, bool) {
	return s.store.Get(id)
}

// Tasks returns the current live list in enqueue order
func (s *Scheduler) Tasks() []model.Task {
	return s.store.Snapshot()
}

// Observe streams snapshots of the live list until ctx is done
func (s *Scheduler) Observe(ctx context.Context) <-chan []model.Task {
	return s.store.Subscribe(ctx)
}

// Shutdown stops accepting work, cancels pending and running tasks, and waits
// for running tasks to report their terminal event or for ctx to end.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, id := range s.queue {
		s.store.Delete(id)
	}
	s.queue = nil
	handles := make([]gateway.Handle, 0, len(s.runners))
	for id := range s.runners {
		if h := s.requestCancelLocked(id); h != nil {
			handles = append(handles, h)
		}
	}
	s.updateGaugesLocked()
	s.mu.Unlock()

	s.logger.Info("shutting down", zap.Int("running", len(handles)))
	for _, h := range handles {
		h.Cancel()
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running tasks: %w", ctx.Err())
	}
}

// admit starts pending tasks while capacity allows. It is re-entrant: a call
// made while another admit is dispatching (for example from an event emitted
// synchronously inside Tool.Start) returns at once, and the active loop picks
// up the change because it re-reads the queue and running count under mu
// after every dispatch.
func (s *Scheduler) admit() {
	s.mu.Lock()
	if s.admitting {
		s.mu.Unlock()
		return
	}
	s.admitting = true

	for {
		r := s.nextLocked()
		if r == nil {
			s.admitting = false
			s.mu.Unlock()
			return
		}

		s.mu.Unlock()
		r.start()
		s.mu.Lock()
	}
}

// nextLocked pops the queue head and marks it Running if capacity allows. Callers hold mu.
func (s *Scheduler) nextLocked() *runner {
	for !s.closed && len(s.queue) > 0 {
		limit := s.maxParallel()
		if limit < 1 {
			limit = 1
		}
		if s.store.Count(model.TaskStatusRunning) >= limit {
			return nil
		}

		id := s.queue[0]
		s.queue = s.queue[1:]

		var admitted model.Task
		ok := s.store.Update(id, func(t *model.Task) bool {
			if !t.Status.CanTransition(model.TaskStatusRunning) {
				return false
			}
			t.Status = model.TaskStatusRunning
			t.StartedAt = time.Now()
			admitted = *t.Clone()
			return true
		})
		if !ok {
			continue
		}

		r := newRunner(s, &admitted)
		s.runners[id] = r
		s.inflight.Add(1)
		metrics.TasksAdmitted.WithLabelValues(string(admitted.Kind)).Inc()
		s.updateGaugesLocked()
		return r
	}
	return nil
}

// dequeueLocked removes id from the pending queue and reports whether it was there
func (s *Scheduler) dequeueLocked(id string) bool {
	for i, queued := range s.queue {
		if queued == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	return false
}

// requestCancelLocked flags a running task as cancelled and returns its handle if dispatch finished
func (s *Scheduler) requestCancelLocked(id string) gateway.Handle {
	r, ok := s.runners[id]
	if !ok {
		return nil
	}
	r.cancelRequested = true
	return r.handle
}

// release forgets a runner after its terminal event and makes room for the next task
func (s *Scheduler) release(r *runner) {
	s.mu.Lock()
	if s.runners[r.id] == r {
		delete(s.runners, r.id)
	}
	s.updateGaugesLocked()
	s.mu.Unlock()

	s.inflight.Done()
	s.admit()
}

func (s *Scheduler) updateGaugesLocked() {
	metrics.TasksPending.Set(float64(len(s.queue)))
	metrics.TasksRunning.Set(float64(s.store.Count(model.TaskStatusRunning)))
}
