package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ytget/mediaqueue/internal/gateway"
	"github.com/ytget/mediaqueue/internal/history"
	"github.com/ytget/mediaqueue/internal/model"
)

// fakeRun is one started invocation; it doubles as the Handle
type fakeRun struct {
	cmd     gateway.Command
	emit    func(gateway.Event)
	cancels atomic.Int32
	// emitOnCancel makes Cancel report a Cancelled event like a real tool
	emitOnCancel bool
}

func (r *fakeRun) Cancel() {
	if r.cancels.Add(1) == 1 && r.emitOnCancel {
		r.emit(gateway.Cancelled{})
	}
}

// fakeTool records every Start call and lets the test drive events
type fakeTool struct {
	mu           sync.Mutex
	runs         map[string]*fakeRun
	order        []string
	startErr     error
	emitOnCancel bool
	// onStart runs inside Start, before it returns
	onStart func(run *fakeRun)
}

func newFakeTool() *fakeTool {
	return &fakeTool{runs: make(map[string]*fakeRun)}
}

func (f *fakeTool) Start(cmd gateway.Command, emit func(gateway.Event)) (gateway.Handle, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	run := &fakeRun{cmd: cmd, emit: emit, emitOnCancel: f.emitOnCancel}

	f.mu.Lock()
	f.runs[cmd.TaskID] = run
	f.order = append(f.order, cmd.TaskID)
	onStart := f.onStart
	f.mu.Unlock()

	if onStart != nil {
		onStart(run)
	}
	return run, nil
}

func (f *fakeTool) run(t *testing.T, id string) *fakeRun {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	require.True(t, ok, "task %s was never started", id)
	return run
}

func (f *fakeTool) started() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func (f *fakeTool) wasStarted(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.runs[id]
	return ok
}

// recordingSink collects history records
type recordingSink struct {
	mu      sync.Mutex
	records []history.Record
}

func (r *recordingSink) Add(rec history.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recordingSink) all() []history.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]history.Record(nil), r.records...)
}

type fakeLister struct {
	playlist *model.Playlist
	err      error
}

func (f fakeLister) ListPlaylist(ctx context.Context, url string) (*model.Playlist, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.playlist, nil
}

var errBoom = errors.New("boom")

type harness struct {
	s       *Scheduler
	tool    *fakeTool
	history *recordingSink
	limit   *atomic.Int32
	outDir  string
}

func newHarness(t *testing.T, maxParallel int) *harness {
	t.Helper()
	limit := &atomic.Int32{}
	limit.Store(int32(maxParallel))
	h := &harness{
		tool:    newFakeTool(),
		history: &recordingSink{},
		limit:   limit,
		outDir:  t.TempDir(),
	}
	h.s = New(Deps{
		Tool:        h.tool,
		History:     h.history,
		MaxParallel: func() int { return int(limit.Load()) },
		SinkDir:     t.TempDir(),
		Logger:      zaptest.NewLogger(t),
		Defaults: Defaults{
			OutputDir: h.outDir,
			Quality:   model.QualityMedium,
		},
	})
	return h
}

func (h *harness) download(t *testing.T, url string) string {
	t.Helper()
	id, err := h.s.EnqueueDownload(model.DownloadParams{URL: url})
	require.NoError(t, err)
	return id
}

func (h *harness) status(t *testing.T, id string) model.TaskStatus {
	t.Helper()
	task, ok := h.s.Get(id)
	require.True(t, ok, "task %s not in live list", id)
	return task.Status
}
