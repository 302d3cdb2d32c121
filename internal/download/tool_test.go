package download

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ytget/mediaqueue/internal/gateway"
	"github.com/ytget/mediaqueue/internal/model"
)

// recorder collects events and signals when the terminal one arrives
type recorder struct {
	mu     sync.Mutex
	events []gateway.Event
	done   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) emit(ev gateway.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	if gateway.IsTerminal(ev) {
		close(r.done)
	}
}

func (r *recorder) wait(t *testing.T) []gateway.Event {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal event")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gateway.Event(nil), r.events...)
}

func downloadCommand(url string) gateway.Command {
	return gateway.Command{
		TaskID:    "dl-test",
		Kind:      model.KindDownload,
		Download:  &model.DownloadParams{URL: url},
		OutputDir: "/tmp/out",
		SinkFile:  "/tmp/out/abc.paths",
	}
}

func TestStartRejectsMalformedCommands(t *testing.T) {
	tool := NewTool("", zaptest.NewLogger(t))

	_, err := tool.Start(gateway.Command{Kind: model.KindConversion}, func(gateway.Event) {})
	assert.Error(t, err)

	_, err = tool.Start(downloadCommand("  "), func(gateway.Event) {})
	assert.Error(t, err)
}

func TestStartSuccessEmitsLogsThenCompleted(t *testing.T) {
	tool := NewTool("", zaptest.NewLogger(t))
	var gotArgs []string
	tool.run = func(ctx context.Context, dl *ytdlp.Command, args []string) (outcome, error) {
		gotArgs = args
		return outcome{
			Lines:        []string{"[download] Destination: /tmp/out/a.mp4", "[download] 100%"},
			ProducedPath: "/tmp/out/a.mp4",
		}, nil
	}

	cmd := downloadCommand("https://youtube.com/watch?v=1")
	cmd.Download.ExtraArgs = []string{"--no-mtime"}
	rec := newRecorder()
	h, err := tool.Start(cmd, rec.emit)
	require.NoError(t, err)
	require.NotNil(t, h)

	events := rec.wait(t)
	assert.Equal(t, []gateway.Event{
		gateway.Started{},
		gateway.Log{Line: "[download] Destination: /tmp/out/a.mp4"},
		gateway.Log{Line: "[download] 100%"},
		gateway.Completed{Success: true, ProducedPath: "/tmp/out/a.mp4"},
	}, events)
	assert.Equal(t, []string{"--no-mtime", "https://youtube.com/watch?v=1"}, gotArgs)
}

func TestStartFailureIsClassified(t *testing.T) {
	tool := NewTool("", zaptest.NewLogger(t))
	tool.run = func(ctx context.Context, dl *ytdlp.Command, args []string) (outcome, error) {
		return outcome{Lines: []string{"ERROR: [youtube] x: Video unavailable"}}, errors.New("exit status 1")
	}

	rec := newRecorder()
	_, err := tool.Start(downloadCommand("https://youtube.com/watch?v=x"), rec.emit)
	require.NoError(t, err)

	events := rec.wait(t)
	last := events[len(events)-1]
	e, ok := last.(gateway.Error)
	require.True(t, ok, "expected Error, got %T", last)
	assert.Equal(t, "ERROR: [youtube] x: Video unavailable", e.Message)
}

func TestStartNetworkFailure(t *testing.T) {
	tool := NewTool("", zaptest.NewLogger(t))
	tool.run = func(ctx context.Context, dl *ytdlp.Command, args []string) (outcome, error) {
		return outcome{}, errors.New("Unable to download webpage: connection reset by peer")
	}

	rec := newRecorder()
	_, err := tool.Start(downloadCommand("https://youtube.com/watch?v=x"), rec.emit)
	require.NoError(t, err)

	events := rec.wait(t)
	assert.IsType(t, gateway.NetworkProblem{}, events[len(events)-1])
}

func TestCancelEmitsCancelled(t *testing.T) {
	tool := NewTool("", zaptest.NewLogger(t))
	started := make(chan struct{})
	tool.run = func(ctx context.Context, dl *ytdlp.Command, args []string) (outcome, error) {
		close(started)
		<-ctx.Done()
		return outcome{}, errors.New("signal: killed")
	}

	rec := newRecorder()
	h, err := tool.Start(downloadCommand("https://youtube.com/watch?v=x"), rec.emit)
	require.NoError(t, err)

	<-started
	h.Cancel()
	h.Cancel()

	events := rec.wait(t)
	assert.Equal(t, gateway.Cancelled{}, events[len(events)-1])
}

func TestProgressEvent(t *testing.T) {
	title := "Some Clip"
	ev := progressEvent(ytdlp.ProgressUpdate{
		TotalBytes:      1000,
		DownloadedBytes: 250,
		Started:         time.Now().Add(-time.Second),
		Info:            &ytdlp.ExtractedInfo{Title: &title},
	})

	assert.InDelta(t, 25.0, ev.Percent, 0.001)
	assert.Greater(t, ev.Rate, 0.0)
	assert.Equal(t, "Some Clip", ev.Title)

	empty := progressEvent(ytdlp.ProgressUpdate{})
	assert.Zero(t, empty.Percent)
	assert.Zero(t, empty.Rate)
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, formatBest, formatFor(model.QualityBest))
	assert.Equal(t, formatMedium, formatFor(model.QualityMedium))
	assert.Equal(t, formatMedium, formatFor(""))
}
