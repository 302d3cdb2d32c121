package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/mediaqueue/internal/model"
)

func newTask(id string) *model.Task {
	return &model.Task{ID: id, Kind: model.KindDownload, Status: model.TaskStatusPending,
		Download: &model.DownloadParams{URL: "https://example.com/" + id}}
}

func TestInsertKeepsOrderAndCopies(t *testing.T) {
	s := New()
	a := newTask("a")
	s.Insert(a)
	s.Insert(newTask("b"))

	a.Status = model.TaskStatusFailed

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].ID)
	assert.Equal(t, "b", snap[1].ID)
	assert.Equal(t, model.TaskStatusPending, snap[0].Status)
}

func TestUpdatePublishesNewSnapshot(t *testing.T) {
	s := New()
	s.Insert(newTask("a"))
	before := s.Snapshot()

	ok := s.Update("a", func(t *model.Task) bool {
		t.Status = model.TaskStatusRunning
		t.SetProgress(40)
		return true
	})
	require.True(t, ok)

	after, found := s.Get("a")
	require.True(t, found)
	assert.Equal(t, model.TaskStatusRunning, after.Status)
	assert.Equal(t, 40.0, after.Progress)
	assert.Equal(t, model.TaskStatusPending, before[0].Status, "old snapshot must not change")

	assert.False(t, s.Update("a", func(t *model.Task) bool {
		t.Progress = 99
		return false
	}))
	after, _ = s.Get("a")
	assert.Equal(t, 40.0, after.Progress)

	assert.False(t, s.Update("missing", func(*model.Task) bool { return true }))
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := New()
	s.Insert(newTask("a"))
	s.Insert(newTask("b"))

	assert.True(t, s.Delete("a"))
	assert.False(t, s.Delete("a"))
	assert.Equal(t, 1, s.Len())
	_, found := s.Get("a")
	assert.False(t, found)
}

func TestCount(t *testing.T) {
	s := New()
	for _, id := range []string{"a", "b", "c"} {
		s.Insert(newTask(id))
	}
	s.Update("b", func(t *model.Task) bool { t.Status = model.TaskStatusRunning; return true })

	assert.Equal(t, 2, s.Count(model.TaskStatusPending))
	assert.Equal(t, 1, s.Count(model.TaskStatusRunning))
	assert.Equal(t, 0, s.Count(model.TaskStatusFailed))
}

func TestSubscribeLatestWins(t *testing.T) {
	s := New()
	s.Insert(newTask("a"))

	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)

	first := <-ch
	require.Len(t, first, 1)

	// Several changes without reading: only the newest is kept
	s.Insert(newTask("b"))
	s.Insert(newTask("c"))
	s.Delete("a")

	latest := <-ch
	require.Len(t, latest, 2)
	assert.Equal(t, "b", latest[0].ID)
	assert.Equal(t, "c", latest[1].ID)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra snapshot %v", extra)
	default:
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestConcurrentWritersAndReaders(t *testing.T) {
	s := New()
	const n = 50
	for i := 0; i < n; i++ {
		s.Insert(newTask(string(rune('A' + i))))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		id := string(rune('A' + i))
		wg.Add(2)
		go func() {
			defer wg.Done()
			for p := 0; p <= 100; p += 10 {
				s.Update(id, func(t *model.Task) bool { t.SetProgress(float64(p)); return true })
			}
		}()
		go func() {
			defer wg.Done()
			for range 10 {
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()

	for _, task := range s.Snapshot() {
		assert.Equal(t, 100.0, task.Progress, task.ID)
	}
}
