package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ytget/mediaqueue/internal/model"
)

// PlaylistLister resolves a playlist URL into its entries
type PlaylistLister interface {
	ListPlaylist(ctx context.Context, url string) (*model.Playlist, error)
}

// EnqueuePlaylist lists the playlist at url and enqueues one download per
// entry, in playlist order, using params as the template. It returns the new
// task ids in the same order.
func (s *Scheduler) EnqueuePlaylist(ctx context.Context, lister PlaylistLister, url string, params model.DownloadParams) ([]string, error) {
	playlist, err := lister.ListPlaylist(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("list playlist: %w", err)
	}

	s.applyDownloadDefaults(&params)
	tasks := make([]*model.Task, 0, playlist.Len())
	for _, v := range playlist.Videos {
		p := params
		p.URL = v.URL
		p.Title = v.Title
		p.NoPlaylist = true

		task := model.NewDownloadTask(p)
		task.Flags |= model.FlagPlaylistItem
		tasks = append(tasks, task)
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	if _, err := s.enqueue(tasks...); err != nil {
		return nil, err
	}

	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	s.logger.Info("playlist enqueued", zap.String("playlist_id", playlist.ID), zap.Int("entries", len(ids)))
	return ids, nil
}
