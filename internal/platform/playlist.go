package platform

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/mediaqueue/internal/model"
	"github.com/ytget/ytdlp/v2"
)

// DefaultListTimeout bounds one playlist listing
const DefaultListTimeout = 60 * time.Second

const (
	playlistParam         = "list"
	defaultPlaylistTitle  = "Untitled Playlist"
	playlistSuffix        = " Playlist"
	minCommonPrefixLength = 10

	// YouTubeVideoURLTemplate builds a watch URL from a video ID
	YouTubeVideoURLTemplate = "https://www.youtube.com/watch?v=%s"
)

// ErrNotPlaylist is returned for URLs without a playlist ID
var ErrNotPlaylist = errors.New("url does not reference a playlist")

// playlistEntry is the part of a listed item the engine needs
type playlistEntry struct {
	VideoID string
	Title   string
}

type fetchFunc func(ctx context.Context, playlistID string) ([]playlistEntry, error)

// PlaylistLister resolves a playlist URL into its entries
type PlaylistLister struct {
	timeout time.Duration
	fetch   fetchFunc
}

// NewPlaylistLister creates a lister backed by the ytget/ytdlp client
func NewPlaylistLister(timeout time.Duration) *PlaylistLister {
	if timeout <= 0 {
		timeout = DefaultListTimeout
	}
	return &PlaylistLister{
		timeout: timeout,
		fetch:   fetchWithYtdlp,
	}
}

// ListPlaylist returns the playlist behind rawURL with entries in playlist order
func (l *PlaylistLister) ListPlaylist(ctx context.Context, rawURL string) (*model.Playlist, error) {
	playlistID, err := ExtractPlaylistID(rawURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	items, err := l.fetch(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}

	playlist := model.NewPlaylist(rawURL)
	playlist.ID = playlistID
	for _, it := range items {
		if it.VideoID == "" {
			continue
		}
		playlist.AddVideo(&model.PlaylistVideo{
			ID:    it.VideoID,
			Title: it.Title,
			URL:   fmt.Sprintf(YouTubeVideoURLTemplate, it.VideoID),
		})
	}
	playlist.Title = playlistTitle(playlist.Videos)
	return playlist, nil
}

func fetchWithYtdlp(ctx context.Context, playlistID string) ([]playlistEntry, error) {
	items, err := ytdlp.New().GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, err
	}
	entries := make([]playlistEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, playlistEntry{VideoID: it.VideoID, Title: it.Title})
	}
	return entries, nil
}

// ExtractPlaylistID returns the list= parameter of a playlist or watch URL
func ExtractPlaylistID(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotPlaylist, err)
	}
	id := u.Query().Get(playlistParam)
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrNotPlaylist, rawURL)
	}
	return id, nil
}

// playlistTitle derives a title from the common prefix of the first two entries
func playlistTitle(videos []*model.PlaylistVideo) string {
	if len(videos) == 0 {
		return defaultPlaylistTitle
	}
	if len(videos) > 1 {
		prefix := commonPrefix(videos[0].Title, videos[1].Title)
		if len(prefix) > minCommonPrefixLength {
			return strings.TrimSpace(prefix) + playlistSuffix
		}
	}
	return videos[0].Title + playlistSuffix
}

func commonPrefix(s1, s2 string) string {
	n := min(len(s1), len(s2))
	for i := 0; i < n; i++ {
		if s1[i] != s2[i] {
			return s1[:i]
		}
	}
	return s1[:n]
}
