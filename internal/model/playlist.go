package model

import (
	"time"
)

// PlaylistVideo represents a single entry of a listed playlist
type PlaylistVideo struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Duration string `json:"duration,omitempty"`
	URL      string `json:"url"`
}

// Playlist represents a playlist with its videos
type Playlist struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	URL       string           `json:"url"`
	Videos    []*PlaylistVideo `json:"videos"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewPlaylist creates a new playlist instance
func NewPlaylist(url string) *Playlist {
	return &Playlist{
		URL:       url,
		Videos:    make([]*PlaylistVideo, 0),
		CreatedAt: time.Now(),
	}
}

// AddVideo adds a video to the playlist
func (p *Playlist) AddVideo(video *PlaylistVideo) {
	p.Videos = append(p.Videos, video)
}

// Len returns the number of entries
func (p *Playlist) Len() int {
	return len(p.Videos)
}
