package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ytget/mediaqueue/internal/history"
	"github.com/ytget/mediaqueue/internal/model"
	"github.com/ytget/mediaqueue/internal/platform"
)

// Default values
const (
	DefaultAddr             = ":8080"
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultMaxParallel      = 2
	DefaultQualityPreset    = model.QualityMedium
	DefaultFilenameTemplate = "%(title)s.%(ext)s"
	DefaultYtDlp            = "yt-dlp"
	DefaultFFmpeg           = "ffmpeg"
	DefaultFFprobe          = "ffprobe"
	DefaultProbeTimeout     = 10 * time.Second
	DefaultPlaylistTimeout  = 60 * time.Second
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
)

// Bounds of the parallel task limit
const (
	MinParallel = 1
	MaxParallel = 10
)

// Settings is the complete service configuration
type Settings struct {
	Server    ServerSettings   `yaml:"server" toml:"server" envconfig:"server"`
	Downloads DownloadSettings `yaml:"downloads" toml:"downloads" envconfig:"downloads"`
	Tools     ToolSettings     `yaml:"tools" toml:"tools" envconfig:"tools"`
	History   HistorySettings  `yaml:"history" toml:"history" envconfig:"history"`
	Log       LogSettings      `yaml:"log" toml:"log" envconfig:"log"`
}

// ServerSettings configures the HTTP API
type ServerSettings struct {
	Addr            string        `yaml:"addr" toml:"addr" envconfig:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout" envconfig:"shutdown_timeout"`
}

// DownloadSettings holds the defaults applied to new tasks
type DownloadSettings struct {
	Dir              string              `yaml:"dir" toml:"dir" envconfig:"dir"`
	MaxParallel      int                 `yaml:"max_parallel" toml:"max_parallel" envconfig:"max_parallel"`
	Quality          model.QualityPreset `yaml:"quality" toml:"quality" envconfig:"quality"`
	FilenameTemplate string              `yaml:"filename_template" toml:"filename_template" envconfig:"filename_template"`
	AudioFormat      string              `yaml:"audio_format" toml:"audio_format" envconfig:"audio_format"`
	VideoContainer   string              `yaml:"video_container" toml:"video_container" envconfig:"video_container"`
	// SinkDir holds the per-task files the downloader writes final paths to
	SinkDir string `yaml:"sink_dir" toml:"sink_dir" envconfig:"sink_dir"`
}

// ToolSettings locates the external executables
type ToolSettings struct {
	YtDlp           string        `yaml:"ytdlp" toml:"ytdlp" envconfig:"ytdlp"`
	FFmpeg          string        `yaml:"ffmpeg" toml:"ffmpeg" envconfig:"ffmpeg"`
	FFprobe         string        `yaml:"ffprobe" toml:"ffprobe" envconfig:"ffprobe"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout" toml:"probe_timeout" envconfig:"probe_timeout"`
	PlaylistTimeout time.Duration `yaml:"playlist_timeout" toml:"playlist_timeout" envconfig:"playlist_timeout"`
}

// HistorySettings configures where completed tasks are recorded. Redis is
// used in addition to the file when RedisAddr is set.
type HistorySettings struct {
	File          string `yaml:"file" toml:"file" envconfig:"file"`
	MaxEntries    int    `yaml:"max_entries" toml:"max_entries" envconfig:"max_entries"`
	RedisAddr     string `yaml:"redis_addr" toml:"redis_addr" envconfig:"redis_addr"`
	RedisPassword string `yaml:"redis_password" toml:"redis_password" envconfig:"redis_password"`
	RedisDB       int    `yaml:"redis_db" toml:"redis_db" envconfig:"redis_db"`
	RedisKey      string `yaml:"redis_key" toml:"redis_key" envconfig:"redis_key"`
}

// LogSettings selects the logger level and encoding (json or console)
type LogSettings struct {
	Level  string `yaml:"level" toml:"level" envconfig:"level"`
	Format string `yaml:"format" toml:"format" envconfig:"format"`
}

// Default returns settings with every default applied
func Default() *Settings {
	s := &Settings{}
	s.setDefaults()
	return s
}

// setDefaults fills unset fields
func (s *Settings) setDefaults() {
	if s.Server.Addr == "" {
		s.Server.Addr = DefaultAddr
	}
	if s.Server.ShutdownTimeout == 0 {
		s.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if s.Downloads.Dir == "" {
		dir, err := platform.GetHomeDownloadsDir()
		if err != nil {
			dir = filepath.Join(os.TempDir(), "downloads")
		}
		s.Downloads.Dir = dir
	}
	if s.Downloads.MaxParallel == 0 {
		s.Downloads.MaxParallel = DefaultMaxParallel
	}
	if s.Downloads.Quality == "" {
		s.Downloads.Quality = DefaultQualityPreset
	}
	if s.Downloads.FilenameTemplate == "" {
		s.Downloads.FilenameTemplate = DefaultFilenameTemplate
	}
	if s.Downloads.AudioFormat == "" {
		s.Downloads.AudioFormat = model.DefaultAudioFormat
	}
	if s.Downloads.VideoContainer == "" {
		s.Downloads.VideoContainer = model.DefaultVideoContainer
	}
	if s.Downloads.SinkDir == "" {
		s.Downloads.SinkDir = filepath.Join(os.TempDir(), "mediaqueue-sinks")
	}

	if s.Tools.YtDlp == "" {
		s.Tools.YtDlp = DefaultYtDlp
	}
	if s.Tools.FFmpeg == "" {
		s.Tools.FFmpeg = DefaultFFmpeg
	}
	if s.Tools.FFprobe == "" {
		s.Tools.FFprobe = DefaultFFprobe
	}
	if s.Tools.ProbeTimeout == 0 {
		s.Tools.ProbeTimeout = DefaultProbeTimeout
	}
	if s.Tools.PlaylistTimeout == 0 {
		s.Tools.PlaylistTimeout = DefaultPlaylistTimeout
	}

	if s.History.File == "" {
		s.History.File = filepath.Join(s.Downloads.Dir, ".mediaqueue-history.json")
	}
	if s.History.MaxEntries == 0 {
		s.History.MaxEntries = history.DefaultMaxEntries
	}
	if s.History.RedisKey == "" {
		s.History.RedisKey = history.DefaultRedisKey
	}

	if s.Log.Level == "" {
		s.Log.Level = DefaultLogLevel
	}
	if s.Log.Format == "" {
		s.Log.Format = DefaultLogFormat
	}
}

// Validate checks the settings for invalid values and returns the first problem found
func (s *Settings) Validate() error {
	if s.Server.Addr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if s.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown timeout must not be negative: %s", s.Server.ShutdownTimeout)
	}
	if s.Downloads.MaxParallel < MinParallel || s.Downloads.MaxParallel > MaxParallel {
		return fmt.Errorf("max parallel must be between %d and %d: %d", MinParallel, MaxParallel, s.Downloads.MaxParallel)
	}
	switch s.Downloads.Quality {
	case model.QualityBest, model.QualityMedium, model.QualityAudio:
	default:
		return fmt.Errorf("unknown quality preset %q", s.Downloads.Quality)
	}
	if s.Downloads.Dir == "" {
		return fmt.Errorf("download directory cannot be empty")
	}
	if s.Tools.YtDlp == "" || s.Tools.FFmpeg == "" {
		return fmt.Errorf("tool executables cannot be empty")
	}
	if s.History.MaxEntries < 0 {
		return fmt.Errorf("history max entries must not be negative: %d", s.History.MaxEntries)
	}
	switch s.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", s.Log.Format)
	}
	return nil
}

// QualityPresetOptions returns the available quality presets
func QualityPresetOptions() []model.QualityPreset {
	return []model.QualityPreset{model.QualityBest, model.QualityMedium, model.QualityAudio}
}
