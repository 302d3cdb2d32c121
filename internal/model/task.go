package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which external tool a task runs through
type Kind string

const (
	KindDownload   Kind = "download"
	KindConversion Kind = "conversion"
)

// Task ID prefixes per kind
const (
	DownloadIDPrefix   = "dl-"
	ConversionIDPrefix = "cv-"
)

// QualityPreset selects the download format
type QualityPreset string

const (
	QualityBest   QualityPreset = "best"
	QualityMedium QualityPreset = "medium"
	QualityAudio  QualityPreset = "audio"
)

// VideoCodec is a codec class used to pick an encoder for conversions
type VideoCodec string

const (
	CodecH264 VideoCodec = "h264"
	CodecHEVC VideoCodec = "hevc"
	CodecAV1  VideoCodec = "av1"
)

// DownloadParams carries the download-specific parameters of a task
type DownloadParams struct {
	URL              string        `json:"url" validate:"required,url,startswith=http"`
	Quality          QualityPreset `json:"quality,omitempty" validate:"omitempty,oneof=best medium audio"`
	OutputDir        string        `json:"output_dir,omitempty"`
	FilenameTemplate string        `json:"filename_template,omitempty"`
	AudioFormat      string        `json:"audio_format,omitempty" validate:"omitempty,alphanum"`
	VideoContainer   string        `json:"video_container,omitempty" validate:"omitempty,alphanum"`
	SplitChapters    bool          `json:"split_chapters,omitempty"`
	NoPlaylist       bool          `json:"no_playlist,omitempty"`
	// Title is a known title, used for display and path synthesis
	Title     string   `json:"title,omitempty"`
	ExtraArgs []string `json:"extra_args,omitempty"`
}

// ConversionParams carries the conversion-specific parameters of a task
type ConversionParams struct {
	InputPath    string     `json:"input_path" validate:"required"`
	OutputDir    string     `json:"output_dir,omitempty"`
	Container    string     `json:"container,omitempty" validate:"omitempty,alphanum"`
	VideoCodec   VideoCodec `json:"video_codec,omitempty" validate:"omitempty,oneof=h264 hevc av1"`
	CRF          int        `json:"crf,omitempty" validate:"omitempty,min=0,max=51"`
	AudioOnly    bool       `json:"audio_only,omitempty"`
	AudioBitrate string     `json:"audio_bitrate,omitempty"`
}

// Task is a unit of download or conversion work tracked by the engine.
// Exactly one of Download and Conversion is set, matching Kind.
type Task struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	Status     TaskStatus        `json:"status"`
	Progress   float64           `json:"progress"`          // 0 to 100
	Rate       float64           `json:"rate,omitempty"`    // advisory, 0 if unknown
	Message    string            `json:"message,omitempty"` // diagnostic for failed tasks
	Title      string            `json:"title,omitempty"`
	OutputPath string            `json:"output_path,omitempty"` // set only after success
	Flags      KindFlags         `json:"flags"`
	CreatedAt  time.Time         `json:"created_at"`
	StartedAt  time.Time         `json:"started_at,omitempty"`
	FinishedAt time.Time         `json:"finished_at,omitempty"`
	Download   *DownloadParams   `json:"download,omitempty"`
	Conversion *ConversionParams `json:"conversion,omitempty"`
}

// NewDownloadTask creates a pending download task with a fresh ID
func NewDownloadTask(params DownloadParams) *Task {
	p := params
	flags := FlagDownload
	if p.Quality == QualityAudio {
		flags |= FlagAudioOnly
	}
	if p.SplitChapters {
		flags |= FlagSplitChapters
	}
	return &Task{
		ID:        NewTaskID(DownloadIDPrefix),
		Kind:      KindDownload,
		Status:    TaskStatusPending,
		Title:     p.Title,
		Flags:     flags,
		CreatedAt: time.Now(),
		Download:  &p,
	}
}

// NewConversionTask creates a pending conversion task with a fresh ID
func NewConversionTask(params ConversionParams) *Task {
	p := params
	flags := FlagConversion
	if p.AudioOnly {
		flags |= FlagAudioOnly
	}
	return &Task{
		ID:         NewTaskID(ConversionIDPrefix),
		Kind:       KindConversion,
		Status:     TaskStatusPending,
		Flags:      flags,
		CreatedAt:  time.Now(),
		Conversion: &p,
	}
}

// NewTaskID generates a unique task ID using UUID v7, which is time ordered
func NewTaskID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to a random UUID if the clock source fails
		return prefix + uuid.NewString()
	}
	return prefix + id.String()
}

// Source returns the descriptor of the task's defining input: URL or input file
func (t *Task) Source() string {
	switch {
	case t.Download != nil:
		return t.Download.URL
	case t.Conversion != nil:
		return t.Conversion.InputPath
	}
	return ""
}

// Clone creates a deep copy of the task
func (t *Task) Clone() *Task {
	clone := *t
	if t.Download != nil {
		d := *t.Download
		d.ExtraArgs = append([]string(nil), t.Download.ExtraArgs...)
		clone.Download = &d
	}
	if t.Conversion != nil {
		c := *t.Conversion
		clone.Conversion = &c
	}
	return &clone
}

// SetProgress stores percent clamped to [0,100]. Out-of-order values overwrite.
func (t *Task) SetProgress(percent float64) {
	switch {
	case percent < 0:
		percent = 0
	case percent > 100:
		percent = 100
	}
	t.Progress = percent
}

// DisplayTitle returns title, output filename, or source in order of preference
func (t *Task) DisplayTitle() string {
	if t.Title != "" && !strings.HasPrefix(t.Title, "http") {
		return t.Title
	}

	if t.OutputPath != "" {
		parts := strings.FieldsFunc(t.OutputPath, func(r rune) bool {
			return r == '/' || r == '\\'
		})
		if len(parts) > 0 {
			filename := parts[len(parts)-1]
			if idx := strings.LastIndex(filename, "."); idx > 0 {
				filename = filename[:idx]
			}
			return filename
		}
	}

	return t.Source()
}

// String implements fmt.Stringer for log output
func (t *Task) String() string {
	return fmt.Sprintf("%s[%s %s %.1f%%]", t.ID, t.Kind, t.Status, t.Progress)
}

// Default artifact formats
const (
	DefaultAudioFormat    = "mp3"
	DefaultVideoContainer = "mp4"
	DefaultAudioContainer = "mp3"
)

// Extension returns the extension of the primary artifact a download produces
func (p *DownloadParams) Extension() string {
	if p == nil {
		return DefaultVideoContainer
	}
	if p.Quality == QualityAudio {
		if p.AudioFormat != "" {
			return strings.ToLower(p.AudioFormat)
		}
		return DefaultAudioFormat
	}
	if p.VideoContainer != "" {
		return strings.ToLower(p.VideoContainer)
	}
	return DefaultVideoContainer
}

// Extension returns the extension of the conversion output
func (p *ConversionParams) Extension() string {
	if p == nil {
		return DefaultVideoContainer
	}
	if p.Container != "" {
		return strings.ToLower(p.Container)
	}
	if p.AudioOnly {
		return DefaultAudioContainer
	}
	return DefaultVideoContainer
}

// Extension returns the expected artifact extension for the task's kind
func (t *Task) Extension() string {
	if t.Conversion != nil {
		return t.Conversion.Extension()
	}
	return t.Download.Extension()
}
