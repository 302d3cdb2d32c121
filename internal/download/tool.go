package download

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"go.uber.org/zap"

	"github.com/ytget/mediaqueue/internal/gateway"
	"github.com/ytget/mediaqueue/internal/model"
)

// yt-dlp related constants
const (
	DefaultFilenameTemplate = "%(title)s.%(ext)s"

	// AfterMoveFilepath is the print template yielding the final path of each artifact
	AfterMoveFilepath = "after_move:filepath"

	progressInterval = 500 * time.Millisecond

	formatBest   = "bestvideo*+bestaudio/best"
	formatMedium = "bestvideo*[height<=720]+bestaudio/best[height<=720]"
)

// outcome is what a finished yt-dlp run left behind
type outcome struct {
	Lines        []string
	ProducedPath string
}

type runFunc func(ctx context.Context, dl *ytdlp.Command, args []string) (outcome, error)

// Tool runs yt-dlp for download tasks. It implements gateway.Tool.
type Tool struct {
	executable string
	logger     *zap.Logger
	run        runFunc
}

// NewTool creates a downloader. An empty executable lets go-ytdlp resolve yt-dlp from PATH.
func NewTool(executable string, logger *zap.Logger) *Tool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tool{
		executable: executable,
		logger:     logger.Named("download"),
		run:        runYtdlp,
	}
}

// Start launches the download in the background
func (t *Tool) Start(cmd gateway.Command, emit func(gateway.Event)) (gateway.Handle, error) {
	if cmd.Kind != model.KindDownload || cmd.Download == nil {
		return nil, fmt.Errorf("download tool: invalid command for task %s", cmd.TaskID)
	}
	if strings.TrimSpace(cmd.Download.URL) == "" {
		return nil, fmt.Errorf("download tool: empty url for task %s", cmd.TaskID)
	}

	emit = gateway.Serialize(emit)
	dl := t.buildCommand(cmd)
	dl.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
		emit(progressEvent(update))
	})

	args := append(append([]string(nil), cmd.Download.ExtraArgs...), cmd.Download.URL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		emit(gateway.Started{})

		t.logger.Debug("running yt-dlp", zap.String("task_id", cmd.TaskID), zap.String("url", cmd.Download.URL))
		out, err := t.run(ctx, dl, args)
		for _, line := range out.Lines {
			emit(gateway.Log{Line: line})
		}
		emit(terminalEvent(ctx, out, err))
	}()

	return gateway.NewCancelFunc(cancel), nil
}

// buildCommand configures yt-dlp for the command's parameters
func (t *Tool) buildCommand(cmd gateway.Command) *ytdlp.Command {
	p := cmd.Download

	template := p.FilenameTemplate
	if template == "" {
		template = DefaultFilenameTemplate
	}
	dir := cmd.OutputDir
	if dir == "" {
		dir = p.OutputDir
	}

	dl := ytdlp.New().
		ForceOverwrites().
		RestrictFilenames().
		Output(filepath.Join(dir, template))

	if t.executable != "" {
		dl.SetExecutable(t.executable)
	}

	switch p.Quality {
	case model.QualityAudio:
		dl.ExtractAudio().AudioFormat(p.Extension())
	default:
		dl.Format(formatFor(p.Quality))
		dl.MergeOutputFormat(p.Extension())
	}

	if p.SplitChapters {
		dl.SplitChapters()
	}
	if p.NoPlaylist {
		dl.NoPlaylist()
	}
	if cmd.SinkFile != "" {
		dl.PrintToFile(AfterMoveFilepath, cmd.SinkFile)
	}
	return dl
}

// formatFor maps a video quality preset to a yt-dlp format selector
func formatFor(q model.QualityPreset) string {
	if q == model.QualityBest {
		return formatBest
	}
	return formatMedium
}

// progressEvent converts a yt-dlp progress update into a Progress event
func progressEvent(update ytdlp.ProgressUpdate) gateway.Progress {
	var ev gateway.Progress

	if update.TotalBytes > 0 {
		ev.Percent = float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100
	}

	if !update.Started.IsZero() {
		elapsed := time.Since(update.Started)
		if elapsed.Seconds() > 0 {
			ev.Rate = float64(update.DownloadedBytes) / elapsed.Seconds()
		}
	}

	if update.Info != nil && update.Info.Title != nil {
		ev.Title = *update.Info.Title
	}
	return ev
}

// terminalEvent decides how a run ended
func terminalEvent(ctx context.Context, out outcome, err error) gateway.Event {
	if ctx.Err() != nil {
		return gateway.Cancelled{}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return gateway.Cancelled{}
		}
		// Prefer yt-dlp's own ERROR line over the bare exit status
		message := err.Error()
		if len(out.Lines) > 0 {
			message = ""
		}
		return gateway.ClassifyFailure(message, out.Lines, err)
	}
	return gateway.Completed{Success: true, ProducedPath: out.ProducedPath}
}

// runYtdlp executes the command and collects its output
func runYtdlp(ctx context.Context, dl *ytdlp.Command, args []string) (outcome, error) {
	var out outcome

	result, err := dl.Run(ctx, args...)
	if result == nil {
		return out, err
	}

	for _, l := range result.OutputLogs {
		if l != nil {
			out.Lines = append(out.Lines, l.Line)
		}
	}

	if err == nil {
		info, infoErr := result.GetExtractedInfo()
		if infoErr == nil && len(info) > 0 && info[0].Filename != nil {
			out.ProducedPath = *info[0].Filename
		}
	}
	return out, err
}
