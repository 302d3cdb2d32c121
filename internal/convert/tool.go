package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ytget/mediaqueue/internal/capability"
	"github.com/ytget/mediaqueue/internal/gateway"
	"github.com/ytget/mediaqueue/internal/model"
)

// Executable and I/O constants
const (
	FFmpegCommand       = "ffmpeg"
	FFprobeCommand      = "ffprobe"
	FFprobeLogLevel     = "error"
	FFprobeShowEntries  = "format=duration"
	FFprobeOutputFormat = "csv=p=0"

	logTailSize = 50
)

// EncoderPicker chooses a video encoder for a codec class
type EncoderPicker interface {
	BestVideoEncoder(codec model.VideoCodec) string
}

// Tool runs ffmpeg for conversion tasks. It implements gateway.Tool.
type Tool struct {
	ffmpeg   string
	ffprobe  string
	encoders EncoderPicker
	logger   *zap.Logger
}

// NewTool creates a transcoder. Empty binary names default to ffmpeg and ffprobe from PATH.
func NewTool(ffmpeg, ffprobe string, encoders EncoderPicker, logger *zap.Logger) *Tool {
	if ffmpeg == "" {
		ffmpeg = FFmpegCommand
	}
	if ffprobe == "" {
		ffprobe = FFprobeCommand
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tool{
		ffmpeg:   ffmpeg,
		ffprobe:  ffprobe,
		encoders: encoders,
		logger:   logger.Named("convert"),
	}
}

// Start launches the conversion in the background
func (t *Tool) Start(cmd gateway.Command, emit func(gateway.Event)) (gateway.Handle, error) {
	if cmd.Kind != model.KindConversion || cmd.Conversion == nil {
		return nil, fmt.Errorf("convert tool: invalid command for task %s", cmd.TaskID)
	}
	if strings.TrimSpace(cmd.Conversion.InputPath) == "" {
		return nil, fmt.Errorf("convert tool: empty input path for task %s", cmd.TaskID)
	}

	params := *cmd.Conversion
	if params.OutputDir == "" {
		params.OutputDir = cmd.OutputDir
	}

	emit = gateway.Serialize(emit)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		emit(gateway.Started{})
		emit(t.run(ctx, cmd, &params, emit))
	}()

	return gateway.NewCancelFunc(cancel), nil
}

// run performs the conversion and returns the terminal event
func (t *Tool) run(ctx context.Context, cmd gateway.Command, p *model.ConversionParams, emit func(gateway.Event)) gateway.Event {
	if _, err := os.Stat(p.InputPath); err != nil {
		return gateway.Error{Message: fmt.Sprintf("input file does not exist: %s", p.InputPath), Cause: err}
	}

	duration, err := t.probeDuration(ctx, p.InputPath)
	if err != nil {
		// Progress stays at 0 until the end, the conversion itself can still succeed
		t.logger.Warn("failed to get media duration", zap.String("task_id", cmd.TaskID), zap.Error(err))
	}

	output := OutputPath(p)
	encoder := t.pickEncoder(p.VideoCodec)

	tail, err := t.transcode(ctx, p, encoder, output, duration, emit)
	if err != nil && ctx.Err() == nil && !p.AudioOnly && capability.IsHardware(encoder) {
		software := (&capability.Capabilities{}).BestVideoEncoder(p.VideoCodec)
		emit(gateway.Log{Line: fmt.Sprintf("encoder %s failed, retrying with %s", encoder, software)})
		t.logger.Info("hardware encoder failed, falling back to software",
			zap.String("task_id", cmd.TaskID), zap.String("encoder", encoder), zap.Error(err))
		tail, err = t.transcode(ctx, p, software, output, duration, emit)
	}

	switch {
	case ctx.Err() != nil:
		removePartial(output, t.logger)
		return gateway.Cancelled{}
	case err != nil:
		removePartial(output, t.logger)
		return gateway.ClassifyFailure("", tail, err)
	}

	if cmd.SinkFile != "" {
		if err := appendLine(cmd.SinkFile, output); err != nil {
			t.logger.Warn("failed to record output path", zap.String("task_id", cmd.TaskID), zap.Error(err))
		}
	}
	return gateway.Completed{Success: true, ProducedPath: output}
}

func (t *Tool) pickEncoder(codec model.VideoCodec) string {
	if t.encoders == nil {
		return (&capability.Capabilities{}).BestVideoEncoder(codec)
	}
	return t.encoders.BestVideoEncoder(codec)
}

// transcode runs ffmpeg once and returns the last log lines with the exit error
func (t *Tool) transcode(ctx context.Context, p *model.ConversionParams, encoder, output string, duration float64, emit func(gateway.Event)) ([]string, error) {
	args := BuildArgs(p, encoder, output)
	cmd := exec.CommandContext(ctx, t.ffmpeg, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var tail []string
	parser := &progressParser{duration: duration}
	parser.scan(stderr, emit, &tail, logTailSize)

	if err := cmd.Wait(); err != nil {
		return tail, fmt.Errorf("ffmpeg: %w", err)
	}
	return tail, nil
}

// probeDuration gets the duration of a media file in seconds using ffprobe
func (t *Tool) probeDuration(ctx context.Context, filePath string) (float64, error) {
	cmd := exec.CommandContext(ctx, t.ffprobe, "-v", FFprobeLogLevel, "-show_entries", FFprobeShowEntries, "-of", FFprobeOutputFormat, filePath)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to run ffprobe: %w", err)
	}

	durationStr := strings.TrimSpace(string(output))
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return duration, nil
}

func removePartial(path string, logger *zap.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to remove partial output", zap.String("path", path), zap.Error(err))
	}
}

// appendLine writes one path line to the sink, following yt-dlp's print-to-file format
func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
