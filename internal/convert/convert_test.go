package convert

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ytget/mediaqueue/internal/gateway"
	"github.com/ytget/mediaqueue/internal/model"
)

type fixedEncoder string

func (f fixedEncoder) BestVideoEncoder(model.VideoCodec) string { return string(f) }

func TestOutputPath(t *testing.T) {
	tests := []struct {
		params   model.ConversionParams
		expected string
	}{
		{model.ConversionParams{InputPath: "/videos/clip.mkv"}, "/videos/clip-converted.mp4"},
		{model.ConversionParams{InputPath: "/videos/clip.mkv", OutputDir: "/out", Container: "WEBM"}, "/out/clip-converted.webm"},
		{model.ConversionParams{InputPath: "/videos/talk.mp4", AudioOnly: true}, "/videos/talk-converted.mp3"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, OutputPath(&tt.params))
	}
}

func TestBuildArgs(t *testing.T) {
	p := &model.ConversionParams{InputPath: "/in.mkv", CRF: 28}
	args := BuildArgs(p, "libx264", "/out.mp4")

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i /in.mkv")
	assert.Contains(t, joined, "-c:v libx264 -preset medium -crf 28")
	assert.Contains(t, joined, "-c:a aac -b:a 128k")
	assert.Contains(t, joined, "-movflags +faststart")
	assert.Contains(t, joined, "-progress pipe:2 -nostats")
	assert.Equal(t, "/out.mp4", args[len(args)-1])

	nvenc := strings.Join(BuildArgs(&model.ConversionParams{InputPath: "/in.mkv"}, "h264_nvenc", "/o.mp4"), " ")
	assert.Contains(t, nvenc, "-c:v h264_nvenc -preset p4 -cq 23")

	vaapi := BuildArgs(&model.ConversionParams{InputPath: "/in.mkv"}, "hevc_vaapi", "/o.mp4")
	assert.Equal(t, []string{"-hide_banner", "-y", "-vaapi_device", VAAPIDevice, "-i", "/in.mkv"}, vaapi[:6])

	audio := strings.Join(BuildArgs(&model.ConversionParams{InputPath: "/in.mkv", AudioOnly: true, Container: "mp3"}, "libx264", "/o.mp3"), " ")
	assert.Contains(t, audio, "-vn")
	assert.NotContains(t, audio, "-c:v")
	assert.Contains(t, audio, "-c:a libmp3lame")
	assert.NotContains(t, audio, "-movflags")
}

func TestProgressParser(t *testing.T) {
	p := &progressParser{duration: 10}

	assert.Nil(t, p.feed("frame=120"))
	assert.Nil(t, p.feed("out_time_us=2500000"))
	assert.Nil(t, p.feed("speed=1.5x"))
	assert.Equal(t, gateway.Progress{Percent: 25, Rate: 1.5}, p.feed("progress=continue"))

	assert.Equal(t, gateway.Log{Line: "Stream mapping:"}, p.feed("Stream mapping:"))
	assert.Nil(t, p.feed("   "))
	assert.Nil(t, p.feed("speed=N/A"))

	assert.Nil(t, p.feed("out_time_us=99000000"))
	assert.Equal(t, gateway.Progress{Percent: 100, Rate: 1.5}, p.feed("progress=end"))

	unknown := &progressParser{}
	unknown.feed("out_time_us=5000000")
	assert.Equal(t, gateway.Progress{}, unknown.feed("progress=continue"))
}

type recorder struct {
	mu     sync.Mutex
	events []gateway.Event
	done   chan struct{}
}

func newRecorder() *recorder { return &recorder{done: make(chan struct{})} }

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
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal event")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gateway.Event(nil), r.events...)
}

func TestStartRejectsMalformedCommands(t *testing.T) {
	tool := NewTool("", "", nil, zaptest.NewLogger(t))

	_, err := tool.Start(gateway.Command{Kind: model.KindDownload}, func(gateway.Event) {})
	assert.Error(t, err)

	_, err = tool.Start(gateway.Command{Kind: model.KindConversion, Conversion: &model.ConversionParams{}}, func(gateway.Event) {})
	assert.Error(t, err)
}

func TestStartMissingInputIsRunTimeError(t *testing.T) {
	tool := NewTool("", "", fixedEncoder("libx264"), zaptest.NewLogger(t))
	rec := newRecorder()

	_, err := tool.Start(gateway.Command{
		TaskID:     "cv-1",
		Kind:       model.KindConversion,
		Conversion: &model.ConversionParams{InputPath: filepath.Join(t.TempDir(), "missing.mkv")},
	}, rec.emit)
	require.NoError(t, err)

	events := rec.wait(t)
	assert.Equal(t, gateway.Started{}, events[0])
	assert.IsType(t, gateway.Error{}, events[len(events)-1])
}

// writeScript creates an executable shell script standing in for ffmpeg/ffprobe
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestStartWithFakeFFmpeg(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}

	dir := t.TempDir()
	ffprobe := writeScript(t, dir, "ffprobe", "echo 10.0\n")
	ffmpeg := writeScript(t, dir, "ffmpeg", `
echo "Input #0, matroska" >&2
echo "out_time_us=5000000" >&2
echo "speed=2.0x" >&2
echo "progress=continue" >&2
echo "progress=end" >&2
for last; do :; done
touch "$last"
`)

	input := filepath.Join(dir, "clip.mkv")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))
	sink := filepath.Join(dir, "task.paths")

	tool := NewTool(ffmpeg, ffprobe, fixedEncoder("libx264"), zaptest.NewLogger(t))
	rec := newRecorder()
	_, err := tool.Start(gateway.Command{
		TaskID:     "cv-2",
		Kind:       model.KindConversion,
		Conversion: &model.ConversionParams{InputPath: input},
		SinkFile:   sink,
	}, rec.emit)
	require.NoError(t, err)

	events := rec.wait(t)
	expectedOutput := filepath.Join(dir, "clip-converted.mp4")
	assert.Equal(t, []gateway.Event{
		gateway.Started{},
		gateway.Log{Line: "Input #0, matroska"},
		gateway.Progress{Percent: 50, Rate: 2},
		gateway.Progress{Percent: 100, Rate: 2},
		gateway.Completed{Success: true, ProducedPath: expectedOutput},
	}, events)

	data, err := os.ReadFile(sink)
	require.NoError(t, err)
	assert.Equal(t, expectedOutput+"\n", string(data))
	assert.FileExists(t, expectedOutput)
}

func TestHardwareFailureFallsBackToSoftware(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}

	dir := t.TempDir()
	ffprobe := writeScript(t, dir, "ffprobe", "echo 4.0\n")
	// Fails whenever a hardware encoder is requested
	ffmpeg := writeScript(t, dir, "ffmpeg", `
case "$*" in
  *h264_nvenc*) echo "Cannot load libcuda.so.1" >&2; exit 1 ;;
esac
for last; do :; done
touch "$last"
`)

	input := filepath.Join(dir, "clip.mkv")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))

	tool := NewTool(ffmpeg, ffprobe, fixedEncoder("h264_nvenc"), zaptest.NewLogger(t))
	rec := newRecorder()
	_, err := tool.Start(gateway.Command{
		TaskID:     "cv-3",
		Kind:       model.KindConversion,
		Conversion: &model.ConversionParams{InputPath: input},
	}, rec.emit)
	require.NoError(t, err)

	events := rec.wait(t)
	assert.Contains(t, events, gateway.Log{Line: "encoder h264_nvenc failed, retrying with libx264"})
	assert.Equal(t, gateway.Completed{Success: true, ProducedPath: filepath.Join(dir, "clip-converted.mp4")}, events[len(events)-1])
}
