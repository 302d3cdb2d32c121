package resolver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeSink(t *testing.T, content string) string {
	t.Helper()
	path := SinkPath(t.TempDir(), "dl-1", "https://example.com/v")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSinkPath(t *testing.T) {
	a := SinkPath("/tmp/sinks", "dl-1", "https://example.com/v")
	b := SinkPath("/tmp/sinks", "dl-1", "https://example.com/v")
	c := SinkPath("/tmp/sinks", "dl-2", "https://example.com/v")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "/tmp/sinks", filepath.Dir(a))
	assert.True(t, strings.HasSuffix(a, ".paths"))
	assert.Len(t, strings.TrimSuffix(filepath.Base(a), ".paths"), 24)
}

func TestReadSink(t *testing.T) {
	path := writeSink(t, "\n  \"/a/1.mp4\"  \n\n'/a/2.mp4'\n   \n")
	assert.Equal(t, []string{"/a/1.mp4", "/a/2.mp4"}, ReadSink(path))

	assert.Nil(t, ReadSink(""))
	assert.Nil(t, ReadSink(filepath.Join(t.TempDir(), "missing.paths")))
}

func TestDeleteSinkIsIdempotent(t *testing.T) {
	path := writeSink(t, "/a/1.mp4\n")
	logger := zaptest.NewLogger(t)

	DeleteSink(path, logger)
	assert.NoFileExists(t, path)
	DeleteSink(path, logger)
	DeleteSink("", logger)
}

func TestResolveSinkWins(t *testing.T) {
	path := writeSink(t, "/a/1.mp4\n/a/2.mp4\n")

	res := Chain{}.Resolve(Input{
		SinkFile:     path,
		Logs:         []string{"[download] Destination: /b/log.mp4"},
		ProducedPath: "/c/produced.mp4",
		OutputDir:    "/d",
		Title:        "t",
		Ext:          "mp4",
	})

	assert.Equal(t, "/a/2.mp4", res.Path)
	assert.Equal(t, LayerSink, res.Layer)
	assert.Equal(t, []string{"/a/1.mp4", "/a/2.mp4"}, res.AllOutputs)
}

func TestResolveFallbackChain(t *testing.T) {
	dir := t.TempDir()
	emptySink := writeSink(t, "\n\n")

	res := Chain{}.Resolve(Input{
		SinkFile: emptySink,
		Logs: []string{
			"[download] Destination: /b/first.f137.mp4",
			"[Merger] Merging formats into \"/b/merged.mp4\"",
			"[download] 100% of 10MiB",
		},
		ProducedPath: "/c/produced.mp4",
	})
	assert.Equal(t, Result{Path: "/b/merged.mp4", Layer: LayerLog}, res)

	res = Chain{}.Resolve(Input{ProducedPath: "/c/produced.mp4", OutputDir: dir, Title: "x"})
	assert.Equal(t, Result{Path: "/c/produced.mp4", Layer: LayerProduced}, res)

	res = Chain{}.Resolve(Input{OutputDir: dir, Title: "My: Video?", Ext: "mp4"})
	assert.Equal(t, Result{Path: filepath.Join(dir, "My_ Video_.mp4"), Layer: LayerSynthesized}, res)

	res = Chain{}.Resolve(Input{OutputDir: dir})
	assert.Equal(t, Result{Path: filepath.Join(dir, "untitled"), Layer: LayerSynthesized}, res)

	res = Chain{}.Resolve(Input{})
	assert.Equal(t, Result{Layer: LayerNone}, res)
}

func TestResolveMergedLogLineWithoutSink(t *testing.T) {
	logs := []string{"Merging formats into \"/x/title.mp4\""}

	res := Chain{}.Resolve(Input{SinkFile: filepath.Join(t.TempDir(), "missing.txt"), Logs: logs})
	assert.Equal(t, Result{Path: "/x/title.mp4", Layer: LayerLog}, res)

	res = Chain{}.Resolve(Input{SinkFile: writeSink(t, ""), Logs: logs, OutputDir: t.TempDir(), Title: "title"})
	assert.Equal(t, Result{Path: "/x/title.mp4", Layer: LayerLog}, res)
}

func TestSynthesizePrefersExistingSimilarFile(t *testing.T) {
	dir := t.TempDir()
	actual := filepath.Join(dir, "My_Video.mp3")
	require.NoError(t, os.WriteFile(actual, []byte("x"), 0o644))

	assert.Equal(t, actual, Synthesize(dir, "My Video", ".mp3"))
	assert.Equal(t, filepath.Join(dir, "Other.mp3"), Synthesize(dir, "Other", "mp3"))
	assert.Equal(t, "", Synthesize("", "Other", "mp3"))
}

func TestPathFromLogs(t *testing.T) {
	tests := []struct {
		name     string
		lines    []string
		expected string
	}{
		{"none", []string{"[youtube] abc: Downloading webpage"}, ""},
		{"destination", []string{"[download] Destination: /x/a.webm"}, "/x/a.webm"},
		{"extract audio", []string{"[download] Destination: /x/a.webm", "[ExtractAudio] Destination: /x/a.mp3"}, "/x/a.mp3"},
		{"move files", []string{"[MoveFiles] Moving file \"/tmp/a.mp4\" to \"/x/a.mp4\""}, "/x/a.mp4"},
		{"already downloaded", []string{"[download] /x/a.mp4 has already been downloaded"}, "/x/a.mp4"},
		{"merge unprefixed", []string{"Merging formats into \"/x/title.mp4\""}, "/x/title.mp4"},
		{"moving to", []string{"Moving to \"/x/moved.mp4\""}, "/x/moved.mp4"},
		{"move files unprefixed", []string{"Moving file \"/tmp/a\" to \"/x/b.mp4\""}, "/x/b.mp4"},
		{"last wins", []string{"[Merger] Merging formats into \"/x/m.mkv\"", "[download] Destination: /x/late.mkv"}, "/x/late.mkv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PathFromLogs(tt.lines))
		})
	}
}

func TestNameFromSource(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"https://www.youtube.com/watch?v=abc", "abc"},
		{"https://a.test/media/clip-42.mp4?x=1", "clip-42"},
		{"https://a.test/media/clip-42", "clip-42"},
		{"https://a.test/", "a.test"},
		{"/in/clip.mov", "clip"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, NameFromSource(tt.in))
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"Plain Title", "Plain Title"},
		{"a/b\\c:d*e?f\"g<h>i|j", "a_b_c_d_e_f_g_h_i_j"},
		{"  lots   of\tspace  ", "lots of space"},
		{"trailing dots...", "trailing dots"},
		{"", "untitled"},
		{" . ", "untitled"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Sanitize(tt.in), "input %q", tt.in)
	}
}

func TestSplitBase(t *testing.T) {
	t.Run("chapter directory", func(t *testing.T) {
		lines := []string{
			"/dl/Album.mp3",
			"/dl/Album/001 Intro.mp3",
			"/dl/Album/002 Song.mp3",
		}
		assert.Equal(t, "/dl/Album.mp3", SplitBase(lines, "mp3"))
		assert.Equal(t, "/dl/Album", ChapterDir(lines, "/dl/Album.mp3"))
	})

	t.Run("chapter prefix", func(t *testing.T) {
		lines := []string{
			"/dl/Talk - 001 Opening.mp4",
			"/dl/Talk.mp4",
			"/dl/Talk - 002 Q&A.mp4",
		}
		assert.Equal(t, "/dl/Talk.mp4", SplitBase(lines, ".mp4"))
		assert.Equal(t, "/dl", ChapterDir(lines, "/dl/Talk.mp4"))
	})

	t.Run("no base", func(t *testing.T) {
		lines := []string{"/dl/Album/001 Intro.mp3", "/dl/Album/002 Song.mp3"}
		assert.Equal(t, "", SplitBase(lines, "mp3"))
		assert.Equal(t, "", SplitBase([]string{"/dl/single.mp3"}, "mp3"))
	})

	t.Run("other extension ignored", func(t *testing.T) {
		lines := []string{"/dl/Album.webm", "/dl/Album/001 Intro.mp3"}
		assert.Equal(t, "", SplitBase(lines, "mp3"))
	})
}

func TestResolveSplitChapters(t *testing.T) {
	path := writeSink(t, "/dl/Album.mp3\n/dl/Album/001 Intro.mp3\n/dl/Album/002 Song.mp3\n")

	res := Chain{}.Resolve(Input{SinkFile: path, Ext: "mp3", SplitChapters: true})
	assert.Equal(t, "/dl/Album", res.Path)
	assert.Equal(t, "/dl/Album.mp3", res.SplitBase)
	assert.Equal(t, LayerSink, res.Layer)
	assert.Len(t, res.AllOutputs, 3)
}
