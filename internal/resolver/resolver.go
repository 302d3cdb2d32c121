package resolver

import (
	"path/filepath"
	"strings"

	"github.com/ytget/mediaqueue/internal/platform"
)

// Layer names the fallback step that produced a path
type Layer string

const (
	LayerSink        Layer = "sink"
	LayerLog         Layer = "log"
	LayerProduced    Layer = "produced"
	LayerSynthesized Layer = "synthesized"
	LayerNone        Layer = "none"
)

// Input is everything known about a finished run
type Input struct {
	SinkFile      string
	Logs          []string
	ProducedPath  string
	OutputDir     string
	Title         string
	Ext           string
	SplitChapters bool
}

// Result is the resolved output
type Result struct {
	Path  string
	Layer Layer
	// AllOutputs are the sink lines, in the order the tool wrote them
	AllOutputs []string
	// SplitBase is the non-split artifact of a chapter split, if one was found
	SplitBase string
}

// Resolver determines the final artifact path of a run
type Resolver interface {
	Resolve(in Input) Result
}

// Chain is the default Resolver
type Chain struct{}

// Resolve applies sink, log, produced path and synthesis in that order. It never fails:
// when nothing is known the result has LayerNone and an empty path.
func (Chain) Resolve(in Input) Result {
	lines := ReadSink(in.SinkFile)
	if len(lines) > 0 {
		res := Result{Path: lines[len(lines)-1], Layer: LayerSink, AllOutputs: lines}
		if in.SplitChapters {
			if base := SplitBase(lines, in.Ext); base != "" {
				res.SplitBase = base
				res.Path = ChapterDir(lines, base)
			}
		}
		return res
	}

	if p := PathFromLogs(in.Logs); p != "" {
		return Result{Path: p, Layer: LayerLog}
	}

	if p := cleanPath(in.ProducedPath); p != "" {
		return Result{Path: p, Layer: LayerProduced}
	}

	if p := Synthesize(in.OutputDir, in.Title, in.Ext); p != "" {
		return Result{Path: p, Layer: LayerSynthesized}
	}
	return Result{Layer: LayerNone}
}

// Synthesize builds <dir>/<sanitized title>.<ext>, naming a blank title
// "untitled". When that file does not exist a similarly named file in the same
// directory is preferred. It returns "" only if dir is unknown.
func Synthesize(dir, title, ext string) string {
	if dir == "" {
		return ""
	}
	name := Sanitize(title)
	if ext = strings.TrimPrefix(ext, "."); ext != "" {
		name += "." + ext
	}
	path := filepath.Join(dir, name)
	if !platform.FileExists(path) {
		if found, err := platform.FindFileWithFallback(path); err == nil {
			return found
		}
	}
	return path
}
