package capability

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ytget/mediaqueue/internal/model"
)

const (
	DefaultFFmpeg       = "ffmpeg"
	DefaultProbeTimeout = 10 * time.Second
)

// Runner executes a probe command and returns its stdout
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Encoder priority per codec class, hardware first, software last
var encoderPriority = map[model.VideoCodec][]string{
	model.CodecH264: {"h264_nvenc", "h264_qsv", "h264_videotoolbox", "h264_amf", "h264_vaapi", "libx264"},
	model.CodecHEVC: {"hevc_nvenc", "hevc_qsv", "hevc_videotoolbox", "hevc_amf", "hevc_vaapi", "libx265"},
	model.CodecAV1:  {"av1_nvenc", "av1_qsv", "av1_amf", "av1_vaapi", "libsvtav1"},
}

var softwareEncoders = map[model.VideoCodec]string{
	model.CodecH264: "libx264",
	model.CodecHEVC: "libx265",
	model.CodecAV1:  "libsvtav1",
}

// Capabilities is an immutable probe result
type Capabilities struct {
	Encoders map[string]bool
	HWAccels []string
	// Probed is false when detection failed and only software encoders are assumed
	Probed bool
}

// HasEncoder reports whether ffmpeg lists the named encoder
func (c *Capabilities) HasEncoder(name string) bool {
	return c.Encoders[name]
}

// BestVideoEncoder returns the highest priority available encoder for codec
func (c *Capabilities) BestVideoEncoder(codec model.VideoCodec) string {
	if codec == "" {
		codec = model.CodecH264
	}
	for _, name := range encoderPriority[codec] {
		if c.Encoders[name] {
			return name
		}
	}
	if sw, ok := softwareEncoders[codec]; ok {
		return sw
	}
	return softwareEncoders[model.CodecH264]
}

// IsHardware reports whether encoder is a hardware encoder
func IsHardware(encoder string) bool {
	for _, sw := range softwareEncoders {
		if encoder == sw {
			return false
		}
	}
	return encoder != ""
}

type generation struct {
	once sync.Once
	caps *Capabilities
}

// Cache memoizes the probe result
type Cache struct {
	ffmpeg  string
	timeout time.Duration
	run     Runner
	logger  *zap.Logger
	probes  atomic.Int64
	current atomic.Pointer[generation]
}

// Option configures a Cache
type Option func(*Cache)

// WithRunner replaces the command runner
func WithRunner(r Runner) Option {
	return func(c *Cache) { c.run = r }
}

// WithTimeout bounds a single probe
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) { c.timeout = d }
}

// NewCache creates a cache probing the given ffmpeg binary
func NewCache(ffmpeg string, logger *zap.Logger, opts ...Option) *Cache {
	if ffmpeg == "" {
		ffmpeg = DefaultFFmpeg
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		ffmpeg:  ffmpeg,
		timeout: DefaultProbeTimeout,
		run:     ExecRunner,
		logger:  logger.Named("capability"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.current.Store(&generation{})
	return c
}

// Get returns the capabilities, probing on first use of the current generation.
// Concurrent callers share a single probe.
func (c *Cache) Get() *Capabilities {
	gen := c.current.Load()
	gen.once.Do(func() {
		gen.caps = c.probe()
	})
	return gen.caps
}

// BestVideoEncoder is shorthand for Get().BestVideoEncoder(codec)
func (c *Cache) BestVideoEncoder(codec model.VideoCodec) string {
	return c.Get().BestVideoEncoder(codec)
}

// Invalidate drops the memoized result; the next Get probes again
func (c *Cache) Invalidate() {
	c.current.Store(&generation{})
}

// Probes returns how many probes have run
func (c *Cache) Probes() int64 {
	return c.probes.Load()
}

func (c *Cache) probe() *Capabilities {
	c.probes.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var encodersOut, hwaccelsOut []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := c.run(gctx, c.ffmpeg, "-hide_banner", "-encoders")
		encodersOut = out
		return err
	})
	g.Go(func() error {
		out, err := c.run(gctx, c.ffmpeg, "-hide_banner", "-hwaccels")
		hwaccelsOut = out
		return err
	})

	if err := g.Wait(); err != nil {
		c.logger.Warn("ffmpeg capability probe failed, assuming software encoders only", zap.Error(err))
		return softwareOnly()
	}

	caps := &Capabilities{
		Encoders: parseEncoders(encodersOut),
		HWAccels: parseHWAccels(hwaccelsOut),
		Probed:   true,
	}
	c.logger.Info("ffmpeg capabilities detected",
		zap.Int("encoders", len(caps.Encoders)),
		zap.Strings("hwaccels", caps.HWAccels),
		zap.String("h264", caps.BestVideoEncoder(model.CodecH264)))
	return caps
}

func softwareOnly() *Capabilities {
	encoders := make(map[string]bool, len(softwareEncoders))
	for _, name := range softwareEncoders {
		encoders[name] = true
	}
	return &Capabilities{Encoders: encoders}
}

// parseEncoders reads `ffmpeg -encoders` output: " V....D libx264   description"
func parseEncoders(out []byte) map[string]bool {
	encoders := make(map[string]bool)
	pastHeader := false
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !pastHeader {
			if strings.HasPrefix(line, "------") {
				pastHeader = true
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}

// parseHWAccels reads `ffmpeg -hwaccels` output, one method per line after the header
func parseHWAccels(out []byte) []string {
	var methods []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		methods = append(methods, line)
	}
	return methods
}
