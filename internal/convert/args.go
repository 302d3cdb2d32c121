package convert

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ytget/mediaqueue/internal/model"
)

// FFmpeg constants for conversion settings
const (
	DefaultCRF          = 23
	DefaultAudioBitrate = "128k"

	SoftwarePreset  = "medium"
	FastStartFlag   = "+faststart"
	ConvertedSuffix = "-converted"

	ProgressPipeTarget = "pipe:2"
	VAAPIDevice        = "/dev/dri/renderD128"
)

// OutputPath returns <dir>/<input stem>-converted.<container>, dir defaulting to the input's directory
func OutputPath(p *model.ConversionParams) string {
	dir := p.OutputDir
	if dir == "" {
		dir = filepath.Dir(p.InputPath)
	}
	base := filepath.Base(p.InputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+ConvertedSuffix+"."+p.Extension())
}

// audioCodecFor picks an audio encoder that the container accepts
func audioCodecFor(container string) string {
	switch container {
	case "mp3":
		return "libmp3lame"
	case "opus", "webm", "ogg":
		return "libopus"
	case "flac":
		return "flac"
	default:
		return "aac"
	}
}

// BuildArgs builds the ffmpeg command arguments for one conversion
func BuildArgs(p *model.ConversionParams, encoder, outputPath string) []string {
	container := p.Extension()
	crf := p.CRF
	if crf == 0 {
		crf = DefaultCRF
	}
	bitrate := p.AudioBitrate
	if bitrate == "" {
		bitrate = DefaultAudioBitrate
	}

	args := []string{"-hide_banner", "-y"}
	if strings.HasSuffix(encoder, "_vaapi") {
		args = append(args, "-vaapi_device", VAAPIDevice)
	}
	args = append(args, "-i", p.InputPath)

	if p.AudioOnly {
		args = append(args, "-vn")
	} else {
		args = append(args, "-c:v", encoder)
		args = append(args, qualityArgs(encoder, crf)...)
	}

	args = append(args, "-c:a", audioCodecFor(container))
	if container != "flac" {
		args = append(args, "-b:a", bitrate)
	}
	if container == "mp4" || container == "mov" || container == "m4a" {
		args = append(args, "-movflags", FastStartFlag)
	}

	return append(args,
		"-progress", ProgressPipeTarget,
		"-nostats",
		outputPath,
	)
}

// qualityArgs maps a CRF-style quality value to the encoder family's own option
func qualityArgs(encoder string, crf int) []string {
	q := strconv.Itoa(crf)
	switch {
	case strings.HasSuffix(encoder, "_nvenc"):
		return []string{"-preset", "p4", "-cq", q}
	case strings.HasSuffix(encoder, "_qsv"):
		return []string{"-global_quality", q}
	case strings.HasSuffix(encoder, "_amf"):
		return []string{"-quality", "balanced", "-qp_i", q, "-qp_p", q}
	case strings.HasSuffix(encoder, "_vaapi"):
		return []string{"-vf", "format=nv12,hwupload", "-qp", q}
	case strings.HasSuffix(encoder, "_videotoolbox"):
		return []string{"-q:v", strconv.Itoa(videotoolboxQuality(crf))}
	case encoder == "libsvtav1":
		return []string{"-preset", "8", "-crf", q}
	default:
		return []string{"-preset", SoftwarePreset, "-crf", q}
	}
}

// videotoolboxQuality converts CRF (lower is better, 0..51) to videotoolbox -q:v (higher is better, 1..100)
func videotoolboxQuality(crf int) int {
	q := 100 - crf*2
	if q < 1 {
		q = 1
	}
	return q
}
