package convert

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/ytget/mediaqueue/internal/gateway"
)

const (
	progressTimePrefix  = "out_time_us="
	progressSpeedPrefix = "speed="
	progressEndPrefix   = "progress="
)

// key=value lines written by -progress
var progressKey = regexp.MustCompile(`^[a-z0-9_]+=`)

// progressParser folds ffmpeg -progress blocks into Progress events
type progressParser struct {
	duration float64 // seconds, 0 if unknown
	percent  float64
	speed    float64
}

// feed consumes one stderr line. It returns a Progress event at the end of a
// progress block, a Log event for ordinary output, or nil.
func (p *progressParser) feed(line string) gateway.Event {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	switch {
	case strings.HasPrefix(line, progressTimePrefix):
		us, err := strconv.ParseInt(strings.TrimPrefix(line, progressTimePrefix), 10, 64)
		if err == nil && p.duration > 0 {
			percent := float64(us) / 1000000.0 / p.duration * 100
			if percent > 100 {
				percent = 100
			}
			if percent >= 0 {
				p.percent = percent
			}
		}
		return nil
	case strings.HasPrefix(line, progressSpeedPrefix):
		// speed=1.23x or speed=N/A
		value := strings.TrimSuffix(strings.TrimPrefix(line, progressSpeedPrefix), "x")
		if speed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			p.speed = speed
		}
		return nil
	case strings.HasPrefix(line, progressEndPrefix):
		if strings.TrimPrefix(line, progressEndPrefix) == "end" {
			p.percent = 100
		}
		return gateway.Progress{Percent: p.percent, Rate: p.speed}
	case progressKey.MatchString(line):
		return nil
	}
	return gateway.Log{Line: line}
}

// scan reads r to the end, handing every produced event to emit and keeping the last lines
func (p *progressParser) scan(r io.Reader, emit func(gateway.Event), tail *[]string, tailSize int) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		ev := p.feed(scanner.Text())
		if ev == nil {
			continue
		}
		if l, ok := ev.(gateway.Log); ok {
			*tail = append(*tail, l.Line)
			if len(*tail) > tailSize {
				*tail = (*tail)[len(*tail)-tailSize:]
			}
		}
		emit(ev)
	}
}
