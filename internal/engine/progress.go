package engine

import (
	"regexp"
	"strconv"
	"time"

	"github.com/IagoDantas/upload-ai-web/internal/domain"
)

var (
	durationPattern = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	timePattern     = regexp.MustCompile(`time=\s*(-?\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
)

// progressTracker turns ffmpeg console output into completion ratios.
// Reported values never decrease and stay within [0,1].
type progressTracker struct {
	emit  domain.ProgressFunc
	total time.Duration
	last  float64
}

func newProgressTracker(emit domain.ProgressFunc) *progressTracker {
	return &progressTracker{emit: emit}
}

// observe consumes one console line.
func (p *progressTracker) observe(line string) {
	if p.emit == nil {
		return
	}

	if p.total <= 0 {
		if m := durationPattern.FindStringSubmatch(line); m != nil {
			p.total = parseClock(m[1], m[2], m[3])
		}
		return
	}

	m := timePattern.FindStringSubmatch(line)
	if m == nil {
		return
	}
	elapsed := parseClock(m[1], m[2], m[3])
	p.report(float64(elapsed) / float64(p.total))
}

// finish reports completion once the command succeeded.
func (p *progressTracker) finish() {
	if p.emit == nil {
		return
	}
	p.report(1)
}

func (p *progressTracker) report(ratio float64) {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	if ratio <= p.last {
		return
	}
	p.last = ratio
	p.emit(ratio)
}

// parseClock converts ffmpeg HH:MM:SS.ss fields into a duration.
func parseClock(hours, minutes, seconds string) time.Duration {
	h, err := strconv.Atoi(hours)
	if err != nil || h < 0 {
		return 0
	}
	m, err := strconv.Atoi(minutes)
	if err != nil {
		return 0
	}
	s, err := strconv.ParseFloat(seconds, 64)
	if err != nil {
		return 0
	}

	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s*float64(time.Second))
}
