package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/perimetric/zonewatch/internal/log"
)

// lowFPSThreshold is the average throughput below which the summary is
// logged as a warning instead of info.
const lowFPSThreshold = 5.0

// statsWindow accumulates per-frame processing times and logs a
// throughput summary every interval frames.
type statsWindow struct {
	camera    string
	interval  int
	durations []time.Duration
}

func newStatsWindow(camera string, interval int) *statsWindow {
	return &statsWindow{
		camera:    camera,
		interval:  interval,
		durations: make([]time.Duration, 0, max(interval, 1)),
	}
}

func (s *statsWindow) observe(d time.Duration) {
	if s.interval <= 0 {
		return
	}
	s.durations = append(s.durations, d)
	if len(s.durations) < s.interval {
		return
	}
	s.flush()
}

func (s *statsWindow) flush() {
	fps := make([]float64, 0, len(s.durations))
	for _, d := range s.durations {
		if d <= 0 {
			continue
		}
		fps = append(fps, 1/d.Seconds())
	}
	s.durations = s.durations[:0]
	if len(fps) == 0 {
		return
	}

	sort.Float64s(fps)
	var sum float64
	for _, f := range fps {
		sum += f
	}

	avg := sum / float64(len(fps))
	logFn := log.Info
	if avg < lowFPSThreshold {
		logFn = log.Warn
	}
	logFn("throughput",
		"camera", s.camera,
		"frames", len(fps),
		"fps_avg", round1(avg),
		"fps_min", round1(fps[0]),
		"fps_max", round1(fps[len(fps)-1]),
		"fps_p25", round1(percentile(fps, 0.25)),
		"fps_p75", round1(percentile(fps, 0.75)),
	)
}

// percentile reads from a sorted slice with linear interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

func round1(f float64) string {
	return fmt.Sprintf("%.1f", f)
}
