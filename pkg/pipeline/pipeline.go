// Package pipeline runs the per-camera processing loop: frames in,
// debounced zone occupancy events out. One Pipeline owns one camera and
// runs as a single goroutine; everything downstream of the stream source
// is synchronous, so event ordering follows frame order by construction.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/perimetric/zonewatch/internal/log"
	"github.com/perimetric/zonewatch/pkg/detect"
	"github.com/perimetric/zonewatch/pkg/stream"
	"github.com/perimetric/zonewatch/pkg/track"
	"github.com/perimetric/zonewatch/pkg/zone"
)

// EventSink consumes committed occupancy events. Sinks are called in
// event order; a sink error is logged and the event is not redelivered.
type EventSink interface {
	HandleEvent(ctx context.Context, ev zone.Event) error
}

// SinkFunc adapts a function to the EventSink interface.
type SinkFunc func(ctx context.Context, ev zone.Event) error

func (f SinkFunc) HandleEvent(ctx context.Context, ev zone.Event) error {
	return f(ctx, ev)
}

// FrameSink observes processed frames with their live tracks, e.g. for a
// dashboard preview. Called synchronously from the loop; the frame Mat is
// only valid for the duration of the call.
type FrameSink interface {
	HandleFrame(frame stream.Frame, tracks []*track.Track)
}

// Config carries the per-camera loop parameters.
type Config struct {
	CameraID      string
	FrameSkip     int     // process every Nth frame; 1 processes all
	BottomOffset  float64 // track reference point lift, fraction of box height
	Debounce      int     // K consecutive frames to commit a zone transition
	StaleFrames   int     // evaluator pair garbage-collection horizon
	StatsInterval int     // frames between throughput log lines; 0 disables
}

// Snapshot is a point-in-time view of one pipeline for observers.
type Snapshot struct {
	CameraID      string    `json:"camera_id"`
	Frames        int64     `json:"frames"`
	Detections    int64     `json:"detections"`
	Events        int64     `json:"events"`
	ActiveTracks  int       `json:"active_tracks"`
	OccupiedZones []string  `json:"occupied_zones"`
	LastFrame     time.Time `json:"last_frame"`
}

// Pipeline wires a stream source, detector, tracker and zone evaluator
// into one loop. Construct with New, then call Run exactly once.
type Pipeline struct {
	cfg       Config
	source    stream.Source
	detector  detect.Detector
	tracker   *track.Tracker
	registry  *zone.Registry
	evaluator *zone.Evaluator
	sinks     []EventSink
	frameSink FrameSink
	stats     *statsWindow

	mu   sync.Mutex
	snap Snapshot
}

// New assembles a pipeline. The zone registry is scaled to the source's
// frame size when Run opens the stream.
func New(cfg Config, source stream.Source, detector detect.Detector, tracker *track.Tracker, registry *zone.Registry, sinks ...EventSink) *Pipeline {
	if cfg.FrameSkip < 1 {
		cfg.FrameSkip = 1
	}
	if cfg.Debounce < 1 {
		cfg.Debounce = 1
	}
	return &Pipeline{
		cfg:      cfg,
		source:   source,
		detector: detector,
		tracker:  tracker,
		registry: registry,
		sinks:    sinks,
		stats:    newStatsWindow(cfg.CameraID, cfg.StatsInterval),
		snap:     Snapshot{CameraID: cfg.CameraID},
	}
}

// ObserveFrames attaches a frame observer. Must be called before Run.
func (p *Pipeline) ObserveFrames(fs FrameSink) {
	p.frameSink = fs
}

// Snapshot returns the current pipeline state. Safe to call from other
// goroutines while Run is active.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.snap
	s.OccupiedZones = append([]string(nil), p.snap.OccupiedZones...)
	return s
}

// Run executes the loop until the context is cancelled or the stream
// fails fatally. Per-frame errors (detector failures, tracker update
// errors) are logged and the loop continues with the next frame; the
// frame in flight is always finished before a cancellation is honored.
func (p *Pipeline) Run(ctx context.Context) error {
	defer func() {
		if err := p.detector.Close(); err != nil {
			log.Warn("detector close", "camera", p.cfg.CameraID, "error", err)
		}
	}()

	if err := p.source.Open(ctx); err != nil {
		return errors.Wrapf(err, "pipeline %s: open stream", p.cfg.CameraID)
	}
	defer p.source.Close()

	w, h := p.source.Size()
	reg := p.registry.ScaledTo(w, h)
	p.evaluator = zone.NewEvaluator(reg, p.cfg.Debounce, p.cfg.StaleFrames)

	log.Info("pipeline started",
		"camera", p.cfg.CameraID,
		"run_id", uuid.NewString(),
		"frame_size", [2]int{w, h},
		"zones", len(reg.Zones()),
		"frame_skip", p.cfg.FrameSkip,
	)

	for {
		frame, err := p.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("pipeline stopped", "camera", p.cfg.CameraID, "frames", p.frameCount())
				return ctx.Err()
			}
			return errors.Wrapf(err, "pipeline %s: stream", p.cfg.CameraID)
		}

		if frame.Seq%int64(p.cfg.FrameSkip) != 0 {
			continue
		}

		start := time.Now()
		if err := p.process(ctx, frame); err != nil {
			log.Error("frame processing failed",
				"camera", p.cfg.CameraID,
				"seq", frame.Seq,
				"error", err,
			)
		}
		p.stats.observe(time.Since(start))
	}
}

// process runs one frame through detection, tracking and zone
// evaluation, then delivers the resulting events in order.
func (p *Pipeline) process(ctx context.Context, frame stream.Frame) error {
	detections, err := p.detector.Detect(frame.Mat)
	if err != nil {
		// A failed inference counts as a missed frame: tracks age toward
		// their grace period instead of being pinned alive for as long as
		// the detector is down.
		log.Error("detection failed, treating frame as empty",
			"camera", p.cfg.CameraID,
			"seq", frame.Seq,
			"error", err,
		)
		detections = nil
	}

	removed, err := p.tracker.Update(detections, frame.Timestamp)
	if err != nil {
		return errors.Wrap(err, "track")
	}

	tracks := p.tracker.Tracks()
	points := make([]zone.TrackPoint, 0, len(tracks))
	for _, trk := range tracks {
		points = append(points, zone.TrackPoint{
			TrackID: trk.ID,
			Point:   trk.RefPoint(p.cfg.BottomOffset),
		})
	}

	if p.frameSink != nil {
		p.frameSink.HandleFrame(frame, tracks)
	}

	events := p.evaluator.Evaluate(points, frame.Timestamp)
	for _, id := range removed {
		events = append(events, p.evaluator.TrackDeleted(id, frame.Timestamp)...)
	}

	p.dispatch(ctx, events)
	p.updateSnapshot(frame, len(detections), len(tracks), len(events))
	return nil
}

// dispatch hands events to every sink in order. A sink failure drops that
// event for that sink only; there is no retry here, sinks that need one
// own it themselves.
func (p *Pipeline) dispatch(ctx context.Context, events []zone.Event) {
	for _, ev := range events {
		for _, sink := range p.sinks {
			if err := sink.HandleEvent(ctx, ev); err != nil {
				log.Error("event sink failed",
					"camera", p.cfg.CameraID,
					"event", ev.Kind.String(),
					"zone", ev.ZoneID,
					"track", ev.TrackID,
					"error", err,
				)
			}
		}
	}
}

func (p *Pipeline) updateSnapshot(frame stream.Frame, detections, tracks, events int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Frames++
	p.snap.Detections += int64(detections)
	p.snap.Events += int64(events)
	p.snap.ActiveTracks = tracks
	p.snap.OccupiedZones = p.evaluator.OccupiedZones()
	p.snap.LastFrame = frame.Timestamp
}

func (p *Pipeline) frameCount() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap.Frames
}
