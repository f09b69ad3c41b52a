package track

import (
	"fmt"
	"sort"
	"time"

	hungarian "github.com/arthurkushman/go-hungarian"

	"github.com/perimetric/zonewatch/internal/log"
	"github.com/perimetric/zonewatch/pkg/detect"
	"github.com/perimetric/zonewatch/pkg/geom"
)

// Config holds the tracker's tunable parameters.
type Config struct {
	// GracePeriod is how many consecutive unmatched frames a track
	// survives before deletion.
	GracePeriod int
	// MinScore is the minimum similarity for a (track, detection) pair
	// to be accepted as a match.
	MinScore float64
	// UseHungarian selects optimal assignment over greedy matching.
	UseHungarian bool
	// MaxHistory bounds each track's position history.
	MaxHistory int
}

// DefaultConfig returns parameters that work well for person tracking on
// streams in the 10-30 FPS range.
func DefaultConfig() Config {
	return Config{
		GracePeriod:  15,
		MinScore:     0.15,
		UseHungarian: false,
		MaxHistory:   50,
	}
}

// Tracker owns the set of live tracks. Not safe for concurrent use; each
// camera pipeline drives exactly one tracker from its single loop.
type Tracker struct {
	cfg    Config
	tracks map[int64]*Track
	nextID int64
}

// New creates a tracker.
func New(cfg Config) *Tracker {
	if cfg.GracePeriod < 1 {
		cfg.GracePeriod = 1
	}
	if cfg.MaxHistory < 1 {
		cfg.MaxHistory = 50
	}
	return &Tracker{
		cfg:    cfg,
		tracks: make(map[int64]*Track),
		nextID: 1,
	}
}

// assignment pairs a track with a detection index for one frame.
type assignment struct {
	trackID int64
	detIdx  int
	score   float64
}

// Update matches the frame's detections to live tracks, spawns tracks
// for unmatched detections, ages unmatched tracks, and returns the IDs
// of tracks deleted this frame so zone state can be force-closed.
//
// Passing an empty detection list is the normal way to advance miss
// counters on frames where detection failed or was skipped.
func (t *Tracker) Update(detections []detect.Detection, ts time.Time) (removed []int64, err error) {
	ids := t.sortedIDs()

	for _, id := range ids {
		t.tracks[id].predict()
	}

	assignments := t.match(ids, detections)

	matchedTracks := make(map[int64]bool, len(assignments))
	matchedDets := make(map[int]bool, len(assignments))
	for _, a := range assignments {
		if err := t.tracks[a.trackID].update(detections[a.detIdx].Box); err != nil {
			return nil, err
		}
		matchedTracks[a.trackID] = true
		matchedDets[a.detIdx] = true
	}

	for i, det := range detections {
		if !matchedDets[i] {
			t.register(det.Box, ts)
		}
	}

	for _, id := range ids {
		if matchedTracks[id] {
			continue
		}
		trk := t.tracks[id]
		trk.Misses++
		if trk.Misses > t.cfg.GracePeriod {
			delete(t.tracks, id)
			removed = append(removed, id)
			log.Debug("track deleted", "track", id, "misses", trk.Misses)
		}
	}

	return removed, nil
}

// match produces the frame's (track, detection) assignment. Both paths are
// deterministic: scores tie-break toward the older (lower-ID) track, then
// the lower detection index.
func (t *Tracker) match(ids []int64, detections []detect.Detection) []assignment {
	if len(ids) == 0 || len(detections) == 0 {
		return nil
	}

	scores := make([][]float64, len(ids))
	for i, id := range ids {
		row := make([]float64, len(detections))
		for j, det := range detections {
			row[j] = t.tracks[id].similarity(det.Box)
		}
		scores[i] = row
	}

	if t.cfg.UseHungarian {
		return t.matchHungarian(ids, scores)
	}
	return t.matchGreedy(ids, scores)
}

// matchGreedy repeatedly takes the best remaining pair above MinScore.
// Favors identity stability on ties by preferring the older track.
func (t *Tracker) matchGreedy(ids []int64, scores [][]float64) []assignment {
	usedTracks := make(map[int]bool)
	usedDets := make(map[int]bool)
	var out []assignment

	for {
		best := assignment{trackID: -1, detIdx: -1, score: t.cfg.MinScore}
		bestRow := -1
		for i := range scores {
			if usedTracks[i] {
				continue
			}
			for j := range scores[i] {
				if usedDets[j] {
					continue
				}
				if scores[i][j] > best.score {
					best = assignment{trackID: ids[i], detIdx: j, score: scores[i][j]}
					bestRow = i
				}
			}
		}
		if bestRow == -1 {
			return out
		}
		usedTracks[bestRow] = true
		usedDets[best.detIdx] = true
		out = append(out, best)
	}
}

// matchHungarian runs optimal assignment on a zero-padded square matrix
// and drops pairs below MinScore afterwards.
func (t *Tracker) matchHungarian(ids []int64, scores [][]float64) []assignment {
	numTracks := len(ids)
	numDets := len(scores[0])
	size := numTracks
	if numDets > size {
		size = numDets
	}

	padded := make([][]float64, size)
	for i := range padded {
		padded[i] = make([]float64, size)
		if i < numTracks {
			copy(padded[i], scores[i])
		}
	}

	solved := hungarian.SolveMax(padded)

	var out []assignment
	for row, cols := range solved {
		if row >= numTracks {
			continue
		}
		for col := range cols {
			if col >= numDets {
				continue
			}
			if scores[row][col] > t.cfg.MinScore {
				out = append(out, assignment{trackID: ids[row], detIdx: col, score: scores[row][col]})
			}
		}
	}

	// Map iteration order is random; restore deterministic event order.
	sort.Slice(out, func(i, j int) bool { return out[i].trackID < out[j].trackID })
	return out
}

// register creates a track for an unmatched detection. A colliding ID is
// a programming defect, not a runtime condition.
func (t *Tracker) register(box geom.Rectangle, ts time.Time) *Track {
	id := t.nextID
	t.nextID++
	if _, exists := t.tracks[id]; exists {
		panic(fmt.Sprintf("track: duplicate track ID %d", id))
	}
	trk := newTrack(id, box, t.cfg.MaxHistory, ts)
	t.tracks[id] = trk
	log.Debug("track created", "track", id, "x", box.X, "y", box.Y)
	return trk
}

// Tracks returns the live tracks ordered by ID (oldest first).
func (t *Tracker) Tracks() []*Track {
	out := make([]*Track, 0, len(t.tracks))
	for _, id := range t.sortedIDs() {
		out = append(out, t.tracks[id])
	}
	return out
}

// Len returns the number of live tracks.
func (t *Tracker) Len() int {
	return len(t.tracks)
}

func (t *Tracker) sortedIDs() []int64 {
	ids := make([]int64, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
