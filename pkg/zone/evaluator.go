package zone

import (
	"time"

	"github.com/google/uuid"

	"github.com/perimetric/zonewatch/internal/log"
	"github.com/perimetric/zonewatch/pkg/geom"
)

// EventKind is the committed occupancy transition.
type EventKind uint8

const (
	// EventEnter is emitted when a track has been inside a zone for the
	// full debounce window.
	EventEnter EventKind = iota
	// EventExit is emitted when a track has been outside for the full
	// debounce window, or was deleted while inside.
	EventExit
)

// String returns the event kind name.
func (k EventKind) String() string {
	if k == EventEnter {
		return "enter"
	}
	return "exit"
}

// Event records one committed occupancy transition. Emitted at most once
// per transition, in frame-timestamp order per (zone, track) pair.
type Event struct {
	ID        uuid.UUID `json:"id"`
	ZoneID    string    `json:"zone_id"`
	TrackID   int64     `json:"track_id"`
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Forced    bool      `json:"forced,omitempty"` // exit caused by track deletion
}

// occupancyState is the debounced per-pair state machine position.
type occupancyState uint8

const (
	stateOutside occupancyState = iota
	stateEntering
	stateInside
	stateExiting
)

// pairState holds the state machine for one (zone, track) pair.
type pairState struct {
	state     occupancyState
	counter   int   // consecutive frames supporting the pending transition
	lastFrame int64 // evaluator frame sequence when last updated
}

type pairKey struct {
	zoneID  string
	trackID int64
}

// TrackPoint is one live track's zone reference point for the current frame.
type TrackPoint struct {
	TrackID int64
	Point   geom.Point
}

// Evaluator converts raw containment facts into debounced Enter/Exit events.
// Each (zone, track) pair debounces independently, so a track may occupy
// several overlapping zones at once. Not safe for concurrent use; one
// evaluator belongs to one pipeline loop.
type Evaluator struct {
	registry *Registry
	debounce int // K: consecutive frames required to commit a transition
	stale    int // frames without update before a pair is force-closed

	pairs map[pairKey]*pairState
	frame int64
}

// NewEvaluator creates an evaluator over the given registry.
// debounce is the K window; stale is the pair garbage-collection horizon,
// normally the tracker's grace period.
func NewEvaluator(registry *Registry, debounce, stale int) *Evaluator {
	if debounce < 1 {
		debounce = 1
	}
	if stale < 1 {
		stale = debounce
	}
	return &Evaluator{
		registry: registry,
		debounce: debounce,
		stale:    stale,
		pairs:    make(map[pairKey]*pairState),
	}
}

// Evaluate advances every (zone, track) state machine with this frame's
// containment facts and returns the committed events. Deterministic given
// the same inputs and prior state: zones are visited in registry order and
// tracks in input order.
func (e *Evaluator) Evaluate(points []TrackPoint, ts time.Time) []Event {
	e.frame++

	var events []Event
	for _, z := range e.registry.zones {
		for _, tp := range points {
			contained := z.ContainsPoint(tp.Point)
			if ev, ok := e.step(z.ID, tp.TrackID, contained, ts); ok {
				events = append(events, ev)
			}
		}
	}

	events = append(events, e.collectStale(ts)...)
	return events
}

// step advances one pair's state machine and reports a committed event.
func (e *Evaluator) step(zoneID string, trackID int64, contained bool, ts time.Time) (Event, bool) {
	key := pairKey{zoneID: zoneID, trackID: trackID}
	ps, ok := e.pairs[key]
	if !ok {
		// Pairs are created lazily on first containment; a track that
		// never touches a zone costs nothing.
		if !contained {
			return Event{}, false
		}
		ps = &pairState{state: stateOutside}
		e.pairs[key] = ps
	}
	ps.lastFrame = e.frame

	switch ps.state {
	case stateOutside:
		if contained {
			ps.state = stateEntering
			ps.counter = 1
			if e.debounce == 1 {
				ps.state = stateInside
				return e.emit(key, EventEnter, ts, false), true
			}
		}

	case stateEntering:
		if contained {
			ps.counter++
			if ps.counter >= e.debounce {
				ps.state = stateInside
				return e.emit(key, EventEnter, ts, false), true
			}
		} else {
			// Flicker shorter than the window commits nothing
			ps.state = stateOutside
			ps.counter = 0
		}

	case stateInside:
		if !contained {
			ps.state = stateExiting
			ps.counter = 1
			if e.debounce == 1 {
				ps.state = stateOutside
				return e.emit(key, EventExit, ts, false), true
			}
		}

	case stateExiting:
		if contained {
			ps.state = stateInside
			ps.counter = 0
		} else {
			ps.counter++
			if ps.counter >= e.debounce {
				ps.state = stateOutside
				ps.counter = 0
				return e.emit(key, EventExit, ts, false), true
			}
		}
	}
	return Event{}, false
}

// TrackDeleted force-closes every pair belonging to a deleted track.
// Pairs that committed an Enter get exactly one forced Exit; pairs still
// mid-debounce toward Inside are dropped silently so Exit is never emitted
// without a matching Enter.
func (e *Evaluator) TrackDeleted(trackID int64, ts time.Time) []Event {
	var events []Event
	for _, z := range e.registry.zones {
		key := pairKey{zoneID: z.ID, trackID: trackID}
		ps, ok := e.pairs[key]
		if !ok {
			continue
		}
		if ps.state == stateInside || ps.state == stateExiting {
			events = append(events, e.emit(key, EventExit, ts, true))
		}
		delete(e.pairs, key)
	}
	return events
}

// collectStale force-closes pairs that stopped receiving updates, which
// only happens if a caller stops passing a live track without reporting
// its deletion. Registry order keeps the scan deterministic.
func (e *Evaluator) collectStale(ts time.Time) []Event {
	var events []Event
	for _, z := range e.registry.zones {
		for key, ps := range e.pairs {
			if key.zoneID != z.ID {
				continue
			}
			if e.frame-ps.lastFrame <= int64(e.stale) {
				continue
			}
			if ps.state == stateInside || ps.state == stateExiting {
				events = append(events, e.emit(key, EventExit, ts, true))
			}
			delete(e.pairs, key)
		}
	}
	return events
}

func (e *Evaluator) emit(key pairKey, kind EventKind, ts time.Time, forced bool) Event {
	ev := Event{
		ID:        uuid.New(),
		ZoneID:    key.zoneID,
		TrackID:   key.trackID,
		Kind:      kind,
		Timestamp: ts,
		Forced:    forced,
	}
	log.Debug("zone transition",
		"zone", ev.ZoneID, "track", ev.TrackID, "kind", ev.Kind.String(), "forced", forced)
	return ev
}

// PairCount returns the number of live (zone, track) pairs. Exposed for
// the dashboard and tests.
func (e *Evaluator) PairCount() int {
	return len(e.pairs)
}

// Inside reports whether the pair has a committed Inside state.
func (e *Evaluator) Inside(zoneID string, trackID int64) bool {
	ps, ok := e.pairs[pairKey{zoneID: zoneID, trackID: trackID}]
	return ok && (ps.state == stateInside || ps.state == stateExiting)
}

// OccupiedZones returns the IDs of zones with at least one track Inside,
// in registry order.
func (e *Evaluator) OccupiedZones() []string {
	var out []string
	for _, z := range e.registry.zones {
		for key, ps := range e.pairs {
			if key.zoneID == z.ID && (ps.state == stateInside || ps.state == stateExiting) {
				out = append(out, z.ID)
				break
			}
		}
	}
	return out
}
