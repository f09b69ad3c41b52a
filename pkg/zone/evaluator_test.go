package zone

import (
	"testing"
	"time"

	"github.com/perimetric/zonewatch/pkg/geom"
)

func testRegistry(zones ...Zone) *Registry {
	return &Registry{zones: zones}
}

func ts(frame int) time.Time {
	return time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC).Add(time.Duration(frame) * 40 * time.Millisecond)
}

// Scenario: one square zone, one track entering at (5,5), staying 10 frames,
// then leaving to (50,50). With K=3 the Enter commits on the 3rd contained
// frame and the Exit on the 3rd frame outside.
func TestEvaluatorEnterDwellExit(t *testing.T) {
	reg := testRegistry(squareZone("sq", 10))
	ev := NewEvaluator(reg, 3, 30)

	var enters, exits []Event
	frame := 0
	run := func(p geom.Point, n int) {
		for i := 0; i < n; i++ {
			frame++
			for _, e := range ev.Evaluate([]TrackPoint{{TrackID: 1, Point: p}}, ts(frame)) {
				if e.Kind == EventEnter {
					enters = append(enters, e)
				} else {
					exits = append(exits, e)
				}
			}
		}
	}

	run(geom.NewPoint(5, 5), 10)  // inside frames 1-10
	run(geom.NewPoint(50, 50), 5) // outside frames 11-15

	if len(enters) != 1 {
		t.Fatalf("expected exactly 1 Enter, got %d", len(enters))
	}
	if len(exits) != 1 {
		t.Fatalf("expected exactly 1 Exit, got %d", len(exits))
	}
	if enters[0].ZoneID != "sq" || enters[0].TrackID != 1 {
		t.Errorf("unexpected enter event: %+v", enters[0])
	}
	if !enters[0].Timestamp.Equal(ts(3)) {
		t.Errorf("Enter should commit at frame 3, got %v", enters[0].Timestamp)
	}
	if !exits[0].Timestamp.Equal(ts(13)) {
		t.Errorf("Exit should commit at frame 13, got %v", exits[0].Timestamp)
	}
}

// Containment flapping shorter than K produces no transition.
func TestEvaluatorDebounceSuppressesFlicker(t *testing.T) {
	reg := testRegistry(squareZone("sq", 10))
	ev := NewEvaluator(reg, 3, 30)

	inside := geom.NewPoint(5, 5)
	outside := geom.NewPoint(50, 50)

	frame := 0
	var events []Event
	// Alternate in/out: never 3 consecutive contained frames
	for i := 0; i < 20; i++ {
		frame++
		p := inside
		if i%3 == 2 {
			p = outside
		}
		events = append(events, ev.Evaluate([]TrackPoint{{TrackID: 7, Point: p}}, ts(frame))...)
	}
	if len(events) != 0 {
		t.Fatalf("flicker below the debounce window must emit nothing, got %d events", len(events))
	}
}

// Two tracks inside two different zones produce independent Enter events.
func TestEvaluatorIndependentZones(t *testing.T) {
	zoneA := squareZone("a", 10)
	zoneB := Zone{ID: "b", Vertices: []geom.Point{
		{X: 100, Y: 100}, {X: 100, Y: 110}, {X: 110, Y: 110}, {X: 110, Y: 100},
	}}
	ev := NewEvaluator(testRegistry(zoneA, zoneB), 2, 30)

	points := []TrackPoint{
		{TrackID: 1, Point: geom.NewPoint(5, 5)},
		{TrackID: 2, Point: geom.NewPoint(105, 105)},
	}

	var events []Event
	for frame := 1; frame <= 3; frame++ {
		events = append(events, ev.Evaluate(points, ts(frame))...)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 independent Enter events, got %d", len(events))
	}
	got := map[string]int64{}
	for _, e := range events {
		if e.Kind != EventEnter {
			t.Errorf("unexpected kind %v", e.Kind)
		}
		got[e.ZoneID] = e.TrackID
	}
	if got["a"] != 1 || got["b"] != 2 {
		t.Errorf("cross-talk between zone states: %v", got)
	}
}

// A track may be Inside two overlapping zones at once.
func TestEvaluatorOverlappingZones(t *testing.T) {
	ev := NewEvaluator(testRegistry(squareZone("outer", 100), squareZone("inner", 10)), 2, 30)

	var enters int
	for frame := 1; frame <= 3; frame++ {
		for _, e := range ev.Evaluate([]TrackPoint{{TrackID: 1, Point: geom.NewPoint(5, 5)}}, ts(frame)) {
			if e.Kind == EventEnter {
				enters++
			}
		}
	}
	if enters != 2 {
		t.Fatalf("expected Enter in both overlapping zones, got %d", enters)
	}
}

// Forced exit: deleting a track that is Inside emits exactly one Exit.
func TestEvaluatorForcedExit(t *testing.T) {
	ev := NewEvaluator(testRegistry(squareZone("sq", 10)), 3, 30)

	for frame := 1; frame <= 5; frame++ {
		ev.Evaluate([]TrackPoint{{TrackID: 4, Point: geom.NewPoint(5, 5)}}, ts(frame))
	}
	if !ev.Inside("sq", 4) {
		t.Fatal("track should be Inside before deletion")
	}

	events := ev.TrackDeleted(4, ts(6))
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 forced Exit, got %d", len(events))
	}
	if events[0].Kind != EventExit || !events[0].Forced {
		t.Errorf("expected forced Exit, got %+v", events[0])
	}

	// Deleting again must not emit a second Exit
	if again := ev.TrackDeleted(4, ts(7)); len(again) != 0 {
		t.Errorf("duplicate forced Exit emitted: %v", again)
	}
	if ev.PairCount() != 0 {
		t.Errorf("deleted track's pairs should be garbage-collected, %d left", ev.PairCount())
	}
}

// A track deleted mid-debounce toward Inside never emitted Enter, so its
// removal must not emit Exit either.
func TestEvaluatorForcedExitRequiresCommittedEnter(t *testing.T) {
	ev := NewEvaluator(testRegistry(squareZone("sq", 10)), 5, 30)

	// Two contained frames: still Entering, below K=5
	for frame := 1; frame <= 2; frame++ {
		ev.Evaluate([]TrackPoint{{TrackID: 9, Point: geom.NewPoint(5, 5)}}, ts(frame))
	}

	if events := ev.TrackDeleted(9, ts(3)); len(events) != 0 {
		t.Errorf("Exit without a committed Enter: %v", events)
	}
}

// Stale pairs are force-closed when a track silently stops being reported.
func TestEvaluatorStaleCollection(t *testing.T) {
	ev := NewEvaluator(testRegistry(squareZone("sq", 10)), 2, 3)

	for frame := 1; frame <= 3; frame++ {
		ev.Evaluate([]TrackPoint{{TrackID: 1, Point: geom.NewPoint(5, 5)}}, ts(frame))
	}
	if !ev.Inside("sq", 1) {
		t.Fatal("track should be Inside")
	}

	// Stop reporting track 1 entirely without TrackDeleted
	var forced []Event
	for frame := 4; frame <= 10; frame++ {
		forced = append(forced, ev.Evaluate(nil, ts(frame))...)
	}
	if len(forced) != 1 || forced[0].Kind != EventExit || !forced[0].Forced {
		t.Fatalf("expected one forced Exit from stale collection, got %v", forced)
	}
	if ev.PairCount() != 0 {
		t.Errorf("stale pair not collected, %d left", ev.PairCount())
	}
}

// Re-entry after a committed exit emits a fresh Enter: transitions are
// at-most-once per transition, not per pair lifetime.
func TestEvaluatorReEntry(t *testing.T) {
	ev := NewEvaluator(testRegistry(squareZone("sq", 10)), 2, 30)

	inside := []TrackPoint{{TrackID: 1, Point: geom.NewPoint(5, 5)}}
	outside := []TrackPoint{{TrackID: 1, Point: geom.NewPoint(50, 50)}}

	var kinds []EventKind
	frame := 0
	run := func(pts []TrackPoint, n int) {
		for i := 0; i < n; i++ {
			frame++
			for _, e := range ev.Evaluate(pts, ts(frame)) {
				kinds = append(kinds, e.Kind)
			}
		}
	}
	run(inside, 3)
	run(outside, 3)
	run(inside, 3)

	want := []EventKind{EventEnter, EventExit, EventEnter}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
}
