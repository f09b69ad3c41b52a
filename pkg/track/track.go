// Package track maintains temporal identity of detected persons across
// frames. Detections are matched to existing tracks by a hybrid
// IoU + centroid-distance similarity against a Kalman-predicted box;
// unmatched detections spawn new tracks and unmatched tracks coast until
// a grace period expires.
package track

import (
	"math"
	"time"

	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"

	"github.com/perimetric/zonewatch/pkg/geom"
)

// Track is one persistent person identity. IDs are assigned from a
// monotonic counter and never reused within a run; the same ID always
// refers to the same logical person until the track is deleted.
type Track struct {
	ID        int64
	Box       geom.Rectangle // Kalman-smoothed current box
	Predicted geom.Rectangle // Kalman prediction for the next frame
	History   []geom.Point   // recent center positions, bounded
	Misses    int            // consecutive frames since last matched
	CreatedAt time.Time

	filter     *kalman_filter.KalmanBBox
	maxHistory int
}

// newTrack initializes a track around its first detection box.
func newTrack(id int64, box geom.Rectangle, maxHistory int, ts time.Time) *Track {
	center := box.Center()

	// Process/measurement noise follows the bbox filter defaults that
	// behave well for pedestrian motion at typical camera frame rates.
	kf := kalman_filter.NewKalmanBBox(
		1.0, // dt: one frame per step
		1.0, 1.0, 0.0, 0.0, // control: gentle center acceleration, static size
		2.0, // process noise magnitude
		0.1, 0.1, 0.1, 0.1, // measurement noise per dimension
		kalman_filter.WithStateBBox(center.X, center.Y, box.Width, box.Height),
	)

	t := &Track{
		ID:         id,
		Box:        box,
		Predicted:  box,
		History:    make([]geom.Point, 0, maxHistory),
		CreatedAt:  ts,
		filter:     kf,
		maxHistory: maxHistory,
	}
	t.History = append(t.History, center)
	return t
}

// predict advances the Kalman filter one frame and refreshes Predicted.
func (t *Track) predict() {
	t.filter.Predict()
	cx, cy, w, h := t.filter.GetState()
	t.Predicted = geom.Rectangle{X: cx - w/2.0, Y: cy - h/2.0, Width: w, Height: h}
}

// update feeds a matched detection box through the filter and stores the
// smoothed state.
func (t *Track) update(box geom.Rectangle) error {
	center := box.Center()
	if err := t.filter.Update(center.X, center.Y, box.Width, box.Height); err != nil {
		return errors.Wrapf(err, "can't update track %d", t.ID)
	}

	cx, cy, w, h := t.filter.GetState()
	t.Box = geom.Rectangle{X: cx - w/2.0, Y: cy - h/2.0, Width: w, Height: h}
	t.Misses = 0

	t.History = append(t.History, geom.Point{X: cx, Y: cy})
	if len(t.History) > t.maxHistory {
		t.History = t.History[1:]
	}
	return nil
}

// RefPoint returns the point used for zone containment: the box
// bottom-center lifted by offset*height, approximating where the person's
// feet touch the ground plane.
func (t *Track) RefPoint(offset float64) geom.Point {
	return t.Box.BottomCenter(offset)
}

// similarity scores a detection box against the track's predicted box.
// IoU dominates when the boxes overlap; centroid distance keeps fast
// movers recoverable when IoU collapses to zero.
func (t *Track) similarity(box geom.Rectangle) float64 {
	iou := geom.IoU(box, t.Predicted)
	dist := t.Predicted.Center().Distance(box.Center())
	distScore := 1.0 / (1.0 + dist*0.01)

	if iou > 0.05 {
		return iou*0.8 + distScore*0.2
	}
	return distScore * 0.5
}

// velocity returns the filter's current velocity estimate.
func (t *Track) velocity() (vx, vy float64) {
	vx, vy, _, _ = t.filter.GetVelocity()
	return vx, vy
}

// Speed returns the magnitude of the track's estimated velocity in
// pixels per frame.
func (t *Track) Speed() float64 {
	vx, vy := t.velocity()
	return math.Sqrt(vx*vx + vy*vy)
}
