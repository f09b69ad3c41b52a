// Package zone holds the configured polygonal regions of interest and turns
// per-frame containment facts into debounced occupancy events.
package zone

import (
	"fmt"

	"github.com/perimetric/zonewatch/pkg/geom"
)

// Zone is a named simple polygon, immutable after load.
type Zone struct {
	ID       string
	Vertices []geom.Point
}

// Validate checks that the zone forms a usable polygon: at least three
// vertices and no self-intersections.
func (z Zone) Validate() error {
	if z.ID == "" {
		return fmt.Errorf("zone has no id")
	}
	if len(z.Vertices) < 3 {
		return fmt.Errorf("zone %q: polygon needs at least 3 vertices, got %d", z.ID, len(z.Vertices))
	}
	if selfIntersects(z.Vertices) {
		return fmt.Errorf("zone %q: polygon is self-intersecting", z.ID)
	}
	return nil
}

// ContainsPoint reports whether p is inside the zone using ray casting.
// The test is edge-inclusive: a point exactly on an edge or vertex counts
// as inside, so a reference point sitting on the boundary cannot flicker
// between results.
func (z Zone) ContainsPoint(p geom.Point) bool {
	n := len(z.Vertices)
	if n < 3 {
		return false
	}

	for i := 0; i < n; i++ {
		if onSegment(z.Vertices[i], z.Vertices[(i+1)%n], p) {
			return true
		}
	}

	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		vi, vj := z.Vertices[i], z.Vertices[j]
		if (vi.Y > p.Y) != (vj.Y > p.Y) &&
			p.X < (vj.X-vi.X)*(p.Y-vi.Y)/(vj.Y-vi.Y)+vi.X {
			inside = !inside
		}
		j = i
	}
	return inside
}

// onSegment reports whether p lies exactly on segment ab.
func onSegment(a, b, p geom.Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if cross != 0 {
		return false
	}
	return p.X >= min(a.X, b.X) && p.X <= max(a.X, b.X) &&
		p.Y >= min(a.Y, b.Y) && p.Y <= max(a.Y, b.Y)
}

// selfIntersects reports whether any two non-adjacent edges of the closed
// polygon cross each other.
func selfIntersects(vs []geom.Point) bool {
	n := len(vs)
	for i := 0; i < n; i++ {
		a1 := vs[i]
		a2 := vs[(i+1)%n]
		for j := i + 1; j < n; j++ {
			// Skip the edge itself and edges sharing a vertex
			if j == i || (j+1)%n == i || (i+1)%n == j {
				continue
			}
			b1 := vs[j]
			b2 := vs[(j+1)%n]
			if segmentsCross(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

// segmentsCross reports whether segments a1a2 and b1b2 properly intersect.
func segmentsCross(a1, a2, b1, b2 geom.Point) bool {
	d1 := direction(b1, b2, a1)
	d2 := direction(b1, b2, a2)
	d3 := direction(a1, a2, b1)
	d4 := direction(a1, a2, b2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func direction(a, b, c geom.Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}
