package geom

import (
	"math"
	"testing"
)

func TestIoUIdentical(t *testing.T) {
	r := NewRect(10, 20, 30, 40)
	if got := IoU(r, r); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("IoU of identical rects should be 1.0, got %f", got)
	}
}

func TestIoUDisjoint(t *testing.T) {
	r1 := NewRect(0, 0, 10, 10)
	r2 := NewRect(100, 100, 10, 10)
	if got := IoU(r1, r2); got != 0.0 {
		t.Errorf("IoU of disjoint rects should be 0, got %f", got)
	}
}

func TestIoUHalfOverlap(t *testing.T) {
	// Two 10x10 boxes offset by 5 in x: intersection 50, union 150
	r1 := NewRect(0, 0, 10, 10)
	r2 := NewRect(5, 0, 10, 10)
	want := 50.0 / 150.0
	if got := IoU(r1, r2); math.Abs(got-want) > 1e-9 {
		t.Errorf("Expected IoU %f, got %f", want, got)
	}
}

func TestBottomCenter(t *testing.T) {
	r := NewRect(10, 10, 20, 100)
	p := r.BottomCenter(0.05)
	if p.X != 20 {
		t.Errorf("Expected X=20, got %f", p.X)
	}
	if p.Y != 105 { // 10 + 100 - 100*0.05
		t.Errorf("Expected Y=105, got %f", p.Y)
	}
}

func TestDistance(t *testing.T) {
	a := NewPoint(0, 0)
	b := NewPoint(3, 4)
	if got := a.Distance(b); got != 5.0 {
		t.Errorf("Expected distance 5, got %f", got)
	}
}

func TestDiagonal(t *testing.T) {
	r := NewRect(0, 0, 3, 4)
	if got := r.Diagonal(); got != 5.0 {
		t.Errorf("Expected diagonal 5, got %f", got)
	}
}
