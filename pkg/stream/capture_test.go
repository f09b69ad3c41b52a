package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"gocv.io/x/gocv"
)

// fakeCapture replays a script of read outcomes.
type fakeCapture struct {
	reads  []bool
	idx    int
	closed bool
}

func (f *fakeCapture) IsOpened() bool { return true }

func (f *fakeCapture) Get(prop gocv.VideoCaptureProperties) float64 {
	switch prop {
	case gocv.VideoCaptureFrameWidth:
		return 1280
	case gocv.VideoCaptureFrameHeight:
		return 720
	}
	return 0
}

func (f *fakeCapture) Read(m *gocv.Mat) bool {
	if f.idx >= len(f.reads) {
		return false
	}
	ok := f.reads[f.idx]
	f.idx++
	if ok && m.Empty() {
		*m = gocv.NewMatWithSize(720, 1280, gocv.MatTypeCV8UC3)
	}
	return ok
}

func (f *fakeCapture) Close() error {
	f.closed = true
	return nil
}

// fakeDialer hands out scripted dial outcomes in order.
type fakeDialer struct {
	outcomes []dialOutcome
	attempts int
}

type dialOutcome struct {
	cap *fakeCapture
	err error
}

func (d *fakeDialer) dial(string) (capture, error) {
	d.attempts++
	if len(d.outcomes) == 0 {
		return nil, errors.New("connection refused")
	}
	out := d.outcomes[0]
	d.outcomes = d.outcomes[1:]
	if out.err != nil {
		return nil, out.err
	}
	return out.cap, nil
}

func newFakeSource(t *testing.T, maxRetries int, d *fakeDialer) *CaptureSource {
	t.Helper()
	s, err := NewCaptureSource(Config{
		URI:           "rtsp://cam.test/stream",
		MaxRetries:    maxRetries,
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: 2 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewCaptureSource failed: %v", err)
	}
	s.dial = d.dial
	return s
}

func TestCaptureSourceReconnectsWithGap(t *testing.T) {
	refused := errors.New("connection refused")
	first := &fakeCapture{reads: []bool{true, true, false}}
	second := &fakeCapture{reads: []bool{true, true}}
	dialer := &fakeDialer{outcomes: []dialOutcome{
		{cap: first},
		{err: refused},
		{err: refused},
		{cap: second},
	}}

	s := newFakeSource(t, 5, dialer)
	ctx := context.Background()

	if err := s.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if w, h := s.Size(); w != 1280 || h != 720 {
		t.Errorf("size should come from the capture, got %dx%d", w, h)
	}

	// Two clean frames, then the read failure tears the connection down;
	// two dial attempts fail before the second capture comes up.
	wantGaps := []bool{false, false, true, false}
	for i, wantGap := range wantGaps {
		frame, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("frame %d: Next failed: %v", i+1, err)
		}
		if frame.Seq != int64(i+1) {
			t.Errorf("frame %d: seq must stay strictly increasing across the outage, got %d", i+1, frame.Seq)
		}
		if frame.Gap != wantGap {
			t.Errorf("frame %d: gap = %v, want %v", i+1, frame.Gap, wantGap)
		}
	}

	if !first.closed {
		t.Error("the dead capture must be closed before redialing")
	}
	reconnects, dropped := s.Stats()
	if reconnects != 2 {
		t.Errorf("expected 2 counted reconnect attempts, got %d", reconnects)
	}
	if dropped != 1 {
		t.Errorf("expected 1 dropped frame, got %d", dropped)
	}
}

func TestCaptureSourceOpenExhaustsRetries(t *testing.T) {
	dialer := &fakeDialer{} // refuses every dial
	s := newFakeSource(t, 2, dialer)
	defer s.Close()

	err := s.Open(context.Background())
	if !IsFatal(err) {
		t.Fatalf("exhausted retries must be fatal, got %v", err)
	}
	// MaxRetries bounds attempts per outage: initial try plus two retries.
	if dialer.attempts != 3 {
		t.Errorf("expected 3 dial attempts, got %d", dialer.attempts)
	}
}

func TestCaptureSourceNextExhaustsRetriesMidRun(t *testing.T) {
	dialer := &fakeDialer{outcomes: []dialOutcome{
		{cap: &fakeCapture{reads: []bool{true, false}}},
	}}
	s := newFakeSource(t, 1, dialer)
	ctx := context.Background()

	if err := s.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if _, err := s.Next(ctx); err != nil {
		t.Fatalf("first frame should succeed: %v", err)
	}

	// The outage never ends and the retry budget runs out.
	_, err := s.Next(ctx)
	if !IsFatal(err) {
		t.Fatalf("mid-run exhaustion must surface as fatal, got %v", err)
	}
}
