package stream

import (
	"context"
	"io"
	"time"
)

// MockSource replays a scripted sequence of frame outcomes for tests.
// A step with Fail=true simulates a transient read failure: the source
// "reconnects" (bumping the reconnect counter) and the next delivered
// frame carries the Gap flag. FailOpen simulates a fatal connection.
type MockSource struct {
	Steps    []MockStep
	FailOpen bool

	idx        int
	seq        int64
	reconnects int64
	pendingGap bool
	opened     bool
}

// MockStep is one scripted outcome.
type MockStep struct {
	Fail bool
}

// Open fails fatally when FailOpen is set.
func (m *MockSource) Open(ctx context.Context) error {
	if m.FailOpen {
		return &Error{Transient: false, Msg: "scripted open failure"}
	}
	m.opened = true
	return nil
}

// Next replays the script; after the last step it reports a fatal error,
// ending the pipeline like an exhausted reconnection would.
func (m *MockSource) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		if m.idx >= len(m.Steps) {
			return Frame{}, &Error{Transient: false, Msg: "script exhausted", Err: io.EOF}
		}
		step := m.Steps[m.idx]
		m.idx++

		if step.Fail {
			m.reconnects++
			m.pendingGap = true
			continue
		}

		m.seq++
		frame := Frame{
			Seq:       m.seq,
			Timestamp: time.Unix(0, m.seq*int64(40*time.Millisecond)),
			Gap:       m.pendingGap,
		}
		m.pendingGap = false
		return frame, nil
	}
}

// Size returns a fixed mock resolution.
func (m *MockSource) Size() (int, int) {
	return 640, 480
}

// Reconnects returns how many scripted failures were absorbed.
func (m *MockSource) Reconnects() int64 {
	return m.reconnects
}

// Close is a no-op.
func (m *MockSource) Close() error {
	return nil
}
