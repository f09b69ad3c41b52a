package detect

import (
	"gocv.io/x/gocv"
)

// Mock is a scripted detector for tests and dry runs. Each call to Detect
// consumes the next frame's script entry; past the end it returns no
// detections.
type Mock struct {
	// Frames holds the scripted output per call, in order.
	Frames [][]Detection
	// Errs, when non-nil, maps call index to a forced error.
	Errs map[int]error

	calls  int
	closed bool
}

// Detect returns the next scripted result. The frame content is ignored.
func (m *Mock) Detect(_ gocv.Mat) ([]Detection, error) {
	i := m.calls
	m.calls++

	if err, ok := m.Errs[i]; ok {
		return nil, err
	}
	if i < len(m.Frames) {
		return m.Frames[i], nil
	}
	return nil, nil
}

// Calls returns how many times Detect was invoked.
func (m *Mock) Calls() int {
	return m.calls
}

// Close records the shutdown.
func (m *Mock) Close() error {
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	return m.closed
}
