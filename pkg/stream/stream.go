// Package stream owns the connection to a live video feed. It yields
// timestamped frames with a strictly increasing sequence number and
// recovers from transient failures with bounded exponential backoff,
// surfacing fatal conditions to the caller.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// Frame is one decoded video frame. The Mat buffer is owned by the source
// and stays valid only until the next call to Next; callers needing to
// retain pixels must clone.
type Frame struct {
	Seq       int64     // strictly increasing, never reset within a run
	Timestamp time.Time // wall-clock capture time
	Mat       gocv.Mat
	Gap       bool // true when frames were lost since the previous one
}

// Error is a stream failure with a retryability classification.
type Error struct {
	Transient bool
	Msg       string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stream: %s: %v", e.Msg, e.Err)
	}
	return "stream: " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is a stream error the pipeline must not
// retry (bad URI, exhausted reconnection attempts).
func IsFatal(err error) bool {
	var se *Error
	return errors.As(err, &se) && !se.Transient
}

// Source yields frames from one video feed.
type Source interface {
	// Open establishes the connection. A non-transient Error means the
	// URI or credentials are unusable and the pipeline must not start.
	Open(ctx context.Context) error

	// Next blocks until a frame is available. Transient failures are
	// retried internally with backoff; Next returns an error only when
	// the context is cancelled or the failure is fatal.
	Next(ctx context.Context) (Frame, error)

	// Size returns the frame dimensions, valid after Open.
	Size() (width, height int)

	// Close releases the connection.
	Close() error
}

// Backoff calculates the exponential reconnection delay for an attempt,
// capped at maxDelay. Attempt numbering starts at 1.
func Backoff(attempt int, initial, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Guard the shift: beyond ~30 doublings any sane initial delay has
	// long exceeded the cap.
	if attempt > 30 {
		return maxDelay
	}
	delay := initial * time.Duration(1<<uint(attempt-1))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	return delay
}
