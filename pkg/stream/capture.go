package stream

import (
	"context"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"github.com/perimetric/zonewatch/internal/log"
)

// Config holds the capture source parameters.
type Config struct {
	URI string

	// MaxRetries bounds reconnection attempts per outage; 0 retries
	// forever with the delay capped at MaxRetryDelay.
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// DefaultConfig returns reconnection defaults suitable for RTSP cameras
// on flaky networks.
func DefaultConfig(uri string) Config {
	return Config{
		URI:           uri,
		MaxRetries:    5,
		RetryDelay:    time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// capture is the slice of gocv.VideoCapture the source relies on,
// extracted so reconnection accounting is testable with a scripted dialer.
type capture interface {
	IsOpened() bool
	Get(gocv.VideoCaptureProperties) float64
	Read(*gocv.Mat) bool
	Close() error
}

// dialFunc opens a capture for a URI. The default dials through gocv.
type dialFunc func(uri string) (capture, error)

func gocvDial(uri string) (capture, error) {
	c, err := gocv.OpenVideoCapture(uri)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CaptureSource reads frames from an RTSP stream, video file or device
// through gocv. Not safe for concurrent use; one source belongs to one
// pipeline loop.
type CaptureSource struct {
	cfg     Config
	dial    dialFunc
	capture capture
	buf     gocv.Mat

	seq        int64
	reconnects int64
	dropped    int64
	width      int
	height     int
	pendingGap bool
}

// NewCaptureSource creates a source for the given URI. The connection is
// established by Open.
func NewCaptureSource(cfg Config) (*CaptureSource, error) {
	if cfg.URI == "" {
		return nil, &Error{Transient: false, Msg: "empty stream URI"}
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 30 * time.Second
	}
	return &CaptureSource{cfg: cfg, dial: gocvDial, buf: gocv.NewMat()}, nil
}

// Open establishes the initial connection. An unusable URI is fatal;
// connection failures go through the same backoff as mid-run outages.
func (s *CaptureSource) Open(ctx context.Context) error {
	if err := validateURI(s.cfg.URI); err != nil {
		return err
	}
	return s.connect(ctx)
}

// validateURI rejects URIs the capture backend can never open. Anything
// that parses is left to the connection attempt, which can distinguish
// "down right now" from "never going to work" only by retrying.
func validateURI(uri string) error {
	if strings.ContainsAny(uri, " \t\n") {
		return &Error{Transient: false, Msg: "invalid stream URI: " + uri}
	}
	return nil
}

// connect attempts to open the capture with exponential backoff, logging
// each state transition.
func (s *CaptureSource) connect(ctx context.Context) error {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c, err := s.dial(s.cfg.URI)
		if err == nil && c.IsOpened() {
			s.capture = c
			s.width = int(c.Get(gocv.VideoCaptureFrameWidth))
			s.height = int(c.Get(gocv.VideoCaptureFrameHeight))
			log.Info("stream connected",
				"uri", s.cfg.URI, "width", s.width, "height", s.height,
				"reconnects", s.reconnects)
			return nil
		}
		if c != nil {
			c.Close()
		}

		attempt++
		s.reconnects++
		if s.cfg.MaxRetries > 0 && attempt > s.cfg.MaxRetries {
			return &Error{
				Transient: false,
				Msg:       "reconnection attempts exhausted",
				Err:       err,
			}
		}

		delay := Backoff(attempt, s.cfg.RetryDelay, s.cfg.MaxRetryDelay)
		log.Warn("stream connect failed, retrying",
			"uri", s.cfg.URI, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Next blocks until the next frame. A failed read counts as a dropped
// frame, tears the decode pipeline down and reconnects from scratch; the
// first frame after an outage is flagged Gap so downstream can see the
// discontinuity.
func (s *CaptureSource) Next(ctx context.Context) (Frame, error) {
	for {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		default:
		}

		if s.capture == nil {
			if err := s.connect(ctx); err != nil {
				return Frame{}, err
			}
			s.pendingGap = true
		}

		if ok := s.capture.Read(&s.buf); ok && !s.buf.Empty() {
			s.seq++
			frame := Frame{
				Seq:       s.seq,
				Timestamp: time.Now(),
				Mat:       s.buf,
				Gap:       s.pendingGap,
			}
			s.pendingGap = false
			return frame, nil
		}

		// Decode hiccup or dropped connection: count the loss and
		// rebuild the pipeline.
		s.dropped++
		log.Warn("stream read failed, reconnecting",
			"uri", s.cfg.URI, "seq", s.seq, "dropped", s.dropped)
		s.capture.Close()
		s.capture = nil
	}
}

// Size returns the negotiated frame dimensions.
func (s *CaptureSource) Size() (int, int) {
	return s.width, s.height
}

// Stats returns cumulative reconnect and dropped-frame counters.
func (s *CaptureSource) Stats() (reconnects, dropped int64) {
	return s.reconnects, s.dropped
}

// Close releases the capture and the frame buffer.
func (s *CaptureSource) Close() error {
	var err error
	if s.capture != nil {
		err = s.capture.Close()
		s.capture = nil
	}
	s.buf.Close()
	if err != nil {
		log.Warn("stream close", "error", err)
	}
	return err
}
