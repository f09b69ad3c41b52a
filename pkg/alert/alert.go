// Package alert delivers zone occupancy events to an external HTTP API.
// Enter alerts are rate limited per zone with a cooldown window so a
// person lingering at a boundary cannot flood the receiver; exits are
// always delivered to keep the remote occupancy view consistent.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/perimetric/zonewatch/internal/httpc"
	"github.com/perimetric/zonewatch/internal/log"
	"github.com/perimetric/zonewatch/pkg/zone"
)

// Config controls delivery and rate limiting.
type Config struct {
	BaseURL    string        // alert API root, e.g. http://alerts:9000
	CameraID   string        // reported with every alert
	Timeout    time.Duration // per-request timeout
	RetryCount int           // additional attempts after a failure
	RetryDelay time.Duration // pause between attempts
	Cooldown   time.Duration // per-zone suppression window for enter alerts
}

// Sink posts events to the alert API. Implements pipeline.EventSink;
// safe for concurrent use.
type Sink struct {
	cfg    Config
	client *http.Client

	mu        sync.Mutex
	lastEnter map[string]time.Time // zone id -> last delivered enter
	sent      int64
	skipped   int64
}

// payload is the wire format of one alert.
type payload struct {
	EventID   string    `json:"event_id"`
	CameraID  string    `json:"camera_id"`
	ZoneID    string    `json:"zone_id"`
	TrackID   int64     `json:"track_id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Forced    bool      `json:"forced,omitempty"`
}

// New creates a sink. The base URL must be non-empty.
func New(cfg Config) (*Sink, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("alert: base url is required")
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	return &Sink{
		cfg:       cfg,
		client:    httpc.NewClient(cfg.Timeout),
		lastEnter: make(map[string]time.Time),
	}, nil
}

// HandleEvent posts one event, honoring the per-zone enter cooldown.
// A suppressed event is not an error.
func (s *Sink) HandleEvent(ctx context.Context, ev zone.Event) error {
	if ev.Kind == zone.EventEnter && !s.admitEnter(ev) {
		log.Debug("enter alert suppressed by cooldown",
			"zone", ev.ZoneID,
			"track", ev.TrackID,
		)
		return nil
	}

	body, err := json.Marshal(payload{
		EventID:   ev.ID.String(),
		CameraID:  s.cfg.CameraID,
		ZoneID:    ev.ZoneID,
		TrackID:   ev.TrackID,
		Kind:      ev.Kind.String(),
		Timestamp: ev.Timestamp,
		Forced:    ev.Forced,
	})
	if err != nil {
		return errors.Wrap(err, "alert: encode")
	}

	if err := s.post(ctx, body); err != nil {
		// A failed enter releases the cooldown so the next attempt for
		// this zone is not silently swallowed.
		if ev.Kind == zone.EventEnter {
			s.releaseEnter(ev.ZoneID)
		}
		return err
	}

	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return nil
}

// admitEnter reserves the cooldown slot for the zone if it is free.
func (s *Sink) admitEnter(ev zone.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastEnter[ev.ZoneID]; ok && ev.Timestamp.Sub(last) < s.cfg.Cooldown {
		s.skipped++
		return false
	}
	s.lastEnter[ev.ZoneID] = ev.Timestamp
	return true
}

func (s *Sink) releaseEnter(zoneID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastEnter, zoneID)
}

// post sends the body with retries. Any 2xx status is success.
func (s *Sink) post(ctx context.Context, body []byte) error {
	url := s.cfg.BaseURL + "/api/v1/events"

	var lastErr error
	for attempt := 0; attempt <= s.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.RetryDelay):
			}
		}

		lastErr = s.tryPost(ctx, url, body)
		if lastErr == nil {
			return nil
		}
		log.Warn("alert delivery failed",
			"attempt", attempt+1,
			"of", s.cfg.RetryCount+1,
			"error", lastErr,
		)
	}
	return errors.Wrap(lastErr, "alert: delivery exhausted")
}

func (s *Sink) tryPost(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Stats returns how many alerts were sent and suppressed.
func (s *Sink) Stats() (sent, skipped int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.skipped
}
