package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/perimetric/zonewatch/pkg/zone"
)

type recorder struct {
	mu       sync.Mutex
	payloads []payload
	failures int // respond 500 this many times before succeeding
}

func (r *recorder) handler(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	var p payload
	if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	r.payloads = append(r.payloads, p)
	w.WriteHeader(http.StatusAccepted)
}

func (r *recorder) received() []payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]payload(nil), r.payloads...)
}

func enterAt(zoneID string, trackID int64, ts time.Time) zone.Event {
	return zone.Event{ID: uuid.New(), ZoneID: zoneID, TrackID: trackID, Kind: zone.EventEnter, Timestamp: ts}
}

func exitAt(zoneID string, trackID int64, ts time.Time, forced bool) zone.Event {
	return zone.Event{ID: uuid.New(), ZoneID: zoneID, TrackID: trackID, Kind: zone.EventExit, Timestamp: ts, Forced: forced}
}

func newTestSink(t *testing.T, baseURL string, cooldown time.Duration, retries int) *Sink {
	t.Helper()
	s, err := New(Config{
		BaseURL:    baseURL,
		CameraID:   "cam-1",
		Timeout:    time.Second,
		RetryCount: retries,
		RetryDelay: time.Millisecond,
		Cooldown:   cooldown,
	})
	require.NoError(t, err)
	return s
}

func TestSinkPostsPayload(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	s := newTestSink(t, srv.URL, 0, 0)
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.HandleEvent(context.Background(), enterAt("loading-dock", 7, ts)))
	require.NoError(t, s.HandleEvent(context.Background(), exitAt("loading-dock", 7, ts.Add(time.Minute), true)))

	got := rec.received()
	require.Len(t, got, 2)
	require.Equal(t, "cam-1", got[0].CameraID)
	require.Equal(t, "loading-dock", got[0].ZoneID)
	require.Equal(t, int64(7), got[0].TrackID)
	require.Equal(t, "enter", got[0].Kind)
	require.Equal(t, "exit", got[1].Kind)
	require.True(t, got[1].Forced)
}

func TestSinkRetriesUntilSuccess(t *testing.T) {
	rec := &recorder{failures: 2}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	s := newTestSink(t, srv.URL, 0, 3)
	err := s.HandleEvent(context.Background(), enterAt("lobby", 1, time.Now()))
	require.NoError(t, err)
	require.Len(t, rec.received(), 1)
}

func TestSinkGivesUpAfterRetries(t *testing.T) {
	rec := &recorder{failures: 100}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	s := newTestSink(t, srv.URL, 0, 2)
	err := s.HandleEvent(context.Background(), enterAt("lobby", 1, time.Now()))
	require.Error(t, err)
	require.Empty(t, rec.received())
}

func TestSinkEnterCooldown(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	s := newTestSink(t, srv.URL, 30*time.Second, 0)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// First enter goes through, the second is inside the cooldown window,
	// a third after the window goes through again.
	require.NoError(t, s.HandleEvent(context.Background(), enterAt("lobby", 1, base)))
	require.NoError(t, s.HandleEvent(context.Background(), enterAt("lobby", 2, base.Add(10*time.Second))))
	require.NoError(t, s.HandleEvent(context.Background(), enterAt("lobby", 3, base.Add(45*time.Second))))

	got := rec.received()
	require.Len(t, got, 2)
	require.Equal(t, int64(1), got[0].TrackID)
	require.Equal(t, int64(3), got[1].TrackID)

	sent, skipped := s.Stats()
	require.Equal(t, int64(2), sent)
	require.Equal(t, int64(1), skipped)
}

func TestSinkCooldownIsPerZone(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	s := newTestSink(t, srv.URL, time.Hour, 0)
	ts := time.Now()

	require.NoError(t, s.HandleEvent(context.Background(), enterAt("lobby", 1, ts)))
	require.NoError(t, s.HandleEvent(context.Background(), enterAt("vault", 1, ts)))
	require.Len(t, rec.received(), 2)
}

func TestSinkExitsBypassCooldown(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	s := newTestSink(t, srv.URL, time.Hour, 0)
	ts := time.Now()

	require.NoError(t, s.HandleEvent(context.Background(), enterAt("lobby", 1, ts)))
	require.NoError(t, s.HandleEvent(context.Background(), exitAt("lobby", 1, ts.Add(time.Second), false)))
	require.NoError(t, s.HandleEvent(context.Background(), exitAt("lobby", 2, ts.Add(2*time.Second), false)))
	require.Len(t, rec.received(), 3)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}
