package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
cameras:
  - id: lobby
    uri: rtsp://camera.local/stream
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	// Untouched sections keep their documented defaults
	require.Equal(t, 0.5, cfg.Detection.Confidence)
	require.Equal(t, 3, cfg.Zones.DebounceFrames)
	require.Equal(t, 15, cfg.Tracking.GracePeriod)
	require.Equal(t, "lobby", cfg.Cameras[0].ID)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
cameras:
  - id: dock
    uri: rtsp://camera.local/dock
    max_retries: 10
    retry_delay: 2s
detection:
  confidence: 0.7
  frame_skip: 2
zones:
  debounce_frames: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 0.7, cfg.Detection.Confidence)
	require.Equal(t, 2, cfg.Detection.FrameSkip)
	require.Equal(t, 5, cfg.Zones.DebounceFrames)

	maxRetries, retryDelay, maxRetryDelay := cfg.Cameras[0].Backoff()
	require.Equal(t, 10, maxRetries)
	require.Equal(t, 2*time.Second, retryDelay)
	require.Equal(t, 30*time.Second, maxRetryDelay)
}

func TestValidateRejectsNoCameras(t *testing.T) {
	path := writeConfig(t, `
detection:
  confidence: 0.5
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsDuplicateCameraIDs(t *testing.T) {
	path := writeConfig(t, `
cameras:
  - id: cam
    uri: rtsp://a/1
  - id: cam
    uri: rtsp://a/2
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsBadConfidence(t *testing.T) {
	cfg := Default()
	cfg.Cameras = []CameraConfig{{ID: "c", URI: "rtsp://x"}}
	cfg.Detection.Confidence = 1.5
	require.Error(t, cfg.Validate())
}

func TestEnvOverridesZonesFile(t *testing.T) {
	t.Setenv("ZONEWATCH_ZONES_FILE", "/etc/zonewatch/zones.json")
	path := writeConfig(t, `
cameras:
  - id: lobby
    uri: rtsp://camera.local/stream
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/etc/zonewatch/zones.json", cfg.Zones.File)
}
