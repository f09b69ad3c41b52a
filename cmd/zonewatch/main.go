// zonewatch watches RTSP cameras for people inside configured zones and
// publishes debounced enter/exit events to an alert API and a dashboard.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/perimetric/zonewatch/internal/config"
	"github.com/perimetric/zonewatch/internal/log"
	"github.com/perimetric/zonewatch/pkg/alert"
	"github.com/perimetric/zonewatch/pkg/dashboard"
	"github.com/perimetric/zonewatch/pkg/detect"
	"github.com/perimetric/zonewatch/pkg/pipeline"
	"github.com/perimetric/zonewatch/pkg/stream"
	"github.com/perimetric/zonewatch/pkg/track"
	"github.com/perimetric/zonewatch/pkg/zone"
)

func main() {
	configPath := flag.String("config", "config/zonewatch.yaml", "YAML configuration file")
	zonesPath := flag.String("zones", "", "zone definition file (overrides config)")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides config)")
	preview := flag.Bool("preview", false, "stream annotated frames to dashboard clients")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("configuration rejected", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if *zonesPath != "" {
		cfg.Zones.File = *zonesPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	log.Init(cfg.LogLevel)

	// Zone definitions are validated here, before any camera is opened. A
	// malformed polygon must stop the process, not run with silent gaps in
	// coverage.
	registry, err := zone.LoadRegistry(cfg.Zones.File)
	if err != nil {
		log.Error("zone definitions rejected", "file", cfg.Zones.File, "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, registry, *preview); err != nil && ctx.Err() == nil {
		log.Error("zonewatch failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, registry *zone.Registry, preview bool) error {
	pipelines := make([]*pipeline.Pipeline, 0, len(cfg.Cameras))

	var shared []pipeline.EventSink

	var dash *dashboard.Server
	if cfg.Dashboard.Enabled {
		dash = dashboard.NewServer(cfg.Dashboard.Port, registry, func() []pipeline.Snapshot {
			snaps := make([]pipeline.Snapshot, 0, len(pipelines))
			for _, p := range pipelines {
				snaps = append(snaps, p.Snapshot())
			}
			return snaps
		})
		shared = append(shared, dash)
	}

	for _, cam := range cfg.Cameras {
		sinks := shared
		if cfg.Alert.Enabled {
			sink, err := alert.New(alert.Config{
				BaseURL:    cfg.Alert.BaseURL,
				CameraID:   cam.ID,
				Timeout:    cfg.Alert.Timeout,
				RetryCount: cfg.Alert.RetryCount,
				RetryDelay: cfg.Alert.RetryDelay,
				Cooldown:   cfg.Alert.Cooldown,
			})
			if err != nil {
				return err
			}
			// The alert API can be slow or down; a queue keeps its
			// retries out of the camera loop.
			q := pipeline.NewQueue(sink, cfg.Alert.QueueSize)
			q.Start(ctx)
			sinks = append(append([]pipeline.EventSink(nil), shared...), q)
		}

		p, err := buildPipeline(cfg, cam, registry, sinks)
		if err != nil {
			return err
		}
		if preview && dash != nil {
			p.ObserveFrames(dash.Preview(registry, 2))
		}
		pipelines = append(pipelines, p)
	}

	if dash != nil {
		dash.StartAsync()
		defer dash.Shutdown()
	}

	// One goroutine per camera. A camera failing fatally does not take the
	// others down; the process exits when every loop has stopped.
	var wg sync.WaitGroup
	errs := make(chan error, len(pipelines))
	for i, p := range pipelines {
		wg.Add(1)
		go func(cam string, p *pipeline.Pipeline) {
			defer wg.Done()
			if err := p.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("camera pipeline stopped", "camera", cam, "error", err)
				errs <- err
			}
		}(cfg.Cameras[i].ID, p)
	}
	wg.Wait()

	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

func buildPipeline(cfg config.Config, cam config.CameraConfig, registry *zone.Registry, sinks []pipeline.EventSink) (*pipeline.Pipeline, error) {
	maxRetries, retryDelay, maxRetryDelay := cam.Backoff()
	source, err := stream.NewCaptureSource(stream.Config{
		URI:           cam.URI,
		MaxRetries:    maxRetries,
		RetryDelay:    retryDelay,
		MaxRetryDelay: maxRetryDelay,
	})
	if err != nil {
		return nil, err
	}

	detector, err := detect.NewYOLO(detect.Config{
		ModelPath:     cfg.Detection.ModelPath,
		Confidence:    cfg.Detection.Confidence,
		NMSThreshold:  cfg.Detection.NMSThreshold,
		InputSize:     cfg.Detection.InputSize,
		DetectionSize: cfg.Detection.DetectionSize,
	})
	if err != nil {
		return nil, err
	}

	tracker := track.New(track.Config{
		GracePeriod:  cfg.Tracking.GracePeriod,
		MinScore:     cfg.Tracking.MinScore,
		UseHungarian: cfg.Tracking.UseHungarian,
		MaxHistory:   cfg.Tracking.MaxHistory,
	})

	return pipeline.New(pipeline.Config{
		CameraID:      cam.ID,
		FrameSkip:     cfg.Detection.FrameSkip,
		BottomOffset:  cfg.Tracking.BottomOffset,
		Debounce:      cfg.Zones.DebounceFrames,
		StaleFrames:   cfg.Zones.StaleFrames,
		StatsInterval: 100,
	}, source, detector, tracker, registry, sinks...), nil
}
