// Package dashboard serves a read-only observation UI for running
// pipelines: zone definitions, live occupancy events and per-camera
// throughput over REST and websocket. It never mutates pipeline state.
package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/perimetric/zonewatch/internal/log"
	"github.com/perimetric/zonewatch/pkg/hub"
	"github.com/perimetric/zonewatch/pkg/pipeline"
	"github.com/perimetric/zonewatch/pkg/zone"
)

// recentEvents is how many delivered events the REST endpoint retains.
const recentEvents = 200

// SnapshotFunc returns the current state of every running pipeline.
type SnapshotFunc func() []pipeline.Snapshot

// Server is the dashboard HTTP server. It implements pipeline.EventSink
// so it can be attached as a sink; front it with a pipeline.Queue so a
// slow websocket client can never stall a camera loop.
type Server struct {
	app       *fiber.App
	port      string
	registry  *zone.Registry
	snapshots SnapshotFunc
	started   time.Time

	eventHub   *hub.Hub
	statusHub  *hub.Hub
	previewHub *hub.Hub

	mu     sync.RWMutex
	recent []zone.Event

	stop chan struct{}
}

// NewServer builds the server. registry is used for the zone listing;
// snapshots feeds the status endpoints.
func NewServer(port string, registry *zone.Registry, snapshots SnapshotFunc) *Server {
	s := &Server{
		port:       port,
		registry:   registry,
		snapshots:  snapshots,
		started:    time.Now(),
		eventHub:   hub.New("events"),
		statusHub:  hub.New("status"),
		previewHub: hub.New("preview"),
		recent:     make([]zone.Event, 0, recentEvents),
		stop:       make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "zonewatch dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// Static files
	app.Static("/", "./web")

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/zones", s.handleZones)
	api.Get("/events", s.handleEvents)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/preview", websocket.New(s.handlePreviewWS))

	s.app = app
	return s
}

// Start runs the hubs and listens. Blocks until Shutdown.
func (s *Server) Start() error {
	log.Info("dashboard listening", "port", s.port)

	go s.eventHub.Run()
	go s.statusHub.Run()
	go s.previewHub.Run()
	go s.statusLoop()

	return s.app.Listen(":" + s.port)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("dashboard server failed", "error", err)
		}
	}()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown() error {
	close(s.stop)
	return s.app.Shutdown()
}

// HandleEvent records the event and pushes it to websocket subscribers.
// Implements pipeline.EventSink.
func (s *Server) HandleEvent(_ context.Context, ev zone.Event) error {
	s.mu.Lock()
	s.recent = append(s.recent, ev)
	if len(s.recent) > recentEvents {
		s.recent = s.recent[1:]
	}
	s.mu.Unlock()

	return s.eventHub.BroadcastJSON(ev)
}

// Preview returns a frame sink that streams annotated JPEG previews to
// /ws/preview subscribers.
func (s *Server) Preview(registry *zone.Registry, every int) *Preview {
	return NewPreview(s.previewHub, registry, every)
}

// statusLoop pushes a status snapshot to subscribers once a second.
func (s *Server) statusLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() == 0 {
				continue
			}
			s.statusHub.BroadcastJSON(s.statusPayload())
		}
	}
}
