package dashboard

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/perimetric/zonewatch/pkg/hub"
	"github.com/perimetric/zonewatch/pkg/pipeline"
	"github.com/perimetric/zonewatch/pkg/zone"
)

// statusResponse is the /api/status and /ws/status payload.
type statusResponse struct {
	Uptime  string              `json:"uptime"`
	Cameras []pipeline.Snapshot `json:"cameras"`
}

// zoneResponse is one zone in the /api/zones payload.
type zoneResponse struct {
	ID       string       `json:"id"`
	Vertices [][2]float64 `json:"vertices"`
}

func (s *Server) statusPayload() statusResponse {
	resp := statusResponse{
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if s.snapshots != nil {
		resp.Cameras = s.snapshots()
	}
	return resp
}

// handleStatus returns uptime and every camera's pipeline snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.statusPayload())
}

// handleZones returns the configured zone polygons.
func (s *Server) handleZones(c *fiber.Ctx) error {
	zones := s.registry.Zones()
	resp := make([]zoneResponse, 0, len(zones))
	for _, z := range zones {
		zr := zoneResponse{ID: z.ID, Vertices: make([][2]float64, 0, len(z.Vertices))}
		for _, v := range z.Vertices {
			zr.Vertices = append(zr.Vertices, [2]float64{v.X, v.Y})
		}
		resp = append(resp, zr)
	}
	return c.JSON(resp)
}

// handleEvents returns the most recent occupancy events, oldest first.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	s.mu.RLock()
	events := append([]zone.Event(nil), s.recent...)
	s.mu.RUnlock()
	return c.JSON(events)
}

// handleEventsWS streams events as they are committed. The recent buffer
// is replayed on connect so the client starts with context.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	s.mu.RLock()
	for _, ev := range s.recent {
		c.WriteJSON(ev)
	}
	s.mu.RUnlock()

	hub.NewClient(s.eventHub, c).Run()
}

// handleStatusWS streams status snapshots once a second.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	c.WriteJSON(s.statusPayload())
	hub.NewClient(s.statusHub, c).Run()
}

// handlePreviewWS streams annotated JPEG frames.
func (s *Server) handlePreviewWS(c *websocket.Conn) {
	hub.NewClient(s.previewHub, c).Run()
}
