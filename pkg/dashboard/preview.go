package dashboard

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/perimetric/zonewatch/internal/log"
	"github.com/perimetric/zonewatch/pkg/hub"
	"github.com/perimetric/zonewatch/pkg/stream"
	"github.com/perimetric/zonewatch/pkg/track"
	"github.com/perimetric/zonewatch/pkg/zone"
)

var (
	zoneColor  = color.RGBA{R: 0, G: 200, B: 255, A: 255}
	trackColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
)

// Preview annotates frames with zone outlines and track boxes and streams
// them as JPEG to preview subscribers. Implements pipeline.FrameSink.
// Encoding is skipped entirely while nobody is watching.
type Preview struct {
	hub      *hub.Hub
	registry *zone.Registry
	scaled   *zone.Registry // registry rescaled to the live frame size
	every    int            // encode every Nth frame to bound CPU
}

// NewPreview builds a frame sink publishing to h. every < 1 means every frame.
func NewPreview(h *hub.Hub, registry *zone.Registry, every int) *Preview {
	if every < 1 {
		every = 1
	}
	return &Preview{hub: h, registry: registry, every: every}
}

// HandleFrame draws the overlay and broadcasts the encoded frame.
func (p *Preview) HandleFrame(frame stream.Frame, tracks []*track.Track) {
	if p.hub.ClientCount() == 0 {
		return
	}
	if frame.Seq%int64(p.every) != 0 {
		return
	}
	if frame.Mat.Empty() {
		return
	}
	if p.scaled == nil {
		p.scaled = p.registry.ScaledTo(frame.Mat.Cols(), frame.Mat.Rows())
	}

	img := frame.Mat.Clone()
	defer img.Close()

	p.drawZones(&img)
	p.drawTracks(&img, tracks)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, 80})
	if err != nil {
		log.Error("preview encode failed", "seq", frame.Seq, "error", err)
		return
	}
	defer buf.Close()

	// The hub queues the slice beyond this call, so it needs its own copy.
	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	p.hub.BroadcastBinary(data)
}

func (p *Preview) drawZones(img *gocv.Mat) {
	for _, z := range p.scaled.Zones() {
		n := len(z.Vertices)
		for i := 0; i < n; i++ {
			a := z.Vertices[i]
			b := z.Vertices[(i+1)%n]
			gocv.Line(img,
				image.Pt(int(a.X), int(a.Y)),
				image.Pt(int(b.X), int(b.Y)),
				zoneColor, 2)
		}
		if n > 0 {
			gocv.PutText(img, z.ID,
				image.Pt(int(z.Vertices[0].X)+4, int(z.Vertices[0].Y)+16),
				gocv.FontHersheySimplex, 0.5, zoneColor, 1)
		}
	}
}

func (p *Preview) drawTracks(img *gocv.Mat, tracks []*track.Track) {
	for _, trk := range tracks {
		r := image.Rect(
			int(trk.Box.X), int(trk.Box.Y),
			int(trk.Box.X+trk.Box.Width), int(trk.Box.Y+trk.Box.Height),
		)
		gocv.Rectangle(img, r, trackColor, 2)
		gocv.PutText(img, fmt.Sprintf("#%d %.1fpx/f", trk.ID, trk.Speed()),
			image.Pt(r.Min.X, r.Min.Y-4),
			gocv.FontHersheySimplex, 0.5, trackColor, 1)
	}
}
