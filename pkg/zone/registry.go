package zone

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/perimetric/zonewatch/internal/log"
	"github.com/perimetric/zonewatch/pkg/geom"
)

// zoneFile mirrors the on-disk JSON layout. Zone files carry the resolution
// they were drawn at so vertices can be rescaled to the live stream size.
type zoneFile struct {
	Metadata struct {
		Resolution []int `json:"resolution"`
	} `json:"metadata"`
	Zones []struct {
		Name   string      `json:"name"`
		Points [][]float64 `json:"points"`
	} `json:"zones"`
}

// Registry is the immutable set of configured zones. It is loaded once at
// startup; malformed definitions fail the load rather than run with
// undefined zones.
type Registry struct {
	zones      []Zone
	resolution [2]int // width, height the vertices were drawn at; 0,0 if unknown
}

// LoadRegistry reads and validates a zone definition file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zone file: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry validates zone definitions from raw JSON.
func ParseRegistry(data []byte) (*Registry, error) {
	var file zoneFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse zone file: %w", err)
	}

	reg := &Registry{}
	if len(file.Metadata.Resolution) == 2 {
		reg.resolution = [2]int{file.Metadata.Resolution[0], file.Metadata.Resolution[1]}
	}

	seen := make(map[string]bool, len(file.Zones))
	for i, raw := range file.Zones {
		if raw.Name == "" {
			return nil, fmt.Errorf("zone %d has no name", i)
		}
		if seen[raw.Name] {
			return nil, fmt.Errorf("duplicate zone name %q", raw.Name)
		}
		seen[raw.Name] = true

		z := Zone{ID: raw.Name, Vertices: make([]geom.Point, 0, len(raw.Points))}
		for _, pt := range raw.Points {
			if len(pt) != 2 {
				return nil, fmt.Errorf("zone %q: vertex must be [x, y], got %v", raw.Name, pt)
			}
			z.Vertices = append(z.Vertices, geom.NewPoint(pt[0], pt[1]))
		}
		if err := z.Validate(); err != nil {
			return nil, err
		}
		reg.zones = append(reg.zones, z)
	}

	if len(reg.zones) == 0 {
		return nil, fmt.Errorf("zone file defines no zones")
	}

	log.Info("zones loaded", "count", len(reg.zones))
	return reg, nil
}

// Zones returns the configured zones in file order.
func (r *Registry) Zones() []Zone {
	return r.zones
}

// ScaledTo returns a registry whose zone vertices are rescaled from the
// resolution recorded in the zone file to the live stream resolution.
// If the file recorded no resolution the registry is returned unchanged.
func (r *Registry) ScaledTo(width, height int) *Registry {
	if r.resolution[0] == 0 || r.resolution[1] == 0 {
		return r
	}
	if r.resolution[0] == width && r.resolution[1] == height {
		return r
	}

	sx := float64(width) / float64(r.resolution[0])
	sy := float64(height) / float64(r.resolution[1])

	scaled := &Registry{resolution: [2]int{width, height}}
	for _, z := range r.zones {
		sz := Zone{ID: z.ID, Vertices: make([]geom.Point, len(z.Vertices))}
		for i, v := range z.Vertices {
			sz.Vertices[i] = geom.NewPoint(v.X*sx, v.Y*sy)
		}
		scaled.zones = append(scaled.zones, sz)
	}
	log.Info("zones rescaled",
		"from_width", r.resolution[0], "from_height", r.resolution[1],
		"to_width", width, "to_height", height)
	return scaled
}
