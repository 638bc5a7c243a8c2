package overpass

import (
	"maps"

	"github.com/google/uuid"

	"github.com/OCAP2/scene-engine/internal/geo"
	"github.com/OCAP2/scene-engine/pkg/core"
)

// Classify turns ways into building and road geometry projected into zone.
// Ways with fewer than two points, without a building or highway tag, or with
// an unprojectable point are skipped and counted.
func Classify(ways []Way, zone core.Zone) (features []core.Geometry, skipped int) {
	for _, w := range ways {
		if len(w.Points) <= 1 {
			skipped++
			continue
		}

		var class core.GeometryClass
		var typ string
		if v, ok := w.Tags["building"]; ok {
			class, typ = core.ClassBuilding, v
			if typ == "" {
				typ = "building"
			}
		} else if v, ok := w.Tags["highway"]; ok {
			class, typ = core.ClassRoad, v
			if typ == "" {
				typ = "road"
			}
		} else {
			skipped++
			continue
		}

		points, ok := projectAll(w.Points, zone)
		if !ok {
			skipped++
			continue
		}

		features = append(features, core.Geometry{
			ID:     uuid.NewString(),
			Class:  class,
			Type:   typ,
			Points: points,
			Tags:   maps.Clone(w.Tags),
		})
	}
	return features, skipped
}

func projectAll(in []Point, zone core.Zone) ([]core.Point2D, bool) {
	out := make([]core.Point2D, 0, len(in))
	for _, p := range in {
		xy, err := geo.ProjectInZone(p.Lat, p.Lon, zone)
		if err != nil {
			return nil, false
		}
		out = append(out, xy)
	}
	return out, true
}
