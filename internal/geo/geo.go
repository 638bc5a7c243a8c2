package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/OCAP2/scene-engine/pkg/core"
	"github.com/wroge/wgs84"
)

// UTM PROJECTION
// A scene pins one UTM zone at creation. Every later point, including fetched
// map geometry, is projected into that zone rather than its own, so the whole
// scene lives in one Cartesian frame.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

const epsgLonLat = 4326

var epsg = wgs84.EPSG()

func validLatLon(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return fmt.Errorf("%w: non-finite lat/lon (%v, %v)", ErrInvalidCoordinates, lat, lon)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinates, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinates, lon)
	}
	return nil
}

// ZoneFor returns the standard UTM zone containing the point.
func ZoneFor(lat, lon float64) (core.Zone, error) {
	if err := validLatLon(lat, lon); err != nil {
		return core.Zone{}, err
	}
	n := int(math.Floor((lon+180)/6)) + 1
	if n > 60 {
		// lon == 180 belongs to the last zone
		n = 60
	}
	return core.Zone{Number: n, North: lat >= 0}, nil
}

// Project converts a geographic point into UTM, choosing the zone from the point itself.
// Used once per scene to fix the origin and zone.
func Project(lat, lon float64) (core.Origin, error) {
	zone, err := ZoneFor(lat, lon)
	if err != nil {
		return core.Origin{}, err
	}
	p, err := ProjectInZone(lat, lon, zone)
	if err != nil {
		return core.Origin{}, err
	}
	return core.Origin{Lat: lat, Lon: lon, X: p.X, Y: p.Y, Zone: zone}, nil
}

// ProjectInZone converts a geographic point into the given zone's planar frame.
func ProjectInZone(lat, lon float64, zone core.Zone) (core.Point2D, error) {
	if err := validLatLon(lat, lon); err != nil {
		return core.Point2D{}, err
	}
	if !zone.Valid() {
		return core.Point2D{}, fmt.Errorf("%w: zone %d", ErrInvalidCoordinates, zone.Number)
	}
	f := epsg.Transform(epsgLonLat, zone.EPSG())
	x, y, _ := f(lon, lat, 0)
	if math.IsNaN(x) || math.IsNaN(y) {
		return core.Point2D{}, fmt.Errorf("%w: projection into zone %s failed", ErrInvalidCoordinates, zone)
	}
	return core.Point2D{X: x, Y: y}, nil
}

// Unproject converts a planar point in the given zone back to lat/lon.
func Unproject(p core.Point2D, zone core.Zone) (lat, lon float64, err error) {
	if !zone.Valid() {
		return 0, 0, fmt.Errorf("%w: zone %d", ErrInvalidCoordinates, zone.Number)
	}
	f := epsg.Transform(zone.EPSG(), epsgLonLat)
	lon, lat, _ = f(p.X, p.Y, 0)
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return 0, 0, fmt.Errorf("%w: inverse projection from zone %s failed", ErrInvalidCoordinates, zone)
	}
	return lat, lon, nil
}
