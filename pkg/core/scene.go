// pkg/core/scene.go
package core

import (
	"fmt"
	"time"
)

// Zone identifies a single UTM zone. All planar coordinates in a scene share one zone.
type Zone struct {
	Number int  `json:"number"`
	North  bool `json:"north"`
}

// String renders the zone as e.g. "33N" or "19S".
func (z Zone) String() string {
	if z.North {
		return fmt.Sprintf("%dN", z.Number)
	}
	return fmt.Sprintf("%dS", z.Number)
}

// EPSG returns the WGS 84 / UTM EPSG code for the zone.
func (z Zone) EPSG() int {
	if z.North {
		return 32600 + z.Number
	}
	return 32700 + z.Number
}

// Valid reports whether the zone number is within 1..60.
func (z Zone) Valid() bool {
	return z.Number >= 1 && z.Number <= 60
}

// Point2D is a position in the scene's planar (UTM) frame, in meters.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Origin is the geographic center of a scene and its planar projection.
type Origin struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zone Zone    `json:"zone"`
}

// Scene is the authoritative definition of an authored scenario.
// Timestamps are Unix seconds.
type Scene struct {
	Name           string    `json:"sceneName"`
	Origin         Origin    `json:"origin"`
	RadiusMeters   float64   `json:"radiusMeters"`
	StartTimestamp int64     `json:"startTimestamp"`
	EndTimestamp   int64     `json:"endTimestamp"`
	CreatedAt      time.Time `json:"createdAt"`
}

// DurationSeconds is the length of the scene's time window.
func (s *Scene) DurationSeconds() int64 {
	return s.EndTimestamp - s.StartTimestamp
}

// DurationMinutes is the window length truncated to whole minutes.
func (s *Scene) DurationMinutes() int64 {
	return s.DurationSeconds() / 60
}

// Contains reports whether ts lies inside [StartTimestamp, EndTimestamp].
func (s *Scene) Contains(ts int64) bool {
	return ts >= s.StartTimestamp && ts <= s.EndTimestamp
}
