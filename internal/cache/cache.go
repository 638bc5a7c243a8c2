package cache

import (
	"sync"

	"github.com/OCAP2/scene-engine/pkg/core"
)

// GeometryCache holds the map features fetched for the current scene.
// The features are read-only snapshots; the cache is reset whenever the scene is replaced.
type GeometryCache struct {
	m         sync.RWMutex
	buildings []core.Geometry
	roads     []core.Geometry
}

func NewGeometryCache() *GeometryCache {
	return &GeometryCache{}
}

func (c *GeometryCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.buildings = nil
	c.roads = nil
}

// Replace swaps in a new set of features, sorted by class.
func (c *GeometryCache) Replace(features []core.Geometry) {
	var buildings, roads []core.Geometry
	for _, g := range features {
		switch g.Class {
		case core.ClassBuilding:
			buildings = append(buildings, g)
		case core.ClassRoad:
			roads = append(roads, g)
		}
	}

	c.m.Lock()
	defer c.m.Unlock()
	c.buildings = buildings
	c.roads = roads
}

func (c *GeometryCache) Buildings() []core.Geometry {
	c.m.RLock()
	defer c.m.RUnlock()
	return core.CloneGeometries(c.buildings)
}

func (c *GeometryCache) Roads() []core.Geometry {
	c.m.RLock()
	defer c.m.RUnlock()
	return core.CloneGeometries(c.roads)
}

// Counts returns the number of buildings and roads.
func (c *GeometryCache) Counts() (buildings, roads int) {
	c.m.RLock()
	defer c.m.RUnlock()
	return len(c.buildings), len(c.roads)
}
