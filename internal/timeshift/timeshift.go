// Package timeshift moves every temporal field of a scene's objects by a fixed
// number of seconds when the scene's start time is edited.
package timeshift

import "github.com/OCAP2/scene-engine/pkg/core"

// Apply adds delta to every present temporal field in objs and returns the
// number of fields shifted. Spatial data is never touched. A zero delta is a no-op.
func Apply(objs core.Collections, delta int64) int {
	if delta == 0 {
		return 0
	}
	shifted := 0
	for kind, byID := range objs {
		for _, o := range byID {
			shifted += shiftObject(kind, o, delta)
		}
	}
	return shifted
}

func shiftObject(kind core.Kind, o *core.Object, delta int64) int {
	n := 0
	if o.Timestamp != nil {
		*o.Timestamp += delta
		n++
	}

	switch kind {
	case core.KindTarget:
		if o.CreationTime != nil {
			*o.CreationTime += delta
			n++
		}
	case core.KindVehicle, core.KindMarker:
		// no kind-specific temporal fields
	}

	for i := range o.Frames {
		o.Frames[i].Timestamp += delta
		n++
	}
	return n
}
