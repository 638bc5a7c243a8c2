// pkg/core/object.go
package core

import (
	"fmt"
	"maps"
	"sort"
)

// Kind is the closed set of object collections a scene holds.
type Kind string

const (
	KindTarget  Kind = "Targets"
	KindVehicle Kind = "Vehicles"
	KindMarker  Kind = "Markers"
)

// Kinds lists every object kind in display order.
var Kinds = []Kind{KindTarget, KindVehicle, KindMarker}

// ParseKind resolves a collection name into a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown object kind %q", ErrValidation, s)
}

// HasCreationTime reports whether objects of this kind carry a creation time.
func (k Kind) HasCreationTime() bool {
	return k == KindTarget
}

// Frame is the state of an object at one absolute timestamp.
type Frame struct {
	Timestamp  int64          `json:"timestamp"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Object is a user-authored entity in a scene. Temporal fields are optional;
// nil means absent, which is distinct from a zero timestamp.
type Object struct {
	ID           string         `json:"id"`
	Kind         Kind           `json:"kind"`
	Type         string         `json:"type"`
	CreationTime *int64         `json:"creationTime,omitempty"`
	Timestamp    *int64         `json:"timestamp,omitempty"`
	Frames       []Frame        `json:"frames,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// FrameAt returns the latest frame whose timestamp is at or before ts.
func (o *Object) FrameAt(ts int64) (Frame, bool) {
	i := sort.Search(len(o.Frames), func(i int) bool {
		return o.Frames[i].Timestamp > ts
	})
	if i == 0 {
		return Frame{}, false
	}
	return o.Frames[i-1], true
}

// SortFrames orders frames by ascending timestamp.
func (o *Object) SortFrames() {
	sort.SliceStable(o.Frames, func(i, j int) bool {
		return o.Frames[i].Timestamp < o.Frames[j].Timestamp
	})
}

// Clone returns a deep copy of the object's temporal data and a shallow copy of attribute maps.
func (o *Object) Clone() *Object {
	c := *o
	if o.CreationTime != nil {
		v := *o.CreationTime
		c.CreationTime = &v
	}
	if o.Timestamp != nil {
		v := *o.Timestamp
		c.Timestamp = &v
	}
	if o.Frames != nil {
		c.Frames = make([]Frame, len(o.Frames))
		for i, f := range o.Frames {
			c.Frames[i] = Frame{Timestamp: f.Timestamp, Attributes: maps.Clone(f.Attributes)}
		}
	}
	c.Attributes = maps.Clone(o.Attributes)
	return &c
}

// Collections maps each kind to its objects keyed by id.
type Collections map[Kind]map[string]*Object

// NewCollections returns an empty collection for every known kind.
func NewCollections() Collections {
	c := make(Collections, len(Kinds))
	for _, k := range Kinds {
		c[k] = make(map[string]*Object)
	}
	return c
}

// Clone deep-copies every object.
func (c Collections) Clone() Collections {
	out := make(Collections, len(c))
	for k, objs := range c {
		m := make(map[string]*Object, len(objs))
		for id, o := range objs {
			m[id] = o.Clone()
		}
		out[k] = m
	}
	return out
}

// Count returns the total number of objects across all kinds.
func (c Collections) Count() int {
	n := 0
	for _, objs := range c {
		n += len(objs)
	}
	return n
}

// FrameCount returns the total number of frames across all objects.
func (c Collections) FrameCount() int {
	n := 0
	for _, objs := range c {
		for _, o := range objs {
			n += len(o.Frames)
		}
	}
	return n
}

// Int64 is a helper for building optional timestamps.
func Int64(v int64) *int64 {
	return &v
}
