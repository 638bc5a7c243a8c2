package engine

import (
	"github.com/OCAP2/scene-engine/internal/timeline"
	"github.com/OCAP2/scene-engine/pkg/core"
)

// EventKind names a scene lifecycle event.
type EventKind string

const (
	EventCreated        EventKind = "created"
	EventEdited         EventKind = "edited"
	EventCleared        EventKind = "cleared"
	EventLoaded         EventKind = "loaded"
	EventObjects        EventKind = "objects"
	EventGeometry       EventKind = "geometry"
	EventFetchFailed    EventKind = "fetch_failed"
	EventFetchDiscarded EventKind = "fetch_discarded"
	EventSaved          EventKind = "saved"
	EventDeleted        EventKind = "deleted"
)

// Event describes a change to the scene. Scene is the zero value when HasScene is false.
type Event struct {
	Kind       EventKind
	Generation uint64
	HasScene   bool
	Scene      core.Scene
	Objects    map[core.Kind]int
	Buildings  int
	Roads      int
	// Name is set for store events that refer to a scene by name.
	Name string
	Err  error
}

// Observer receives scene events and display updates. Calls happen on the
// goroutine that caused them and must not block.
type Observer interface {
	OnSceneEvent(Event)
	OnDisplay(timeline.DisplayUpdate)
}
