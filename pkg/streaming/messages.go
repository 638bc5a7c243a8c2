package streaming

import (
	"encoding/json"

	"github.com/OCAP2/scene-engine/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeSceneLoaded    = "scene_loaded"
	TypeSceneEdited    = "scene_edited"
	TypeSceneCleared   = "scene_cleared"
	TypeObjects        = "objects_changed"
	TypeGeometryLoaded = "geometry_loaded"
	TypeFetchFailed    = "geometry_failed"
	TypeDisplayUpdate  = "display_update"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// ScenePayload carries the scene definition and collection sizes.
// It is sent for scene_loaded and scene_edited.
type ScenePayload struct {
	Generation uint64            `json:"generation"`
	Scene      core.Scene        `json:"scene"`
	Objects    map[core.Kind]int `json:"objects"`
	Summary    string            `json:"summary"`
}

// GeometryPayload carries the fetched features of a scene generation.
type GeometryPayload struct {
	Generation uint64          `json:"generation"`
	Buildings  []core.Geometry `json:"buildings"`
	Roads      []core.Geometry `json:"roads"`
}

// ObjectsPayload carries the object collections after an edit.
type ObjectsPayload struct {
	Generation uint64           `json:"generation"`
	Objects    core.Collections `json:"objects"`
}

// ErrorPayload reports a non-fatal failure.
type ErrorPayload struct {
	Generation uint64 `json:"generation"`
	Message    string `json:"message"`
}

// DisplayPayload is one timeline position update.
type DisplayPayload struct {
	Offset   int64  `json:"offset"`
	Duration int64  `json:"duration"`
	Absolute int64  `json:"absolute"`
	Relative string `json:"relative"`
	Display  string `json:"display"`
	State    string `json:"state"`
	Reason   string `json:"reason"`
}
