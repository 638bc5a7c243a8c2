package v1

import (
	"time"

	"github.com/OCAP2/scene-engine/pkg/core"
)

// Version is written into every file of this format.
const Version = 1

// Export is the root JSON structure of a saved scene file.
type Export struct {
	Version   int               `json:"version"`
	Scene     core.Scene        `json:"scene"`
	SavedAt   time.Time         `json:"savedAt"`
	Targets   []Object          `json:"Targets"`
	Vehicles  []Object          `json:"Vehicles"`
	Markers   []Object          `json:"Markers"`
	Buildings []Feature         `json:"buildings"`
	Roads     []Feature         `json:"roads"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Object is one authored object. Kind is implied by the list it is in.
type Object struct {
	ID           string         `json:"id"`
	Type         string         `json:"type,omitempty"`
	CreationTime *int64         `json:"creationTime,omitempty"`
	Timestamp    *int64         `json:"timestamp,omitempty"`
	Frames       []Frame        `json:"frames,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// Frame is one timestamped object state.
type Frame struct {
	Timestamp  int64          `json:"timestamp"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Feature is a building or road with points as [x, y] pairs.
type Feature struct {
	ID     string            `json:"id"`
	Type   string            `json:"type"`
	Points [][2]float64      `json:"points"`
	Tags   map[string]string `json:"tags,omitempty"`
}
