// pkg/core/snapshot.go
package core

// Snapshot is the complete, serializable state of a scene. Nothing outside it
// is needed to restore the scene.
type Snapshot struct {
	Scene     Scene       `json:"scene"`
	Objects   Collections `json:"objects"`
	Buildings []Geometry  `json:"buildings"`
	Roads     []Geometry  `json:"roads"`
}
