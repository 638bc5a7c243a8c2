// pkg/core/errors.go
package core

import "errors"

var (
	// ErrValidation is returned when scene or object parameters are missing or malformed.
	ErrValidation = errors.New("validation failed")

	// ErrNoScene is returned when an operation requires an active scene and none exists.
	ErrNoScene = errors.New("no active scene")

	// ErrExternalData marks a failed or malformed external geometry fetch.
	// It is reported as a warning and never aborts scene creation.
	ErrExternalData = errors.New("external data unavailable")

	// ErrObjectNotFound is returned when an object id is unknown to the scene.
	ErrObjectNotFound = errors.New("object not found")
)
