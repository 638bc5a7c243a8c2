// internal/scene/model.go
package scene

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/OCAP2/scene-engine/internal/cache"
	"github.com/OCAP2/scene-engine/internal/geo"
	"github.com/OCAP2/scene-engine/internal/timeshift"
	"github.com/OCAP2/scene-engine/pkg/core"
)

// EmptySummary is shown when no scene exists.
const EmptySummary = "Create a new scene to get started"

// InitParams are the user-supplied parameters of a new scene.
// Lat/Lon that were left blank should be passed as NaN.
type InitParams struct {
	Name            string
	Lat             float64
	Lon             float64
	RadiusMeters    float64
	StartTimestamp  *int64 // nil falls back to the current time
	DurationMinutes int64
}

// EditParams are the editable scene fields. A nil StartTimestamp keeps the current start.
type EditParams struct {
	Name            string
	RadiusMeters    float64
	DurationMinutes int64
	StartTimestamp  *int64
}

// EditResult reports what an edit did to existing data.
type EditResult struct {
	Shift         int64
	FieldsShifted int
	// OutOfWindow counts objects with a temporal field outside the new window.
	// They are kept as they are.
	OutOfWindow int
}

// ChangeKind describes a scene change notification.
type ChangeKind int

const (
	ChangeReplaced ChangeKind = iota
	ChangeEdited
	ChangeCleared
	ChangeObjects
	ChangeGeometry
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeReplaced:
		return "replaced"
	case ChangeEdited:
		return "edited"
	case ChangeCleared:
		return "cleared"
	case ChangeObjects:
		return "objects"
	case ChangeGeometry:
		return "geometry"
	default:
		return "unknown"
	}
}

// Change is delivered to listeners after every mutation.
type Change struct {
	Kind       ChangeKind
	Generation uint64
}

// state is the scene plus its objects. It is swapped as a unit on replacement.
type state struct {
	scene   core.Scene
	objects core.Collections
}

// Model owns the current scene, its objects and its fetched geometry.
type Model struct {
	mu         sync.RWMutex
	current    *state
	generation uint64
	geometry   *cache.GeometryCache

	listenerMu    sync.RWMutex
	listeners     []func(Change)
	beforeInstall []func(core.Scene)

	now func() time.Time
	log *slog.Logger
}

// Option configures a Model.
type Option func(*Model)

// WithClock overrides the wall clock used for defaults and CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		m.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) {
		if l != nil {
			m.log = l
		}
	}
}

// NewModel creates a Model with no scene.
func NewModel(opts ...Option) *Model {
	m := &Model{
		geometry: cache.NewGeometryCache(),
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnChange registers a callback invoked after every mutation, outside the model lock.
func (m *Model) OnChange(fn func(Change)) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// OnBeforeInstall registers a callback invoked with the validated next scene
// before a replacement or edit becomes visible. It runs outside the model lock.
func (m *Model) OnBeforeInstall(fn func(next core.Scene)) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.beforeInstall = append(m.beforeInstall, fn)
}

func (m *Model) prepare(next core.Scene) {
	m.listenerMu.RLock()
	hooks := slices.Clone(m.beforeInstall)
	m.listenerMu.RUnlock()
	for _, fn := range hooks {
		fn(next)
	}
}

func (m *Model) notify(c Change) {
	m.listenerMu.RLock()
	listeners := slices.Clone(m.listeners)
	m.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(c)
	}
}

func validDuration(minutes int64) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: duration must be greater than 0", core.ErrValidation)
	}
	return nil
}

// endOf returns start plus the duration, rejecting ends past the int64 range.
func endOf(start, minutes int64) (int64, error) {
	if minutes > math.MaxInt64/60 || (start > 0 && minutes*60 > math.MaxInt64-start) {
		return 0, fmt.Errorf("%w: duration of %d minutes overflows the end timestamp", core.ErrValidation, minutes)
	}
	return start + minutes*60, nil
}

func validPositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// Initialize replaces any prior scene with a new one. Objects and geometry of the
// previous scene are dropped in the same critical section the new scene is installed in.
func (m *Model) Initialize(p InitParams) (core.Scene, uint64, error) {
	if !validPositive(p.RadiusMeters) {
		return core.Scene{}, 0, fmt.Errorf("%w: radius must be greater than 0", core.ErrValidation)
	}
	if err := validDuration(p.DurationMinutes); err != nil {
		return core.Scene{}, 0, err
	}
	origin, err := geo.Project(p.Lat, p.Lon)
	if err != nil {
		return core.Scene{}, 0, fmt.Errorf("%w: %w", core.ErrValidation, err)
	}

	now := m.now()
	start := now.Unix()
	if p.StartTimestamp != nil {
		start = *p.StartTimestamp
	} else {
		m.log.Info("No start time chosen, using current time", "timestamp", start)
	}
	end, err := endOf(start, p.DurationMinutes)
	if err != nil {
		return core.Scene{}, 0, err
	}

	s := core.Scene{
		Name:           p.Name,
		Origin:         origin,
		RadiusMeters:   p.RadiusMeters,
		StartTimestamp: start,
		EndTimestamp:   end,
		CreatedAt:      now.UTC(),
	}
	m.prepare(s)

	m.mu.Lock()
	m.geometry.Reset()
	m.current = &state{scene: s, objects: core.NewCollections()}
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	m.log.Info("Scene initialized",
		"name", s.Name,
		"zone", origin.Zone.String(),
		"start", s.StartTimestamp,
		"end", s.EndTimestamp,
		"generation", gen,
	)
	m.notify(Change{Kind: ChangeReplaced, Generation: gen})
	return s, gen, nil
}

// Edit changes the scene's name, radius, duration and optionally start time.
// A start time change shifts every object timestamp by the same amount before Edit returns.
// Existing timestamps are not re-validated against the new window.
func (m *Model) Edit(p EditParams) (EditResult, error) {
	if p.Name == "" {
		return EditResult{}, fmt.Errorf("%w: scene name is required", core.ErrValidation)
	}
	if !validPositive(p.RadiusMeters) {
		return EditResult{}, fmt.Errorf("%w: radius must be greater than 0", core.ErrValidation)
	}
	if err := validDuration(p.DurationMinutes); err != nil {
		return EditResult{}, err
	}

	m.mu.RLock()
	if m.current == nil {
		m.mu.RUnlock()
		return EditResult{}, core.ErrNoScene
	}
	next := m.current.scene
	m.mu.RUnlock()

	if p.StartTimestamp != nil {
		next.StartTimestamp = *p.StartTimestamp
	}
	end, err := endOf(next.StartTimestamp, p.DurationMinutes)
	if err != nil {
		return EditResult{}, err
	}
	next.Name = p.Name
	next.RadiusMeters = p.RadiusMeters
	next.EndTimestamp = end
	m.prepare(next)

	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return EditResult{}, core.ErrNoScene
	}
	st := m.current

	res := EditResult{Shift: next.StartTimestamp - st.scene.StartTimestamp}
	if res.Shift != 0 {
		res.FieldsShifted = timeshift.Apply(st.objects, res.Shift)
	}

	next.Origin = st.scene.Origin
	next.CreatedAt = st.scene.CreatedAt
	st.scene = next
	res.OutOfWindow = countOutOfWindow(&st.scene, st.objects)
	gen := m.generation
	m.mu.Unlock()

	m.log.Info("Scene updated",
		"name", p.Name,
		"shift", res.Shift,
		"fieldsShifted", res.FieldsShifted,
		"durationMinutes", p.DurationMinutes,
	)
	if res.OutOfWindow > 0 {
		m.log.Warn("Objects fall outside the edited time window", "count", res.OutOfWindow)
	}
	m.notify(Change{Kind: ChangeEdited, Generation: gen})
	return res, nil
}

// Clear drops the current scene, its objects and geometry. It is idempotent.
func (m *Model) Clear() {
	m.mu.Lock()
	had := m.current != nil
	m.geometry.Reset()
	m.current = nil
	if had {
		m.generation++
	}
	gen := m.generation
	m.mu.Unlock()

	if had {
		m.log.Info("Scene cleared", "generation", gen)
		m.notify(Change{Kind: ChangeCleared, Generation: gen})
	}
}

// Load replaces the current scene with a snapshot.
func (m *Model) Load(snap *core.Snapshot) (uint64, error) {
	if snap == nil {
		return 0, fmt.Errorf("%w: empty snapshot", core.ErrValidation)
	}
	if snap.Scene.EndTimestamp <= snap.Scene.StartTimestamp {
		return 0, fmt.Errorf("%w: scene end must be after start", core.ErrValidation)
	}
	if !snap.Scene.Origin.Zone.Valid() {
		return 0, fmt.Errorf("%w: invalid zone %d", core.ErrValidation, snap.Scene.Origin.Zone.Number)
	}

	objects := core.NewCollections()
	for kind, byID := range snap.Objects {
		if _, err := core.ParseKind(string(kind)); err != nil {
			return 0, err
		}
		for id, o := range byID {
			if o == nil {
				return 0, fmt.Errorf("%w: %s %q has no data", core.ErrValidation, kind, id)
			}
			if o.ID != id {
				return 0, fmt.Errorf("%w: %s %q is stored under key %q", core.ErrValidation, kind, o.ID, id)
			}
			c := o.Clone()
			c.Kind = kind
			c.SortFrames()
			objects[kind][id] = c
		}
	}
	features := append(core.CloneGeometries(snap.Buildings), core.CloneGeometries(snap.Roads)...)
	m.prepare(snap.Scene)

	m.mu.Lock()
	m.geometry.Reset()
	m.geometry.Replace(features)
	m.current = &state{scene: snap.Scene, objects: objects}
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	m.log.Info("Scene loaded", "name", snap.Scene.Name, "objects", objects.Count(), "generation", gen)
	m.notify(Change{Kind: ChangeReplaced, Generation: gen})
	return gen, nil
}

// ApplyGeometry installs fetched features if gen is still the current generation.
// It returns false and drops the features when the scene was replaced or cleared meanwhile.
func (m *Model) ApplyGeometry(gen uint64, features []core.Geometry) bool {
	m.mu.Lock()
	if m.current == nil || gen != m.generation {
		current := m.generation
		m.mu.Unlock()
		m.log.Info("Discarding stale geometry", "issuedFor", gen, "current", current, "features", len(features))
		return false
	}
	m.geometry.Replace(features)
	m.mu.Unlock()

	m.notify(Change{Kind: ChangeGeometry, Generation: gen})
	return true
}

// HasScene reports whether a scene is active.
func (m *Model) HasScene() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil
}

// Generation returns the current scene generation.
func (m *Model) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// Scene returns a copy of the current scene.
func (m *Model) Scene() (core.Scene, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return core.Scene{}, false
	}
	return m.current.scene, true
}

// Snapshot returns a deep copy of the full scene state.
func (m *Model) Snapshot() (*core.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, core.ErrNoScene
	}
	return &core.Snapshot{
		Scene:     m.current.scene,
		Objects:   m.current.objects.Clone(),
		Buildings: m.geometry.Buildings(),
		Roads:     m.geometry.Roads(),
	}, nil
}

// Buildings returns the fetched buildings of the current scene.
func (m *Model) Buildings() []core.Geometry {
	return m.geometry.Buildings()
}

// Roads returns the fetched roads of the current scene.
func (m *Model) Roads() []core.Geometry {
	return m.geometry.Roads()
}

// GeometryCounts returns the number of fetched buildings and roads.
func (m *Model) GeometryCounts() (buildings, roads int) {
	return m.geometry.Counts()
}

// Summary is the one-line scene description shown by the UI.
func (m *Model) Summary() string {
	s, ok := m.Scene()
	if !ok {
		return EmptySummary
	}
	return fmt.Sprintf("Scene: %s | Duration: %d min", s.Name, s.DurationMinutes())
}

// EditDefaults returns the current values used to prefill an edit form.
func (m *Model) EditDefaults() (EditParams, error) {
	s, ok := m.Scene()
	if !ok {
		return EditParams{}, core.ErrNoScene
	}
	minutes := s.DurationMinutes()
	if minutes <= 0 {
		minutes = 60
	}
	start := s.StartTimestamp
	return EditParams{
		Name:            s.Name,
		RadiusMeters:    s.RadiusMeters,
		DurationMinutes: minutes,
		StartTimestamp:  &start,
	}, nil
}

// OriginLatLon returns the scene origin's geographic position. Origins without
// a stored position are recovered from their planar frame.
func (m *Model) OriginLatLon() (lat, lon float64, err error) {
	s, ok := m.Scene()
	if !ok {
		return 0, 0, core.ErrNoScene
	}
	if !math.IsNaN(s.Origin.Lat) && !math.IsNaN(s.Origin.Lon) && (s.Origin.Lat != 0 || s.Origin.Lon != 0) {
		return s.Origin.Lat, s.Origin.Lon, nil
	}
	return geo.Unproject(core.Point2D{X: s.Origin.X, Y: s.Origin.Y}, s.Origin.Zone)
}

func countOutOfWindow(s *core.Scene, objs core.Collections) int {
	n := 0
	for _, byID := range objs {
		for _, o := range byID {
			if !objectInWindow(s, o) {
				n++
			}
		}
	}
	return n
}

func objectInWindow(s *core.Scene, o *core.Object) bool {
	if o.Timestamp != nil && !s.Contains(*o.Timestamp) {
		return false
	}
	if o.CreationTime != nil && !s.Contains(*o.CreationTime) {
		return false
	}
	for _, f := range o.Frames {
		if !s.Contains(f.Timestamp) {
			return false
		}
	}
	return true
}
