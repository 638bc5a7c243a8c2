// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OCAP2/scene-engine/internal/overpass"
	"github.com/OCAP2/scene-engine/internal/playback"
	"github.com/OCAP2/scene-engine/internal/scene"
	"github.com/OCAP2/scene-engine/internal/storage"
	"github.com/OCAP2/scene-engine/internal/timeline"
	"github.com/OCAP2/scene-engine/pkg/core"
)

// ErrNoStore is returned by save/load operations when no storage backend is configured.
var ErrNoStore = errors.New("no storage backend configured")

// GeometryResult reports the outcome of a geometry fetch for one scene generation.
type GeometryResult struct {
	Generation uint64
	Buildings  int
	Roads      int
	Skipped    int
	Applied    bool
	// Warning is set when the fetch failed. The scene itself is still valid.
	Warning error
}

// CreateResult is returned by CreateScene.
type CreateResult struct {
	Scene      core.Scene
	Generation uint64
	Geometry   GeometryResult
}

// Engine owns the scene model, playback clock and timeline controller and
// orchestrates the operations that touch more than one of them.
type Engine struct {
	// mu serializes lifecycle operations so a replace and its clock rebind are not interleaved.
	mu sync.Mutex

	model   *scene.Model
	clock   *playback.Clock
	ctrl    *timeline.Controller
	fetcher overpass.Fetcher
	store   storage.Backend
	timeout time.Duration
	log     *slog.Logger

	obsMu     sync.RWMutex
	observers []Observer

	fetches sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithFetcher enables geometry fetching on scene creation.
func WithFetcher(f overpass.Fetcher) Option {
	return func(e *Engine) {
		e.fetcher = f
	}
}

// WithStore sets the storage backend for save/load.
func WithStore(s storage.Backend) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithFetchTimeout bounds each geometry fetch. Zero means no extra bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithObserver registers an observer at construction time.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// New wires an engine around an existing model, clock and controller.
func New(model *scene.Model, clock *playback.Clock, ctrl *timeline.Controller, opts ...Option) *Engine {
	e := &Engine{
		model: model,
		clock: clock,
		ctrl:  ctrl,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	model.OnBeforeInstall(e.rebindClock)
	model.OnChange(e.onModelChange)
	ctrl.OnDisplayUpdate(e.onDisplay)
	return e
}

// AddObserver registers o for all future events.
func (e *Engine) AddObserver(o Observer) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, o)
}

func (e *Engine) observersSnapshot() []Observer {
	e.obsMu.RLock()
	defer e.obsMu.RUnlock()
	return append([]Observer(nil), e.observers...)
}

func (e *Engine) emit(ev Event) {
	for _, o := range e.observersSnapshot() {
		o.OnSceneEvent(ev)
	}
}

func (e *Engine) onDisplay(u timeline.DisplayUpdate) {
	for _, o := range e.observersSnapshot() {
		o.OnDisplay(u)
	}
}

// rebindClock stops playback and binds the clock to the incoming scene before
// the model makes it current, so no reader sees a new scene with old playback.
func (e *Engine) rebindClock(next core.Scene) {
	e.clock.Bind(next.DurationSeconds())
}

// onModelChange turns direct object edits on the model into events.
// Lifecycle changes are emitted by the engine operations themselves.
func (e *Engine) onModelChange(c scene.Change) {
	if c.Kind == scene.ChangeObjects {
		e.emit(e.event(EventObjects, c.Generation))
	}
}

// event fills an Event from the current model state.
func (e *Engine) event(kind EventKind, gen uint64) Event {
	ev := Event{Kind: kind, Generation: gen}
	if s, ok := e.model.Scene(); ok {
		ev.HasScene = true
		ev.Scene = s
		ev.Objects = e.model.ObjectCounts()
		ev.Buildings, ev.Roads = e.model.GeometryCounts()
	}
	return ev
}

// Model returns the scene model.
func (e *Engine) Model() *scene.Model { return e.model }

// Clock returns the playback clock.
func (e *Engine) Clock() *playback.Clock { return e.clock }

// Controller returns the timeline controller.
func (e *Engine) Controller() *timeline.Controller { return e.ctrl }

// StartScene replaces the current scene and starts fetching its geometry in the
// background. The returned channel yields exactly one GeometryResult.
func (e *Engine) StartScene(ctx context.Context, p scene.InitParams) (core.Scene, uint64, <-chan GeometryResult, error) {
	e.mu.Lock()
	s, gen, err := e.model.Initialize(p)
	if err != nil {
		e.mu.Unlock()
		return core.Scene{}, 0, nil, err
	}
	e.mu.Unlock()

	e.emit(e.event(EventCreated, gen))

	done := make(chan GeometryResult, 1)
	if e.fetcher == nil {
		done <- GeometryResult{Generation: gen}
		return s, gen, done, nil
	}

	e.fetches.Add(1)
	go func() {
		defer e.fetches.Done()
		done <- e.fetchGeometry(ctx, s, gen)
	}()
	return s, gen, done, nil
}

// CreateScene replaces the current scene and waits for its geometry fetch.
// A failed fetch is reported in Geometry.Warning, not as an error.
func (e *Engine) CreateScene(ctx context.Context, p scene.InitParams) (CreateResult, error) {
	s, gen, done, err := e.StartScene(ctx, p)
	if err != nil {
		return CreateResult{}, err
	}
	return CreateResult{Scene: s, Generation: gen, Geometry: <-done}, nil
}

func (e *Engine) fetchGeometry(ctx context.Context, s core.Scene, gen uint64) GeometryResult {
	res := GeometryResult{Generation: gen}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	ways, err := e.fetcher.Fetch(ctx, s.Origin.Lat, s.Origin.Lon, s.RadiusMeters)
	if err != nil {
		if !errors.Is(err, core.ErrExternalData) {
			err = fmt.Errorf("%w: %w", core.ErrExternalData, err)
		}
		res.Warning = err
		e.log.Warn("Geometry fetch failed, scene has no buildings or roads",
			"scene", s.Name, "generation", gen, "error", err)
		ev := e.event(EventFetchFailed, gen)
		ev.Err = err
		e.emit(ev)
		return res
	}

	features, skipped := overpass.Classify(ways, s.Origin.Zone)
	res.Skipped = skipped
	if !e.model.ApplyGeometry(gen, features) {
		e.emit(Event{Kind: EventFetchDiscarded, Generation: gen, Name: s.Name})
		return res
	}
	res.Applied = true
	res.Buildings, res.Roads = e.model.GeometryCounts()

	e.log.Info("Geometry loaded",
		"scene", s.Name,
		"buildings", res.Buildings,
		"roads", res.Roads,
		"skipped", skipped,
		"duration", time.Since(start))
	e.emit(e.event(EventGeometry, gen))
	return res
}

// EditScene applies an edit and rebinds playback to the new duration.
func (e *Engine) EditScene(p scene.EditParams) (scene.EditResult, error) {
	e.mu.Lock()
	res, err := e.model.Edit(p)
	if err != nil {
		e.mu.Unlock()
		return scene.EditResult{}, err
	}
	gen := e.model.Generation()
	e.mu.Unlock()

	e.emit(e.event(EventEdited, gen))
	return res, nil
}

// ClearScene stops playback and drops the scene. Clearing with no scene does nothing.
func (e *Engine) ClearScene() {
	e.mu.Lock()
	had := e.model.HasScene()
	e.clock.Unbind()
	e.model.Clear()
	gen := e.model.Generation()
	e.mu.Unlock()

	if had {
		e.emit(Event{Kind: EventCleared, Generation: gen})
	}
}

// SaveScene writes the current scene to the store and returns its name.
func (e *Engine) SaveScene(ctx context.Context) (string, error) {
	if e.store == nil {
		return "", ErrNoStore
	}
	snap, err := e.model.Snapshot()
	if err != nil {
		return "", err
	}
	if err := e.store.SaveScene(ctx, snap); err != nil {
		return "", err
	}

	attrs := []any{"scene", snap.Scene.Name, "objects", snap.Objects.Count()}
	if exp, ok := e.store.(storage.Exportable); ok && exp.GetExportedFilePath() != "" {
		attrs = append(attrs, "path", exp.GetExportedFilePath())
	}
	e.log.Info("Scene saved", attrs...)

	ev := e.event(EventSaved, e.model.Generation())
	ev.Name = snap.Scene.Name
	e.emit(ev)
	return snap.Scene.Name, nil
}

// LoadScene replaces the current scene with one from the store.
func (e *Engine) LoadScene(ctx context.Context, name string) (core.Scene, error) {
	if e.store == nil {
		return core.Scene{}, ErrNoStore
	}
	snap, err := e.store.LoadScene(ctx, name)
	if err != nil {
		return core.Scene{}, err
	}

	e.mu.Lock()
	gen, err := e.model.Load(snap)
	if err != nil {
		e.mu.Unlock()
		return core.Scene{}, err
	}
	e.mu.Unlock()

	e.emit(e.event(EventLoaded, gen))
	return snap.Scene, nil
}

// ListScenes lists the scenes in the store.
func (e *Engine) ListScenes(ctx context.Context) ([]storage.SceneInfo, error) {
	if e.store == nil {
		return nil, ErrNoStore
	}
	return e.store.ListScenes(ctx)
}

// DeleteScene removes a saved scene. The current scene is not affected.
func (e *Engine) DeleteScene(ctx context.Context, name string) error {
	if e.store == nil {
		return ErrNoStore
	}
	if err := e.store.DeleteScene(ctx, name); err != nil {
		return err
	}
	e.emit(Event{Kind: EventDeleted, Generation: e.model.Generation(), Name: name})
	return nil
}

// Wait blocks until every background geometry fetch has finished.
func (e *Engine) Wait() {
	e.fetches.Wait()
}

// Close stops playback and waits for background fetches.
func (e *Engine) Close() {
	e.clock.Close()
	e.fetches.Wait()
}
