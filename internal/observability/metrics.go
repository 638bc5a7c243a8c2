// Package observability exposes scene and playback state as Prometheus metrics.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OCAP2/scene-engine/internal/engine"
	"github.com/OCAP2/scene-engine/internal/playback"
	"github.com/OCAP2/scene-engine/internal/timeline"
	"github.com/OCAP2/scene-engine/pkg/core"
)

var playbackStates = []playback.State{playback.Stopped, playback.Playing, playback.Finished}

// Metrics bundles the Prometheus collectors for one engine. It implements
// engine.Observer and playback.DriftSink so it can be wired in directly.
type Metrics struct {
	gatherer prometheus.Gatherer

	SceneEvents     *prometheus.CounterVec
	SceneObjects    *prometheus.GaugeVec
	SceneGeometry   *prometheus.GaugeVec
	SceneGeneration prometheus.Gauge
	SceneDuration   prometheus.Gauge
	SceneActive     prometheus.Gauge

	PlaybackOffset  prometheus.Gauge
	PlaybackState   *prometheus.GaugeVec
	DisplayUpdates  *prometheus.CounterVec
	PlaybackDrift   prometheus.Histogram
	PlaybackSpeed   prometheus.Gauge
	PlaybackPeriods prometheus.Gauge
}

var (
	_ engine.Observer    = (*Metrics)(nil)
	_ playback.DriftSink = (*Metrics)(nil)
)

// NewMetrics registers the collectors against reg, defaulting to the global
// Prometheus registry when nil. Registering twice reuses the existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{gatherer: gatherer}
	var err error

	if m.SceneEvents, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scene_events_total",
		Help: "Scene lifecycle events, labeled by kind.",
	}, []string{"kind"}), "scene_events_total"); err != nil {
		return nil, err
	}
	if m.SceneObjects, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scene_objects",
		Help: "Objects in the current scene, labeled by kind.",
	}, []string{"kind"}), "scene_objects"); err != nil {
		return nil, err
	}
	if m.SceneGeometry, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scene_geometry_features",
		Help: "Fetched map features in the current scene, labeled by class.",
	}, []string{"class"}), "scene_geometry_features"); err != nil {
		return nil, err
	}
	if m.SceneGeneration, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scene_generation",
		Help: "Generation counter of the current scene.",
	}), "scene_generation"); err != nil {
		return nil, err
	}
	if m.SceneDuration, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scene_duration_seconds",
		Help: "Length of the current scene's time window.",
	}), "scene_duration_seconds"); err != nil {
		return nil, err
	}
	if m.SceneActive, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scene_active",
		Help: "1 while a scene exists, 0 otherwise.",
	}), "scene_active"); err != nil {
		return nil, err
	}
	if m.PlaybackOffset, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playback_offset_seconds",
		Help: "Current playback offset from the scene start.",
	}), "playback_offset_seconds"); err != nil {
		return nil, err
	}
	if m.PlaybackState, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "playback_state",
		Help: "1 for the current playback state, 0 for the others.",
	}, []string{"state"}), "playback_state"); err != nil {
		return nil, err
	}
	if m.DisplayUpdates, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playback_display_updates_total",
		Help: "Display updates emitted by the timeline, labeled by reason.",
	}, []string{"reason"}), "playback_display_updates_total"); err != nil {
		return nil, err
	}
	if m.PlaybackDrift, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "playback_drift_seconds",
		Help:    "Wall clock time minus expected time of a play session at each drift sample.",
		Buckets: []float64{-0.1, -0.01, 0, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}), "playback_drift_seconds"); err != nil {
		return nil, err
	}
	if m.PlaybackSpeed, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playback_speed",
		Help: "Speed multiplier of the most recent play session.",
	}), "playback_speed"); err != nil {
		return nil, err
	}
	if m.PlaybackPeriods, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playback_tick_period_seconds",
		Help: "Tick period of the most recent play session.",
	}), "playback_tick_period_seconds"); err != nil {
		return nil, err
	}

	for _, s := range playbackStates {
		m.PlaybackState.WithLabelValues(s.String()).Set(0)
	}
	m.PlaybackState.WithLabelValues(playback.Stopped.String()).Set(1)
	return m, nil
}

// OnSceneEvent updates scene gauges from an engine event.
func (m *Metrics) OnSceneEvent(ev engine.Event) {
	if m == nil {
		return
	}
	m.SceneEvents.WithLabelValues(string(ev.Kind)).Inc()

	switch ev.Kind {
	case engine.EventSaved, engine.EventDeleted, engine.EventFetchDiscarded:
		// these say nothing about the current scene
		return
	}

	m.SceneGeneration.Set(float64(ev.Generation))
	if !ev.HasScene {
		m.SceneActive.Set(0)
		m.SceneDuration.Set(0)
		for _, k := range core.Kinds {
			m.SceneObjects.WithLabelValues(string(k)).Set(0)
		}
		m.SceneGeometry.WithLabelValues(string(core.ClassBuilding)).Set(0)
		m.SceneGeometry.WithLabelValues(string(core.ClassRoad)).Set(0)
		return
	}

	m.SceneActive.Set(1)
	m.SceneDuration.Set(float64(ev.Scene.DurationSeconds()))
	for _, k := range core.Kinds {
		m.SceneObjects.WithLabelValues(string(k)).Set(float64(ev.Objects[k]))
	}
	m.SceneGeometry.WithLabelValues(string(core.ClassBuilding)).Set(float64(ev.Buildings))
	m.SceneGeometry.WithLabelValues(string(core.ClassRoad)).Set(float64(ev.Roads))
}

// OnDisplay updates playback gauges from a display update.
func (m *Metrics) OnDisplay(u timeline.DisplayUpdate) {
	if m == nil {
		return
	}
	m.DisplayUpdates.WithLabelValues(string(u.Reason)).Inc()
	m.PlaybackOffset.Set(float64(u.Offset))
	for _, s := range playbackStates {
		v := 0.0
		if s == u.State {
			v = 1
		}
		m.PlaybackState.WithLabelValues(s.String()).Set(v)
	}
}

// RecordDrift implements playback.DriftSink.
func (m *Metrics) RecordDrift(s playback.DriftSample) {
	if m == nil {
		return
	}
	m.PlaybackDrift.Observe(s.Drift.Seconds())
	m.PlaybackSpeed.Set(s.Speed)
	m.PlaybackPeriods.Set(s.Period.Seconds())
}

// Handler returns an HTTP handler that serves the registered metrics.
func (m *Metrics) Handler() http.Handler {
	gatherer := m.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
