package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/OCAP2/scene-engine/internal/api"
	"github.com/OCAP2/scene-engine/internal/config"
	"github.com/OCAP2/scene-engine/internal/dispatcher"
	"github.com/OCAP2/scene-engine/internal/engine"
	"github.com/OCAP2/scene-engine/internal/influx"
	"github.com/OCAP2/scene-engine/internal/logging"
	"github.com/OCAP2/scene-engine/internal/observability"
	intOtel "github.com/OCAP2/scene-engine/internal/otel"
	"github.com/OCAP2/scene-engine/internal/overpass"
	"github.com/OCAP2/scene-engine/internal/playback"
	"github.com/OCAP2/scene-engine/internal/scene"
	"github.com/OCAP2/scene-engine/internal/storage"
	"github.com/OCAP2/scene-engine/internal/stream"
	"github.com/OCAP2/scene-engine/internal/timeline"
)

// app holds everything a subcommand needs.
type app struct {
	sessionStart time.Time
	stdout       io.Writer

	slog    *logging.SlogManager
	log     *slog.Logger
	zlog    zerolog.Logger
	logFile *os.File
	otel    *intOtel.Provider

	model      *scene.Model
	clock      *playback.Clock
	ctrl       *timeline.Controller
	engine     *engine.Engine
	dispatcher *dispatcher.Dispatcher

	store     storage.Backend
	api       *api.Client
	influx    *influx.Manager
	metrics   *observability.Metrics
	publisher *stream.Publisher

	stopMetrics context.CancelFunc
	closers     []func() error
}

// newApp loads configuration from configDir and wires the engine with every
// enabled collaborator.
func newApp(ctx context.Context, configDir string, stdout io.Writer) (*app, error) {
	a := &app{
		sessionStart: time.Now(),
		stdout:       stdout,
		slog:         logging.NewSlogManager(),
	}

	cfgErr := config.Load(configDir)
	a.setupLogging(ctx)
	if cfgErr != nil {
		a.log.Warn("Failed to load config, using defaults!", "error", cfgErr)
	} else {
		a.log.Info("Loaded config", "dir", configDir)
	}

	var drift playback.MultiDriftSink

	if cfg := config.GetMetricsConfig(); cfg.Enabled {
		m, err := observability.NewMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			a.log.Error("Failed to register metrics", "error", err)
		} else {
			a.metrics = m
			drift = append(drift, m)
			metricsCtx, cancel := context.WithCancel(context.Background())
			a.stopMetrics = cancel
			go func() {
				if err := m.Serve(metricsCtx, cfg.Listen, a.log); err != nil {
					a.log.Error("Metrics server stopped", "error", err)
				}
			}()
		}
	}

	if cfg := config.GetInfluxConfig(); cfg.Enabled {
		backup := filepath.Join(cfg.BackupDir, "drift."+a.sessionStart.Format("20060102_150405")+".lp.gz")
		a.influx = influx.NewManager(cfg, a.zlog, backup)
		if err := a.influx.Connect(ctx); err != nil {
			a.log.Error("Drift samples will not be recorded", "error", err)
			a.influx = nil
		} else {
			drift = append(drift, influx.NewDriftSink(a.influx, a.sceneName))
			a.closers = append(a.closers, a.influx.Close)
		}
	}

	pcfg := config.GetPlaybackConfig()
	a.model = scene.NewModel(scene.WithLogger(a.log))
	clockOpts := []playback.Option{
		playback.WithLogger(a.log),
		playback.WithMinTick(pcfg.MinTickInterval),
		playback.WithDriftLogEvery(pcfg.DriftLogEvery),
		playback.WithSpeed(pcfg.DefaultSpeed),
	}
	if len(drift) > 0 {
		clockOpts = append(clockOpts, playback.WithDriftSink(drift))
	}
	a.clock = playback.NewClock(clockOpts...)
	a.ctrl = timeline.New(a.model, a.clock,
		timeline.WithLocation(config.Location()),
		timeline.WithLogger(a.log),
		timeline.WithUpdateBacklog(pcfg.UpdateBacklog),
	)

	store, closeStore, err := createStorageBackend(ctx, config.GetStorageConfig(), a.zlog, a.log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, closeStore)
	a.store = store

	if cfg := config.GetAPIConfig(); cfg.Enabled {
		a.api = api.New(cfg.ServerURL, cfg.APIKey)
		if err := a.api.Healthcheck(ctx); err != nil {
			a.log.Warn("Web frontend not reachable, uploads may fail", "error", err)
		}
	}

	engineOpts := []engine.Option{
		engine.WithStore(store),
		engine.WithLogger(a.log),
	}
	if ocfg := config.GetOverpassConfig(); ocfg.Enabled {
		engineOpts = append(engineOpts,
			engine.WithFetcher(overpass.New(ocfg.URL, ocfg.Timeout)),
			engine.WithFetchTimeout(ocfg.Timeout),
		)
	}
	if a.metrics != nil {
		engineOpts = append(engineOpts, engine.WithObserver(a.metrics))
	}
	a.engine = engine.New(a.model, a.clock, a.ctrl, engineOpts...)

	if scfg := config.GetStreamConfig(); scfg.Enabled {
		a.publisher = stream.New(stream.Config{URL: scfg.URL, Secret: scfg.Secret}, a.model, a.log)
		if err := a.publisher.Connect(); err != nil {
			a.log.Error("Display stream disabled", "error", err)
			a.publisher = nil
		} else {
			a.engine.AddObserver(a.publisher)
		}
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(a.zlog))
	if err != nil {
		a.close()
		return nil, err
	}
	a.dispatcher = d
	a.engine.RegisterCommands(d)
	a.ctrl.RegisterCommands(d)

	return a, nil
}

// save stores the current scene and uploads the exported file when the
// backend writes one and uploads are enabled.
func (a *app) save(ctx context.Context) error {
	if _, err := a.dispatch(engine.CmdSave); err != nil {
		return err
	}
	if a.api == nil {
		return nil
	}
	exp, ok := a.store.(storage.Exportable)
	if !ok || exp.GetExportedFilePath() == "" {
		a.log.Warn("Storage backend does not export files, skipping upload")
		return nil
	}
	snap, err := a.model.Snapshot()
	if err != nil {
		return err
	}
	path := exp.GetExportedFilePath()
	if err := a.api.UploadScene(ctx, path, storage.InfoFor(snap, time.Now())); err != nil {
		return fmt.Errorf("scene saved but upload failed: %w", err)
	}
	a.log.Info("Scene uploaded", "path", path)
	return nil
}

func (a *app) sceneName() string {
	if a.model == nil {
		return ""
	}
	s, ok := a.model.Scene()
	if !ok {
		return ""
	}
	return s.Name
}

// close stops the engine and releases collaborators in reverse order of creation.
func (a *app) close() error {
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.engine != nil {
		a.engine.Close()
	} else if a.clock != nil {
		a.clock.Close()
	}
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
	}

	var errs []error
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.otel != nil {
		if err := a.slog.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := a.otel.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
