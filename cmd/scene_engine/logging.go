package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/OCAP2/scene-engine/internal/config"
	"github.com/OCAP2/scene-engine/internal/logging"
	intOtel "github.com/OCAP2/scene-engine/internal/otel"
)

// zerologLevel maps the configured log level onto zerolog.
func zerologLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// newZerolog builds the logger used by the database manager, the influx
// manager and the command dispatcher: colored console output plus a plain
// copy in the session log file.
func newZerolog(console, file io.Writer, level string) zerolog.Logger {
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}}
	if file != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: file, TimeFormat: time.RFC3339, NoColor: true})
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(zerologLevel(level)).
		With().Timestamp().Logger()
}

// openLogFile creates the session log file in logsDir, moving an existing file of the same name aside.
func openLogFile(logsDir string, sessionStart time.Time) (*os.File, string, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create logs dir: %w", err)
	}
	path := logging.LogFilePath(logsDir, AppName, sessionStart)
	if _, err := os.Stat(path); err == nil {
		_ = os.Rename(path, path+".old")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open log file: %w", err)
	}
	return f, path, nil
}

// setupLogging configures slog (console, file, Graylog, OTel) and zerolog.
// Everything it opens is registered in a.closers.
func (a *app) setupLogging(ctx context.Context) {
	level := config.GetString("logLevel")

	file, path, err := openLogFile(config.GetString("logsDir"), a.sessionStart)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging to console only: %v\n", err)
	} else {
		a.logFile = file
		a.closers = append(a.closers, file.Close)
	}

	opts := logging.Options{
		Level:       level,
		Console:     a.stdout,
		ServiceName: config.GetOTelConfig().ServiceName,
		Context: func() []slog.Attr {
			if a.model == nil {
				return nil
			}
			return logging.SceneContext(a.model)()
		},
	}
	if a.logFile != nil {
		opts.File = a.logFile
	}

	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGraylogWriter(gl.Address, AppName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "graylog disabled: %v\n", err)
		} else {
			opts.Graylog = w
			a.closers = append(a.closers, w.Close)
		}
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var logWriter io.Writer
		if a.logFile != nil {
			logWriter = a.logFile
		}
		provider, err := intOtel.New(ctx, intOtel.FromConfig(otelCfg, logWriter))
		if err != nil {
			fmt.Fprintf(os.Stderr, "otel disabled: %v\n", err)
		} else {
			a.otel = provider
			opts.Provider = provider.LoggerProvider()
		}
	}

	a.slog.Setup(opts)
	a.log = a.slog.Logger()
	if path != "" {
		a.log.Info("Logging to file", "path", path)
	}

	var zfile io.Writer
	if a.logFile != nil {
		zfile = a.logFile
	}
	a.zlog = newZerolog(a.stdout, zfile, level)
}
