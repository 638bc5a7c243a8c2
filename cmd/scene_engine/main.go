// Command scene_engine drives the scene engine headless: it creates scenes
// (fetching their map geometry), lists and inspects saved scenes, plays them
// back and shifts them in time.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/OCAP2/scene-engine/internal/config"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "scene_engine"
)

const usage = `usage: scene_engine [--config DIR] <command> [flags]

commands:
  new    --name N --lat LAT --lon LON --radius M --duration MIN [--start UNIX]
  list
  show   <name>
  play   <name> [--speed X]
  shift  <name> --start UNIX
  version
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid usage")

// syncWriter serializes writes from the ticker goroutine and the loggers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	stdout = &syncWriter{w: stdout}

	global := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(io.Discard)
	configDir := global.StringP("config", "c", ".", "directory containing "+config.FileName)
	if err := global.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	rest := global.Args()
	if len(rest) == 0 {
		return fmt.Errorf("%w: no command given", errUsage)
	}
	name, cmdArgs := rest[0], rest[1:]

	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
	if name == "version" {
		return cmd(ctx, nil, cmdArgs, stdout)
	}

	a, err := newApp(ctx, *configDir, stdout)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil {
			fmt.Fprintln(os.Stderr, "shutdown:", cerr)
		}
	}()

	return cmd(ctx, a, cmdArgs, stdout)
}
