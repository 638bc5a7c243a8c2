package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/OCAP2/scene-engine/internal/dispatcher"
	"github.com/OCAP2/scene-engine/internal/engine"
	"github.com/OCAP2/scene-engine/internal/playback"
	"github.com/OCAP2/scene-engine/internal/scene"
	"github.com/OCAP2/scene-engine/internal/storage"
	"github.com/OCAP2/scene-engine/internal/timeline"
	"github.com/OCAP2/scene-engine/pkg/core"
)

type command func(ctx context.Context, a *app, args []string, out io.Writer) error

var commands = map[string]command{
	"new":     cmdNew,
	"list":    cmdList,
	"show":    cmdShow,
	"play":    cmdPlay,
	"shift":   cmdShift,
	"version": cmdVersion,
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %w", errUsage, fs.Name(), err)
	}
	return nil
}

// dispatch runs a command through the dispatcher so the driver exercises the
// same entry points as a UI.
func (a *app) dispatch(name string, args ...string) (any, error) {
	return a.dispatcher.Dispatch(dispatcher.Command{Name: name, Args: args, Timestamp: time.Now()})
}

func cmdVersion(_ context.Context, _ *app, _ []string, out io.Writer) error {
	fmt.Fprintf(out, "%s %s (built %s)\n", AppName, CurrentVersion, BuildDate)
	return nil
}

func cmdNew(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("new")
	name := fs.String("name", "", "scene name")
	lat := fs.String("lat", "", "origin latitude in degrees")
	lon := fs.String("lon", "", "origin longitude in degrees")
	radius := fs.Float64("radius", 500, "radius in meters")
	duration := fs.Int64("duration", 60, "duration in minutes")
	start := fs.String("start", "", "start as unix seconds, now when empty")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	res, err := a.dispatch(engine.CmdCreate,
		*name, *lat, *lon,
		strconv.FormatFloat(*radius, 'f', -1, 64),
		strconv.FormatInt(*duration, 10),
		*start,
	)
	if err != nil {
		return err
	}
	created := res.(engine.CreateResult)
	if created.Geometry.Warning != nil {
		fmt.Fprintf(out, "warning: map geometry unavailable: %v\n", created.Geometry.Warning)
	}

	if err := a.save(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, a.model.Summary())
	fmt.Fprintf(out, "origin zone %s, %d buildings, %d roads (%d ways skipped)\n",
		created.Scene.Origin.Zone, created.Geometry.Buildings, created.Geometry.Roads, created.Geometry.Skipped)
	return nil
}

func cmdList(_ context.Context, a *app, _ []string, out io.Writer) error {
	res, err := a.dispatch(engine.CmdList)
	if err != nil {
		return err
	}
	infos := res.([]storage.SceneInfo)
	if len(infos) == 0 {
		fmt.Fprintln(out, "no saved scenes")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTART\tMINUTES\tOBJECTS\tBUILDINGS\tROADS\tSAVED")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			info.Name,
			timeline.FormatAbsolute(info.StartTimestamp, time.Local),
			(info.EndTimestamp-info.StartTimestamp)/60,
			info.Objects, info.Buildings, info.Roads,
			info.SavedAt.Local().Format(time.DateTime),
		)
	}
	return tw.Flush()
}

func sceneArg(cmd string, args []string) (string, []string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", nil, fmt.Errorf("%w: %s requires a scene name", errUsage, cmd)
	}
	return args[0], args[1:], nil
}

func cmdShow(_ context.Context, a *app, args []string, out io.Writer) error {
	name, _, err := sceneArg("show", args)
	if err != nil {
		return err
	}
	if _, err := a.dispatch(engine.CmdLoad, name); err != nil {
		return err
	}
	s, _ := a.model.Scene()
	counts := a.model.ObjectCounts()
	buildings, roads := a.model.GeometryCounts()

	fmt.Fprintln(out, a.model.Summary())
	fmt.Fprintf(out, "origin:   %.6f, %.6f (zone %s, %.1f E %.1f N)\n",
		s.Origin.Lat, s.Origin.Lon, s.Origin.Zone, s.Origin.X, s.Origin.Y)
	fmt.Fprintf(out, "radius:   %.0f m\n", s.RadiusMeters)
	fmt.Fprintf(out, "window:   %s - %s\n",
		timeline.FormatAbsolute(s.StartTimestamp, time.Local), timeline.FormatAbsolute(s.EndTimestamp, time.Local))
	for _, k := range core.Kinds {
		fmt.Fprintf(out, "%-9s %d\n", string(k)+":", counts[k])
	}
	fmt.Fprintf(out, "geometry: %d buildings, %d roads\n", buildings, roads)
	return nil
}

// playWatcher forwards display updates to the terminal and signals when playback stops.
type playWatcher struct {
	out  io.Writer
	done chan playback.State
}

func (w *playWatcher) OnSceneEvent(engine.Event) {}

func (w *playWatcher) OnDisplay(u timeline.DisplayUpdate) {
	if u.Reason == playback.ReasonTick {
		fmt.Fprintln(w.out, u.Display)
	}
	if u.State == playback.Finished {
		select {
		case w.done <- u.State:
		default:
		}
	}
}

func cmdPlay(ctx context.Context, a *app, args []string, out io.Writer) error {
	name, rest, err := sceneArg("play", args)
	if err != nil {
		return err
	}
	fs := newFlagSet("play")
	speed := fs.Int64("speed", 0, "whole playback speed multiplier, configured default when 0")
	from := fs.Int64("from", 0, "start offset in seconds")
	if err := parseFlags(fs, rest); err != nil {
		return err
	}

	if _, err := a.dispatch(engine.CmdLoad, name); err != nil {
		return err
	}
	if *speed > 0 {
		if _, err := a.dispatch(timeline.CmdSpeed, strconv.FormatInt(*speed, 10)); err != nil {
			return err
		}
	}
	if *from > 0 {
		if _, err := a.dispatch(timeline.CmdSeek, strconv.FormatInt(*from, 10)); err != nil {
			return err
		}
	}

	w := &playWatcher{out: out, done: make(chan playback.State, 1)}
	a.engine.AddObserver(w)

	res, err := a.dispatch(timeline.CmdPlay)
	if err != nil {
		return err
	}
	if res == playback.Finished.String() {
		fmt.Fprintln(out, "already at the end of the scene")
		return nil
	}

	select {
	case <-w.done:
		fmt.Fprintln(out, "finished")
	case <-ctx.Done():
		_, _ = a.dispatch(timeline.CmdPause)
		pos, _ := a.ctrl.Position()
		fmt.Fprintf(out, "stopped at %s\n", pos.Display)
	}
	return nil
}

func cmdShift(ctx context.Context, a *app, args []string, out io.Writer) error {
	name, rest, err := sceneArg("shift", args)
	if err != nil {
		return err
	}
	fs := newFlagSet("shift")
	start := fs.String("start", "", "new start as unix seconds")
	if err := parseFlags(fs, rest); err != nil {
		return err
	}
	if *start == "" {
		return fmt.Errorf("%w: shift requires --start", errUsage)
	}

	if _, err := a.dispatch(engine.CmdLoad, name); err != nil {
		return err
	}
	defaults, err := a.model.EditDefaults()
	if err != nil {
		return err
	}
	res, err := a.dispatch(engine.CmdEdit,
		defaults.Name,
		strconv.FormatFloat(defaults.RadiusMeters, 'f', -1, 64),
		strconv.FormatInt(defaults.DurationMinutes, 10),
		*start,
	)
	if err != nil {
		return err
	}
	if err := a.save(ctx); err != nil {
		return err
	}

	edit := res.(scene.EditResult)
	fmt.Fprintf(out, "shifted %s by %ds (%d timestamps)\n", name, edit.Shift, edit.FieldsShifted)
	if edit.OutOfWindow > 0 {
		fmt.Fprintf(out, "warning: %d objects fall outside the new window\n", edit.OutOfWindow)
	}
	return nil
}
