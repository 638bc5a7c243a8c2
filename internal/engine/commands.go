package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/OCAP2/scene-engine/internal/dispatcher"
	"github.com/OCAP2/scene-engine/internal/scene"
	"github.com/OCAP2/scene-engine/pkg/core"
)

// Command names handled by the engine.
const (
	CmdCreate  = "scene:create"
	CmdEdit    = "scene:edit"
	CmdClear   = "scene:clear"
	CmdSave    = "scene:save"
	CmdLoad    = "scene:load"
	CmdList    = "scene:list"
	CmdDelete  = "scene:delete"
	CmdSummary = "scene:summary"
)

// commandTimeout bounds store and fetch work started from a dispatched command.
const commandTimeout = 2 * time.Minute

// RegisterCommands wires the engine's lifecycle operations into d.
//
// scene:create takes name, lat, lon, radius, duration minutes and an optional
// start timestamp; blank lat/lon are treated as missing. scene:edit takes name,
// radius, duration minutes and an optional start timestamp.
func (e *Engine) RegisterCommands(d *dispatcher.Dispatcher) {
	d.Register(CmdCreate, func(cmd dispatcher.Command) (any, error) {
		p, err := parseInitArgs(cmd)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		res, err := e.CreateScene(ctx, p)
		if err != nil {
			return nil, err
		}
		return res, nil
	}, dispatcher.Logged())

	d.Register(CmdEdit, func(cmd dispatcher.Command) (any, error) {
		p, err := parseEditArgs(cmd)
		if err != nil {
			return nil, err
		}
		return e.EditScene(p)
	}, dispatcher.Logged())

	d.Register(CmdClear, func(dispatcher.Command) (any, error) {
		e.ClearScene()
		return e.model.Summary(), nil
	}, dispatcher.Logged())

	d.Register(CmdSave, func(dispatcher.Command) (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return e.SaveScene(ctx)
	}, dispatcher.Logged())

	d.Register(CmdLoad, func(cmd dispatcher.Command) (any, error) {
		if len(cmd.Args) < 1 || cmd.Args[0] == "" {
			return nil, fmt.Errorf("%w: %s requires a scene name", core.ErrValidation, cmd.Name)
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return e.LoadScene(ctx, cmd.Args[0])
	}, dispatcher.Logged())

	d.Register(CmdList, func(dispatcher.Command) (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return e.ListScenes(ctx)
	})

	d.Register(CmdDelete, func(cmd dispatcher.Command) (any, error) {
		if len(cmd.Args) < 1 || cmd.Args[0] == "" {
			return nil, fmt.Errorf("%w: %s requires a scene name", core.ErrValidation, cmd.Name)
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return nil, e.DeleteScene(ctx, cmd.Args[0])
	}, dispatcher.Logged())

	d.Register(CmdSummary, func(dispatcher.Command) (any, error) {
		return e.model.Summary(), nil
	})
}

func parseInitArgs(cmd dispatcher.Command) (scene.InitParams, error) {
	if len(cmd.Args) < 5 {
		return scene.InitParams{}, fmt.Errorf("%w: %s requires name, lat, lon, radius and duration", core.ErrValidation, cmd.Name)
	}
	p := scene.InitParams{Name: cmd.Args[0]}
	var err error
	if p.Lat, err = optionalFloat(cmd.Args[1]); err != nil {
		return p, fmt.Errorf("%w: lat: %w", core.ErrValidation, err)
	}
	if p.Lon, err = optionalFloat(cmd.Args[2]); err != nil {
		return p, fmt.Errorf("%w: lon: %w", core.ErrValidation, err)
	}
	if p.RadiusMeters, err = strconv.ParseFloat(cmd.Args[3], 64); err != nil {
		return p, fmt.Errorf("%w: radius: %w", core.ErrValidation, err)
	}
	if p.DurationMinutes, err = strconv.ParseInt(cmd.Args[4], 10, 64); err != nil {
		return p, fmt.Errorf("%w: duration: %w", core.ErrValidation, err)
	}
	if p.StartTimestamp, err = optionalTimestamp(cmd.Args, 5); err != nil {
		return p, err
	}
	return p, nil
}

func parseEditArgs(cmd dispatcher.Command) (scene.EditParams, error) {
	if len(cmd.Args) < 3 {
		return scene.EditParams{}, fmt.Errorf("%w: %s requires name, radius and duration", core.ErrValidation, cmd.Name)
	}
	p := scene.EditParams{Name: cmd.Args[0]}
	var err error
	if p.RadiusMeters, err = strconv.ParseFloat(cmd.Args[1], 64); err != nil {
		return p, fmt.Errorf("%w: radius: %w", core.ErrValidation, err)
	}
	if p.DurationMinutes, err = strconv.ParseInt(cmd.Args[2], 10, 64); err != nil {
		return p, fmt.Errorf("%w: duration: %w", core.ErrValidation, err)
	}
	if p.StartTimestamp, err = optionalTimestamp(cmd.Args, 3); err != nil {
		return p, err
	}
	return p, nil
}

// optionalFloat parses s, mapping an empty string to NaN.
func optionalFloat(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func optionalTimestamp(args []string, i int) (*int64, error) {
	if len(args) <= i || args[i] == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(args[i], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: start: %w", core.ErrValidation, err)
	}
	return &v, nil
}
