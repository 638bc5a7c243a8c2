package timeline

import (
	"fmt"
	"strconv"

	"github.com/OCAP2/scene-engine/internal/dispatcher"
	"github.com/OCAP2/scene-engine/pkg/core"
)

// Command names handled by the controller.
const (
	CmdToggle   = "timeline:toggle"
	CmdPlay     = "timeline:play"
	CmdPause    = "timeline:pause"
	CmdSeek     = "timeline:seek"
	CmdSkip     = "timeline:skip"
	CmdReset    = "timeline:reset"
	CmdSpeed    = "timeline:speed"
	CmdKey      = "timeline:key"
	CmdPosition = "timeline:position"
)

// RegisterCommands wires the controller's operations into d.
func (c *Controller) RegisterCommands(d *dispatcher.Dispatcher) {
	d.Register(CmdToggle, func(dispatcher.Command) (any, error) {
		return c.PlayPause().String(), nil
	}, dispatcher.Logged())

	d.Register(CmdPlay, func(dispatcher.Command) (any, error) {
		if !c.model.HasScene() {
			return nil, core.ErrNoScene
		}
		c.clock.Play()
		return c.clock.State().String(), nil
	}, dispatcher.Logged())

	d.Register(CmdPause, func(dispatcher.Command) (any, error) {
		c.clock.Pause()
		return c.clock.State().String(), nil
	}, dispatcher.Logged())

	d.Register(CmdSeek, func(cmd dispatcher.Command) (any, error) {
		v, err := intArg(cmd, 0)
		if err != nil {
			return nil, err
		}
		return c.Scrub(v), nil
	})

	d.Register(CmdSkip, func(cmd dispatcher.Command) (any, error) {
		v, err := intArg(cmd, 0)
		if err != nil {
			return nil, err
		}
		return c.Skip(v), nil
	})

	d.Register(CmdReset, func(dispatcher.Command) (any, error) {
		c.Reset()
		return c.Offset(), nil
	}, dispatcher.Logged())

	d.Register(CmdSpeed, func(cmd dispatcher.Command) (any, error) {
		if len(cmd.Args) < 1 {
			return nil, fmt.Errorf("%w: %s requires a speed", core.ErrValidation, cmd.Name)
		}
		n, err := strconv.ParseInt(cmd.Args[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: speed %q: %w", core.ErrValidation, cmd.Args[0], err)
		}
		speed := float64(n)
		if err := c.SetSpeed(speed); err != nil {
			return nil, err
		}
		return speed, nil
	})

	d.Register(CmdKey, func(cmd dispatcher.Command) (any, error) {
		if len(cmd.Args) < 1 {
			return nil, fmt.Errorf("%w: %s requires a key", core.ErrValidation, cmd.Name)
		}
		var focus Focus
		if len(cmd.Args) > 1 {
			focus = Focus(cmd.Args[1])
		}
		return c.HandleKey(cmd.Args[0], focus), nil
	})

	d.Register(CmdPosition, func(dispatcher.Command) (any, error) {
		return c.Position()
	})
}

func intArg(cmd dispatcher.Command, i int) (int64, error) {
	if len(cmd.Args) <= i {
		return 0, fmt.Errorf("%w: %s requires %d argument(s)", core.ErrValidation, cmd.Name, i+1)
	}
	v, err := strconv.ParseInt(cmd.Args[i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s argument %q: %w", core.ErrValidation, cmd.Name, cmd.Args[i], err)
	}
	return v, nil
}
