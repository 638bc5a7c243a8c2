// internal/timeline/controller.go
package timeline

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/OCAP2/scene-engine/internal/playback"
	"github.com/OCAP2/scene-engine/internal/queue"
	"github.com/OCAP2/scene-engine/internal/scene"
	"github.com/OCAP2/scene-engine/pkg/core"
)

// DefaultUpdateBacklog bounds the display update queue.
const DefaultUpdateBacklog = 256

// Position is the scrub position resolved against the scene.
type Position struct {
	Offset   int64  `json:"offset"`
	Duration int64  `json:"duration"`
	Absolute int64  `json:"absolute"`
	Relative string `json:"relative"`
	Display  string `json:"display"`
}

// DisplayUpdate is pushed on every offset or state change.
type DisplayUpdate struct {
	Position
	State  playback.State  `json:"state"`
	Reason playback.Reason `json:"reason"`
}

// Controller maps the playback offset onto the scene for display and routes user input to the clock.
type Controller struct {
	model *scene.Model
	clock *playback.Clock
	loc   *time.Location
	log   *slog.Logger

	updates *queue.Queue[DisplayUpdate]

	listenerMu sync.RWMutex
	listeners  []func(DisplayUpdate)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLocation sets the time zone used for absolute timestamps.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithUpdateBacklog bounds how many display updates are retained for Drain.
func WithUpdateBacklog(n int) Option {
	return func(c *Controller) {
		c.updates = queue.NewBounded[DisplayUpdate](n)
	}
}

// New creates a Controller observing clock.
func New(model *scene.Model, clock *playback.Clock, opts ...Option) *Controller {
	c := &Controller{
		model:   model,
		clock:   clock,
		loc:     time.Local,
		log:     slog.Default(),
		updates: queue.NewBounded[DisplayUpdate](DefaultUpdateBacklog),
	}
	for _, opt := range opts {
		opt(c)
	}
	clock.OnUpdate(c.onClockUpdate)
	return c
}

// OnDisplayUpdate registers fn to receive every display update.
func (c *Controller) OnDisplayUpdate(fn func(DisplayUpdate)) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) onClockUpdate(u playback.Update) {
	d := DisplayUpdate{
		Position: c.resolve(u.Offset, u.Duration),
		State:    u.State,
		Reason:   u.Reason,
	}
	c.updates.Push(d)

	c.listenerMu.RLock()
	listeners := slices.Clone(c.listeners)
	c.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(d)
	}
}

func (c *Controller) resolve(offset, duration int64) Position {
	p := Position{
		Offset:   offset,
		Duration: duration,
		Relative: FormatOffset(offset),
	}
	if s, ok := c.model.Scene(); ok {
		p.Absolute = s.StartTimestamp + offset
		p.Display = FormatPosition(offset, p.Absolute, c.loc)
	}
	return p
}

// Drain returns and clears the pending display updates.
func (c *Controller) Drain() []DisplayUpdate {
	return c.updates.GetAndEmpty()
}

// LastUpdate returns the most recent display update still queued.
func (c *Controller) LastUpdate() (DisplayUpdate, bool) {
	return c.updates.Peek()
}

// DroppedUpdates counts display updates discarded because nobody drained them.
func (c *Controller) DroppedUpdates() uint64 {
	return c.updates.Dropped()
}

// Scrub moves the playback position to the slider value.
func (c *Controller) Scrub(value int64) int64 {
	return c.clock.Seek(value)
}

// Skip moves the position by delta seconds.
func (c *Controller) Skip(delta int64) int64 {
	off := c.clock.Skip(delta)
	c.log.Debug("Timeline skipped", "delta", delta, "offset", off)
	return off
}

// Reset stops playback and returns to the start.
func (c *Controller) Reset() {
	c.clock.Reset()
	c.log.Debug("Timeline reset to 0")
}

// SetSpeed changes the playback speed multiplier, effective at the next play.
func (c *Controller) SetSpeed(speed float64) error {
	return c.clock.SetSpeed(speed)
}

// PlayPause toggles playback. Without a scene it does nothing.
func (c *Controller) PlayPause() playback.State {
	if !c.model.HasScene() {
		c.log.Info("No scene exists, create a scene first")
		return c.clock.State()
	}
	return c.clock.Toggle()
}

// HandleKey toggles playback on the space bar, unless no scene exists or focus is in a text control.
// It returns true when the key was consumed.
func (c *Controller) HandleKey(key string, focus Focus) bool {
	if !IsPlayPauseKey(key) {
		return false
	}
	if !c.model.HasScene() || focus.IsTextInput() {
		return false
	}
	c.clock.Toggle()
	return true
}

// Offset returns seconds since the scene start.
func (c *Controller) Offset() int64 {
	return c.clock.Offset()
}

// State returns the playback state.
func (c *Controller) State() playback.State {
	return c.clock.State()
}

// AbsoluteTimestamp is the scene start plus the current offset.
func (c *Controller) AbsoluteTimestamp() (int64, error) {
	s, ok := c.model.Scene()
	if !ok {
		return 0, core.ErrNoScene
	}
	return s.StartTimestamp + c.clock.Offset(), nil
}

// Position returns the current offset, absolute time and their display strings.
func (c *Controller) Position() (Position, error) {
	if !c.model.HasScene() {
		return Position{}, core.ErrNoScene
	}
	st := c.clock.Status()
	return c.resolve(st.Offset, st.Duration), nil
}

// Active returns the objects visible at the current position.
func (c *Controller) Active() ([]scene.ActiveObject, error) {
	ts, err := c.AbsoluteTimestamp()
	if err != nil {
		return nil, err
	}
	return c.model.ActiveAt(ts), nil
}
