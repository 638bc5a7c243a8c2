// internal/playback/clock.go
package playback

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/OCAP2/scene-engine/pkg/core"
)

// State is the playback state.
type State int

const (
	Stopped State = iota
	Playing
	// Finished is Stopped reached by running into the end of the scene.
	Finished
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reason says what produced an Update.
type Reason string

const (
	ReasonTick  Reason = "tick"
	ReasonSeek  Reason = "seek"
	ReasonState Reason = "state"
	ReasonBind  Reason = "bind"
)

// Update is delivered to listeners whenever the offset or state changes.
type Update struct {
	Offset   int64
	Duration int64
	State    State
	Reason   Reason
}

// DriftSample is one wall-clock drift measurement of a play session.
type DriftSample struct {
	Session  uint64
	Ticks    int64
	Offset   int64
	Speed    float64
	Period   time.Duration
	Expected time.Duration
	Actual   time.Duration
	Drift    time.Duration
	Time     time.Time
}

// DriftSink receives drift samples. Implementations must not block.
type DriftSink interface {
	RecordDrift(DriftSample)
}

// Clock advances a scene offset by one second per tick.
// It is the only writer of the offset; every other component goes through its methods.
type Clock struct {
	mu       sync.Mutex
	state    State
	offset   int64
	duration int64
	bound    bool
	speed    float64

	// session identifies the live ticker goroutine. Ticks carrying an older session are dropped.
	session uint64
	ticker  Ticker
	stop    chan struct{}

	listenerMu sync.RWMutex
	listeners  []func(Update)

	newTicker  TickerFactory
	now        func() time.Time
	minTick    time.Duration
	driftEvery int64
	driftSink  DriftSink
	log        *slog.Logger
}

// Option configures a Clock.
type Option func(*Clock)

// WithTickerFactory replaces the wall-clock ticker.
func WithTickerFactory(f TickerFactory) Option {
	return func(c *Clock) { c.newTicker = f }
}

// WithNow replaces the wall clock used for drift measurement.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// WithMinTick sets the lower bound of the tick period.
func WithMinTick(d time.Duration) Option {
	return func(c *Clock) {
		if d > 0 {
			c.minTick = d
		}
	}
}

// WithDriftLogEvery sets how many ticks pass between drift reports.
func WithDriftLogEvery(n int) Option {
	return func(c *Clock) {
		if n > 0 {
			c.driftEvery = int64(n)
		}
	}
}

// WithDriftSink forwards drift samples to s.
func WithDriftSink(s DriftSink) Option {
	return func(c *Clock) { c.driftSink = s }
}

// WithSpeed sets the initial speed multiplier.
func WithSpeed(speed float64) Option {
	return func(c *Clock) {
		if validSpeed(speed) {
			c.speed = speed
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Clock) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClock returns an unbound, stopped clock.
func NewClock(opts ...Option) *Clock {
	c := &Clock{
		speed:      1,
		newTicker:  NewRealTicker,
		now:        time.Now,
		minTick:    DefaultMinTick,
		driftEvery: 10,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// validSpeed accepts whole multipliers of at least 1.
func validSpeed(s float64) bool {
	return s >= 1 && !math.IsInf(s, 0) && s == math.Trunc(s)
}

// OnUpdate registers a listener. Listeners run without the clock lock held
// and on the ticker goroutine for tick updates.
func (c *Clock) OnUpdate(fn func(Update)) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Clock) notify(u Update) {
	c.listenerMu.RLock()
	listeners := slices.Clone(c.listeners)
	c.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(u)
	}
}

func (c *Clock) snapshotLocked(r Reason) Update {
	return Update{Offset: c.offset, Duration: c.duration, State: c.state, Reason: r}
}

// Bind attaches the clock to a scene of the given length in seconds.
// Playback stops and the offset returns to 0.
func (c *Clock) Bind(durationSeconds int64) {
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	c.mu.Lock()
	c.stopLocked()
	c.state = Stopped
	c.offset = 0
	c.duration = durationSeconds
	c.bound = true
	u := c.snapshotLocked(ReasonBind)
	c.mu.Unlock()
	c.notify(u)
}

// Unbind detaches the clock from any scene.
func (c *Clock) Unbind() {
	c.mu.Lock()
	c.stopLocked()
	c.state = Stopped
	c.offset = 0
	c.duration = 0
	c.bound = false
	u := c.snapshotLocked(ReasonBind)
	c.mu.Unlock()
	c.notify(u)
}

// Play starts advancing the offset at the current speed. Playing while already
// playing restarts the ticker with the current speed. Without a scene, or at the
// end of the scene, Play does nothing and returns false.
func (c *Clock) Play() bool {
	c.mu.Lock()
	started, after := c.playLocked()
	c.mu.Unlock()
	after()
	return started
}

// playLocked changes state for Play. The returned func logs, starts the session
// goroutine and notifies; it must run after c.mu is released.
func (c *Clock) playLocked() (bool, func()) {
	if !c.bound {
		return false, func() { c.log.Info("No scene loaded, nothing to play") }
	}
	if c.offset >= c.duration {
		c.stopLocked()
		c.state = Finished
		offset := c.offset
		return false, func() { c.log.Info("Playback already at end of scene", "offset", offset) }
	}

	c.stopLocked()
	c.session++
	session := c.session
	speed := c.speed
	period := TickPeriod(speed, c.minTick)
	t := c.newTicker(period)
	stop := make(chan struct{})
	c.ticker = t
	c.stop = stop
	c.state = Playing
	startOffset := c.offset
	u := c.snapshotLocked(ReasonState)
	started := c.now()

	return true, func() {
		c.log.Debug("Playback started", "session", session, "speed", speed, "period", period, "offset", startOffset)
		go c.run(session, t, stop, period, speed, started)
		c.notify(u)
	}
}

// Pause stops playback, keeping the offset.
func (c *Clock) Pause() {
	c.mu.Lock()
	u, paused := c.pauseLocked()
	c.mu.Unlock()
	if paused {
		c.notify(u)
	}
}

func (c *Clock) pauseLocked() (Update, bool) {
	if c.state != Playing {
		return Update{}, false
	}
	c.stopLocked()
	c.state = Stopped
	return c.snapshotLocked(ReasonState), true
}

// Toggle pauses when playing and plays otherwise. It returns the resulting state.
func (c *Clock) Toggle() State {
	c.mu.Lock()
	if c.state == Playing {
		u, _ := c.pauseLocked()
		c.mu.Unlock()
		c.notify(u)
		return u.State
	}
	_, after := c.playLocked()
	state := c.state
	c.mu.Unlock()
	after()
	return state
}

// Seek moves to offset, clamped into [0, duration]. It does not change whether the clock is playing.
func (c *Clock) Seek(offset int64) int64 {
	c.mu.Lock()
	u := c.seekLocked(offset)
	c.mu.Unlock()
	c.notify(u)
	return u.Offset
}

// Skip moves by delta seconds, clamped into [0, duration].
func (c *Clock) Skip(delta int64) int64 {
	c.mu.Lock()
	u := c.seekLocked(c.offset + delta)
	c.mu.Unlock()
	c.notify(u)
	return u.Offset
}

// Reset stops playback and returns to offset 0.
func (c *Clock) Reset() {
	c.mu.Lock()
	c.stopLocked()
	c.state = Stopped
	u := c.seekLocked(0)
	c.mu.Unlock()
	c.notify(u)
}

// SetSpeed changes the speed multiplier. A running session keeps its speed until the next Play.
func (c *Clock) SetSpeed(speed float64) error {
	if !validSpeed(speed) {
		return fmt.Errorf("%w: speed must be a positive whole number, got %v", core.ErrValidation, speed)
	}
	c.mu.Lock()
	c.speed = speed
	c.mu.Unlock()
	return nil
}

// Close stops any running session.
func (c *Clock) Close() {
	c.Pause()
}

// Speed returns the configured speed multiplier.
func (c *Clock) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// State returns the current state.
func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Offset returns the seconds elapsed since the scene start.
func (c *Clock) Offset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// Duration returns the bound scene length in seconds.
func (c *Clock) Duration() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// Bound reports whether a scene is attached.
func (c *Clock) Bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bound
}

// Status returns the current offset, duration and state.
func (c *Clock) Status() Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(ReasonState)
}

func (c *Clock) seekLocked(offset int64) Update {
	offset = max(0, min(offset, c.duration))
	c.offset = offset
	if c.state == Finished && offset < c.duration {
		c.state = Stopped
	}
	return c.snapshotLocked(ReasonSeek)
}

// stopLocked cancels the live ticker, if any.
func (c *Clock) stopLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

func (c *Clock) run(session uint64, t Ticker, stop <-chan struct{}, period time.Duration, speed float64, started time.Time) {
	var ticks int64
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			ticks++
			if !c.tick(session, ticks, period, speed, started) {
				return
			}
		}
	}
}

// tick advances one second. It returns false once the session is over.
func (c *Clock) tick(session uint64, ticks int64, period time.Duration, speed float64, started time.Time) bool {
	c.mu.Lock()
	if session != c.session || c.state != Playing {
		c.mu.Unlock()
		return false
	}

	c.offset++
	if c.offset >= c.duration {
		c.offset = c.duration
		c.state = Finished
		c.stopLocked()
	}
	u := c.snapshotLocked(ReasonTick)

	var sample *DriftSample
	if ticks%c.driftEvery == 0 {
		now := c.now()
		expected := time.Duration(ticks) * period
		actual := now.Sub(started)
		sample = &DriftSample{
			Session:  session,
			Ticks:    ticks,
			Offset:   c.offset,
			Speed:    speed,
			Period:   period,
			Expected: expected,
			Actual:   actual,
			Drift:    actual - expected,
			Time:     now,
		}
	}
	c.mu.Unlock()

	if sample != nil {
		c.log.Debug("Playback drift",
			"session", sample.Session,
			"ticks", sample.Ticks,
			"expectedMs", sample.Expected.Milliseconds(),
			"actualMs", sample.Actual.Milliseconds(),
			"driftMs", sample.Drift.Milliseconds(),
		)
		if c.driftSink != nil {
			c.driftSink.RecordDrift(*sample)
		}
	}
	if u.State == Finished {
		c.log.Info("Playback reached end of scene", "offset", u.Offset)
	}

	c.notify(u)
	return u.State == Playing
}
