package playback

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/scene-engine/pkg/core"
)

type fakeTicker struct {
	ch      chan time.Time
	period  time.Duration
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

type fakeFactory struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (f *fakeFactory) New(period time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time), period: period}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

func (f *fakeFactory) last() *fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickers[len(f.tickers)-1]
}

type fakeNow struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeNow) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

type recordingSink struct {
	mu      sync.Mutex
	samples []DriftSample
}

func (r *recordingSink) RecordDrift(s DriftSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

func (r *recordingSink) all() []DriftSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DriftSample(nil), r.samples...)
}

type harness struct {
	clock   *Clock
	factory *fakeFactory
	now     *fakeNow
	sink    *recordingSink
	updates chan Update
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newHarness(opts ...Option) *harness {
	h := &harness{
		factory: &fakeFactory{},
		now:     &fakeNow{now: epoch},
		sink:    &recordingSink{},
		updates: make(chan Update, 1024),
	}
	all := append([]Option{
		WithTickerFactory(h.factory.New),
		WithNow(h.now.Now),
		WithDriftSink(h.sink),
	}, opts...)
	h.clock = NewClock(all...)
	h.clock.OnUpdate(func(u Update) { h.updates <- u })
	return h
}

// tick delivers one tick to the live ticker and waits for the clock to process it.
func (h *harness) tick(t *testing.T) Update {
	t.Helper()
	select {
	case h.factory.last().ch <- epoch:
	case <-time.After(2 * time.Second):
		t.Fatal("ticker goroutine not receiving")
	}
	return h.waitFor(t, ReasonTick)
}

func (h *harness) waitFor(t *testing.T, r Reason) Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-h.updates:
			if u.Reason == r {
				return u
			}
		case <-deadline:
			t.Fatalf("no %s update", r)
			return Update{}
		}
	}
}

func TestTickPeriod(t *testing.T) {
	tests := []struct {
		speed float64
		want  time.Duration
	}{
		{1, time.Second},
		{2, 500 * time.Millisecond},
		{3, 333 * time.Millisecond},
		{10, 100 * time.Millisecond},
		{100, 10 * time.Millisecond},
		{200, 10 * time.Millisecond},
		{1000, 10 * time.Millisecond},
		{0.5, 2 * time.Second},
		{0, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TickPeriod(tt.speed, DefaultMinTick), "speed %v", tt.speed)
	}
}

func TestPlay_NoScene(t *testing.T) {
	h := newHarness()
	assert.False(t, h.clock.Play())
	assert.Equal(t, Stopped, h.clock.State())
	assert.Zero(t, h.factory.count())
}

func TestPlay_TenTicksAtSpeedTen(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.clock.SetSpeed(10))
	h.clock.Bind(3600)
	require.True(t, h.clock.Play())
	assert.Equal(t, 100*time.Millisecond, h.factory.last().period)

	for i := 0; i < 9; i++ {
		h.tick(t)
	}
	// 1.5s of wall time for 1s of expected ticking
	h.now.Set(epoch.Add(1500 * time.Millisecond))
	u := h.tick(t)

	assert.Equal(t, int64(10), u.Offset)
	assert.Equal(t, Playing, u.State)
	assert.Equal(t, int64(10), h.clock.Offset())

	samples := h.sink.all()
	require.Len(t, samples, 1)
	assert.Equal(t, int64(10), samples[0].Ticks)
	assert.Equal(t, time.Second, samples[0].Expected)
	assert.Equal(t, 1500*time.Millisecond, samples[0].Actual)
	assert.Equal(t, 500*time.Millisecond, samples[0].Drift)
	assert.Equal(t, 10.0, samples[0].Speed)

	h.clock.Pause()
}

func TestPlay_FinishesAtDuration(t *testing.T) {
	h := newHarness()
	h.clock.Bind(3)
	require.True(t, h.clock.Play())

	h.tick(t)
	h.tick(t)
	u := h.tick(t)

	assert.Equal(t, int64(3), u.Offset)
	assert.Equal(t, Finished, u.State)
	assert.True(t, h.factory.last().stopped.Load())

	assert.False(t, h.clock.Play())
	assert.Equal(t, Finished, h.clock.State())
	assert.Equal(t, int64(3), h.clock.Offset())
	assert.Equal(t, 1, h.factory.count())
}

func TestSeek_FromFinishedAllowsReplay(t *testing.T) {
	h := newHarness()
	h.clock.Bind(1)
	require.True(t, h.clock.Play())
	require.Equal(t, Finished, h.tick(t).State)

	h.clock.Seek(0)
	assert.Equal(t, Stopped, h.clock.State())
	assert.True(t, h.clock.Play())
	h.clock.Pause()
}

func TestPause_KeepsOffsetAndDropsStaleTicks(t *testing.T) {
	h := newHarness()
	h.clock.Bind(100)
	require.True(t, h.clock.Play())
	first := h.factory.last()
	h.tick(t)
	h.tick(t)

	h.clock.Pause()
	assert.Equal(t, Stopped, h.clock.State())
	assert.Equal(t, int64(2), h.clock.Offset())
	assert.True(t, first.stopped.Load())

	require.True(t, h.clock.Play())
	assert.Equal(t, 2, h.factory.count())

	// a tick still in flight from the first session is ignored
	assert.False(t, h.clock.tick(1, 3, time.Second, 1, epoch))
	assert.Equal(t, int64(2), h.clock.Offset())

	u := h.tick(t)
	assert.Equal(t, int64(3), u.Offset)
	h.clock.Pause()
}

func TestPlay_WhilePlayingRestartsSingleTicker(t *testing.T) {
	h := newHarness()
	h.clock.Bind(100)
	require.True(t, h.clock.Play())
	first := h.factory.last()

	require.NoError(t, h.clock.SetSpeed(2))
	require.True(t, h.clock.Play())
	second := h.factory.last()

	assert.True(t, first.stopped.Load())
	assert.False(t, second.stopped.Load())
	assert.Equal(t, 500*time.Millisecond, second.period)
	h.clock.Pause()
	assert.True(t, second.stopped.Load())
}

func TestSpeedCapturedAtPlayStart(t *testing.T) {
	h := newHarness()
	h.clock.Bind(100)
	require.True(t, h.clock.Play())
	require.NoError(t, h.clock.SetSpeed(4))

	assert.Equal(t, time.Second, h.factory.last().period)
	assert.Equal(t, 4.0, h.clock.Speed())
	assert.Equal(t, 1, h.factory.count())
	h.clock.Pause()
}

func TestSetSpeed_Invalid(t *testing.T) {
	h := newHarness()
	assert.ErrorIs(t, h.clock.SetSpeed(0), core.ErrValidation)
	assert.ErrorIs(t, h.clock.SetSpeed(-1), core.ErrValidation)
	assert.ErrorIs(t, h.clock.SetSpeed(0.5), core.ErrValidation)
	assert.ErrorIs(t, h.clock.SetSpeed(2.5), core.ErrValidation)
	assert.ErrorIs(t, h.clock.SetSpeed(math.NaN()), core.ErrValidation)
	assert.ErrorIs(t, h.clock.SetSpeed(math.Inf(1)), core.ErrValidation)
	assert.Equal(t, 1.0, h.clock.Speed())

	h = newHarness(WithSpeed(0.5))
	assert.Equal(t, 1.0, h.clock.Speed())
}

func TestSeekAndSkipClamp(t *testing.T) {
	h := newHarness()
	h.clock.Bind(3600)

	assert.Equal(t, int64(50), h.clock.Seek(50))
	assert.Equal(t, int64(0), h.clock.Skip(-999999))
	assert.Equal(t, int64(50), h.clock.Seek(50))
	assert.Equal(t, int64(3600), h.clock.Skip(999999))
	assert.Equal(t, int64(0), h.clock.Seek(-1))
	assert.Equal(t, int64(3600), h.clock.Seek(10000))
	assert.Equal(t, int64(3590), h.clock.Skip(-10))
	assert.Equal(t, Stopped, h.clock.State())
}

func TestSeek_WhilePlayingKeepsPlaying(t *testing.T) {
	h := newHarness()
	h.clock.Bind(100)
	require.True(t, h.clock.Play())

	h.clock.Seek(40)
	assert.Equal(t, Playing, h.clock.State())
	u := h.tick(t)
	assert.Equal(t, int64(41), u.Offset)
	h.clock.Pause()
}

func TestSeek_Unbound(t *testing.T) {
	h := newHarness()
	assert.Equal(t, int64(0), h.clock.Seek(30))
}

func TestReset(t *testing.T) {
	h := newHarness()
	h.clock.Bind(100)
	require.True(t, h.clock.Play())
	h.tick(t)

	h.clock.Reset()
	assert.Equal(t, Stopped, h.clock.State())
	assert.Equal(t, int64(0), h.clock.Offset())
	assert.True(t, h.factory.last().stopped.Load())
}

func TestToggle(t *testing.T) {
	h := newHarness()
	assert.Equal(t, Stopped, h.clock.Toggle())

	h.clock.Bind(100)
	assert.Equal(t, Playing, h.clock.Toggle())
	assert.Equal(t, Stopped, h.clock.Toggle())
}

func TestToggle_PauseDoesNotRestartAfterFinish(t *testing.T) {
	h := newHarness()
	h.clock.Bind(2)
	require.Equal(t, Playing, h.clock.Toggle())
	h.tick(t)
	u := h.tick(t)
	require.Equal(t, Finished, u.State)

	// the toggle after the session ended by itself must not start a new one
	assert.Equal(t, Finished, h.clock.Toggle())
	assert.Equal(t, 1, h.factory.count())
	assert.Equal(t, int64(2), h.clock.Offset())
}

func TestToggle_ConcurrentWithTicks(t *testing.T) {
	h := newHarness(WithSpeed(100))
	h.clock.Bind(50)
	require.True(t, h.clock.Play())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := h.clock.Toggle()
			assert.Contains(t, []State{Playing, Stopped, Finished}, st)
		}()
	}
	wg.Wait()

	h.clock.Pause()
	assert.NotEqual(t, Playing, h.clock.State())
	assert.LessOrEqual(t, h.clock.Offset(), int64(50))
}

func TestBindAndUnbindResetPlayback(t *testing.T) {
	h := newHarness()
	h.clock.Bind(100)
	require.True(t, h.clock.Play())
	h.tick(t)

	h.clock.Bind(50)
	st := h.clock.Status()
	assert.Equal(t, Update{Offset: 0, Duration: 50, State: Stopped, Reason: ReasonState}, st)
	assert.True(t, h.factory.last().stopped.Load())

	h.clock.Unbind()
	assert.False(t, h.clock.Bound())
	assert.False(t, h.clock.Play())
}

func TestDriftLogEvery(t *testing.T) {
	h := newHarness(WithDriftLogEvery(2))
	h.clock.Bind(100)
	require.True(t, h.clock.Play())
	for i := 0; i < 5; i++ {
		h.tick(t)
	}
	h.clock.Pause()

	samples := h.sink.all()
	require.Len(t, samples, 2)
	assert.Equal(t, int64(2), samples[0].Ticks)
	assert.Equal(t, int64(4), samples[1].Ticks)
}

func TestOffsetMonotonicWhilePlaying(t *testing.T) {
	h := newHarness(WithSpeed(100))
	h.clock.Bind(20)
	require.True(t, h.clock.Play())

	var last int64
	for {
		u := h.tick(t)
		assert.GreaterOrEqual(t, u.Offset, last)
		assert.LessOrEqual(t, u.Offset, int64(20))
		last = u.Offset
		if u.State != Playing {
			break
		}
	}
	assert.Equal(t, int64(20), last)
	assert.Equal(t, Finished, h.clock.State())
}
