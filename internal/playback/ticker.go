package playback

import (
	"math"
	"time"
)

// DefaultMinTick is the shortest tick period regardless of speed.
const DefaultMinTick = 10 * time.Millisecond

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker with the given period.
type TickerFactory func(period time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker is the wall-clock TickerFactory.
func NewRealTicker(period time.Duration) Ticker {
	return realTicker{t: time.NewTicker(period)}
}

// TickPeriod returns max(minTick, floor(1000ms / speed)).
func TickPeriod(speed float64, minTick time.Duration) time.Duration {
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		speed = 1
	}
	period := time.Duration(math.Floor(1000/speed)) * time.Millisecond
	if period < minTick {
		return minTick
	}
	return period
}
