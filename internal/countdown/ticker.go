// Package countdown implements the free-running time-remaining display feed.
//
// The ticker is deliberately decoupled from tick arrival: it recomputes the
// remaining time from the wall clock alone on its own one-second cadence, so
// the display keeps counting down even when the market is silent and cannot
// drift when ticks are missed. The directional recoloring of the same display
// element is a separate producer, driven by candle update events on the
// client side.
package countdown

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/whdcks5588-jpg/chanyview/internal/interval"
	"github.com/whdcks5588-jpg/chanyview/internal/model"
)

// Ticker emits one countdown event per second for a single timeframe.
type Ticker struct {
	timeframe model.Timeframe
	duration  int64

	// cadence and now are fixed in NewTicker and only varied by tests.
	cadence time.Duration
	now     func() time.Time
}

// NewTicker creates a countdown ticker for the given timeframe.
func NewTicker(timeframe model.Timeframe) *Ticker {
	return &Ticker{
		timeframe: timeframe,
		duration:  interval.Duration(string(timeframe)),
		cadence:   time.Second,
		now:       time.Now,
	}
}

// Run emits countdown events until the context is cancelled. Events are
// dropped rather than buffered when the consumer is behind; the next second
// carries a fresher value anyway.
func (t *Ticker) Run(ctx context.Context, out chan<- model.Event) {
	ticker := time.NewTicker(t.cadence)
	defer ticker.Stop()

	log.Debug().Str("timeframe", string(t.timeframe)).Msg("countdown ticker started")
	defer log.Debug().Str("timeframe", string(t.timeframe)).Msg("countdown ticker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			remaining := interval.Remaining(t.now().Unix(), t.duration)
			ev := model.Event{
				Kind:      model.EventCountdown,
				Timeframe: t.timeframe,
				Countdown: &model.Countdown{
					Remaining: remaining,
					Display:   interval.FormatRemaining(remaining),
				},
			}
			select {
			case out <- ev:
			default:
			}
		}
	}
}
