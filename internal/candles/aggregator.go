// Package candles implements streaming tick-to-candle aggregation for a
// single timeframe.
//
// One Aggregator instance owns the in-progress candle of one timeframe. It is
// not safe for concurrent use on its own; the service layer drives every
// aggregator from a single event-loop goroutine, which serializes all state
// transitions without locking.
package candles

import (
	"github.com/rs/zerolog/log"

	"github.com/whdcks5588-jpg/chanyview/internal/interval"
	"github.com/whdcks5588-jpg/chanyview/internal/model"
)

// Aggregator folds incoming ticks into the currently open candle of one
// timeframe, rolling over to a fresh candle whenever a tick lands past the
// current candle's boundary.
//
// The aggregator must be seeded with the last closed historical candle before
// it processes ticks; ticks arriving before the seed are dropped silently.
type Aggregator struct {
	timeframe model.Timeframe
	duration  int64
	current   *model.Candle
}

// NewAggregator creates an aggregator for the given timeframe. The candle
// duration is derived from the timeframe label; unparseable labels fall back
// to the default duration rather than failing.
func NewAggregator(timeframe model.Timeframe) *Aggregator {
	return &Aggregator{
		timeframe: timeframe,
		duration:  interval.Duration(string(timeframe)),
	}
}

// Timeframe returns the timeframe this aggregator serves.
func (a *Aggregator) Timeframe() model.Timeframe {
	return a.timeframe
}

// Duration returns the candle duration in seconds.
func (a *Aggregator) Duration() int64 {
	return a.duration
}

// Seed installs the starting candle, normally the last closed candle from the
// historical fetch. Called once per timeframe before live ticks flow.
func (a *Aggregator) Seed(c model.Candle) {
	seeded := c
	a.current = &seeded
}

// Seeded reports whether the aggregator holds a current candle.
func (a *Aggregator) Seeded() bool {
	return a.current != nil
}

// Current returns a copy of the in-progress candle, if any.
func (a *Aggregator) Current() (model.Candle, bool) {
	if a.current == nil {
		return model.Candle{}, false
	}
	return *a.current, true
}

// Fold incorporates one tick into the aggregator state and returns the event
// the rendering surface must apply.
//
// A tick whose boundary lies strictly past the current candle's open time
// starts a fresh candle and yields EventNewCandle (append a bar). Any other
// tick, including one whose boundary equals the current open time and late
// ticks from before it, mutates the open candle in place and yields
// EventUpdateCandle (replace the last bar). Late ticks are deliberately
// folded rather than rejected; the upstream feed delivers in arrival order.
//
// Before seeding Fold drops the tick and returns ok=false.
func (a *Aggregator) Fold(tick model.Tick) (model.Event, bool) {
	if a.current == nil {
		log.Debug().
			Str("timeframe", string(a.timeframe)).
			Int64("time", tick.Time).
			Msg("tick before seed, dropping")
		return model.Event{}, false
	}

	boundary := interval.BoundaryOf(tick.Time, a.duration)

	if boundary > a.current.Time {
		fresh := model.Candle{
			Time:  boundary,
			Open:  tick.Price,
			High:  tick.Price,
			Low:   tick.Price,
			Close: tick.Price,
		}
		a.current = &fresh
		return a.event(model.EventNewCandle), true
	}

	a.current.Close = tick.Price
	if tick.Price.GreaterThan(a.current.High) {
		a.current.High = tick.Price
	}
	if tick.Price.LessThan(a.current.Low) {
		a.current.Low = tick.Price
	}
	return a.event(model.EventUpdateCandle), true
}

// event snapshots the current candle into an outbound event. The copy keeps
// consumers from observing later in-place mutations.
func (a *Aggregator) event(kind model.EventKind) model.Event {
	snapshot := *a.current
	return model.Event{
		Kind:      kind,
		Timeframe: a.timeframe,
		Candle:    &snapshot,
	}
}
