package alert

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/whdcks5588-jpg/chanyview/internal/model"
)

// Engine detects threshold crossings for one timeframe's alert set.
//
// The engine remembers the previously observed tick price and, for every new
// tick, fires each stored alert whose threshold was crossed between the two
// prices, or touched exactly by the new one. A fired alert is removed from
// the store before the result is returned, so a price lingering exactly on a
// threshold across several ticks can never re-trigger it.
//
// The previous price starts absent and is never seeded from history: before
// the first live tick there is no observed price to cross from, so the very
// first tick can only trigger the exact-touch clause.
type Engine struct {
	timeframe model.Timeframe
	store     *Store
	prev      decimal.Decimal
	hasPrev   bool
}

// NewEngine creates the alert engine paired with a timeframe's store partition.
func NewEngine(timeframe model.Timeframe, store *Store) *Engine {
	return &Engine{timeframe: timeframe, store: store}
}

// Check evaluates every stored alert against the previous and current tick
// price and returns the alerts that fired, already removed from the store.
// The previous price is updated regardless of whether anything fired.
func (e *Engine) Check(tick model.Tick) []model.Alert {
	var fired []model.Alert
	for _, a := range e.store.List(e.timeframe) {
		if !e.crossed(a.Price, tick.Price) {
			continue
		}
		// Remove before reporting: at-most-once even if the caller re-enters.
		if err := e.store.Remove(e.timeframe, a.ID); err != nil {
			log.Warn().Err(err).
				Str("timeframe", string(e.timeframe)).
				Str("alert_id", a.ID).
				Msg("failed to persist alert removal")
		}
		fired = append(fired, a)
	}

	e.prev = tick.Price
	e.hasPrev = true
	return fired
}

// crossed reports whether a threshold fires against the current price: an
// exact touch, an upward cross prev < p <= cur, or a downward cross
// prev > p >= cur. Crossing clauses require a previous price.
func (e *Engine) crossed(threshold, current decimal.Decimal) bool {
	if current.Equal(threshold) {
		return true
	}
	if !e.hasPrev {
		return false
	}
	if e.prev.LessThan(threshold) && threshold.LessThan(current) {
		return true
	}
	if e.prev.GreaterThan(threshold) && threshold.GreaterThan(current) {
		return true
	}
	return false
}
