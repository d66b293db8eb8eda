// Package service contains the core orchestration: per-timeframe sessions,
// the event fan-out dispatcher, and the chart service tying the live feed,
// aggregation, alerting and distribution together.
package service

import (
	"github.com/whdcks5588-jpg/chanyview/internal/alert"
	"github.com/whdcks5588-jpg/chanyview/internal/candles"
	"github.com/whdcks5588-jpg/chanyview/internal/model"
)

// Session bundles the mutable per-timeframe state: the candle aggregator,
// the alert engine, and a bounded window of recent candles served to newly
// connecting clients as their initial chart data.
//
// Sessions are not safe for concurrent use; the chart service drives all of
// them from its single event-loop goroutine. Timeframes never share a
// session, so no cross-timeframe coordination exists anywhere.
type Session struct {
	timeframe  model.Timeframe
	aggregator *candles.Aggregator
	engine     *alert.Engine
	history    []model.Candle
	limit      int
}

// NewSession creates the session for one timeframe, pairing a fresh
// aggregator with an alert engine over the store's matching partition.
func NewSession(timeframe model.Timeframe, store *alert.Store, historyLimit int) *Session {
	if historyLimit <= 0 {
		historyLimit = 500
	}
	return &Session{
		timeframe:  timeframe,
		aggregator: candles.NewAggregator(timeframe),
		engine:     alert.NewEngine(timeframe, store),
		limit:      historyLimit,
	}
}

// Timeframe returns the timeframe this session serves.
func (s *Session) Timeframe() model.Timeframe {
	return s.timeframe
}

// Seeded reports whether historical data has arrived.
func (s *Session) Seeded() bool {
	return s.aggregator.Seeded()
}

// SeedHistory installs the fetched candles, seeding the aggregator with the
// newest one as the in-progress candle. An empty fetch is tolerated: the
// session stays unseeded and keeps dropping ticks until a later seed lands.
func (s *Session) SeedHistory(history []model.Candle) bool {
	if len(history) == 0 {
		return false
	}

	if len(history) > s.limit {
		history = history[len(history)-s.limit:]
	}
	s.history = make([]model.Candle, len(history))
	copy(s.history, history)

	s.aggregator.Seed(s.history[len(s.history)-1])
	return true
}

// History returns a copy of the candle window, oldest first, with the
// in-progress candle last.
func (s *Session) History() []model.Candle {
	out := make([]model.Candle, len(s.history))
	copy(out, s.history)
	return out
}

// HandleTick folds one tick into the candle state and sweeps the alert set.
// It returns the candle event to broadcast (absent before seeding) and the
// batch of alerts that fired.
func (s *Session) HandleTick(tick model.Tick) (*model.Event, []model.Alert) {
	var candleEvent *model.Event
	if ev, ok := s.aggregator.Fold(tick); ok {
		s.applyToHistory(ev)
		candleEvent = &ev
	}

	fired := s.engine.Check(tick)
	return candleEvent, fired
}

// applyToHistory mirrors the append/replace-last contract of the rendering
// surface onto the in-memory candle window.
func (s *Session) applyToHistory(ev model.Event) {
	switch ev.Kind {
	case model.EventNewCandle:
		s.history = append(s.history, *ev.Candle)
		if len(s.history) > s.limit {
			s.history = s.history[1:]
		}
	case model.EventUpdateCandle:
		if len(s.history) > 0 {
			s.history[len(s.history)-1] = *ev.Candle
		}
	}
}
