// Package model defines core data types for the chart streaming service.
//
// This package contains the fundamental structures shared across the system:
// candles, ticks, timeframes, price alerts and the events pushed to chart
// clients. All prices use decimal.Decimal to avoid floating-point precision
// issues common in financial applications.
package model

import (
	"github.com/shopspring/decimal"
)

// Timeframe identifies one of the fixed candle durations displayed in
// parallel (e.g. "3m", "1h", "4h"). Each timeframe owns its own aggregator
// and alert partition; two timeframes never share state.
type Timeframe string

// DefaultTimeframes lists the timeframes served when none are configured.
var DefaultTimeframes = []Timeframe{"3m", "1h", "4h"}

// Candle is an aggregated open/high/low/close bar over one fixed time bucket.
//
// Time is the candle open timestamp in Unix seconds, always aligned to an
// exact multiple of the timeframe's duration. The invariant
// low <= open,close <= high holds for every candle the system produces.
type Candle struct {
	Time  int64           `json:"time"`
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}

// Tick is a single observed trade from the live feed: price plus the trade
// time in Unix seconds. Ticks are ephemeral; they are folded into the open
// candle and checked against alerts, then discarded.
type Tick struct {
	Price decimal.Decimal `json:"price"`
	Time  int64           `json:"time"`
}

// Alert is a price threshold placed by a user on one timeframe's chart.
// The id is unique within its timeframe partition only. Any visual marker
// attached to an alert is a runtime-only concern of the rendering client
// and never enters this type.
type Alert struct {
	ID    string          `json:"id"`
	Price decimal.Decimal `json:"price"`
}

// EventKind discriminates the events streamed to chart clients.
type EventKind string

const (
	// EventNewCandle instructs the client to append a fresh bar.
	EventNewCandle EventKind = "new_candle"

	// EventUpdateCandle instructs the client to replace its last bar in place.
	EventUpdateCandle EventKind = "update_candle"

	// EventCountdown carries the time remaining in the open candle.
	EventCountdown EventKind = "countdown"

	// EventAlertFired announces a triggered alert; the client removes the
	// threshold marker, shows a toast and plays its alert tone.
	EventAlertFired EventKind = "alert_fired"

	// EventAlertAdded announces a newly placed alert so every client can
	// draw its threshold marker.
	EventAlertAdded EventKind = "alert_added"

	// EventAlertRemoved announces an explicit alert deletion.
	EventAlertRemoved EventKind = "alert_removed"

	// EventSnapshot delivers the historical candles and active alerts of a
	// timeframe right after subscription.
	EventSnapshot EventKind = "snapshot"

	// EventError reports a rejected client command.
	EventError EventKind = "error"
)

// Countdown is the payload of an EventCountdown: seconds remaining until the
// next candle boundary plus the preformatted display string (H:MM:SS when an
// hour or more remains, MM:SS otherwise).
type Countdown struct {
	Remaining int64  `json:"remaining"`
	Display   string `json:"display"`
}

// Event is the single wire type pushed to chart clients. Kind determines
// which optional payload fields are set.
//
// new_candle/update_candle carry Candle; countdown carries Countdown;
// alert_added/alert_removed/alert_fired carry Alert (alert_fired also sets
// Price to the trade price that tripped the threshold); snapshot carries
// Candles and Alerts; error carries Message.
type Event struct {
	Kind      EventKind        `json:"kind"`
	Timeframe Timeframe        `json:"timeframe,omitempty"`
	Candle    *Candle          `json:"candle,omitempty"`
	Countdown *Countdown       `json:"countdown,omitempty"`
	Alert     *Alert           `json:"alert,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Candles   []Candle         `json:"candles,omitempty"`
	Alerts    []Alert          `json:"alerts,omitempty"`
	Message   string           `json:"message,omitempty"`
}
