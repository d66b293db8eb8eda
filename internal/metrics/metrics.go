// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksConsumed counts live trade ticks taken off the feed.
	TicksConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chanyview_ticks_consumed_total",
		Help: "Number of live trade ticks consumed from the exchange feed.",
	})

	// CandlesOpened counts boundary rollovers per timeframe.
	CandlesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chanyview_candles_opened_total",
		Help: "Number of new candles opened by boundary rollover.",
	}, []string{"timeframe"})

	// AlertsFired counts triggered price alerts per timeframe.
	AlertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chanyview_alerts_fired_total",
		Help: "Number of price alerts triggered.",
	}, []string{"timeframe"})

	// LastPrice tracks the most recent observed trade price.
	LastPrice = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chanyview_last_price",
		Help: "Most recent trade price observed on the live feed.",
	})

	// ClientsConnected tracks active chart client connections.
	ClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chanyview_clients_connected",
		Help: "Number of chart clients currently connected.",
	})
)
