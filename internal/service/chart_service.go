package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/whdcks5588-jpg/chanyview/internal/alert"
	"github.com/whdcks5588-jpg/chanyview/internal/countdown"
	"github.com/whdcks5588-jpg/chanyview/internal/interval"
	"github.com/whdcks5588-jpg/chanyview/internal/metrics"
	"github.com/whdcks5588-jpg/chanyview/internal/model"
	"github.com/whdcks5588-jpg/chanyview/internal/notify"
)

// Feed supplies market data: bulk historical candles and the live tick stream.
type Feed interface {
	FetchCandles(ctx context.Context, symbol string, timeframe model.Timeframe, limit int) ([]model.Candle, error)
	SubscribeTicks(ctx context.Context, symbol string) (<-chan model.Tick, error)
}

// SubscriptionManager fans chart events out to subscribed clients.
type SubscriptionManager interface {
	StartDispatching(ctx context.Context, eventCh <-chan model.Event) error
	Subscribe(timeframes []model.Timeframe) (*Subscriber, error)
	Unsubscribe(sub *Subscriber) error
}

// ChartServiceConfig holds configuration parameters for the ChartService.
type ChartServiceConfig struct {
	// Symbol is the traded pair the chart tracks, e.g. BTCUSDT.
	Symbol string

	// Timeframes lists the chart timeframes to maintain.
	Timeframes []model.Timeframe

	// HistoryLimit bounds the candle window kept and served per timeframe.
	HistoryLimit int
}

// Snapshot is the full state of one timeframe: the candle window and the
// pending alert set. New clients render from this before live events apply.
type Snapshot struct {
	Timeframe model.Timeframe
	Candles   []model.Candle
	Alerts    []model.Alert
}

// ChartService ties the live feed, candle aggregation, alerting and event
// distribution together.
//
// A single run-loop goroutine owns every per-timeframe session and all store
// mutations. Ticks and client commands arrive on channels and are interleaved
// in arrival order, so a tick never races an alert edit and each tick is
// fully processed, candles then alerts, before the next input is examined.
type ChartService struct {
	cfg      ChartServiceConfig
	feed     Feed
	manager  SubscriptionManager
	store    *alert.Store
	sinks    notify.Sink
	sessions map[model.Timeframe]*Session

	events   chan model.Event
	commands chan command
	started  atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
}

type command struct {
	kind      commandKind
	timeframe model.Timeframe
	price     decimal.Decimal
	id        string
	candles   []model.Candle
	reply     chan commandReply
}

type commandKind int

const (
	cmdSeed commandKind = iota
	cmdAddAlert
	cmdRemoveAlert
	cmdSnapshot
)

type commandReply struct {
	alert    model.Alert
	snapshot Snapshot
	err      error
}

// ErrUnknownTimeframe indicates a request for a timeframe the service does
// not maintain.
var ErrUnknownTimeframe = errors.New("unknown timeframe")

// NewChartService creates the service. It does not touch the network until
// Start.
func NewChartService(cfg ChartServiceConfig, feed Feed, manager SubscriptionManager, store *alert.Store, sinks notify.Sink) (*ChartService, error) {
	if feed == nil {
		return nil, errors.New("feed is required")
	}
	if manager == nil {
		return nil, errors.New("subscription manager is required")
	}
	if store == nil {
		return nil, errors.New("alert store is required")
	}
	if cfg.Symbol == "" {
		cfg.Symbol = "BTCUSDT"
	}
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = model.DefaultTimeframes
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 500
	}
	if sinks == nil {
		sinks = notify.MultiSink{}
	}

	return &ChartService{
		cfg:      cfg,
		feed:     feed,
		manager:  manager,
		store:    store,
		sinks:    sinks,
		sessions: make(map[model.Timeframe]*Session),
		events:   make(chan model.Event, 1000),
		commands: make(chan command, 100),
		done:     make(chan struct{}),
	}, nil
}

// Start opens the tick stream, loads persisted alerts, launches the run loop
// with one countdown ticker per timeframe, and kicks off historical seeding in
// the background. It returns once the live pipeline is running; seeding
// completes asynchronously and sessions drop ticks until their seed lands.
func (s *ChartService) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("chart service already started")
	}

	ctx, s.cancel = context.WithCancel(ctx)

	if err := s.manager.StartDispatching(ctx, s.events); err != nil {
		s.cancel()
		s.started.Store(false)
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}

	for _, tf := range s.cfg.Timeframes {
		s.sessions[tf] = NewSession(tf, s.store, s.cfg.HistoryLimit)
		s.store.Load(tf)
	}

	ticks, err := s.feed.SubscribeTicks(ctx, s.cfg.Symbol)
	if err != nil {
		s.cancel()
		s.started.Store(false)
		return fmt.Errorf("failed to subscribe to tick stream: %w", err)
	}

	for _, tf := range s.cfg.Timeframes {
		go countdown.NewTicker(tf).Run(ctx, s.events)
		go s.seedLoop(ctx, tf)
	}

	go s.run(ctx, ticks)

	log.Info().
		Str("symbol", s.cfg.Symbol).
		Interface("timeframes", s.cfg.Timeframes).
		Msg("chart service started")
	return nil
}

// Stop tears the service down. It is idempotent and safe to call while the
// history fetch is still in flight.
func (s *ChartService) Stop() {
	if s.cancel == nil || !s.started.CompareAndSwap(true, false) {
		return
	}
	s.cancel()
	<-s.done
	log.Info().Msg("chart service stopped")
}

// Subscribe registers a client for the given timeframes.
func (s *ChartService) Subscribe(timeframes []model.Timeframe) (*Subscriber, error) {
	for _, tf := range timeframes {
		if _, ok := s.sessions[tf]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTimeframe, tf)
		}
	}
	return s.manager.Subscribe(timeframes)
}

// Unsubscribe releases a client subscription.
func (s *ChartService) Unsubscribe(sub *Subscriber) error {
	return s.manager.Unsubscribe(sub)
}

// AddAlert creates a price alert on a timeframe and broadcasts alert_added.
func (s *ChartService) AddAlert(ctx context.Context, timeframe model.Timeframe, price decimal.Decimal) (model.Alert, error) {
	reply, err := s.send(ctx, command{kind: cmdAddAlert, timeframe: timeframe, price: price})
	if err != nil {
		return model.Alert{}, err
	}
	return reply.alert, reply.err
}

// RemoveAlert deletes an alert by id and broadcasts alert_removed. Removing
// an unknown id is a no-op.
func (s *ChartService) RemoveAlert(ctx context.Context, timeframe model.Timeframe, id string) error {
	reply, err := s.send(ctx, command{kind: cmdRemoveAlert, timeframe: timeframe, id: id})
	if err != nil {
		return err
	}
	return reply.err
}

// Snapshot returns the current candle window and alert set of a timeframe.
func (s *ChartService) Snapshot(ctx context.Context, timeframe model.Timeframe) (Snapshot, error) {
	reply, err := s.send(ctx, command{kind: cmdSnapshot, timeframe: timeframe})
	if err != nil {
		return Snapshot{}, err
	}
	return reply.snapshot, reply.err
}

// send routes a command into the run loop and waits for its reply.
func (s *ChartService) send(ctx context.Context, cmd command) (commandReply, error) {
	if !s.started.Load() {
		return commandReply{}, errors.New("chart service not started")
	}

	cmd.reply = make(chan commandReply, 1)
	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return commandReply{}, ctx.Err()
	case <-s.done:
		return commandReply{}, errors.New("chart service stopped")
	}

	select {
	case reply := <-cmd.reply:
		return reply, nil
	case <-ctx.Done():
		return commandReply{}, ctx.Err()
	case <-s.done:
		return commandReply{}, errors.New("chart service stopped")
	}
}

// run is the event loop. It alone touches the sessions, so candle state and
// alert sweeps need no locking.
func (s *ChartService) run(ctx context.Context, ticks <-chan model.Tick) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ticks:
			if !ok {
				log.Error().Msg("tick stream closed, chart service stopping")
				return
			}
			s.handleTick(ctx, tick)
		case cmd := <-s.commands:
			s.handleCommand(cmd)
		}
	}
}

// handleTick folds one trade into every timeframe and reports any alerts it
// tripped. Sinks are notified before the alert_fired event is published so
// out-of-band delivery is already underway when clients render the toast.
func (s *ChartService) handleTick(ctx context.Context, tick model.Tick) {
	metrics.TicksConsumed.Inc()
	lastPrice, _ := tick.Price.Float64()
	metrics.LastPrice.Set(lastPrice)

	for _, tf := range s.cfg.Timeframes {
		session := s.sessions[tf]

		candleEvent, fired := session.HandleTick(tick)
		if candleEvent != nil {
			if candleEvent.Kind == model.EventNewCandle {
				metrics.CandlesOpened.WithLabelValues(string(tf)).Inc()
			}
			s.publish(*candleEvent)
		}

		for _, a := range fired {
			metrics.AlertsFired.WithLabelValues(string(tf)).Inc()
			s.sinks.Notify(ctx, notify.Notification{
				Symbol:    s.cfg.Symbol,
				Timeframe: tf,
				Alert:     a,
				Price:     tick.Price,
				Time:      time.Unix(tick.Time, 0),
			})
			firedAlert := a
			price := tick.Price
			s.publish(model.Event{
				Kind:      model.EventAlertFired,
				Timeframe: tf,
				Alert:     &firedAlert,
				Price:     &price,
			})
		}
	}
}

func (s *ChartService) handleCommand(cmd command) {
	session, ok := s.sessions[cmd.timeframe]
	if !ok && cmd.kind != cmdSeed {
		cmd.reply <- commandReply{err: fmt.Errorf("%w: %s", ErrUnknownTimeframe, cmd.timeframe)}
		return
	}

	switch cmd.kind {
	case cmdSeed:
		if session == nil {
			return
		}
		if session.SeedHistory(cmd.candles) {
			log.Info().
				Str("timeframe", string(cmd.timeframe)).
				Int("candles", len(cmd.candles)).
				Msg("timeframe seeded")
		}

	case cmdAddAlert:
		a, err := s.store.Add(cmd.timeframe, cmd.price)
		if err == nil {
			added := a
			s.publish(model.Event{
				Kind:      model.EventAlertAdded,
				Timeframe: cmd.timeframe,
				Alert:     &added,
			})
		}
		cmd.reply <- commandReply{alert: a, err: err}

	case cmdRemoveAlert:
		err := s.store.Remove(cmd.timeframe, cmd.id)
		if err == nil {
			removed := model.Alert{ID: cmd.id}
			s.publish(model.Event{
				Kind:      model.EventAlertRemoved,
				Timeframe: cmd.timeframe,
				Alert:     &removed,
			})
		}
		cmd.reply <- commandReply{err: err}

	case cmdSnapshot:
		cmd.reply <- commandReply{snapshot: Snapshot{
			Timeframe: cmd.timeframe,
			Candles:   session.History(),
			Alerts:    s.store.List(cmd.timeframe),
		}}
	}
}

// publish hands an event to the dispatcher, dropping it if the buffer is
// full. The dispatcher applies its own per-subscriber overflow policy.
func (s *ChartService) publish(ev model.Event) {
	select {
	case s.events <- ev:
	default:
		log.Warn().Str("kind", string(ev.Kind)).Msg("event buffer full, dropping event")
	}
}

// seedLoop fetches the historical window for one timeframe and feeds it to
// the run loop. An empty or failed fetch leaves the session unseeded and is
// retried once per timeframe duration until it succeeds or the context ends.
func (s *ChartService) seedLoop(ctx context.Context, timeframe model.Timeframe) {
	retry := time.Duration(interval.Duration(string(timeframe))) * time.Second

	for {
		candles, err := s.feed.FetchCandles(ctx, s.cfg.Symbol, timeframe, s.cfg.HistoryLimit)
		switch {
		case err != nil:
			log.Warn().Err(err).
				Str("timeframe", string(timeframe)).
				Msg("history fetch failed, will retry")
		case len(candles) == 0:
			log.Warn().
				Str("timeframe", string(timeframe)).
				Msg("history fetch returned no candles, will retry")
		default:
			select {
			case s.commands <- command{kind: cmdSeed, timeframe: timeframe, candles: candles}:
			case <-ctx.Done():
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}
