package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/whdcks5588-jpg/chanyview/internal/model"
	"github.com/whdcks5588-jpg/chanyview/internal/utils"
)

// Subscriber represents one chart client's subscription to a set of
// timeframes. Each subscriber owns a buffered event channel; slow consumers
// lose their oldest buffered event rather than stalling the fan-out.
type Subscriber struct {
	id         int64
	ch         chan model.Event
	timeframes map[model.Timeframe]struct{}
}

// Events returns the subscriber's event stream. The channel is closed on
// unsubscribe or dispatcher shutdown.
func (s *Subscriber) Events() <-chan model.Event {
	return s.ch
}

// DispatcherConfig holds configuration parameters for the Dispatcher.
type DispatcherConfig struct {
	// MaxTimeframes caps the number of timeframes per subscription.
	MaxTimeframes int

	// SubscriberBuffer is the per-client event buffer size.
	SubscriberBuffer int
}

// Dispatcher fans chart events out to subscribers.
//
// It follows the actor model: a single goroutine owns the subscriber map and
// processes subscription requests, unsubscription requests and events from
// channels, so no mutex is needed and delivery order per subscriber matches
// the event input order.
type Dispatcher struct {
	cfg              DispatcherConfig
	subscribers      map[int64]*Subscriber
	subscriptionCh   chan *Subscriber
	unsubscriptionCh chan *Subscriber
	started          atomic.Bool
	randIDGen        *rand.Rand
}

// NewDispatcher creates a Dispatcher with the provided configuration.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.MaxTimeframes <= 0 {
		cfg.MaxTimeframes = 10
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 100
	}
	return &Dispatcher{
		cfg:              cfg,
		subscribers:      make(map[int64]*Subscriber),
		subscriptionCh:   make(chan *Subscriber, 10),
		unsubscriptionCh: make(chan *Subscriber, 10),
		randIDGen:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Subscribe registers interest in the given timeframes and returns the
// subscription handle.
func (d *Dispatcher) Subscribe(timeframes []model.Timeframe) (*Subscriber, error) {
	if !d.started.Load() {
		return nil, errors.New("dispatcher not started")
	}

	if err := utils.ValidateTimeframes(timeframes, d.cfg.MaxTimeframes); err != nil {
		return nil, err
	}

	tfSet := make(map[model.Timeframe]struct{}, len(timeframes))
	for _, tf := range timeframes {
		tfSet[tf] = struct{}{}
	}

	sub := &Subscriber{
		id:         d.randIDGen.Int63(),
		ch:         make(chan model.Event, d.cfg.SubscriberBuffer),
		timeframes: tfSet,
	}

	select {
	case d.subscriptionCh <- sub:
	default:
		return nil, fmt.Errorf("subscription channel is full")
	}

	return sub, nil
}

// Unsubscribe removes a subscriber. It is idempotent: unsubscribing an
// already-removed subscriber is a no-op.
func (d *Dispatcher) Unsubscribe(sub *Subscriber) error {
	select {
	case d.unsubscriptionCh <- sub:
		return nil
	default:
		return fmt.Errorf("unsubscription channel is full")
	}
}

// StartDispatching starts the dispatcher goroutine consuming events from
// eventCh until the context ends. All subscriber channels are closed on
// shutdown.
func (d *Dispatcher) StartDispatching(ctx context.Context, eventCh <-chan model.Event) error {
	if !d.started.CompareAndSwap(false, true) {
		return errors.New("dispatcher already started")
	}

	go func() {
		defer func() {
			for _, sub := range d.subscribers {
				close(sub.ch)
			}
			d.subscribers = make(map[int64]*Subscriber)
		}()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("dispatcher stopped")
				return
			case sub := <-d.subscriptionCh:
				d.subscribers[sub.id] = sub
			case sub := <-d.unsubscriptionCh:
				if _, ok := d.subscribers[sub.id]; ok {
					delete(d.subscribers, sub.id)
					close(sub.ch)
				}
			case ev, ok := <-eventCh:
				if !ok {
					log.Info().Msg("event channel closed, dispatcher stopping")
					return
				}
				d.dispatch(ev)
			}
		}
	}()

	return nil
}

// dispatch delivers one event to every subscriber interested in its
// timeframe. Only the dispatcher goroutine calls this, so the subscriber map
// needs no locking. A full subscriber buffer drops its oldest event so the
// freshest state always lands.
func (d *Dispatcher) dispatch(ev model.Event) {
	for _, sub := range d.subscribers {
		if _, ok := sub.timeframes[ev.Timeframe]; !ok {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			log.Debug().Int64("subscriber", sub.id).Msg("subscriber too slow, dropping oldest buffered event")
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
}
