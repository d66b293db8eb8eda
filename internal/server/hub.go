// Package server exposes the chart over a WebSocket push surface plus the
// health and metrics endpoints.
//
// Each client connects to /ws, sends a subscribe command naming its
// timeframes, receives one snapshot event per timeframe, and then a live
// stream of candle, countdown and alert events. Alert edits travel on the
// same connection as add_alert/remove_alert commands; their outcomes come
// back through the broadcast stream so every subscribed client converges on
// the same alert set.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/whdcks5588-jpg/chanyview/internal/metrics"
	"github.com/whdcks5588-jpg/chanyview/internal/model"
	"github.com/whdcks5588-jpg/chanyview/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024

	// subscribeWait bounds how long a fresh connection may idle before
	// sending its subscribe command.
	subscribeWait = 30 * time.Second
)

// ChartBackend is the service surface the hub exposes to clients.
type ChartBackend interface {
	Subscribe(timeframes []model.Timeframe) (*service.Subscriber, error)
	Unsubscribe(sub *service.Subscriber) error
	Snapshot(ctx context.Context, timeframe model.Timeframe) (service.Snapshot, error)
	AddAlert(ctx context.Context, timeframe model.Timeframe, price decimal.Decimal) (model.Alert, error)
	RemoveAlert(ctx context.Context, timeframe model.Timeframe, id string) error
}

// clientCommand is one inbound client message.
type clientCommand struct {
	Op         string            `json:"op" validate:"required,oneof=subscribe add_alert remove_alert"`
	Timeframes []model.Timeframe `json:"timeframes,omitempty"`
	Timeframe  model.Timeframe   `json:"timeframe,omitempty"`
	Price      decimal.Decimal   `json:"price,omitempty"`
	ID         string            `json:"id,omitempty"`
}

// Hub upgrades chart clients and bridges their connections to the backend.
type Hub struct {
	backend  ChartBackend
	upgrader websocket.Upgrader
	validate *validator.Validate
}

// NewHub creates a hub over the given backend.
func NewHub(backend ChartBackend) *Hub {
	return &Hub{
		backend: backend,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate: validator.New(),
	}
}

// Routes returns the HTTP mux: the chart socket, health and metrics.
func (h *Hub) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// HandleWebSocket manages one client connection lifecycle.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)

	// The first message must be a subscribe command.
	conn.SetReadDeadline(time.Now().Add(subscribeWait))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return
	}

	cmd, err := h.parseCommand(raw)
	if err != nil || cmd.Op != "subscribe" {
		h.writeEvent(conn, &sync.Mutex{}, errorEvent("", "expected a subscribe command first"))
		return
	}

	sub, err := h.backend.Subscribe(cmd.Timeframes)
	if err != nil {
		h.writeEvent(conn, &sync.Mutex{}, errorEvent("", err.Error()))
		return
	}
	defer h.backend.Unsubscribe(sub)

	metrics.ClientsConnected.Inc()
	defer metrics.ClientsConnected.Dec()
	log.Info().
		Str("remote", r.RemoteAddr).
		Interface("timeframes", cmd.Timeframes).
		Msg("chart client connected")
	defer log.Info().Str("remote", r.RemoteAddr).Msg("chart client disconnected")

	// One writer guards the connection: the event pump and the read loop's
	// direct error replies share it.
	var writeMu sync.Mutex

	for _, tf := range cmd.Timeframes {
		snap, err := h.backend.Snapshot(r.Context(), tf)
		if err != nil {
			h.writeEvent(conn, &writeMu, errorEvent(tf, err.Error()))
			continue
		}
		h.writeEvent(conn, &writeMu, model.Event{
			Kind:      model.EventSnapshot,
			Timeframe: tf,
			Candles:   snap.Candles,
			Alerts:    snap.Alerts,
		})
	}

	done := make(chan struct{})
	defer close(done)

	go h.pumpEvents(conn, &writeMu, sub, done)
	go h.ping(conn, done)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	h.readLoop(r.Context(), conn, &writeMu)
}

// readLoop consumes client commands until the connection drops.
func (h *Hub) readLoop(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		cmd, err := h.parseCommand(raw)
		if err != nil {
			h.writeEvent(conn, writeMu, errorEvent("", "invalid command: "+err.Error()))
			continue
		}

		switch cmd.Op {
		case "subscribe":
			h.writeEvent(conn, writeMu, errorEvent("", "already subscribed"))

		case "add_alert":
			if cmd.Price.IsZero() || cmd.Price.IsNegative() {
				h.writeEvent(conn, writeMu, errorEvent(cmd.Timeframe, "alert price must be positive"))
				continue
			}
			if _, err := h.backend.AddAlert(ctx, cmd.Timeframe, cmd.Price); err != nil {
				h.writeEvent(conn, writeMu, errorEvent(cmd.Timeframe, err.Error()))
			}

		case "remove_alert":
			if cmd.ID == "" {
				h.writeEvent(conn, writeMu, errorEvent(cmd.Timeframe, "alert id is required"))
				continue
			}
			if err := h.backend.RemoveAlert(ctx, cmd.Timeframe, cmd.ID); err != nil {
				h.writeEvent(conn, writeMu, errorEvent(cmd.Timeframe, err.Error()))
			}
		}
	}
}

// pumpEvents forwards broadcast events to the connection until the
// subscription closes or the connection goes away.
func (h *Hub) pumpEvents(conn *websocket.Conn, writeMu *sync.Mutex, sub *service.Subscriber, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.Events():
			if !ok {
				conn.Close()
				return
			}
			if err := h.writeEvent(conn, writeMu, ev); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// ping keeps the connection alive and detects dead peers.
func (h *Hub) ping(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) parseCommand(raw []byte) (clientCommand, error) {
	var cmd clientCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return clientCommand{}, err
	}
	if err := h.validate.Struct(&cmd); err != nil {
		return clientCommand{}, err
	}
	return cmd, nil
}

func (h *Hub) writeEvent(conn *websocket.Conn, writeMu *sync.Mutex, ev model.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode event")
		return err
	}

	writeMu.Lock()
	defer writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func errorEvent(timeframe model.Timeframe, message string) model.Event {
	return model.Event{
		Kind:      model.EventError,
		Timeframe: timeframe,
		Message:   message,
	}
}
