/*
Package main implements a terminal client for the live chart server.

The client connects to the chart WebSocket, subscribes to the requested
timeframes and logs every event it receives: the initial snapshots, candle
opens and updates, countdown ticks and alert activity.

Usage:

	go run main.go -addr=localhost:8080 -timeframes=3m,1h,4h

The client runs until interrupted.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/whdcks5588-jpg/chanyview/internal/model"
	"github.com/whdcks5588-jpg/chanyview/internal/utils"
)

var (
	serverAddr = flag.String("addr", "localhost:8080", "The server address in the format host:port")
	timeframes = flag.String("timeframes", "3m,1h,4h", "Comma-separated list of timeframes to subscribe to")
)

func main() {
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(zerolog.InfoLevel).With().Timestamp().Logger()

	requested := utils.ParseTimeframes(*timeframes)
	if err := validateConfig(requested); err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	url := fmt.Sprintf("ws://%s/ws", *serverAddr)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", url).Msg("did not connect")
	}
	defer conn.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("received shutdown signal")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	subscribe := map[string]any{"op": "subscribe", "timeframes": requested}
	raw, _ := json.Marshal(subscribe)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		log.Fatal().Err(err).Msg("could not subscribe")
	}

	log.Info().Interface("timeframes", requested).Msg("subscribed")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Msg("connection closed")
			return
		}

		var ev model.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			log.Error().Err(err).Msg("failed to decode event")
			continue
		}

		logEvent(log, ev)
	}
}

// logEvent renders one chart event with the fields that matter for its kind.
func logEvent(log zerolog.Logger, ev model.Event) {
	entry := log.Info().
		Str("kind", string(ev.Kind)).
		Str("timeframe", string(ev.Timeframe))

	switch ev.Kind {
	case model.EventSnapshot:
		entry.Int("candles", len(ev.Candles)).Int("alerts", len(ev.Alerts)).Msg("snapshot")

	case model.EventNewCandle, model.EventUpdateCandle:
		if ev.Candle == nil {
			entry.Msg("candle event without candle")
			return
		}
		entry.
			Str("time", time.Unix(ev.Candle.Time, 0).Format(time.RFC3339)).
			Str("open", ev.Candle.Open.String()).
			Str("high", ev.Candle.High.String()).
			Str("low", ev.Candle.Low.String()).
			Str("close", ev.Candle.Close.String()).
			Msg("candle")

	case model.EventCountdown:
		if ev.Countdown == nil {
			entry.Msg("countdown event without payload")
			return
		}
		entry.Str("remaining", ev.Countdown.Display).Msg("countdown")

	case model.EventAlertFired:
		if ev.Alert != nil {
			entry = entry.Str("alert_id", ev.Alert.ID).Str("threshold", ev.Alert.Price.String())
		}
		if ev.Price != nil {
			entry = entry.Str("price", ev.Price.String())
		}
		entry.Msg("ALERT")

	case model.EventAlertAdded, model.EventAlertRemoved:
		if ev.Alert != nil {
			entry = entry.Str("alert_id", ev.Alert.ID)
		}
		entry.Msg("alert set changed")

	case model.EventError:
		entry.Str("message", ev.Message).Msg("server error")

	default:
		entry.Msg("event")
	}
}

// validateConfig performs validation of command-line configuration.
func validateConfig(requested []model.Timeframe) error {
	if *serverAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if err := utils.ValidateTimeframes(requested, 10); err != nil {
		return err
	}
	return nil
}
