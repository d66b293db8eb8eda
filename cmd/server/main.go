/*
Package main implements the live candlestick chart server.

The server follows one trading pair on Binance, maintains candle state for a
set of timeframes (3m, 1h and 4h by default), evaluates price alerts against
the live trade stream, and pushes chart events to WebSocket clients. Alert
sets survive restarts through a local SQLite database, and triggered alerts
can additionally be delivered to a Telegram chat.

Configuration is taken from the environment:

	LISTEN_ADDR        HTTP listen address (default :8080)
	SYMBOL             traded pair (default BTCUSDT)
	TIMEFRAMES         comma-separated timeframe labels (default 3m,1h,4h)
	HISTORY_LIMIT      candles kept per timeframe (default 500)
	DB_PATH            alert database path (default chanyview.db)
	BINANCE_REST_URL   REST base URL override
	BINANCE_STREAM_URL stream base URL override
	TELEGRAM_BOT_TOKEN optional Telegram bot token
	TELEGRAM_CHAT_ID   optional Telegram chat id
	DEBUG              enable debug logging

Endpoints: /ws (chart socket), /healthz, /metrics.
*/
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/whdcks5588-jpg/chanyview/config"
	"github.com/whdcks5588-jpg/chanyview/internal/alert"
	"github.com/whdcks5588-jpg/chanyview/internal/exchange"
	"github.com/whdcks5588-jpg/chanyview/internal/model"
	"github.com/whdcks5588-jpg/chanyview/internal/notify"
	"github.com/whdcks5588-jpg/chanyview/internal/server"
	"github.com/whdcks5588-jpg/chanyview/internal/service"
	"github.com/whdcks5588-jpg/chanyview/internal/utils"
)

func main() {
	config.InitConfig()

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if config.GetBool("debug") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	symbol := config.GetString("symbol")
	timeframes := utils.ParseTimeframes(config.GetString("timeframes"))
	if len(timeframes) == 0 {
		timeframes = model.DefaultTimeframes
	}
	if err := utils.ValidateSymbol(symbol); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := utils.ValidateTimeframes(timeframes, 10); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := alert.OpenStore(config.GetString("db_path"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open alert store")
	}
	defer store.Close()

	feed, err := exchange.NewClient(&exchange.Config{
		RestURL:   config.GetString("binance_rest_url"),
		StreamURL: config.GetString("binance_stream_url"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create exchange client")
	}

	chartService, err := service.NewChartService(
		service.ChartServiceConfig{
			Symbol:       symbol,
			Timeframes:   timeframes,
			HistoryLimit: config.GetInt("history_limit"),
		},
		feed,
		service.NewDispatcher(service.DispatcherConfig{MaxTimeframes: len(timeframes)}),
		store,
		buildSinks(),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create chart service")
	}

	if err := chartService.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start chart service")
	}
	defer chartService.Stop()

	srv := &http.Server{
		Addr:        config.GetString("listen_addr"),
		Handler:     server.NewHub(chartService).Routes(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("initiating graceful shutdown")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", srv.Addr).
		Str("symbol", symbol).
		Interface("timeframes", timeframes).
		Msg("server starting")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("failed to serve")
	}
}

// buildSinks assembles the notification chain. The log sink is always
// present; Telegram joins when configured.
func buildSinks() notify.Sink {
	sinks := notify.MultiSink{notify.LogSink{}}

	tg, err := notify.NewTelegramSink(
		config.GetString("telegram_bot_token"),
		config.GetInt64("telegram_chat_id"),
	)
	switch {
	case errors.Is(err, notify.ErrTelegramNotConfigured):
		log.Info().Msg("telegram notifications disabled")
	case err != nil:
		log.Warn().Err(err).Msg("telegram sink unavailable, continuing without it")
	default:
		sinks = append(sinks, tg)
	}

	return sinks
}
