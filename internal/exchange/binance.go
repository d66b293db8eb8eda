// Package exchange provides the Binance market data collaborators.
//
// The Client exposes two operations used by the chart service:
//   - FetchCandles: a bulk REST fetch of already-closed candles
//     (GET /api/v3/klines), oldest first, bounded count
//   - SubscribeTicks: the live aggregate-trade stream over WebSocket,
//     emitting (price, time) ticks in arrival order
//
// REST calls are paced with a client-side rate limiter. Prices are parsed
// straight into decimal.Decimal from Binance's string representation to
// preserve precision.
package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/whdcks5588-jpg/chanyview/internal/model"
	"github.com/whdcks5588-jpg/chanyview/internal/utils"
	ws "github.com/whdcks5588-jpg/chanyview/internal/websocket"
)

// defaultConfig provides sensible default connection parameters.
var defaultConfig = Config{
	RestURL:           "https://api.binance.com",
	StreamURL:         "wss://stream.binance.com:9443",
	RequestsPerSecond: 5,
}

// Client talks to Binance for both historical candles and live ticks.
type Client struct {
	config   Config
	http     *http.Client
	limiter  *rate.Limiter
	validate *validator.Validate
}

// aggTrade is the payload of one btcusdt@aggTrade stream message.
//
// Example:
//
//	{"e":"aggTrade","E":1634567890123,"s":"BTCUSDT","p":"50000.12","q":"0.001"}
//
// Prices arrive as strings to preserve precision; E is the event time in
// Unix milliseconds, which becomes the tick time in seconds.
type aggTrade struct {
	Event     string `json:"e" validate:"required"`
	EventTime int64  `json:"E" validate:"required,gt=0"`
	Symbol    string `json:"s" validate:"required"`
	Price     string `json:"p" validate:"required,numeric"`
	Quantity  string `json:"q"`
}

// NewClient creates a Binance client. A nil cfg selects defaults.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &defaultConfig
	}

	if err := validateConfig(cfg, &defaultConfig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &Client{
		config:   *cfg,
		http:     &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		validate: validator.New(),
	}, nil
}

// FetchCandles retrieves up to limit closed candles for a symbol and
// timeframe, oldest first. Candle open times are converted to Unix seconds
// aligned to the timeframe's boundaries, matching the aggregator's notion of
// candle time.
func (c *Client) FetchCandles(ctx context.Context, symbol string, timeframe model.Timeframe, limit int) ([]model.Candle, error) {
	if err := utils.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 500
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("symbol", strings.ToUpper(symbol))
	query.Set("interval", string(timeframe))
	query.Set("limit", strconv.Itoa(limit))
	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.config.RestURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("klines request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("klines request returned %d: %s", resp.StatusCode, string(body))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read klines response: %w", err)
	}

	return parseKlines(raw)
}

// parseKlines decodes the Binance kline response: a JSON array of rows, each
// row an array of [openTimeMs, open, high, low, close, volume, ...] with
// prices as strings.
func parseKlines(raw []byte) ([]model.Candle, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("invalid klines payload: %w", err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 5 {
			return nil, fmt.Errorf("klines row %d has %d fields, expected at least 5", i, len(row))
		}

		var openMs int64
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			return nil, fmt.Errorf("klines row %d: invalid open time: %w", i, err)
		}

		prices := make([]decimal.Decimal, 4)
		for j := 1; j <= 4; j++ {
			var s string
			if err := json.Unmarshal(row[j], &s); err != nil {
				return nil, fmt.Errorf("klines row %d: invalid price field %d: %w", i, j, err)
			}
			p, err := decimal.NewFromString(s)
			if err != nil {
				return nil, fmt.Errorf("klines row %d: invalid price %q: %w", i, s, err)
			}
			prices[j-1] = p
		}

		candles = append(candles, model.Candle{
			Time:  openMs / 1000,
			Open:  prices[0],
			High:  prices[1],
			Low:   prices[2],
			Close: prices[3],
		})
	}

	return candles, nil
}

// SubscribeTicks opens the aggregate-trade stream for a symbol and returns
// the tick channel. The channel closes when the connection ends; closing the
// context tears the subscription down.
func (c *Client) SubscribeTicks(ctx context.Context, symbol string) (<-chan model.Tick, error) {
	if err := utils.ValidateSymbol(symbol); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/ws/%s@aggTrade", c.config.StreamURL, strings.ToLower(symbol))

	client, err := ws.NewClient(ctx, ws.Config{
		Endpoint: endpoint,
		Handler:  c.handleAggTrade,
	})
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("failed to open trade stream")
		return nil, err
	}

	return client.TickChan, nil
}

// handleAggTrade converts one raw stream message into a tick.
func (c *Client) handleAggTrade(raw []byte, out chan<- model.Tick) error {
	var t aggTrade
	if err := json.Unmarshal(raw, &t); err != nil {
		log.Error().Err(err).Msg("invalid aggTrade JSON")
		return err
	}

	if err := c.validate.Struct(&t); err != nil {
		log.Warn().Err(err).Interface("trade", t).Msg("aggTrade validation failed")
		return err
	}

	price, err := decimal.NewFromString(t.Price)
	if err != nil {
		log.Error().Err(err).Msg("invalid trade price")
		return err
	}

	out <- model.Tick{
		Price: price,
		Time:  t.EventTime / 1000,
	}

	return nil
}
