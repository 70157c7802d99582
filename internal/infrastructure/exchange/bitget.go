package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/okafor/smc_ranger_bot/internal/domain"
)

const (
	BitgetBaseURL = "https://api.bitget.com"
	BitgetWSURL   = "wss://ws.bitget.com/v2/ws/public"

	productType = "USDT-FUTURES"
	marginCoin  = "USDT"
)

// BitgetAdapter implements domain.ExchangeGateway against the Bitget USDT
// futures API. One-way position mode and isolated margin are assumed.
type BitgetAdapter struct {
	apiKey     string
	apiSecret  string
	passphrase string
	baseURL    string
	wsURL      string
	client     *http.Client
	log        *zap.Logger
}

func NewBitgetAdapter(apiKey, apiSecret, passphrase, baseURL, wsURL string, log *zap.Logger) *BitgetAdapter {
	if baseURL == "" {
		baseURL = BitgetBaseURL
	}
	if wsURL == "" {
		wsURL = BitgetWSURL
	}
	return &BitgetAdapter{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		passphrase: passphrase,
		baseURL:    baseURL,
		wsURL:      wsURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// --- REST API ---

func (b *BitgetAdapter) sign(timestamp, method, path string, body []byte) string {
	// timestamp + method + requestPath + body
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(timestamp + method + path))
	h.Write(body)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (b *BitgetAdapter) sendRequest(ctx context.Context, method, path string, payload map[string]interface{}) ([]byte, error) {
	var body []byte
	if payload != nil {
		body, _ = json.Marshal(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("ACCESS-KEY", b.apiKey)
	req.Header.Set("ACCESS-SIGN", b.sign(timestamp, method, path, body))
	req.Header.Set("ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("ACCESS-PASSPHRASE", b.passphrase)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("bitget API error: %s", string(respBody))
	}
	return respBody, nil
}

func checkCode(resp []byte) error {
	var result struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}
	if result.Code != "00000" {
		return fmt.Errorf("bitget error %s: %s", result.Code, result.Msg)
	}
	return nil
}

func (b *BitgetAdapter) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	path := "/api/v2/mix/market/ticker?symbol=" + symbol + "&productType=" + productType
	resp, err := b.sendRequest(ctx, "GET", path, nil)
	if err != nil {
		return decimal.Zero, err
	}

	var result struct {
		Data []struct {
			LastPr string `json:"lastPr"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return decimal.Zero, err
	}
	if len(result.Data) == 0 {
		return decimal.Zero, fmt.Errorf("symbol not found: %s", symbol)
	}
	return decimal.NewFromString(result.Data[0].LastPr)
}

func (b *BitgetAdapter) SubmitMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity decimal.Decimal) (string, error) {
	orderSide := "buy"
	if side == domain.SideShort {
		orderSide = "sell"
	}
	payload := map[string]interface{}{
		"symbol":      symbol,
		"productType": productType,
		"marginMode":  "isolated",
		"marginCoin":  marginCoin,
		"size":        quantity.String(),
		"side":        orderSide,
		"orderType":   "market",
	}
	resp, err := b.sendRequest(ctx, "POST", "/api/v2/mix/order/place-order", payload)
	if err != nil {
		return "", err
	}
	if err := checkCode(resp); err != nil {
		return "", err
	}

	var result struct {
		Data struct {
			OrderID string `json:"orderId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", err
	}
	return result.Data.OrderID, nil
}

func (b *BitgetAdapter) SetStopLoss(ctx context.Context, symbol string, price decimal.Decimal) error {
	return b.placePlan(ctx, symbol, "pos_loss", price, decimal.Zero)
}

func (b *BitgetAdapter) SetTakeProfit(ctx context.Context, symbol string, price, fraction decimal.Decimal) error {
	return b.placePlan(ctx, symbol, "pos_profit", price, fraction)
}

func (b *BitgetAdapter) placePlan(ctx context.Context, symbol, planType string, price, fraction decimal.Decimal) error {
	payload := map[string]interface{}{
		"symbol":       symbol,
		"productType":  productType,
		"marginCoin":   marginCoin,
		"planType":     planType,
		"triggerPrice": price.String(),
		"triggerType":  "mark_price",
	}
	if fraction.Sign() > 0 {
		payload["executeSize"] = fraction.String()
	}
	resp, err := b.sendRequest(ctx, "POST", "/api/v2/mix/order/place-pos-tpsl", payload)
	if err != nil {
		return err
	}
	return checkCode(resp)
}

func (b *BitgetAdapter) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	path := fmt.Sprintf("/api/v2/mix/market/candles?symbol=%s&productType=%s&granularity=%s&limit=%d",
		symbol, productType, interval, limit)
	resp, err := b.sendRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data [][]string `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(result.Data))
	for _, row := range result.Data {
		c, err := parseCandleRow(row)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	// The API does not guarantee order; callers need oldest first.
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].OpenTime.Before(candles[j].OpenTime)
	})
	return candles, nil
}

func parseCandleRow(row []string) (domain.Candle, error) {
	if len(row) < 6 {
		return domain.Candle{}, fmt.Errorf("malformed candle row: %v", row)
	}
	ms, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return domain.Candle{}, err
	}
	var prices [5]decimal.Decimal
	for i := 0; i < 5; i++ {
		prices[i], err = decimal.NewFromString(row[i+1])
		if err != nil {
			return domain.Candle{}, err
		}
	}
	return domain.Candle{
		OpenTime: time.UnixMilli(ms).UTC(),
		Open:     prices[0],
		High:     prices[1],
		Low:      prices[2],
		Close:    prices[3],
		Volume:   prices[4],
	}, nil
}

// --- WebSocket ---

// CandleStream subscribes to the candle channel and forwards only closed
// candles: the exchange re-pushes the forming candle on every tick, so a
// candle is emitted once a newer open time appears. The returned channel
// closes on any read error; the caller reconnects and backfills.
func (b *BitgetAdapter) CandleStream(ctx context.Context, symbol, interval string) (<-chan domain.Candle, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.wsURL, nil)
	if err != nil {
		return nil, err
	}

	channel := "candle" + interval
	subMsg := map[string]interface{}{
		"op": "subscribe",
		"args": []map[string]string{{
			"instType": productType,
			"channel":  channel,
			"instId":   symbol,
		}},
	}
	if err := conn.WriteJSON(subMsg); err != nil {
		conn.Close()
		return nil, err
	}

	out := make(chan domain.Candle, 16)
	go b.readLoop(ctx, conn, channel, out)
	return out, nil
}

func (b *BitgetAdapter) readLoop(ctx context.Context, conn *websocket.Conn, channel string, out chan<- domain.Candle) {
	defer close(out)
	defer conn.Close()

	go func() {
		// Bitget drops connections without a ping every 30s.
		ticker := time.NewTicker(25 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					return
				}
			}
		}
	}()

	var forming *domain.Candle
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				b.log.Warn("candle stream read error", zap.Error(err))
			}
			return
		}
		if string(message) == "pong" {
			continue
		}

		var event struct {
			Arg struct {
				Channel string `json:"channel"`
			} `json:"arg"`
			Data [][]string `json:"data"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}
		if event.Arg.Channel != channel {
			continue
		}

		for _, row := range event.Data {
			c, err := parseCandleRow(row)
			if err != nil {
				b.log.Warn("bad candle row", zap.Error(err))
				continue
			}
			if forming != nil && c.OpenTime.After(forming.OpenTime) {
				select {
				case out <- *forming:
				case <-ctx.Done():
					return
				}
			}
			cc := c
			forming = &cc
		}
	}
}

// --- helpers ---

// NormalizeInterval maps config shorthand to Bitget granularity strings.
func NormalizeInterval(interval string) string {
	switch strings.ToLower(interval) {
	case "1m", "5m", "15m", "30m":
		return strings.ToLower(interval)
	case "1h":
		return "1H"
	case "4h":
		return "4H"
	case "1d":
		return "1D"
	default:
		return interval
	}
}
