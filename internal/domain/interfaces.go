package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ExchangeGateway is the narrow contract to the futures exchange. The live
// implementation talks to Bitget; tests use in-package fakes.
type ExchangeGateway interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	SubmitMarketOrder(ctx context.Context, symbol string, side Side, quantity decimal.Decimal) (orderID string, err error)
	// SetStopLoss replaces the protective stop for the open position.
	SetStopLoss(ctx context.Context, symbol string, price decimal.Decimal) error
	// SetTakeProfit arms a reduce-only take-profit for a fraction of the
	// open position.
	SetTakeProfit(ctx context.Context, symbol string, price, fraction decimal.Decimal) error
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	// CandleStream delivers closed candles live. The channel is closed on
	// connection loss; callers backfill the gap via GetCandles and
	// resubscribe.
	CandleStream(ctx context.Context, symbol, interval string) (<-chan Candle, error)
}

// StateStore persists hot trading state for crash recovery. In-memory state
// owned by the decision loop stays authoritative; these writes are
// fire-and-forget.
type StateStore interface {
	SaveZoneState(ctx context.Context, zoneID string, state ZoneState) error
	LoadAllZoneState(ctx context.Context) (map[string]ZoneState, error)
	SaveZones(ctx context.Context, zones Zones) error
	LoadZones(ctx context.Context) (Zones, error)
	SavePosition(ctx context.Context, pos *Position) error
	LoadPosition(ctx context.Context, symbol string) (*Position, error)
	ClearPosition(ctx context.Context, symbol string) error
}

// TradeRepository is the append-only trade journal.
type TradeRepository interface {
	AppendTrade(ctx context.Context, rec *TradeRecord) error
	ListTrades(ctx context.Context, limit int) ([]*TradeRecord, error)
}

type Bias string

const (
	BiasLong    Bias = "LONG"
	BiasShort   Bias = "SHORT"
	BiasNeutral Bias = "NEUTRAL"
)

// TrendFilter supplies the coarse directional bias computed by an external
// tracker. Neutral suppresses new entries but never closes positions.
type TrendFilter interface {
	Bias(ctx context.Context, symbol string) (Bias, error)
}
