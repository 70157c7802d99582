package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the side that closes a position opened on s.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

type PositionStatus string

const (
	StatusFlat            PositionStatus = "FLAT"
	StatusEntering        PositionStatus = "ENTERING"
	StatusOpen            PositionStatus = "OPEN"
	StatusPartiallyClosed PositionStatus = "PARTIALLY_CLOSED"
	StatusClosed          PositionStatus = "CLOSED"
	StatusStoppedOut      PositionStatus = "STOPPED_OUT"
)

// PartialTarget says "close Fraction of the remaining quantity when price
// reaches Price, then move the stop to Stop". A zero Stop leaves the stop
// where it is.
type PartialTarget struct {
	Price    decimal.Decimal `json:"price"`
	Fraction decimal.Decimal `json:"fraction"`
	Stop     decimal.Decimal `json:"stop"`
}

// Position is the single managed trade for a symbol. At most one position
// with Status != FLAT exists per symbol at any time.
type Position struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Status      PositionStatus  `json:"status"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	Quantity    decimal.Decimal `json:"quantity"`
	StopPrice   decimal.Decimal `json:"stop_price"`
	Targets     []PartialTarget `json:"targets"`
	ZoneID      string          `json:"zone_id"`
	Margin      decimal.Decimal `json:"margin"`
	Leverage    decimal.Decimal `json:"leverage"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	OpenedAt    time.Time       `json:"opened_at"`
}

// PnL computes the profit of closing qty at price.
func (p *Position) PnL(price, qty decimal.Decimal) decimal.Decimal {
	diff := price.Sub(p.EntryPrice)
	if p.Side == SideShort {
		diff = p.EntryPrice.Sub(price)
	}
	return diff.Mul(qty)
}

// StopHit reports whether price has reached the protective stop.
func (p *Position) StopHit(price decimal.Decimal) bool {
	if p.StopPrice.IsZero() {
		return false
	}
	if p.Side == SideLong {
		return price.LessThanOrEqual(p.StopPrice)
	}
	return price.GreaterThanOrEqual(p.StopPrice)
}

// TargetHit reports whether price has reached the given partial target.
func (p *Position) TargetHit(price decimal.Decimal, t PartialTarget) bool {
	if p.Side == SideLong {
		return price.GreaterThanOrEqual(t.Price)
	}
	return price.LessThanOrEqual(t.Price)
}

type Outcome string

const (
	OutcomeWin       Outcome = "WIN"
	OutcomeLoss      Outcome = "LOSS"
	OutcomeBreakeven Outcome = "BREAKEVEN"
)

// OutcomeOf classifies a realized PnL.
func OutcomeOf(pnl decimal.Decimal) Outcome {
	switch {
	case pnl.IsPositive():
		return OutcomeWin
	case pnl.IsNegative():
		return OutcomeLoss
	default:
		return OutcomeBreakeven
	}
}

// TradeRecord is the immutable result of a full position closure. Exactly one
// record is produced per position closure and it is the only input that
// mutates ZoneState.
type TradeRecord struct {
	ID          string          `json:"id"`
	PositionID  string          `json:"position_id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	ZoneID      string          `json:"zone_id"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	ClosePrice  decimal.Decimal `json:"close_price"`
	Quantity    decimal.Decimal `json:"quantity"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	Fees        decimal.Decimal `json:"fees"`
	Outcome     Outcome         `json:"outcome"`
	Reason      string          `json:"reason"`
	OpenedAt    time.Time       `json:"opened_at"`
	ClosedAt    time.Time       `json:"closed_at"`
}
