package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is a single OHLCV bar. Prices are decimals because float rounding
// on zone bounds produced phantom overlaps in earlier revisions.
type Candle struct {
	OpenTime time.Time       `json:"open_time"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool {
	return c.Close.GreaterThan(c.Open)
}

// Bearish reports whether the candle closed below its open.
func (c Candle) Bearish() bool {
	return c.Close.LessThan(c.Open)
}

// Series is an append-only, strictly time-ordered candle sequence for one
// timeframe. Duplicates and out-of-order bars are dropped on append so the
// detection pipeline only ever sees a clean stream.
type Series struct {
	candles []Candle
}

func NewSeries(capacity int) *Series {
	return &Series{candles: make([]Candle, 0, capacity)}
}

// Append adds a candle if it advances the series. It returns false when the
// candle is a duplicate or older than the last accepted bar.
func (s *Series) Append(c Candle) bool {
	if n := len(s.candles); n > 0 && !c.OpenTime.After(s.candles[n-1].OpenTime) {
		return false
	}
	s.candles = append(s.candles, c)
	return true
}

func (s *Series) Len() int {
	return len(s.candles)
}

// Candles returns the underlying slice. Callers must treat it as read-only.
func (s *Series) Candles() []Candle {
	return s.candles
}

func (s *Series) At(i int) Candle {
	return s.candles[i]
}

func (s *Series) Last() (Candle, bool) {
	if len(s.candles) == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}
