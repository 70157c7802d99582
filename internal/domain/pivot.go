package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PivotKind string

const (
	PivotHigh PivotKind = "HIGH"
	PivotLow  PivotKind = "LOW"
)

// Pivot is a confirmed local swing extreme. A pivot only exists once
// `Lookback` candles on both sides have shown no higher high (or lower low),
// so it is immutable and never retracted.
type Pivot struct {
	Kind     PivotKind       `json:"kind"`
	Price    decimal.Decimal `json:"price"`
	Time     time.Time       `json:"time"`
	Index    int             `json:"index"`
	Lookback int             `json:"lookback"`
}
