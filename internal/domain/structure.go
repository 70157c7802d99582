package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TrendDirection string

const (
	TrendUnknown TrendDirection = "UNKNOWN"
	TrendBullish TrendDirection = "BULLISH"
	TrendBearish TrendDirection = "BEARISH"
)

type StructureKind string

const (
	// BreakOfStructure: close beyond the last opposing pivot in the
	// direction of the prevailing trend. Continuation.
	BreakOfStructure StructureKind = "BOS"
	// ChangeOfCharacter: close beyond the last pivot against the prevailing
	// trend. Flips the tracked trend.
	ChangeOfCharacter StructureKind = "CHOCH"
)

// StructureEvent is emitted by the analyzer whenever a candle close breaks a
// confirmed pivot level.
type StructureEvent struct {
	Kind      StructureKind   `json:"kind"`
	Direction TrendDirection  `json:"direction"`
	Level     decimal.Decimal `json:"level"`
	Time      time.Time       `json:"time"`
	Index     int             `json:"index"`
	RefPivot  Pivot           `json:"ref_pivot"`
}
