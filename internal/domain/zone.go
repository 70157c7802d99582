package domain

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/shopspring/decimal"
)

type ZoneKind string

const (
	ZoneOrderBlock     ZoneKind = "ORDER_BLOCK"
	ZoneLiquiditySweep ZoneKind = "LIQUIDITY_SWEEP"
	ZoneStrongHigh     ZoneKind = "STRONG_HIGH"
	ZoneStrongLow      ZoneKind = "STRONG_LOW"
)

// Zone is a tradeable price band derived from market structure. Zones are
// read-only after creation; overlap resolution replaces a zone rather than
// mutating it.
type Zone struct {
	ID        string          `json:"id"`
	Kind      ZoneKind        `json:"kind"`
	Side      Side            `json:"side"`
	PriceLow  decimal.Decimal `json:"price_low"`
	PriceHigh decimal.Decimal `json:"price_high"`
	CreatedAt time.Time       `json:"created_at"`
	// SourceIndex is the candle index of the structural event that produced
	// the zone, kept for audit logs.
	SourceIndex int `json:"source_index"`
}

// NewZone builds a zone with a stable identity. Bounds are normalized so
// PriceLow < PriceHigh always holds.
func NewZone(kind ZoneKind, side Side, low, high decimal.Decimal, at time.Time, srcIndex int) Zone {
	if low.GreaterThan(high) {
		low, high = high, low
	}
	z := Zone{
		Kind:        kind,
		Side:        side,
		PriceLow:    low,
		PriceHigh:   high,
		CreatedAt:   at,
		SourceIndex: srcIndex,
	}
	z.ID = zoneID(z)
	return z
}

// zoneID hashes kind, side and bounds so re-deriving the same zone from the
// same candles yields the same id across restarts.
func zoneID(z Zone) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s", z.Kind, z.Side, z.PriceLow.String(), z.PriceHigh.String())
	return fmt.Sprintf("%016x", h.Sum64())
}

// Contains reports whether price lies inside the zone, bounds inclusive.
func (z Zone) Contains(price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(z.PriceLow) && price.LessThanOrEqual(z.PriceHigh)
}

func (z Zone) Midpoint() decimal.Decimal {
	return z.PriceLow.Add(z.PriceHigh).Div(decimal.NewFromInt(2))
}

// TooClose reports whether two zones sit within minDistance of each other,
// measured midpoint to midpoint.
func (z Zone) TooClose(other Zone, minDistance decimal.Decimal) bool {
	return z.Midpoint().Sub(other.Midpoint()).Abs().LessThan(minDistance)
}

// Zones is a catalog snapshot split by trade direction, the unit handed from
// the tracker task to the decision loop.
type Zones struct {
	Long  []Zone `json:"long_zones"`
	Short []Zone `json:"short_zones"`
}

// ZoneState is the guard's per-zone risk bookkeeping. The zero value is a
// fresh, tradeable zone.
type ZoneState struct {
	ConsecutiveLosses int       `json:"consecutive_losses"`
	CooldownUntil     time.Time `json:"cooldown_until"`
	LastOutcome       Outcome   `json:"last_outcome,omitempty"`
}

// InCooldown reports whether the zone is temporarily excluded at `now`.
func (s ZoneState) InCooldown(now time.Time) bool {
	return !s.CooldownUntil.IsZero() && now.Before(s.CooldownUntil)
}
