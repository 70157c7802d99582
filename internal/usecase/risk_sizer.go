package usecase

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/okafor/smc_ranger_bot/internal/domain"
)

// RiskSizer converts an entry/stop pair into an order quantity so that a
// stop-out loses a fixed fraction of the working margin. Order blocks use
// the primary fraction; sweep and strong-level zones use the ranger
// fraction. The result is clamped so the notional never exceeds what the
// margin supports at the configured leverage.
type RiskSizer struct {
	riskFraction   decimal.Decimal
	rangerFraction decimal.Decimal
	leverage       decimal.Decimal
}

// NewRiskSizer builds a sizer. A non-positive rangerFraction falls back to
// riskFraction, so a single-profile configuration stays valid.
func NewRiskSizer(riskFraction, rangerFraction, leverage decimal.Decimal) *RiskSizer {
	if rangerFraction.Sign() <= 0 {
		rangerFraction = riskFraction
	}
	return &RiskSizer{
		riskFraction:   riskFraction,
		rangerFraction: rangerFraction,
		leverage:       leverage,
	}
}

func (r *RiskSizer) Leverage() decimal.Decimal { return r.leverage }

// Size returns the order quantity for the given working margin using the
// primary risk fraction. The stop distance is the denominator, so an entry
// equal to the stop is a risk violation, never a division.
func (r *RiskSizer) Size(margin, entry, stop decimal.Decimal) (decimal.Decimal, error) {
	return r.sizeWith(r.riskFraction, margin, entry, stop)
}

// SizeForZone sizes an entry against a zone, selecting the risk fraction by
// zone class.
func (r *RiskSizer) SizeForZone(margin, entry, stop decimal.Decimal, kind domain.ZoneKind) (decimal.Decimal, error) {
	fraction := r.riskFraction
	if kind != domain.ZoneOrderBlock {
		fraction = r.rangerFraction
	}
	return r.sizeWith(fraction, margin, entry, stop)
}

func (r *RiskSizer) sizeWith(fraction, margin, entry, stop decimal.Decimal) (decimal.Decimal, error) {
	dist := entry.Sub(stop).Abs()
	if dist.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: entry %s equals stop", domain.ErrRiskViolation, entry)
	}
	if margin.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: non-positive margin %s", domain.ErrRiskViolation, margin)
	}

	qty := margin.Mul(fraction).Mul(r.leverage).Div(dist)

	// Clamp so qty*entry/leverage never exceeds the margin.
	maxQty := margin.Mul(r.leverage).Div(entry)
	if qty.GreaterThan(maxQty) {
		qty = maxQty
	}
	if qty.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: computed quantity %s is not positive", domain.ErrRiskViolation, qty)
	}
	return qty, nil
}
