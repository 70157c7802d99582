package usecase

import (
	"github.com/okafor/smc_ranger_bot/internal/domain"
)

// PivotDetector confirms swing highs and lows from a candle stream. A pivot
// high at index i is confirmed only after lookback candles have closed beyond
// it, so every pivot carries a confirmation lag of exactly lookback bars.
// Comparisons are strict: equal highs (or lows) never form a pivot.
type PivotDetector struct {
	lookback int
	window   []domain.Candle // last 2*lookback+1 candles
	total    int             // candles seen so far
}

func NewPivotDetector(lookback int) *PivotDetector {
	if lookback < 1 {
		lookback = 1
	}
	return &PivotDetector{
		lookback: lookback,
		window:   make([]domain.Candle, 0, 2*lookback+1),
	}
}

func (d *PivotDetector) Lookback() int { return d.lookback }

// Push feeds the next closed candle and returns the pivots this candle
// confirms, at most one high and one low. The candidate is the candle
// lookback bars back and needs a full flank of lookback candles on both
// sides, so a series shorter than 2*lookback+1 candles yields no pivots.
func (d *PivotDetector) Push(c domain.Candle) []domain.Pivot {
	d.window = append(d.window, c)
	if len(d.window) > 2*d.lookback+1 {
		d.window = d.window[1:]
	}
	d.total++

	// Absolute index of the candidate confirmed by this candle.
	candIdx := d.total - 1 - d.lookback
	if candIdx < d.lookback {
		return nil
	}

	// Position of the candidate inside the window.
	pos := len(d.window) - 1 - d.lookback
	cand := d.window[pos]

	var out []domain.Pivot
	if d.isExtreme(pos, true) {
		out = append(out, domain.Pivot{
			Kind:     domain.PivotHigh,
			Price:    cand.High,
			Time:     cand.OpenTime,
			Index:    candIdx,
			Lookback: d.lookback,
		})
	}
	if d.isExtreme(pos, false) {
		out = append(out, domain.Pivot{
			Kind:     domain.PivotLow,
			Price:    cand.Low,
			Time:     cand.OpenTime,
			Index:    candIdx,
			Lookback: d.lookback,
		})
	}
	return out
}

func (d *PivotDetector) isExtreme(pos int, high bool) bool {
	cand := d.window[pos]
	for i := range d.window {
		if i == pos {
			continue
		}
		if high {
			if d.window[i].High.GreaterThanOrEqual(cand.High) {
				return false
			}
		} else {
			if d.window[i].Low.LessThanOrEqual(cand.Low) {
				return false
			}
		}
	}
	return true
}
