package usecase

import (
	"github.com/okafor/smc_ranger_bot/internal/domain"
)

// StructureAnalyzer classifies closes against the most recent confirmed
// pivots. A close beyond a pivot in the direction of the current trend is a
// break of structure; a close beyond a pivot against the trend flips it and
// is a change of character. Trend starts unknown, so the first break of a
// fresh series is always a BOS that establishes direction.
type StructureAnalyzer struct {
	trend     domain.TrendDirection
	pivotHigh *domain.Pivot
	pivotLow  *domain.Pivot
}

func NewStructureAnalyzer() *StructureAnalyzer {
	return &StructureAnalyzer{trend: domain.TrendUnknown}
}

func (a *StructureAnalyzer) Trend() domain.TrendDirection { return a.trend }

// PivotHigh returns the active unbroken pivot high, or nil.
func (a *StructureAnalyzer) PivotHigh() *domain.Pivot { return a.pivotHigh }

// PivotLow returns the active unbroken pivot low, or nil.
func (a *StructureAnalyzer) PivotLow() *domain.Pivot { return a.pivotLow }

// ObservePivot records a freshly confirmed pivot as the active break level
// for its side. A newer pivot always supersedes the previous one.
func (a *StructureAnalyzer) ObservePivot(p domain.Pivot) {
	cp := p
	switch p.Kind {
	case domain.PivotHigh:
		a.pivotHigh = &cp
	case domain.PivotLow:
		a.pivotLow = &cp
	}
}

// ObserveClose checks the candle close against both active pivots and
// returns the structure event it produces, if any. When a single close
// breaks both pivots, the change of character wins and the break of
// structure is discarded. A broken pivot is consumed so it cannot fire
// twice.
func (a *StructureAnalyzer) ObserveClose(c domain.Candle, index int) *domain.StructureEvent {
	var up, down *domain.StructureEvent

	if a.pivotHigh != nil && c.Close.GreaterThan(a.pivotHigh.Price) {
		up = a.breakEvent(domain.TrendBullish, *a.pivotHigh, c, index)
	}
	if a.pivotLow != nil && c.Close.LessThan(a.pivotLow.Price) {
		down = a.breakEvent(domain.TrendBearish, *a.pivotLow, c, index)
	}

	ev := up
	if up != nil && down != nil {
		// Same close broke both sides: keep the reversal.
		if down.Kind == domain.ChangeOfCharacter {
			ev = down
		}
	} else if down != nil {
		ev = down
	}
	if ev == nil {
		return nil
	}

	// Every broken pivot is consumed, including the one on the losing
	// side of a double break; a stale level must not fire later.
	if up != nil {
		a.pivotHigh = nil
	}
	if down != nil {
		a.pivotLow = nil
	}
	a.trend = ev.Direction
	return ev
}

func (a *StructureAnalyzer) breakEvent(dir domain.TrendDirection, ref domain.Pivot, c domain.Candle, index int) *domain.StructureEvent {
	kind := domain.BreakOfStructure
	if a.trend != domain.TrendUnknown && a.trend != dir {
		kind = domain.ChangeOfCharacter
	}
	return &domain.StructureEvent{
		Kind:      kind,
		Direction: dir,
		Level:     ref.Price,
		Time:      c.OpenTime,
		Index:     index,
		RefPivot:  ref,
	}
}
