package usecase_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/okafor/smc_ranger_bot/internal/domain"
	"github.com/okafor/smc_ranger_bot/internal/usecase"
)

func pivotAt(kind domain.PivotKind, index int, price float64) domain.Pivot {
	return domain.Pivot{
		Kind:     kind,
		Price:    decimal.NewFromFloat(price),
		Time:     testStart,
		Index:    index,
		Lookback: 3,
	}
}

func TestStructureAnalyzer_FirstBreakIsBOS(t *testing.T) {
	a := usecase.NewStructureAnalyzer()
	if a.Trend() != domain.TrendUnknown {
		t.Fatalf("fresh analyzer trend = %s, want UNKNOWN", a.Trend())
	}

	a.ObservePivot(pivotAt(domain.PivotHigh, 2, 15))

	ev := a.ObserveClose(candle(5, 14, 16, 13.5, 15.5), 5)
	if ev == nil {
		t.Fatal("expected a structure event")
	}
	if ev.Kind != domain.BreakOfStructure {
		t.Errorf("event kind = %s, want BOS", ev.Kind)
	}
	if ev.Direction != domain.TrendBullish {
		t.Errorf("direction = %s, want BULLISH", ev.Direction)
	}
	if a.Trend() != domain.TrendBullish {
		t.Errorf("trend after break = %s, want BULLISH", a.Trend())
	}
}

func TestStructureAnalyzer_CloseAbovePivotHighFlipsBearishTrend(t *testing.T) {
	a := usecase.NewStructureAnalyzer()

	// Establish a bearish trend with a low break.
	a.ObservePivot(pivotAt(domain.PivotLow, 1, 10))
	if ev := a.ObserveClose(candle(4, 10.5, 10.6, 9, 9.5), 4); ev == nil || ev.Kind != domain.BreakOfStructure {
		t.Fatalf("setup break failed: %+v", ev)
	}
	if a.Trend() != domain.TrendBearish {
		t.Fatalf("setup trend = %s, want BEARISH", a.Trend())
	}

	// A close above the standing pivot high reverses the trend.
	a.ObservePivot(pivotAt(domain.PivotHigh, 6, 15))
	ev := a.ObserveClose(candle(9, 14.5, 15.8, 14, 15.5), 9)
	if ev == nil {
		t.Fatal("expected a structure event")
	}
	if ev.Kind != domain.ChangeOfCharacter {
		t.Errorf("event kind = %s, want CHOCH", ev.Kind)
	}
	if a.Trend() != domain.TrendBullish {
		t.Errorf("trend after CHOCH = %s, want BULLISH", a.Trend())
	}
	if !ev.Level.Equal(decimal.NewFromInt(15)) {
		t.Errorf("break level = %s, want 15", ev.Level)
	}
}

func TestStructureAnalyzer_BrokenPivotConsumed(t *testing.T) {
	a := usecase.NewStructureAnalyzer()
	a.ObservePivot(pivotAt(domain.PivotHigh, 2, 15))

	if ev := a.ObserveClose(candle(5, 14, 16, 13.5, 15.5), 5); ev == nil {
		t.Fatal("expected first break")
	}
	// Same level again: pivot was consumed, no event.
	if ev := a.ObserveClose(candle(6, 15.5, 16.5, 15, 16), 6); ev != nil {
		t.Errorf("consumed pivot fired again: %+v", ev)
	}
	if a.PivotHigh() != nil {
		t.Error("pivot high should be cleared after a break")
	}
}

func TestStructureAnalyzer_ReversalWinsWhenBothSidesBreak(t *testing.T) {
	a := usecase.NewStructureAnalyzer()

	// Bullish trend in place.
	a.ObservePivot(pivotAt(domain.PivotHigh, 2, 15))
	if ev := a.ObserveClose(candle(5, 14, 16, 13, 15.5), 5); ev == nil {
		t.Fatal("setup break failed")
	}

	// Crossed pivots after a whipsaw: the standing pivot high sits below
	// the standing pivot low, so one close can break both at once.
	a.ObservePivot(pivotAt(domain.PivotHigh, 7, 12))
	a.ObservePivot(pivotAt(domain.PivotLow, 8, 15))
	ev := a.ObserveClose(candle(11, 14, 14.5, 12.5, 13), 11)
	if ev == nil {
		t.Fatal("expected a structure event")
	}
	if ev.Kind != domain.ChangeOfCharacter || ev.Direction != domain.TrendBearish {
		t.Errorf("event = %s/%s, want CHOCH/BEARISH", ev.Kind, ev.Direction)
	}

	// Both crossed pivots were broken by that close, so both are spent:
	// a later close above the old pivot high must stay silent.
	if a.PivotHigh() != nil || a.PivotLow() != nil {
		t.Error("both broken pivots should be consumed after a double break")
	}
	if ev := a.ObserveClose(candle(12, 12.8, 13.2, 12.2, 12.5), 12); ev != nil {
		t.Errorf("stale pivot fired after double break: %+v", ev)
	}
}
