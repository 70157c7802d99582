package usecase

import (
	"github.com/shopspring/decimal"

	"github.com/okafor/smc_ranger_bot/internal/domain"
)

// StructurePipeline wires the pivot detector, structure analyzer and zone
// catalog behind a single Push. It owns the candle series, so feeding the
// same history twice produces the same zones, which makes reconnect
// backfills idempotent.
type StructurePipeline struct {
	series   *domain.Series
	detector *PivotDetector
	analyzer *StructureAnalyzer
	catalog  *ZoneCatalog
}

func NewStructurePipeline(lookback int, sepFraction decimal.Decimal) *StructurePipeline {
	return NewStructurePipelineWithFeatures(lookback, sepFraction, AllCatalogFeatures())
}

func NewStructurePipelineWithFeatures(lookback int, sepFraction decimal.Decimal, features CatalogFeatures) *StructurePipeline {
	return &StructurePipeline{
		series:   domain.NewSeries(0),
		detector: NewPivotDetector(lookback),
		analyzer: NewStructureAnalyzer(),
		catalog:  NewZoneCatalogWithFeatures(sepFraction, features),
	}
}

// Push processes one closed candle end to end and reports whether it was
// accepted. Duplicates and out-of-order candles are dropped, so replaying
// an overlapping backfill batch is harmless.
func (p *StructurePipeline) Push(c domain.Candle) bool {
	if !p.series.Append(c) {
		return false
	}
	idx := p.series.Len() - 1

	for _, piv := range p.detector.Push(c) {
		p.analyzer.ObservePivot(piv)
		p.catalog.ObservePivot(piv)
	}
	p.catalog.ObserveCandle(c, idx)
	if ev := p.analyzer.ObserveClose(c, idx); ev != nil {
		p.catalog.ObserveEvent(*ev, p.series)
	}
	return true
}

func (p *StructurePipeline) Trend() domain.TrendDirection { return p.analyzer.Trend() }

func (p *StructurePipeline) Zones() domain.Zones { return p.catalog.Snapshot() }

func (p *StructurePipeline) Series() *domain.Series { return p.series }
