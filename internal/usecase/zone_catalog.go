package usecase

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/okafor/smc_ranger_bot/internal/domain"
)

// zonePadFactor widens raw zone bounds slightly so entries trigger on a
// touch of the wick region rather than the exact pivot print.
var zonePadFactor = decimal.NewFromFloat(0.00075)

const maxZonesPerSide = 12

// ZoneCatalog turns pivots and structure events into tradable supply and
// demand zones. It tracks unswept pivots for liquidity-sweep detection,
// holds sweeps pending confirmation into strong highs/lows, and merges
// overlapping zones so two zones of the same kind and side never sit closer
// than the configured separation.
// CatalogFeatures switches individual zone detectors on or off. A disabled
// detector stops producing new zones; existing zones still invalidate
// normally.
type CatalogFeatures struct {
	OrderBlocks     bool
	LiquiditySweeps bool
	StrongLevels    bool
}

func AllCatalogFeatures() CatalogFeatures {
	return CatalogFeatures{OrderBlocks: true, LiquiditySweeps: true, StrongLevels: true}
}

type ZoneCatalog struct {
	sepFraction decimal.Decimal
	features    CatalogFeatures

	long  []domain.Zone
	short []domain.Zone

	// Pivots not yet swept or broken, candidates for sweeps.
	openHighs []domain.Pivot
	openLows  []domain.Pivot

	// Swept pivots waiting for an opposite break to confirm a strong zone.
	pendingStrongHighs []pendingStrong
	pendingStrongLows  []pendingStrong
}

type pendingStrong struct {
	pivot       domain.Pivot
	wickExtreme decimal.Decimal
	sweptAt     int
}

func NewZoneCatalog(sepFraction decimal.Decimal) *ZoneCatalog {
	return NewZoneCatalogWithFeatures(sepFraction, AllCatalogFeatures())
}

func NewZoneCatalogWithFeatures(sepFraction decimal.Decimal, features CatalogFeatures) *ZoneCatalog {
	if sepFraction.IsZero() {
		sepFraction = decimal.NewFromFloat(0.002)
	}
	return &ZoneCatalog{sepFraction: sepFraction, features: features}
}

// ObservePivot registers a confirmed pivot as a sweep candidate.
func (z *ZoneCatalog) ObservePivot(p domain.Pivot) {
	switch p.Kind {
	case domain.PivotHigh:
		z.openHighs = appendBounded(z.openHighs, p)
	case domain.PivotLow:
		z.openLows = appendBounded(z.openLows, p)
	}
}

func appendBounded(ps []domain.Pivot, p domain.Pivot) []domain.Pivot {
	ps = append(ps, p)
	if len(ps) > maxZonesPerSide {
		ps = ps[1:]
	}
	return ps
}

// ObserveCandle detects liquidity sweeps and drops zones the close has
// traded through. A sweep is a wick beyond a pivot with the close back
// inside; the swept pivot also becomes a strong high/low candidate.
func (z *ZoneCatalog) ObserveCandle(c domain.Candle, index int) {
	var kept []domain.Pivot
	for _, p := range z.openHighs {
		if c.High.GreaterThan(p.Price) {
			if c.Close.LessThan(p.Price) {
				z.sweepHigh(p, c, index)
			}
			continue // swept or broken either way, no longer a candidate
		}
		kept = append(kept, p)
	}
	z.openHighs = kept

	kept = nil
	for _, p := range z.openLows {
		if c.Low.LessThan(p.Price) {
			if c.Close.GreaterThan(p.Price) {
				z.sweepLow(p, c, index)
			}
			continue
		}
		kept = append(kept, p)
	}
	z.openLows = kept

	// Invalidate zones the candle closed through.
	z.long = filterZones(z.long, func(zn domain.Zone) bool {
		return c.Close.GreaterThanOrEqual(zn.PriceLow)
	})
	z.short = filterZones(z.short, func(zn domain.Zone) bool {
		return c.Close.LessThanOrEqual(zn.PriceHigh)
	})
}

func (z *ZoneCatalog) sweepHigh(p domain.Pivot, c domain.Candle, index int) {
	if z.features.LiquiditySweeps {
		z.upsert(domain.NewZone(domain.ZoneLiquiditySweep, domain.SideShort,
			pad(p.Price, false), pad(c.High, true), c.OpenTime, index))
	}
	if z.features.StrongLevels {
		z.pendingStrongHighs = append(z.pendingStrongHighs, pendingStrong{
			pivot: p, wickExtreme: c.High, sweptAt: index,
		})
	}
}

func (z *ZoneCatalog) sweepLow(p domain.Pivot, c domain.Candle, index int) {
	if z.features.LiquiditySweeps {
		z.upsert(domain.NewZone(domain.ZoneLiquiditySweep, domain.SideLong,
			pad(c.Low, false), pad(p.Price, true), c.OpenTime, index))
	}
	if z.features.StrongLevels {
		z.pendingStrongLows = append(z.pendingStrongLows, pendingStrong{
			pivot: p, wickExtreme: c.Low, sweptAt: index,
		})
	}
}

// ObserveEvent reacts to a structure break: it carves an order block from
// the last opposite-colour candle before the breaking move and promotes
// pending sweeps on the opposite side into strong highs or lows.
func (z *ZoneCatalog) ObserveEvent(ev domain.StructureEvent, series *domain.Series) {
	z.orderBlock(ev, series)

	switch ev.Direction {
	case domain.TrendBearish:
		for _, ps := range z.pendingStrongHighs {
			zone := domain.NewZone(domain.ZoneStrongHigh, domain.SideShort,
				pad(ps.pivot.Price, false), pad(ps.wickExtreme, true), ev.Time, ev.Index)
			z.upsert(zone)
		}
		z.pendingStrongHighs = nil
	case domain.TrendBullish:
		for _, ps := range z.pendingStrongLows {
			zone := domain.NewZone(domain.ZoneStrongLow, domain.SideLong,
				pad(ps.wickExtreme, false), pad(ps.pivot.Price, true), ev.Time, ev.Index)
			z.upsert(zone)
		}
		z.pendingStrongLows = nil
	}
}

func (z *ZoneCatalog) orderBlock(ev domain.StructureEvent, series *domain.Series) {
	if !z.features.OrderBlocks {
		return
	}
	// Walk back from the breaking candle to the last candle coloured
	// against the break.
	for i := ev.Index - 1; i >= 0 && i > ev.Index-10; i-- {
		if i >= series.Len() {
			return
		}
		c := series.At(i)
		switch ev.Direction {
		case domain.TrendBullish:
			if c.Bearish() {
				z.upsert(domain.NewZone(domain.ZoneOrderBlock, domain.SideLong,
					pad(c.Low, false), pad(c.High, true), c.OpenTime, i))
				return
			}
		case domain.TrendBearish:
			if c.Bullish() {
				z.upsert(domain.NewZone(domain.ZoneOrderBlock, domain.SideShort,
					pad(c.Low, false), pad(c.High, true), c.OpenTime, i))
				return
			}
		}
	}
}

// upsert adds a zone, replacing any same-kind same-side zone whose midpoint
// sits within the separation threshold. The newer zone always wins.
func (z *ZoneCatalog) upsert(zone domain.Zone) {
	bucket := &z.long
	if zone.Side == domain.SideShort {
		bucket = &z.short
	}
	minDist := zone.Midpoint().Mul(z.sepFraction)
	kept := (*bucket)[:0]
	for _, existing := range *bucket {
		if existing.Kind == zone.Kind && existing.TooClose(zone, minDist) {
			continue
		}
		kept = append(kept, existing)
	}
	kept = append(kept, zone)
	if len(kept) > maxZonesPerSide {
		kept = kept[1:]
	}
	*bucket = kept
}

// Snapshot returns the current zones, longs sorted descending and shorts
// ascending so the first entry of each slice is nearest to price action.
func (z *ZoneCatalog) Snapshot() domain.Zones {
	long := append([]domain.Zone(nil), z.long...)
	short := append([]domain.Zone(nil), z.short...)
	sort.Slice(long, func(i, j int) bool {
		return long[i].PriceHigh.GreaterThan(long[j].PriceHigh)
	})
	sort.Slice(short, func(i, j int) bool {
		return short[i].PriceLow.LessThan(short[j].PriceLow)
	})
	return domain.Zones{Long: long, Short: short}
}

// Restore reloads a persisted snapshot, replacing any current zones.
func (z *ZoneCatalog) Restore(zones domain.Zones) {
	z.long = append([]domain.Zone(nil), zones.Long...)
	z.short = append([]domain.Zone(nil), zones.Short...)
}

func filterZones(zs []domain.Zone, keep func(domain.Zone) bool) []domain.Zone {
	out := zs[:0]
	for _, zn := range zs {
		if keep(zn) {
			out = append(out, zn)
		}
	}
	return out
}

func pad(p decimal.Decimal, up bool) decimal.Decimal {
	d := p.Mul(zonePadFactor)
	if up {
		return p.Add(d)
	}
	return p.Sub(d)
}
