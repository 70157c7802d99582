package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/okafor/smc_ranger_bot/internal/domain"
)

// StructureTracker runs the candle-to-zones pipeline as a background task.
// It owns the live candle subscription, rebuilds state from a history batch
// on every (re)connect and hands fresh zone snapshots to the decision loop
// over a latest-wins channel. The pipeline drops duplicate candles, so the
// overlap between a backfill batch and already-seen history is harmless.
type StructureTracker struct {
	symbol   string
	interval string
	backfill int
	// maxGap is the largest tolerated distance between consecutive live
	// candles before the series is treated as gapped and rebuilt.
	maxGap time.Duration

	exchange domain.ExchangeGateway
	pipeline *StructurePipeline
	store    domain.StateStore
	log      *zap.Logger

	out chan domain.Zones
}

func NewStructureTracker(
	symbol, interval string,
	backfill int,
	exchange domain.ExchangeGateway,
	pipeline *StructurePipeline,
	store domain.StateStore,
	log *zap.Logger,
) *StructureTracker {
	if backfill <= 0 {
		backfill = 200
	}
	return &StructureTracker{
		symbol:   symbol,
		interval: interval,
		backfill: backfill,
		maxGap:   2 * intervalDuration(interval),
		exchange: exchange,
		pipeline: pipeline,
		store:    store,
		log:      log,
		out:      make(chan domain.Zones, 1),
	}
}

// Zones is the snapshot channel consumed by the decision loop. Only the
// newest snapshot is retained.
func (t *StructureTracker) Zones() <-chan domain.Zones {
	return t.out
}

// Run blocks until the context is cancelled. Every connection loss is
// answered with a backoff, a history backfill and a resubscribe.
func (t *StructureTracker) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if err := t.rebuild(ctx); err != nil {
			t.log.Error("history backfill failed", zap.Error(err))
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		t.publish()

		streamCtx, cancelStream := context.WithCancel(ctx)
		stream, err := t.exchange.CandleStream(streamCtx, t.symbol, t.interval)
		if err != nil {
			cancelStream()
			t.log.Error("candle subscription failed", zap.Error(err))
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = time.Second

		alive := t.consume(ctx, stream)
		cancelStream()
		if !alive {
			return
		}
		t.log.Warn("candle stream closed, reconnecting",
			zap.String("symbol", t.symbol))
	}
}

// consume drains the stream until it closes or the context ends. It returns
// false only on cancellation.
func (t *StructureTracker) consume(ctx context.Context, stream <-chan domain.Candle) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case c, ok := <-stream:
			if !ok {
				return true
			}
			if last, exists := t.pipeline.Series().Last(); exists && t.maxGap > 0 &&
				c.OpenTime.Sub(last.OpenTime) > t.maxGap {
				// Missed candles invalidate structure state until the
				// hole is backfilled; the outer loop refetches history.
				t.log.Warn("gap in candle feed",
					zap.Error(domain.ErrDataGap),
					zap.Time("last", last.OpenTime),
					zap.Time("next", c.OpenTime))
				return true
			}
			if t.pipeline.Push(c) {
				t.publish()
			}
		}
	}
}

// intervalDuration maps the exchange granularity string to a duration; an
// unknown interval disables gap detection.
func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1H":
		return time.Hour
	case "4H":
		return 4 * time.Hour
	case "1D":
		return 24 * time.Hour
	default:
		return 0
	}
}

func (t *StructureTracker) rebuild(ctx context.Context) error {
	candles, err := t.exchange.GetCandles(ctx, t.symbol, t.interval, t.backfill)
	if err != nil {
		return err
	}
	accepted := 0
	for _, c := range candles {
		if t.pipeline.Push(c) {
			accepted++
		}
	}
	if accepted > 0 {
		t.log.Info("backfilled candles",
			zap.String("symbol", t.symbol),
			zap.Int("accepted", accepted),
			zap.Int("fetched", len(candles)))
	}
	return nil
}

func (t *StructureTracker) publish() {
	snap := t.pipeline.Zones()
	if t.store != nil {
		if err := t.store.SaveZones(context.Background(), snap); err != nil {
			t.log.Warn("persist zones failed", zap.Error(err))
		}
	}
	select {
	case t.out <- snap:
	default:
		select {
		case <-t.out:
		default:
		}
		t.out <- snap
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > time.Minute {
		d = time.Minute
	}
	return d
}
