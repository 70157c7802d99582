package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/okafor/smc_ranger_bot/internal/domain"
)

// RangerService is the decision loop: the single goroutine allowed to
// mutate trading state. Each tick it drains the freshest zone snapshot from
// the tracker, drives the open position against the latest price, and when
// flat tries to enter the nearest admissible zone that agrees with the
// higher-timeframe bias. Closed trades feed their outcome back into the
// zone guard and compound realized PnL into the working margin.
type RangerService struct {
	symbol       string
	pollInterval time.Duration

	baseMargin  decimal.Decimal
	marginFloor decimal.Decimal

	exchange domain.ExchangeGateway
	store    domain.StateStore
	trend    domain.TrendFilter
	guard    *ZoneGuard
	manager  *PositionManager
	tracker  *StructureTracker
	log      *zap.Logger

	closeCh chan closeRequest

	mu            sync.RWMutex
	zones         domain.Zones
	workingMargin decimal.Decimal
	lastPrice     decimal.Decimal
	lastBias      domain.Bias
}

// closeRequest carries a manual close onto the decision goroutine so the
// manager is never driven from two goroutines at once.
type closeRequest struct {
	fraction decimal.Decimal
	done     chan error
}

func NewRangerService(
	symbol string,
	pollInterval time.Duration,
	baseMargin decimal.Decimal,
	exchange domain.ExchangeGateway,
	store domain.StateStore,
	trend domain.TrendFilter,
	guard *ZoneGuard,
	manager *PositionManager,
	tracker *StructureTracker,
	log *zap.Logger,
) *RangerService {
	s := &RangerService{
		symbol:        symbol,
		pollInterval:  pollInterval,
		baseMargin:    baseMargin,
		marginFloor:   baseMargin.Div(decimal.NewFromInt(2)),
		exchange:      exchange,
		store:         store,
		trend:         trend,
		guard:         guard,
		manager:       manager,
		tracker:       tracker,
		log:           log,
		closeCh:       make(chan closeRequest),
		workingMargin: baseMargin,
		lastBias:      domain.BiasNeutral,
	}
	manager.SetOnClosed(s.onTradeClosed)
	return s
}

// Restore reloads guard records, the last zone snapshot and any open
// position before the loop starts.
func (s *RangerService) Restore(ctx context.Context) error {
	states, err := s.store.LoadAllZoneState(ctx)
	if err != nil {
		return err
	}
	s.guard.Restore(states)

	zones, err := s.store.LoadZones(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.zones = zones
	s.mu.Unlock()

	return s.manager.Restore(ctx)
}

// Run blocks until the context is cancelled.
func (s *RangerService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case zones := <-s.tracker.Zones():
			s.mu.Lock()
			s.zones = zones
			s.mu.Unlock()
		case req := <-s.closeCh:
			req.done <- s.closeOnLoop(ctx, req.fraction)
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// ClosePosition flattens the open position at market, or a fraction of it
// when 0 < fraction < 1. The request is handed to the decision loop, so it
// only works while Run is active.
func (s *RangerService) ClosePosition(ctx context.Context, fraction decimal.Decimal) error {
	req := closeRequest{fraction: fraction, done: make(chan error, 1)}
	select {
	case s.closeCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RangerService) closeOnLoop(ctx context.Context, fraction decimal.Decimal) error {
	one := decimal.NewFromInt(1)
	if fraction.Sign() > 0 && fraction.LessThan(one) {
		return s.manager.ClosePartial(ctx, fraction)
	}
	return s.manager.CloseManual(ctx, "manual_close")
}

func (s *RangerService) tick(ctx context.Context) {
	price, err := s.exchange.LatestPrice(ctx, s.symbol)
	if err != nil {
		s.log.Warn("price fetch failed", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.lastPrice = price
	s.mu.Unlock()

	if s.manager.Active() {
		if err := s.manager.OnPrice(ctx, price); err != nil {
			s.log.Error("position update failed", zap.Error(err))
		}
		return
	}
	s.tryEnter(ctx, price)
}

func (s *RangerService) tryEnter(ctx context.Context, price decimal.Decimal) {
	// A nil filter means the higher-timeframe gate is switched off; both
	// sides stay tradeable.
	bias := domain.BiasNeutral
	if s.trend != nil {
		b, err := s.trend.Bias(ctx, s.symbol)
		if err != nil {
			s.log.Warn("trend bias unavailable, holding off", zap.Error(err))
			b = domain.BiasNeutral
		}
		bias = b
	}
	s.mu.Lock()
	s.lastBias = bias
	zones := s.zones
	margin := s.workingMargin
	s.mu.Unlock()
	if s.trend != nil && bias == domain.BiasNeutral {
		return
	}

	admitted := s.guard.Admit(zones)
	var candidates []domain.Zone
	switch bias {
	case domain.BiasLong:
		candidates = admitted.Long
	case domain.BiasShort:
		candidates = admitted.Short
	default:
		candidates = append(append([]domain.Zone(nil), admitted.Long...), admitted.Short...)
	}

	for _, zone := range candidates {
		if !zone.Contains(price) {
			continue
		}
		if err := s.manager.Open(ctx, zone, price, margin); err != nil {
			s.log.Warn("entry skipped",
				zap.String("zone", zone.ID),
				zap.Error(err))
		}
		return // one attempt per tick, win or lose
	}
}

// onTradeClosed runs on the decision goroutine via the manager.
func (s *RangerService) onTradeClosed(rec *domain.TradeRecord) {
	st := s.guard.RecordOutcome(rec.ZoneID, rec.Outcome)
	if err := s.store.SaveZoneState(context.Background(), rec.ZoneID, st); err != nil {
		s.log.Warn("persist zone record failed", zap.Error(err))
	}

	s.mu.Lock()
	s.workingMargin = s.workingMargin.Add(rec.RealizedPnL)
	if s.workingMargin.LessThan(s.marginFloor) {
		s.workingMargin = s.baseMargin
	}
	margin := s.workingMargin
	s.mu.Unlock()

	s.log.Info("trade settled",
		zap.String("zone", rec.ZoneID),
		zap.String("outcome", string(rec.Outcome)),
		zap.Int("zone_losses", st.ConsecutiveLosses),
		zap.String("working_margin", margin.String()))
}

// Status is the snapshot served by the web API.
type Status struct {
	Symbol        string           `json:"symbol"`
	LastPrice     decimal.Decimal  `json:"last_price"`
	Bias          domain.Bias      `json:"bias"`
	WorkingMargin decimal.Decimal  `json:"working_margin"`
	Position      *domain.Position `json:"position,omitempty"`
	ZoneCounts    map[string]int   `json:"zone_counts"`
}

func (s *RangerService) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Symbol:        s.symbol,
		LastPrice:     s.lastPrice,
		Bias:          s.lastBias,
		WorkingMargin: s.workingMargin,
		Position:      s.manager.Position(),
		ZoneCounts: map[string]int{
			"long":  len(s.zones.Long),
			"short": len(s.zones.Short),
		},
	}
}

// CurrentZones returns the snapshot the loop last accepted.
func (s *RangerService) CurrentZones() domain.Zones {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zones
}

// GuardStates exposes the guard bookkeeping for the web API.
func (s *RangerService) GuardStates() map[string]domain.ZoneState {
	return s.guard.States()
}
