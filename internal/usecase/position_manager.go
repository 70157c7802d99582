package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/okafor/smc_ranger_bot/internal/domain"
)

const orderRetries = 3

// Ladder fractions of the original quantity closed at each take-profit.
var ladderFractions = []decimal.Decimal{
	decimal.NewFromFloat(0.20),
	decimal.NewFromFloat(0.30),
	decimal.NewFromFloat(0.30),
	decimal.NewFromFloat(0.20),
}

// PositionManager owns the single position per symbol and its full
// lifecycle: entry, the partial take-profit ladder with stop ratcheting,
// stop-out and manual close. All mutations run on the decision loop; the
// mutex only protects read access from the status API.
type PositionManager struct {
	mu sync.RWMutex

	symbol   string
	exchange domain.ExchangeGateway
	store    domain.StateStore
	trades   domain.TradeRepository
	sizer    *RiskSizer
	log      *zap.Logger

	// ladderStep spaces the take-profit targets; zero derives the step
	// from the stop distance.
	ladderStep decimal.Decimal

	pos *domain.Position
	// openQty is the size at entry, kept so the journal records the full
	// position size after partials have shrunk Quantity.
	openQty decimal.Decimal

	// onClosed fires once per position after the final fill, with the
	// journal record already written.
	onClosed func(rec *domain.TradeRecord)
}

func NewPositionManager(
	symbol string,
	exchange domain.ExchangeGateway,
	store domain.StateStore,
	trades domain.TradeRepository,
	sizer *RiskSizer,
	ladderStep decimal.Decimal,
	log *zap.Logger,
) *PositionManager {
	return &PositionManager{
		symbol:     symbol,
		exchange:   exchange,
		store:      store,
		trades:     trades,
		sizer:      sizer,
		ladderStep: ladderStep,
		log:        log,
	}
}

// SetOnClosed registers the callback invoked after a position fully closes.
func (m *PositionManager) SetOnClosed(fn func(rec *domain.TradeRecord)) {
	m.onClosed = fn
}

// Active reports whether a position currently blocks new entries.
func (m *PositionManager) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pos != nil && m.pos.Status != domain.StatusClosed &&
		m.pos.Status != domain.StatusStoppedOut && m.pos.Status != domain.StatusFlat
}

// Position returns a copy of the current position, or nil when flat.
func (m *PositionManager) Position() *domain.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pos == nil {
		return nil
	}
	cp := *m.pos
	cp.Targets = append([]domain.PartialTarget(nil), m.pos.Targets...)
	return &cp
}

// Restore reloads a persisted open position after a restart.
func (m *PositionManager) Restore(ctx context.Context) error {
	pos, err := m.store.LoadPosition(ctx, m.symbol)
	if err != nil {
		return fmt.Errorf("restore position: %w", err)
	}
	if pos != nil {
		m.mu.Lock()
		m.pos = pos
		m.openQty = pos.Quantity
		if rf := remainingFraction(pos.Targets); rf.Sign() > 0 {
			m.openQty = pos.Quantity.Div(rf)
		}
		m.mu.Unlock()
		m.log.Info("restored open position",
			zap.String("position_id", pos.ID),
			zap.String("side", string(pos.Side)),
			zap.String("entry", pos.EntryPrice.String()))
	}
	return nil
}

// Open sizes and submits a market entry against the zone, then arms the
// protective stop at the zone's far side and builds the take-profit ladder.
// A failed stop placement force-closes the position rather than leaving it
// unprotected.
func (m *PositionManager) Open(ctx context.Context, zone domain.Zone, price, margin decimal.Decimal) error {
	if m.Active() {
		return fmt.Errorf("%w: %s", domain.ErrPositionExists, m.symbol)
	}

	stop := zone.PriceLow
	if zone.Side == domain.SideShort {
		stop = zone.PriceHigh
	}
	qty, err := m.sizer.SizeForZone(margin, price, stop, zone.Kind)
	if err != nil {
		return err
	}

	pos := &domain.Position{
		ID:         uuid.NewString(),
		Symbol:     m.symbol,
		Side:       zone.Side,
		Status:     domain.StatusEntering,
		EntryPrice: price,
		Quantity:   qty,
		StopPrice:  stop,
		ZoneID:     zone.ID,
		Margin:     margin,
		Leverage:   m.sizer.Leverage(),
		OpenedAt:   time.Now().UTC(),
	}
	m.mu.Lock()
	m.pos = pos
	m.openQty = qty
	m.mu.Unlock()

	if _, err := m.submitWithRetry(ctx, pos.Side, qty); err != nil {
		m.mu.Lock()
		m.pos = nil
		m.mu.Unlock()
		return fmt.Errorf("entry order: %w", err)
	}

	if err := m.armStop(ctx, stop); err != nil {
		m.log.Error("stop placement failed, force closing", zap.Error(err))
		m.forceClose(ctx, price, "stop_placement_failed")
		return fmt.Errorf("arm stop: %w", err)
	}

	m.mu.Lock()
	pos.Targets = m.buildLadder(pos)
	pos.Status = domain.StatusOpen
	first := pos.Targets[0]
	m.mu.Unlock()
	m.armTakeProfit(ctx, first)
	if err := m.store.SavePosition(ctx, pos); err != nil {
		m.log.Warn("persist position failed", zap.Error(err))
	}

	m.log.Info("position opened",
		zap.String("position_id", pos.ID),
		zap.String("side", string(pos.Side)),
		zap.String("zone", pos.ZoneID),
		zap.String("entry", price.String()),
		zap.String("stop", stop.String()),
		zap.String("qty", qty.String()))
	return nil
}

// buildLadder spaces four take-profit targets from the entry. After the
// first fill the stop moves to breakeven; each later fill ratchets the stop
// to the previous target's price.
func (m *PositionManager) buildLadder(pos *domain.Position) []domain.PartialTarget {
	step := m.ladderStep
	if step.IsZero() {
		step = pos.EntryPrice.Sub(pos.StopPrice).Abs()
	}

	dir := decimal.NewFromInt(1)
	if pos.Side == domain.SideShort {
		dir = decimal.NewFromInt(-1)
	}

	targets := make([]domain.PartialTarget, 0, len(ladderFractions))
	prevStop := pos.EntryPrice
	for i, frac := range ladderFractions {
		price := pos.EntryPrice.Add(step.Mul(decimal.NewFromInt(int64(i + 1))).Mul(dir))
		targets = append(targets, domain.PartialTarget{
			Price:    price,
			Fraction: frac,
			Stop:     prevStop,
		})
		prevStop = price
	}
	return targets
}

// OnPrice drives the open position against the latest price: a stop hit
// closes everything, a target hit fills the next rung of the ladder. Rungs
// fill strictly in order.
func (m *PositionManager) OnPrice(ctx context.Context, price decimal.Decimal) error {
	if !m.Active() || m.pos.Status == domain.StatusEntering {
		return nil
	}

	if m.pos.StopHit(price) {
		status := domain.StatusStoppedOut
		if m.pos.Status == domain.StatusPartiallyClosed {
			// Ratcheted stop after partials: exit is a plain close.
			status = domain.StatusClosed
		}
		return m.closeAll(ctx, price, status, "stop_loss")
	}

	if len(m.pos.Targets) == 0 {
		return nil
	}
	next := m.pos.Targets[0]
	if !m.pos.TargetHit(price, next) {
		return nil
	}

	if len(m.pos.Targets) == 1 {
		// Final rung closes whatever is left.
		return m.closeAll(ctx, price, domain.StatusClosed, "take_profit")
	}

	fillQty := m.openQty.Mul(next.Fraction)
	if err := m.reduce(ctx, fillQty, next.Price); err != nil {
		return fmt.Errorf("partial close: %w", err)
	}

	m.mu.Lock()
	m.pos.Targets = m.pos.Targets[1:]
	m.pos.Status = domain.StatusPartiallyClosed
	m.mu.Unlock()

	if err := m.armStop(ctx, next.Stop); err != nil {
		m.log.Error("stop ratchet failed, force closing", zap.Error(err))
		return m.closeAll(ctx, price, domain.StatusClosed, "stop_ratchet_failed")
	}
	m.mu.Lock()
	m.pos.StopPrice = next.Stop
	armed := m.pos.Targets[0]
	m.mu.Unlock()
	m.armTakeProfit(ctx, armed)

	if err := m.store.SavePosition(ctx, m.pos); err != nil {
		m.log.Warn("persist position failed", zap.Error(err))
	}
	m.log.Info("partial take profit filled",
		zap.String("position_id", m.pos.ID),
		zap.String("fill_price", next.Price.String()),
		zap.String("new_stop", next.Stop.String()),
		zap.String("remaining_qty", m.pos.Quantity.String()))
	return nil
}

// remainingFraction is the share of the original quantity still open given
// the unfilled rungs.
func remainingFraction(targets []domain.PartialTarget) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range targets {
		sum = sum.Add(t.Fraction)
	}
	return sum
}

// ClosePartial closes the given fraction of the current quantity at the
// latest market price. Closing a full fraction is equivalent to a manual
// close.
func (m *PositionManager) ClosePartial(ctx context.Context, fraction decimal.Decimal) error {
	if !m.Active() {
		return fmt.Errorf("%w: no open position", domain.ErrEntryRejected)
	}
	if fraction.Sign() <= 0 || fraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: fraction %s out of range", domain.ErrRiskViolation, fraction)
	}
	price, err := m.exchange.LatestPrice(ctx, m.symbol)
	if err != nil {
		return fmt.Errorf("latest price: %w", err)
	}
	if fraction.Equal(decimal.NewFromInt(1)) {
		return m.closeAll(ctx, price, domain.StatusClosed, "manual_close")
	}

	qty := m.pos.Quantity.Mul(fraction)
	if err := m.reduce(ctx, qty, price); err != nil {
		return err
	}
	m.mu.Lock()
	m.pos.Status = domain.StatusPartiallyClosed
	m.mu.Unlock()
	if err := m.store.SavePosition(ctx, m.pos); err != nil {
		m.log.Warn("persist position failed", zap.Error(err))
	}
	return nil
}

// CloseManual flattens the position at market.
func (m *PositionManager) CloseManual(ctx context.Context, reason string) error {
	if !m.Active() {
		return nil
	}
	price, err := m.exchange.LatestPrice(ctx, m.symbol)
	if err != nil {
		return fmt.Errorf("latest price: %w", err)
	}
	return m.closeAll(ctx, price, domain.StatusClosed, reason)
}

// reduce sends a reduce-only market order and accrues the realized PnL of
// the closed slice.
func (m *PositionManager) reduce(ctx context.Context, qty, price decimal.Decimal) error {
	if _, err := m.submitWithRetry(ctx, m.pos.Side.Opposite(), qty); err != nil {
		return err
	}
	m.mu.Lock()
	m.pos.RealizedPnL = m.pos.RealizedPnL.Add(m.pos.PnL(price, qty))
	m.pos.Quantity = m.pos.Quantity.Sub(qty)
	m.mu.Unlock()
	return nil
}

func (m *PositionManager) closeAll(ctx context.Context, price decimal.Decimal, status domain.PositionStatus, reason string) error {
	if err := m.reduce(ctx, m.pos.Quantity, price); err != nil {
		m.log.Error("close order failed", zap.Error(err), zap.String("reason", reason))
		return fmt.Errorf("close position: %w", err)
	}
	m.finish(ctx, price, status, reason)
	return nil
}

// forceClose is the unprotected-position escape hatch: it retries the close
// independently of the caller's error path and never returns.
func (m *PositionManager) forceClose(ctx context.Context, price decimal.Decimal, reason string) {
	if _, err := m.submitWithRetry(ctx, m.pos.Side.Opposite(), m.pos.Quantity); err != nil {
		m.log.Error("force close failed, position may be unprotected",
			zap.Error(err), zap.String("position_id", m.pos.ID))
	}
	m.finish(ctx, price, domain.StatusClosed, reason)
}

func (m *PositionManager) finish(ctx context.Context, price decimal.Decimal, status domain.PositionStatus, reason string) {
	m.mu.Lock()
	pos := m.pos
	pos.Status = status
	m.mu.Unlock()

	rec := &domain.TradeRecord{
		ID:          uuid.NewString(),
		PositionID:  pos.ID,
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		ZoneID:      pos.ZoneID,
		EntryPrice:  pos.EntryPrice,
		ClosePrice:  price,
		Quantity:    m.openQty,
		RealizedPnL: pos.RealizedPnL,
		Outcome:     domain.OutcomeOf(pos.RealizedPnL),
		Reason:      reason,
		OpenedAt:    pos.OpenedAt,
		ClosedAt:    time.Now().UTC(),
	}
	if err := m.trades.AppendTrade(ctx, rec); err != nil {
		m.log.Error("journal trade failed", zap.Error(err), zap.String("trade_id", rec.ID))
	}
	if err := m.store.ClearPosition(ctx, m.symbol); err != nil {
		m.log.Warn("clear persisted position failed", zap.Error(err))
	}

	m.mu.Lock()
	m.pos = nil
	m.mu.Unlock()

	m.log.Info("position closed",
		zap.String("position_id", pos.ID),
		zap.String("status", string(status)),
		zap.String("reason", reason),
		zap.String("pnl", rec.RealizedPnL.String()))

	if m.onClosed != nil {
		m.onClosed(rec)
	}
}

// armTakeProfit mirrors the active ladder rung on the exchange as a
// backstop in case the process dies mid-trade. The in-process ladder stays
// authoritative, so a failure here is logged, not fatal.
func (m *PositionManager) armTakeProfit(ctx context.Context, t domain.PartialTarget) {
	if err := m.exchange.SetTakeProfit(ctx, m.symbol, t.Price, t.Fraction); err != nil {
		m.log.Warn("take profit backstop failed", zap.Error(err))
	}
}

func (m *PositionManager) armStop(ctx context.Context, price decimal.Decimal) error {
	var err error
	for i := 0; i < orderRetries; i++ {
		if err = m.exchange.SetStopLoss(ctx, m.symbol, price); err == nil {
			return nil
		}
		time.Sleep(time.Duration(i+1) * 200 * time.Millisecond)
	}
	return err
}

func (m *PositionManager) submitWithRetry(ctx context.Context, side domain.Side, qty decimal.Decimal) (string, error) {
	var err error
	for i := 0; i < orderRetries; i++ {
		var id string
		if id, err = m.exchange.SubmitMarketOrder(ctx, m.symbol, side, qty); err == nil {
			return id, nil
		}
		m.log.Warn("order attempt failed", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(time.Duration(i+1) * 200 * time.Millisecond)
	}
	return "", err
}
