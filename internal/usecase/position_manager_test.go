package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/okafor/smc_ranger_bot/internal/domain"
	"github.com/okafor/smc_ranger_bot/internal/usecase"
)

type mockOrder struct {
	Side domain.Side
	Qty  decimal.Decimal
}

type mockGateway struct {
	Price      decimal.Decimal
	Orders     []mockOrder
	StopCalls  []decimal.Decimal
	FailStop   bool
	FailOrders bool
}

func (m *mockGateway) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return m.Price, nil
}

func (m *mockGateway) SubmitMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity decimal.Decimal) (string, error) {
	if m.FailOrders {
		return "", errors.New("exchange unavailable")
	}
	m.Orders = append(m.Orders, mockOrder{Side: side, Qty: quantity})
	return "order-1", nil
}

func (m *mockGateway) SetStopLoss(ctx context.Context, symbol string, price decimal.Decimal) error {
	if m.FailStop {
		return errors.New("stop rejected")
	}
	m.StopCalls = append(m.StopCalls, price)
	return nil
}

func (m *mockGateway) SetTakeProfit(ctx context.Context, symbol string, price, fraction decimal.Decimal) error {
	return nil
}

func (m *mockGateway) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	return nil, nil
}

func (m *mockGateway) CandleStream(ctx context.Context, symbol, interval string) (<-chan domain.Candle, error) {
	return nil, errors.New("not implemented")
}

type mockStore struct {
	Positions  map[string]*domain.Position
	ZoneStates map[string]domain.ZoneState
	Zones      domain.Zones
}

func newMockStore() *mockStore {
	return &mockStore{
		Positions:  make(map[string]*domain.Position),
		ZoneStates: make(map[string]domain.ZoneState),
	}
}

func (m *mockStore) SaveZoneState(ctx context.Context, zoneID string, state domain.ZoneState) error {
	m.ZoneStates[zoneID] = state
	return nil
}

func (m *mockStore) LoadAllZoneState(ctx context.Context) (map[string]domain.ZoneState, error) {
	return m.ZoneStates, nil
}

func (m *mockStore) SaveZones(ctx context.Context, zones domain.Zones) error {
	m.Zones = zones
	return nil
}

func (m *mockStore) LoadZones(ctx context.Context) (domain.Zones, error) {
	return m.Zones, nil
}

func (m *mockStore) SavePosition(ctx context.Context, pos *domain.Position) error {
	cp := *pos
	m.Positions[pos.Symbol] = &cp
	return nil
}

func (m *mockStore) LoadPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	return m.Positions[symbol], nil
}

func (m *mockStore) ClearPosition(ctx context.Context, symbol string) error {
	delete(m.Positions, symbol)
	return nil
}

type mockJournal struct {
	Records []*domain.TradeRecord
}

func (m *mockJournal) AppendTrade(ctx context.Context, rec *domain.TradeRecord) error {
	m.Records = append(m.Records, rec)
	return nil
}

func (m *mockJournal) ListTrades(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	return m.Records, nil
}

func newManager(gw *mockGateway) (*usecase.PositionManager, *mockStore, *mockJournal) {
	store := newMockStore()
	journal := &mockJournal{}
	sizer := usecase.NewRiskSizer(decimal.NewFromFloat(0.02), decimal.Zero, decimal.NewFromInt(10))
	mgr := usecase.NewPositionManager("BTCUSDT", gw, store, journal, sizer, decimal.Zero, zap.NewNop())
	return mgr, store, journal
}

func TestPositionManager_OpenArmsStopAndLadder(t *testing.T) {
	gw := &mockGateway{Price: decimal.NewFromFloat(100.5)}
	mgr, store, _ := newManager(gw)
	zone := testZone(domain.ZoneOrderBlock, domain.SideLong, 100, 101)

	err := mgr.Open(context.Background(), zone, decimal.NewFromFloat(100.5), decimal.NewFromInt(1000))
	require.NoError(t, err)

	pos := mgr.Position()
	require.NotNil(t, pos)
	assert.Equal(t, domain.StatusOpen, pos.Status)
	assert.Equal(t, domain.SideLong, pos.Side)
	assert.True(t, pos.StopPrice.Equal(zone.PriceLow), "stop at zone far side")

	require.Len(t, pos.Targets, 4)
	// Step derives from the stop distance; the first target sits one step
	// above entry and ratchets the stop to breakeven once filled.
	step := pos.EntryPrice.Sub(pos.StopPrice)
	assert.True(t, pos.Targets[0].Price.Equal(pos.EntryPrice.Add(step)))
	assert.True(t, pos.Targets[0].Stop.Equal(pos.EntryPrice))
	assert.True(t, pos.Targets[1].Stop.Equal(pos.Targets[0].Price))

	require.Len(t, gw.Orders, 1)
	assert.Equal(t, domain.SideLong, gw.Orders[0].Side)
	require.Len(t, gw.StopCalls, 1)
	assert.NotNil(t, store.Positions["BTCUSDT"])
}

func TestPositionManager_SecondOpenRejected(t *testing.T) {
	gw := &mockGateway{Price: decimal.NewFromFloat(100.5)}
	mgr, _, _ := newManager(gw)
	zone := testZone(domain.ZoneOrderBlock, domain.SideLong, 100, 101)

	require.NoError(t, mgr.Open(context.Background(), zone, decimal.NewFromFloat(100.5), decimal.NewFromInt(1000)))
	err := mgr.Open(context.Background(), zone, decimal.NewFromFloat(100.5), decimal.NewFromInt(1000))
	require.ErrorIs(t, err, domain.ErrPositionExists)
}

func TestPositionManager_ClosePartialHalvesQuantity(t *testing.T) {
	gw := &mockGateway{Price: decimal.NewFromFloat(100.5)}
	mgr, _, _ := newManager(gw)
	zone := testZone(domain.ZoneOrderBlock, domain.SideLong, 100, 101)

	require.NoError(t, mgr.Open(context.Background(), zone, decimal.NewFromFloat(100.5), decimal.NewFromInt(1000)))
	before := mgr.Position().Quantity

	require.NoError(t, mgr.ClosePartial(context.Background(), decimal.NewFromFloat(0.5)))

	pos := mgr.Position()
	assert.Equal(t, domain.StatusPartiallyClosed, pos.Status)
	assert.True(t, pos.Quantity.Equal(before.Mul(decimal.NewFromFloat(0.5))),
		"quantity = %s, want half of %s", pos.Quantity, before)
}

func TestPositionManager_TargetFillRatchetsStop(t *testing.T) {
	gw := &mockGateway{Price: decimal.NewFromFloat(100.5)}
	mgr, _, _ := newManager(gw)
	zone := testZone(domain.ZoneOrderBlock, domain.SideLong, 100, 101)

	require.NoError(t, mgr.Open(context.Background(), zone, decimal.NewFromFloat(100.5), decimal.NewFromInt(1000)))
	entry := mgr.Position().EntryPrice
	openQty := mgr.Position().Quantity
	tp1 := mgr.Position().Targets[0].Price

	require.NoError(t, mgr.OnPrice(context.Background(), tp1))

	pos := mgr.Position()
	require.NotNil(t, pos)
	assert.Equal(t, domain.StatusPartiallyClosed, pos.Status)
	assert.True(t, pos.StopPrice.Equal(entry), "stop ratchets to breakeven after TP1")
	assert.Len(t, pos.Targets, 3)
	wantQty := openQty.Mul(decimal.NewFromFloat(0.8))
	assert.True(t, pos.Quantity.Equal(wantQty), "quantity = %s, want %s", pos.Quantity, wantQty)
	assert.True(t, pos.RealizedPnL.IsPositive())
}

func TestPositionManager_StopOutJournalsLoss(t *testing.T) {
	gw := &mockGateway{Price: decimal.NewFromFloat(100.5)}
	mgr, store, journal := newManager(gw)
	zone := testZone(domain.ZoneOrderBlock, domain.SideLong, 100, 101)

	var closed *domain.TradeRecord
	mgr.SetOnClosed(func(rec *domain.TradeRecord) { closed = rec })

	require.NoError(t, mgr.Open(context.Background(), zone, decimal.NewFromFloat(100.5), decimal.NewFromInt(1000)))
	require.NoError(t, mgr.OnPrice(context.Background(), decimal.NewFromFloat(99.9)))

	assert.False(t, mgr.Active())
	assert.Nil(t, mgr.Position())
	require.Len(t, journal.Records, 1)
	rec := journal.Records[0]
	assert.Equal(t, domain.OutcomeLoss, rec.Outcome)
	assert.Equal(t, "stop_loss", rec.Reason)
	assert.Equal(t, zone.ID, rec.ZoneID)
	require.NotNil(t, closed)
	assert.Equal(t, rec.ID, closed.ID)
	assert.Empty(t, store.Positions)
}

func TestPositionManager_FailedStopForcesClose(t *testing.T) {
	gw := &mockGateway{Price: decimal.NewFromFloat(100.5), FailStop: true}
	mgr, _, journal := newManager(gw)
	zone := testZone(domain.ZoneOrderBlock, domain.SideLong, 100, 101)

	err := mgr.Open(context.Background(), zone, decimal.NewFromFloat(100.5), decimal.NewFromInt(1000))
	require.Error(t, err)

	// Entry order plus the protective flatten.
	require.Len(t, gw.Orders, 2)
	assert.Equal(t, domain.SideLong, gw.Orders[0].Side)
	assert.Equal(t, domain.SideShort, gw.Orders[1].Side)
	assert.False(t, mgr.Active())
	require.Len(t, journal.Records, 1)
	assert.Equal(t, "stop_placement_failed", journal.Records[0].Reason)
}

// The web API copies the position from its own goroutine, so every status
// transition inside the manager must happen under the lock.
func TestPositionManager_StatusReadsDuringLifecycle(t *testing.T) {
	gw := &mockGateway{Price: decimal.NewFromFloat(100.5)}
	mgr, _, _ := newManager(gw)
	zone := testZone(domain.ZoneOrderBlock, domain.SideLong, 100, 101)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				mgr.Active()
				if pos := mgr.Position(); pos != nil {
					_ = len(pos.Targets)
				}
			}
		}
	}()

	for i := 0; i < 25; i++ {
		require.NoError(t, mgr.Open(context.Background(), zone, decimal.NewFromFloat(100.5), decimal.NewFromInt(1000)))
		require.NoError(t, mgr.CloseManual(context.Background(), "manual_close"))
	}
	close(done)
	wg.Wait()
	assert.False(t, mgr.Active())
}
