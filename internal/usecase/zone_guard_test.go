package usecase_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okafor/smc_ranger_bot/internal/domain"
	"github.com/okafor/smc_ranger_bot/internal/usecase"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testZone(kind domain.ZoneKind, side domain.Side, low, high float64) domain.Zone {
	return domain.NewZone(kind, side,
		decimal.NewFromFloat(low), decimal.NewFromFloat(high), testStart, 0)
}

func TestZoneGuard_CooldownBlocksUntilExactExpiry(t *testing.T) {
	clock := &fakeClock{now: testStart}
	guard := usecase.NewZoneGuard(3, 4*time.Hour, decimal.NewFromFloat(0.002), clock.Now)
	zone := testZone(domain.ZoneOrderBlock, domain.SideLong, 100, 101)

	require.NoError(t, guard.Check(zone), "fresh zone must be admissible")

	guard.RecordOutcome(zone.ID, domain.OutcomeLoss)

	err := guard.Check(zone)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEntryRejected))

	// One second short of the cooldown still blocks.
	clock.Advance(4*time.Hour - time.Second)
	assert.Error(t, guard.Check(zone))

	// At exactly cooldown expiry the zone is admissible again.
	clock.Advance(time.Second)
	assert.NoError(t, guard.Check(zone))
}

func TestZoneGuard_EveryLossStartsFreshCooldown(t *testing.T) {
	clock := &fakeClock{now: testStart}
	guard := usecase.NewZoneGuard(5, 4*time.Hour, decimal.NewFromFloat(0.002), clock.Now)
	zone := testZone(domain.ZoneOrderBlock, domain.SideLong, 100, 101)

	guard.RecordOutcome(zone.ID, domain.OutcomeLoss)
	clock.Advance(4 * time.Hour)
	require.NoError(t, guard.Check(zone))

	// Second loss restarts the full window from now.
	guard.RecordOutcome(zone.ID, domain.OutcomeLoss)
	st := guard.State(zone.ID)
	assert.Equal(t, 2, st.ConsecutiveLosses)
	assert.Equal(t, clock.Now().Add(4*time.Hour), st.CooldownUntil)
}

func TestZoneGuard_MaxLossesExcludesForGood(t *testing.T) {
	clock := &fakeClock{now: testStart}
	guard := usecase.NewZoneGuard(3, time.Hour, decimal.NewFromFloat(0.002), clock.Now)
	zone := testZone(domain.ZoneLiquiditySweep, domain.SideShort, 200, 202)

	for i := 0; i < 3; i++ {
		guard.RecordOutcome(zone.ID, domain.OutcomeLoss)
		clock.Advance(time.Hour)
	}

	// Cooldowns have long expired, the loss cap still blocks.
	clock.Advance(100 * time.Hour)
	err := guard.Check(zone)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEntryRejected))
}

func TestZoneGuard_WinResetsLossStreak(t *testing.T) {
	clock := &fakeClock{now: testStart}
	guard := usecase.NewZoneGuard(3, time.Hour, decimal.NewFromFloat(0.002), clock.Now)
	zone := testZone(domain.ZoneOrderBlock, domain.SideLong, 100, 101)

	guard.RecordOutcome(zone.ID, domain.OutcomeLoss)
	guard.RecordOutcome(zone.ID, domain.OutcomeLoss)
	st := guard.RecordOutcome(zone.ID, domain.OutcomeWin)

	assert.Equal(t, 0, st.ConsecutiveLosses)
	assert.True(t, st.CooldownUntil.IsZero())
	assert.NoError(t, guard.Check(zone))
}

func TestZoneGuard_AdmitDropsNeighborsWithinSeparation(t *testing.T) {
	clock := &fakeClock{now: testStart}
	guard := usecase.NewZoneGuard(3, time.Hour, decimal.NewFromFloat(0.01), clock.Now)

	near := testZone(domain.ZoneOrderBlock, domain.SideLong, 100, 101)
	tooClose := testZone(domain.ZoneLiquiditySweep, domain.SideLong, 100.2, 101.2)
	farAway := testZone(domain.ZoneOrderBlock, domain.SideLong, 90, 91)

	admitted := guard.Admit(domain.Zones{Long: []domain.Zone{near, tooClose, farAway}})

	require.Len(t, admitted.Long, 2)
	assert.Equal(t, near.ID, admitted.Long[0].ID)
	assert.Equal(t, farAway.ID, admitted.Long[1].ID)
}

func TestZoneGuard_RestoreRoundTrip(t *testing.T) {
	clock := &fakeClock{now: testStart}
	guard := usecase.NewZoneGuard(3, time.Hour, decimal.NewFromFloat(0.002), clock.Now)
	zone := testZone(domain.ZoneOrderBlock, domain.SideLong, 100, 101)

	guard.RecordOutcome(zone.ID, domain.OutcomeLoss)
	saved := guard.States()

	restored := usecase.NewZoneGuard(3, time.Hour, decimal.NewFromFloat(0.002), clock.Now)
	restored.Restore(saved)

	assert.Equal(t, guard.State(zone.ID), restored.State(zone.ID))
	assert.Error(t, restored.Check(zone))
}
