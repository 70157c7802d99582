package usecase

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okafor/smc_ranger_bot/internal/domain"
)

// ZoneGuard keeps per-zone risk bookkeeping and decides which zones may be
// traded. A zone in cooldown is skipped until the cooldown expires; a zone
// that has lost maxLosses times in a row is excluded for good. Every loss
// starts a fresh cooldown. The clock is injected so expiry boundaries are
// testable.
type ZoneGuard struct {
	mu sync.RWMutex

	states      map[string]domain.ZoneState
	maxLosses   int
	cooldown    time.Duration
	sepFraction decimal.Decimal
	now         func() time.Time
}

func NewZoneGuard(maxLosses int, cooldown time.Duration, sepFraction decimal.Decimal, now func() time.Time) *ZoneGuard {
	if now == nil {
		now = time.Now
	}
	if sepFraction.IsZero() {
		sepFraction = decimal.NewFromFloat(0.002)
	}
	return &ZoneGuard{
		states:      make(map[string]domain.ZoneState),
		maxLosses:   maxLosses,
		cooldown:    cooldown,
		sepFraction: sepFraction,
		now:         now,
	}
}

// Check returns nil when the zone may be traded right now. A cooldown that
// expires exactly at the current instant no longer blocks.
func (g *ZoneGuard) Check(zone domain.Zone) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.check(zone)
}

func (g *ZoneGuard) check(zone domain.Zone) error {
	st := g.states[zone.ID]
	if g.maxLosses > 0 && st.ConsecutiveLosses >= g.maxLosses {
		return fmt.Errorf("%w: zone %s hit %d consecutive losses", domain.ErrEntryRejected, zone.ID, st.ConsecutiveLosses)
	}
	if st.InCooldown(g.now()) {
		return fmt.Errorf("%w: zone %s cooling down until %s", domain.ErrEntryRejected, zone.ID, st.CooldownUntil.UTC().Format(time.RFC3339))
	}
	return nil
}

// Admit filters a snapshot down to the zones eligible for entry this cycle.
// Within one cycle, once a zone is admitted, later zones on the same side
// whose midpoints sit within the separation threshold are dropped, so the
// input order (nearest to price first) decides ties.
func (g *ZoneGuard) Admit(zones domain.Zones) domain.Zones {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return domain.Zones{
		Long:  g.admitSide(zones.Long),
		Short: g.admitSide(zones.Short),
	}
}

func (g *ZoneGuard) admitSide(zs []domain.Zone) []domain.Zone {
	var admitted []domain.Zone
	for _, z := range zs {
		if g.check(z) != nil {
			continue
		}
		tooClose := false
		minDist := z.Midpoint().Mul(g.sepFraction)
		for _, a := range admitted {
			if z.TooClose(a, minDist) {
				tooClose = true
				break
			}
		}
		if tooClose {
			continue
		}
		admitted = append(admitted, z)
	}
	return admitted
}

// RecordOutcome updates the zone's record after a position on it closes and
// returns the new state for persistence. A win or breakeven clears the loss
// streak and any cooldown; a loss increments the streak and always starts a
// fresh cooldown.
func (g *ZoneGuard) RecordOutcome(zoneID string, outcome domain.Outcome) domain.ZoneState {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.states[zoneID]
	st.LastOutcome = outcome
	if outcome == domain.OutcomeLoss {
		st.ConsecutiveLosses++
		st.CooldownUntil = g.now().Add(g.cooldown)
	} else {
		st.ConsecutiveLosses = 0
		st.CooldownUntil = time.Time{}
	}
	g.states[zoneID] = st
	return st
}

// State returns the guard's record for a zone; the zero value means the
// zone has never been traded.
func (g *ZoneGuard) State(zoneID string) domain.ZoneState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.states[zoneID]
}

// States returns a copy of all non-zero zone records.
func (g *ZoneGuard) States() map[string]domain.ZoneState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]domain.ZoneState, len(g.states))
	for id, st := range g.states {
		out[id] = st
	}
	return out
}

// Restore loads persisted zone records on startup.
func (g *ZoneGuard) Restore(states map[string]domain.ZoneState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, st := range states {
		g.states[id] = st
	}
}
