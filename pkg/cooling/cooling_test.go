package cooling

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexgov/core/pkg/contracts"
	"github.com/apexgov/core/pkg/identity"
)

func TestCalculateTier(t *testing.T) {
	cases := []struct {
		name      string
		verdict   contracts.Verdict
		warnings  int
		amendment bool
		want      Tier
	}{
		{"clean seal cools nothing", contracts.VerdictSeal, 0, false, TierNone},
		{"seal with one warning", contracts.VerdictSeal, 1, false, TierStandard},
		{"seal with two warnings", contracts.VerdictSeal, 2, false, TierConstitutional},
		{"partial low warnings", contracts.VerdictPartial, 1, false, TierStandard},
		{"partial many warnings", contracts.VerdictPartial, 3, false, TierConstitutional},
		{"sabar", contracts.VerdictSabar, 0, false, TierConstitutional},
		{"void deep freezes", contracts.VerdictVoid, 0, false, TierDeepFreeze},
		{"hold deep freezes", contracts.VerdictHold888, 0, false, TierDeepFreeze},
		{"amendment overrides verdict", contracts.VerdictSeal, 0, true, TierDeepFreeze},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CalculateTier(tc.verdict, tc.warnings, tc.amendment))
		})
	}
}

func TestTierDurations(t *testing.T) {
	assert.Equal(t, time.Duration(0), TierNone.Duration())
	assert.Equal(t, 42*time.Hour, TierStandard.Duration())
	assert.Equal(t, 72*time.Hour, TierConstitutional.Duration())
	assert.Equal(t, 168*time.Hour, TierDeepFreeze.Duration())
	assert.Equal(t, "TIER_2_CONSTITUTIONAL", TierConstitutional.Label())
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestEngine(t *testing.T, clock *fakeClock) (*Engine, *identity.TokenManager) {
	t.Helper()
	tokens := identity.NewTokenManager([]byte("test-secret"))
	opts := []EngineOption{}
	if clock != nil {
		opts = append(opts, WithClock(clock.Now))
	}
	engine, err := NewEngine(filepath.Join(t.TempDir(), "cooling.jsonl"), tokens, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine, tokens
}

func TestEnforceTierOpensWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	engine, _ := newTestEngine(t, clock)

	entry, err := engine.EnforceTier("sess-1", "verdict-ref-1", contracts.VerdictSabar, 0, false)
	require.NoError(t, err)
	assert.Equal(t, TierConstitutional, entry.Tier)
	assert.Equal(t, StatusCooling, entry.Status)
	assert.Equal(t, "sess-1", entry.SessionID)
	assert.Contains(t, entry.EntryID, "phoenix_sess-1_")

	until, err := time.Parse(time.RFC3339Nano, entry.CoolingUntil)
	require.NoError(t, err)
	assert.Equal(t, clock.now.Add(72*time.Hour), until)
}

// Tier-0 verdicts still land in the ledger, as a row that is already
// COMPLETE: immediate releases are recorded, not skipped.
func TestEnforceTierNonePersistsCompleteRow(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	entry, err := engine.EnforceTier("sess-1", "ref", contracts.VerdictSeal, 0, false)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.EntryID)
	assert.Equal(t, TierNone, entry.Tier)
	assert.Equal(t, StatusComplete, entry.Status)
	assert.Equal(t, entry.CreatedAt, entry.CoolingUntil)
	assert.True(t, engine.AllComplete("sess-1"))

	stored, ok := engine.Get(entry.EntryID)
	require.True(t, ok)
	assert.Equal(t, StatusComplete, stored.Status)
	assert.True(t, engine.IsCooled(entry.EntryID))
}

func TestUpdateStatusTransitions(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	entry, err := engine.EnforceTier("sess-1", "ref", contracts.VerdictSabar, 0, false)
	require.NoError(t, err)

	updated, err := engine.UpdateStatus(entry.EntryID, StatusComplete, "manually reviewed")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, updated.Status)

	// Terminal rows are immutable.
	_, err = engine.UpdateStatus(entry.EntryID, StatusBypassed, "again")
	require.ErrorIs(t, err, ErrTerminalStatus)

	_, err = engine.UpdateStatus("phoenix_missing_1", StatusComplete, "")
	require.ErrorIs(t, err, ErrUnknownEntry)
}

func TestReplayRestoresLatestState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cooling.jsonl")
	tokens := identity.NewTokenManager([]byte("test-secret"))

	engine, err := NewEngine(path, tokens)
	require.NoError(t, err)
	entry, err := engine.EnforceTier("sess-1", "ref", contracts.VerdictVoid, 0, false)
	require.NoError(t, err)
	_, err = engine.UpdateStatus(entry.EntryID, StatusComplete, "review done")
	require.NoError(t, err)
	require.NoError(t, engine.Close())

	reopened, err := NewEngine(path, tokens)
	require.NoError(t, err)
	defer reopened.Close()
	latest, ok := reopened.Get(entry.EntryID)
	require.True(t, ok)
	assert.Equal(t, StatusComplete, latest.Status)
}

func TestIsCooled(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	engine, _ := newTestEngine(t, clock)

	entry, err := engine.EnforceTier("sess-1", "ref", contracts.VerdictPartial, 0, false)
	require.NoError(t, err)
	assert.False(t, engine.IsCooled(entry.EntryID))

	clock.now = clock.now.Add(43 * time.Hour)
	assert.True(t, engine.IsCooled(entry.EntryID))
	assert.False(t, engine.IsCooled("phoenix_unknown_1"))
}

func TestEmergencyBypass(t *testing.T) {
	engine, tokens := newTestEngine(t, nil)
	entry, err := engine.EnforceTier("sess-1", "ref", contracts.VerdictVoid, 0, false)
	require.NoError(t, err)

	_, err = engine.EmergencyBypass(entry.EntryID, "not-a-token", "urgent")
	require.ErrorIs(t, err, identity.ErrBypassUnauthorized)

	token, err := tokens.IssueAuthorityToken("operator-1", time.Hour)
	require.NoError(t, err)
	bypassed, err := engine.EmergencyBypass(entry.EntryID, token, "incident response")
	require.NoError(t, err)
	assert.Equal(t, StatusBypassed, bypassed.Status)
	assert.Equal(t, "operator-1", bypassed.Authority)
	assert.True(t, engine.IsCooled(entry.EntryID))
}

func TestSweep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	engine, _ := newTestEngine(t, clock)
	ctx := context.Background()

	elapsed, err := engine.EnforceTier("sess-1", "ref-1", contracts.VerdictPartial, 0, false)
	require.NoError(t, err)
	open, err := engine.EnforceTier("sess-2", "ref-2", contracts.VerdictVoid, 0, false)
	require.NoError(t, err)

	clock.now = clock.now.Add(50 * time.Hour)
	changed, err := engine.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, elapsed.EntryID, changed[0].EntryID)
	assert.Equal(t, StatusComplete, changed[0].Status)

	got, _ := engine.Get(open.EntryID)
	assert.Equal(t, StatusCooling, got.Status)
	assert.False(t, engine.AllComplete("sess-2"))

	// Past the retention horizon the open window expires instead.
	clock.now = clock.now.Add(31 * 24 * time.Hour)
	changed, err = engine.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, StatusExpired, changed[0].Status)
}

func TestBySession(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	_, err := engine.EnforceTier("sess-a", "ref-1", contracts.VerdictSabar, 0, false)
	require.NoError(t, err)
	_, err = engine.EnforceTier("sess-b", "ref-2", contracts.VerdictVoid, 0, false)
	require.NoError(t, err)
	_, err = engine.EnforceTier("sess-a", "ref-3", contracts.VerdictPartial, 2, false)
	require.NoError(t, err)

	rows := engine.BySession("sess-a")
	require.Len(t, rows, 2)
	assert.Equal(t, "ref-1", rows[0].VerdictRef)
	assert.Equal(t, "ref-3", rows[1].VerdictRef)
}

func TestWaitUntilCooled(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	engine, _ := newTestEngine(t, clock)

	entry, err := engine.EnforceTier("sess-1", "ref", contracts.VerdictPartial, 0, false)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = engine.WaitUntilCooled(ctx, entry.EntryID, 10*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	clock.now = clock.now.Add(43 * time.Hour)
	require.NoError(t, engine.WaitUntilCooled(context.Background(), entry.EntryID, 10*time.Millisecond))
}
