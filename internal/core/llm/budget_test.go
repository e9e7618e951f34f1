package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
)

func TestBudgetTracker_AlertsOncePerThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	bt := NewBudgetTracker(1000, clock.Now, nil)

	var alerts []BudgetAlert

	bt.SetAlertCallback(func(a BudgetAlert) { alerts = append(alerts, a) })

	bt.RecordTokens(700)
	assert.Empty(t, alerts)

	bt.RecordTokens(150)
	require.Len(t, alerts, 1)
	assert.Equal(t, BudgetLevelWarning, alerts[0].Level)

	bt.RecordTokens(10)
	assert.Len(t, alerts, 1, "warning fires once")

	bt.RecordTokens(200)
	require.Len(t, alerts, 2)
	assert.Equal(t, BudgetLevelCritical, alerts[1].Level)
	assert.Equal(t, int64(1060), alerts[1].DailyTokens)
}

func TestBudgetTracker_AllowAndDailyReset(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)}
	bt := NewBudgetTracker(100, clock.Now, nil)

	require.NoError(t, bt.Allow())

	bt.RecordTokens(100)

	err := bt.Allow()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBudgetExceeded))

	clock.Advance(2 * time.Hour)
	assert.NoError(t, bt.Allow())

	used, limit, pct := bt.GetStatus()
	assert.Equal(t, int64(0), used)
	assert.Equal(t, int64(100), limit)
	assert.InDelta(t, 0.0, pct, 1e-9)
}

func TestBudgetTracker_ZeroLimitNeverBlocks(t *testing.T) {
	bt := NewBudgetTracker(0, nil, nil)

	bt.RecordTokens(1 << 30)

	assert.NoError(t, bt.Allow())
}
