package llm

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
)

// Budget threshold percentages.
const (
	BudgetThresholdWarning  = 0.8
	BudgetThresholdCritical = 1.0
)

// Budget alert levels.
const (
	BudgetLevelWarning  = "warning"
	BudgetLevelCritical = "critical"
)

// Date format for daily budget reset tracking.
const dateFormatYMD = "2006-01-02"

// BudgetAlert is emitted once per day per threshold.
type BudgetAlert struct {
	Level       string
	DailyTokens int64
	BudgetLimit int64
	Percentage  float64
	Timestamp   time.Time
}

// BudgetTracker tracks daily token usage across all model calls. A limit of
// zero disables enforcement but usage is still counted.
type BudgetTracker struct {
	mu            sync.Mutex
	dailyTokens   int64
	dailyLimit    int64
	lastResetDate string
	warningFired  bool
	criticalFired bool
	alertCallback func(alert BudgetAlert)
	now           func() time.Time
	logger        *zerolog.Logger
}

// NewBudgetTracker creates a budget tracker. A nil clock means time.Now.
func NewBudgetTracker(dailyLimit int64, clock func() time.Time, logger *zerolog.Logger) *BudgetTracker {
	if clock == nil {
		clock = time.Now
	}

	return &BudgetTracker{
		dailyLimit:    dailyLimit,
		lastResetDate: clock().UTC().Format(dateFormatYMD),
		now:           clock,
		logger:        logger,
	}
}

// SetAlertCallback sets a function called synchronously for each alert.
func (bt *BudgetTracker) SetAlertCallback(callback func(alert BudgetAlert)) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	bt.alertCallback = callback
}

// Allow returns ErrBudgetExceeded once today's usage has reached the limit.
func (bt *BudgetTracker) Allow() error {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	bt.checkDateResetLocked()

	if bt.dailyLimit > 0 && bt.dailyTokens >= bt.dailyLimit {
		return fmt.Errorf("%w: %d of %d tokens used today", errors.ErrBudgetExceeded, bt.dailyTokens, bt.dailyLimit)
	}

	return nil
}

// RecordTokens adds tokens to the daily count and checks budget thresholds.
func (bt *BudgetTracker) RecordTokens(tokens int) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	bt.checkDateResetLocked()

	bt.dailyTokens += int64(tokens)

	if bt.dailyLimit <= 0 {
		return
	}

	percentage := float64(bt.dailyTokens) / float64(bt.dailyLimit)

	if !bt.criticalFired && percentage >= BudgetThresholdCritical {
		bt.criticalFired = true
		bt.warningFired = true
		bt.fireAlert(BudgetLevelCritical, percentage)

		return
	}

	if !bt.warningFired && percentage >= BudgetThresholdWarning {
		bt.warningFired = true
		bt.fireAlert(BudgetLevelWarning, percentage)
	}
}

// GetStatus returns the current budget status.
func (bt *BudgetTracker) GetStatus() (dailyTokens, dailyLimit int64, percentage float64) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	bt.checkDateResetLocked()

	dailyTokens = bt.dailyTokens
	dailyLimit = bt.dailyLimit

	if dailyLimit > 0 {
		percentage = float64(dailyTokens) / float64(dailyLimit)
	}

	return dailyTokens, dailyLimit, percentage
}

func (bt *BudgetTracker) fireAlert(level string, percentage float64) {
	alert := BudgetAlert{
		Level:       level,
		DailyTokens: bt.dailyTokens,
		BudgetLimit: bt.dailyLimit,
		Percentage:  percentage,
		Timestamp:   bt.now().UTC(),
	}

	if bt.logger != nil {
		bt.logger.Warn().
			Str("level", level).
			Int64("daily_tokens", bt.dailyTokens).
			Int64("budget_limit", bt.dailyLimit).
			Float64("percentage", percentage).
			Msg("LLM budget threshold reached")
	}

	if bt.alertCallback != nil {
		bt.alertCallback(alert)
	}
}

// checkDateResetLocked resets daily counters on a new UTC day. Caller holds mu.
func (bt *BudgetTracker) checkDateResetLocked() {
	today := bt.now().UTC().Format(dateFormatYMD)
	if bt.lastResetDate == today {
		return
	}

	bt.dailyTokens = 0
	bt.warningFired = false
	bt.criticalFired = false
	bt.lastResetDate = today

	if bt.logger != nil {
		bt.logger.Info().
			Str("date", today).
			Msg("LLM budget tracker reset for new day")
	}
}
