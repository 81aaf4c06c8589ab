// Package spending enforces rolling daily and weekly disbursement limits.
//
// Windows have a fixed length in ticks and roll forward: once now reaches
// start+length the window restarts at now with a zero total. They never align
// to calendar boundaries.
package spending

import (
	"fmt"

	"treasury/internal/vault/models"
	dErrors "treasury/pkg/domain-errors"
)

// Roll returns w as seen at now, restarting any window whose length elapsed.
func Roll(w models.SpendingWindow, now models.Tick) models.SpendingWindow {
	if now >= w.DayWindowStart+models.TicksPerDay {
		w.DayWindowStart = now
		w.DayTotal = models.ZeroAmount
	}
	if now >= w.WeekWindowStart+models.TicksPerWeek {
		w.WeekWindowStart = now
		w.WeekTotal = models.ZeroAmount
	}
	return w
}

// Check reserves amount against both limits. It returns the window to persist
// once the disbursement succeeds; on a limit breach it returns the input
// window unchanged along with DailyLimitExceeded or WeeklyLimitExceeded.
func Check(w models.SpendingWindow, cfg *models.Config, amount models.Amount, now models.Tick) (models.SpendingWindow, error) {
	next := Roll(w, now)
	day := next.DayTotal.Add(amount)
	if day.Exceeds(cfg.DailyLimit) {
		return w, dErrors.New(dErrors.CodeDailyLimitExceeded,
			fmt.Sprintf("daily limit %s would be exceeded (spent %s, requested %s)", cfg.DailyLimit, next.DayTotal, amount))
	}
	week := next.WeekTotal.Add(amount)
	if week.Exceeds(cfg.WeeklyLimit) {
		return w, dErrors.New(dErrors.CodeWeeklyLimitExceeded,
			fmt.Sprintf("weekly limit %s would be exceeded (spent %s, requested %s)", cfg.WeeklyLimit, next.WeekTotal, amount))
	}
	next.DayTotal = day
	next.WeekTotal = week
	return next, nil
}

// Summarize reports totals and remaining capacity as visible at now.
func Summarize(w models.SpendingWindow, cfg *models.Config, now models.Tick) models.SpendingSummary {
	rolled := Roll(w, now)
	return models.SpendingSummary{
		DayTotal:      rolled.DayTotal,
		DayRemaining:  remaining(cfg.DailyLimit, rolled.DayTotal),
		WeekTotal:     rolled.WeekTotal,
		WeekRemaining: remaining(cfg.WeeklyLimit, rolled.WeekTotal),
		DayResetsAt:   rolled.DayWindowStart + models.TicksPerDay,
		WeekResetsAt:  rolled.WeekWindowStart + models.TicksPerWeek,
	}
}

// remaining never goes below zero, which can happen after a limit is lowered.
func remaining(limit, spent models.Amount) models.Amount {
	if spent.Exceeds(limit) {
		return models.ZeroAmount
	}
	return limit.Sub(spent)
}
