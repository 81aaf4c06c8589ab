package models

// SpendingWindow is the rolling aggregate of executed disbursements. Each
// total covers executions whose tick falls in [start, start+length).
type SpendingWindow struct {
	DayTotal        Amount `json:"day_total"`
	DayWindowStart  Tick   `json:"day_window_start"`
	WeekTotal       Amount `json:"week_total"`
	WeekWindowStart Tick   `json:"week_window_start"`
}

// SpendingSummary is the read model returned by get_spending.
type SpendingSummary struct {
	DayTotal      Amount `json:"day_total"`
	DayRemaining  Amount `json:"day_remaining"`
	WeekTotal     Amount `json:"week_total"`
	WeekRemaining Amount `json:"week_remaining"`
	DayResetsAt   Tick   `json:"day_resets_at"`
	WeekResetsAt  Tick   `json:"week_resets_at"`
}
