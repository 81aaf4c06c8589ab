package models

// RecurringPayment is a standing disbursement that bypasses per-payment
// multisig once an Admin schedules it.
type RecurringPayment struct {
	ID                uint64   `json:"id"`
	Proposer          Identity `json:"proposer"`
	Recipient         Identity `json:"recipient"`
	Token             Identity `json:"token"`
	Amount            Amount   `json:"amount"`
	Memo              string   `json:"memo"`
	Interval          Tick     `json:"interval"`
	NextPaymentLedger Tick     `json:"next_payment_ledger"`
	PaymentCount      uint32   `json:"payment_count"`
	IsActive          bool     `json:"is_active"`
}

// IsDueAt reports whether an active schedule should pay at now.
func (r *RecurringPayment) IsDueAt(now Tick) bool {
	return r.IsActive && r.NextPaymentLedger <= now
}

// Advance records one successful payment.
func (r *RecurringPayment) Advance() {
	r.NextPaymentLedger += r.Interval
	r.PaymentCount++
}
