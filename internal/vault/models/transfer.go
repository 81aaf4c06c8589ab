package models

// Transfer is the instruction handed to the settlement collaborator once every
// local check has passed.
type Transfer struct {
	Token     Identity `json:"token"`
	Recipient Identity `json:"recipient"`
	Amount    Amount   `json:"amount"`
	// Reference is "proposal:<id>" or "recurring:<id>:<n>". It names one
	// payment, so settling the same reference twice pays once.
	Reference string `json:"reference"`
}

// SamePayment reports whether t and o move the same value to the same place.
func (t Transfer) SamePayment(o Transfer) bool {
	return t.Token == o.Token && t.Recipient == o.Recipient && t.Amount.Equal(o.Amount)
}
