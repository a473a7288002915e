package ledger

import "github.com/shopspring/decimal"

// DisplayPlaces is the number of fractional digits kept when a balance is
// emitted in a report. Stored balances keep full precision.
const DisplayPlaces = 4

// Account is the balance snapshot for one client. Total is maintained as
// Available + Held after every mutation. Once Locked is set by a chargeback
// the engine rejects all further events for the client.
type Account struct {
	Client    uint16
	Available decimal.Decimal
	Held      decimal.Decimal
	Total     decimal.Decimal
	Locked    bool
}

// NewAccount returns a zeroed, unlocked account for the client.
func NewAccount(client uint16) Account {
	return Account{
		Client:    client,
		Available: decimal.Zero,
		Held:      decimal.Zero,
		Total:     decimal.Zero,
	}
}

// Recalculate restores the Total = Available + Held invariant after the
// caller mutated Available or Held.
func (a *Account) Recalculate() {
	a.Total = a.Available.Add(a.Held)
}

// Consistent reports whether the balance invariant holds.
func (a Account) Consistent() bool {
	return a.Total.Equal(a.Available.Add(a.Held))
}

// TruncateForDisplay cuts the three balances down to DisplayPlaces
// fractional digits. This is a formatting step for emission only and must
// never be applied to a snapshot that goes back into a store.
func (a *Account) TruncateForDisplay() {
	a.Available = a.Available.Truncate(DisplayPlaces)
	a.Held = a.Held.Truncate(DisplayPlaces)
	a.Total = a.Total.Truncate(DisplayPlaces)
}
