package event

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind discriminates the five ledger event kinds.
type Kind uint8

const (
	KindDeposit Kind = iota
	KindWithdrawal
	KindDispute
	KindResolve
	KindChargeBack
)

func (k Kind) String() string {
	switch k {
	case KindDeposit:
		return "deposit"
	case KindWithdrawal:
		return "withdrawal"
	case KindDispute:
		return "dispute"
	case KindResolve:
		return "resolve"
	case KindChargeBack:
		return "chargeback"
	default:
		return "unknown"
	}
}

// ParseKind converts the lowercase wire name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "deposit":
		return KindDeposit, nil
	case "withdrawal":
		return KindWithdrawal, nil
	case "dispute":
		return KindDispute, nil
	case "resolve":
		return KindResolve, nil
	case "chargeback":
		return KindChargeBack, nil
	default:
		return 0, fmt.Errorf("unknown transaction kind: %q", s)
	}
}

// IsTransfer reports whether the kind moves funds and therefore carries an
// amount. Dispute, resolve and chargeback only reference a prior transfer.
func (k Kind) IsTransfer() bool {
	return k == KindDeposit || k == KindWithdrawal
}

// Transaction is one ledger event. Transfers (deposit, withdrawal) carry an
// amount and are persisted; reference kinds point at a prior transfer by ID.
// UnderDispute is only meaningful on the stored copy of a transfer.
type Transaction struct {
	Kind         Kind
	ClientID     uint16
	ID           uint32
	Amount       decimal.NullDecimal
	UnderDispute bool
}

// New creates a transaction with no amount.
func New(kind Kind, clientID uint16, id uint32) Transaction {
	return Transaction{Kind: kind, ClientID: clientID, ID: id}
}

// NewWithAmount creates a transaction carrying the given amount.
func NewWithAmount(kind Kind, clientID uint16, id uint32, amount decimal.Decimal) Transaction {
	return Transaction{
		Kind:     kind,
		ClientID: clientID,
		ID:       id,
		Amount:   decimal.NullDecimal{Decimal: amount, Valid: true},
	}
}

// ValidAmount reports whether the event's amount is acceptable: a transfer
// must carry a non-negative amount, a reference kind must carry none or is
// free to carry one (it is ignored). Invalid events are dropped before they
// reach the store.
func (t Transaction) ValidAmount() bool {
	if t.Kind.IsTransfer() {
		return t.Amount.Valid && !t.Amount.Decimal.IsNegative()
	}
	if t.Amount.Valid && t.Amount.Decimal.IsNegative() {
		return false
	}
	return true
}
