package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"PayEngine/internal/event"
)

// transactionJSON is the wire format on the inbound subject. Field names
// mirror the CSV columns so producers can reuse one schema.
type transactionJSON struct {
	Type   string  `json:"type"`
	Client uint16  `json:"client"`
	Tx     uint32  `json:"tx"`
	Amount *string `json:"amount,omitempty"`
}

// ParseTransaction converts an inbound JSON payload into a typed event.
func ParseTransaction(data []byte) (event.Transaction, error) {
	var j transactionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return event.Transaction{}, fmt.Errorf("parse transaction: %w", err)
	}

	kind, err := event.ParseKind(j.Type)
	if err != nil {
		return event.Transaction{}, err
	}

	txn := event.New(kind, j.Client, j.Tx)
	if j.Amount != nil {
		amount, err := decimal.NewFromString(*j.Amount)
		if err != nil {
			return event.Transaction{}, fmt.Errorf("parse amount: %w", err)
		}
		txn.Amount = decimal.NullDecimal{Decimal: amount, Valid: true}
	}
	return txn, nil
}
