// Package csvio adapts the engine's boundaries to delimited byte streams:
// transaction rows in, rounded account rows out.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"PayEngine/internal/event"
)

// ReadTransactions decodes `type, client, tx, amount` rows into a lazy
// sequence of decode attempts. A malformed row yields a non-nil error for
// that row and the stream continues; the caller decides to skip or abort.
// A leading header row is recognized and skipped.
func ReadTransactions(r io.Reader) iter.Seq2[event.Transaction, error] {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	return func(yield func(event.Transaction, error) bool) {
		first := true
		for {
			record, err := cr.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				if !yield(event.Transaction{}, err) {
					return
				}
				continue
			}

			if first {
				first = false
				if len(record) > 0 && strings.TrimSpace(record[0]) == "type" {
					continue
				}
			}

			txn, err := parseRecord(record)
			if !yield(txn, err) {
				return
			}
		}
	}
}

func parseRecord(record []string) (event.Transaction, error) {
	if len(record) < 3 {
		return event.Transaction{}, fmt.Errorf("record has %d fields, want at least 3", len(record))
	}

	kind, err := event.ParseKind(strings.TrimSpace(record[0]))
	if err != nil {
		return event.Transaction{}, err
	}

	client, err := strconv.ParseUint(strings.TrimSpace(record[1]), 10, 16)
	if err != nil {
		return event.Transaction{}, fmt.Errorf("parse client id: %w", err)
	}

	id, err := strconv.ParseUint(strings.TrimSpace(record[2]), 10, 32)
	if err != nil {
		return event.Transaction{}, fmt.Errorf("parse transaction id: %w", err)
	}

	txn := event.New(kind, uint16(client), uint32(id))
	if len(record) > 3 {
		if field := strings.TrimSpace(record[3]); field != "" {
			amount, err := decimal.NewFromString(field)
			if err != nil {
				return event.Transaction{}, fmt.Errorf("parse amount: %w", err)
			}
			txn.Amount = decimal.NullDecimal{Decimal: amount, Valid: true}
		}
	}
	return txn, nil
}
