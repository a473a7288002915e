// Package store defines the transactional store contract for the engine.
// Implementations include the in-memory store used for a single run and a
// PostgreSQL store for persistent deployments.
package store

import (
	"context"
	"iter"

	"PayEngine/internal/event"
	"PayEngine/internal/ledger"
)

// Store is the capability contract the account engine depends on. Every
// operation is atomic with respect to itself; there are no multi-key
// transactions, callers compensate explicitly on partial failure.
type Store interface {
	// InsertTransaction persists a transfer. Only deposit and withdrawal
	// kinds are accepted. Fails with ErrDuplicateTransaction when the ID
	// already exists; returns the stored copy otherwise.
	InsertTransaction(ctx context.Context, txn event.Transaction) (event.Transaction, error)

	// GetTransaction fails with ErrNotFound when the ID is absent.
	GetTransaction(ctx context.Context, id uint32) (event.Transaction, error)

	// DeleteTransaction removes a stored transfer. Deleting an absent ID is
	// not an error; the operation exists for rollback compensation.
	DeleteTransaction(ctx context.Context, id uint32) error

	// SetUnderDispute flips the dispute flag on a stored transfer. A no-op
	// when the ID is absent, so it is safe as rollback compensation.
	SetUnderDispute(ctx context.Context, id uint32, underDispute bool) error

	// GetAccount returns the client's snapshot, or a freshly zeroed one on
	// first reference. Never fails on a healthy store.
	GetAccount(ctx context.Context, clientID uint16) (ledger.Account, error)

	// UpdateAccount upserts the snapshot keyed by its client ID.
	UpdateAccount(ctx context.Context, acct ledger.Account) error

	// AllAccounts returns a finite lazy sequence over a snapshot of every
	// stored account, taken when the call is made. Order is unspecified.
	AllAccounts(ctx context.Context) (iter.Seq[ledger.Account], error)
}
