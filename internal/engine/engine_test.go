package engine_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"PayEngine/internal/engine"
	"PayEngine/internal/event"
	"PayEngine/internal/ledger"
	"PayEngine/internal/store"
)

func newEngine(st engine.Store) *engine.Engine {
	return engine.New(st, zerolog.Nop(), nil)
}

func deposit(client uint16, id uint32, amount string) event.Transaction {
	return event.NewWithAmount(event.KindDeposit, client, id, decimal.RequireFromString(amount))
}

func withdrawal(client uint16, id uint32, amount string) event.Transaction {
	return event.NewWithAmount(event.KindWithdrawal, client, id, decimal.RequireFromString(amount))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func account(t *testing.T, st store.Store, client uint16) ledger.Account {
	t.Helper()
	acct, err := st.GetAccount(context.Background(), client)
	require.NoError(t, err)
	require.True(t, acct.Consistent(), "total != available + held for client %d", client)
	return acct
}

func TestDepositThenWithdrawalRestoresBalance(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := newEngine(st)

	require.NoError(t, eng.Process(ctx, deposit(1, 1, "100")))
	require.NoError(t, eng.Process(ctx, deposit(1, 2, "25.5")))
	require.NoError(t, eng.Process(ctx, withdrawal(1, 3, "25.5")))

	acct := account(t, st, 1)
	require.True(t, acct.Available.Equal(dec("100")))
	require.True(t, acct.Total.Equal(dec("100")))
	require.True(t, acct.Held.IsZero())
	require.False(t, acct.Locked)
}

func TestWithdrawalInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := newEngine(st)

	require.NoError(t, eng.Process(ctx, deposit(1, 1, "10")))

	err := eng.Process(ctx, withdrawal(1, 2, "10.0001"))
	require.True(t, ledger.IsKind(err, ledger.ErrInsufficientFunds))

	acct := account(t, st, 1)
	require.True(t, acct.Available.Equal(dec("10")))

	// The rejected withdrawal's record must have been compensated away.
	_, err = st.GetTransaction(ctx, 2)
	require.True(t, ledger.IsKind(err, ledger.ErrNotFound))
}

func TestDuplicateTransactionID(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := newEngine(st)

	require.NoError(t, eng.Process(ctx, deposit(1, 1, "100")))

	err := eng.Process(ctx, deposit(1, 1, "100"))
	require.True(t, ledger.IsKind(err, ledger.ErrDuplicateTransaction))

	acct := account(t, st, 1)
	require.True(t, acct.Available.Equal(dec("100")), "duplicate must not apply twice")

	// The original record survives a duplicate attempt.
	ref, err := st.GetTransaction(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, event.KindDeposit, ref.Kind)
}

func TestDisputeHoldsFunds(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := newEngine(st)

	require.NoError(t, eng.Process(ctx, deposit(1, 1, "100")))
	require.NoError(t, eng.Process(ctx, event.New(event.KindDispute, 1, 1)))

	acct := account(t, st, 1)
	require.True(t, acct.Available.IsZero())
	require.True(t, acct.Held.Equal(dec("100")))
	require.True(t, acct.Total.Equal(dec("100")))

	ref, err := st.GetTransaction(ctx, 1)
	require.NoError(t, err)
	require.True(t, ref.UnderDispute)
}

func TestDisputeMissingReferenceIsNoOp(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := newEngine(st)

	require.NoError(t, eng.Process(ctx, deposit(1, 1, "100")))
	require.NoError(t, eng.Process(ctx, event.New(event.KindDispute, 1, 999)))

	acct := account(t, st, 1)
	require.True(t, acct.Available.Equal(dec("100")))
	require.True(t, acct.Held.IsZero())
}

func TestDoubleDisputeRejected(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := newEngine(st)

	require.NoError(t, eng.Process(ctx, deposit(1, 1, "100")))
	require.NoError(t, eng.Process(ctx, deposit(1, 2, "40")))
	require.NoError(t, eng.Process(ctx, event.New(event.KindDispute, 1, 1)))

	err := eng.Process(ctx, event.New(event.KindDispute, 1, 1))
	require.True(t, ledger.IsKind(err, ledger.ErrDoubleDispute))

	// Account reflects only the first dispute.
	acct := account(t, st, 1)
	require.True(t, acct.Available.Equal(dec("40")))
	require.True(t, acct.Held.Equal(dec("100")))
}

func TestDisputeWrongClient(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := newEngine(st)

	require.NoError(t, eng.Process(ctx, deposit(1, 1, "100")))

	err := eng.Process(ctx, event.New(event.KindDispute, 2, 1))
	require.True(t, ledger.IsKind(err, ledger.ErrWrongClient))

	acct := account(t, st, 1)
	require.True(t, acct.Available.Equal(dec("100")))
	require.True(t, acct.Held.IsZero())
}

func TestDisputeWithdrawalIsWrongReference(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := newEngine(st)

	require.NoError(t, eng.Process(ctx, deposit(1, 1, "100")))
	require.NoError(t, eng.Process(ctx, withdrawal(1, 2, "30")))

	err := eng.Process(ctx, event.New(event.KindDispute, 1, 2))
	require.True(t, ledger.IsKind(err, ledger.ErrWrongReference))

	acct := account(t, st, 1)
	require.True(t, acct.Available.Equal(dec("70")))
}

func TestDisputeInsufficientAvailable(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := newEngine(st)

	// Deposit then withdraw most of it: the deposit can no longer be
	// fully held back.
	require.NoError(t, eng.Process(ctx, deposit(1, 1, "100")))
	require.NoError(t, eng.Process(ctx, withdrawal(1, 2, "60")))

	err := eng.Process(ctx, event.New(event.KindDispute, 1, 1))
	require.True(t, ledger.IsKind(err, ledger.ErrInsufficientFunds))

	acct := account(t, st, 1)
	require.True(t, acct.Available.Equal(dec("40")))
	require.True(t, acct.Held.IsZero())
}

func TestResolveReleasesHold(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := newEngine(st)

	require.NoError(t, eng.Process(ctx, deposit(1, 1, "100")))
	require.NoError(t, eng.Process(ctx, event.New(event.KindDispute, 1, 1)))
	require.NoError(t, eng.Process(ctx, event.New(event.KindResolve, 1, 1)))

	acct := account(t, st, 1)
	require.True(t, acct.Available.Equal(dec("100")))
	require.True(t, acct.Held.IsZero())
	require.False(t, acct.Locked)

	ref, err := st.GetTransaction(ctx, 1)
	require.NoError(t, err)
	require.False(t, ref.UnderDispute)
}

func TestResolveWithoutDisputeIsNoOp(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := newEngine(st)

	require.NoError(t, eng.Process(ctx, deposit(1, 1, "100")))
	require.NoError(t, eng.Process(ctx, event.New(event.KindResolve, 1, 1)))

	acct := account(t, st, 1)
	require.True(t, acct.Available.Equal(dec("100")))
	require.True(t, acct.Held.IsZero())
}

func TestChargebackLocksAccount(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := newEngine(st)

	require.NoError(t, eng.Process(ctx, deposit(1, 1, "100")))
	require.NoError(t, eng.Process(ctx, event.New(event.KindDispute, 1, 1)))
	require.NoError(t, eng.Process(ctx, event.New(event.KindChargeBack, 1, 1)))

	acct := account(t, st, 1)
	require.True(t, acct.Available.IsZero())
	require.True(t, acct.Held.IsZero())
	require.True(t, acct.Total.IsZero())
	require.True(t, acct.Locked)

	// Everything after the chargeback is rejected.
	err := eng.Process(ctx, deposit(1, 2, "50"))
	require.True(t, ledger.IsKind(err, ledger.ErrAccountLocked))

	acct = account(t, st, 1)
	require.True(t, acct.Total.IsZero())

	// The rejected deposit's record was compensated away.
	_, err = st.GetTransaction(ctx, 2)
	require.True(t, ledger.IsKind(err, ledger.ErrNotFound))
}

func TestNegativeAmountDropped(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := newEngine(st)

	require.NoError(t, eng.Process(ctx, deposit(1, 1, "-5")))

	_, err := st.GetTransaction(ctx, 1)
	require.True(t, ledger.IsKind(err, ledger.ErrNotFound), "invalid event must never reach the store")

	acct := account(t, st, 1)
	require.True(t, acct.Total.IsZero())
}

func TestTransferWithoutAmountDropped(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := newEngine(st)

	require.NoError(t, eng.Process(ctx, event.New(event.KindDeposit, 1, 1)))

	_, err := st.GetTransaction(ctx, 1)
	require.True(t, ledger.IsKind(err, ledger.ErrNotFound))
}

// TestFullScenario runs the reference eight-event sequence across two
// clients and checks the exact final snapshots.
func TestFullScenario(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := newEngine(st)

	events := []event.Transaction{
		deposit(1, 1, "100"),
		withdrawal(1, 2, "50"),
		deposit(2, 3, "100"),
		deposit(1, 4, "200"),
		event.New(event.KindDispute, 1, 4),
		event.New(event.KindResolve, 1, 4),
		event.New(event.KindDispute, 2, 3),
		event.New(event.KindChargeBack, 2, 3),
	}
	for _, txn := range events {
		_ = eng.Process(ctx, txn)
	}

	c1 := account(t, st, 1)
	require.True(t, c1.Available.Equal(dec("250")))
	require.True(t, c1.Held.IsZero())
	require.True(t, c1.Total.Equal(dec("250")))
	require.False(t, c1.Locked)

	c2 := account(t, st, 2)
	require.True(t, c2.Available.IsZero())
	require.True(t, c2.Held.IsZero())
	require.True(t, c2.Total.IsZero())
	require.True(t, c2.Locked)
}

// failingStore wraps a real store and fails account updates, to exercise
// the compensation path.
type failingStore struct {
	*store.MemStore
	failUpdates bool
}

func (f *failingStore) UpdateAccount(ctx context.Context, acct ledger.Account) error {
	if f.failUpdates {
		return ledger.NewError(ledger.ErrIOFailure, "injected update failure")
	}
	return f.MemStore.UpdateAccount(ctx, acct)
}

func TestDepositRollbackOnUpdateFailure(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{MemStore: store.NewMemStore(), failUpdates: true}
	eng := newEngine(fs)

	err := eng.Process(ctx, deposit(1, 1, "100"))
	require.True(t, ledger.IsKind(err, ledger.ErrIOFailure))

	// Compensation must have deleted the inserted record so the ID is
	// reusable once the store recovers.
	_, err = fs.GetTransaction(ctx, 1)
	require.True(t, ledger.IsKind(err, ledger.ErrNotFound))

	fs.failUpdates = false
	require.NoError(t, eng.Process(ctx, deposit(1, 1, "100")))
	acct := account(t, fs.MemStore, 1)
	require.True(t, acct.Available.Equal(dec("100")))
}

func TestDisputeRollbackOnUpdateFailure(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{MemStore: store.NewMemStore()}
	eng := newEngine(fs)

	require.NoError(t, eng.Process(ctx, deposit(1, 1, "100")))

	fs.failUpdates = true
	err := eng.Process(ctx, event.New(event.KindDispute, 1, 1))
	require.True(t, ledger.IsKind(err, ledger.ErrIOFailure))

	// Compensation reset the dispute flag the failed event had set.
	ref, err := fs.GetTransaction(ctx, 1)
	require.NoError(t, err)
	require.False(t, ref.UnderDispute)
}

func TestRunDrainsMailboxOnClose(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	eng := newEngine(st)

	mailbox := make(chan event.Transaction, 8)
	mailbox <- deposit(7, 1, "10")
	mailbox <- deposit(7, 2, "15")
	mailbox <- withdrawal(7, 3, "5")
	close(mailbox)

	require.NoError(t, eng.Run(ctx, mailbox))

	acct := account(t, st, 7)
	require.True(t, acct.Available.Equal(dec("20")))
}
