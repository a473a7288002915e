package report_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"PayEngine/internal/ledger"
	"PayEngine/internal/report"
	"PayEngine/internal/store"
)

func TestAccountsRoundsForDisplayOnly(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()

	acct := ledger.NewAccount(1)
	acct.Available = decimal.RequireFromString("1.23456789")
	acct.Held = decimal.RequireFromString("0.00009")
	acct.Recalculate()
	require.NoError(t, st.UpdateAccount(ctx, acct))

	seq, err := report.NewGenerator(st, nil).Accounts(ctx)
	require.NoError(t, err)

	var got []ledger.Account
	for a := range seq {
		got = append(got, a)
	}
	require.Len(t, got, 1)

	require.Equal(t, "1.2345", got[0].Available.String())
	require.True(t, got[0].Held.IsZero(), "0.00009 truncates to zero")
	require.Equal(t, "1.2346", got[0].Total.String())

	// The stored snapshot keeps full precision.
	stored, err := st.GetAccount(ctx, 1)
	require.NoError(t, err)
	require.True(t, stored.Available.Equal(decimal.RequireFromString("1.23456789")))
}

func TestAccountsEmptyStore(t *testing.T) {
	seq, err := report.NewGenerator(store.NewMemStore(), nil).Accounts(context.Background())
	require.NoError(t, err)

	count := 0
	for range seq {
		count++
	}
	require.Zero(t, count)
}
