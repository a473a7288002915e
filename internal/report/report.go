// Package report turns the drained store into the output account sequence.
package report

import (
	"context"
	"iter"

	"PayEngine/internal/ledger"
	"PayEngine/internal/observability"
	"PayEngine/internal/store"
)

// Generator streams account snapshots out of a store, rounding balances for
// display. It is meant to run once, after the dispatcher has drained.
type Generator struct {
	store   store.Store
	metrics *observability.Metrics
}

func NewGenerator(st store.Store, metrics *observability.Metrics) *Generator {
	return &Generator{store: st, metrics: metrics}
}

// Accounts returns the finite sequence of snapshots with available, held
// and total truncated to the display precision. Truncation happens on the
// yielded copies only; the stored snapshots keep full precision. Order is
// unspecified.
func (g *Generator) Accounts(ctx context.Context) (iter.Seq[ledger.Account], error) {
	seq, err := g.store.AllAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if g.metrics != nil {
		g.metrics.ReportRuns.Inc()
	}

	return func(yield func(ledger.Account) bool) {
		for acct := range seq {
			acct.TruncateForDisplay()
			if g.metrics != nil {
				g.metrics.ReportAccounts.Inc()
			}
			if !yield(acct) {
				return
			}
		}
	}, nil
}
