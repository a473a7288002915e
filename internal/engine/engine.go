// Package engine implements the per-lane transaction state machine. One
// Engine instance consumes a single mailbox, so every event it sees for a
// given client arrives in dispatch order.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"PayEngine/internal/event"
	"PayEngine/internal/ledger"
	"PayEngine/internal/observability"
)

// Engine applies ledger events to accounts through the store contract.
// Business-rule failures are contained per event: they roll back partial
// store effects, get logged, and never stop the lane.
type Engine struct {
	store   Store
	log     zerolog.Logger
	metrics *observability.Metrics
}

// Store is the subset of store capabilities the engine needs. It matches
// the full store contract; declaring it here keeps the engine testable
// against fault-injecting fakes.
type Store interface {
	InsertTransaction(ctx context.Context, txn event.Transaction) (event.Transaction, error)
	GetTransaction(ctx context.Context, id uint32) (event.Transaction, error)
	DeleteTransaction(ctx context.Context, id uint32) error
	SetUnderDispute(ctx context.Context, id uint32, underDispute bool) error
	GetAccount(ctx context.Context, clientID uint16) (ledger.Account, error)
	UpdateAccount(ctx context.Context, acct ledger.Account) error
}

func New(st Store, log zerolog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{store: st, log: log, metrics: metrics}
}

// Run consumes the mailbox until it is closed and drained. Per-event
// failures are absorbed; Run only returns early when ctx is cancelled.
func (e *Engine) Run(ctx context.Context, mailbox <-chan event.Transaction) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case txn, ok := <-mailbox:
			if !ok {
				return nil
			}

			start := time.Now()
			err := e.Process(ctx, txn)
			if e.metrics != nil {
				e.metrics.EventDuration.Observe(time.Since(start).Seconds())
			}

			if err != nil {
				if e.metrics != nil {
					e.metrics.EventsRejected.WithLabelValues(txn.Kind.String(), rejectReason(err)).Inc()
				}
				e.log.Warn().
					Err(err).
					Stringer("kind", txn.Kind).
					Uint32("tx", txn.ID).
					Uint16("client", txn.ClientID).
					Msg("event rejected")
				continue
			}
			if e.metrics != nil {
				e.metrics.EventsApplied.WithLabelValues(txn.Kind.String()).Inc()
			}
		}
	}
}

// Process validates and applies one event. A nil return means the event was
// either applied or deliberately ignored (invalid amount, missing
// reference, resolve of an undisputed transfer). A non-nil return means the
// event was rejected and any partial store effect has been compensated.
func (e *Engine) Process(ctx context.Context, txn event.Transaction) error {
	if !txn.ValidAmount() {
		if e.metrics != nil {
			e.metrics.EventsDropped.Inc()
		}
		e.log.Debug().
			Stringer("kind", txn.Kind).
			Uint32("tx", txn.ID).
			Uint16("client", txn.ClientID).
			Msg("dropping event with invalid amount")
		return nil
	}

	switch txn.Kind {
	case event.KindDeposit, event.KindWithdrawal:
		return e.processTransfer(ctx, txn)
	case event.KindDispute, event.KindResolve, event.KindChargeBack:
		return e.processReference(ctx, txn)
	default:
		return ledger.TxError(ledger.ErrWrongReference, txn.ID)
	}
}

// processTransfer handles deposits and withdrawals. The transaction record
// is inserted first; a duplicate ID aborts before any account access, while
// every later failure deletes the just-inserted record again.
func (e *Engine) processTransfer(ctx context.Context, txn event.Transaction) error {
	if _, err := e.store.InsertTransaction(ctx, txn); err != nil {
		return err
	}

	fail := func(cause error) error {
		e.compensate(ctx, txn)
		return cause
	}

	acct, err := e.store.GetAccount(ctx, txn.ClientID)
	if err != nil {
		return fail(err)
	}
	if acct.Locked {
		return fail(ledger.ClientError(ledger.ErrAccountLocked, txn.ID, txn.ClientID))
	}

	amount := txn.Amount.Decimal
	switch txn.Kind {
	case event.KindDeposit:
		acct.Available = acct.Available.Add(amount)
	case event.KindWithdrawal:
		if acct.Available.LessThan(amount) {
			return fail(ledger.ClientError(ledger.ErrInsufficientFunds, txn.ID, txn.ClientID))
		}
		acct.Available = acct.Available.Sub(amount)
	}
	acct.Recalculate()

	if err := e.store.UpdateAccount(ctx, acct); err != nil {
		return fail(err)
	}
	return nil
}

// processReference handles dispute, resolve and chargeback. The referenced
// transfer must be a deposit of the same client; a missing reference is a
// silent no-op, as is resolving or charging back a transfer that is not
// under dispute.
func (e *Engine) processReference(ctx context.Context, txn event.Transaction) error {
	fail := func(cause error) error {
		e.compensate(ctx, txn)
		return cause
	}

	acct, err := e.store.GetAccount(ctx, txn.ClientID)
	if err != nil {
		return fail(err)
	}
	if acct.Locked {
		return fail(ledger.ClientError(ledger.ErrAccountLocked, txn.ID, txn.ClientID))
	}

	ref, err := e.store.GetTransaction(ctx, txn.ID)
	if err != nil {
		if ledger.IsKind(err, ledger.ErrNotFound) {
			e.log.Debug().
				Stringer("kind", txn.Kind).
				Uint32("tx", txn.ID).
				Msg("referenced transaction not found, ignoring")
			return nil
		}
		return fail(err)
	}

	if ref.Kind != event.KindDeposit {
		return fail(ledger.TxError(ledger.ErrWrongReference, txn.ID))
	}
	if ref.ClientID != txn.ClientID {
		return fail(ledger.ClientError(ledger.ErrWrongClient, txn.ID, txn.ClientID))
	}

	amount := ref.Amount.Decimal
	switch txn.Kind {
	case event.KindDispute:
		if ref.UnderDispute {
			return fail(ledger.TxError(ledger.ErrDoubleDispute, txn.ID))
		}
		if acct.Available.LessThan(amount) {
			return fail(ledger.ClientError(ledger.ErrInsufficientFunds, txn.ID, txn.ClientID))
		}
		acct.Available = acct.Available.Sub(amount)
		acct.Held = acct.Held.Add(amount)
		if err := e.store.SetUnderDispute(ctx, txn.ID, true); err != nil {
			return fail(err)
		}

	case event.KindResolve, event.KindChargeBack:
		if !ref.UnderDispute {
			e.log.Debug().
				Stringer("kind", txn.Kind).
				Uint32("tx", txn.ID).
				Msg("referenced transaction not under dispute, ignoring")
			return nil
		}
		if acct.Held.LessThan(amount) {
			return fail(ledger.ClientError(ledger.ErrInsufficientFunds, txn.ID, txn.ClientID))
		}
		acct.Held = acct.Held.Sub(amount)
		if txn.Kind == event.KindResolve {
			acct.Available = acct.Available.Add(amount)
		} else {
			acct.Locked = true
		}
		if err := e.store.SetUnderDispute(ctx, txn.ID, false); err != nil {
			return fail(err)
		}
	}
	acct.Recalculate()

	if err := e.store.UpdateAccount(ctx, acct); err != nil {
		return fail(err)
	}
	return nil
}

// compensate reverses the store-visible effect of a partially applied
// event. Each compensation is idempotent; a compensation failure is logged
// and swallowed so the lane stays live, at the cost of a known,
// logged-but-uncorrected inconsistency on a double failure.
func (e *Engine) compensate(ctx context.Context, txn event.Transaction) {
	var err error
	switch txn.Kind {
	case event.KindDeposit, event.KindWithdrawal:
		err = e.store.DeleteTransaction(ctx, txn.ID)
	case event.KindDispute:
		err = e.store.SetUnderDispute(ctx, txn.ID, false)
	case event.KindResolve, event.KindChargeBack:
		err = e.store.SetUnderDispute(ctx, txn.ID, true)
	}

	if err != nil {
		if e.metrics != nil {
			e.metrics.RollbackErrors.Inc()
		}
		e.log.Error().
			Err(err).
			Stringer("kind", txn.Kind).
			Uint32("tx", txn.ID).
			Uint16("client", txn.ClientID).
			Msg("rollback failed, store may be inconsistent")
	}
}

func rejectReason(err error) string {
	var le *ledger.Error
	if errors.As(err, &le) {
		return le.Kind.String()
	}
	return "unknown"
}
