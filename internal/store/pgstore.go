package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/shopspring/decimal"

	"PayEngine/internal/event"
	"PayEngine/internal/ledger"
)

// PGStore implements the Store contract on PostgreSQL through database/sql.
// It exists so a deployment can keep transaction records and account
// snapshots across runs; the engine is oblivious to which implementation it
// talks to.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// OpenPostgres opens and pings a connection pool for the given DSN.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the two tables when they are missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id            BIGINT PRIMARY KEY,
	kind          TEXT NOT NULL,
	client_id     INTEGER NOT NULL,
	amount        NUMERIC,
	under_dispute BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS accounts (
	client_id INTEGER PRIMARY KEY,
	available NUMERIC NOT NULL,
	held      NUMERIC NOT NULL,
	total     NUMERIC NOT NULL,
	locked    BOOLEAN NOT NULL DEFAULT FALSE
);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PGStore) InsertTransaction(ctx context.Context, txn event.Transaction) (event.Transaction, error) {
	if !txn.Kind.IsTransfer() {
		return event.Transaction{}, ledger.TxError(ledger.ErrWrongReference, txn.ID)
	}

	var amount sql.NullString
	if txn.Amount.Valid {
		amount = sql.NullString{String: txn.Amount.Decimal.String(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, kind, client_id, amount, under_dispute)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		int64(txn.ID), txn.Kind.String(), int32(txn.ClientID), amount, txn.UnderDispute)
	if err != nil {
		return event.Transaction{}, ledger.NewError(ledger.ErrIOFailure, err.Error())
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return event.Transaction{}, ledger.NewError(ledger.ErrIOFailure, err.Error())
	}
	if rows == 0 {
		return event.Transaction{}, ledger.TxError(ledger.ErrDuplicateTransaction, txn.ID)
	}
	return txn, nil
}

func (s *PGStore) GetTransaction(ctx context.Context, id uint32) (event.Transaction, error) {
	var (
		kindName     string
		clientID     int32
		amount       sql.NullString
		underDispute bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, client_id, amount, under_dispute FROM transactions WHERE id = $1`,
		int64(id)).Scan(&kindName, &clientID, &amount, &underDispute)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Transaction{}, ledger.TxError(ledger.ErrNotFound, id)
	}
	if err != nil {
		return event.Transaction{}, ledger.NewError(ledger.ErrIOFailure, err.Error())
	}

	kind, err := event.ParseKind(kindName)
	if err != nil {
		return event.Transaction{}, ledger.NewError(ledger.ErrIOFailure, err.Error())
	}

	txn := event.New(kind, uint16(clientID), id)
	txn.UnderDispute = underDispute
	if amount.Valid {
		dec, err := decimal.NewFromString(amount.String)
		if err != nil {
			return event.Transaction{}, ledger.NewError(ledger.ErrIOFailure, err.Error())
		}
		txn.Amount = decimal.NullDecimal{Decimal: dec, Valid: true}
	}
	return txn, nil
}

func (s *PGStore) DeleteTransaction(ctx context.Context, id uint32) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = $1`, int64(id)); err != nil {
		return ledger.NewError(ledger.ErrIOFailure, err.Error())
	}
	return nil
}

func (s *PGStore) SetUnderDispute(ctx context.Context, id uint32, underDispute bool) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET under_dispute = $2 WHERE id = $1`,
		int64(id), underDispute); err != nil {
		return ledger.NewError(ledger.ErrIOFailure, err.Error())
	}
	return nil
}

func (s *PGStore) GetAccount(ctx context.Context, clientID uint16) (ledger.Account, error) {
	var (
		available, held, total string
		locked                 bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT available, held, total, locked FROM accounts WHERE client_id = $1`,
		int32(clientID)).Scan(&available, &held, &total, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.NewAccount(clientID), nil
	}
	if err != nil {
		return ledger.Account{}, ledger.NewError(ledger.ErrIOFailure, err.Error())
	}
	return scanAccount(clientID, available, held, total, locked)
}

func (s *PGStore) UpdateAccount(ctx context.Context, acct ledger.Account) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (client_id, available, held, total, locked)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (client_id) DO UPDATE
		 SET available = EXCLUDED.available,
		     held      = EXCLUDED.held,
		     total     = EXCLUDED.total,
		     locked    = EXCLUDED.locked`,
		int32(acct.Client), acct.Available.String(), acct.Held.String(),
		acct.Total.String(), acct.Locked); err != nil {
		return ledger.NewError(ledger.ErrIOFailure, err.Error())
	}
	return nil
}

// AllAccounts reads every row into memory before yielding, so the sequence
// never holds a live cursor while the consumer formats output.
func (s *PGStore) AllAccounts(ctx context.Context) (iter.Seq[ledger.Account], error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT client_id, available, held, total, locked FROM accounts`)
	if err != nil {
		return nil, ledger.NewError(ledger.ErrIOFailure, err.Error())
	}
	defer rows.Close()

	var snapshot []ledger.Account
	for rows.Next() {
		var (
			clientID               int32
			available, held, total string
			locked                 bool
		)
		if err := rows.Scan(&clientID, &available, &held, &total, &locked); err != nil {
			return nil, ledger.NewError(ledger.ErrIOFailure, err.Error())
		}
		acct, err := scanAccount(uint16(clientID), available, held, total, locked)
		if err != nil {
			return nil, err
		}
		snapshot = append(snapshot, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.NewError(ledger.ErrIOFailure, err.Error())
	}

	return func(yield func(ledger.Account) bool) {
		for _, acct := range snapshot {
			if !yield(acct) {
				return
			}
		}
	}, nil
}

func scanAccount(clientID uint16, available, held, total string, locked bool) (ledger.Account, error) {
	av, err := decimal.NewFromString(available)
	if err != nil {
		return ledger.Account{}, ledger.NewError(ledger.ErrIOFailure, err.Error())
	}
	hl, err := decimal.NewFromString(held)
	if err != nil {
		return ledger.Account{}, ledger.NewError(ledger.ErrIOFailure, err.Error())
	}
	tt, err := decimal.NewFromString(total)
	if err != nil {
		return ledger.Account{}, ledger.NewError(ledger.ErrIOFailure, err.Error())
	}
	return ledger.Account{
		Client:    clientID,
		Available: av,
		Held:      hl,
		Total:     tt,
		Locked:    locked,
	}, nil
}
