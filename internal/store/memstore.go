package store

import (
	"context"
	"iter"
	"sync"

	"PayEngine/internal/event"
	"PayEngine/internal/ledger"
)

// MemStore is the volatile store for a single engine run. The transaction
// map and the account map are independent critical sections so that lanes
// touching unrelated keys never serialize against each other. No lock is
// ever held while the other map is accessed.
type MemStore struct {
	txMu         sync.RWMutex
	transactions map[uint32]event.Transaction

	acctMu   sync.RWMutex
	accounts map[uint16]ledger.Account
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		transactions: make(map[uint32]event.Transaction),
		accounts:     make(map[uint16]ledger.Account),
	}
}

func (s *MemStore) InsertTransaction(_ context.Context, txn event.Transaction) (event.Transaction, error) {
	if !txn.Kind.IsTransfer() {
		return event.Transaction{}, ledger.TxError(ledger.ErrWrongReference, txn.ID)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	if _, exists := s.transactions[txn.ID]; exists {
		return event.Transaction{}, ledger.TxError(ledger.ErrDuplicateTransaction, txn.ID)
	}
	s.transactions[txn.ID] = txn
	return txn, nil
}

func (s *MemStore) GetTransaction(_ context.Context, id uint32) (event.Transaction, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()

	txn, ok := s.transactions[id]
	if !ok {
		return event.Transaction{}, ledger.TxError(ledger.ErrNotFound, id)
	}
	return txn, nil
}

func (s *MemStore) DeleteTransaction(_ context.Context, id uint32) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	delete(s.transactions, id)
	return nil
}

func (s *MemStore) SetUnderDispute(_ context.Context, id uint32, underDispute bool) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	txn, ok := s.transactions[id]
	if !ok {
		return nil
	}
	txn.UnderDispute = underDispute
	s.transactions[id] = txn
	return nil
}

func (s *MemStore) GetAccount(_ context.Context, clientID uint16) (ledger.Account, error) {
	s.acctMu.RLock()
	defer s.acctMu.RUnlock()

	if acct, ok := s.accounts[clientID]; ok {
		return acct, nil
	}
	return ledger.NewAccount(clientID), nil
}

func (s *MemStore) UpdateAccount(_ context.Context, acct ledger.Account) error {
	s.acctMu.Lock()
	defer s.acctMu.Unlock()

	s.accounts[acct.Client] = acct
	return nil
}

// AllAccounts copies the account map under the read lock and yields from the
// copy, so emission never holds the lock and later mutations are invisible
// to the returned sequence.
func (s *MemStore) AllAccounts(_ context.Context) (iter.Seq[ledger.Account], error) {
	s.acctMu.RLock()
	snapshot := make([]ledger.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		snapshot = append(snapshot, acct)
	}
	s.acctMu.RUnlock()

	return func(yield func(ledger.Account) bool) {
		for _, acct := range snapshot {
			if !yield(acct) {
				return
			}
		}
	}, nil
}
