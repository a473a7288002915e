package ledger

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates every failure the engine, store and dispatcher can
// produce. The set is closed: call sites switch over it exhaustively.
type ErrorKind uint8

const (
	// ErrDuplicateTransaction: a transfer reused an existing transaction ID.
	ErrDuplicateTransaction ErrorKind = iota
	// ErrNotFound: the store has no record for the requested ID.
	ErrNotFound
	// ErrAccountLocked: the account took a chargeback and accepts nothing.
	ErrAccountLocked
	// ErrInsufficientFunds: available (or held) balance cannot cover the amount.
	ErrInsufficientFunds
	// ErrWrongClient: a reference event named a transfer of another client.
	ErrWrongClient
	// ErrDoubleDispute: the referenced transfer is already under dispute.
	ErrDoubleDispute
	// ErrWrongReference: the referenced transaction is not a disputable deposit.
	ErrWrongReference
	// ErrJoinFailure: a lane processor terminated abnormally.
	ErrJoinFailure
	// ErrIOFailure: a boundary adapter or backing store failed.
	ErrIOFailure
)

func (k ErrorKind) String() string {
	switch k {
	case ErrDuplicateTransaction:
		return "duplicate transaction"
	case ErrNotFound:
		return "not found"
	case ErrAccountLocked:
		return "account locked"
	case ErrInsufficientFunds:
		return "insufficient available funds"
	case ErrWrongClient:
		return "wrong client for referenced transaction"
	case ErrDoubleDispute:
		return "transaction already under dispute"
	case ErrWrongReference:
		return "wrong transaction reference"
	case ErrJoinFailure:
		return "lane processor failed"
	case ErrIOFailure:
		return "io failure"
	default:
		return "unknown error"
	}
}

// Error is the tagged error carried through the core. Tx and Client are
// zero when they do not apply.
type Error struct {
	Kind   ErrorKind
	Tx     uint32
	Client uint16
	Detail string
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Tx != 0 {
		msg = fmt.Sprintf("%s: tx=%d", msg, e.Tx)
	}
	if e.Client != 0 {
		msg = fmt.Sprintf("%s client=%d", msg, e.Client)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	return msg
}

// NewError builds a bare tagged error.
func NewError(kind ErrorKind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// TxError tags an error with the transaction it concerns.
func TxError(kind ErrorKind, tx uint32) *Error {
	return &Error{Kind: kind, Tx: tx}
}

// ClientError tags an error with both transaction and client.
func ClientError(kind ErrorKind, tx uint32, client uint16) *Error {
	return &Error{Kind: kind, Tx: tx, Client: client}
}

// IsKind reports whether err is (or wraps) a tagged error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind == kind
	}
	return false
}
