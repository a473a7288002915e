package csvio

import (
	"encoding/csv"
	"io"
	"iter"
	"strconv"

	"PayEngine/internal/ledger"
)

// WriteAccounts encodes the account sequence as one row per client under a
// `client,available,held,total,locked` header. The caller is expected to
// hand in the already-rounded report sequence.
func WriteAccounts(w io.Writer, accounts iter.Seq[ledger.Account]) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"client", "available", "held", "total", "locked"}); err != nil {
		return err
	}

	for acct := range accounts {
		row := []string{
			strconv.FormatUint(uint64(acct.Client), 10),
			acct.Available.String(),
			acct.Held.String(),
			acct.Total.String(),
			strconv.FormatBool(acct.Locked),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
