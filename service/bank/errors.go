package bank

import (
	"errors"
	"fmt"
)

// Transfer rejections are the only errors the core produces; every other
// operation always succeeds. The message text is what the text protocol
// sends to clients verbatim, hence the capitalization.
var (
	// ErrSelfTransfer is returned when source and destination are the
	// same account.
	ErrSelfTransfer = errors.New("Transfer to yourself")

	// ErrNonpositiveAmount is returned for a zero or negative amount.
	ErrNonpositiveAmount = errors.New("Transfer of non-positive amount")
)

// NotEnoughFundsError is returned when the source balance cannot cover
// the requested amount at validation time. Neither account is mutated.
type NotEnoughFundsError struct {
	Available int64
	Requested int64
}

func (e *NotEnoughFundsError) Error() string {
	return fmt.Sprintf("Not enough funds: %d XTS available, %d XTS requested", e.Available, e.Requested)
}

// IsTransferError reports whether err is one of the typed transfer
// rejections. Callers use it to distinguish a rejected transfer (report
// to the client, keep the session alive) from an infrastructure failure.
func IsTransferError(err error) bool {
	var nef *NotEnoughFundsError
	return errors.Is(err, ErrSelfTransfer) ||
		errors.Is(err, ErrNonpositiveAmount) ||
		errors.As(err, &nef)
}
