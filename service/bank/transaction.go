package bank

// Transaction is one immutable entry in an account's log: the effect of
// a single transfer on the owning account's balance, in XTS. Entries are
// appended and never mutated or removed.
//
// Counterparty points at the other account involved in the transfer. It
// is a lookup-only back-reference — every account is owned by its Ledger
// and outlives all transactions — and is nil for the seed deposit.
type Transaction struct {
	Counterparty *Account
	Delta        int64
	Comment      string
}

// CounterpartyName returns the counterparty's name, or "-" for the seed
// deposit. This is the form the text protocol prints.
func (t Transaction) CounterpartyName() string {
	if t.Counterparty == nil {
		return "-"
	}
	return t.Counterparty.Name()
}
