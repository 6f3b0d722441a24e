package bank

import "sync"

// InitialBalance is the seed deposit credited to every account at
// creation, in XTS.
const InitialBalance = 100

// Account is a named balance with an append-only transaction log.
//
// One mutex guards balance and log together; both are only ever read or
// written with mu held, so any observed (log, balance) pair is
// consistent. updated is closed and replaced under mu whenever an entry
// is appended, which is how blocked cursors are woken (see Cursor.Next).
type Account struct {
	name string
	seq  uint64 // creation order; fixes the lock order in Transfer

	mu      sync.Mutex
	balance int64
	log     []Transaction
	updated chan struct{}
}

func newAccount(name string, seq uint64) *Account {
	a := &Account{
		name:    name,
		seq:     seq,
		balance: InitialBalance,
		updated: make(chan struct{}),
	}
	a.log = []Transaction{{Delta: InitialBalance, Comment: "Initial deposit for " + name}}
	return a
}

// Name returns the account's immutable name.
func (a *Account) Name() string { return a.name }

// Balance returns the current balance in XTS.
func (a *Account) Balance() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// SnapshotTransactions invokes fn with a copy of the full transaction
// log and the balance as of the same instant, then returns a cursor
// positioned just past the end of that snapshot: the first Next yields
// the first transaction fn did not see. fn runs with the account lock
// held and must not call back into the account.
func (a *Account) SnapshotTransactions(fn func(log []Transaction, balance int64)) *Cursor {
	a.mu.Lock()
	defer a.mu.Unlock()
	snapshot := make([]Transaction, len(a.log))
	copy(snapshot, a.log)
	fn(snapshot, a.balance)
	return &Cursor{account: a, pos: len(a.log)}
}

// Monitor returns a cursor positioned at the current end of the log. It
// is SnapshotTransactions with a no-op callback, minus the copy.
func (a *Account) Monitor() *Cursor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &Cursor{account: a, pos: len(a.log)}
}

// Transfer moves amount XTS from a to counterparty: a debit entry on a's
// log and a credit entry on counterparty's, appended as one atomic step.
// Both account locks are held for both mutations, so a
// debited-but-not-credited state is never observable and the combined
// balance of the pair is unchanged.
//
// Validation order is fixed: self-transfer, then non-positive amount
// (both before taking any lock), then the funds check under both locks.
// Nothing is mutated on any error path.
//
// The two locks are always acquired in account creation order (lower seq
// first), so concurrent transfers moving in opposite directions between
// the same pair cannot wait on each other in a cycle. This is the only
// operation that holds two account locks at once.
func (a *Account) Transfer(counterparty *Account, amount int64, comment string) error {
	if a == counterparty {
		return ErrSelfTransfer
	}
	if amount <= 0 {
		return ErrNonpositiveAmount
	}

	first, second := a, counterparty
	if counterparty.seq < a.seq {
		first, second = counterparty, a
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if a.balance < amount {
		return &NotEnoughFundsError{Available: a.balance, Requested: amount}
	}

	a.applyLocked(counterparty, -amount, comment)
	counterparty.applyLocked(a, amount, comment)
	return nil
}

// applyLocked appends a log entry, adjusts the balance and wakes every
// cursor blocked on this account. Caller must hold a.mu.
func (a *Account) applyLocked(counterparty *Account, delta int64, comment string) {
	a.balance += delta
	a.log = append(a.log, Transaction{Counterparty: counterparty, Delta: delta, Comment: comment})
	close(a.updated)
	a.updated = make(chan struct{})
}
