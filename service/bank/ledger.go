package bank

import (
	"sync"
	"sync/atomic"
)

// accountSeq is a process-wide creation counter. Transfer uses it as the
// total order for dual-lock acquisition, so it stays unique even when
// several ledgers exist in one process (tests do this).
var accountSeq atomic.Uint64

// Ledger is the registry owning every account for the life of the
// process. Accounts are created on first lookup and never removed.
//
// The ledger's lock guards only the map. It is never held while an
// account lock is taken, so registry traffic cannot contend with
// transfers.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]*Account
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]*Account)}
}

// GetOrCreateAccount returns the account named name, creating it with
// the seed deposit on first lookup. Check-and-insert happens under the
// ledger lock, so exactly one account ever exists per name even when
// concurrent sessions race on the same name. It never fails.
func (l *Ledger) GetOrCreateAccount(name string) *Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.accounts[name]; ok {
		return a
	}
	a := newAccount(name, accountSeq.Add(1))
	l.accounts[name] = a
	return a
}

// Size returns the number of accounts in the ledger.
func (l *Ledger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.accounts)
}
