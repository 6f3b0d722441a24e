package bank

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateAccount_SeedDeposit(t *testing.T) {
	l := NewLedger()

	alice := l.GetOrCreateAccount("alice")
	require.NotNil(t, alice)

	assert.Equal(t, "alice", alice.Name())
	assert.Equal(t, int64(100), alice.Balance())

	var log []Transaction
	alice.SnapshotTransactions(func(txs []Transaction, balance int64) {
		log = txs
		assert.Equal(t, int64(100), balance)
	})
	require.Len(t, log, 1)
	assert.Nil(t, log[0].Counterparty)
	assert.Equal(t, int64(100), log[0].Delta)
	assert.Equal(t, "Initial deposit for alice", log[0].Comment)
	assert.Equal(t, "-", log[0].CounterpartyName())
}

func TestGetOrCreateAccount_ReturnsSameAccount(t *testing.T) {
	l := NewLedger()

	a := l.GetOrCreateAccount("alice")
	b := l.GetOrCreateAccount("alice")

	assert.Same(t, a, b)
	assert.Equal(t, 1, l.Size())
}

func TestGetOrCreateAccount_ConcurrentSameName(t *testing.T) {
	l := NewLedger()

	const workers = 64
	accounts := make([]*Account, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			accounts[i] = l.GetOrCreateAccount("x")
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, l.Size())
	for i := 1; i < workers; i++ {
		assert.Same(t, accounts[0], accounts[i])
	}
}

func TestLedger_IndependentLedgers(t *testing.T) {
	// Separate ledgers must never share accounts, and transfers inside
	// each must still be safe (creation sequence is process-wide).
	l1 := NewLedger()
	l2 := NewLedger()

	a1 := l1.GetOrCreateAccount("alice")
	a2 := l2.GetOrCreateAccount("alice")
	require.NotSame(t, a1, a2)

	b2 := l2.GetOrCreateAccount("bob")
	require.NoError(t, a2.Transfer(b2, 10, "hi"))
	assert.Equal(t, int64(100), a1.Balance())
	assert.Equal(t, int64(90), a2.Balance())
}
