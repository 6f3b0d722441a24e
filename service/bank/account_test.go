package bank

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertInvariant checks that an account's balance equals the sum of the
// deltas in its log, observed as one consistent snapshot.
func assertInvariant(t *testing.T, a *Account) {
	t.Helper()
	a.SnapshotTransactions(func(log []Transaction, balance int64) {
		var sum int64
		for _, tx := range log {
			sum += tx.Delta
		}
		assert.Equal(t, sum, balance, "balance must equal sum of log deltas for %s", a.Name())
	})
}

func TestTransfer(t *testing.T) {
	l := NewLedger()
	alice := l.GetOrCreateAccount("alice")
	bob := l.GetOrCreateAccount("bob")

	require.NoError(t, alice.Transfer(bob, 30, "lunch"))

	assert.Equal(t, int64(70), alice.Balance())
	assert.Equal(t, int64(130), bob.Balance())

	alice.SnapshotTransactions(func(log []Transaction, _ int64) {
		require.Len(t, log, 2)
		assert.Same(t, bob, log[1].Counterparty)
		assert.Equal(t, int64(-30), log[1].Delta)
		assert.Equal(t, "lunch", log[1].Comment)
	})
	bob.SnapshotTransactions(func(log []Transaction, _ int64) {
		require.Len(t, log, 2)
		assert.Same(t, alice, log[1].Counterparty)
		assert.Equal(t, int64(30), log[1].Delta)
		assert.Equal(t, "lunch", log[1].Comment)
	})

	assertInvariant(t, alice)
	assertInvariant(t, bob)
}

func TestTransfer_Rejections(t *testing.T) {
	tests := []struct {
		name         string
		counterparty string // "self" transfers back to the source
		amount       int64
		wantErr      error
	}{
		{name: "self transfer", counterparty: "self", amount: 1, wantErr: ErrSelfTransfer},
		{name: "self transfer wins over negative amount", counterparty: "self", amount: -5, wantErr: ErrSelfTransfer},
		{name: "zero amount", counterparty: "bob", amount: 0, wantErr: ErrNonpositiveAmount},
		{name: "negative amount", counterparty: "bob", amount: -5, wantErr: ErrNonpositiveAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger()
			alice := l.GetOrCreateAccount("alice")
			cp := alice
			if tt.counterparty != "self" {
				cp = l.GetOrCreateAccount(tt.counterparty)
			}

			err := alice.Transfer(cp, tt.amount, "x")
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsTransferError(err))

			// No state may change on a rejected transfer.
			assert.Equal(t, int64(100), alice.Balance())
			assert.Equal(t, int64(100), cp.Balance())
			alice.SnapshotTransactions(func(log []Transaction, _ int64) {
				assert.Len(t, log, 1)
			})
		})
	}
}

func TestTransfer_NotEnoughFunds(t *testing.T) {
	l := NewLedger()
	alice := l.GetOrCreateAccount("alice")
	bob := l.GetOrCreateAccount("bob")

	require.NoError(t, alice.Transfer(bob, 30, "lunch"))

	err := alice.Transfer(bob, 1000, "too much")
	require.Error(t, err)

	var nef *NotEnoughFundsError
	require.ErrorAs(t, err, &nef)
	assert.Equal(t, int64(70), nef.Available)
	assert.Equal(t, int64(1000), nef.Requested)
	assert.Equal(t, "Not enough funds: 70 XTS available, 1000 XTS requested", err.Error())
	assert.True(t, IsTransferError(err))

	// Balances and logs unchanged by the failed transfer.
	assert.Equal(t, int64(70), alice.Balance())
	assert.Equal(t, int64(130), bob.Balance())
	alice.SnapshotTransactions(func(log []Transaction, _ int64) {
		assert.Len(t, log, 2)
	})
	bob.SnapshotTransactions(func(log []Transaction, _ int64) {
		assert.Len(t, log, 2)
	})
}

func TestTransfer_Conservation(t *testing.T) {
	l := NewLedger()
	alice := l.GetOrCreateAccount("alice")
	bob := l.GetOrCreateAccount("bob")

	before := alice.Balance() + bob.Balance()
	require.NoError(t, alice.Transfer(bob, 42, "rent"))
	assert.Equal(t, before, alice.Balance()+bob.Balance())
}

func TestTransfer_ConcurrentOppositeDirections(t *testing.T) {
	// Two workers transferring in opposite directions between the same
	// pair must neither deadlock nor corrupt state.
	l := NewLedger()
	alice := l.GetOrCreateAccount("alice")
	bob := l.GetOrCreateAccount("bob")

	const rounds = 500
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_ = alice.Transfer(bob, 1, "ping")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_ = bob.Transfer(alice, 1, "pong")
		}
	}()
	wg.Wait()

	assert.Equal(t, int64(200), alice.Balance()+bob.Balance())
	assertInvariant(t, alice)
	assertInvariant(t, bob)
}

func TestTransfer_ConcurrentManyAccounts(t *testing.T) {
	l := NewLedger()
	const accounts = 8
	const rounds = 200

	all := make([]*Account, accounts)
	for i := range all {
		all[i] = l.GetOrCreateAccount(fmt.Sprintf("user-%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < accounts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				src := all[i]
				dst := all[(i+r+1)%accounts]
				err := src.Transfer(dst, 1, "churn")
				if err != nil {
					require.True(t, IsTransferError(err))
				}
			}
		}(i)
	}
	wg.Wait()

	var total int64
	for _, a := range all {
		assertInvariant(t, a)
		total += a.Balance()
	}
	assert.Equal(t, int64(accounts*InitialBalance), total)
}

func TestSnapshotTransactions_ConsistentPair(t *testing.T) {
	// Snapshots taken while transfers are in flight must always see a
	// log whose deltas sum to the reported balance.
	l := NewLedger()
	alice := l.GetOrCreateAccount("alice")
	bob := l.GetOrCreateAccount("bob")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = alice.Transfer(bob, 1, "tick")
			_ = bob.Transfer(alice, 1, "tock")
		}
	}()

	for i := 0; i < 100; i++ {
		alice.SnapshotTransactions(func(log []Transaction, balance int64) {
			var sum int64
			for _, tx := range log {
				sum += tx.Delta
			}
			require.Equal(t, sum, balance)
		})
	}
	<-done
}

func TestIsTransferError(t *testing.T) {
	assert.True(t, IsTransferError(ErrSelfTransfer))
	assert.True(t, IsTransferError(ErrNonpositiveAmount))
	assert.True(t, IsTransferError(&NotEnoughFundsError{Available: 1, Requested: 2}))
	assert.False(t, IsTransferError(nil))
	assert.False(t, IsTransferError(errors.New("boom")))
}
