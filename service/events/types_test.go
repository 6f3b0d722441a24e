package events

import (
	"testing"

	"github.com/brojonat/bankd/service/bank"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromTransaction(t *testing.T) {
	l := bank.NewLedger()
	alice := l.GetOrCreateAccount("alice")
	bob := l.GetOrCreateAccount("bob")
	require.NoError(t, alice.Transfer(bob, 30, "lunch"))

	var debit, credit bank.Transaction
	alice.SnapshotTransactions(func(log []bank.Transaction, _ int64) {
		debit = log[len(log)-1]
	})
	bob.SnapshotTransactions(func(log []bank.Transaction, _ int64) {
		credit = log[len(log)-1]
	})

	ev := FromTransaction("alice", debit)
	assert.Equal(t, "alice", ev.Account)
	assert.Equal(t, "bob", ev.Counterparty)
	assert.Equal(t, int64(-30), ev.Delta)
	assert.Equal(t, "lunch", ev.Comment)
	assert.False(t, ev.PublishedAt.IsZero())

	ev = FromTransaction("bob", credit)
	assert.Equal(t, "alice", ev.Counterparty)
	assert.Equal(t, int64(30), ev.Delta)
}

func TestFromTransaction_SeedDeposit(t *testing.T) {
	l := bank.NewLedger()
	alice := l.GetOrCreateAccount("alice")

	var seed bank.Transaction
	alice.SnapshotTransactions(func(log []bank.Transaction, _ int64) {
		seed = log[0]
	})

	ev := FromTransaction("alice", seed)
	assert.Equal(t, "-", ev.Counterparty)
	assert.Equal(t, int64(100), ev.Delta)
}
