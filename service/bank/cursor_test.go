package bank

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_StreamsSubsequentTransactions(t *testing.T) {
	l := NewLedger()
	alice := l.GetOrCreateAccount("alice")
	bob := l.GetOrCreateAccount("bob")

	c := bob.Monitor()

	require.NoError(t, alice.Transfer(bob, 10, "tip"))
	require.NoError(t, bob.Transfer(alice, 5, "change"))
	require.NoError(t, alice.Transfer(bob, 3, "more"))

	ctx := context.Background()

	tx, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Same(t, alice, tx.Counterparty)
	assert.Equal(t, int64(10), tx.Delta)
	assert.Equal(t, "tip", tx.Comment)

	tx, err = c.Next(ctx)
	require.NoError(t, err)
	assert.Same(t, alice, tx.Counterparty)
	assert.Equal(t, int64(-5), tx.Delta)
	assert.Equal(t, "change", tx.Comment)

	tx, err = c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), tx.Delta)

	// Nothing further: the fourth Next must block until cancelled.
	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = c.Next(timeoutCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCursor_WakesOnTransfer(t *testing.T) {
	l := NewLedger()
	alice := l.GetOrCreateAccount("alice")
	bob := l.GetOrCreateAccount("bob")

	c := bob.Monitor()

	got := make(chan Transaction, 1)
	go func() {
		tx, err := c.Next(context.Background())
		if err == nil {
			got <- tx
		}
	}()

	// Give the cursor a moment to block before waking it.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, alice.Transfer(bob, 10, "tip"))

	select {
	case tx := <-got:
		assert.Equal(t, int64(10), tx.Delta)
		assert.Equal(t, "tip", tx.Comment)
	case <-time.After(time.Second):
		t.Fatal("cursor did not wake after transfer")
	}
}

func TestCursor_DoesNotBlockTransfers(t *testing.T) {
	// A blocked cursor must not hold the account lock: transfers have to
	// proceed while a Next is parked.
	l := NewLedger()
	alice := l.GetOrCreateAccount("alice")
	bob := l.GetOrCreateAccount("bob")

	c := bob.Monitor()
	go func() {
		_, _ = c.Next(context.Background())
	}()
	time.Sleep(10 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		done <- alice.Transfer(bob, 1, "through")
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("transfer blocked behind a waiting cursor")
	}
}

func TestCursor_IndependentCursors(t *testing.T) {
	l := NewLedger()
	alice := l.GetOrCreateAccount("alice")
	bob := l.GetOrCreateAccount("bob")

	c1 := bob.Monitor()
	require.NoError(t, alice.Transfer(bob, 10, "first"))
	c2 := bob.Monitor()
	require.NoError(t, alice.Transfer(bob, 20, "second"))

	ctx := context.Background()

	// c1 sees both transfers, c2 only the one after its creation.
	tx, err := c1.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", tx.Comment)
	tx, err = c1.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", tx.Comment)

	tx, err = c2.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", tx.Comment)
}

func TestCursor_SnapshotCursorContinuesPastSnapshot(t *testing.T) {
	l := NewLedger()
	alice := l.GetOrCreateAccount("alice")
	bob := l.GetOrCreateAccount("bob")

	require.NoError(t, alice.Transfer(bob, 10, "before"))

	var seen int
	c := bob.SnapshotTransactions(func(log []Transaction, balance int64) {
		seen = len(log)
		assert.Equal(t, int64(110), balance)
	})
	assert.Equal(t, 2, seen)

	require.NoError(t, alice.Transfer(bob, 5, "after"))

	tx, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "after", tx.Comment)
}

func TestCursor_CancelUnblocks(t *testing.T) {
	l := NewLedger()
	bob := l.GetOrCreateAccount("bob")

	c := bob.Monitor()
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		_, err := c.Next(ctx)
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled Next did not return")
	}
}
