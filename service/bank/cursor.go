package bank

import "context"

// Cursor is a per-subscriber position into one account's transaction
// log. It holds no lock between calls, never skips an entry and never
// yields one twice: the position advances exactly one step per
// successful Next.
//
// A Cursor is not safe for concurrent use. Independent cursors on the
// same account are fully independent and each sees the full stream from
// its own starting point.
type Cursor struct {
	account *Account
	pos     int
}

// Next blocks until a transaction exists at the cursor's position, then
// returns a copy and advances. The account lock is released while
// blocked, so a waiting cursor never delays transfers or other readers
// on the account.
//
// Next fails only when ctx is cancelled; with context.Background() it
// waits indefinitely for the next transfer.
func (c *Cursor) Next(ctx context.Context) (Transaction, error) {
	a := c.account
	for {
		a.mu.Lock()
		if c.pos < len(a.log) {
			tx := a.log[c.pos]
			c.pos++
			a.mu.Unlock()
			return tx, nil
		}
		// Snapshot the wake-up channel while still holding the lock.
		// Transfer closes it (and installs a fresh one) on every append,
		// so an append after the unlock below cannot be missed; a wake
		// without data for this cursor just loops and re-checks.
		updated := a.updated
		a.mu.Unlock()

		select {
		case <-updated:
		case <-ctx.Done():
			return Transaction{}, ctx.Err()
		}
	}
}
