package events

import (
	"time"

	"github.com/brojonat/bankd/service/bank"
)

// TransferEvent is one side of a completed transfer as published to
// NATS and streamed over SSE. Each transfer produces two events: a
// negative-delta event for the source account and a positive-delta event
// for the destination.
type TransferEvent struct {
	Account      string `json:"account"`
	Counterparty string `json:"counterparty"`
	Delta        int64  `json:"delta"`
	Comment      string `json:"comment,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// FromTransaction converts a ledger transaction into an event for the
// account owning the log entry.
func FromTransaction(account string, tx bank.Transaction) *TransferEvent {
	return &TransferEvent{
		Account:      account,
		Counterparty: tx.CounterpartyName(),
		Delta:        tx.Delta,
		Comment:      tx.Comment,
		PublishedAt:  time.Now().UTC(),
	}
}
