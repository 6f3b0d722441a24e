package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/bankd/service/bank"
	"github.com/brojonat/bankd/service/events"
)

// handleConn serves the text protocol for one connection. The protocol
// is line-based with whitespace-separated fields:
//
//	balance
//	transfer <name> <amount> <comment...>
//	transactions <n>
//	monitor <n>
//
// Unknown commands get an error line and the session continues;
// malformed arguments end the session, mirroring stream failure in the
// reference protocol.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	logger := s.logger.With("remote_addr", conn.RemoteAddr().String())
	logger.Info("client connected")
	defer logger.Info("client disconnected")

	if s.metrics != nil {
		s.metrics.RecordSessionStart()
		defer s.metrics.RecordSessionEnd()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := bufio.NewWriter(conn)
	scanner := bufio.NewScanner(conn)

	fmt.Fprintln(w, "What is your name?")
	w.Flush()

	if !scanner.Scan() {
		return
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) == 0 {
		return
	}
	name := fields[0]
	account := s.ledger.GetOrCreateAccount(name)
	if s.metrics != nil {
		s.metrics.SetAccountCount(s.ledger.Size())
	}
	logger = logger.With("account", name)

	fmt.Fprintf(w, "Hi %s\n", name)
	w.Flush()

	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd := fields[0]

		ok := true
		switch cmd {
		case "balance":
			fmt.Fprintln(w, account.Balance())
			s.recordCommand(cmd, "ok")
		case "transfer":
			ok = s.cmdTransfer(account, line, fields, w, logger)
		case "transactions":
			ok = s.cmdTransactions(account, fields, w)
		case "monitor":
			ok = s.cmdMonitor(ctx, account, fields, w, logger)
		default:
			fmt.Fprintf(w, "Unknown command: '%s'\n", cmd)
			s.recordCommand(cmd, "unknown")
		}
		w.Flush()
		if !ok {
			return
		}
	}
}

// cmdTransfer parses "transfer <name> <amount> <comment...>" and runs
// the transfer. A rejected transfer is reported to the client as one
// line and the session continues; unparseable arguments end the session.
func (s *Server) cmdTransfer(account *bank.Account, line string, fields []string, w io.Writer, logger *slog.Logger) bool {
	if len(fields) < 3 {
		s.recordCommand("transfer", "malformed")
		return false
	}
	amount, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		s.recordCommand("transfer", "malformed")
		return false
	}
	comment := restAfter(line, 3)

	counterparty := s.ledger.GetOrCreateAccount(fields[1])
	if s.metrics != nil {
		s.metrics.SetAccountCount(s.ledger.Size())
	}

	if err := account.Transfer(counterparty, amount, comment); err != nil {
		// Transfer rejections are part of the protocol; anything else
		// would be a bug, but is reported the same way rather than
		// killing the session.
		if !bank.IsTransferError(err) {
			logger.Error("unexpected transfer failure", "error", err)
		}
		fmt.Fprintln(w, err.Error())
		s.recordCommand("transfer", "rejected")
		s.recordTransfer(err, amount)
		return true
	}

	fmt.Fprintln(w, "OK")
	s.recordCommand("transfer", "ok")
	s.recordTransfer(nil, amount)
	s.publishTransfer(account, counterparty, amount, comment, logger)
	return true
}

// cmdTransactions prints the last n transactions and the balance from
// one consistent snapshot.
func (s *Server) cmdTransactions(account *bank.Account, fields []string, w io.Writer) bool {
	n, ok := parseCount(fields)
	if !ok {
		s.recordCommand("transactions", "malformed")
		return false
	}
	writeHistory(w, account, n)
	s.recordCommand("transactions", "ok")
	return true
}

// cmdMonitor prints the last n transactions and the balance, then
// streams every subsequent transaction on the account until the client
// disconnects or the server shuts down.
func (s *Server) cmdMonitor(ctx context.Context, account *bank.Account, fields []string, w *bufio.Writer, logger *slog.Logger) bool {
	n, ok := parseCount(fields)
	if !ok {
		s.recordCommand("monitor", "malformed")
		return false
	}

	cursor := writeHistory(w, account, n)
	if err := w.Flush(); err != nil {
		return false
	}
	s.recordCommand("monitor", "ok")

	if s.metrics != nil {
		s.metrics.RecordMonitorStart()
		defer s.metrics.RecordMonitorEnd()
	}
	logger.Debug("monitor stream started")

	for {
		tx, err := cursor.Next(ctx)
		if err != nil {
			// Server shutdown.
			return false
		}
		writeTransaction(w, tx)
		if err := w.Flush(); err != nil {
			// Client went away.
			return false
		}
	}
}

// publishTransfer publishes the debit and credit side of a completed
// transfer. Publishing is best-effort: failures are logged, never
// surfaced to the client.
func (s *Server) publishTransfer(src, dst *bank.Account, amount int64, comment string, logger *slog.Logger) {
	if s.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sides := []*events.TransferEvent{
		events.FromTransaction(src.Name(), bank.Transaction{Counterparty: dst, Delta: -amount, Comment: comment}),
		events.FromTransaction(dst.Name(), bank.Transaction{Counterparty: src, Delta: amount, Comment: comment}),
	}
	for _, event := range sides {
		start := time.Now()
		err := s.publisher.PublishTransfer(ctx, event)
		if s.metrics != nil {
			s.metrics.RecordEventPublish(err, time.Since(start).Seconds())
		}
		if err != nil {
			logger.Error("failed to publish transfer event",
				"account", event.Account,
				"error", err,
			)
		}
	}
}

func (s *Server) recordCommand(command, status string) {
	if s.metrics != nil {
		s.metrics.RecordCommand(command, status)
	}
}

func (s *Server) recordTransfer(err error, amount int64) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, bank.ErrSelfTransfer):
		status = "self_transfer"
	case errors.Is(err, bank.ErrNonpositiveAmount):
		status = "nonpositive_amount"
	default:
		status = "not_enough_funds"
	}
	s.metrics.RecordTransfer(status, amount)
}

// writeHistory prints the tail of the account's log plus its balance,
// all from one SnapshotTransactions call, and returns the cursor
// positioned just past the snapshot.
func writeHistory(w io.Writer, account *bank.Account, n int) *bank.Cursor {
	var snapshot []bank.Transaction
	var balance int64
	cursor := account.SnapshotTransactions(func(log []bank.Transaction, bal int64) {
		snapshot = log
		balance = bal
	})

	if n < 0 {
		n = 0
	}
	if n > len(snapshot) {
		n = len(snapshot)
	}

	fmt.Fprintln(w, "CPTY\tBAL\tCOMM")
	for _, tx := range snapshot[len(snapshot)-n:] {
		writeTransaction(w, tx)
	}
	fmt.Fprintf(w, "===== BALANCE: %d XTS =====\n", balance)
	return cursor
}

func writeTransaction(w io.Writer, tx bank.Transaction) {
	fmt.Fprintf(w, "%s\t%d\t%s\n", tx.CounterpartyName(), tx.Delta, tx.Comment)
}

func parseCount(fields []string) (int, bool) {
	if len(fields) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// restAfter returns the remainder of line after its first n
// whitespace-separated fields, with the single separating character
// removed. Extra interior whitespace in the remainder is preserved.
func restAfter(line string, n int) string {
	rest := line
	for i := 0; i < n; i++ {
		rest = strings.TrimLeft(rest, " \t")
		j := strings.IndexAny(rest, " \t")
		if j < 0 {
			return ""
		}
		rest = rest[j:]
	}
	if rest != "" {
		rest = rest[1:]
	}
	return rest
}
