package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
)

// Row is one transaction as printed by the server: the counterparty's
// name ("-" for the seed deposit), the delta applied to the account and
// the comment.
type Row struct {
	Counterparty string
	Delta        int64
	Comment      string
}

// History is the output of a transactions or monitor command: the
// requested tail of the log plus the balance, from one consistent
// snapshot.
type History struct {
	Rows    []Row
	Balance int64
}

// TransferRejectedError is returned by Transfer when the server rejects
// the transfer (self-transfer, non-positive amount, not enough funds).
// Message is the server's error line verbatim.
type TransferRejectedError struct {
	Message string
}

func (e *TransferRejectedError) Error() string { return e.Message }

// Client is a connection-per-client handle speaking the bankd text
// protocol. A Client drives one session and is not safe for concurrent
// use; open one per goroutine.
type Client struct {
	conn   net.Conn
	r      *bufio.Reader
	name   string
	logger *slog.Logger
}

// Dial connects to the bank server, answers the greeting with name and
// returns a ready client. The account is created server-side on first
// use.
func Dial(ctx context.Context, addr, name string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	c := &Client{conn: conn, r: bufio.NewReader(conn), name: name, logger: logger}

	greeting, err := c.readLine()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read greeting: %w", err)
	}
	if greeting != "What is your name?" {
		conn.Close()
		return nil, fmt.Errorf("unexpected greeting %q", greeting)
	}

	if err := c.sendLine(name); err != nil {
		conn.Close()
		return nil, err
	}
	hi, err := c.readLine()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read session banner: %w", err)
	}
	if hi != "Hi "+name {
		conn.Close()
		return nil, fmt.Errorf("unexpected session banner %q", hi)
	}

	logger.Debug("session established", "addr", addr, "account", name)
	return c, nil
}

// Name returns the account name this session operates as.
func (c *Client) Name() string { return c.name }

// Close terminates the session.
func (c *Client) Close() error { return c.conn.Close() }

// Balance returns the account's current balance in XTS.
func (c *Client) Balance() (int64, error) {
	if err := c.sendLine("balance"); err != nil {
		return 0, err
	}
	line, err := c.readLine()
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	balance, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected balance line %q: %w", line, err)
	}
	return balance, nil
}

// Transfer sends amount XTS to counterparty. A server-side rejection is
// returned as a *TransferRejectedError; the session stays usable.
func (c *Client) Transfer(counterparty string, amount int64, comment string) error {
	if err := c.sendLine(fmt.Sprintf("transfer %s %d %s", counterparty, amount, comment)); err != nil {
		return err
	}
	line, err := c.readLine()
	if err != nil {
		return fmt.Errorf("failed to read transfer response: %w", err)
	}
	if line != "OK" {
		return &TransferRejectedError{Message: line}
	}
	c.logger.Debug("transfer accepted", "counterparty", counterparty, "amount", amount)
	return nil
}

// Transactions returns the last n transactions and the balance.
func (c *Client) Transactions(n int) (*History, error) {
	if err := c.sendLine(fmt.Sprintf("transactions %d", n)); err != nil {
		return nil, err
	}
	return c.readHistory()
}

// Monitor requests the last n transactions, then streams every
// subsequent transaction on the account. The returned channel is closed
// when ctx is cancelled or the connection drops; the Client must not be
// used for other calls while the stream is open (the session is
// dedicated to streaming from here on).
func (c *Client) Monitor(ctx context.Context, n int) (*History, <-chan Row, error) {
	if err := c.sendLine(fmt.Sprintf("monitor %d", n)); err != nil {
		return nil, nil, err
	}
	history, err := c.readHistory()
	if err != nil {
		return nil, nil, err
	}

	rows := make(chan Row)
	go func() {
		// Reads only unblock on data or connection close, so cancelling
		// the context closes the conn out from under the reader.
		<-ctx.Done()
		c.conn.Close()
	}()
	go func() {
		defer close(rows)
		for {
			line, err := c.readLine()
			if err != nil {
				return
			}
			row, err := parseRow(line)
			if err != nil {
				c.logger.Warn("skipping unparseable stream line", "line", line, "error", err)
				continue
			}
			select {
			case rows <- row:
			case <-ctx.Done():
				return
			}
		}
	}()
	return history, rows, nil
}

func (c *Client) readHistory() (*History, error) {
	header, err := c.readLine()
	if err != nil {
		return nil, fmt.Errorf("failed to read history header: %w", err)
	}
	if header != "CPTY\tBAL\tCOMM" {
		return nil, fmt.Errorf("unexpected history header %q", header)
	}

	h := &History{}
	for {
		line, err := c.readLine()
		if err != nil {
			return nil, fmt.Errorf("failed to read history row: %w", err)
		}
		if strings.HasPrefix(line, "===== BALANCE: ") {
			fields := strings.Fields(line)
			// ===== BALANCE: <n> XTS =====
			if len(fields) != 5 {
				return nil, fmt.Errorf("unexpected balance line %q", line)
			}
			h.Balance, err = strconv.ParseInt(fields[2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("unexpected balance line %q: %w", line, err)
			}
			return h, nil
		}
		row, err := parseRow(line)
		if err != nil {
			return nil, err
		}
		h.Rows = append(h.Rows, row)
	}
}

func parseRow(line string) (Row, error) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 {
		return Row{}, fmt.Errorf("unexpected transaction line %q", line)
	}
	delta, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Row{}, fmt.Errorf("unexpected transaction line %q: %w", line, err)
	}
	return Row{Counterparty: parts[0], Delta: delta, Comment: parts[2]}, nil
}

func (c *Client) sendLine(line string) error {
	if _, err := fmt.Fprintln(c.conn, line); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	return nil
}

func (c *Client) readLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}
