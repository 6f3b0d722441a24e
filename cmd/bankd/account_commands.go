package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/brojonat/bankd/client"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func stderrLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // only errors to stderr
	}))
}

func dialAccount(c *cli.Context, name string) (*client.Client, error) {
	return client.Dial(c.Context, c.String("addr"), name, stderrLogger())
}

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Show an account's balance",
		ArgsUsage: "ACCOUNT",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account name is required")
			}
			name := c.Args().Get(0)

			cl, err := dialAccount(c, name)
			if err != nil {
				return err
			}
			defer cl.Close()

			balance, err := cl.Balance()
			if err != nil {
				return err
			}
			fmt.Printf("%d XTS\n", balance)
			return nil
		},
	}
}

func transferCommand() *cli.Command {
	return &cli.Command{
		Name:      "transfer",
		Usage:     "Transfer funds between accounts",
		ArgsUsage: "FROM TO AMOUNT [COMMENT...]",
		Action: func(c *cli.Context) error {
			if c.NArg() < 3 {
				return fmt.Errorf("expected FROM TO AMOUNT [COMMENT...]")
			}
			from := c.Args().Get(0)
			to := c.Args().Get(1)
			amount, err := strconv.ParseInt(c.Args().Get(2), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", c.Args().Get(2), err)
			}
			comment := strings.Join(c.Args().Slice()[3:], " ")

			cl, err := dialAccount(c, from)
			if err != nil {
				return err
			}
			defer cl.Close()

			if err := cl.Transfer(to, amount, comment); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Show an account's recent transactions and balance",
		ArgsUsage: "ACCOUNT",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Value:   10,
				Usage:   "Number of transactions to show",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq expression applied to the JSON output (implies --json)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account name is required")
			}
			name := c.Args().Get(0)

			cl, err := dialAccount(c, name)
			if err != nil {
				return err
			}
			defer cl.Close()

			history, err := cl.Transactions(c.Int("count"))
			if err != nil {
				return err
			}

			if c.Bool("json") || c.String("filter") != "" {
				return printJSON(historyToJSON(name, history), c.String("filter"))
			}

			fmt.Println("CPTY\tBAL\tCOMM")
			for _, row := range history.Rows {
				fmt.Printf("%s\t%d\t%s\n", row.Counterparty, row.Delta, row.Comment)
			}
			fmt.Printf("===== BALANCE: %d XTS =====\n", history.Balance)
			return nil
		},
	}
}

func monitorCommand() *cli.Command {
	return &cli.Command{
		Name:      "monitor",
		Usage:     "Stream an account's transactions as they occur",
		ArgsUsage: "ACCOUNT",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Value:   10,
				Usage:   "Number of historical transactions to show first",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account name is required")
			}
			name := c.Args().Get(0)

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			cl, err := dialAccount(c, name)
			if err != nil {
				return err
			}
			defer cl.Close()

			history, rows, err := cl.Monitor(ctx, c.Int("count"))
			if err != nil {
				return err
			}

			fmt.Println("CPTY\tBAL\tCOMM")
			for _, row := range history.Rows {
				fmt.Printf("%s\t%d\t%s\n", row.Counterparty, row.Delta, row.Comment)
			}
			fmt.Printf("===== BALANCE: %d XTS =====\n", history.Balance)
			fmt.Fprintf(os.Stderr, "Streaming transactions... (Ctrl+C to stop)\n")

			for row := range rows {
				fmt.Printf("%s\t%d\t%s\n", row.Counterparty, row.Delta, row.Comment)
			}
			return nil
		},
	}
}

// historyToJSON renders a history response as a jq-friendly value.
func historyToJSON(account string, history *client.History) map[string]interface{} {
	rows := make([]interface{}, len(history.Rows))
	for i, row := range history.Rows {
		rows[i] = map[string]interface{}{
			"counterparty": row.Counterparty,
			"delta":        row.Delta,
			"comment":      row.Comment,
		}
	}
	return map[string]interface{}{
		"account":      account,
		"balance":      history.Balance,
		"transactions": rows,
	}
}

// printJSON prints v as JSON, optionally running a jq filter over it
// first and printing each result.
func printJSON(v interface{}, filter string) error {
	if filter == "" {
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	code, err := compileJQ(filter)
	if err != nil {
		return err
	}

	// gojq only accepts plain JSON values, so round-trip through
	// encoding/json first.
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var plain interface{}
	if err := json.Unmarshal(data, &plain); err != nil {
		return err
	}

	iter := code.Run(plain)
	for {
		result, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := result.(error); isErr {
			return fmt.Errorf("jq filter failed: %w", err)
		}
		out, err := json.Marshal(result)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
}

func compileJQ(filter string) (*gojq.Code, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}
	return code, nil
}
