package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "bankd",
		Usage: "XTS bank ledger service CLI",
		Description: `A command-line tool for talking to and debugging the bankd service.

Use this CLI to check balances, move funds, inspect transaction logs and
watch accounts live over the text protocol or SSE.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Account commands (text protocol)
			{
				Name:  "account",
				Usage: "Account commands over the bank text protocol",
				Subcommands: []*cli.Command{
					balanceCommand(),
					transferCommand(),
					historyCommand(),
					monitorCommand(),
				},
			},
			// SSE streaming commands
			sseCommands(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "Bank server TCP address",
				EnvVars: []string{"BANKD_ADDR"},
				Value:   "localhost:4242",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Server HTTP URL for health checks and SSE",
				EnvVars: []string{"BANKD_SERVER_URL"},
				Value:   "http://localhost:8080",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
