package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"samizdat/internal/app"
	"samizdat/internal/network/stdio"
	"samizdat/internal/shell"
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve one session on stdin/stdout",
	Long:  "Runs a single session on the terminal or modem line a getty such as mgetty hands over. Logs go to stderr and the configured files.",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustBoot(app.Options{Stdio: true})
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGTERM)
		defer stop()

		if err := stdio.Run(ctx, a, shell.New(a, nil)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}
