package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"samizdat/internal/app"
)

var cfgFile string

func main() {
	configPath := os.Getenv("SAMIZDAT_CONFIG")
	if configPath == "" {
		configPath = "config.yml"
	}

	var rootCmd = &cobra.Command{
		Use:     "samizdat",
		Short:   "Samizdat BBS",
		Version: "0.1.0",
		Run:     runServer,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", configPath, "config file")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(stdioCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(initCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mustBoot(opts app.Options) *app.App {
	a, err := app.Boot(cfgFile, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return a
}
