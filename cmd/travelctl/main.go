package main

import (
	"fmt"
	"github.com/spf13/cobra"
	"os"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "travelctl",
		Short:        "Operator tasks for the travel booker",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "config file (default $CONFIG_PATH or config/local.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug messages to stderr")

	rootCmd.AddCommand(quoteCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(bookingsCmd())

	return rootCmd
}
