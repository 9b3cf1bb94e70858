package main

import (
	"encoding/json"
	"fmt"
	"github.com/spf13/cobra"
	"text/tabwriter"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass over intents, payments and finished bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			report := e.svc.Reconcile(cmd.Context())

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Intents confirmed:\t%d\n", report.IntentsConfirmed)
			fmt.Fprintf(w, "Intents expired:\t%d\n", report.IntentsExpired)
			fmt.Fprintf(w, "Payments resolved:\t%d\n", report.PaymentsResolved)
			fmt.Fprintf(w, "Payments expired:\t%d\n", report.PaymentsExpired)
			fmt.Fprintf(w, "Bookings completed:\t%d\n", report.BookingsCompleted)
			fmt.Fprintf(w, "Errors:\t%d\n", report.Errors)

			if err = w.Flush(); err != nil {
				return err
			}

			if report.Errors > 0 {
				return fmt.Errorf("%d items failed, they will be retried", report.Errors)
			}

			return nil
		},
	}

	cmd.Flags().BoolP("json", "j", false, "Output as JSON")

	return cmd
}
