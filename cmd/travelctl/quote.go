package main

import (
	"errors"
	"fmt"
	"github.com/spf13/cobra"
	"io"
	"text/tabwriter"
	"time"
	"travelBooker/internal/lib/cancellation"
	"travelBooker/internal/lib/money"
)

func quoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Show the cancellation fee and refund for a booking or an amount",
		Example: `  travelctl quote --total 1000.00 --departure 2026-03-20
  travelctl quote --booking 42`,
		RunE: runQuote,
	}

	cmd.Flags().Int64P("booking", "b", 0, "booking id to quote from the database")
	cmd.Flags().String("total", "", "total amount, e.g. 1000.00")
	cmd.Flags().String("departure", "", "departure date (2006-01-02) or RFC 3339 timestamp")
	cmd.Flags().String("at", "", "quote as of this RFC 3339 time instead of now")

	return cmd
}

func runQuote(cmd *cobra.Command, _ []string) error {
	now := time.Now()
	if at, _ := cmd.Flags().GetString("at"); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		now = t
	}

	if id, _ := cmd.Flags().GetInt64("booking"); id != 0 {
		return quoteBooking(cmd, id, now)
	}

	totalStr, _ := cmd.Flags().GetString("total")
	departureStr, _ := cmd.Flags().GetString("departure")
	if totalStr == "" || departureStr == "" {
		return errors.New("either --booking or both --total and --departure are required")
	}

	total, err := money.ParseMinor(totalStr)
	if err != nil {
		return fmt.Errorf("invalid --total: %w", err)
	}

	departure, err := parseDeparture(departureStr)
	if err != nil {
		return fmt.Errorf("invalid --departure: %w", err)
	}

	printQuote(cmd.OutOrStdout(), total, cancellation.Compute(now, departure, total))

	return nil
}

func quoteBooking(cmd *cobra.Command, id int64, now time.Time) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	q, err := e.svc.CancellationQuoteAt(cmd.Context(), id, now)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Booking %s (%s)\n", q.Reference, q.Currency)
	printQuote(cmd.OutOrStdout(), q.TotalAmount, q.Quote)

	return nil
}

func parseDeparture(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	return time.Parse(time.DateOnly, s)
}

func printQuote(out io.Writer, total int64, q cancellation.Quote) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "Total:\t%s\n", money.FormatMinor(total))
	fmt.Fprintf(w, "Days before departure:\t%d\n", q.DaysBeforeDeparture)
	fmt.Fprintf(w, "Fee:\t%s (%d%%)\n", money.FormatMinor(q.Fee), q.FeePercent)
	fmt.Fprintf(w, "Refund:\t%s\n", money.FormatMinor(q.RefundAmount))
}
