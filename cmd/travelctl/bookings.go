package main

import (
	"fmt"
	"github.com/spf13/cobra"
	"io"
	"text/tabwriter"
	"travelBooker/internal/lib/money"
	"travelBooker/internal/models"
	"travelBooker/internal/storage"
)

func bookingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "Inspect bookings",
	}

	cmd.AddCommand(bookingsListCmd())
	cmd.AddCommand(bookingsShowCmd())

	return cmd
}

func bookingsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bookings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := listFilter(cmd)
			if err != nil {
				return err
			}

			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			bookings, err := e.svc.ListBookings(cmd.Context(), filter.Normalize())
			if err != nil {
				return err
			}

			return printBookings(cmd.OutOrStdout(), bookings)
		},
	}

	cmd.Flags().StringP("status", "s", "", "Filter by status")
	cmd.Flags().StringP("type", "t", "", "Filter by type (hotel, transfer, activity)")
	cmd.Flags().String("user", "", "Filter by user id")
	cmd.Flags().IntP("limit", "n", storage.DefaultListLimit, "Maximum results")
	cmd.Flags().Int("offset", 0, "Skip this many results")

	return cmd
}

func listFilter(cmd *cobra.Command) (storage.BookingFilter, error) {
	var filter storage.BookingFilter

	status, _ := cmd.Flags().GetString("status")
	if status != "" && !models.ValidBookingStatus(status) {
		return filter, fmt.Errorf("unknown status %q", status)
	}

	bookingType, _ := cmd.Flags().GetString("type")
	if bookingType != "" && !models.ValidBookingType(bookingType) {
		return filter, fmt.Errorf("unknown type %q", bookingType)
	}

	filter.Status = models.BookingStatus(status)
	filter.Type = models.BookingType(bookingType)
	filter.UserID, _ = cmd.Flags().GetString("user")
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	filter.Offset, _ = cmd.Flags().GetInt("offset")

	return filter, nil
}

func printBookings(out io.Writer, bookings []models.Booking) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "ID\tREFERENCE\tTYPE\tSTATUS\tSERVICE DATE\tTOTAL\tPAYMENT")
	for _, b := range bookings {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s %s\t%s/%s\n",
			b.ID,
			b.Reference,
			b.Type,
			b.Status,
			b.ServiceDate.Format("2006-01-02"),
			money.FormatMinor(b.Pricing.TotalAmount),
			b.Pricing.Currency,
			b.Payment.Method,
			b.Payment.Status,
		)
	}

	return w.Flush()
}

func bookingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [reference]",
		Short: "Show a booking with its payments and supplier call history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			b, err := e.storage.GetBookingByReference(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			attempts, err := e.storage.ListAttempts(cmd.Context(), b.Reference)
			if err != nil {
				return err
			}

			payments, err := e.storage.ListBookingPayments(cmd.Context(), b.ID)
			if err != nil {
				return err
			}

			if err = printBookings(cmd.OutOrStdout(), []models.Booking{*b}); err != nil {
				return err
			}

			if b.Cancellation != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\nCancelled: fee %s, refund %s (%s)\n",
					money.FormatMinor(b.Cancellation.Fee),
					money.FormatMinor(b.Cancellation.RefundAmount),
					b.Cancellation.RefundStatus,
				)
			}

			if err = printPayments(cmd.OutOrStdout(), payments); err != nil {
				return err
			}

			return printAttempts(cmd.OutOrStdout(), attempts)
		},
	}
}

func printPayments(out io.Writer, payments []models.Payment) error {
	if len(payments) == 0 {
		_, err := fmt.Fprintln(out, "\nNo payments recorded")
		return err
	}

	fmt.Fprintln(out, "\nPayments:")

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "ID\tORDER REF\tSTATUS\tAMOUNT\tTXN\tNOTE")
	for _, p := range payments {
		note := p.FailureReason
		if p.RefundDue {
			note = "refund due"
		}

		fmt.Fprintf(w, "%d\t%s\t%s\t%s %s\t%s\t%s\n",
			p.ID,
			p.OrderRef,
			p.Status,
			money.FormatMinor(p.Amount),
			p.Currency,
			p.GatewayTxnID,
			note,
		)
	}

	return w.Flush()
}

func printAttempts(out io.Writer, attempts []models.SupplierAttempt) error {
	if len(attempts) == 0 {
		_, err := fmt.Fprintln(out, "\nNo supplier calls recorded")
		return err
	}

	fmt.Fprintln(out, "\nSupplier calls:")

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "TIME\tOPERATION\tOUTCOME\tSUPPLIER REF\tERROR")
	for _, a := range attempts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			a.CreatedAt.Format("2006-01-02 15:04:05"),
			a.Operation,
			a.Outcome,
			a.SupplierReference,
			a.Error,
		)
	}

	return w.Flush()
}
