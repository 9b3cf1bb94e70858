package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"travelBooker/internal/clients/hotelbeds"
	"travelBooker/internal/lib/cancellation"
	"travelBooker/internal/lib/logger/sl"
	"travelBooker/internal/models"
	"travelBooker/internal/storage"
)

const maxCancelAttempts = 3

type CancellationQuote struct {
	BookingID   int64  `json:"booking_id"`
	Reference   string `json:"reference"`
	TotalAmount int64  `json:"total_amount"`
	Currency    string `json:"currency"`
	cancellation.Quote
}

func (s *Service) CancellationQuote(ctx context.Context, bookingID int64) (*CancellationQuote, error) {
	return s.CancellationQuoteAt(ctx, bookingID, s.now())
}

// CancellationQuoteAt prices a cancellation requested at the given instant.
func (s *Service) CancellationQuoteAt(ctx context.Context, bookingID int64, at time.Time) (*CancellationQuote, error) {
	const op = "booking.Service.CancellationQuoteAt"

	b, err := s.storage.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !b.Cancellable() {
		return nil, fmt.Errorf("%s: %w: booking is %s", op, ErrNotCancellable, b.Status)
	}

	return &CancellationQuote{
		BookingID:   b.ID,
		Reference:   b.Reference,
		TotalAmount: b.Pricing.TotalAmount,
		Currency:    b.Pricing.Currency,
		Quote:       cancellation.Compute(at, b.ServiceDate, b.Pricing.TotalAmount),
	}, nil
}

// Cancel cancels at the supplier first, then records the cancellation, closes
// open payment sessions and refunds a completed online payment.
func (s *Service) Cancel(ctx context.Context, bookingID int64, reason string) (*models.Booking, error) {
	const op = "booking.Service.Cancel"

	log := s.log.With(slog.String("op", op), slog.Int64("booking_id", bookingID))

	b, err := s.storage.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !b.Cancellable() {
		return nil, fmt.Errorf("%s: %w: booking is %s", op, ErrNotCancellable, b.Status)
	}

	log = log.With(slog.String("reference", b.Reference))

	requestedAt := s.now().UTC()
	quote := cancellation.Compute(requestedAt, b.ServiceDate, b.Pricing.TotalAmount)

	if err = s.supplier.Cancel(ctx, b.Type, b.SupplierReference); err != nil {
		outcome := models.OutcomeUnknown
		if hotelbeds.IsRejected(err) {
			outcome = models.OutcomeRejected
		}

		if rErr := s.storage.RecordAttempt(context.WithoutCancel(ctx), models.SupplierAttempt{
			Reference:         b.Reference,
			Operation:         models.SupplierOpCancel,
			Outcome:           outcome,
			SupplierReference: b.SupplierReference,
			Error:             err.Error(),
		}); rErr != nil {
			log.Error("failed to record supplier attempt", sl.Err(rErr))
		}

		log.Error("supplier cancellation failed", sl.Err(err))

		return nil, fmt.Errorf("%s: %w: %w", op, ErrSupplierCancelFailed, err)
	}

	// the supplier side is cancelled; the local record must follow
	pctx := context.WithoutCancel(ctx)

	attempt := models.SupplierAttempt{
		Reference:         b.Reference,
		Operation:         models.SupplierOpCancel,
		Outcome:           models.OutcomeCancelled,
		SupplierReference: b.SupplierReference,
	}

	for i := 1; ; i++ {
		cancelledAt := s.now().UTC()

		b.Cancellation = &models.Cancellation{
			Fee:          quote.Fee,
			RefundAmount: quote.RefundAmount,
			Reason:       reason,
			RequestedAt:  requestedAt,
			CancelledAt:  &cancelledAt,
			RefundStatus: refundStatus(b, quote),
		}

		err = s.storage.CancelBooking(pctx, b, attempt)
		if err == nil {
			break
		}

		if !errors.Is(err, storage.ErrConflict) || i >= maxCancelAttempts {
			log.Error("supplier cancelled but local cancellation failed", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		b, err = s.storage.GetBooking(pctx, bookingID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if !b.Cancellable() {
			log.Info("booking changed concurrently", slog.String("status", string(b.Status)))
			return b, nil
		}
	}

	log.Info("booking cancelled",
		slog.Int64("fee", quote.Fee),
		slog.Int64("refund_amount", quote.RefundAmount),
	)

	s.voidOpenPayments(pctx, bookingID, 0, "booking cancelled")

	if b.Cancellation.RefundStatus == models.RefundPending {
		s.refund(pctx, log, b)
	}

	return s.storage.GetBooking(pctx, bookingID)
}

func refundStatus(b *models.Booking, quote cancellation.Quote) models.RefundStatus {
	if b.Payment.Status == models.PaymentCompleted && quote.RefundAmount > 0 {
		return models.RefundPending
	}

	return models.RefundNotRequired
}

func (s *Service) refund(ctx context.Context, log *slog.Logger, b *models.Booking) {
	amount := b.Cancellation.RefundAmount

	fail := func(msg string, err error) {
		log.Error(msg, sl.Err(err))
		if sErr := s.storage.SetRefundStatus(ctx, b.ID, models.RefundFailed); sErr != nil {
			log.Error("failed to mark refund failed", sl.Err(sErr))
		}
	}

	p, err := s.storage.GetCompletedPayment(ctx, b.ID)
	if err != nil {
		fail("no completed payment to refund", err)
		return
	}

	if err = s.gateway.Refund(ctx, p.SessionID, amount); err != nil {
		fail("gateway refund failed", err)
		return
	}

	if err = s.storage.MarkRefunded(ctx, b.ID, p.ID); err != nil {
		log.Error("refund issued but not recorded", slog.Int64("payment_id", p.ID), sl.Err(err))
		return
	}

	log.Info("refund issued", slog.Int64("payment_id", p.ID), slog.Int64("amount", amount))
}
