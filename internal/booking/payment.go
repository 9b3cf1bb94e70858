package booking

import (
	"context"
	"errors"
	"fmt"
	"github.com/lithammer/shortuuid/v3"
	"github.com/samber/lo"
	"log/slog"
	"strings"
	"travelBooker/internal/clients/hblpay"
	"travelBooker/internal/lib/logger/sl"
	"travelBooker/internal/metrics"
	"travelBooker/internal/models"
	"travelBooker/internal/storage"
)

// InitiatePayment returns the open gateway session for a booking or creates a new one.
func (s *Service) InitiatePayment(ctx context.Context, bookingID int64) (*models.Payment, error) {
	const op = "booking.Service.InitiatePayment"

	log := s.log.With(slog.String("op", op), slog.Int64("booking_id", bookingID))

	b, err := s.storage.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if b.Status != models.BookingConfirmed && b.Status != models.BookingOnHold {
		return nil, fmt.Errorf("%s: %w: booking is %s", op, ErrPaymentNotAllowed, b.Status)
	}

	if b.Payment.Method != models.PaymentOnline {
		return nil, fmt.Errorf("%s: %w: booking is paid on site", op, ErrPaymentNotAllowed)
	}

	if b.Payment.Status == models.PaymentCompleted || b.Payment.Status == models.PaymentRefunded {
		return nil, fmt.Errorf("%s: %w: payment is %s", op, ErrPaymentNotAllowed, b.Payment.Status)
	}

	open, err := s.storage.GetOpenPayment(ctx, bookingID)
	switch {
	case err == nil && s.now().Sub(open.CreatedAt) < s.cfg.PaymentTTL:
		log.Info("reusing open payment session", slog.Int64("payment_id", open.ID))
		return open, nil
	case err == nil:
		// a stale session must not stay payable next to the new one
		if err = s.voidPayment(ctx, log, open, models.PaymentExpired); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	case !errors.Is(err, storage.ErrPaymentNotFound):
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	p, err := s.startPayment(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("payment session created", slog.Int64("payment_id", p.ID))

	return p, nil
}

func (s *Service) startPayment(ctx context.Context, b *models.Booking) (*models.Payment, error) {
	p := &models.Payment{
		BookingID: b.ID,
		OrderRef:  b.Reference + "-" + shortuuid.New()[:8],
		Method:    models.PaymentOnline,
		Amount:    b.Pricing.TotalAmount,
		Currency:  b.Pricing.Currency,
	}

	if err := s.storage.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}

	session, err := s.gateway.CreateSession(ctx, hblpay.SessionRequest{
		OrderRef:      p.OrderRef,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Description:   fmt.Sprintf("%s booking %s", b.Type, b.Reference),
		CustomerName:  b.Guest.Name,
		CustomerEmail: b.Guest.Email,
	})
	if err != nil {
		if fErr := s.storage.FailPayment(ctx, p.ID, err.Error()); fErr != nil {
			err = errors.Join(err, fErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	if err = s.storage.AttachPaymentSession(ctx, p.ID, session.ID, session.RedirectURL); err != nil {
		return nil, fmt.Errorf("failed to store payment session: %w", err)
	}

	p.SessionID = session.ID
	p.RedirectURL = session.RedirectURL

	return p, nil
}

// HandleCallback verifies and applies a gateway callback. Repeating a callback
// for a completed payment changes nothing.
func (s *Service) HandleCallback(ctx context.Context, cb hblpay.Callback) (*models.Payment, error) {
	const op = "booking.Service.HandleCallback"

	log := s.log.With(
		slog.String("op", op),
		slog.String("order_ref", cb.OrderRef),
		slog.String("status", cb.Status),
	)

	if err := s.gateway.VerifyCallback(cb); err != nil {
		metrics.PaymentCallbacks.WithLabelValues("invalid_signature").Inc()
		log.Warn("rejected callback", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	p, err := s.storage.GetPaymentByOrderRef(ctx, cb.OrderRef)
	if err != nil {
		metrics.PaymentCallbacks.WithLabelValues("unknown_payment").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if p.SessionID != "" && cb.SessionID != p.SessionID {
		metrics.PaymentCallbacks.WithLabelValues("mismatch").Inc()
		return nil, fmt.Errorf("%s: %w: session %s", op, ErrCallbackMismatch, cb.SessionID)
	}

	p, err = s.applyGatewayResult(ctx, p, cb.Status, cb.Amount, cb.TxnID)
	if err != nil {
		metrics.PaymentCallbacks.WithLabelValues("error").Inc()
		log.Error("failed to apply callback", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.PaymentCallbacks.WithLabelValues(string(p.Status)).Inc()
	log.Info("callback applied", slog.Int64("payment_id", p.ID), slog.String("payment_status", string(p.Status)))

	return p, nil
}

// applyGatewayResult moves a payment according to a gateway status; shared by
// callbacks and reconciliation polling.
func (s *Service) applyGatewayResult(ctx context.Context, p *models.Payment, status string, amount int64, txnID string) (*models.Payment, error) {
	switch status {
	case hblpay.StatusSuccess:
		if p.Settled() {
			return p, nil
		}

		if amount != p.Amount {
			if p.Status == models.PaymentPending {
				if err := s.storage.FailPayment(ctx, p.ID, fmt.Sprintf("amount mismatch: got %d", amount)); err != nil {
					return nil, err
				}
			}
			return nil, fmt.Errorf("%w: amount %d, expected %d", ErrCallbackMismatch, amount, p.Amount)
		}

		completed, err := s.storage.CompletePayment(ctx, p.ID, txnID)
		if errors.Is(err, storage.ErrNotPayable) {
			return s.refundStrayCapture(ctx, p, txnID)
		}
		if err != nil {
			return nil, err
		}

		s.voidOpenPayments(ctx, completed.BookingID, completed.ID, "superseded by payment "+completed.OrderRef)

		return completed, nil
	case hblpay.StatusFailed, hblpay.StatusCancelled, hblpay.StatusExpired:
		if p.Status != models.PaymentPending {
			return p, nil
		}

		var err error
		if status == hblpay.StatusExpired {
			err = s.storage.ExpirePayment(ctx, p.ID)
		} else {
			err = s.storage.FailPayment(ctx, p.ID, "gateway status "+status)
		}
		if err != nil && !errors.Is(err, storage.ErrConflict) {
			return nil, err
		}

		return s.storage.GetPayment(ctx, p.ID)
	case hblpay.StatusPending:
		return p, nil
	}

	return nil, fmt.Errorf("unknown gateway status %q", status)
}

// refundStrayCapture handles money captured for a booking that was cancelled
// or already paid: the capture is recorded and returned to the guest in full.
func (s *Service) refundStrayCapture(ctx context.Context, p *models.Payment, txnID string) (*models.Payment, error) {
	const op = "booking.Service.refundStrayCapture"

	log := s.log.With(
		slog.String("op", op),
		slog.Int64("booking_id", p.BookingID),
		slog.Int64("payment_id", p.ID),
	)

	captured, err := s.storage.CaptureStrayPayment(ctx, p.ID, txnID)
	if err != nil {
		return nil, err
	}

	if !captured.RefundDue {
		return captured, nil
	}

	log.Warn("capture for a booking that no longer accepts payment", slog.Int64("amount", captured.Amount))

	if err = s.gateway.Refund(ctx, captured.SessionID, captured.Amount); err != nil {
		metrics.StrayRefunds.WithLabelValues("failed").Inc()
		log.Error("refund of stray capture failed", sl.Err(err))
		s.markStrayRefundFailed(ctx, log, captured.BookingID)
		return captured, nil
	}

	if err = s.storage.RefundStrayPayment(ctx, captured.ID); err != nil {
		log.Error("refund issued but not recorded", sl.Err(err))
		return captured, nil
	}

	metrics.StrayRefunds.WithLabelValues("refunded").Inc()
	log.Info("stray capture refunded", slog.Int64("amount", captured.Amount))

	return s.storage.GetPayment(ctx, captured.ID)
}

func (s *Service) markStrayRefundFailed(ctx context.Context, log *slog.Logger, bookingID int64) {
	b, err := s.storage.GetBooking(ctx, bookingID)
	if err != nil {
		log.Error("failed to load booking", sl.Err(err))
		return
	}

	if b.Cancellation == nil || b.Cancellation.RefundStatus != models.RefundPending {
		return
	}

	if err = s.storage.SetRefundStatus(ctx, bookingID, models.RefundFailed); err != nil {
		log.Error("failed to mark refund failed", sl.Err(err))
	}
}

// voidPayment closes a pending payment locally and at the gateway. A
// storage.ErrConflict means the payment moved on concurrently.
func (s *Service) voidPayment(ctx context.Context, log *slog.Logger, p *models.Payment, status models.PaymentStatus, reason ...string) error {
	if p.SessionID != "" {
		if err := s.gateway.CancelSession(ctx, p.SessionID); err != nil {
			log.Warn("failed to cancel gateway session", slog.String("session_id", p.SessionID), sl.Err(err))
		}
	}

	if status == models.PaymentExpired {
		return s.storage.ExpirePayment(ctx, p.ID)
	}

	return s.storage.FailPayment(ctx, p.ID, strings.Join(reason, "; "))
}

// voidOpenPayments fails every pending payment of a booking except keepID.
func (s *Service) voidOpenPayments(ctx context.Context, bookingID, keepID int64, reason string) {
	log := s.log.With(slog.String("op", "booking.Service.voidOpenPayments"), slog.Int64("booking_id", bookingID))

	payments, err := s.storage.ListBookingPayments(ctx, bookingID)
	if err != nil {
		log.Error("failed to list payments", sl.Err(err))
		return
	}

	open := lo.Filter(payments, func(p models.Payment, _ int) bool {
		return p.ID != keepID && p.Status == models.PaymentPending
	})

	for i := range open {
		err = s.voidPayment(ctx, log, &open[i], models.PaymentFailed, reason)
		if err != nil && !errors.Is(err, storage.ErrConflict) {
			log.Error("failed to void payment", slog.Int64("payment_id", open[i].ID), sl.Err(err))
		}
	}
}
