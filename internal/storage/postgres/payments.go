package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/jmoiron/sqlx"
	"time"
	"travelBooker/internal/events"
	"travelBooker/internal/models"
	"travelBooker/internal/storage"
)

// CreatePayment inserts a pending payment and resets the booking payment status in one transaction.
func (s *Storage) CreatePayment(ctx context.Context, p *models.Payment) error {
	const op = "storage.postgres.CreatePayment"

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO payments (booking_id, order_ref, method, status, amount, currency)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at`,
			p.BookingID, p.OrderRef, p.Method, models.PaymentPending, p.Amount, p.Currency,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}

		p.Status = models.PaymentPending

		return setBookingPaymentStatus(ctx, tx, p.BookingID, models.PaymentPending, 0)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) AttachPaymentSession(ctx context.Context, paymentID int64, sessionID, redirectURL string) error {
	const op = "storage.postgres.AttachPaymentSession"

	res, err := s.DB.ExecContext(ctx, `
		UPDATE payments
		SET session_id = $2, redirect_url = $3, updated_at = NOW()
		WHERE id = $1`, paymentID, sessionID, redirectURL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err = expectOne(res, storage.ErrPaymentNotFound); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) FailPayment(ctx context.Context, paymentID int64, reason string) error {
	const op = "storage.postgres.FailPayment"

	err := s.closePayment(ctx, paymentID, models.PaymentFailed, reason)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) ExpirePayment(ctx context.Context, paymentID int64) error {
	const op = "storage.postgres.ExpirePayment"

	err := s.closePayment(ctx, paymentID, models.PaymentExpired, "session expired")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) closePayment(ctx context.Context, paymentID int64, status models.PaymentStatus, reason string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var bookingID int64
		err := tx.QueryRowxContext(ctx, `
			UPDATE payments
			SET status = $2, failure_reason = $3, updated_at = NOW()
			WHERE id = $1 AND status = $4
			RETURNING booking_id`,
			paymentID, status, reason, models.PaymentPending,
		).Scan(&bookingID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrConflict
			}
			return fmt.Errorf("failed to update payment: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE bookings
			SET payment_status = $2, version = version + 1, updated_at = NOW()
			WHERE id = $1 AND payment_status = $3`,
			bookingID, status, models.PaymentPending,
		)
		if err != nil {
			return fmt.Errorf("failed to update booking payment: %w", err)
		}

		return nil
	})
}

// CompletePayment records a captured payment and emits PaymentCompleted. A payment
// that is already completed is returned unchanged. storage.ErrNotPayable is
// returned when the booking was cancelled or settled by another payment.
func (s *Storage) CompletePayment(ctx context.Context, paymentID int64, txnID string) (*models.Payment, error) {
	const op = "storage.postgres.CompletePayment"

	var completed *models.Payment

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		p, err := getPayment(ctx, tx, `WHERE id = $1 FOR UPDATE`, paymentID)
		if err != nil {
			return err
		}

		if p.Status == models.PaymentCompleted {
			completed = p
			return nil
		}

		if p.Status == models.PaymentRefunded {
			return storage.ErrConflict
		}

		locked, err := getBooking(ctx, tx, `WHERE id = $1 FOR UPDATE`, p.BookingID)
		if err != nil {
			return err
		}

		if !locked.AcceptsPayment() {
			return storage.ErrNotPayable
		}

		var row paymentRow
		err = tx.GetContext(ctx, &row, `
			UPDATE payments
			SET status = $2, gateway_txn_id = $3, failure_reason = NULL, updated_at = NOW()
			WHERE id = $1
			RETURNING `+paymentColumns,
			paymentID, models.PaymentCompleted, nullString(txnID),
		)
		if err != nil {
			return fmt.Errorf("failed to complete payment: %w", err)
		}

		if err = setBookingPaymentStatus(ctx, tx, p.BookingID, models.PaymentCompleted, p.Amount); err != nil {
			return err
		}

		b, err := getBooking(ctx, tx, `WHERE id = $1`, p.BookingID)
		if err != nil {
			return err
		}

		m := row.toModel()
		completed = &m

		return s.publish(ctx, tx, events.PaymentCompleted{
			Header:    events.NewHeader(),
			BookingID: b.ID,
			Reference: b.Reference,
			PaymentID: m.ID,
			Amount:    m.Amount,
			Currency:  m.Currency,
			Guest:     eventGuest(b.Guest),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return completed, nil
}

// CaptureStrayPayment records a capture the booking cannot accept and flags it
// for a full refund. The booking payment sub-document is left alone; a
// cancelled booking with nothing to refund so far gets refund_status pending.
func (s *Storage) CaptureStrayPayment(ctx context.Context, paymentID int64, txnID string) (*models.Payment, error) {
	const op = "storage.postgres.CaptureStrayPayment"

	var captured *models.Payment

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var row paymentRow
		err := tx.GetContext(ctx, &row, `
			UPDATE payments
			SET status = $2, gateway_txn_id = $3, refund_due = TRUE,
				failure_reason = 'captured after the booking stopped accepting payment', updated_at = NOW()
			WHERE id = $1 AND status IN ($4, $5, $6)
			RETURNING `+paymentColumns,
			paymentID, models.PaymentCompleted, nullString(txnID),
			models.PaymentPending, models.PaymentFailed, models.PaymentExpired,
		)
		if errors.Is(err, sql.ErrNoRows) {
			captured, err = getPayment(ctx, tx, `WHERE id = $1`, paymentID)
			return err
		}
		if err != nil {
			return fmt.Errorf("failed to record capture: %w", err)
		}

		m := row.toModel()
		captured = &m

		_, err = tx.ExecContext(ctx, `
			UPDATE bookings
			SET refund_status = $2, version = version + 1, updated_at = NOW()
			WHERE id = $1 AND status = $3 AND refund_status = $4`,
			m.BookingID, models.RefundPending, models.BookingCancelled, models.RefundNotRequired,
		)
		if err != nil {
			return fmt.Errorf("failed to flag booking refund: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return captured, nil
}

// RefundStrayPayment closes a stray capture after the gateway returned the
// money and emits RefundIssued for the full amount.
func (s *Storage) RefundStrayPayment(ctx context.Context, paymentID int64) error {
	const op = "storage.postgres.RefundStrayPayment"

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var row paymentRow
		err := tx.GetContext(ctx, &row, `
			UPDATE payments
			SET status = $2, refund_due = FALSE, updated_at = NOW()
			WHERE id = $1 AND status = $3 AND refund_due
			RETURNING `+paymentColumns,
			paymentID, models.PaymentRefunded, models.PaymentCompleted,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrConflict
			}
			return fmt.Errorf("failed to refund payment: %w", err)
		}

		p := row.toModel()

		_, err = tx.ExecContext(ctx, `
			UPDATE bookings
			SET status = $2, payment_status = $3, refund_status = $4, version = version + 1, updated_at = NOW()
			WHERE id = $1 AND status = $5 AND refund_status = $6`,
			p.BookingID, models.BookingRefunded, models.PaymentRefunded, models.RefundCompleted,
			models.BookingCancelled, models.RefundPending,
		)
		if err != nil {
			return fmt.Errorf("failed to mark booking refunded: %w", err)
		}

		b, err := getBooking(ctx, tx, `WHERE id = $1`, p.BookingID)
		if err != nil {
			return err
		}

		return s.publish(ctx, tx, events.RefundIssued{
			Header:    events.NewHeader(),
			BookingID: b.ID,
			Reference: b.Reference,
			PaymentID: p.ID,
			Amount:    p.Amount,
			Currency:  p.Currency,
			Guest:     eventGuest(b.Guest),
		})
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// MarkRefunded closes a cancellation whose money went back to the guest.
func (s *Storage) MarkRefunded(ctx context.Context, bookingID, paymentID int64) error {
	const op = "storage.postgres.MarkRefunded"

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE payments
			SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status = $3`,
			paymentID, models.PaymentRefunded, models.PaymentCompleted,
		)
		if err != nil {
			return fmt.Errorf("failed to refund payment: %w", err)
		}

		if err = expectOne(res, storage.ErrConflict); err != nil {
			return err
		}

		var row bookingRow
		err = tx.GetContext(ctx, &row, `
			UPDATE bookings
			SET status = $2, payment_status = $3, refund_status = $4, version = version + 1, updated_at = NOW()
			WHERE id = $1 AND status = $5
			RETURNING `+bookingColumns,
			bookingID, models.BookingRefunded, models.PaymentRefunded, models.RefundCompleted, models.BookingCancelled,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrConflict
			}
			return fmt.Errorf("failed to mark booking refunded: %w", err)
		}

		b := row.toModel()

		var amount int64
		if b.Cancellation != nil {
			amount = b.Cancellation.RefundAmount
		}

		return s.publish(ctx, tx, events.RefundIssued{
			Header:    events.NewHeader(),
			BookingID: b.ID,
			Reference: b.Reference,
			PaymentID: paymentID,
			Amount:    amount,
			Currency:  b.Pricing.Currency,
			Guest:     eventGuest(b.Guest),
		})
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	const op = "storage.postgres.GetPayment"

	p, err := getPayment(ctx, s.DB, `WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

func (s *Storage) GetPaymentByOrderRef(ctx context.Context, orderRef string) (*models.Payment, error) {
	const op = "storage.postgres.GetPaymentByOrderRef"

	p, err := getPayment(ctx, s.DB, `WHERE order_ref = $1`, orderRef)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

// GetOpenPayment returns the newest pending payment with a live gateway session.
func (s *Storage) GetOpenPayment(ctx context.Context, bookingID int64) (*models.Payment, error) {
	const op = "storage.postgres.GetOpenPayment"

	p, err := getPayment(ctx, s.DB, `
		WHERE booking_id = $1 AND status = $2 AND session_id IS NOT NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, bookingID, models.PaymentPending)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

// GetCompletedPayment returns the capture that paid for the booking. Stray
// captures awaiting their own refund are skipped.
func (s *Storage) GetCompletedPayment(ctx context.Context, bookingID int64) (*models.Payment, error) {
	const op = "storage.postgres.GetCompletedPayment"

	p, err := getPayment(ctx, s.DB, `
		WHERE booking_id = $1 AND status = $2 AND NOT refund_due
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, bookingID, models.PaymentCompleted)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

func (s *Storage) ListBookingPayments(ctx context.Context, bookingID int64) ([]models.Payment, error) {
	const op = "storage.postgres.ListBookingPayments"

	var rows []paymentRow

	err := s.DB.SelectContext(ctx, &rows, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE booking_id = $1
		ORDER BY created_at, id`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	payments := make([]models.Payment, 0, len(rows))
	for _, r := range rows {
		payments = append(payments, r.toModel())
	}

	return payments, nil
}

func (s *Storage) ListPendingPayments(ctx context.Context, createdBefore time.Time, limit int) ([]models.Payment, error) {
	const op = "storage.postgres.ListPendingPayments"

	var rows []paymentRow

	err := s.DB.SelectContext(ctx, &rows, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status = $1 AND session_id IS NOT NULL AND created_at < $2
		ORDER BY created_at
		LIMIT $3`, models.PaymentPending, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	payments := make([]models.Payment, 0, len(rows))
	for _, r := range rows {
		payments = append(payments, r.toModel())
	}

	return payments, nil
}

func getPayment(ctx context.Context, q sqlx.QueryerContext, where string, args ...any) (*models.Payment, error) {
	var row paymentRow

	err := sqlx.GetContext(ctx, q, &row, `SELECT `+paymentColumns+` FROM payments `+where, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	p := row.toModel()

	return &p, nil
}

func setBookingPaymentStatus(ctx context.Context, tx *sqlx.Tx, bookingID int64, status models.PaymentStatus, paid int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET payment_status = $2, paid_amount = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1`, bookingID, status, paid)
	if err != nil {
		return fmt.Errorf("failed to update booking payment: %w", err)
	}

	return expectOne(res, storage.ErrBookingNotFound)
}
