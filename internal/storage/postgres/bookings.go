package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/jmoiron/sqlx"
	"strings"
	"time"
	"travelBooker/internal/events"
	"travelBooker/internal/models"
	"travelBooker/internal/storage"
)

// CreateBookingIntent inserts a pending booking before the supplier is called.
func (s *Storage) CreateBookingIntent(ctx context.Context, b *models.Booking) error {
	const op = "storage.postgres.CreateBookingIntent"

	var endDate sql.NullTime
	if b.EndDate != nil {
		endDate = sql.NullTime{Time: *b.EndDate, Valid: true}
	}

	err := s.DB.QueryRowxContext(ctx, `
		INSERT INTO bookings (
			reference, idempotency_key, user_id, type, status, supplier_status, rate_key,
			service_date, end_date, guest_name, guest_email, guest_phone, adults, children,
			base_amount, taxes, fees, total_amount, currency, payment_method, payment_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id, created_at, updated_at, version`,
		b.Reference,
		nullString(b.IdempotencyKey),
		b.UserID,
		b.Type,
		models.BookingPending,
		models.SupplierRequested,
		b.RateKey,
		b.ServiceDate,
		endDate,
		b.Guest.Name,
		b.Guest.Email,
		b.Guest.Phone,
		b.Guest.Adults,
		b.Guest.Children,
		b.Pricing.BaseAmount,
		b.Pricing.Taxes,
		b.Pricing.Fees,
		b.Pricing.TotalAmount,
		b.Pricing.Currency,
		b.Payment.Method,
		models.PaymentPending,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt, &b.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrBookingExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	b.Status = models.BookingPending
	b.SupplierStatus = models.SupplierRequested
	b.Payment.Status = models.PaymentPending

	return nil
}

func (s *Storage) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	const op = "storage.postgres.GetBooking"

	b, err := getBooking(ctx, s.DB, `WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return b, nil
}

func (s *Storage) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	const op = "storage.postgres.GetBookingByReference"

	b, err := getBooking(ctx, s.DB, `WHERE reference = $1`, reference)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return b, nil
}

func (s *Storage) GetBookingByIdempotencyKey(ctx context.Context, userID, key string) (*models.Booking, error) {
	const op = "storage.postgres.GetBookingByIdempotencyKey"

	b, err := getBooking(ctx, s.DB, `WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return b, nil
}

func (s *Storage) ListBookings(ctx context.Context, filter storage.BookingFilter) ([]models.Booking, error) {
	const op = "storage.postgres.ListBookings"

	filter = filter.Normalize()

	var conds []string
	var args []any

	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}

	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	return selectBookings(ctx, s.DB, op, query, args...)
}

// ListStaleIntents returns pending bookings whose supplier outcome is not yet known.
func (s *Storage) ListStaleIntents(ctx context.Context, createdBefore time.Time, limit int) ([]models.Booking, error) {
	const op = "storage.postgres.ListStaleIntents"

	return selectBookings(ctx, s.DB, op, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = $1 AND supplier_status IN ($2, $3) AND created_at < $4
		ORDER BY created_at
		LIMIT $5`,
		models.BookingPending, models.SupplierRequested, models.SupplierUnknown, createdBefore, limit,
	)
}

// ConfirmBooking stores the supplier reference, audits the call and emits
// BookingConfirmed atomically.
func (s *Storage) ConfirmBooking(ctx context.Context, id int64, attempt models.SupplierAttempt) (*models.Booking, error) {
	const op = "storage.postgres.ConfirmBooking"

	var confirmed *models.Booking

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		b, err := getBooking(ctx, tx, `WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}

		if b.Status != models.BookingPending {
			return storage.ErrConflict
		}

		b.Status = models.BookingConfirmed
		b.SupplierReference = attempt.SupplierReference
		if err = b.Validate(); err != nil {
			return err
		}

		var row bookingRow
		err = tx.GetContext(ctx, &row, `
			UPDATE bookings
			SET status = $2, supplier_status = $3, supplier_reference = $4,
				version = version + 1, updated_at = NOW()
			WHERE id = $1
			RETURNING `+bookingColumns,
			id, models.BookingConfirmed, models.SupplierConfirmed, attempt.SupplierReference,
		)
		if err != nil {
			return fmt.Errorf("failed to confirm booking: %w", err)
		}

		if err = insertAttempt(ctx, tx, attempt); err != nil {
			return err
		}

		m := row.toModel()
		confirmed = &m

		return s.publish(ctx, tx, events.BookingConfirmed{
			Header:            events.NewHeader(),
			BookingID:         m.ID,
			Reference:         m.Reference,
			SupplierReference: m.SupplierReference,
			Type:              string(m.Type),
			ServiceDate:       m.ServiceDate,
			TotalAmount:       m.Pricing.TotalAmount,
			Currency:          m.Pricing.Currency,
			PaymentMethod:     string(m.Payment.Method),
			Guest:             eventGuest(m.Guest),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return confirmed, nil
}

// DiscardIntent removes an intent the supplier refused, keeping the audit row.
func (s *Storage) DiscardIntent(ctx context.Context, id int64, attempt models.SupplierAttempt) error {
	const op = "storage.postgres.DiscardIntent"

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertAttempt(ctx, tx, attempt); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1 AND status = $2`, id, models.BookingPending)
		if err != nil {
			return fmt.Errorf("failed to delete intent: %w", err)
		}

		return expectOne(res, storage.ErrBookingNotFound)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) MarkSupplierUnknown(ctx context.Context, id int64, attempt models.SupplierAttempt) error {
	const op = "storage.postgres.MarkSupplierUnknown"

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertAttempt(ctx, tx, attempt); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE bookings
			SET supplier_status = $2, version = version + 1, updated_at = NOW()
			WHERE id = $1 AND status = $3`,
			id, models.SupplierUnknown, models.BookingPending,
		)
		if err != nil {
			return fmt.Errorf("failed to mark supplier status: %w", err)
		}

		return expectOne(res, storage.ErrConflict)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) ExpireIntent(ctx context.Context, id int64, attempt models.SupplierAttempt) error {
	const op = "storage.postgres.ExpireIntent"

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertAttempt(ctx, tx, attempt); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE bookings
			SET status = $2, payment_status = $3, version = version + 1, updated_at = NOW()
			WHERE id = $1 AND status = $4`,
			id, models.BookingExpired, models.PaymentExpired, models.BookingPending,
		)
		if err != nil {
			return fmt.Errorf("failed to expire intent: %w", err)
		}

		return expectOne(res, storage.ErrConflict)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) RecordAttempt(ctx context.Context, attempt models.SupplierAttempt) error {
	const op = "storage.postgres.RecordAttempt"

	if err := insertAttempt(ctx, s.DB, attempt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) ListAttempts(ctx context.Context, reference string) ([]models.SupplierAttempt, error) {
	const op = "storage.postgres.ListAttempts"

	var attempts []models.SupplierAttempt

	err := s.DB.SelectContext(ctx, &attempts, `
		SELECT id, reference, operation, rate_key, outcome, supplier_reference, error, created_at
		FROM supplier_attempts
		WHERE reference = $1
		ORDER BY id`, reference)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return attempts, nil
}

// CancelBooking persists b.Cancellation guarded by b.Version and emits BookingCancelled.
func (s *Storage) CancelBooking(ctx context.Context, b *models.Booking, attempt models.SupplierAttempt) error {
	const op = "storage.postgres.CancelBooking"

	if b.Cancellation == nil {
		return fmt.Errorf("%s: cancellation details are required", op)
	}

	c := b.Cancellation

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var version int
		err := tx.QueryRowxContext(ctx, `
			UPDATE bookings
			SET status = $3, cancellation_fee = $4, refund_amount = $5, cancellation_reason = $6,
				cancellation_requested_at = $7, cancelled_at = $8, refund_status = $9,
				version = version + 1, updated_at = NOW()
			WHERE id = $1 AND version = $2
			RETURNING version`,
			b.ID, b.Version, models.BookingCancelled, c.Fee, c.RefundAmount, nullString(c.Reason),
			c.RequestedAt, c.CancelledAt, c.RefundStatus,
		).Scan(&version)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrConflict
			}
			return fmt.Errorf("failed to cancel booking: %w", err)
		}

		if err = insertAttempt(ctx, tx, attempt); err != nil {
			return err
		}

		b.Version = version
		b.Status = models.BookingCancelled

		return s.publish(ctx, tx, events.BookingCancelled{
			Header:       events.NewHeader(),
			BookingID:    b.ID,
			Reference:    b.Reference,
			Fee:          c.Fee,
			RefundAmount: c.RefundAmount,
			Currency:     b.Pricing.Currency,
			Reason:       c.Reason,
			Guest:        eventGuest(b.Guest),
		})
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) SetRefundStatus(ctx context.Context, bookingID int64, status models.RefundStatus) error {
	const op = "storage.postgres.SetRefundStatus"

	res, err := s.DB.ExecContext(ctx, `
		UPDATE bookings
		SET refund_status = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1`, bookingID, status)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err = expectOne(res, storage.ErrBookingNotFound); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// CompletePastBookings moves confirmed bookings whose last service date passed to completed.
func (s *Storage) CompletePastBookings(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.CompletePastBookings"

	res, err := s.DB.ExecContext(ctx, `
		UPDATE bookings
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE status = $2 AND COALESCE(end_date, service_date) < $3`,
		models.BookingCompleted, models.BookingConfirmed, now,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func getBooking(ctx context.Context, q sqlx.QueryerContext, where string, args ...any) (*models.Booking, error) {
	var row bookingRow

	err := sqlx.GetContext(ctx, q, &row, `SELECT `+bookingColumns+` FROM bookings `+where, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	b := row.toModel()

	return &b, nil
}

func selectBookings(ctx context.Context, q sqlx.QueryerContext, op, query string, args ...any) ([]models.Booking, error) {
	var rows []bookingRow

	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	bookings := make([]models.Booking, 0, len(rows))
	for _, r := range rows {
		bookings = append(bookings, r.toModel())
	}

	return bookings, nil
}

func insertAttempt(ctx context.Context, e sqlx.ExecerContext, a models.SupplierAttempt) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO supplier_attempts (reference, operation, rate_key, outcome, supplier_reference, error)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.Reference, a.Operation, a.RateKey, a.Outcome, a.SupplierReference, a.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record supplier attempt: %w", err)
	}

	return nil
}

func expectOne(res sql.Result, notAffected error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if n == 0 {
		return notAffected
	}

	return nil
}

func eventGuest(g models.Guest) events.Guest {
	return events.Guest{
		Name:  g.Name,
		Email: g.Email,
		Phone: g.Phone,
	}
}
