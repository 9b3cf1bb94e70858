package postgres

import (
	"database/sql"
	"time"
	"travelBooker/internal/models"
)

const bookingColumns = `
	id, reference, idempotency_key, user_id, type, status, supplier_status, supplier_reference,
	rate_key, service_date, end_date, guest_name, guest_email, guest_phone, adults, children,
	base_amount, taxes, fees, total_amount, currency, payment_method, payment_status, paid_amount,
	cancellation_fee, refund_amount, cancellation_reason, cancellation_requested_at, cancelled_at,
	refund_status, created_at, updated_at, version`

const paymentColumns = `
	id, booking_id, order_ref, session_id, redirect_url, method, status, amount, currency,
	gateway_txn_id, failure_reason, refund_due, created_at, updated_at`

type bookingRow struct {
	ID                      int64          `db:"id"`
	Reference               string         `db:"reference"`
	IdempotencyKey          sql.NullString `db:"idempotency_key"`
	UserID                  string         `db:"user_id"`
	Type                    string         `db:"type"`
	Status                  string         `db:"status"`
	SupplierStatus          string         `db:"supplier_status"`
	SupplierReference       sql.NullString `db:"supplier_reference"`
	RateKey                 string         `db:"rate_key"`
	ServiceDate             time.Time      `db:"service_date"`
	EndDate                 sql.NullTime   `db:"end_date"`
	GuestName               string         `db:"guest_name"`
	GuestEmail              string         `db:"guest_email"`
	GuestPhone              string         `db:"guest_phone"`
	Adults                  int            `db:"adults"`
	Children                int            `db:"children"`
	BaseAmount              int64          `db:"base_amount"`
	Taxes                   int64          `db:"taxes"`
	Fees                    int64          `db:"fees"`
	TotalAmount             int64          `db:"total_amount"`
	Currency                string         `db:"currency"`
	PaymentMethod           string         `db:"payment_method"`
	PaymentStatus           string         `db:"payment_status"`
	PaidAmount              int64          `db:"paid_amount"`
	CancellationFee         sql.NullInt64  `db:"cancellation_fee"`
	RefundAmount            sql.NullInt64  `db:"refund_amount"`
	CancellationReason      sql.NullString `db:"cancellation_reason"`
	CancellationRequestedAt sql.NullTime   `db:"cancellation_requested_at"`
	CancelledAt             sql.NullTime   `db:"cancelled_at"`
	RefundStatus            sql.NullString `db:"refund_status"`
	CreatedAt               time.Time      `db:"created_at"`
	UpdatedAt               time.Time      `db:"updated_at"`
	Version                 int            `db:"version"`
}

func (r bookingRow) toModel() models.Booking {
	b := models.Booking{
		ID:                r.ID,
		Reference:         r.Reference,
		IdempotencyKey:    r.IdempotencyKey.String,
		UserID:            r.UserID,
		Type:              models.BookingType(r.Type),
		Status:            models.BookingStatus(r.Status),
		SupplierStatus:    models.SupplierStatus(r.SupplierStatus),
		SupplierReference: r.SupplierReference.String,
		RateKey:           r.RateKey,
		ServiceDate:       r.ServiceDate.UTC(),
		Guest: models.Guest{
			Name:     r.GuestName,
			Email:    r.GuestEmail,
			Phone:    r.GuestPhone,
			Adults:   r.Adults,
			Children: r.Children,
		},
		Pricing: models.Pricing{
			BaseAmount:  r.BaseAmount,
			Taxes:       r.Taxes,
			Fees:        r.Fees,
			TotalAmount: r.TotalAmount,
			Currency:    r.Currency,
		},
		Payment: models.BookingPayment{
			Method:     models.PaymentMethod(r.PaymentMethod),
			Status:     models.PaymentStatus(r.PaymentStatus),
			PaidAmount: r.PaidAmount,
		},
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
		Version:   r.Version,
	}

	if r.EndDate.Valid {
		end := r.EndDate.Time.UTC()
		b.EndDate = &end
	}

	if r.CancellationRequestedAt.Valid {
		c := &models.Cancellation{
			Fee:          r.CancellationFee.Int64,
			RefundAmount: r.RefundAmount.Int64,
			Reason:       r.CancellationReason.String,
			RequestedAt:  r.CancellationRequestedAt.Time.UTC(),
			RefundStatus: models.RefundStatus(r.RefundStatus.String),
		}
		if r.CancelledAt.Valid {
			at := r.CancelledAt.Time.UTC()
			c.CancelledAt = &at
		}
		b.Cancellation = c
	}

	return b
}

type paymentRow struct {
	ID            int64          `db:"id"`
	BookingID     int64          `db:"booking_id"`
	OrderRef      string         `db:"order_ref"`
	SessionID     sql.NullString `db:"session_id"`
	RedirectURL   sql.NullString `db:"redirect_url"`
	Method        string         `db:"method"`
	Status        string         `db:"status"`
	Amount        int64          `db:"amount"`
	Currency      string         `db:"currency"`
	GatewayTxnID  sql.NullString `db:"gateway_txn_id"`
	FailureReason sql.NullString `db:"failure_reason"`
	RefundDue     bool           `db:"refund_due"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r paymentRow) toModel() models.Payment {
	return models.Payment{
		ID:            r.ID,
		BookingID:     r.BookingID,
		OrderRef:      r.OrderRef,
		SessionID:     r.SessionID.String,
		RedirectURL:   r.RedirectURL.String,
		Method:        models.PaymentMethod(r.Method),
		Status:        models.PaymentStatus(r.Status),
		Amount:        r.Amount,
		Currency:      r.Currency,
		GatewayTxnID:  r.GatewayTxnID.String,
		FailureReason: r.FailureReason.String,
		RefundDue:     r.RefundDue,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}
