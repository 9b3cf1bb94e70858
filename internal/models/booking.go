package models

import (
	"errors"
	"time"
)

type BookingType string

const (
	BookingTypeHotel    BookingType = "hotel"
	BookingTypeTransfer BookingType = "transfer"
	BookingTypeActivity BookingType = "activity"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
	BookingRefunded  BookingStatus = "refunded"
	BookingExpired   BookingStatus = "expired"
	BookingOnHold    BookingStatus = "on_hold"
)

type SupplierStatus string

const (
	SupplierRequested SupplierStatus = "requested"
	SupplierConfirmed SupplierStatus = "confirmed"
	SupplierUnknown   SupplierStatus = "unknown"
)

type RefundStatus string

const (
	RefundNotRequired RefundStatus = "not_required"
	RefundPending     RefundStatus = "pending"
	RefundCompleted   RefundStatus = "completed"
	RefundFailed      RefundStatus = "failed"
)

var ErrMissingSupplierReference = errors.New("confirmed booking without supplier reference")

type Guest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Adults   int    `json:"adults"`
	Children int    `json:"children"`
}

// Pricing holds amounts in minor currency units.
type Pricing struct {
	BaseAmount  int64  `json:"base_amount"`
	Taxes       int64  `json:"taxes"`
	Fees        int64  `json:"fees"`
	TotalAmount int64  `json:"total_amount"`
	Currency    string `json:"currency"`
}

type BookingPayment struct {
	Method     PaymentMethod `json:"method"`
	Status     PaymentStatus `json:"status"`
	PaidAmount int64         `json:"paid_amount"`
}

type Cancellation struct {
	Fee          int64        `json:"fee"`
	RefundAmount int64        `json:"refund_amount"`
	Reason       string       `json:"reason,omitempty"`
	RequestedAt  time.Time    `json:"requested_at"`
	CancelledAt  *time.Time   `json:"cancelled_at,omitempty"`
	RefundStatus RefundStatus `json:"refund_status"`
}

type Booking struct {
	ID                int64          `json:"id"`
	Reference         string         `json:"reference"`
	IdempotencyKey    string         `json:"-"`
	UserID            string         `json:"user_id"`
	Type              BookingType    `json:"type"`
	Status            BookingStatus  `json:"status"`
	SupplierStatus    SupplierStatus `json:"supplier_status"`
	SupplierReference string         `json:"supplier_reference,omitempty"`
	RateKey           string         `json:"-"`
	ServiceDate       time.Time      `json:"service_date"`
	EndDate           *time.Time     `json:"end_date,omitempty"`
	Guest             Guest          `json:"guest"`
	Pricing           Pricing        `json:"pricing"`
	Payment           BookingPayment `json:"payment"`
	Cancellation      *Cancellation  `json:"cancellation,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	Version           int            `json:"-"`
}

func (b *Booking) Validate() error {
	if b.Status == BookingConfirmed && b.SupplierReference == "" {
		return ErrMissingSupplierReference
	}

	return nil
}

func (b *Booking) Cancellable() bool {
	return b.Status == BookingConfirmed || b.Status == BookingOnHold
}

// AcceptsPayment reports whether a capture can be applied to the booking.
// Captures arriving after cancellation or after another payment settled
// must be refunded instead.
func (b *Booking) AcceptsPayment() bool {
	if !b.Cancellable() {
		return false
	}

	return b.Payment.Status != PaymentCompleted && b.Payment.Status != PaymentRefunded
}

func ValidBookingType(t string) bool {
	switch BookingType(t) {
	case BookingTypeHotel, BookingTypeTransfer, BookingTypeActivity:
		return true
	}

	return false
}

func ValidBookingStatus(s string) bool {
	switch BookingStatus(s) {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted,
		BookingRefunded, BookingExpired, BookingOnHold:
		return true
	}

	return false
}
