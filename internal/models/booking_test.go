package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBookingValidate(t *testing.T) {
	t.Parallel()

	b := Booking{Status: BookingConfirmed}
	assert.ErrorIs(t, b.Validate(), ErrMissingSupplierReference)

	b.SupplierReference = "1-3858112"
	assert.NoError(t, b.Validate())

	pending := Booking{Status: BookingPending}
	assert.NoError(t, pending.Validate())
}

func TestBookingCancellable(t *testing.T) {
	t.Parallel()

	for _, s := range []BookingStatus{BookingConfirmed, BookingOnHold} {
		b := Booking{Status: s}
		assert.True(t, b.Cancellable(), s)
	}

	for _, s := range []BookingStatus{BookingPending, BookingCancelled, BookingCompleted, BookingRefunded, BookingExpired} {
		b := Booking{Status: s}
		assert.False(t, b.Cancellable(), s)
	}
}

func TestBookingAcceptsPayment(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		status   BookingStatus
		payment  PaymentStatus
		expected bool
	}{
		{name: "Confirmed awaiting payment", status: BookingConfirmed, payment: PaymentPending, expected: true},
		{name: "On hold after failed payment", status: BookingOnHold, payment: PaymentFailed, expected: true},
		{name: "Confirmed after expired session", status: BookingConfirmed, payment: PaymentExpired, expected: true},
		{name: "Already paid", status: BookingConfirmed, payment: PaymentCompleted},
		{name: "Cancelled", status: BookingCancelled, payment: PaymentFailed},
		{name: "Refunded", status: BookingRefunded, payment: PaymentRefunded},
		{name: "Completed stay", status: BookingCompleted, payment: PaymentPending},
	}

	for _, tc := range cases {
		b := Booking{Status: tc.status, Payment: BookingPayment{Method: PaymentOnline, Status: tc.payment}}
		assert.Equal(t, tc.expected, b.AcceptsPayment(), tc.name)
	}
}
