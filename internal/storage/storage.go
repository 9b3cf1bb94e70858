package storage

import (
	"errors"
	"travelBooker/internal/models"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrBookingExists   = errors.New("booking already exists")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrConflict        = errors.New("record was modified concurrently")
	ErrNotPayable      = errors.New("booking no longer accepts payment")
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

type BookingFilter struct {
	Status models.BookingStatus
	Type   models.BookingType
	UserID string
	Limit  int
	Offset int
}

// Normalize clamps paging to the supported range.
func (f BookingFilter) Normalize() BookingFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	return f
}
