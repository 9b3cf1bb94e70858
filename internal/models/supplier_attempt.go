package models

import "time"

type SupplierOperation string

const (
	SupplierOpBook   SupplierOperation = "book"
	SupplierOpCancel SupplierOperation = "cancel"
	SupplierOpLookup SupplierOperation = "lookup"
)

type SupplierOutcome string

const (
	OutcomeConfirmed SupplierOutcome = "confirmed"
	OutcomeRejected  SupplierOutcome = "rejected"
	OutcomeUnknown   SupplierOutcome = "unknown"
	OutcomeCancelled SupplierOutcome = "cancelled"
	OutcomeNotFound  SupplierOutcome = "not_found"
)

type SupplierAttempt struct {
	ID                int64             `json:"id" db:"id"`
	Reference         string            `json:"reference" db:"reference"`
	Operation         SupplierOperation `json:"operation" db:"operation"`
	RateKey           string            `json:"rate_key,omitempty" db:"rate_key"`
	Outcome           SupplierOutcome   `json:"outcome" db:"outcome"`
	SupplierReference string            `json:"supplier_reference,omitempty" db:"supplier_reference"`
	Error             string            `json:"error,omitempty" db:"error"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
}
