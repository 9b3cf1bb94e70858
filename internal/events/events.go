// Package events defines booking state change events and carries them through
// a Postgres backed outbox.
package events

import (
	"encoding/json"
	"fmt"
	"github.com/google/uuid"
	"time"
)

const (
	// Topic is the single outbox topic; the event name travels in message metadata.
	Topic = "booking_events"

	NameMetadataKey = "event_name"
)

type Event interface {
	EventName() string
}

type Header struct {
	ID          string    `json:"id"`
	PublishedAt time.Time `json:"published_at"`
}

func NewHeader() Header {
	return Header{
		ID:          uuid.NewString(),
		PublishedAt: time.Now().UTC(),
	}
}

type Guest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type BookingConfirmed struct {
	Header Header `json:"header"`

	BookingID         int64     `json:"booking_id"`
	Reference         string    `json:"reference"`
	SupplierReference string    `json:"supplier_reference"`
	Type              string    `json:"type"`
	ServiceDate       time.Time `json:"service_date"`
	TotalAmount       int64     `json:"total_amount"`
	Currency          string    `json:"currency"`
	PaymentMethod     string    `json:"payment_method"`
	Guest             Guest     `json:"guest"`
}

func (BookingConfirmed) EventName() string { return "BookingConfirmed" }

type BookingCancelled struct {
	Header Header `json:"header"`

	BookingID    int64  `json:"booking_id"`
	Reference    string `json:"reference"`
	Fee          int64  `json:"fee"`
	RefundAmount int64  `json:"refund_amount"`
	Currency     string `json:"currency"`
	Reason       string `json:"reason,omitempty"`
	Guest        Guest  `json:"guest"`
}

func (BookingCancelled) EventName() string { return "BookingCancelled" }

type PaymentCompleted struct {
	Header Header `json:"header"`

	BookingID int64  `json:"booking_id"`
	Reference string `json:"reference"`
	PaymentID int64  `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Guest     Guest  `json:"guest"`
}

func (PaymentCompleted) EventName() string { return "PaymentCompleted" }

type RefundIssued struct {
	Header Header `json:"header"`

	BookingID int64  `json:"booking_id"`
	Reference string `json:"reference"`
	PaymentID int64  `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Guest     Guest  `json:"guest"`
}

func (RefundIssued) EventName() string { return "RefundIssued" }

// Decode turns an outbox payload back into its typed event.
func Decode(name string, payload []byte) (Event, error) {
	var event Event

	switch name {
	case BookingConfirmed{}.EventName():
		event = &BookingConfirmed{}
	case BookingCancelled{}.EventName():
		event = &BookingCancelled{}
	case PaymentCompleted{}.EventName():
		event = &PaymentCompleted{}
	case RefundIssued{}.EventName():
		event = &RefundIssued{}
	default:
		return nil, fmt.Errorf("unknown event %q", name)
	}

	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}

	return event, nil
}
