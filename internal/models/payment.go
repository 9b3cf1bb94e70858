package models

import "time"

type PaymentMethod string

const (
	PaymentOnline    PaymentMethod = "online"
	PaymentPayOnSite PaymentMethod = "pay_on_site"
)

// PaymentStatus is shared by Payment rows and the booking payment sub-document.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentExpired   PaymentStatus = "expired"
)

type Payment struct {
	ID            int64         `json:"id"`
	BookingID     int64         `json:"booking_id"`
	OrderRef      string        `json:"order_ref"`
	SessionID     string        `json:"session_id,omitempty"`
	RedirectURL   string        `json:"redirect_url,omitempty"`
	Method        PaymentMethod `json:"method"`
	Status        PaymentStatus `json:"status"`
	Amount        int64         `json:"amount"`
	Currency      string        `json:"currency"`
	GatewayTxnID  string        `json:"gateway_txn_id,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	RefundDue     bool          `json:"refund_due,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Settled reports whether the gateway already captured the money.
func (p *Payment) Settled() bool {
	return p.Status == PaymentCompleted || p.Status == PaymentRefunded
}
