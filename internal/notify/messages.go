package notify

import (
	"fmt"
	"strings"
	"travelBooker/internal/events"
	"travelBooker/internal/lib/money"
)

// FromEvent renders the notification for an outbox event. The second result
// is false for events nobody is notified about.
func FromEvent(event events.Event) (Notification, bool) {
	switch e := event.(type) {
	case *events.BookingConfirmed:
		return Notification{
			Kind:      e.EventName(),
			Reference: e.Reference,
			Subject:   fmt.Sprintf("Booking %s confirmed", e.Reference),
			Body: lines(
				fmt.Sprintf("Dear %s,", e.Guest.Name),
				fmt.Sprintf("your %s booking %s is confirmed.", e.Type, e.Reference),
				fmt.Sprintf("Supplier reference: %s", e.SupplierReference),
				fmt.Sprintf("Date: %s", e.ServiceDate.Format("2006-01-02")),
				fmt.Sprintf("Total: %s %s (%s)", money.FormatMinor(e.TotalAmount), e.Currency, paymentLabel(e.PaymentMethod)),
			),
			Email: e.Guest.Email,
			Phone: e.Guest.Phone,
		}, true
	case *events.BookingCancelled:
		return Notification{
			Kind:      e.EventName(),
			Reference: e.Reference,
			Subject:   fmt.Sprintf("Booking %s cancelled", e.Reference),
			Body: lines(
				fmt.Sprintf("Dear %s,", e.Guest.Name),
				fmt.Sprintf("booking %s has been cancelled.", e.Reference),
				fmt.Sprintf("Cancellation fee: %s %s", money.FormatMinor(e.Fee), e.Currency),
				fmt.Sprintf("Refund: %s %s", money.FormatMinor(e.RefundAmount), e.Currency),
			),
			Email: e.Guest.Email,
			Phone: e.Guest.Phone,
		}, true
	case *events.PaymentCompleted:
		return Notification{
			Kind:      e.EventName(),
			Reference: e.Reference,
			Subject:   fmt.Sprintf("Payment received for %s", e.Reference),
			Body: lines(
				fmt.Sprintf("Dear %s,", e.Guest.Name),
				fmt.Sprintf("we received %s %s for booking %s.", money.FormatMinor(e.Amount), e.Currency, e.Reference),
			),
			Email: e.Guest.Email,
			Phone: e.Guest.Phone,
		}, true
	case *events.RefundIssued:
		return Notification{
			Kind:      e.EventName(),
			Reference: e.Reference,
			Subject:   fmt.Sprintf("Refund issued for %s", e.Reference),
			Body: lines(
				fmt.Sprintf("Dear %s,", e.Guest.Name),
				fmt.Sprintf("a refund of %s %s for booking %s is on its way.", money.FormatMinor(e.Amount), e.Currency, e.Reference),
			),
			Email: e.Guest.Email,
			Phone: e.Guest.Phone,
		}, true
	}

	return Notification{}, false
}

func paymentLabel(method string) string {
	if method == "pay_on_site" {
		return "pay on site"
	}

	return "paid online"
}

func lines(l ...string) string {
	return strings.Join(l, "\n")
}
