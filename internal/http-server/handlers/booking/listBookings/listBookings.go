package listBookings

import (
	"context"
	"github.com/go-chi/render"
	"github.com/samber/lo"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"travelBooker/internal/lib/api/response"
	"travelBooker/internal/lib/logger/sl"
	"travelBooker/internal/models"
	"travelBooker/internal/storage"
)

// Summary is the admin list row for a booking.
type Summary struct {
	ID             int64                 `json:"id"`
	Reference      string                `json:"reference"`
	UserID         string                `json:"user_id"`
	Type           models.BookingType    `json:"type"`
	Status         models.BookingStatus  `json:"status"`
	ServiceDate    time.Time             `json:"service_date"`
	GuestName      string                `json:"guest_name"`
	TotalAmount    int64                 `json:"total_amount"`
	Currency       string                `json:"currency"`
	PaymentMethod  models.PaymentMethod  `json:"payment_method"`
	PaymentStatus  models.PaymentStatus  `json:"payment_status"`
	SupplierStatus models.SupplierStatus `json:"supplier_status"`
	CreatedAt      time.Time             `json:"created_at"`
}

type Response struct {
	response.Response
	Bookings []Summary `json:"bookings"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

//go:generate go run github.com/vektra/mockery/v2@v2.51.1 --name=BookingLister
type BookingLister interface {
	ListBookings(ctx context.Context, filter storage.BookingFilter) ([]models.Booking, error)
}

func New(log *slog.Logger, lister BookingLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.booking.listBookings.New"

		log := log.With(slog.String("op", op))

		filter, msg := parseFilter(r)
		if msg != "" {
			log.Error("invalid filter", slog.String("reason", msg))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(msg))
			return
		}

		filter = filter.Normalize()

		bookings, err := lister.ListBookings(r.Context(), filter)
		if err != nil {
			log.Error("failed to list bookings", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to list bookings"))
			return
		}

		log.Info("bookings listed", slog.Int("count", len(bookings)))

		responseOK(w, r, bookings, filter)
	}
}

func parseFilter(r *http.Request) (storage.BookingFilter, string) {
	q := r.URL.Query()

	var filter storage.BookingFilter

	if s := q.Get("status"); s != "" {
		if !models.ValidBookingStatus(s) {
			return filter, "invalid status"
		}
		filter.Status = models.BookingStatus(s)
	}

	if t := q.Get("type"); t != "" {
		if !models.ValidBookingType(t) {
			return filter, "invalid type"
		}
		filter.Type = models.BookingType(t)
	}

	filter.UserID = q.Get("user_id")

	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 0 {
			return filter, "invalid limit"
		}
		filter.Limit = limit
	}

	if o := q.Get("offset"); o != "" {
		offset, err := strconv.Atoi(o)
		if err != nil || offset < 0 {
			return filter, "invalid offset"
		}
		filter.Offset = offset
	}

	return filter, ""
}

func toSummary(b models.Booking, _ int) Summary {
	return Summary{
		ID:             b.ID,
		Reference:      b.Reference,
		UserID:         b.UserID,
		Type:           b.Type,
		Status:         b.Status,
		ServiceDate:    b.ServiceDate,
		GuestName:      b.Guest.Name,
		TotalAmount:    b.Pricing.TotalAmount,
		Currency:       b.Pricing.Currency,
		PaymentMethod:  b.Payment.Method,
		PaymentStatus:  b.Payment.Status,
		SupplierStatus: b.SupplierStatus,
		CreatedAt:      b.CreatedAt,
	}
}

func responseOK(w http.ResponseWriter, r *http.Request, bookings []models.Booking, filter storage.BookingFilter) {
	render.JSON(w, r, Response{
		Response: response.OK(),
		Bookings: lo.Map(bookings, toSummary),
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
}
