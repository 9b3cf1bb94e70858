package createBooking

import (
	"context"
	"errors"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"log/slog"
	"net/http"
	"time"
	"travelBooker/internal/booking"
	"travelBooker/internal/lib/api/response"
	"travelBooker/internal/lib/logger/sl"
	"travelBooker/internal/models"
)

const (
	dateLayout        = "2006-01-02"
	idempotencyHeader = "Idempotency-Key"
)

type Guest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone,omitempty"`
	Adults   int    `json:"adults" validate:"min=1"`
	Children int    `json:"children" validate:"min=0"`
}

// Pricing amounts are minor currency units.
type Pricing struct {
	BaseAmount  int64  `json:"base_amount" validate:"min=0"`
	Taxes       int64  `json:"taxes" validate:"min=0"`
	Fees        int64  `json:"fees" validate:"min=0"`
	TotalAmount int64  `json:"total_amount" validate:"gt=0"`
	Currency    string `json:"currency" validate:"required,len=3"`
}

type Request struct {
	UserID        string  `json:"user_id" validate:"required"`
	Type          string  `json:"type,omitempty" validate:"omitempty,oneof=hotel transfer activity"`
	RateKey       string  `json:"rate_key" validate:"required"`
	ServiceDate   string  `json:"service_date" validate:"required,datetime=2006-01-02"`
	EndDate       string  `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Guest         Guest   `json:"guest"`
	Pricing       Pricing `json:"pricing"`
	PaymentMethod string  `json:"payment_method" validate:"required,oneof=online pay_on_site"`
	Remark        string  `json:"remark,omitempty" validate:"max=500"`
}

type Response struct {
	response.Response
	Booking   *booking.Confirmation `json:"booking,omitempty"`
	Reference string                `json:"reference,omitempty"`
}

//go:generate go run github.com/vektra/mockery/v2@v2.51.1 --name=BookingCreator
type BookingCreator interface {
	Book(ctx context.Context, req booking.Request) (*booking.Confirmation, error)
}

func New(log *slog.Logger, creator BookingCreator) http.HandlerFunc {
	return handler(log, creator, "")
}

// NewTransfer books a transfer whatever type the body names.
func NewTransfer(log *slog.Logger, creator BookingCreator) http.HandlerFunc {
	return handler(log, creator, models.BookingTypeTransfer)
}

func handler(log *slog.Logger, creator BookingCreator, forceType models.BookingType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.booking.createBooking.New"

		log := log.With(slog.String("op", op))

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("failed to decode request body", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("failed to decode request"))
			return
		}

		if forceType != "" {
			req.Type = string(forceType)
		}

		if err = validator.New().Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			if errors.As(err, &validateErr) {
				log.Error("invalid request", sl.Err(err))
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.ValidationError(validateErr))
				return
			}
		}

		bookReq, err := toBookingRequest(req, r.Header.Get(idempotencyHeader))
		if err != nil {
			log.Error("invalid dates", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid dates"))
			return
		}

		log = log.With(slog.String("user_id", req.UserID), slog.String("type", string(bookReq.Type)))

		conf, err := creator.Book(r.Context(), bookReq)
		if err != nil {
			log.Error("failed to create booking", sl.Err(err))

			var pending *booking.PendingError

			switch {
			case errors.As(err, &pending):
				render.Status(r, http.StatusBadGateway)
				render.JSON(w, r, Response{
					Response:  response.Error("supplier did not confirm in time, check the booking status later"),
					Reference: pending.Reference,
				})
			case errors.Is(err, booking.ErrInvalidRequest):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.Error("invalid booking request"))
			case errors.Is(err, booking.ErrRateUnavailable):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.Error("rate is no longer available"))
			case errors.Is(err, booking.ErrPriceChanged):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.Error("price has changed"))
			case errors.Is(err, booking.ErrSupplierRejected):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.Error("supplier rejected the booking"))
			case errors.Is(err, booking.ErrBookingInProgress):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.Error("booking with this idempotency key is in progress"))
			case errors.Is(err, booking.ErrSupplierUnavailable):
				render.Status(r, http.StatusBadGateway)
				render.JSON(w, r, response.Error("supplier unavailable"))
			default:
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.Error("failed to create booking"))
			}

			return
		}

		log.Info("booking created", slog.String("reference", conf.Reference))

		responseOK(w, r, conf)
	}
}

func toBookingRequest(req Request, idempotencyKey string) (booking.Request, error) {
	serviceDate, err := time.Parse(dateLayout, req.ServiceDate)
	if err != nil {
		return booking.Request{}, err
	}

	var endDate *time.Time
	if req.EndDate != "" {
		end, err := time.Parse(dateLayout, req.EndDate)
		if err != nil {
			return booking.Request{}, err
		}
		endDate = &end
	}

	return booking.Request{
		UserID:         req.UserID,
		IdempotencyKey: idempotencyKey,
		Type:           models.BookingType(req.Type),
		RateKey:        req.RateKey,
		ServiceDate:    serviceDate,
		EndDate:        endDate,
		Guest: models.Guest{
			Name:     req.Guest.Name,
			Email:    req.Guest.Email,
			Phone:    req.Guest.Phone,
			Adults:   req.Guest.Adults,
			Children: req.Guest.Children,
		},
		Pricing: models.Pricing{
			BaseAmount:  req.Pricing.BaseAmount,
			Taxes:       req.Pricing.Taxes,
			Fees:        req.Pricing.Fees,
			TotalAmount: req.Pricing.TotalAmount,
			Currency:    req.Pricing.Currency,
		},
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		Remark:        req.Remark,
	}, nil
}

func responseOK(w http.ResponseWriter, r *http.Request, conf *booking.Confirmation) {
	render.JSON(w, r, Response{
		Response: response.OK(),
		Booking:  conf,
	})
}
