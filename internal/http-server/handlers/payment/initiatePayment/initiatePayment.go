package initiatePayment

import (
	"context"
	"errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"log/slog"
	"net/http"
	"strconv"
	"travelBooker/internal/booking"
	"travelBooker/internal/lib/api/response"
	"travelBooker/internal/lib/logger/sl"
	"travelBooker/internal/models"
	"travelBooker/internal/storage"
)

type Response struct {
	response.Response
	PaymentID   int64                `json:"payment_id,omitempty"`
	Status      models.PaymentStatus `json:"payment_status,omitempty"`
	RedirectURL string               `json:"redirect_url,omitempty"`
}

//go:generate go run github.com/vektra/mockery/v2@v2.51.1 --name=PaymentInitiator
type PaymentInitiator interface {
	InitiatePayment(ctx context.Context, bookingID int64) (*models.Payment, error)
}

func New(log *slog.Logger, initiator PaymentInitiator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.payment.initiatePayment.New"

		log := log.With(slog.String("op", op))

		idStr := chi.URLParam(r, "bookingId")
		if idStr == "" {
			log.Error("booking id is required")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("booking id is required"))
			return
		}

		bookingID, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			log.Error("invalid booking id format", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid booking id format"))
			return
		}

		log = log.With(slog.Int64("booking_id", bookingID))

		p, err := initiator.InitiatePayment(r.Context(), bookingID)
		if err != nil {
			log.Error("failed to initiate payment", sl.Err(err))

			switch {
			case errors.Is(err, storage.ErrBookingNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.Error("booking not found"))
			case errors.Is(err, booking.ErrPaymentNotAllowed):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.Error("payment cannot be initiated for this booking"))
			case errors.Is(err, storage.ErrConflict):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.Error("payment was modified concurrently"))
			case errors.Is(err, booking.ErrGatewayUnavailable):
				render.Status(r, http.StatusBadGateway)
				render.JSON(w, r, response.Error("payment gateway unavailable"))
			default:
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.Error("failed to initiate payment"))
			}

			return
		}

		log.Info("payment initiated", slog.Int64("payment_id", p.ID))

		responseOK(w, r, p)
	}
}

func responseOK(w http.ResponseWriter, r *http.Request, p *models.Payment) {
	render.JSON(w, r, Response{
		Response:    response.OK(),
		PaymentID:   p.ID,
		Status:      p.Status,
		RedirectURL: p.RedirectURL,
	})
}
