package cancelBooking

import (
	"context"
	"errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"travelBooker/internal/booking"
	"travelBooker/internal/lib/api/response"
	"travelBooker/internal/lib/logger/sl"
	"travelBooker/internal/models"
	"travelBooker/internal/storage"
)

type Request struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type Response struct {
	response.Response
	Booking *models.Booking `json:"booking,omitempty"`
}

//go:generate go run github.com/vektra/mockery/v2@v2.51.1 --name=BookingCanceller
type BookingCanceller interface {
	Cancel(ctx context.Context, bookingID int64, reason string) (*models.Booking, error)
}

func New(log *slog.Logger, canceller BookingCanceller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.booking.cancelBooking.New"

		log := log.With(slog.String("op", op))

		idStr := chi.URLParam(r, "id")
		if idStr == "" {
			log.Error("booking id is required")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("booking id is required"))
			return
		}

		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			log.Error("invalid booking id format", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid booking id format"))
			return
		}

		log = log.With(slog.Int64("booking_id", id))

		var req Request

		// the body is optional
		err = render.DecodeJSON(r.Body, &req)
		if err != nil && !errors.Is(err, io.EOF) {
			log.Error("failed to decode request body", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("failed to decode request"))
			return
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

		b, err := canceller.Cancel(r.Context(), id, req.Reason)
		if err != nil {
			log.Error("failed to cancel booking", sl.Err(err))

			switch {
			case errors.Is(err, storage.ErrBookingNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.Error("booking not found"))
			case errors.Is(err, booking.ErrNotCancellable):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.Error("booking cannot be cancelled"))
			case errors.Is(err, storage.ErrConflict):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.Error("booking was modified concurrently"))
			case errors.Is(err, booking.ErrSupplierCancelFailed):
				render.Status(r, http.StatusBadGateway)
				render.JSON(w, r, response.Error("supplier cancellation failed"))
			default:
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.Error("failed to cancel booking"))
			}

			return
		}

		log.Info("booking cancelled", slog.String("status", string(b.Status)))

		responseOK(w, r, b)
	}
}

func responseOK(w http.ResponseWriter, r *http.Request, b *models.Booking) {
	render.JSON(w, r, Response{
		Response: response.OK(),
		Booking:  b,
	})
}
