package getBooking

import (
	"context"
	"errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"log/slog"
	"net/http"
	"strconv"
	"travelBooker/internal/lib/api/response"
	"travelBooker/internal/lib/logger/sl"
	"travelBooker/internal/models"
	"travelBooker/internal/storage"
)

type Response struct {
	response.Response
	Booking *models.Booking `json:"booking"`
}

//go:generate go run github.com/vektra/mockery/v2@v2.51.1 --name=BookingGetter
type BookingGetter interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
}

func New(log *slog.Logger, getter BookingGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.booking.getBooking.New"

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

		b, err := getter.GetBooking(r.Context(), id)
		if err != nil {
			log.Error("failed to get booking", sl.Err(err))

			if errors.Is(err, storage.ErrBookingNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.Error("booking not found"))
				return
			}

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to get booking"))
			return
		}

		log.Info("booking received", slog.String("status", string(b.Status)))

		responseOK(w, r, b)
	}
}

func responseOK(w http.ResponseWriter, r *http.Request, b *models.Booking) {
	render.JSON(w, r, Response{
		Response: response.OK(),
		Booking:  b,
	})
}
