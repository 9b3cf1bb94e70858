package cancellationQuote

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
	"travelBooker/internal/storage"
)

type Response struct {
	response.Response
	Quote *booking.CancellationQuote `json:"quote,omitempty"`
}

//go:generate go run github.com/vektra/mockery/v2@v2.51.1 --name=QuoteProvider
type QuoteProvider interface {
	CancellationQuote(ctx context.Context, bookingID int64) (*booking.CancellationQuote, error)
}

func New(log *slog.Logger, provider QuoteProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.booking.cancellationQuote.New"

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

		quote, err := provider.CancellationQuote(r.Context(), id)
		if err != nil {
			log.Error("failed to quote cancellation", slog.Int64("booking_id", id), sl.Err(err))

			switch {
			case errors.Is(err, storage.ErrBookingNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.Error("booking not found"))
			case errors.Is(err, booking.ErrNotCancellable):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.Error("booking cannot be cancelled"))
			default:
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.Error("failed to quote cancellation"))
			}

			return
		}

		responseOK(w, r, quote)
	}
}

func responseOK(w http.ResponseWriter, r *http.Request, quote *booking.CancellationQuote) {
	render.JSON(w, r, Response{
		Response: response.OK(),
		Quote:    quote,
	})
}
