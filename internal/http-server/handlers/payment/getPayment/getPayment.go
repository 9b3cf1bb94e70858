package getPayment

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
	Payment *models.Payment `json:"payment"`
}

//go:generate go run github.com/vektra/mockery/v2@v2.51.1 --name=PaymentGetter
type PaymentGetter interface {
	GetPayment(ctx context.Context, id int64) (*models.Payment, error)
}

func New(log *slog.Logger, getter PaymentGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.payment.getPayment.New"

		log := log.With(slog.String("op", op))

		idStr := chi.URLParam(r, "id")
		if idStr == "" {
			log.Error("payment id is required")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("payment id is required"))
			return
		}

		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			log.Error("invalid payment id format", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid payment id format"))
			return
		}

		p, err := getter.GetPayment(r.Context(), id)
		if err != nil {
			log.Error("failed to get payment", slog.Int64("payment_id", id), sl.Err(err))

			if errors.Is(err, storage.ErrPaymentNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.Error("payment not found"))
				return
			}

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to get payment"))
			return
		}

		responseOK(w, r, p)
	}
}

func responseOK(w http.ResponseWriter, r *http.Request, p *models.Payment) {
	render.JSON(w, r, Response{
		Response: response.OK(),
		Payment:  p,
	})
}
