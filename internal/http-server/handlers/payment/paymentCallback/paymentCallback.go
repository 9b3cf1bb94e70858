package paymentCallback

import (
	"context"
	"errors"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"log/slog"
	"net/http"
	"travelBooker/internal/booking"
	"travelBooker/internal/clients/hblpay"
	"travelBooker/internal/lib/api/response"
	"travelBooker/internal/lib/logger/sl"
	"travelBooker/internal/models"
	"travelBooker/internal/storage"
)

// Request accepts the gateway callback as JSON or as a form post.
type Request struct {
	OrderRef  string `json:"order_ref" form:"order_ref" validate:"required"`
	SessionID string `json:"session_id" form:"session_id" validate:"required"`
	Status    string `json:"status" form:"status" validate:"required"`
	Amount    int64  `json:"amount" form:"amount" validate:"min=0"`
	TxnID     string `json:"txn_id" form:"txn_id"`
	Signature string `json:"signature" form:"signature" validate:"required"`
}

type Response struct {
	response.Response
	PaymentStatus models.PaymentStatus `json:"payment_status,omitempty"`
}

//go:generate go run github.com/vektra/mockery/v2@v2.51.1 --name=CallbackHandler
type CallbackHandler interface {
	HandleCallback(ctx context.Context, cb hblpay.Callback) (*models.Payment, error)
}

func New(log *slog.Logger, handler CallbackHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.payment.paymentCallback.New"

		log := log.With(slog.String("op", op))

		var req Request

		err := render.Decode(r, &req)
		if err != nil {
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

		log = log.With(slog.String("order_ref", req.OrderRef))

		p, err := handler.HandleCallback(r.Context(), hblpay.Callback(req))
		if err != nil {
			log.Error("failed to handle callback", sl.Err(err))

			switch {
			case errors.Is(err, hblpay.ErrInvalidSignature):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid signature"))
			case errors.Is(err, storage.ErrPaymentNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.Error("payment not found"))
			case errors.Is(err, booking.ErrCallbackMismatch):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.Error("callback does not match payment"))
			default:
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.Error("failed to handle callback"))
			}

			return
		}

		log.Info("callback handled", slog.String("payment_status", string(p.Status)))

		responseOK(w, r, p.Status)
	}
}

func responseOK(w http.ResponseWriter, r *http.Request, status models.PaymentStatus) {
	render.JSON(w, r, Response{
		Response:      response.OK(),
		PaymentStatus: status,
	})
}
