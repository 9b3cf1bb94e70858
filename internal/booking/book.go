package booking

import (
	"context"
	"errors"
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/lithammer/shortuuid/v3"
	"log/slog"
	"strings"
	"time"
	"travelBooker/internal/clients/hotelbeds"
	"travelBooker/internal/lib/logger/sl"
	"travelBooker/internal/metrics"
	"travelBooker/internal/models"
	"travelBooker/internal/storage"
)

const referencePrefix = "TRV-"

type Request struct {
	UserID         string               `validate:"required"`
	IdempotencyKey string               `validate:"max=128"`
	Type           models.BookingType   `validate:"required,oneof=hotel transfer activity"`
	RateKey        string               `validate:"required"`
	ServiceDate    time.Time            `validate:"required"`
	EndDate        *time.Time           `validate:"omitempty"`
	Guest          models.Guest         `validate:"-"`
	Pricing        models.Pricing       `validate:"-"`
	PaymentMethod  models.PaymentMethod `validate:"required,oneof=online pay_on_site"`
	Remark         string               `validate:"max=500"`
}

func (r Request) Validate() error {
	if err := validator.New().Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	switch {
	case r.EndDate != nil && !r.EndDate.After(r.ServiceDate):
		return fmt.Errorf("%w: end date must be after service date", ErrInvalidRequest)
	case strings.TrimSpace(r.Guest.Name) == "" || r.Guest.Email == "":
		return fmt.Errorf("%w: guest name and email are required", ErrInvalidRequest)
	case r.Guest.Adults < 1 || r.Guest.Children < 0:
		return fmt.Errorf("%w: at least one adult is required", ErrInvalidRequest)
	case r.Pricing.TotalAmount <= 0 || len(r.Pricing.Currency) != 3:
		return fmt.Errorf("%w: total amount and currency are required", ErrInvalidRequest)
	}

	return nil
}

type Confirmation struct {
	BookingID         int64                `json:"booking_id"`
	Reference         string               `json:"reference"`
	SupplierReference string               `json:"supplier_reference"`
	Status            models.BookingStatus `json:"status"`
	PaymentMethod     models.PaymentMethod `json:"payment_method"`
	PaymentStatus     models.PaymentStatus `json:"payment_status"`
	PaymentID         int64                `json:"payment_id,omitempty"`
	RedirectURL       string               `json:"redirect_url,omitempty"`
}

// Book reserves with the supplier and records the result. A pending intent
// is stored before the supplier call so an unknown outcome can be reconciled.
func (s *Service) Book(ctx context.Context, req Request) (*Confirmation, error) {
	const op = "booking.Service.Book"

	if req.Type == "" {
		req.Type = models.BookingTypeHotel
	}

	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", req.UserID),
		slog.String("type", string(req.Type)),
	)

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if req.IdempotencyKey != "" {
		conf, err := s.existing(ctx, req.UserID, req.IdempotencyKey)
		if err == nil {
			log.Info("returning booking for repeated idempotency key", slog.String("reference", conf.Reference))
			return conf, nil
		}
		if !errors.Is(err, storage.ErrBookingNotFound) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if req.Type == models.BookingTypeHotel {
		if err := s.checkRate(ctx, req); err != nil {
			metrics.Bookings.WithLabelValues(string(req.Type), "rate_check_failed").Inc()
			log.Warn("rate check failed", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	b := &models.Booking{
		Reference:      referencePrefix + shortuuid.New(),
		IdempotencyKey: req.IdempotencyKey,
		UserID:         req.UserID,
		Type:           req.Type,
		RateKey:        req.RateKey,
		ServiceDate:    req.ServiceDate.UTC(),
		EndDate:        req.EndDate,
		Guest:          req.Guest,
		Pricing:        req.Pricing,
		Payment:        models.BookingPayment{Method: req.PaymentMethod},
	}

	if err := s.storage.CreateBookingIntent(ctx, b); err != nil {
		if errors.Is(err, storage.ErrBookingExists) && req.IdempotencyKey != "" {
			conf, existingErr := s.existing(ctx, req.UserID, req.IdempotencyKey)
			if existingErr != nil {
				return nil, fmt.Errorf("%s: %w", op, existingErr)
			}
			return conf, nil
		}
		return nil, fmt.Errorf("%s: failed to store intent: %w", op, err)
	}

	log = log.With(slog.String("reference", b.Reference))

	supplierConf, err := s.supplier.Book(ctx, hotelbeds.BookRequest{
		Type:            b.Type,
		RateKey:         b.RateKey,
		ClientReference: b.Reference,
		HolderName:      b.Guest.Name,
		HolderEmail:     b.Guest.Email,
		HolderPhone:     b.Guest.Phone,
		Adults:          b.Guest.Adults,
		Children:        b.Guest.Children,
		ServiceDate:     b.ServiceDate,
		EndDate:         b.EndDate,
		Remark:          req.Remark,
	})

	// the supplier may have acted; finish bookkeeping even if the caller went away
	pctx := context.WithoutCancel(ctx)

	if err != nil {
		attempt := models.SupplierAttempt{
			Reference: b.Reference,
			Operation: models.SupplierOpBook,
			RateKey:   b.RateKey,
			Error:     err.Error(),
		}

		if hotelbeds.IsRejected(err) {
			attempt.Outcome = models.OutcomeRejected
			if dErr := s.storage.DiscardIntent(pctx, b.ID, attempt); dErr != nil {
				log.Error("failed to discard rejected intent", sl.Err(dErr))
			}

			metrics.Bookings.WithLabelValues(string(b.Type), "rejected").Inc()
			log.Warn("supplier rejected booking", sl.Err(err))

			return nil, fmt.Errorf("%s: %w: %w", op, ErrSupplierRejected, err)
		}

		attempt.Outcome = models.OutcomeUnknown
		if mErr := s.storage.MarkSupplierUnknown(pctx, b.ID, attempt); mErr != nil {
			log.Error("failed to mark supplier outcome unknown", sl.Err(mErr))
		}

		metrics.Bookings.WithLabelValues(string(b.Type), "unknown").Inc()
		log.Error("supplier booking outcome unknown", sl.Err(err))

		return nil, fmt.Errorf("%s: %w", op, &PendingError{Reference: b.Reference, Err: err})
	}

	confirmed, err := s.storage.ConfirmBooking(pctx, b.ID, models.SupplierAttempt{
		Reference:         b.Reference,
		Operation:         models.SupplierOpBook,
		RateKey:           b.RateKey,
		Outcome:           models.OutcomeConfirmed,
		SupplierReference: supplierConf.Reference,
	})
	if err != nil {
		metrics.Bookings.WithLabelValues(string(b.Type), "unknown").Inc()
		log.Error("failed to store supplier confirmation",
			slog.String("supplier_reference", supplierConf.Reference),
			sl.Err(err),
		)

		return nil, fmt.Errorf("%s: %w", op, &PendingError{Reference: b.Reference, Err: err})
	}

	metrics.Bookings.WithLabelValues(string(b.Type), "confirmed").Inc()
	log.Info("booking confirmed", slog.String("supplier_reference", confirmed.SupplierReference))

	conf := toConfirmation(confirmed)

	if confirmed.Payment.Method == models.PaymentOnline {
		p, err := s.startPayment(pctx, confirmed)
		if err != nil {
			log.Error("failed to start payment", sl.Err(err))
			conf.PaymentStatus = models.PaymentFailed
		} else {
			conf.PaymentID = p.ID
			conf.PaymentStatus = p.Status
			conf.RedirectURL = p.RedirectURL
		}
	}

	return conf, nil
}

func (s *Service) checkRate(ctx context.Context, req Request) error {
	rate, err := s.supplier.CheckRate(ctx, req.RateKey)
	if err != nil {
		if errors.Is(err, hotelbeds.ErrRateNotFound) {
			return fmt.Errorf("%w: %w", ErrRateUnavailable, err)
		}
		return fmt.Errorf("%w: rate check: %w", ErrSupplierUnavailable, err)
	}

	if rate.Currency != "" && !strings.EqualFold(rate.Currency, req.Pricing.Currency) {
		return fmt.Errorf("%w: supplier currency %s", ErrPriceChanged, rate.Currency)
	}

	if rate.TotalNet > req.Pricing.TotalAmount {
		return fmt.Errorf("%w: supplier price %d above quoted %d", ErrPriceChanged, rate.TotalNet, req.Pricing.TotalAmount)
	}

	return nil
}

// existing resolves a repeated idempotency key to the booking it created.
func (s *Service) existing(ctx context.Context, userID, key string) (*Confirmation, error) {
	b, err := s.storage.GetBookingByIdempotencyKey(ctx, userID, key)
	if err != nil {
		return nil, err
	}

	if b.Status == models.BookingPending {
		return nil, fmt.Errorf("%w: %s", ErrBookingInProgress, b.Reference)
	}

	conf := toConfirmation(b)

	if b.Payment.Method == models.PaymentOnline && b.Payment.Status == models.PaymentPending {
		if p, err := s.storage.GetOpenPayment(ctx, b.ID); err == nil {
			conf.PaymentID = p.ID
			conf.RedirectURL = p.RedirectURL
		}
	}

	return conf, nil
}

func toConfirmation(b *models.Booking) *Confirmation {
	return &Confirmation{
		BookingID:         b.ID,
		Reference:         b.Reference,
		SupplierReference: b.SupplierReference,
		Status:            b.Status,
		PaymentMethod:     b.Payment.Method,
		PaymentStatus:     b.Payment.Status,
	}
}
