// Package booking coordinates supplier bookings, payments and cancellations.
package booking

import (
	"context"
	"log/slog"
	"time"
	"travelBooker/internal/clients/hblpay"
	"travelBooker/internal/clients/hotelbeds"
	"travelBooker/internal/config"
	"travelBooker/internal/models"
	"travelBooker/internal/storage"
)

type Storage interface {
	CreateBookingIntent(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingByIdempotencyKey(ctx context.Context, userID, key string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter storage.BookingFilter) ([]models.Booking, error)
	ListStaleIntents(ctx context.Context, createdBefore time.Time, limit int) ([]models.Booking, error)
	ConfirmBooking(ctx context.Context, id int64, attempt models.SupplierAttempt) (*models.Booking, error)
	DiscardIntent(ctx context.Context, id int64, attempt models.SupplierAttempt) error
	MarkSupplierUnknown(ctx context.Context, id int64, attempt models.SupplierAttempt) error
	ExpireIntent(ctx context.Context, id int64, attempt models.SupplierAttempt) error
	RecordAttempt(ctx context.Context, attempt models.SupplierAttempt) error
	CancelBooking(ctx context.Context, b *models.Booking, attempt models.SupplierAttempt) error
	SetRefundStatus(ctx context.Context, bookingID int64, status models.RefundStatus) error
	CompletePastBookings(ctx context.Context, now time.Time) (int64, error)

	CreatePayment(ctx context.Context, p *models.Payment) error
	AttachPaymentSession(ctx context.Context, paymentID int64, sessionID, redirectURL string) error
	FailPayment(ctx context.Context, paymentID int64, reason string) error
	ExpirePayment(ctx context.Context, paymentID int64) error
	CompletePayment(ctx context.Context, paymentID int64, txnID string) (*models.Payment, error)
	CaptureStrayPayment(ctx context.Context, paymentID int64, txnID string) (*models.Payment, error)
	RefundStrayPayment(ctx context.Context, paymentID int64) error
	MarkRefunded(ctx context.Context, bookingID, paymentID int64) error
	GetPayment(ctx context.Context, id int64) (*models.Payment, error)
	GetPaymentByOrderRef(ctx context.Context, orderRef string) (*models.Payment, error)
	GetOpenPayment(ctx context.Context, bookingID int64) (*models.Payment, error)
	GetCompletedPayment(ctx context.Context, bookingID int64) (*models.Payment, error)
	ListBookingPayments(ctx context.Context, bookingID int64) ([]models.Payment, error)
	ListPendingPayments(ctx context.Context, createdBefore time.Time, limit int) ([]models.Payment, error)
}

type Supplier interface {
	CheckRate(ctx context.Context, rateKey string) (*hotelbeds.Rate, error)
	Book(ctx context.Context, req hotelbeds.BookRequest) (*hotelbeds.Confirmation, error)
	Cancel(ctx context.Context, bookingType models.BookingType, supplierReference string) error
	FindByClientReference(ctx context.Context, bookingType models.BookingType, clientReference string) (*hotelbeds.Confirmation, error)
}

type Gateway interface {
	CreateSession(ctx context.Context, req hblpay.SessionRequest) (*hblpay.Session, error)
	VerifyCallback(cb hblpay.Callback) error
	Status(ctx context.Context, sessionID string) (*hblpay.SessionStatus, error)
	Refund(ctx context.Context, sessionID string, amount int64) error
	CancelSession(ctx context.Context, sessionID string) error
}

type Service struct {
	log      *slog.Logger
	storage  Storage
	supplier Supplier
	gateway  Gateway
	cfg      config.Reconciler
	now      func() time.Time
}

func New(log *slog.Logger, storage Storage, supplier Supplier, gateway Gateway, cfg config.Reconciler) *Service {
	return &Service{
		log:      log,
		storage:  storage,
		supplier: supplier,
		gateway:  gateway,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *Service) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.storage.GetBooking(ctx, id)
}

func (s *Service) ListBookings(ctx context.Context, filter storage.BookingFilter) ([]models.Booking, error) {
	return s.storage.ListBookings(ctx, filter)
}

func (s *Service) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	return s.storage.GetPayment(ctx, id)
}
