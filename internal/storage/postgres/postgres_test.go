package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
	"travelBooker/internal/lib/logger/handlers/slogdiscard"
	"travelBooker/internal/models"
	"travelBooker/internal/storage"

	"github.com/jmoiron/sqlx"
	"github.com/lithammer/shortuuid/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDSN string

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, dsn, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres container unavailable, storage tests will be skipped: %v\n", err)
	} else {
		testDSN = dsn
	}

	code := m.Run()

	if container != nil {
		_ = container.Terminate(ctx)
	}

	os.Exit(code)
}

func startPostgres(ctx context.Context) (c *tcpostgres.PostgresContainer, dsn string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("docker: %v", r)
		}
	}()

	c, err = tcpostgres.RunContainer(ctx,
		testcontainers.WithImage("docker.io/postgres:15.2-alpine"),
		tcpostgres.WithDatabase("travel"),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", err
	}

	dsn, err = c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return c, "", err
	}

	return c, dsn, nil
}

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	if testDSN == "" {
		t.Skip("postgres is not available")
	}

	db, err := sqlx.Open("postgres", testDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := New(db, slogdiscard.NewDiscardLogger())
	require.NoError(t, err)

	return s
}

func newIntent(userID string) *models.Booking {
	return &models.Booking{
		Reference:   "TRV-" + shortuuid.New(),
		UserID:      userID,
		Type:        models.BookingTypeHotel,
		RateKey:     "20260701|20260704|W|1|1234|DBL.ST|ID_B2B_26|RO||1~2~0||N@03",
		ServiceDate: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Guest: models.Guest{
			Name:   "Ada Lovelace",
			Email:  "ada@example.com",
			Adults: 2,
		},
		Pricing: models.Pricing{
			BaseAmount:  90000,
			Taxes:       9000,
			Fees:        1000,
			TotalAmount: 100000,
			Currency:    "EUR",
		},
		Payment: models.BookingPayment{Method: models.PaymentOnline},
	}
}

func outboxCount(t *testing.T, s *Storage) int {
	t.Helper()

	var n int
	require.NoError(t, s.DB.Get(&n, `SELECT COUNT(*) FROM watermill_booking_events`))

	return n
}

func TestIntentToConfirmed(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	b := newIntent("user-" + shortuuid.New())
	require.NoError(t, s.CreateBookingIntent(ctx, b))
	require.NotZero(t, b.ID)

	before := outboxCount(t, s)

	confirmed, err := s.ConfirmBooking(ctx, b.ID, models.SupplierAttempt{
		Reference:         b.Reference,
		Operation:         models.SupplierOpBook,
		Outcome:           models.OutcomeConfirmed,
		SupplierReference: "1-3858112",
	})
	require.NoError(t, err)

	assert.Equal(t, models.BookingConfirmed, confirmed.Status)
	assert.Equal(t, models.SupplierConfirmed, confirmed.SupplierStatus)
	assert.Equal(t, "1-3858112", confirmed.SupplierReference)
	assert.Equal(t, b.Version+1, confirmed.Version)
	assert.Equal(t, before+1, outboxCount(t, s))

	got, err := s.GetBookingByReference(ctx, b.Reference)
	require.NoError(t, err)
	assert.Equal(t, confirmed.ID, got.ID)
	assert.Equal(t, b.Pricing, got.Pricing)

	attempts, err := s.ListAttempts(ctx, b.Reference)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.OutcomeConfirmed, attempts[0].Outcome)

	_, err = s.ConfirmBooking(ctx, b.ID, models.SupplierAttempt{Reference: b.Reference, SupplierReference: "x"})
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestConfirmedRequiresSupplierReference(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	b := newIntent("user-" + shortuuid.New())
	require.NoError(t, s.CreateBookingIntent(ctx, b))

	_, err := s.ConfirmBooking(ctx, b.ID, models.SupplierAttempt{Reference: b.Reference})
	assert.ErrorIs(t, err, models.ErrMissingSupplierReference)

	_, err = s.DB.Exec(`UPDATE bookings SET status = 'confirmed' WHERE id = $1`, b.ID)
	assert.Error(t, err, "check constraint must reject confirmed rows without supplier reference")
}

func TestIdempotencyKeyIsUniquePerUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	user := "user-" + shortuuid.New()

	first := newIntent(user)
	first.IdempotencyKey = "key-1"
	require.NoError(t, s.CreateBookingIntent(ctx, first))

	dup := newIntent(user)
	dup.IdempotencyKey = "key-1"
	assert.ErrorIs(t, s.CreateBookingIntent(ctx, dup), storage.ErrBookingExists)

	other := newIntent("user-" + shortuuid.New())
	other.IdempotencyKey = "key-1"
	assert.NoError(t, s.CreateBookingIntent(ctx, other))

	got, err := s.GetBookingByIdempotencyKey(ctx, user, "key-1")
	require.NoError(t, err)
	assert.Equal(t, first.Reference, got.Reference)
}

func TestDiscardIntentLeavesNoBooking(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	b := newIntent("user-" + shortuuid.New())
	require.NoError(t, s.CreateBookingIntent(ctx, b))

	err := s.DiscardIntent(ctx, b.ID, models.SupplierAttempt{
		Reference: b.Reference,
		Operation: models.SupplierOpBook,
		Outcome:   models.OutcomeRejected,
		Error:     "rate not available",
	})
	require.NoError(t, err)

	_, err = s.GetBooking(ctx, b.ID)
	assert.ErrorIs(t, err, storage.ErrBookingNotFound)

	attempts, err := s.ListAttempts(ctx, b.Reference)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.OutcomeRejected, attempts[0].Outcome)
}

func TestUnknownIntentIsListedAndExpired(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	b := newIntent("user-" + shortuuid.New())
	require.NoError(t, s.CreateBookingIntent(ctx, b))

	require.NoError(t, s.MarkSupplierUnknown(ctx, b.ID, models.SupplierAttempt{
		Reference: b.Reference,
		Operation: models.SupplierOpBook,
		Outcome:   models.OutcomeUnknown,
	}))

	stale, err := s.ListStaleIntents(ctx, time.Now().Add(time.Minute), 1000)
	require.NoError(t, err)

	var found bool
	for _, i := range stale {
		if i.ID == b.ID {
			found = true
			assert.Equal(t, models.SupplierUnknown, i.SupplierStatus)
		}
	}
	assert.True(t, found)

	require.NoError(t, s.ExpireIntent(ctx, b.ID, models.SupplierAttempt{
		Reference: b.Reference,
		Operation: models.SupplierOpLookup,
		Outcome:   models.OutcomeNotFound,
	}))

	got, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingExpired, got.Status)
}

func TestCancelBookingVersionGuard(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	b := newIntent("user-" + shortuuid.New())
	require.NoError(t, s.CreateBookingIntent(ctx, b))

	confirmed, err := s.ConfirmBooking(ctx, b.ID, models.SupplierAttempt{
		Reference: b.Reference, Operation: models.SupplierOpBook,
		Outcome: models.OutcomeConfirmed, SupplierReference: "1-1",
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	stale := *confirmed
	stale.Version--
	stale.Cancellation = &models.Cancellation{Fee: 100, RefundAmount: 900, RequestedAt: now, CancelledAt: &now}

	attempt := models.SupplierAttempt{Reference: b.Reference, Operation: models.SupplierOpCancel, Outcome: models.OutcomeCancelled}

	assert.ErrorIs(t, s.CancelBooking(ctx, &stale, attempt), storage.ErrConflict)

	confirmed.Cancellation = &models.Cancellation{
		Fee: 25000, RefundAmount: 75000, Reason: "plans changed",
		RequestedAt: now, CancelledAt: &now, RefundStatus: models.RefundPending,
	}
	require.NoError(t, s.CancelBooking(ctx, confirmed, attempt))

	got, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, got.Status)
	require.NotNil(t, got.Cancellation)
	assert.Equal(t, int64(25000), got.Cancellation.Fee)
	assert.Equal(t, int64(75000), got.Cancellation.RefundAmount)
	assert.Equal(t, models.RefundPending, got.Cancellation.RefundStatus)
}

func TestPaymentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	b := newIntent("user-" + shortuuid.New())
	require.NoError(t, s.CreateBookingIntent(ctx, b))
	_, err := s.ConfirmBooking(ctx, b.ID, models.SupplierAttempt{
		Reference: b.Reference, Operation: models.SupplierOpBook,
		Outcome: models.OutcomeConfirmed, SupplierReference: "1-2",
	})
	require.NoError(t, err)

	p := &models.Payment{
		BookingID: b.ID,
		OrderRef:  b.Reference + "-" + shortuuid.New(),
		Method:    models.PaymentOnline,
		Amount:    b.Pricing.TotalAmount,
		Currency:  b.Pricing.Currency,
	}
	require.NoError(t, s.CreatePayment(ctx, p))
	require.NoError(t, s.AttachPaymentSession(ctx, p.ID, "sess_1", "https://pay.example/sess_1"))

	open, err := s.GetOpenPayment(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, open.ID)

	completed, err := s.CompletePayment(ctx, p.ID, "txn_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, completed.Status)

	again, err := s.CompletePayment(ctx, p.ID, "txn_other")
	require.NoError(t, err)
	assert.Equal(t, "txn_1", again.GatewayTxnID)

	got, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, got.Payment.Status)
	assert.Equal(t, b.Pricing.TotalAmount, got.Payment.PaidAmount)

	byRef, err := s.GetPaymentByOrderRef(ctx, p.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, p.ID, byRef.ID)

	assert.ErrorIs(t, s.FailPayment(ctx, p.ID, "late failure"), storage.ErrConflict)
}

func confirmedWithPayments(t *testing.T, s *Storage, n int) (*models.Booking, []*models.Payment) {
	t.Helper()

	ctx := context.Background()

	b := newIntent("user-" + shortuuid.New())
	require.NoError(t, s.CreateBookingIntent(ctx, b))

	_, err := s.ConfirmBooking(ctx, b.ID, models.SupplierAttempt{
		Reference: b.Reference, Operation: models.SupplierOpBook,
		Outcome: models.OutcomeConfirmed, SupplierReference: "1-" + shortuuid.New()[:6],
	})
	require.NoError(t, err)

	payments := make([]*models.Payment, 0, n)
	for i := 0; i < n; i++ {
		p := &models.Payment{
			BookingID: b.ID,
			OrderRef:  b.Reference + "-" + shortuuid.New(),
			Method:    models.PaymentOnline,
			Amount:    b.Pricing.TotalAmount,
			Currency:  b.Pricing.Currency,
		}
		require.NoError(t, s.CreatePayment(ctx, p))
		require.NoError(t, s.AttachPaymentSession(ctx, p.ID, fmt.Sprintf("sess_%d", p.ID), "https://pay.example/"))
		payments = append(payments, p)
	}

	fresh, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)

	return fresh, payments
}

func TestSecondCaptureIsStray(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	b, payments := confirmedWithPayments(t, s, 2)
	first, second := payments[0], payments[1]

	_, err := s.CompletePayment(ctx, first.ID, "txn_1")
	require.NoError(t, err)

	_, err = s.CompletePayment(ctx, second.ID, "txn_2")
	assert.ErrorIs(t, err, storage.ErrNotPayable)

	stray, err := s.CaptureStrayPayment(ctx, second.ID, "txn_2")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, stray.Status)
	assert.True(t, stray.RefundDue)

	paid, err := s.GetCompletedPayment(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, paid.ID)

	before := outboxCount(t, s)
	require.NoError(t, s.RefundStrayPayment(ctx, second.ID))
	assert.Equal(t, before+1, outboxCount(t, s))
	assert.ErrorIs(t, s.RefundStrayPayment(ctx, second.ID), storage.ErrConflict)

	all, err := s.ListBookingPayments(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.PaymentCompleted, all[0].Status)
	assert.Equal(t, models.PaymentRefunded, all[1].Status)
	assert.False(t, all[1].RefundDue)

	got, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.Status)
	assert.Equal(t, models.PaymentCompleted, got.Payment.Status)
}

func TestCaptureAfterCancellation(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	b, payments := confirmedWithPayments(t, s, 1)
	p := payments[0]

	now := time.Now().UTC()
	b.Cancellation = &models.Cancellation{
		Fee: 10000, RefundAmount: 90000, RequestedAt: now, CancelledAt: &now,
		RefundStatus: models.RefundNotRequired,
	}
	require.NoError(t, s.CancelBooking(ctx, b, models.SupplierAttempt{
		Reference: b.Reference, Operation: models.SupplierOpCancel, Outcome: models.OutcomeCancelled,
	}))
	require.NoError(t, s.FailPayment(ctx, p.ID, "booking cancelled"))

	_, err := s.CompletePayment(ctx, p.ID, "txn_late")
	assert.ErrorIs(t, err, storage.ErrNotPayable)

	stray, err := s.CaptureStrayPayment(ctx, p.ID, "txn_late")
	require.NoError(t, err)
	assert.True(t, stray.RefundDue)
	assert.Equal(t, "txn_late", stray.GatewayTxnID)

	again, err := s.CaptureStrayPayment(ctx, p.ID, "txn_late")
	require.NoError(t, err)
	assert.Equal(t, stray.ID, again.ID)

	got, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Cancellation)
	assert.Equal(t, models.RefundPending, got.Cancellation.RefundStatus)

	_, err = s.GetCompletedPayment(ctx, b.ID)
	assert.ErrorIs(t, err, storage.ErrPaymentNotFound)

	require.NoError(t, s.RefundStrayPayment(ctx, p.ID))

	got, err = s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingRefunded, got.Status)
	assert.Equal(t, models.PaymentRefunded, got.Payment.Status)
	assert.Equal(t, models.RefundCompleted, got.Cancellation.RefundStatus)
}

func TestListBookingsAndCompletePast(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	user := "user-" + shortuuid.New()

	past := newIntent(user)
	past.ServiceDate = time.Now().Add(-48 * time.Hour).UTC()
	require.NoError(t, s.CreateBookingIntent(ctx, past))
	_, err := s.ConfirmBooking(ctx, past.ID, models.SupplierAttempt{
		Reference: past.Reference, Operation: models.SupplierOpBook,
		Outcome: models.OutcomeConfirmed, SupplierReference: "1-3",
	})
	require.NoError(t, err)

	transfer := newIntent(user)
	transfer.Type = models.BookingTypeTransfer
	require.NoError(t, s.CreateBookingIntent(ctx, transfer))

	all, err := s.ListBookings(ctx, storage.BookingFilter{UserID: user})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	transfers, err := s.ListBookings(ctx, storage.BookingFilter{UserID: user, Type: models.BookingTypeTransfer})
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, transfer.Reference, transfers[0].Reference)

	n, err := s.CompletePastBookings(ctx, time.Now())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	got, err := s.GetBooking(ctx, past.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCompleted, got.Status)

	paged, err := s.ListBookings(ctx, storage.BookingFilter{UserID: user, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}
