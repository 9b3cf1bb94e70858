package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
	"travelBooker/internal/clients/hblpay"
	"travelBooker/internal/clients/hotelbeds"
	"travelBooker/internal/config"
	"travelBooker/internal/models"
	"travelBooker/internal/storage"
)

type memStore struct {
	mu       sync.Mutex
	now      func() time.Time
	nextID   int64
	bookings map[int64]*models.Booking
	payments map[int64]*models.Payment
	attempts []models.SupplierAttempt
	events   []string

	confirmErr      error
	closeErr        error
	cancelConflicts int
	completeCalls   int
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now:      now,
		bookings: map[int64]*models.Booking{},
		payments: map[int64]*models.Payment{},
	}
}

func cloneBooking(b *models.Booking) *models.Booking {
	c := *b
	if b.Cancellation != nil {
		cc := *b.Cancellation
		c.Cancellation = &cc
	}
	return &c
}

func clonePayment(p *models.Payment) *models.Payment {
	c := *p
	return &c
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) CreateBookingIntent(_ context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.IdempotencyKey != "" {
		for _, e := range m.bookings {
			if e.UserID == b.UserID && e.IdempotencyKey == b.IdempotencyKey {
				return storage.ErrBookingExists
			}
		}
	}

	b.ID = m.id()
	b.Status = models.BookingPending
	b.SupplierStatus = models.SupplierRequested
	b.Payment.Status = models.PaymentPending
	b.CreatedAt = m.now()
	b.UpdatedAt = b.CreatedAt
	b.Version = 1

	m.bookings[b.ID] = cloneBooking(b)

	return nil
}

func (m *memStore) GetBooking(_ context.Context, id int64) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, storage.ErrBookingNotFound
	}

	return cloneBooking(b), nil
}

func (m *memStore) GetBookingByIdempotencyKey(_ context.Context, userID, key string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.bookings {
		if b.UserID == userID && b.IdempotencyKey == key {
			return cloneBooking(b), nil
		}
	}

	return nil, storage.ErrBookingNotFound
}

func (m *memStore) ListBookings(_ context.Context, f storage.BookingFilter) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Booking
	for _, b := range m.bookings {
		if (f.Status == "" || b.Status == f.Status) && (f.Type == "" || b.Type == f.Type) {
			out = append(out, *cloneBooking(b))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (m *memStore) ListStaleIntents(_ context.Context, before time.Time, limit int) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Booking
	for _, b := range m.bookings {
		if b.Status == models.BookingPending && b.CreatedAt.Before(before) {
			out = append(out, *cloneBooking(b))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (m *memStore) ConfirmBooking(_ context.Context, id int64, a models.SupplierAttempt) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.confirmErr != nil {
		return nil, m.confirmErr
	}

	if a.SupplierReference == "" {
		return nil, models.ErrMissingSupplierReference
	}

	b, ok := m.bookings[id]
	if !ok {
		return nil, storage.ErrBookingNotFound
	}
	if b.Status != models.BookingPending {
		return nil, storage.ErrConflict
	}

	b.Status = models.BookingConfirmed
	b.SupplierStatus = models.SupplierConfirmed
	b.SupplierReference = a.SupplierReference
	b.Version++

	m.attempts = append(m.attempts, a)
	m.events = append(m.events, "BookingConfirmed")

	return cloneBooking(b), nil
}

func (m *memStore) DiscardIntent(_ context.Context, id int64, a models.SupplierAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts = append(m.attempts, a)
	delete(m.bookings, id)

	return nil
}

func (m *memStore) MarkSupplierUnknown(_ context.Context, id int64, a models.SupplierAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts = append(m.attempts, a)
	m.bookings[id].SupplierStatus = models.SupplierUnknown
	m.bookings[id].Version++

	return nil
}

func (m *memStore) ExpireIntent(_ context.Context, id int64, a models.SupplierAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.bookings[id]
	if b.Status != models.BookingPending {
		return storage.ErrConflict
	}

	m.attempts = append(m.attempts, a)
	b.Status = models.BookingExpired
	b.Payment.Status = models.PaymentExpired
	b.Version++

	return nil
}

func (m *memStore) RecordAttempt(_ context.Context, a models.SupplierAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts = append(m.attempts, a)

	return nil
}

func (m *memStore) CancelBooking(_ context.Context, b *models.Booking, a models.SupplierAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.bookings[b.ID]

	if m.cancelConflicts > 0 {
		m.cancelConflicts--
		stored.Version++
	}

	if stored.Version != b.Version {
		return storage.ErrConflict
	}

	stored.Status = models.BookingCancelled
	c := *b.Cancellation
	stored.Cancellation = &c
	stored.Version++

	b.Version = stored.Version
	b.Status = stored.Status

	m.attempts = append(m.attempts, a)
	m.events = append(m.events, "BookingCancelled")

	return nil
}

func (m *memStore) SetRefundStatus(_ context.Context, id int64, status models.RefundStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bookings[id].Cancellation.RefundStatus = status

	return nil
}

func (m *memStore) CompletePastBookings(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, b := range m.bookings {
		end := b.ServiceDate
		if b.EndDate != nil {
			end = *b.EndDate
		}
		if b.Status == models.BookingConfirmed && end.Before(now) {
			b.Status = models.BookingCompleted
			n++
		}
	}

	return n, nil
}

func (m *memStore) CreatePayment(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.ID = m.id()
	p.Status = models.PaymentPending
	p.CreatedAt = m.now()
	m.payments[p.ID] = clonePayment(p)
	m.bookings[p.BookingID].Payment.Status = models.PaymentPending

	return nil
}

func (m *memStore) AttachPaymentSession(_ context.Context, id int64, sessionID, redirectURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.payments[id].SessionID = sessionID
	m.payments[id].RedirectURL = redirectURL

	return nil
}

func (m *memStore) closePayment(id int64, status models.PaymentStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closeErr != nil {
		return m.closeErr
	}

	p := m.payments[id]
	if p.Status != models.PaymentPending {
		return storage.ErrConflict
	}

	p.Status = status
	p.FailureReason = reason

	if b := m.bookings[p.BookingID]; b.Payment.Status == models.PaymentPending {
		b.Payment.Status = status
	}

	return nil
}

func (m *memStore) FailPayment(_ context.Context, id int64, reason string) error {
	return m.closePayment(id, models.PaymentFailed, reason)
}

func (m *memStore) ExpirePayment(_ context.Context, id int64) error {
	return m.closePayment(id, models.PaymentExpired, "session expired")
}

func (m *memStore) CompletePayment(_ context.Context, id int64, txnID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.payments[id]
	if p.Status == models.PaymentCompleted {
		return clonePayment(p), nil
	}
	if p.Status == models.PaymentRefunded {
		return nil, storage.ErrConflict
	}

	b := m.bookings[p.BookingID]
	if !b.AcceptsPayment() {
		return nil, storage.ErrNotPayable
	}

	m.completeCalls++
	p.Status = models.PaymentCompleted
	p.GatewayTxnID = txnID
	p.FailureReason = ""

	b.Payment.Status = models.PaymentCompleted
	b.Payment.PaidAmount = p.Amount
	b.Version++

	m.events = append(m.events, "PaymentCompleted")

	return clonePayment(p), nil
}

func (m *memStore) CaptureStrayPayment(_ context.Context, id int64, txnID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.payments[id]
	if p.Status == models.PaymentCompleted || p.Status == models.PaymentRefunded {
		return clonePayment(p), nil
	}

	p.Status = models.PaymentCompleted
	p.GatewayTxnID = txnID
	p.RefundDue = true

	b := m.bookings[p.BookingID]
	if b.Status == models.BookingCancelled && b.Cancellation.RefundStatus == models.RefundNotRequired {
		b.Cancellation.RefundStatus = models.RefundPending
	}

	return clonePayment(p), nil
}

func (m *memStore) RefundStrayPayment(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.payments[id]
	if p.Status != models.PaymentCompleted || !p.RefundDue {
		return storage.ErrConflict
	}

	p.Status = models.PaymentRefunded
	p.RefundDue = false

	b := m.bookings[p.BookingID]
	if b.Status == models.BookingCancelled && b.Cancellation.RefundStatus == models.RefundPending {
		b.Status = models.BookingRefunded
		b.Payment.Status = models.PaymentRefunded
		b.Cancellation.RefundStatus = models.RefundCompleted
		b.Version++
	}

	m.events = append(m.events, "RefundIssued")

	return nil
}

func (m *memStore) MarkRefunded(_ context.Context, bookingID, paymentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.payments[paymentID]
	if p.Status != models.PaymentCompleted {
		return storage.ErrConflict
	}
	p.Status = models.PaymentRefunded

	b := m.bookings[bookingID]
	b.Status = models.BookingRefunded
	b.Payment.Status = models.PaymentRefunded
	b.Cancellation.RefundStatus = models.RefundCompleted
	b.Version++

	m.events = append(m.events, "RefundIssued")

	return nil
}

func (m *memStore) GetPayment(_ context.Context, id int64) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, storage.ErrPaymentNotFound
	}

	return clonePayment(p), nil
}

func (m *memStore) GetPaymentByOrderRef(_ context.Context, ref string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.payments {
		if p.OrderRef == ref {
			return clonePayment(p), nil
		}
	}

	return nil, storage.ErrPaymentNotFound
}

func (m *memStore) latestPayment(bookingID int64, status models.PaymentStatus, needSession bool) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found *models.Payment
	for _, p := range m.payments {
		if p.BookingID != bookingID || p.Status != status || p.RefundDue || (needSession && p.SessionID == "") {
			continue
		}
		if found == nil || p.ID > found.ID {
			found = p
		}
	}

	if found == nil {
		return nil, storage.ErrPaymentNotFound
	}

	return clonePayment(found), nil
}

func (m *memStore) GetOpenPayment(_ context.Context, bookingID int64) (*models.Payment, error) {
	return m.latestPayment(bookingID, models.PaymentPending, true)
}

func (m *memStore) GetCompletedPayment(_ context.Context, bookingID int64) (*models.Payment, error) {
	return m.latestPayment(bookingID, models.PaymentCompleted, false)
}

func (m *memStore) ListBookingPayments(_ context.Context, bookingID int64) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Payment
	for _, p := range m.payments {
		if p.BookingID == bookingID {
			out = append(out, *clonePayment(p))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (m *memStore) ListPendingPayments(_ context.Context, before time.Time, limit int) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Payment
	for _, p := range m.payments {
		if p.Status == models.PaymentPending && p.SessionID != "" && p.CreatedAt.Before(before) {
			out = append(out, *clonePayment(p))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (m *memStore) bookingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.bookings)
}

func (m *memStore) outcomes() []models.SupplierOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.SupplierOutcome, 0, len(m.attempts))
	for _, a := range m.attempts {
		out = append(out, a.Outcome)
	}

	return out
}

type fakeSupplier struct {
	mu sync.Mutex

	rate      *hotelbeds.Rate
	rateErr   error
	bookErr   error
	cancelErr error
	lookup    map[string]*hotelbeds.Confirmation
	lookupErr error

	bookCalls   int
	cancelCalls int
	lastBook    hotelbeds.BookRequest
}

func (f *fakeSupplier) CheckRate(_ context.Context, rateKey string) (*hotelbeds.Rate, error) {
	if f.rateErr != nil {
		return nil, f.rateErr
	}
	if f.rate != nil {
		return f.rate, nil
	}

	return &hotelbeds.Rate{RateKey: rateKey, TotalNet: 80000, Currency: "EUR"}, nil
}

func (f *fakeSupplier) Book(_ context.Context, req hotelbeds.BookRequest) (*hotelbeds.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.bookCalls++
	f.lastBook = req

	if f.bookErr != nil {
		return nil, f.bookErr
	}

	return &hotelbeds.Confirmation{
		Reference:       fmt.Sprintf("1-%d", 3858111+f.bookCalls),
		ClientReference: req.ClientReference,
		Status:          "CONFIRMED",
	}, nil
}

func (f *fakeSupplier) Cancel(_ context.Context, _ models.BookingType, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelCalls++

	return f.cancelErr
}

func (f *fakeSupplier) FindByClientReference(_ context.Context, _ models.BookingType, ref string) (*hotelbeds.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.lookupErr != nil {
		return nil, f.lookupErr
	}

	if c, ok := f.lookup[ref]; ok {
		return c, nil
	}

	return nil, hotelbeds.ErrBookingNotFound
}

type fakeGateway struct {
	mu sync.Mutex

	signer     *hblpay.Client
	sessionErr       error
	refundErr        error
	cancelSessionErr error
	statuses         map[string]*hblpay.SessionStatus

	sessions  int
	refunds   []int64
	cancelled []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		signer:   hblpay.New(config.Payment{Secret: "test-secret"}),
		statuses: map[string]*hblpay.SessionStatus{},
	}
}

func (g *fakeGateway) CreateSession(_ context.Context, req hblpay.SessionRequest) (*hblpay.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sessionErr != nil {
		return nil, g.sessionErr
	}

	g.sessions++
	id := fmt.Sprintf("sess_%d", g.sessions)

	return &hblpay.Session{ID: id, RedirectURL: "https://pay.example/" + id}, nil
}

func (g *fakeGateway) VerifyCallback(cb hblpay.Callback) error {
	return g.signer.VerifyCallback(cb)
}

func (g *fakeGateway) Status(_ context.Context, sessionID string) (*hblpay.SessionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if st, ok := g.statuses[sessionID]; ok {
		return st, nil
	}

	return &hblpay.SessionStatus{SessionID: sessionID, Status: hblpay.StatusPending}, nil
}

func (g *fakeGateway) Refund(_ context.Context, _ string, amount int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.refundErr != nil {
		return g.refundErr
	}

	g.refunds = append(g.refunds, amount)

	return nil
}

func (g *fakeGateway) CancelSession(_ context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancelSessionErr != nil {
		return g.cancelSessionErr
	}

	g.cancelled = append(g.cancelled, sessionID)

	return nil
}

func (g *fakeGateway) signed(cb hblpay.Callback) hblpay.Callback {
	cb.Signature = g.signer.Sign([]byte(cb.Payload()))
	return cb
}
