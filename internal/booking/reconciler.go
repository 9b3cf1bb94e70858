package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"travelBooker/internal/clients/hblpay"
	"travelBooker/internal/clients/hotelbeds"
	"travelBooker/internal/lib/logger/sl"
	"travelBooker/internal/metrics"
	"travelBooker/internal/models"
)

type Report struct {
	IntentsConfirmed  int   `json:"intents_confirmed"`
	IntentsExpired    int   `json:"intents_expired"`
	PaymentsResolved  int   `json:"payments_resolved"`
	PaymentsExpired   int   `json:"payments_expired"`
	BookingsCompleted int64 `json:"bookings_completed"`
	Errors            int   `json:"errors"`
}

// Reconcile resolves unknown supplier outcomes, stale payment sessions and
// finished bookings. Individual failures are counted and retried next run.
func (s *Service) Reconcile(ctx context.Context) Report {
	const op = "booking.Service.Reconcile"

	log := s.log.With(slog.String("op", op))

	var r Report

	s.reconcileIntents(ctx, log, &r)
	s.reconcilePayments(ctx, log, &r)

	n, err := s.storage.CompletePastBookings(ctx, s.now())
	if err != nil {
		r.Errors++
		log.Error("failed to complete past bookings", sl.Err(err))
	}
	r.BookingsCompleted = n
	metrics.ReconcilerActions.WithLabelValues("booking_completed").Add(float64(n))

	if r != (Report{}) {
		log.Info("reconciliation finished", slog.Any("report", r))
	}

	return r
}

func (s *Service) reconcileIntents(ctx context.Context, log *slog.Logger, r *Report) {
	now := s.now()

	intents, err := s.storage.ListStaleIntents(ctx, now.Add(-s.cfg.IntentGrace), s.batchSize())
	if err != nil {
		r.Errors++
		log.Error("failed to list stale intents", sl.Err(err))
		return
	}

	for i := range intents {
		b := &intents[i]
		ilog := log.With(slog.String("reference", b.Reference))

		conf, err := s.supplier.FindByClientReference(ctx, b.Type, b.Reference)
		switch {
		case err == nil:
			_, err = s.storage.ConfirmBooking(ctx, b.ID, models.SupplierAttempt{
				Reference:         b.Reference,
				Operation:         models.SupplierOpLookup,
				RateKey:           b.RateKey,
				Outcome:           models.OutcomeConfirmed,
				SupplierReference: conf.Reference,
			})
			if err != nil {
				r.Errors++
				ilog.Error("failed to confirm reconciled intent", sl.Err(err))
				continue
			}

			r.IntentsConfirmed++
			metrics.ReconcilerActions.WithLabelValues("intent_confirmed").Inc()
			ilog.Info("intent confirmed from supplier lookup", slog.String("supplier_reference", conf.Reference))
		case errors.Is(err, hotelbeds.ErrBookingNotFound):
			if now.Sub(b.CreatedAt) < s.cfg.IntentTTL {
				continue
			}

			err = s.storage.ExpireIntent(ctx, b.ID, models.SupplierAttempt{
				Reference: b.Reference,
				Operation: models.SupplierOpLookup,
				RateKey:   b.RateKey,
				Outcome:   models.OutcomeNotFound,
			})
			if err != nil {
				r.Errors++
				ilog.Error("failed to expire intent", sl.Err(err))
				continue
			}

			r.IntentsExpired++
			metrics.ReconcilerActions.WithLabelValues("intent_expired").Inc()
			ilog.Info("intent expired")
		default:
			r.Errors++
			ilog.Warn("supplier lookup failed", sl.Err(err))
		}
	}
}

func (s *Service) reconcilePayments(ctx context.Context, log *slog.Logger, r *Report) {
	now := s.now()

	payments, err := s.storage.ListPendingPayments(ctx, now.Add(-s.cfg.PaymentGrace), s.batchSize())
	if err != nil {
		r.Errors++
		log.Error("failed to list pending payments", sl.Err(err))
		return
	}

	for i := range payments {
		p := &payments[i]
		plog := log.With(slog.String("order_ref", p.OrderRef))

		st, err := s.gateway.Status(ctx, p.SessionID)
		if err != nil {
			r.Errors++
			plog.Warn("gateway status failed", sl.Err(err))
			continue
		}

		if st.Status == hblpay.StatusPending {
			if now.Sub(p.CreatedAt) < s.cfg.PaymentTTL {
				continue
			}

			if err = s.voidPayment(ctx, plog, p, models.PaymentExpired); err != nil {
				r.Errors++
				plog.Error("failed to expire payment", sl.Err(err))
				continue
			}

			r.PaymentsExpired++
			metrics.ReconcilerActions.WithLabelValues("payment_expired").Inc()
			continue
		}

		if _, err = s.applyGatewayResult(ctx, p, st.Status, st.Amount, st.TxnID); err != nil {
			r.Errors++
			plog.Error("failed to apply gateway status", sl.Err(err))
			continue
		}

		r.PaymentsResolved++
		metrics.ReconcilerActions.WithLabelValues("payment_resolved").Inc()
	}
}

func (s *Service) batchSize() int {
	if s.cfg.BatchSize <= 0 {
		return 50
	}

	return s.cfg.BatchSize
}

// Reconciler runs Reconcile on a ticker until its context is cancelled.
type Reconciler struct {
	log      *slog.Logger
	svc      *Service
	interval time.Duration
}

func NewReconciler(log *slog.Logger, svc *Service, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}

	return &Reconciler{
		log:      log.With(slog.String("component", "reconciler")),
		svc:      svc,
		interval: interval,
	}
}

func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("reconciler started", slog.String("interval", r.interval.String()))

	for {
		select {
		case <-ticker.C:
			r.svc.Reconcile(ctx)
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return nil
		}
	}
}
