package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"travelBooker/internal/booking"
	"travelBooker/internal/clients/hblpay"
	"travelBooker/internal/clients/hotelbeds"
	"travelBooker/internal/config"
	"travelBooker/internal/events"
	"travelBooker/internal/http-server/handlers/booking/cancelBooking"
	"travelBooker/internal/http-server/handlers/booking/cancellationQuote"
	"travelBooker/internal/http-server/handlers/booking/createBooking"
	"travelBooker/internal/http-server/handlers/booking/getBooking"
	"travelBooker/internal/http-server/handlers/booking/listBookings"
	"travelBooker/internal/http-server/handlers/payment/getPayment"
	"travelBooker/internal/http-server/handlers/payment/initiatePayment"
	"travelBooker/internal/http-server/handlers/payment/paymentCallback"
	"travelBooker/internal/http-server/middleware/mwlogger"
	"travelBooker/internal/lib/api/response"
	"travelBooker/internal/lib/logger/handlers/slogpretty"
	"travelBooker/internal/lib/logger/sl"
	"travelBooker/internal/notify"
	"travelBooker/internal/storage/postgres"
	"travelBooker/internal/tracing"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting travel booker", slog.String("env", cfg.Env))
	log.Debug("debug messages are enabled")

	shutdownTracing, err := tracing.ConfigureTraceProvider(cfg.Tracing.JaegerEndpoint, cfg.Tracing.ServiceName)
	if err != nil {
		log.Error("failed to configure tracing", sl.Err(err))
		os.Exit(1)
	}

	storage, err := postgres.InitDB(&cfg.Database, log)
	if err != nil {
		log.Error("failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	dispatcher := notify.NewDispatcher(log, notificationChannels(log, cfg.Notifications)...)

	log.Info("notification channels configured", slog.Any("channels", dispatcher.Names()))

	eventRouter, err := events.NewRouter(storage.DB.DB, events.NewLogger(log), notify.NewEventHandler(log, dispatcher))
	if err != nil {
		log.Error("failed to init event router", sl.Err(err))
		os.Exit(1)
	}

	svc := booking.New(log, storage, hotelbeds.New(cfg.Supplier), hblpay.New(cfg.Payment), cfg.Reconciler)
	reconciler := booking.NewReconciler(log, svc, cfg.Reconciler.Interval)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      newRouter(log, cfg.HTTPServer, svc),
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eventRouter.Run(ctx)
	})

	g.Go(func() error {
		// outbox subscriptions must be live before bookings are accepted
		select {
		case <-eventRouter.Running():
		case <-ctx.Done():
			return nil
		}

		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		return reconciler.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()

		log.Info("application stopping")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return errors.Join(srv.Shutdown(shutdownCtx), eventRouter.Close())
	})

	if err = g.Wait(); err != nil {
		log.Error("application stopped with error", sl.Err(err))
	}

	log.Info("application stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err = shutdownTracing(shutdownCtx); err != nil {
		log.Error("failed to flush traces", sl.Err(err))
	}

	if err = storage.Close(); err != nil {
		log.Error("failed to close postgres connection", sl.Err(err))
	}

	log.Info("postgres connection closed")
}

func newRouter(log *slog.Logger, cfg config.HTTPServer, svc *booking.Service) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(mwlogger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-Id"},
		MaxAge:         300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, response.OK())
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Post("/bookings", createBooking.New(log, svc))
		r.Post("/transfers/bookings", createBooking.NewTransfer(log, svc))
		r.Get("/bookings/{id}", getBooking.New(log, svc))
		r.Get("/bookings/{id}/cancellation-quote", cancellationQuote.New(log, svc))
		r.Put("/bookings/{id}/cancel", cancelBooking.New(log, svc))

		r.Get("/admin/bookings", listBookings.New(log, svc))

		r.Post("/payments/callback", paymentCallback.New(log, svc))
		r.Post("/payments/{bookingId}/initiate", initiatePayment.New(log, svc))
		r.Get("/payments/{id}", getPayment.New(log, svc))
	})

	return otelhttp.NewHandler(router, "travel-booker")
}

func notificationChannels(log *slog.Logger, cfg config.Notifications) []notify.Channel {
	var channels []notify.Channel

	if cfg.SMTP.Host != "" {
		channels = append(channels, notify.NewEmailChannel(cfg.SMTP))
	}

	if cfg.SMS.BaseURL != "" {
		channels = append(channels, notify.NewSMSChannel(cfg.SMS))
	}

	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegramChannel(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			log.Error("telegram notifications disabled", sl.Err(err))
		} else {
			channels = append(channels, tg)
		}
	}

	return channels
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	h := opts.NewPrettyHandler(os.Stdout)

	return slog.New(h)
}
