// Package notify delivers best-effort guest and operator notifications.
package notify

import (
	"context"
	"errors"
	"github.com/samber/lo"
	"log/slog"
	"travelBooker/internal/lib/logger/sl"
	"travelBooker/internal/metrics"
)

// ErrNoRecipient is returned by a channel that has nobody to deliver to.
var ErrNoRecipient = errors.New("no recipient for channel")

type Notification struct {
	Kind      string
	Reference string
	Subject   string
	Body      string
	Email     string
	Phone     string
}

//go:generate go run github.com/vektra/mockery/v2@v2.51.1 --name=Channel
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

type Dispatcher struct {
	log      *slog.Logger
	channels []Channel
}

func NewDispatcher(log *slog.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		log:      log.With(slog.String("component", "notify")),
		channels: channels,
	}
}

func (d *Dispatcher) Names() []string {
	return lo.Map(d.channels, func(ch Channel, _ int) string { return ch.Name() })
}

// Dispatch sends n on every channel. Failures are logged and counted, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) {
	const op = "notify.Dispatcher.Dispatch"

	log := d.log.With(
		slog.String("op", op),
		slog.String("kind", n.Kind),
		slog.String("reference", n.Reference),
	)

	for _, ch := range d.channels {
		err := ch.Send(ctx, n)

		switch {
		case err == nil:
			metrics.Notifications.WithLabelValues(ch.Name(), "sent").Inc()
			log.Debug("notification sent", slog.String("channel", ch.Name()))
		case errors.Is(err, ErrNoRecipient):
			metrics.Notifications.WithLabelValues(ch.Name(), "skipped").Inc()
		default:
			metrics.Notifications.WithLabelValues(ch.Name(), "failed").Inc()
			log.Error("failed to send notification", slog.String("channel", ch.Name()), sl.Err(err))
		}
	}
}
