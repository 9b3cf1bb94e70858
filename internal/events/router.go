package events

import (
	"database/sql"
	"fmt"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"time"
	"travelBooker/internal/metrics"
)

const (
	consumerGroup = "notifications"
	handlerName   = "notifications"
)

// Handler receives a decoded outbox event.
type Handler interface {
	Handle(msg *message.Message, event Event) error
}

func NewRouter(db *sql.DB, logger watermill.LoggerAdapter, handler Handler) (*message.Router, error) {
	const op = "events.NewRouter"

	sub, err := newSubscriber(db, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create router: %w", op, err)
	}

	router.AddMiddleware(middleware.Recoverer)
	router.AddMiddleware(tracingMiddleware)
	router.AddMiddleware(metricsMiddleware)

	router.AddNoPublisherHandler(
		handlerName,
		Topic,
		sub,
		HandlerFunc(logger, handler),
	)

	return router, nil
}

// HandlerFunc decodes messages for handler. Unknown or malformed events are
// logged and acknowledged because redelivery cannot fix them.
func HandlerFunc(logger watermill.LoggerAdapter, handler Handler) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		name := msg.Metadata.Get(NameMetadataKey)

		event, err := Decode(name, msg.Payload)
		if err != nil {
			logger.Error("dropping undecodable event", err, watermill.LogFields{
				"message_uuid": msg.UUID,
				"event_name":   name,
			})

			return nil
		}

		return handler.Handle(msg, event)
	}
}

func tracingMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		ctx := otel.GetTextMapPropagator().Extract(msg.Context(), propagation.MapCarrier(msg.Metadata))
		name := msg.Metadata.Get(NameMetadataKey)

		ctx, span := otel.Tracer("").Start(ctx, "event handling: "+name)
		span.SetAttributes(
			attribute.String("topic", message.SubscribeTopicFromCtx(msg.Context())),
			attribute.String("event_name", name),
		)
		defer span.End()

		msg.SetContext(ctx)

		msgs, err := h(msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return msgs, err
	}
}

func metricsMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		now := time.Now()
		labels := prometheus.Labels{
			"topic":   message.SubscribeTopicFromCtx(msg.Context()),
			"handler": message.HandlerNameFromCtx(msg.Context()),
		}

		msgs, err := h(msg)
		if err != nil {
			metrics.MessagesProcessingFailed.With(labels).Inc()
		}

		metrics.MessagesProcessed.With(labels).Inc()
		metrics.MessagesProcessingDuration.With(labels).Observe(time.Since(now).Seconds())

		return msgs, err
	}
}
