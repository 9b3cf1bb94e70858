package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"github.com/ThreeDotsLabs/watermill"
	wsql "github.com/ThreeDotsLabs/watermill-sql/v2/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// PublishInTx writes the event into the outbox table using the caller's
// transaction, so it becomes visible only when the state change commits.
func PublishInTx(ctx context.Context, tx *sql.Tx, logger watermill.LoggerAdapter, event Event) error {
	const op = "events.PublishInTx"

	publisher, err := wsql.NewPublisher(
		tx,
		wsql.PublisherConfig{
			SchemaAdapter: wsql.DefaultPostgreSQLSchema{},
		},
		logger,
	)
	if err != nil {
		return fmt.Errorf("%s: failed to create publisher: %w", op, err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal %s: %w", op, event.EventName(), err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(NameMetadataKey, event.EventName())
	msg.SetContext(ctx)

	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Metadata))

	if err = publisher.Publish(Topic, msg); err != nil {
		return fmt.Errorf("%s: failed to publish %s: %w", op, event.EventName(), err)
	}

	return nil
}

// InitializeSchema creates the outbox topic and offsets tables so producers
// can publish before the router subscribes.
func InitializeSchema(db *sql.DB, logger watermill.LoggerAdapter) error {
	const op = "events.InitializeSchema"

	sub, err := newSubscriber(db, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer sub.Close()

	if err = sub.SubscribeInitialize(Topic); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func newSubscriber(db *sql.DB, logger watermill.LoggerAdapter) (*wsql.Subscriber, error) {
	sub, err := wsql.NewSubscriber(
		db,
		wsql.SubscriberConfig{
			ConsumerGroup:    consumerGroup,
			SchemaAdapter:    wsql.DefaultPostgreSQLSchema{},
			OffsetsAdapter:   wsql.DefaultPostgreSQLOffsetsAdapter{},
			InitializeSchema: true,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriber: %w", err)
	}

	return sub, nil
}
