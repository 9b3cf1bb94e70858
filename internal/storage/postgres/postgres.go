package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"log/slog"
	"travelBooker/internal/config"
	"travelBooker/internal/events"
)

const uniqueViolation = "23505"

type Storage struct {
	DB     *sqlx.DB
	logger watermill.LoggerAdapter
}

func InitDB(dbCfg *config.Database, log *slog.Logger) (*Storage, error) {
	db, err := sqlx.Open("postgres", dbCfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	return New(db, log)
}

// New migrates the schema on an open connection and prepares the outbox tables.
func New(db *sqlx.DB, log *slog.Logger) (*Storage, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logger := events.NewLogger(log)

	if err := events.InitializeSchema(db.DB, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize outbox: %w", err)
	}

	return &Storage{DB: db, logger: logger}, nil
}

func (s *Storage) Close() error {
	return s.DB.Close()
}

func (s *Storage) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = errors.Join(err, rollbackErr)
			}
			return
		}
		err = tx.Commit()
	}()

	return fn(tx)
}

func (s *Storage) publish(ctx context.Context, tx *sqlx.Tx, event events.Event) error {
	return events.PublishInTx(ctx, tx.Tx, s.logger, event)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const schema = `
CREATE TABLE IF NOT EXISTS bookings (
	id                        BIGSERIAL PRIMARY KEY,
	reference                 TEXT NOT NULL UNIQUE,
	idempotency_key           TEXT,
	user_id                   TEXT NOT NULL,
	type                      TEXT NOT NULL,
	status                    TEXT NOT NULL,
	supplier_status           TEXT NOT NULL,
	supplier_reference        TEXT,
	rate_key                  TEXT NOT NULL,
	service_date              TIMESTAMPTZ NOT NULL,
	end_date                  TIMESTAMPTZ,
	guest_name                TEXT NOT NULL,
	guest_email               TEXT NOT NULL,
	guest_phone               TEXT NOT NULL DEFAULT '',
	adults                    INT NOT NULL,
	children                  INT NOT NULL DEFAULT 0,
	base_amount               BIGINT NOT NULL,
	taxes                     BIGINT NOT NULL,
	fees                      BIGINT NOT NULL,
	total_amount              BIGINT NOT NULL,
	currency                  CHAR(3) NOT NULL,
	payment_method            TEXT NOT NULL,
	payment_status            TEXT NOT NULL,
	paid_amount               BIGINT NOT NULL DEFAULT 0,
	cancellation_fee          BIGINT,
	refund_amount             BIGINT,
	cancellation_reason       TEXT,
	cancellation_requested_at TIMESTAMPTZ,
	cancelled_at              TIMESTAMPTZ,
	refund_status             TEXT,
	created_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	version                   INT NOT NULL DEFAULT 1,
	CONSTRAINT confirmed_has_supplier_reference
		CHECK (status <> 'confirmed' OR supplier_reference IS NOT NULL)
);

CREATE UNIQUE INDEX IF NOT EXISTS bookings_user_idempotency_key
	ON bookings (user_id, idempotency_key) WHERE idempotency_key IS NOT NULL;

CREATE INDEX IF NOT EXISTS bookings_status_created_at
	ON bookings (status, supplier_status, created_at);

CREATE TABLE IF NOT EXISTS supplier_attempts (
	id                 BIGSERIAL PRIMARY KEY,
	reference          TEXT NOT NULL,
	operation          TEXT NOT NULL,
	rate_key           TEXT NOT NULL DEFAULT '',
	outcome            TEXT NOT NULL,
	supplier_reference TEXT NOT NULL DEFAULT '',
	error              TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS supplier_attempts_reference ON supplier_attempts (reference);

CREATE TABLE IF NOT EXISTS payments (
	id             BIGSERIAL PRIMARY KEY,
	booking_id     BIGINT NOT NULL REFERENCES bookings (id),
	order_ref      TEXT NOT NULL UNIQUE,
	session_id     TEXT,
	redirect_url   TEXT,
	method         TEXT NOT NULL,
	status         TEXT NOT NULL,
	amount         BIGINT NOT NULL,
	currency       CHAR(3) NOT NULL,
	gateway_txn_id TEXT,
	failure_reason TEXT,
	refund_due     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS payments_booking_id ON payments (booking_id);
CREATE INDEX IF NOT EXISTS payments_status_created_at ON payments (status, created_at);
`
