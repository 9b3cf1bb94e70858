package main

import (
	"fmt"
	"github.com/spf13/cobra"
	"log/slog"
	"os"
	"travelBooker/internal/booking"
	"travelBooker/internal/clients/hblpay"
	"travelBooker/internal/clients/hotelbeds"
	"travelBooker/internal/config"
	"travelBooker/internal/storage/postgres"
)

const defaultConfigPath = "config/local.yaml"

// env holds the connections a command needs; Close releases them.
type env struct {
	log     *slog.Logger
	storage *postgres.Storage
	svc     *booking.Service
}

func openEnv(cmd *cobra.Command) (*env, error) {
	path := cmd.Flag("config").Value.String()
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	log := newLogger(cmd)

	storage, err := postgres.InitDB(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	svc := booking.New(log, storage, hotelbeds.New(cfg.Supplier), hblpay.New(cfg.Payment), cfg.Reconciler)

	return &env{log: log, storage: storage, svc: svc}, nil
}

func (e *env) Close() error {
	return e.storage.Close()
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
