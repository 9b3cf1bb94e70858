package slogpretty

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestPrettyHandlerKeepsAttrs(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer

	opts := PrettyHandlerOptions{SlogOpts: &slog.HandlerOptions{Level: slog.LevelDebug}}
	log := slog.New(opts.NewPrettyHandler(&buf))

	log.With(slog.String("op", "booking.Book")).Info("booking confirmed", slog.String("reference", "TRV-1"))

	out := buf.String()
	assert.Contains(t, out, "INFO:")
	assert.Contains(t, out, "booking confirmed")
	assert.Contains(t, out, `"op": "booking.Book"`)
	assert.Contains(t, out, `"reference": "TRV-1"`)
}
