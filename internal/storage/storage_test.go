package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBookingFilterNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultListLimit, BookingFilter{}.Normalize().Limit)
	assert.Equal(t, MaxListLimit, BookingFilter{Limit: 10000}.Normalize().Limit)
	assert.Equal(t, 0, BookingFilter{Offset: -5}.Normalize().Offset)
	assert.Equal(t, 20, BookingFilter{Limit: 20}.Normalize().Limit)
}
