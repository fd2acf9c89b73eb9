package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeatStatus(t *testing.T) {
	status, err := ParseSeatStatus(3)
	require.NoError(t, err)
	assert.Equal(t, SeatSold, status)

	status, err = ParseSeatStatus("reserved")
	require.NoError(t, err)
	assert.Equal(t, SeatReserved, status)

	_, err = ParseSeatStatus(9)
	assert.Error(t, err)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(SeatAvailable, SeatReserved))
	assert.True(t, CanTransition(SeatReserved, SeatAvailable))
	assert.True(t, CanTransition(SeatReserved, SeatSold))
	assert.True(t, CanTransition(SeatSold, SeatAvailable))

	assert.False(t, CanTransition(SeatAvailable, SeatSold))
	assert.False(t, CanTransition(SeatBlocked, SeatAvailable))
	assert.False(t, CanTransition(SeatSold, SeatReserved))
}

func TestEventLocationFallsBackToUTC(t *testing.T) {
	e := &Event{TimeZone: "Not/AZone"}
	assert.Equal(t, "UTC", e.Location().String())

	e.TimeZone = "America/Mexico_City"
	assert.Equal(t, "America/Mexico_City", e.Location().String())
}
