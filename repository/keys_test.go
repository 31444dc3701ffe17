package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeatKey(t *testing.T) {
	seat := SeatKey{MatchID: 100, SectionID: "008", RowNumber: "9-15"}
	assert.Equal(t, "seat:{100}:008:9-15", seatKey(seat))

	parsed, err := ParseSeatKey(seatKey(seat))
	require.NoError(t, err)
	assert.Equal(t, seat, parsed)

	for _, key := range []string{
		seatIndexKey(100),
		matchStatusKey(100),
		"queue:{1}:meta",
		"seat:{abc}:A:1",
		"seat:{1}:A:",
	} {
		_, err := ParseSeatKey(key)
		assert.Error(t, err, key)
	}
}

func TestSeatValueCodec(t *testing.T) {
	owner, sold, err := decodeSeatValue(encodeSeatValue(SeatOwner{UserID: 7, Grade: "VIP"}))
	require.NoError(t, err)
	assert.False(t, sold)
	assert.Equal(t, SeatOwner{UserID: 7, Grade: "VIP"}, owner)

	owner, sold, err = decodeSeatValue("7:VIP:SOLD")
	require.NoError(t, err)
	assert.True(t, sold)
	assert.Equal(t, "VIP", owner.Grade)

	owner, sold, err = decodeSeatValue("7:SOLD")
	require.NoError(t, err)
	assert.False(t, sold)
	assert.Equal(t, SeatOwner{UserID: 7, Grade: "SOLD"}, owner)

	owner, sold, err = decodeSeatValue("7:SOLD:SOLD")
	require.NoError(t, err)
	assert.True(t, sold)
	assert.Equal(t, "SOLD", owner.Grade)

	for _, v := range []string{"garbage", "7:", "7:VIP:HELD", "7:VIP:SOLD:SOLD", "x:VIP"} {
		_, _, err = decodeSeatValue(v)
		assert.Error(t, err, v)
	}
}

func TestHallSizeOf(t *testing.T) {
	assert.Equal(t, HallSmall, HallSizeOf(999))
	assert.Equal(t, HallMedium, HallSizeOf(1000))
	assert.Equal(t, HallMedium, HallSizeOf(9999))
	assert.Equal(t, HallLarge, HallSizeOf(10000))
}
