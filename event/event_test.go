package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRouting(t *testing.T) {
	seat, err := New(SeatHeld, 7, 100, SeatPayload{SectionID: "008", RowNumber: "9-15", UserID: 1, Grade: "R"})
	require.NoError(t, err)
	assert.Equal(t, TopicSeatEvents, seat.Topic())
	assert.Equal(t, []byte("100"), seat.Key())

	joined, err := New(UserJoined, 7, 0, UserJoinedPayload{UserID: 1, TicketNo: 3})
	require.NoError(t, err)
	assert.Equal(t, TopicRoomEvents, joined.Topic())
	assert.Equal(t, []byte("7"), joined.Key())
}

func TestDecode(t *testing.T) {
	data := []byte(`{"eventType":"SEAT_RELEASED","matchId":100,"timestamp":1,"payload":{"sectionId":"A","rowNumber":"1","userId":5,"grade":"VIP","reason":"expired"}}`)

	e, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, SeatReleased, e.EventType)
	assert.Equal(t, int64(100), e.MatchID)

	var p SeatPayload
	require.NoError(t, e.DecodePayload(&p))
	assert.Equal(t, "A", p.SectionID)
	assert.Equal(t, int64(5), p.UserID)
	assert.Equal(t, ReasonExpired, p.Reason)
	assert.False(t, p.WasSold)

	_, err = Decode([]byte(`{"roomId":1}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}
