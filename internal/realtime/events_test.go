package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeShowID(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
		err  bool
	}{
		{`42`, 42, false},
		{`"42"`, 42, false},
		{`{"showId": 7}`, 7, false},
		{`{"showId": "7"}`, 7, false},
		{`0`, 0, true},
		{`-1`, 0, true},
		{`"abc"`, 0, true},
		{``, 0, true},
		{`{}`, 0, true},
	}
	for _, tc := range cases {
		got, err := DecodeShowID(json.RawMessage(tc.in))
		if tc.err {
			assert.ErrorIs(t, err, ErrBadPayload, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestDecodeSeatRequest(t *testing.T) {
	req, err := DecodeSeatRequest(json.RawMessage(`{"showId":42,"seatId":"C5"}`))
	require.NoError(t, err)
	assert.Equal(t, SeatRequest{ShowID: 42, SeatID: "C5"}, req)

	req, err = DecodeSeatRequest(json.RawMessage(`{"showId":"42","seatId":"c5"}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), req.ShowID)

	_, err = DecodeSeatRequest(json.RawMessage(`{"showId":42}`))
	assert.ErrorIs(t, err, ErrBadPayload)
	_, err = DecodeSeatRequest(json.RawMessage(`[]`))
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestNewMessage(t *testing.T) {
	m := NewMessage(EventSeatReleased, SeatReleased{SeatID: "A1", ShowID: 3})
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"seat-released","data":{"seatId":"A1","showId":3}}`, string(b))
}
