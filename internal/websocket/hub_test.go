package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence-service/internal/presence"
)

func TestEncodeFrame(t *testing.T) {
	frame, err := encodeFrame(presence.EventRoomUserCount, presence.RoomUserCountPayload{RoomID: "r1", Count: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"roomUserCount","data":{"roomId":"r1","count":3}}`, string(frame))
}

func TestEncodedFramesRoundTripThroughEnvelope(t *testing.T) {
	frame, err := encodeFrame(presence.EventError, presence.ErrorPayload{Message: "room not found"})
	require.NoError(t, err)

	var env presence.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, presence.EventError, env.Event)

	var payload presence.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "room not found", payload.Message)
}
