package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"join", `{"type":"join_queue"}`, TypeJoinQueue, nil},
		{"submit", `{"type":"submit_solution","payload":{"match_id":"m1","runtime":40}}`, TypeSubmitSolution, nil},
		{"unknown", `{"type":"teleport"}`, "", ErrUnknownMessage},
		{"missing type", `{"payload":{}}`, "", ErrMalformedMessage},
		{"not json", `{{`, "", ErrMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeInbound([]byte(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Type)
		})
	}
}

func TestInboundMessage_Decode(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"submit_solution","payload":{"match_id":"m1","runtime":40,"memory":17.5,"client_elapsed_seconds":300,"code":"x"}}`))
	require.NoError(t, err)

	var p SubmitSolutionPayload
	require.NoError(t, msg.Decode(&p))
	assert.Equal(t, "m1", p.MatchID)
	assert.Equal(t, 40, p.Runtime)
	assert.Equal(t, 17.5, p.Memory)
	assert.Equal(t, 300, p.ClientElapsedSeconds)
	require.NotNil(t, p.Code)

	empty, err := DecodeInbound([]byte(`{"type":"resign_match"}`))
	require.NoError(t, err)
	var r ResignMatchPayload
	assert.ErrorIs(t, empty.Decode(&r), ErrMalformedMessage)
}

func TestMessage_EncodeEnvelope(t *testing.T) {
	data, err := NewMessage(TypeTimerUpdate, TimerUpdatePayload{MatchID: "m1", Phase: PhaseCountdown, Countdown: 3}).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"timer_update","payload":{"match_id":"m1","phase":"countdown","countdown":3}}`, string(data))
}
