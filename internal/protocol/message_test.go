package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrieleiannetti/cyclone/internal/protocol"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []protocol.Message{
		{Type: protocol.TaskRequest, Sender: "ctrl-1"},
		{Type: protocol.Heartbeat, Sender: "ctrl-1"},
		{Type: protocol.TaskFinished, Sender: "ctrl-1", Tid: "T1"},
		{Type: protocol.TaskAssign, Tid: "T1", TaskBody: []byte("payload")},
		{Type: protocol.Wait, WaitSeconds: 5},
		{Type: protocol.Acknowledge},
		{Type: protocol.Exit},
	}

	for _, want := range cases {
		frame, err := protocol.Encode(want)
		require.NoError(t, err)

		got, err := protocol.Decode(frame)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	cases := []string{
		"",
		"NOT_A_TYPE",
		"TASK_REQUEST",                // missing sender
		"TASK_FINISHED\x1fctrl-1",     // missing tid
		"WAIT\x1fnotanumber",          // bad duration
		"ACKNOWLEDGE\x1fextra",        // extra field
	}

	for _, frame := range cases {
		_, err := protocol.Decode(frame)
		assert.ErrorIs(t, err, protocol.ErrDecode, "frame %q should decode-error", frame)
	}
}

func TestEncodeRejectsUnknownType(t *testing.T) {
	_, err := protocol.Encode(protocol.Message{Type: "BOGUS"})
	assert.ErrorIs(t, err, protocol.ErrDecode)
}
