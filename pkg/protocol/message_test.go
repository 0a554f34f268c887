package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gesture/pkg/gesture"
	"github.com/teslashibe/go-gesture/pkg/motion"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
	}{
		{"motion message", TypeMotion, MotionData{Event: "started", Command: "UP"}},
		{"status message", TypeStatus, StatusData{Clients: 2}},
		{"nil data", TypeStatus, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.msgType, msg.Type)
			assert.NotZero(t, msg.Timestamp)
			if tt.data == nil {
				assert.Nil(t, msg.Data)
			}
		})
	}
}

func TestNewMessageMarshalError(t *testing.T) {
	_, err := NewMessage(TypeStatus, make(chan int))
	assert.Error(t, err)
}

func TestMotionMessageRoundTrip(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	ev := motion.Event{
		Type:    motion.EventSelfTerminated,
		Command: gesture.Land,
		JobID:   "job-1",
		At:      at,
		Elapsed: 512 * time.Millisecond,
		Ticks:   26,
	}

	msg, err := NewMotionMessage(ev)
	require.NoError(t, err)
	data, err := msg.Bytes()
	require.NoError(t, err)

	parsed, err := ParseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, TypeMotion, parsed.Type)

	var got MotionData
	require.NoError(t, parsed.ParseData(&got))
	assert.Equal(t, MotionData{
		Event:     "self_terminated",
		Command:   "LAND",
		JobID:     "job-1",
		At:        at.UnixMilli(),
		ElapsedMs: 512,
		Ticks:     26,
	}, got)
}

func TestParseMessageInvalid(t *testing.T) {
	_, err := ParseMessage([]byte("{not json"))
	assert.Error(t, err)
}

func TestParseDataNil(t *testing.T) {
	msg := &Message{Type: TypeMotion}
	var v MotionData
	assert.NoError(t, msg.ParseData(&v))
}
