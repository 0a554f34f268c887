package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/channel"
	"github.com/teslashibe/go-gesture/pkg/gesture"
)

type scriptClassifier struct {
	frames []gesture.ClassID
	errAt  map[int]error
	i      int
}

func (s *scriptClassifier) Classify(ctx context.Context) (gesture.ClassID, error) {
	defer func() { s.i++ }()
	if err, ok := s.errAt[s.i]; ok {
		return gesture.NoGesture, err
	}
	if s.i >= len(s.frames) {
		return gesture.NoGesture, io.EOF
	}
	return s.frames[s.i], nil
}

type recordSender struct {
	mu     sync.Mutex
	sent   []string
	fail   map[string]error
	closed int
}

func (r *recordSender) SendErr(_ context.Context, cmd string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, cmd)
	return r.fail[cmd]
}

func (r *recordSender) Close() error {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
	return nil
}

func newDebouncer(t *testing.T) *gesture.Debouncer {
	t.Helper()
	labels, err := gesture.NewLabelMap([]string{"Up", "Down"}, map[string]string{"Up": "UP", "Down": "DOWN"})
	require.NoError(t, err)
	return gesture.NewDebouncer(gesture.DebounceConfig{Window: 3, MinInterval: time.Hour, Logger: log.Discard()}, labels)
}

func repeat(id gesture.ClassID, n int) []gesture.ClassID {
	out := make([]gesture.ClassID, n)
	for i := range out {
		out[i] = id
	}
	return out
}

func TestDriver_EmitsConfirmedCommands(t *testing.T) {
	frames := append(repeat(0, 5), repeat(1, 4)...)
	sender := &recordSender{}
	d := NewDriver(&scriptClassifier{frames: frames}, newDebouncer(t), sender, Config{Logger: log.Discard()})

	require.NoError(t, d.Run(context.Background()))

	assert.Equal(t, []string{"UP", "DOWN"}, sender.sent)
	assert.Equal(t, 1, sender.closed)
	st := d.Stats()
	assert.Equal(t, uint64(9), st.Frames)
	assert.Equal(t, uint64(2), st.Delivered)
}

func TestDriver_LandOnExit(t *testing.T) {
	sender := &recordSender{}
	d := NewDriver(&scriptClassifier{frames: repeat(0, 3)}, newDebouncer(t), sender, Config{LandOnExit: true, Logger: log.Discard()})

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, []string{"UP", "LAND"}, sender.sent)
	assert.Equal(t, 1, sender.closed)
}

func TestDriver_FrameErrorsDoNotStop(t *testing.T) {
	cls := &scriptClassifier{
		frames: repeat(0, 6),
		errAt:  map[int]error{1: errors.New("blurry frame")},
	}
	sender := &recordSender{}
	d := NewDriver(cls, newDebouncer(t), sender, Config{Logger: log.Discard()})

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, []string{"UP"}, sender.sent)
	assert.Equal(t, uint64(1), d.Stats().FrameErrors)
}

func TestDriver_FailedSendCounted(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable uint64
	}{
		{"not connected", channel.ErrNotConnected, 1},
		{"transport", &channel.TransportError{Op: "write", Err: io.ErrClosedPipe}, 1},
		{"closed", channel.ErrClosed, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordSender{fail: map[string]error{"UP": tt.err}}
			d := NewDriver(&scriptClassifier{frames: repeat(0, 3)}, newDebouncer(t), sender, Config{Logger: log.Discard()})

			require.NoError(t, d.Run(context.Background()))
			st := d.Stats()
			assert.Equal(t, uint64(1), st.Emitted)
			assert.Equal(t, uint64(1), st.Failed)
			assert.Equal(t, tt.retryable, st.Retryable)
		})
	}
}

type blockingClassifier struct{}

func (blockingClassifier) Classify(ctx context.Context) (gesture.ClassID, error) {
	<-ctx.Done()
	return gesture.NoGesture, ctx.Err()
}

func TestDriver_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sender := &recordSender{}
	d := NewDriver(blockingClassifier{}, newDebouncer(t), sender, Config{FrameInterval: time.Millisecond, Logger: log.Discard()})

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("driver did not stop")
	}
	assert.Equal(t, 1, sender.closed)
}
