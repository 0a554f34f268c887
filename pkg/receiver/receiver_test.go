package receiver

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gesture/internal/log"
)

// mockDispatcher records executed commands.
type mockDispatcher struct {
	mu    sync.Mutex
	cmds  []string
	stops int
}

func (m *mockDispatcher) Execute(cmd string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cmds = append(m.cmds, cmd)
}

func (m *mockDispatcher) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
}

func (m *mockDispatcher) commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cmds...)
}

func (m *mockDispatcher) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

func startTestServer(t *testing.T, d Dispatcher) *Server {
	t.Helper()
	s := New("127.0.0.1:0", d, WithReadTimeout(20*time.Millisecond), WithLogger(log.Discard()))
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Stop() })
	return s
}

func dial(t *testing.T, s *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitCommands(t *testing.T, d *mockDispatcher, want []string) {
	t.Helper()
	require.Eventually(t, func() bool { return len(d.commands()) >= len(want) }, 2*time.Second, 5*time.Millisecond,
		"got %v, want %v", d.commands(), want)
	if diff := cmp.Diff(want, d.commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestLineBuffer_Reassembly(t *testing.T) {
	var lb LineBuffer

	first := lb.Feed([]byte("UP\nDOW"))
	require.Len(t, first, 1)
	assert.Equal(t, "UP", string(first[0]))
	assert.Equal(t, 3, lb.Pending())

	second := lb.Feed([]byte("N\n"))
	require.Len(t, second, 1)
	assert.Equal(t, "DOWN", string(second[0]))
	assert.Zero(t, lb.Pending())
}

func TestLineBuffer_Chunks(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
	}{
		{"several in one chunk", []string{"UP\nDOWN\nSTOP\n"}, []string{"UP", "DOWN", "STOP"}},
		{"byte by byte", []string{"L", "A", "N", "D", "\n"}, []string{"LAND"}},
		{"empty line kept", []string{"\n\nUP\n"}, []string{"", "", "UP"}},
		{"no terminator", []string{"RETURN_HOME"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lb LineBuffer
			var got []string
			for _, c := range tt.chunks {
				for _, l := range lb.Feed([]byte(c)) {
					got = append(got, string(l))
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLineBuffer_Overflow(t *testing.T) {
	lb := LineBuffer{Max: 8}

	assert.Empty(t, lb.Feed([]byte("AAAAAA")))
	assert.Empty(t, lb.Feed([]byte("AAAAAA")))
	assert.Zero(t, lb.Pending())
	assert.Equal(t, uint64(1), lb.Overflows())

	// the rest of the long line is dropped with it
	assert.Empty(t, lb.Feed([]byte("AAAAAAAAAAAAAAAA")))
	assert.Zero(t, lb.Pending())
	assert.Equal(t, uint64(1), lb.Overflows())

	lines := lb.Feed([]byte("AAA\nUP\n"))
	require.Len(t, lines, 1)
	assert.Equal(t, "UP", string(lines[0]))

	lines = lb.Feed([]byte("TOOLONGLINE\nSTOP\n"))
	require.Len(t, lines, 1)
	assert.Equal(t, "STOP", string(lines[0]))
	assert.Equal(t, uint64(2), lb.Overflows())
}

func TestServer_OversizedLineDropped(t *testing.T) {
	d := &mockDispatcher{}
	s := startTestServer(t, d)
	conn := dial(t, s)

	_, err := conn.Write(bytes.Repeat([]byte("A"), 3*DefaultMaxLine))
	require.NoError(t, err)
	_, err = conn.Write([]byte("\nUP\n"))
	require.NoError(t, err)

	waitCommands(t, d, []string{"UP"})
	assert.Equal(t, uint64(1), s.Stats().Overflows)
}

func TestServer_SplitWrites(t *testing.T) {
	d := &mockDispatcher{}
	s := startTestServer(t, d)
	conn := dial(t, s)

	_, err := conn.Write([]byte("UP\nDOW"))
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	_, err = conn.Write([]byte("N\n"))
	require.NoError(t, err)

	waitCommands(t, d, []string{"UP", "DOWN"})
}

func TestServer_NormalizesLines(t *testing.T) {
	d := &mockDispatcher{}
	s := startTestServer(t, d)
	conn := dial(t, s)

	_, err := conn.Write([]byte("  left \r\nreturn_home\n\n"))
	require.NoError(t, err)

	waitCommands(t, d, []string{"LEFT", "RETURN_HOME"})
}

func TestServer_InvalidUTF8Ignored(t *testing.T) {
	d := &mockDispatcher{}
	s := startTestServer(t, d)
	conn := dial(t, s)

	_, err := conn.Write([]byte{0xff, 0xfe, '\n'})
	require.NoError(t, err)
	_, err = conn.Write([]byte("STOP\n"))
	require.NoError(t, err)

	waitCommands(t, d, []string{"STOP"})
	assert.Equal(t, uint64(1), s.Stats().DecodeErrors)
}

func TestServer_IdleTimeoutKeepsSession(t *testing.T) {
	d := &mockDispatcher{}
	s := startTestServer(t, d)
	conn := dial(t, s)

	// several read timeouts elapse
	time.Sleep(120 * time.Millisecond)
	_, err := conn.Write([]byte("BACK\n"))
	require.NoError(t, err)

	waitCommands(t, d, []string{"BACK"})
	assert.Equal(t, uint64(1), s.Stats().Connections)
}

func TestServer_SequentialClients(t *testing.T) {
	d := &mockDispatcher{}
	s := startTestServer(t, d)

	first := dial(t, s)
	_, err := first.Write([]byte("UP\n"))
	require.NoError(t, err)
	waitCommands(t, d, []string{"UP"})

	// second client connects and writes while the first is still served
	second := dial(t, s)
	_, err = second.Write([]byte("DOWN\n"))
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []string{"UP"}, d.commands(), "second client served concurrently")

	require.NoError(t, first.Close())
	waitCommands(t, d, []string{"UP", "DOWN"})
	assert.Equal(t, uint64(2), s.Stats().Connections)
}

func TestServer_StartBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := New(ln.Addr().String(), &mockDispatcher{}, WithLogger(log.Discard()))
	err = s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
	assert.Nil(t, s.Addr())
}

func TestServer_StartStopIdempotent(t *testing.T) {
	d := &mockDispatcher{}
	s := New("127.0.0.1:0", d, WithLogger(log.Discard()))

	require.NoError(t, s.Stop())
	require.NoError(t, s.Start())
	addr := s.Addr()
	require.NoError(t, s.Start())
	assert.Equal(t, addr, s.Addr())

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.Equal(t, 1, d.stopCount())
	assert.False(t, s.Stats().Listening)

	_, err := net.DialTimeout("tcp", addr.String(), 100*time.Millisecond)
	assert.Error(t, err)
}

func TestServer_StopDisconnectsClient(t *testing.T) {
	d := &mockDispatcher{}
	s := New("127.0.0.1:0", d, WithReadTimeout(time.Second), WithLogger(log.Discard()))
	require.NoError(t, s.Start())

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.Stats().ClientConnected }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on the active client")
	}
	assert.Equal(t, 1, d.stopCount())
}

func TestServer_ConcurrentStartStop(t *testing.T) {
	d := &mockDispatcher{}
	s := New("127.0.0.1:0", d, WithReadTimeout(5*time.Millisecond), WithLogger(log.Discard()))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Start())
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Stop())
		}()
	}
	wg.Wait()

	require.NoError(t, s.Stop())
	assert.Nil(t, s.Addr())
	assert.False(t, s.Stats().Listening)
}
