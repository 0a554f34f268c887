// Package receiver implements the host side of the command link: a TCP
// listener that serves one client at a time and dispatches each received
// command line to a Dispatcher.
package receiver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// Defaults.
const (
	DefaultAddr        = "127.0.0.1:9000"
	DefaultReadTimeout = time.Second

	readBufferSize = 1024
	acceptBackoff  = 50 * time.Millisecond
)

// Dispatcher receives normalized command lines. motion.Executor satisfies it.
type Dispatcher interface {
	Execute(cmd string)
	Stop()
}

// Stats counts receiver activity.
type Stats struct {
	Listening       bool   `json:"listening"`
	ClientConnected bool   `json:"client_connected"`
	ClientAddr      string `json:"client_addr,omitempty"`
	Connections     uint64 `json:"connections"`
	Lines           uint64 `json:"lines"`
	DecodeErrors    uint64 `json:"decode_errors"`
	Overflows       uint64 `json:"overflows"`
	AcceptErrors    uint64 `json:"accept_errors"`
}

// Option configures a Server.
type Option func(*Server)

// WithReadTimeout sets the per-read idle timeout. An idle timeout is not an
// error; it only bounds how long a read blocks.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) { s.readTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server accepts one client connection at a time on a fixed address.
type Server struct {
	addr        string
	readTimeout time.Duration
	exec        Dispatcher
	logger      *slog.Logger

	// lifeMu serializes Start and Stop, including Stop's wait for the loops
	lifeMu sync.Mutex

	mu      sync.Mutex
	ln      net.Listener
	client  net.Conn
	running bool
	wg      sync.WaitGroup

	connections  atomic.Uint64
	lines        atomic.Uint64
	decodeErrors atomic.Uint64
	overflows    atomic.Uint64
	acceptErrors atomic.Uint64
}

// New creates a stopped Server.
func New(addr string, exec Dispatcher, opts ...Option) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		addr:        addr,
		readTimeout: DefaultReadTimeout,
		exec:        exec,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.readTimeout <= 0 {
		s.readTimeout = DefaultReadTimeout
	}
	s.logger = s.logger.With("component", "receiver")
	return s
}

// Start binds the listener and begins the accept loop. A bind failure is
// returned to the caller. Calling Start on a running server is a no-op.
func (s *Server) Start() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Info("already running", "addr", s.ln.Addr().String())
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("receiver: listen %s: %w", s.addr, err)
	}
	s.ln = ln
	s.running = true

	s.wg.Add(1)
	go s.acceptLoop(ln)

	s.logger.Info("listening", "addr", ln.Addr().String())
	return nil
}

// Stop closes the listener and the active client, waits for the loops to
// exit and cancels any running motion. Safe to call more than once.
func (s *Server) Stop() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	err := s.ln.Close()
	if s.client != nil {
		s.client.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.exec.Stop()
	s.logger.Info("stopped")
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// Addr returns the bound address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	return s.ln.Addr()
}

// Stats returns a snapshot of the counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		Listening:       s.running,
		ClientConnected: s.client != nil,
	}
	if s.client != nil {
		st.ClientAddr = s.client.RemoteAddr().String()
	}
	s.mu.Unlock()

	st.Connections = s.connections.Load()
	st.Lines = s.lines.Load()
	st.DecodeErrors = s.decodeErrors.Load()
	st.Overflows = s.overflows.Load()
	st.AcceptErrors = s.acceptErrors.Load()
	return st
}

func (s *Server) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// acceptLoop serves clients sequentially until the listener is closed.
func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.isRunning() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.acceptErrors.Add(1)
			s.logger.Warn("accept error", "error", err)
			time.Sleep(acceptBackoff)
			continue
		}

		if !s.setClient(conn) {
			conn.Close()
			return
		}
		s.serve(conn)
		s.setClient(nil)
	}
}

// setClient records the active client. It refuses when the server is
// stopping.
func (s *Server) setClient(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn != nil && !s.running {
		return false
	}
	s.client = conn
	return true
}

// serve runs the read loop for one client.
func (s *Server) serve(conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.connections.Add(1)
	s.logger.Info("client connected", "remote", remote)

	var (
		lb  LineBuffer
		buf = make([]byte, readBufferSize)
	)
	for s.isRunning() {
		if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			s.logger.Warn("set read deadline", "remote", remote, "error", err)
			return
		}

		n, err := conn.Read(buf)
		if n > 0 {
			before := lb.Overflows()
			for _, line := range lb.Feed(buf[:n]) {
				s.dispatch(line)
			}
			if d := lb.Overflows() - before; d > 0 {
				s.overflows.Add(d)
				s.logger.Warn("line too long, discarding", "remote", remote, "max", DefaultMaxLine)
			}
		}
		if err == nil {
			continue
		}

		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			continue
		}
		if errors.Is(err, io.EOF) {
			s.logger.Info("client disconnected", "remote", remote)
		} else if s.isRunning() {
			s.logger.Warn("read error", "remote", remote, "error", err)
		}
		if lb.Pending() > 0 {
			s.logger.Debug("discarding partial line", "remote", remote, "bytes", lb.Pending())
		}
		return
	}
}

// dispatch decodes one line and hands it to the dispatcher.
func (s *Server) dispatch(line []byte) {
	if !utf8.Valid(line) {
		s.decodeErrors.Add(1)
		s.logger.Warn("undecodable line, ignoring", "bytes", len(line))
		return
	}
	cmd := strings.ToUpper(strings.TrimSpace(string(line)))
	if cmd == "" {
		return
	}
	s.lines.Add(1)
	s.logger.Debug("line", "command", cmd)
	s.exec.Execute(cmd)
}
