// Package server implements the TCP server: connection handling, matchmaking
// and per-match orchestration.
package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"tetris-versus/internal/network"
	"tetris-versus/pkg/logger"
)

// ErrListenerClosed is returned by Listen after Close
var ErrListenerClosed = errors.New("listener closed")

// Hooks receives every lifecycle notification of a Listener
type Hooks interface {
	ClientConnected(s *Session)
	ClientDisconnected(s *Session)
	ClientException(s *Session, err error)
	ClientMessage(s *Session, msg *network.Message)
	ListeningException(err error)
	ServerStarted()
	ServerStopped()
	ServerClosed()
}

// NopHooks implements Hooks with no-ops. Embed it and override what you need.
type NopHooks struct{}

func (NopHooks) ClientConnected(*Session) {}
func (NopHooks) ClientDisconnected(*Session) {}
func (NopHooks) ClientException(*Session, error) {}
func (NopHooks) ClientMessage(*Session, *network.Message) {}
func (NopHooks) ListeningException(error) {}
func (NopHooks) ServerStarted() {}
func (NopHooks) ServerStopped() {}
func (NopHooks) ServerClosed() {}

// Listener accepts TCP connections and runs one read loop per session
type Listener struct {
	address       string
	acceptTimeout time.Duration
	hooks         Hooks
	logger        *logger.Logger

	mu       sync.Mutex
	ln       *net.TCPListener
	sessions map[string]*Session
	closed   bool

	stopped  atomic.Bool
	acceptWG sync.WaitGroup
	connWG   sync.WaitGroup
}

// NewListener creates a listener for address. Hooks may be nil.
func NewListener(address string, acceptTimeout time.Duration, hooks Hooks) *Listener {
	if hooks == nil {
		hooks = NopHooks{}
	}
	if acceptTimeout <= 0 {
		acceptTimeout = 500 * time.Millisecond
	}
	return &Listener{
		address:       address,
		acceptTimeout: acceptTimeout,
		hooks:         hooks,
		logger:        logger.Server,
		sessions:      make(map[string]*Session),
	}
}

// Listen binds the socket and starts the accept loop
func (l *Listener) Listen() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrListenerClosed
	}
	if l.ln != nil {
		return fmt.Errorf("already listening on %s", l.ln.Addr())
	}

	addr, err := net.ResolveTCPAddr("tcp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", l.address, err)
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	l.ln = ln
	l.stopped.Store(false)
	l.acceptWG.Add(1)
	go l.acceptLoop(ln)

	l.logger.Info("Server started and listening on %s", ln.Addr())
	l.hooks.ServerStarted()
	return nil
}

// Addr returns the bound address, nil before Listen
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// StopListening makes the accept loop exit after its current timeout.
// Existing sessions stay open.
func (l *Listener) StopListening() {
	l.stopped.Store(true)
}

// Close stops listening, closes every session and waits for the accept loop
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	sessions := make([]*Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		sessions = append(sessions, s)
	}
	l.mu.Unlock()

	l.StopListening()
	for _, s := range sessions {
		_ = s.Close()
	}
	l.acceptWG.Wait()
	l.connWG.Wait()

	l.logger.Info("Server closed")
	l.hooks.ServerClosed()
	return nil
}

// SessionCount returns the number of open sessions
func (l *Listener) SessionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

func (l *Listener) acceptLoop(ln *net.TCPListener) {
	defer l.acceptWG.Done()
	defer func() {
		ln.Close()
		l.mu.Lock()
		l.ln = nil
		l.mu.Unlock()
		l.logger.Info("Server stopped listening")
		l.hooks.ServerStopped()
	}()

	for !l.stopped.Load() {
		if err := ln.SetDeadline(time.Now().Add(l.acceptTimeout)); err != nil {
			l.hooks.ListeningException(err)
			return
		}
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if !l.stopped.Load() {
				l.logger.Error("Failed to accept connection: %v", err)
				l.hooks.ListeningException(err)
			}
			return
		}

		if !l.register(conn) {
			conn.Close()
		}
	}
}

func (l *Listener) register(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}

	s := newSession(conn)
	l.sessions[s.Key()] = s
	l.connWG.Add(1)
	go l.handleSession(s)
	return true
}

// handleSession manages one client connection until it closes
func (l *Listener) handleSession(s *Session) {
	defer l.connWG.Done()

	s.logger.Info("New client connected from %s", s.RemoteAddr())
	l.hooks.ClientConnected(s)

	for {
		msg, err := s.reader.ReadMessage()
		if err != nil {
			if errors.Is(err, network.ErrMalformed) {
				s.logger.Warn("Malformed message: %v", err)
				s.SendError("MALFORMED", err.Error())
				l.hooks.ClientException(s, err)
				continue
			}
			if !errors.Is(err, io.EOF) && !s.isClosed() {
				l.hooks.ClientException(s, err)
			}
			break
		}
		l.hooks.ClientMessage(s, msg)
	}

	_ = s.Close()
	s.SetStatus(network.StatusDisconnected)

	l.mu.Lock()
	delete(l.sessions, s.Key())
	l.mu.Unlock()

	s.logger.Info("Client disconnected: %s", s.Username())
	l.hooks.ClientDisconnected(s)
}
