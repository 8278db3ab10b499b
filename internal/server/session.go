package server

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"tetris-versus/internal/network"
	"tetris-versus/pkg/logger"
)

// Session represents a connected client
type Session struct {
	key    string
	conn   net.Conn
	reader *network.Reader
	writer *bufio.Writer
	pieces PieceQueue
	logger *logger.Logger

	writeMu      sync.Mutex
	writeTimeout time.Duration

	mu       sync.RWMutex
	id       int
	username string
	status   network.PlayerStatus
	match    *Match

	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(conn net.Conn) *Session {
	key := uuid.NewString()
	return &Session{
		key:    key,
		conn:   conn,
		reader: network.NewReader(conn),
		writer: bufio.NewWriter(conn),
		id:           -1,
		status:       network.StatusConnecting,
		writeTimeout: writeWait,
		logger:       logger.Server.With("session", key),
		closed:       make(chan struct{}),
	}
}

// Key is a unique identifier for the life of the connection
func (s *Session) Key() string {
	return s.key
}

// ID is the session's slot number, -1 until assigned
func (s *Session) ID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

func (s *Session) setID(id int) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// Username returns the announced name
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) setUsername(name string) {
	s.mu.Lock()
	s.username = name
	s.mu.Unlock()
}

// Status returns the lifecycle status
func (s *Session) Status() network.PlayerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus updates the lifecycle status
func (s *Session) SetStatus(status network.PlayerStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Pieces is the queue of pieces pending delivery to this player
func (s *Session) Pieces() *PieceQueue {
	return &s.pieces
}

// Match returns the match this session plays in, if any
func (s *Session) Match() *Match {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.match
}

func (s *Session) attachMatch(m *Match) {
	s.mu.Lock()
	s.match = m
	s.mu.Unlock()
}

// RemoteAddr returns the peer address
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// Send writes one message. Safe for concurrent use. A peer that does not
// drain its socket within the write timeout is disconnected.
func (s *Session) Send(msg *network.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.isClosed() {
		return fmt.Errorf("session %s closed", s.key)
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return s.abort(err)
	}
	if err := network.WriteMessage(s.writer, msg); err != nil {
		return s.abort(err)
	}
	if err := s.writer.Flush(); err != nil {
		return s.abort(err)
	}
	s.logger.Debug("Sent %s to %s", msg.Type, s.Username())
	return nil
}

// abort closes the session after a failed write so the read loop ends and
// the disconnect path runs
func (s *Session) abort(err error) error {
	s.logger.Warn("Write to %s failed, closing session: %v", s.Username(), err)
	s.Close()
	return err
}

// SendError sends an error message, logging rather than returning failures
func (s *Session) SendError(code, message string) {
	if err := s.Send(network.CreateErrorMessage(code, message)); err != nil {
		s.logger.Warn("Failed to send error %s: %v", code, err)
	}
}

// Close closes the underlying connection
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
