// Package session implements the per-connection state described in
// spec §3 "Session" and §4.5: identity, subscriptions, liveness, and a
// single-writer send path.
package session

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/shiv248/textsync/internal/protocol"
)

// ErrClosed is returned by Send when the session is no longer alive.
var ErrClosed = errors.New("session: closed")

// Session is one connected client. HelloReceived gates SUBSCRIBE/edit
// admission (spec §4.6). conn may be nil, in which case Send writes
// nothing and only reports liveness.
type Session struct {
	ID            string
	Name          string
	HelloReceived bool

	mu            sync.Mutex // guards Subscriptions and lastSeen
	Subscriptions map[string]struct{}
	lastSeen      time.Time

	alive   bool // guarded by writeMu so Send/Close/IsAlive agree on it
	writeMu sync.Mutex
	conn    net.Conn
}

// New allocates a session with a server-assigned ID in the "S-<8 hex>"
// form spec §3 requires, backed by github.com/google/uuid instead of
// hand-rolled randomness.
func New(conn net.Conn) *Session {
	id := "S-" + uuid.New().String()[:8]
	return &Session{
		ID:            id,
		Name:          "anon",
		Subscriptions: make(map[string]struct{}),
		lastSeen:      time.Now(),
		alive:         true,
		conn:          conn,
	}
}

// Touch updates lastSeen to now, called on every received record
// (spec §4.6 step 1).
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen returns the last time a record was received from this session.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// AddSubscription records that this session is subscribed to docID.
func (s *Session) AddSubscription(docID string) {
	s.mu.Lock()
	s.Subscriptions[docID] = struct{}{}
	s.mu.Unlock()
}

// SubscriptionSnapshot returns a copy of the document IDs this session is
// subscribed to, used during unregistration.
func (s *Session) SubscriptionSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.Subscriptions))
	for id := range s.Subscriptions {
		ids = append(ids, id)
	}
	return ids
}

// IsAlive reports whether the session's socket is still open.
func (s *Session) IsAlive() bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.alive
}

// Send encodes payload as one JSON line and writes it atomically
// (single-writer, spec §4.5). A write error flips alive to false and
// returns ErrClosed-wrapped error to the caller, which must unregister
// the session.
func (s *Session) Send(payload map[string]interface{}) error {
	line, err := protocol.EncodeLine(payload)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.alive {
		return ErrClosed
	}
	if s.conn != nil {
		if _, err := s.conn.Write(line); err != nil {
			s.alive = false
			return errors.Wrap(ErrClosed, err.Error())
		}
	}
	return nil
}

// Close shuts down and closes the underlying socket, swallowing OS errors
// (spec §4.7 unregistration). Idempotent.
func (s *Session) Close() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !s.alive {
		return
	}
	s.alive = false
	if s.conn != nil {
		_ = s.conn.Close()
	}
}
