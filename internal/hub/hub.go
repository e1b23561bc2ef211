// Package hub implements the router: the session table and document
// table, message dispatch, the edit pipeline, broadcast, and the
// stale-session watchdog (spec §4.6). It is the crux of the design —
// every other package exists to be coordinated from here.
package hub

import (
	"net"
	"sync"
	"time"

	"github.com/shiv248/textsync/internal/docstate"
	"github.com/shiv248/textsync/internal/docstore"
	"github.com/shiv248/textsync/internal/registry"
	"github.com/shiv248/textsync/internal/session"
	"github.com/shiv248/textsync/pkg/logger"
)

// Config bundles the tunables spec §6 lists on the command-line surface
// that the edit pipeline and watchdog need at runtime.
type Config struct {
	SnapshotInterval int           // ops; minimum 1
	HeartbeatTimeout time.Duration // 0 disables idle expiry
}

// Hub owns all process-wide mutable state: the session table, the
// document table, and the persistence/registry collaborators. It is
// instantiated once per process (spec §9 "Global state").
type Hub struct {
	cfg Config

	store    *docstore.Store
	registry *registry.Registry // optional, nil disables registry features

	sessionsMu sync.Mutex // protects sessions map only — never held during I/O or doc locks
	sessions   map[string]*session.Session

	docsMu sync.Mutex // protects docs map; also held while getOrCreateDoc loads a missing doc from persistence
	docs   map[string]*docstate.DocState

	startTime time.Time

	stopWatchdog     chan struct{}
	stopWatchdogOnce sync.Once
}

// New creates a Hub. reg may be nil to run without the SQLite registry
// (idle-sweep and STATS registry size become no-ops/zero).
func New(store *docstore.Store, reg *registry.Registry, cfg Config) *Hub {
	if cfg.SnapshotInterval < 1 {
		cfg.SnapshotInterval = 1
	}
	h := &Hub{
		cfg:          cfg,
		store:        store,
		registry:     reg,
		sessions:     make(map[string]*session.Session),
		docs:         make(map[string]*docstate.DocState),
		startTime:    time.Now(),
		stopWatchdog: make(chan struct{}),
	}
	go h.watchdogLoop()
	return h
}

// NewSession registers a freshly accepted connection and returns its
// Session handle.
func (h *Hub) NewSession(conn net.Conn) *session.Session {
	s := session.New(conn)
	h.sessionsMu.Lock()
	h.sessions[s.ID] = s
	h.sessionsMu.Unlock()
	logger.Info("session connected: %s", s.ID)
	return s
}

// UnregisterSession is idempotent: it removes sid from the session table,
// removes it from every document it subscribed to, and closes its socket
// (spec §4.7).
func (h *Hub) UnregisterSession(s *session.Session) {
	h.sessionsMu.Lock()
	delete(h.sessions, s.ID)
	h.sessionsMu.Unlock()

	for _, docID := range s.SubscriptionSnapshot() {
		if doc := h.getDocIfLoaded(docID); doc != nil {
			doc.Mu.Lock()
			doc.RemoveSubscriber(s.ID)
			doc.Mu.Unlock()
		}
	}
	s.Close()
	logger.Info("session closed: %s", s.ID)
}

func (h *Hub) getSession(sid string) *session.Session {
	h.sessionsMu.Lock()
	defer h.sessionsMu.Unlock()
	return h.sessions[sid]
}

func (h *Hub) getDocIfLoaded(docID string) *docstate.DocState {
	h.docsMu.Lock()
	defer h.docsMu.Unlock()
	return h.docs[docID]
}

// getOrCreateDoc is a double-checked load-or-create: a first lookup that
// holds the docs table mutex only for the map read, and on a miss a
// re-check under that mutex before constructing the document from
// persistence. The recovery read runs with the docs table mutex held, so
// lookups and loads of other documents wait until it finishes.
func (h *Hub) getOrCreateDoc(docID string) *docstate.DocState {
	if doc := h.getDocIfLoaded(docID); doc != nil {
		return doc
	}

	h.docsMu.Lock()
	defer h.docsMu.Unlock()

	if doc, ok := h.docs[docID]; ok {
		return doc
	}

	content, version := h.store.LoadDocContent(docID, recoveryLogAdapter{})
	doc := docstate.New(docID, content, version)
	h.docs[docID] = doc

	if h.registry != nil {
		if err := h.registry.Touch(docID, version, time.Now()); err != nil {
			logger.Error("registry touch failed for %s: %v", docID, err)
		}
	}
	return doc
}

// maxVersion returns the max version across currently loaded documents,
// or 0 (used for WELCOME's serverVersion, spec §4.6).
func (h *Hub) maxVersion() int {
	h.docsMu.Lock()
	defer h.docsMu.Unlock()
	max := 0
	for _, doc := range h.docs {
		doc.Mu.Lock()
		if doc.Version > max {
			max = doc.Version
		}
		doc.Mu.Unlock()
	}
	return max
}

// StartTime returns when this Hub was created, for the STATS op.
func (h *Hub) StartTime() time.Time { return h.startTime }

// NumDocuments returns the count of currently loaded documents, for the
// STATS op.
func (h *Hub) NumDocuments() int {
	h.docsMu.Lock()
	defer h.docsMu.Unlock()
	return len(h.docs)
}

// Shutdown stops the watchdog and unregisters every session, for graceful
// process shutdown (spec §5). The idle sweeper (if started) is stopped by
// cancelling the context passed to StartIdleSweeper.
func (h *Hub) Shutdown() {
	h.stopWatchdogOnce.Do(func() { close(h.stopWatchdog) })

	h.sessionsMu.Lock()
	sessions := make([]*session.Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessionsMu.Unlock()

	for _, s := range sessions {
		h.UnregisterSession(s)
	}
}

type recoveryLogAdapter struct{}

func (recoveryLogAdapter) Warn(format string, args ...interface{})  { logger.Info(format, args...) }
func (recoveryLogAdapter) Error(format string, args ...interface{}) { logger.Error(format, args...) }
