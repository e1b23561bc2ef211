package hub

import (
	"time"

	"github.com/shiv248/textsync/internal/session"
	"github.com/shiv248/textsync/pkg/logger"
)

const watchdogInterval = 10 * time.Second

// watchdogLoop wakes every 10 seconds and evicts sessions that are dead or
// have been idle past cfg.HeartbeatTimeout (0 disables the idle check),
// per spec §4.7.
func (h *Hub) watchdogLoop() {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopWatchdog:
			return
		case <-ticker.C:
			h.sweepStaleSessions()
		}
	}
}

func (h *Hub) sweepStaleSessions() {
	now := time.Now()

	h.sessionsMu.Lock()
	var stale []*session.Session
	for _, s := range h.sessions {
		if !s.IsAlive() {
			stale = append(stale, s)
			continue
		}
		if h.cfg.HeartbeatTimeout > 0 && now.Sub(s.LastSeen()) > h.cfg.HeartbeatTimeout {
			stale = append(stale, s)
		}
	}
	h.sessionsMu.Unlock()

	for _, s := range stale {
		logger.Info("session timeout: %s", s.ID)
		h.UnregisterSession(s)
	}
}
