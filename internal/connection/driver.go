// Package connection drives one accepted TCP socket: read raw bytes,
// feed them through the framer, and route each parsed record to the hub
// (spec §4.8 "Connection driver"). It is the Go counterpart of the
// original implementation's client_worker.
package connection

import (
	"errors"
	"io"
	"net"

	"github.com/shiv248/textsync/internal/hub"
	"github.com/shiv248/textsync/internal/protocol"
	"github.com/shiv248/textsync/internal/session"
	"github.com/shiv248/textsync/pkg/logger"
)

const readBufferSize = 4096

// Handle owns one connection's lifetime: registers a session, reads until
// EOF/error, and always unregisters on the way out. Call it from its own
// goroutine per accepted conn (spec §4.1 "Accept loop").
func Handle(h *hub.Hub, conn net.Conn) {
	s := h.NewSession(conn)
	defer h.UnregisterSession(s)

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	framer := protocol.NewFramer()
	buf := make([]byte, readBufferSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if !feedAndRoute(h, s, framer, buf[:n]) {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("session %s read error: %v", s.ID, err)
			}
			return
		}
	}
}

// feedAndRoute frames chunk into records and routes each through the hub.
// It returns false when the session must be torn down: a framing error
// (BAD_JSON) or a routing panic (SERVER_ERROR), both of which mirror the
// original's client_worker break-on-error behavior.
func feedAndRoute(h *hub.Hub, s *session.Session, framer *protocol.Framer, chunk []byte) bool {
	records, err := framer.Feed(chunk)
	for _, msg := range records {
		if !routeOne(h, s, msg) {
			return false
		}
	}
	if err != nil {
		hint := "malformed line"
		if errors.Is(err, protocol.ErrOversize) {
			hint = "message exceeds max size"
		}
		sendErrorAndClose(s, protocol.CodeBadJSON, hint)
		return false
	}
	return true
}

// routeOne dispatches a single record, recovering from panics inside
// RouteMessage so one bad message can't take down the accept loop
// (spec §4.8 "Unhandled routing failure").
func routeOne(h *hub.Hub, s *session.Session, msg map[string]interface{}) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("route_message panic: session=%s: %v", s.ID, r)
			sendErrorAndClose(s, protocol.CodeServerError, "internal error")
			ok = false
		}
	}()
	h.RouteMessage(s, msg)
	return true
}

func sendErrorAndClose(s *session.Session, code, hint string) {
	_ = s.Send(protocol.Error(code, map[string]interface{}{"hint": hint}))
	s.Close()
}
