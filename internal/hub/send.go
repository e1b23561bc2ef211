package hub

import (
	"github.com/pkg/errors"

	"github.com/shiv248/textsync/internal/protocol"
	"github.com/shiv248/textsync/internal/session"
)

var errEmptyDocID = errors.New("hub: docId required")

// safeSend sends payload to s, unregistering the session if the send
// fails (spec §7 "Send failure"). It is a no-op if s is already dead.
func (h *Hub) safeSend(s *session.Session, payload map[string]interface{}) {
	if !s.IsAlive() {
		return
	}
	if err := s.Send(payload); err != nil {
		h.UnregisterSession(s)
	}
}

// sendError builds and sends an ERROR event with the given extra
// key/value pairs (must be provided in pairs: k1, v1, k2, v2, ...).
func (h *Hub) sendError(s *session.Session, code string, kv ...interface{}) {
	extra := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			extra[key] = kv[i+1]
		}
	}
	h.safeSend(s, protocol.Error(code, extra))
}
