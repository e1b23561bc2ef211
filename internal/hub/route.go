package hub

import (
	"strings"

	"github.com/shiv248/textsync/internal/protocol"
	"github.com/shiv248/textsync/internal/session"
)

// RouteMessage dispatches one parsed record per spec §4.6's table:
// HELLO, SUBSCRIBE, GET_SNAPSHOT, INSERT/DELETE/REPLACE, PING, STATS, or
// an UNKNOWN_OP error.
func (h *Hub) RouteMessage(s *session.Session, msg map[string]interface{}) {
	s.Touch()

	op := strings.ToUpper(asString(msg["op"]))
	if op == "" {
		h.sendError(s, protocol.CodeInvalidOp, "hint", "missing op")
		return
	}

	switch {
	case op == protocol.OpHello:
		h.handleHello(s, msg)
	case op == protocol.OpSubscribe:
		h.handleSubscribe(s, msg)
	case op == protocol.OpGetSnapshot:
		h.handleGetSnapshot(s, msg)
	case protocol.EditOps[op]:
		h.handleEdit(s, msg)
	case op == protocol.OpPing:
		h.safeSend(s, protocol.Pong())
	case op == protocol.OpStats:
		h.handleStats(s)
	default:
		h.sendError(s, protocol.CodeUnknownOp, "hint", op)
	}
}

func (h *Hub) handleHello(s *session.Session, msg map[string]interface{}) {
	name := asString(msg["name"])
	if name == "" {
		name = "anon"
	}
	s.Name = name
	s.HelloReceived = true
	h.safeSend(s, protocol.Welcome(s.ID, h.maxVersion()))
}

func (h *Hub) handleSubscribe(s *session.Session, msg map[string]interface{}) {
	if !s.HelloReceived {
		h.sendError(s, protocol.CodeNotReady, "hint", "send HELLO first")
		return
	}
	docID, err := normalizeDocID(msg["docId"])
	if err != nil {
		h.sendError(s, protocol.CodeInvalidDoc, "hint", "docId required")
		return
	}

	doc := h.getOrCreateDoc(docID)

	// Compute the snapshot BEFORE inserting into subscribers, so this
	// session can't observe a broadcast whose version is already in the
	// snapshot it's about to receive (spec §5 ordering guarantees).
	doc.Mu.Lock()
	id, version, content := doc.SnapshotPayload()
	doc.AddSubscriber(s.ID)
	doc.Mu.Unlock()

	s.AddSubscription(docID)
	h.safeSend(s, protocol.DocSnapshot(id, version, content))
}

func (h *Hub) handleGetSnapshot(s *session.Session, msg map[string]interface{}) {
	docID, err := normalizeDocID(msg["docId"])
	if err != nil {
		h.sendError(s, protocol.CodeInvalidDoc, "hint", "docId required")
		return
	}
	doc := h.getOrCreateDoc(docID)
	doc.Mu.Lock()
	id, version, content := doc.SnapshotPayload()
	doc.Mu.Unlock()
	h.safeSend(s, protocol.DocSnapshot(id, version, content))
}

func (h *Hub) handleStats(s *session.Session) {
	registrySize := 0
	if h.registry != nil {
		if n, err := h.registry.Count(); err == nil {
			registrySize = n
		}
	}
	h.safeSend(s, protocol.Stats(h.startTime.Unix(), h.NumDocuments(), registrySize))
}

func asString(v interface{}) string {
	str, _ := v.(string)
	return strings.TrimSpace(str)
}

func normalizeDocID(v interface{}) (string, error) {
	id := asString(v)
	if id == "" {
		return "", errEmptyDocID
	}
	return id, nil
}
