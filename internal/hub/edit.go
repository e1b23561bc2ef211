package hub

import (
	"time"

	"github.com/shiv248/textsync/internal/patch"
	"github.com/shiv248/textsync/internal/protocol"
	"github.com/shiv248/textsync/internal/session"
	"github.com/shiv248/textsync/pkg/logger"
)

// handleEdit is the crux of the design (spec §4.6 "Edit pipeline"):
// strict-version admission, atomic validate+mutate+log under the
// document's mutex, then post-lock delivery to the author and broadcast
// to other subscribers.
func (h *Hub) handleEdit(s *session.Session, msg map[string]interface{}) {
	if !s.HelloReceived {
		h.sendError(s, protocol.CodeNotReady, "hint", "send HELLO first")
		return
	}
	docID, err := normalizeDocID(msg["docId"])
	if err != nil {
		h.sendError(s, protocol.CodeInvalidDoc, "hint", "docId required")
		return
	}

	base := coerceBase(msg["base"])
	doc := h.getOrCreateDoc(docID)

	var (
		errCode   string
		errExtra  map[string]interface{}
		appliedAt int
		result    patch.Result
	)

	doc.Mu.Lock()
	if base != doc.Version {
		errCode = protocol.CodeOutOfDate
		errExtra = map[string]interface{}{"docId": doc.ID, "serverVersion": doc.Version}
	} else {
		result = patch.Apply(doc.Content, msg)
		if !result.OK {
			errCode = result.Code
			errExtra = map[string]interface{}{}
		} else {
			doc.Content = result.Content
			doc.Version++
			appliedAt = doc.Version

			if err := h.store.AppendOplog(doc.ID, doc.Version, result.Patch, s.ID); err != nil {
				logger.Error("oplog append failed for %s v%d: %v", doc.ID, doc.Version, err)
				errCode = protocol.CodeServerError
				errExtra = map[string]interface{}{"hint": "oplog append failed"}
			} else if doc.Version%h.cfg.SnapshotInterval == 0 {
				if err := h.store.SaveSnapshot(doc.ID, doc.Version, doc.Content); err != nil {
					logger.Error("snapshot write failed for %s v%d: %v", doc.ID, doc.Version, err)
				}
			}
		}
	}
	doc.Mu.Unlock()

	if h.registry != nil && errCode == "" {
		if err := h.registry.Touch(docID, appliedAt, time.Now()); err != nil {
			logger.Error("registry touch failed for %s: %v", docID, err)
		}
	}

	if errCode != "" {
		h.sendError(s, errCode, flattenExtra(errExtra)...)
		return
	}

	h.safeSend(s, protocol.Applied(docID, appliedAt, result.Patch, s.ID))
	h.broadcast(doc, protocol.Broadcast(docID, appliedAt, result.Patch, s.ID), s.ID)
}

// coerceBase mirrors the Python original's fallback: a base that fails
// integer coercion becomes -1, a sentinel that can never equal a valid
// non-negative version, so the comparison deterministically fails into
// OUT_OF_DATE instead of a separate validation error (spec §9).
func coerceBase(v interface{}) int {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return -1
		}
		return int(n)
	default:
		return -1
	}
}

func flattenExtra(m map[string]interface{}) []interface{} {
	out := make([]interface{}, 0, len(m)*2)
	for k, v := range m {
		out = append(out, k, v)
	}
	return out
}
