package hub

import "github.com/shiv248/textsync/internal/docstate"

// broadcast snapshots doc's subscriber set under its mutex, then iterates
// outside the lock so I/O never blocks other edits to the same document
// (spec §4.6 "Broadcast", §5). exclude is the author's session ID, which
// already received an APPLIED event and must not also get a BROADCAST.
func (h *Hub) broadcast(doc *docstate.DocState, payload map[string]interface{}, exclude string) {
	doc.Mu.Lock()
	targets := doc.SubscriberSnapshot()
	doc.Mu.Unlock()

	for _, sid := range targets {
		if sid == exclude {
			continue
		}
		s := h.getSession(sid)
		if s == nil {
			doc.Mu.Lock()
			doc.RemoveSubscriber(sid)
			doc.Mu.Unlock()
			continue
		}
		h.safeSend(s, payload)
	}
}
