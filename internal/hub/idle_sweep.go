package hub

import (
	"context"
	"time"

	"github.com/shiv248/textsync/pkg/logger"
)

// StartIdleSweeper is a supplemental feature adapted from kolabpad's
// document-expiry pass (not in the base wire protocol): every interval, it evicts in-memory documents that have no
// active subscribers and whose registry lastAccessed is older than
// maxIdle. Eviction only drops the in-memory DocState; the snapshot and
// oplog on disk are untouched, so the next SUBSCRIBE/GET_SNAPSHOT simply
// reloads it via recovery. A nil registry or non-positive maxIdle disables
// the sweep entirely.
//
// Call with a context the caller cancels at shutdown; unlike the
// watchdog, the sweeper has no Hub-owned stop channel.
func (h *Hub) StartIdleSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	if h.registry == nil || maxIdle <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.sweepIdleDocs(maxIdle)
			}
		}
	}()
}

func (h *Hub) sweepIdleDocs(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)
	idleIDs, err := h.registry.IdleSince(cutoff)
	if err != nil {
		logger.Error("idle sweep: registry query failed: %v", err)
		return
	}

	for _, docID := range idleIDs {
		h.evictIfUnsubscribed(docID)
	}
}

func (h *Hub) evictIfUnsubscribed(docID string) {
	h.docsMu.Lock()
	defer h.docsMu.Unlock()

	doc, ok := h.docs[docID]
	if !ok {
		return
	}

	doc.Mu.Lock()
	subscribers := len(doc.SubscriberSnapshot())
	doc.Mu.Unlock()

	if subscribers > 0 {
		return
	}

	delete(h.docs, docID)
	logger.Info("idle document evicted: %s", docID)
}
