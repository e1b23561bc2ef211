// Package docstate holds the in-memory authoritative state for one
// document: content, monotonic version, and the subscriber set. See
// spec §3, §4.3.
package docstate

import "sync"

// DocState is the mutable state of a single document. All mutation of
// Content, Version, and Subscribers must happen with Mu held; that
// invariant is enforced by callers (internal/hub), not by this type, to
// keep the edit pipeline's lock scope (validate+mutate+log-append) a
// single critical section per spec §5.
type DocState struct {
	Mu sync.Mutex

	ID          string
	Content     string
	Version     int
	Subscribers map[string]struct{}
}

// New creates a DocState seeded from recovered (content, version).
func New(id, content string, version int) *DocState {
	return &DocState{
		ID:          id,
		Content:     content,
		Version:     version,
		Subscribers: make(map[string]struct{}),
	}
}

// SnapshotPayload returns docId, version, and content as a single
// consistent triple. Callers must hold Mu, or call it via WithLock, so the
// (version, content) pair can never be observed torn (spec §4.3).
func (d *DocState) SnapshotPayload() (docID string, version int, content string) {
	return d.ID, d.Version, d.Content
}

// WithLock runs fn with Mu held and returns its result. It exists so call
// sites that only need a snapshot don't duplicate the lock/unlock pair.
func (d *DocState) WithLock(fn func()) {
	d.Mu.Lock()
	defer d.Mu.Unlock()
	fn()
}

// AddSubscriber adds sid to the subscriber set. Caller must hold Mu.
func (d *DocState) AddSubscriber(sid string) {
	d.Subscribers[sid] = struct{}{}
}

// RemoveSubscriber removes sid from the subscriber set. Caller must hold Mu.
func (d *DocState) RemoveSubscriber(sid string) {
	delete(d.Subscribers, sid)
}

// SubscriberSnapshot returns a copy of the current subscriber IDs. Caller
// must hold Mu; the copy is what lets broadcast release the lock before
// doing per-subscriber I/O (spec §4.6, §5).
func (d *DocState) SubscriberSnapshot() []string {
	ids := make([]string, 0, len(d.Subscribers))
	for id := range d.Subscribers {
		ids = append(ids, id)
	}
	return ids
}
