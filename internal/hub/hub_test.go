package hub

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shiv248/textsync/internal/docstore"
	"github.com/shiv248/textsync/internal/protocol"
	"github.com/shiv248/textsync/internal/registry"
)

// fakeConn is a minimal net.Conn backed by a buffer, letting tests inspect
// every line a session tried to send without a real socket.
type fakeConn struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (c *fakeConn) Read(b []byte) (int, error)  { return 0, net.ErrClosed }
func (c *fakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	return c.buf.Write(b)
}
func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
func (c *fakeConn) LocalAddr() net.Addr                { return fakeAddr{} }
func (c *fakeConn) RemoteAddr() net.Addr               { return fakeAddr{} }
func (c *fakeConn) SetDeadline(time.Time) error        { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error    { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error   { return nil }

type fakeAddr struct{}

func (fakeAddr) Network() string { return "fake" }
func (fakeAddr) String() string  { return "fake" }

// messages decodes every newline-delimited JSON object written so far.
func (c *fakeConn) messages(t *testing.T) []map[string]interface{} {
	t.Helper()
	c.mu.Lock()
	data := append([]byte(nil), c.buf.Bytes()...)
	c.mu.Unlock()

	var out []map[string]interface{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) last(t *testing.T) map[string]interface{} {
	t.Helper()
	msgs := c.messages(t)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	dir := t.TempDir()
	store := docstore.New(dir+"/snapshots", dir+"/oplogs")
	require.NoError(t, store.EnsureDirs())
	return New(store, nil, Config{SnapshotInterval: 50})
}

func TestHandleHelloSendsWelcome(t *testing.T) {
	h := newTestHub(t)
	conn := &fakeConn{}
	s := h.NewSession(conn)

	h.RouteMessage(s, map[string]interface{}{"op": "HELLO", "name": "alice"})

	msg := conn.last(t)
	require.Equal(t, protocol.EvWelcome, msg["ev"])
	require.Equal(t, s.ID, msg["sessionId"])
	require.Equal(t, "alice", s.Name)
	require.True(t, s.HelloReceived)
}

func TestSubscribeBeforeHelloIsNotReady(t *testing.T) {
	h := newTestHub(t)
	conn := &fakeConn{}
	s := h.NewSession(conn)

	h.RouteMessage(s, map[string]interface{}{"op": "SUBSCRIBE", "docId": "doc1"})

	msg := conn.last(t)
	require.Equal(t, protocol.EvError, msg["ev"])
	require.Equal(t, protocol.CodeNotReady, msg["code"])
}

func TestSubscribeReturnsSnapshotOfEmptyNewDoc(t *testing.T) {
	h := newTestHub(t)
	conn := &fakeConn{}
	s := h.NewSession(conn)
	h.RouteMessage(s, map[string]interface{}{"op": "HELLO"})
	h.RouteMessage(s, map[string]interface{}{"op": "SUBSCRIBE", "docId": "doc1"})

	msg := conn.last(t)
	require.Equal(t, protocol.EvDocSnapshot, msg["ev"])
	require.Equal(t, "doc1", msg["docId"])
	require.Equal(t, float64(0), msg["version"])
	require.Equal(t, "", msg["content"])
}

func TestEditPipelineAppliesAndReturnsApplied(t *testing.T) {
	h := newTestHub(t)
	conn := &fakeConn{}
	s := h.NewSession(conn)
	h.RouteMessage(s, map[string]interface{}{"op": "HELLO"})
	h.RouteMessage(s, map[string]interface{}{"op": "SUBSCRIBE", "docId": "doc1"})

	h.RouteMessage(s, map[string]interface{}{
		"op": "INSERT", "docId": "doc1", "base": float64(0),
		"pos": float64(0), "text": "hello",
	})

	msg := conn.last(t)
	require.Equal(t, protocol.EvApplied, msg["ev"])
	require.Equal(t, float64(1), msg["version"])

	doc := h.getDocIfLoaded("doc1")
	require.NotNil(t, doc)
	require.Equal(t, "hello", doc.Content)
	require.Equal(t, 1, doc.Version)
}

func TestEditPipelineRejectsStaleBaseAsOutOfDate(t *testing.T) {
	h := newTestHub(t)
	conn := &fakeConn{}
	s := h.NewSession(conn)
	h.RouteMessage(s, map[string]interface{}{"op": "HELLO"})
	h.RouteMessage(s, map[string]interface{}{"op": "SUBSCRIBE", "docId": "doc1"})

	h.RouteMessage(s, map[string]interface{}{
		"op": "INSERT", "docId": "doc1", "base": float64(5),
		"pos": float64(0), "text": "hello",
	})

	msg := conn.last(t)
	require.Equal(t, protocol.EvError, msg["ev"])
	require.Equal(t, protocol.CodeOutOfDate, msg["code"])
	require.Equal(t, float64(0), msg["serverVersion"])
}

func TestEditPipelineRejectsInvalidRange(t *testing.T) {
	h := newTestHub(t)
	conn := &fakeConn{}
	s := h.NewSession(conn)
	h.RouteMessage(s, map[string]interface{}{"op": "HELLO"})
	h.RouteMessage(s, map[string]interface{}{"op": "SUBSCRIBE", "docId": "doc1"})

	h.RouteMessage(s, map[string]interface{}{
		"op": "INSERT", "docId": "doc1", "base": float64(0),
		"pos": float64(99), "text": "hello",
	})

	msg := conn.last(t)
	require.Equal(t, protocol.EvError, msg["ev"])
	require.Equal(t, protocol.CodeInvalidRange, msg["code"])

	doc := h.getDocIfLoaded("doc1")
	require.Equal(t, 0, doc.Version)
}

func TestBroadcastReachesOtherSubscribersNotAuthor(t *testing.T) {
	h := newTestHub(t)

	authorConn := &fakeConn{}
	author := h.NewSession(authorConn)
	h.RouteMessage(author, map[string]interface{}{"op": "HELLO", "name": "author"})
	h.RouteMessage(author, map[string]interface{}{"op": "SUBSCRIBE", "docId": "doc1"})

	watcherConn := &fakeConn{}
	watcher := h.NewSession(watcherConn)
	h.RouteMessage(watcher, map[string]interface{}{"op": "HELLO", "name": "watcher"})
	h.RouteMessage(watcher, map[string]interface{}{"op": "SUBSCRIBE", "docId": "doc1"})

	h.RouteMessage(author, map[string]interface{}{
		"op": "INSERT", "docId": "doc1", "base": float64(0),
		"pos": float64(0), "text": "hi",
	})

	authorLast := authorConn.last(t)
	require.Equal(t, protocol.EvApplied, authorLast["ev"])

	watcherLast := watcherConn.last(t)
	require.Equal(t, protocol.EvBroadcast, watcherLast["ev"])
	require.Equal(t, float64(1), watcherLast["version"])
}

func TestSubscribeOrderingGuaranteesNoDuplicateBroadcast(t *testing.T) {
	h := newTestHub(t)

	authorConn := &fakeConn{}
	author := h.NewSession(authorConn)
	h.RouteMessage(author, map[string]interface{}{"op": "HELLO"})
	h.RouteMessage(author, map[string]interface{}{"op": "SUBSCRIBE", "docId": "doc1"})
	h.RouteMessage(author, map[string]interface{}{
		"op": "INSERT", "docId": "doc1", "base": float64(0),
		"pos": float64(0), "text": "v1",
	})

	// A second subscriber joins after the edit: its snapshot already
	// contains v1, so it must never also receive a BROADCAST for v1.
	lateConn := &fakeConn{}
	late := h.NewSession(lateConn)
	h.RouteMessage(late, map[string]interface{}{"op": "HELLO"})
	h.RouteMessage(late, map[string]interface{}{"op": "SUBSCRIBE", "docId": "doc1"})

	msgs := lateConn.messages(t)
	require.Len(t, msgs, 2) // WELCOME, DOC_SNAPSHOT only
	snap := msgs[1]
	require.Equal(t, protocol.EvDocSnapshot, snap["ev"])
	require.Equal(t, float64(1), snap["version"])
	require.Equal(t, "v1", snap["content"])
}

func TestPingReturnsPong(t *testing.T) {
	h := newTestHub(t)
	conn := &fakeConn{}
	s := h.NewSession(conn)
	h.RouteMessage(s, map[string]interface{}{"op": "PING"})

	msg := conn.last(t)
	require.Equal(t, protocol.EvPong, msg["ev"])
}

func TestUnknownOpReturnsError(t *testing.T) {
	h := newTestHub(t)
	conn := &fakeConn{}
	s := h.NewSession(conn)
	h.RouteMessage(s, map[string]interface{}{"op": "FLY_TO_MOON"})

	msg := conn.last(t)
	require.Equal(t, protocol.EvError, msg["ev"])
	require.Equal(t, protocol.CodeUnknownOp, msg["code"])
}

func TestStatsReportsLoadedDocumentCount(t *testing.T) {
	h := newTestHub(t)
	conn := &fakeConn{}
	s := h.NewSession(conn)
	h.RouteMessage(s, map[string]interface{}{"op": "HELLO"})
	h.RouteMessage(s, map[string]interface{}{"op": "SUBSCRIBE", "docId": "doc1"})
	h.RouteMessage(s, map[string]interface{}{"op": "SUBSCRIBE", "docId": "doc2"})

	h.RouteMessage(s, map[string]interface{}{"op": "STATS"})

	msg := conn.last(t)
	require.Equal(t, protocol.EvStats, msg["ev"])
	require.Equal(t, float64(2), msg["numDocuments"])
	require.Equal(t, float64(0), msg["registrySize"])
}

func TestWatchdogEvictsDeadSession(t *testing.T) {
	h := newTestHub(t)
	conn := &fakeConn{}
	s := h.NewSession(conn)
	s.Close()

	h.sweepStaleSessions()

	require.Nil(t, h.getSession(s.ID))
}

func TestWatchdogEvictsIdleSessionPastHeartbeatTimeout(t *testing.T) {
	h := newTestHub(t)
	h.cfg.HeartbeatTimeout = 10 * time.Millisecond

	conn := &fakeConn{}
	s := h.NewSession(conn)
	time.Sleep(20 * time.Millisecond)

	h.sweepStaleSessions()

	require.Nil(t, h.getSession(s.ID))
}

func TestIdleSweepEvictsOnlyUnsubscribedDocuments(t *testing.T) {
	dir := t.TempDir()
	store := docstore.New(dir+"/snapshots", dir+"/oplogs")
	require.NoError(t, store.EnsureDirs())

	reg, err := registry.Open(dir + "/registry.db")
	require.NoError(t, err)
	defer reg.Close()

	h := New(store, reg, Config{SnapshotInterval: 50})

	conn := &fakeConn{}
	s := h.NewSession(conn)
	h.RouteMessage(s, map[string]interface{}{"op": "HELLO"})
	h.RouteMessage(s, map[string]interface{}{"op": "SUBSCRIBE", "docId": "subscribed"})
	h.RouteMessage(s, map[string]interface{}{"op": "GET_SNAPSHOT", "docId": "unsubscribed"})

	h.sweepIdleDocs(-time.Hour) // cutoff in the future: everything looks idle

	require.NotNil(t, h.getDocIfLoaded("subscribed"))
	require.Nil(t, h.getDocIfLoaded("unsubscribed"))
}
