package docstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shiv248/textsync/internal/protocol"
)

func textPatch(pos int, text string) protocol.Patch {
	return protocol.Patch{Type: protocol.OpInsert, Pos: pos, Text: &text}
}

func TestRecoveryFromSnapshotAndOplog(t *testing.T) {
	dir := t.TempDir()
	store := New(dir+"/snap", dir+"/oplog")
	require.NoError(t, store.EnsureDirs())

	require.NoError(t, store.AppendOplog("main", 1, textPatch(0, "h"), "S-a"))
	require.NoError(t, store.AppendOplog("main", 2, textPatch(1, "i"), "S-a"))
	require.NoError(t, store.SaveSnapshot("main", 2, "hi"))
	require.NoError(t, store.AppendOplog("main", 3, textPatch(2, "!"), "S-a"))
	require.NoError(t, store.AppendOplog("main", 4, textPatch(3, "!"), "S-a"))

	content, version := store.LoadDocContent("main", nil)
	require.Equal(t, 4, version)
	require.Equal(t, "hi!!", content)
}

func TestRecoverySkipsEntriesCoveredBySnapshot(t *testing.T) {
	dir := t.TempDir()
	store := New(dir+"/snap", dir+"/oplog")
	require.NoError(t, store.EnsureDirs())

	for i, ch := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.AppendOplog("doc", i+1, textPatch(i, ch), "S-x"))
	}
	require.NoError(t, store.SaveSnapshot("doc", 4, "abcd"))

	// Restart: snapshot already at v4, all 4 log entries have version <= 4
	// and must be skipped, not reapplied (spec scenario 6).
	content, version := store.LoadDocContent("doc", nil)
	require.Equal(t, 4, version)
	require.Equal(t, "abcd", content)
}

func TestRecoveryStopsOnBadPatchButKeepsPrefix(t *testing.T) {
	dir := t.TempDir()
	store := New(dir+"/snap", dir+"/oplog")
	require.NoError(t, store.EnsureDirs())

	require.NoError(t, store.AppendOplog("doc", 1, textPatch(0, "a"), "S-x"))
	badLen := 99
	require.NoError(t, store.AppendOplog("doc", 2, protocol.Patch{Type: protocol.OpDelete, Pos: 0, Len: &badLen}, "S-x"))
	require.NoError(t, store.AppendOplog("doc", 3, textPatch(1, "b"), "S-x"))

	content, version := store.LoadDocContent("doc", nil)
	require.Equal(t, 1, version)
	require.Equal(t, "a", content)
}

func TestRecoveryEmptyDocument(t *testing.T) {
	dir := t.TempDir()
	store := New(dir+"/snap", dir+"/oplog")
	require.NoError(t, store.EnsureDirs())

	content, version := store.LoadDocContent("never-seen", nil)
	require.Equal(t, 0, version)
	require.Equal(t, "", content)
}

func TestReplayFromOlderSnapshotIsIdempotentWithNewer(t *testing.T) {
	dir := t.TempDir()
	store := New(dir+"/snap", dir+"/oplog")
	require.NoError(t, store.EnsureDirs())

	for i, ch := range []string{"a", "b", "c"} {
		require.NoError(t, store.AppendOplog("doc", i+1, textPatch(i, ch), "S-x"))
	}
	// No snapshot at all: full replay from oplog.
	content, version := store.LoadDocContent("doc", nil)
	require.Equal(t, 3, version)
	require.Equal(t, "abc", content)

	// Now snapshot at v2 and replay again: result must match.
	require.NoError(t, store.SaveSnapshot("doc", 2, "ab"))
	content2, version2 := store.LoadDocContent("doc", nil)
	require.Equal(t, version, version2)
	require.Equal(t, content, content2)
}
