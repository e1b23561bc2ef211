package protocol

// Client-to-server operation names (the `op` field).
const (
	OpHello       = "HELLO"
	OpSubscribe   = "SUBSCRIBE"
	OpGetSnapshot = "GET_SNAPSHOT"
	OpInsert      = "INSERT"
	OpDelete      = "DELETE"
	OpReplace     = "REPLACE"
	OpPing        = "PING"
	OpStats       = "STATS"
)

// EditOps is the set of operations that flow through the edit pipeline.
var EditOps = map[string]bool{
	OpInsert:  true,
	OpDelete:  true,
	OpReplace: true,
}

// Server-to-client event names (the `ev` field).
const (
	EvWelcome     = "WELCOME"
	EvDocSnapshot = "DOC_SNAPSHOT"
	EvApplied     = "APPLIED"
	EvBroadcast   = "BROADCAST"
	EvError       = "ERROR"
	EvPong        = "PONG"
	EvStats       = "STATS"
)

// Error codes carried in ERROR events. See spec §6/§7.
const (
	CodeInvalidOp      = "INVALID_OP"
	CodeUnknownOp      = "UNKNOWN_OP"
	CodeInvalidDoc     = "INVALID_DOC"
	CodeInvalidRange   = "INVALID_RANGE"
	CodeInvalidPayload = "INVALID_PAYLOAD"
	CodeNotReady       = "NOT_READY"
	CodeOutOfDate      = "OUT_OF_DATE"
	CodeBadJSON        = "BAD_JSON"
	CodeServerError    = "SERVER_ERROR"
)

// Patch is the canonical wire/persisted form of one edit. Only the fields
// relevant to Type are populated: Text for INSERT/REPLACE, Len for
// DELETE/REPLACE.
type Patch struct {
	Type string  `json:"type"`
	Pos  int     `json:"pos"`
	Text *string `json:"text,omitempty"`
	Len  *int    `json:"len,omitempty"`
}

// OplogEntry is one line of a document's append-only operation log.
type OplogEntry struct {
	DocID   string `json:"docId"`
	Version int    `json:"version"`
	Patch   Patch  `json:"patch"`
	By      string `json:"by"`
	TS      float64 `json:"ts"`
}

// SnapshotFile is the on-disk snapshot payload for a document.
type SnapshotFile struct {
	DocID   string `json:"docId"`
	Version int    `json:"version"`
	Content string `json:"content"`
}

// Welcome is sent once per session after HELLO.
func Welcome(sessionID string, serverVersion int) map[string]interface{} {
	return map[string]interface{}{
		"ev":            EvWelcome,
		"sessionId":     sessionID,
		"serverVersion": serverVersion,
	}
}

// DocSnapshot is sent in response to SUBSCRIBE and GET_SNAPSHOT.
func DocSnapshot(docID string, version int, content string) map[string]interface{} {
	return map[string]interface{}{
		"ev":      EvDocSnapshot,
		"docId":   docID,
		"version": version,
		"content": content,
	}
}

// Applied is sent to the author of a successful edit.
func Applied(docID string, version int, patch Patch, by string) map[string]interface{} {
	return map[string]interface{}{
		"ev":      EvApplied,
		"docId":   docID,
		"version": version,
		"patch":   patch,
		"by":      by,
	}
}

// Broadcast is sent to every other subscriber of a document after a
// successful edit.
func Broadcast(docID string, version int, patch Patch, by string) map[string]interface{} {
	return map[string]interface{}{
		"ev":      EvBroadcast,
		"docId":   docID,
		"version": version,
		"patch":   patch,
		"by":      by,
	}
}

// Error builds an ERROR event, merging extra fields (e.g. docId,
// serverVersion, hint) into the payload.
func Error(code string, extra map[string]interface{}) map[string]interface{} {
	payload := map[string]interface{}{
		"ev":   EvError,
		"code": code,
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}

// Pong is sent in response to PING.
func Pong() map[string]interface{} {
	return map[string]interface{}{"ev": EvPong}
}

// Stats is sent in response to STATS (SPEC_FULL EXPANSION C.2).
func Stats(startTime int64, numDocuments, registrySize int) map[string]interface{} {
	return map[string]interface{}{
		"ev":           EvStats,
		"startTime":    startTime,
		"numDocuments": numDocuments,
		"registrySize": registrySize,
	}
}
