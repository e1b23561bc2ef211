// Package protocol implements the newline-delimited JSON wire protocol
// between a textsync client and server.
package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// MaxMessageBytes is the largest buffered message the framer will accept
// before a session is considered misbehaving.
const MaxMessageBytes = 1_000_000

// ErrOversize is returned when the internal buffer (the unterminated tail
// plus the newly fed chunk) grows past MaxMessageBytes.
var ErrOversize = errors.New("protocol: message exceeds max size")

// ErrBadJSON is returned when a framed line fails to parse as a JSON object.
var ErrBadJSON = errors.New("protocol: malformed json line")

// Framer splits a byte stream into newline-terminated JSON records and
// enforces MaxMessageBytes. It is not safe for concurrent use; a single
// connection driver owns one Framer for the lifetime of its session.
type Framer struct {
	buf      bytes.Buffer
	maxBytes int
}

// NewFramer creates a Framer with the default MaxMessageBytes limit.
func NewFramer() *Framer {
	return &Framer{maxBytes: MaxMessageBytes}
}

// NewFramerSize creates a Framer with a custom maximum buffered size, mainly
// for tests that want to exercise the overflow path without a 1MB payload.
func NewFramerSize(maxBytes int) *Framer {
	return &Framer{maxBytes: maxBytes}
}

// Feed appends chunk to the internal buffer and returns every complete
// record (a JSON object) terminated by a newline found since the last call.
// The unterminated tail, if any, remains buffered for the next Feed call.
//
// Feed returns ErrOversize if, after appending chunk, the buffer is larger
// than the configured limit (checked before any line is split off, so no
// records are returned in that case), and ErrBadJSON if a line fails to
// parse as a JSON object. In both cases the caller must terminate the session.
func (f *Framer) Feed(chunk []byte) ([]map[string]interface{}, error) {
	if len(chunk) == 0 {
		return nil, nil
	}
	f.buf.Write(chunk)
	if f.buf.Len() > f.maxBytes {
		return nil, ErrOversize
	}

	var records []map[string]interface{}
	for {
		data := f.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx == -1 {
			break
		}

		line := bytes.TrimSpace(data[:idx])
		f.buf.Next(idx + 1)

		if len(line) == 0 {
			continue
		}

		var record map[string]interface{}
		if err := json.Unmarshal(line, &record); err != nil {
			return records, errors.Wrap(ErrBadJSON, err.Error())
		}
		records = append(records, record)
	}
	return records, nil
}

// Reset clears any buffered partial record.
func (f *Framer) Reset() {
	f.buf.Reset()
}

// EncodeLine serializes payload as compact JSON followed by a newline, the
// wire form every server->client event takes (spec §6).
func EncodeLine(payload map[string]interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
