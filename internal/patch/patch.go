// Package patch implements the pure edit-validation and application logic
// described in spec §4.2. Functions here never touch shared state; DocState
// mutation and persistence live in internal/docstate and internal/docstore.
//
// Positions and lengths are measured in UTF-16 code units (Open Question
// decision, see DESIGN.md) so that a Go string content and a JS/Electron
// client agree on offsets end-to-end.
package patch

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/shiv248/textsync/internal/protocol"
)

// Result is the outcome of validating and applying one edit message.
type Result struct {
	OK      bool
	Content string
	Patch   protocol.Patch
	Code    string
}

// Apply validates an edit message against content and, on success, returns
// the new content and the canonical patch descriptor. message is the raw
// decoded JSON record (already routed to one of INSERT/DELETE/REPLACE by the
// caller, but op is re-validated here so Apply stays a complete, pure
// contract on its own).
func Apply(content string, message map[string]interface{}) Result {
	op := strings.ToUpper(asString(message["op"]))
	if !protocol.EditOps[op] {
		return Result{Code: protocol.CodeInvalidOp}
	}

	units := utf16.Encode([]rune(content))

	pos, ok := coerceIntDefault(message["pos"], 0)
	if !ok || pos < 0 || pos > len(units) {
		return Result{Code: protocol.CodeInvalidRange}
	}

	switch op {
	case protocol.OpInsert:
		text, ok := textOrDefault(message)
		if !ok {
			return Result{Code: protocol.CodeInvalidPayload}
		}
		newUnits := spliceInsert(units, pos, text)
		return Result{
			OK:      true,
			Content: decode(newUnits),
			Patch:   protocol.Patch{Type: protocol.OpInsert, Pos: pos, Text: &text},
		}

	case protocol.OpDelete:
		length, ok := coerceLength(message["len"])
		if !ok {
			return Result{Code: protocol.CodeInvalidRange}
		}
		if pos+length > len(units) {
			return Result{Code: protocol.CodeInvalidRange}
		}
		newUnits := spliceDelete(units, pos, length)
		l := length
		return Result{
			OK:      true,
			Content: decode(newUnits),
			Patch:   protocol.Patch{Type: protocol.OpDelete, Pos: pos, Len: &l},
		}

	case protocol.OpReplace:
		length, ok := coerceLength(message["len"])
		if !ok {
			return Result{Code: protocol.CodeInvalidRange}
		}
		text, ok := textOrDefault(message)
		if !ok {
			return Result{Code: protocol.CodeInvalidPayload}
		}
		if pos+length > len(units) {
			return Result{Code: protocol.CodeInvalidRange}
		}
		newUnits := spliceReplace(units, pos, length, text)
		l := length
		return Result{
			OK:      true,
			Content: decode(newUnits),
			Patch:   protocol.Patch{Type: protocol.OpReplace, Pos: pos, Len: &l, Text: &text},
		}
	}

	return Result{Code: protocol.CodeInvalidOp}
}

// ApplyPatch re-applies an already-validated patch descriptor, as read back
// from the oplog during recovery (spec §4.4, §4.2 "re-apply form"). It
// returns an error rather than a code because recovery treats any failure
// the same way: stop replay at the last good version.
func ApplyPatch(content string, p protocol.Patch) (string, error) {
	units := utf16.Encode([]rune(content))

	ptype := strings.ToUpper(p.Type)
	if p.Pos < 0 || p.Pos > len(units) {
		return content, errPatchRange("position out of range")
	}

	switch ptype {
	case protocol.OpInsert:
		if p.Text == nil {
			return content, errPatchRange("insert missing text")
		}
		return decode(spliceInsert(units, p.Pos, *p.Text)), nil

	case protocol.OpDelete:
		if p.Len == nil || *p.Len < 0 {
			return content, errPatchRange("delete missing length")
		}
		if p.Pos+*p.Len > len(units) {
			return content, errPatchRange("delete length overflow")
		}
		return decode(spliceDelete(units, p.Pos, *p.Len)), nil

	case protocol.OpReplace:
		if p.Len == nil || *p.Len < 0 {
			return content, errPatchRange("replace missing length")
		}
		if p.Text == nil {
			return content, errPatchRange("replace missing text")
		}
		if p.Pos+*p.Len > len(units) {
			return content, errPatchRange("replace length overflow")
		}
		return decode(spliceReplace(units, p.Pos, *p.Len, *p.Text)), nil
	}

	return content, errPatchRange("unsupported patch type: " + p.Type)
}

func spliceInsert(units []uint16, pos int, text string) []uint16 {
	ins := utf16.Encode([]rune(text))
	out := make([]uint16, 0, len(units)+len(ins))
	out = append(out, units[:pos]...)
	out = append(out, ins...)
	out = append(out, units[pos:]...)
	return out
}

func spliceDelete(units []uint16, pos, length int) []uint16 {
	out := make([]uint16, 0, len(units)-length)
	out = append(out, units[:pos]...)
	out = append(out, units[pos+length:]...)
	return out
}

func spliceReplace(units []uint16, pos, length int, text string) []uint16 {
	ins := utf16.Encode([]rune(text))
	out := make([]uint16, 0, len(units)-length+len(ins))
	out = append(out, units[:pos]...)
	out = append(out, ins...)
	out = append(out, units[pos+length:]...)
	return out
}

func decode(units []uint16) string {
	return string(utf16.Decode(units))
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// textOrDefault mirrors message.get("text", "") in the Python original:
// a missing key defaults to "", a present non-string key is invalid payload.
func textOrDefault(message map[string]interface{}) (string, bool) {
	v, exists := message["text"]
	if !exists {
		return "", true
	}
	s, ok := v.(string)
	return s, ok
}

// coerceIntDefault mirrors int(message.get(key, def)): a missing key takes
// the default, a present key must coerce to an integer.
func coerceIntDefault(v interface{}, def int) (int, bool) {
	if v == nil {
		return def, true
	}
	return coerceInt(v)
}

// coerceLength mirrors _coerce_length: missing or negative is a failure.
func coerceLength(v interface{}) (int, bool) {
	if v == nil {
		return 0, false
	}
	n, ok := coerceInt(v)
	if !ok || n < 0 {
		return 0, false
	}
	return n, true
}

func coerceInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		if math.Trunc(n) != n {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

type patchRangeError string

func (e patchRangeError) Error() string { return string(e) }

func errPatchRange(msg string) error { return patchRangeError(msg) }
