// Package taskreg resolves task identifiers to display names for extended
// ownership diagnostics. A registry answers "what is task N called", or
// reports that the task no longer exists.
package taskreg

import (
	"fmt"

	"golang.org/x/text/encoding/charmap"

	"github.com/heapkit/heapkit/internal/buf"
)

// Registry maps a task identifier to a display name. The second return is
// false when no task with that identifier exists (e.g. it has exited).
type Registry interface {
	Lookup(id uint32) (string, bool)
}

// Static is a map-backed registry, used by tests and by callers that
// already hold a task table in decoded form.
type Static map[uint32]string

// Lookup implements Registry.
func (s Static) Lookup(id uint32) (string, bool) {
	name, ok := s[id]
	return name, ok
}

// Table is a registry decoded from a raw fixed-width name table, the form
// task names take in a memory dump: each entry is a 4-byte task id followed
// by a NUL-padded Latin-1 name field of fixed width.
type Table struct {
	names map[uint32]string
}

// entryHeaderSize is the task-id prefix of each table entry.
const entryHeaderSize = 4

// ParseTable decodes a raw name table. nameWidth is the fixed byte width of
// each name field and must be positive; data must be an exact multiple of
// the entry size.
func ParseTable(data []byte, nameWidth int) (*Table, error) {
	if nameWidth <= 0 {
		return nil, fmt.Errorf("taskreg: invalid name width %d", nameWidth)
	}
	entrySize := entryHeaderSize + nameWidth
	if len(data)%entrySize != 0 {
		return nil, fmt.Errorf("taskreg: table length %d not a multiple of entry size %d", len(data), entrySize)
	}

	dec := charmap.ISO8859_1.NewDecoder()
	t := &Table{names: make(map[uint32]string, len(data)/entrySize)}
	for off := 0; off < len(data); off += entrySize {
		id, _ := buf.U32LEAt(data, off)
		raw := data[off+entryHeaderSize : off+entrySize]
		raw = trimNUL(raw)
		name, err := dec.Bytes(raw)
		if err != nil {
			return nil, fmt.Errorf("taskreg: decode name for task %d: %w", id, err)
		}
		t.names[id] = string(name)
	}
	return t, nil
}

// Lookup implements Registry.
func (t *Table) Lookup(id uint32) (string, bool) {
	name, ok := t.names[id]
	return name, ok
}

// Len returns the number of entries in the table.
func (t *Table) Len() int {
	return len(t.names)
}

func trimNUL(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

// Clamp bounds a display name to max bytes. Non-positive max means no
// bound.
func Clamp(name string, max int) string {
	if max <= 0 || len(name) <= max {
		return name
	}
	return name[:max]
}
