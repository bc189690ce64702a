package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/heapkit/heapkit/heap"
	"github.com/heapkit/heapkit/heap/alloc"
	"github.com/heapkit/heapkit/internal/format"
)

// writeCleanImage builds a single-region dump image with a few live
// allocations and one free hole, and writes it under dir.
func writeCleanImage(t *testing.T, dir string) string {
	t.Helper()
	a, err := alloc.Format(make([]byte, 512), 0x10000000, format.Layout{})
	if err != nil {
		t.Fatalf("format region: %v", err)
	}
	n1, err := a.Alloc(24)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if _, err := a.Alloc(40); err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if err := a.Free(n1); err != nil {
		t.Fatalf("free: %v", err)
	}
	return writeImageFile(t, dir, a.Region(nil))
}

// writeCorruptImage builds a single-region image whose first allocation's
// size word has been overwritten, breaking the tag chain.
func writeCorruptImage(t *testing.T, dir string) string {
	t.Helper()
	a, err := alloc.Format(make([]byte, 512), 0x10000000, format.Layout{})
	if err != nil {
		t.Fatalf("format region: %v", err)
	}
	if _, err := a.Alloc(24); err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if _, err := a.Alloc(24); err != nil {
		t.Fatalf("alloc: %v", err)
	}
	region := a.Region(nil)
	// First allocation sits at offset 8; stomp its size word.
	binary.LittleEndian.PutUint32(region.Data[8:], 48)
	return writeImageFile(t, dir, region)
}

func writeImageFile(t *testing.T, dir string, regions ...heap.Region) string {
	t.Helper()
	f, err := os.CreateTemp(dir, "heap-*.img")
	if err != nil {
		t.Fatalf("create image: %v", err)
	}
	path := f.Name()
	f.Close()
	if err := os.WriteFile(path, heap.EncodeImage(false, regions), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

// writeNameTable writes a raw task name table: 4-byte id then a NUL-padded
// name field of the given width.
func writeNameTable(t *testing.T, dir string, width int, names map[uint32]string) string {
	t.Helper()
	var raw []byte
	for id, name := range names {
		entry := make([]byte, 4+width)
		binary.LittleEndian.PutUint32(entry, id)
		copy(entry[4:], name)
		raw = append(raw, entry...)
	}
	path := filepath.Join(dir, "tasks.tbl")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write name table: %v", err)
	}
	return path
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	return buf.String(), fnErr
}

// resetFlags restores the package-level flag state after a test.
func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		verbose = false
		quiet = false
		jsonOut = false
		checkNamesFile = ""
		checkNameWidth = 32
	})
}
