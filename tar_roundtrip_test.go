// SPDX-License-Identifier: MIT
// Copyright (c) 2026 streambox authors

package streambox

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/woozymasta/pathrules"
)

func encodeOneTarEntry(t *testing.T, in TarEntryInput) []byte {
	t.Helper()

	var buf bytes.Buffer
	enc := NewTarEncoder(&buf)
	if err := enc.WriteEntry(in); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	return buf.Bytes()
}

func decodeAllTarEntries(t *testing.T, wire []byte) []*Entry {
	t.Helper()

	dec := NewTarDecoder(NewReaderSource(bytes.NewReader(wire), 17), TarReadOptions{})

	var entries []*Entry
	for {
		entry, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}

		// Advancing cancels the current payload, so buffer it first.
		data, err := entry.AsBytes()
		if err != nil {
			t.Fatalf("AsBytes: %v", err)
		}
		entries = append(entries, newEntry(entry.TarMeta(), NewChunkSource([][]byte{data})))
	}

	return entries
}

func TestTarRoundTripSingleFile(t *testing.T) {
	mtime := time.Unix(1700000000, 0).UTC()
	body := []byte("hello, tar world\n")

	wire := encodeOneTarEntry(t, TarEntryInput{
		Name:    "greeting.txt",
		Kind:    KindFile,
		Size:    int64(len(body)),
		ModTime: mtime,
		Mode:    0o644,
		Body:    NewReaderSource(bytes.NewReader(body), 5),
	})

	entries := decodeAllTarEntries(t, wire)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	meta := entries[0].TarMeta()
	if meta.Name != "greeting.txt" {
		t.Fatalf("Name=%q", meta.Name)
	}
	if meta.Size != int64(len(body)) {
		t.Fatalf("Size=%d, want %d", meta.Size, len(body))
	}
	if !meta.ModTime.Equal(mtime) {
		t.Fatalf("ModTime=%v, want %v", meta.ModTime, mtime)
	}

	got, err := entries[0].AsBytes()
	if err != nil {
		t.Fatalf("AsBytes: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("got %q, want %q", got, body)
	}
}

func TestTarRoundTripUSTARSplitName(t *testing.T) {
	name := strings.Repeat("d", 100) + "/" + strings.Repeat("x", 50) + ".txt"
	body := []byte("payload")

	wire := encodeOneTarEntry(t, TarEntryInput{
		Name: name,
		Kind: KindFile,
		Size: int64(len(body)),
		Body: NewReaderSource(bytes.NewReader(body), 4096),
	})

	entries := decodeAllTarEntries(t, wire)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	if entries[0].TarMeta().Name != name {
		t.Fatalf("Name=%q, want %q", entries[0].TarMeta().Name, name)
	}
}

func TestTarRoundTripPaxLongName(t *testing.T) {
	name := strings.Repeat("d", 300) + "/" + strings.Repeat("x", 200) + ".txt"
	body := []byte("payload")

	wire := encodeOneTarEntry(t, TarEntryInput{
		Name: name,
		Kind: KindFile,
		Size: int64(len(body)),
		Body: NewReaderSource(bytes.NewReader(body), 4096),
	})

	if !bytes.Contains(wire, []byte("path="+name)) {
		t.Fatal("expected PAX path= record in wire bytes")
	}

	entries := decodeAllTarEntries(t, wire)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].TarMeta().Name != name {
		t.Fatalf("Name=%q, want %q", entries[0].TarMeta().Name, name)
	}

	got, err := entries[0].AsBytes()
	if err != nil {
		t.Fatalf("AsBytes: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("got %q, want %q", got, body)
	}
}

func TestTarEncodeDirectoryHasZeroSizeAndTrailingSlash(t *testing.T) {
	wire := encodeOneTarEntry(t, TarEntryInput{
		Name: "subdir",
		Kind: KindDirectory,
	})

	entries := decodeAllTarEntries(t, wire)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	meta := entries[0].TarMeta()
	if meta.Name != "subdir/" {
		t.Fatalf("Name=%q, want subdir/", meta.Name)
	}
	if meta.Kind != KindDirectory {
		t.Fatalf("Kind=%v, want KindDirectory", meta.Kind)
	}
	if meta.Size != 0 {
		t.Fatalf("Size=%d, want 0", meta.Size)
	}
}

func TestTarFilterExcludesWithoutTouchingPayload(t *testing.T) {
	var buf bytes.Buffer
	enc := NewTarEncoder(&buf)
	for _, name := range []string{"keep.txt", "skip.txt"} {
		body := []byte(name + " body")
		if err := enc.WriteEntry(TarEntryInput{
			Name: name,
			Kind: KindFile,
			Size: int64(len(body)),
			Body: NewReaderSource(bytes.NewReader(body), 4096),
		}); err != nil {
			t.Fatalf("WriteEntry(%s): %v", name, err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	filter, err := NewEntryFilter([]pathrules.Rule{
		{Action: pathrules.ActionExclude, Pattern: "skip.txt"},
	}, pathrules.MatcherOptions{DefaultAction: pathrules.ActionInclude})
	if err != nil {
		t.Fatalf("NewEntryFilter: %v", err)
	}

	dec := NewTarDecoder(NewReaderSource(bytes.NewReader(buf.Bytes()), 4096), TarReadOptions{Filter: filter})

	var names []string
	for {
		entry, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		names = append(names, entry.Name())
	}

	if len(names) != 1 || names[0] != "keep.txt" {
		t.Fatalf("names=%v, want [keep.txt]", names)
	}
}

func TestTarEncodeRejectsNegativeSize(t *testing.T) {
	var buf bytes.Buffer
	enc := NewTarEncoder(&buf)

	err := enc.WriteEntry(TarEntryInput{Name: "bad", Kind: KindFile, Size: -1})
	if err == nil {
		t.Fatal("expected error for negative size")
	}
}
