// SPDX-License-Identifier: MIT
// Copyright (c) 2026 streambox authors

package streambox

import (
	"errors"
	"testing"
)

func TestEntryAsBytesThenAsBytesAgainIsLocked(t *testing.T) {
	e := newEntry(TarEntryMeta{Name: "f"}, NewChunkSource([][]byte{[]byte("hello")}))

	got, err := e.AsBytes()
	if err != nil {
		t.Fatalf("AsBytes: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}

	if _, err := e.AsBytes(); !errors.Is(err, ErrEntryLocked) {
		t.Fatalf("second AsBytes err=%v, want ErrEntryLocked", err)
	}
}

func TestEntryAsTextRejectsInvalidUTF8(t *testing.T) {
	e := newEntry(TarEntryMeta{Name: "f"}, NewChunkSource([][]byte{{0xff, 0xfe}}))

	if _, err := e.AsText(); !errors.Is(err, ErrBadHeader) {
		t.Fatalf("err=%v, want ErrBadHeader", err)
	}
}

func TestEntryAsJSON(t *testing.T) {
	e := newEntry(TarEntryMeta{Name: "f"}, NewChunkSource([][]byte{[]byte(`{"k":"v"}`)}))

	var v struct {
		K string `json:"k"`
	}
	if err := e.AsJSON(&v); err != nil {
		t.Fatalf("AsJSON: %v", err)
	}
	if v.K != "v" {
		t.Fatalf("got %q, want v", v.K)
	}
}

func TestEntryLockedReportsFirstNextCall(t *testing.T) {
	e := newEntry(TarEntryMeta{Name: "f"}, NewChunkSource([][]byte{[]byte("x")}))

	if e.Locked() {
		t.Fatal("Locked() = true before any Next call")
	}

	if _, err := e.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}

	if !e.Locked() {
		t.Fatal("Locked() = false after Next call")
	}
}

func TestEntryCancelBeforeReadSkipsCleanly(t *testing.T) {
	closed := false
	src := &closeTrackingSource{ByteSource: NewChunkSource([][]byte{[]byte("x")}), onClose: func() { closed = true }}

	e := newEntry(TarEntryMeta{Name: "f"}, src)
	if err := e.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !closed {
		t.Fatal("expected underlying source to be closed")
	}

	if _, err := e.AsBytes(); !errors.Is(err, ErrEntryLocked) {
		t.Fatalf("AsBytes after Cancel err=%v, want ErrEntryLocked", err)
	}
}

type closeTrackingSource struct {
	ByteSource
	onClose func()
}

func (s *closeTrackingSource) Close() error {
	s.onClose()
	return s.ByteSource.Close()
}
