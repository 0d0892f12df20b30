// SPDX-License-Identifier: MIT
// Copyright (c) 2026 streambox authors

package streambox

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"
)

func drainBoundarySearch(t *testing.T, bs *BoundarySearch) []byte {
	t.Helper()

	var out []byte
	for {
		chunk, err := bs.Next()
		out = append(out, chunk...)
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("BoundarySearch.Next: %v", err)
		}
	}
}

func TestBoundarySearchFindsLiteralAcrossChunkings(t *testing.T) {
	pattern := []byte("--boundary\r\n")
	a := bytes.Repeat([]byte("A"), 37)
	b := bytes.Repeat([]byte("B"), 23)
	full := append(append(append([]byte{}, a...), pattern...), b...)

	for _, chunkSize := range []int{1, 3, 7, 500, 4096, len(full)} {
		src := NewChunkSource(SplitIntoChunks(full, chunkSize))
		r := NewBlockReader(src, 16)
		bs, err := NewBoundarySearch(r, pattern)
		if err != nil {
			t.Fatalf("chunkSize=%d: NewBoundarySearch: %v", chunkSize, err)
		}

		pre := drainBoundarySearch(t, bs)
		if !bs.Found() {
			t.Fatalf("chunkSize=%d: boundary not found", chunkSize)
		}
		if !bytes.Equal(pre, a) {
			t.Fatalf("chunkSize=%d: pre=%q, want %q", chunkSize, pre, a)
		}

		rest := drainPull(t, r)
		if !bytes.Equal(rest, b) {
			t.Fatalf("chunkSize=%d: rest=%q, want %q", chunkSize, rest, b)
		}
	}
}

// drainPull pulls every remaining byte from r.
func drainPull(t *testing.T, r *BlockReader) []byte {
	t.Helper()

	var out []byte
	for {
		chunk, err := r.Pull(4096)
		out = append(out, chunk...)
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Pull: %v", err)
		}
	}
}

func TestBoundarySearchNotFoundYieldsAllBytes(t *testing.T) {
	data := []byte("no boundary anywhere in here")
	src := NewChunkSource(SplitIntoChunks(data, 4))
	r := NewBlockReader(src, 16)

	bs, err := NewBoundarySearch(r, []byte("--zzz--"))
	if err != nil {
		t.Fatalf("NewBoundarySearch: %v", err)
	}

	got := drainBoundarySearch(t, bs)
	if bs.Found() {
		t.Fatal("Found() = true, want false")
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("got=%q, want %q", got, data)
	}
}

func TestBoundarySearchPatternLongerThanBlockSizeFails(t *testing.T) {
	src := NewChunkSource([][]byte{[]byte("abc")})
	r := NewBlockReader(src, 4)

	_, err := NewBoundarySearch(r, []byte("abcdefgh"))
	if !errors.Is(err, ErrBadPrecondition) {
		t.Fatalf("err=%v, want ErrBadPrecondition", err)
	}
}

func TestBoundarySearchRandomizedProperty(t *testing.T) {
	pattern := []byte("--boundary\r\n")
	rng := rand.New(rand.NewSource(1))

	for trial := 0; trial < 500; trial++ {
		aLen := rng.Intn(101)
		bLen := rng.Intn(101)

		a := make([]byte, aLen)
		for i := range a {
			a[i] = byte('a' + rng.Intn(26))
		}
		b := make([]byte, bLen)
		for i := range b {
			b[i] = byte('a' + rng.Intn(26))
		}

		full := append(append(append([]byte{}, a...), pattern...), b...)

		chunkSize := 1 + rng.Intn(20)
		src := NewChunkSource(SplitIntoChunks(full, chunkSize))
		r := NewBlockReader(src, 16)

		bs, err := NewBoundarySearch(r, pattern)
		if err != nil {
			t.Fatalf("trial %d: NewBoundarySearch: %v", trial, err)
		}

		pre := drainBoundarySearch(t, bs)
		if !bs.Found() {
			t.Fatalf("trial %d: boundary not found (|a|=%d |b|=%d)", trial, aLen, bLen)
		}
		if !bytes.Equal(pre, a) {
			t.Fatalf("trial %d: pre=%q, want %q", trial, pre, a)
		}

		rest := drainPull(t, r)
		if !bytes.Equal(rest, b) {
			t.Fatalf("trial %d: rest=%q, want %q", trial, rest, b)
		}
	}
}
