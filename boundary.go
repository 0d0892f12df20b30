// SPDX-License-Identifier: MIT
// Copyright (c) 2026 streambox authors

package streambox

import (
	"bytes"
	"fmt"
	"io"
)

// BoundarySearch is a lazy sequence yielding the bytes that precede the
// first occurrence of a literal boundary pattern read from a
// BlockReader, tolerant of chunk seams and self-overlapping patterns.
//
// Next returns successive slices of pre-boundary bytes. Once the
// boundary has been located, the reader's position is advanced exactly
// past it and Next returns (nil, io.EOF); Found reports true. If the
// source is exhausted before the boundary occurs, Next also ends with
// (nil, io.EOF) but Found reports false — callers must treat that as
// an unexpected-EOF condition.
type BoundarySearch struct {
	r       *BlockReader
	pattern []byte
	table   [256]int

	buf   []byte
	eof   bool
	done  bool
	found bool
}

// NewBoundarySearch builds a BoundarySearch for pattern over r. The
// pattern's bad-character skip table is built once, up front, and
// reused across the whole search. len(pattern) must not exceed
// r.BlockSize(), per the algorithm's seam-handling precondition.
func NewBoundarySearch(r *BlockReader, pattern []byte) (*BoundarySearch, error) {
	if len(pattern) == 0 {
		return nil, fmt.Errorf("%w: empty boundary pattern", ErrBadPrecondition)
	}

	if len(pattern) > r.BlockSize() {
		return nil, fmt.Errorf("%w: boundary pattern longer than block size", ErrBadPrecondition)
	}

	bs := &BoundarySearch{r: r, pattern: pattern}
	bs.table = newSkipTable(pattern)

	return bs, nil
}

// newSkipTable builds the bad-character skip table: each byte maps to
// m (pattern does not contain it) or m-1-lastIndex(byte in pattern),
// inclusive of the final pattern byte. A table entry of 0 signals that
// the byte matches the pattern's own last byte and cannot be used to
// advance — callers must fall back to shifting by 1 to correctly
// handle self-overlapping patterns.
func newSkipTable(p []byte) [256]int {
	m := len(p)

	var t [256]int
	for i := range t {
		t[i] = m
	}

	for i := 0; i < m; i++ {
		t[p[i]] = m - 1 - i
	}

	return t
}

// Found reports whether the boundary pattern was located. Valid only
// after Next has returned io.EOF.
func (bs *BoundarySearch) Found() bool {
	return bs.found
}

// Next returns the next chunk of pre-boundary bytes, or (nil, io.EOF)
// once the search has concluded (see Found for the outcome).
func (bs *BoundarySearch) Next() ([]byte, error) {
	if bs.done {
		return nil, io.EOF
	}

	m := len(bs.pattern)

	for {
		if len(bs.buf) >= m {
			i := 0
			for i+m <= len(bs.buf) {
				if bs.buf[i+m-1] == bs.pattern[m-1] && bytes.Equal(bs.buf[i:i+m], bs.pattern) {
					pre := bs.buf[:i]
					rest := bs.buf[i+m:]

					bs.r.unread(rest)
					bs.done = true
					bs.found = true
					bs.buf = nil

					if len(pre) == 0 {
						return nil, io.EOF
					}

					return pre, nil
				}

				shift := bs.table[bs.buf[i+m-1]]
				if shift == 0 {
					shift = 1
				}
				i += shift
			}

			if i > 0 {
				flush := bs.buf[:i]
				bs.buf = append([]byte(nil), bs.buf[i:]...)

				return flush, nil
			}
		}

		if bs.eof {
			bs.done = true
			bs.found = false
			pre := bs.buf
			bs.buf = nil

			if len(pre) == 0 {
				return nil, io.EOF
			}

			return pre, nil
		}

		chunk, err := bs.r.ReadBlock(true)
		if err != nil && err != io.EOF {
			return nil, err
		}

		if len(chunk) > 0 {
			bs.buf = append(bs.buf, chunk...)
		}

		if err == io.EOF {
			bs.eof = true
		}
	}
}

// Drain consumes the rest of the search, discarding any pre-boundary
// bytes. It is used by cancellation paths that need to advance the
// reader past a boundary without caring about the intervening bytes.
func (bs *BoundarySearch) Drain() error {
	for {
		_, err := bs.Next()
		if err == io.EOF {
			return nil
		}

		if err != nil {
			return err
		}
	}
}
