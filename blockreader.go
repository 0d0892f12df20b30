// SPDX-License-Identifier: MIT
// Copyright (c) 2026 streambox authors

package streambox

import (
	"fmt"
	"io"
	"sync"
)

// scratchPoolBufSize is the backing array size of pooled scratch
// buffers. It covers every block size this package actually uses
// (tarBlockSize 512, multipartBlockSize 4096); a BlockReader configured
// with a larger block size falls back to a plain allocation.
const scratchPoolBufSize = 4096

// scratchBufferPool reuses the fixed-size arrays backing BlockReader's
// scratch buffer across BlockReader instances, the same hot-path buffer
// reuse the teacher applies to its bufio readers/writers and payload
// copy buffers.
var scratchBufferPool = sync.Pool{
	New: func() any {
		return new([scratchPoolBufSize]byte)
	},
}

// BlockReader is a fixed-blocksize paged reader over a ByteSource. It
// drains, in order, a pending pushback region, the current source
// chunk, and then further source chunks, and never loses a byte: every
// byte read is either returned, skipped, or pushed back. A short final
// block is returned as a shorter slice (ReadBlock's allowPartialEnd) or
// pushed back; it is never padded.
//
// A BlockReader is not safe for concurrent use; callers must not retain
// a slice returned by ReadBlock or Pull past the next call on the same
// reader.
type BlockReader struct {
	src       ByteSource
	blockSize int

	pending []byte // bytes staged by Pushback or a short internal fill, served first
	cur     []byte // most recent chunk obtained from src
	curOff  int    // consumed prefix of cur

	scratch    []byte                    // reused assembly buffer for ReadBlock, len == blockSize
	scratchArr *[scratchPoolBufSize]byte // backing array on loan from scratchBufferPool, returned on Close
	last       []byte                    // slice most recently returned by ReadBlock/Pull, for Pushback

	eof    bool
	closed bool
}

// NewBlockReader returns a BlockReader with the given fixed block size
// reading from src.
func NewBlockReader(src ByteSource, blockSize int) *BlockReader {
	return &BlockReader{src: src, blockSize: blockSize}
}

// BlockSize returns the reader's configured block size.
func (r *BlockReader) BlockSize() int {
	return r.blockSize
}

// Close cancels the underlying source and returns any pooled scratch
// buffer on loan.
func (r *BlockReader) Close() error {
	if r.closed {
		return nil
	}

	r.closed = true

	if r.scratchArr != nil {
		scratchBufferPool.Put(r.scratchArr)
		r.scratchArr = nil
		r.scratch = nil
	}

	return r.src.Close()
}

// ReadBlock returns exactly BlockSize bytes, or, if allowPartialEnd is
// true, a shorter trailing slice observed at end of input, or
// (nil, io.EOF) if nothing remains. When allowPartialEnd is false and a
// full block cannot be filled, the partial bytes are pushed back so a
// later Pull sees them, and (nil, io.EOF) is returned.
//
// The returned slice aliases the reader's internal scratch buffer and
// is only valid until the next call.
func (r *BlockReader) ReadBlock(allowPartialEnd bool) ([]byte, error) {
	if cap(r.scratch) < r.blockSize {
		r.scratch = r.acquireScratch()
	}
	buf := r.scratch[:r.blockSize]

	n, err := r.fill(buf)
	if err != nil && err != io.EOF {
		return nil, err
	}

	if n == r.blockSize {
		r.last = buf
		return buf, nil
	}

	if n == 0 {
		return nil, io.EOF
	}

	if allowPartialEnd {
		out := buf[:n]
		r.last = out
		return out, nil
	}

	r.unread(buf[:n])
	return nil, io.EOF
}

// acquireScratch returns a blockSize-length scratch buffer, taking its
// backing array from scratchBufferPool when the block size fits, and
// falling back to a plain allocation otherwise.
func (r *BlockReader) acquireScratch() []byte {
	if r.blockSize > scratchPoolBufSize {
		return make([]byte, r.blockSize)
	}

	arr := scratchBufferPool.Get().(*[scratchPoolBufSize]byte) //nolint:forcetypeassert // pool contains only scratchPoolBufSize arrays
	r.scratchArr = arr

	return arr[:r.blockSize]
}

// Pull returns up to maxSize bytes without copying when possible. It
// returns (nil, io.EOF) only when nothing at all remains.
func (r *BlockReader) Pull(maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = r.blockSize
	}

	if len(r.pending) > 0 {
		n := min(len(r.pending), maxSize)
		out := r.pending[:n]
		r.pending = r.pending[n:]
		r.last = out
		return out, nil
	}

	if r.curOff < len(r.cur) {
		n := min(len(r.cur)-r.curOff, maxSize)
		out := r.cur[r.curOff : r.curOff+n]
		r.curOff += n
		r.last = out
		return out, nil
	}

	if r.eof {
		return nil, io.EOF
	}

	chunk, err := r.nextNonEmptyChunk()
	if err != nil && len(chunk) == 0 {
		return nil, err
	}

	r.cur = chunk
	r.curOff = 0
	n := min(len(chunk), maxSize)
	out := chunk[:n]
	r.curOff = n
	r.last = out

	return out, nil
}

// Skip discards up to n bytes and returns how many bytes could not be
// skipped (0 on success, >0 at EOF).
func (r *BlockReader) Skip(n int) (int, error) {
	remaining := n
	for remaining > 0 {
		if len(r.pending) > 0 {
			c := min(len(r.pending), remaining)
			r.pending = r.pending[c:]
			remaining -= c

			continue
		}

		if r.curOff < len(r.cur) {
			c := min(len(r.cur)-r.curOff, remaining)
			r.curOff += c
			remaining -= c

			continue
		}

		if r.eof {
			return remaining, nil
		}

		chunk, err := r.src.Next()
		if err != nil && err != io.EOF {
			return remaining, err
		}

		if len(chunk) == 0 {
			if err == io.EOF {
				r.eof = true
				return remaining, nil
			}

			continue
		}

		r.cur = chunk
		r.curOff = 0
		if err == io.EOF {
			r.eof = true
		}
	}

	return 0, nil
}

// Pushback re-inserts the last k bytes of the slice most recently
// returned by ReadBlock or Pull at the front of the logical stream.
// Pushing back more bytes than the block size, or more bytes than the
// last returned slice contained, reports ErrBadPrecondition.
func (r *BlockReader) Pushback(k int) error {
	if k == 0 {
		return nil
	}

	if k < 0 || k > r.blockSize {
		return fmt.Errorf("%w: pushback of %d bytes exceeds block size %d", ErrBadPrecondition, k, r.blockSize)
	}

	if k > len(r.last) {
		return fmt.Errorf("%w: pushback of %d bytes exceeds last returned slice (%d)", ErrBadPrecondition, k, len(r.last))
	}

	tail := r.last[len(r.last)-k:]
	r.unread(tail)
	r.last = r.last[:len(r.last)-k]

	return nil
}

// unread prepends a defensive copy of extra to the pending region.
func (r *BlockReader) unread(extra []byte) {
	if len(extra) == 0 {
		return
	}

	buf := make([]byte, len(extra)+len(r.pending))
	copy(buf, extra)
	copy(buf[len(extra):], r.pending)
	r.pending = buf
}

// fill drains pending, cur, and further source chunks into dst until
// dst is full or the source is exhausted, returning the number of
// bytes written and io.EOF if dst could not be fully filled.
func (r *BlockReader) fill(dst []byte) (int, error) {
	n := 0
	for n < len(dst) {
		if len(r.pending) > 0 {
			c := copy(dst[n:], r.pending)
			n += c
			r.pending = r.pending[c:]

			continue
		}

		if r.curOff < len(r.cur) {
			c := copy(dst[n:], r.cur[r.curOff:])
			n += c
			r.curOff += c

			continue
		}

		if r.eof {
			return n, io.EOF
		}

		chunk, err := r.src.Next()
		if err != nil && err != io.EOF {
			return n, err
		}

		if len(chunk) == 0 {
			if err == io.EOF {
				r.eof = true
				return n, io.EOF
			}

			continue
		}

		r.cur = chunk
		r.curOff = 0
		if err == io.EOF {
			r.eof = true
		}
	}

	return n, nil
}

// nextNonEmptyChunk pulls from src, skipping zero-length "try again"
// chunks, until a non-empty chunk or a terminal error is obtained.
func (r *BlockReader) nextNonEmptyChunk() ([]byte, error) {
	for {
		chunk, err := r.src.Next()
		if len(chunk) > 0 {
			if err == io.EOF {
				r.eof = true
			}

			return chunk, nil
		}

		if err != nil {
			if err == io.EOF {
				r.eof = true
			}

			return nil, err
		}
	}
}
