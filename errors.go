// SPDX-License-Identifier: MIT
// Copyright (c) 2026 streambox authors

package streambox

import "errors"

// Sentinel errors for streambox operations. Use errors.Is in callers.
var (
	// ErrUnexpectedEOF means the source ended while more bytes were required
	// (a header, a PAX payload, a sized body, or a boundary).
	ErrUnexpectedEOF = errors.New("streambox: unexpected end of input")
	// ErrBadHeader means a tar block had invalid magic with non-zero content,
	// a multipart header line was missing ":", or Content-Disposition was
	// not "form-data".
	ErrBadHeader = errors.New("streambox: malformed header")
	// ErrBadChecksum means a tar block with an unrecognised typeflag had an
	// invalid checksum.
	ErrBadChecksum = errors.New("streambox: tar checksum mismatch")
	// ErrLimitExceeded means a multipart preamble or header section exceeded
	// its documented size cap.
	ErrLimitExceeded = errors.New("streambox: limit exceeded")
	// ErrBadBoundary means the expected trailer bytes did not match after a
	// sized multipart part.
	ErrBadBoundary = errors.New("streambox: boundary mismatch")
	// ErrBadNumeric means a tar entry size was not representable as a safe
	// non-negative integer on encode, or the payload written for an entry
	// did not match its declared size.
	ErrBadNumeric = errors.New("streambox: invalid numeric field")
	// ErrBadPrecondition means an operation's documented precondition was
	// violated: a boundary pattern longer than the block size, or a
	// pushback larger than the reader's capacity.
	ErrBadPrecondition = errors.New("streambox: precondition violated")
	// ErrEntryLocked means an entry's payload was already started and
	// cannot be read again.
	ErrEntryLocked = errors.New("streambox: entry payload already consumed")
	// ErrNilSource means a nil ByteSource was supplied.
	ErrNilSource = errors.New("streambox: nil byte source")
)
