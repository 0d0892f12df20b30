// SPDX-License-Identifier: MIT
// Copyright (c) 2026 streambox authors

package streambox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"
)

// Entry is the shared presentation for a decoded tar entry or multipart
// part: metadata by value, plus a one-shot lazy byte-sequence accessor.
// It composes over a ByteSource rather than branching on which pipeline
// produced it.
type Entry struct {
	tar  *TarEntryMeta
	part *MultipartPartMeta

	body   ByteSource
	locked bool
	done   bool
}

func newEntry(meta TarEntryMeta, body ByteSource) *Entry {
	return &Entry{tar: &meta, body: body}
}

func newPartEntry(meta MultipartPartMeta, body ByteSource) *Entry {
	return &Entry{part: &meta, body: body}
}

// IsTar reports whether this entry came from a tar archive, as opposed
// to a multipart body.
func (e *Entry) IsTar() bool {
	return e.tar != nil
}

// TarMeta returns the tar metadata; it panics if IsTar is false.
func (e *Entry) TarMeta() TarEntryMeta {
	return *e.tar
}

// PartMeta returns the multipart metadata; it panics if IsTar is true.
func (e *Entry) PartMeta() MultipartPartMeta {
	return *e.part
}

// Name returns the entry's effective name, from whichever metadata this
// entry carries.
func (e *Entry) Name() string {
	if e.tar != nil {
		return e.tar.Name
	}

	return e.part.Name
}

// Size returns the entry's declared size. For multipart parts without a
// known Content-Length, PartMeta().HasSize is false and Size returns 0.
func (e *Entry) Size() int64 {
	if e.tar != nil {
		return e.tar.Size
	}

	return e.part.Size
}

// Next pulls the next chunk of the entry's payload. It is the
// lowest-level accessor; AsBytes/AsText/AsJSON are built on it. Calling
// Next locks the entry, after which AsBytes reports ErrEntryLocked. If
// the caller abandons the entry mid-stream, the decoder skips whatever
// payload is left when it advances to the next entry.
func (e *Entry) Next() ([]byte, error) {
	if e.done {
		return nil, io.EOF
	}

	e.locked = true

	chunk, err := e.body.Next()
	if err == io.EOF {
		e.done = true
	}

	return chunk, err
}

// Locked reports whether the entry's payload has been started.
func (e *Entry) Locked() bool {
	return e.locked
}

// Cancel abandons the entry's payload by closing its byte source,
// whether or not the payload was started. The decoder skips the unread
// bytes when it advances to the next entry; Cancel itself reads nothing.
func (e *Entry) Cancel() error {
	if e.done {
		return nil
	}

	e.done = true

	return e.body.Close()
}

// AsBytes drains the entire payload into memory. It is a one-shot
// operation: calling it twice, or calling it after Next, returns
// ErrEntryLocked on the second attempt.
func (e *Entry) AsBytes() ([]byte, error) {
	if e.locked || e.done {
		return nil, ErrEntryLocked
	}

	var buf bytes.Buffer
	for {
		chunk, err := e.Next()
		if len(chunk) > 0 {
			buf.Write(chunk)
		}

		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// AsText drains the entire payload and decodes it as UTF-8, returning
// ErrBadHeader if the bytes are not valid UTF-8.
func (e *Entry) AsText() (string, error) {
	data, err := e.AsBytes()
	if err != nil {
		return "", err
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: payload is not valid UTF-8", ErrBadHeader)
	}

	return string(data), nil
}

// AsJSON drains the entire payload and unmarshals it into v.
func (e *Entry) AsJSON(v any) error {
	data, err := e.AsBytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}
