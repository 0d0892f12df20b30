// SPDX-License-Identifier: MIT
// Copyright (c) 2026 streambox authors

package streambox

import (
	"crypto/rand"
	"io"
)

// boundaryAlphabet is the base-36 alphabet used by NewBoundary.
const boundaryAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewBoundary generates a fresh multipart boundary identifier:
// "----formdata-" followed by 16 random base-36 characters.
func NewBoundary() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand.Read on a supported platform does not fail; fall
		// back to a fixed, still-unique-enough pattern rather than
		// propagating an error through a function with no error return.
		for i := range buf {
			buf[i] = byte(i)
		}
	}

	out := make([]byte, 16)
	for i, b := range buf {
		out[i] = boundaryAlphabet[int(b)%len(boundaryAlphabet)]
	}

	return "----formdata-" + string(out)
}

// MultipartEncoder writes a multipart/form-data body to an io.Writer.
type MultipartEncoder struct {
	w        io.Writer
	boundary string
	started  bool
	closed   bool
}

// NewMultipartEncoder returns a MultipartEncoder writing to w, framed
// with the given boundary identifier (see NewBoundary).
func NewMultipartEncoder(w io.Writer, boundary string) *MultipartEncoder {
	return &MultipartEncoder{w: w, boundary: boundary}
}

// ContentType returns the "multipart/form-data; boundary=..." value to
// send alongside the encoded body.
func (e *MultipartEncoder) ContentType() string {
	return "multipart/form-data; boundary=" + e.boundary
}

// WriteField writes one part, streaming its body from in.Body.
func (e *MultipartEncoder) WriteField(in FieldInput) error {
	if err := e.writeBoundaryLine(); err != nil {
		return err
	}

	header := "Content-Disposition: " + formatContentDisposition(in.Name, in.Filename) + "\r\n"
	if in.ContentType != "" {
		header += "Content-Type: " + in.ContentType + "\r\n"
	}
	if in.HasSize && in.Size > 0 {
		header += "Content-Length: " + itoa(int(in.Size)) + "\r\n"
	}
	header += "\r\n"

	if _, err := io.WriteString(e.w, header); err != nil {
		return err
	}

	if in.Body == nil {
		return nil
	}

	for {
		chunk, err := in.Body.Next()
		if len(chunk) > 0 {
			if _, werr := e.w.Write(chunk); werr != nil {
				return werr
			}
		}

		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Close writes the closing boundary, preceded by CRLF unless it is the
// very first thing written, and followed by two CRLFs.
func (e *MultipartEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	line := "--" + e.boundary + "--\r\n\r\n"
	if e.started {
		line = "\r\n" + line
	}
	e.started = true

	_, err := io.WriteString(e.w, line)

	return err
}

// writeBoundaryLine writes the leading or inter-part boundary marker:
// no preceding CRLF for the first part, "\r\n" before every later one.
func (e *MultipartEncoder) writeBoundaryLine() error {
	line := "--" + e.boundary + "\r\n"
	if e.started {
		line = "\r\n" + line
	}
	e.started = true

	_, err := io.WriteString(e.w, line)

	return err
}
