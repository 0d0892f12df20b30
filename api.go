// SPDX-License-Identifier: MIT
// Copyright (c) 2026 streambox authors

package streambox

import "io"

// Untar returns a decoder yielding the entries of a tar archive read
// from src.
func Untar(src ByteSource, opts TarReadOptions) *TarDecoder {
	return NewTarDecoder(src, opts)
}

// Tar returns an encoder that writes a tar archive, one entry at a
// time, to w.
func Tar(w io.Writer) *TarEncoder {
	return NewTarEncoder(w)
}

// ParseMultipart returns a decoder yielding the parts of a
// multipart/form-data body read from src.
func ParseMultipart(src ByteSource, opts MultipartReadOptions) (*MultipartDecoder, error) {
	return NewMultipartDecoder(src, opts)
}

// StreamMultipart returns an encoder that writes a multipart/form-data
// body, one field at a time, to w, using a freshly generated boundary.
// Call ContentType on the result for the matching Content-Type header.
func StreamMultipart(w io.Writer) *MultipartEncoder {
	return NewMultipartEncoder(w, NewBoundary())
}
