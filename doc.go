// SPDX-License-Identifier: MIT
// Copyright (c) 2026 streambox authors

/*
Package streambox provides streaming encode/decode codecs for two
byte-container formats: POSIX/GNU tar archives and HTTP
multipart/form-data bodies. Both directions run in bounded memory
independent of archive size or individual entry size — there is no
requirement that the underlying source support seeking or random
access.

# Reading tar

Decode a tar archive from any [ByteSource] into a sequence of entries:

	src := NewReaderSource(f, 0)
	dec := NewTarDecoder(src, TarReadOptions{})
	for {
	    entry, err := dec.Next()
	    if err == io.EOF {
	        break
	    }
	    if err != nil {
	        return err
	    }
	    data, err := entry.AsBytes()
	    if err != nil {
	        return err
	    }
	    _ = data
	}

Entries must be consumed or cancelled in order; advancing to the next
entry before finishing the current one cancels it automatically.

# Writing tar

	enc := NewTarEncoder(dst)
	if err := enc.WriteEntry(TarEntryInput{
	    Name: "hello.txt",
	    Size: 12,
	    Body: NewReaderSource(strings.NewReader("hello world!"), 0),
	}); err != nil {
	    return err
	}
	if err := enc.Close(); err != nil {
	    return err
	}

# Reading multipart

	dec, err := NewMultipartDecoder(src, MultipartReadOptions{
	    ContentType: req.Header.Get("Content-Type"),
	})
	if err != nil {
	    return err
	}
	for {
	    part, err := dec.Next()
	    if err == io.EOF {
	        break
	    }
	    if err != nil {
	        return err
	    }
	    text, err := part.AsText()
	    if err != nil {
	        return err
	    }
	    _ = text
	}

# Writing multipart

	enc := NewMultipartEncoder(dst, NewBoundary())
	if err := enc.WriteField(FieldInput{
	    Name: "a",
	    Body: NewReaderSource(strings.NewReader("1"), 0),
	}); err != nil {
	    return err
	}
	if err := enc.Close(); err != nil {
	    return err
	}
	contentType := enc.ContentType()

# Scope

This package does not do HTTP request handling, gzip/zstd transcoding,
filesystem I/O, CLI packaging, logging, compression, or cryptographic
signing. It consumes and produces plain byte chunks through
[ByteSource] and [io.Writer]; everything above those boundaries is the
caller's responsibility.
*/
package streambox
