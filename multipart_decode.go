// SPDX-License-Identifier: MIT
// Copyright (c) 2026 streambox authors

package streambox

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	multipartBlockSize = 4096
	maxPreambleBytes   = 16 * 1024
	maxHeaderLineBytes = 16 * 1024
	maxHeadersTotal    = 32 * 1024
)

var boundaryParamPattern = regexp.MustCompile(`(?i)boundary="?([^=";]+)"?`)

// extractBoundary pulls the boundary parameter out of a raw Content-Type
// header value.
func extractBoundary(contentType string) (string, error) {
	m := boundaryParamPattern.FindStringSubmatch(contentType)
	if m == nil {
		return "", fmt.Errorf("%w: no boundary parameter in content type %q", ErrBadHeader, contentType)
	}

	return m[1], nil
}

// MultipartReadOptions configures MultipartDecoder.
type MultipartReadOptions struct {
	// ContentType is the raw Content-Type header value carrying the
	// boundary parameter.
	ContentType string
	// Filter, if set, is consulted once per part, before its payload
	// stream is constructed.
	Filter *EntryFilter
}

func (o *MultipartReadOptions) applyDefaults() {}

// partCanceler finishes draining whatever is left of a part's payload,
// whichever of the two body strategies (sized, boundary-terminated) it
// used.
type partCanceler interface {
	finish() error
}

// MultipartDecoder decodes a multipart/form-data body into a lazy
// sequence of parts.
type MultipartDecoder struct {
	r       *BlockReader
	b0      []byte
	bt      []byte
	opts    MultipartReadOptions
	started bool
	pending partCanceler
	done    bool
}

// NewMultipartDecoder returns a MultipartDecoder reading 4 KiB blocks
// from src. opts.ContentType must carry a boundary parameter.
func NewMultipartDecoder(src ByteSource, opts MultipartReadOptions) (*MultipartDecoder, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: multipart decoder source", ErrNilSource)
	}

	opts.applyDefaults()

	boundary, err := extractBoundary(opts.ContentType)
	if err != nil {
		return nil, err
	}

	return &MultipartDecoder{
		r:    NewBlockReader(src, multipartBlockSize),
		b0:   []byte("--" + boundary),
		bt:   []byte("\r\n--" + boundary),
		opts: opts,
	}, nil
}

// Next returns the next part, or io.EOF once the closing boundary is
// reached.
func (d *MultipartDecoder) Next() (*Entry, error) {
	if d.done {
		return nil, io.EOF
	}

	if err := d.finishPending(); err != nil {
		return nil, err
	}

	if !d.started {
		if err := d.scanPreamble(); err != nil {
			return nil, err
		}
		d.started = true
	}

	for {
		terminal, err := d.readBoundaryTail()
		if err != nil {
			return nil, err
		}
		if terminal {
			d.done = true
			_ = d.r.Close()
			return nil, io.EOF
		}

		headers, err := d.readHeaders()
		if err != nil {
			return nil, err
		}

		meta, err := buildPartMeta(headers)
		if err != nil {
			return nil, err
		}

		if d.opts.Filter != nil && !d.opts.Filter.Include(meta.Name) {
			if meta.HasSize {
				d.pending = &sizedPartCanceler{r: d.r, bt: d.bt, state: &sizedPartState{remaining: meta.Size}}
			} else {
				bs, err := NewBoundarySearch(d.r, d.bt)
				if err != nil {
					return nil, err
				}
				d.pending = &unsizedPartCanceler{bs: bs}
			}

			if err := d.finishPending(); err != nil {
				return nil, err
			}

			continue
		}

		body, canceler, err := d.openPartBody(meta)
		if err != nil {
			return nil, err
		}
		d.pending = canceler

		return newPartEntry(meta, body), nil
	}
}

// scanPreamble discards bytes up to and including the leading boundary
// marker B0, capped at 16 KiB.
func (d *MultipartDecoder) scanPreamble() error {
	bs, err := NewBoundarySearch(d.r, d.b0)
	if err != nil {
		return err
	}

	total := 0
	for {
		chunk, err := bs.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		total += len(chunk)
		if total > maxPreambleBytes {
			return fmt.Errorf("%w: multipart preamble exceeds %d bytes", ErrLimitExceeded, maxPreambleBytes)
		}
	}

	if !bs.Found() {
		return fmt.Errorf("%w: leading boundary not found", ErrUnexpectedEOF)
	}

	return nil
}

// readBoundaryTail reads the two bytes immediately following a boundary
// marker and reports whether they signal the closing "--".
func (d *MultipartDecoder) readBoundaryTail() (bool, error) {
	tail, err := pullExact(d.r, 2)
	if err != nil {
		return false, fmt.Errorf("%w: reading boundary tail", ErrUnexpectedEOF)
	}

	if string(tail) == "--" {
		return true, nil
	}

	if string(tail) != "\r\n" {
		return false, fmt.Errorf("%w: boundary not followed by CRLF or \"--\"", ErrBadHeader)
	}

	return false, nil
}

// readHeaders scans CRLF-terminated header lines until an empty line,
// enforcing the per-line and total size caps.
func (d *MultipartDecoder) readHeaders() (*MultipartHeaders, error) {
	headers := newMultipartHeaders()
	total := 0

	for {
		line, complete, err := d.readHeaderLine()
		if err != nil {
			return nil, err
		}
		if !complete {
			return nil, fmt.Errorf("%w: header section truncated", ErrUnexpectedEOF)
		}

		if len(line) == 0 {
			return headers, nil
		}

		total += len(line) + 2
		if total > maxHeadersTotal {
			return nil, fmt.Errorf("%w: multipart headers exceed %d bytes", ErrLimitExceeded, maxHeadersTotal)
		}

		if !utf8.Valid(line) {
			return nil, fmt.Errorf("%w: header line is not valid UTF-8", ErrBadHeader)
		}

		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			return nil, fmt.Errorf("%w: header line missing ':'", ErrBadHeader)
		}

		name := strings.TrimSpace(string(line[:colon]))
		value := strings.TrimSpace(string(line[colon+1:]))
		headers.add(name, value)
	}
}

// readHeaderLine reads one CRLF-terminated header line via BoundarySearch,
// enforcing the per-line size cap.
func (d *MultipartDecoder) readHeaderLine() ([]byte, bool, error) {
	bs, err := NewBoundarySearch(d.r, []byte("\r\n"))
	if err != nil {
		return nil, false, err
	}

	var line []byte
	for {
		chunk, err := bs.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}

		line = append(line, chunk...)
		if len(line) > maxHeaderLineBytes {
			return nil, false, fmt.Errorf("%w: header line exceeds %d bytes", ErrLimitExceeded, maxHeaderLineBytes)
		}
	}

	return line, bs.Found(), nil
}

// buildPartMeta validates Content-Disposition and parses the optional
// Content-Length header into a MultipartPartMeta.
func buildPartMeta(headers *MultipartHeaders) (MultipartPartMeta, error) {
	disp := headers.Get("content-disposition")

	name, filename, err := parseContentDisposition(disp)
	if err != nil {
		return MultipartPartMeta{}, err
	}
	if name == "" && filename == "" {
		return MultipartPartMeta{}, fmt.Errorf("%w: content-disposition missing name and filename", ErrBadHeader)
	}

	effectiveName := name
	if effectiveName == "" {
		effectiveName = filename
	}

	ctype := headers.Get("content-type")
	if ctype == "" {
		ctype = "application/octet-stream"
	}

	meta := MultipartPartMeta{
		Name:     effectiveName,
		Filename: filename,
		Type:     ctype,
		Headers:  headers,
	}

	if raw := headers.Get("content-length"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return MultipartPartMeta{}, fmt.Errorf("%w: invalid content-length %q", ErrBadHeader, raw)
		}

		meta.Size = n
		meta.HasSize = true
	}

	return meta, nil
}

// parseContentDisposition validates the "form-data" token and extracts
// the name= and filename= parameters, decoding each with the header
// field codec.
func parseContentDisposition(value string) (name, filename string, err error) {
	fields := strings.SplitN(value, ";", 2)
	if !strings.EqualFold(strings.TrimSpace(fields[0]), "form-data") {
		return "", "", fmt.Errorf("%w: content-disposition is not form-data", ErrBadHeader)
	}

	if len(fields) < 2 {
		return "", "", nil
	}

	rest := fields[1]
	for _, param := range splitParams(rest) {
		key, raw, ok := splitParam(param)
		if !ok {
			continue
		}

		decoded, err := unquoteHeaderField(raw)
		if err != nil {
			return "", "", err
		}

		switch strings.ToLower(key) {
		case "name":
			name = decoded
		case "filename":
			filename = decoded
		}
	}

	return name, filename, nil
}

// splitParams splits a "; key=value; key2=value2" tail into individual
// "key=value" parameters, respecting quoted-string boundaries so a ";"
// inside a quoted value is not treated as a separator.
func splitParams(s string) []string {
	var out []string

	var cur strings.Builder
	inQuotes := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		switch {
		case c == '\\' && inQuotes && i+1 < len(s):
			cur.WriteByte(c)
			cur.WriteByte(s[i+1])
			i++
		case c == '"':
			inQuotes = !inQuotes
			cur.WriteByte(c)
		case c == ';' && !inQuotes:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}

	out = append(out, cur.String())

	return out
}

// splitParam splits one "key=value" or "key=\"value\"" parameter,
// trimming surrounding whitespace and quotes.
func splitParam(param string) (key, value string, ok bool) {
	eq := strings.IndexByte(param, '=')
	if eq < 0 {
		return "", "", false
	}

	key = strings.TrimSpace(param[:eq])
	value = strings.TrimSpace(param[eq+1:])
	value = strings.TrimPrefix(value, `"`)
	value = strings.TrimSuffix(value, `"`)

	return key, value, key != ""
}

// openPartBody constructs the lazy payload ByteSource for a part,
// choosing the sized or boundary-terminated strategy, and returns the
// corresponding canceler the pipeline uses to finish it.
func (d *MultipartDecoder) openPartBody(meta MultipartPartMeta) (ByteSource, partCanceler, error) {
	if meta.HasSize {
		state := &sizedPartState{remaining: meta.Size}
		return &sizedPartSource{r: d.r, state: state}, &sizedPartCanceler{r: d.r, bt: d.bt, state: state}, nil
	}

	bs, err := NewBoundarySearch(d.r, d.bt)
	if err != nil {
		return nil, nil, err
	}

	return &unsizedPartSource{bs: bs}, &unsizedPartCanceler{bs: bs}, nil
}

func (d *MultipartDecoder) finishPending() error {
	if d.pending == nil {
		return nil
	}

	p := d.pending
	d.pending = nil

	return p.finish()
}

// pullExact reads exactly n bytes from r, across as many Pull calls as
// needed.
func pullExact(r *BlockReader, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		chunk, err := r.Pull(n - len(out))
		if len(chunk) > 0 {
			out = append(out, chunk...)
		}
		if err != nil {
			if len(out) < n {
				return nil, err
			}

			break
		}
	}

	return out, nil
}

type sizedPartState struct {
	remaining int64
}

type sizedPartSource struct {
	r      *BlockReader
	state  *sizedPartState
	closed bool
}

func (s *sizedPartSource) Next() ([]byte, error) {
	if s.closed || s.state.remaining <= 0 {
		return nil, io.EOF
	}

	chunk, err := s.r.Pull(int(s.state.remaining))
	if err != nil {
		return nil, fmt.Errorf("%w: reading sized multipart part", ErrUnexpectedEOF)
	}

	out := append([]byte(nil), chunk...)
	s.state.remaining -= int64(len(out))

	return out, nil
}

func (s *sizedPartSource) Close() error {
	s.closed = true
	return nil
}

// sizedPartCanceler finishes a sized part: skip whatever payload the
// caller never pulled, then verify the trailer bytes.
type sizedPartCanceler struct {
	r     *BlockReader
	bt    []byte
	state *sizedPartState
}

func (c *sizedPartCanceler) finish() error {
	if c.state.remaining > 0 {
		left, err := c.r.Skip(int(c.state.remaining))
		if err != nil {
			return err
		}
		if left > 0 {
			return fmt.Errorf("%w: truncated sized multipart part", ErrUnexpectedEOF)
		}
		c.state.remaining = 0
	}

	got, err := pullExact(c.r, len(c.bt))
	if err != nil {
		return fmt.Errorf("%w: reading multipart trailer", ErrUnexpectedEOF)
	}
	if !bytes.Equal(got, c.bt) {
		return fmt.Errorf("%w: sized multipart part trailer mismatch", ErrBadBoundary)
	}

	return nil
}

// unsizedPartSource yields pre-boundary bytes from a BoundarySearch,
// copying every chunk before handing it to the caller.
type unsizedPartSource struct {
	bs     *BoundarySearch
	closed bool
}

func (s *unsizedPartSource) Next() ([]byte, error) {
	if s.closed {
		return nil, io.EOF
	}

	chunk, err := s.bs.Next()
	if err == io.EOF {
		if !s.bs.Found() {
			return nil, fmt.Errorf("%w: multipart part boundary not found", ErrUnexpectedEOF)
		}

		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}

	return append([]byte(nil), chunk...), nil
}

func (s *unsizedPartSource) Close() error {
	s.closed = true
	return nil
}

// unsizedPartCanceler drains the rest of a boundary-terminated part.
type unsizedPartCanceler struct {
	bs *BoundarySearch
}

func (c *unsizedPartCanceler) finish() error {
	if c.bs.Found() {
		return nil
	}

	if err := c.bs.Drain(); err != nil {
		return err
	}
	if !c.bs.Found() {
		return fmt.Errorf("%w: multipart part boundary not found", ErrUnexpectedEOF)
	}

	return nil
}
