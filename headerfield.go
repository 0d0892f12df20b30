// SPDX-License-Identifier: MIT
// Copyright (c) 2026 streambox authors

package streambox

import (
	"fmt"
	"strconv"
	"strings"
)

// quoteHeaderField encodes s for use inside a quoted Content-Disposition
// parameter value: backslash, double-quote, and newline are escaped;
// everything else passes through literally. This follows the permissive
// "workerd" quoting convention rather than RFC 5987 percent-encoding.
func quoteHeaderField(s string) string {
	if !strings.ContainsAny(s, "\\\"\n") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString("%22")
		case '\n':
			b.WriteString("%0A")
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

// unquoteHeaderField decodes a quoted Content-Disposition parameter
// value, reversing quoteHeaderField and additionally recognising
// \uXXXX, \xXX, \b, \f, \n, \r, \t escapes and any %XX percent-escape.
func unquoteHeaderField(s string) (string, error) {
	if !strings.ContainsAny(s, "\\%") {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		c := s[i]

		switch {
		case c == '\\' && i+1 < len(s):
			n, consumed, err := decodeBackslashEscape(s[i:])
			if err != nil {
				return "", err
			}
			b.WriteString(n)
			i += consumed

		case c == '%' && i+2 < len(s):
			v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				b.WriteByte(c)
				i++
				continue
			}
			b.WriteByte(byte(v))
			i += 3

		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String(), nil
}

// decodeBackslashEscape decodes one backslash escape at the start of s,
// returning its expansion and how many bytes of s it consumed.
func decodeBackslashEscape(s string) (string, int, error) {
	switch s[1] {
	case '\\':
		return `\`, 2, nil
	case '"':
		return `"`, 2, nil
	case 'n':
		return "\n", 2, nil
	case 'r':
		return "\r", 2, nil
	case 't':
		return "\t", 2, nil
	case 'b':
		return "\b", 2, nil
	case 'f':
		return "\f", 2, nil
	case 'x':
		if len(s) < 4 {
			return "", 0, fmt.Errorf("%w: truncated \\x escape", ErrBadHeader)
		}
		v, err := strconv.ParseUint(s[2:4], 16, 8)
		if err != nil {
			return "", 0, fmt.Errorf("%w: invalid \\x escape", ErrBadHeader)
		}

		return string([]byte{byte(v)}), 4, nil
	case 'u':
		if len(s) < 6 {
			return "", 0, fmt.Errorf("%w: truncated \\u escape", ErrBadHeader)
		}
		v, err := strconv.ParseUint(s[2:6], 16, 16)
		if err != nil {
			return "", 0, fmt.Errorf("%w: invalid \\u escape", ErrBadHeader)
		}

		return string(rune(v)), 6, nil
	default:
		return `\` + string(s[1]), 2, nil
	}
}

// formatContentDisposition builds a "form-data; name=...[; filename=...]"
// value for the emit side, always quoting both parameters.
func formatContentDisposition(name, filename string) string {
	v := `form-data; name="` + quoteHeaderField(name) + `"`
	if filename != "" {
		v += `; filename="` + quoteHeaderField(filename) + `"`
	}

	return v
}
