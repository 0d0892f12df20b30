// SPDX-License-Identifier: MIT
// Copyright (c) 2026 streambox authors

package streambox

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// tarBlockBufferPool reuses the fixed 512-byte arrays backing header
// blocks and payload padding between WriteEntry calls, the same
// per-call buffer reuse the teacher applies via its
// defaultPackCopyBufferPool.
var tarBlockBufferPool = sync.Pool{
	New: func() any {
		return new([tarBlockSize]byte)
	},
}

// acquireTarBlock returns a zeroed, tarBlockSize-length buffer backed
// by tarBlockBufferPool. Zeroing matters beyond hygiene: the trailing
// USTAR bytes past the prefix field (offPrefix+lenPrefix..tarBlockSize)
// are never written by any field encoder but are still summed by
// writeTarChecksum, so a reused buffer's stale bytes would otherwise
// leak into the checksum and violate the all-NUL padding convention.
func acquireTarBlock() (*[tarBlockSize]byte, []byte) {
	arr := tarBlockBufferPool.Get().(*[tarBlockSize]byte) //nolint:forcetypeassert // pool contains only tarBlockSize arrays
	clear(arr[:])

	return arr, arr[:]
}

// TarEncoder writes a tar archive to an io.Writer, one entry at a time.
type TarEncoder struct {
	w      io.Writer
	closed bool
}

// NewTarEncoder returns a TarEncoder writing USTAR blocks to w.
func NewTarEncoder(w io.Writer) *TarEncoder {
	return &TarEncoder{w: w}
}

// WriteEntry writes one entry's header (plus any PAX/long-name records
// it requires) and its payload, padded to the next 512-byte boundary.
func (e *TarEncoder) WriteEntry(in TarEntryInput) error {
	if in.Size < 0 {
		return fmt.Errorf("%w: negative entry size", ErrBadNumeric)
	}

	name := in.Name
	if in.Kind == KindDirectory && !strings.HasSuffix(name, "/") {
		name += "/"
	}

	mode := in.Mode
	if mode == 0 {
		if in.Kind == KindDirectory {
			mode = 0o755
		} else {
			mode = 0o644
		}
	}

	modTime := in.ModTime
	if modTime.IsZero() {
		modTime = currentTime()
	}

	prefix, shortName, paxName := splitTarName(name)
	linkname := in.Linkname
	paxLinkname := ""
	if len(linkname) > 100 {
		paxLinkname = linkname
		linkname = ""
	}

	if paxName != "" || paxLinkname != "" {
		if err := e.writePaxHeader(paxName, paxLinkname); err != nil {
			return err
		}
	}

	wireSize := in.Size
	if in.Kind != KindFile {
		wireSize = 0
	}

	blockArr, block := acquireTarBlock()
	defer tarBlockBufferPool.Put(blockArr)

	encodeTarString(block[offName:offName+lenName], shortName)
	if err := encodeTarNumeric(block[offMode:offMode+lenMode], mode); err != nil {
		return err
	}
	if err := encodeTarNumeric(block[offUID:offUID+lenUID], in.UID); err != nil {
		return err
	}
	if err := encodeTarNumeric(block[offGID:offGID+lenGID], in.GID); err != nil {
		return err
	}
	if err := encodeTarNumeric(block[offSize:offSize+lenSize], wireSize); err != nil {
		return err
	}
	if err := encodeTarNumeric(block[offMtime:offMtime+lenMtime], modTime.Unix()); err != nil {
		return err
	}
	block[offTypeflag] = typeflagFor(in.Kind)
	encodeTarString(block[offLinkname:offLinkname+lenLinkname], linkname)
	copy(block[offMagic:offMagic+lenMagic], tarMagicUSTAR[:6])
	copy(block[offVersion:offVersion+lenVersion], tarMagicUSTAR[6:8])
	encodeTarString(block[offUname:offUname+lenUname], in.Uname)
	encodeTarString(block[offGname:offGname+lenGname], in.Gname)
	if err := encodeTarNumeric(block[offDevmajor:offDevmajor+lenDevmajor], in.DevMajor); err != nil {
		return err
	}
	if err := encodeTarNumeric(block[offDevminor:offDevminor+lenDevminor], in.DevMinor); err != nil {
		return err
	}
	encodeTarString(block[offPrefix:offPrefix+lenPrefix], prefix)
	writeTarChecksum(block)

	if _, err := e.w.Write(block); err != nil {
		return err
	}

	if in.Kind != KindFile {
		if in.Body != nil {
			if err := drainByteSource(in.Body); err != nil {
				return err
			}
		}

		return nil
	}

	return e.writePayload(in.Body, in.Size)
}

// Close writes the two all-zero blocks that terminate the archive.
func (e *TarEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	zero := make([]byte, tarBlockSize*2)
	_, err := e.w.Write(zero)

	return err
}

// splitTarName resolves name into a USTAR prefix+name split when it
// fits 155+100 bytes on a "/" boundary, otherwise into a synthetic
// short name plus a PAX "path" override.
func splitTarName(name string) (prefix, shortName, paxName string) {
	if len(name) <= lenName {
		return "", name, ""
	}

	for i := len(name) - 1; i >= 0; i-- {
		if name[i] != '/' {
			continue
		}

		p, n := name[:i], name[i+1:]
		if len(p) <= lenPrefix && len(n) <= lenName {
			return p, n, ""
		}
	}

	return "", paxHeaderShortName(name), name
}

// paxHeaderShortName synthesizes a short placeholder name for an entry
// whose real name only fits in a PAX "path" record.
func paxHeaderShortName(name string) string {
	base := name
	if len(base) > 99 {
		base = base[len(base)-99:]
	}

	return "PaxHeader/" + base
}

// writePaxHeader emits a typeflag 'x' block carrying path/linkpath
// overrides, followed by its payload and padding.
func (e *TarEncoder) writePaxHeader(paxName, paxLinkname string) error {
	var payload []byte
	if paxName != "" {
		payload = append(payload, encodePaxRecord("path", paxName)...)
	}
	if paxLinkname != "" {
		payload = append(payload, encodePaxRecord("linkpath", paxLinkname)...)
	}

	blockArr, block := acquireTarBlock()
	defer tarBlockBufferPool.Put(blockArr)

	shortName := "PaxHeader/pax"
	encodeTarString(block[offName:offName+lenName], shortName)
	_ = encodeTarNumeric(block[offMode:offMode+lenMode], 0o644)
	_ = encodeTarNumeric(block[offSize:offSize+lenSize], int64(len(payload)))
	_ = encodeTarNumeric(block[offMtime:offMtime+lenMtime], currentTime().Unix())
	block[offTypeflag] = tfPAXLocal
	copy(block[offMagic:offMagic+lenMagic], tarMagicUSTAR[:6])
	copy(block[offVersion:offVersion+lenVersion], tarMagicUSTAR[6:8])
	writeTarChecksum(block)

	if _, err := e.w.Write(block); err != nil {
		return err
	}

	return e.writeRawPayload(payload)
}

// encodePaxRecord formats one "LEN KEY=VALUE\n" record, accounting for
// the fact that LEN includes the width of its own decimal digits.
func encodePaxRecord(key, value string) []byte {
	// "KEY=VALUE\n" plus the digits of the total length plus one space.
	body := key + "=" + value + "\n"
	base := len(body) + 1 // +1 for the space after the length digits
	n := base
	for {
		candidate := base + len(itoa(n))
		if candidate == n {
			break
		}
		n = candidate
	}

	return []byte(itoa(n) + " " + body)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	neg := n < 0
	if neg {
		n = -n
	}

	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}

	if neg {
		i--
		buf[i] = '-'
	}

	return string(buf[i:])
}

// writeRawPayload writes payload followed by zero padding to the next
// 512-byte boundary.
func (e *TarEncoder) writeRawPayload(payload []byte) error {
	if _, err := e.w.Write(payload); err != nil {
		return err
	}

	pad := (tarBlockSize - len(payload)%tarBlockSize) % tarBlockSize
	if pad == 0 {
		return nil
	}

	padArr, padBuf := acquireTarBlock()
	defer tarBlockBufferPool.Put(padArr)

	_, err := e.w.Write(padBuf[:pad])

	return err
}

// writePayload streams body (copying each chunk through, as required
// for FILE entries) and pads to the next 512-byte boundary.
func (e *TarEncoder) writePayload(body ByteSource, size int64) error {
	var written int64

	if body != nil {
		for {
			chunk, err := body.Next()
			if len(chunk) > 0 {
				if _, werr := e.w.Write(chunk); werr != nil {
					return werr
				}
				written += int64(len(chunk))
			}

			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
		}
	}

	if written != size {
		return fmt.Errorf("%w: wrote %d bytes, declared size %d", ErrBadNumeric, written, size)
	}

	pad := (tarBlockSize - size%tarBlockSize) % tarBlockSize
	if pad == 0 {
		return nil
	}

	padArr, padBuf := acquireTarBlock()
	defer tarBlockBufferPool.Put(padArr)

	_, err := e.w.Write(padBuf[:pad])

	return err
}

// typeflagFor maps an EntryKind to its wire typeflag byte.
func typeflagFor(k EntryKind) byte {
	switch k {
	case KindLink:
		return tfLink
	case KindSymlink:
		return tfSymlink
	case KindDirectory:
		return tfDirectory
	default:
		return tfRegular
	}
}

// drainByteSource exhausts body without retaining its bytes, used when
// a non-FILE entry is given a Body the encoder must still cancel
// cleanly (symlinks and directories write size 0 on the wire
// regardless).
func drainByteSource(body ByteSource) error {
	defer body.Close()

	for {
		_, err := body.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// currentTime is a seam so tests can pin mtime defaults deterministically.
var currentTime = time.Now
