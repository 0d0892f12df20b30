// SPDX-License-Identifier: MIT
// Copyright (c) 2026 streambox authors

package streambox

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// maxPaxRecordScratch bounds a single PAX/GNU-long control payload kept
// fully in memory; anything larger is almost certainly a corrupt size
// field rather than a legitimate long name or attribute list.
const maxPaxRecordScratch = 1 << 20

// TarReadOptions configures TarDecoder.
type TarReadOptions struct {
	// Filter, if set, is consulted once per entry, before its payload
	// stream is constructed; excluded entries are skipped without ever
	// allocating a payload reader.
	Filter *EntryFilter
}

func (o *TarReadOptions) applyDefaults() {}

// tarExtended holds PAX/GNU override fields that may apply to a header,
// either as the persistent global defaults or as a single entry's local
// overrides.
type tarExtended struct {
	name     *string
	linkName *string
	size     *int64
	uid      *int64
	gid      *int64
	mode     *int64
	mtime    *int64
	uname    *string
	gname    *string
}

// mergeExtended returns the field-by-field merge of base (defaults,
// typically the global state) with override (typically local PAX
// records for the current entry): any field set in override wins.
func mergeExtended(base, override tarExtended) tarExtended {
	out := base
	if override.name != nil {
		out.name = override.name
	}
	if override.linkName != nil {
		out.linkName = override.linkName
	}
	if override.size != nil {
		out.size = override.size
	}
	if override.uid != nil {
		out.uid = override.uid
	}
	if override.gid != nil {
		out.gid = override.gid
	}
	if override.mode != nil {
		out.mode = override.mode
	}
	if override.mtime != nil {
		out.mtime = override.mtime
	}
	if override.uname != nil {
		out.uname = override.uname
	}
	if override.gname != nil {
		out.gname = override.gname
	}

	return out
}

// tarPendingEntry tracks the not-yet-fully-drained payload of the
// entry most recently handed to the caller, so the decoder can cancel
// it uniformly whether the caller consumed it, skipped it, or never
// touched it at all.
type tarPendingEntry struct {
	remaining int64 // payload bytes not yet pulled
	pad       int64 // trailing block-alignment padding, never exposed
}

// TarDecoder decodes a tar archive, read from a BlockReader over 512-byte
// blocks, into a lazy sequence of entries.
type TarDecoder struct {
	r       *BlockReader
	opts    TarReadOptions
	global  tarExtended
	pending *tarPendingEntry
	done    bool
}

// NewTarDecoder returns a TarDecoder reading 512-byte tar blocks from src.
func NewTarDecoder(src ByteSource, opts TarReadOptions) *TarDecoder {
	opts.applyDefaults()
	return &TarDecoder{r: NewBlockReader(src, tarBlockSize), opts: opts}
}

// Next returns the next entry, or io.EOF once the archive terminator (or
// source EOF) is reached. Any payload left over from the previous entry
// is cancelled first.
func (d *TarDecoder) Next() (*Entry, error) {
	if d.done {
		return nil, io.EOF
	}

	if err := d.finishPending(); err != nil {
		return nil, err
	}

	var local tarExtended
	var longName, longLinkName string
	haveLong, haveLongLink := false, false

	for {
		block, err := d.r.ReadBlock(false)
		if err == io.EOF {
			d.done = true
			_ = d.r.Close()
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}

		if isZeroBlock(block) {
			d.done = true
			_ = d.r.Close()
			return nil, io.EOF
		}

		hdr, err := decodeTarHeader(block)
		if err != nil {
			return nil, err
		}

		if !hdr.hasMagic {
			return nil, fmt.Errorf("%w: unexpected non-header block", ErrBadHeader)
		}

		recognised := isRecognisedTypeflag(hdr.typeflag)
		if !hdr.checksumOK && !recognised {
			return nil, fmt.Errorf("%w: typeflag %q", ErrBadChecksum, hdr.typeflag)
		}

		switch hdr.typeflag {
		case tfPAXLocal, tfPAXLocalAlt:
			payload, err := readBlockAlignedPayload(d.r, hdr.size)
			if err != nil {
				return nil, err
			}
			local = mergeExtended(local, applyPaxRecords(parsePaxRecords(payload)))

			continue

		case tfPAXGlobal:
			payload, err := readBlockAlignedPayload(d.r, hdr.size)
			if err != nil {
				return nil, err
			}
			d.global = mergeExtended(d.global, applyPaxRecords(parsePaxRecords(payload)))

			continue

		case tfGNULongName, tfGNULongNameAlt:
			payload, err := readBlockAlignedPayload(d.r, hdr.size)
			if err != nil {
				return nil, err
			}
			longName = decodeTarString(payload)
			haveLong = true

			continue

		case tfGNULongLink:
			payload, err := readBlockAlignedPayload(d.r, hdr.size)
			if err != nil {
				return nil, err
			}
			longLinkName = decodeTarString(payload)
			haveLongLink = true

			continue
		}

		eff := mergeExtended(d.global, local)

		name := hdr.name
		if hdr.prefix != "" {
			name = hdr.prefix + "/" + hdr.name
		}
		if eff.name != nil {
			name = *eff.name
		}
		if haveLong {
			name = longName
		}

		linkname := hdr.linkname
		if eff.linkName != nil {
			linkname = *eff.linkName
		}
		if haveLongLink {
			linkname = longLinkName
		}

		size := hdr.size
		if eff.size != nil {
			size = *eff.size
		}

		mode := hdr.mode
		if eff.mode != nil {
			mode = *eff.mode
		}
		uid := hdr.uid
		if eff.uid != nil {
			uid = *eff.uid
		}
		gid := hdr.gid
		if eff.gid != nil {
			gid = *eff.gid
		}
		mtime := hdr.mtime
		if eff.mtime != nil {
			mtime = *eff.mtime
		}
		uname := hdr.uname
		if eff.uname != nil {
			uname = *eff.uname
		}
		gname := hdr.gname
		if eff.gname != nil {
			gname = *eff.gname
		}

		kind := classifyTypeflag(hdr.typeflag)
		if hdr.typeflag == tfRegularOld && strings.HasSuffix(name, "/") {
			kind = KindDirectory
		}

		meta := TarEntryMeta{
			Name:     name,
			Kind:     kind,
			Size:     size,
			ModTime:  secondsToTime(mtime),
			Mode:     mode,
			UID:      uid,
			GID:      gid,
			Uname:    uname,
			Gname:    gname,
			DevMajor: hdr.devmajor,
			DevMinor: hdr.devminor,
			Linkname: linkname,
		}

		pad := (tarBlockSize - size%tarBlockSize) % tarBlockSize
		pend := &tarPendingEntry{remaining: size, pad: pad}
		d.pending = pend

		if d.opts.Filter != nil && !d.opts.Filter.Include(meta.Name) {
			if err := d.finishPending(); err != nil {
				return nil, err
			}

			continue
		}

		entry := newEntry(meta, newTarPayloadSource(d.r, pend))

		return entry, nil
	}
}

// finishPending cancels whatever is left of the previously yielded
// entry's payload: any payload bytes the caller never pulled, plus the
// trailing block-alignment padding, which is never part of the payload
// a caller sees.
func (d *TarDecoder) finishPending() error {
	if d.pending == nil {
		return nil
	}

	toSkip := d.pending.remaining + d.pending.pad
	d.pending.remaining = 0
	d.pending.pad = 0
	d.pending = nil

	if toSkip <= 0 {
		return nil
	}

	left, err := d.r.Skip(int(toSkip))
	if err != nil {
		return err
	}
	if left > 0 {
		return fmt.Errorf("%w: truncated tar payload", ErrUnexpectedEOF)
	}

	return nil
}

// isRecognisedTypeflag reports whether b is one of the typeflag values
// the state machine understands, which governs whether a checksum
// mismatch is tolerated (recognised) or fatal (unrecognised).
func isRecognisedTypeflag(b byte) bool {
	switch b {
	case tfRegularOld, tfRegular, tfLink, tfSymlink, tfCharDevice, tfBlockDevice,
		tfDirectory, tfFifo, tfContiguous, tfGNULongLink, tfGNULongName, tfGNUSparse,
		tfPAXLocal, tfPAXGlobal, tfPAXLocalAlt, tfGNULongNameAlt:
		return true
	default:
		return false
	}
}

// classifyTypeflag maps a typeflag byte to its EntryKind, falling back
// to KindFile for recognised-but-uncategorized types (char/block device,
// fifo, GNU sparse) since this library surfaces metadata but never
// interprets device or sparse semantics.
func classifyTypeflag(b byte) EntryKind {
	switch b {
	case tfLink:
		return KindLink
	case tfSymlink:
		return KindSymlink
	case tfDirectory:
		return KindDirectory
	default:
		return KindFile
	}
}

// secondsToTime converts a tar mtime (whole seconds since epoch) to
// time.Time in UTC.
func secondsToTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// readBlockAlignedPayload reads exactly size bytes from r, across as
// many blocks as needed (the fix for the single-block GNU long-name
// truncation bug: every byte of the declared size is read, however many
// blocks that takes), then discards the trailing padding up to the next
// 512-byte boundary.
func readBlockAlignedPayload(r *BlockReader, size int64) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative control payload size", ErrBadHeader)
	}
	if size > maxPaxRecordScratch {
		return nil, fmt.Errorf("%w: control payload of %d bytes exceeds scratch limit", ErrBadHeader, size)
	}

	out := make([]byte, 0, size)
	remaining := size
	for remaining > 0 {
		chunk, err := r.Pull(int(remaining))
		if err != nil {
			return nil, fmt.Errorf("%w: reading control payload", ErrUnexpectedEOF)
		}

		out = append(out, chunk...)
		remaining -= int64(len(chunk))
	}

	pad := (tarBlockSize - size%tarBlockSize) % tarBlockSize
	if pad > 0 {
		left, err := r.Skip(int(pad))
		if err != nil {
			return nil, err
		}
		if left > 0 {
			return nil, fmt.Errorf("%w: truncated control payload padding", ErrUnexpectedEOF)
		}
	}

	return out, nil
}

// parsePaxRecords splits a PAX extended-attribute payload into KEY=VALUE
// records. A malformed record aborts the loop and returns whatever was
// parsed so far; per the documented policy, the remaining bytes were
// already fully consumed by the caller via readBlockAlignedPayload, they
// are simply not applied.
func parsePaxRecords(payload []byte) map[string]string {
	records := make(map[string]string)

	for len(payload) > 0 {
		sp := bytes.IndexByte(payload, ' ')
		if sp <= 0 {
			break
		}

		length, err := strconv.Atoi(string(payload[:sp]))
		if err != nil || length <= sp || length > len(payload) {
			break
		}

		rec := payload[sp+1 : length]
		if len(rec) == 0 || rec[len(rec)-1] != '\n' {
			break
		}
		rec = rec[:len(rec)-1]

		eq := bytes.IndexByte(rec, '=')
		if eq < 0 {
			break
		}

		records[string(rec[:eq])] = string(rec[eq+1:])
		payload = payload[length:]
	}

	return records
}

// applyPaxRecords maps recognised PAX keys onto a tarExtended override
// set; unrecognised keys are ignored.
func applyPaxRecords(records map[string]string) tarExtended {
	var ext tarExtended

	for key, value := range records {
		switch key {
		case "path":
			v := value
			ext.name = &v
		case "linkpath":
			v := value
			ext.linkName = &v
		case "size":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				ext.size = &n
			}
		case "uid":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				ext.uid = &n
			}
		case "gid":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				ext.gid = &n
			}
		case "mode":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				ext.mode = &n
			}
		case "mtime":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				n := int64(math.Trunc(f))
				ext.mtime = &n
			}
		case "uname":
			v := value
			ext.uname = &v
		case "gname":
			v := value
			ext.gname = &v
		}
	}

	return ext
}

// tarPayloadSource is the ByteSource backing one tar entry's payload. It
// pulls directly from the shared BlockReader and copies every chunk,
// since the reader's internal buffer is reused on the next call.
type tarPayloadSource struct {
	r      *BlockReader
	pend   *tarPendingEntry
	closed bool
}

func newTarPayloadSource(r *BlockReader, pend *tarPendingEntry) ByteSource {
	return &tarPayloadSource{r: r, pend: pend}
}

func (s *tarPayloadSource) Next() ([]byte, error) {
	if s.closed || s.pend.remaining <= 0 {
		return nil, io.EOF
	}

	want := s.pend.remaining
	const maxPull = 64 * 1024
	if want > maxPull {
		want = maxPull
	}

	chunk, err := s.r.Pull(int(want))
	if err != nil {
		return nil, fmt.Errorf("%w: reading tar payload", ErrUnexpectedEOF)
	}

	out := append([]byte(nil), chunk...)
	s.pend.remaining -= int64(len(out))

	return out, nil
}

func (s *tarPayloadSource) Close() error {
	s.closed = true
	return nil
}
