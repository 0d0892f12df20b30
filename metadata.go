// SPDX-License-Identifier: MIT
// Copyright (c) 2026 streambox authors

package streambox

import "io"

// ListTarEntries decodes every entry of a tar archive, skipping each
// payload via the ordinary skip protocol, and returns only the
// metadata. It never materializes a payload in memory, so it is safe
// to run over an archive of unbounded size.
func ListTarEntries(src ByteSource, opts TarReadOptions) ([]TarEntryMeta, error) {
	dec := NewTarDecoder(src, opts)

	var out []TarEntryMeta
	for {
		entry, err := dec.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		out = append(out, entry.TarMeta())

		if err := entry.Cancel(); err != nil {
			return nil, err
		}
	}
}

// ListMultipartParts decodes every part of a multipart/form-data body,
// skipping each payload, and returns only the metadata.
func ListMultipartParts(src ByteSource, opts MultipartReadOptions) ([]MultipartPartMeta, error) {
	dec, err := NewMultipartDecoder(src, opts)
	if err != nil {
		return nil, err
	}

	var out []MultipartPartMeta
	for {
		entry, err := dec.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		out = append(out, entry.PartMeta())

		if err := entry.Cancel(); err != nil {
			return nil, err
		}
	}
}
