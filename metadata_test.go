// SPDX-License-Identifier: MIT
// Copyright (c) 2026 streambox authors

package streambox

import (
	"bytes"
	"strings"
	"testing"
)

func TestListTarEntriesMatchesFullDecode(t *testing.T) {
	var buf bytes.Buffer
	enc := NewTarEncoder(&buf)
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		body := []byte(name)
		if err := enc.WriteEntry(TarEntryInput{
			Name: name,
			Kind: KindFile,
			Size: int64(len(body)),
			Body: NewReaderSource(bytes.NewReader(body), 4096),
		}); err != nil {
			t.Fatalf("WriteEntry(%s): %v", name, err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	metas, err := ListTarEntries(NewReaderSource(bytes.NewReader(buf.Bytes()), 4096), TarReadOptions{})
	if err != nil {
		t.Fatalf("ListTarEntries: %v", err)
	}

	if len(metas) != 3 {
		t.Fatalf("got %d entries, want 3", len(metas))
	}
	for i, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if metas[i].Name != name {
			t.Fatalf("metas[%d].Name=%q, want %q", i, metas[i].Name, name)
		}
		if metas[i].Size != int64(len(name)) {
			t.Fatalf("metas[%d].Size=%d, want %d", i, metas[i].Size, len(name))
		}
	}
}

func TestListMultipartPartsMatchesFullDecode(t *testing.T) {
	boundary := "boundary123"
	var buf bytes.Buffer
	enc := NewMultipartEncoder(&buf, boundary)
	for _, name := range []string{"x", "y"} {
		if err := enc.WriteField(FieldInput{Name: name, Body: NewReaderSource(strings.NewReader(name+"!"), 0)}); err != nil {
			t.Fatalf("WriteField(%s): %v", name, err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	metas, err := ListMultipartParts(NewReaderSource(bytes.NewReader(buf.Bytes()), 4096), MultipartReadOptions{
		ContentType: "multipart/form-data; boundary=" + boundary,
	})
	if err != nil {
		t.Fatalf("ListMultipartParts: %v", err)
	}

	if len(metas) != 2 {
		t.Fatalf("got %d parts, want 2", len(metas))
	}
	for i, name := range []string{"x", "y"} {
		if metas[i].Name != name {
			t.Fatalf("metas[%d].Name=%q, want %q", i, metas[i].Name, name)
		}
	}
}
