// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadFromPath(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{name: "plain", content: "hunter2", want: "hunter2"},
		{name: "trailing newline", content: "hunter2\n", want: "hunter2"},
		{name: "surrounding whitespace", content: "  hunter2 \t\n", want: "hunter2"},
		{name: "empty", content: "", wantErr: true},
		{name: "whitespace only", content: " \n\t\n", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(tempDir, strings.ReplaceAll(test.name, " ", "-"))
			if err := os.WriteFile(path, []byte(test.content), 0600); err != nil {
				t.Fatalf("writing password file: %v", err)
			}

			buffer, err := ReadFromPath(path)
			if test.wantErr {
				if err == nil {
					buffer.Close()
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadFromPath: %v", err)
			}
			defer buffer.Close()
			if buffer.String() != test.want {
				t.Errorf("ReadFromPath = %q, want %q", buffer.String(), test.want)
			}
		})
	}
}

func TestReadFromPathMissingFile(t *testing.T) {
	_, err := ReadFromPath(filepath.Join(t.TempDir(), "absent"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReadFirstLine(t *testing.T) {
	buffer, err := readFirstLine(strings.NewReader("from-stdin\nignored\n"))
	if err != nil {
		t.Fatalf("readFirstLine: %v", err)
	}
	defer buffer.Close()
	if buffer.String() != "from-stdin" {
		t.Errorf("readFirstLine = %q, want %q", buffer.String(), "from-stdin")
	}

	if _, err := readFirstLine(strings.NewReader("")); err == nil {
		t.Error("expected error for empty input")
	}
}
