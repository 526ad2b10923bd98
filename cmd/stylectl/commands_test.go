package main

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/dunamismax/styleflow/internal/catalog"
)

func TestPrintStyles(t *testing.T) {
	var out bytes.Buffer
	if err := printStyles(&out, catalog.Default().List()); err != nil {
		t.Fatalf("print styles: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 7 {
		t.Fatalf("expected header plus 6 presets, got %d lines:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[1], "van-gogh") {
		t.Fatalf("expected van-gogh first, got %q", lines[1])
	}
}

func TestOpenImageDetectsMimeType(t *testing.T) {
	path := t.TempDir() + "/photo.PNG"
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	file, closeFile, err := openImage(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFile()
	if file.MimeType != "image/png" {
		t.Fatalf("unexpected mime type %q", file.MimeType)
	}
	if file.Name != "photo.PNG" || file.Size != 1 {
		t.Fatalf("unexpected file %+v", file)
	}
}
