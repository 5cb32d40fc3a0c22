package importer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/csheth/readmark/internal/domain"
)

func TestDecode(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name        string
		data        []byte
		wantText    string
		wantCharset string
	}{
		{"utf8", []byte("naïve café"), "naïve café", "UTF-8"},
		{"utf8 bom", append([]byte{0xEF, 0xBB, 0xBF}, "hello"...), "hello", "UTF-8"},
		{"utf16le bom", []byte{0xFF, 0xFE, 'h', 0, 'i', 0}, "hi", "UTF-16LE"},
		{"utf16be bom", []byte{0xFE, 0xFF, 0, 'h', 0, 'i'}, "hi", "UTF-16BE"},
		{"windows-1252", []byte("caf\xe9 \x93quoted\x94"), "café “quoted”", "Windows-1252"},
		{"empty", nil, "", "UTF-8"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			text, charset := Decode(tc.data)
			if text != tc.wantText || charset != tc.wantCharset {
				t.Fatalf("Decode = (%q, %q), want (%q, %q)", text, charset, tc.wantText, tc.wantCharset)
			}
		})
	}
}

func TestFromFileText(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "My Essay.txt")
	if err := os.WriteFile(path, []byte("First.\n\nSecond."), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if src.Title != "My Essay" || src.Body != "First.\n\nSecond." || src.Charset != "UTF-8" {
		t.Fatalf("unexpected source %+v", src)
	}
}

func TestFromFileSniffsUnknownExtensions(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	textPath := filepath.Join(dir, "notes.log")
	if err := os.WriteFile(textPath, []byte("plain words here"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := FromFile(textPath); err != nil {
		t.Fatalf("text with unknown extension should import: %v", err)
	}

	binPath := filepath.Join(dir, "image.png")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if err := os.WriteFile(binPath, png, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := FromFile(binPath); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestFromFileRejectsEmptyText(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "blank.txt")
	if err := os.WriteFile(path, []byte(" \n\n "), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := FromFile(path); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTitleFromPath(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"/tmp/book.txt":         "book",
		"archive.tar.md":        "archive.tar",
		"/tmp/.txt":             domain.DefaultTitle,
		"relative/dir/Chapter1": "Chapter1",
	}
	for path, want := range cases {
		if got := TitleFromPath(path); got != want {
			t.Fatalf("TitleFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}
