package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExportName(t *testing.T) {
	tests := map[string]string{
		"On the Road":        "on-the-road.html",
		"  Notes: part 2!  ": "notes-part-2.html",
		"???":                "document.html",
		"Café au lait":       "café-au-lait.html",
	}
	for title, want := range tests {
		if got := exportName(title); got != want {
			t.Fatalf("exportName(%q) = %q, want %q", title, got, want)
		}
	}
}

func TestTrimmedTitle(t *testing.T) {
	short := "A short title"
	if got := trimmedTitle(short); got != short {
		t.Fatalf("short title changed to %q", got)
	}
	long := strings.Repeat("é", 80)
	got := trimmedTitle(long)
	if !strings.HasSuffix(got, "…") || len([]rune(got)) != 58 {
		t.Fatalf("trimmedTitle produced %q (%d runes)", got, len([]rune(got)))
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath(`"~/docs/a.txt"`); got != filepath.Join(home, "docs/a.txt") {
		t.Fatalf("expandPath = %q", got)
	}
	if got := expandPath(" /tmp/a.txt "); got != "/tmp/a.txt" {
		t.Fatalf("expandPath = %q", got)
	}
}

func TestImportJobReportsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.txt")
	payload, err := importJob(path)(context.Background())
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
	msg, ok := payload.(importResultMsg)
	if !ok || msg.err == nil || msg.path != path {
		t.Fatalf("unexpected payload %#v", payload)
	}
}

func TestExportJobWritesPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "doc.html")
	payload, err := exportJob(path, "<html></html>")(context.Background())
	if err != nil {
		t.Fatalf("export job: %v", err)
	}
	if msg := payload.(exportResultMsg); msg.path != path {
		t.Fatalf("payload path = %q", msg.path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "<html></html>" {
		t.Fatalf("written page = %q, %v", data, err)
	}
}
