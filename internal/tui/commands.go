package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/readmark/internal/importer"
)

func importJob(path string) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		if err := ctx.Err(); err != nil {
			return importResultMsg{path: path, err: err}, err
		}
		source, err := importer.FromFile(path)
		if err != nil {
			return importResultMsg{path: path, err: err}, err
		}
		return importResultMsg{path: path, source: source}, nil
	}
}

func exportJob(path, page string) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return exportResultMsg{err: err}, err
		}
		if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
			return exportResultMsg{err: err}, err
		}
		return exportResultMsg{path: path}, nil
	}
}

// expandPath resolves a leading ~ and surrounding quotes pasted from a shell.
func expandPath(value string) string {
	value = strings.Trim(strings.TrimSpace(value), `"'`)
	if value == "~" || strings.HasPrefix(value, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			value = filepath.Join(home, strings.TrimPrefix(value, "~"))
		}
	}
	return value
}

// exportName turns a title into a file name.
func exportName(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	name := strings.TrimRight(b.String(), "-")
	if name == "" {
		name = "document"
	}
	return name + ".html"
}

func trimmedTitle(value string) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= 60 {
		return value
	}
	return fmt.Sprintf("%s…", strings.TrimSpace(string(runes[:57])))
}
