package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap/zaptest"

	"github.com/csheth/readmark/internal/domain"
	"github.com/csheth/readmark/internal/importer"
	"github.com/csheth/readmark/internal/library"
	"github.com/csheth/readmark/internal/settings"
	"github.com/csheth/readmark/internal/store"
)

func newTestModel(t *testing.T) *model {
	t.Helper()
	m, _ := newTestModelWithStore(t)
	return m
}

func newTestModelWithStore(t *testing.T) (*model, *store.Memory) {
	t.Helper()
	kv := store.NewMemory()
	lib, err := library.Open(kv, library.WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	teaModel, ok := New(Config{Library: lib, Logger: zaptest.NewLogger(t), ExportDir: t.TempDir()}).(*model)
	if !ok {
		t.Fatalf("expected *model, got %T", teaModel)
	}
	teaModel.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return teaModel, kv
}

func importDoc(t *testing.T, m *model, title, body string) *domain.Document {
	t.Helper()
	doc, err := m.lib.Import(importer.Source{Title: title, Body: body, Charset: "UTF-8"})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	return doc
}

func press(m *model, keys ...string) {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		case "ctrl+c":
			msg = tea.KeyMsg{Type: tea.KeyCtrlC}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		m.Update(msg)
	}
}

func longBody(paragraphs int) string {
	parts := make([]string, paragraphs)
	for i := range parts {
		parts[i] = fmt.Sprintf("Paragraph %d has a few words.", i+1)
	}
	return strings.Join(parts, "\n\n")
}

func TestEnterOpensSelectedDocument(t *testing.T) {
	m := newTestModel(t)
	importDoc(t, m, "First", "one")
	second := importDoc(t, m, "Second", "two")

	press(m, "down", "enter")
	if m.stage != stageReader {
		t.Fatalf("stage = %v, want reader", m.stage)
	}
	if m.docID != second.ID {
		t.Fatalf("opened %s, want %s", m.docID, second.ID)
	}
	if active, _ := m.lib.Active(); active.ID != second.ID {
		t.Fatalf("active document not updated")
	}
}

func TestImportComposerStartsJob(t *testing.T) {
	m := newTestModel(t)
	path := filepath.Join(t.TempDir(), "essay.txt")
	if err := os.WriteFile(path, []byte("Hello world.\n\nGoodbye world."), 0o644); err != nil {
		t.Fatal(err)
	}

	press(m, "i")
	if m.composerMode != composerModeImport || !m.composer.Focused() {
		t.Fatalf("import composer should be focused, mode=%v", m.composerMode)
	}
	m.composer.SetValue(path)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("submitting a path should start the import job")
	}
	if m.stage != stageLoading {
		t.Fatalf("stage = %v, want loading", m.stage)
	}

	payload, err := importJob(path)(context.Background())
	if err != nil {
		t.Fatalf("import job: %v", err)
	}
	m.Update(jobResultEnvelope{Snapshot: jobSnapshot{ID: "import-1", Kind: jobKindImport}, Payload: payload})

	if m.stage != stageReader {
		t.Fatalf("stage = %v after import, want reader", m.stage)
	}
	docs := m.lib.Documents()
	if len(docs) != 1 || docs[0].Title != "essay" {
		t.Fatalf("unexpected library contents: %+v", docs)
	}
	if !strings.Contains(m.infoMessage, "2 paragraphs") {
		t.Fatalf("info message should summarise the import: %q", m.infoMessage)
	}
}

func TestImportFailureReturnsToLibrary(t *testing.T) {
	m := newTestModel(t)
	m.stage = stageLoading
	m.Update(importResultMsg{path: "missing.txt", err: os.ErrNotExist})
	if m.stage != stageLibrary {
		t.Fatalf("stage = %v, want library", m.stage)
	}
	if m.errorMessage == "" {
		t.Fatal("import failure should surface an error")
	}
}

func TestHighlightSelectionBecomesComment(t *testing.T) {
	m := newTestModel(t)
	doc := importDoc(t, m, "Essay", "Hello world.\n\nGoodbye world.")
	press(m, "enter")

	press(m, "v", "c")
	if m.composerMode != composerModeComment {
		t.Fatalf("c should open the comment composer, mode=%v info=%q", m.composerMode, m.infoMessage)
	}
	m.composer.SetValue("nice opening")
	press(m, "enter")

	comments := m.lib.Comments(doc.ID)
	if len(comments) != 1 {
		t.Fatalf("expected one comment, got %d (error %q)", len(comments), m.errorMessage)
	}
	a := comments[0]
	if a.SelectedText != "Hello world." || a.StartOffset != 0 || a.EndOffset != 12 {
		t.Fatalf("unexpected annotation %+v", a)
	}
	if m.mode != modeNormal || m.selectionActive {
		t.Fatal("selection should be cleared after commenting")
	}
	m.View()
	if got := m.commentsOnCursor(); len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("cursor line should carry the new comment, got %+v", got)
	}
}

func TestSearchMatchBecomesComment(t *testing.T) {
	m := newTestModel(t)
	doc := importDoc(t, m, "Essay", "Hello world.\n\nGoodbye world.")
	press(m, "enter", "/")
	if m.stage != stageSearch {
		t.Fatalf("stage = %v, want search", m.stage)
	}
	m.searchInput.SetValue("world")
	press(m, "enter")
	if len(m.searchMatches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(m.searchMatches))
	}

	press(m, "n", "c")
	m.composer.SetValue("the second one")
	press(m, "enter")

	comments := m.lib.Comments(doc.ID)
	if len(comments) != 1 {
		t.Fatalf("expected one comment, got %d (error %q)", len(comments), m.errorMessage)
	}
	if comments[0].StartOffset != 22 || comments[0].EndOffset != 27 {
		t.Fatalf("comment should anchor on the second match, got [%d,%d)", comments[0].StartOffset, comments[0].EndOffset)
	}
}

func TestCommentWithoutSelectionIsRefused(t *testing.T) {
	m := newTestModel(t)
	importDoc(t, m, "Essay", "Hello world.")
	press(m, "enter", "c")
	if m.composerMode != composerModeIdle {
		t.Fatal("comment composer should not open without a selection")
	}
}

func TestEscCancelsComposer(t *testing.T) {
	m := newTestModel(t)
	doc := importDoc(t, m, "Essay", "Hello world.")
	press(m, "enter", "v", "c")
	m.composer.SetValue("draft")
	press(m, "esc")

	if m.composerMode != composerModeIdle || m.composer.Focused() {
		t.Fatal("esc should close the composer")
	}
	if len(m.lib.Comments(doc.ID)) != 0 {
		t.Fatal("canceled comment must not be stored")
	}
	if m.stage != stageReader {
		t.Fatalf("stage = %v, want reader", m.stage)
	}
}

func TestScrollingAdvancesProgress(t *testing.T) {
	m := newTestModel(t)
	doc := importDoc(t, m, "Long", longBody(60))
	press(m, "enter")
	if doc.ReadingProgress != 0 {
		t.Fatalf("progress should start at 0, got %v", doc.ReadingProgress)
	}

	press(m, "G")
	if doc.ReadingProgress != 100 {
		t.Fatalf("progress at bottom = %v, want 100", doc.ReadingProgress)
	}
	if doc.LastParagraphRead != 59 {
		t.Fatalf("bookmark = %d, want 59", doc.LastParagraphRead)
	}

	press(m, "g")
	if doc.ReadingProgress != 100 {
		t.Fatalf("progress decreased to %v after scrolling up", doc.ReadingProgress)
	}
}

func TestOpeningRestoresBookmark(t *testing.T) {
	m := newTestModel(t)
	doc := importDoc(t, m, "Long", longBody(60))
	doc.LastParagraphRead = 30

	press(m, "enter")
	// each paragraph is one line followed by two blank lines
	wantOffset := 30*3 + 1 - m.viewport.Height
	if m.viewport.YOffset != wantOffset {
		t.Fatalf("YOffset = %d, want %d", m.viewport.YOffset, wantOffset)
	}
	if m.cursorLine != 90 {
		t.Fatalf("cursor = %d, want the bookmarked paragraph's line 90", m.cursorLine)
	}
	if doc.LastParagraphRead != 30 {
		t.Fatalf("reopening moved the bookmark to %d", doc.LastParagraphRead)
	}
	if !strings.HasPrefix(m.plainLines[90], bookmarkGutter) {
		t.Fatalf("bookmark gutter missing: %q", m.plainLines[90])
	}
}

func TestQuitFlushesThrottledProgress(t *testing.T) {
	m, kv := newTestModelWithStore(t)
	doc := importDoc(t, m, "Long", longBody(60))
	press(m, "enter", "G")

	press(m, "ctrl+c")
	raw, ok := kv.Raw(library.DocumentsKey)
	if !ok {
		t.Fatal("documents were never saved")
	}
	var stored []domain.Document
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].ID != doc.ID || stored[0].ReadingProgress != 100 {
		t.Fatalf("quit should flush progress, stored %+v", stored)
	}
}

func TestDeleteDocumentNeedsConfirmation(t *testing.T) {
	m := newTestModel(t)
	importDoc(t, m, "One", "one")
	importDoc(t, m, "Two", "two")

	press(m, "d")
	if m.stage != stageConfirm {
		t.Fatalf("stage = %v, want confirm", m.stage)
	}
	press(m, "n")
	if len(m.lib.Documents()) != 2 || m.stage != stageLibrary {
		t.Fatal("declining should keep both documents")
	}

	press(m, "d", "y")
	if len(m.lib.Documents()) != 1 {
		t.Fatalf("expected one document after delete, got %d", len(m.lib.Documents()))
	}
	if m.libraryCursor != 0 {
		t.Fatalf("cursor should stay in range, got %d", m.libraryCursor)
	}
}

func TestCommentsListEditAndDelete(t *testing.T) {
	m := newTestModel(t)
	doc := importDoc(t, m, "Essay", "Hello world.")
	a, err := m.lib.AddComment(doc.ID, library.Selection{Text: "world", Hint: -1}, "first take")
	if err != nil {
		t.Fatal(err)
	}
	press(m, "enter", "C")
	if m.stage != stageComments {
		t.Fatalf("stage = %v, want comments", m.stage)
	}
	if view := m.View(); !strings.Contains(view, "first take") {
		t.Fatalf("comments view should list the comment:\n%s", view)
	}

	press(m, "e")
	if m.composerMode != composerModeEdit || m.composer.Value() != "first take" {
		t.Fatalf("edit should prefill the composer, got %q", m.composer.Value())
	}
	m.composer.SetValue("second take")
	press(m, "enter")
	if got, _ := m.lib.Comment(a.ID); got.Text != "second take" {
		t.Fatalf("comment text = %q", got.Text)
	}

	press(m, "d", "y")
	if len(m.lib.Comments(doc.ID)) != 0 {
		t.Fatal("comment should be deleted")
	}
	if m.stage != stageComments {
		t.Fatalf("stage = %v, want comments", m.stage)
	}
}

func TestThemeAndWidthKeysUpdateSettings(t *testing.T) {
	m := newTestModel(t)
	importDoc(t, m, "Essay", "Hello world.")
	press(m, "enter", "t")
	if m.lib.Settings().Theme != settings.ThemeLight {
		t.Fatalf("theme = %q, want light", m.lib.Settings().Theme)
	}
	press(m, "t")
	if m.lib.Settings().Theme != settings.ThemeDark {
		t.Fatalf("theme = %q, want dark", m.lib.Settings().Theme)
	}

	width := m.lib.Settings().MaxWidth
	press(m, "+")
	if m.lib.Settings().MaxWidth != width+5 {
		t.Fatalf("max width = %d, want %d", m.lib.Settings().MaxWidth, width+5)
	}
}

func TestHelpToggle(t *testing.T) {
	m := newTestModel(t)
	importDoc(t, m, "Essay", "Hello world.")
	press(m, "enter")
	if strings.Contains(m.View(), "Toggle theme") {
		t.Fatal("key legend should be hidden by default")
	}
	press(m, "?")
	if !strings.Contains(m.View(), "Toggle theme") {
		t.Fatal("key legend did not appear after toggling help")
	}
	press(m, "?")
	if strings.Contains(m.View(), "Toggle theme") {
		t.Fatal("key legend should hide again after second toggle")
	}
}
