package tui

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/csheth/readmark/internal/domain"
	"github.com/csheth/readmark/internal/library"
	"github.com/csheth/readmark/internal/progress"
	"github.com/csheth/readmark/internal/settings"
)

// Config wires runtime options into the TUI program.
type Config struct {
	Library *library.Library
	Logger  *zap.Logger
	// ExportDir receives pages written with the export key.
	ExportDir string
}

// New returns a tea.Model ready to be mounted into a Program.
func New(config Config) tea.Model {
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}

	composer := textinput.New()
	composer.CharLimit = 1000
	composer.Width = 70

	searchInput := textinput.New()
	searchInput.Placeholder = "Search within the document…"
	searchInput.CharLimit = 120
	searchInput.Width = 60

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true

	meter := progressbar.New(progressbar.WithDefaultGradient(), progressbar.WithoutPercentage())
	meter.Width = 30

	m := &model{
		config:         config,
		lib:            config.Library,
		log:            log,
		jobs:           newJobBus(log.Named("jobs")),
		stage:          stageLibrary,
		mode:           modeNormal,
		composer:       composer,
		searchInput:    searchInput,
		spinner:        spin,
		viewport:       vp,
		meter:          meter,
		layout:         newPageLayout(),
		runningJobs:    map[string]jobSnapshot{},
		searchMatchIdx: -1,
		viewportDirty:  true,
		infoMessage:    "Press i to import a document or Enter to open one.",
	}
	if active, ok := m.lib.Active(); ok {
		m.libraryCursor = m.documentIndex(active.ID)
	}
	m.unsubscribe = m.lib.Subscribe(m.handleLibraryEvent)
	return m
}

type model struct {
	config Config
	lib    *library.Library
	log    *zap.Logger
	jobs   *jobBus
	stage  stage
	mode   interactionMode

	composer     textinput.Model
	composerMode composerMode
	searchInput  textinput.Model
	spinner      spinner.Model
	viewport     viewport.Model
	meter        progressbar.Model
	layout       pageLayout

	docID          string
	libraryCursor  int
	commentCursor  int
	editingID      string
	pendingComment library.Selection
	confirm        *confirmation
	pendingRestore bool
	runningJobs    map[string]jobSnapshot
	unsubscribe    func()

	lines           []lineInfo
	bounds          []progress.Bounds
	viewportLines   []string
	plainLines      []string
	plainContent    string
	viewportDirty   bool
	cursorLine      int
	lineCount       int
	selectionAnchor int
	selectionActive bool
	searchQuery     string
	searchMatches   []matchRange
	searchMatchIdx  int
	infoMessage     string
	errorMessage    string
	helpVisible     bool
}

func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.stage == stageLoading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	case jobSignalMsg:
		m.runningJobs[msg.Snapshot.ID] = msg.Snapshot
		return m, nil
	case jobResultEnvelope:
		delete(m.runningJobs, msg.Snapshot.ID)
		if msg.Payload == nil {
			return m, nil
		}
		return m.Update(msg.Payload)
	case importResultMsg:
		return m, m.finishImport(msg)
	case exportResultMsg:
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("export failed: %v", msg.err)
			return m, nil
		}
		m.errorMessage = ""
		m.infoMessage = fmt.Sprintf("Exported to %s", msg.path)
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, m.quit()
		}
		if m.composerMode != composerModeIdle {
			if cmd, handled := m.processComposerKey(msg); handled {
				return m, cmd
			}
		}
		return m.handleKey(msg)
	case tea.MouseMsg:
		if m.stage == stageReader {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			m.observe()
			return m, cmd
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.layout.Update(msg.Width, msg.Height)
		m.viewport.Width = m.layout.viewportWidth
		m.viewport.Height = m.layout.viewportHeight
		m.meter.Width = m.layout.viewportWidth / 3
		m.composer.Width = m.layout.viewportWidth - 4
		m.markViewportDirty()
		if m.stage == stageReader {
			m.refreshViewportIfDirty()
			m.observe()
		}
		return m, nil
	}
	return m, nil
}

// handleLibraryEvent keeps the rendered reader in step with state changes,
// whether they came from this model or elsewhere.
func (m *model) handleLibraryEvent(ev library.Event) {
	switch ev.Kind {
	case library.AnnotationsChanged, library.ProgressChanged:
		if ev.DocumentID == m.docID {
			m.markViewportDirty()
		}
	case library.SettingsChanged:
		m.markViewportDirty()
	case library.DocumentsChanged:
		if n := len(m.lib.Documents()); m.libraryCursor >= n {
			m.libraryCursor = max(n-1, 0)
		}
	}
}

func (m *model) quit() tea.Cmd {
	m.jobs.Cancel()
	if err := m.lib.Flush(); err != nil {
		m.log.Warn("flushing reading progress on quit", zap.Error(err))
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	return tea.Quit
}

func (m *model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.stage {
	case stageLibrary:
		return m.handleLibraryKey(key)
	case stageLoading:
		return m, nil
	case stageReader:
		return m.handleReaderKey(key)
	case stageSearch:
		var cmd tea.Cmd
		switch key.Type {
		case tea.KeyEsc:
			m.stage = stageReader
			m.searchInput.Blur()
			return m, nil
		case tea.KeyEnter:
			m.stage = stageReader
			m.applySearch(m.searchInput.Value())
			return m, nil
		}
		m.searchInput, cmd = m.searchInput.Update(key)
		return m, cmd
	case stageComments:
		return m.handleCommentsKey(key)
	case stageConfirm:
		return m.handleConfirmKey(key)
	default:
		return m, nil
	}
}

func (m *model) handleLibraryKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	docs := m.lib.Documents()
	switch key.String() {
	case "up", "k":
		if m.libraryCursor > 0 {
			m.libraryCursor--
		}
	case "down", "j":
		if m.libraryCursor < len(docs)-1 {
			m.libraryCursor++
		}
	case "enter", "o":
		if len(docs) == 0 {
			m.infoMessage = "The library is empty. Press i to import a document."
			return m, nil
		}
		m.openDocument(docs[m.libraryCursor].ID)
	case "i", "a":
		m.startComposer(composerModeImport, "")
		m.infoMessage = "Enter a file path and press Enter to import it."
	case "d", "x":
		if len(docs) == 0 {
			return m, nil
		}
		doc := docs[m.libraryCursor]
		m.askConfirm(
			fmt.Sprintf("Delete %q and its %d comment(s)?", trimmedTitle(doc.Title), len(m.lib.Comments(doc.ID))),
			func() error { return m.lib.Remove(doc.ID) },
			"Document deleted.",
		)
	case "?":
		m.helpVisible = !m.helpVisible
	case "q", "esc":
		return m, m.quit()
	}
	return m, nil
}

func (m *model) handleReaderKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	handled := true
	switch key.String() {
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "v":
		m.toggleHighlightMode()
	case "c":
		m.startComment()
	case "C":
		m.openComments()
	case "/":
		m.stage = stageSearch
		m.searchInput.SetValue(m.searchQuery)
		m.searchInput.Focus()
		return m, textinput.Blink
	case "n":
		m.advanceSearch(1)
	case "N":
		m.advanceSearch(-1)
	case "g":
		m.scrollToTop()
	case "G":
		m.scrollToBottom()
	case "t":
		m.toggleTheme()
	case "+", "=":
		m.adjustWidth(5)
	case "-":
		m.adjustWidth(-5)
	case "x":
		return m, m.exportCmd()
	case "?":
		m.helpVisible = !m.helpVisible
		m.markViewportDirty()
	case "esc":
		if m.mode == modeHighlight {
			m.mode = modeNormal
			m.selectionActive = false
			m.infoMessage = "Highlight mode disabled."
			m.markViewportDirty()
			return m, nil
		}
		m.closeReader()
	case "b", "q":
		m.closeReader()
	default:
		handled = false
	}
	if handled {
		m.observe()
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(key)
	m.syncCursorToViewport()
	m.observe()
	return m, cmd
}

func (m *model) handleCommentsKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	comments := m.lib.Comments(m.docID)
	switch key.String() {
	case "up", "k":
		if m.commentCursor > 0 {
			m.commentCursor--
		}
	case "down", "j":
		if m.commentCursor < len(comments)-1 {
			m.commentCursor++
		}
	case "enter":
		if len(comments) > 0 {
			m.stage = stageReader
			m.jumpToAnnotation(comments[m.commentCursor].ID)
			m.observe()
		}
	case "e":
		if len(comments) > 0 {
			a := comments[m.commentCursor]
			m.editingID = a.ID
			m.startComposer(composerModeEdit, a.Text)
		}
	case "d", "x":
		if len(comments) > 0 {
			a := comments[m.commentCursor]
			m.askConfirm(
				fmt.Sprintf("Delete the comment on %q?", a.Quote(domain.QuoteLimit)),
				func() error { return m.lib.RemoveComment(a.ID) },
				"Comment deleted.",
			)
		}
	case "esc", "C", "q":
		m.stage = stageReader
		m.markViewportDirty()
	}
	return m, nil
}

func (m *model) handleConfirmKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	c := m.confirm
	if c == nil {
		m.stage = stageLibrary
		return m, nil
	}
	switch key.String() {
	case "y", "Y", "enter":
		m.confirm = nil
		m.stage = c.back
		if err := c.run(); err != nil {
			m.errorMessage = err.Error()
			return m, nil
		}
		m.errorMessage = ""
		m.infoMessage = c.done
		if m.stage == stageComments {
			if n := len(m.lib.Comments(m.docID)); m.commentCursor >= n {
				m.commentCursor = max(n-1, 0)
			}
		}
	case "n", "N", "esc":
		m.confirm = nil
		m.stage = c.back
		m.infoMessage = "Canceled."
	}
	return m, nil
}

func (m *model) askConfirm(prompt string, run func() error, done string) {
	m.confirm = &confirmation{prompt: prompt, back: m.stage, run: run, done: done}
	m.stage = stageConfirm
}

func (m *model) startComposer(mode composerMode, prefill string) {
	m.composerMode = mode
	switch mode {
	case composerModeImport:
		m.composer.Placeholder = composerImportPlaceholder
	case composerModeComment:
		m.composer.Placeholder = composerCommentPlaceholder
		m.mode = modeInsert
	case composerModeEdit:
		m.composer.Placeholder = composerEditPlaceholder
		m.mode = modeInsert
	}
	m.composer.SetValue(prefill)
	m.composer.CursorEnd()
	m.composer.Focus()
}

func (m *model) closeComposer() {
	m.composerMode = composerModeIdle
	m.composer.SetValue("")
	m.composer.Blur()
	m.editingID = ""
	if m.mode == modeInsert {
		m.mode = modeNormal
	}
}

// processComposerKey routes keys to the focused composer. It reports whether
// the key was consumed.
func (m *model) processComposerKey(key tea.KeyMsg) (tea.Cmd, bool) {
	switch key.Type {
	case tea.KeyEsc:
		m.closeComposer()
		m.selectionActive = false
		m.infoMessage = "Canceled."
		return nil, true
	case tea.KeyEnter:
		value := strings.TrimSpace(m.composer.Value())
		mode := m.composerMode
		editing := m.editingID
		m.closeComposer()
		return m.submitComposer(mode, value, editing), true
	}
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(key)
	return cmd, true
}

func (m *model) submitComposer(mode composerMode, value, editingID string) tea.Cmd {
	switch mode {
	case composerModeImport:
		path := expandPath(value)
		if path == "" {
			m.errorMessage = "Enter the path of a file to import."
			return nil
		}
		m.stage = stageLoading
		m.errorMessage = ""
		m.infoMessage = fmt.Sprintf("Importing %s…", filepath.Base(path))
		return tea.Batch(m.spinner.Tick, m.jobs.Start(jobKindImport, path, importJob(path)))
	case composerModeComment:
		sel := m.pendingComment
		m.pendingComment = library.Selection{}
		m.mode = modeNormal
		m.selectionActive = false
		a, err := m.lib.AddComment(m.docID, sel, value)
		if err != nil {
			m.errorMessage = userMessage(err)
			if a.ID == "" {
				return nil
			}
		} else {
			m.errorMessage = ""
		}
		m.infoMessage = fmt.Sprintf("Comment added on %q.", a.Quote(domain.QuoteLimit))
		m.markViewportDirty()
	case composerModeEdit:
		if err := m.lib.UpdateComment(editingID, value); err != nil {
			m.errorMessage = userMessage(err)
			return nil
		}
		m.errorMessage = ""
		m.infoMessage = "Comment updated."
	}
	return nil
}

func (m *model) finishImport(msg importResultMsg) tea.Cmd {
	if msg.err != nil {
		m.stage = stageLibrary
		m.errorMessage = userMessage(msg.err)
		m.infoMessage = "Try another file."
		return nil
	}
	doc, err := m.lib.Import(msg.source)
	if err != nil {
		m.errorMessage = userMessage(err)
		if doc == nil {
			m.stage = stageLibrary
			return nil
		}
	} else {
		m.errorMessage = ""
	}
	m.libraryCursor = m.documentIndex(doc.ID)
	m.openDocument(doc.ID)
	m.infoMessage = fmt.Sprintf("Imported %s (%s, %d paragraphs).", trimmedTitle(doc.Title), msg.source.Charset, doc.ParagraphCount())
	return nil
}

func (m *model) openDocument(id string) {
	if err := m.lib.SetActive(id); err != nil {
		m.errorMessage = userMessage(err)
		return
	}
	doc, _ := m.lib.Document(id)
	m.docID = id
	m.stage = stageReader
	m.mode = modeNormal
	m.cursorLine = 0
	m.commentCursor = 0
	m.selectionActive = false
	m.pendingRestore = true
	m.clearSearch()
	m.viewport.SetYOffset(0)
	m.infoMessage = fmt.Sprintf("Reading %s. Press ? for keys.", trimmedTitle(doc.Title))
	m.markViewportDirty()
	m.refreshViewportIfDirty()
	m.observe()
}

func (m *model) closeReader() {
	if err := m.lib.Flush(); err != nil {
		m.errorMessage = userMessage(err)
	}
	m.stage = stageLibrary
	m.mode = modeNormal
	m.selectionActive = false
	m.clearSearch()
	m.infoMessage = "Back to the library."
}

func (m *model) openComments() {
	m.stage = stageComments
	if n := len(m.lib.Comments(m.docID)); m.commentCursor >= n {
		m.commentCursor = max(n-1, 0)
	}
}

// observe reports the viewport position to the progress tracker.
func (m *model) observe() {
	if m.stage != stageReader || m.docID == "" || m.lineCount == 0 {
		return
	}
	metrics := progress.Metrics{
		ScrollOffset:   float64(m.viewport.YOffset),
		ScrollExtent:   float64(m.lineCount),
		ViewportExtent: float64(m.viewport.Height),
		Paragraphs:     m.bounds,
	}
	if _, err := m.lib.Observe(m.docID, metrics); err != nil {
		m.errorMessage = fmt.Sprintf("progress not saved: %v", err)
	}
}

func (m *model) startComment() {
	sel, ok := m.currentSelection()
	if !ok {
		m.infoMessage = "Select lines with v or find text with / before commenting."
		return
	}
	m.pendingComment = sel
	m.startComposer(composerModeComment, "")
	m.infoMessage = fmt.Sprintf("Commenting on %q.", trimmedTitle(sel.Text))
}

// currentSelection returns the highlighted lines, or else the current search
// match, as a selection with a body offset hint.
func (m *model) currentSelection() (library.Selection, bool) {
	if start, end, ok := m.selectionRange(); ok {
		text := m.selectedText()
		if text == "" {
			return library.Selection{}, false
		}
		return library.Selection{Text: text, Hint: m.lineOffset(start, end)}, true
	}
	if m.searchQuery != "" && m.searchMatchIdx >= 0 && m.searchMatchIdx < len(m.searchMatches) {
		match := m.searchMatches[m.searchMatchIdx]
		line := lineNumberAtOffset(m.plainContent, match.start)
		return library.Selection{
			Text: m.plainContent[match.start:match.end],
			Hint: m.lineOffset(line, line),
		}, true
	}
	return library.Selection{}, false
}

// lineOffset is the body offset of the first text line in [start, end].
func (m *model) lineOffset(start, end int) int {
	for i := start; i <= end && i < len(m.lines); i++ {
		if m.lines[i].offset >= 0 {
			return m.lines[i].offset
		}
	}
	return -1
}

func (m *model) toggleHighlightMode() {
	switch m.mode {
	case modeHighlight:
		m.mode = modeNormal
		m.selectionActive = false
		m.infoMessage = "Highlight mode disabled."
	default:
		if m.lineCount == 0 {
			return
		}
		m.mode = modeHighlight
		m.selectionAnchor = m.cursorLine
		m.selectionActive = true
		m.infoMessage = "Highlight mode enabled. Move to extend the selection, press c to comment."
	}
	m.markViewportDirty()
	m.refreshViewportIfDirty()
}

func (m *model) selectionRange() (int, int, bool) {
	if !m.selectionActive || m.mode != modeHighlight || m.lineCount == 0 {
		return 0, 0, false
	}
	start, end := m.selectionAnchor, m.cursorLine
	if start > end {
		start, end = end, start
	}
	if start < 0 {
		start = 0
	}
	if end >= m.lineCount {
		end = m.lineCount - 1
	}
	return start, end, true
}

func (m *model) selectedText() string {
	start, end, ok := m.selectionRange()
	if !ok || len(m.plainLines) == 0 {
		return ""
	}
	if end >= len(m.plainLines) {
		end = len(m.plainLines) - 1
	}
	var parts []string
	for i := start; i <= end; i++ {
		line := strings.TrimPrefix(m.plainLines[i], bookmarkGutter)
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, "\n")
}

var ansiEscapeCodes = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

func stripANSI(text string) string {
	return ansiEscapeCodes.ReplaceAllString(text, "")
}

func (m *model) moveCursor(delta int) {
	if m.lineCount == 0 {
		return
	}
	m.setCursorLine(m.cursorLine + delta)
}

func (m *model) setCursorLine(line int) {
	if line < 0 {
		line = 0
	}
	if line >= m.lineCount {
		line = m.lineCount - 1
	}
	m.cursorLine = line
	m.ensureCursorVisible()
	m.markViewportDirty()
	m.refreshViewportIfDirty()
}

func (m *model) ensureCursorVisible() {
	top := m.viewport.YOffset
	switch {
	case m.cursorLine < top:
		m.viewport.SetYOffset(m.cursorLine)
	case m.cursorLine >= top+m.viewport.Height:
		m.viewport.SetYOffset(m.cursorLine - m.viewport.Height + 1)
	}
}

// syncCursorToViewport pulls the cursor back on screen after the viewport
// scrolled on its own (page keys, mouse wheel).
func (m *model) syncCursorToViewport() {
	top := m.viewport.YOffset
	bottom := top + m.viewport.Height - 1
	if m.cursorLine >= top && m.cursorLine <= bottom {
		return
	}
	if m.cursorLine < top {
		m.cursorLine = top
	} else {
		m.cursorLine = min(bottom, m.lineCount-1)
	}
	m.markViewportDirty()
	m.refreshViewportIfDirty()
}

func (m *model) scrollToTop() {
	m.viewport.SetYOffset(0)
	if m.lineCount > 0 {
		m.cursorLine = 0
		m.markViewportDirty()
		m.refreshViewportIfDirty()
	}
	m.infoMessage = "Jumped to top."
}

func (m *model) scrollToBottom() {
	target := m.lineCount - m.viewport.Height
	if target < 0 {
		target = 0
	}
	m.viewport.SetYOffset(target)
	if m.lineCount > 0 {
		m.cursorLine = m.lineCount - 1
		m.markViewportDirty()
		m.refreshViewportIfDirty()
	}
	m.infoMessage = "Jumped to bottom."
}

func (m *model) jumpToAnnotation(id string) {
	m.refreshViewportIfDirty()
	for i, info := range m.lines {
		for _, a := range info.annotations {
			if a == id {
				m.viewport.SetYOffset(m.clampYOffset(i))
				m.cursorLine = i
				m.markViewportDirty()
				m.refreshViewportIfDirty()
				m.infoMessage = "Jumped to comment."
				return
			}
		}
	}
	m.infoMessage = "That comment's text is no longer in the document."
}

func (m *model) toggleTheme() {
	err := m.lib.UpdateSettings(func(s *settings.Settings) error {
		d := settings.Defaults()
		if s.Theme == settings.ThemeLight {
			s.Theme = settings.ThemeDark
			s.TextColor, s.BackgroundColor = d.TextColor, d.BackgroundColor
			return nil
		}
		s.Theme = settings.ThemeLight
		s.TextColor, s.BackgroundColor = "#1a1a1a", "#fdfdf8"
		return nil
	})
	if err != nil {
		m.errorMessage = userMessage(err)
		return
	}
	m.infoMessage = fmt.Sprintf("Theme set to %s.", m.lib.Settings().Theme)
}

func (m *model) adjustWidth(delta int) {
	next := m.lib.Settings().MaxWidth + delta
	err := m.lib.UpdateSettings(func(s *settings.Settings) error {
		return s.Set("maxWidth", fmt.Sprint(next))
	})
	if err != nil {
		m.errorMessage = userMessage(err)
		return
	}
	m.errorMessage = ""
	m.infoMessage = fmt.Sprintf("Text width %d.", m.lib.Settings().MaxWidth)
}

func (m *model) exportCmd() tea.Cmd {
	doc, ok := m.lib.Document(m.docID)
	if !ok {
		return nil
	}
	page, err := m.lib.ExportHTML(doc.ID)
	if err != nil {
		m.errorMessage = userMessage(err)
		return nil
	}
	dir := m.config.ExportDir
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, exportName(doc.Title))
	m.infoMessage = "Exporting…"
	return m.jobs.Start(jobKindExport, path, exportJob(path, page))
}

func (m *model) applySearch(query string) {
	query = strings.TrimSpace(query)
	m.searchInput.Blur()
	m.searchQuery = query
	m.searchMatchIdx = -1
	if query == "" {
		m.searchMatches = nil
		m.searchInput.SetValue("")
	} else {
		m.searchMatchIdx = 0
	}
	m.markViewportDirty()
	m.refreshViewportIfDirty()
	switch {
	case query == "":
		m.infoMessage = "Cleared search."
	case len(m.searchMatches) == 0:
		m.infoMessage = fmt.Sprintf("No matches for %q.", query)
	default:
		m.infoMessage = fmt.Sprintf("Match 1/%d for %q. Press c to comment on it.", len(m.searchMatches), query)
		m.scrollToCurrentMatch()
	}
}

func (m *model) clearSearch() {
	m.searchQuery = ""
	m.searchMatches = nil
	m.searchMatchIdx = -1
	m.searchInput.SetValue("")
	m.searchInput.Blur()
	m.markViewportDirty()
}

func (m *model) advanceSearch(delta int) {
	if m.searchQuery == "" {
		m.infoMessage = "Start a search with / first."
		return
	}
	if len(m.searchMatches) == 0 {
		m.infoMessage = fmt.Sprintf("No matches for %q.", m.searchQuery)
		return
	}
	count := len(m.searchMatches)
	m.searchMatchIdx = (m.searchMatchIdx + delta) % count
	if m.searchMatchIdx < 0 {
		m.searchMatchIdx += count
	}
	m.infoMessage = fmt.Sprintf("Match %d/%d for %q.", m.searchMatchIdx+1, count, m.searchQuery)
	m.markViewportDirty()
	m.scrollToCurrentMatch()
}

func (m *model) scrollToCurrentMatch() {
	if m.searchMatchIdx < 0 || m.searchMatchIdx >= len(m.searchMatches) {
		return
	}
	line := lineNumberAtOffset(m.plainContent, m.searchMatches[m.searchMatchIdx].start)
	m.cursorLine = line
	m.ensureCursorVisible()
	m.markViewportDirty()
	m.refreshViewportIfDirty()
}

func (m *model) markViewportDirty() {
	m.viewportDirty = true
}

func (m *model) refreshViewportIfDirty() {
	if m.viewportDirty {
		m.refreshViewport()
	}
}

func (m *model) refreshViewport() {
	m.viewportDirty = false
	prevYOffset := m.viewport.YOffset
	doc, ok := m.lib.Document(m.docID)
	if !ok {
		m.viewport.SetContent("")
		m.lines, m.bounds = nil, nil
		m.viewportLines, m.plainLines, m.plainContent = nil, nil, ""
		m.lineCount = 0
		return
	}
	view := buildReaderContent(doc, m.lib.Highlighted(doc.ID), m.lib.Settings(), m.viewport.Width)
	m.lines = view.lines
	m.bounds = view.bounds
	m.viewportLines = splitLinesPreserve(view.content)
	m.plainLines = make([]string, len(m.viewportLines))
	for i, line := range m.viewportLines {
		m.plainLines[i] = stripANSI(line)
	}
	m.plainContent = strings.Join(m.plainLines, "\n")
	m.lineCount = len(m.viewportLines)
	if m.cursorLine >= m.lineCount {
		m.cursorLine = m.lineCount - 1
	}
	if m.cursorLine < 0 {
		m.cursorLine = 0
	}

	targetYOffset := prevYOffset
	if m.pendingRestore {
		m.pendingRestore = false
		targetYOffset = m.restoreOffset(doc)
		m.cursorLine = min(max(targetYOffset, 0), m.lineCount-1)
		if idx := doc.LastParagraphRead; idx >= 0 && idx < len(m.bounds) {
			m.cursorLine = int(m.bounds[idx].Start)
		}
	}

	lines := m.viewportLines
	var matched map[int]bool
	if m.searchQuery != "" {
		m.searchMatches = findMatches(m.plainContent, m.searchQuery)
		if len(m.searchMatches) == 0 {
			m.searchMatchIdx = -1
		} else if m.searchMatchIdx < 0 || m.searchMatchIdx >= len(m.searchMatches) {
			m.searchMatchIdx = 0
		}
		lines, matched = m.highlightSearch(lines)
	} else {
		m.searchMatches = nil
		m.searchMatchIdx = -1
	}
	start, end, hasSelection := m.selectionRange()
	lines = applyLineHighlights(lines, m.plainLines, matched, m.cursorLine, start, end, hasSelection)
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.SetYOffset(m.clampYOffset(targetYOffset))
}

// restoreOffset places the bookmarked paragraph at the bottom of the
// viewport, where the tracker would have seen it last. Without a bookmark it
// falls back to the furthest scroll position.
func (m *model) restoreOffset(doc *domain.Document) int {
	if idx := doc.LastParagraphRead; idx >= 0 && idx < len(m.bounds) {
		return int(m.bounds[idx].End) - m.viewport.Height
	}
	return int(doc.MaxScrollPosition)
}

func (m *model) highlightSearch(lines []string) ([]string, map[int]bool) {
	out := append([]string(nil), lines...)
	matched := map[int]bool{}
	current := -1
	if m.searchMatchIdx >= 0 && m.searchMatchIdx < len(m.searchMatches) {
		current = m.searchMatches[m.searchMatchIdx].start
	}
	lineStart := 0
	mi := 0
	for i, plain := range m.plainLines {
		lineEnd := lineStart + len(plain)
		var local []matchRange
		localCurrent := -1
		for mi < len(m.searchMatches) && m.searchMatches[mi].start < lineEnd {
			match := m.searchMatches[mi]
			mi++
			if match.end > lineEnd {
				continue
			}
			if match.start == current {
				localCurrent = match.start - lineStart
			}
			local = append(local, matchRange{start: match.start - lineStart, end: match.end - lineStart})
		}
		if len(local) > 0 {
			out[i] = highlightLineMatches(plain, local, localCurrent)
			matched[i] = true
		}
		lineStart = lineEnd + 1
	}
	return out, matched
}

func (m *model) clampYOffset(offset int) int {
	maxOffset := m.lineCount - m.viewport.Height
	if m.viewport.Height <= 0 {
		maxOffset = m.lineCount - 1
	}
	if maxOffset < 0 {
		maxOffset = 0
	}
	if offset < 0 {
		return 0
	}
	if offset > maxOffset {
		return maxOffset
	}
	return offset
}

// commentsOnCursor returns the annotations marked on the cursor line.
func (m *model) commentsOnCursor() []domain.Annotation {
	if m.cursorLine < 0 || m.cursorLine >= len(m.lines) {
		return nil
	}
	var out []domain.Annotation
	seen := map[string]bool{}
	for _, id := range m.lines[m.cursorLine].annotations {
		if seen[id] {
			continue
		}
		seen[id] = true
		if a, ok := m.lib.Comment(id); ok {
			out = append(out, a)
		}
	}
	return out
}

func (m *model) documentIndex(id string) int {
	for i, d := range m.lib.Documents() {
		if d.ID == id {
			return i
		}
	}
	return 0
}

// userMessage turns an error into a notice. Validation problems are shown
// as they are; storage failures get a hint that the change was not saved.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrPersistence):
		return fmt.Sprintf("not saved: %v", err)
	default:
		return err.Error()
	}
}
