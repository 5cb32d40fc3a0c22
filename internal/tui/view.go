package tui

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/csheth/readmark/internal/domain"
)

func (m *model) View() string {
	switch m.stage {
	case stageLibrary:
		return m.viewLibrary()
	case stageLoading:
		return m.viewLoading()
	case stageReader, stageSearch:
		return m.viewReader()
	case stageComments:
		return m.viewComments()
	case stageConfirm:
		return m.viewConfirm()
	default:
		return ""
	}
}

func (m *model) viewLibrary() string {
	parts := []string{m.heroView(), m.libraryList()}
	parts = append(parts, m.noticeLines()...)
	if m.composerMode == composerModeImport {
		parts = append(parts, m.composerPanel("Import"))
	}
	if m.helpVisible {
		parts = append(parts, m.keyLegendView())
	}
	return joinNonEmpty(parts)
}

func (m *model) libraryList() string {
	docs := m.lib.Documents()
	if len(docs) == 0 {
		return helperStyle.Render("No documents yet. Press i to import a text, Markdown or PDF file.")
	}
	rows := []string{sectionHeaderStyle.Render(fmt.Sprintf("Library (%d)", len(docs)))}
	active, _ := m.lib.Active()
	for i, doc := range docs {
		marker := "  "
		if i == m.libraryCursor {
			marker = cursorMarkerStyle.Render("› ")
		}
		title := trimmedTitle(doc.Title)
		if active != nil && active.ID == doc.ID {
			title = activeTitleStyle.Render(title)
		}
		meta := fmt.Sprintf("%s  •  %d words  •  %d comment(s)  •  %d%%",
			doc.FormattedDate(), doc.WordCount(), len(m.lib.Comments(doc.ID)), doc.ProgressPercent())
		if doc.Complete() {
			meta += "  ✓"
		}
		rows = append(rows, marker+title)
		rows = append(rows, "    "+m.meter.ViewAs(doc.ReadingProgress/100)+"  "+helperStyle.Render(meta))
	}
	return strings.Join(rows, "\n")
}

func (m *model) viewLoading() string {
	body := fmt.Sprintf("%s %s", m.spinner.View(), m.infoMessage)
	return joinNonEmpty([]string{m.heroView(), body})
}

func (m *model) viewReader() string {
	doc, ok := m.lib.Document(m.docID)
	if !ok {
		return m.viewLibrary()
	}
	m.refreshViewportIfDirty()
	parts := []string{m.readerHeader(doc), m.viewport.View()}
	if status := m.readerStatusLine(); status != "" {
		parts = append(parts, status)
	}
	parts = append(parts, m.noticeLines()...)
	switch {
	case m.stage == stageSearch:
		parts = append(parts, joinNonEmpty([]string{
			sectionHeaderStyle.Render("Search"),
			m.searchInput.View(),
		}))
	case m.composerMode == composerModeComment:
		parts = append(parts, m.composerPanel("Comment"))
	}
	if m.helpVisible {
		parts = append(parts, m.keyLegendView(), m.helpView())
	}
	return joinNonEmpty(parts)
}

func (m *model) readerHeader(doc *domain.Document) string {
	title := heroTitleStyle.Render(trimmedTitle(doc.Title))
	stats := []string{
		fmt.Sprintf("Mode %s", m.modeLabel()),
		fmt.Sprintf("%d%% read", doc.ProgressPercent()),
		fmt.Sprintf("%d comment(s)", len(m.lib.Comments(doc.ID))),
	}
	if doc.LastParagraphRead >= 0 {
		stats = append(stats, fmt.Sprintf("Bookmark ¶%d/%d", doc.LastParagraphRead+1, doc.ParagraphCount()))
	}
	for _, id := range slices.Sorted(maps.Keys(m.runningJobs)) {
		stats = append(stats, m.runningJobs[id].Label()+"…")
	}
	meter := lipgloss.JoinHorizontal(lipgloss.Center, m.meter.ViewAs(doc.ReadingProgress/100), " ", statusBarStyle.Render(strings.Join(stats, "  •  ")))
	return title + "\n" + meter
}

// readerStatusLine shows the comments under the cursor, or the search state.
func (m *model) readerStatusLine() string {
	if comments := m.commentsOnCursor(); len(comments) > 0 {
		var texts []string
		for _, a := range comments {
			texts = append(texts, a.PopoverText())
		}
		return popoverStyle.Render(wordwrap.String("💬 "+strings.Join(texts, "  |  "), m.wrapWidth(2)))
	}
	if m.searchQuery == "" {
		return ""
	}
	if len(m.searchMatches) == 0 {
		return helperStyle.Render(fmt.Sprintf("Search %q: no matches", m.searchQuery))
	}
	return helperStyle.Render(fmt.Sprintf("Search %q: match %d/%d", m.searchQuery, m.searchMatchIdx+1, len(m.searchMatches)))
}

func (m *model) viewComments() string {
	doc, ok := m.lib.Document(m.docID)
	if !ok {
		return m.viewLibrary()
	}
	comments := m.lib.Comments(doc.ID)
	rows := []string{sectionHeaderStyle.Render(fmt.Sprintf("Comments on %s (%d)", trimmedTitle(doc.Title), len(comments)))}
	if len(comments) == 0 {
		rows = append(rows, helperStyle.Render("No comments yet. Select lines with v and press c."))
	}
	wrap := m.wrapWidth(6)
	for i, a := range comments {
		marker := "  "
		if i == m.commentCursor {
			marker = cursorMarkerStyle.Render("› ")
		}
		rows = append(rows, marker+quoteStyle.Render(fmt.Sprintf("%q", a.Quote(domain.QuoteLimit))))
		rows = append(rows, indentMultiline(wordwrap.String(a.Text, wrap), "    "))
		rows = append(rows, "    "+helperStyle.Render(a.FormattedDate()))
	}
	parts := []string{m.heroView(), strings.Join(rows, "\n")}
	parts = append(parts, m.noticeLines()...)
	if m.composerMode == composerModeEdit {
		parts = append(parts, m.composerPanel("Edit comment"))
	}
	parts = append(parts, helperStyle.Render("Enter jumps to the text • e edits • d deletes • Esc returns to the reader"))
	return joinNonEmpty(parts)
}

func (m *model) viewConfirm() string {
	prompt := ""
	if m.confirm != nil {
		prompt = m.confirm.prompt
	}
	box := confirmBoxStyle.Render(joinNonEmpty([]string{
		errorStyle.Render(prompt),
		helperStyle.Render("Press y to confirm or n to cancel."),
	}))
	return joinNonEmpty([]string{m.heroView(), box})
}

func (m *model) heroView() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		logoStyle.Render("readmark"),
		taglineStyle.Render(heroTagline),
	)
}

func (m *model) composerPanel(title string) string {
	return joinNonEmpty([]string{
		sectionHeaderStyle.Render(title),
		m.composer.View() + "\n" + helperStyle.Render("Enter to save, Esc to cancel."),
	})
}

func (m *model) noticeLines() []string {
	var lines []string
	if m.errorMessage != "" {
		lines = append(lines, errorStyle.Render(m.errorMessage))
	}
	if m.infoMessage != "" && m.stage != stageLoading {
		lines = append(lines, helperStyle.Render(m.infoMessage))
	}
	return lines
}

func (m *model) modeLabel() string {
	switch m.mode {
	case modeInsert:
		return "INSERT"
	case modeHighlight:
		return "HIGHLIGHT"
	default:
		return "NORMAL"
	}
}

type keyHint struct {
	Key         string
	Description string
}

func (m *model) keyLegendView() string {
	var hints []keyHint
	if m.stage == stageLibrary {
		hints = []keyHint{
			{"↑/↓", "Choose document"},
			{"enter", "Open"},
			{"i", "Import file"},
			{"d", "Delete"},
			{"?", "Toggle help"},
			{"q", "Quit"},
		}
	} else {
		hints = []keyHint{
			{"↑/↓", "Move line cursor"},
			{"pgup/pgdn", "Scroll"},
			{"v", "Highlight mode"},
			{"c", "Comment selection"},
			{"C", "List comments"},
			{"/", "Search"},
			{"n/N", "Next match"},
			{"g/G", "Top or bottom"},
			{"t", "Toggle theme"},
			{"+/-", "Text width"},
			{"x", "Export HTML"},
			{"b", "Back to library"},
		}
	}
	rows := []string{sectionHeaderStyle.Render("Keys")}
	const columns = 3
	for i := 0; i < len(hints); i += columns {
		end := i + columns
		if end > len(hints) {
			end = len(hints)
		}
		var cells []string
		for _, hint := range hints[i:end] {
			key := keyStyle.Render(hint.Key)
			desc := keyDescStyle.Render(" " + hint.Description + "  ")
			cells = append(cells, lipgloss.JoinHorizontal(lipgloss.Top, key, desc))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return legendBoxStyle.Render(strings.Join(rows, "\n"))
}

func (m *model) helpView() string {
	lines := []string{
		sectionHeaderStyle.Render("Reading"),
		helperStyle.Render("• progress grows as you scroll and never goes back; » marks the last paragraph you reached."),
		helperStyle.Render("• press v, move to extend the selection, then c to attach a comment to those lines."),
		helperStyle.Render("• after a / search, c comments on the current match; n / N cycle matches."),
		helperStyle.Render("• highlighted text shows its comment below the page when the cursor is on it."),
	}
	return helpBoxStyle.Render(strings.Join(lines, "\n"))
}

func (m *model) wrapWidth(padding int) int {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	if padding < 0 {
		padding = 0
	}
	available := width - padding
	if available < 20 {
		available = 20
	}
	return available
}

func joinNonEmpty(parts []string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, "\n\n")
}

func indentMultiline(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

var (
	sectionHeaderStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	errorStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helperStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	searchHighlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("190"))
	searchCurrentStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("229"))

	heroAccentColor        = lipgloss.Color("#ff8c00")
	heroEmberColor         = lipgloss.Color("#2b1400")
	heroTextColor          = lipgloss.Color("#fff4d0")
	heroSecondaryTextColor = lipgloss.Color("#ffb347")

	heroTitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(heroAccentColor)
	logoStyle          = lipgloss.NewStyle().Bold(true).Foreground(heroTextColor).Background(heroEmberColor).Padding(0, 2)
	taglineStyle       = lipgloss.NewStyle().Foreground(heroSecondaryTextColor).Italic(true)
	statusBarStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6")).Padding(0, 1)
	keyStyle           = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ffd166")).Padding(0, 1)
	keyDescStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0def4"))
	legendBoxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#56526e")).Padding(1, 2)
	helpBoxStyle       = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("#7f5af0")).Padding(1, 2)
	confirmBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("9")).Padding(1, 2)
	currentLineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6"))
	selectionLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#bde0fe"))
	popoverStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffd54f")).Italic(true)
	quoteStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#a3be8c")).Italic(true)
	cursorMarkerStyle  = lipgloss.NewStyle().Bold(true).Foreground(heroAccentColor)
	activeTitleStyle   = lipgloss.NewStyle().Bold(true)
)
