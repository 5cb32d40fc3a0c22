package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"

	"github.com/csheth/readmark/internal/domain"
	"github.com/csheth/readmark/internal/highlight"
	"github.com/csheth/readmark/internal/progress"
	"github.com/csheth/readmark/internal/settings"
)

type pageLayout struct {
	windowWidth    int
	windowHeight   int
	viewportWidth  int
	viewportHeight int
	composerHeight int
}

func newPageLayout() pageLayout {
	return pageLayout{
		viewportWidth:  80,
		viewportHeight: 20,
		composerHeight: 3,
	}
}

func (l *pageLayout) Update(width, height int) {
	l.windowWidth = width
	l.windowHeight = height
	innerWidth := width - viewportHorizontalPadding
	if innerWidth < minViewportWidth {
		innerWidth = minViewportWidth
	}
	l.viewportWidth = innerWidth
	// title, progress bar, status and notice lines plus the blank lines
	// joinNonEmpty puts between them
	const chrome = 8
	contentHeight := height - chrome - l.composerHeight
	if contentHeight < 5 {
		contentHeight = 5
	}
	l.viewportHeight = contentHeight
}

// lineInfo maps a rendered reader line back to the document.
type lineInfo struct {
	paragraph   int
	offset      int
	annotations []string
}

var spacerLine = lineInfo{paragraph: domain.NoParagraph, offset: -1}

type readerView struct {
	content string
	lines   []lineInfo
	bounds  []progress.Bounds
}

type contentBuilder struct {
	builder strings.Builder
	lines   int
}

func (cb *contentBuilder) WriteString(s string) {
	cb.builder.WriteString(s)
	cb.lines += strings.Count(s, "\n")
}

func (cb *contentBuilder) WriteRune(r rune) {
	cb.builder.WriteRune(r)
	if r == '\n' {
		cb.lines++
	}
}

func (cb *contentBuilder) String() string {
	return cb.builder.String()
}

func (cb *contentBuilder) Line() int {
	return cb.lines
}

type readerPalette struct {
	text     lipgloss.Style
	mark     lipgloss.Style
	bookmark lipgloss.Style
}

func paletteFor(s settings.Settings) readerPalette {
	text := lipgloss.NewStyle().Foreground(lipgloss.Color(s.TextColor))
	mark := lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("#1a1a1a")).Background(lipgloss.Color("#ffd54f"))
	bookmark := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff8c00"))
	if s.Theme == settings.ThemeLight {
		text = text.Background(lipgloss.Color(s.BackgroundColor))
		mark = mark.Background(lipgloss.Color("#ffe082"))
		bookmark = bookmark.Foreground(lipgloss.Color("#c05600"))
	}
	return readerPalette{text: text, mark: mark, bookmark: bookmark}
}

// textWidth is the wrap width for document text: the configured maximum,
// bounded by the viewport minus the gutter.
func textWidth(s settings.Settings, viewportWidth int) int {
	width := viewportWidth - ansi.PrintableRuneWidth(plainGutter)
	if s.MaxWidth > 0 && s.MaxWidth < width {
		width = s.MaxWidth
	}
	if width < 20 {
		width = 20
	}
	return width
}

// buildReaderContent lays the highlighted paragraphs out as terminal lines.
// Paragraph bounds are measured in lines so they can feed the progress
// tracker directly.
func buildReaderContent(doc *domain.Document, paragraphs []highlight.Paragraph, s settings.Settings, viewportWidth int) readerView {
	width := textWidth(s, viewportWidth)
	pal := paletteFor(s)
	segmented := doc.Paragraphs()
	blank := s.BlankLines()

	cb := &contentBuilder{}
	view := readerView{bounds: make([]progress.Bounds, len(paragraphs))}
	for i, p := range paragraphs {
		if i > 0 {
			cb.WriteString(strings.Repeat("\n", blank+1))
			for j := 0; j < blank; j++ {
				view.lines = append(view.lines, spacerLine)
			}
		}
		start := cb.Line()
		for j, wl := range wrapParagraph(p, width) {
			if j > 0 {
				cb.WriteRune('\n')
			}
			gutter := plainGutter
			if j == 0 && p.Index == doc.LastParagraphRead {
				gutter = pal.bookmark.Render(bookmarkGutter)
			}
			cb.WriteString(gutter)
			cb.WriteString(alignLine(renderLine(wl, pal), wl.text, width, s.TextAlign))
			offset := -1
			if i < len(segmented) {
				offset = segmented[i].BodyOffset(wl.start)
			}
			view.lines = append(view.lines, lineInfo{
				paragraph:   p.Index,
				offset:      offset,
				annotations: wl.annotations(),
			})
		}
		view.bounds[i] = progress.Bounds{Start: float64(start), End: float64(cb.Line() + 1)}
	}
	if len(view.lines) == 0 {
		view.lines = []lineInfo{spacerLine}
	}
	view.content = cb.String()
	return view
}

type wrappedLine struct {
	text     string
	start    int
	segments []highlight.Segment
}

func (wl wrappedLine) annotations() []string {
	var ids []string
	for _, s := range wl.segments {
		if s.Highlighted() {
			ids = append(ids, s.AnnotationID)
		}
	}
	return ids
}

// wrapParagraph word-wraps the paragraph text and locates every wrapped line
// in it, so highlight segments can be cut per line. Words longer than width
// are broken hard.
func wrapParagraph(p highlight.Paragraph, width int) []wrappedLine {
	wrapped := wrap.String(wordwrap.String(p.Text, width), width)
	var out []wrappedLine
	pos := 0
	for _, line := range strings.Split(wrapped, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.Index(p.Text[pos:], line)
		if idx < 0 {
			idx = 0
		}
		start := pos + idx
		end := start + len(line)
		out = append(out, wrappedLine{text: line, start: start, segments: sliceSegments(p.Segments, start, end)})
		pos = end
	}
	return out
}

// sliceSegments returns the parts of segs covering paragraph bytes
// [start, end).
func sliceSegments(segs []highlight.Segment, start, end int) []highlight.Segment {
	var out []highlight.Segment
	pos := 0
	for _, s := range segs {
		lo, hi := pos, pos+len(s.Text)
		pos = hi
		if hi <= start || lo >= end {
			continue
		}
		from, to := max(lo, start), min(hi, end)
		out = append(out, highlight.Segment{Text: s.Text[from-lo : to-lo], AnnotationID: s.AnnotationID})
	}
	return out
}

func renderLine(wl wrappedLine, pal readerPalette) string {
	var b strings.Builder
	for _, s := range wl.segments {
		if s.Highlighted() {
			b.WriteString(pal.mark.Render(s.Text))
			continue
		}
		b.WriteString(pal.text.Render(s.Text))
	}
	return b.String()
}

// alignLine pads a rendered line inside width. Justification is not possible
// with fixed-width cells and renders left aligned.
func alignLine(rendered, plain string, width int, align string) string {
	pad := width - ansi.PrintableRuneWidth(plain)
	if pad <= 0 {
		return rendered
	}
	switch align {
	case "center":
		return strings.Repeat(" ", pad/2) + rendered
	case "right":
		return strings.Repeat(" ", pad) + rendered
	default:
		return rendered
	}
}

func splitLinesPreserve(content string) []string {
	if content == "" {
		return []string{""}
	}
	return strings.Split(content, "\n")
}

type matchRange struct {
	start int
	end   int
}

// findMatches searches the plain text of content, so styling escapes never
// produce or split matches. Ranges are byte offsets into plain.
func findMatches(plain, query string) []matchRange {
	lowerContent := strings.ToLower(plain)
	lowerQuery := strings.ToLower(query)
	if lowerQuery == "" || len(lowerContent) != len(plain) || len(lowerQuery) != len(query) {
		return findMatchesFold(plain, query)
	}
	var matches []matchRange
	searchIdx := 0
	for {
		idx := strings.Index(lowerContent[searchIdx:], lowerQuery)
		if idx == -1 {
			break
		}
		start := searchIdx + idx
		end := start + len(lowerQuery)
		matches = append(matches, matchRange{start: start, end: end})
		searchIdx = end
		if searchIdx >= len(plain) {
			break
		}
	}
	return matches
}

// findMatchesFold handles text whose lower-case form changes byte length.
func findMatchesFold(plain, query string) []matchRange {
	if query == "" {
		return nil
	}
	var matches []matchRange
	for i := 0; i+len(query) <= len(plain); {
		if strings.EqualFold(plain[i:i+len(query)], query) {
			matches = append(matches, matchRange{start: i, end: i + len(query)})
			i += len(query)
			continue
		}
		i++
	}
	return matches
}

func lineNumberAtOffset(content string, offset int) int {
	if offset <= 0 {
		return 0
	}
	if offset > len(content) {
		offset = len(content)
	}
	return strings.Count(content[:offset], "\n")
}

// applyLineHighlights restyles the cursor line and the selected lines.
// Lines in keep hold search matches and are left as they are.
func applyLineHighlights(lines []string, plain []string, keep map[int]bool, cursor int, selectionStart, selectionEnd int, hasSelection bool) []string {
	out := make([]string, len(lines))
	for idx, line := range lines {
		inSelection := hasSelection && idx >= selectionStart && idx <= selectionEnd
		switch {
		case keep[idx]:
			out[idx] = line
		case idx == cursor:
			out[idx] = currentLineStyle.Render(plain[idx])
		case inSelection:
			out[idx] = selectionLineStyle.Render(plain[idx])
		default:
			out[idx] = line
		}
	}
	return out
}

// highlightLineMatches restyles search matches on one line of plain text.
func highlightLineMatches(plain string, matches []matchRange, current int) string {
	var b strings.Builder
	pos := 0
	for _, match := range matches {
		if match.start > pos {
			b.WriteString(plain[pos:match.start])
		}
		style := searchHighlightStyle
		if match.start == current {
			style = searchCurrentStyle
		}
		b.WriteString(style.Render(plain[match.start:match.end]))
		pos = match.end
	}
	b.WriteString(plain[pos:])
	return b.String()
}
