// Package segment splits document bodies into display paragraphs.
//
// Every consumer (rendering, progress tracking, bookmarks and highlight
// placement) goes through Paragraphs so they agree on paragraph indices.
package segment

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Paragraph is one display paragraph of a body. Text is trimmed and has
// whitespace runs collapsed to a single space; Start and End delimit the raw
// body bytes the paragraph was built from.
type Paragraph struct {
	Index int
	Text  string
	Start int
	End   int

	// offsets[i] is the body offset of Text[i].
	offsets []int
}

// Paragraphs segments body. Line endings are normalized, the body is split on
// runs of newlines, and empty paragraphs are dropped.
func Paragraphs(body string) []Paragraph {
	if body == "" {
		return nil
	}
	var (
		result []Paragraph
		pos    int
	)
	for pos < len(body) {
		for pos < len(body) && isNewline(body[pos]) {
			pos++
		}
		lineStart := pos
		for pos < len(body) && !isNewline(body[pos]) {
			pos++
		}
		if lineStart == pos {
			continue
		}
		if p, ok := canonical(body, lineStart, pos); ok {
			p.Index = len(result)
			result = append(result, p)
		}
	}
	return result
}

// Split returns the paragraph texts of body in source order.
func Split(body string) []string {
	paragraphs := Paragraphs(body)
	if len(paragraphs) == 0 {
		return nil
	}
	texts := make([]string, len(paragraphs))
	for i, p := range paragraphs {
		texts[i] = p.Text
	}
	return texts
}

// Count returns the number of paragraphs Split would produce.
func Count(body string) int {
	return len(Paragraphs(body))
}

// WordCount counts whitespace separated words.
func WordCount(body string) int {
	return len(strings.FieldsFunc(body, isSpace))
}

// Span maps the body range [start, end) onto byte offsets within p.Text. The
// result is false when the range does not touch any paragraph text.
func (p Paragraph) Span(start, end int) (int, int, bool) {
	if end <= p.Start || start >= p.End || start >= end {
		return 0, 0, false
	}
	lo := sort.SearchInts(p.offsets, start)
	hi := sort.SearchInts(p.offsets, end)
	if lo >= hi {
		return 0, 0, false
	}
	return lo, hi, true
}

// BodyOffset returns the body offset of the byte at local index i of Text.
func (p Paragraph) BodyOffset(i int) int {
	switch {
	case len(p.offsets) == 0:
		return p.Start
	case i <= 0:
		return p.offsets[0]
	case i >= len(p.offsets):
		return p.End
	default:
		return p.offsets[i]
	}
}

func canonical(body string, start, end int) (Paragraph, bool) {
	var b strings.Builder
	var offsets []int
	spaceAt, first, last := -1, -1, -1
	pos := start
	for pos < end {
		r, size := utf8.DecodeRuneInString(body[pos:end])
		if isSpace(r) {
			if first >= 0 && spaceAt < 0 {
				spaceAt = pos
			}
			pos += size
			continue
		}
		if spaceAt >= 0 {
			b.WriteByte(' ')
			offsets = append(offsets, spaceAt)
			spaceAt = -1
		}
		if first < 0 {
			first = pos
		}
		b.WriteString(body[pos : pos+size])
		for i := 0; i < size; i++ {
			offsets = append(offsets, pos+i)
		}
		pos += size
		last = pos
	}
	if first < 0 {
		return Paragraph{}, false
	}
	return Paragraph{
		Text:    b.String(),
		Start:   first,
		End:     last,
		offsets: offsets,
	}, true
}

func isNewline(c byte) bool {
	return c == '\n' || c == '\r'
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\ufeff'
}
