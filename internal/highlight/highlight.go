// Package highlight places annotation marks on document text.
//
// Marks are computed from body offsets rather than by searching rendered
// output, so a highlight never lands inside another highlight and a mark that
// crosses a paragraph break is split per paragraph.
package highlight

import (
	"sort"
	"strings"

	"github.com/csheth/readmark/internal/domain"
	"github.com/csheth/readmark/internal/segment"
)

// Mark is a claimed, non-overlapping body range.
type Mark struct {
	AnnotationID string
	Start        int
	End          int
	// Relocated is set when the stored offsets no longer addressed the
	// selected text and the first free occurrence was used instead.
	Relocated bool
}

// Segment is a run of paragraph text, highlighted when AnnotationID is set.
type Segment struct {
	Text         string
	AnnotationID string
}

// Highlighted reports whether the segment belongs to an annotation.
func (s Segment) Highlighted() bool {
	return s.AnnotationID != ""
}

// Paragraph is a display paragraph split into plain and highlighted runs.
type Paragraph struct {
	Index    int
	Text     string
	Segments []Segment
}

// Resolve assigns each annotation a body range. Annotations whose offsets
// still address their text claim those ranges first, in start-offset order
// (ties keep list order). The rest then take the first unclaimed occurrence
// of their text, in list order. Annotations that fit nowhere are left out.
func Resolve(body string, annotations []domain.Annotation) []Mark {
	order := make([]int, len(annotations))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return annotations[order[i]].StartOffset < annotations[order[j]].StartOffset
	})

	var marks []Mark
	placed := make([]bool, len(annotations))
	for _, i := range order {
		a := annotations[i]
		if a.SelectedText == "" || !a.ValidOffsets(body) || overlaps(marks, a.StartOffset, a.EndOffset) {
			continue
		}
		marks = insert(marks, Mark{AnnotationID: a.ID, Start: a.StartOffset, End: a.EndOffset})
		placed[i] = true
	}

	for i, a := range annotations {
		if placed[i] || a.SelectedText == "" {
			continue
		}
		if start, ok := firstFree(body, a.SelectedText, marks); ok {
			marks = insert(marks, Mark{
				AnnotationID: a.ID,
				Start:        start,
				End:          start + len(a.SelectedText),
				Relocated:    true,
			})
		}
	}
	return marks
}

// Reconcile projects marks onto paragraphs.
func Reconcile(paragraphs []segment.Paragraph, marks []Mark) []Paragraph {
	result := make([]Paragraph, 0, len(paragraphs))
	for _, p := range paragraphs {
		out := Paragraph{Index: p.Index, Text: p.Text}
		pos := 0
		for _, m := range marks {
			if m.End <= p.Start {
				continue
			}
			if m.Start >= p.End {
				break
			}
			lo, hi, ok := p.Span(m.Start, m.End)
			if !ok || lo < pos {
				continue
			}
			if lo > pos {
				out.Segments = append(out.Segments, Segment{Text: p.Text[pos:lo]})
			}
			out.Segments = append(out.Segments, Segment{Text: p.Text[lo:hi], AnnotationID: m.AnnotationID})
			pos = hi
		}
		if pos < len(p.Text) {
			out.Segments = append(out.Segments, Segment{Text: p.Text[pos:]})
		}
		result = append(result, out)
	}
	return result
}

// Highlight resolves annotations against body and projects them onto its
// paragraphs.
func Highlight(body string, paragraphs []segment.Paragraph, annotations []domain.Annotation) []Paragraph {
	return Reconcile(paragraphs, Resolve(body, annotations))
}

func overlaps(marks []Mark, start, end int) bool {
	for _, m := range marks {
		if start < m.End && m.Start < end {
			return true
		}
	}
	return false
}

func insert(marks []Mark, m Mark) []Mark {
	idx := sort.Search(len(marks), func(i int) bool { return marks[i].Start >= m.Start })
	marks = append(marks, Mark{})
	copy(marks[idx+1:], marks[idx:])
	marks[idx] = m
	return marks
}

func firstFree(body, text string, marks []Mark) (int, bool) {
	from := 0
	for from <= len(body)-len(text) {
		idx := strings.Index(body[from:], text)
		if idx < 0 {
			return 0, false
		}
		start := from + idx
		if !overlaps(marks, start, start+len(text)) {
			return start, true
		}
		from = start + 1
	}
	return 0, false
}
