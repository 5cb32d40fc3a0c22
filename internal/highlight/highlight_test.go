package highlight

import (
	"strings"
	"testing"

	"github.com/csheth/readmark/internal/domain"
	"github.com/csheth/readmark/internal/segment"
)

const twoWorlds = "Hello world.\n\nGoodbye world."

func annotationAt(id, body, text string, start int) domain.Annotation {
	return domain.Annotation{
		ID:           id,
		Text:         "comment " + id,
		SelectedText: text,
		StartOffset:  start,
		EndOffset:    start + len(text),
	}
}

func highlightedTexts(paragraphs []Paragraph) map[string]string {
	out := map[string]string{}
	for _, p := range paragraphs {
		for _, s := range p.Segments {
			if s.Highlighted() {
				out[s.AnnotationID] += s.Text
			}
		}
	}
	return out
}

func TestResolveTwoAnnotationsOnSameWord(t *testing.T) {
	t.Parallel()
	first := annotationAt("a1", twoWorlds, "world", 6)
	second := annotationAt("a2", twoWorlds, "world", strings.LastIndex(twoWorlds, "world"))

	marks := Resolve(twoWorlds, []domain.Annotation{first, second})
	if len(marks) != 2 {
		t.Fatalf("expected 2 marks, got %d", len(marks))
	}
	if marks[0].AnnotationID != "a1" || marks[0].Start != 6 {
		t.Fatalf("first mark = %+v", marks[0])
	}
	if marks[1].AnnotationID != "a2" || marks[1].Start != 22 {
		t.Fatalf("second mark = %+v", marks[1])
	}
}

func TestResolveDuplicateOffsetsTakeNextOccurrence(t *testing.T) {
	t.Parallel()
	first := annotationAt("a1", twoWorlds, "world", 6)
	dup := annotationAt("a2", twoWorlds, "world", 6)

	marks := Resolve(twoWorlds, []domain.Annotation{first, dup})
	if len(marks) != 2 {
		t.Fatalf("expected 2 marks, got %d", len(marks))
	}
	if marks[1].AnnotationID != "a2" || marks[1].Start != 22 || !marks[1].Relocated {
		t.Fatalf("duplicate should move to the next unmarked occurrence, got %+v", marks[1])
	}
}

func TestResolveSkipsStaleAnnotations(t *testing.T) {
	t.Parallel()
	stale := domain.Annotation{ID: "gone", SelectedText: "farewell", StartOffset: 0, EndOffset: 8}
	shifted := domain.Annotation{ID: "moved", SelectedText: "Goodbye", StartOffset: 0, EndOffset: 7}

	marks := Resolve(twoWorlds, []domain.Annotation{stale, shifted})
	if len(marks) != 1 {
		t.Fatalf("expected only the relocatable annotation, got %+v", marks)
	}
	if marks[0].AnnotationID != "moved" || twoWorlds[marks[0].Start:marks[0].End] != "Goodbye" {
		t.Fatalf("unexpected mark %+v", marks[0])
	}
}

func TestResolveValidOffsetsWinOverStaleRecords(t *testing.T) {
	t.Parallel()
	body := "x world world"
	valid := annotationAt("valid", body, "world", 2)
	stale := domain.Annotation{ID: "stale", SelectedText: "world"}

	marks := Resolve(body, []domain.Annotation{valid, stale})
	if len(marks) != 2 {
		t.Fatalf("expected 2 marks, got %+v", marks)
	}
	if marks[0].AnnotationID != "valid" || marks[0].Start != 2 || marks[0].End != 7 || marks[0].Relocated {
		t.Fatalf("annotation with valid offsets should keep them, got %+v", marks[0])
	}
	if marks[1].AnnotationID != "stale" || marks[1].Start != 8 || !marks[1].Relocated {
		t.Fatalf("stale annotation should take the next free occurrence, got %+v", marks[1])
	}
}

func TestResolveRelocatesInListOrder(t *testing.T) {
	t.Parallel()
	body := "world world"
	late := domain.Annotation{ID: "late", SelectedText: "world", StartOffset: 40, EndOffset: 45}
	early := domain.Annotation{ID: "early", SelectedText: "world"}

	marks := Resolve(body, []domain.Annotation{late, early})
	if len(marks) != 2 {
		t.Fatalf("expected 2 marks, got %+v", marks)
	}
	if marks[0].AnnotationID != "late" || marks[1].AnnotationID != "early" {
		t.Fatalf("relocation should follow list order, got %+v", marks)
	}
}

func TestResolveNeverOverlaps(t *testing.T) {
	t.Parallel()
	body := "alpha beta gamma"
	anns := []domain.Annotation{
		annotationAt("wide", body, "alpha beta", 0),
		annotationAt("inner", body, "beta", 6),
		annotationAt("tail", body, "gamma", 11),
	}
	marks := Resolve(body, anns)
	for i := 1; i < len(marks); i++ {
		if marks[i].Start < marks[i-1].End {
			t.Fatalf("marks overlap: %+v and %+v", marks[i-1], marks[i])
		}
	}
	if len(marks) != 2 {
		t.Fatalf("inner annotation has no free occurrence and should be skipped, got %+v", marks)
	}
}

func TestHighlightSplitsAcrossParagraphs(t *testing.T) {
	t.Parallel()
	text := "world.\n\nGoodbye"
	a := annotationAt("span", twoWorlds, text, 6)
	paragraphs := Highlight(twoWorlds, segment.Paragraphs(twoWorlds), []domain.Annotation{a})

	if len(paragraphs) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d", len(paragraphs))
	}
	if got := paragraphs[0].Segments; len(got) != 2 || got[1].Text != "world." || got[1].AnnotationID != "span" {
		t.Fatalf("first paragraph segments = %+v", got)
	}
	if got := paragraphs[1].Segments; len(got) != 2 || got[0].Text != "Goodbye" || got[0].AnnotationID != "span" {
		t.Fatalf("second paragraph segments = %+v", got)
	}
}

func TestHighlightPreservesParagraphText(t *testing.T) {
	t.Parallel()
	body := "  Some   spaced\ttext here.\n\nAnother line."
	a := annotationAt("x", body, "spaced\ttext", strings.Index(body, "spaced"))
	paragraphs := Highlight(body, segment.Paragraphs(body), []domain.Annotation{a})
	for _, p := range paragraphs {
		var joined strings.Builder
		for _, s := range p.Segments {
			joined.WriteString(s.Text)
		}
		if joined.String() != p.Text {
			t.Fatalf("segments %q do not rebuild %q", joined.String(), p.Text)
		}
	}
	if got := highlightedTexts(paragraphs)["x"]; got != "spaced text" {
		t.Fatalf("highlight = %q", got)
	}
}

func TestRenderHTML(t *testing.T) {
	t.Parallel()
	body := "Tom & Jerry.\n\nSecond <para>."
	a := annotationAt("c1", body, "Jerry", 6)
	a.Text = "line one\nline \"two\""
	paragraphs := Highlight(body, segment.Paragraphs(body), []domain.Annotation{a})

	got := RenderHTML(paragraphs, []domain.Annotation{a}, 1)
	want := `<p data-paragraph-index="0">Tom &amp; <span class="comment-mark" data-comment-id="c1" data-content="line one line &#34;two&#34;">Jerry</span>.</p>` +
		"\n" +
		`<p data-paragraph-index="1"><span class="bookmark-indicator" title="Last read">📍</span> Second &lt;para&gt;.</p>`
	if got != want {
		t.Fatalf("RenderHTML mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestApplyWrapsFirstUnmarkedOccurrence(t *testing.T) {
	t.Parallel()
	markup := `<p data-paragraph-index="0">Hello world.</p><p data-paragraph-index="1">Goodbye world.</p>`
	anns := []domain.Annotation{
		{ID: "a1", Text: "one", SelectedText: "world"},
		{ID: "a2", Text: "two", SelectedText: "world"},
	}
	got, err := Apply(markup, anns)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := `<p data-paragraph-index="0">Hello <span class="comment-mark" data-comment-id="a1" data-content="one">world</span>.</p>` +
		`<p data-paragraph-index="1">Goodbye <span class="comment-mark" data-comment-id="a2" data-content="two">world</span>.</p>`
	if got != want {
		t.Fatalf("Apply mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	t.Parallel()
	markup := `<p data-paragraph-index="0">a world of world and world</p>`
	anns := []domain.Annotation{
		{ID: "a1", Text: "one", SelectedText: "world"},
		{ID: "a2", Text: "two", SelectedText: "world"},
		{ID: "a3", Text: "three", SelectedText: "missing"},
	}
	once, err := Apply(markup, anns)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	twice, err := Apply(once, anns)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if once != twice {
		t.Fatalf("Apply not idempotent\nonce:  %s\ntwice: %s", once, twice)
	}
	if strings.Count(once, `class="comment-mark"`) != 2 {
		t.Fatalf("expected two marks, got %s", once)
	}
}

func TestApplyOnRenderedMarkupIsNoop(t *testing.T) {
	t.Parallel()
	body := "Tom & Jerry.\n\nGoodbye world."
	anns := []domain.Annotation{
		annotationAt("c1", body, "Jerry", 6),
		annotationAt("c2", body, "world", strings.Index(body, "world")),
	}
	rendered := RenderHTML(Highlight(body, segment.Paragraphs(body), anns), anns, 0)
	applied, err := Apply(rendered, anns)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if applied != rendered {
		t.Fatalf("Apply changed rendered markup\n got: %s\nwant: %s", applied, rendered)
	}
}
