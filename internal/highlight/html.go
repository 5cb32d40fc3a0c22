package highlight

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/csheth/readmark/internal/domain"
)

const (
	markClass     = "comment-mark"
	markIDAttr    = "data-comment-id"
	markTextAttr  = "data-content"
	bookmarkClass = "bookmark-indicator"
)

// RenderHTML renders highlighted paragraphs as markup. The paragraph at
// bookmark carries a last-read indicator; pass domain.NoParagraph for none.
func RenderHTML(paragraphs []Paragraph, annotations []domain.Annotation, bookmark int) string {
	popovers := make(map[string]string, len(annotations))
	for _, a := range annotations {
		popovers[a.ID] = a.PopoverText()
	}
	var b strings.Builder
	for i, p := range paragraphs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, `<p data-paragraph-index="%d">`, p.Index)
		if p.Index == bookmark {
			fmt.Fprintf(&b, `<span class="%s" title="Last read">📍</span> `, bookmarkClass)
		}
		for _, s := range p.Segments {
			if !s.Highlighted() {
				b.WriteString(html.EscapeString(s.Text))
				continue
			}
			writeMark(&b, s.AnnotationID, popovers[s.AnnotationID], s.Text)
		}
		b.WriteString("</p>")
	}
	return b.String()
}

// Apply wraps the first unmarked occurrence of each annotation's selected
// text in markup, visiting annotations in list order. Text already inside a
// highlight is never matched and annotations that already have a mark are
// skipped, so applying twice gives the same result as applying once.
func Apply(markup string, annotations []domain.Annotation) (string, error) {
	tokens, err := tokenize(markup)
	if err != nil {
		return "", err
	}
	marked := markedIDs(tokens)
	for _, a := range annotations {
		if a.SelectedText == "" || marked[a.ID] {
			continue
		}
		if next, ok := wrapFirst(tokens, a); ok {
			tokens = next
			marked[a.ID] = true
		}
	}
	var b strings.Builder
	for _, tok := range tokens {
		b.WriteString(tok.String())
	}
	return b.String(), nil
}

func writeMark(b *strings.Builder, id, content, text string) {
	fmt.Fprintf(b, `<span class="%s" %s="%s" %s="%s">%s</span>`,
		markClass,
		markIDAttr, html.EscapeString(id),
		markTextAttr, html.EscapeString(content),
		html.EscapeString(text))
}

func tokenize(markup string) ([]html.Token, error) {
	z := html.NewTokenizer(strings.NewReader(markup))
	var tokens []html.Token
	for {
		if z.Next() == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return tokens, nil
			}
			return nil, fmt.Errorf("parsing markup: %w", z.Err())
		}
		tokens = append(tokens, z.Token())
	}
}

func markedIDs(tokens []html.Token) map[string]bool {
	ids := map[string]bool{}
	for _, tok := range tokens {
		if id, ok := markID(tok); ok {
			ids[id] = true
		}
	}
	return ids
}

func markID(tok html.Token) (string, bool) {
	if tok.Type != html.StartTagToken || tok.Data != "span" || !hasClass(tok, markClass) {
		return "", false
	}
	return attr(tok, markIDAttr), true
}

// wrapFirst splits the first text token outside any mark that contains the
// annotation's text.
func wrapFirst(tokens []html.Token, a domain.Annotation) ([]html.Token, bool) {
	var spans []bool
	depth := 0
	for i, tok := range tokens {
		switch {
		case tok.Type == html.StartTagToken && tok.Data == "span":
			_, isMark := markID(tok)
			spans = append(spans, isMark)
			if isMark {
				depth++
			}
		case tok.Type == html.EndTagToken && tok.Data == "span":
			if n := len(spans); n > 0 {
				if spans[n-1] {
					depth--
				}
				spans = spans[:n-1]
			}
		case tok.Type == html.TextToken && depth == 0:
			idx := strings.Index(tok.Data, a.SelectedText)
			if idx < 0 {
				continue
			}
			end := idx + len(a.SelectedText)
			replacement := splitText(tok.Data, idx, end, a)
			out := make([]html.Token, 0, len(tokens)+len(replacement))
			out = append(out, tokens[:i]...)
			out = append(out, replacement...)
			out = append(out, tokens[i+1:]...)
			return out, true
		}
	}
	return tokens, false
}

func splitText(text string, start, end int, a domain.Annotation) []html.Token {
	var out []html.Token
	if start > 0 {
		out = append(out, html.Token{Type: html.TextToken, Data: text[:start]})
	}
	out = append(out,
		html.Token{
			Type: html.StartTagToken,
			Data: "span",
			Attr: []html.Attribute{
				{Key: "class", Val: markClass},
				{Key: markIDAttr, Val: a.ID},
				{Key: markTextAttr, Val: a.PopoverText()},
			},
		},
		html.Token{Type: html.TextToken, Data: text[start:end]},
		html.Token{Type: html.EndTagToken, Data: "span"},
	)
	if end < len(text) {
		out = append(out, html.Token{Type: html.TextToken, Data: text[end:]})
	}
	return out
}

func hasClass(tok html.Token, class string) bool {
	for _, field := range strings.Fields(attr(tok, "class")) {
		if field == class {
			return true
		}
	}
	return false
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
