package library

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/csheth/readmark/internal/domain"
	"github.com/csheth/readmark/internal/settings"
)

// ExportHTML renders a standalone page for the document, styled from the
// current settings.
func (l *Library) ExportHTML(documentID string) (string, error) {
	doc, ok := l.Document(documentID)
	if !ok {
		return "", fmt.Errorf("%w: document %s", domain.ErrNotFound, documentID)
	}
	body, err := l.HighlightedHTML(documentID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(doc.Title))
	fmt.Fprintf(&b, "<style>\n%s</style>\n</head>\n<body>\n", stylesheet(l.settings))
	fmt.Fprintf(&b, "<h1>%s</h1>\n<article>\n%s\n</article>\n</body>\n</html>\n", html.EscapeString(doc.Title), body)
	return b.String(), nil
}

// ExportText renders the document as plain paragraphs followed by its
// comments.
func (l *Library) ExportText(documentID string) (string, error) {
	doc, ok := l.Document(documentID)
	if !ok {
		return "", fmt.Errorf("%w: document %s", domain.ErrNotFound, documentID)
	}
	var b strings.Builder
	b.WriteString(doc.Title)
	b.WriteString("\n\n")
	for i, p := range doc.Paragraphs() {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p.Text)
	}
	b.WriteByte('\n')
	comments := l.Comments(documentID)
	if len(comments) == 0 {
		return b.String(), nil
	}
	b.WriteString("\nComments\n")
	for _, a := range comments {
		fmt.Fprintf(&b, "\n> %s\n%s (%s)\n", a.Quote(domain.QuoteLimit), a.Text, a.FormattedDate())
	}
	return b.String(), nil
}

func stylesheet(s settings.Settings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "body { background: %s; color: %s; filter: contrast(%g); }\n",
		s.BackgroundColor, s.TextColor, s.Contrast)
	fmt.Fprintf(&b, "article { max-width: %dch; margin: 0 auto; font-family: %s; font-size: %gpx; line-height: %g; letter-spacing: %gpx; text-align: %s; }\n",
		s.MaxWidth, s.FontFamily, s.FontSize, s.LineHeight, s.LetterSpacing, s.TextAlign)
	fmt.Fprintf(&b, "article p { margin: 0 0 %gem 0; }\n", s.ParagraphSpacing)
	b.WriteString(".comment-mark { background: rgba(255, 213, 79, 0.35); cursor: help; }\n")
	b.WriteString(".comment-mark:hover::after { content: attr(data-content); position: absolute; padding: 4px 8px; background: #333; color: #fff; border-radius: 4px; }\n")
	b.WriteString(".bookmark-indicator { margin-right: 4px; }\n")
	return b.String()
}
