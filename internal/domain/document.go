// Package domain holds the entities shared by the library, annotation and
// progress components.
package domain

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/csheth/readmark/internal/segment"
)

// NoParagraph marks a document that has no bookmark yet.
const NoParagraph = -1

// DefaultTitle is used when an imported document has no usable name.
const DefaultTitle = "Untitled"

// Document is an imported text. Title and Body never change after New.
type Document struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Body              string    `json:"body"`
	CreatedAt         time.Time `json:"createdAt"`
	ReadingProgress   float64   `json:"readingProgress"`
	MaxScrollPosition float64   `json:"maxScrollPosition"`
	LastParagraphRead int       `json:"lastParagraphRead"`

	paragraphs []segment.Paragraph
	segmented  bool
}

// NewDocument creates a document with a fresh identifier and no progress.
func NewDocument(title, body string, now time.Time) *Document {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	return &Document{
		ID:                uuid.NewString(),
		Title:             title,
		Body:              body,
		CreatedAt:         now,
		LastParagraphRead: NoParagraph,
	}
}

// UpdateReadingProgress clamps percent to [0, 100] and keeps the furthest
// value seen. It reports whether the stored value changed.
func (d *Document) UpdateReadingProgress(percent float64) bool {
	percent = ClampPercent(percent)
	if percent <= d.ReadingProgress {
		return false
	}
	d.ReadingProgress = percent
	return true
}

// UpdateMaxScrollPosition records offset if it is further than any offset
// seen before and returns the resulting maximum.
func (d *Document) UpdateMaxScrollPosition(offset float64) float64 {
	if offset > d.MaxScrollPosition {
		d.MaxScrollPosition = offset
	}
	return d.MaxScrollPosition
}

// Paragraphs returns the cached segmentation of the body.
func (d *Document) Paragraphs() []segment.Paragraph {
	if !d.segmented {
		d.paragraphs = segment.Paragraphs(d.Body)
		d.segmented = true
	}
	return d.paragraphs
}

func (d *Document) ParagraphCount() int {
	return len(d.Paragraphs())
}

func (d *Document) WordCount() int {
	return segment.WordCount(d.Body)
}

// ProgressPercent is the reading progress rounded for display.
func (d *Document) ProgressPercent() int {
	return int(math.Round(d.ReadingProgress))
}

// Complete reports whether the document has been read to the end.
func (d *Document) Complete() bool {
	return d.ProgressPercent() >= 100
}

// FormattedDate renders the creation time the way the library list shows it.
func (d *Document) FormattedDate() string {
	return d.CreatedAt.Local().Format("Jan 2, 2006, 03:04 PM")
}

// ClampPercent limits value to [0, 100]. NaN becomes 0.
func ClampPercent(value float64) float64 {
	switch {
	case math.IsNaN(value) || value < 0:
		return 0
	case value > 100:
		return 100
	default:
		return value
	}
}

type documentRecord struct {
	ID                *string    `json:"id"`
	Title             *string    `json:"title"`
	Body              *string    `json:"body"`
	CreatedAt         *time.Time `json:"createdAt"`
	ReadingProgress   *float64   `json:"readingProgress"`
	MaxScrollPosition *float64   `json:"maxScrollPosition"`
	LastParagraphRead *int       `json:"lastParagraphRead"`
}

// UnmarshalJSON decodes a stored record, defaulting every missing field.
// A stored bookmark of 0 stays 0; only a missing bookmark becomes NoParagraph.
func (d *Document) UnmarshalJSON(data []byte) error {
	var rec documentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*d = Document{
		ID:                uuid.NewString(),
		Title:             DefaultTitle,
		CreatedAt:         time.Now(),
		LastParagraphRead: NoParagraph,
	}
	if rec.ID != nil && *rec.ID != "" {
		d.ID = *rec.ID
	}
	if rec.Title != nil && strings.TrimSpace(*rec.Title) != "" {
		d.Title = *rec.Title
	}
	if rec.Body != nil {
		d.Body = *rec.Body
	}
	if rec.CreatedAt != nil && !rec.CreatedAt.IsZero() {
		d.CreatedAt = *rec.CreatedAt
	}
	if rec.ReadingProgress != nil {
		d.ReadingProgress = ClampPercent(*rec.ReadingProgress)
	}
	if rec.MaxScrollPosition != nil && *rec.MaxScrollPosition > 0 {
		d.MaxScrollPosition = *rec.MaxScrollPosition
	}
	if rec.LastParagraphRead != nil && *rec.LastParagraphRead >= 0 {
		d.LastParagraphRead = *rec.LastParagraphRead
	}
	return nil
}
