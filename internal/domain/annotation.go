package domain

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// QuoteLimit is the number of characters of selected text shown in comment
// listings before truncation.
const QuoteLimit = 40

// Annotation is a comment attached to a range of a document body. Offsets are
// byte offsets into Document.Body.
type Annotation struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"textFileId"`
	Text         string    `json:"text"`
	SelectedText string    `json:"selectedText"`
	StartOffset  int       `json:"startOffset"`
	EndOffset    int       `json:"endOffset"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Draft carries the user supplied parts of a new annotation.
type Draft struct {
	Text         string
	SelectedText string
	StartOffset  int
	EndOffset    int
}

// NewAnnotation stamps a draft with an identifier and timestamps.
func NewAnnotation(documentID string, draft Draft, now time.Time) Annotation {
	return Annotation{
		ID:           uuid.NewString(),
		DocumentID:   documentID,
		Text:         strings.TrimSpace(draft.Text),
		SelectedText: draft.SelectedText,
		StartOffset:  draft.StartOffset,
		EndOffset:    draft.EndOffset,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// FormattedDate renders the creation time without the year.
func (a Annotation) FormattedDate() string {
	return a.CreatedAt.Local().Format("Jan 2, 03:04 PM")
}

// Quote returns the selected text cut to limit characters, with an ellipsis
// when it was truncated.
func (a Annotation) Quote(limit int) string {
	if limit <= 0 || utf8.RuneCountInString(a.SelectedText) <= limit {
		return a.SelectedText
	}
	runes := []rune(a.SelectedText)
	return string(runes[:limit]) + "..."
}

// PopoverText is the comment flattened to one line, as used for highlight
// tooltips.
func (a Annotation) PopoverText() string {
	return strings.Join(strings.Fields(a.Text), " ")
}

// ValidOffsets reports whether the offsets address SelectedText within body.
func (a Annotation) ValidOffsets(body string) bool {
	if a.StartOffset < 0 || a.EndOffset > len(body) || a.StartOffset >= a.EndOffset {
		return false
	}
	return body[a.StartOffset:a.EndOffset] == a.SelectedText
}

type annotationRecord struct {
	ID           *string    `json:"id"`
	DocumentID   *string    `json:"textFileId"`
	Text         *string    `json:"text"`
	SelectedText *string    `json:"selectedText"`
	StartOffset  *int       `json:"startOffset"`
	EndOffset    *int       `json:"endOffset"`
	CreatedAt    *time.Time `json:"createdAt"`
	UpdatedAt    *time.Time `json:"updatedAt"`
}

// UnmarshalJSON decodes a stored record, defaulting missing fields.
func (a *Annotation) UnmarshalJSON(data []byte) error {
	var rec annotationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	now := time.Now()
	*a = Annotation{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	if rec.ID != nil && *rec.ID != "" {
		a.ID = *rec.ID
	}
	if rec.DocumentID != nil {
		a.DocumentID = *rec.DocumentID
	}
	if rec.Text != nil {
		a.Text = *rec.Text
	}
	if rec.SelectedText != nil {
		a.SelectedText = *rec.SelectedText
	}
	if rec.StartOffset != nil {
		a.StartOffset = *rec.StartOffset
	}
	if rec.EndOffset != nil {
		a.EndOffset = *rec.EndOffset
	}
	if rec.CreatedAt != nil && !rec.CreatedAt.IsZero() {
		a.CreatedAt = *rec.CreatedAt
	}
	if rec.UpdatedAt != nil && !rec.UpdatedAt.IsZero() {
		a.UpdatedAt = *rec.UpdatedAt
	}
	return nil
}
