// Package library is the application state shared by the reader and the
// command line: documents, their annotations, reading progress and
// presentation settings, with change notification for views.
package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/csheth/readmark/internal/annotation"
	"github.com/csheth/readmark/internal/domain"
	"github.com/csheth/readmark/internal/highlight"
	"github.com/csheth/readmark/internal/importer"
	"github.com/csheth/readmark/internal/progress"
	"github.com/csheth/readmark/internal/segment"
	"github.com/csheth/readmark/internal/settings"
	"github.com/csheth/readmark/internal/store"
)

// DocumentsKey is the persistence key of the document collection.
const DocumentsKey = "documents"

// EventKind identifies what changed.
type EventKind int

const (
	DocumentsChanged EventKind = iota
	AnnotationsChanged
	ActiveChanged
	ProgressChanged
	SettingsChanged
)

func (k EventKind) String() string {
	switch k {
	case DocumentsChanged:
		return "documents"
	case AnnotationsChanged:
		return "annotations"
	case ActiveChanged:
		return "active"
	case ProgressChanged:
		return "progress"
	case SettingsChanged:
		return "settings"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after state has been updated and
// persisted.
type Event struct {
	Kind       EventKind
	DocumentID string
}

// Selection is text the reader picked for a comment. Hint is a body offset
// near the selection, or negative when unknown.
type Selection struct {
	Text string
	Hint int
}

// Library owns all loaded state. Methods must be called from one goroutine.
type Library struct {
	kv       store.Store
	log      *zap.Logger
	now      func() time.Time
	docs     []*domain.Document
	activeID string
	comments *annotation.Store
	tracker  *progress.Tracker
	settings settings.Settings
	subs     map[int]func(Event)
	nextSub  int
	trackOps []progress.Option
}

type Option func(*Library)

func WithLogger(log *zap.Logger) Option {
	return func(l *Library) {
		if log != nil {
			l.log = log
		}
	}
}

// WithClock overrides time.Now for timestamps and save throttling.
func WithClock(now func() time.Time) Option {
	return func(l *Library) {
		if now != nil {
			l.now = now
		}
	}
}

// WithSaveInterval changes the progress save throttle.
func WithSaveInterval(d time.Duration) Option {
	return func(l *Library) {
		l.trackOps = append(l.trackOps, progress.WithInterval(d))
	}
}

// Open loads documents, annotations and settings from kv. Malformed records
// are skipped and missing fields take defaults.
func Open(kv store.Store, opts ...Option) (*Library, error) {
	l := &Library{
		kv:       kv,
		log:      zap.NewNop(),
		now:      time.Now,
		settings: settings.Defaults(),
		subs:     map[int]func(Event){},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.comments = annotation.NewStore(kv, l,
		annotation.WithLogger(l.log.Named("annotations")),
		annotation.WithClock(l.now))
	trackOpts := append([]progress.Option{
		progress.WithClock(l.now),
		progress.WithLogger(l.log.Named("progress")),
	}, l.trackOps...)
	l.tracker = progress.NewTracker(l.SaveDocuments, trackOpts...)

	if err := l.loadDocuments(); err != nil {
		return nil, err
	}
	if err := l.comments.Load(); err != nil {
		return nil, err
	}
	if _, err := kv.Load(settings.StorageKey, &l.settings); err != nil {
		l.log.Warn("settings unreadable, using defaults", zap.Error(err))
		l.settings = settings.Defaults()
	}
	l.log.Debug("library opened",
		zap.Int("documents", len(l.docs)),
		zap.Int("annotations", len(l.comments.All())))
	return l, nil
}

func (l *Library) loadDocuments() error {
	var raw []json.RawMessage
	found, err := l.kv.Load(DocumentsKey, &raw)
	if err != nil {
		return fmt.Errorf("%w: loading documents: %w", domain.ErrPersistence, err)
	}
	if !found {
		return nil
	}
	for i, entry := range raw {
		doc := &domain.Document{}
		if err := json.Unmarshal(entry, doc); err != nil {
			l.log.Warn("skipping unreadable document", zap.Int("index", i), zap.Error(err))
			continue
		}
		l.docs = append(l.docs, doc)
	}
	return nil
}

// Subscribe registers fn for change events and returns a function that
// removes it.
func (l *Library) Subscribe(fn func(Event)) func() {
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	return func() { delete(l.subs, id) }
}

func (l *Library) emit(kind EventKind, documentID string) {
	ev := Event{Kind: kind, DocumentID: documentID}
	for _, fn := range l.subs {
		fn(ev)
	}
}

// Import adds a document from src, makes it active and persists the
// collection.
func (l *Library) Import(src importer.Source) (*domain.Document, error) {
	if strings.TrimSpace(src.Body) == "" {
		return nil, fmt.Errorf("%w: document body is empty", domain.ErrValidation)
	}
	doc := domain.NewDocument(src.Title, src.Body, l.now())
	l.docs = append(l.docs, doc)
	l.activeID = doc.ID
	if err := l.SaveDocuments(); err != nil {
		return doc, err
	}
	l.log.Info("document imported",
		zap.String("id", doc.ID),
		zap.String("title", doc.Title),
		zap.String("charset", src.Charset),
		zap.Int("words", doc.WordCount()))
	l.emit(DocumentsChanged, doc.ID)
	l.emit(ActiveChanged, doc.ID)
	return doc, nil
}

// Documents returns the documents in import order.
func (l *Library) Documents() []*domain.Document {
	return append([]*domain.Document(nil), l.docs...)
}

// Document looks up a document by id.
func (l *Library) Document(id string) (*domain.Document, bool) {
	for _, d := range l.docs {
		if d.ID == id {
			return d, true
		}
	}
	return nil, false
}

// Body implements annotation.Bodies.
func (l *Library) Body(id string) (string, bool) {
	doc, ok := l.Document(id)
	if !ok {
		return "", false
	}
	return doc.Body, true
}

// SetActive selects the document shown by the reader.
func (l *Library) SetActive(id string) error {
	if _, ok := l.Document(id); !ok {
		l.log.Warn("cannot activate unknown document", zap.String("id", id))
		return fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	if l.activeID == id {
		return nil
	}
	if err := l.tracker.Flush(); err != nil {
		l.log.Warn("flushing progress before switching documents", zap.Error(err))
	}
	l.activeID = id
	l.emit(ActiveChanged, id)
	return nil
}

// Active returns the selected document, if any.
func (l *Library) Active() (*domain.Document, bool) {
	if l.activeID == "" {
		return nil, false
	}
	return l.Document(l.activeID)
}

// Remove deletes a document after clearing its annotations. When the active
// document is removed the first remaining document becomes active. Unknown
// ids are ignored.
func (l *Library) Remove(id string) error {
	idx := -1
	for i, d := range l.docs {
		if d.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	removed, err := l.comments.ClearForDocument(id)
	if err != nil {
		return err
	}
	l.docs = append(l.docs[:idx], l.docs[idx+1:]...)
	activeChanged := false
	if l.activeID == id {
		l.activeID = ""
		if len(l.docs) > 0 {
			l.activeID = l.docs[0].ID
		}
		activeChanged = true
	}
	if err := l.SaveDocuments(); err != nil {
		return err
	}
	l.log.Info("document removed", zap.String("id", id), zap.Int("annotations", removed))
	if removed > 0 {
		l.emit(AnnotationsChanged, id)
	}
	l.emit(DocumentsChanged, id)
	if activeChanged {
		l.emit(ActiveChanged, l.activeID)
	}
	return nil
}

// SaveDocuments persists the document collection.
func (l *Library) SaveDocuments() error {
	docs := l.docs
	if docs == nil {
		docs = []*domain.Document{}
	}
	if err := l.kv.Save(DocumentsKey, docs); err != nil {
		return fmt.Errorf("%w: saving documents: %w", domain.ErrPersistence, err)
	}
	return nil
}

// AddComment attaches text to sel within the document. The comment text is
// checked first, then the document, then the selection is located in the
// body. The annotation is stored before subscribers hear about it.
func (l *Library) AddComment(documentID string, sel Selection, text string) (domain.Annotation, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Annotation{}, fmt.Errorf("%w: comment text is empty", domain.ErrValidation)
	}
	doc, ok := l.Document(documentID)
	if !ok {
		return domain.Annotation{}, fmt.Errorf("%w: no document selected", domain.ErrValidation)
	}
	start, end, err := annotation.Locate(doc.Body, sel.Text, sel.Hint)
	if err != nil {
		return domain.Annotation{}, err
	}
	a, err := l.comments.Add(doc.ID, domain.Draft{
		Text:         text,
		SelectedText: doc.Body[start:end],
		StartOffset:  start,
		EndOffset:    end,
	})
	if err != nil {
		if a.ID == "" {
			return a, err
		}
		l.log.Error("annotation kept in memory but not saved", zap.String("id", a.ID), zap.Error(err))
		l.emit(AnnotationsChanged, doc.ID)
		return a, err
	}
	l.log.Debug("annotation added", zap.String("id", a.ID), zap.String("document", doc.ID))
	l.emit(AnnotationsChanged, doc.ID)
	return a, nil
}

// UpdateComment replaces the text of an annotation. Unknown ids are ignored.
func (l *Library) UpdateComment(id, text string) error {
	a, found, err := l.comments.Update(id, annotation.Patch{Text: &text})
	if !found {
		return nil
	}
	if err == nil || errors.Is(err, domain.ErrPersistence) {
		l.emit(AnnotationsChanged, a.DocumentID)
	}
	return err
}

// RemoveComment deletes an annotation. Unknown ids are ignored.
func (l *Library) RemoveComment(id string) error {
	a, ok := l.comments.Get(id)
	if !ok {
		return nil
	}
	err := l.comments.Remove(id)
	l.emit(AnnotationsChanged, a.DocumentID)
	return err
}

// Comments lists a document's annotations in insertion order.
func (l *Library) Comments(documentID string) []domain.Annotation {
	return l.comments.ListByDocument(documentID)
}

// Comment looks up one annotation.
func (l *Library) Comment(id string) (domain.Annotation, bool) {
	return l.comments.Get(id)
}

// Paragraphs returns the segmented paragraphs of a document.
func (l *Library) Paragraphs(documentID string) []segment.Paragraph {
	doc, ok := l.Document(documentID)
	if !ok {
		return nil
	}
	return doc.Paragraphs()
}

// Highlighted returns the document's paragraphs with annotation marks.
func (l *Library) Highlighted(documentID string) []highlight.Paragraph {
	doc, ok := l.Document(documentID)
	if !ok {
		return nil
	}
	return highlight.Highlight(doc.Body, doc.Paragraphs(), l.Comments(documentID))
}

// HighlightedHTML renders the document as markup with marks and bookmark.
// Annotations that could not be placed in the body get a second chance
// against the rendered text, where whitespace has been collapsed.
func (l *Library) HighlightedHTML(documentID string) (string, error) {
	doc, ok := l.Document(documentID)
	if !ok {
		return "", fmt.Errorf("%w: document %s", domain.ErrNotFound, documentID)
	}
	comments := l.Comments(documentID)
	paragraphs := highlight.Highlight(doc.Body, doc.Paragraphs(), comments)
	markup := highlight.RenderHTML(paragraphs, comments, doc.LastParagraphRead)
	out, err := highlight.Apply(markup, comments)
	if err != nil {
		l.log.Warn("marking rendered text failed", zap.String("document", documentID), zap.Error(err))
		return markup, nil
	}
	return out, nil
}

// Observe feeds a viewport observation for a document to the progress
// tracker.
func (l *Library) Observe(documentID string, m progress.Metrics) (progress.Observation, error) {
	doc, ok := l.Document(documentID)
	if !ok {
		return progress.Observation{}, fmt.Errorf("%w: document %s", domain.ErrNotFound, documentID)
	}
	obs, err := l.tracker.Observe(doc, m)
	if obs.Changed {
		l.emit(ProgressChanged, documentID)
	}
	return obs, err
}

// Flush saves progress the throttle held back.
func (l *Library) Flush() error {
	return l.tracker.Flush()
}

// Settings returns the current presentation settings.
func (l *Library) Settings() settings.Settings {
	return l.settings
}

// UpdateSettings applies fn to a copy of the settings and persists the result
// when fn succeeds.
func (l *Library) UpdateSettings(fn func(*settings.Settings) error) error {
	next := l.settings
	if err := fn(&next); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if err := l.kv.Save(settings.StorageKey, next); err != nil {
		return fmt.Errorf("%w: saving settings: %w", domain.ErrPersistence, err)
	}
	l.settings = next
	l.emit(SettingsChanged, "")
	return nil
}

// Close flushes pending progress and closes the store.
func (l *Library) Close() error {
	flushErr := l.tracker.Flush()
	closeErr := l.kv.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
