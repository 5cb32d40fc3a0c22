// Package annotation owns the collection of comments attached to documents.
package annotation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/csheth/readmark/internal/domain"
	"github.com/csheth/readmark/internal/store"
)

// StorageKey is the persistence key of the annotation collection.
const StorageKey = "annotations"

// Bodies resolves document bodies for validation.
type Bodies interface {
	Body(documentID string) (string, bool)
}

// Patch lists the annotation fields Update may change.
type Patch struct {
	Text *string
}

// Store holds annotations in insertion order and writes the full collection
// after every mutation. It is not safe for concurrent use.
type Store struct {
	kv    store.Store
	docs  Bodies
	log   *zap.Logger
	now   func() time.Time
	items []domain.Annotation
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the logger used for load diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(kv store.Store, docs Bodies, opts ...Option) *Store {
	s := &Store{
		kv:   kv,
		docs: docs,
		log:  zap.NewNop(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory collection with the persisted one. Records that
// are not objects are skipped; missing fields take defaults.
func (s *Store) Load() error {
	var raw []json.RawMessage
	found, err := s.kv.Load(StorageKey, &raw)
	if err != nil {
		return fmt.Errorf("%w: loading annotations: %w", domain.ErrPersistence, err)
	}
	s.items = nil
	if !found {
		return nil
	}
	for i, entry := range raw {
		var a domain.Annotation
		if err := json.Unmarshal(entry, &a); err != nil {
			s.log.Warn("skipping unreadable annotation", zap.Int("index", i), zap.Error(err))
			continue
		}
		s.items = append(s.items, a)
	}
	return nil
}

// Add validates draft against the document body and appends it.
//
// Callers must hold an active document selection; the offsets in draft are
// expected to come from Locate over the same body.
func (s *Store) Add(documentID string, draft domain.Draft) (domain.Annotation, error) {
	if strings.TrimSpace(draft.Text) == "" {
		return domain.Annotation{}, fmt.Errorf("%w: comment text is empty", domain.ErrValidation)
	}
	body, ok := s.docs.Body(documentID)
	if !ok {
		return domain.Annotation{}, fmt.Errorf("%w: %s", domain.ErrUnknownDocument, documentID)
	}
	a := domain.NewAnnotation(documentID, draft, s.now())
	if !a.ValidOffsets(body) {
		return domain.Annotation{}, fmt.Errorf("%w: [%d,%d) does not address %q",
			domain.ErrInvalidOffsets, draft.StartOffset, draft.EndOffset, draft.SelectedText)
	}
	s.items = append(s.items, a)
	return a, s.persist()
}

// Remove deletes the annotation with id. Unknown ids are ignored.
func (s *Store) Remove(id string) error {
	idx := s.indexOf(id)
	if idx < 0 {
		return nil
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	return s.persist()
}

// Update applies patch to the annotation with id and refreshes UpdatedAt.
// Unknown ids are ignored.
func (s *Store) Update(id string, patch Patch) (domain.Annotation, bool, error) {
	idx := s.indexOf(id)
	if idx < 0 {
		return domain.Annotation{}, false, nil
	}
	current := s.items[idx]
	if _, ok := s.docs.Body(current.DocumentID); !ok {
		return current, true, fmt.Errorf("%w: %s", domain.ErrUnknownDocument, current.DocumentID)
	}
	if patch.Text != nil {
		text := strings.TrimSpace(*patch.Text)
		if text == "" {
			return current, true, fmt.Errorf("%w: comment text is empty", domain.ErrValidation)
		}
		current.Text = text
	}
	current.UpdatedAt = s.now()
	s.items[idx] = current
	return current, true, s.persist()
}

// Get returns the annotation with id.
func (s *Store) Get(id string) (domain.Annotation, bool) {
	idx := s.indexOf(id)
	if idx < 0 {
		return domain.Annotation{}, false
	}
	return s.items[idx], true
}

// ListByDocument returns the annotations of documentID in insertion order.
func (s *Store) ListByDocument(documentID string) []domain.Annotation {
	var result []domain.Annotation
	for _, a := range s.items {
		if a.DocumentID == documentID {
			result = append(result, a)
		}
	}
	return result
}

// ClearForDocument removes every annotation of documentID and reports how
// many were removed. Only document deletion should call it. When the save
// fails the collection is left as it was, so a retry clears it again.
func (s *Store) ClearForDocument(documentID string) (int, error) {
	var kept []domain.Annotation
	removed := 0
	for _, a := range s.items {
		if a.DocumentID == documentID {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	if removed == 0 {
		return 0, nil
	}
	previous := s.items
	s.items = kept
	if err := s.persist(); err != nil {
		s.items = previous
		return 0, err
	}
	return removed, nil
}

// All returns a copy of the whole collection.
func (s *Store) All() []domain.Annotation {
	return append([]domain.Annotation(nil), s.items...)
}

func (s *Store) indexOf(id string) int {
	for i, a := range s.items {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) persist() error {
	items := s.items
	if items == nil {
		items = []domain.Annotation{}
	}
	if err := s.kv.Save(StorageKey, items); err != nil {
		return fmt.Errorf("%w: saving annotations: %w", domain.ErrPersistence, err)
	}
	return nil
}
