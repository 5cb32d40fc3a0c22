package annotation

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/csheth/readmark/internal/domain"
	"github.com/csheth/readmark/internal/store"
)

type bodies map[string]string

func (b bodies) Body(id string) (string, bool) {
	body, ok := b[id]
	return body, ok
}

const sampleBody = "Hello world.\n\nGoodbye world."

func newTestStore(t *testing.T) (*Store, *store.Memory) {
	t.Helper()
	kv := store.NewMemory()
	clock := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	s := NewStore(kv, bodies{"doc": sampleBody, "other": "other world"},
		WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}),
	)
	return s, kv
}

func TestAddValidates(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Add("doc", domain.Draft{Text: "   ", SelectedText: "world", StartOffset: 6, EndOffset: 11})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.Add("missing", domain.Draft{Text: "note", SelectedText: "world", StartOffset: 6, EndOffset: 11})
	assert.ErrorIs(t, err, domain.ErrUnknownDocument)

	_, err = s.Add("doc", domain.Draft{Text: "note", SelectedText: "world", StartOffset: 0, EndOffset: 5})
	assert.ErrorIs(t, err, domain.ErrInvalidOffsets)

	_, err = s.Add("doc", domain.Draft{Text: "note", SelectedText: "world", StartOffset: 6, EndOffset: 99})
	assert.ErrorIs(t, err, domain.ErrInvalidOffsets)

	assert.Empty(t, s.All())
}

func TestAddPersistsAndMatchesBody(t *testing.T) {
	s, kv := newTestStore(t)

	a, err := s.Add("doc", domain.Draft{Text: " nice ", SelectedText: "world", StartOffset: 6, EndOffset: 11})
	require.NoError(t, err)
	assert.Equal(t, "nice", a.Text)
	assert.Equal(t, a.SelectedText, sampleBody[a.StartOffset:a.EndOffset])

	raw, ok := kv.Raw(StorageKey)
	require.True(t, ok)
	var persisted []domain.Annotation
	require.NoError(t, json.Unmarshal(raw, &persisted))
	require.Len(t, persisted, 1)
	assert.Equal(t, a.ID, persisted[0].ID)
}

func TestRemoveAndUpdateIgnoreUnknownIDs(t *testing.T) {
	s, _ := newTestStore(t)
	assert.NoError(t, s.Remove("nope"))

	text := "x"
	_, found, err := s.Update("nope", Patch{Text: &text})
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestUpdateMergesText(t *testing.T) {
	s, _ := newTestStore(t)
	a, err := s.Add("doc", domain.Draft{Text: "first", SelectedText: "Hello", StartOffset: 0, EndOffset: 5})
	require.NoError(t, err)

	text := "second"
	updated, found, err := s.Update(a.ID, Patch{Text: &text})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "second", updated.Text)
	assert.True(t, updated.UpdatedAt.After(a.UpdatedAt))
	assert.Equal(t, a.CreatedAt, updated.CreatedAt)

	blank := " "
	_, _, err = s.Update(a.ID, Patch{Text: &blank})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestListByDocumentKeepsInsertionOrder(t *testing.T) {
	s, _ := newTestStore(t)
	first, err := s.Add("doc", domain.Draft{Text: "a", SelectedText: "Goodbye", StartOffset: 14, EndOffset: 21})
	require.NoError(t, err)
	_, err = s.Add("other", domain.Draft{Text: "b", SelectedText: "other", StartOffset: 0, EndOffset: 5})
	require.NoError(t, err)
	second, err := s.Add("doc", domain.Draft{Text: "c", SelectedText: "Hello", StartOffset: 0, EndOffset: 5})
	require.NoError(t, err)

	list := s.ListByDocument("doc")
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestClearForDocumentRemovesOnlyThatDocument(t *testing.T) {
	s, _ := newTestStore(t)
	for _, draft := range []domain.Draft{
		{Text: "1", SelectedText: "Hello", StartOffset: 0, EndOffset: 5},
		{Text: "2", SelectedText: "world", StartOffset: 6, EndOffset: 11},
		{Text: "3", SelectedText: "Goodbye", StartOffset: 14, EndOffset: 21},
	} {
		_, err := s.Add("doc", draft)
		require.NoError(t, err)
	}
	_, err := s.Add("other", domain.Draft{Text: "keep", SelectedText: "world", StartOffset: 6, EndOffset: 11})
	require.NoError(t, err)

	removed, err := s.ClearForDocument("doc")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Empty(t, s.ListByDocument("doc"))
	assert.Len(t, s.ListByDocument("other"), 1)
}

func TestClearForDocumentKeepsCollectionWhenSaveFails(t *testing.T) {
	s, kv := newTestStore(t)
	_, err := s.Add("doc", domain.Draft{Text: "1", SelectedText: "Hello", StartOffset: 0, EndOffset: 5})
	require.NoError(t, err)
	kv.FailWith(errors.New("disk full"))

	removed, err := s.ClearForDocument("doc")
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Zero(t, removed)
	assert.Len(t, s.ListByDocument("doc"), 1)

	kv.FailWith(nil)
	removed, err = s.ClearForDocument("doc")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	require.NoError(t, s.Load())
	assert.Empty(t, s.All())
}

func TestPersistenceFailureIsReported(t *testing.T) {
	s, kv := newTestStore(t)
	kv.FailWith(errors.New("quota exceeded"))

	_, err := s.Add("doc", domain.Draft{Text: "a", SelectedText: "Hello", StartOffset: 0, EndOffset: 5})
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestLoadSkipsMalformedRecords(t *testing.T) {
	s, kv := newTestStore(t)
	kv.Put(StorageKey, json.RawMessage(`[{"id":"a1","textFileId":"doc","text":"ok"}, 42, "junk"]`))

	require.NoError(t, s.Load())
	all := s.All()
	require.Len(t, all, 1)
	assert.Equal(t, "a1", all[0].ID)
}

func TestLocate(t *testing.T) {
	body := "Hello world.\n\nGoodbye   world.\nwrapped\nline here"
	cases := []struct {
		name      string
		selected  string
		hint      int
		wantStart int
		wantText  string
	}{
		{"first occurrence", "world", -1, 6, "world"},
		{"closest to hint", "world", 20, 24, "world"},
		{"collapsed whitespace", "Goodbye world", -1, 14, "Goodbye   world"},
		{"across newline", "wrapped line", -1, 31, "wrapped\nline"},
		{"trims selection", "  Hello ", -1, 0, "Hello"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, err := Locate(body, tc.selected, tc.hint)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStart, start)
			assert.Equal(t, tc.wantText, body[start:end])
		})
	}

	_, _, err := Locate(body, "absent", -1)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, _, err = Locate(body, "  ", -1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
