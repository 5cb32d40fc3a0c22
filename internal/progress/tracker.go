// Package progress converts viewport observations into reading progress and
// bookmarks.
package progress

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/csheth/readmark/internal/domain"
)

// SaveInterval is the minimum spacing between durable saves.
const SaveInterval = 2 * time.Second

// Bounds is the vertical extent of one paragraph in scroll units.
type Bounds struct {
	Start float64
	End   float64
}

// Metrics describes the reader viewport at one instant. Paragraphs are in
// document order and indexed like the segmenter's output.
type Metrics struct {
	ScrollOffset   float64
	ScrollExtent   float64
	ViewportExtent float64
	Paragraphs     []Bounds
}

// Observation is the outcome of one Observe call.
type Observation struct {
	Progress  float64
	MaxScroll float64
	Paragraph int
	// Changed reports whether any tracked field of the document moved.
	Changed bool
	// Saved reports whether the observation was persisted.
	Saved bool
}

// Tracker applies observations to documents and throttles persistence.
// It is meant to be driven from a single event loop.
type Tracker struct {
	persist func() error
	limiter *rate.Limiter
	now     func() time.Time
	log     *zap.Logger
	pending bool
}

type Option func(*Tracker)

// WithClock overrides time.Now for throttling.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(t *Tracker) {
		if log != nil {
			t.log = log
		}
	}
}

// WithInterval changes the minimum spacing between saves.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) {
		t.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// NewTracker returns a tracker that calls persist at most once per
// SaveInterval.
func NewTracker(persist func() error, opts ...Option) *Tracker {
	t := &Tracker{
		persist: persist,
		limiter: rate.NewLimiter(rate.Every(SaveInterval), 1),
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe records m against doc. Progress and maximum scroll only grow; the
// bookmark moves to the last paragraph intersecting the viewport and stays
// put when none does. A failed save is returned and retried on the next
// permitted observation.
func (t *Tracker) Observe(doc *domain.Document, m Metrics) (Observation, error) {
	prevMax := doc.MaxScrollPosition
	maxScroll := doc.UpdateMaxScrollPosition(m.ScrollOffset)

	percent, ok := Percent(maxScroll, m.ScrollExtent, m.ViewportExtent)
	if !ok {
		percent = VisibleShare(m)
	}
	progressed := doc.UpdateReadingProgress(percent)

	moved := false
	if idx, ok := CurrentParagraph(m); ok && idx != doc.LastParagraphRead {
		doc.LastParagraphRead = idx
		moved = true
	}

	obs := Observation{
		Progress:  doc.ReadingProgress,
		MaxScroll: doc.MaxScrollPosition,
		Paragraph: doc.LastParagraphRead,
		Changed:   progressed || moved || maxScroll != prevMax,
	}
	if obs.Changed {
		t.pending = true
	}
	if !t.pending || !t.limiter.AllowN(t.now(), 1) {
		return obs, nil
	}
	if err := t.save(); err != nil {
		return obs, err
	}
	obs.Saved = true
	return obs, nil
}

// Flush persists any observation the throttle held back.
func (t *Tracker) Flush() error {
	if !t.pending {
		return nil
	}
	return t.save()
}

// Pending reports whether an observation is waiting to be saved.
func (t *Tracker) Pending() bool {
	return t.pending
}

func (t *Tracker) save() error {
	if err := t.persist(); err != nil {
		t.log.Warn("saving reading progress failed", zap.Error(err))
		return err
	}
	t.pending = false
	return nil
}

// Percent converts a scroll position into a percentage of the scrollable
// range. It reports false when nothing can scroll.
func Percent(maxScroll, scrollExtent, viewportExtent float64) (float64, bool) {
	scrollable := scrollExtent - viewportExtent
	if scrollable <= 0 {
		return 0, false
	}
	return domain.ClampPercent(maxScroll / scrollable * 100), true
}

// VisibleShare is the percentage of paragraphs lying entirely inside the
// viewport, used when the content does not scroll.
func VisibleShare(m Metrics) float64 {
	if len(m.Paragraphs) == 0 {
		return 0
	}
	top := m.ScrollOffset
	bottom := top + m.ViewportExtent
	visible := 0
	for _, b := range m.Paragraphs {
		if b.Start >= top && b.End <= bottom {
			visible++
		}
	}
	return float64(visible) / float64(len(m.Paragraphs)) * 100
}

// CurrentParagraph returns the index of the last paragraph intersecting the
// viewport.
func CurrentParagraph(m Metrics) (int, bool) {
	top := m.ScrollOffset
	bottom := top + m.ViewportExtent
	current := -1
	for i, b := range m.Paragraphs {
		if b.Start >= bottom {
			break
		}
		if b.End > top {
			current = i
		}
	}
	return current, current >= 0
}
