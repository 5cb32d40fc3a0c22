package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// jobKind names the file work the reader pushes off the event loop.
type jobKind string

const (
	// jobKindImport reads and decodes a document from disk.
	jobKindImport jobKind = "import"
	// jobKindExport writes a rendered HTML page next to the library.
	jobKindExport jobKind = "export"
)

type jobStatus string

const (
	jobStatusRunning   jobStatus = "running"
	jobStatusSucceeded jobStatus = "succeeded"
	jobStatusFailed    jobStatus = "failed"
	jobStatusCancelled jobStatus = "cancelled"
)

// jobSnapshot describes one job over the file it works on.
type jobSnapshot struct {
	ID        string
	Kind      jobKind
	Path      string
	Status    jobStatus
	StartedAt time.Time
	Duration  time.Duration
	Err       string
}

// Label is the short form shown in the reader header.
func (s jobSnapshot) Label() string {
	verb := "importing"
	if s.Kind == jobKindExport {
		verb = "exporting"
	}
	return verb + " " + filepath.Base(s.Path)
}

type jobSignalMsg struct {
	Snapshot jobSnapshot
}

type jobResultEnvelope struct {
	Snapshot jobSnapshot
	Payload  tea.Msg
}

// jobRunner does its work off the event loop. It must not touch model state;
// whatever it needs to report goes into the returned message.
type jobRunner func(context.Context) (tea.Msg, error)

// jobBus starts file jobs under one context that Cancel ends when the reader
// quits. Start and Cancel are called from Update only.
type jobBus struct {
	ctx    context.Context
	cancel context.CancelFunc
	seq    int
	log    *zap.Logger
}

func newJobBus(log *zap.Logger) *jobBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &jobBus{ctx: ctx, cancel: cancel, log: log}
}

// Start announces a job on path and then runs it.
func (b *jobBus) Start(kind jobKind, path string, runner jobRunner) tea.Cmd {
	snapshot := b.begin(kind, path)
	return tea.Sequence(
		func() tea.Msg { return jobSignalMsg{Snapshot: snapshot} },
		func() tea.Msg { return b.run(snapshot, runner) },
	)
}

// Cancel stops jobs still in flight; their runners see a done context.
func (b *jobBus) Cancel() {
	b.cancel()
}

func (b *jobBus) begin(kind jobKind, path string) jobSnapshot {
	b.seq++
	return jobSnapshot{
		ID:        fmt.Sprintf("%s-%d", kind, b.seq),
		Kind:      kind,
		Path:      path,
		Status:    jobStatusRunning,
		StartedAt: time.Now(),
	}
}

func (b *jobBus) run(snapshot jobSnapshot, runner jobRunner) jobResultEnvelope {
	payload, err := runner(b.ctx)
	snapshot.Duration = time.Since(snapshot.StartedAt)
	switch {
	case errors.Is(err, context.Canceled):
		snapshot.Status = jobStatusCancelled
	case err != nil:
		snapshot.Status = jobStatusFailed
	default:
		snapshot.Status = jobStatusSucceeded
	}
	if err != nil {
		snapshot.Err = err.Error()
	}
	b.log.Debug("job finished",
		zap.String("id", snapshot.ID),
		zap.String("path", snapshot.Path),
		zap.String("status", string(snapshot.Status)),
		zap.Duration("duration", snapshot.Duration),
		zap.Error(err))
	return jobResultEnvelope{Snapshot: snapshot, Payload: payload}
}
