package tui

import (
	"github.com/csheth/readmark/internal/importer"
)

type stage int

const (
	stageLibrary stage = iota
	stageLoading
	stageReader
	stageSearch
	stageComments
	stageConfirm
)

type interactionMode int

const (
	modeNormal interactionMode = iota
	modeInsert
	modeHighlight
)

type composerMode int

const (
	composerModeIdle composerMode = iota
	composerModeImport
	composerModeComment
	composerModeEdit
)

const (
	composerImportPlaceholder  = "Path to a .txt, .md or .pdf file…"
	composerCommentPlaceholder = "Write a comment and press Enter…"
	composerEditPlaceholder    = "Edit the comment and press Enter…"
)

const heroTagline = "Read, annotate, and pick up where you left off."

const (
	minViewportWidth          = 40
	viewportHorizontalPadding = 4
	bookmarkGutter            = "» "
	plainGutter               = "  "
)

type importResultMsg struct {
	path   string
	source importer.Source
	err    error
}

type exportResultMsg struct {
	path string
	err  error
}

// confirmation is a pending destructive action awaiting y/n.
type confirmation struct {
	prompt string
	back   stage
	run    func() error
	done   string
}
