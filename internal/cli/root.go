// Package cli is the readmark command line. Without a subcommand it opens the
// terminal reader; subcommands work on the same library non-interactively.
package cli

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/csheth/readmark/internal/config"
	"github.com/csheth/readmark/internal/library"
	"github.com/csheth/readmark/internal/logging"
	"github.com/csheth/readmark/internal/store"
	"github.com/csheth/readmark/internal/tui"
)

// app carries what the commands share: flags, configuration, the logger and
// the opened library.
type app struct {
	home        string
	storage     string
	verbose     bool
	noAltScreen bool

	cfg      config.Config
	log      *zap.Logger
	closeLog func() error
	lib      *library.Library
}

// Execute runs the command line with os.Args.
func Execute() error {
	root, a := newRootCommand()
	defer a.close()
	root.SetOut(os.Stdout)
	return root.Execute()
}

func newRootCommand() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:   "readmark",
		Short: "Read plain text documents and annotate them",
		Long: `readmark keeps a library of text and PDF documents, remembers how far you
read each one and lets you attach comments to passages.

Run without a subcommand to open the reader.

Controls:
  ↑/k, ↓/j - Move the cursor
  v        - Start or stop a line selection
  c        - Comment on the selection or search match
  /        - Search
  ?        - Toggle help
  q        - Back / Quit`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
		RunE: a.runReader,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.home, "home", "", "configuration directory (default $READMARK_HOME or ~/.readmark)")
	flags.StringVar(&a.storage, "storage", "", "storage backend: json, sqlite or memory")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")
	root.Flags().BoolVar(&a.noAltScreen, "no-alt-screen", false, "disable the alternate screen buffer")

	root.AddCommand(
		newImportCommand(a),
		newListCommand(a),
		newRemoveCommand(a),
		newCommentsCommand(a),
		newCommentCommand(a),
		newExportCommand(a),
		newSettingsCommand(a),
		newConfigCommand(a),
	)
	return root, a
}

// open loads the configuration and opens the library. The reader logs only to
// the log file; other commands also print warnings to stderr.
func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load(a.home)
	if err != nil {
		return err
	}
	if a.storage != "" {
		cfg.Storage.Backend = a.storage
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg

	log, closeLog, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Verbose: a.verbose,
		Stderr:  cmd.HasParent(),
	})
	if err != nil {
		return err
	}
	a.log, a.closeLog = log, closeLog

	if cmd.Annotations[skipLibrary] == "true" {
		return nil
	}
	kv, err := store.Open(cfg.Storage.Backend, cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}
	lib, err := library.Open(kv, library.WithLogger(log.Named("library")))
	if err != nil {
		_ = kv.Close()
		return err
	}
	a.lib = lib
	log.Debug("library opened",
		zap.String("backend", cfg.Storage.Backend),
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.Int("documents", len(lib.Documents())))
	return nil
}

func (a *app) close() {
	var errs []error
	if a.lib != nil {
		errs = append(errs, a.lib.Close())
		a.lib = nil
	}
	if a.closeLog != nil {
		errs = append(errs, a.closeLog())
		a.closeLog = nil
	}
	if err := errors.Join(errs...); err != nil {
		fmt.Fprintln(os.Stderr, "readmark: closing:", err)
	}
}

func (a *app) runReader(cmd *cobra.Command, args []string) error {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("reader panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			panic(r)
		}
	}()

	opts := []tea.ProgramOption{
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
		tea.WithMouseCellMotion(),
	}
	if a.cfg.UI.AltScreen && !a.noAltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	program := tea.NewProgram(tui.New(tui.Config{
		Library:   a.lib,
		Logger:    a.log.Named("tui"),
		ExportDir: a.cfg.Home,
	}), opts...)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("reader: %w", err)
	}
	return nil
}
