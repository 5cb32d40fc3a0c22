package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/csheth/readmark/internal/domain"
	"github.com/csheth/readmark/internal/importer"
	"github.com/csheth/readmark/internal/library"
	"github.com/csheth/readmark/internal/settings"
)

// skipLibrary marks commands that run without opening the library.
const skipLibrary = "readmark/skip-library"

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Add text or PDF files to the library",
		Long: `Import reads each file, detects its character encoding and adds it to the
library. PDFs are reduced to their plain text. The last imported file becomes
the active document.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			for _, path := range args {
				src, err := importer.FromFile(path)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", path, err))
					continue
				}
				doc, err := a.lib.Import(src)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", path, err))
					continue
				}
				cmd.Printf("Imported %s\n", doc.ID)
				cmd.Printf("  Title:      %s\n", doc.Title)
				cmd.Printf("  Encoding:   %s\n", src.Charset)
				cmd.Printf("  Paragraphs: %d\n", doc.ParagraphCount())
				cmd.Printf("  Words:      %d\n", doc.WordCount())
			}
			return errors.Join(errs...)
		},
	}
}

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List documents with their reading progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs := a.lib.Documents()
			if len(docs) == 0 {
				cmd.Println("The library is empty. Add a document with: readmark import FILE")
				return nil
			}
			activeID := ""
			if active, ok := a.lib.Active(); ok {
				activeID = active.ID
			}
			for _, doc := range docs {
				marker := " "
				if doc.ID == activeID {
					marker = "*"
				}
				cmd.Printf("%s %s  %3d%%  %s\n", marker, doc.ID, doc.ProgressPercent(), doc.Title)
				cmd.Printf("    %d words, %d comments, added %s\n",
					doc.WordCount(), len(a.lib.Comments(doc.ID)), doc.FormattedDate())
			}
			cmd.Printf("\nTotal: %d documents\n", len(docs))
			return nil
		},
	}
}

func newRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove DOCUMENT_ID",
		Aliases: []string{"rm"},
		Short:   "Delete a document and its comments",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.document(args[0])
			if err != nil {
				return err
			}
			comments := len(a.lib.Comments(doc.ID))
			if err := a.lib.Remove(doc.ID); err != nil {
				return err
			}
			cmd.Printf("Removed %q and %d comment(s)\n", doc.Title, comments)
			return nil
		},
	}
}

func newCommentsCommand(a *app) *cobra.Command {
	var remove string
	cmd := &cobra.Command{
		Use:   "comments DOCUMENT_ID",
		Short: "Show the comments on a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.document(args[0])
			if err != nil {
				return err
			}
			if remove != "" {
				if err := a.commentOn(doc, remove); err != nil {
					return err
				}
				if err := a.lib.RemoveComment(remove); err != nil {
					return err
				}
				cmd.Printf("Removed comment %s\n", remove)
				return nil
			}
			comments := a.lib.Comments(doc.ID)
			if len(comments) == 0 {
				cmd.Printf("No comments on %q\n", doc.Title)
				return nil
			}
			for _, c := range comments {
				cmd.Printf("%s  [%d:%d]  %s\n", c.ID, c.StartOffset, c.EndOffset, c.FormattedDate())
				cmd.Printf("  > %s\n", c.Quote(domain.QuoteLimit))
				cmd.Printf("  %s\n\n", strings.ReplaceAll(c.Text, "\n", "\n  "))
			}
			cmd.Printf("Total: %d comments\n", len(comments))
			return nil
		},
	}
	cmd.Flags().StringVar(&remove, "delete", "", "delete the comment with this id instead of listing")
	return cmd
}

func newCommentCommand(a *app) *cobra.Command {
	var (
		quote string
		text  string
		near  int
		edit  string
	)
	cmd := &cobra.Command{
		Use:   "comment DOCUMENT_ID",
		Short: "Attach a comment to a passage",
		Long: `Comment finds --quote in the document and attaches --text to it. When the
passage occurs more than once, --near picks the occurrence closest to that
byte offset. With --edit the text of an existing comment is replaced.

Examples:
  readmark comment 3f2a… --quote "call me Ishmael" --text "famous opening"
  readmark comment 3f2a… --edit 9c1d… --text "revised"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.document(args[0])
			if err != nil {
				return err
			}
			if edit != "" {
				if err := a.commentOn(doc, edit); err != nil {
					return err
				}
				if err := a.lib.UpdateComment(edit, text); err != nil {
					return err
				}
				cmd.Printf("Updated comment %s\n", edit)
				return nil
			}
			if quote == "" {
				return fmt.Errorf("%w: --quote is required", domain.ErrValidation)
			}
			c, err := a.lib.AddComment(doc.ID, library.Selection{Text: quote, Hint: near}, text)
			if err != nil && c.ID == "" {
				return err
			}
			cmd.Printf("Added comment %s on %q [%d:%d]\n", c.ID, c.Quote(domain.QuoteLimit), c.StartOffset, c.EndOffset)
			return err
		},
	}
	cmd.Flags().StringVarP(&quote, "quote", "q", "", "passage to comment on")
	cmd.Flags().StringVarP(&text, "text", "t", "", "comment text")
	cmd.Flags().IntVar(&near, "near", -1, "prefer the occurrence closest to this byte offset")
	cmd.Flags().StringVar(&edit, "edit", "", "replace the text of this comment")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func newExportCommand(a *app) *cobra.Command {
	var (
		asHTML bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "export DOCUMENT_ID",
		Short: "Write a document with its comments",
		Long: `Export prints the document followed by its comments. With --html it renders
a standalone page that uses the reader settings and marks commented passages.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.document(args[0])
			if err != nil {
				return err
			}
			var out string
			if asHTML {
				out, err = a.lib.ExportHTML(doc.ID)
			} else {
				out, err = a.lib.ExportText(doc.ID)
			}
			if err != nil {
				return err
			}
			if output == "" {
				cmd.Print(out)
				return nil
			}
			if err := os.WriteFile(output, []byte(out), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			a.log.Info("document exported", zap.String("id", doc.ID), zap.String("path", output), zap.Bool("html", asHTML))
			cmd.Printf("Exported %q to %s\n", doc.Title, output)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asHTML, "html", false, "render an HTML page")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func newSettingsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "settings [KEY [VALUE]]",
		Short: "Show or change reader settings",
		Long: `Without arguments all settings are printed. With KEY the single value is
printed, and with KEY VALUE the setting is changed.

Keys: ` + strings.Join(settings.Keys(), ", "),
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch len(args) {
			case 0:
				current := a.lib.Settings()
				for _, key := range settings.Keys() {
					value, _ := current.Get(key)
					cmd.Printf("%-18s %s\n", key, value)
				}
				return nil
			case 1:
				value, ok := a.lib.Settings().Get(args[0])
				if !ok {
					return fmt.Errorf("%w: unknown setting %q", domain.ErrValidation, args[0])
				}
				cmd.Println(value)
				return nil
			default:
				err := a.lib.UpdateSettings(func(s *settings.Settings) error {
					return s.Set(args[0], args[1])
				})
				if err != nil {
					return err
				}
				value, _ := a.lib.Settings().Get(args[0])
				cmd.Printf("%s = %s\n", args[0], value)
				return nil
			}
		},
	}
}

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Show the effective configuration",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipLibrary: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.cfg.Encode()
			if err != nil {
				return err
			}
			cmd.Printf("# %s\n%s", a.cfg.Path(), data)
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:         "init",
		Short:       "Write the effective configuration to the config file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipLibrary: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(a.cfg.Path()); err == nil {
				return fmt.Errorf("%s already exists", a.cfg.Path())
			}
			if err := a.cfg.Write(); err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", a.cfg.Path())
			return nil
		},
	})
	return cmd
}

// document resolves a document id. A unique id prefix is accepted.
func (a *app) document(id string) (*domain.Document, error) {
	if doc, ok := a.lib.Document(id); ok {
		return doc, nil
	}
	var match *domain.Document
	for _, doc := range a.lib.Documents() {
		if id == "" || !strings.HasPrefix(doc.ID, id) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("%w: %q matches more than one document", domain.ErrValidation, id)
		}
		match = doc
	}
	if match == nil {
		return nil, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	return match, nil
}

// commentOn reports ErrNotFound unless comment id belongs to doc.
func (a *app) commentOn(doc *domain.Document, id string) error {
	c, ok := a.lib.Comment(id)
	if !ok || c.DocumentID != doc.ID {
		return fmt.Errorf("%w: comment %s on %q", domain.ErrNotFound, id, doc.Title)
	}
	return nil
}
