// Package importer turns files on disk into document sources.
package importer

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/csheth/readmark/internal/domain"
)

// ErrUnsupported is returned for files that are neither text nor PDF.
var ErrUnsupported = errors.New("unsupported file type")

// Source is the title and decoded body of an importable file.
type Source struct {
	Title   string
	Body    string
	Charset string
	Path    string
}

var textExtensions = map[string]bool{
	".txt":      true,
	".text":     true,
	".md":       true,
	".markdown": true,
}

var horizontalWhitespace = regexp.MustCompile(`[ \t\f\v]+`)

// FromFile reads path. PDFs are reduced to their plain text; everything else
// must look like text.
func FromFile(path string) (Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	src := Source{Title: TitleFromPath(path), Path: path}

	if ext == ".pdf" {
		text, err := pdfText(path)
		if err != nil {
			return Source{}, err
		}
		src.Body = text
		src.Charset = "PDF"
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return Source{}, err
		}
		if !textExtensions[ext] && !looksLikeText(data) {
			return Source{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
		}
		src.Body, src.Charset = Decode(data)
	}
	if strings.TrimSpace(src.Body) == "" {
		return Source{}, fmt.Errorf("%w: %s has no readable text", domain.ErrValidation, filepath.Base(path))
	}
	return src, nil
}

// TitleFromPath is the file name without its extension.
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	title := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if title == "" || title == "." || title == string(filepath.Separator) {
		return domain.DefaultTitle
	}
	return title
}

func looksLikeText(data []byte) bool {
	sniff := data
	if len(sniff) > 512 {
		sniff = sniff[:512]
	}
	return strings.HasPrefix(http.DetectContentType(sniff), "text/")
}

func pdfText(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer file.Close()

	content, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}

	var builder strings.Builder
	if _, err := io.Copy(&builder, content); err != nil {
		return "", err
	}
	lines := strings.Split(builder.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalWhitespace.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
