// Package loader reads every PDF in a directory into one Document per page.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pdfqa/internal/domain"
	"pdfqa/internal/logging"
)

// Loader extracts page text from PDF files.
type Loader struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Loader {
	return &Loader{logger: logging.OrNop(logger)}
}

// Files lists the PDF files directly inside dir, sorted by name.
// A missing directory yields no files and no error.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Load returns the pages of every readable PDF in dir. Files that fail are
// skipped; their *domain.LoadError values are combined into the returned
// error, which may be non-nil alongside a non-empty result.
func (l *Loader) Load(ctx context.Context, dir string) ([]domain.Document, error) {
	paths, err := Files(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		l.logger.Warn("no PDF files found", zap.String("dir", dir))
		return nil, nil
	}

	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	l.logger.Info("found PDF files", zap.Int("count", len(paths)), zap.Strings("files", names))

	var docs []domain.Document
	var errs error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return docs, multierr.Append(errs, err)
		}
		pages, err := l.loadFile(path)
		if err != nil {
			l.logger.Warn("skipping unreadable PDF", zap.String("file", filepath.Base(path)), zap.Error(err))
			errs = multierr.Append(errs, &domain.LoadError{Path: path, Err: err})
			continue
		}
		l.logger.Info("loaded PDF", zap.String("file", filepath.Base(path)), zap.Int("pages", len(pages)))
		docs = append(docs, pages...)
	}
	l.logger.Info("total pages loaded", zap.Int("pages", len(docs)))
	return docs, errs
}

func (l *Loader) loadFile(path string) (docs []domain.Document, err error) {
	// the parser panics on some malformed input
	defer func() {
		if r := recover(); r != nil {
			docs, err = nil, fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	total := r.NumPage()
	source := filepath.Base(path)
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			l.logger.Debug("page text extraction failed",
				zap.String("file", source), zap.Int("page", i-1), zap.Error(err))
			continue
		}
		docs = append(docs, domain.Document{
			Text:       text,
			Source:     source,
			Path:       path,
			Page:       i - 1,
			TotalPages: total,
		})
	}
	return docs, nil
}
