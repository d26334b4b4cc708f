// Package scan enumerates candidate images under the raw input root.
//
// The expected layout is {root}/{category}/*.{jpg,jpeg,png,bmp,tif,tiff}. Files are
// yielded lazily, categories in canonical order and files sorted by name, so
// the sequence is stable across platforms.
package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/okian/curator/internal/domain/category"
	"github.com/okian/curator/internal/domain/model"
	"github.com/okian/curator/pkg/logger"
)

// DefaultExtensions are matched case-insensitively.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff"}

var formatExtensions = map[string][]string{
	"jpeg": {".jpg", ".jpeg"},
	"png":  {".png"},
	"bmp":  {".bmp"},
	"tiff": {".tif", ".tiff"},
}

// ExtensionsFor returns the file extensions of the named decoder formats
// (jpeg, png, bmp, tiff). Unknown names contribute nothing.
func ExtensionsFor(formats ...string) []string {
	var exts []string
	for _, f := range formats {
		exts = append(exts, formatExtensions[strings.ToLower(strings.TrimSpace(f))]...)
	}
	return exts
}

// Report describes which category directories were found.
type Report struct {
	Root    string
	Present []category.Category
	Missing []category.Category
}

// Scanner lists candidate files.
type Scanner struct {
	exts   map[string]bool
	buffer int
	logger logger.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithExtensions replaces the extension set. A leading dot is optional.
func WithExtensions(exts ...string) Option {
	return func(s *Scanner) {
		if len(exts) == 0 {
			return
		}
		s.exts = make(map[string]bool, len(exts))
		for _, e := range exts {
			e = strings.ToLower(strings.TrimSpace(e))
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			s.exts[e] = true
		}
	}
}

// WithLogger sets the logger used for scan warnings.
func WithLogger(l logger.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBuffer sets the candidate channel buffer.
func WithBuffer(n int) Option {
	return func(s *Scanner) {
		if n >= 0 {
			s.buffer = n
		}
	}
}

// New creates a Scanner.
func New(opts ...Option) *Scanner {
	s := &Scanner{buffer: 64}
	WithExtensions(DefaultExtensions...)(s)
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("scanner")
	}
	return s
}

// Scan checks the category directories under root and returns a channel that
// yields every matching file. The channel is closed when listing finishes or
// ctx is cancelled. A missing category is logged and reported, not returned as
// an error; a missing root or zero categories is.
func (s *Scanner) Scan(ctx context.Context, root string) (<-chan model.Candidate, Report, error) {
	report := Report{Root: root}

	st, err := os.Stat(root)
	if err != nil || !st.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return nil, report, fmt.Errorf("%w: %s: %w", ErrRootMissing, root, err)
	}

	for _, c := range category.All() {
		dir := filepath.Join(root, c.String())
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			report.Missing = append(report.Missing, c)
			s.logger.Warn(ctx, "category directory not found",
				logger.String("category", c.String()),
				logger.String("path", dir),
				logger.Error(ErrCategoryMissing),
			)
			continue
		}
		report.Present = append(report.Present, c)
	}
	if len(report.Present) == 0 {
		return nil, report, fmt.Errorf("%w under %s", ErrNoCategories, root)
	}

	out := make(chan model.Candidate, s.buffer)
	go func() {
		defer close(out)
		for _, c := range report.Present {
			if !s.listCategory(ctx, root, c, out) {
				return
			}
		}
	}()

	return out, report, nil
}

// listCategory sends the files of one category. It returns false when ctx is done.
func (s *Scanner) listCategory(ctx context.Context, root string, c category.Category, out chan<- model.Candidate) bool {
	dir := filepath.Join(root, c.String())
	// os.ReadDir returns entries sorted by file name.
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Warn(ctx, "failed to list category directory",
			logger.String("category", c.String()),
			logger.String("path", dir),
			logger.Error(err),
		)
		return ctx.Err() == nil
	}

	found := 0
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || !s.exts[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		select {
		case out <- model.Candidate{Path: path, Category: c, Size: info.Size()}:
			found++
		case <-ctx.Done():
			return false
		}
	}

	s.logger.Debug(ctx, "category listed",
		logger.String("category", c.String()),
		logger.Int("files", found),
	)
	return true
}

// Collect drains a candidate channel into a slice, preserving order.
func Collect(ch <-chan model.Candidate) []model.Candidate {
	var out []model.Candidate
	for c := range ch {
		out = append(out, c)
	}
	return out
}
