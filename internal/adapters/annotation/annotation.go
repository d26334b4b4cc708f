// Package annotation accumulates annotation records during a run and
// serializes them once, at the end, as a flat table.
package annotation

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/okian/curator/internal/domain/category"
	"github.com/okian/curator/internal/domain/model"
)

// TimestampLayout formats processed_timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// Columns is the header of the annotation table, in order.
var Columns = []string{
	"image_id",
	"filename",
	"split",
	"category",
	"category_label",
	"repair_cost",
	"cost_min",
	"cost_max",
	"processed_timestamp",
}

// Writer collects records from concurrent workers. Nothing touches disk until Flush.
type Writer struct {
	path   string
	dbPath string

	mu      sync.Mutex
	records []model.Record
}

// Option configures a Writer.
type Option func(*Writer)

// WithSQLite mirrors the table into a SQLite database at path.
func WithSQLite(path string) Option {
	return func(w *Writer) {
		w.dbPath = path
	}
}

// NewWriter creates a Writer targeting the CSV file at path.
func NewWriter(path string, opts ...Option) *Writer {
	w := &Writer{path: path}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Append adds a record. It is safe for concurrent use.
func (w *Writer) Append(rec model.Record) {
	w.mu.Lock()
	w.records = append(w.records, rec)
	w.mu.Unlock()
}

// Len returns the number of records collected so far.
func (w *Writer) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records)
}

// Records returns a copy of the collected records ordered by sequence, which
// makes the table independent of worker scheduling.
func (w *Writer) Records() []model.Record {
	w.mu.Lock()
	out := append([]model.Record(nil), w.records...)
	w.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// Flush writes the full table, replacing any previous one. The database copy
// is written first, so a CSV on disk always has a matching mirror. The CSV is
// written to a temporary file and renamed, so the table is either absent, the
// old one or the complete new one.
func (w *Writer) Flush(ctx context.Context) error {
	records := w.Records()

	var buf bytes.Buffer
	if err := Encode(&buf, records); err != nil {
		return err
	}

	if w.dbPath != "" {
		if err := writeSQLite(ctx, w.dbPath, records); err != nil {
			return err
		}
	}
	return writeAtomic(w.path, buf.Bytes())
}

// Encode writes records as CSV with the header row.
func Encode(out io.Writer, records []model.Record) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	for i := range records {
		if err := cw.Write(row(&records[i])); err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

func row(r *model.Record) []string {
	return []string{
		r.ImageID,
		r.Filename,
		string(r.Split),
		r.Category.String(),
		r.CategoryLabel,
		strconv.FormatFloat(r.RepairCost, 'f', -1, 64),
		strconv.Itoa(r.CostMin),
		strconv.Itoa(r.CostMax),
		r.ProcessedAt.Format(TimestampLayout),
	}
}

// ReadCSV loads a table written by Flush. Sequence is restored from row order.
func ReadCSV(path string) ([]model.Record, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("open annotations: %w", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: missing header", ErrParse)
	}
	for i, col := range Columns {
		if i >= len(rows[0]) || rows[0][i] != col {
			return nil, fmt.Errorf("%w: unexpected header %v", ErrParse, rows[0])
		}
	}

	out := make([]model.Record, 0, len(rows)-1)
	for i, r := range rows[1:] {
		rec, err := parseRow(r)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrParse, i+1, err)
		}
		rec.Sequence = i
		out = append(out, rec)
	}
	return out, nil
}

func parseRow(r []string) (model.Record, error) {
	c, err := category.Parse(r[3])
	if err != nil {
		return model.Record{}, err
	}
	cost, err := strconv.ParseFloat(r[5], 64)
	if err != nil {
		return model.Record{}, err
	}
	minCost, err := strconv.Atoi(r[6])
	if err != nil {
		return model.Record{}, err
	}
	maxCost, err := strconv.Atoi(r[7])
	if err != nil {
		return model.Record{}, err
	}
	at, err := time.ParseInLocation(TimestampLayout, r[8], time.Local)
	if err != nil {
		return model.Record{}, err
	}
	return model.Record{
		ImageID:       r[0],
		Filename:      r[1],
		Split:         model.Split(r[2]),
		Category:      c,
		CategoryLabel: r[4],
		RepairCost:    cost,
		CostMin:       minCost,
		CostMax:       maxCost,
		ProcessedAt:   at,
	}, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := os.Chmod(name, 0o644); err != nil { //nolint:gosec // annotation table is not secret
		_ = os.Remove(name)
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}
