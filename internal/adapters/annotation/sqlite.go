package annotation

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/okian/curator/internal/domain/model"
)

const createTable = `
CREATE TABLE IF NOT EXISTS annotations (
	sequence            INTEGER PRIMARY KEY,
	image_id            TEXT NOT NULL UNIQUE,
	filename            TEXT NOT NULL,
	split               TEXT NOT NULL,
	category            TEXT NOT NULL,
	category_label      TEXT NOT NULL,
	repair_cost         REAL NOT NULL,
	cost_min            INTEGER NOT NULL,
	cost_max            INTEGER NOT NULL,
	processed_timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_annotations_split ON annotations(split, category);`

const insertRow = `
INSERT INTO annotations (
	sequence, image_id, filename, split, category, category_label,
	repair_cost, cost_min, cost_max, processed_timestamp
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// openDB opens the SQLite file, creating its directory and schema.
func openDB(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("%w: create database directory: %w", ErrDatabase, err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrDatabase, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: schema: %w", ErrDatabase, err)
	}
	return db, nil
}

// writeSQLite replaces the annotations table contents in one transaction.
func writeSQLite(ctx context.Context, path string, records []model.Record) error {
	db, err := openDB(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrDatabase, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM annotations`); err != nil {
		return fmt.Errorf("%w: clear: %w", ErrDatabase, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertRow)
	if err != nil {
		return fmt.Errorf("%w: prepare: %w", ErrDatabase, err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range records {
		r := &records[i]
		if _, err := stmt.ExecContext(ctx,
			r.Sequence, r.ImageID, r.Filename, string(r.Split), r.Category.String(), r.CategoryLabel,
			r.RepairCost, r.CostMin, r.CostMax, r.ProcessedAt.Format(TimestampLayout),
		); err != nil {
			return fmt.Errorf("%w: insert %s: %w", ErrDatabase, r.ImageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrDatabase, err)
	}
	return nil
}

// CountBySplit reads per-split row counts back from a mirrored database.
func CountBySplit(ctx context.Context, path string) (map[model.Split]int, error) {
	db, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, `SELECT split, COUNT(*) FROM annotations GROUP BY split`)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", ErrDatabase, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[model.Split]int)
	for rows.Next() {
		var split string
		var n int
		if err := rows.Scan(&split, &n); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", ErrDatabase, err)
		}
		out[model.Split(split)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %w", ErrDatabase, err)
	}
	return out, nil
}
