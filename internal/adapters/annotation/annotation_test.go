package annotation_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/curator/internal/adapters/annotation"
	"github.com/okian/curator/internal/domain/category"
	"github.com/okian/curator/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func record(seq int, split model.Split, c category.Category, cost float64) model.Record {
	spec := c.Spec()
	return model.Record{
		ImageID:       string(split) + "_" + string(rune('0'+seq)),
		Filename:      c.String() + "_abcdef01_" + string(rune('0'+seq)) + ".jpg",
		Split:         split,
		Category:      c,
		CategoryLabel: spec.Label,
		RepairCost:    cost,
		CostMin:       spec.CostMin,
		CostMax:       spec.CostMax,
		ProcessedAt:   time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local),
		Sequence:      seq,
	}
}

func TestWriter(t *testing.T) {
	Convey("Given a writer fed out of order", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		path := filepath.Join(dir, "annotations", "annotations.csv")
		w := annotation.NewWriter(path)

		w.Append(record(2, model.Test, category.Severe, 12000.5))
		w.Append(record(0, model.Train, category.Minor, 1250))
		w.Append(record(1, model.Validation, category.Moderate, 4999.99))

		Convey("When nothing has been flushed", func() {
			Convey("Then no file should exist", func() {
				_, err := os.Stat(path)
				So(os.IsNotExist(err), ShouldBeTrue)
				So(w.Len(), ShouldEqual, 3)
			})
		})

		Convey("When flushing", func() {
			So(w.Flush(ctx), ShouldBeNil)
			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")

			Convey("Then the header and rows should be in sequence order", func() {
				So(len(lines), ShouldEqual, 4)
				So(lines[0], ShouldEqual, strings.Join(annotation.Columns, ","))
				So(lines[1], ShouldStartWith, "train_0,minor_abcdef01_0.jpg,train,minor,")
				So(lines[1], ShouldContainSubstring, ",1250,500,2000,2026-03-04 05:06:07")
				So(lines[2], ShouldContainSubstring, ",4999.99,")
				So(lines[3], ShouldStartWith, "test_2,")
			})

			Convey("Then reading it back should restore the records", func() {
				got, err := annotation.ReadCSV(path)
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 3)
				So(got[0].Category, ShouldEqual, category.Minor)
				So(got[2].RepairCost, ShouldEqual, 12000.5)
				So(got[2].Split, ShouldEqual, model.Test)
				So(got[1].ProcessedAt.Equal(record(1, model.Validation, category.Moderate, 0).ProcessedAt), ShouldBeTrue)
			})

			Convey("Then a second flush should replace the table", func() {
				w.Append(record(3, model.Train, category.Minor, 600))
				So(w.Flush(ctx), ShouldBeNil)
				got, err := annotation.ReadCSV(path)
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 4)
				entries, _ := os.ReadDir(filepath.Dir(path))
				So(len(entries), ShouldEqual, 1)
			})
		})

		Convey("When the directory cannot be created", func() {
			blocker := filepath.Join(dir, "blocker")
			So(os.WriteFile(blocker, nil, 0o644), ShouldBeNil)
			bad := annotation.NewWriter(filepath.Join(blocker, "a.csv"))

			Convey("Then ErrWrite should be returned", func() {
				So(errors.Is(bad.Flush(ctx), annotation.ErrWrite), ShouldBeTrue)
			})
		})
	})
}

func TestEncode(t *testing.T) {
	Convey("Given no records", t, func() {
		var buf bytes.Buffer

		Convey("Then only the header should be written", func() {
			So(annotation.Encode(&buf, nil), ShouldBeNil)
			So(buf.String(), ShouldEqual, strings.Join(annotation.Columns, ",")+"\n")
		})
	})

	Convey("Given a malformed table", t, func() {
		path := filepath.Join(t.TempDir(), "bad.csv")
		So(os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644), ShouldBeNil)

		Convey("Then ReadCSV should reject it", func() {
			_, err := annotation.ReadCSV(path)
			So(errors.Is(err, annotation.ErrParse), ShouldBeTrue)
		})
	})
}

func TestSQLiteMirror(t *testing.T) {
	Convey("Given a writer with a SQLite mirror", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		db := filepath.Join(dir, "db", "annotations.db")
		w := annotation.NewWriter(filepath.Join(dir, "annotations.csv"), annotation.WithSQLite(db))
		w.Append(record(0, model.Train, category.Minor, 1000))
		w.Append(record(1, model.Train, category.Moderate, 3000))
		w.Append(record(2, model.Test, category.Severe, 9000))

		Convey("When flushing twice", func() {
			So(w.Flush(ctx), ShouldBeNil)
			So(w.Flush(ctx), ShouldBeNil)

			Convey("Then the database should hold one copy of each row", func() {
				counts, err := annotation.CountBySplit(ctx, db)
				So(err, ShouldBeNil)
				So(counts[model.Train], ShouldEqual, 2)
				So(counts[model.Test], ShouldEqual, 1)
				So(counts[model.Validation], ShouldEqual, 0)
			})
		})

		Convey("When the database cannot be created", func() {
			blocker := filepath.Join(dir, "blocker")
			So(os.WriteFile(blocker, nil, 0o644), ShouldBeNil)
			csvPath := filepath.Join(dir, "orphan.csv")
			bad := annotation.NewWriter(csvPath, annotation.WithSQLite(filepath.Join(blocker, "annotations.db")))
			bad.Append(record(0, model.Train, category.Minor, 1000))

			err := bad.Flush(ctx)

			Convey("Then no CSV should be left without its mirror", func() {
				So(errors.Is(err, annotation.ErrDatabase), ShouldBeTrue)
				_, statErr := os.Stat(csvPath)
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})
		})
	})
}
