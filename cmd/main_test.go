package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/curator/internal/domain/category"
	"github.com/smartystreets/goconvey/convey"
)

func execute(args ...string) (string, error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func gradient(shift int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 128, 128))
	for y := 0; y < 128; y++ {
		for x := 0; x < 128; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x*2 + shift), G: uint8(y * 2), B: uint8(shift * 40), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func TestCommands(t *testing.T) {
	convey.Convey("Given the curator command", t, func() {
		convey.Convey("When printing the version", func() {
			out, err := execute("version")

			convey.Convey("Then it should name the binary", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldEqual, "curator dev\n")
			})
		})

		convey.Convey("When listing categories", func() {
			out, err := execute("categories")

			convey.Convey("Then every category and range should be shown", func() {
				convey.So(err, convey.ShouldBeNil)
				for _, c := range category.All() {
					convey.So(out, convey.ShouldContainSubstring, c.String())
					convey.So(out, convey.ShouldContainSubstring, c.Spec().Label)
				}
				convey.So(out, convey.ShouldContainSubstring, "25000")
			})
		})

		convey.Convey("When quoting a confident prediction", func() {
			out, err := execute("quote", "moderate", "95")

			convey.Convey("Then the range midpoint should be printed as JSON", func() {
				convey.So(err, convey.ShouldBeNil)
				var q map[string]any
				convey.So(json.Unmarshal([]byte(out), &q), convey.ShouldBeNil)
				convey.So(q["estimated_cost"], convey.ShouldEqual, 5000.0)
				convey.So(q["min_cost"], convey.ShouldEqual, 2000.0)
				convey.So(q["max_cost"], convey.ShouldEqual, 8000.0)
				convey.So(q["currency"], convey.ShouldEqual, "USD")
				convey.So(q["confidence"], convey.ShouldEqual, 95.0)
			})
		})

		convey.Convey("When quoting an uncertain prediction", func() {
			first, err := execute("quote", "severe", "30", "--seed", "7")
			again, againErr := execute("quote", "severe", "30", "--seed", "7")

			convey.Convey("Then the estimate should stay in range and repeat for a seed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(againErr, convey.ShouldBeNil)
				convey.So(again, convey.ShouldEqual, first)
				var q struct {
					Estimated float64 `json:"estimated_cost"`
				}
				convey.So(json.Unmarshal([]byte(first), &q), convey.ShouldBeNil)
				convey.So(q.Estimated, convey.ShouldBeBetweenOrEqual, 8000.0, 25000.0)
			})
		})

		convey.Convey("When quoting with bad arguments", func() {
			_, catErr := execute("quote", "wrecked", "50")
			_, confErr := execute("quote", "minor", "150")

			convey.Convey("Then the command should fail", func() {
				convey.So(catErr, convey.ShouldNotBeNil)
				convey.So(confErr, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When every raw file is rejected", func() {
			dir := t.TempDir()
			junk := filepath.Join(dir, "raw", "minor", "junk.jpg")
			convey.So(os.MkdirAll(filepath.Dir(junk), 0o755), convey.ShouldBeNil)
			convey.So(os.WriteFile(junk, []byte("not an image"), 0o644), convey.ShouldBeNil)
			t.Setenv("CURATOR_RAW_DIR", filepath.Join(dir, "raw"))
			t.Setenv("CURATOR_PROCESSED_DIR", filepath.Join(dir, "out"))
			t.Setenv("CURATOR_ANNOTATIONS_FILE", filepath.Join(dir, "out", "annotations.csv"))
			t.Setenv("CURATOR_STATISTICS_FILE", filepath.Join(dir, "out", "stats.json"))

			out, err := execute("run", "--no-progress", "--log-level", "error")

			convey.Convey("Then it should fail but still print the counters", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(out, convey.ShouldContainSubstring, "Total Images Found:   1")
				convey.So(out, convey.ShouldContainSubstring, "Invalid Images:       1")
			})
		})

		convey.Convey("When running against a raw tree", func() {
			dir := t.TempDir()
			raw := filepath.Join(dir, "raw")
			for i, c := range category.All() {
				for j := 0; j < 3; j++ {
					p := filepath.Join(raw, c.String(), string(rune('a'+j))+".png")
					convey.So(os.MkdirAll(filepath.Dir(p), 0o755), convey.ShouldBeNil)
					convey.So(os.WriteFile(p, gradient(i*3+j), 0o644), convey.ShouldBeNil)
				}
			}
			statsFile := filepath.Join(dir, "out", "stats.json")
			t.Setenv("CURATOR_RAW_DIR", raw)
			t.Setenv("CURATOR_PROCESSED_DIR", filepath.Join(dir, "out"))
			t.Setenv("CURATOR_ANNOTATIONS_FILE", filepath.Join(dir, "out", "annotations.csv"))
			t.Setenv("CURATOR_STATISTICS_FILE", statsFile)

			out, err := execute("run", "--no-progress", "--log-level", "error")

			convey.Convey("Then the summary should be printed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "Dataset Preparation Summary")
				convey.So(out, convey.ShouldContainSubstring, "Valid Images:         9")
			})

			convey.Convey("Then the stats command should print the saved summary", func() {
				saved, err := execute("stats", statsFile)
				convey.So(err, convey.ShouldBeNil)
				convey.So(saved, convey.ShouldContainSubstring, "Valid Images:         9")

				fromConfig, err := execute("stats")
				convey.So(err, convey.ShouldBeNil)
				convey.So(fromConfig, convey.ShouldEqual, saved)
			})
		})

		convey.Convey("When generating, running and verifying", func() {
			dir := t.TempDir()
			raw := filepath.Join(dir, "raw")
			t.Setenv("CURATOR_RAW_DIR", raw)
			t.Setenv("CURATOR_PROCESSED_DIR", filepath.Join(dir, "out"))
			t.Setenv("CURATOR_ANNOTATIONS_FILE", filepath.Join(dir, "out", "annotations.csv"))
			t.Setenv("CURATOR_STATISTICS_FILE", filepath.Join(dir, "out", "stats.json"))

			gen, genErr := execute("generate", raw, "--per-category", "4")
			_, runErr := execute("run", "--no-progress", "--log-level", "error")
			ver, verErr := execute("verify", "--log-level", "error")

			convey.Convey("Then every step should succeed", func() {
				convey.So(genErr, convey.ShouldBeNil)
				convey.So(gen, convey.ShouldContainSubstring, "wrote 16 files")
				convey.So(runErr, convey.ShouldBeNil)
				convey.So(verErr, convey.ShouldBeNil)
				convey.So(ver, convey.ShouldEqual, "ok: 12 records, 12 images\n")
			})
		})

		convey.Convey("When the raw tree is empty", func() {
			dir := t.TempDir()
			t.Setenv("CURATOR_RAW_DIR", filepath.Join(dir, "missing"))
			t.Setenv("CURATOR_PROCESSED_DIR", filepath.Join(dir, "out"))

			_, err := execute("run", "--no-progress", "--log-level", "error")

			convey.Convey("Then the command should fail", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_, err := execute("run", "--config", filepath.Join(t.TempDir(), "nope.yaml"))

			convey.Convey("Then loading should fail", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}
