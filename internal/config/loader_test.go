package config_test

import (
	"context"
	"errors"
	"os"
	"runtime"
	"testing"

	"github.com/okian/curator/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigNew(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should carry the dataset defaults", func() {
			convey.So(cfg.TrainRatio, convey.ShouldEqual, 0.70)
			convey.So(cfg.ValidationRatio, convey.ShouldEqual, 0.15)
			convey.So(cfg.TestRatio, convey.ShouldEqual, 0.15)
			convey.So(cfg.MinWidth, convey.ShouldEqual, 100)
			convey.So(cfg.MinHeight, convey.ShouldEqual, 100)
			convey.So(cfg.MaxFileSizeBytes(), convey.ShouldEqual, 10*1024*1024)
			convey.So(cfg.SupportedFormats, convey.ShouldResemble, []string{"jpeg", "png", "bmp", "tiff"})
			convey.So(cfg.Seed, convey.ShouldEqual, 42)
			convey.So(cfg.JPEGQuality, convey.ShouldEqual, 95)
			convey.So(cfg.MaxEdge, convey.ShouldEqual, 1024)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfigValidate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		convey.Convey("When the ratios do not sum to one", func() {
			cfg.TestRatio = 0.30

			convey.Convey("Then validation should fail with ErrInvalidConfig", func() {
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "sum to 1.0")
			})
		})

		convey.Convey("When a ratio is negative", func() {
			cfg.TrainRatio = 1.2
			cfg.ValidationRatio = -0.2
			cfg.TestRatio = 0

			convey.Convey("Then validation should fail", func() {
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "validation_ratio must be within [0,1]")
			})
		})

		convey.Convey("When the quality is out of range", func() {
			cfg.JPEGQuality = 0

			convey.Convey("Then validation should fail", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When an unknown format is whitelisted", func() {
			cfg.SupportedFormats = []string{"jpeg", "heic"}

			convey.Convey("Then validation should fail", func() {
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, `"heic"`)
			})
		})

		convey.Convey("When the output root is empty", func() {
			cfg.ProcessedDir = " "

			convey.Convey("Then validation should fail", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.RawDir, convey.ShouldEqual, "data/raw")
				convey.So(cfg.ProcessedDir, convey.ShouldEqual, "data/processed")
				convey.So(cfg.Seed, convey.ShouldEqual, 42)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("CURATOR_RAW_DIR", "/srv/raw")
			_ = os.Setenv("CURATOR_SEED", "7")
			_ = os.Setenv("CURATOR_JPEG_QUALITY", "80")
			_ = os.Setenv("CURATOR_PROGRESS", "false")

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.RawDir, convey.ShouldEqual, "/srv/raw")
				convey.So(cfg.Seed, convey.ShouldEqual, 7)
				convey.So(cfg.JPEGQuality, convey.ShouldEqual, 80)
				convey.So(cfg.Progress, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			tmpFile := createTempConfigFile(`
raw_dir: /data/raw
train_ratio: 0.8
validation_ratio: 0.1
test_ratio: 0.1
supported_formats: [jpeg, png]
max_edge: 512
`)
			defer func() { _ = os.Remove(tmpFile) }()

			cfg, err := config.Load(ctx, tmpFile)

			convey.Convey("Then it should load from the YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.RawDir, convey.ShouldEqual, "/data/raw")
				convey.So(cfg.TrainRatio, convey.ShouldEqual, 0.8)
				convey.So(cfg.SupportedFormats, convey.ShouldResemble, []string{"jpeg", "png"})
				convey.So(cfg.MaxEdge, convey.ShouldEqual, 512)
				convey.So(cfg.MinWidth, convey.ShouldEqual, 100) // from defaults
			})
		})

		convey.Convey("When both a file and environment variables are present", func() {
			tmpFile := createTempConfigFile(`
raw_dir: /data/raw
seed: 99
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CURATOR_CONFIG", tmpFile)
			_ = os.Setenv("CURATOR_SEED", "5")

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then environment variables should win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.RawDir, convey.ShouldEqual, "/data/raw")
				convey.So(cfg.Seed, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When the YAML file is invalid", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			cfg, err := config.Load(ctx, tmpFile)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the file does not exist", func() {
			cfg, err := config.Load(ctx, "/non/existent/file.yaml")

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the loaded ratios are invalid", func() {
			_ = os.Setenv("CURATOR_TRAIN_RATIO", "0.9")

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a numeric variable is not a number", func() {
			_ = os.Setenv("CURATOR_WORKER_COUNT", "not_a_number")

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, envVar := range []string{
		"CURATOR_CONFIG",
		"CURATOR_RAW_DIR",
		"CURATOR_SEED",
		"CURATOR_JPEG_QUALITY",
		"CURATOR_PROGRESS",
		"CURATOR_TRAIN_RATIO",
		"CURATOR_WORKER_COUNT",
	} {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "curator-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
