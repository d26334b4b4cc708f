// Package config defines curator configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and CURATOR_* environment variables.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"
)

// ratioTolerance bounds the float error accepted when checking that ratios sum to 1.
const ratioTolerance = 1e-6

// knownFormats is every raster format the validator can be told to accept.
var knownFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"bmp":  true,
	"tiff": true,
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// RawDir is the input root holding one subdirectory per category.
	RawDir string `koanf:"raw_dir"`

	// ProcessedDir is the output root receiving {split}/{category}/*.jpg.
	ProcessedDir string `koanf:"processed_dir"`

	// AnnotationsFile is the flat annotation table (CSV).
	AnnotationsFile string `koanf:"annotations_file"`

	// AnnotationsDB optionally mirrors the annotation table into SQLite. Empty disables it.
	AnnotationsDB string `koanf:"annotations_db"`

	// StatisticsFile receives the JSON statistics summary.
	StatisticsFile string `koanf:"statistics_file"`

	// MetricsFile optionally receives a Prometheus textfile dump at the end of a run.
	MetricsFile string `koanf:"metrics_file"`

	// Split ratios; must sum to 1.0.
	TrainRatio      float64 `koanf:"train_ratio"`
	ValidationRatio float64 `koanf:"validation_ratio"`
	TestRatio       float64 `koanf:"test_ratio"`

	// MinWidth and MinHeight reject images smaller than this in either dimension.
	MinWidth  int `koanf:"min_width"`
	MinHeight int `koanf:"min_height"`

	// MaxFileSizeMB rejects candidate files larger than this.
	MaxFileSizeMB float64 `koanf:"max_file_size_mb"`

	// SupportedFormats is the decoded-format whitelist (jpeg, png, bmp, tiff).
	SupportedFormats []string `koanf:"supported_formats"`

	// Seed drives the stratified split and the synthetic repair costs.
	Seed int64 `koanf:"seed"`

	// JPEGQuality is the re-encode quality, 1..100.
	JPEGQuality int `koanf:"jpeg_quality"`

	// MaxEdge bounds the long side of normalized images; larger images are downsampled.
	MaxEdge int `koanf:"max_edge"`

	// WorkerCount sets the number of probe/normalize workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the job queue. Zero sizes it to the job count.
	QueueSize int `koanf:"queue_size"`

	// NearDuplicateThreshold is the dHash Hamming distance under which two accepted
	// images are reported as near duplicates. Zero disables the report.
	NearDuplicateThreshold int `koanf:"near_duplicate_threshold"`

	// Progress renders a progress bar on stderr while normalizing.
	Progress bool `koanf:"progress"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		RawDir:           "data/raw",
		ProcessedDir:     "data/processed",
		AnnotationsFile:  "data/annotations.csv",
		StatisticsFile:   "data/dataset_statistics.json",
		TrainRatio:       0.70,
		ValidationRatio:  0.15,
		TestRatio:        0.15,
		MinWidth:         100,
		MinHeight:        100,
		MaxFileSizeMB:    10,
		SupportedFormats: []string{"jpeg", "png", "bmp", "tiff"},
		Seed:             42,
		JPEGQuality:      95,
		MaxEdge:          1024,
		WorkerCount:      runtime.NumCPU(),
		Progress:         true,
	}
}

// MaxFileSizeBytes returns the configured file size bound in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB * 1024 * 1024)
}

// Validate reports configuration-level problems. Any error here is fatal to a run.
func (c *Config) Validate() error {
	var problems []string

	for name, r := range map[string]float64{
		"train_ratio":      c.TrainRatio,
		"validation_ratio": c.ValidationRatio,
		"test_ratio":       c.TestRatio,
	} {
		if r < 0 || r > 1 || math.IsNaN(r) {
			problems = append(problems, fmt.Sprintf("%s must be within [0,1], got %v", name, r))
		}
	}
	if sum := c.TrainRatio + c.ValidationRatio + c.TestRatio; math.Abs(sum-1) > ratioTolerance {
		problems = append(problems, fmt.Sprintf("split ratios must sum to 1.0, got %v", sum))
	}
	if c.TrainRatio <= 0 {
		problems = append(problems, "train_ratio must be positive")
	}
	if c.MinWidth <= 0 || c.MinHeight <= 0 {
		problems = append(problems, "min_width and min_height must be positive")
	}
	if c.MaxFileSizeMB <= 0 {
		problems = append(problems, "max_file_size_mb must be positive")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		problems = append(problems, fmt.Sprintf("jpeg_quality must be within [1,100], got %d", c.JPEGQuality))
	}
	if c.MaxEdge <= 0 {
		problems = append(problems, "max_edge must be positive")
	}
	if c.NearDuplicateThreshold < 0 {
		problems = append(problems, "near_duplicate_threshold must not be negative")
	}
	if len(c.SupportedFormats) == 0 {
		problems = append(problems, "supported_formats must not be empty")
	}
	for _, f := range c.SupportedFormats {
		if !knownFormats[strings.ToLower(f)] {
			problems = append(problems, fmt.Sprintf("unsupported format %q", f))
		}
	}
	for name, p := range map[string]string{
		"raw_dir":          c.RawDir,
		"processed_dir":    c.ProcessedDir,
		"annotations_file": c.AnnotationsFile,
		"statistics_file":  c.StatisticsFile,
	} {
		if strings.TrimSpace(p) == "" {
			problems = append(problems, name+" must not be empty")
		}
	}

	if len(problems) > 0 {
		// Map iteration order is random; keep messages stable.
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
