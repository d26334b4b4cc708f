// Package service runs the curation pipeline: scan the raw tree, probe and
// admit candidates, split the accepted set, normalize it into the processed
// tree and write the annotation table and statistics.
package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/okian/curator/internal/adapters/annotation"
	"github.com/okian/curator/internal/adapters/neardup"
	"github.com/okian/curator/internal/adapters/normalize"
	"github.com/okian/curator/internal/adapters/scan"
	"github.com/okian/curator/internal/config"
	"github.com/okian/curator/internal/domain/cost"
	"github.com/okian/curator/internal/domain/dedupe"
	"github.com/okian/curator/internal/domain/model"
	"github.com/okian/curator/internal/domain/split"
	"github.com/okian/curator/internal/domain/stats"
	"github.com/okian/curator/internal/domain/validate"
	"github.com/okian/curator/pkg/logger"
	"github.com/okian/curator/pkg/metrics"
)

// Service executes curation runs for one configuration.
type Service struct {
	cfg *config.Config

	now      func() time.Time
	newRunID func() string
	progress io.Writer

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for processed timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRunID replaces the run id generator.
func WithRunID(f func() string) Option {
	return func(s *Service) {
		if f != nil {
			s.newRunID = f
		}
	}
}

// WithProgress renders a progress bar on w while normalizing. Nil disables it.
func WithProgress(w io.Writer) Option {
	return func(s *Service) {
		s.progress = w
	}
}

// New constructs a Service.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		now:      time.Now,
		newRunID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run holds the state of one Run call.
type run struct {
	id       string
	counters model.Counters
	logger   logger.Logger

	validator  *validate.Validator
	deduper    dedupe.Deduper
	detector   *neardup.Detector
	splitter   *split.Splitter
	normalizer *normalize.Normalizer
	estimator  *cost.Estimator
	writer     *annotation.Writer
}

// Run executes one pipeline run and returns its statistics. Per-file failures
// are counted in the summary; only configuration problems, a missing category
// tree or an empty accepted set abort the run.
func (s *Service) Run(ctx context.Context) (stats.Summary, error) {
	if s.logger == nil {
		s.logger = logger.Get().Named("curator")
	}
	start := time.Now()
	cfg := s.cfg

	if err := cfg.Validate(); err != nil {
		return stats.Summary{}, err
	}
	splitter, err := split.New(split.Ratios{
		Train:      cfg.TrainRatio,
		Validation: cfg.ValidationRatio,
		Test:       cfg.TestRatio,
	}, split.WithSeed(cfg.Seed))
	if err != nil {
		return stats.Summary{}, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	if err := checkWritable(cfg.ProcessedDir); err != nil {
		return stats.Summary{}, err
	}

	r := &run{
		id:       s.newRunID(),
		counters: model.NewCounters(),
		validator: validate.New(
			validate.WithMaxBytes(cfg.MaxFileSizeBytes()),
			validate.WithMinSize(cfg.MinWidth, cfg.MinHeight),
			validate.WithFormats(cfg.SupportedFormats...),
		),
		detector: neardup.New(cfg.NearDuplicateThreshold),
		splitter: splitter,
		normalizer: normalize.New(
			normalize.WithQuality(cfg.JPEGQuality),
			normalize.WithMaxEdge(cfg.MaxEdge),
			normalize.WithLogger(s.logger.Named("normalizer")),
		),
		estimator: cost.NewEstimator(cost.WithSeed(cfg.Seed)),
	}
	r.logger = s.logger
	var writerOpts []annotation.Option
	if cfg.AnnotationsDB != "" {
		writerOpts = append(writerOpts, annotation.WithSQLite(cfg.AnnotationsDB))
	}
	r.writer = annotation.NewWriter(cfg.AnnotationsFile, writerOpts...)

	s.logger.Info(ctx, "run started",
		logger.String("run_id", r.id),
		logger.String("raw_dir", cfg.RawDir),
		logger.String("processed_dir", cfg.ProcessedDir),
		logger.Int64("seed", cfg.Seed),
	)

	candidates, err := s.scan(ctx)
	if err != nil {
		return stats.Summary{}, err
	}
	r.deduper = dedupe.NewInMemoryDeduper(dedupe.WithSizeHint(len(candidates)))

	probes, err := s.probe(ctx, r, candidates)
	if err != nil {
		return stats.Summary{}, err
	}
	accepted := s.admit(ctx, r, candidates, probes)
	if len(accepted) == 0 {
		s.logger.Error(ctx, "no valid images found",
			logger.String("run_id", r.id),
			logger.Int("candidates", r.counters.Total),
			logger.Int("invalid", r.counters.Invalid),
			logger.Int("duplicates", r.counters.Duplicates),
		)
		return stats.Compute(nil, r.counters, s.now(), r.id), ErrNoImages
	}

	order(accepted)
	assignments, warnings := r.splitter.Assign(accepted)
	for _, w := range warnings {
		s.logger.Warn(ctx, "category too small to split", logger.String("warning", w.String()))
	}

	if err := prune(cfg); err != nil {
		return stats.Summary{}, err
	}
	if err := s.normalize(ctx, r, assignments); err != nil {
		return stats.Summary{}, err
	}

	if err := r.writer.Flush(ctx); err != nil {
		return stats.Summary{}, err
	}
	records := r.writer.Records()
	summary := stats.Compute(records, r.counters, s.now(), r.id)
	if err := stats.Write(cfg.StatisticsFile, summary); err != nil {
		return stats.Summary{}, err
	}

	metrics.RecordRun(float64(start.Unix()), time.Since(start).Seconds(), len(records))
	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			// Metrics are auxiliary; the dataset is already complete.
			s.logger.Warn(ctx, "metrics export failed", logger.Error(err))
		}
	}

	s.logger.Info(ctx, "run finished",
		logger.String("run_id", r.id),
		logger.Int("candidates", r.counters.Total),
		logger.Int("accepted", r.counters.Valid),
		logger.Int("invalid", r.counters.Invalid),
		logger.Int("duplicates", r.counters.Duplicates),
		logger.Int64("distinct_contents", r.deduper.Size()),
		logger.Int("normalize_errors", r.counters.NormalizeErrors),
		logger.Int("images", len(records)),
		logger.Float64("seconds", time.Since(start).Seconds()),
	)
	return summary, nil
}

func (s *Service) scan(ctx context.Context) ([]model.Candidate, error) {
	scanner := scan.New(
		scan.WithExtensions(scan.ExtensionsFor(s.cfg.SupportedFormats...)...),
		scan.WithLogger(s.logger.Named("scanner")),
	)
	ch, report, err := scanner.Scan(ctx, s.cfg.RawDir)
	if err != nil {
		return nil, err
	}
	candidates := scan.Collect(ch)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, c := range report.Missing {
		s.logger.Warn(ctx, "category directory missing", logger.String("category", c.String()))
	}
	s.logger.Info(ctx, "scan complete",
		logger.Int("candidates", len(candidates)),
		logger.Int("categories", len(report.Present)),
	)
	return candidates, nil
}

// order sorts accepted images by category then digest and numbers them. The
// numbering names output files, so it must not depend on scan or worker order.
func order(accepted []model.Accepted) {
	sort.Slice(accepted, func(i, j int) bool {
		a, b := accepted[i], accepted[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Digest.Less(b.Digest)
	})
	for i := range accepted {
		accepted[i].Sequence = i
	}
}

// checkWritable creates the output root and proves a file can be created in it.
func checkWritable(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOutputUnwritable, root, err)
	}
	f, err := os.CreateTemp(root, ".write-check-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOutputUnwritable, root, err)
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOutputUnwritable, root, err)
	}
	return nil
}

// prune removes the outputs of a previous run: the split directories, the
// annotation table and its database mirror, and the statistics. An
// interrupted run therefore never leaves old metadata next to new images.
func prune(cfg *config.Config) error {
	paths := make([]string, 0, len(model.Splits())+5)
	for _, sp := range model.Splits() {
		paths = append(paths, filepath.Join(cfg.ProcessedDir, string(sp)))
	}
	paths = append(paths, cfg.AnnotationsFile, cfg.StatisticsFile)
	if cfg.AnnotationsDB != "" {
		paths = append(paths, cfg.AnnotationsDB, cfg.AnnotationsDB+"-wal", cfg.AnnotationsDB+"-shm")
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("%w: %w", ErrOutputUnwritable, err)
		}
	}
	return nil
}

func newBar(w io.Writer, n int) *progressbar.ProgressBar {
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("normalizing"),
		progressbar.OptionClearOnFinish(),
	)
}
