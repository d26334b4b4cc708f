package service

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/corona10/goimagehash"
	"github.com/schollz/progressbar/v3"

	"github.com/okian/curator/internal/adapters/mq/queue"
	"github.com/okian/curator/internal/adapters/mq/worker"
	"github.com/okian/curator/internal/adapters/neardup"
	"github.com/okian/curator/internal/adapters/normalize"
	"github.com/okian/curator/internal/domain/digest"
	"github.com/okian/curator/internal/domain/model"
	"github.com/okian/curator/internal/domain/validate"
	"github.com/okian/curator/pkg/logger"
	"github.com/okian/curator/pkg/metrics"
)

// reasonUnreadable counts candidates that could not be read for hashing.
const reasonUnreadable = "unreadable"

// probeJob asks a worker to inspect candidate Index.
type probeJob struct {
	Index     int
	Candidate model.Candidate
}

// probeResult is what admission needs to know about one candidate.
type probeResult struct {
	digest  digest.Digest
	readErr error
	invalid error
	hash    *goimagehash.ImageHash
}

// normalizeJob asks a worker to write one assigned image.
type normalizeJob struct {
	Assignment model.Assignment
}

func (s *Service) queueCapacity(jobs int) int {
	if s.cfg.QueueSize > 0 {
		return s.cfg.QueueSize
	}
	return max(jobs, 1)
}

// feed enqueues jobs in order, then closes q. Workers drain what remains.
func feed[T any](ctx context.Context, q *queue.InMemoryQueue[T], jobs []T) error {
	defer func() { _ = q.Close() }()
	for _, j := range jobs {
		if err := q.Put(ctx, j); err != nil {
			return err
		}
	}
	return nil
}

// probe reads, hashes and validates every candidate in parallel. Results are
// indexed like candidates; admission consumes them in scan order.
func (s *Service) probe(ctx context.Context, r *run, candidates []model.Candidate) ([]probeResult, error) {
	results := make([]probeResult, len(candidates))
	if len(candidates) == 0 {
		return results, nil
	}

	q := queue.NewInMemoryQueue[probeJob](
		queue.WithCapacity(s.queueCapacity(len(candidates))),
		queue.WithName(metrics.StageProbe),
	)
	handler := worker.HandlerFunc[probeJob](func(_ context.Context, j probeJob) error {
		results[j.Index] = r.inspect(j.Candidate)
		return nil
	})
	pool := worker.NewPool[probeJob](s.cfg.WorkerCount, q, handler,
		worker.WithStage(metrics.StageProbe),
		worker.WithLogger(s.logger.Named(metrics.StageProbe)),
	)
	pool.Start(ctx)

	jobs := make([]probeJob, len(candidates))
	for i, c := range candidates {
		jobs[i] = probeJob{Index: i, Candidate: c}
	}
	err := feed(ctx, q, jobs)
	pool.Wait()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// inspect hashes and validates one candidate. Oversized files are hashed as a
// stream and rejected without being read into memory; their digest still
// takes part in duplicate detection.
func (r *run) inspect(c model.Candidate) probeResult {
	if err := r.validator.CheckSize(c.Path, c.Size); err != nil {
		d, readErr := digest.File(c.Path)
		if readErr != nil {
			return probeResult{readErr: readErr}
		}
		return probeResult{digest: d, invalid: err}
	}

	d, data, err := digest.Load(c.Path)
	if err != nil {
		return probeResult{readErr: err}
	}
	res := probeResult{digest: d}

	_, img, err := r.validator.Check(c.Path, data)
	if err != nil {
		res.invalid = err
		return res
	}
	if r.detector.Enabled() {
		if h, err := neardup.Hash(img); err == nil {
			res.hash = h
		}
	}
	return res
}

// admit walks candidates in scan order and decides acceptance. It runs on one
// goroutine: the first file with a given content wins, and which file is first
// must not depend on scheduling.
func (s *Service) admit(ctx context.Context, r *run, candidates []model.Candidate, probes []probeResult) []model.Accepted {
	var accepted []model.Accepted
	for i, c := range candidates {
		p := probes[i]
		r.counters.Total++
		metrics.RecordCandidate()

		if p.readErr != nil {
			r.reject(ctx, c.Path, reasonUnreadable, p.readErr)
			continue
		}

		if first, seen := r.deduper.SeenAndRecord(ctx, p.digest, c.Path); seen {
			r.counters.Duplicates++
			metrics.RecordDuplicate()
			r.logger.Debug(ctx, "duplicate content skipped",
				logger.String("path", c.Path),
				logger.String("first", first),
				logger.String("digest", p.digest.Short()),
			)
			continue
		}

		if p.invalid != nil {
			reason, ok := validate.ReasonOf(p.invalid)
			if !ok {
				reason = validate.ReasonCorrupt
			}
			r.reject(ctx, c.Path, string(reason), p.invalid)
			continue
		}

		r.counters.Valid++
		r.counters.PerCategory[c.Category]++
		metrics.RecordAccepted(c.Category.String())
		accepted = append(accepted, model.Accepted{
			Path:     c.Path,
			Filename: filepath.Base(c.Path),
			Category: c.Category,
			Digest:   p.digest,
		})

		if m, ok := r.detector.Check(p.digest, c.Path, p.hash); ok {
			r.counters.NearDuplicates++
			metrics.RecordNearDuplicate()
			r.logger.Info(ctx, "near duplicate",
				logger.String("path", c.Path),
				logger.String("resembles", m.Path),
				logger.Int("distance", m.Distance),
			)
		}
	}
	return accepted
}

func (r *run) reject(ctx context.Context, path, reason string, err error) {
	r.counters.Invalid++
	r.counters.InvalidByReason[reason]++
	metrics.RecordInvalid(reason)
	r.logger.Warn(ctx, "invalid image",
		logger.String("path", path),
		logger.String("reason", reason),
		logger.Error(err),
	)
}

// normalize writes every assignment to the processed tree and appends its
// annotation. A failed image is logged by its worker and dropped.
func (s *Service) normalize(ctx context.Context, r *run, assignments []model.Assignment) error {
	q := queue.NewInMemoryQueue[normalizeJob](
		queue.WithCapacity(s.queueCapacity(len(assignments))),
		queue.WithName(metrics.StageNormalize),
	)

	var bar *progressbar.ProgressBar
	if s.progress != nil {
		bar = newBar(s.progress, len(assignments))
	}

	handler := worker.HandlerFunc[normalizeJob](func(ctx context.Context, j normalizeJob) error {
		rec, err := r.write(ctx, s.cfg.ProcessedDir, j.Assignment)
		if bar != nil {
			_ = bar.Add(1)
		}
		if err != nil {
			metrics.RecordNormalizeError()
			return fmt.Errorf("%s: %w", j.Assignment.Image.Path, err)
		}
		rec.ProcessedAt = s.now()
		r.writer.Append(rec)
		metrics.RecordNormalized(string(rec.Split))
		return nil
	})
	pool := worker.NewPool[normalizeJob](s.cfg.WorkerCount, q, handler,
		worker.WithStage(metrics.StageNormalize),
		worker.WithLogger(s.logger.Named(metrics.StageNormalize)),
	)
	pool.Start(ctx)

	jobs := make([]normalizeJob, len(assignments))
	for i, a := range assignments {
		jobs[i] = normalizeJob{Assignment: a}
	}
	err := feed(ctx, q, jobs)
	pool.Wait()
	if bar != nil {
		_ = bar.Finish()
	}

	r.counters.NormalizeErrors = int(pool.Failed())
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if pool.Failed() > 0 {
		r.logger.Warn(ctx, "some images could not be normalized",
			logger.Int64("failed", pool.Failed()),
			logger.Int64("written", pool.Processed()),
		)
	}
	return nil
}

// write normalizes one image and builds its record, without the timestamp.
func (r *run) write(ctx context.Context, root string, a model.Assignment) (model.Record, error) {
	img := a.Image
	dst := normalize.OutputPath(root, a.Split, img.Category, img.Digest, img.Sequence)
	if _, err := r.normalizer.Normalize(ctx, img.Path, dst); err != nil {
		return model.Record{}, err
	}

	minCost, maxCost := r.estimator.Range(img.Category)
	return model.Record{
		ImageID:       fmt.Sprintf("%s_%d", a.Split, img.Sequence),
		Filename:      filepath.Base(dst),
		Split:         a.Split,
		Category:      img.Category,
		CategoryLabel: img.Category.Spec().Label,
		RepairCost:    r.estimator.ForImage(img.Category, img.Digest),
		CostMin:       minCost,
		CostMax:       maxCost,
		Sequence:      img.Sequence,
	}, nil
}
