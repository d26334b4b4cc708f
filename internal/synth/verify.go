package synth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/okian/curator/internal/adapters/annotation"
	"github.com/okian/curator/internal/domain/category"
	"github.com/okian/curator/internal/domain/model"
	"github.com/okian/curator/internal/domain/stats"
	"github.com/okian/curator/pkg/logger"
)

// Report is the outcome of Verify.
type Report struct {
	Records  int
	Files    int
	Problems []string
}

// Verify checks that the processed tree, the annotation table and the
// statistics file describe the same dataset: every record has its image,
// every image has its record, costs sit inside their category range and the
// statistics count what the table holds.
func Verify(ctx context.Context, processedDir, annotationsFile, statisticsFile string) (Report, error) {
	var rep Report
	problem := func(format string, args ...any) {
		rep.Problems = append(rep.Problems, fmt.Sprintf(format, args...))
	}

	records, err := annotation.ReadCSV(annotationsFile)
	if err != nil {
		return rep, err
	}
	rep.Records = len(records)

	expected := make(map[string]bool, len(records))
	ids := make(map[string]bool, len(records))
	perSplit := make(map[model.Split]int)
	perCategory := make(map[category.Category]int)
	for _, r := range records {
		if ids[r.ImageID] {
			problem("duplicate image id %s", r.ImageID)
		}
		ids[r.ImageID] = true
		perSplit[r.Split]++
		perCategory[r.Category]++

		rel := filepath.Join(string(r.Split), r.Category.String(), r.Filename)
		expected[rel] = true
		if _, err := os.Stat(filepath.Join(processedDir, rel)); err != nil {
			problem("%s: image missing", rel)
		}
		if r.RepairCost < float64(r.CostMin) || r.RepairCost > float64(r.CostMax) {
			problem("%s: cost %v outside [%d, %d]", r.ImageID, r.RepairCost, r.CostMin, r.CostMax)
		}
		if !strings.HasPrefix(r.Filename, r.Category.String()+"_") {
			problem("%s: file name %s does not match category %s", r.ImageID, r.Filename, r.Category)
		}
	}

	for _, sp := range model.Splits() {
		err := filepath.WalkDir(filepath.Join(processedDir, string(sp)), func(p string, d os.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return filepath.SkipDir
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, _ := filepath.Rel(processedDir, p)
			rep.Files++
			if !expected[rel] {
				problem("%s: image has no annotation", rel)
			}
			return nil
		})
		if err != nil {
			return rep, fmt.Errorf("walk %s: %w", sp, err)
		}
	}

	s, err := stats.Read(statisticsFile)
	if err != nil {
		return rep, err
	}
	d := s.DatasetInfo
	if d.TotalImages != len(records) {
		problem("statistics count %d images, table holds %d", d.TotalImages, len(records))
	}
	if d.TrainImages != perSplit[model.Train] || d.ValImages != perSplit[model.Validation] || d.TestImages != perSplit[model.Test] {
		problem("statistics split counts %d/%d/%d, table holds %d/%d/%d",
			d.TrainImages, d.ValImages, d.TestImages,
			perSplit[model.Train], perSplit[model.Validation], perSplit[model.Test])
	}
	for _, c := range category.All() {
		if n := s.SeverityDistribution[c.String()]; n != perCategory[c] {
			problem("statistics count %d %s images, table holds %d", n, c, perCategory[c])
		}
	}

	if len(rep.Problems) > 0 {
		logger.Get().Warn(ctx, "processed output is inconsistent", logger.Int("problems", len(rep.Problems)))
		return rep, fmt.Errorf("%w: %d problems", ErrInconsistent, len(rep.Problems))
	}
	logger.Get().Info(ctx, "processed output verified",
		logger.Int("records", rep.Records),
		logger.Int("files", rep.Files),
	)
	return rep, nil
}
