// Package stats summarizes a curation run from its annotation records and raw counters.
package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	descriptive "github.com/montanaflynn/stats"

	"github.com/okian/curator/internal/domain/category"
	"github.com/okian/curator/internal/domain/model"
)

// DateLayout formats processed_date.
const DateLayout = "2006-01-02 15:04:05"

// Summary is the statistics document of one run.
type Summary struct {
	DatasetInfo          DatasetInfo    `json:"dataset_info"`
	SeverityDistribution map[string]int `json:"severity_distribution"`
	RepairCostStats      CostStats      `json:"repair_cost_stats"`
	ProcessingInfo       ProcessingInfo `json:"processing_info"`
}

// DatasetInfo counts annotation records per split.
type DatasetInfo struct {
	TotalImages int `json:"total_images"`
	TrainImages int `json:"train_images"`
	ValImages   int `json:"val_images"`
	TestImages  int `json:"test_images"`
}

// CostStats describes the repair cost distribution. Std is the sample
// standard deviation and is zero with fewer than two records.
type CostStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// ProcessingInfo carries the raw pipeline counters.
type ProcessingInfo struct {
	TotalProcessed     int            `json:"total_processed"`
	ValidImages        int            `json:"valid_images"`
	InvalidImages      int            `json:"invalid_images"`
	DuplicatesRemoved  int            `json:"duplicates_removed"`
	NearDuplicates     int            `json:"near_duplicates"`
	NormalizeErrors    int            `json:"normalize_errors"`
	InvalidByReason    map[string]int `json:"invalid_by_reason"`
	AcceptedByCategory map[string]int `json:"accepted_by_category"`
	ProcessedDate      string         `json:"processed_date"`
	RunID              string         `json:"run_id"`
}

// Compute builds the summary. It is a pure function of its inputs.
func Compute(records []model.Record, c model.Counters, at time.Time, runID string) Summary {
	s := Summary{
		SeverityDistribution: make(map[string]int, len(category.All())),
		ProcessingInfo: ProcessingInfo{
			TotalProcessed:     c.Total,
			ValidImages:        c.Valid,
			InvalidImages:      c.Invalid,
			DuplicatesRemoved:  c.Duplicates,
			NearDuplicates:     c.NearDuplicates,
			NormalizeErrors:    c.NormalizeErrors,
			InvalidByReason:    make(map[string]int, len(c.InvalidByReason)),
			AcceptedByCategory: make(map[string]int, len(category.All())),
			ProcessedDate:      at.Format(DateLayout),
			RunID:              runID,
		},
	}
	for reason, n := range c.InvalidByReason {
		s.ProcessingInfo.InvalidByReason[reason] = n
	}
	for _, cat := range category.All() {
		s.SeverityDistribution[cat.String()] = 0
		s.ProcessingInfo.AcceptedByCategory[cat.String()] = c.PerCategory[cat]
	}

	costs := make([]float64, 0, len(records))
	for _, r := range records {
		s.DatasetInfo.TotalImages++
		switch r.Split {
		case model.Train:
			s.DatasetInfo.TrainImages++
		case model.Validation:
			s.DatasetInfo.ValImages++
		case model.Test:
			s.DatasetInfo.TestImages++
		}
		s.SeverityDistribution[r.Category.String()]++
		costs = append(costs, r.RepairCost)
	}
	s.RepairCostStats = describe(costs)

	return s
}

// describe summarizes costs. A library error only signals empty input, which
// is handled first, so the remaining errors are dropped.
func describe(xs []float64) CostStats {
	if len(xs) == 0 {
		return CostStats{}
	}
	data := descriptive.Float64Data(xs)
	mean, _ := data.Mean()
	median, _ := data.Median()
	lo, _ := data.Min()
	hi, _ := data.Max()

	var std float64
	if len(xs) > 1 {
		std, _ = data.StandardDeviationSample()
	}
	return CostStats{Mean: mean, Median: median, Std: std, Min: lo, Max: hi}
}

// Write stores the summary as indented JSON, replacing any previous file.
func Write(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal statistics: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create statistics dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil { //nolint:gosec // dataset metadata is not secret
		return fmt.Errorf("write statistics: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace statistics: %w", err)
	}
	return nil
}

// Read loads a summary written by Write.
func Read(path string) (Summary, error) {
	var s Summary
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return s, fmt.Errorf("read statistics: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decode statistics: %w", err)
	}
	return s, nil
}

// Print renders a human-readable report of the summary.
func Print(w io.Writer, s Summary) error {
	rule := strings.Repeat("=", 60)
	p := s.ProcessingInfo
	lines := []string{
		rule,
		"  Dataset Preparation Summary",
		rule,
		fmt.Sprintf("  Total Images Found:   %d", p.TotalProcessed),
		fmt.Sprintf("  Valid Images:         %d", p.ValidImages),
		fmt.Sprintf("  Invalid Images:       %d", p.InvalidImages),
		fmt.Sprintf("  Duplicates Removed:   %d", p.DuplicatesRemoved),
	}
	if p.NearDuplicates > 0 {
		lines = append(lines, fmt.Sprintf("  Near Duplicates:      %d", p.NearDuplicates))
	}
	if p.NormalizeErrors > 0 {
		lines = append(lines, fmt.Sprintf("  Normalize Errors:     %d", p.NormalizeErrors))
	}
	lines = append(lines, "", "  Severity Distribution:")
	for _, cat := range category.All() {
		lines = append(lines, fmt.Sprintf("    %-9s %4d images", cat.Spec().Label+":", s.SeverityDistribution[cat.String()]))
	}
	d := s.DatasetInfo
	lines = append(lines,
		"",
		fmt.Sprintf("  Splits: train %d, validation %d, test %d", d.TrainImages, d.ValImages, d.TestImages),
		fmt.Sprintf("  Repair cost (USD): mean %.2f, median %.2f, std %.2f, min %.2f, max %.2f",
			s.RepairCostStats.Mean, s.RepairCostStats.Median, s.RepairCostStats.Std,
			s.RepairCostStats.Min, s.RepairCostStats.Max),
		fmt.Sprintf("  Run: %s at %s", p.RunID, p.ProcessedDate),
		rule,
	)
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}
