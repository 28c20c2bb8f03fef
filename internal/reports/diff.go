package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/raysh454/a11yscan/internal/model"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// ReportDiff describes how the issue set and score moved between two reports.
// Issues are identified by "<code> <selector>".
type ReportDiff struct {
	BaseKey    string   `json:"baseKey,omitempty"`
	HeadKey    string   `json:"headKey,omitempty"`
	Added      []string `json:"added"`
	Removed    []string `json:"removed"`
	ScoreDelta float64  `json:"scoreDelta"`
}

// issueLines serializes the issue set one issue per line, sorted, so a line
// diff yields the added and removed issues.
func issueLines(r *model.ReportResult) string {
	issues := r.AllIssues()
	lines := make([]string, 0, len(issues))
	for _, is := range issues {
		lines = append(lines, is.Code+" "+is.Selector)
	}
	sort.Strings(lines)
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Diff compares two reports. A nil side counts as an empty report with score 0.
func Diff(base, head *model.ReportResult) ReportDiff {
	var baseScore, headScore float64
	if base != nil {
		baseScore = base.Score
	}
	if head != nil {
		headScore = head.Score
	}
	d := ReportDiff{Added: []string{}, Removed: []string{}, ScoreDelta: headScore - baseScore}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(issueLines(base), issueLines(head))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	for _, df := range diffs {
		var target *[]string
		switch df.Type {
		case diffmatchpatch.DiffInsert:
			target = &d.Added
		case diffmatchpatch.DiffDelete:
			target = &d.Removed
		default:
			continue
		}
		for _, line := range strings.Split(strings.TrimSuffix(df.Text, "\n"), "\n") {
			if strings.TrimSpace(line) != "" {
				*target = append(*target, line)
			}
		}
	}
	return d
}

// Compare diffs two saved reports by key.
func (s *Store) Compare(ctx context.Context, baseKey, headKey string) (*ReportDiff, error) {
	base, err := s.Get(ctx, baseKey)
	if err != nil {
		return nil, err
	}
	head, err := s.Get(ctx, headKey)
	if err != nil {
		return nil, err
	}

	var br, hr model.ReportResult
	if err := json.Unmarshal(base.Report, &br); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidReport, baseKey, err)
	}
	if err := json.Unmarshal(head.Report, &hr); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidReport, headKey, err)
	}

	d := Diff(&br, &hr)
	d.BaseKey, d.HeadKey = baseKey, headKey
	return &d, nil
}
