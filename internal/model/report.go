package model

import "time"

// IssueType buckets an issue the way rule engines report them.
type IssueType string

const (
	IssueError   IssueType = "error"
	IssueWarning IssueType = "warning"
	IssueNotice  IssueType = "notice"
)

// Issue is a single accessibility finding.
type Issue struct {
	// Code is the rule identifier, e.g. "img-alt".
	Code string `json:"code"`

	Message string    `json:"message"`
	Type    IssueType `json:"type"`

	// Selector locates the offending element (CSS selector).
	Selector string `json:"selector,omitempty"`

	// Context is a trimmed outer-HTML excerpt of the element.
	Context string `json:"context,omitempty"`

	// Impact is one of "minor", "moderate", "serious", "critical".
	Impact string `json:"impact,omitempty"`

	// Functionality groups the issue by what it breaks for users (e.g. "Navigation").
	Functionality string `json:"functionality,omitempty"`
}

// IssueBuckets holds the issues produced by one rule engine.
type IssueBuckets struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
	Notices  []Issue `json:"notices"`
}

// Add files an issue into the bucket that matches its type.
func (b *IssueBuckets) Add(is Issue) {
	switch is.Type {
	case IssueError:
		b.Errors = append(b.Errors, is)
	case IssueWarning:
		b.Warnings = append(b.Warnings, is)
	default:
		b.Notices = append(b.Notices, is)
	}
}

// Len returns the total number of issues across buckets.
func (b IssueBuckets) Len() int {
	return len(b.Errors) + len(b.Warnings) + len(b.Notices)
}

// Technology is one detected entry of a site's tech stack.
type Technology struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Version  string `json:"version,omitempty"`
}

// FunctionalityGroup collects issues affecting one area of functionality.
type FunctionalityGroup struct {
	Name   string  `json:"name"`
	Issues []Issue `json:"issues"`
}

// ReportResult is the full payload of a finished accessibility scan. The same
// shape is stored in the result cache and returned on a completed job.
type ReportResult struct {
	URL string `json:"url"`

	// Score is normalized to [0, 100]; higher is better.
	Score float64 `json:"score"`

	// IssuesByEngine is keyed by rule-engine source (e.g. "htmlcs", "axe").
	IssuesByEngine map[string]IssueBuckets `json:"issues_by_engine"`

	TechStack       []Technology         `json:"tech_stack"`
	ByFunctionality []FunctionalityGroup `json:"by_functionality"`

	// Screenshots holds references (object keys / URLs), never image bytes.
	Screenshots []string `json:"screenshots,omitempty"`

	ScannedAt time.Time `json:"scanned_at"`
}

// IssueCount returns the number of issues across all engines.
func (r *ReportResult) IssueCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, b := range r.IssuesByEngine {
		n += b.Len()
	}
	return n
}

// AllIssues flattens every engine bucket into one slice.
func (r *ReportResult) AllIssues() []Issue {
	if r == nil {
		return nil
	}
	var out []Issue
	for _, b := range r.IssuesByEngine {
		out = append(out, b.Errors...)
		out = append(out, b.Warnings...)
		out = append(out, b.Notices...)
	}
	return out
}
