// Package scanner produces accessibility reports for a single page: it fetches
// the page through a webclient, runs a goquery rule set over the DOM and
// fingerprints the site's tech stack.
package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/raysh454/a11yscan/internal/logging"
	"github.com/raysh454/a11yscan/internal/model"
	"github.com/raysh454/a11yscan/internal/webclient"
)

// Engine computes a report for a normalized URL.
type Engine interface {
	Scan(ctx context.Context, url string) (*model.ReportResult, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, url string) (*model.ReportResult, error)

func (f EngineFunc) Scan(ctx context.Context, url string) (*model.ReportResult, error) {
	return f(ctx, url)
}

// ScanFailure means the page was reachable but could not be assessed.
type ScanFailure struct {
	URL        string
	StatusCode int
	Reason     string
}

func (e *ScanFailure) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("scan %s failed: %s (status %d)", e.URL, e.Reason, e.StatusCode)
	}
	return fmt.Sprintf("scan %s failed: %s", e.URL, e.Reason)
}

// IsScanFailure reports whether err is (or wraps) a *ScanFailure.
func IsScanFailure(err error) bool {
	var sf *ScanFailure
	return errors.As(err, &sf)
}

// Config tunes the accessibility engine.
type Config struct {
	// RuleWeights overrides the score penalty of individual rules by code.
	RuleWeights map[string]float64 `yaml:"rule_weights"`

	// MaxIssuesPerRule caps how many elements one rule reports.
	MaxIssuesPerRule int `yaml:"max_issues_per_rule"`

	// ContextLength truncates the outer-HTML excerpt attached to each issue.
	ContextLength int `yaml:"context_length"`
}

func DefaultConfig() Config {
	return Config{
		MaxIssuesPerRule: 50,
		ContextLength:    200,
	}
}

// AccessibilityEngine is the built-in Engine.
type AccessibilityEngine struct {
	cfg    Config
	client webclient.WebClient
	rules  []Rule
	logger logging.Logger
	now    func() time.Time
}

func NewAccessibilityEngine(cfg Config, client webclient.WebClient, logger logging.Logger) (*AccessibilityEngine, error) {
	if client == nil {
		return nil, errors.New("scanner: nil webclient")
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	def := DefaultConfig()
	if cfg.MaxIssuesPerRule <= 0 {
		cfg.MaxIssuesPerRule = def.MaxIssuesPerRule
	}
	if cfg.ContextLength <= 0 {
		cfg.ContextLength = def.ContextLength
	}

	rules := DefaultRules()
	for i := range rules {
		if w, ok := cfg.RuleWeights[rules[i].Code]; ok {
			rules[i].Weight = w
		}
	}

	return &AccessibilityEngine{
		cfg:    cfg,
		client: client,
		rules:  rules,
		logger: logger.With(logging.Field{Key: "component", Value: "accessibility-engine"}),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Scan fetches url and assesses it. Transport errors are returned wrapped;
// HTTP errors, empty bodies and unparseable documents yield a *ScanFailure.
func (e *AccessibilityEngine) Scan(ctx context.Context, url string) (*model.ReportResult, error) {
	resp, err := e.client.Do(ctx, &webclient.Request{Method: http.MethodGet, URL: url})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode >= 400 {
		return nil, &ScanFailure{URL: url, StatusCode: resp.StatusCode, Reason: "page returned an error status"}
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil, &ScanFailure{URL: url, StatusCode: resp.StatusCode, Reason: "empty response body"}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &ScanFailure{URL: url, Reason: "unparseable document: " + err.Error()}
	}

	result := e.Assess(url, doc, resp.Headers)
	e.logger.Info("scan finished",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "score", Value: result.Score},
		logging.Field{Key: "issues", Value: result.IssueCount()})
	return result, nil
}

// Assess runs the rule set and tech-stack detection over an already parsed document.
func (e *AccessibilityEngine) Assess(url string, doc *goquery.Document, headers http.Header) *model.ReportResult {
	result := &model.ReportResult{
		URL:            url,
		IssuesByEngine: make(map[string]model.IssueBuckets),
		ScannedAt:      e.now(),
	}

	groups := make(map[string][]model.Issue)
	var penalty float64
	for _, r := range e.rules {
		hits := r.Check(doc)
		n := 0
		hits.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if n >= e.cfg.MaxIssuesPerRule {
				return false
			}
			is := r.issue(s, e.cfg.ContextLength)
			b := result.IssuesByEngine[r.Engine]
			b.Add(is)
			result.IssuesByEngine[r.Engine] = b
			groups[r.Functionality] = append(groups[r.Functionality], is)
			penalty += r.Weight
			n++
			return true
		})
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		result.ByFunctionality = append(result.ByFunctionality, model.FunctionalityGroup{Name: name, Issues: groups[name]})
	}

	result.TechStack = DetectTechStack(url, doc, headers)
	result.Score = Score(penalty)
	return result
}

// Score turns an accumulated penalty into a [0, 100] score.
func Score(penalty float64) float64 {
	s := 100 - penalty
	switch {
	case s < 0:
		return 0
	case s > 100:
		return 100
	}
	return s
}
