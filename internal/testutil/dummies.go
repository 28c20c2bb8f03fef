// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raysh454/a11yscan/internal/cache"
	"github.com/raysh454/a11yscan/internal/logging"
	"github.com/raysh454/a11yscan/internal/model"
	"github.com/raysh454/a11yscan/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// WarnCount returns how many warnings were logged so far.
func (l *DummyLogger) WarnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Warns)
}

// ─── WebClient ─────────────────────────────────────────────────────────

// AccessiblePage is a small document that passes every built-in rule.
const AccessiblePage = `<!doctype html><html lang="en"><head><title>Fixture</title>` +
	`<meta name="viewport" content="width=device-width, initial-scale=1"></head>` +
	`<body><main><h1>Fixture</h1><p>Nothing to report.</p></main></body></html>`

// DummyWebClient implements webclient.WebClient.
// Pages maps a URL to a body; unknown URLs get AccessiblePage with status 200.
// Set FailURLs[url] = true to force a transport error for a specific URL and
// Status[url] to override the status code.
type DummyWebClient struct {
	ResponseDelay time.Duration
	Pages         map[string]string
	Status        map[string]int
	FailURLs      map[string]bool

	mu       sync.Mutex
	Requests []*webclient.Request
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.FailURLs[req.URL] {
		return nil, fmt.Errorf("dummy transport failure for %s", req.URL)
	}
	body, ok := d.Pages[req.URL]
	if !ok {
		body = AccessiblePage
	}
	status := http.StatusOK
	if s, ok := d.Status[req.URL]; ok {
		status = s
	}
	return &webclient.Response{
		Request:    req,
		Headers:    http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:       []byte(body),
		StatusCode: status,
		FetchedAt:  time.Now(),
	}, nil
}

func (d *DummyWebClient) Close() error { return nil }

// RequestCount returns how many requests were made.
func (d *DummyWebClient) RequestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}

// ─── Engine ────────────────────────────────────────────────────────────

// DummyEngine implements scanner.Engine.
// By default it returns a report scoring Score (or 87 when zero) immediately.
// If Gate is non-nil every scan blocks until a value is received from it or
// ctx is done; Started receives the url when a scan begins, if non-nil.
// FailURLs[url] makes the scan fail with that reason.
type DummyEngine struct {
	Score    float64
	Gate     chan struct{}
	Started  chan string
	FailURLs map[string]string

	calls atomic.Int64
}

func (d *DummyEngine) Scan(ctx context.Context, url string) (*model.ReportResult, error) {
	d.calls.Add(1)
	if d.Started != nil {
		select {
		case d.Started <- url:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.Gate != nil {
		select {
		case <-d.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if reason, ok := d.FailURLs[url]; ok {
		return nil, fmt.Errorf("%s", reason)
	}
	score := d.Score
	if score == 0 {
		score = 87
	}
	return SampleReport(url, score), nil
}

// Calls returns how many scans were started.
func (d *DummyEngine) Calls() int {
	return int(d.calls.Load())
}

// SampleReport returns a small but fully populated report.
func SampleReport(url string, score float64) *model.ReportResult {
	img := model.Issue{
		Code:          "image-alt",
		Message:       "Images must have alternate text",
		Type:          model.IssueError,
		Selector:      "main > img:nth-child(2)",
		Context:       `<img src="/logo.png">`,
		Impact:        "critical",
		Functionality: "Images",
	}
	var axe model.IssueBuckets
	axe.Add(img)
	return &model.ReportResult{
		URL:             url,
		Score:           score,
		IssuesByEngine:  map[string]model.IssueBuckets{"axe": axe},
		TechStack:       []model.Technology{{Name: "nginx", Category: "Web server", Version: "1.25.3"}},
		ByFunctionality: []model.FunctionalityGroup{{Name: "Images", Issues: []model.Issue{img}}},
		ScannedAt:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// ─── Durable cache tier ────────────────────────────────────────────────

// DummyDurable implements cache.DurableTier in memory. Set Err to make every
// call fail with it. When PutGate is set, Put sends the key on PutStarted (if
// non-nil) and blocks until the gate is closed.
type DummyDurable struct {
	mu         sync.Mutex
	entries    map[string]*cache.Entry
	Err        error
	Puts       int
	PutGate    chan struct{}
	PutStarted chan string
}

func (d *DummyDurable) Get(ctx context.Context, key string) (*cache.Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	e, ok := d.entries[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (d *DummyDurable) Put(ctx context.Context, key string, e *cache.Entry) error {
	if d.PutGate != nil {
		if d.PutStarted != nil {
			d.PutStarted <- key
		}
		select {
		case <-d.PutGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	if d.entries == nil {
		d.entries = make(map[string]*cache.Entry)
	}
	cp := *e
	d.entries[key] = &cp
	d.Puts++
	return nil
}

func (d *DummyDurable) Delete(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	delete(d.entries, key)
	return nil
}

// SetErr changes the injected failure under the lock.
func (d *DummyDurable) SetErr(err error) {
	d.mu.Lock()
	d.Err = err
	d.mu.Unlock()
}

// PutCount returns how many successful writes happened.
func (d *DummyDurable) PutCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Puts
}
