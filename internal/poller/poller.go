// Package poller follows report jobs from the client side. Each polled job
// has one loop that asks the server for its state, waits Interval, and asks
// again until the job completes, fails or disappears. Polls for one job never
// overlap.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/raysh454/a11yscan/internal/logging"
	"github.com/raysh454/a11yscan/internal/model"
	"github.com/raysh454/a11yscan/internal/reports"
)

type Config struct {
	// Endpoint is the server's GraphQL URL.
	Endpoint string `yaml:"endpoint"`

	// Interval is the pause between two polls of the same job.
	Interval time.Duration `yaml:"interval"`

	// SaveOnComplete persists finished reports through saveAccessibilityReport.
	SaveOnComplete bool `yaml:"save_on_complete"`
}

func DefaultConfig() Config {
	return Config{
		Endpoint: "http://localhost:8080/graphql",
		Interval: 5 * time.Second,
	}
}

// Handler receives the outcome of a polled job. Exactly one of OnComplete,
// OnFailed and OnNotFound is called per Start, and none after cancellation.
// With SaveOnComplete, OnComplete runs after the save attempt.
type Handler interface {
	OnProgress(jobID string, status model.JobStatus)
	OnComplete(jobID string, result *model.ReportResult)
	OnFailed(jobID string, reason string)
	OnNotFound(jobID string)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Progress func(jobID string, status model.JobStatus)
	Complete func(jobID string, result *model.ReportResult)
	Failed   func(jobID string, reason string)
	NotFound func(jobID string)
}

func (h HandlerFuncs) OnProgress(jobID string, status model.JobStatus) {
	if h.Progress != nil {
		h.Progress(jobID, status)
	}
}

func (h HandlerFuncs) OnComplete(jobID string, result *model.ReportResult) {
	if h.Complete != nil {
		h.Complete(jobID, result)
	}
}

func (h HandlerFuncs) OnFailed(jobID string, reason string) {
	if h.Failed != nil {
		h.Failed(jobID, reason)
	}
}

func (h HandlerFuncs) OnNotFound(jobID string) {
	if h.NotFound != nil {
		h.NotFound(jobID)
	}
}

// CancelFunc stops polling a job. It is safe to call more than once.
type CancelFunc func()

type task struct {
	cancel context.CancelFunc
}

type Poller struct {
	client  Client
	cfg     Config
	handler Handler
	logger  logging.Logger

	mu     sync.Mutex
	active map[string]*task
	closed bool
	wg     sync.WaitGroup
}

func New(client Client, cfg Config, handler Handler, logger logging.Logger) (*Poller, error) {
	if client == nil {
		return nil, errors.New("poller: nil client")
	}
	if handler == nil {
		handler = HandlerFuncs{}
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Poller{
		client:  client,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With(logging.Field{Key: "component", Value: "poller"}),
		active:  make(map[string]*task),
	}, nil
}

// Start begins polling jobID and returns the function that stops it. Starting
// an id that is already being polled is a no-op and returns a canceller that
// does nothing; the first caller keeps control of the loop.
func (p *Poller) Start(jobID string) CancelFunc {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return func() {}
	}
	if _, ok := p.active[jobID]; ok {
		p.logger.Debug("already polling", logging.Field{Key: "job_id", Value: jobID})
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel}
	p.active[jobID] = t
	p.wg.Add(1)
	go p.loop(ctx, jobID, t)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			p.forget(jobID, t)
		})
	}
}

// Active lists the ids currently polled, sorted.
func (p *Poller) Active() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.active))
	for id := range p.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close cancels every loop and waits for them to return. Start is a no-op
// afterwards. The terminal callbacks (OnComplete, OnFailed, OnNotFound) run
// after their loop has returned, so they may call Close; OnProgress must not.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	for id, t := range p.active {
		t.cancel()
		delete(p.active, id)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) forget(jobID string, t *task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[jobID] == t {
		delete(p.active, jobID)
	}
}

func (p *Poller) loop(ctx context.Context, jobID string, t *task) {
	if finish := p.run(ctx, jobID, t); finish != nil && ctx.Err() == nil {
		finish()
	}
}

// run polls until the job ends or ctx is canceled. It returns the terminal
// callback, which the caller invokes once the loop is no longer tracked.
func (p *Poller) run(ctx context.Context, jobID string, t *task) func() {
	defer p.wg.Done()
	defer p.forget(jobID, t)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		if stop, finish := p.poll(ctx, jobID); stop {
			return finish
		}
		timer.Reset(p.cfg.Interval)
	}
}

// poll runs one request and reports whether polling should stop, along with
// the callback to deliver for a terminal outcome.
func (p *Poller) poll(ctx context.Context, jobID string) (bool, func()) {
	job, err := p.client.GetJob(ctx, jobID)
	if ctx.Err() != nil {
		return true, nil
	}
	switch {
	case errors.Is(err, ErrNotFound):
		p.logger.Info("job not found", logging.Field{Key: "job_id", Value: jobID})
		return true, func() { p.handler.OnNotFound(jobID) }
	case err != nil:
		// retry on the next tick
		p.logger.Warn("poll failed",
			logging.Field{Key: "job_id", Value: jobID}, logging.Err(err))
		return false, nil
	}

	switch job.Status {
	case model.JobPending, model.JobRunning:
		p.handler.OnProgress(jobID, job.Status)
		return false, nil
	case model.JobComplete:
		if p.cfg.SaveOnComplete {
			p.save(ctx, job)
		}
		return true, func() { p.handler.OnComplete(jobID, job.Result) }
	case model.JobFailed:
		p.logger.Info("job failed",
			logging.Field{Key: "job_id", Value: jobID},
			logging.Field{Key: "reason", Value: job.Error})
		return true, func() { p.handler.OnFailed(jobID, job.Error) }
	default:
		p.logger.Warn("unknown job status",
			logging.Field{Key: "job_id", Value: jobID},
			logging.Field{Key: "status", Value: string(job.Status)})
		return false, nil
	}
}

func (p *Poller) save(ctx context.Context, job *model.Job) {
	if job.Result == nil {
		return
	}
	body, err := json.Marshal(job.Result)
	if err != nil {
		p.logger.Error("encode report", logging.Field{Key: "job_id", Value: job.ID}, logging.Err(err))
		return
	}
	url := job.Result.URL
	if url == "" {
		url = job.URL
	}
	res, err := p.client.SaveReport(ctx, reports.SaveInput{Report: body, URL: url})
	if err != nil {
		p.logger.Warn("saving report failed",
			logging.Field{Key: "job_id", Value: job.ID}, logging.Err(err))
		return
	}
	p.logger.Info("report saved",
		logging.Field{Key: "job_id", Value: job.ID},
		logging.Field{Key: "key", Value: res.Key})
}
