package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/raysh454/a11yscan/internal/cache"
	"github.com/raysh454/a11yscan/internal/jobs"
	"github.com/raysh454/a11yscan/internal/logging"
	"github.com/raysh454/a11yscan/internal/model"
	"github.com/raysh454/a11yscan/internal/reports"
	"github.com/raysh454/a11yscan/internal/scanner"
	"github.com/raysh454/a11yscan/internal/utils"
)

// CachedJobPrefix marks the synthetic id handed out for a cache hit.
const CachedJobPrefix = "cached:"

var (
	ErrInvalidURL = errors.New("invalid url")
	ErrShutdown   = errors.New("orchestrator is shut down")
)

// NotFoundError is returned for job ids the store does not know (or has
// already expired).
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job %s not found", e.JobID)
}

func (e *NotFoundError) Unwrap() error { return jobs.ErrJobNotFound }

type ResultKind int

const (
	ResultStarted ResultKind = iota
	ResultCached
)

func (k ResultKind) String() string {
	if k == ResultCached {
		return "cached"
	}
	return "started"
}

// StartResult is what StartJob hands back: either a cached payload (no job was
// created) or the id of a freshly started job. Use Kind to tell them apart.
type StartResult struct {
	URL string

	// JobID is set for ResultStarted.
	JobID string

	// Cached and Tier are set for ResultCached.
	Cached *cache.Entry
	Tier   cache.Tier
}

func (r StartResult) Kind() ResultKind {
	if r.Cached != nil {
		return ResultCached
	}
	return ResultStarted
}

// CachedJobID is the synthetic id of a cache hit for url.
func CachedJobID(url string) string {
	return CachedJobPrefix + url
}

// Orchestrator runs scans as jobs and keeps the result cache in step with
// job completions.
type Orchestrator struct {
	cfg      *Config
	store    *jobs.Store
	cache    *cache.ResultCache
	engine   scanner.Engine
	reports  *reports.Store
	validate *validator.Validate
	logger   logging.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	jobsMu     sync.Mutex
	jobCancels map[string]context.CancelFunc
	closed     bool
}

// NewOrchestrator ties the job store, cache and engine together. savedReports
// may be nil, in which case SaveReport fails.
func NewOrchestrator(cfg *Config, store *jobs.Store, rc *cache.ResultCache, engine scanner.Engine, savedReports *reports.Store, logger logging.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	limit := cfg.MaxConcurrentScans
	if limit < 1 {
		limit = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        cfg,
		store:      store,
		cache:      rc,
		engine:     engine,
		reports:    savedReports,
		validate:   validator.New(),
		logger:     logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
		sem:        make(chan struct{}, limit),
		ctx:        ctx,
		cancel:     cancel,
		jobCancels: make(map[string]context.CancelFunc),
	}
}

// StartJob normalizes rawURL and either answers from the cache or starts a
// scan in the background. A cache that cannot be read is logged and treated
// as a miss.
func (o *Orchestrator) StartJob(ctx context.Context, rawURL string, useCache bool) (StartResult, error) {
	url, err := utils.NormalizeTarget(rawURL)
	if err != nil {
		return StartResult{}, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	if useCache {
		e, tier, err := o.cache.Lookup(ctx, url, nil)
		switch {
		case err == nil:
			o.logger.Info("serving cached report",
				logging.Field{Key: "url", Value: url},
				logging.Field{Key: "tier", Value: string(tier)})
			return StartResult{URL: url, Cached: e, Tier: tier}, nil
		case errors.Is(err, cache.ErrNotFound):
		default:
			o.logger.Warn("cache lookup failed, scanning fresh",
				logging.Field{Key: "url", Value: url}, logging.Err(err))
		}
	}

	o.jobsMu.Lock()
	if o.closed {
		o.jobsMu.Unlock()
		return StartResult{}, ErrShutdown
	}
	job := o.store.Create(url)
	jobCtx, cancel := context.WithCancel(o.ctx)
	o.jobCancels[job.ID] = cancel
	o.wg.Add(1)
	o.jobsMu.Unlock()

	go o.runScan(jobCtx, job.ID, url)

	o.logger.Info("scan job started",
		logging.Field{Key: "job_id", Value: job.ID},
		logging.Field{Key: "url", Value: url})
	return StartResult{URL: url, JobID: job.ID}, nil
}

func (o *Orchestrator) runScan(ctx context.Context, jobID, url string) {
	defer o.wg.Done()
	defer func() {
		o.jobsMu.Lock()
		if cancel, ok := o.jobCancels[jobID]; ok {
			cancel()
			delete(o.jobCancels, jobID)
		}
		o.jobsMu.Unlock()
	}()

	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		o.finishFailed(jobID, "canceled before start")
		return
	}

	if err := o.store.MarkRunning(jobID); err != nil {
		o.logger.Warn("could not mark job running",
			logging.Field{Key: "job_id", Value: jobID}, logging.Err(err))
		return
	}

	scanCtx, cancel := context.WithTimeout(ctx, o.cfg.ScanTimeout)
	defer cancel()

	result, err := o.engine.Scan(scanCtx, url)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) && scanCtx.Err() != nil && ctx.Err() == nil {
			reason = fmt.Sprintf("scan timed out after %s", o.cfg.ScanTimeout)
		}
		o.finishFailed(jobID, reason)
		return
	}
	if result == nil {
		o.finishFailed(jobID, "engine returned no result")
		return
	}
	if result.URL == "" {
		result.URL = url
	}
	if err := o.OnScanComplete(jobID, result); err != nil && !errors.Is(err, cache.ErrTierUnavailable) {
		o.logger.Warn("completion rejected",
			logging.Field{Key: "job_id", Value: jobID}, logging.Err(err))
	}
}

func (o *Orchestrator) finishFailed(jobID, reason string) {
	if err := o.OnScanFailed(jobID, reason); err != nil {
		o.logger.Warn("failure rejected",
			logging.Field{Key: "job_id", Value: jobID}, logging.Err(err))
	}
}

// OnScanComplete writes the result to the cache and then marks the job
// complete, so a job seen as complete always has its payload cached. Only the
// call that claims the transition writes the cache; a duplicate completion
// returns jobs.ErrAlreadyTerminal and stores nothing. A cache write failure
// still completes the job and is returned wrapped in cache.ErrTierUnavailable.
func (o *Orchestrator) OnScanComplete(jobID string, result *model.ReportResult) error {
	if result == nil {
		return errors.New("nil scan result")
	}
	claim, err := o.store.Claim(jobID)
	if err != nil {
		return o.notFound(jobID, err)
	}
	url := claim.Job().URL

	// the cache write outlives a canceled scan context
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cacheErr := o.cache.Store(ctx, url, result)
	if cacheErr != nil {
		o.logger.Error("failed to cache completed report",
			logging.Field{Key: "job_id", Value: jobID},
			logging.Field{Key: "url", Value: url},
			logging.Err(cacheErr))
	}

	if _, err := claim.Complete(result); err != nil {
		return o.notFound(jobID, err)
	}
	return cacheErr
}

// OnScanFailed records reason. Failed jobs are never cached.
func (o *Orchestrator) OnScanFailed(jobID, reason string) error {
	_, err := o.store.Fail(jobID, reason)
	if err != nil {
		return o.notFound(jobID, err)
	}
	o.logger.Warn("scan failed",
		logging.Field{Key: "job_id", Value: jobID},
		logging.Field{Key: "reason", Value: reason})
	return nil
}

// GetJob is a pure read. Ids produced for cache hits resolve to a synthetic
// complete job built from the memory tier's copy of the payload; once that
// copy is gone the id is not found.
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	if url, ok := strings.CutPrefix(jobID, CachedJobPrefix); ok {
		return o.cachedJob(jobID, url)
	}
	job, err := o.store.Get(jobID)
	if err != nil {
		return nil, o.notFound(jobID, err)
	}
	return job, nil
}

func (o *Orchestrator) cachedJob(jobID, url string) (*model.Job, error) {
	e, ok := o.cache.Peek(url)
	if !ok {
		return nil, &NotFoundError{JobID: jobID}
	}
	return SyntheticJob(e), nil
}

// SyntheticJob presents a cache entry as an already complete job.
func SyntheticJob(e *cache.Entry) *model.Job {
	return &model.Job{
		ID:        CachedJobID(e.Key),
		URL:       e.Key,
		Status:    model.JobComplete,
		Result:    e.Payload,
		CreatedAt: e.CreatedAt,
		StartedAt: e.UpdatedAt,
		EndedAt:   e.UpdatedAt,
	}
}

func (o *Orchestrator) notFound(jobID string, err error) error {
	if errors.Is(err, jobs.ErrJobNotFound) {
		return &NotFoundError{JobID: jobID}
	}
	return err
}

// ListJobs returns live jobs, newest first.
func (o *Orchestrator) ListJobs() []*model.Job {
	list := o.store.List()
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

// SubscribeJob streams transitions of jobID. The channel closes when the job
// finishes; for a finished job it is returned already closed.
func (o *Orchestrator) SubscribeJob(jobID string) (<-chan model.JobEvent, func(), error) {
	ch, unsubscribe, err := o.store.Subscribe(jobID)
	if err != nil {
		return nil, nil, o.notFound(jobID, err)
	}
	return ch, unsubscribe, nil
}

// CancelJob aborts a scan. The job ends as failed.
func (o *Orchestrator) CancelJob(jobID string) error {
	job, err := o.store.Get(jobID)
	if err != nil {
		return o.notFound(jobID, err)
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", jobs.ErrAlreadyTerminal, jobID)
	}

	o.jobsMu.Lock()
	cancel, ok := o.jobCancels[jobID]
	o.jobsMu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

func (o *Orchestrator) CacheStatistics() cache.Statistics {
	return o.cache.Statistics()
}

// ClearMemoryCache empties the memory tier and returns how many entries went.
func (o *Orchestrator) ClearMemoryCache() int {
	return o.cache.ClearMemory()
}

func (o *Orchestrator) ResetCacheStatistics() {
	o.cache.ResetStatistics()
}

// SaveReport validates in and persists it.
func (o *Orchestrator) SaveReport(ctx context.Context, in reports.SaveInput) (*reports.SaveResult, error) {
	if o.reports == nil {
		return nil, errors.New("saved reports are not configured")
	}
	if err := o.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", reports.ErrInvalidReport, err)
	}
	return o.reports.Save(ctx, in)
}

// GetReport returns a saved report by key.
func (o *Orchestrator) GetReport(ctx context.Context, key string) (*reports.SavedReport, error) {
	if o.reports == nil {
		return nil, errors.New("saved reports are not configured")
	}
	return o.reports.Get(ctx, key)
}

// ListReports returns saved reports for rawURL, newest first.
func (o *Orchestrator) ListReports(ctx context.Context, rawURL string, limit int) ([]reports.SavedReport, error) {
	if o.reports == nil {
		return nil, errors.New("saved reports are not configured")
	}
	return o.reports.ListByURL(ctx, rawURL, limit)
}

// CompareReports diffs two saved reports by key.
func (o *Orchestrator) CompareReports(ctx context.Context, baseKey, headKey string) (*reports.ReportDiff, error) {
	if o.reports == nil {
		return nil, errors.New("saved reports are not configured")
	}
	return o.reports.Compare(ctx, baseKey, headKey)
}

// Shutdown stops accepting jobs, cancels running scans and waits for them
// until ctx is done.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.jobsMu.Lock()
	o.closed = true
	o.jobsMu.Unlock()
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		o.logger.Info("orchestrator stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for scans: %w", ctx.Err())
	}
}
