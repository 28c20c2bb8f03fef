package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/a11yscan/internal/cache"
	"github.com/raysh454/a11yscan/internal/jobs"
	"github.com/raysh454/a11yscan/internal/model"
	"github.com/raysh454/a11yscan/internal/reports"
	"github.com/raysh454/a11yscan/internal/testutil"

	_ "modernc.org/sqlite"
)

type harness struct {
	orch    *Orchestrator
	cache   *cache.ResultCache
	durable *testutil.DummyDurable
	engine  *testutil.DummyEngine
	logger  *testutil.DummyLogger
}

// newHarness builds an Orchestrator over an in-memory durable tier, a
// sqlite reports store in t.TempDir and the given engine.
func newHarness(t *testing.T, engine *testutil.DummyEngine, mutate ...func(*Config)) *harness {
	t.Helper()

	cfg := DefaultConfig()
	cfg.StorageRoot = t.TempDir()
	cfg.ScanTimeout = 5 * time.Second
	for _, m := range mutate {
		m(cfg)
	}

	logger := &testutil.DummyLogger{}
	durable := &testutil.DummyDurable{}
	rc, err := cache.New(cfg.Cache, durable, logger)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(cfg.StorageRoot, "reports.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	rs, err := reports.NewStore(db, logger)
	if err != nil {
		t.Fatalf("reports.NewStore: %v", err)
	}

	orch := NewOrchestrator(cfg, jobs.NewStore(cfg.Jobs, logger), rc, engine, rs, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})
	return &harness{orch: orch, cache: rc, durable: durable, engine: engine, logger: logger}
}

func waitTerminal(t *testing.T, o *Orchestrator, id string) *model.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := o.GetJob(context.Background(), id)
		if err != nil {
			t.Fatalf("GetJob(%s): %v", id, err)
		}
		if job.Status.IsTerminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish in time", id)
	return nil
}

// ─── StartJob: cache path ──────────────────────────────────────────────

func TestStartJob_MemoryHitServesCachedPayloadWithoutJob(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.DummyEngine{})
	ctx := context.Background()

	payload := testutil.SampleReport("https://example.com/", 91)
	if err := h.cache.Store(ctx, "https://example.com/", payload); err != nil {
		t.Fatalf("Store: %v", err)
	}
	before := h.orch.CacheStatistics()

	res, err := h.orch.StartJob(ctx, "Example.com", true)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if res.Kind() != ResultCached {
		t.Fatalf("kind = %v, want cached", res.Kind())
	}
	if res.Tier != cache.TierMemory {
		t.Errorf("tier = %q, want memory", res.Tier)
	}
	if res.Cached.Payload.Score != 91 {
		t.Errorf("score = %v, want 91", res.Cached.Payload.Score)
	}

	after := h.orch.CacheStatistics()
	if after.TotalRequests != before.TotalRequests+1 || after.MemoryHits != before.MemoryHits+1 {
		t.Errorf("stats moved from %+v to %+v, want exactly one memory hit", before, after)
	}
	if h.engine.Calls() != 0 {
		t.Errorf("engine called %d times on a cache hit", h.engine.Calls())
	}
	if n := len(h.orch.ListJobs()); n != 0 {
		t.Errorf("cache hit created %d jobs", n)
	}
}

func TestStartJob_DurableHitAfterClearMemory(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.DummyEngine{})
	ctx := context.Background()

	if err := h.cache.Store(ctx, "https://example.com/docs", testutil.SampleReport("https://example.com/docs", 64)); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if n := h.orch.ClearMemoryCache(); n != 1 {
		t.Fatalf("ClearMemoryCache removed %d, want 1", n)
	}
	h.orch.ResetCacheStatistics()

	res, err := h.orch.StartJob(ctx, "https://example.com/docs/", true)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if res.Kind() != ResultCached || res.Tier != cache.TierDurable {
		t.Fatalf("got kind %v tier %q, want cached from durable", res.Kind(), res.Tier)
	}
	st := h.orch.CacheStatistics()
	if st.R2Hits != 1 || st.TotalRequests != 1 || st.MemorySize != 1 {
		t.Errorf("stats = %+v, want one durable hit and a promoted entry", st)
	}
}

func TestStartJob_CacheErrorFallsThroughToScan(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.DummyEngine{})
	h.durable.SetErr(errors.New("bucket offline"))

	res, err := h.orch.StartJob(context.Background(), "example.com/a", true)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if res.Kind() != ResultStarted {
		t.Fatalf("kind = %v, want started", res.Kind())
	}
	job := waitTerminal(t, h.orch, res.JobID)
	if job.Status != model.JobComplete {
		t.Errorf("status = %s, want complete", job.Status)
	}
	if h.logger.WarnCount() == 0 {
		t.Error("expected the cache failure to be logged")
	}
}

func TestStartJob_WithoutCacheSkipsLookup(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.DummyEngine{})
	ctx := context.Background()
	_ = h.cache.Store(ctx, "https://example.com/", testutil.SampleReport("https://example.com/", 50))

	res, err := h.orch.StartJob(ctx, "example.com", false)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if res.Kind() != ResultStarted {
		t.Fatalf("kind = %v, want started", res.Kind())
	}
	if st := h.orch.CacheStatistics(); st.TotalRequests != 0 {
		t.Errorf("totalRequests = %d, want 0", st.TotalRequests)
	}
	waitTerminal(t, h.orch, res.JobID)
}

func TestStartJob_RejectsInvalidURL(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.DummyEngine{})
	for _, raw := range []string{"", "ftp://example.com/file", "https://"} {
		if _, err := h.orch.StartJob(context.Background(), raw, true); err == nil {
			t.Errorf("StartJob(%q) = nil error", raw)
		}
	}
}

// ─── Job lifecycle ─────────────────────────────────────────────────────

func TestFreshJob_StatusNeverRegressesAndEndsOnce(t *testing.T) {
	t.Parallel()
	engine := &testutil.DummyEngine{Gate: make(chan struct{}), Started: make(chan string, 1)}
	h := newHarness(t, engine)
	ctx := context.Background()

	res, err := h.orch.StartJob(ctx, "example.com/slow", true)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	first, err := h.orch.GetJob(ctx, res.JobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if first.Status != model.JobPending && first.Status != model.JobRunning {
		t.Fatalf("initial status = %s", first.Status)
	}

	<-engine.Started
	second, _ := h.orch.GetJob(ctx, res.JobID)
	if second.Status != model.JobRunning {
		t.Fatalf("status while scanning = %s, want running", second.Status)
	}
	if second.Status.Rank() < first.Status.Rank() {
		t.Fatalf("status regressed from %s to %s", first.Status, second.Status)
	}

	close(engine.Gate)
	final := waitTerminal(t, h.orch, res.JobID)
	if final.Status != model.JobComplete {
		t.Fatalf("final status = %s, want complete", final.Status)
	}
	if final.Result == nil || final.Error != "" {
		t.Errorf("complete job must carry a result and no error: %+v", final)
	}
	if final.EndedAt.Before(final.StartedAt) {
		t.Errorf("EndedAt %v before StartedAt %v", final.EndedAt, final.StartedAt)
	}

	again, _ := h.orch.GetJob(ctx, res.JobID)
	if again.Status != model.JobComplete {
		t.Errorf("status after completion changed to %s", again.Status)
	}
}

func TestCompletedJob_WritesCacheWithSamePayload(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.DummyEngine{Score: 73})
	ctx := context.Background()

	res, _ := h.orch.StartJob(ctx, "https://example.com/pricing", true)
	job := waitTerminal(t, h.orch, res.JobID)

	e, tier, err := h.cache.Lookup(ctx, job.URL, nil)
	if err != nil {
		t.Fatalf("Lookup(%s): %v", job.URL, err)
	}
	if tier != cache.TierMemory {
		t.Errorf("tier = %q, want memory", tier)
	}
	if e.Payload != job.Result {
		t.Errorf("cached payload %p differs from job result %p", e.Payload, job.Result)
	}
	if h.durable.PutCount() != 1 {
		t.Errorf("durable writes = %d, want 1", h.durable.PutCount())
	}
}

func TestFailedJob_IsNotCached(t *testing.T) {
	t.Parallel()
	engine := &testutil.DummyEngine{FailURLs: map[string]string{"https://example.com/broken": "HTTP 500"}}
	h := newHarness(t, engine)

	res, _ := h.orch.StartJob(context.Background(), "example.com/broken", true)
	job := waitTerminal(t, h.orch, res.JobID)
	if job.Status != model.JobFailed || job.Error != "HTTP 500" || job.Result != nil {
		t.Fatalf("job = %+v, want failed with reason and no result", job)
	}
	if h.durable.PutCount() != 0 {
		t.Errorf("failed job wrote the cache %d times", h.durable.PutCount())
	}
}

func TestOnScanComplete_DuplicateRejectedAndCachedOnce(t *testing.T) {
	t.Parallel()
	engine := &testutil.DummyEngine{Gate: make(chan struct{})}
	h := newHarness(t, engine)

	res, _ := h.orch.StartJob(context.Background(), "example.com/dup", false)
	first := testutil.SampleReport(res.URL, 40)
	if err := h.orch.OnScanComplete(res.JobID, first); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	err := h.orch.OnScanComplete(res.JobID, testutil.SampleReport(res.URL, 99))
	if !errors.Is(err, jobs.ErrAlreadyTerminal) {
		t.Fatalf("second completion err = %v, want ErrAlreadyTerminal", err)
	}
	if err := h.orch.OnScanFailed(res.JobID, "late failure"); !errors.Is(err, jobs.ErrAlreadyTerminal) {
		t.Fatalf("failure after completion err = %v, want ErrAlreadyTerminal", err)
	}

	// let the engine finish; its completion is rejected too
	close(engine.Gate)
	job := waitTerminal(t, h.orch, res.JobID)
	if job.Result.Score != 40 {
		t.Errorf("score = %v, want the first completion (40)", job.Result.Score)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = h.orch.Shutdown(ctx)
	if n := h.durable.PutCount(); n != 1 {
		t.Errorf("cache written %d times, want 1", n)
	}
}

func TestCompletedJob_NotVisibleUntilCached(t *testing.T) {
	t.Parallel()
	engine := &testutil.DummyEngine{Score: 73}
	h := newHarness(t, engine)
	h.durable.PutGate = make(chan struct{})
	h.durable.PutStarted = make(chan string, 1)
	ctx := context.Background()

	res, err := h.orch.StartJob(ctx, "example.com/slow-cache", true)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	select {
	case <-h.durable.PutStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("durable write never started")
	}

	// the scan is done but the durable write is still in flight
	for i := 0; i < 20; i++ {
		job, err := h.orch.GetJob(ctx, res.JobID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if job.Status.IsTerminal() {
			t.Fatalf("job is %s before its result was cached", job.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(h.durable.PutGate)

	job := waitTerminal(t, h.orch, res.JobID)
	if job.Status != model.JobComplete {
		t.Fatalf("status = %s, want complete", job.Status)
	}
	again, err := h.orch.StartJob(ctx, "example.com/slow-cache", true)
	if err != nil {
		t.Fatalf("repeat StartJob: %v", err)
	}
	if again.Kind() != ResultCached || again.Cached.Payload.Score != 73 {
		t.Errorf("repeat request = %v, want a cache hit with score 73", again.Kind())
	}
	if engine.Calls() != 1 {
		t.Errorf("engine calls = %d, want 1", engine.Calls())
	}
}

func TestScanTimeout_FailsJob(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.DummyEngine{Gate: make(chan struct{})}, func(c *Config) {
		c.ScanTimeout = 30 * time.Millisecond
	})

	res, _ := h.orch.StartJob(context.Background(), "example.com/hangs", false)
	job := waitTerminal(t, h.orch, res.JobID)
	if job.Status != model.JobFailed || !strings.Contains(job.Error, "timed out") {
		t.Errorf("job = %s %q, want failed with a timeout reason", job.Status, job.Error)
	}
}

func TestMaxConcurrentScans_BoundsEngineCalls(t *testing.T) {
	t.Parallel()
	engine := &testutil.DummyEngine{Gate: make(chan struct{}), Started: make(chan string, 8)}
	h := newHarness(t, engine, func(c *Config) { c.MaxConcurrentScans = 2 })
	ctx := context.Background()

	var ids []string
	for _, p := range []string{"a", "b", "c", "d"} {
		res, err := h.orch.StartJob(ctx, "example.com/"+p, false)
		if err != nil {
			t.Fatalf("StartJob: %v", err)
		}
		ids = append(ids, res.JobID)
	}

	<-engine.Started
	<-engine.Started
	time.Sleep(20 * time.Millisecond)
	if n := engine.Calls(); n != 2 {
		t.Fatalf("engine calls with two slots = %d, want 2", n)
	}

	close(engine.Gate)
	for _, id := range ids {
		if job := waitTerminal(t, h.orch, id); job.Status != model.JobComplete {
			t.Errorf("job %s = %s", id, job.Status)
		}
	}
}

func TestShutdown_CancelsRunningScans(t *testing.T) {
	t.Parallel()
	engine := &testutil.DummyEngine{Gate: make(chan struct{}), Started: make(chan string, 1)}
	h := newHarness(t, engine)

	res, _ := h.orch.StartJob(context.Background(), "example.com/long", false)
	<-engine.Started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.orch.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	job, err := h.orch.GetJob(context.Background(), res.JobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != model.JobFailed {
		t.Errorf("status after shutdown = %s, want failed", job.Status)
	}
	if _, err := h.orch.StartJob(context.Background(), "example.com/after", false); !errors.Is(err, ErrShutdown) {
		t.Errorf("StartJob after Shutdown err = %v, want ErrShutdown", err)
	}
}

func TestCancelJob(t *testing.T) {
	t.Parallel()
	engine := &testutil.DummyEngine{Gate: make(chan struct{}), Started: make(chan string, 1)}
	h := newHarness(t, engine)

	res, _ := h.orch.StartJob(context.Background(), "example.com/cancel-me", false)
	<-engine.Started
	if err := h.orch.CancelJob(res.JobID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if job := waitTerminal(t, h.orch, res.JobID); job.Status != model.JobFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
	if err := h.orch.CancelJob(res.JobID); !errors.Is(err, jobs.ErrAlreadyTerminal) {
		t.Errorf("cancel of finished job err = %v", err)
	}
	var nf *NotFoundError
	if err := h.orch.CancelJob("nope"); !errors.As(err, &nf) {
		t.Errorf("cancel of unknown job err = %v, want NotFoundError", err)
	}
}

// ─── GetJob ────────────────────────────────────────────────────────────

func TestGetJob_UnknownIsNotFoundError(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.DummyEngine{})

	_, err := h.orch.GetJob(context.Background(), "does-not-exist")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want *NotFoundError", err)
	}
	if nf.JobID != "does-not-exist" || !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("NotFoundError = %+v", nf)
	}
}

func TestGetJob_CachedIDResolvesWithoutCounting(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.DummyEngine{})
	ctx := context.Background()
	_ = h.cache.Store(ctx, "https://example.com/", testutil.SampleReport("https://example.com/", 88))

	res, _ := h.orch.StartJob(ctx, "example.com", true)
	before := h.orch.CacheStatistics()

	job, err := h.orch.GetJob(ctx, CachedJobID(res.URL))
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != model.JobComplete || job.Result.Score != 88 {
		t.Errorf("synthetic job = %+v", job)
	}
	if after := h.orch.CacheStatistics(); after.TotalRequests != before.TotalRequests {
		t.Errorf("resolving a cached id counted a request")
	}

	var nf *NotFoundError
	if _, err := h.orch.GetJob(ctx, CachedJobID("https://never.example/")); !errors.As(err, &nf) {
		t.Errorf("unknown cached id err = %v, want NotFoundError", err)
	}

	// once memory drops the entry the id is gone, even though the durable
	// tier still holds the payload
	h.orch.ClearMemoryCache()
	before = h.orch.CacheStatistics()
	if _, err := h.orch.GetJob(ctx, CachedJobID(res.URL)); !errors.As(err, &nf) {
		t.Errorf("evicted cached id err = %v, want NotFoundError", err)
	}
	after := h.orch.CacheStatistics()
	if after.TotalRequests != before.TotalRequests || after.R2Hits != before.R2Hits || after.Misses != before.Misses {
		t.Errorf("resolving an evicted cached id counted: before %+v, after %+v", before, after)
	}
	if after.MemorySize != 0 {
		t.Errorf("memory size = %d, want 0 (no promotion)", after.MemorySize)
	}
}

// ─── End-to-end scenario ───────────────────────────────────────────────

func TestScenario_SecondRequestServedFromMemory(t *testing.T) {
	t.Parallel()
	engine := &testutil.DummyEngine{Score: 82, Gate: make(chan struct{}), Started: make(chan string, 1)}
	h := newHarness(t, engine)
	ctx := context.Background()

	res, err := h.orch.StartJob(ctx, "example.com", true)
	if err != nil || res.Kind() != ResultStarted {
		t.Fatalf("first StartJob = %+v, %v", res, err)
	}
	if job, _ := h.orch.GetJob(ctx, res.JobID); job.Status.IsTerminal() {
		t.Fatalf("job finished before the engine ran: %s", job.Status)
	}
	<-engine.Started
	if job, _ := h.orch.GetJob(ctx, res.JobID); job.Status != model.JobRunning {
		t.Fatalf("status = %s, want running", job.Status)
	}
	close(engine.Gate)

	job := waitTerminal(t, h.orch, res.JobID)
	if job.Status != model.JobComplete || job.Result.Score < 0 || job.Result.Score > 100 {
		t.Fatalf("job = %s score %v", job.Status, job.Result.Score)
	}

	before := h.orch.CacheStatistics()
	again, err := h.orch.StartJob(ctx, "example.com", true)
	if err != nil {
		t.Fatalf("second StartJob: %v", err)
	}
	if again.Kind() != ResultCached || again.Cached.Payload.Score != job.Result.Score {
		t.Fatalf("second StartJob = %+v", again)
	}
	if after := h.orch.CacheStatistics(); after.MemoryHits != before.MemoryHits+1 {
		t.Errorf("memoryHits %d -> %d, want +1", before.MemoryHits, after.MemoryHits)
	}
	if engine.Calls() != 1 {
		t.Errorf("engine calls = %d, want 1", engine.Calls())
	}
}

// ─── Saved reports ─────────────────────────────────────────────────────

func TestSaveReport(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.DummyEngine{})
	ctx := context.Background()

	body, _ := json.Marshal(testutil.SampleReport("https://example.com/", 70))
	siteID := 3
	out, err := h.orch.SaveReport(ctx, reports.SaveInput{Report: body, URL: "example.com", AllowedSitesID: &siteID})
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if !out.Success || out.Key == "" {
		t.Fatalf("result = %+v", out)
	}
	got, err := h.orch.GetReport(ctx, out.Key)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.URL != "https://example.com/" || got.Score == nil || *got.Score != 70 {
		t.Errorf("saved = %+v", got)
	}

	if _, err := h.orch.SaveReport(ctx, reports.SaveInput{Report: body}); !errors.Is(err, reports.ErrInvalidReport) {
		t.Errorf("missing url err = %v, want ErrInvalidReport", err)
	}
	negative := -1
	if _, err := h.orch.SaveReport(ctx, reports.SaveInput{Report: body, URL: "example.com", AllowedSitesID: &negative}); !errors.Is(err, reports.ErrInvalidReport) {
		t.Errorf("negative site id err = %v, want ErrInvalidReport", err)
	}
}
