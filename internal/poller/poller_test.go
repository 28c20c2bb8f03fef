package poller_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raysh454/a11yscan/internal/model"
	"github.com/raysh454/a11yscan/internal/poller"
	"github.com/raysh454/a11yscan/internal/reports"
	"github.com/raysh454/a11yscan/internal/testutil"
)

// scriptedClient answers GetJob from a per-job script; the last step repeats.
type scriptedClient struct {
	mu      sync.Mutex
	scripts map[string][]step
	calls   map[string]int
	saves   []reports.SaveInput

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	hold        time.Duration
}

type step struct {
	status model.JobStatus
	err    error
	reason string
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{scripts: make(map[string][]step), calls: make(map[string]int)}
}

func (c *scriptedClient) script(id string, steps ...step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[id] = steps
}

func (c *scriptedClient) GetJob(ctx context.Context, id string) (*model.Job, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		cur := c.maxInFlight.Load()
		if n <= cur || c.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if c.hold > 0 {
		select {
		case <-time.After(c.hold):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls[id]
	c.calls[id]++
	steps := c.scripts[id]
	if len(steps) == 0 {
		return nil, poller.ErrNotFound
	}
	if i >= len(steps) {
		i = len(steps) - 1
	}
	s := steps[i]
	if s.err != nil {
		return nil, s.err
	}
	job := &model.Job{ID: id, URL: "https://example.com/", Status: s.status, Error: s.reason}
	if s.status == model.JobComplete {
		job.Result = testutil.SampleReport("https://example.com/", 77)
	}
	return job, nil
}

func (c *scriptedClient) StartJob(context.Context, string, bool) (*poller.StartResponse, error) {
	return nil, errors.New("not used")
}

func (c *scriptedClient) SaveReport(_ context.Context, in reports.SaveInput) (*reports.SaveResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves = append(c.saves, in)
	return &reports.SaveResult{Success: true, Key: "k1", Report: in.Report}, nil
}

func (c *scriptedClient) callCount(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}

func (c *scriptedClient) saveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.saves)
}

// recorder is a Handler that records every callback.
type recorder struct {
	mu       sync.Mutex
	progress []model.JobStatus
	outcomes []string
	result   *model.ReportResult
	reason   string
	done     chan string
}

func newRecorder() *recorder { return &recorder{done: make(chan string, 8)} }

func (r *recorder) OnProgress(_ string, s model.JobStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, s)
}

func (r *recorder) OnComplete(_ string, res *model.ReportResult) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, "complete")
	r.result = res
	r.mu.Unlock()
	r.done <- "complete"
}

func (r *recorder) OnFailed(_ string, reason string) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, "failed")
	r.reason = reason
	r.mu.Unlock()
	r.done <- "failed"
}

func (r *recorder) OnNotFound(string) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, "not_found")
	r.mu.Unlock()
	r.done <- "not_found"
}

func (r *recorder) wait(t *testing.T) string {
	t.Helper()
	select {
	case o := <-r.done:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("no outcome within 5s")
		return ""
	}
}

func newPoller(t *testing.T, c poller.Client, h poller.Handler, save bool) *poller.Poller {
	t.Helper()
	p, err := poller.New(c, poller.Config{Interval: 5 * time.Millisecond, SaveOnComplete: save}, h, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("poller.New: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func waitInactive(t *testing.T, p *poller.Poller) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(p.Active()) == 0 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("still polling %v", p.Active())
}

// ─── Outcomes ──────────────────────────────────────────────────────────

func TestPoller_ProgressThenComplete(t *testing.T) {
	t.Parallel()
	c := newScriptedClient()
	c.script("j1", step{status: model.JobPending}, step{status: model.JobRunning}, step{status: model.JobComplete})
	rec := newRecorder()
	p := newPoller(t, c, rec, true)

	p.Start("j1")
	if got := rec.wait(t); got != "complete" {
		t.Fatalf("outcome = %s, want complete", got)
	}
	waitInactive(t, p)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.progress) != 2 || rec.progress[0] != model.JobPending || rec.progress[1] != model.JobRunning {
		t.Errorf("progress = %v", rec.progress)
	}
	if rec.result == nil || rec.result.Score != 77 {
		t.Errorf("result = %+v", rec.result)
	}
	if n := c.saveCount(); n != 1 {
		t.Errorf("saves = %d, want 1", n)
	}
	if c.saves[0].URL != "https://example.com/" || len(c.saves[0].Report) == 0 {
		t.Errorf("save input = %+v", c.saves[0])
	}
}

func TestPoller_CompleteWithoutSave(t *testing.T) {
	t.Parallel()
	c := newScriptedClient()
	c.script("j1", step{status: model.JobComplete})
	rec := newRecorder()
	p := newPoller(t, c, rec, false)

	p.Start("j1")
	rec.wait(t)
	waitInactive(t, p)
	if n := c.saveCount(); n != 0 {
		t.Errorf("saves = %d, want 0", n)
	}
}

func TestPoller_FailedStopsAndIsNeverRetried(t *testing.T) {
	t.Parallel()
	c := newScriptedClient()
	c.script("j1", step{status: model.JobRunning}, step{status: model.JobFailed, reason: "HTTP 503 from target"})
	rec := newRecorder()
	p := newPoller(t, c, rec, true)

	p.Start("j1")
	if got := rec.wait(t); got != "failed" {
		t.Fatalf("outcome = %s, want failed", got)
	}
	waitInactive(t, p)
	calls := c.callCount("j1")
	time.Sleep(30 * time.Millisecond)
	if c.callCount("j1") != calls {
		t.Errorf("polling continued after failure: %d -> %d calls", calls, c.callCount("j1"))
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.reason != "HTTP 503 from target" {
		t.Errorf("reason = %q", rec.reason)
	}
	if c.saveCount() != 0 {
		t.Error("failed job was saved")
	}
}

func TestPoller_NotFound(t *testing.T) {
	t.Parallel()
	c := newScriptedClient()
	rec := newRecorder()
	p := newPoller(t, c, rec, false)

	p.Start("ghost")
	if got := rec.wait(t); got != "not_found" {
		t.Fatalf("outcome = %s, want not_found", got)
	}
	waitInactive(t, p)
	if n := c.callCount("ghost"); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestPoller_TransportErrorIsRetried(t *testing.T) {
	t.Parallel()
	c := newScriptedClient()
	c.script("j1",
		step{err: errors.New("connection reset")},
		step{err: errors.New("connection reset")},
		step{status: model.JobComplete})
	rec := newRecorder()
	p := newPoller(t, c, rec, false)

	p.Start("j1")
	if got := rec.wait(t); got != "complete" {
		t.Fatalf("outcome = %s, want complete", got)
	}
	if n := c.callCount("j1"); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────────

func TestPoller_StartIsIdempotentPerJob(t *testing.T) {
	t.Parallel()
	c := newScriptedClient()
	c.hold = 10 * time.Millisecond
	c.script("j1", step{status: model.JobRunning})
	p := newPoller(t, c, newRecorder(), false)

	cancel := p.Start("j1")
	noop := p.Start("j1")
	p.Start("j1")

	time.Sleep(60 * time.Millisecond)
	if m := c.maxInFlight.Load(); m != 1 {
		t.Errorf("max concurrent polls = %d, want 1", m)
	}
	if got := p.Active(); len(got) != 1 || got[0] != "j1" {
		t.Errorf("Active() = %v", got)
	}

	noop()
	if len(p.Active()) != 1 {
		t.Error("canceller of a duplicate Start stopped the loop")
	}
	cancel()
	waitInactive(t, p)
}

func TestPoller_CancelIsIdempotentAndSilences(t *testing.T) {
	t.Parallel()
	c := newScriptedClient()
	c.script("j1", step{status: model.JobRunning})
	rec := newRecorder()
	p := newPoller(t, c, rec, false)

	cancel := p.Start("j1")
	time.Sleep(15 * time.Millisecond)
	cancel()
	cancel()
	waitInactive(t, p)

	calls := c.callCount("j1")
	time.Sleep(30 * time.Millisecond)
	if c.callCount("j1") != calls {
		t.Errorf("polls after cancel: %d -> %d", calls, c.callCount("j1"))
	}
	select {
	case o := <-rec.done:
		t.Errorf("unexpected outcome %s after cancel", o)
	default:
	}

	// the id can be polled again after cancellation
	c.script("j1", step{status: model.JobComplete})
	p.Start("j1")
	if got := rec.wait(t); got != "complete" {
		t.Errorf("restart outcome = %s", got)
	}
}

func TestPoller_CloseStopsEverything(t *testing.T) {
	t.Parallel()
	c := newScriptedClient()
	c.script("a", step{status: model.JobRunning})
	c.script("b", step{status: model.JobPending})
	p, err := poller.New(c, poller.Config{Interval: 5 * time.Millisecond}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	p.Start("a")
	p.Start("b")
	p.Close()

	if got := p.Active(); len(got) != 0 {
		t.Errorf("Active() after Close = %v", got)
	}
	p.Start("c")
	if got := p.Active(); len(got) != 0 {
		t.Errorf("Start after Close began polling: %v", got)
	}
}

func TestPoller_CloseFromOnComplete(t *testing.T) {
	t.Parallel()
	c := newScriptedClient()
	c.script("done", step{status: model.JobComplete})
	c.script("busy", step{status: model.JobRunning})

	var p *poller.Poller
	ready := make(chan struct{})
	closed := make(chan struct{})
	h := poller.HandlerFuncs{
		Complete: func(string, *model.ReportResult) {
			<-ready
			p.Close()
			close(closed)
		},
	}
	p, err := poller.New(c, poller.Config{Interval: 5 * time.Millisecond, SaveOnComplete: true}, h, nil)
	if err != nil {
		t.Fatal(err)
	}
	p.Start("busy")
	p.Start("done")
	close(ready)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close called from OnComplete did not return")
	}
	if got := p.Active(); len(got) != 0 {
		t.Errorf("Active() after Close = %v", got)
	}
	if n := c.saveCount(); n != 1 {
		t.Errorf("saves = %d, want 1", n)
	}
}

func TestNew_RequiresClient(t *testing.T) {
	t.Parallel()
	if _, err := poller.New(nil, poller.DefaultConfig(), nil, nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}
