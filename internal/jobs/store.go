// Package jobs holds the lifecycle state of accessibility scan jobs.
//
// Jobs move pending -> running -> {complete, failed}. Terminal states are
// sinks: a second terminal write for the same id is rejected.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raysh454/a11yscan/internal/logging"
	"github.com/raysh454/a11yscan/internal/model"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrAlreadyTerminal   = errors.New("job already in terminal state")
	ErrInvalidTransition = errors.New("invalid job transition")
)

// Config controls retention of finished jobs.
type Config struct {
	// Retention is how long a job is kept after reaching a terminal state.
	Retention time.Duration `yaml:"retention"`

	// SweepInterval is how often Run drops expired jobs.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// EventBuffer is the per-subscriber channel capacity.
	EventBuffer int `yaml:"event_buffer"`
}

// DefaultConfig keeps finished jobs for an hour.
func DefaultConfig() Config {
	return Config{
		Retention:     time.Hour,
		SweepInterval: 5 * time.Minute,
		EventBuffer:   16,
	}
}

// Store is an in-memory, concurrency-safe job store.
type Store struct {
	cfg    Config
	logger logging.Logger
	now    func() time.Time

	mu     sync.RWMutex
	jobs   map[string]*model.Job
	subs   map[string][]chan model.JobEvent
	claims map[string]struct{}
}

// NewStore returns an empty Store. Zero config fields fall back to defaults.
func NewStore(cfg Config, logger logging.Logger) *Store {
	def := DefaultConfig()
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Store{
		cfg:    cfg,
		logger: logger.With(logging.Field{Key: "component", Value: "job-store"}),
		now:    func() time.Time { return time.Now().UTC() },
		jobs:   make(map[string]*model.Job),
		subs:   make(map[string][]chan model.JobEvent),
		claims: make(map[string]struct{}),
	}
}

// Create allocates a new pending job for url.
func (s *Store) Create(url string) *model.Job {
	job := &model.Job{
		ID:        uuid.New().String(),
		URL:       url,
		Status:    model.JobPending,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	s.logger.Debug("job created", logging.Field{Key: "job_id", Value: job.ID}, logging.Field{Key: "url", Value: url})
	return job.Clone()
}

// Get returns a copy of the job, or ErrJobNotFound if the id is unknown or expired.
func (s *Store) Get(id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok || s.expired(job, s.now()) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job.Clone(), nil
}

// List returns copies of all live jobs in no particular order.
func (s *Store) List() []*model.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := make([]*model.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if s.expired(j, now) {
			continue
		}
		out = append(out, j.Clone())
	}
	return out
}

// Len returns the number of stored jobs, including expired ones not yet swept.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// MarkRunning moves a pending job to running. Calling it on a running job is a no-op.
func (s *Store) MarkRunning(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	switch job.Status {
	case model.JobRunning:
		return nil
	case model.JobPending:
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, model.JobRunning)
	}

	job.Status = model.JobRunning
	job.StartedAt = s.now()
	s.emitLocked(job, model.JobEvent{JobID: id, Type: model.JobEventStatus, Status: model.JobRunning})
	return nil
}

// Complete records the result of a job. It succeeds once per job; later calls
// return ErrAlreadyTerminal and change nothing.
func (s *Store) Complete(id string, result *model.ReportResult) (*model.Job, error) {
	if result == nil {
		return nil, errors.New("jobs: nil result")
	}
	return s.finish(id, false, completeWith(result))
}

// Fail records a failure reason. Same once-only semantics as Complete.
func (s *Store) Fail(id string, reason string) (*model.Job, error) {
	return s.finish(id, false, failWith(reason))
}

// Claim reserves the terminal transition of job id without publishing it.
// While the claim is held the job keeps its visible status, and Complete or
// Fail from anyone else return ErrAlreadyTerminal. Finish the job through the
// returned Claim, or Release it.
func (s *Store) Claim(id string) (*Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, job.Status)
	}
	if _, held := s.claims[id]; held {
		return nil, fmt.Errorf("%w: %s is finishing", ErrAlreadyTerminal, id)
	}
	s.claims[id] = struct{}{}
	return &Claim{store: s, job: job.Clone()}, nil
}

// Claim is a reserved terminal transition. See Store.Claim.
type Claim struct {
	store *Store
	job   *model.Job
}

// Job is the job as it was when claimed.
func (c *Claim) Job() *model.Job { return c.job.Clone() }

// Complete publishes the result and closes subscriptions.
func (c *Claim) Complete(result *model.ReportResult) (*model.Job, error) {
	if result == nil {
		return nil, errors.New("jobs: nil result")
	}
	return c.store.finish(c.job.ID, true, completeWith(result))
}

// Fail publishes a failure.
func (c *Claim) Fail(reason string) (*model.Job, error) {
	return c.store.finish(c.job.ID, true, failWith(reason))
}

// Release gives the transition back without finishing the job.
func (c *Claim) Release() {
	c.store.mu.Lock()
	delete(c.store.claims, c.job.ID)
	c.store.mu.Unlock()
}

func completeWith(result *model.ReportResult) func(*model.Job) {
	return func(j *model.Job) {
		j.Status = model.JobComplete
		j.Result = result
	}
}

func failWith(reason string) func(*model.Job) {
	if reason == "" {
		reason = "scan failed"
	}
	return func(j *model.Job) {
		j.Status = model.JobFailed
		j.Error = reason
	}
}

func (s *Store) finish(id string, claimed bool, apply func(*model.Job)) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, job.Status)
	}
	if _, held := s.claims[id]; held != claimed {
		return nil, fmt.Errorf("%w: %s is finishing", ErrAlreadyTerminal, id)
	}
	delete(s.claims, id)

	apply(job)
	job.EndedAt = s.now()
	if job.StartedAt.IsZero() {
		job.StartedAt = job.EndedAt
	}

	ev := model.JobEvent{JobID: id, Type: model.JobEventStatus, Status: job.Status, Error: job.Error}
	if job.Result != nil {
		score := job.Result.Score
		ev.Type = model.JobEventResult
		ev.Score = &score
	}
	s.emitLocked(job, ev)
	s.closeSubsLocked(id)

	s.logger.Info("job finished",
		logging.Field{Key: "job_id", Value: id},
		logging.Field{Key: "status", Value: string(job.Status)})
	return job.Clone(), nil
}

// Subscribe returns a channel receiving events for job id and a function that
// unsubscribes. For an already finished job the channel is returned closed.
func (s *Store) Subscribe(id string) (<-chan model.JobEvent, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	ch := make(chan model.JobEvent, s.cfg.EventBuffer)
	if job.Status.IsTerminal() {
		close(ch)
		return ch, func() {}, nil
	}
	s.subs[id] = append(s.subs[id], ch)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			subs := s.subs[id]
			for i, c := range subs {
				if c == ch {
					s.subs[id] = append(subs[:i], subs[i+1:]...)
					close(ch)
					break
				}
			}
			if len(s.subs[id]) == 0 {
				delete(s.subs, id)
			}
		})
	}
	return ch, unsubscribe, nil
}

// emitLocked does a non-blocking send to every subscriber; events are dropped
// for subscribers whose buffer is full.
func (s *Store) emitLocked(job *model.Job, ev model.JobEvent) {
	ev.At = s.now()
	for _, ch := range s.subs[job.ID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Store) closeSubsLocked(id string) {
	for _, ch := range s.subs[id] {
		close(ch)
	}
	delete(s.subs, id)
}

// Sweep drops terminal jobs whose retention has elapsed and returns how many were removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, j := range s.jobs {
		if s.expired(j, now) {
			delete(s.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("swept expired jobs", logging.Field{Key: "removed", Value: removed})
	}
	return removed
}

// Run sweeps periodically until ctx is done.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

func (s *Store) expired(j *model.Job, now time.Time) bool {
	return j.Status.IsTerminal() && now.Sub(j.EndedAt) > s.cfg.Retention
}
