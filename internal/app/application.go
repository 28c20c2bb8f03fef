package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/raysh454/a11yscan/internal/blobstore"
	"github.com/raysh454/a11yscan/internal/cache"
	"github.com/raysh454/a11yscan/internal/jobs"
	"github.com/raysh454/a11yscan/internal/logging"
	"github.com/raysh454/a11yscan/internal/reports"
	"github.com/raysh454/a11yscan/internal/scanner"
	"github.com/raysh454/a11yscan/internal/webclient"
)

// Application is the runtime state container. It owns every long-lived
// component and their background loops; the server and CLI only hold it.
type Application struct {
	Config *Config
	Logger logging.Logger

	Orch    *Orchestrator
	Jobs    *jobs.Store
	Cache   *cache.ResultCache
	Reports *reports.Store

	client webclient.WebClient
	db     *sql.DB

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customizes NewApplication.
type Option func(*options)

type options struct {
	engine scanner.Engine
}

// WithEngine replaces the built-in accessibility engine.
func WithEngine(e scanner.Engine) Option {
	return func(o *options) { o.engine = e }
}

// NewApplication builds every component from cfg. Call Start to run the
// background sweepers and Shutdown to release everything.
func NewApplication(cfg *Config, logger logging.Logger, opts ...Option) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewStdoutLogger("a11yscan")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	root, err := expandPath(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("expanding storage root path: %w", err)
	}
	cfg.StorageRoot = root
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root %s: %w", root, err)
	}

	durable, err := blobstore.NewObjectStore(filepath.Join(root, "cache"))
	if err != nil {
		return nil, fmt.Errorf("opening durable cache tier: %w", err)
	}
	rc, err := cache.New(cfg.Cache, durable, logger)
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}

	a := &Application{
		Config: cfg,
		Logger: logger,
		Cache:  rc,
		Jobs:   jobs.NewStore(cfg.Jobs, logger),
	}

	engine := o.engine
	if engine == nil {
		client, err := webclient.NewWebClient(cfg.WebClient, logger)
		if err != nil {
			return nil, fmt.Errorf("creating webclient: %w", err)
		}
		a.client = client
		engine, err = scanner.NewAccessibilityEngine(cfg.Scanner, client, logger)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("creating engine: %w", err)
		}
	}

	dbPath := cfg.ReportsDB
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(root, dbPath)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("opening reports database: %w", err)
	}
	a.db = db
	a.Reports, err = reports.NewStore(db, logger)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("creating reports store: %w", err)
	}

	a.Orch = NewOrchestrator(cfg, a.Jobs, rc, engine, a.Reports, logger)
	a.ctx, a.cancel = context.WithCancel(context.Background())
	return a, nil
}

// Start runs the job and cache sweepers until Shutdown.
func (a *Application) Start() error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application starting",
		logging.Field{Key: "storage_root", Value: a.Config.StorageRoot})

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.Jobs.Run(a.ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.Cache.Run(a.ctx)
	}()
	return nil
}

// Shutdown stops the orchestrator first (bounded by ctx), then the sweepers,
// then closes the database and web client.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application shutdown initiated")

	var errs []error
	if err := a.Orch.Shutdown(ctx); err != nil {
		a.Logger.Warn("orchestrator shutdown returned error", logging.Err(err))
		errs = append(errs, err)
	}

	a.cancel()
	a.wg.Wait()
	errs = append(errs, a.closeResources())
	return errors.Join(errs...)
}

func (a *Application) closeResources() error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db = nil
	}
	if a.client != nil {
		errs = append(errs, a.client.Close())
		a.client = nil
	}
	return errors.Join(errs...)
}

func expandPath(p string) (string, error) {
	if len(p) > 0 && p[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, p[1:]), nil
	}
	return p, nil
}
