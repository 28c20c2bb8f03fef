// Package reports persists accessibility reports that users chose to keep,
// independent of the result cache's lifetime.
package reports

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raysh454/a11yscan/internal/logging"
	"github.com/raysh454/a11yscan/internal/utils"
)

//go:embed schema.sql
var schemaFS embed.FS

var (
	ErrReportNotFound = errors.New("report not found")
	ErrInvalidReport  = errors.New("invalid report")
)

// SavedReport is one persisted report.
type SavedReport struct {
	Key            string          `json:"key"`
	URL            string          `json:"url"`
	AllowedSitesID *int            `json:"allowedSitesId,omitempty"`
	Report         json.RawMessage `json:"report"`
	Score          *float64        `json:"score,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// SaveInput is the argument of Save. Key is optional; a uuid is assigned when empty.
type SaveInput struct {
	Report         json.RawMessage `json:"report" validate:"required"`
	URL            string          `json:"url" validate:"required"`
	AllowedSitesID *int            `json:"allowed_sites_id,omitempty" validate:"omitempty,gte=0"`
	Key            string          `json:"key,omitempty" validate:"omitempty,max=128"`
}

type SaveResult struct {
	Success bool            `json:"success"`
	Key     string          `json:"key"`
	Report  json.RawMessage `json:"report"`
}

// Store keeps saved reports in SQLite.
type Store struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time
}

// NewStore applies the embedded schema to db and returns a Store.
func NewStore(db *sql.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.With(logging.Field{Key: "component", Value: "reports"}),
		now:    time.Now,
	}, nil
}

// Save inserts or replaces the report under in.Key. Re-saving an existing key
// keeps its created_at.
func (s *Store) Save(ctx context.Context, in SaveInput) (*SaveResult, error) {
	if len(in.Report) == 0 || !json.Valid(in.Report) {
		return nil, fmt.Errorf("%w: report must be valid JSON", ErrInvalidReport)
	}
	url, err := utils.NormalizeTarget(in.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	key := strings.TrimSpace(in.Key)
	if key == "" {
		key = uuid.New().String()
	}

	var score sql.NullFloat64
	var probe struct {
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal(in.Report, &probe); err == nil && probe.Score != nil {
		score = sql.NullFloat64{Float64: *probe.Score, Valid: true}
	}
	var sites sql.NullInt64
	if in.AllowedSitesID != nil {
		sites = sql.NullInt64{Int64: int64(*in.AllowedSitesID), Valid: true}
	}

	now := s.now().UnixMilli()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO saved_reports (key, url, allowed_sites_id, report, score, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET
             url = excluded.url,
             allowed_sites_id = excluded.allowed_sites_id,
             report = excluded.report,
             score = excluded.score,
             updated_at = excluded.updated_at`,
		key, url, sites, string(in.Report), score, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert report: %w", err)
	}

	s.logger.Info("report saved",
		logging.Field{Key: "key", Value: key},
		logging.Field{Key: "url", Value: url})
	return &SaveResult{Success: true, Key: key, Report: in.Report}, nil
}

const selectColumns = `SELECT key, url, allowed_sites_id, report, score, created_at, updated_at FROM saved_reports`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*SavedReport, error) {
	var (
		r       SavedReport
		sites   sql.NullInt64
		body    string
		score   sql.NullFloat64
		created int64
		updated int64
	)
	if err := row.Scan(&r.Key, &r.URL, &sites, &body, &score, &created, &updated); err != nil {
		return nil, err
	}
	if sites.Valid {
		v := int(sites.Int64)
		r.AllowedSitesID = &v
	}
	if score.Valid {
		v := score.Float64
		r.Score = &v
	}
	r.Report = json.RawMessage(body)
	r.CreatedAt = time.UnixMilli(created).UTC()
	r.UpdatedAt = time.UnixMilli(updated).UTC()
	return &r, nil
}

// Get returns the report saved under key.
func (s *Store) Get(ctx context.Context, key string) (*SavedReport, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE key = ? LIMIT 1`, key)
	r, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrReportNotFound, key)
		}
		return nil, err
	}
	return r, nil
}

// ListByURL returns reports for a page, most recently updated first.
// limit <= 0 means no limit.
func (s *Store) ListByURL(ctx context.Context, rawURL string, limit int) ([]SavedReport, error) {
	url, err := utils.NormalizeTarget(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE url = ? ORDER BY updated_at DESC, key ASC LIMIT ?`, url, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SavedReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Latest returns the most recently updated report for a page.
func (s *Store) Latest(ctx context.Context, rawURL string) (*SavedReport, error) {
	list, err := s.ListByURL(ctx, rawURL, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, rawURL)
	}
	return &list[0], nil
}

// Delete removes a saved report. Deleting an unknown key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM saved_reports WHERE key = ?`, key)
	return err
}
