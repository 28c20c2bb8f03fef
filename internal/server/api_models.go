package server

import (
	"encoding/json"
	"time"

	"github.com/raysh454/a11yscan/internal/cache"
	"github.com/raysh454/a11yscan/internal/model"
)

// StartJobRequest starts a scan. UseCache defaults to true.
type StartJobRequest struct {
	URL      string `json:"url" validate:"required,max=2048"`
	UseCache *bool  `json:"use_cache,omitempty"`
}

// StartJobResponse is returned both for a fresh job (202) and for a cache
// hit (200, JobID "cached:<url>", Status complete, Result set).
type StartJobResponse struct {
	JobID  string              `json:"job_id"`
	URL    string              `json:"url"`
	Status model.JobStatus     `json:"status"`
	Cached bool                `json:"cached"`
	Tier   cache.Tier          `json:"tier,omitempty"`
	Result *model.ReportResult `json:"result,omitempty"`
}

// SaveReportRequest persists a report. Key is optional.
type SaveReportRequest struct {
	Report         json.RawMessage `json:"report" validate:"required"`
	URL            string          `json:"url" validate:"required,max=2048"`
	AllowedSitesID *int            `json:"allowed_sites_id,omitempty" validate:"omitempty,gte=0"`
	Key            string          `json:"key,omitempty" validate:"omitempty,max=128"`
}

// CacheStatsResponse mirrors getCacheStatistics.
type CacheStatsResponse struct {
	MemoryHits    int64      `json:"memoryHits"`
	R2Hits        int64      `json:"r2Hits"`
	Misses        int64      `json:"misses"`
	TotalRequests int64      `json:"totalRequests"`
	MemorySize    int        `json:"memorySize"`
	LastCleanup   *time.Time `json:"lastCleanup"`
	HitRate       float64    `json:"hitRate"`
	Effectiveness string     `json:"effectiveness"`
}

func newCacheStatsResponse(s cache.Statistics) CacheStatsResponse {
	out := CacheStatsResponse{
		MemoryHits:    s.MemoryHits,
		R2Hits:        s.R2Hits,
		Misses:        s.Misses,
		TotalRequests: s.TotalRequests,
		MemorySize:    s.MemorySize,
		HitRate:       s.HitRate(),
		Effectiveness: s.Effectiveness(),
	}
	if !s.LastCleanup.IsZero() {
		t := s.LastCleanup
		out.LastCleanup = &t
	}
	return out
}

// OperationResponse answers the cache maintenance operations.
type OperationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
