package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/raysh454/a11yscan/internal/app"
	"github.com/raysh454/a11yscan/internal/cache"
	"github.com/raysh454/a11yscan/internal/logging"
	"github.com/raysh454/a11yscan/internal/model"
	"github.com/raysh454/a11yscan/internal/reports"
)

//go:embed schema.graphql
var schemaSDL string

func newSchema(orch *app.Orchestrator, logger logging.Logger) (*graphql.Schema, error) {
	return graphql.ParseSchema(schemaSDL, &resolver{orch: orch, logger: logger},
		graphql.MaxParallelism(8))
}

func (s *Server) graphqlHandler() http.Handler {
	return &relay.Handler{Schema: s.schema}
}

// JSON is the custom scalar carrying raw report documents.
type JSON struct {
	raw json.RawMessage
}

func (JSON) ImplementsGraphQLType(name string) bool { return name == "JSON" }

func (j *JSON) UnmarshalGraphQL(input any) error {
	b, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("JSON scalar: %w", err)
	}
	j.raw = b
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j.raw) == 0 {
		return []byte("null"), nil
	}
	return j.raw, nil
}

func jsonOf(v any) (*JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &JSON{raw: b}, nil
}

func int32Of(n int64) int32 {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(n)
}

type resolver struct {
	orch   *app.Orchestrator
	logger logging.Logger
}

// Queries

func (r *resolver) StartAccessibilityReportJob(ctx context.Context, args struct {
	URL      string
	UseCache *bool
}) (*startJobResolver, error) {
	useCache := args.UseCache == nil || *args.UseCache
	res, err := r.orch.StartJob(ctx, args.URL, useCache)
	if err != nil {
		r.logger.Warn("startAccessibilityReportJob", logging.Field{Key: "url", Value: args.URL}, logging.Err(err))
		return nil, err
	}
	if res.Kind() == app.ResultCached {
		out, err := jsonOf(res.Cached.Payload)
		if err != nil {
			return nil, err
		}
		return &startJobResolver{
			id:     app.CachedJobID(res.URL),
			url:    res.URL,
			status: model.JobComplete,
			cached: true,
			result: out,
		}, nil
	}
	return &startJobResolver{id: res.JobID, url: res.URL, status: model.JobPending}, nil
}

func (r *resolver) GetAccessibilityReportByJobId(ctx context.Context, args struct{ JobID string }) (*jobReportResolver, error) {
	job, err := r.orch.GetJob(ctx, args.JobID)
	var nf *app.NotFoundError
	switch {
	case errors.As(err, &nf):
		return nil, nil
	case err != nil:
		r.logger.Error("getAccessibilityReportByJobId", logging.Field{Key: "job_id", Value: args.JobID}, logging.Err(err))
		return nil, err
	}
	return &jobReportResolver{job: job}, nil
}

func (r *resolver) GetCacheStatistics() *cacheStatsResolver {
	return &cacheStatsResolver{stats: r.orch.CacheStatistics()}
}

// Mutations

func (r *resolver) SaveAccessibilityReport(ctx context.Context, args struct {
	Report         JSON
	URL            string
	AllowedSitesID *int32
	Key            *string
}) (*saveReportResolver, error) {
	in := reports.SaveInput{Report: args.Report.raw, URL: args.URL}
	if args.AllowedSitesID != nil {
		id := int(*args.AllowedSitesID)
		in.AllowedSitesID = &id
	}
	if args.Key != nil {
		in.Key = *args.Key
	}
	res, err := r.orch.SaveReport(ctx, in)
	if err != nil {
		r.logger.Warn("saveAccessibilityReport", logging.Field{Key: "url", Value: args.URL}, logging.Err(err))
		return nil, err
	}
	return &saveReportResolver{res: res}, nil
}

func (r *resolver) ClearMemoryCache() *operationResolver {
	n := r.orch.ClearMemoryCache()
	return &operationResolver{success: true, message: clearedMessage(n)}
}

func (r *resolver) ResetCacheStatistics() *operationResolver {
	r.orch.ResetCacheStatistics()
	return &operationResolver{success: true, message: "Cache statistics reset"}
}

// Object resolvers

type startJobResolver struct {
	id     string
	url    string
	status model.JobStatus
	cached bool
	result *JSON
}

func (s *startJobResolver) JobID() string  { return s.id }
func (s *startJobResolver) URL() string    { return s.url }
func (s *startJobResolver) Status() string { return string(s.status) }
func (s *startJobResolver) Cached() bool   { return s.cached }
func (s *startJobResolver) Result() *JSON  { return s.result }

type jobReportResolver struct {
	job *model.Job
}

func (j *jobReportResolver) JobID() string  { return j.job.ID }
func (j *jobReportResolver) URL() string    { return j.job.URL }
func (j *jobReportResolver) Status() string { return string(j.job.Status) }

func (j *jobReportResolver) Result() (*JSON, error) {
	if j.job.Result == nil {
		return nil, nil
	}
	return jsonOf(j.job.Result)
}

func (j *jobReportResolver) Error() *string {
	if j.job.Error == "" {
		return nil
	}
	e := j.job.Error
	return &e
}

func (j *jobReportResolver) CreatedAt() string {
	return j.job.CreatedAt.UTC().Format(time.RFC3339)
}

type cacheStatsResolver struct {
	stats cache.Statistics
}

func (c *cacheStatsResolver) MemoryHits() int32    { return int32Of(c.stats.MemoryHits) }
func (c *cacheStatsResolver) R2Hits() int32        { return int32Of(c.stats.R2Hits) }
func (c *cacheStatsResolver) Misses() int32        { return int32Of(c.stats.Misses) }
func (c *cacheStatsResolver) TotalRequests() int32 { return int32Of(c.stats.TotalRequests) }
func (c *cacheStatsResolver) MemorySize() int32    { return int32Of(int64(c.stats.MemorySize)) }
func (c *cacheStatsResolver) HitRate() float64     { return c.stats.HitRate() }
func (c *cacheStatsResolver) Effectiveness() string {
	return c.stats.Effectiveness()
}

func (c *cacheStatsResolver) LastCleanup() *string {
	if c.stats.LastCleanup.IsZero() {
		return nil
	}
	s := c.stats.LastCleanup.UTC().Format(time.RFC3339)
	return &s
}

type saveReportResolver struct {
	res *reports.SaveResult
}

func (s *saveReportResolver) Success() bool { return s.res.Success }

func (s *saveReportResolver) Key() *string {
	if s.res.Key == "" {
		return nil
	}
	k := s.res.Key
	return &k
}

func (s *saveReportResolver) Report() *JSON {
	if len(s.res.Report) == 0 {
		return nil
	}
	return &JSON{raw: s.res.Report}
}

type operationResolver struct {
	success bool
	message string
}

func (o *operationResolver) Success() bool   { return o.success }
func (o *operationResolver) Message() string { return o.message }
