package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	graphql "github.com/graph-gophers/graphql-go"

	"github.com/raysh454/a11yscan/internal/app"
	"github.com/raysh454/a11yscan/internal/jobs"
	"github.com/raysh454/a11yscan/internal/logging"
	"github.com/raysh454/a11yscan/internal/model"
	"github.com/raysh454/a11yscan/internal/reports"
)

// Server is the HTTP, GraphQL and WebSocket surface over an Orchestrator.
type Server struct {
	cfg          Config
	orchestrator *app.Orchestrator
	router       chi.Router
	upgrader     websocket.Upgrader
	validate     *validator.Validate
	schema       *graphql.Schema
	logger       logging.Logger
}

// NewServer wires routes around orch. The orchestrator's lifecycle stays with
// the caller.
func NewServer(cfg Config, orch *app.Orchestrator) (*Server, error) {
	if orch == nil {
		return nil, errors.New("server: nil orchestrator")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	schema, err := newSchema(orch, logger)
	if err != nil {
		return nil, fmt.Errorf("parsing graphql schema: %w", err)
	}

	s := &Server{
		cfg:          cfg,
		orchestrator: orch,
		router:       chi.NewRouter(),
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		schema:       schema,
		logger:       logger,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	s.routes()
	return s, nil
}

// Orchestrator returns the underlying orchestrator for advanced use (tests, etc.).
func (s *Server) Orchestrator() *app.Orchestrator {
	return s.orchestrator
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/graphql", s.optionsHandler("POST"))
	r.Options("/jobs", s.optionsHandler("GET, POST"))
	r.Options("/jobs/{jobID}", s.optionsHandler("GET, DELETE"))
	r.Options("/cache/stats", s.optionsHandler("GET"))
	r.Options("/cache/clear", s.optionsHandler("POST"))
	r.Options("/cache/reset", s.optionsHandler("POST"))
	r.Options("/reports", s.optionsHandler("GET, POST"))
	r.Options("/reports/compare", s.optionsHandler("GET"))
	r.Options("/reports/{key}", s.optionsHandler("GET"))
	r.Options("/ws/jobs/{jobID}", s.optionsHandler("GET"))

	r.Get("/health", s.handleHealth)
	r.Get("/swagger/*", swaggerHandler())

	// GraphQL
	r.Method(http.MethodPost, "/graphql", s.graphqlHandler())

	// Jobs
	r.Post("/jobs", s.handleStartJob)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{jobID}", s.handleGetJob)
	r.Delete("/jobs/{jobID}", s.handleCancelJob)

	// Cache
	r.Get("/cache/stats", s.handleCacheStats)
	r.Post("/cache/clear", s.handleClearCache)
	r.Post("/cache/reset", s.handleResetCacheStats)

	// Saved reports
	r.Post("/reports", s.handleSaveReport)
	r.Get("/reports", s.handleListReports)
	r.Get("/reports/compare", s.handleCompareReports)
	r.Get("/reports/{key}", s.handleGetReport)

	// WebSocket for job progress
	r.Get("/ws/jobs/{jobID}", s.handleJobWS)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or ""
// when it is not allowed.
func (s *Server) allowOrigin(origin string) string {
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return s.allowOrigin(origin) != ""
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body_bytes", Value: len(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	readHeader := s.cfg.ReadHeaderTimeout
	if readHeader <= 0 {
		readHeader = 10 * time.Second
	}
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: readHeader,
		WriteTimeout:      0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	if v == nil {
		w.WriteHeader(status)
		return
	}
	render.Status(r, status)
	render.JSON(w, r, v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, ErrorResponse{Error: msg})
}

// decodeAndValidate reads a JSON body into dst and runs the validator over it.
// It writes the 400 response itself and reports whether the handler may go on.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		s.logger.Warn("decoding request body", logging.Err(err))
		writeError(w, r, http.StatusBadRequest, "invalid JSON")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Fields: fields})
			return false
		}
		writeError(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// statusFor maps orchestrator errors onto HTTP statuses.
func statusFor(err error) int {
	var nf *app.NotFoundError
	switch {
	case errors.As(err, &nf), errors.Is(err, reports.ErrReportNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrInvalidURL), errors.Is(err, reports.ErrInvalidReport):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrAlreadyTerminal):
		return http.StatusConflict
	case errors.Is(err, app.ErrShutdown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, what string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(what, logging.Err(err))
	} else {
		s.logger.Warn(what, logging.Err(err))
	}
	writeError(w, r, status, err.Error())
}

// jobIDParam returns the unescaped {jobID}. Cached ids embed a URL and
// arrive path-escaped.
func jobIDParam(r *http.Request) string {
	raw := chi.URLParam(r, "jobID")
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

// --- HTTP handlers ---

// @Summary Liveness probe
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// Jobs

// @Summary Start an accessibility scan or serve it from cache
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body StartJobRequest true "Scan request"
// @Success 200 {object} StartJobResponse "Cached report"
// @Success 202 {object} StartJobResponse "Job started"
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse "Shutting down"
// @Router /jobs [post]
func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var body StartJobRequest
	if !s.decodeAndValidate(w, r, &body) {
		return
	}
	useCache := body.UseCache == nil || *body.UseCache

	res, err := s.orchestrator.StartJob(r.Context(), body.URL, useCache)
	if err != nil {
		s.fail(w, r, "starting job", err)
		return
	}

	if res.Kind() == app.ResultCached {
		s.logger.Info("served cached report",
			logging.Field{Key: "url", Value: res.URL},
			logging.Field{Key: "tier", Value: string(res.Tier)})
		writeJSON(w, r, http.StatusOK, StartJobResponse{
			JobID:  app.CachedJobID(res.URL),
			URL:    res.URL,
			Status: model.JobComplete,
			Cached: true,
			Tier:   res.Tier,
			Result: res.Cached.Payload,
		})
		return
	}

	s.logger.Info("started job", logging.Field{Key: "job_id", Value: res.JobID}, logging.Field{Key: "url", Value: res.URL})
	writeJSON(w, r, http.StatusAccepted, StartJobResponse{
		JobID:  res.JobID,
		URL:    res.URL,
		Status: model.JobPending,
	})
}

// @Summary Get a job
// @Tags jobs
// @Produce json
// @Param jobID path string true "Job ID, path-escaped for cached ids"
// @Success 200 {object} model.Job
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{jobID} [get]
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := jobIDParam(r)
	job, err := s.orchestrator.GetJob(r.Context(), jobID)
	if err != nil {
		s.fail(w, r, "getting job", err)
		return
	}
	writeJSON(w, r, http.StatusOK, job)
}

// @Summary Cancel a running job
// @Tags jobs
// @Param jobID path string true "Job ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Already finished"
// @Router /jobs/{jobID} [delete]
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := jobIDParam(r)
	if err := s.orchestrator.CancelJob(jobID); err != nil {
		s.fail(w, r, "canceling job", err)
		return
	}
	s.logger.Info("canceled job", logging.Field{Key: "job_id", Value: jobID})
	writeJSON(w, r, http.StatusNoContent, nil)
}

// @Summary List tracked jobs
// @Tags jobs
// @Produce json
// @Success 200 {array} model.Job
// @Router /jobs [get]
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.orchestrator.ListJobs()
	s.logger.Debug("listed jobs", logging.Field{Key: "count", Value: len(jobs)})
	writeJSON(w, r, http.StatusOK, jobs)
}

// Cache

// @Summary Cache statistics
// @Tags cache
// @Produce json
// @Success 200 {object} CacheStatsResponse
// @Router /cache/stats [get]
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, newCacheStatsResponse(s.orchestrator.CacheStatistics()))
}

// @Summary Clear the in-memory cache tier
// @Tags cache
// @Produce json
// @Success 200 {object} OperationResponse
// @Router /cache/clear [post]
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	n := s.orchestrator.ClearMemoryCache()
	s.logger.Info("cleared memory cache", logging.Field{Key: "entries", Value: n})
	writeJSON(w, r, http.StatusOK, OperationResponse{Success: true, Message: clearedMessage(n)})
}

// @Summary Reset cache hit/miss counters
// @Tags cache
// @Produce json
// @Success 200 {object} OperationResponse
// @Router /cache/reset [post]
func (s *Server) handleResetCacheStats(w http.ResponseWriter, r *http.Request) {
	s.orchestrator.ResetCacheStatistics()
	writeJSON(w, r, http.StatusOK, OperationResponse{Success: true, Message: "Cache statistics reset"})
}

func clearedMessage(n int) string {
	return fmt.Sprintf("Memory cache cleared (%d entries)", n)
}

// Saved reports

// @Summary Save a report
// @Tags reports
// @Accept json
// @Produce json
// @Param request body SaveReportRequest true "Report to save"
// @Success 201 {object} reports.SaveResult
// @Failure 400 {object} ErrorResponse
// @Router /reports [post]
func (s *Server) handleSaveReport(w http.ResponseWriter, r *http.Request) {
	var body SaveReportRequest
	if !s.decodeAndValidate(w, r, &body) {
		return
	}
	res, err := s.orchestrator.SaveReport(r.Context(), reports.SaveInput{
		Report:         body.Report,
		URL:            body.URL,
		AllowedSitesID: body.AllowedSitesID,
		Key:            body.Key,
	})
	if err != nil {
		s.fail(w, r, "saving report", err)
		return
	}
	s.logger.Info("saved report", logging.Field{Key: "key", Value: res.Key})
	writeJSON(w, r, http.StatusCreated, res)
}

// @Summary Get a saved report
// @Tags reports
// @Produce json
// @Param key path string true "Report key"
// @Success 200 {object} reports.SavedReport
// @Failure 404 {object} ErrorResponse
// @Router /reports/{key} [get]
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	rep, err := s.orchestrator.GetReport(r.Context(), key)
	if err != nil {
		s.fail(w, r, "getting report", err)
		return
	}
	writeJSON(w, r, http.StatusOK, rep)
}

// @Summary List saved reports for a URL, newest first
// @Tags reports
// @Produce json
// @Param url query string true "Page URL"
// @Param limit query int false "Maximum number of reports"
// @Success 200 {array} reports.SavedReport
// @Failure 400 {object} ErrorResponse
// @Router /reports [get]
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, r, http.StatusBadRequest, "missing url query parameter")
		return
	}
	limit := 0
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, err := strconv.Atoi(ls); err == nil && v > 0 {
			limit = v
		}
	}

	list, err := s.orchestrator.ListReports(r.Context(), target, limit)
	if err != nil {
		s.fail(w, r, "listing reports", err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

// @Summary Diff two saved reports
// @Tags reports
// @Produce json
// @Param base query string true "Base report key"
// @Param head query string true "Head report key"
// @Success 200 {object} reports.ReportDiff
// @Failure 404 {object} ErrorResponse
// @Router /reports/compare [get]
func (s *Server) handleCompareReports(w http.ResponseWriter, r *http.Request) {
	base, head := r.URL.Query().Get("base"), r.URL.Query().Get("head")
	if base == "" || head == "" {
		writeError(w, r, http.StatusBadRequest, "base and head query parameters are required")
		return
	}
	diff, err := s.orchestrator.CompareReports(r.Context(), base, head)
	if err != nil {
		s.fail(w, r, "comparing reports", err)
		return
	}
	writeJSON(w, r, http.StatusOK, diff)
}
