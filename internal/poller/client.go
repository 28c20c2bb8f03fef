package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/raysh454/a11yscan/internal/logging"
	"github.com/raysh454/a11yscan/internal/model"
	"github.com/raysh454/a11yscan/internal/reports"
	"github.com/raysh454/a11yscan/internal/webclient"
)

// GraphQL operation names. They are the wire contract with the server.
const (
	OpStartJob   = "startAccessibilityReportJob"
	OpGetReport  = "getAccessibilityReportByJobId"
	OpSaveReport = "saveAccessibilityReport"
)

const (
	BaseTimeout        = 70 * time.Second
	ReportQueryTimeout = 180 * time.Second
)

// TimeoutFor returns the transport timeout for a GraphQL operation. The
// report query can be slow server side and gets the extended budget.
func TimeoutFor(operation string) time.Duration {
	if operation == OpGetReport {
		return ReportQueryTimeout
	}
	return BaseTimeout
}

// ErrNotFound is returned by GetJob when the server answers null for the id.
var ErrNotFound = errors.New("job not found")

// StartResponse is the server's answer to a start request. A cache hit comes
// back already complete with Result set.
type StartResponse struct {
	JobID  string              `json:"jobId"`
	Status model.JobStatus     `json:"status"`
	Result *model.ReportResult `json:"result,omitempty"`
}

// Cached reports whether the server answered from its result cache.
func (r *StartResponse) Cached() bool {
	return r.Status == model.JobComplete && r.Result != nil
}

// Client is the server API the poller drives.
type Client interface {
	StartJob(ctx context.Context, url string, useCache bool) (*StartResponse, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	SaveReport(ctx context.Context, in reports.SaveInput) (*reports.SaveResult, error)
}

// GraphQLError is one entry of a GraphQL "errors" array.
type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// ResponseError carries the errors a server returned for an operation.
type ResponseError struct {
	Operation string
	Errors    []GraphQLError
}

func (e *ResponseError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		msgs = append(msgs, ge.Message)
	}
	return fmt.Sprintf("%s: %s", e.Operation, strings.Join(msgs, "; "))
}

// GraphQLClient talks to POST /graphql through a webclient.WebClient.
type GraphQLClient struct {
	endpoint string
	client   webclient.WebClient
	logger   logging.Logger
}

func NewGraphQLClient(endpoint string, client webclient.WebClient, logger logging.Logger) (*GraphQLClient, error) {
	if endpoint == "" {
		return nil, errors.New("graphql endpoint is required")
	}
	if client == nil {
		return nil, errors.New("webclient is nil")
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &GraphQLClient{
		endpoint: endpoint,
		client:   client,
		logger:   logger.With(logging.Field{Key: "component", Value: "graphql-client"}),
	}, nil
}

const startJobQuery = `query startAccessibilityReportJob($url: String!, $useCache: Boolean) {
  startAccessibilityReportJob(url: $url, use_cache: $useCache) { jobId status result }
}`

const getReportQuery = `query getAccessibilityReportByJobId($jobId: String!) {
  getAccessibilityReportByJobId(jobId: $jobId) { jobId status result error }
}`

const saveReportMutation = `mutation saveAccessibilityReport($report: JSON!, $url: String!, $allowedSitesId: Int, $key: String) {
  saveAccessibilityReport(report: $report, url: $url, allowed_sites_id: $allowedSitesId, key: $key) { success key report }
}`

type graphqlRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// do posts one operation and decodes data into out.
func (c *GraphQLClient) do(ctx context.Context, op, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(graphqlRequest{Query: query, OperationName: op, Variables: vars})
	if err != nil {
		return fmt.Errorf("encode %s: %w", op, err)
	}

	resp, err := c.client.Do(ctx, &webclient.Request{
		Method: http.MethodPost,
		URL:    c.endpoint,
		Headers: http.Header{
			"Content-Type": []string{"application/json"},
			"Accept":       []string{"application/json"},
		},
		Body:    body,
		Timeout: TimeoutFor(op),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.OK() {
		return fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}

	var gr graphqlResponse
	if err := json.Unmarshal(resp.Body, &gr); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	if len(gr.Errors) > 0 {
		return &ResponseError{Operation: op, Errors: gr.Errors}
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", op, err)
	}
	return nil
}

func (c *GraphQLClient) StartJob(ctx context.Context, url string, useCache bool) (*StartResponse, error) {
	var data struct {
		Start *StartResponse `json:"startAccessibilityReportJob"`
	}
	err := c.do(ctx, OpStartJob, startJobQuery, map[string]any{"url": url, "useCache": useCache}, &data)
	if err != nil {
		return nil, err
	}
	if data.Start == nil {
		return nil, fmt.Errorf("%s: empty response", OpStartJob)
	}
	c.logger.Debug("job started",
		logging.Field{Key: "job_id", Value: data.Start.JobID},
		logging.Field{Key: "status", Value: string(data.Start.Status)})
	return data.Start, nil
}

// GetJob returns ErrNotFound when the server answers null.
func (c *GraphQLClient) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var data struct {
		Report *struct {
			JobID  string              `json:"jobId"`
			Status model.JobStatus     `json:"status"`
			Result *model.ReportResult `json:"result"`
			Error  *string             `json:"error"`
		} `json:"getAccessibilityReportByJobId"`
	}
	if err := c.do(ctx, OpGetReport, getReportQuery, map[string]any{"jobId": jobID}, &data); err != nil {
		return nil, err
	}
	if data.Report == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	job := &model.Job{ID: jobID, Status: data.Report.Status, Result: data.Report.Result}
	if data.Report.Error != nil {
		job.Error = *data.Report.Error
	}
	if !job.Status.Valid() {
		return nil, fmt.Errorf("%s: unknown status %q", OpGetReport, job.Status)
	}
	return job, nil
}

func (c *GraphQLClient) SaveReport(ctx context.Context, in reports.SaveInput) (*reports.SaveResult, error) {
	vars := map[string]any{"report": in.Report, "url": in.URL}
	if in.AllowedSitesID != nil {
		vars["allowedSitesId"] = *in.AllowedSitesID
	}
	if in.Key != "" {
		vars["key"] = in.Key
	}
	var data struct {
		Save *struct {
			Success bool            `json:"success"`
			Key     *string         `json:"key"`
			Report  json.RawMessage `json:"report"`
		} `json:"saveAccessibilityReport"`
	}
	if err := c.do(ctx, OpSaveReport, saveReportMutation, vars, &data); err != nil {
		return nil, err
	}
	if data.Save == nil {
		return nil, fmt.Errorf("%s: empty response", OpSaveReport)
	}
	out := &reports.SaveResult{Success: data.Save.Success, Report: data.Save.Report}
	if data.Save.Key != nil {
		out.Key = *data.Save.Key
	}
	return out, nil
}
