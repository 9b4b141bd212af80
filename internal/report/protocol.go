package report

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// API is the transport surface the report protocol needs. *amzn.Client
// satisfies it.
type API interface {
	Post(ctx context.Context, path, mediaType string, payload any) ([]byte, int, error)
	Get(ctx context.Context, path, mediaType string) ([]byte, int, error)
	Download(ctx context.Context, rawURL string) ([]byte, error)
}

// Request describes one asynchronous report job.
type Request struct {
	StartDate     string        `json:"startDate"`
	EndDate       string        `json:"endDate"`
	Configuration Configuration `json:"configuration"`
}

// Configuration is the inner report job configuration.
type Configuration struct {
	AdProduct    string   `json:"adProduct"`
	GroupBy      []string `json:"groupBy"`
	Columns      []string `json:"columns"`
	ReportTypeID string   `json:"reportTypeId"`
	TimeUnit     string   `json:"timeUnit"`
	Format       string   `json:"format"`
}

// NewRequest builds a daily GZIP_JSON report request.
func NewRequest(start, end, adProduct, reportTypeID string, groupBy, columns []string) Request {
	return Request{
		StartDate: start,
		EndDate:   end,
		Configuration: Configuration{
			AdProduct:    adProduct,
			GroupBy:      groupBy,
			Columns:      columns,
			ReportTypeID: reportTypeID,
			TimeUnit:     "DAILY",
			Format:       "GZIP_JSON",
		},
	}
}

// OutcomeKind tags the result of a creation attempt.
type OutcomeKind int

const (
	OutcomeAccepted OutcomeKind = iota
	OutcomeDuplicate
	OutcomeSchemaRejected
	OutcomeGroupByRejected
	OutcomeFailed
)

// CreateOutcome is the decoded result of POST /reporting/reports.
type CreateOutcome struct {
	Kind     OutcomeKind
	ReportID string   // Accepted, Duplicate
	Allowed  []string // SchemaRejected, GroupByRejected
	Reason   string   // Failed
}

type createResponse struct {
	ReportID string `json:"reportId"`
	Status   string `json:"status"`
	Detail   string `json:"detail"`
	Message  string `json:"message"`
}

// Create submits a report job and classifies the API's answer. Duplicate
// submissions are not errors: the API hands back the id of the job it is
// already running, embedded in the detail text.
func Create(ctx context.Context, api API, req Request) (CreateOutcome, error) {
	body, status, err := api.Post(ctx, "/reporting/reports", "application/vnd.createasyncreportrequest.v3+json", req)
	if err != nil {
		return CreateOutcome{}, err
	}

	var resp createResponse
	_ = json.Unmarshal(body, &resp)
	lower := strings.ToLower(string(body))

	switch {
	case status >= 200 && status < 300:
		if resp.ReportID == "" {
			return CreateOutcome{Kind: OutcomeFailed, Reason: "no reportId in response"}, nil
		}
		return CreateOutcome{Kind: OutcomeAccepted, ReportID: resp.ReportID}, nil

	case strings.Contains(lower, "duplicate"):
		id := duplicateReportID(resp.Detail)
		if id == "" {
			id = duplicateReportID(resp.Message)
		}
		if id == "" {
			return CreateOutcome{Kind: OutcomeFailed, Reason: "duplicate without report id: " + resp.Detail}, nil
		}
		return CreateOutcome{Kind: OutcomeDuplicate, ReportID: id}, nil

	case status == 400 && strings.Contains(lower, "columns includes invalid values"):
		return CreateOutcome{Kind: OutcomeSchemaRejected, Allowed: parseAllowedColumns(string(body))}, nil

	case status == 400 && strings.Contains(lower, "groupby") && strings.Contains(lower, "invalid"):
		return CreateOutcome{Kind: OutcomeGroupByRejected, Allowed: parseAllowedColumns(string(body))}, nil

	default:
		reason := resp.Detail
		if reason == "" {
			reason = resp.Message
		}
		if reason == "" {
			reason = strings.TrimSpace(string(body))
		}
		return CreateOutcome{Kind: OutcomeFailed, Reason: reason}, nil
	}
}

// duplicateReportID pulls the job id out of a "Report with same
// configuration already exists: <id>" detail string.
func duplicateReportID(detail string) string {
	idx := strings.LastIndex(detail, ":")
	if idx < 0 || idx == len(detail)-1 {
		return ""
	}
	return strings.Trim(strings.TrimSpace(detail[idx+1:]), `."'`)
}

// RequestOptions tunes the adaptive creation flow.
type RequestOptions struct {
	// IdentityColumns are appended on schema adaptation even if the caller's
	// request dropped them.
	IdentityColumns []string
	// AdaptGroupBy enables the groupBy fallback used by the ASIN report.
	AdaptGroupBy bool
}

// RequestAdaptive submits a report request and, when the API rejects the
// column or groupBy schema, rewrites the request from the allowed set and
// retries exactly once.
func RequestAdaptive(ctx context.Context, api API, req Request, opts RequestOptions) (string, error) {
	allowRetry := true
	for {
		outcome, err := Create(ctx, api, req)
		if err != nil {
			return "", err
		}

		switch outcome.Kind {
		case OutcomeAccepted, OutcomeDuplicate:
			if outcome.Kind == OutcomeDuplicate {
				zap.L().Info("reusing in-flight duplicate report",
					zap.String("report_id", outcome.ReportID),
					zap.String("report_type", req.Configuration.ReportTypeID))
			}
			return outcome.ReportID, nil

		case OutcomeSchemaRejected:
			if !allowRetry {
				return "", eris.Errorf("report: %s rejected after column adaptation", req.Configuration.ReportTypeID)
			}
			resolved := resolveColumns(req.Configuration.Columns, opts.IdentityColumns, outcome.Allowed)
			if len(resolved) == 0 {
				return "", eris.Errorf("report: %s rejected, no usable columns in allowed set", req.Configuration.ReportTypeID)
			}
			zap.L().Info("adapting report columns to allowed set",
				zap.String("report_type", req.Configuration.ReportTypeID),
				zap.Strings("columns", resolved))
			req.Configuration.Columns = resolved
			allowRetry = false

		case OutcomeGroupByRejected:
			if !opts.AdaptGroupBy || !allowRetry {
				return "", eris.Errorf("report: %s groupBy rejected", req.Configuration.ReportTypeID)
			}
			groupBy := "advertiser"
			if len(outcome.Allowed) > 0 {
				groupBy = outcome.Allowed[0]
			}
			zap.L().Info("adapting report groupBy",
				zap.String("report_type", req.Configuration.ReportTypeID),
				zap.String("group_by", groupBy))
			req.Configuration.GroupBy = []string{groupBy}
			allowRetry = false

		default:
			return "", eris.Errorf("report: %s creation failed: %s", req.Configuration.ReportTypeID, outcome.Reason)
		}
	}
}

// Terminal poll statuses.
const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// ErrTimeout is returned when a report stays pending past the poll bound.
// The job itself may still finish; callers can persist the id and resume.
var ErrTimeout = eris.New("report: poll timeout")

type statusResponse struct {
	ReportID string `json:"reportId"`
	Status   string `json:"status"`
	URL      string `json:"url"`
	// FailureReason appears on FAILED jobs.
	FailureReason string `json:"failureReason"`
}

// CheckOnce fetches the current status of a report job. url is only set when
// the status is COMPLETED.
func CheckOnce(ctx context.Context, api API, reportID string) (status, url string, err error) {
	body, httpStatus, err := api.Get(ctx, "/reporting/reports/"+reportID, "application/json")
	if err != nil {
		return "", "", err
	}
	if httpStatus < 200 || httpStatus >= 300 {
		return "", "", eris.Errorf("report: status check for %s returned %d", reportID, httpStatus)
	}

	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", eris.Wrapf(err, "report: decode status for %s", reportID)
	}

	switch resp.Status {
	case StatusFailed, StatusCancelled:
		return resp.Status, "", eris.Errorf("report: %s %s: %s", reportID, strings.ToLower(resp.Status), resp.FailureReason)
	case StatusCompleted:
		if resp.URL == "" {
			return resp.Status, "", eris.Errorf("report: %s completed without url", reportID)
		}
		return resp.Status, resp.URL, nil
	default:
		return resp.Status, "", nil
	}
}

// Poll waits for a report to complete, checking every interval up to
// maxAttempts times. FAILED and CANCELLED are terminal; running out of
// attempts returns ErrTimeout.
func Poll(ctx context.Context, api API, reportID string, maxAttempts int, interval time.Duration) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = 180
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		status, url, err := CheckOnce(ctx, api, reportID)
		if err != nil {
			return "", err
		}
		if status == StatusCompleted {
			return url, nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", eris.Wrap(ctx.Err(), "report: poll")
		case <-timer.C:
		}
	}
	return "", eris.Wrapf(ErrTimeout, "report: %s still pending after %d checks", reportID, maxAttempts)
}

// DownloadRows fetches a completed report and decodes its gzip JSON body.
func DownloadRows(ctx context.Context, api API, url string) ([]Row, error) {
	raw, err := api.Download(ctx, url)
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, eris.Wrap(err, "report: open gzip")
	}
	defer gz.Close()

	decoded, err := io.ReadAll(gz)
	if err != nil {
		return nil, eris.Wrap(err, "report: decompress")
	}

	var rows []Row
	if err := json.Unmarshal(decoded, &rows); err != nil {
		return nil, eris.Wrap(err, "report: decode rows")
	}
	return rows, nil
}

// Fetch runs the full request/poll/download cycle for one report.
func Fetch(ctx context.Context, api API, req Request, opts RequestOptions, maxAttempts int, interval time.Duration) ([]Row, error) {
	reportID, err := RequestAdaptive(ctx, api, req, opts)
	if err != nil {
		return nil, err
	}
	url, err := Poll(ctx, api, reportID, maxAttempts, interval)
	if err != nil {
		return nil, err
	}
	return DownloadRows(ctx, api, url)
}
