package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	api "github.com/kubev2v/media-analyzer/api/v1alpha1"
	"github.com/kubev2v/media-analyzer/pkg/requestid"
	"github.com/lthibault/jitterbug/v2"
)

// APIError is a non successful answer of the analyzer API.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("analyzer returned status %d", e.StatusCode)
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("%s (request id %s)", msg, e.RequestID)
	}
	return msg
}

// IsNotFound reports whether err is a 404 answer.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client is an HTTP client for the media analyzer API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// ListOptions filters and pages a job listing. Zero values are left to the server.
type ListOptions struct {
	Statuses []string
	Offset   int
	Limit    int
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	for _, s := range o.Statuses {
		q.Add("status", s)
	}
	if o.Offset > 0 {
		q.Set("offset", strconv.Itoa(o.Offset))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	return q
}

// SubmitFile uploads the file at path. The file is streamed, never held in memory.
func (c *Client) SubmitFile(ctx context.Context, path string) (*api.SubmitResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeFilePart(mw, filepath.Base(path), f))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/analyze", nil, pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp api.SubmitResponse
	if err := c.do(req, http.StatusAccepted, &resp); err != nil {
		_ = pr.CloseWithError(err)
		return nil, err
	}
	return &resp, nil
}

func writeFilePart(mw *multipart.Writer, filename string, content io.Reader) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentTypeFor(filename))

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	return mw.Close()
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".avi":
		return "video/x-msvideo"
	case ".wmv":
		return "video/x-ms-wmv"
	case ".flv":
		return "video/x-flv"
	default:
		return "application/octet-stream"
	}
}

func (c *Client) GetJob(ctx context.Context, id string) (*api.Job, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}

	var job api.Job
	if err := c.do(req, http.StatusOK, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) ListJobs(ctx context.Context, opts ListOptions) (*api.JobList, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/jobs", opts.query(), nil)
	if err != nil {
		return nil, err
	}

	var list api.JobList
	if err := c.do(req, http.StatusOK, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) CancelJob(ctx context.Context, id string) (*api.Job, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(id)+"/cancel", nil, nil)
	if err != nil {
		return nil, err
	}

	var job api.Job
	if err := c.do(req, http.StatusOK, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) DeleteJob(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/v1/jobs/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return err
	}
	return c.do(req, http.StatusNoContent, nil)
}

// GetReport copies the report of a COMPLETE job to dst.
func (c *Client) GetReport(ctx context.Context, id string, dst io.Writer) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id)+"/report", nil, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call analyzer: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}
	return nil
}

// WaitForJob polls the job every interval, with jitter, until it is COMPLETE or FAILED.
// onUpdate, when set, is called with every polled state.
func (c *Client) WaitForJob(ctx context.Context, id string, interval time.Duration, onUpdate func(*api.Job)) (*api.Job, error) {
	ticker := jitterbug.New(interval, &jitterbug.Norm{Stdev: interval / 10})
	defer ticker.Stop()

	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil {
			onUpdate(job)
		}
		if job.Status == api.JobStatusComplete || job.Status == api.JobStatusFailed {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(requestid.Header, requestid.Generate())
	return req, nil
}

// do sends req and decodes a JSON answer with the expected status into out.
func (c *Client) do(req *http.Request, expected int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call analyzer: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != expected {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: resp.Header.Get(requestid.Header)}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload api.Error
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		apiErr.Message = payload.Message
		if payload.RequestId != nil {
			apiErr.RequestID = *payload.RequestId
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
