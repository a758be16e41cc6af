package tailorapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"jobtailor/internal/shared/telemetry"
)

const maxResponseBytes = 8 << 20

// Client talks to the remote tailoring service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a client for baseURL. A non-empty token is sent as a bearer
// credential on every request.
func New(baseURL, token string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("tailor api base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse tailor api url: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}
	if token = strings.TrimSpace(token); token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token,
			TokenType:   "Bearer",
		}))
		httpClient.Timeout = timeout
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}, nil
}

// Optimize submits one tailoring request.
func (c *Client) Optimize(ctx context.Context, req OptimizeRequest) (OptimizeResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return OptimizeResponse{}, err
	}
	status, body, err := c.do(ctx, "optimize", http.MethodPost, c.baseURL+"/optimize", payload)
	if err != nil {
		return OptimizeResponse{}, err
	}
	if status < 200 || status > 299 {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		msg := eb.Error
		if msg == "" {
			msg = eb.Message
		}
		if msg == "" {
			msg = fmt.Sprintf("API request failed: %d %s", status, http.StatusText(status))
		}
		return OptimizeResponse{}, &APIError{Op: "optimize", StatusCode: status, Message: msg}
	}

	var out OptimizeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return OptimizeResponse{}, fmt.Errorf("optimize: %w: %v", ErrMalformedResponse, err)
	}
	noJob := strings.TrimSpace(out.JobID) == ""
	// A rejection can also arrive as a 2xx body carrying FAILED or just a message.
	if out.Status == StatusFailed || (noJob && strings.TrimSpace(out.Message) != "") {
		msg := out.Message
		if msg == "" {
			msg = "Job failed"
		}
		return OptimizeResponse{}, &APIError{Op: "optimize", StatusCode: status, Message: msg}
	}
	if noJob {
		return OptimizeResponse{}, ErrMissingJobID
	}
	if out.Status == "" {
		out.Status = StatusProcessing
	}
	return out, nil
}

// Status fetches the current state of jobID.
func (c *Client) Status(ctx context.Context, jobID string) (StatusResponse, error) {
	endpoint := c.baseURL + "/status?jobId=" + url.QueryEscape(jobID)
	status, body, err := c.do(ctx, "status", http.MethodGet, endpoint, nil)
	if err != nil {
		return StatusResponse{}, err
	}
	if status < 200 || status > 299 {
		return StatusResponse{}, &APIError{Op: "status", StatusCode: status, Message: fmt.Sprintf("Status check failed: %d", status)}
	}
	if err := validateStatus(body); err != nil {
		return StatusResponse{}, fmt.Errorf("status: %w", err)
	}

	var out StatusResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return StatusResponse{}, fmt.Errorf("status: %w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}

// ExtractJobURL asks the service to scrape title, company and description from a posting URL.
func (c *Client) ExtractJobURL(ctx context.Context, jobURL string) (JobDetails, error) {
	payload, err := json.Marshal(extractRequest{JobURL: jobURL})
	if err != nil {
		return JobDetails{}, err
	}
	status, body, err := c.do(ctx, "extract-job-url", http.MethodPost, c.baseURL+"/extract-job-url", payload)
	if err != nil {
		return JobDetails{}, err
	}

	var out extractResponse
	decodeErr := json.Unmarshal(body, &out)
	if status < 200 || status > 299 {
		msg := out.Error
		if msg == "" {
			detail := out.Message
			if detail == "" {
				detail = "Failed to extract job data"
			}
			msg = fmt.Sprintf("HTTP %d: %s", status, detail)
		}
		return JobDetails{}, &APIError{Op: "extract-job-url", StatusCode: status, Message: msg}
	}
	if decodeErr != nil {
		return JobDetails{}, fmt.Errorf("extract-job-url: %w: %v", ErrMalformedResponse, decodeErr)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "failed to extract job data"
		}
		return JobDetails{}, &APIError{Op: "extract-job-url", StatusCode: status, Message: msg}
	}
	return out.Data, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	telemetry.Info("tailorapi.call", map[string]any{
		"op":          op,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
		"request_id":  requestID,
	})
	return resp.StatusCode, body, nil
}
