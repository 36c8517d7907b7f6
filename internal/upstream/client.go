package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sangammgr88/exam-portal-gateway/internal/model"
)

// Client talks to the examination backend (exam catalog + result
// submission). All calls are bearer-token authenticated; a missing token
// short-circuits with ErrUnauthorized before any network I/O.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     zerolog.Logger
}

// New creates an upstream client with the given base URL and timeout.
func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "upstream_client").Logger(),
	}
}

// envelope is the upstream's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// GetExam fetches one exam definition by id, including correctness data.
// The caller must never forward the raw definition to students.
func (c *Client) GetExam(ctx context.Context, examID, token string) (*model.ExamDefinition, error) {
	var def model.ExamDefinition
	path := "/api/exam/" + url.PathEscape(examID)
	if err := c.do(ctx, http.MethodGet, path, token, nil, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// ListExams fetches the full exam catalog. Filtering to active exams is the
// caller's concern.
func (c *Client) ListExams(ctx context.Context, token string) ([]model.ExamDefinition, error) {
	var defs []model.ExamDefinition
	if err := c.do(ctx, http.MethodGet, "/api/exam/list", token, nil, &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// SubmitResult posts a finished attempt to the result submission service.
func (c *Client) SubmitResult(ctx context.Context, token string, sub *model.ResultSubmission) error {
	return c.do(ctx, http.MethodPost, "/api/result/submit", token, sub, nil)
}

// ListStudentResults fetches a student's result history, including the
// violation counters recorded upstream.
func (c *Client) ListStudentResults(ctx context.Context, studentID, token string) ([]model.StudentResult, error) {
	var results []model.StudentResult
	path := "/api/result/student/" + url.PathEscape(studentID)
	if err := c.do(ctx, http.MethodGet, path, token, nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// do performs one envelope-wrapped request/response cycle against the
// upstream and maps failures onto the error taxonomy.
func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	if token == "" {
		return ErrUnauthorized
	}

	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	// Map the status before touching the body: auth and not-found failures
	// come back from proxies and upstream alike, not always as JSON.
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		c.log.Warn().Err(err).Str("path", path).Int("status", resp.StatusCode).
			Msg("Undecodable upstream response")
		return &ServerError{StatusCode: resp.StatusCode}
	}

	if resp.StatusCode >= 400 || !env.Success {
		return &ServerError{StatusCode: resp.StatusCode, Message: env.Message}
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode upstream data: %w", err)
		}
	}
	return nil
}
