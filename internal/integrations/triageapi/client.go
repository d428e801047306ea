package triageapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"triage-client/internal/domain"
)

const (
	startPath      = "/api/triage/start"
	answerPath     = "/api/triage/answer"
	sessionPath    = "/api/triage/session/"
	healthPath     = "/"
	defaultTimeout = 60 * time.Second

	maxBodyBytes = 1 << 20

	// maxErrorBodyBytes bounds the raw body kept on HTTPStatusError.
	maxErrorBodyBytes = 4096

	// CorrelationHeader carries a per-request identifier for log correlation
	// with the service.
	CorrelationHeader = "X-Correlation-Id"
)

// Endpoint names reported to a RequestObserver.
const (
	EndpointStart   = "start"
	EndpointAnswer  = "answer"
	EndpointSession = "session"
	EndpointHealth  = "health"
)

// startRequest is the body of POST /api/triage/start.
type startRequest struct {
	Symptoms string `json:"symptoms"`
}

// answerRequest is the body of POST /api/triage/answer.
type answerRequest struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

// sessionResponse is the union returned by both start and answer.
type sessionResponse struct {
	SessionID    string          `json:"session_id"`
	Type         string          `json:"type"`
	Question     *string         `json:"question"`
	TriageResult *domain.Verdict `json:"triage_result"`
	Message      *string         `json:"message"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// HTTPStatusError captures non-2xx responses. Detail holds the service's
// user-facing message when the body carried one as a string.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
	Detail     string
}

func (e *HTTPStatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("triageapi: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Detail)
	}
	return fmt.Sprintf("triageapi: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *HTTPStatusError) ServiceDetail() string {
	return e.Detail
}

// MalformedResponseError is returned when a 2xx body does not match the
// response contract.
type MalformedResponseError struct {
	URL    string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("triageapi: malformed response from %s: %s", e.URL, e.Reason)
}

// RequestObserver is notified once per completed request. status is zero when
// no HTTP response was received.
type RequestObserver interface {
	ObserveRequest(endpoint string, status int, err error, elapsed time.Duration)
}

// Client talks to the triage service over HTTP JSON.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	observer      RequestObserver
	correlationID func() string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

func WithObserver(o RequestObserver) Option {
	return func(c *Client) {
		c.observer = o
	}
}

func WithCorrelationID(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.correlationID = fn
		}
	}
}

// NewClient creates a Client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("triageapi: base URL must not be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("triageapi: parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("triageapi: base URL %q must be http or https", baseURL)
	}
	c := &Client{
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: defaultTimeout},
		correlationID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalised service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func (c *Client) endpointURL(path string) string {
	return c.baseURL + path
}

// Start opens a session with the initial symptom description.
func (c *Client) Start(ctx context.Context, symptoms string) (domain.TriageReply, error) {
	return c.postSession(ctx, EndpointStart, startPath, startRequest{Symptoms: symptoms})
}

// Answer forwards the user's answer to the pending question of sessionID.
func (c *Client) Answer(ctx context.Context, sessionID, answer string) (domain.TriageReply, error) {
	if strings.TrimSpace(sessionID) == "" {
		return domain.TriageReply{}, errors.New("triageapi: session id must not be empty")
	}
	return c.postSession(ctx, EndpointAnswer, answerPath, answerRequest{SessionID: sessionID, Answer: answer})
}

// Status fetches the service-side state of a session.
func (c *Client) Status(ctx context.Context, sessionID string) (domain.SessionStatus, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.SessionStatus{}, errors.New("triageapi: session id must not be empty")
	}
	target := c.endpointURL(sessionPath + url.PathEscape(sessionID))
	raw, err := c.do(ctx, EndpointSession, http.MethodGet, target, nil)
	if err != nil {
		return domain.SessionStatus{}, fmt.Errorf("triageapi: session request failed: %w", err)
	}
	var out domain.SessionStatus
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.SessionStatus{}, &MalformedResponseError{URL: target, Reason: err.Error()}
	}
	return out, nil
}

// Health calls the service root.
func (c *Client) Health(ctx context.Context) (domain.Health, error) {
	target := c.endpointURL(healthPath)
	raw, err := c.do(ctx, EndpointHealth, http.MethodGet, target, nil)
	if err != nil {
		return domain.Health{}, fmt.Errorf("triageapi: health request failed: %w", err)
	}
	var out domain.Health
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.Health{}, &MalformedResponseError{URL: target, Reason: err.Error()}
	}
	return out, nil
}

func (c *Client) postSession(ctx context.Context, endpoint, path string, payload any) (domain.TriageReply, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.TriageReply{}, fmt.Errorf("triageapi: marshal %s request: %w", endpoint, err)
	}
	target := c.endpointURL(path)
	raw, err := c.do(ctx, endpoint, http.MethodPost, target, body)
	if err != nil {
		return domain.TriageReply{}, fmt.Errorf("triageapi: %s request failed: %w", endpoint, err)
	}
	return decodeSessionResponse(target, raw)
}

func decodeSessionResponse(target string, raw []byte) (domain.TriageReply, error) {
	var payload sessionResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.TriageReply{}, &MalformedResponseError{URL: target, Reason: err.Error()}
	}
	if strings.TrimSpace(payload.SessionID) == "" {
		return domain.TriageReply{}, &MalformedResponseError{URL: target, Reason: "missing session_id"}
	}

	reply := domain.TriageReply{SessionID: payload.SessionID}
	if payload.Message != nil {
		reply.Message = *payload.Message
	}

	switch domain.ReplyType(payload.Type) {
	case domain.ReplyTriage:
		if payload.TriageResult == nil {
			return domain.TriageReply{}, &MalformedResponseError{URL: target, Reason: "triage response without triage_result"}
		}
		v := payload.TriageResult.Clone()
		if v.RecommendedActions == nil {
			v.RecommendedActions = []string{}
		}
		if v.WarningSigns == nil {
			v.WarningSigns = []string{}
		}
		reply.Type = domain.ReplyTriage
		reply.Verdict = &v
	case domain.ReplyAsk:
		if payload.Question == nil || strings.TrimSpace(*payload.Question) == "" {
			return domain.TriageReply{}, &MalformedResponseError{URL: target, Reason: "ask response without question"}
		}
		reply.Type = domain.ReplyAsk
		reply.Question = *payload.Question
	default:
		return domain.TriageReply{}, &MalformedResponseError{URL: target, Reason: fmt.Sprintf("unknown response type %q", payload.Type)}
	}
	return reply, nil
}

func (c *Client) do(ctx context.Context, endpoint, method, target string, body []byte) (raw []byte, err error) {
	started := time.Now()
	status := 0
	if c.observer != nil {
		defer func() {
			c.observer.ObserveRequest(endpoint, status, err, time.Since(started))
		}()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, reqErr := http.NewRequestWithContext(ctx, method, target, reader)
	if reqErr != nil {
		return nil, fmt.Errorf("create request: %w", reqErr)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(CorrelationHeader, c.correlationID())

	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()
	status = res.StatusCode

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
		body := buf
		if len(body) > maxErrorBodyBytes {
			body = body[:maxErrorBodyBytes]
		}
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        target,
			Body:       string(body),
			Detail:     extractDetail(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

// extractDetail returns the "detail" field of an error body when it is a
// non-empty JSON string. Validation errors carry a list and are ignored.
func extractDetail(body []byte) string {
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err != nil {
		return ""
	}
	return strings.TrimSpace(detail)
}
