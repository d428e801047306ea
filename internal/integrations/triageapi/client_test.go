package triageapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"triage-client/internal/domain"
)

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_EmptyBaseURL(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func TestNewClient_RejectsNonHTTPScheme(t *testing.T) {
	_, err := NewClient("ftp://example.com")
	require.Error(t, err)
	require.Contains(t, err.Error(), "http or https")
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	c, err := NewClient("http://localhost:8000/")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", c.BaseURL())
	require.Equal(t, "http://localhost:8000/api/triage/start", c.endpointURL(startPath))
}

// ---------------------------------------------------------------------------
// test helpers
// ---------------------------------------------------------------------------

type recordedRequest struct {
	endpoint string
	status   int
	err      error
}

type fakeObserver struct {
	calls []recordedRequest
}

func (f *fakeObserver) ObserveRequest(endpoint string, status int, err error, _ time.Duration) {
	f.calls = append(f.calls, recordedRequest{endpoint: endpoint, status: status, err: err})
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
		WithCorrelationID(func() string { return "corr-test" }),
	}, opts...)
	c, err := NewClient(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

// ---------------------------------------------------------------------------
// Client.Start
// ---------------------------------------------------------------------------

func TestClient_Start_Ask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/triage/start", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "corr-test", r.Header.Get(CorrelationHeader))
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"symptoms":"headache and fever"}`, string(raw))
		respond(200, `{"session_id":"s1","type":"ask","question":"How long have symptoms lasted?"}`)(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	reply, err := c.Start(context.Background(), "headache and fever")
	require.NoError(t, err)
	require.Equal(t, domain.TriageReply{
		SessionID: "s1",
		Type:      domain.ReplyAsk,
		Question:  "How long have symptoms lasted?",
	}, reply)
}

func TestClient_Start_Triage(t *testing.T) {
	srv := httptest.NewServer(respond(200, `{
		"session_id":"s9",
		"type":"triage",
		"triage_result":{
			"type":"triage",
			"level":"call_911",
			"confidence":"high",
			"what_to_do":["Call emergency services immediately"],
			"watch_for":[]
		}
	}`))
	defer srv.Close()

	c := newTestClient(t, srv)
	reply, err := c.Start(context.Background(), "crushing chest pain")
	require.NoError(t, err)
	require.Equal(t, domain.ReplyTriage, reply.Type)
	require.Equal(t, "s9", reply.SessionID)
	require.NotNil(t, reply.Verdict)
	require.Equal(t, domain.Verdict{
		UrgencyLevel:       domain.UrgencyCall911,
		Confidence:         domain.ConfidenceHigh,
		RecommendedActions: []string{"Call emergency services immediately"},
		WarningSigns:       []string{},
	}, *reply.Verdict)
}

func TestClient_Start_TriageMissingListsBecomeEmpty(t *testing.T) {
	srv := httptest.NewServer(respond(200, `{"session_id":"s1","type":"triage","triage_result":{"level":"mystery","confidence":"low"}}`))
	defer srv.Close()

	c := newTestClient(t, srv)
	reply, err := c.Start(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, domain.UrgencyLevel("mystery"), reply.Verdict.UrgencyLevel)
	require.False(t, reply.Verdict.UrgencyLevel.Known())
	require.NotNil(t, reply.Verdict.RecommendedActions)
	require.Empty(t, reply.Verdict.RecommendedActions)
	require.NotNil(t, reply.Verdict.WarningSigns)
}

func TestClient_Start_MalformedBodies(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		reason string
	}{
		{name: "not json", body: `not-json`, reason: "malformed response"},
		{name: "missing session", body: `{"type":"ask","question":"q"}`, reason: "missing session_id"},
		{name: "triage without result", body: `{"session_id":"s","type":"triage"}`, reason: "without triage_result"},
		{name: "ask without question", body: `{"session_id":"s","type":"ask"}`, reason: "without question"},
		{name: "ask with blank question", body: `{"session_id":"s","type":"ask","question":"  "}`, reason: "without question"},
		{name: "unknown type", body: `{"session_id":"s","type":"escalate"}`, reason: "unknown response type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(respond(200, tc.body))
			defer srv.Close()

			c := newTestClient(t, srv)
			_, err := c.Start(context.Background(), "x")
			require.Error(t, err)
			var malformed *MalformedResponseError
			require.ErrorAs(t, err, &malformed)
			require.Contains(t, err.Error(), tc.reason)
		})
	}
}

// ---------------------------------------------------------------------------
// Client.Answer
// ---------------------------------------------------------------------------

func TestClient_Answer_SendsSessionAndAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/triage/answer", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, map[string]string{"session_id": "s1", "answer": "2 days"}, body)
		respond(200, `{"session_id":"s1","type":"triage","triage_result":{"level":"see_gp","confidence":"medium","what_to_do":["Rest","Hydrate"],"watch_for":["Fever above 103°F"]},"message":"Session already completed"}`)(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	reply, err := c.Answer(context.Background(), "s1", "2 days")
	require.NoError(t, err)
	require.Equal(t, "Session already completed", reply.Message)
	require.Equal(t, []string{"Rest", "Hydrate"}, reply.Verdict.RecommendedActions)
	require.Equal(t, []string{"Fever above 103°F"}, reply.Verdict.WarningSigns)
}

func TestClient_Answer_EmptySessionID(t *testing.T) {
	c, err := NewClient("http://localhost:8000")
	require.NoError(t, err)
	_, err = c.Answer(context.Background(), " ", "yes")
	require.Error(t, err)
	require.Contains(t, err.Error(), "session id")
}

// ---------------------------------------------------------------------------
// error responses
// ---------------------------------------------------------------------------

func TestClient_Non2xx_WithDetail(t *testing.T) {
	srv := httptest.NewServer(respond(404, `{"detail":"Session not found"}`))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Answer(context.Background(), "gone", "yes")
	require.Error(t, err)
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 404, statusErr.HTTPStatusCode())
	require.Equal(t, "Session not found", statusErr.Detail)
	require.Contains(t, err.Error(), "404")
}

func TestClient_Non2xx_LongDetailIsKept(t *testing.T) {
	detail := strings.Repeat("Service is overloaded. ", 400)
	body, err := json.Marshal(map[string]string{"detail": detail})
	require.NoError(t, err)
	require.Greater(t, len(body), maxErrorBodyBytes)

	srv := httptest.NewServer(respond(503, string(body)))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err = c.Start(context.Background(), "x")
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, strings.TrimSpace(detail), statusErr.Detail)
	require.Len(t, statusErr.Body, maxErrorBodyBytes)
}

func TestClient_Non2xx_WithoutStringDetail(t *testing.T) {
	cases := map[string]string{
		"no body":          ``,
		"plain text":       `Internal Server Error`,
		"validation array": `{"detail":[{"loc":["body","symptoms"],"msg":"field required"}]}`,
		"no detail":        `{"error":"boom"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(respond(500, body))
			defer srv.Close()

			c := newTestClient(t, srv)
			_, err := c.Start(context.Background(), "x")
			var statusErr *HTTPStatusError
			require.ErrorAs(t, err, &statusErr)
			require.Empty(t, statusErr.Detail)
			require.Equal(t, 500, statusErr.StatusCode)
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1", WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}))
	require.NoError(t, err)

	_, err = c.Start(context.Background(), "chest pain")
	require.Error(t, err)
	require.Contains(t, err.Error(), "start request failed")
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		respond(200, `{"session_id":"s","type":"ask","question":"q"}`)(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithTimeout(50*time.Millisecond))
	_, err := c.Start(context.Background(), "x")
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Status and Health
// ---------------------------------------------------------------------------

func TestClient_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/triage/session/s1", r.URL.Path)
		respond(200, `{"session_id":"s1","completed":true,"result":{"level":"stay_home","confidence":"high","what_to_do":["Rest"],"watch_for":[]},"history":"Q: What are your symptoms?\nA: cough"}`)(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	status, err := c.Status(context.Background(), "s1")
	require.NoError(t, err)
	require.True(t, status.Completed)
	require.Equal(t, domain.UrgencyStayHome, status.Result.UrgencyLevel)
	require.Contains(t, status.History, "cough")
}

func TestClient_Status_InProgressHasNoResult(t *testing.T) {
	srv := httptest.NewServer(respond(200, `{"session_id":"s1","completed":false,"result":null,"history":null}`))
	defer srv.Close()

	c := newTestClient(t, srv)
	status, err := c.Status(context.Background(), "s1")
	require.NoError(t, err)
	require.False(t, status.Completed)
	require.Nil(t, status.Result)
	require.Empty(t, status.History)
}

func TestClient_Health(t *testing.T) {
	srv := httptest.NewServer(respond(200, `{"message":"Medical Triage API","status":"running"}`))
	defer srv.Close()

	c := newTestClient(t, srv)
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, "running", h.Status)
}

// ---------------------------------------------------------------------------
// observer
// ---------------------------------------------------------------------------

func TestClient_ReportsToObserver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == startPath {
			respond(200, `{"session_id":"s1","type":"ask","question":"q"}`)(w, r)
			return
		}
		respond(502, `{"detail":"upstream"}`)(w, r)
	}))
	defer srv.Close()

	obs := &fakeObserver{}
	c := newTestClient(t, srv, WithObserver(obs))

	_, err := c.Start(context.Background(), "x")
	require.NoError(t, err)
	_, err = c.Answer(context.Background(), "s1", "y")
	require.Error(t, err)

	require.Len(t, obs.calls, 2)
	require.Equal(t, recordedRequest{endpoint: EndpointStart, status: 200}, obs.calls[0])
	require.Equal(t, EndpointAnswer, obs.calls[1].endpoint)
	require.Equal(t, 502, obs.calls[1].status)
	var statusErr *HTTPStatusError
	require.True(t, errors.As(obs.calls[1].err, &statusErr))
}
