package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// BaseURLParameter is the parameter name, relative to the prefix, that holds
// the triage service base URL.
const BaseURLParameter = "/api_base_url"

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter is the interface that wraps GetParameter.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client wraps an AWS SSM API for parameter retrieval.
type Client struct {
	api ssmAPI
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// baseURLPayload is the JSON shape accepted for the base URL parameter. A plain
// string value is accepted as well.
type baseURLPayload struct {
	URL string `json:"url"`
}

// BaseURLResolver loads the service base URL from the parameter store once and
// reuses it for the lifetime of the process. Failed lookups are retried on the
// next call.
type BaseURLResolver struct {
	getter Getter
	name   string

	mu      sync.Mutex
	loaded  bool
	baseURL string
}

// NewBaseURLResolver creates a resolver reading prefix + BaseURLParameter.
func NewBaseURLResolver(g Getter, prefix string) (*BaseURLResolver, error) {
	if g == nil {
		return nil, errors.New("paramstore: getter must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("paramstore: parameter prefix must not be empty")
	}
	return &BaseURLResolver{getter: g, name: prefix + BaseURLParameter}, nil
}

// Name returns the full parameter name the resolver reads.
func (r *BaseURLResolver) Name() string {
	return r.name
}

func (r *BaseURLResolver) Resolve(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return r.baseURL, nil
	}

	raw, err := r.getter.GetParameter(ctx, r.name)
	if err != nil {
		return "", fmt.Errorf("paramstore: resolve base URL: %w", err)
	}
	baseURL, err := parseBaseURL(raw)
	if err != nil {
		return "", err
	}
	r.baseURL = baseURL
	r.loaded = true
	return baseURL, nil
}

func parseBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		var p baseURLPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return "", fmt.Errorf("paramstore: unmarshal base URL value as JSON: %w", err)
		}
		raw = strings.TrimSpace(p.URL)
	}
	if raw == "" {
		return "", errors.New("paramstore: base URL is empty")
	}
	return raw, nil
}
