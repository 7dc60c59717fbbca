// Package pipeline provides a client for the external workflow orchestrator
// that runs ingestion pipelines on the catalog's behalf.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/meridian-data/catalog-engine/pkg/apperrors"
	"github.com/meridian-data/catalog-engine/pkg/config"
)

// DefaultTimeout is the maximum time to wait for pipeline-runner responses.
const DefaultTimeout = 30 * time.Second

const tokenCacheKey = "pipeline-token"

// Descriptor is the deployable definition of one ingestion pipeline.
type Descriptor struct {
	Name       string         `json:"name"`
	Schedule   string         `json:"schedule,omitempty"`
	SourceFQN  string         `json:"sourceFullyQualifiedName,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// RunStatus is one execution of a deployed pipeline.
type RunStatus struct {
	RunID     string `json:"runId"`
	State     string `json:"state"`
	StartedAt int64  `json:"startedAt,omitempty"`
	EndedAt   int64  `json:"endedAt,omitempty"`
}

// DeploymentError distinguishes "the runner rejected the deployment" from a
// generic transport failure.
type DeploymentError struct {
	Pipeline   string
	StatusCode int
	Body       string
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("deployment of pipeline %q failed with status %d: %s",
		e.Pipeline, e.StatusCode, e.Body)
}

// Client provides access to the pipeline-runner API. Authentication tokens
// are cached until shortly before the expiry baked into the JWT.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	tokens     *gocache.Cache
	logger     *zap.Logger
}

// NewClient creates a new pipeline-runner client.
func NewClient(cfg config.PipelineConfig, logger *zap.Logger) *Client {
	timeout := DefaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     gocache.New(gocache.NoExpiration, 10*time.Minute),
		logger:     logger.Named("pipeline"),
	}
}

// Authenticate returns a bearer token for the runner, from cache when a
// previously issued one has not expired.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	if cached, ok := c.tokens.Get(tokenCacheKey); ok {
		return cached.(string), nil
	}

	endpoint, err := buildURL(c.baseURL, "api", "v1", "security", "login")
	if err != nil {
		return "", fmt.Errorf("failed to build URL: %w", err)
	}

	payload, _ := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("pipeline runner login returned status %d", status)
	}

	var response struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to parse login response: %w", err)
	}

	c.tokens.Set(tokenCacheKey, response.Token, tokenTTL(response.Token))
	return response.Token, nil
}

// tokenTTL derives a cache lifetime from the token's exp claim, with a one
// minute safety margin. Tokens without a readable expiry are kept for an
// hour.
func tokenTTL(token string) time.Duration {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Hour
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Hour
	}
	ttl := time.Until(exp.Time) - time.Minute
	if ttl <= 0 {
		return time.Minute
	}
	return ttl
}

// Deploy registers or replaces a pipeline definition with the runner. A
// non-2xx response becomes a *DeploymentError.
func (c *Client) Deploy(ctx context.Context, descriptor *Descriptor) error {
	body, status, err := c.authedRequest(ctx, http.MethodPost,
		[]string{"api", "v1", "pipelines", "deploy"}, descriptor)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return &DeploymentError{Pipeline: descriptor.Name, StatusCode: status, Body: string(body)}
	}

	c.logger.Info("Pipeline deployed", zap.String("pipeline", descriptor.Name))
	return nil
}

// Trigger starts an immediate run of a deployed pipeline.
func (c *Client) Trigger(ctx context.Context, name string) error {
	_, status, err := c.authedRequest(ctx, http.MethodPost,
		[]string{"api", "v1", "pipelines", name, "trigger"}, nil)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("failed to trigger pipeline %q: runner returned status %d", name, status)
	}
	return nil
}

// GetStatus returns the recent runs of a deployed pipeline. A 404 means the
// pipeline is not deployed and maps to ErrNotFound.
func (c *Client) GetStatus(ctx context.Context, name string) ([]RunStatus, error) {
	body, status, err := c.authedRequest(ctx, http.MethodGet,
		[]string{"api", "v1", "pipelines", name, "status"}, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("pipeline %q is not deployed: %w", name, apperrors.ErrNotFound)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("failed to get pipeline %q status: runner returned status %d", name, status)
	}

	var runs []RunStatus
	if err := json.Unmarshal(body, &runs); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline status: %w", err)
	}
	return runs, nil
}

// Delete removes a deployed pipeline from the runner.
func (c *Client) Delete(ctx context.Context, name string) error {
	_, status, err := c.authedRequest(ctx, http.MethodDelete,
		[]string{"api", "v1", "pipelines", name}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent && status != http.StatusNotFound {
		return fmt.Errorf("failed to delete pipeline %q: runner returned status %d", name, status)
	}
	return nil
}

// TestConnection asks the runner to validate a descriptor's source
// connectivity without deploying it.
func (c *Client) TestConnection(ctx context.Context, descriptor *Descriptor) error {
	body, status, err := c.authedRequest(ctx, http.MethodPost,
		[]string{"api", "v1", "pipelines", "test-connection"}, descriptor)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("connection test for %q failed with status %d: %s",
			descriptor.Name, status, string(body))
	}
	return nil
}

func (c *Client) authedRequest(ctx context.Context, method string, segments []string, payload any) ([]byte, int, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, 0, err
	}

	endpoint, err := buildURL(c.baseURL, segments...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build URL: %w", err)
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to call pipeline runner: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// buildURL constructs a URL by parsing the base and joining path segments.
func buildURL(baseURL string, pathSegments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	segments := append([]string{u.Path}, pathSegments...)
	u.Path = path.Join(segments...)

	return u.String(), nil
}
